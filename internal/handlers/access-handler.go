package handlers

import (
	"context"
	"log"
	"time"

	"case-access-service/internal/middleware"
	"case-access-service/internal/service"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.mongodb.org/mongo-driver/v2/bson"
)

var (
	// Counter for permission checks
	accessChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "access_permission_checks_total",
			Help: "Total number of permission checks",
		},
		[]string{"result", "object_type"}, // result: allowed/denied/error
	)

	// Histogram for check duration
	checkDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "access_permission_check_duration_seconds",
			Help:    "Time spent evaluating permission checks",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"object_type"},
	)

	// Counter for grants and revocations
	grantOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "access_grant_operations_total",
			Help: "Total number of grant and revoke operations",
		},
		[]string{"operation", "status"}, // operation: grant/revoke, status: success/failure
	)
)

type AccessHandler struct {
	permissionService *service.PermissionService
	searchService     *service.SearchService
	accessService     *service.AccessService
}

func NewAccessHandler(permissionService *service.PermissionService, searchService *service.SearchService, accessService *service.AccessService) *AccessHandler {
	return &AccessHandler{
		permissionService: permissionService,
		searchService:     searchService,
		accessService:     accessService,
	}
}

func (h *AccessHandler) RegisterRoutes(app *fiber.App) {
	app.Get("/health", h.HealthCheck)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	protectedGroup := app.Group("/protected/access")

	protectedGroup.Post("/check", h.CheckAccess, middleware.PermissionRequired(middleware.ReadAccessPermission))
	protectedGroup.Post("/search-filter", h.BuildSearchFilter, middleware.PermissionRequired(middleware.ReadAccessPermission))
	protectedGroup.Get("/permissions/me", h.MyPermissions)
	protectedGroup.Post("/grants", h.Grant, middleware.PermissionRequired(middleware.ManageAccessPermission))
	protectedGroup.Delete("/grants/:id", h.Revoke, middleware.PermissionRequired(middleware.ManageAccessPermission))
	protectedGroup.Get("/grants", h.ListGrants, middleware.PermissionRequired(middleware.ReadAccessPermission))
}

func (h *AccessHandler) HealthCheck(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "healthy",
		"service": "access-service",
	})
}

type checkRequest struct {
	Username   string `json:"username"`
	Permission string `json:"permission"`
	ObjectType string `json:"objectType"`
	ObjectURL  string `json:"objectUrl"`
}

// CheckAccess answers whether a user may perform a permission on one
// object. Unresolvable objects deny rather than error.
func (h *AccessHandler) CheckAccess(c fiber.Ctx) error {
	var req checkRequest
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Username == "" {
		req.Username = middleware.UserID(c)
	}
	if req.Username == "" || req.Permission == "" || req.ObjectType == "" || req.ObjectURL == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "username, permission, objectType and objectUrl are required",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	timer := prometheus.NewTimer(checkDuration.WithLabelValues(req.ObjectType))
	allowed, err := h.permissionService.CheckAccess(ctx, req.Username, req.Permission, req.ObjectType, req.ObjectURL)
	timer.ObserveDuration()

	if err != nil {
		accessChecks.WithLabelValues("error", req.ObjectType).Inc()
		log.Printf("Failed to check %s for %s on %s: %v", req.Permission, req.Username, req.ObjectURL, err)
		return errorResponse(c, err, "Failed to check access")
	}

	if allowed {
		accessChecks.WithLabelValues("allowed", req.ObjectType).Inc()
	} else {
		accessChecks.WithLabelValues("denied", req.ObjectType).Inc()
	}

	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"allowed": allowed,
		},
	})
}

type searchFilterRequest struct {
	Username   string `json:"username"`
	Permission string `json:"permission"`
	ObjectType string `json:"objectType"`
	NestedPath string `json:"nestedPath"`
}

// BuildSearchFilter returns the search engine filter fragment that
// restricts a result set to what the user may see.
func (h *AccessHandler) BuildSearchFilter(c fiber.Ctx) error {
	var req searchFilterRequest
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Username == "" {
		req.Username = middleware.UserID(c)
	}
	if req.Username == "" || req.Permission == "" || req.ObjectType == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "username, permission and objectType are required",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	filter, err := h.searchService.BuildFilter(ctx, req.Username, req.Permission, req.ObjectType, req.NestedPath)
	if err != nil {
		log.Printf("Failed to build search filter for %s: %v", req.Username, err)
		return errorResponse(c, err, "Failed to build search filter")
	}

	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"filter": filter,
		},
	})
}

func (h *AccessHandler) MyPermissions(c fiber.Ctx) error {
	username := middleware.UserID(c)
	if username == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Unauthorized",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	names, err := h.permissionService.ListUserPermissions(ctx, username)
	if err != nil {
		log.Printf("Failed to list permissions for %s: %v", username, err)
		return errorResponse(c, err, "Failed to list permissions")
	}

	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"permissions": names,
		},
	})
}

type grantRequest struct {
	Username   string `json:"username"`
	ObjectType string `json:"objectType"`
	Permission string `json:"permission"`
	ObjectURL  string `json:"objectUrl"`
	Comment    string `json:"comment"`
	StartDate  int64  `json:"startDate"`
	EndDate    int64  `json:"endDate"`
}

func (h *AccessHandler) Grant(c fiber.Ctx) error {
	var req grantRequest
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	granted, err := h.accessService.Grant(ctx, service.GrantInput{
		Username:   req.Username,
		ObjectType: req.ObjectType,
		Permission: req.Permission,
		ObjectURL:  req.ObjectURL,
		Comment:    req.Comment,
		StartDate:  req.StartDate,
		EndDate:    req.EndDate,
		GrantedBy:  middleware.UserID(c),
	})
	if err != nil {
		grantOperations.WithLabelValues("grant", "failure").Inc()
		log.Printf("Failed to grant %s to %s on %s: %v", req.Permission, req.Username, req.ObjectURL, err)
		return errorResponse(c, err, "Failed to grant permission")
	}

	grantOperations.WithLabelValues("grant", "success").Inc()

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Permission granted successfully",
		"data": fiber.Map{
			"grant": granted,
		},
	})
}

func (h *AccessHandler) Revoke(c fiber.Ctx) error {
	id, err := bson.ObjectIDFromHex(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid grant ID",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := h.accessService.Revoke(ctx, id, middleware.UserID(c)); err != nil {
		grantOperations.WithLabelValues("revoke", "failure").Inc()
		log.Printf("Failed to revoke grant %s: %v", id.Hex(), err)
		return errorResponse(c, err, "Failed to revoke permission")
	}

	grantOperations.WithLabelValues("revoke", "success").Inc()

	return c.JSON(fiber.Map{
		"message": "Permission revoked successfully",
	})
}

func (h *AccessHandler) ListGrants(c fiber.Ctx) error {
	objectURL := c.Query("objectUrl")
	if objectURL == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "objectUrl query parameter is required",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	grants, err := h.accessService.ListGrantsForObject(ctx, objectURL)
	if err != nil {
		log.Printf("Failed to list grants for %s: %v", objectURL, err)
		return errorResponse(c, err, "Failed to list grants")
	}

	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"grants": grants,
		},
	})
}
