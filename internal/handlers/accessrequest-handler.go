package handlers

import (
	"context"
	"log"
	"strconv"
	"time"

	"case-access-service/internal/middleware"
	"case-access-service/internal/service"

	"github.com/gofiber/fiber/v3"
	"go.mongodb.org/mongo-driver/v2/bson"
)

type AccessRequestHandler struct {
	accessService *service.AccessService
}

func NewAccessRequestHandler(accessService *service.AccessService) *AccessRequestHandler {
	return &AccessRequestHandler{
		accessService: accessService,
	}
}

func (h *AccessRequestHandler) RegisterRoutes(app *fiber.App) {
	protectedGroup := app.Group("/protected/access-requests")

	protectedGroup.Post("/", h.CreateRequest)
	protectedGroup.Get("/mine", h.ListMine)
	protectedGroup.Get("/", h.ListForObject, middleware.PermissionRequired(middleware.ReadAccessPermission))
	protectedGroup.Patch("/:id", h.HandleRequest, middleware.PermissionRequired(middleware.ManageAccessPermission))
}

type createRequestBody struct {
	ObjectURL string `json:"objectUrl"`
	Comment   string `json:"comment"`
}

// CreateRequest opens an access request for the authenticated user.
func (h *AccessRequestHandler) CreateRequest(c fiber.Ctx) error {
	requester := middleware.UserID(c)
	if requester == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Unauthorized",
		})
	}

	var body createRequestBody
	if err := c.Bind().Body(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	request, err := h.accessService.CreateAccessRequest(ctx, requester, body.ObjectURL, body.Comment)
	if err != nil {
		log.Printf("Failed to create access request for %s on %s: %v", requester, body.ObjectURL, err)
		return errorResponse(c, err, "Failed to create access request")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Access request created successfully",
		"data": fiber.Map{
			"request": request,
		},
	})
}

func (h *AccessRequestHandler) ListMine(c fiber.Ctx) error {
	requester := middleware.UserID(c)
	if requester == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Unauthorized",
		})
	}

	page, limit := pagination(c)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	requests, err := h.accessService.ListRequestsForUser(ctx, requester, page, limit)
	if err != nil {
		log.Printf("Failed to list access requests for %s: %v", requester, err)
		return errorResponse(c, err, "Failed to list access requests")
	}

	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"requests": requests,
		},
	})
}

func (h *AccessRequestHandler) ListForObject(c fiber.Ctx) error {
	objectURL := c.Query("objectUrl")
	if objectURL == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "objectUrl query parameter is required",
		})
	}

	onlyPending := c.Query("pending") == "true"
	page, limit := pagination(c)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	requests, err := h.accessService.ListRequestsForObject(ctx, objectURL, onlyPending, page, limit)
	if err != nil {
		log.Printf("Failed to list access requests for %s: %v", objectURL, err)
		return errorResponse(c, err, "Failed to list access requests")
	}

	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"requests": requests,
		},
	})
}

type handleRequestBody struct {
	Result         string `json:"result"`
	HandlerComment string `json:"handlerComment"`
	EndDate        int64  `json:"endDate"`
}

// HandleRequest approves or rejects a pending access request.
func (h *AccessRequestHandler) HandleRequest(c fiber.Ctx) error {
	id, err := bson.ObjectIDFromHex(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request ID",
		})
	}

	var body handleRequestBody
	if err := c.Bind().Body(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	request, err := h.accessService.HandleAccessRequest(ctx, service.HandleInput{
		RequestID:      id,
		Handler:        middleware.UserID(c),
		Result:         body.Result,
		HandlerComment: body.HandlerComment,
		EndDate:        body.EndDate,
	})
	if err != nil {
		log.Printf("Failed to handle access request %s: %v", id.Hex(), err)
		return errorResponse(c, err, "Failed to handle access request")
	}

	return c.JSON(fiber.Map{
		"message": "Access request handled successfully",
		"data": fiber.Map{
			"request": request,
		},
	})
}

func pagination(c fiber.Ctx) (int, int) {
	page, err := strconv.Atoi(c.Query("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	limit, err := strconv.Atoi(c.Query("limit", "20"))
	if err != nil || limit < 1 || limit > 100 {
		limit = 20
	}
	return page, limit
}
