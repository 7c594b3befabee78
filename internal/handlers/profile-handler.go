package handlers

import (
	"context"
	"log"
	"time"

	"case-access-service/internal/middleware"
	"case-access-service/internal/service"

	"github.com/gofiber/fiber/v3"
	"go.mongodb.org/mongo-driver/v2/bson"
)

type ProfileHandler struct {
	profileService *service.ProfileService
}

func NewProfileHandler(profileService *service.ProfileService) *ProfileHandler {
	return &ProfileHandler{
		profileService: profileService,
	}
}

func (h *ProfileHandler) RegisterRoutes(app *fiber.App) {
	protectedGroup := app.Group("/protected/profiles")

	protectedGroup.Post("/", h.CreateProfile, middleware.PermissionRequired(middleware.ManageProfilePermission))
	protectedGroup.Get("/", h.ListProfiles, middleware.PermissionRequired(middleware.ReadProfilePermission))
	protectedGroup.Post("/generate", h.GenerateCaseTypePermissions, middleware.PermissionRequired(middleware.ManageProfilePermission))
	protectedGroup.Get("/:id", h.GetProfile, middleware.PermissionRequired(middleware.ReadProfilePermission))
	protectedGroup.Put("/:id", h.UpdateProfile, middleware.PermissionRequired(middleware.ManageProfilePermission))
	protectedGroup.Delete("/:id", h.DeleteProfile, middleware.PermissionRequired(middleware.ManageProfilePermission))
	protectedGroup.Post("/:id/assignments", h.AssignToUser, middleware.PermissionRequired(middleware.ManageProfilePermission))
	protectedGroup.Delete("/assignments/:id", h.RemoveAssignment, middleware.PermissionRequired(middleware.ManageProfilePermission))
	protectedGroup.Get("/assignments/:username", h.ListAssignments, middleware.PermissionRequired(middleware.ReadProfilePermission))
}

func (h *ProfileHandler) CreateProfile(c fiber.Ctx) error {
	var input service.ProfileInput
	if err := c.Bind().Body(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	profile, err := h.profileService.CreateProfile(ctx, input)
	if err != nil {
		log.Printf("Failed to create profile %s: %v", input.Name, err)
		return errorResponse(c, err, "Failed to create profile")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Profile created successfully",
		"data": fiber.Map{
			"profile": profile,
		},
	})
}

func (h *ProfileHandler) GetProfile(c fiber.Ctx) error {
	id, err := bson.ObjectIDFromHex(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid profile ID",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	detail, err := h.profileService.GetProfileDetail(ctx, id)
	if err != nil {
		return errorResponse(c, err, "Failed to get profile")
	}

	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"profile": detail.Profile,
			"groups":  detail.Groups,
		},
	})
}

func (h *ProfileHandler) ListProfiles(c fiber.Ctx) error {
	page, limit := pagination(c)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	profiles, err := h.profileService.ListProfiles(ctx, page, limit)
	if err != nil {
		log.Printf("Failed to list profiles: %v", err)
		return errorResponse(c, err, "Failed to list profiles")
	}

	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"profiles": profiles,
		},
	})
}

func (h *ProfileHandler) UpdateProfile(c fiber.Ctx) error {
	id, err := bson.ObjectIDFromHex(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid profile ID",
		})
	}

	var input service.ProfileInput
	if err := c.Bind().Body(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	profile, err := h.profileService.UpdateProfile(ctx, id, input)
	if err != nil {
		log.Printf("Failed to update profile %s: %v", id.Hex(), err)
		return errorResponse(c, err, "Failed to update profile")
	}

	return c.JSON(fiber.Map{
		"message": "Profile updated successfully",
		"data": fiber.Map{
			"profile": profile,
		},
	})
}

func (h *ProfileHandler) DeleteProfile(c fiber.Ctx) error {
	id, err := bson.ObjectIDFromHex(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid profile ID",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := h.profileService.DeleteProfile(ctx, id); err != nil {
		log.Printf("Failed to delete profile %s: %v", id.Hex(), err)
		return errorResponse(c, err, "Failed to delete profile")
	}

	return c.JSON(fiber.Map{
		"message": "Profile deleted successfully",
	})
}

type assignRequest struct {
	Username  string `json:"username"`
	StartDate int64  `json:"startDate"`
	EndDate   int64  `json:"endDate"`
}

func (h *ProfileHandler) AssignToUser(c fiber.Ctx) error {
	profileID, err := bson.ObjectIDFromHex(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid profile ID",
		})
	}

	var req assignRequest
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	assignment, err := h.profileService.AssignToUser(ctx, req.Username, profileID, req.StartDate, req.EndDate)
	if err != nil {
		log.Printf("Failed to assign profile %s to %s: %v", profileID.Hex(), req.Username, err)
		return errorResponse(c, err, "Failed to assign profile")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Profile assigned successfully",
		"data": fiber.Map{
			"assignment": assignment,
		},
	})
}

func (h *ProfileHandler) RemoveAssignment(c fiber.Ctx) error {
	id, err := bson.ObjectIDFromHex(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid assignment ID",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := h.profileService.RemoveAssignment(ctx, id); err != nil {
		log.Printf("Failed to remove assignment %s: %v", id.Hex(), err)
		return errorResponse(c, err, "Failed to remove assignment")
	}

	return c.JSON(fiber.Map{
		"message": "Assignment removed successfully",
	})
}

func (h *ProfileHandler) ListAssignments(c fiber.Ctx) error {
	username := c.Params("username")
	if username == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Username is required",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	assignments, err := h.profileService.ListAssignments(ctx, username)
	if err != nil {
		log.Printf("Failed to list assignments for %s: %v", username, err)
		return errorResponse(c, err, "Failed to list assignments")
	}

	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"assignments": assignments,
		},
	})
}

type generateRequest struct {
	Catalog string `json:"catalog"`
	RoleID  string `json:"roleId"`
}

// GenerateCaseTypePermissions bulk-creates one blueprint permission
// per case type in a catalog.
func (h *ProfileHandler) GenerateCaseTypePermissions(c fiber.Ctx) error {
	var req generateRequest
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	roleID, err := bson.ObjectIDFromHex(req.RoleID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid role ID",
		})
	}
	if req.Catalog == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "catalog is required",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	blueprints, created, err := h.profileService.GenerateCaseTypePermissions(ctx, req.Catalog, roleID)
	if err != nil {
		log.Printf("Failed to generate blueprint permissions for catalog %s: %v", req.Catalog, err)
		return errorResponse(c, err, "Failed to generate blueprint permissions")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Blueprint permissions generated successfully",
		"data": fiber.Map{
			"blueprints": blueprints,
			"created":    created,
		},
	})
}
