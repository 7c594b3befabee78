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

type RoleHandler struct {
	roleService *service.RoleService
}

func NewRoleHandler(roleService *service.RoleService) *RoleHandler {
	return &RoleHandler{
		roleService: roleService,
	}
}

func (h *RoleHandler) RegisterRoutes(app *fiber.App) {
	protectedGroup := app.Group("/protected/roles")

	protectedGroup.Post("/", h.CreateRole, middleware.PermissionRequired(middleware.ManageRolePermission))
	protectedGroup.Get("/", h.ListRoles, middleware.PermissionRequired(middleware.ReadRolePermission))
	protectedGroup.Get("/permission-kinds", h.ListPermissionKinds, middleware.PermissionRequired(middleware.ReadRolePermission))
	protectedGroup.Get("/:id", h.GetRole, middleware.PermissionRequired(middleware.ReadRolePermission))
	protectedGroup.Put("/:id", h.UpdateRole, middleware.PermissionRequired(middleware.ManageRolePermission))
	protectedGroup.Delete("/:id", h.DeleteRole, middleware.PermissionRequired(middleware.ManageRolePermission))
}

type roleRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"`
}

func (h *RoleHandler) CreateRole(c fiber.Ctx) error {
	var req roleRequest
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	role, err := h.roleService.CreateRole(ctx, req.Name, req.Description, req.Permissions)
	if err != nil {
		log.Printf("Failed to create role %s: %v", req.Name, err)
		return errorResponse(c, err, "Failed to create role")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Role created successfully",
		"data": fiber.Map{
			"role": role,
		},
	})
}

func (h *RoleHandler) GetRole(c fiber.Ctx) error {
	id, err := bson.ObjectIDFromHex(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid role ID",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	role, err := h.roleService.GetRole(ctx, id)
	if err != nil {
		return errorResponse(c, err, "Failed to get role")
	}

	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"role": role,
		},
	})
}

func (h *RoleHandler) ListRoles(c fiber.Ctx) error {
	page, limit := pagination(c)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	roles, err := h.roleService.ListRoles(ctx, page, limit)
	if err != nil {
		log.Printf("Failed to list roles: %v", err)
		return errorResponse(c, err, "Failed to list roles")
	}

	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"roles": roles,
		},
	})
}

func (h *RoleHandler) ListPermissionKinds(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"kinds": h.roleService.ListPermissionKinds(),
		},
	})
}

func (h *RoleHandler) UpdateRole(c fiber.Ctx) error {
	id, err := bson.ObjectIDFromHex(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid role ID",
		})
	}

	var req roleRequest
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	role, err := h.roleService.UpdateRole(ctx, id, req.Name, req.Description, req.Permissions)
	if err != nil {
		log.Printf("Failed to update role %s: %v", id.Hex(), err)
		return errorResponse(c, err, "Failed to update role")
	}

	return c.JSON(fiber.Map{
		"message": "Role updated successfully",
		"data": fiber.Map{
			"role": role,
		},
	})
}

func (h *RoleHandler) DeleteRole(c fiber.Ctx) error {
	id, err := bson.ObjectIDFromHex(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid role ID",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := h.roleService.DeleteRole(ctx, id); err != nil {
		log.Printf("Failed to delete role %s: %v", id.Hex(), err)
		return errorResponse(c, err, "Failed to delete role")
	}

	return c.JSON(fiber.Map{
		"message": "Role deleted successfully",
	})
}
