package middleware

import (
	"log"
	"strings"

	"github.com/gofiber/fiber/v3"
)

const (
	// Access administration permissions
	ReadAccessPermission   = "read:access"
	ManageAccessPermission = "manage:access"

	// Role and profile administration permissions
	ReadRolePermission      = "read:role"
	ManageRolePermission    = "manage:role"
	ReadProfilePermission   = "read:profile"
	ManageProfilePermission = "manage:profile"

	AdminPermission = "admin"
)

// PermissionRequired checks the permissions the gateway forwarded in
// the X-User-Permissions header. Admin-prefixed permissions pass
// everything.
func PermissionRequired(requiredPermission string) fiber.Handler {
	return func(c fiber.Ctx) error {
		userPermissions := c.Get("X-User-Permissions")
		hasPermission := false
		if userPermissions != "" {
			perms := strings.Split(userPermissions, ",")

			for _, perm := range perms {
				if perm == requiredPermission || strings.HasPrefix(perm, AdminPermission) {
					hasPermission = true
					break
				}
			}
		}

		if !hasPermission {
			log.Printf("Permission %s denied for %s %s from %s", requiredPermission, c.Method(), c.OriginalURL(), c.IP())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
			})
		}
		return c.Next()
	}
}

// RequireAnyPermission passes when any of the listed permissions is
// present.
func RequireAnyPermission(requiredPermissions ...string) fiber.Handler {
	return func(c fiber.Ctx) error {
		userPermissions := c.Get("X-User-Permissions")
		hasPermission := false
		if userPermissions != "" {
			perms := strings.Split(userPermissions, ",")

			for _, perm := range perms {
				if strings.HasPrefix(perm, AdminPermission) {
					hasPermission = true
					break
				}
				for _, required := range requiredPermissions {
					if perm == required {
						hasPermission = true
						break
					}
				}
				if hasPermission {
					break
				}
			}
		}

		if !hasPermission {
			log.Printf("Permission check denied for %s %s from %s", c.Method(), c.OriginalURL(), c.IP())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
			})
		}
		return c.Next()
	}
}

// UserID returns the authenticated user forwarded by the gateway.
func UserID(c fiber.Ctx) string {
	return c.Get("X-User-ID")
}
