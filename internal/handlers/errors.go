package handlers

import (
	"errors"

	"case-access-service/internal/permissions"

	"github.com/gofiber/fiber/v3"
)

// statusForError maps service errors onto HTTP statuses so every
// handler reports conflicts and bad input the same way.
func statusForError(err error) int {
	var validationErr *permissions.PolicyValidationError

	switch {
	case errors.Is(err, permissions.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, permissions.ErrDuplicateGrant),
		errors.Is(err, permissions.ErrDuplicatePending),
		errors.Is(err, permissions.ErrAlreadyHandled):
		return fiber.StatusConflict
	case errors.Is(err, permissions.ErrHandlerRequired),
		errors.Is(err, permissions.ErrUnknownObjectType),
		errors.As(err, &validationErr):
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

func errorResponse(c fiber.Ctx, err error, fallback string) error {
	status := statusForError(err)
	message := fallback
	if status != fiber.StatusInternalServerError {
		message = err.Error()
	}
	return c.Status(status).JSON(fiber.Map{
		"error": message,
	})
}
