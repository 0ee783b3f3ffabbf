package handlers

import (
	"errors"

	"breathesmart/services"
	"breathesmart/storage"

	"github.com/gofiber/fiber/v2"
)

// statusForError maps the service error taxonomy onto HTTP codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, storage.ErrInvalidStateTransition):
		return fiber.StatusConflict
	case errors.Is(err, services.ErrRewardInFlight):
		return fiber.StatusConflict
	case errors.Is(err, storage.ErrUnavailable):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}
