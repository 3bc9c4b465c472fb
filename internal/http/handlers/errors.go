package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"docconvert/internal/domain"
)

// toHTTPError maps pipeline errors onto fiber errors. The message keeps the
// underlying cause.
func toHTTPError(err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe
	}
	return fiber.NewError(statusFor(err), err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, domain.ErrTooLarge):
		return fiber.StatusRequestEntityTooLarge
	case errors.Is(err, domain.ErrContentLoadTimeout):
		return fiber.StatusGatewayTimeout
	case errors.Is(err, domain.ErrSourceFetch):
		return fiber.StatusBadGateway
	case errors.Is(err, domain.ErrBusy), errors.Is(err, domain.ErrNotReady), errors.Is(err, domain.ErrEngineLost):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}
