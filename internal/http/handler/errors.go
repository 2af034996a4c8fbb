package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sifan077/PowerForm/internal/app/apperr"
	"go.uber.org/zap"
)

// writeError maps the domain error taxonomy onto HTTP statuses.
func writeError(c *fiber.Ctx, logger *zap.Logger, err error) error {
	var validation *apperr.ValidationError
	switch {
	case errors.As(err, &validation):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": validation.Error()})
	case errors.Is(err, apperr.ErrValidation):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request"})
	case errors.Is(err, apperr.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not found"})
	case errors.Is(err, apperr.ErrExpired):
		return c.Status(fiber.StatusGone).JSON(fiber.Map{"error": "link expired"})
	case errors.Is(err, apperr.ErrAlreadyConsumed):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "link already used"})
	case errors.Is(err, apperr.ErrTransientStore):
		logger.Warn("store unavailable", zap.String("path", c.Path()), zap.Error(err))
		c.Set(fiber.HeaderRetryAfter, "5")
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "service temporarily unavailable"})
	default:
		logger.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}
}
