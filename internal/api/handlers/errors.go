package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/fleetlens/backend/internal/apperr"
	"github.com/fleetlens/backend/pkg/logger"
)

// respondError writes the HTTP form of an operation outcome. Empty results and
// parts without history are answers, not failures, and use 200 with a status.
func respondError(c *fiber.Ctx, err error) error {
	kind := apperr.KindOf(err)
	msg := apperr.UserMessage(err)

	switch kind {
	case apperr.KindBadQuery:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg, "kind": kind})
	case apperr.KindNotFound:
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": msg, "kind": kind})
	case apperr.KindLoad:
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": msg, "kind": kind})
	case apperr.KindEmptyResult:
		return c.JSON(fiber.Map{"status": "no_data", "message": msg})
	case apperr.KindNoHistoricalData:
		return c.JSON(fiber.Map{"status": "no_history", "message": msg})
	case apperr.KindModelUnavailable:
		logger.Error("Failure model unavailable", zap.Error(err))
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": msg, "kind": kind})
	default:
		logger.Error("Request failed", zap.String("path", c.Path()), zap.String("kind", string(kind)), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "An internal error occurred",
		})
	}
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}
