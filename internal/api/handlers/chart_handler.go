package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/fleetlens/backend/internal/query"
	"github.com/fleetlens/backend/internal/storage/models"
	"github.com/fleetlens/backend/pkg/logger"
)

const defaultHistoryLimit = 50

type ChartHistory interface {
	GetChartHistory(datasetKey string, limit int) ([]models.ChartRecord, error)
}

type ChartHandler struct {
	engine  *query.Engine
	history ChartHistory
}

func NewChartHandler(engine *query.Engine, history ChartHistory) *ChartHandler {
	return &ChartHandler{
		engine:  engine,
		history: history,
	}
}

func (h *ChartHandler) CreateChart(c *fiber.Ctx) error {
	var req query.ChartRequest
	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return badRequest(c, "Invalid request body")
	}

	resp, err := h.engine.Chart(c.UserContext(), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(resp)
}

func (h *ChartHandler) GetChartHistory(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultHistoryLimit)
	if limit <= 0 || limit > 500 {
		return badRequest(c, "limit must be between 1 and 500")
	}

	records, err := h.history.GetChartHistory(c.Query("dataset_key"), limit)
	if err != nil {
		logger.Error("Failed to get chart history", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get chart history",
		})
	}
	if records == nil {
		records = []models.ChartRecord{}
	}
	return c.JSON(fiber.Map{"history": records})
}
