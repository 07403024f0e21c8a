package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/fleetlens/backend/internal/cache/disk"
	"github.com/fleetlens/backend/internal/evaluation"
	"github.com/fleetlens/backend/internal/storage/models"
	"github.com/fleetlens/backend/pkg/logger"
)

type PredictionHistory interface {
	GetPredictionHistory(limit int) ([]models.PredictionRecord, error)
}

type DatasetLookup interface {
	Get(ctx context.Context, key string) (*disk.Entry, error)
}

type PredictionHandler struct {
	evaluator *evaluation.Evaluator
	datasets  DatasetLookup
	history   PredictionHistory
}

func NewPredictionHandler(evaluator *evaluation.Evaluator, datasets DatasetLookup, history PredictionHistory) *PredictionHandler {
	return &PredictionHandler{
		evaluator: evaluator,
		datasets:  datasets,
		history:   history,
	}
}

func (h *PredictionHandler) Predict(c *fiber.Ctx) error {
	var req struct {
		DatasetKey string `json:"dataset_key"`
		evaluation.Request
	}
	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return badRequest(c, "Invalid request body")
	}
	if req.DatasetKey == "" {
		return badRequest(c, "dataset_key is required")
	}

	entry, err := h.datasets.Get(c.UserContext(), req.DatasetKey)
	if err != nil {
		return respondError(c, err)
	}

	prediction, err := h.evaluator.Predict(c.UserContext(), req.DatasetKey, entry.Table, req.Request)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok", "prediction": prediction})
}

func (h *PredictionHandler) GetPredictionHistory(c *fiber.Ctx) error {
	return h.withHistory(c, func(records []models.PredictionRecord) error {
		return c.JSON(fiber.Map{"history": records})
	})
}

// GetRiskReport summarizes the risk classes of recent predictions.
func (h *PredictionHandler) GetRiskReport(c *fiber.Ctx) error {
	return h.withHistory(c, func(records []models.PredictionRecord) error {
		return c.JSON(evaluation.SummarizeHistory(records))
	})
}

func (h *PredictionHandler) withHistory(c *fiber.Ctx, render func([]models.PredictionRecord) error) error {
	limit := c.QueryInt("limit", defaultHistoryLimit)
	if limit <= 0 || limit > 500 {
		return badRequest(c, "limit must be between 1 and 500")
	}

	records, err := h.history.GetPredictionHistory(limit)
	if err != nil {
		logger.Error("Failed to get prediction history", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get prediction history",
		})
	}
	if records == nil {
		records = []models.PredictionRecord{}
	}
	return render(records)
}
