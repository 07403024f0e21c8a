package handlers

import (
	"io"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/fleetlens/backend/internal/ingestion"
	"github.com/fleetlens/backend/internal/query"
	"github.com/fleetlens/backend/pkg/logger"
)

type DatasetHandler struct {
	processor *ingestion.Processor
	engine    *query.Engine
}

func NewDatasetHandler(processor *ingestion.Processor, engine *query.Engine) *DatasetHandler {
	return &DatasetHandler{
		processor: processor,
		engine:    engine,
	}
}

func (h *DatasetHandler) ListDatasets(c *fiber.Ctx) error {
	files, err := h.processor.ListDatasets()
	if err != nil {
		logger.Error("Failed to list datasets", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list datasets",
		})
	}
	return c.JSON(fiber.Map{"datasets": files})
}

func (h *DatasetHandler) SelectDataset(c *fiber.Ctx) error {
	var req struct {
		Name string `json:"name"`
	}
	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return badRequest(c, "Invalid request body")
	}

	ds, err := h.processor.SelectDataset(c.UserContext(), req.Name)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(ds)
}

// UploadDataset accepts a multipart "file" and an optional "save" field
// ("yes" keeps a copy in the data folder).
func (h *DatasetHandler) UploadDataset(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return badRequest(c, "A file is required")
	}

	f, err := fh.Open()
	if err != nil {
		logger.Error("Failed to open uploaded file", zap.Error(err))
		return badRequest(c, "Could not read the uploaded file")
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		logger.Error("Failed to read uploaded file", zap.Error(err))
		return badRequest(c, "Could not read the uploaded file")
	}

	save := strings.EqualFold(c.FormValue("save"), "yes")
	ds, err := h.processor.UploadDataset(c.UserContext(), fh.Filename, data, save)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(ds)
}

func (h *DatasetHandler) GetColumns(c *fiber.Ctx) error {
	groups, err := h.engine.Columns(c.UserContext(), c.Params("key"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(groups)
}

func (h *DatasetHandler) GetDomain(c *fiber.Ctx) error {
	var req query.DomainRequest
	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return badRequest(c, "Invalid request body")
	}

	options, err := h.engine.Domain(c.UserContext(), c.Params("key"), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"options": options})
}

func (h *DatasetHandler) GetProductionDates(c *fiber.Ctx) error {
	dates, err := h.engine.ProductionDates(c.UserContext(), c.Params("key"),
		c.Query("chassis_column"), c.Query("chassis"),
		c.Query("part_column"), c.Query("part"),
		c.Query("date_column"),
	)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"dates": dates})
}
