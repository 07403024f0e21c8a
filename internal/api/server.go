// Package api assembles the HTTP application: middleware, handlers and routes.
package api

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/fleetlens/backend/internal/api/handlers"
	"github.com/fleetlens/backend/internal/cache/disk"
	"github.com/fleetlens/backend/internal/evaluation"
	"github.com/fleetlens/backend/internal/ingestion"
	"github.com/fleetlens/backend/internal/metrics"
	"github.com/fleetlens/backend/internal/middleware/ratelimit"
	"github.com/fleetlens/backend/internal/middleware/security"
	"github.com/fleetlens/backend/internal/middleware/validation"
	"github.com/fleetlens/backend/internal/query"
	"github.com/fleetlens/backend/internal/storage/sqlite"
	"github.com/fleetlens/backend/pkg/config"
)

const prefix = "/api/v1"

type Deps struct {
	Config    *config.Config
	Store     *disk.Store
	Processor *ingestion.Processor
	Engine    *query.Engine
	Evaluator *evaluation.Evaluator
	DB        *sqlite.Client
	// Limiter is optional; nil disables rate limiting.
	Limiter *ratelimit.RateLimiter
	// RequestLog enables fiber's access log.
	RequestLog bool
}

func NewApp(d Deps) *fiber.App {
	cfg := d.Config

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	if d.RequestLog {
		app.Use(fiberlogger.New())
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.Server.AllowedOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		IsDevelopment:  cfg.Server.Development,
	}))
	if d.Limiter != nil {
		app.Use(d.Limiter.Middleware())
	}
	app.Use(validation.Middleware(validation.Config{
		MaxUploadBytes: int64(cfg.Server.BodyLimit),
	}))

	app.Get("/metrics", metrics.MetricsHandler())

	datasetHandler := handlers.NewDatasetHandler(d.Processor, d.Engine)
	chartHandler := handlers.NewChartHandler(d.Engine, d.DB)
	predictionHandler := handlers.NewPredictionHandler(d.Evaluator, d.Store, d.DB)
	cacheHandler := handlers.NewCacheHandler(d.Store, d.DB)
	wsHandler := handlers.NewWebSocketHandler(d.Engine)

	api := app.Group(prefix)
	datasetKey := validation.DatasetKey("key")

	api.Get("/datasets", datasetHandler.ListDatasets)
	api.Post("/datasets/select", datasetHandler.SelectDataset)
	api.Post("/datasets/upload", datasetHandler.UploadDataset)
	api.Get("/datasets/:key/columns", datasetKey, datasetHandler.GetColumns)
	api.Post("/datasets/:key/domain", datasetKey, datasetHandler.GetDomain)
	api.Get("/datasets/:key/production-dates", datasetKey, datasetHandler.GetProductionDates)

	api.Post("/charts", chartHandler.CreateChart)
	api.Get("/charts/history", chartHandler.GetChartHistory)

	api.Post("/predictions", predictionHandler.Predict)
	api.Get("/predictions/history", predictionHandler.GetPredictionHistory)
	api.Get("/predictions/report", predictionHandler.GetRiskReport)

	api.Get("/cache", cacheHandler.ListCache)
	api.Delete("/cache/:key", datasetKey, cacheHandler.EvictCache)

	api.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	api.Get("/ws/charts", websocket.New(wsHandler.HandleConnection))

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	api.Get("/ready", func(c *fiber.Ctx) error {
		if err := d.DB.Ping(); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "unavailable",
				"error":  "registry unreachable",
			})
		}
		return c.JSON(fiber.Map{
			"status": "ready",
		})
	})

	return app
}

// ExemptFromRateLimit lists path prefixes health checks and scrapers use.
func ExemptFromRateLimit() []string {
	return []string{prefix + "/health", prefix + "/ready", "/metrics"}
}
