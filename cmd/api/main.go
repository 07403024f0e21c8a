package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fleetlens/backend/internal/api"
	"github.com/fleetlens/backend/internal/cache/disk"
	"github.com/fleetlens/backend/internal/cache/redis"
	"github.com/fleetlens/backend/internal/evaluation"
	"github.com/fleetlens/backend/internal/ingestion"
	"github.com/fleetlens/backend/internal/metrics"
	"github.com/fleetlens/backend/internal/middleware/ratelimit"
	"github.com/fleetlens/backend/internal/normalizer"
	"github.com/fleetlens/backend/internal/query"
	"github.com/fleetlens/backend/internal/scheduler"
	"github.com/fleetlens/backend/internal/storage/sqlite"
	"github.com/fleetlens/backend/pkg/config"
	appLogger "github.com/fleetlens/backend/pkg/logger"
)

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "api",
		Short:        "api - serve the fleetlens dataset and chart API",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(_ *cobra.Command, _ []string) error {
			return serve(configPath)
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func serve(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting fleetlens API server")
	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	err = sqliteClient.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	var resultCache *redis.Client
	if cfg.Redis.Enabled {
		resultCache, err = redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			appLogger.Warn("Redis unavailable, chart results will not be cached", zap.Error(err))
		} else {
			defer resultCache.Close()
		}
	}

	store, err := disk.NewStore(disk.Options{
		Dir:           cfg.Storage.CacheDir,
		Compression:   cfg.Cache.Compression,
		MemoryEntries: cfg.Cache.MemoryEntries,
		Normalizer:    normalizer.New(cfg.Normalizer.DateThreshold),
		Registry:      sqliteClient,
		OnEvict: func(key string) {
			if resultCache == nil {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if _, err := resultCache.InvalidateDataset(ctx, key); err != nil {
				appLogger.Warn("Failed to invalidate cached charts", zap.String("dataset", key), zap.Error(err))
			}
		},
	})
	if err != nil {
		appLogger.Fatal("Failed to create cache store", zap.Error(err))
	}

	processor := ingestion.NewProcessor(cfg.Storage.DataDir, store)
	engine := query.NewEngine(store, sqliteClient)
	if resultCache != nil {
		engine.WithResultCache(resultCache, time.Duration(cfg.Cache.ResultTTLSec)*time.Second)
	}
	evaluator := evaluation.NewEvaluator(evaluation.NewModelStore(cfg.Storage.ModelPath), sqliteClient)

	var sweeps *scheduler.Scheduler
	if cfg.Cache.UploadRetentionHours > 0 {
		sweeps = scheduler.New(store, time.Duration(cfg.Cache.UploadRetentionHours)*time.Hour)
		if err := sweeps.Start(cfg.Cache.SweepSchedule); err != nil {
			appLogger.Fatal("Failed to start retention scheduler", zap.Error(err))
		}
	}

	limiter := ratelimit.New(ratelimit.Config{
		RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		ExemptPrefixes:    api.ExemptFromRateLimit(),
	})
	defer limiter.Stop()

	app := api.NewApp(api.Deps{
		Config:     cfg,
		Store:      store,
		Processor:  processor,
		Engine:     engine,
		Evaluator:  evaluator,
		DB:         sqliteClient,
		Limiter:    limiter,
		RequestLog: true,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	if sweeps != nil {
		sweeps.Stop()
	}
	if err := app.Shutdown(); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	appLogger.Info("Server stopped")
	return nil
}
