package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/fleetlens/backend/internal/cache/disk"
	"github.com/fleetlens/backend/internal/storage/models"
	"github.com/fleetlens/backend/pkg/logger"
)

type CacheRegistry interface {
	ListCacheEntries() ([]models.CacheEntry, error)
}

type CacheStore interface {
	List(ctx context.Context) ([]disk.EntryInfo, error)
	Remove(ctx context.Context, key string) (bool, error)
}

type CacheHandler struct {
	store    CacheStore
	registry CacheRegistry
}

type cacheFile struct {
	Key     string    `json:"key"`
	Kind    string    `json:"kind"`
	Source  string    `json:"source"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

func NewCacheHandler(store CacheStore, registry CacheRegistry) *CacheHandler {
	return &CacheHandler{
		store:    store,
		registry: registry,
	}
}

// ListCache reports the entry files on disk and, when a registry is
// configured, their recorded usage.
func (h *CacheHandler) ListCache(c *fiber.Ctx) error {
	infos, err := h.store.List(c.UserContext())
	if err != nil {
		logger.Error("Failed to list cache", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list cache",
		})
	}

	files := make([]cacheFile, len(infos))
	for i, info := range infos {
		files[i] = cacheFile{
			Key:     info.Key.String(),
			Kind:    string(info.Key.Kind),
			Source:  info.Key.Name,
			Size:    info.Size,
			ModTime: info.ModTime,
		}
	}

	resp := fiber.Map{"files": files}
	if h.registry != nil {
		entries, err := h.registry.ListCacheEntries()
		if err != nil {
			logger.Warn("Failed to read cache registry", zap.Error(err))
		} else {
			resp["entries"] = entries
		}
	}
	return c.JSON(resp)
}

func (h *CacheHandler) EvictCache(c *fiber.Ctx) error {
	key := c.Params("key")
	removed, err := h.store.Remove(c.UserContext(), key)
	if err != nil {
		return respondError(c, err)
	}
	if !removed {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Dataset is not cached"})
	}

	logger.Info("Cache entry evicted", zap.String("key", key))
	return c.JSON(fiber.Map{"evicted": key})
}
