package validation

import (
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/fleetlens/backend/internal/cachekey"
	"github.com/fleetlens/backend/internal/loader"
	"github.com/fleetlens/backend/pkg/logger"
)

type Config struct {
	// MaxUploadBytes caps the size of an uploaded dataset file.
	MaxUploadBytes int64
	// MaxFieldLength caps every string in a JSON request body.
	MaxFieldLength      int
	AllowedContentTypes []string
}

func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = 100 * 1024 * 1024
	}
	if cfg.MaxFieldLength == 0 {
		cfg.MaxFieldLength = 1024
	}
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{fiber.MIMEApplicationJSON, fiber.MIMEMultipartForm}
	}

	return func(c *fiber.Ctx) error {
		if c.Method() != fiber.MethodPost && c.Method() != fiber.MethodPut {
			return c.Next()
		}

		contentType := strings.ToLower(c.Get(fiber.HeaderContentType))
		if contentType != "" && !allowed(contentType, cfg.AllowedContentTypes) {
			return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
				"error": "Unsupported content type",
			})
		}

		if strings.HasSuffix(c.Path(), "/datasets/upload") {
			return checkUpload(c, cfg)
		}

		if strings.HasPrefix(contentType, fiber.MIMEApplicationJSON) && len(c.Body()) > 0 {
			var body any
			if err := json.Unmarshal(c.Body(), &body); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid JSON format",
				})
			}
			if field, ok := oversized(body, cfg.MaxFieldLength); ok {
				logger.Warn("Oversized request field",
					zap.String("ip", c.IP()),
					zap.String("path", c.Path()),
					zap.String("field", field),
				)
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Request field exceeds maximum length",
				})
			}
		}

		return c.Next()
	}
}

func checkUpload(c *fiber.Ctx, cfg Config) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "A file is required",
		})
	}
	if !loader.Supported(fh.Filename) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Only .csv, .xlsx and .xls files are supported",
		})
	}
	if fh.Size > cfg.MaxUploadBytes {
		logger.Warn("Upload too large",
			zap.String("ip", c.IP()),
			zap.String("file", filepath.Base(fh.Filename)),
			zap.Int64("bytes", fh.Size),
		)
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
			"error": "File exceeds maximum size",
		})
	}
	return c.Next()
}

// DatasetKey rejects route parameters that are not well-formed dataset keys
// before any handler touches the cache directory.
func DatasetKey(param string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.Params(param)
		if k, ok := cachekey.Parse(key); !ok || k.String() != key {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid dataset key",
			})
		}
		return c.Next()
	}
}

func allowed(contentType string, types []string) bool {
	for _, t := range types {
		if strings.HasPrefix(contentType, t) {
			return true
		}
	}
	return false
}

// oversized walks a decoded JSON value and returns the path of the first
// string longer than limit.
func oversized(v any, limit int) (string, bool) {
	switch x := v.(type) {
	case string:
		return "", len(x) > limit
	case map[string]any:
		for k, item := range x {
			if path, ok := oversized(item, limit); ok {
				return strings.TrimSuffix(k+"."+path, "."), true
			}
		}
	case []any:
		for _, item := range x {
			if path, ok := oversized(item, limit); ok {
				return path, true
			}
		}
	}
	return "", false
}
