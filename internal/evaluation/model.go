package evaluation

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ohler55/ojg/oj"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/fleetlens/backend/internal/apperr"
	"github.com/fleetlens/backend/pkg/logger"
)

// Model maps a part identifier to its average time to failure in days.
type Model map[string]float64

// ParseModel decodes a model document. format is "json" or "yaml".
func ParseModel(data []byte, format string) (Model, error) {
	var raw any
	switch format {
	case "json":
		v, err := oj.Parse(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse model JSON: %w", err)
		}
		raw = v
	case "yaml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse model YAML: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported model format %q", format)
	}

	var obj map[string]any
	switch m := raw.(type) {
	case map[string]any:
		obj = m
	case map[any]any:
		// YAML part numbers written without quotes decode as non-string keys.
		obj = make(map[string]any, len(m))
		for k, v := range m {
			obj[fmt.Sprint(k)] = v
		}
	default:
		return nil, errors.New("model must be a mapping of part id to average days")
	}

	model := make(Model, len(obj))
	for part, v := range obj {
		days, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("model entry %q is not a number", part)
		}
		model[part] = days
	}
	return model, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func formatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "json"
	}
}

// LoadModel reads a model file, choosing the format by extension.
func LoadModel(path string) (Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model: %w", err)
	}
	return ParseModel(data, formatOf(path))
}

// ModelStore serves the model at a fixed path and reloads it when the file's
// modification time changes.
type ModelStore struct {
	path string

	mu      sync.Mutex
	model   Model
	modTime time.Time
}

func NewModelStore(path string) *ModelStore {
	return &ModelStore{path: path}
}

func (s *ModelStore) Path() string {
	return s.path
}

// Get returns the current model or a ModelUnavailable error.
func (s *ModelStore) Get() (Model, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		return nil, apperr.ModelUnavailable(fmt.Errorf("failed to stat model: %w", err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.model != nil && info.ModTime().Equal(s.modTime) {
		return s.model, nil
	}

	model, err := LoadModel(s.path)
	if err != nil {
		return nil, apperr.ModelUnavailable(err)
	}
	s.model, s.modTime = model, info.ModTime()

	logger.Info("Failure model loaded", zap.String("path", s.path), zap.Int("parts", len(model)))
	return model, nil
}
