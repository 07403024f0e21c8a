// Package ingestion turns files from the data folder or uploaded bytes into
// cached, normalized datasets.
package ingestion

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fleetlens/backend/internal/apperr"
	"github.com/fleetlens/backend/internal/cache/disk"
	"github.com/fleetlens/backend/internal/cachekey"
	"github.com/fleetlens/backend/internal/loader"
	"github.com/fleetlens/backend/internal/table"
	"github.com/fleetlens/backend/pkg/logger"
)

type Processor struct {
	dataDir string
	store   *disk.Store
}

// DatasetFile is one readable file in the data folder.
type DatasetFile struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

type ColumnInfo struct {
	Name string           `json:"name"`
	Type table.ColumnType `json:"type"`
}

// Dataset describes a cached dataset to API clients.
type Dataset struct {
	Key     string       `json:"key"`
	Source  string       `json:"source"`
	Kind    string       `json:"kind"`
	Rows    int          `json:"rows"`
	Columns []ColumnInfo `json:"columns"`
	Cached  bool         `json:"cached"`
	Saved   bool         `json:"saved,omitempty"`
}

func NewProcessor(dataDir string, store *disk.Store) *Processor {
	return &Processor{dataDir: dataDir, store: store}
}

func (p *Processor) DataDir() string {
	return p.dataDir
}

// ListDatasets returns the supported files of the data folder sorted by name.
// A missing folder is an empty list.
func (p *Processor) ListDatasets() ([]DatasetFile, error) {
	entries, err := os.ReadDir(p.dataDir)
	if os.IsNotExist(err) {
		return []DatasetFile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read data folder: %w", err)
	}

	files := make([]DatasetFile, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !loader.Supported(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, DatasetFile{Name: e.Name(), Size: info.Size(), ModTime: info.ModTime()})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// SelectDataset caches a file of the data folder, reusing the existing entry
// when the file has not changed since it was built.
func (p *Processor) SelectDataset(ctx context.Context, name string) (*Dataset, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	path := filepath.Join(p.dataDir, name)
	src, err := cachekey.SelectedSource(path)
	if err != nil {
		return nil, apperr.NotFound("dataset %q does not exist", name)
	}

	logger.Info("Selecting dataset", zap.String("name", name))

	entry, err := p.store.GetOrBuild(ctx, src, func() (*table.Table, error) {
		return loader.LoadFile(path)
	})
	if err != nil {
		return nil, err
	}
	return Describe(entry, name), nil
}

// UploadDataset caches uploaded content. With save the file is also written to
// the data folder under its sanitized name so it can be selected later.
func (p *Processor) UploadDataset(ctx context.Context, name string, data []byte, save bool) (*Dataset, error) {
	if !loader.Supported(name) {
		return nil, apperr.BadQuery("unsupported file type %q", filepath.Ext(name))
	}
	if len(data) == 0 {
		return nil, apperr.BadQuery("uploaded file %q is empty", name)
	}

	logger.Info("Processing upload", zap.String("name", name), zap.Int("bytes", len(data)), zap.Bool("save", save))

	saved := false
	if save {
		if err := p.save(name, data); err != nil {
			logger.Error("Failed to save upload to data folder", zap.String("name", name), zap.Error(err))
		} else {
			saved = true
		}
	}

	entry, err := p.store.GetOrBuild(ctx, cachekey.UploadedSource(name, data), func() (*table.Table, error) {
		return loader.LoadBytes(name, data)
	})
	if err != nil {
		return nil, err
	}

	ds := Describe(entry, name)
	ds.Saved = saved
	return ds, nil
}

func (p *Processor) save(name string, data []byte) error {
	safe := cachekey.SecureFilename(name)
	if safe == "" {
		return cachekey.ErrEmptyName
	}
	if err := os.MkdirAll(p.dataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data folder: %w", err)
	}

	tmp, err := os.CreateTemp(p.dataDir, ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close upload: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(p.dataDir, safe)); err != nil {
		return fmt.Errorf("failed to save upload: %w", err)
	}

	logger.Info("Upload saved to data folder", zap.String("name", safe))
	return nil
}

// Dataset looks up a cached dataset by key.
func (p *Processor) Dataset(ctx context.Context, key string) (*disk.Entry, error) {
	return p.store.Get(ctx, key)
}

func Describe(entry *disk.Entry, source string) *Dataset {
	cols := entry.Table.Columns()
	info := make([]ColumnInfo, len(cols))
	for i, c := range cols {
		info[i] = ColumnInfo{Name: c.Name, Type: c.Type}
	}
	return &Dataset{
		Key:     entry.Key.String(),
		Source:  source,
		Kind:    string(entry.Key.Kind),
		Rows:    entry.Table.NumRows(),
		Columns: info,
		Cached:  entry.Hit,
	}
}

func validateName(name string) error {
	if name == "" {
		return apperr.BadQuery("no dataset selected")
	}
	if name != filepath.Base(name) || strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
		return apperr.BadQuery("invalid dataset name %q", name)
	}
	if !loader.Supported(name) {
		return apperr.BadQuery("unsupported file type %q", filepath.Ext(name))
	}
	return nil
}
