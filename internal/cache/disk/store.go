// Package disk persists normalized tables on local disk, one file per cache
// key, and keeps recently decoded tables in memory.
package disk

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"github.com/fleetlens/backend/internal/apperr"
	"github.com/fleetlens/backend/internal/cachekey"
	"github.com/fleetlens/backend/internal/metrics"
	"github.com/fleetlens/backend/internal/normalizer"
	"github.com/fleetlens/backend/internal/storage/models"
	"github.com/fleetlens/backend/internal/table"
	"github.com/fleetlens/backend/pkg/logger"
)

const (
	extPlain = ".tbl"
	extXZ    = ".tbl.xz"

	CompressionNone = "none"
	CompressionXZ   = "xz"
)

// Registry mirrors cache entries into a queryable store.
type Registry interface {
	UpsertCacheEntry(entry *models.CacheEntry) error
	TouchCacheEntry(key string, at time.Time) error
	DeleteCacheEntry(key string) error
}

// RawLoader produces the un-normalized table for a source. It is only called
// on a cache miss.
type RawLoader func() (*table.Table, error)

type Options struct {
	Dir           string
	Compression   string
	MemoryEntries int
	Normalizer    *normalizer.Normalizer
	Registry      Registry
	// OnEvict is called with the key of every entry removed from disk.
	OnEvict func(key string)
}

type Entry struct {
	Key   cachekey.Key
	Path  string
	Table *table.Table
	Hit   bool
}

type EntryInfo struct {
	Key     cachekey.Key
	Path    string
	Size    int64
	ModTime time.Time
}

type Store struct {
	dir        string
	compress   bool
	normalizer *normalizer.Normalizer
	registry   Registry
	onEvict    func(string)
	memory     *memoryCache
}

func NewStore(opts Options) (*Store, error) {
	if opts.Dir == "" {
		return nil, errors.New("cache directory is required")
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	var compress bool
	switch opts.Compression {
	case "", CompressionNone:
	case CompressionXZ:
		compress = true
	default:
		return nil, fmt.Errorf("unknown cache compression %q", opts.Compression)
	}

	norm := opts.Normalizer
	if norm == nil {
		norm = normalizer.New(normalizer.DefaultDateThreshold)
	}

	logger.Info("Cache store initialized",
		zap.String("dir", opts.Dir),
		zap.Bool("compress", compress),
		zap.Int("memory_entries", opts.MemoryEntries),
	)

	return &Store{
		dir:        opts.Dir,
		compress:   compress,
		normalizer: norm,
		registry:   opts.Registry,
		onEvict:    opts.OnEvict,
		memory:     newMemoryCache(opts.MemoryEntries),
	}, nil
}

func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) ext() string {
	if s.compress {
		return extXZ
	}
	return extPlain
}

func (s *Store) path(key cachekey.Key) string {
	return filepath.Join(s.dir, key.FileName(s.ext()))
}

// GetOrBuild returns the normalized table for src, building and persisting it
// when no entry exists for its key. A rebuilt selected source replaces every
// older entry of the same file.
func (s *Store) GetOrBuild(ctx context.Context, src cachekey.Source, load RawLoader) (*Entry, error) {
	key, err := cachekey.Derive(src)
	if err != nil {
		return nil, apperr.Load(err, "cannot derive a cache key for %q", src.Name)
	}
	path := s.path(key)

	if _, err := os.Stat(path); err == nil {
		t, layer, err := s.read(key, path)
		if err == nil {
			metrics.CacheHits.WithLabelValues(layer).Inc()
			s.touch(key, path)
			logger.Debug("Cache hit", zap.String("key", key.String()))
			return &Entry{Key: key, Path: path, Table: t, Hit: true}, nil
		}
		logger.Warn("Cache entry unreadable, rebuilding", zap.String("key", key.String()), zap.Error(err))
	}

	metrics.CacheMisses.WithLabelValues("disk").Inc()
	start := time.Now()

	raw, err := load()
	if err != nil {
		metrics.DatasetsLoaded.WithLabelValues(string(key.Kind), "error").Inc()
		return nil, apperr.Load(err, "could not read %s", src.Name)
	}
	metrics.DatasetsLoaded.WithLabelValues(string(key.Kind), "ok").Inc()

	normalized, err := s.normalize(raw)
	if err != nil {
		return nil, apperr.Rebuild(err, "could not prepare %s", src.Name)
	}

	if err := ctx.Err(); err != nil {
		return nil, apperr.Rebuild(err, "cache rebuild of %s cancelled", src.Name)
	}

	size, err := s.publish(key, normalized)
	if err != nil {
		return nil, apperr.Rebuild(err, "could not store %s", src.Name)
	}

	s.memory.put(key.String(), normalized)
	metrics.CacheRebuildDuration.Observe(time.Since(start).Seconds())

	s.register(key, src.Name, path, normalized, size)

	if key.Kind == cachekey.Selected {
		s.sweepSiblings(key)
	}

	logger.Info("Cache entry built",
		zap.String("key", key.String()),
		zap.Int("rows", normalized.NumRows()),
		zap.Int("columns", normalized.NumColumns()),
		zap.Int64("bytes", size),
		zap.Duration("took", time.Since(start)),
	)

	return &Entry{Key: key, Path: path, Table: normalized}, nil
}

// Get returns a previously built entry by key string.
func (s *Store) Get(ctx context.Context, keyStr string) (*Entry, error) {
	key, ok := cachekey.Parse(keyStr)
	if !ok || key.String() != keyStr {
		return nil, apperr.NotFound("unknown dataset %q", keyStr)
	}
	path := s.path(key)
	if _, err := os.Stat(path); err != nil {
		s.memory.remove(keyStr)
		return nil, apperr.NotFound("dataset %q is not cached", keyStr)
	}

	t, layer, err := s.read(key, path)
	if err != nil {
		return nil, apperr.Load(err, "cached dataset %s is unreadable", keyStr)
	}
	metrics.CacheHits.WithLabelValues(layer).Inc()
	s.touch(key, path)
	return &Entry{Key: key, Path: path, Table: t, Hit: true}, nil
}

// Remove deletes every file stored under keyStr. It reports whether anything was removed.
func (s *Store) Remove(ctx context.Context, keyStr string) (bool, error) {
	key, ok := cachekey.Parse(keyStr)
	if !ok || key.String() != keyStr {
		return false, apperr.NotFound("unknown dataset %q", keyStr)
	}

	removed := false
	for _, ext := range []string{extPlain, extXZ} {
		p := filepath.Join(s.dir, key.FileName(ext))
		err := os.Remove(p)
		if err == nil {
			removed = true
			continue
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return removed, fmt.Errorf("failed to remove %s: %w", p, err)
		}
	}
	if removed {
		s.evicted(keyStr, "manual")
	}
	return removed, nil
}

// List reports every entry file in the cache directory, sorted by file name.
func (s *Store) List(ctx context.Context) ([]EntryInfo, error) {
	matches, err := doublestar.Glob(os.DirFS(s.dir), "*_*.{tbl,tbl.xz}")
	if err != nil {
		return nil, fmt.Errorf("failed to list cache directory: %w", err)
	}
	sort.Strings(matches)

	infos := make([]EntryInfo, 0, len(matches))
	for _, name := range matches {
		key, ok := cachekey.Parse(name)
		if !ok {
			continue
		}
		st, err := os.Stat(filepath.Join(s.dir, name))
		if err != nil {
			continue
		}
		infos = append(infos, EntryInfo{
			Key:     key,
			Path:    filepath.Join(s.dir, name),
			Size:    st.Size(),
			ModTime: st.ModTime(),
		})
	}
	return infos, nil
}

// SweepUploads removes uploaded entries last used before now-olderThan.
func (s *Store) SweepUploads(ctx context.Context, olderThan time.Duration, now time.Time) (int, error) {
	infos, err := s.List(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := now.Add(-olderThan)
	removed := 0
	for _, info := range infos {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if info.Key.Kind != cachekey.Uploaded || !info.ModTime.Before(cutoff) {
			continue
		}
		if err := os.Remove(info.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("Failed to remove expired upload", zap.String("path", info.Path), zap.Error(err))
			continue
		}
		s.evicted(info.Key.String(), "retention")
		removed++
	}

	logger.Info("Upload retention sweep finished",
		zap.Int("removed", removed),
		zap.Duration("older_than", olderThan),
	)
	return removed, nil
}

// read returns the decoded table and the layer that served it.
func (s *Store) read(key cachekey.Key, path string) (*table.Table, string, error) {
	if t, ok := s.memory.get(key.String()); ok {
		return t, "memory", nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open cache entry: %w", err)
	}
	defer f.Close()

	t, err := decodeTable(f, strings.HasSuffix(path, extXZ))
	if err != nil {
		return nil, "", err
	}
	s.memory.put(key.String(), t)
	return t, "disk", nil
}

func (s *Store) normalize(raw *table.Table) (t *table.Table, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("normalizer panic: %v", r)
		}
	}()
	return s.normalizer.Normalize(raw)
}

// publish writes t to a temp file in the cache directory and renames it into
// place, so readers only ever see complete entries.
func (s *Store) publish(key cachekey.Key, t *table.Table) (int64, error) {
	tmp, err := os.CreateTemp(s.dir, ".tmp-"+key.String()+"-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	if err := encodeTable(tmp, t, s.compress); err != nil {
		return 0, err
	}
	if err := tmp.Sync(); err != nil {
		return 0, fmt.Errorf("failed to sync cache entry: %w", err)
	}
	st, err := tmp.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to stat cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("failed to close cache entry: %w", err)
	}
	if err := os.Rename(tmpName, s.path(key)); err != nil {
		return 0, fmt.Errorf("failed to publish cache entry: %w", err)
	}
	committed = true
	return st.Size(), nil
}

// sweepSiblings removes entries of the same selected file stored under any
// other version or extension. The glob also matches longer names sharing the
// prefix, so each match is parsed and compared by exact name.
func (s *Store) sweepSiblings(key cachekey.Key) {
	current := key.FileName(s.ext())
	matches, err := doublestar.Glob(os.DirFS(s.dir), key.SiblingPattern()+".{tbl,tbl.xz}")
	if err != nil {
		logger.Warn("Stale entry sweep failed", zap.String("key", key.String()), zap.Error(err))
		return
	}

	for _, name := range matches {
		if name == current {
			continue
		}
		other, ok := cachekey.Parse(name)
		if !ok || other.Kind != key.Kind || other.Name != key.Name {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("Failed to remove stale entry", zap.String("file", name), zap.Error(err))
			continue
		}
		if other.Version != key.Version {
			s.evicted(other.String(), "stale")
		}
		logger.Info("Stale cache entry removed", zap.String("file", name), zap.String("replaced_by", key.String()))
	}
}

// touch refreshes upload entry mtimes so retention counts from last use.
func (s *Store) touch(key cachekey.Key, path string) {
	now := time.Now()
	if key.Kind == cachekey.Uploaded {
		if err := os.Chtimes(path, now, now); err != nil {
			logger.Debug("Failed to refresh entry time", zap.String("path", path), zap.Error(err))
		}
	}
	if s.registry != nil {
		if err := s.registry.TouchCacheEntry(key.String(), now); err != nil {
			logger.Warn("Registry touch failed", zap.String("key", key.String()), zap.Error(err))
		}
	}
}

func (s *Store) register(key cachekey.Key, sourceName, path string, t *table.Table, size int64) {
	if s.registry == nil {
		return
	}
	now := time.Now()
	err := s.registry.UpsertCacheEntry(&models.CacheEntry{
		Key:          key.String(),
		Kind:         string(key.Kind),
		SourceName:   sourceName,
		Path:         path,
		Rows:         t.NumRows(),
		Columns:      t.NumColumns(),
		SizeBytes:    size,
		CreatedAt:    now,
		LastAccessed: now,
	})
	if err != nil {
		logger.Warn("Registry update failed", zap.String("key", key.String()), zap.Error(err))
	}
}

func (s *Store) evicted(keyStr, reason string) {
	s.memory.remove(keyStr)
	metrics.CacheEvictions.WithLabelValues(reason).Inc()
	if s.registry != nil {
		if err := s.registry.DeleteCacheEntry(keyStr); err != nil {
			logger.Warn("Registry delete failed", zap.String("key", keyStr), zap.Error(err))
		}
	}
	if s.onEvict != nil {
		s.onEvict(keyStr)
	}
}
