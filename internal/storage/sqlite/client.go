package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/fleetlens/backend/internal/storage/models"
	"github.com/fleetlens/backend/pkg/logger"
)

var ErrNotFound = errors.New("record not found")

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// sqlite serializes writers; one connection also keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) Ping() error {
	return c.db.Ping()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS cache_entries (
		key TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		source_name TEXT NOT NULL,
		path TEXT NOT NULL,
		row_count INTEGER NOT NULL,
		column_count INTEGER NOT NULL,
		size_bytes INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		last_accessed INTEGER NOT NULL,
		hits INTEGER DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_cache_kind ON cache_entries(kind);
	CREATE INDEX IF NOT EXISTS idx_cache_accessed ON cache_entries(last_accessed);

	CREATE TABLE IF NOT EXISTS chart_history (
		id TEXT PRIMARY KEY,
		dataset_key TEXT NOT NULL,
		chart_type TEXT NOT NULL,
		query TEXT NOT NULL,
		status TEXT NOT NULL,
		row_count INTEGER,
		cache_hit INTEGER DEFAULT 0,
		latency_ms INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chart_dataset ON chart_history(dataset_key);
	CREATE INDEX IF NOT EXISTS idx_chart_created ON chart_history(created_at);

	CREATE TABLE IF NOT EXISTS prediction_history (
		id TEXT PRIMARY KEY,
		dataset_key TEXT NOT NULL,
		chassis TEXT NOT NULL,
		part_id TEXT NOT NULL,
		production_date TEXT NOT NULL,
		days_since INTEGER,
		remaining_days INTEGER,
		risk_class TEXT,
		status TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_prediction_part ON prediction_history(part_id);
	CREATE INDEX IF NOT EXISTS idx_prediction_created ON prediction_history(created_at);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) UpsertCacheEntry(entry *models.CacheEntry) error {
	query := `
		INSERT INTO cache_entries (key, kind, source_name, path, row_count, column_count, size_bytes,
			created_at, last_accessed, hits)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			path = excluded.path,
			row_count = excluded.row_count,
			column_count = excluded.column_count,
			size_bytes = excluded.size_bytes,
			last_accessed = excluded.last_accessed
	`

	_, err := c.db.Exec(
		query,
		entry.Key,
		entry.Kind,
		entry.SourceName,
		entry.Path,
		entry.Rows,
		entry.Columns,
		entry.SizeBytes,
		entry.CreatedAt.Unix(),
		entry.LastAccessed.Unix(),
		entry.Hits,
	)

	if err != nil {
		return fmt.Errorf("failed to upsert cache entry: %w", err)
	}

	logger.Debug("Cache entry registered", zap.String("key", entry.Key), zap.String("path", entry.Path))
	return nil
}

func (c *Client) TouchCacheEntry(key string, at time.Time) error {
	_, err := c.db.Exec(`UPDATE cache_entries SET hits = hits + 1, last_accessed = ? WHERE key = ?`, at.Unix(), key)
	if err != nil {
		return fmt.Errorf("failed to touch cache entry: %w", err)
	}
	return nil
}

func (c *Client) DeleteCacheEntry(key string) error {
	_, err := c.db.Exec(`DELETE FROM cache_entries WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

func (c *Client) GetCacheEntry(key string) (*models.CacheEntry, error) {
	query := `
		SELECT key, kind, source_name, path, row_count, column_count, size_bytes, created_at, last_accessed, hits
		FROM cache_entries WHERE key = ?
	`

	e, err := scanCacheEntry(c.db.QueryRow(query, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cache entry: %w", err)
	}
	return e, nil
}

func (c *Client) ListCacheEntries() ([]models.CacheEntry, error) {
	query := `
		SELECT key, kind, source_name, path, row_count, column_count, size_bytes, created_at, last_accessed, hits
		FROM cache_entries
		ORDER BY last_accessed DESC, key
	`

	rows, err := c.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list cache entries: %w", err)
	}
	defer rows.Close()

	var entries []models.CacheEntry
	for rows.Next() {
		e, err := scanCacheEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		entries = append(entries, *e)
	}

	return entries, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCacheEntry(row scanner) (*models.CacheEntry, error) {
	var e models.CacheEntry
	var createdAt, accessed int64

	err := row.Scan(
		&e.Key,
		&e.Kind,
		&e.SourceName,
		&e.Path,
		&e.Rows,
		&e.Columns,
		&e.SizeBytes,
		&createdAt,
		&accessed,
		&e.Hits,
	)
	if err != nil {
		return nil, err
	}

	e.CreatedAt = time.Unix(createdAt, 0)
	e.LastAccessed = time.Unix(accessed, 0)
	return &e, nil
}

func (c *Client) InsertChartRecord(record *models.ChartRecord) error {
	query := `
		INSERT INTO chart_history (id, dataset_key, chart_type, query, status, row_count, cache_hit, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	cacheHit := 0
	if record.CacheHit {
		cacheHit = 1
	}

	_, err := c.db.Exec(
		query,
		record.ID,
		record.DatasetKey,
		record.ChartType,
		record.Query,
		record.Status,
		record.RowCount,
		cacheHit,
		record.LatencyMS,
		record.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert chart record: %w", err)
	}

	logger.Info("Chart recorded",
		zap.String("chart_id", record.ID),
		zap.String("chart_type", record.ChartType),
		zap.String("status", record.Status),
	)

	return nil
}

func (c *Client) GetChartHistory(datasetKey string, limit int) ([]models.ChartRecord, error) {
	query := `
		SELECT id, dataset_key, chart_type, query, status, row_count, cache_hit, latency_ms, created_at
		FROM chart_history
		WHERE (? = '' OR dataset_key = ?)
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`

	rows, err := c.db.Query(query, datasetKey, datasetKey, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get chart history: %w", err)
	}
	defer rows.Close()

	var records []models.ChartRecord
	for rows.Next() {
		var r models.ChartRecord
		var cacheHit int
		var createdAt int64

		err := rows.Scan(&r.ID, &r.DatasetKey, &r.ChartType, &r.Query, &r.Status, &r.RowCount, &cacheHit, &r.LatencyMS, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		r.CacheHit = cacheHit == 1
		r.CreatedAt = time.Unix(createdAt, 0)
		records = append(records, r)
	}

	return records, rows.Err()
}

func (c *Client) InsertPredictionRecord(record *models.PredictionRecord) error {
	query := `
		INSERT INTO prediction_history (id, dataset_key, chassis, part_id, production_date, days_since,
			remaining_days, risk_class, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.Exec(
		query,
		record.ID,
		record.DatasetKey,
		record.Chassis,
		record.PartID,
		record.ProductionDate,
		record.DaysSince,
		record.RemainingDays,
		record.RiskClass,
		record.Status,
		record.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert prediction record: %w", err)
	}

	logger.Info("Prediction recorded",
		zap.String("prediction_id", record.ID),
		zap.String("part_id", record.PartID),
		zap.String("risk_class", record.RiskClass),
	)

	return nil
}

func (c *Client) GetPredictionHistory(limit int) ([]models.PredictionRecord, error) {
	query := `
		SELECT id, dataset_key, chassis, part_id, production_date, days_since, remaining_days, risk_class, status, created_at
		FROM prediction_history
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`

	rows, err := c.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get prediction history: %w", err)
	}
	defer rows.Close()

	var records []models.PredictionRecord
	for rows.Next() {
		var r models.PredictionRecord
		var createdAt int64

		err := rows.Scan(&r.ID, &r.DatasetKey, &r.Chassis, &r.PartID, &r.ProductionDate,
			&r.DaysSince, &r.RemainingDays, &r.RiskClass, &r.Status, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		r.CreatedAt = time.Unix(createdAt, 0)
		records = append(records, r)
	}

	return records, rows.Err()
}
