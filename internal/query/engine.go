// Package query serves chart and selection requests against cached datasets.
package query

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fleetlens/backend/internal/aggregate"
	"github.com/fleetlens/backend/internal/apperr"
	"github.com/fleetlens/backend/internal/cache/disk"
	"github.com/fleetlens/backend/internal/metrics"
	"github.com/fleetlens/backend/internal/storage/models"
	"github.com/fleetlens/backend/pkg/logger"
	"github.com/fleetlens/backend/pkg/utils"
)

// Datasets resolves a dataset key to its cached table.
type Datasets interface {
	Get(ctx context.Context, key string) (*disk.Entry, error)
}

// ResultCache stores finished chart results keyed by dataset and query fingerprint.
type ResultCache interface {
	GetChart(ctx context.Context, datasetKey, fingerprint string, out any) (bool, error)
	SetChart(ctx context.Context, datasetKey, fingerprint string, result any, ttl time.Duration) error
}

type History interface {
	InsertChartRecord(record *models.ChartRecord) error
}

type Engine struct {
	datasets Datasets
	history  History
	results  ResultCache
	ttl      time.Duration
}

type ChartRequest struct {
	DatasetKey string               `json:"dataset_key"`
	Query      aggregate.Descriptor `json:"query"`
}

type ChartResponse struct {
	ID         string            `json:"id"`
	DatasetKey string            `json:"dataset_key"`
	Result     *aggregate.Result `json:"result"`
	CacheHit   bool              `json:"cache_hit"`
	LatencyMS  int               `json:"latency_ms"`
}

// Stage names reported to progress callbacks.
const (
	StageLoading     = "loading"
	StageAggregating = "aggregating"
	StageDone        = "done"
)

func NewEngine(datasets Datasets, history History) *Engine {
	return &Engine{datasets: datasets, history: history}
}

// WithResultCache enables caching of chart results for ttl.
func (e *Engine) WithResultCache(cache ResultCache, ttl time.Duration) *Engine {
	e.results = cache
	e.ttl = ttl
	return e
}

func (e *Engine) Chart(ctx context.Context, req ChartRequest) (*ChartResponse, error) {
	return e.ChartWithProgress(ctx, req, nil)
}

// ChartWithProgress is Chart with a callback invoked as the request moves
// through its stages. progress may be nil.
func (e *Engine) ChartWithProgress(ctx context.Context, req ChartRequest, progress func(stage string)) (*ChartResponse, error) {
	start := time.Now()
	id := uuid.New().String()
	chartType := req.Query.Type
	report := func(stage string) {
		if progress != nil {
			progress(stage)
		}
	}

	logger.Info("Processing chart request",
		zap.String("chart_id", id),
		zap.String("dataset", req.DatasetKey),
		zap.String("chart_type", chartType),
	)

	resp, err := e.chart(ctx, id, req, report)

	latency := time.Since(start)
	metrics.ChartDuration.WithLabelValues(chartType).Observe(latency.Seconds())

	status := "ok"
	rows := 0
	cacheHit := false
	if err != nil {
		status = outcome(err)
	} else {
		rows = len(resp.Result.Rows)
		cacheHit = resp.CacheHit
		resp.LatencyMS = int(latency.Milliseconds())
		metrics.ChartRows.Observe(float64(rows))
	}
	metrics.ChartTotal.WithLabelValues(chartType, status).Inc()

	e.record(id, req, status, rows, cacheHit, latency, start)

	if err != nil {
		logger.Warn("Chart request failed",
			zap.String("chart_id", id),
			zap.String("outcome", status),
			zap.Error(err),
		)
		return nil, err
	}

	report(StageDone)
	logger.Info("Chart request processed",
		zap.String("chart_id", id),
		zap.Int("rows", rows),
		zap.Bool("cache_hit", cacheHit),
		zap.Duration("latency", latency),
	)
	return resp, nil
}

func (e *Engine) chart(ctx context.Context, id string, req ChartRequest, report func(string)) (*ChartResponse, error) {
	if req.DatasetKey == "" {
		return nil, apperr.BadQuery("no dataset selected")
	}
	q, err := req.Query.Query()
	if err != nil {
		return nil, err
	}

	fingerprint := fingerprintOf(req.Query)
	if result, ok := e.cached(ctx, req.DatasetKey, fingerprint); ok {
		return &ChartResponse{ID: id, DatasetKey: req.DatasetKey, Result: result, CacheHit: true}, nil
	}

	report(StageLoading)
	entry, err := e.datasets.Get(ctx, req.DatasetKey)
	if err != nil {
		return nil, err
	}

	report(StageAggregating)
	result, err := aggregate.Aggregate(entry.Table, q)
	if err != nil {
		return nil, err
	}

	e.store(ctx, req.DatasetKey, fingerprint, result)
	return &ChartResponse{ID: id, DatasetKey: req.DatasetKey, Result: result}, nil
}

func (e *Engine) cached(ctx context.Context, datasetKey, fingerprint string) (*aggregate.Result, bool) {
	if e.results == nil {
		return nil, false
	}
	var result aggregate.Result
	ok, err := e.results.GetChart(ctx, datasetKey, fingerprint, &result)
	if err != nil {
		logger.Warn("Result cache unavailable", zap.Error(err))
		return nil, false
	}
	if !ok {
		metrics.CacheMisses.WithLabelValues("result").Inc()
		return nil, false
	}
	metrics.CacheHits.WithLabelValues("result").Inc()
	return &result, true
}

func (e *Engine) store(ctx context.Context, datasetKey, fingerprint string, result *aggregate.Result) {
	if e.results == nil {
		return
	}
	if err := e.results.SetChart(ctx, datasetKey, fingerprint, result, e.ttl); err != nil {
		logger.Warn("Failed to cache chart result", zap.Error(err))
	}
}

func (e *Engine) record(id string, req ChartRequest, status string, rows int, cacheHit bool, latency time.Duration, at time.Time) {
	if e.history == nil {
		return
	}
	queryJSON, _ := json.Marshal(req.Query)
	err := e.history.InsertChartRecord(&models.ChartRecord{
		ID:         id,
		DatasetKey: req.DatasetKey,
		ChartType:  req.Query.Type,
		Query:      string(queryJSON),
		Status:     status,
		RowCount:   rows,
		CacheHit:   cacheHit,
		LatencyMS:  int(latency.Milliseconds()),
		CreatedAt:  at,
	})
	if err != nil {
		logger.Error("Failed to record chart request", zap.Error(err))
	}
}

func fingerprintOf(d aggregate.Descriptor) string {
	data, _ := json.Marshal(d)
	return utils.Fingerprint(data)
}

func outcome(err error) string {
	if kind := apperr.KindOf(err); kind != "" {
		return string(kind)
	}
	return "error"
}
