package metrics

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ChartDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fleetlens_chart_duration_seconds",
			Help:    "Chart aggregation duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"chart_type"},
	)

	ChartTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetlens_chart_total",
			Help: "Total number of chart requests by outcome",
		},
		[]string{"chart_type", "outcome"},
	)

	ChartRows = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fleetlens_chart_rows",
			Help:    "Number of rows in chart results",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 500, 1000},
		},
	)

	PredictionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetlens_prediction_total",
			Help: "Total predictions by risk class or outcome",
		},
		[]string{"result"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetlens_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetlens_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	CacheRebuildDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fleetlens_cache_rebuild_duration_seconds",
			Help:    "Time to load, normalize and persist a dataset",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
	)

	CacheEvictions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetlens_cache_evictions_total",
			Help: "Cache entries removed from disk",
		},
		[]string{"reason"},
	)

	DatasetsLoaded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetlens_datasets_loaded_total",
			Help: "Datasets read from source files",
		},
		[]string{"kind", "status"},
	)
)

var registerOnce sync.Once

func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(ChartDuration)
		prometheus.MustRegister(ChartTotal)
		prometheus.MustRegister(ChartRows)
		prometheus.MustRegister(PredictionTotal)
		prometheus.MustRegister(CacheHits)
		prometheus.MustRegister(CacheMisses)
		prometheus.MustRegister(CacheRebuildDuration)
		prometheus.MustRegister(CacheEvictions)
		prometheus.MustRegister(DatasetsLoaded)
	})
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
