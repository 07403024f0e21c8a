package models

import "time"

type CacheEntry struct {
	Key          string    `json:"key"`
	Kind         string    `json:"kind"`
	SourceName   string    `json:"source_name"`
	Path         string    `json:"path"`
	Rows         int       `json:"rows"`
	Columns      int       `json:"columns"`
	SizeBytes    int64     `json:"size_bytes"`
	CreatedAt    time.Time `json:"created_at"`
	LastAccessed time.Time `json:"last_accessed"`
	Hits         int       `json:"hits"`
}

type ChartRecord struct {
	ID         string    `json:"id"`
	DatasetKey string    `json:"dataset_key"`
	ChartType  string    `json:"chart_type"`
	Query      string    `json:"query"`
	Status     string    `json:"status"`
	RowCount   int       `json:"row_count"`
	CacheHit   bool      `json:"cache_hit"`
	LatencyMS  int       `json:"latency_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

type PredictionRecord struct {
	ID             string    `json:"id"`
	DatasetKey     string    `json:"dataset_key"`
	Chassis        string    `json:"chassis"`
	PartID         string    `json:"part_id"`
	ProductionDate string    `json:"production_date"`
	DaysSince      int       `json:"days_since"`
	RemainingDays  int       `json:"remaining_days"`
	RiskClass      string    `json:"risk_class,omitempty"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
}
