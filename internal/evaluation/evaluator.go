package evaluation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fleetlens/backend/internal/apperr"
	"github.com/fleetlens/backend/internal/metrics"
	"github.com/fleetlens/backend/internal/storage/models"
	"github.com/fleetlens/backend/internal/table"
	"github.com/fleetlens/backend/pkg/logger"
)

type HistoryStore interface {
	InsertPredictionRecord(record *models.PredictionRecord) error
}

type Evaluator struct {
	models  *ModelStore
	history HistoryStore
	now     func() time.Time
}

type RiskReport struct {
	Total              int     `json:"total"`
	HighRiskCount      int     `json:"high_risk_count"`
	SoonCount          int     `json:"soon_count"`
	LowRiskCount       int     `json:"low_risk_count"`
	UnresolvedCount    int     `json:"unresolved_count"`
	AvgRemainingDays   float64 `json:"avg_remaining_days"`
	HighRiskPercentage float64 `json:"high_risk_percentage"`
	SoonPercentage     float64 `json:"soon_percentage"`
	LowRiskPercentage  float64 `json:"low_risk_percentage"`
}

// NewEvaluator builds an evaluator; history may be nil.
func NewEvaluator(store *ModelStore, history HistoryStore) *Evaluator {
	return &Evaluator{
		models:  store,
		history: history,
		now:     time.Now,
	}
}

// WithClock replaces the clock used for days in service.
func (e *Evaluator) WithClock(now func() time.Time) *Evaluator {
	e.now = now
	return e
}

func (e *Evaluator) Predict(ctx context.Context, datasetKey string, t *table.Table, req Request) (*Prediction, error) {
	logger.Info("Evaluating part instance",
		zap.String("dataset", datasetKey),
		zap.String("chassis", req.Chassis),
		zap.String("part", req.Part),
	)

	model, err := e.models.Get()
	var prediction *Prediction
	if err == nil {
		prediction, err = Evaluate(t, req, model, e.now())
	}

	status := "ok"
	if err != nil {
		status = string(apperr.KindOf(err))
		if status == "" {
			status = "error"
		}
		metrics.PredictionTotal.WithLabelValues(status).Inc()
	} else {
		metrics.PredictionTotal.WithLabelValues(string(prediction.Risk)).Inc()
	}

	e.record(datasetKey, req, prediction, status)

	if err != nil {
		logger.Warn("Prediction not available", zap.String("part", req.Part), zap.Error(err))
		return nil, err
	}

	logger.Info("Part instance evaluated",
		zap.String("part", prediction.Part),
		zap.Int("remaining_days", prediction.RemainingDays),
		zap.String("risk", string(prediction.Risk)),
	)
	return prediction, nil
}

func (e *Evaluator) record(datasetKey string, req Request, p *Prediction, status string) {
	if e.history == nil {
		return
	}
	rec := &models.PredictionRecord{
		ID:             uuid.New().String(),
		DatasetKey:     datasetKey,
		Chassis:        req.Chassis,
		PartID:         req.Part,
		ProductionDate: req.ProductionDate,
		Status:         status,
		CreatedAt:      e.now(),
	}
	if p != nil {
		rec.ProductionDate = p.ProductionDate
		rec.DaysSince = p.DaysInService
		rec.RemainingDays = p.RemainingDays
		rec.RiskClass = string(p.Risk)
	}
	if err := e.history.InsertPredictionRecord(rec); err != nil {
		logger.Error("Failed to record prediction", zap.Error(err))
	}
}

// SummarizeHistory reports the risk distribution of recorded predictions.
// Records without a risk class count as unresolved and are left out of the
// percentages and the average.
func SummarizeHistory(records []models.PredictionRecord) *RiskReport {
	report := &RiskReport{Total: len(records)}

	var totalRemaining float64
	resolved := 0
	for _, r := range records {
		switch RiskClass(r.RiskClass) {
		case RiskHigh:
			report.HighRiskCount++
		case RiskSoon:
			report.SoonCount++
		case RiskLow:
			report.LowRiskCount++
		default:
			report.UnresolvedCount++
			continue
		}
		resolved++
		totalRemaining += float64(r.RemainingDays)
	}

	if resolved > 0 {
		report.AvgRemainingDays = totalRemaining / float64(resolved)
		report.HighRiskPercentage = float64(report.HighRiskCount) / float64(resolved) * 100
		report.SoonPercentage = float64(report.SoonCount) / float64(resolved) * 100
		report.LowRiskPercentage = float64(report.LowRiskCount) / float64(resolved) * 100
	}
	return report
}

func (r *RiskReport) String() string {
	return fmt.Sprintf(`
Prediction Report
=================

Total Predictions: %d (unresolved: %d)

Risk Classes:
- High Risk: %d (%.1f%%)
- Failure Expected Soon: %d (%.1f%%)
- Low Risk: %d (%.1f%%)

Average Remaining Life: %.1f days
`,
		r.Total, r.UnresolvedCount,
		r.HighRiskCount, r.HighRiskPercentage,
		r.SoonCount, r.SoonPercentage,
		r.LowRiskCount, r.LowRiskPercentage,
		r.AvgRemainingDays,
	)
}
