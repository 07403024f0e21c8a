package evaluation

import (
	"math"
	"strings"
	"time"

	"github.com/fleetlens/backend/internal/apperr"
	"github.com/fleetlens/backend/internal/domainset"
	"github.com/fleetlens/backend/internal/normalizer"
	"github.com/fleetlens/backend/internal/table"
)

type RiskClass string

const (
	RiskHigh RiskClass = "High Risk"
	RiskSoon RiskClass = "Failure Expected Soon"
	RiskLow  RiskClass = "Low Risk"
)

const soonWindowDays = 30

// Request identifies one part instance: the columns to search and the values
// to match. ProductionDate is compared by calendar day.
type Request struct {
	ChassisColumn  string `json:"chassis_column"`
	Chassis        string `json:"chassis"`
	PartColumn     string `json:"part_column"`
	Part           string `json:"part"`
	DateColumn     string `json:"date_column"`
	ProductionDate string `json:"production_date"`
}

type Prediction struct {
	Part            string    `json:"part"`
	Chassis         string    `json:"chassis"`
	ProductionDate  string    `json:"production_date"`
	AverageLifespan float64   `json:"average_lifespan_days"`
	DaysInService   int       `json:"days_in_service"`
	RemainingDays   int       `json:"remaining_days"`
	Risk            RiskClass `json:"risk"`
}

func Classify(remaining int) RiskClass {
	switch {
	case remaining < 0:
		return RiskHigh
	case remaining <= soonWindowDays:
		return RiskSoon
	default:
		return RiskLow
	}
}

// Evaluate predicts the remaining useful life of the part instance described
// by req, measured at now.
func Evaluate(t *table.Table, req Request, model Model, now time.Time) (*Prediction, error) {
	if req.ChassisColumn == "" || req.Chassis == "" || req.PartColumn == "" ||
		req.Part == "" || req.DateColumn == "" || req.ProductionDate == "" {
		return nil, apperr.BadQuery("missing one or more selections")
	}

	produced, ok := normalizer.ParseDate(req.ProductionDate)
	if !ok {
		return nil, apperr.BadQuery("invalid production date %q", req.ProductionDate)
	}
	produced = calendarDay(produced)

	cols := make([]*table.Column, 3)
	for i, name := range []string{req.ChassisColumn, req.PartColumn, req.DateColumn} {
		col, err := t.Column(name)
		if err != nil {
			return nil, apperr.Computation(err)
		}
		cols[i] = col
	}

	found := false
	for row := 0; row < t.NumRows() && !found; row++ {
		chassis, part := cols[0].Values[row], cols[1].Values[row]
		if chassis.IsNull() || part.IsNull() || chassis.String() != req.Chassis || part.String() != req.Part {
			continue
		}
		ts, ok := domainset.AsDate(cols[2].Values[row])
		found = ok && calendarDay(ts).Equal(produced)
	}
	if !found {
		return nil, apperr.NotFound("could not find the specific part instance")
	}

	avg, ok := model[strings.TrimSpace(req.Part)]
	if !ok {
		return nil, apperr.NoHistoricalData(req.Part)
	}

	// Both ends are calendar days: today in the clock's location against the
	// production date.
	days := int(math.Round(calendarDay(now).Sub(produced).Hours() / 24))
	remaining := int(avg - float64(days))

	return &Prediction{
		Part:            req.Part,
		Chassis:         req.Chassis,
		ProductionDate:  produced.Format("2006-01-02"),
		AverageLifespan: avg,
		DaysInService:   days,
		RemainingDays:   remaining,
		Risk:            Classify(remaining),
	}, nil
}

func calendarDay(ts time.Time) time.Time {
	return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
}
