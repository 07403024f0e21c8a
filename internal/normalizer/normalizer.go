package normalizer

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fleetlens/backend/internal/table"
	"github.com/fleetlens/backend/pkg/logger"
)

const DefaultDateThreshold = 0.5

// Normalizer infers date columns and trims text.
//
// A textual column becomes a Date column when at least one value parses and
// parsed/rows exceeds the threshold. This is a heuristic: a column where only
// half the values are dates stays text even though some entries are dates.
type Normalizer struct {
	threshold float64
}

func New(threshold float64) *Normalizer {
	if threshold <= 0 || threshold >= 1 {
		threshold = DefaultDateThreshold
	}
	return &Normalizer{threshold: threshold}
}

// Normalize returns a new table; the input is not modified. Row order and
// column order are preserved.
func (n *Normalizer) Normalize(t *table.Table) (*table.Table, error) {
	columns := make([]*table.Column, 0, t.NumColumns())
	converted := 0

	for _, col := range t.Columns() {
		if !col.Type.Textual() {
			columns = append(columns, col)
			continue
		}

		if dates, ok := n.tryDates(col, t.NumRows()); ok {
			columns = append(columns, dates)
			converted++
			continue
		}
		columns = append(columns, trimmed(col))
	}

	out, err := table.New(columns...)
	if err != nil {
		return nil, fmt.Errorf("failed to assemble normalized table: %w", err)
	}

	logger.Debug("Table normalized",
		zap.Int("rows", out.NumRows()),
		zap.Int("columns", out.NumColumns()),
		zap.Int("date_columns", converted),
	)
	return out, nil
}

// tryDates attempts the whole-column date conversion. A panic while parsing
// counts as a failed attempt for this column only.
func (n *Normalizer) tryDates(col *table.Column, rows int) (out *table.Column, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("Date inference failed", zap.String("column", col.Name), zap.Any("panic", r))
			out, ok = nil, false
		}
	}()

	if rows == 0 {
		return nil, false
	}

	values := make([]table.Value, len(col.Values))
	parsed := 0
	for i, v := range col.Values {
		if v.Kind() != table.KindText {
			continue
		}
		if ts, good := ParseDate(v.Str()); good {
			values[i] = table.Date(ts)
			parsed++
		}
	}

	if parsed == 0 || float64(parsed)/float64(rows) <= n.threshold {
		return nil, false
	}
	return &table.Column{Name: col.Name, Type: table.TypeDate, Values: values}, true
}

func trimmed(col *table.Column) *table.Column {
	values := make([]table.Value, len(col.Values))
	for i, v := range col.Values {
		if v.Kind() == table.KindText {
			values[i] = table.Text(strings.TrimSpace(v.Str()))
			continue
		}
		values[i] = v
	}
	return &table.Column{Name: col.Name, Type: col.Type, Values: values}
}
