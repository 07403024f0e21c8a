// Package domainset computes the option lists behind cascading selections:
// distinct values of one or more columns, optionally restricted by row filters.
package domainset

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fleetlens/backend/internal/normalizer"
	"github.com/fleetlens/backend/internal/table"
)

const isoDate = "2006-01-02"

type Option struct {
	Label string      `json:"label"`
	Value table.Value `json:"value"`
}

// Distinct returns the distinct non-null values of columns among rows kept by
// filter, sorted by label. Labels are the trimmed string form; values sharing
// a label keep the order in which they were first seen. Columns missing from
// the table contribute nothing.
func Distinct(t *table.Table, columns []string, filter Filter) ([]Option, error) {
	keep, err := compile(t, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to apply filter: %w", err)
	}

	var cols []*table.Column
	for _, name := range columns {
		if col, err := t.Column(name); err == nil {
			cols = append(cols, col)
		}
	}

	seen := make(map[string]struct{})
	var options []Option
	for _, col := range cols {
		for row, v := range col.Values {
			if v.IsNull() || !keep(row) {
				continue
			}
			id := v.Kind().String() + "\x00" + v.String()
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			options = append(options, Option{Label: strings.TrimSpace(v.String()), Value: v})
		}
	}

	sort.SliceStable(options, func(i, j int) bool {
		return options[i].Label < options[j].Label
	})
	return options, nil
}

// Labels is Distinct reduced to its labels.
func Labels(options []Option) []string {
	out := make([]string, len(options))
	for i, o := range options {
		out[i] = o.Label
	}
	return out
}

// ProductionDates lists the calendar dates in dateCol for rows matching both
// chassis and part, as ISO dates in chronological order without duplicates.
// Text cells that read as dates are included; other cells are skipped.
func ProductionDates(t *table.Table, chassisCol, chassis, partCol, part, dateCol string) ([]string, error) {
	keep, err := compile(t, All(Equals(chassisCol, chassis), Equals(partCol, part)))
	if err != nil {
		return nil, fmt.Errorf("failed to apply filter: %w", err)
	}
	col, err := t.Column(dateCol)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var days []time.Time
	for row, v := range col.Values {
		if !keep(row) {
			continue
		}
		ts, ok := AsDate(v)
		if !ok {
			continue
		}
		day := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
		label := day.Format(isoDate)
		if _, dup := seen[label]; dup {
			continue
		}
		seen[label] = struct{}{}
		days = append(days, day)
	}

	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	out := make([]string, len(days))
	for i, d := range days {
		out[i] = d.Format(isoDate)
	}
	return out, nil
}

// AsDate reads v as a point in time: Date values directly, Text values when
// they parse as a date.
func AsDate(v table.Value) (time.Time, bool) {
	switch v.Kind() {
	case table.KindDate:
		return v.Time(), true
	case table.KindText:
		return normalizer.ParseDate(strings.TrimSpace(v.Str()))
	default:
		return time.Time{}, false
	}
}

// ColumnsOfType returns the names of columns whose type is one of types, in
// table order.
func ColumnsOfType(t *table.Table, types ...table.ColumnType) []string {
	var out []string
	for _, col := range t.Columns() {
		for _, typ := range types {
			if col.Type == typ {
				out = append(out, col.Name)
				break
			}
		}
	}
	return out
}
