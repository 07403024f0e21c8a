// Package aggregate turns a cached table and a chart query into the grouped
// result set a chart is drawn from.
package aggregate

import (
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/fleetlens/backend/internal/apperr"
	"github.com/fleetlens/backend/internal/table"
	"github.com/fleetlens/backend/pkg/logger"
)

const (
	measureCount      = "Count"
	measurePercentage = "Percentage"
	monthLayout       = "2006-01"
)

// Result is a chart-ready table. Measure names the column to plot on the value
// axis, Series the column that splits the data into traces, and Categories the
// order of the category axis.
type Result struct {
	Kind       Kind            `json:"kind"`
	Title      string          `json:"title"`
	Style      string          `json:"style,omitempty"`
	Columns    []string        `json:"columns"`
	Rows       [][]table.Value `json:"rows"`
	Measure    string          `json:"measure,omitempty"`
	Series     string          `json:"series,omitempty"`
	Categories []string        `json:"categories,omitempty"`
}

// Aggregate runs q against t. Besides success it returns BadQuery for
// incomplete queries, EmptyResult when nothing is left to plot, and
// ComputationError for anything unexpected, such as a column that does not exist.
func Aggregate(t *table.Table, q Query) (res *Result, err error) {
	if q == nil {
		return nil, apperr.BadQuery("invalid graph configuration")
	}
	if err := q.validate(); err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Aggregation panicked", zap.String("kind", string(q.Kind())), zap.Any("panic", r))
			res, err = nil, apperr.Computation(fmt.Errorf("panic during aggregation: %v", r))
		}
	}()

	switch q := q.(type) {
	case OneD:
		return oneD(t, q)
	case TwoD:
		return twoD(t, q)
	case Comparison:
		return comparison(t, q)
	case ThreeD:
		return threeD(t, q)
	default:
		return nil, apperr.BadQuery("invalid graph configuration")
	}
}

func column(t *table.Table, name string) (*table.Column, error) {
	col, err := t.Column(name)
	if err != nil {
		return nil, apperr.Computation(err)
	}
	return col, nil
}

// valueSet is a filter on canonical string forms; an empty set keeps everything.
type valueSet map[string]struct{}

func newValueSet(values []string) valueSet {
	if len(values) == 0 {
		return nil
	}
	s := make(valueSet, len(values))
	for _, v := range values {
		s[v] = struct{}{}
	}
	return s
}

func (s valueSet) keeps(label string) bool {
	if s == nil {
		return true
	}
	_, ok := s[label]
	return ok
}

// bucket is one group with the first value seen for it.
type bucket struct {
	label string
	value table.Value
	count int
}

// counter counts labels and remembers first-appearance order.
type counter struct {
	index   map[string]int
	buckets []bucket
	total   int
}

func newCounter() *counter {
	return &counter{index: make(map[string]int)}
}

func (c *counter) add(label string, v table.Value) {
	c.total++
	if i, ok := c.index[label]; ok {
		c.buckets[i].count++
		return
	}
	c.index[label] = len(c.buckets)
	c.buckets = append(c.buckets, bucket{label: label, value: v, count: 1})
}

func (c *counter) get(label string) int {
	if i, ok := c.index[label]; ok {
		return c.buckets[i].count
	}
	return 0
}

// sortBuckets returns a copy of the buckets in the order a chart shows them. With
// no sort mode the base order is kept, except that topN alone implies
// descending counts. Ties keep their base order.
func sortBuckets(base []bucket, mode SortMode, topN int) []bucket {
	out := append([]bucket(nil), base...)
	if mode == SortNone && topN > 0 {
		mode = SortDesc
	}
	switch mode {
	case SortAsc:
		sort.SliceStable(out, func(i, j int) bool { return out[i].count < out[j].count })
	case SortDesc:
		sort.SliceStable(out, func(i, j int) bool { return out[i].count > out[j].count })
	}
	if topN > 0 && topN < len(out) {
		out = out[:topN]
	}
	return out
}

func monthOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// monthRange lists every month from lo to hi inclusive as YYYY-MM.
func monthRange(lo, hi time.Time) []string {
	var out []string
	for m := monthOf(lo); !m.After(monthOf(hi)); m = m.AddDate(0, 1, 0) {
		out = append(out, m.Format(monthLayout))
	}
	return out
}

// dateBounds returns the earliest and latest Date values of col.
func dateBounds(col *table.Column, keep func(row int) bool) (lo, hi time.Time, ok bool) {
	for row, v := range col.Values {
		if v.Kind() != table.KindDate || (keep != nil && !keep(row)) {
			continue
		}
		ts := v.Time()
		if !ok || ts.Before(lo) {
			lo = ts
		}
		if !ok || ts.After(hi) {
			hi = ts
		}
		ok = true
	}
	return lo, hi, ok
}

func topSuffix(topN int) string {
	if topN > 0 {
		return fmt.Sprintf(" (Top %d)", topN)
	}
	return ""
}
