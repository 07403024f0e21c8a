package aggregate

import (
	"fmt"
	"sort"

	"github.com/fleetlens/backend/internal/apperr"
	"github.com/fleetlens/backend/internal/table"
)

const (
	columnMonth    = "Month"
	columnCompared = "ComparisonValue"
)

// melted is one (row, search column) pair whose value is in the compare set.
type melted struct {
	month string
	value string
	group table.Value
}

// comparison melts the search columns into (column, value) pairs, keeps the
// pairs whose value is compared and measures each (month, value) cell. Every
// month between the first and last date of the date column appears for every
// compared value that occurs, zero-filled.
func comparison(t *table.Table, q Comparison) (*Result, error) {
	dc, err := column(t, q.DateColumn)
	if err != nil {
		return nil, err
	}

	var search []*table.Column
	for _, name := range q.SearchColumns {
		if col, err := t.Column(name); err == nil {
			search = append(search, col)
		}
	}
	if len(search) == 0 {
		return nil, apperr.BadQuery("none of the selected search columns exist in the data")
	}

	var gc *table.Column
	if q.GroupColumn != "" {
		if gc, err = column(t, q.GroupColumn); err != nil {
			return nil, err
		}
	}

	compared := newValueSet(q.CompareValues)
	var pairs []melted
	for _, sc := range search {
		for row, v := range sc.Values {
			if v.IsNull() || !compared.keeps(v.String()) {
				continue
			}
			d := dc.Values[row]
			if d.Kind() != table.KindDate {
				continue
			}
			m := melted{month: d.Time().Format(monthLayout), value: v.String()}
			if gc != nil {
				m.group = gc.Values[row]
			}
			pairs = append(pairs, m)
		}
	}
	if len(pairs) == 0 {
		return nil, apperr.EmptyResult("no data found for the selected comparison values")
	}

	measure := measureCount
	title := "Comparison of Occurrences"
	distinct := false
	switch {
	case gc != nil && q.GroupValue != "":
		kept := pairs[:0]
		for _, p := range pairs {
			if !p.group.IsNull() && p.group.String() == q.GroupValue {
				kept = append(kept, p)
			}
		}
		pairs = kept
		if len(pairs) == 0 {
			return nil, apperr.EmptyResult("no data found for the filter '%s = %s'", q.GroupColumn, q.GroupValue)
		}
		title = fmt.Sprintf("Occurrences for '%s' = '%s'", q.GroupColumn, q.GroupValue)
	case gc != nil:
		measure = q.GroupColumn
		title = fmt.Sprintf("Comparison by Unique Count of '%s'", q.GroupColumn)
		distinct = true
	}

	type cell struct{ month, value string }
	counts := make(map[cell]int)
	groups := make(map[cell]map[string]struct{})
	values := make(map[string]struct{})
	for _, p := range pairs {
		k := cell{p.month, p.value}
		values[p.value] = struct{}{}
		if !distinct {
			counts[k]++
			continue
		}
		if p.group.IsNull() {
			continue
		}
		if groups[k] == nil {
			groups[k] = make(map[string]struct{})
		}
		groups[k][p.group.Kind().String()+"\x00"+p.group.String()] = struct{}{}
	}

	lo, hi, _ := dateBounds(dc, nil)
	months := monthRange(lo, hi)

	series := make([]string, 0, len(values))
	for v := range values {
		series = append(series, v)
	}
	sort.Strings(series)

	res := &Result{
		Kind:       KindComparison,
		Title:      title,
		Style:      q.Style,
		Columns:    []string{columnMonth, columnCompared, measure},
		Measure:    measure,
		Series:     columnCompared,
		Categories: months,
	}
	for _, m := range months {
		for _, v := range series {
			n := counts[cell{m, v}]
			if distinct {
				n = len(groups[cell{m, v}])
			}
			res.Rows = append(res.Rows, []table.Value{table.Text(m), table.Text(v), table.Number(float64(n))})
		}
	}
	return res, nil
}
