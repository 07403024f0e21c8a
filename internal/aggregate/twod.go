package aggregate

import (
	"fmt"
	"sort"

	"github.com/fleetlens/backend/internal/apperr"
	"github.com/fleetlens/backend/internal/table"
)

type pairRow struct {
	x, y           string
	xValue, yValue table.Value
}

// twoD counts rows per X category, or per (X, Y) pair when stacked. A date X
// axis is bucketed by month and its categories span every month between the
// first and last date, so missing months show as zero.
func twoD(t *table.Table, q TwoD) (*Result, error) {
	xc, err := column(t, q.X)
	if err != nil {
		return nil, err
	}
	yc, err := column(t, q.Y)
	if err != nil {
		return nil, err
	}

	byMonth := xc.Type == table.TypeDate
	present := func(row int) bool {
		return !xc.Values[row].IsNull() && !yc.Values[row].IsNull()
	}

	var months []string
	if byMonth {
		lo, hi, ok := dateBounds(xc, present)
		if !ok {
			return nil, apperr.EmptyResult("no data to display after applying filters")
		}
		months = monthRange(lo, hi)
	}

	xAllowed, yAllowed := newValueSet(q.XFilter), newValueSet(q.YFilter)
	var rows []pairRow
	for i := 0; i < t.NumRows(); i++ {
		if !present(i) {
			continue
		}
		xv, yv := xc.Values[i], yc.Values[i]
		x := xv.String()
		if byMonth {
			if xv.Kind() != table.KindDate {
				continue
			}
			x = xv.Time().Format(monthLayout)
			xv = table.Text(x)
		}
		y := yv.String()
		if !xAllowed.keeps(x) || !yAllowed.keeps(y) {
			continue
		}
		rows = append(rows, pairRow{x: x, y: y, xValue: xv, yValue: yv})
	}
	if len(rows) == 0 {
		return nil, apperr.EmptyResult("no data to display after applying filters")
	}

	totals := newCounter()
	for _, r := range rows {
		totals.add(r.x, r.xValue)
	}

	var order []bucket
	if byMonth {
		for _, m := range months {
			order = append(order, bucket{label: m, value: table.Text(m), count: totals.get(m)})
		}
	} else {
		base := append([]bucket(nil), totals.buckets...)
		sort.SliceStable(base, func(i, j int) bool { return base[i].label < base[j].label })
		order = sortBuckets(base, q.Sort, q.TopN)
	}

	res := &Result{Kind: KindTwoD, Style: q.Style, Measure: measureCount}
	for _, b := range order {
		res.Categories = append(res.Categories, b.label)
	}
	suffix := ""
	if !byMonth {
		suffix = topSuffix(q.TopN)
	}

	if q.Stacked {
		stackedRows(res, rows, order, q)
		res.Title = fmt.Sprintf("Stacked Count of '%s' per '%s'", q.Y, q.X)
		if q.TopN > 0 && !byMonth {
			res.Title += fmt.Sprintf(" (Top %d by Total Count)", q.TopN)
		}
		if len(res.Rows) == 0 {
			return nil, apperr.EmptyResult("no data after secondary filters")
		}
		return res, nil
	}

	res.Columns = []string{q.X, measureCount}
	res.Title = fmt.Sprintf("Total Count for each '%s'", q.X) + suffix
	for _, b := range order {
		res.Rows = append(res.Rows, []table.Value{b.value, table.Number(float64(b.count))})
	}
	return res, nil
}

// stackedRows fills res with (X, Y, Count) rows for the categories in order,
// Y ascending within each category. Pairs that never occur are omitted.
func stackedRows(res *Result, rows []pairRow, order []bucket, q TwoD) {
	res.Columns = []string{q.X, q.Y, measureCount}
	res.Series = q.Y

	position := make(map[string]int, len(order))
	for i, b := range order {
		position[b.label] = i
	}

	type pairKey struct{ x, y string }
	counts := make(map[pairKey]int)
	firstY := make(map[pairKey]table.Value)
	var keys []pairKey
	for _, r := range rows {
		if _, ok := position[r.x]; !ok {
			continue
		}
		k := pairKey{r.x, r.y}
		if _, seen := counts[k]; !seen {
			keys = append(keys, k)
			firstY[k] = r.yValue
		}
		counts[k]++
	}

	sort.SliceStable(keys, func(i, j int) bool {
		pi, pj := position[keys[i].x], position[keys[j].x]
		if pi != pj {
			return pi < pj
		}
		return keys[i].y < keys[j].y
	})

	for _, k := range keys {
		res.Rows = append(res.Rows, []table.Value{
			order[position[k.x]].value,
			firstY[k],
			table.Number(float64(counts[k])),
		})
	}
}
