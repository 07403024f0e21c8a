package aggregate

import (
	"fmt"
	"sort"

	"github.com/fleetlens/backend/internal/apperr"
	"github.com/fleetlens/backend/internal/table"
)

// oneD counts values of q.X. Without a sort mode the order is count
// descending with ties in first-appearance order. Percentages are of the
// counts that are shown, so a top-N chart always sums to 100.
func oneD(t *table.Table, q OneD) (*Result, error) {
	col, err := column(t, q.X)
	if err != nil {
		return nil, err
	}

	allowed := newValueSet(q.XFilter)
	c := newCounter()
	for _, v := range col.Values {
		if v.IsNull() {
			continue
		}
		label := v.String()
		if !allowed.keeps(label) {
			continue
		}
		c.add(label, v)
	}
	if c.total == 0 {
		return nil, apperr.EmptyResult("no data after filters")
	}

	natural := append([]bucket(nil), c.buckets...)
	sort.SliceStable(natural, func(i, j int) bool { return natural[i].count > natural[j].count })
	shown := sortBuckets(natural, q.Sort, q.TopN)

	res := &Result{
		Kind:    KindOneD,
		Style:   q.Style,
		Columns: []string{q.X, measureCount},
		Measure: measureCount,
		Title:   fmt.Sprintf("Frequency of '%s'", q.X),
	}

	total := 0
	for _, b := range shown {
		total += b.count
	}
	percentage := q.CountMode == CountPercentage
	if percentage {
		res.Columns = append(res.Columns, measurePercentage)
		res.Measure = measurePercentage
		res.Title = fmt.Sprintf("Percentage Distribution of '%s'", q.X)
	}
	res.Title += topSuffix(q.TopN)

	for _, b := range shown {
		row := []table.Value{b.value, table.Number(float64(b.count))}
		if percentage {
			pct := 0.0
			if total > 0 {
				pct = float64(b.count) / float64(total) * 100
			}
			row = append(row, table.Number(pct))
		}
		res.Rows = append(res.Rows, row)
		res.Categories = append(res.Categories, b.label)
	}
	return res, nil
}
