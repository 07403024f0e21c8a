package aggregate

import (
	"fmt"
	"sort"

	"github.com/fleetlens/backend/internal/apperr"
	"github.com/fleetlens/backend/internal/table"
)

func threeD(t *table.Table, q ThreeD) (*Result, error) {
	cols := make([]*table.Column, 3)
	for i, name := range []string{q.X, q.Y, q.Z} {
		col, err := column(t, name)
		if err != nil {
			return nil, err
		}
		cols[i] = col
	}
	filters := []valueSet{newValueSet(q.XFilter), newValueSet(q.YFilter), newValueSet(q.ZFilter)}

	var points [][]table.Value
rows:
	for row := 0; row < t.NumRows(); row++ {
		p := make([]table.Value, 3)
		for i, col := range cols {
			v := col.Values[row]
			if v.IsNull() || !filters[i].keeps(v.String()) {
				continue rows
			}
			p[i] = v
		}
		points = append(points, p)
	}
	if len(points) == 0 {
		return nil, apperr.EmptyResult("no data after filters")
	}

	style := q.Style
	if style == "" {
		style = StyleScatter
	}
	res := &Result{
		Kind:    KindThreeD,
		Style:   string(style),
		Columns: []string{q.X, q.Y, q.Z},
		Series:  q.Z,
		Title:   fmt.Sprintf("3D Plot: %s, %s, %s", q.X, q.Y, q.Z),
	}

	switch style {
	case StyleLine:
		sort.SliceStable(points, func(i, j int) bool { return table.Compare(points[i][0], points[j][0]) < 0 })
		res.Rows = points
	case StyleBubble:
		res.Rows = bubbles(points)
		res.Columns = append(res.Columns, measureCount)
		res.Measure = measureCount
		res.Title += " (by Count)"
	default:
		res.Rows = points
	}
	return res, nil
}

// bubbles groups identical (X, Y, Z) points, ordered by X, then Y, then Z.
func bubbles(points [][]table.Value) [][]table.Value {
	index := make(map[string]int)
	var out [][]table.Value
	for _, p := range points {
		var key string
		for _, v := range p {
			key += v.Kind().String() + "\x00" + v.String() + "\x01"
		}
		if i, ok := index[key]; ok {
			out[i][3] = table.Number(out[i][3].Num() + 1)
			continue
		}
		index[key] = len(out)
		out = append(out, []table.Value{p[0], p[1], p[2], table.Number(1)})
	}

	sort.SliceStable(out, func(i, j int) bool {
		for k := 0; k < 3; k++ {
			if c := table.Compare(out[i][k], out[j][k]); c != 0 {
				return c < 0
			}
		}
		return false
	})
	return out
}
