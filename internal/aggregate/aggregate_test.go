package aggregate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetlens/backend/internal/apperr"
	"github.com/fleetlens/backend/internal/table"
)

func dates(name string, values ...string) *table.Column {
	col := &table.Column{Name: name, Type: table.TypeDate, Values: make([]table.Value, len(values))}
	for i, s := range values {
		if s == "" {
			continue
		}
		ts, err := time.Parse("2006-01-02", s)
		if err != nil {
			panic(err)
		}
		col.Values[i] = table.Date(ts)
	}
	return col
}

// labelsAndCounts flattens two-column results into parallel slices.
func labelsAndCounts(t *testing.T, res *Result, measure int) ([]string, []float64) {
	t.Helper()
	var labels []string
	var counts []float64
	for _, row := range res.Rows {
		labels = append(labels, row[0].String())
		counts = append(counts, row[measure].Num())
	}
	return labels, counts
}

func TestOneD_NaturalOrder(t *testing.T) {
	tbl := table.MustNew(table.TextColumn("Part", "A", "A", "B", "C", "C", "C"))

	res, err := Aggregate(tbl, OneD{X: "Part"})
	require.NoError(t, err)

	labels, counts := labelsAndCounts(t, res, 1)
	assert.Equal(t, []string{"C", "A", "B"}, labels)
	assert.Equal(t, []float64{3, 2, 1}, counts)
	assert.Equal(t, []string{"Part", "Count"}, res.Columns)
	assert.Equal(t, "Count", res.Measure)
}

func TestOneD_Percentage(t *testing.T) {
	tbl := table.MustNew(table.TextColumn("Part", "A", "A", "B", "C", "C", "C"))

	res, err := Aggregate(tbl, OneD{X: "Part", CountMode: CountPercentage})
	require.NoError(t, err)

	got := map[string]float64{}
	for _, row := range res.Rows {
		got[row[0].String()] = row[2].Num()
	}
	assert.InDelta(t, 33.3, got["A"], 0.1)
	assert.InDelta(t, 16.7, got["B"], 0.1)
	assert.InDelta(t, 50.0, got["C"], 0.1)
	assert.Equal(t, "Percentage", res.Measure)
}

func TestOneD_SortAndTopN(t *testing.T) {
	var values []string
	for label, n := range map[string]int{"A": 5, "B": 1, "C": 3, "D": 2} {
		for i := 0; i < n; i++ {
			values = append(values, label)
		}
	}
	tbl := table.MustNew(table.TextColumn("Part", values...))

	tests := []struct {
		name       string
		query      OneD
		wantLabels []string
		wantCounts []float64
	}{
		{"desc top 2", OneD{X: "Part", Sort: SortDesc, TopN: 2}, []string{"A", "C"}, []float64{5, 3}},
		{"asc", OneD{X: "Part", Sort: SortAsc}, []string{"B", "D", "C", "A"}, []float64{1, 2, 3, 5}},
		{"top 3 without sort", OneD{X: "Part", TopN: 3}, []string{"A", "C", "D"}, []float64{5, 3, 2}},
		{"top larger than domain", OneD{X: "Part", TopN: 10}, []string{"A", "C", "D", "B"}, []float64{5, 3, 2, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Aggregate(tbl, tt.query)
			require.NoError(t, err)
			labels, counts := labelsAndCounts(t, res, 1)
			assert.Equal(t, tt.wantLabels, labels)
			assert.Equal(t, tt.wantCounts, counts)
		})
	}
}

func TestOneD_PercentageOfShownTotal(t *testing.T) {
	tbl := table.MustNew(table.TextColumn("Part", "A", "A", "A", "B", "C"))

	res, err := Aggregate(tbl, OneD{X: "Part", TopN: 1, CountMode: CountPercentage})
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, 100.0, res.Rows[0][2].Num())
	assert.Equal(t, "Percentage Distribution of 'Part' (Top 1)", res.Title)
}

func TestOneD_FilterAndNulls(t *testing.T) {
	tbl := table.MustNew(
		table.TextColumn("Part", "A", "", "B", "A"),
		table.NumberColumn("Qty", 1, 2, 2, 10),
	)

	res, err := Aggregate(tbl, OneD{X: "Part", XFilter: []string{"A"}})
	require.NoError(t, err)
	labels, counts := labelsAndCounts(t, res, 1)
	assert.Equal(t, []string{"A"}, labels)
	assert.Equal(t, []float64{2}, counts)

	res, err = Aggregate(tbl, OneD{X: "Qty", XFilter: []string{"2", "10"}})
	require.NoError(t, err)
	labels, _ = labelsAndCounts(t, res, 1)
	assert.Equal(t, []string{"2", "10"}, labels)
	assert.Equal(t, table.Number(2), res.Rows[0][0])
}

func TestAggregate_Outcomes(t *testing.T) {
	tbl := table.MustNew(
		table.TextColumn("Part", "A", "B"),
		table.TextColumn("Chassis", "C1", "C2"),
		dates("Built", "2023-01-01", "2023-02-01"),
	)

	tests := []struct {
		name  string
		query Query
		want  apperr.Kind
	}{
		{"nil query", nil, apperr.KindBadQuery},
		{"1d missing x", OneD{}, apperr.KindBadQuery},
		{"1d bad sort", OneD{X: "Part", Sort: "sideways"}, apperr.KindBadQuery},
		{"2d missing y", TwoD{X: "Part"}, apperr.KindBadQuery},
		{"comparison incomplete", Comparison{DateColumn: "Built"}, apperr.KindBadQuery},
		{"comparison unknown search columns", Comparison{DateColumn: "Built", SearchColumns: []string{"Nope"}, CompareValues: []string{"A"}}, apperr.KindBadQuery},
		{"3d missing z", ThreeD{X: "Part", Y: "Chassis"}, apperr.KindBadQuery},
		{"1d filtered empty", OneD{X: "Part", XFilter: []string{"Z"}}, apperr.KindEmptyResult},
		{"2d filtered empty", TwoD{X: "Part", Y: "Chassis", YFilter: []string{"C9"}}, apperr.KindEmptyResult},
		{"comparison no match", Comparison{DateColumn: "Built", SearchColumns: []string{"Part"}, CompareValues: []string{"Z"}}, apperr.KindEmptyResult},
		{"3d filtered empty", ThreeD{X: "Part", Y: "Chassis", Z: "Built", ZFilter: []string{"1999-01-01"}}, apperr.KindEmptyResult},
		{"missing column", OneD{X: "Vanished"}, apperr.KindComputation},
		{"missing group column", Comparison{DateColumn: "Built", SearchColumns: []string{"Part"}, CompareValues: []string{"A"}, GroupColumn: "Gone"}, apperr.KindComputation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Aggregate(tbl, tt.query)
			require.Error(t, err)
			assert.Nil(t, res)
			assert.Equal(t, tt.want, apperr.KindOf(err))
		})
	}
}

func TestTwoD_DateAxisZeroFillsMonths(t *testing.T) {
	tbl := table.MustNew(
		dates("Repair date", "2023-01-05", "2023-01-20", "2023-03-02", ""),
		table.TextColumn("Part", "A", "B", "A", "A"),
	)

	res, err := Aggregate(tbl, TwoD{X: "Repair date", Y: "Part"})
	require.NoError(t, err)

	assert.Equal(t, []string{"2023-01", "2023-02", "2023-03"}, res.Categories)
	labels, counts := labelsAndCounts(t, res, 1)
	assert.Equal(t, []string{"2023-01", "2023-02", "2023-03"}, labels)
	assert.Equal(t, []float64{2, 0, 1}, counts)
}

func TestTwoD_DateAxisFilterOnMonth(t *testing.T) {
	tbl := table.MustNew(
		dates("Repair date", "2023-01-05", "2023-02-20", "2023-03-02"),
		table.TextColumn("Part", "A", "B", "A"),
	)

	res, err := Aggregate(tbl, TwoD{X: "Repair date", Y: "Part", XFilter: []string{"2023-02"}})
	require.NoError(t, err)
	_, counts := labelsAndCounts(t, res, 1)
	assert.Equal(t, []float64{0, 1, 0}, counts)
}

func TestTwoD_CategoricalOrdering(t *testing.T) {
	tbl := table.MustNew(
		table.TextColumn("Chassis", "C3", "C1", "C1", "C2", "C2", "C2"),
		table.TextColumn("Part", "A", "A", "B", "A", "A", "B"),
	)

	res, err := Aggregate(tbl, TwoD{X: "Chassis", Y: "Part"})
	require.NoError(t, err)
	labels, counts := labelsAndCounts(t, res, 1)
	assert.Equal(t, []string{"C1", "C2", "C3"}, labels)
	assert.Equal(t, []float64{2, 3, 1}, counts)

	res, err = Aggregate(tbl, TwoD{X: "Chassis", Y: "Part", TopN: 2})
	require.NoError(t, err)
	labels, _ = labelsAndCounts(t, res, 1)
	assert.Equal(t, []string{"C2", "C1"}, labels)
	assert.Equal(t, "Total Count for each 'Chassis' (Top 2)", res.Title)
}

func TestTwoD_Stacked(t *testing.T) {
	tbl := table.MustNew(
		table.TextColumn("Chassis", "C3", "C1", "C1", "C2", "C2", "C2"),
		table.TextColumn("Part", "A", "B", "A", "B", "A", "A"),
	)

	res, err := Aggregate(tbl, TwoD{X: "Chassis", Y: "Part", Stacked: true, Sort: SortDesc, TopN: 2})
	require.NoError(t, err)

	assert.Equal(t, []string{"Chassis", "Part", "Count"}, res.Columns)
	assert.Equal(t, "Part", res.Series)
	assert.Equal(t, []string{"C2", "C1"}, res.Categories)

	var got [][3]string
	for _, row := range res.Rows {
		got = append(got, [3]string{row[0].String(), row[1].String(), row[2].String()})
	}
	assert.Equal(t, [][3]string{
		{"C2", "A", "2"},
		{"C2", "B", "1"},
		{"C1", "A", "1"},
		{"C1", "B", "1"},
	}, got)
}

func comparisonTable() *table.Table {
	return table.MustNew(
		dates("Date", "2023-01-10", "2023-01-20", "2023-03-05", "2023-04-01"),
		table.TextColumn("P1", "X", "Z", "X", "Y"),
		table.TextColumn("P2", "Y", "X", "X", "Z"),
		table.TextColumn("Chassis", "C1", "C1", "C2", "C3"),
	)
}

func comparisonCells(res *Result) map[[2]string]float64 {
	out := make(map[[2]string]float64)
	for _, row := range res.Rows {
		out[[2]string{row[0].String(), row[1].String()}] = row[2].Num()
	}
	return out
}

func TestComparison_CountsWithFullMonthRange(t *testing.T) {
	res, err := Aggregate(comparisonTable(), Comparison{
		DateColumn:    "Date",
		SearchColumns: []string{"P1", "P2"},
		CompareValues: []string{"X"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"2023-01", "2023-02", "2023-03", "2023-04"}, res.Categories)
	assert.Equal(t, []string{"Month", "ComparisonValue", "Count"}, res.Columns)
	require.Len(t, res.Rows, 4)
	assert.Equal(t, map[[2]string]float64{
		{"2023-01", "X"}: 2,
		{"2023-02", "X"}: 0,
		{"2023-03", "X"}: 2,
		{"2023-04", "X"}: 0,
	}, comparisonCells(res))
}

func TestComparison_DistinctGroupCount(t *testing.T) {
	res, err := Aggregate(comparisonTable(), Comparison{
		DateColumn:    "Date",
		SearchColumns: []string{"P1", "P2"},
		CompareValues: []string{"X", "Z"},
		GroupColumn:   "Chassis",
	})
	require.NoError(t, err)

	assert.Equal(t, "Chassis", res.Measure)
	cells := comparisonCells(res)
	assert.Len(t, cells, 8)
	assert.Equal(t, 1.0, cells[[2]string{"2023-01", "X"}], "two X rows share chassis C1")
	assert.Equal(t, 1.0, cells[[2]string{"2023-01", "Z"}])
	assert.Equal(t, 1.0, cells[[2]string{"2023-03", "X"}])
	assert.Equal(t, 1.0, cells[[2]string{"2023-04", "Z"}])
	assert.Equal(t, 0.0, cells[[2]string{"2023-02", "Z"}])
}

func TestComparison_GroupValueFilter(t *testing.T) {
	res, err := Aggregate(comparisonTable(), Comparison{
		DateColumn:    "Date",
		SearchColumns: []string{"P1", "P2"},
		CompareValues: []string{"X"},
		GroupColumn:   "Chassis",
		GroupValue:    "C2",
	})
	require.NoError(t, err)

	assert.Equal(t, "Count", res.Measure)
	cells := comparisonCells(res)
	assert.Equal(t, 0.0, cells[[2]string{"2023-01", "X"}])
	assert.Equal(t, 2.0, cells[[2]string{"2023-03", "X"}])

	_, err = Aggregate(comparisonTable(), Comparison{
		DateColumn:    "Date",
		SearchColumns: []string{"P1"},
		CompareValues: []string{"X"},
		GroupColumn:   "Chassis",
		GroupValue:    "C9",
	})
	assert.Equal(t, apperr.KindEmptyResult, apperr.KindOf(err))
}

func TestThreeD(t *testing.T) {
	tbl := table.MustNew(
		table.NumberColumn("Age", 3, 1, 3, 2),
		table.TextColumn("Part", "A", "B", "A", "B"),
		table.TextColumn("Region", "N", "S", "N", ""),
	)

	res, err := Aggregate(tbl, ThreeD{X: "Age", Y: "Part", Z: "Region"})
	require.NoError(t, err)
	assert.Len(t, res.Rows, 3)
	assert.Equal(t, "scatter_3d", res.Style)

	res, err = Aggregate(tbl, ThreeD{X: "Age", Y: "Part", Z: "Region", Style: StyleLine})
	require.NoError(t, err)
	require.Len(t, res.Rows, 3)
	assert.Equal(t, table.Number(1), res.Rows[0][0])
	assert.Equal(t, table.Number(3), res.Rows[2][0])

	res, err = Aggregate(tbl, ThreeD{X: "Age", Y: "Part", Z: "Region", Style: StyleBubble})
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, []string{"Age", "Part", "Region", "Count"}, res.Columns)
	assert.Equal(t, table.Number(1), res.Rows[0][0])
	assert.Equal(t, 1.0, res.Rows[0][3].Num())
	assert.Equal(t, 2.0, res.Rows[1][3].Num())
}

func TestDescriptor_Query(t *testing.T) {
	tests := []struct {
		name string
		in   Descriptor
		want Query
	}{
		{"1d", Descriptor{Type: "1d", X: "Part", Sort: "desc", TopN: 5}, OneD{X: "Part", Sort: SortDesc, TopN: 5}},
		{"2d stacked", Descriptor{Type: "2d", Style: "bar_stacked", X: "a", Y: "b"}, TwoD{X: "a", Y: "b", Stacked: true, Style: "bar_stacked"}},
		{"2d comparison", Descriptor{Type: "2d", Mode: "comparison", DateColumn: "d", SearchColumns: []string{"p"}, CompareValues: []string{"x"}},
			Comparison{DateColumn: "d", SearchColumns: []string{"p"}, CompareValues: []string{"x"}}},
		{"3d", Descriptor{Type: "3d", X: "a", Y: "b", Z: "c", Style: "bubble_3d"}, ThreeD{X: "a", Y: "b", Z: "c", Style: StyleBubble}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.in.Query()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := Descriptor{Type: "4d"}.Query()
	assert.Equal(t, apperr.KindBadQuery, apperr.KindOf(err))
	_, err = Descriptor{Type: "2d", Mode: "sideways"}.Query()
	assert.Equal(t, apperr.KindBadQuery, apperr.KindOf(err))
}
