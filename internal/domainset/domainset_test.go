package domainset

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetlens/backend/internal/table"
)

func day(y int, m time.Month, d, h int) table.Value {
	return table.Date(time.Date(y, m, d, h, 0, 0, 0, time.UTC))
}

func fleet() *table.Table {
	return table.MustNew(
		table.TextColumn("Chassis", "C2", "C1", "C1", "C2", "C1"),
		table.TextColumn("Part", "P-9", "P-1", "P-2", "P-1", "P-1"),
		table.TextColumn("Alt part", "", "P-7", "", "P-9", ""),
		&table.Column{Name: "Production Date", Type: table.TypeDate, Values: []table.Value{
			day(2022, 5, 1, 0), day(2022, 3, 10, 8), day(2021, 1, 2, 0), day(2022, 5, 1, 0), day(2022, 3, 10, 17),
		}},
	)
}

func TestDistinct_DropsNullAndDuplicates(t *testing.T) {
	tbl := table.MustNew(table.TextColumn("c", "b", "a", "", "a"))

	got, err := Distinct(tbl, []string{"c"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, Labels(got))
}

func TestDistinct_Filtered(t *testing.T) {
	got, err := Distinct(fleet(), []string{"Part"}, Equals("Chassis", "C1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"P-1", "P-2"}, Labels(got))
}

func TestDistinct_MultiColumnUnion(t *testing.T) {
	got, err := Distinct(fleet(), []string{"Part", "Alt part", "Missing"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"P-1", "P-2", "P-7", "P-9"}, Labels(got))
}

func TestDistinct_AnyIn(t *testing.T) {
	got, err := Distinct(fleet(), []string{"Chassis"}, AnyIn([]string{"Part", "Alt part"}, "P-9"))
	require.NoError(t, err)
	assert.Equal(t, []string{"C2"}, Labels(got))
}

func TestDistinct_StableTies(t *testing.T) {
	tbl := table.MustNew(&table.Column{Name: "c", Type: table.TypeMixed, Values: []table.Value{
		table.Text("7"), table.Number(7), table.Text("3"),
	}})

	got, err := Distinct(tbl, []string{"c"}, nil)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, table.Text("3"), got[0].Value)
	assert.Equal(t, table.Text("7"), got[1].Value)
	assert.Equal(t, table.Number(7), got[2].Value)
}

func TestDistinct_UnknownFilterColumn(t *testing.T) {
	_, err := Distinct(fleet(), []string{"Part"}, Equals("Nope", "x"))
	assert.ErrorIs(t, err, table.ErrColumnNotFound)
}

func TestProductionDates(t *testing.T) {
	got, err := ProductionDates(fleet(), "Chassis", "C1", "Part", "P-1", "Production Date")
	require.NoError(t, err)
	assert.Equal(t, []string{"2022-03-10"}, got)

	got, err = ProductionDates(fleet(), "Chassis", "C2", "Part", "P-9", "Production Date")
	require.NoError(t, err)
	assert.Equal(t, []string{"2022-05-01"}, got)
}

func TestProductionDates_TextDatesChronological(t *testing.T) {
	tbl := table.MustNew(
		table.TextColumn("Chassis", "C1", "C1", "C1", "C1"),
		table.TextColumn("Part", "P", "P", "P", "P"),
		table.TextColumn("Built", "2023-02-01", "not a date", "2022-12-31", "2023-02-01"),
	)

	got, err := ProductionDates(tbl, "Chassis", "C1", "Part", "P", "Built")
	require.NoError(t, err)
	assert.Equal(t, []string{"2022-12-31", "2023-02-01"}, got)
}

func TestColumnsOfType(t *testing.T) {
	assert.Equal(t, []string{"Production Date"}, ColumnsOfType(fleet(), table.TypeDate))
	assert.Equal(t, []string{"Chassis", "Part", "Alt part"}, ColumnsOfType(fleet(), table.TypeText, table.TypeMixed))
}
