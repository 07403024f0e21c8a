package query

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetlens/backend/internal/aggregate"
	"github.com/fleetlens/backend/internal/apperr"
	"github.com/fleetlens/backend/internal/cache/disk"
	"github.com/fleetlens/backend/internal/cachekey"
	"github.com/fleetlens/backend/internal/domainset"
	"github.com/fleetlens/backend/internal/storage/models"
	"github.com/fleetlens/backend/internal/table"
)

const datasetKey = "select_fleet.csv_1700000000"

type fakeDatasets struct {
	table *table.Table
	gets  int
}

func (f *fakeDatasets) Get(_ context.Context, key string) (*disk.Entry, error) {
	f.gets++
	k, ok := cachekey.Parse(key)
	if !ok || key != datasetKey {
		return nil, apperr.NotFound("unknown dataset %q", key)
	}
	return &disk.Entry{Key: k, Table: f.table, Hit: true}, nil
}

type fakeResults struct {
	data map[string][]byte
}

func (f *fakeResults) GetChart(_ context.Context, datasetKey, fingerprint string, out any) (bool, error) {
	b, ok := f.data[datasetKey+"/"+fingerprint]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, out)
}

func (f *fakeResults) SetChart(_ context.Context, datasetKey, fingerprint string, result any, _ time.Duration) error {
	b, err := json.Marshal(result)
	if err != nil {
		return err
	}
	f.data[datasetKey+"/"+fingerprint] = b
	return nil
}

type fakeHistory struct {
	records []models.ChartRecord
}

func (f *fakeHistory) InsertChartRecord(r *models.ChartRecord) error {
	f.records = append(f.records, *r)
	return nil
}

func parts() *table.Table {
	return table.MustNew(
		table.TextColumn("Chassis", "C1", "C1", "C2", "C3"),
		table.TextColumn("Part", "A", "B", "A", "A"),
		table.TextColumn("Alt Part", "", "", "B", "C"),
	)
}

func oneD(x string) ChartRequest {
	return ChartRequest{DatasetKey: datasetKey, Query: aggregate.Descriptor{Type: "1d", X: x}}
}

func TestChart_ComputesAndRecords(t *testing.T) {
	history := &fakeHistory{}
	e := NewEngine(&fakeDatasets{table: parts()}, history)

	var stages []string
	resp, err := e.ChartWithProgress(context.Background(), oneD("Part"), func(s string) { stages = append(stages, s) })
	require.NoError(t, err)

	assert.Equal(t, []string{"Part", "Count"}, resp.Result.Columns)
	require.Len(t, resp.Result.Rows, 2)
	assert.Equal(t, "A", resp.Result.Rows[0][0].String())
	assert.Equal(t, 3.0, resp.Result.Rows[0][1].Num())
	assert.Equal(t, []string{StageLoading, StageAggregating, StageDone}, stages)

	require.Len(t, history.records, 1)
	assert.Equal(t, "ok", history.records[0].Status)
	assert.Equal(t, resp.ID, history.records[0].ID)
	assert.Equal(t, 2, history.records[0].RowCount)
	assert.JSONEq(t, `{"type":"1d","x":"Part"}`, history.records[0].Query)
}

func TestChart_ResultCache(t *testing.T) {
	datasets := &fakeDatasets{table: parts()}
	e := NewEngine(datasets, nil).WithResultCache(&fakeResults{data: map[string][]byte{}}, time.Minute)

	first, err := e.Chart(context.Background(), oneD("Part"))
	require.NoError(t, err)
	assert.False(t, first.CacheHit)

	second, err := e.Chart(context.Background(), oneD("Part"))
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, 1, datasets.gets)
	assert.Equal(t, first.Result.Columns, second.Result.Columns)
	assert.Equal(t, first.Result.Rows[0][0].String(), second.Result.Rows[0][0].String())

	_, err = e.Chart(context.Background(), oneD("Chassis"))
	require.NoError(t, err)
	assert.Equal(t, 2, datasets.gets)
}

func TestChart_Outcomes(t *testing.T) {
	history := &fakeHistory{}
	e := NewEngine(&fakeDatasets{table: parts()}, history)

	tests := []struct {
		name string
		req  ChartRequest
		kind apperr.Kind
	}{
		{"no dataset", ChartRequest{Query: aggregate.Descriptor{Type: "1d", X: "Part"}}, apperr.KindBadQuery},
		{"unknown type", ChartRequest{DatasetKey: datasetKey, Query: aggregate.Descriptor{Type: "4d"}}, apperr.KindBadQuery},
		{"unknown dataset", ChartRequest{DatasetKey: "select_other.csv_1", Query: aggregate.Descriptor{Type: "1d", X: "Part"}}, apperr.KindNotFound},
		{"missing column", oneD("Colour"), apperr.KindComputation},
		{"filtered empty", ChartRequest{DatasetKey: datasetKey, Query: aggregate.Descriptor{Type: "1d", X: "Part", XFilter: []string{"Z"}}}, apperr.KindEmptyResult},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Chart(context.Background(), tt.req)
			assert.Equal(t, tt.kind, apperr.KindOf(err))
		})
	}

	require.Len(t, history.records, len(tests))
	assert.Equal(t, "empty_result", history.records[len(tests)-1].Status)
}

func TestDomain(t *testing.T) {
	e := NewEngine(&fakeDatasets{table: parts()}, nil)

	opts, err := e.Domain(context.Background(), datasetKey, DomainRequest{Columns: []string{"Part", "Alt Part"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, labels(opts))

	opts, err = e.Domain(context.Background(), datasetKey, DomainRequest{
		Columns: []string{"Chassis"},
		Equals:  map[string]string{"Part": "A"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"C1", "C2", "C3"}, labels(opts))

	opts, err = e.Domain(context.Background(), datasetKey, DomainRequest{
		Columns:    []string{"Chassis"},
		AnyColumns: []string{"Part", "Alt Part"},
		AnyValues:  []string{"B"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"C1", "C2"}, labels(opts))

	_, err = e.Domain(context.Background(), datasetKey, DomainRequest{})
	assert.Equal(t, apperr.KindBadQuery, apperr.KindOf(err))

	_, err = e.Domain(context.Background(), datasetKey, DomainRequest{
		Columns: []string{"Chassis"},
		Equals:  map[string]string{"Colour": "red"},
	})
	assert.Equal(t, apperr.KindBadQuery, apperr.KindOf(err))
}

func TestColumns(t *testing.T) {
	e := NewEngine(&fakeDatasets{table: parts()}, nil)
	groups, err := e.Columns(context.Background(), datasetKey)
	require.NoError(t, err)
	assert.Equal(t, []string{"Chassis", "Part", "Alt Part"}, groups.All)
	assert.Empty(t, groups.Dates)
}

func labels(opts []domainset.Option) []string {
	out := make([]string, len(opts))
	for i, o := range opts {
		out[i] = o.Label
	}
	return out
}
