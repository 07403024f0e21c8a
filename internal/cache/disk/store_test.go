package disk

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetlens/backend/internal/apperr"
	"github.com/fleetlens/backend/internal/cachekey"
	"github.com/fleetlens/backend/internal/storage/models"
	"github.com/fleetlens/backend/internal/table"
)

type fakeRegistry struct {
	upserted []string
	touched  []string
	deleted  []string
}

func (f *fakeRegistry) UpsertCacheEntry(e *models.CacheEntry) error {
	f.upserted = append(f.upserted, e.Key)
	return nil
}

func (f *fakeRegistry) TouchCacheEntry(key string, _ time.Time) error {
	f.touched = append(f.touched, key)
	return nil
}

func (f *fakeRegistry) DeleteCacheEntry(key string) error {
	f.deleted = append(f.deleted, key)
	return nil
}

func newTestStore(t *testing.T, compression string) (*Store, *fakeRegistry) {
	t.Helper()
	reg := &fakeRegistry{}
	s, err := NewStore(Options{Dir: t.TempDir(), Compression: compression, MemoryEntries: 4, Registry: reg})
	require.NoError(t, err)
	return s, reg
}

func fleetTable() *table.Table {
	return table.MustNew(
		table.TextColumn("Chassis", " C1 ", "C2", "C3"),
		table.TextColumn("Repair date", "2023-01-05", "2023-02-10", "bad"),
		table.NumberColumn("Cost", 10, 20.5, 30),
	)
}

type countingLoader struct {
	calls int
	table *table.Table
	err   error
}

func (c *countingLoader) load() (*table.Table, error) {
	c.calls++
	return c.table, c.err
}

func selected(name string, mtime int64) cachekey.Source {
	return cachekey.Source{Kind: cachekey.Selected, Name: name, ModTime: time.Unix(mtime, 0)}
}

func entryFiles(t *testing.T, dir string) []string {
	t.Helper()
	des, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, de := range des {
		names = append(names, de.Name())
	}
	sort.Strings(names)
	return names
}

func TestGetOrBuild_MissThenHit(t *testing.T) {
	s, reg := newTestStore(t, CompressionNone)
	ctx := context.Background()
	l := &countingLoader{table: fleetTable()}

	first, err := s.GetOrBuild(ctx, selected("fleet.csv", 100), l.load)
	require.NoError(t, err)
	assert.False(t, first.Hit)
	assert.Equal(t, "select_fleet.csv_100", first.Key.String())
	assert.FileExists(t, first.Path)

	info, err := os.Stat(first.Path)
	require.NoError(t, err)

	second, err := s.GetOrBuild(ctx, selected("fleet.csv", 100), l.load)
	require.NoError(t, err)
	assert.True(t, second.Hit)
	assert.Equal(t, 1, l.calls)

	after, err := os.Stat(first.Path)
	require.NoError(t, err)
	assert.Equal(t, info.ModTime(), after.ModTime(), "a hit must not rewrite the entry")

	assert.Equal(t, []string{"select_fleet.csv_100"}, reg.upserted)
	assert.Equal(t, []string{"select_fleet.csv_100"}, reg.touched)
}

func TestGetOrBuild_Normalizes(t *testing.T) {
	s, _ := newTestStore(t, CompressionNone)
	e, err := s.GetOrBuild(context.Background(), selected("fleet.csv", 1), (&countingLoader{table: fleetTable()}).load)
	require.NoError(t, err)

	dates, err := e.Table.Column("Repair date")
	require.NoError(t, err)
	assert.Equal(t, table.TypeDate, dates.Type)
	assert.True(t, dates.Values[2].IsNull())

	chassis, err := e.Table.Column("Chassis")
	require.NoError(t, err)
	assert.Equal(t, "C1", chassis.Values[0].Str())
}

func TestGetOrBuild_SweepsStaleSelected(t *testing.T) {
	s, reg := newTestStore(t, CompressionXZ)
	ctx := context.Background()
	l := &countingLoader{table: fleetTable()}

	_, err := s.GetOrBuild(ctx, selected("fleet.csv", 100), l.load)
	require.NoError(t, err)
	_, err = s.GetOrBuild(ctx, cachekey.UploadedSource("fleet.csv", []byte("x")), l.load)
	require.NoError(t, err)
	_, err = s.GetOrBuild(ctx, selected("fleet.csv", 200), l.load)
	require.NoError(t, err)

	files := entryFiles(t, s.Dir())
	assert.Contains(t, files, "select_fleet.csv_200.tbl.xz")
	assert.NotContains(t, files, "select_fleet.csv_100.tbl.xz")
	assert.Len(t, files, 2, "upload entry must survive: %v", files)
	assert.Equal(t, 3, l.calls)
	assert.Equal(t, []string{"select_fleet.csv_100"}, reg.deleted)
}

func TestGetOrBuild_SweepMatchesExactName(t *testing.T) {
	s, _ := newTestStore(t, CompressionNone)
	ctx := context.Background()
	l := &countingLoader{table: fleetTable()}

	_, err := s.GetOrBuild(ctx, selected("a_b", 1), l.load)
	require.NoError(t, err)
	_, err = s.GetOrBuild(ctx, selected("a", 1), l.load)
	require.NoError(t, err)
	_, err = s.GetOrBuild(ctx, selected("a", 2), l.load)
	require.NoError(t, err)

	assert.Equal(t, []string{"select_a_2.tbl", "select_a_b_1.tbl"}, entryFiles(t, s.Dir()))
}

func TestGetOrBuild_CompressionChangeReplacesOldFile(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	l := &countingLoader{table: fleetTable()}

	plain, err := NewStore(Options{Dir: dir, Compression: CompressionNone})
	require.NoError(t, err)
	_, err = plain.GetOrBuild(ctx, selected("fleet.csv", 5), l.load)
	require.NoError(t, err)

	packed, err := NewStore(Options{Dir: dir, Compression: CompressionXZ})
	require.NoError(t, err)
	_, err = packed.GetOrBuild(ctx, selected("fleet.csv", 5), l.load)
	require.NoError(t, err)

	assert.Equal(t, []string{"select_fleet.csv_5.tbl.xz"}, entryFiles(t, dir))
}

func TestGetOrBuild_LoadErrorWritesNothing(t *testing.T) {
	s, _ := newTestStore(t, CompressionXZ)
	cause := errors.New("corrupt workbook")

	_, err := s.GetOrBuild(context.Background(), selected("fleet.xlsx", 1), (&countingLoader{err: cause}).load)
	require.Error(t, err)
	assert.Equal(t, apperr.KindLoad, apperr.KindOf(err))
	assert.ErrorIs(t, err, cause)
	assert.Empty(t, entryFiles(t, s.Dir()))
}

func TestGetOrBuild_FailedRebuildKeepsOldEntry(t *testing.T) {
	s, _ := newTestStore(t, CompressionNone)
	ctx := context.Background()

	_, err := s.GetOrBuild(ctx, selected("fleet.csv", 1), (&countingLoader{table: fleetTable()}).load)
	require.NoError(t, err)

	_, err = s.GetOrBuild(ctx, selected("fleet.csv", 2), (&countingLoader{err: errors.New("locked")}).load)
	require.Error(t, err)
	assert.Equal(t, []string{"select_fleet.csv_1.tbl"}, entryFiles(t, s.Dir()))
}

func TestGetOrBuild_EmptyName(t *testing.T) {
	s, _ := newTestStore(t, CompressionNone)
	_, err := s.GetOrBuild(context.Background(), cachekey.UploadedSource("../", []byte("a")), (&countingLoader{table: fleetTable()}).load)
	assert.Equal(t, apperr.KindLoad, apperr.KindOf(err))
}

func TestGetOrBuild_CorruptEntryIsRebuilt(t *testing.T) {
	s, _ := newTestStore(t, CompressionNone)
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "select_fleet.csv_7.tbl"), []byte("garbage"), 0o644))

	l := &countingLoader{table: fleetTable()}
	e, err := s.GetOrBuild(context.Background(), selected("fleet.csv", 7), l.load)
	require.NoError(t, err)
	assert.False(t, e.Hit)
	assert.Equal(t, 1, l.calls)
	assert.Equal(t, 3, e.Table.NumRows())
}

func TestRoundTrip_PreservesTypes(t *testing.T) {
	for _, compression := range []string{CompressionNone, CompressionXZ} {
		t.Run(compression, func(t *testing.T) {
			dir := t.TempDir()
			ctx := context.Background()
			writer, err := NewStore(Options{Dir: dir, Compression: compression})
			require.NoError(t, err)
			built, err := writer.GetOrBuild(ctx, selected("fleet.csv", 3), (&countingLoader{table: fleetTable()}).load)
			require.NoError(t, err)

			// no memory layer: the table must come from disk
			reader, err := NewStore(Options{Dir: dir, Compression: compression})
			require.NoError(t, err)
			got, err := reader.Get(ctx, built.Key.String())
			require.NoError(t, err)

			require.Equal(t, built.Table.ColumnNames(), got.Table.ColumnNames())
			for _, want := range built.Table.Columns() {
				col, err := got.Table.Column(want.Name)
				require.NoError(t, err)
				assert.Equal(t, want.Type, col.Type, want.Name)
				require.Len(t, col.Values, len(want.Values))
				for i := range want.Values {
					assert.True(t, want.Values[i].Equal(col.Values[i]), "%s[%d]: %v != %v", want.Name, i, want.Values[i], col.Values[i])
				}
			}
		})
	}
}

func TestRoundTrip_DatesWithOffsetMatchBuiltTable(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	raw := table.MustNew(table.TextColumn("Built", "2023-01-31T22:00:00-05:00", "2023-03-01T08:15:00+02:00"))

	writer, err := NewStore(Options{Dir: dir, Compression: CompressionNone})
	require.NoError(t, err)
	built, err := writer.GetOrBuild(ctx, selected("offsets.csv", 5), (&countingLoader{table: raw}).load)
	require.NoError(t, err)
	require.False(t, built.Hit)

	reader, err := NewStore(Options{Dir: dir, Compression: CompressionNone})
	require.NoError(t, err)
	got, err := reader.Get(ctx, built.Key.String())
	require.NoError(t, err)

	want, err := built.Table.Column("Built")
	require.NoError(t, err)
	col, err := got.Table.Column("Built")
	require.NoError(t, err)
	require.Equal(t, table.TypeDate, col.Type)

	for i, label := range []string{"2023-02-01 03:00:00", "2023-03-01 06:15:00"} {
		assert.Equal(t, label, want.Values[i].String())
		assert.Equal(t, label, col.Values[i].String())
		assert.Equal(t, want.Values[i].Time().Format("2006-01"), col.Values[i].Time().Format("2006-01"))
	}
}

func TestGet_NotFound(t *testing.T) {
	s, _ := newTestStore(t, CompressionNone)
	ctx := context.Background()

	_, err := s.Get(ctx, "select_fleet.csv_1")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, err = s.Get(ctx, "../../etc/passwd")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestRemove(t *testing.T) {
	var evicted []string
	s, err := NewStore(Options{Dir: t.TempDir(), OnEvict: func(k string) { evicted = append(evicted, k) }})
	require.NoError(t, err)
	ctx := context.Background()

	e, err := s.GetOrBuild(ctx, selected("fleet.csv", 1), (&countingLoader{table: fleetTable()}).load)
	require.NoError(t, err)

	removed, err := s.Remove(ctx, e.Key.String())
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Empty(t, entryFiles(t, s.Dir()))
	assert.Equal(t, []string{"select_fleet.csv_1"}, evicted)

	removed, err = s.Remove(ctx, e.Key.String())
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestSweepUploads(t *testing.T) {
	s, _ := newTestStore(t, CompressionNone)
	ctx := context.Background()
	l := &countingLoader{table: fleetTable()}

	old, err := s.GetOrBuild(ctx, cachekey.UploadedSource("old.csv", []byte("1")), l.load)
	require.NoError(t, err)
	fresh, err := s.GetOrBuild(ctx, cachekey.UploadedSource("fresh.csv", []byte("2")), l.load)
	require.NoError(t, err)
	sel, err := s.GetOrBuild(ctx, selected("fleet.csv", 1), l.load)
	require.NoError(t, err)

	now := time.Now()
	longAgo := now.Add(-72 * time.Hour)
	require.NoError(t, os.Chtimes(old.Path, longAgo, longAgo))
	require.NoError(t, os.Chtimes(sel.Path, longAgo, longAgo))

	removed, err := s.SweepUploads(ctx, 24*time.Hour, now)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.NoFileExists(t, old.Path)
	assert.FileExists(t, fresh.Path)
	assert.FileExists(t, sel.Path)
}

func TestList(t *testing.T) {
	s, _ := newTestStore(t, CompressionNone)
	ctx := context.Background()
	l := &countingLoader{table: fleetTable()}
	_, err := s.GetOrBuild(ctx, selected("b.csv", 1), l.load)
	require.NoError(t, err)
	_, err = s.GetOrBuild(ctx, selected("a.csv", 1), l.load)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "notes.txt"), []byte("x"), 0o644))

	infos, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "a.csv", infos[0].Key.Name)
	assert.Equal(t, "b.csv", infos[1].Key.Name)
	assert.Positive(t, infos[0].Size)
}

func TestNewStore_RejectsUnknownCompression(t *testing.T) {
	_, err := NewStore(Options{Dir: t.TempDir(), Compression: "zstd"})
	assert.Error(t, err)
}

func TestMemoryCache_Evicts(t *testing.T) {
	m := newMemoryCache(2)
	tbl := fleetTable()
	m.put("a", tbl)
	m.put("b", tbl)
	_, ok := m.get("a")
	require.True(t, ok)
	m.put("c", tbl)

	_, ok = m.get("b")
	assert.False(t, ok, "least recently used entry should be evicted")
	_, ok = m.get("a")
	assert.True(t, ok)
	assert.Equal(t, 2, m.len())
}
