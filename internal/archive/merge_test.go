package archive

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var kpKey = Key{Columns: []string{"datetime"}, Policy: TimeUTC}

var goesKey = Key{Columns: []string{"time_tag", "satellite", "energy"}, Policy: TimeUTC}

func kpBatch(rows ...[]string) *Table {
	t := NewTable("datetime", "Kp", "status")
	for _, r := range rows {
		t.Append(r...)
	}
	return t
}

func mergeFile(t *testing.T, s *Store, name string, batch *Table, key Key) MergeResult {
	t.Helper()
	res, err := s.Merge(name, batch, key)
	require.NoError(t, err)
	return res
}

func loadFile(t *testing.T, s *Store, name string) *Table {
	t.Helper()
	tbl, err := s.Load(name)
	require.NoError(t, err)
	require.NotNil(t, tbl)
	return tbl
}

func assertUniqueSorted(t *testing.T, tbl *Table, key Key) {
	t.Helper()
	seen := map[string]bool{}
	var prev string
	for i := range tbl.Rows {
		id := ""
		for _, c := range key.Columns {
			id += tbl.Value(i, c) + "|"
		}
		assert.False(t, seen[id], "duplicate key %s", id)
		seen[id] = true

		ts := tbl.Value(i, key.Columns[0])
		if i > 0 {
			assert.LessOrEqual(t, prev, ts, "row %d out of order", i)
		}
		prev = ts
	}
}

func TestMergeIdempotent(t *testing.T) {
	s := NewStore(t.TempDir())
	batch := kpBatch(
		[]string{"2025-06-01T03:00:00Z", "2.333", "def"},
		[]string{"2025-06-01T00:00:00Z", "1.667", "def"},
	)

	mergeFile(t, s, "kp.csv", batch.Clone(), kpKey)
	once := loadFile(t, s, "kp.csv")

	mergeFile(t, s, "kp.csv", batch.Clone(), kpKey)
	twice := loadFile(t, s, "kp.csv")

	assert.Equal(t, once, twice)
	assert.Equal(t, 2, twice.Len())
}

func TestMergeNoDuplicatesAcrossOverlappingBatches(t *testing.T) {
	s := NewStore(t.TempDir())
	mergeFile(t, s, "kp.csv", kpBatch(
		[]string{"2025-06-01T00:00:00Z", "1", "def"},
		[]string{"2025-06-01T03:00:00Z", "2", "def"},
		[]string{"2025-06-01T06:00:00Z", "3", "def"},
	), kpKey)
	mergeFile(t, s, "kp.csv", kpBatch(
		[]string{"2025-06-01T06:00:00Z", "3", "def"},
		[]string{"2025-06-01T09:00:00Z", "4", "def"},
		[]string{"2025-06-01T03:00:00Z", "2", "def"},
		[]string{"2025-06-01T09:00:00Z", "4", "def"},
	), kpKey)

	tbl := loadFile(t, s, "kp.csv")
	assert.Equal(t, 4, tbl.Len())
	assertUniqueSorted(t, tbl, kpKey)
}

func TestMergeSortsByTemporalKey(t *testing.T) {
	s := NewStore(t.TempDir())
	mergeFile(t, s, "kp.csv", kpBatch(
		[]string{"2025-06-02T00:00:00Z", "5", "def"},
		[]string{"2025-05-31T21:00:00Z", "4", "def"},
	), kpKey)
	mergeFile(t, s, "kp.csv", kpBatch(
		[]string{"2025-06-01T12:00:00Z", "3", "def"},
	), kpKey)

	tbl := loadFile(t, s, "kp.csv")
	assert.Equal(t, []string{
		"2025-05-31 21:00:00",
		"2025-06-01 12:00:00",
		"2025-06-02 00:00:00",
	}, tbl.Column("datetime"))
}

func TestMergeExistingValueWinsOnCollision(t *testing.T) {
	s := NewStore(t.TempDir())
	mergeFile(t, s, "kp.csv", kpBatch([]string{"2025-06-01T00:00:00Z", "1.000", "nowcast"}), kpKey)
	res := mergeFile(t, s, "kp.csv", kpBatch([]string{"2025-06-01T00:00:00Z", "5.333", "def"}), kpKey)

	assert.Equal(t, 1, res.Fetched)
	assert.Equal(t, 0, res.Kept.Len(), "a losing incoming row is not kept")
	tbl := loadFile(t, s, "kp.csv")
	require.Equal(t, 1, tbl.Len())
	assert.Equal(t, "1.000", tbl.Value(0, "Kp"))
	assert.Equal(t, "nowcast", tbl.Value(0, "status"))
}

func TestMergeKeptRows(t *testing.T) {
	s := NewStore(t.TempDir())
	mergeFile(t, s, "kp.csv", kpBatch([]string{"2025-06-01T00:00:00Z", "1.000", "nowcast"}), kpKey)
	res := mergeFile(t, s, "kp.csv", kpBatch(
		[]string{"2025-06-01T06:00:00Z", "3.000", "def"},
		[]string{"2025-06-01T00:00:00Z", "5.333", "def"},
		[]string{"2025-06-01T03:00:00Z", "2.000", "def"},
		[]string{"2025-06-01T03:00:00Z", "4.000", "def"},
	), kpKey)

	assert.Equal(t, []string{"datetime", "Kp", "status"}, res.Kept.Columns)
	assert.Equal(t, []string{"2025-06-01 03:00:00", "2025-06-01 06:00:00"}, res.Kept.Column("datetime"))
	assert.Equal(t, []string{"2.000", "3.000"}, res.Kept.Column("Kp"))
}

func TestMergePreferIncomingReplacesValue(t *testing.T) {
	key := kpKey
	key.Collision = PreferIncoming

	s := NewStore(t.TempDir())
	mergeFile(t, s, "kp.csv", kpBatch(
		[]string{"2025-06-01T00:00:00Z", "1.000", "nowcast"},
		[]string{"2025-06-01T03:00:00Z", "2.000", "nowcast"},
	), key)
	res := mergeFile(t, s, "kp.csv", kpBatch([]string{"2025-06-01T00:00:00Z", "5.333", "def"}), key)
	require.Equal(t, 1, res.Kept.Len())
	assert.Equal(t, "5.333", res.Kept.Value(0, "Kp"))

	tbl := loadFile(t, s, "kp.csv")
	require.Equal(t, 2, tbl.Len())
	assert.Equal(t, "5.333", tbl.Value(0, "Kp"))
	assert.Equal(t, "2.000", tbl.Value(1, "Kp"))
}

func TestMergeDropsUnparseableTimestamps(t *testing.T) {
	s := NewStore(t.TempDir())
	res := mergeFile(t, s, "kp.csv", kpBatch(
		[]string{"not-a-date", "9", "def"},
		[]string{"2025-06-01T00:00:00Z", "1", "def"},
		[]string{"", "8", "def"},
	), kpKey)

	assert.Equal(t, 3, res.Fetched)
	assert.Equal(t, 2, res.Invalid)
	assert.Equal(t, 1, res.Total)

	tbl := loadFile(t, s, "kp.csv")
	require.Equal(t, 1, tbl.Len())
	assert.Equal(t, "2025-06-01 00:00:00", tbl.Value(0, "datetime"))
}

func TestMergeUTCAndNaiveTimestampsShareKey(t *testing.T) {
	s := NewStore(t.TempDir())
	mergeFile(t, s, "kp.csv", kpBatch([]string{"2025-06-01T12:00:00Z", "2", "def"}), kpKey)
	mergeFile(t, s, "kp.csv", kpBatch([]string{"2025-06-01 12:00:00", "7", "def"}), kpKey)

	tbl := loadFile(t, s, "kp.csv")
	require.Equal(t, 1, tbl.Len())
	assert.Equal(t, "2025-06-01 12:00:00", tbl.Value(0, "datetime"))
	assert.Equal(t, "2", tbl.Value(0, "Kp"))
}

func TestMergeCompositeKeyKeepsDistinctSatellites(t *testing.T) {
	s := NewStore(t.TempDir())
	batch := NewTable("time_tag", "satellite", "energy", "flux")
	batch.Append("2025-01-01T00:00:00Z", "18", ">=10 MeV", "0.31")
	batch.Append("2025-01-01T00:00:00Z", "19", ">=10 MeV", "0.29")
	batch.Append("2025-01-01T00:00:00Z", "18", ">=100 MeV", "0.05")
	mergeFile(t, s, "goes.csv", batch, goesKey)

	again := NewTable("time_tag", "satellite", "energy", "flux")
	again.Append("2025-01-01T00:00:00Z", "19", ">=10 MeV", "0.99")
	mergeFile(t, s, "goes.csv", again, goesKey)

	tbl := loadFile(t, s, "goes.csv")
	require.Equal(t, 3, tbl.Len())
	assert.Equal(t, []string{"18", "19", "18"}, tbl.Column("satellite"))
	assert.Equal(t, "0.29", tbl.Value(1, "flux"))
	assertUniqueSorted(t, tbl, goesKey)
}

func TestMergeEmptyBatchLeavesArchiveUnchanged(t *testing.T) {
	s := NewStore(t.TempDir())
	mergeFile(t, s, "kp.csv", kpBatch(
		[]string{"2025-06-01T03:00:00Z", "2", "def"},
		[]string{"2025-06-01T00:00:00Z", "1", "def"},
	), kpKey)
	before := loadFile(t, s, "kp.csv")

	res := mergeFile(t, s, "kp.csv", kpBatch(), kpKey)
	assert.Equal(t, 0, res.Fetched)
	assert.Equal(t, before, loadFile(t, s, "kp.csv"))
}

func TestMergeIntoMissingArchiveCreatesSortedDedupedBatch(t *testing.T) {
	s := NewStore(t.TempDir())
	res := mergeFile(t, s, filepath.Join("kp", "new.csv"), kpBatch(
		[]string{"2025-06-01T06:00:00Z", "3", "def"},
		[]string{"2025-06-01T00:00:00Z", "1", "def"},
		[]string{"2025-06-01T06:00:00Z", "9", "def"},
	), kpKey)

	assert.Equal(t, 3, res.Fetched)
	assert.Equal(t, 2, res.Total)

	tbl := loadFile(t, s, filepath.Join("kp", "new.csv"))
	assert.Equal(t, []string{"datetime", "Kp", "status"}, tbl.Columns)
	assert.Equal(t, [][]string{
		{"2025-06-01 00:00:00", "1", "def"},
		{"2025-06-01 06:00:00", "3", "def"},
	}, tbl.Rows)
}

func TestMergeBothEmptyKeepsSchema(t *testing.T) {
	merged, res, err := MergeTables(nil, kpBatch(), kpKey)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Total)
	assert.Equal(t, []string{"datetime", "Kp", "status"}, merged.Columns)
	assert.Empty(t, merged.Rows)
}

func TestMergeMissingKeyColumn(t *testing.T) {
	batch := NewTable("when", "Kp")
	batch.Append("2025-06-01T00:00:00Z", "1")

	_, _, err := MergeTables(nil, batch, kpKey)
	assert.ErrorIs(t, err, ErrMissingKey)
}

func TestMergeMissingKeyLeavesArchiveUntouched(t *testing.T) {
	s := NewStore(t.TempDir())
	mergeFile(t, s, "kp.csv", kpBatch([]string{"2025-06-01T00:00:00Z", "1", "def"}), kpKey)
	before := loadFile(t, s, "kp.csv")

	bad := NewTable("when", "Kp")
	bad.Append("2025-06-02T00:00:00Z", "4")
	_, err := s.Merge("kp.csv", bad, kpKey)
	require.Error(t, err)

	assert.Equal(t, before, loadFile(t, s, "kp.csv"))
}

func TestMergeUnionsNewColumns(t *testing.T) {
	existing := NewTable("time_tag", "bt")
	existing.Append("2025-06-01 00:00:00", "4.1")

	incoming := NewTable("time_tag", "bt", "bz_gsm")
	incoming.Append("2025-06-01T01:00:00", "3.9", "-1.2")

	merged, _, err := MergeTables(existing, incoming, Key{Columns: []string{"time_tag"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"time_tag", "bt", "bz_gsm"}, merged.Columns)
	assert.Equal(t, [][]string{
		{"2025-06-01 00:00:00", "4.1", ""},
		{"2025-06-01 01:00:00", "3.9", "-1.2"},
	}, merged.Rows)
}

func TestMergeTablesDoesNotModifyInputs(t *testing.T) {
	incoming := kpBatch([]string{"2025-06-01T00:00:00Z", "1", "def"})
	_, _, err := MergeTables(nil, incoming, kpKey)
	require.NoError(t, err)
	assert.Equal(t, "2025-06-01T00:00:00Z", incoming.Value(0, "datetime"))
}
