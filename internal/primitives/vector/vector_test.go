package vector

import (
	"testing"
	"time"

	"github.com/stratadb/strata/internal/config"
	"github.com/stratadb/strata/internal/key"
	"github.com/stratadb/strata/internal/recovery"
	"github.com/stratadb/strata/internal/store"
	"github.com/stratadb/strata/internal/txn"
	"github.com/stratadb/strata/internal/value"
	"github.com/stratadb/strata/internal/wal"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := store.New(8)
	w, err := wal.NewWriter(config.WALConfig{
		Dir:           t.TempDir(),
		Durability:    config.Strict,
		FlushInterval: time.Millisecond,
		MaxBatchSize:  1,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	return New(txn.NewManager(s, w, nil))
}

func TestCreateCollectionAndInsert(t *testing.T) {
	s := newTestStore(t)
	run := key.NewRunId()

	_, err := s.CreateCollection(run, "docs", VectorConfig{Dimension: 3, Metric: Cosine, Dtype: Float32})
	require.NoError(t, err)

	id0, _, err := s.Insert(run, "docs", []float64{1, 0, 0}, value.Object{"label": value.String("a")})
	require.NoError(t, err)
	require.Equal(t, uint64(0), id0)

	id1, _, err := s.Insert(run, "docs", []float64{0, 1, 0}, nil)
	require.NoError(t, err)
	require.Equal(t, uint64(1), id1)

	got, err := s.Get(run, "docs", id0)
	require.NoError(t, err)
	require.InDeltaSlice(t, []float64{1, 0, 0}, got.Vector, 1e-5)
	require.Equal(t, value.String("a"), got.Metadata["label"])
}

func TestInsertRejectsDimensionMismatch(t *testing.T) {
	s := newTestStore(t)
	run := key.NewRunId()
	_, err := s.CreateCollection(run, "docs", VectorConfig{Dimension: 3, Metric: Cosine, Dtype: Float32})
	require.NoError(t, err)

	_, _, err = s.Insert(run, "docs", []float64{1, 2}, nil)
	require.Error(t, err)
}

func TestSearchReturnsNearestFirst(t *testing.T) {
	s := newTestStore(t)
	run := key.NewRunId()
	_, err := s.CreateCollection(run, "docs", VectorConfig{Dimension: 2, Metric: Euclidean, Dtype: Float32})
	require.NoError(t, err)

	idA, _, err := s.Insert(run, "docs", []float64{0, 0}, nil)
	require.NoError(t, err)
	idB, _, err := s.Insert(run, "docs", []float64{10, 10}, nil)
	require.NoError(t, err)

	matches, err := s.Search(run, "docs", []float64{1, 1}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	require.Equal(t, idA, matches[0].ID)
	require.Equal(t, idB, matches[1].ID)
}

func TestDeleteNeverReusesID(t *testing.T) {
	s := newTestStore(t)
	run := key.NewRunId()
	_, err := s.CreateCollection(run, "docs", VectorConfig{Dimension: 1, Metric: Cosine, Dtype: Float32})
	require.NoError(t, err)

	id0, _, err := s.Insert(run, "docs", []float64{1}, nil)
	require.NoError(t, err)
	_, err = s.Delete(run, "docs", id0)
	require.NoError(t, err)

	id1, _, err := s.Insert(run, "docs", []float64{2}, nil)
	require.NoError(t, err)
	require.NotEqual(t, id0, id1)
	require.Greater(t, id1, id0)
}

func TestListCollectionsExcludesEntries(t *testing.T) {
	s := newTestStore(t)
	run := key.NewRunId()
	_, err := s.CreateCollection(run, "docs", VectorConfig{Dimension: 1, Metric: Cosine, Dtype: Float32})
	require.NoError(t, err)
	_, _, err = s.Insert(run, "docs", []float64{1}, nil)
	require.NoError(t, err)

	cols, err := s.ListCollections(run)
	require.NoError(t, err)
	require.Len(t, cols, 1)
	require.Equal(t, "docs", cols[0].Name)
}

func TestRecoveryParticipantRebuildsIndex(t *testing.T) {
	s := newTestStore(t)
	run := key.NewRunId()
	_, err := s.CreateCollection(run, "docs", VectorConfig{Dimension: 2, Metric: Cosine, Dtype: Float32})
	require.NoError(t, err)
	id0, _, err := s.Insert(run, "docs", []float64{1, 0}, nil)
	require.NoError(t, err)

	fresh := New(s.mgr)
	participant := fresh.RecoveryParticipant()
	require.NoError(t, participant([]recovery.Entry{
		{Key: collKey(run, "docs"), Value: encodeCollection(CollectionInfo{Name: "docs", Config: VectorConfig{Dimension: 2, Metric: Cosine, Dtype: Float32}, NextID: 1}), Version: 1},
		{Key: entryKey(run, "docs", id0), Value: encodeEntry(id0, []float64{1, 0}, nil, Float32), Version: 1},
	}))

	matches, err := fresh.Search(run, "docs", []float64{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.Equal(t, id0, matches[0].ID)
}
