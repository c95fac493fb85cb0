package kv

import (
	"testing"
	"time"

	"github.com/stratadb/strata/internal/config"
	"github.com/stratadb/strata/internal/key"
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

func TestPutGetDelete(t *testing.T) {
	s := newTestStore(t)
	run := key.NewRunId()

	v1, err := s.Put(run, []byte("a"), value.Int(1))
	require.NoError(t, err)

	got, err := s.Get(run, []byte("a"))
	require.NoError(t, err)
	require.Equal(t, value.Int(1), got.Value)
	require.Equal(t, v1, got.Version)

	v2, err := s.Delete(run, []byte("a"))
	require.NoError(t, err)
	require.Greater(t, v2, v1)

	_, err = s.Get(run, []byte("a"))
	require.Error(t, err)
}

func TestGetAtReturnsHistoricalVersion(t *testing.T) {
	s := newTestStore(t)
	run := key.NewRunId()

	v1, err := s.Put(run, []byte("k"), value.Int(1))
	require.NoError(t, err)
	v2, err := s.Put(run, []byte("k"), value.Int(2))
	require.NoError(t, err)
	require.Greater(t, v2, v1)

	at1, err := s.GetAt(run, []byte("k"), v1)
	require.NoError(t, err)
	require.Equal(t, value.Int(1), at1.Value)

	latest, err := s.Get(run, []byte("k"))
	require.NoError(t, err)
	require.Equal(t, value.Int(2), latest.Value)
}

func TestBatchPutAndGet(t *testing.T) {
	s := newTestStore(t)
	run := key.NewRunId()

	_, err := s.BatchPut(run, []Item{
		{Key: []byte("a"), Value: value.Int(1)},
		{Key: []byte("b"), Value: value.Int(2)},
	})
	require.NoError(t, err)

	out := s.BatchGet(run, [][]byte{[]byte("a"), []byte("b"), []byte("missing")})
	require.Len(t, out, 2)
	require.Equal(t, value.Int(1), out["a"].Value)
	require.Equal(t, value.Int(2), out["b"].Value)
}

func TestIncrementFromAbsentKey(t *testing.T) {
	s := newTestStore(t)
	run := key.NewRunId()

	nv, _, err := s.Increment(run, []byte("counter"), 5)
	require.NoError(t, err)
	require.Equal(t, int64(5), nv)

	nv, _, err = s.Increment(run, []byte("counter"), 3)
	require.NoError(t, err)
	require.Equal(t, int64(8), nv)

	got, err := s.Get(run, []byte("counter"))
	require.NoError(t, err)
	require.Equal(t, value.Int(8), got.Value)
}

func TestPutTTLExpires(t *testing.T) {
	s := newTestStore(t)
	run := key.NewRunId()
	past := time.Now().Add(-time.Minute)

	_, err := s.PutTTL(run, []byte("ephemeral"), value.Int(1), &past)
	require.NoError(t, err)

	_, err = s.Get(run, []byte("ephemeral"))
	require.Error(t, err)
}

func TestScanWithCursor(t *testing.T) {
	s := newTestStore(t)
	run := key.NewRunId()

	for _, k := range []string{"a", "b", "c", "d", "e"} {
		_, err := s.Put(run, []byte(k), value.String(k))
		require.NoError(t, err)
	}

	page1, cursor, err := s.Scan(run, nil, nil, 2)
	require.NoError(t, err)
	require.Len(t, page1, 2)
	require.Equal(t, []byte("a"), page1[0].Key)
	require.Equal(t, []byte("b"), page1[1].Key)
	require.NotNil(t, cursor)

	page2, cursor2, err := s.Scan(run, nil, cursor, 2)
	require.NoError(t, err)
	require.Len(t, page2, 2)
	require.Equal(t, []byte("c"), page2[0].Key)
	require.Equal(t, []byte("d"), page2[1].Key)

	page3, cursor3, err := s.Scan(run, nil, cursor2, 2)
	require.NoError(t, err)
	require.Len(t, page3, 1)
	require.Equal(t, []byte("e"), page3[0].Key)
	require.Nil(t, cursor3)
}

func TestScanRespectsRunIsolation(t *testing.T) {
	s := newTestStore(t)
	runA := key.NewRunId()
	runB := key.NewRunId()

	_, err := s.Put(runA, []byte("k"), value.Int(1))
	require.NoError(t, err)
	_, err = s.Put(runB, []byte("k"), value.Int(2))
	require.NoError(t, err)

	items, _, err := s.Scan(runA, nil, nil, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, value.Int(1), items[0].Value.Value)
}
