package eventlog

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

func TestAppendAssignsMonotoneSequences(t *testing.T) {
	s := newTestStore(t)
	run := key.NewRunId()

	for i := 0; i < 5; i++ {
		seq, _, err := s.Append(run, "log", value.Int(int64(i)), false)
		require.NoError(t, err)
		require.Equal(t, uint64(i), seq)
	}

	rec, err := s.Get(run, "log", 2)
	require.NoError(t, err)
	require.Equal(t, value.Int(2), rec.Payload)
}

func TestRangeReturnsOrdered(t *testing.T) {
	s := newTestStore(t)
	run := key.NewRunId()

	for i := 0; i < 10; i++ {
		_, _, err := s.Append(run, "log", value.Int(int64(i)), false)
		require.NoError(t, err)
	}

	recs, err := s.Range(run, "log", 3, 7)
	require.NoError(t, err)
	require.Len(t, recs, 4)
	for i, r := range recs {
		require.Equal(t, uint64(3+i), r.Seq)
	}
}

func TestLatest(t *testing.T) {
	s := newTestStore(t)
	run := key.NewRunId()

	_, err := s.Latest(run, "empty")
	require.Error(t, err)

	for i := 0; i < 3; i++ {
		_, _, err := s.Append(run, "log", value.Int(int64(i)), false)
		require.NoError(t, err)
	}

	rec, err := s.Latest(run, "log")
	require.NoError(t, err)
	require.Equal(t, uint64(2), rec.Seq)
}

func TestHashChainVerifies(t *testing.T) {
	s := newTestStore(t)
	run := key.NewRunId()

	for i := 0; i < 5; i++ {
		_, _, err := s.Append(run, "chained", value.String("event"), true)
		require.NoError(t, err)
	}

	require.NoError(t, s.VerifyChain(run, "chained"))
}

func TestStreamsAreIndependentPerRunAndName(t *testing.T) {
	s := newTestStore(t)
	runA := key.NewRunId()
	runB := key.NewRunId()

	_, _, err := s.Append(runA, "log", value.Int(1), false)
	require.NoError(t, err)
	_, _, err = s.Append(runB, "log", value.Int(99), false)
	require.NoError(t, err)
	_, _, err = s.Append(runA, "other", value.Int(7), false)
	require.NoError(t, err)

	recsA, err := s.Range(runA, "log", 0, 10)
	require.NoError(t, err)
	require.Len(t, recsA, 1)
	require.Equal(t, value.Int(1), recsA[0].Payload)
}
