package txn

import (
	"testing"
	"time"

	"github.com/stratadb/strata/internal/config"
	"github.com/stratadb/strata/internal/errors"
	"github.com/stratadb/strata/internal/key"
	"github.com/stratadb/strata/internal/store"
	"github.com/stratadb/strata/internal/value"
	"github.com/stratadb/strata/internal/wal"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
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
	return NewManager(s, w, nil)
}

func TestCommitAppliesWrites(t *testing.T) {
	m := newTestManager(t)
	k := key.New(key.NewRunId(), key.TagKV, []byte("a"))

	tx := m.Begin()
	tx.Put(k, value.Int(1), nil)
	require.NoError(t, m.Commit(tx))
	require.Equal(t, Committed, tx.State())

	got := m.store.GetLatest(k)
	require.NotNil(t, got)
	require.Equal(t, value.Int(1), got.Value)
}

func TestReadOnlyTransactionAlwaysCommits(t *testing.T) {
	m := newTestManager(t)
	k := key.New(key.NewRunId(), key.TagKV, []byte("a"))

	tx := m.Begin()
	_, _ = tx.Get(k)
	require.NoError(t, m.Commit(tx))
	require.Equal(t, Committed, tx.State())
}

func TestBlindWritesDoNotConflict(t *testing.T) {
	m := newTestManager(t)
	k := key.New(key.NewRunId(), key.TagKV, []byte("a"))

	tx1 := m.Begin()
	tx1.Put(k, value.Int(1), nil)
	require.NoError(t, m.Commit(tx1))

	tx2 := m.Begin()
	tx2.Put(k, value.Int(2), nil)
	require.NoError(t, m.Commit(tx2))

	got := m.store.GetLatest(k)
	require.Equal(t, value.Int(2), got.Value)
}

func TestReadWriteConflictDetected(t *testing.T) {
	m := newTestManager(t)
	k := key.New(key.NewRunId(), key.TagKV, []byte("a"))

	seed := m.Begin()
	seed.Put(k, value.Int(0), nil)
	require.NoError(t, m.Commit(seed))

	tx1 := m.Begin()
	_, _ = tx1.Get(k)
	tx1.Put(k, value.Int(1), nil)

	tx2 := m.Begin()
	_, _ = tx2.Get(k)
	tx2.Put(k, value.Int(2), nil)

	require.NoError(t, m.Commit(tx1))

	err := m.Commit(tx2)
	require.Error(t, err)
	require.True(t, errors.IsConflict(err))
	require.Equal(t, errors.KindReadWriteConflict, errors.KindOf(err))
	require.Equal(t, Aborted, tx2.State())
}

func TestCASConflictDetected(t *testing.T) {
	m := newTestManager(t)
	k := key.New(key.NewRunId(), key.TagKV, []byte("cell"))

	seed := m.Begin()
	seed.Put(k, value.Int(0), nil)
	require.NoError(t, m.Commit(seed))

	current := m.store.GetLatest(k)
	require.NotNil(t, current)

	tx1 := m.Begin()
	tx1.CompareAndSwap(k, current.Version, value.Int(1))
	require.NoError(t, m.Commit(tx1))

	tx2 := m.Begin()
	tx2.CompareAndSwap(k, current.Version, value.Int(2))
	err := m.Commit(tx2)
	require.Error(t, err)
	require.Equal(t, errors.KindCasConflict, errors.KindOf(err))
}

func TestSnapshotIsolationDuringTransaction(t *testing.T) {
	m := newTestManager(t)
	k := key.New(key.NewRunId(), key.TagKV, []byte("a"))

	seed := m.Begin()
	seed.Put(k, value.Int(1), nil)
	require.NoError(t, m.Commit(seed))

	reader := m.Begin()
	v, ok := reader.Get(k)
	require.True(t, ok)
	require.Equal(t, value.Int(1), v)

	writer := m.Begin()
	writer.Put(k, value.Int(2), nil)
	require.NoError(t, m.Commit(writer))

	v2, ok := reader.Get(k)
	require.True(t, ok)
	require.Equal(t, value.Int(1), v2)
}
