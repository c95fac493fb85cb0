package engine

import (
	"path/filepath"
	"testing"

	"github.com/stratadb/strata/internal/config"
	"github.com/stratadb/strata/internal/errors"
	"github.com/stratadb/strata/internal/key"
	"github.com/stratadb/strata/internal/txn"
	"github.com/stratadb/strata/internal/value"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.DataDir = dir
	cfg.WAL.Dir = filepath.Join(dir, "wal")
	cfg.WAL.Durability = config.Strict
	return cfg
}

func TestOpenBeginCommitRoundTrip(t *testing.T) {
	e, err := Open(t.TempDir(), testConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { e.Shutdown() })

	run := key.NewRunId()
	_, err = e.KV.Put(run, []byte("k"), value.Int(42))
	require.NoError(t, err)

	got, err := e.KV.Get(run, []byte("k"))
	require.NoError(t, err)
	require.Equal(t, value.Int(42), got.Value)
}

func TestOpenReturnsSameInstanceForSameDirectory(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.DataDir = dir
	cfg.WAL.Dir = filepath.Join(dir, "wal")

	e1, err := Open(dir, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { e1.Shutdown() })

	e2, err := Open(dir, cfg)
	require.NoError(t, err)
	require.Same(t, e1, e2)
}

func TestCacheIsEphemeralAndIsolated(t *testing.T) {
	e1, err := Cache()
	require.NoError(t, err)
	t.Cleanup(func() { e1.Shutdown() })

	e2, err := Cache()
	require.NoError(t, err)
	t.Cleanup(func() { e2.Shutdown() })

	run := key.NewRunId()
	_, err = e1.KV.Put(run, []byte("k"), value.Int(1))
	require.NoError(t, err)

	_, err = e2.KV.Get(run, []byte("k"))
	require.Error(t, err)
}

// TestBeginAfterShutdownIsRejected reproduces and confirms the fix for
// original_source/audit-tests/tests/issue_856.rs: the raw Begin/Commit
// pair must be gated by the shutdown flag exactly like Transaction is —
// the original bug let begin_transaction succeed after shutdown even
// though the closure API correctly refused.
func TestBeginAfterShutdownIsRejected(t *testing.T) {
	e, err := Open(t.TempDir(), testConfig(t))
	require.NoError(t, err)
	require.NoError(t, e.Shutdown())

	_, err = e.Begin(key.NewRunId())
	require.Error(t, err)
	require.Equal(t, errors.KindShutdown, errors.KindOf(err))
}

func TestTransactionAfterShutdownIsRejected(t *testing.T) {
	e, err := Open(t.TempDir(), testConfig(t))
	require.NoError(t, err)
	require.NoError(t, e.Shutdown())

	_, err = e.Transaction(key.NewRunId(), func(ctx *txn.Context) error { return nil })
	require.Error(t, err)
	require.Equal(t, errors.KindShutdown, errors.KindOf(err))
}

func TestShutdownIsIdempotent(t *testing.T) {
	e, err := Open(t.TempDir(), testConfig(t))
	require.NoError(t, err)
	require.NoError(t, e.Shutdown())
	require.NoError(t, e.Shutdown())
	require.False(t, e.IsOpen())
}

func TestTransactionCommitsAcrossPrimitives(t *testing.T) {
	e, err := Open(t.TempDir(), testConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { e.Shutdown() })

	run := key.NewRunId()
	_, err = e.Transaction(run, func(ctx *txn.Context) error {
		ctx.Put(key.New(run, key.TagKV, []byte("a")), value.Int(1), nil)
		ctx.Put(key.New(run, key.TagJSON, []byte("b")), value.Object{"x": value.Int(1)}, nil)
		return nil
	})
	require.NoError(t, err)

	_, err = e.KV.Get(run, []byte("a"))
	require.NoError(t, err)
	_, err = e.JSON.Get(run, "b")
	require.NoError(t, err)
}

func TestTransactionAbortsOnClosureError(t *testing.T) {
	e, err := Open(t.TempDir(), testConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { e.Shutdown() })

	run := key.NewRunId()
	boom := errors.InvalidInput("boom")
	_, err = e.Transaction(run, func(ctx *txn.Context) error {
		ctx.Put(key.New(run, key.TagKV, []byte("a")), value.Int(1), nil)
		return boom
	})
	require.Error(t, err)

	_, err = e.KV.Get(run, []byte("a"))
	require.Error(t, err)
}

func TestFlushSucceeds(t *testing.T) {
	e, err := Open(t.TempDir(), testConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { e.Shutdown() })

	run := key.NewRunId()
	_, err = e.KV.Put(run, []byte("k"), value.Int(1))
	require.NoError(t, err)
	require.NoError(t, e.Flush())
}

func TestDryRunReflectsPersistedWrites(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.DataDir = dir
	cfg.WAL.Dir = filepath.Join(dir, "wal")
	cfg.WAL.Durability = config.Strict

	e, err := Open(dir, cfg)
	require.NoError(t, err)
	run := key.NewRunId()
	_, err = e.KV.Put(run, []byte("k"), value.Int(1))
	require.NoError(t, err)
	require.NoError(t, e.Shutdown())

	e2, err := Open(dir, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { e2.Shutdown() })

	report, err := e2.DryRun()
	require.NoError(t, err)
	require.NotNil(t, report)

	got, err := e2.KV.Get(run, []byte("k"))
	require.NoError(t, err)
	require.Equal(t, value.Int(1), got.Value)
}
