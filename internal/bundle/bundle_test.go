package bundle

import (
	"bytes"
	"testing"
	"time"

	"github.com/stratadb/strata/internal/config"
	"github.com/stratadb/strata/internal/key"
	"github.com/stratadb/strata/internal/primitives/kv"
	"github.com/stratadb/strata/internal/primitives/run"
	"github.com/stratadb/strata/internal/store"
	"github.com/stratadb/strata/internal/txn"
	"github.com/stratadb/strata/internal/value"
	"github.com/stratadb/strata/internal/wal"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*txn.Manager, string) {
	t.Helper()
	s := store.New(8)
	dir := t.TempDir()
	w, err := wal.NewWriter(config.WALConfig{
		Dir:           dir,
		Durability:    config.Strict,
		FlushInterval: time.Millisecond,
		MaxBatchSize:  1,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	return txn.NewManager(s, w, nil), dir
}

func TestExportImportRoundTrip(t *testing.T) {
	mgr, walDir := newTestManager(t)
	runs := run.New(mgr)
	kvs := kv.New(mgr)

	src := key.NewRunId()
	_, err := runs.Create(src, "source")
	require.NoError(t, err)
	_, err = kvs.Put(src, []byte("a"), value.Int(1))
	require.NoError(t, err)
	_, err = kvs.Put(src, []byte("b"), value.String("hello"))
	require.NoError(t, err)
	_, err = runs.Close(src)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Export(mgr, runs, walDir, src, &buf))

	dest := key.NewRunId()
	manifest, err := Import(mgr, runs, dest, &buf)
	require.NoError(t, err)
	require.Equal(t, "source", manifest.Name)
	require.Equal(t, "closed", manifest.Status)
	require.Equal(t, 2, manifest.RecordCount)

	destInfo, err := runs.Get(dest)
	require.NoError(t, err)
	require.Equal(t, run.Closed, destInfo.Status)

	got, err := kvs.Get(dest, []byte("a"))
	require.NoError(t, err)
	require.Equal(t, value.Int(1), got.Value)
	got, err = kvs.Get(dest, []byte("b"))
	require.NoError(t, err)
	require.Equal(t, value.String("hello"), got.Value)

	srcStillThere, err := kvs.Get(src, []byte("a"))
	require.NoError(t, err)
	require.Equal(t, value.Int(1), srcStillThere.Value)
}

func TestImportRejectsGarbage(t *testing.T) {
	mgr, _ := newTestManager(t)
	runs := run.New(mgr)

	_, err := Import(mgr, runs, key.NewRunId(), bytes.NewReader([]byte("not a zstd stream")))
	require.Error(t, err)
}

func TestExportUnknownRunFails(t *testing.T) {
	mgr, dir := newTestManager(t)
	runs := run.New(mgr)

	var buf bytes.Buffer
	err := Export(mgr, runs, dir, key.NewRunId(), &buf)
	require.Error(t, err)
}

func TestImportIntoExistingRunConflicts(t *testing.T) {
	mgr, walDir := newTestManager(t)
	runs := run.New(mgr)

	src := key.NewRunId()
	_, err := runs.Create(src, "r")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Export(mgr, runs, walDir, src, &buf))

	_, err = Import(mgr, runs, src, &buf)
	require.Error(t, err)
}
