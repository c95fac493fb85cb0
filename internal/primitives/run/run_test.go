package run

import (
	"testing"
	"time"

	"github.com/stratadb/strata/internal/config"
	"github.com/stratadb/strata/internal/key"
	"github.com/stratadb/strata/internal/primitives/jsondoc"
	"github.com/stratadb/strata/internal/primitives/kv"
	"github.com/stratadb/strata/internal/primitives/statecell"
	"github.com/stratadb/strata/internal/primitives/vector"
	"github.com/stratadb/strata/internal/store"
	"github.com/stratadb/strata/internal/txn"
	"github.com/stratadb/strata/internal/value"
	"github.com/stratadb/strata/internal/wal"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *txn.Manager {
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
	return txn.NewManager(s, w, nil)
}

func TestCreateThenGet(t *testing.T) {
	s := New(newTestManager(t))
	id := key.NewRunId()
	_, err := s.Create(id, "my-run")
	require.NoError(t, err)

	info, err := s.Get(id)
	require.NoError(t, err)
	require.Equal(t, "my-run", info.Name)
	require.Equal(t, Active, info.Status)
}

func TestCreateTwiceConflicts(t *testing.T) {
	s := New(newTestManager(t))
	id := key.NewRunId()
	_, err := s.Create(id, "my-run")
	require.NoError(t, err)
	_, err = s.Create(id, "my-run")
	require.Error(t, err)
}

func TestLifecycleTransitions(t *testing.T) {
	s := New(newTestManager(t))
	id := key.NewRunId()
	_, err := s.Create(id, "r")
	require.NoError(t, err)

	_, err = s.Close(id)
	require.NoError(t, err)
	info, err := s.Get(id)
	require.NoError(t, err)
	require.Equal(t, Closed, info.Status)

	_, err = s.Archive(id)
	require.NoError(t, err)
	info, err = s.Get(id)
	require.NoError(t, err)
	require.Equal(t, Archived, info.Status)
}

func TestArchivedIsTerminal(t *testing.T) {
	s := New(newTestManager(t))
	id := key.NewRunId()
	_, err := s.Create(id, "r")
	require.NoError(t, err)
	_, err = s.Archive(id)
	require.NoError(t, err)

	_, err = s.Close(id)
	require.Error(t, err)
	_, err = s.Archive(id)
	require.Error(t, err)
}

func TestFailThenArchive(t *testing.T) {
	s := New(newTestManager(t))
	id := key.NewRunId()
	_, err := s.Create(id, "r")
	require.NoError(t, err)
	_, err = s.Fail(id)
	require.NoError(t, err)
	_, err = s.Archive(id)
	require.NoError(t, err)
}

// TestDeleteRunCascadesAcrossPrimitives mirrors spec.md §8 scenario 6:
// deleting a run tombstones its KV, JSON, state cell, and vector data
// while leaving a sibling run untouched.
func TestDeleteRunCascadesAcrossPrimitives(t *testing.T) {
	mgr := newTestManager(t)
	runs := New(mgr)
	kvs := kv.New(mgr)
	docs := jsondoc.New(mgr)
	cells := statecell.New(mgr)
	vecs := vector.New(mgr)

	target := key.NewRunId()
	sibling := key.NewRunId()
	_, err := runs.Create(target, "target")
	require.NoError(t, err)
	_, err = runs.Create(sibling, "sibling")
	require.NoError(t, err)

	for _, run := range []key.RunId{target, sibling} {
		_, err := kvs.Put(run, []byte("k"), value.Int(1))
		require.NoError(t, err)
		_, err = docs.Put(run, "doc", value.Object{"a": value.Int(1)})
		require.NoError(t, err)
		_, err = cells.Create(run, "cell", value.Int(1))
		require.NoError(t, err)
		_, err = vecs.CreateCollection(run, "coll", vector.VectorConfig{Dimension: 1, Metric: vector.Cosine, Dtype: vector.Float32})
		require.NoError(t, err)
		_, _, err = vecs.Insert(run, "coll", []float64{1}, nil)
		require.NoError(t, err)
	}

	require.NoError(t, runs.DeleteRun(target))

	_, err = runs.Get(target)
	require.Error(t, err)
	_, err = kvs.Get(target, []byte("k"))
	require.Error(t, err)
	_, err = docs.Get(target, "doc")
	require.Error(t, err)
	_, err = cells.Get(target, "cell")
	require.Error(t, err)
	_, err = vecs.GetCollection(target, "coll")
	require.Error(t, err)

	siblingInfo, err := runs.Get(sibling)
	require.NoError(t, err)
	require.Equal(t, "sibling", siblingInfo.Name)
	_, err = kvs.Get(sibling, []byte("k"))
	require.NoError(t, err)
	_, err = docs.Get(sibling, "doc")
	require.NoError(t, err)
	_, err = cells.Get(sibling, "cell")
	require.NoError(t, err)
	_, err = vecs.GetCollection(sibling, "coll")
	require.NoError(t, err)
}

func TestDiffReportsDivergentKeys(t *testing.T) {
	mgr := newTestManager(t)
	runs := New(mgr)
	kvs := kv.New(mgr)

	a := key.NewRunId()
	b := key.NewRunId()
	_, err := runs.Create(a, "a")
	require.NoError(t, err)
	_, err = runs.Create(b, "b")
	require.NoError(t, err)

	_, err = kvs.Put(a, []byte("shared"), value.Int(1))
	require.NoError(t, err)
	_, err = kvs.Put(b, []byte("shared"), value.Int(2))
	require.NoError(t, err)
	_, err = kvs.Put(a, []byte("only-a"), value.Int(1))
	require.NoError(t, err)

	diffs := runs.Diff(a, b)
	require.Len(t, diffs, 2)
}

func TestFindOrphanedSkipsRunsWithActivity(t *testing.T) {
	mgr := newTestManager(t)
	runs := New(mgr)
	kvs := kv.New(mgr)

	idle := key.NewRunId()
	active := key.NewRunId()
	_, err := runs.Create(idle, "idle")
	require.NoError(t, err)
	_, err = runs.Create(active, "active")
	require.NoError(t, err)
	_, err = kvs.Put(active, []byte("k"), value.Int(1))
	require.NoError(t, err)

	orphaned := runs.FindOrphaned([]key.RunId{idle, active})
	require.Equal(t, []key.RunId{idle}, orphaned)
}
