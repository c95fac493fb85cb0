package jsondoc

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

func TestPutGetWholeDocument(t *testing.T) {
	s := newTestStore(t)
	run := key.NewRunId()

	doc := value.Object{"name": value.String("ada"), "age": value.Int(30)}
	_, err := s.Put(run, "user-1", doc)
	require.NoError(t, err)

	got, err := s.Get(run, "user-1")
	require.NoError(t, err)
	require.True(t, value.Equal(doc, got))
}

func TestSetPathCreatesIntermediateObjects(t *testing.T) {
	s := newTestStore(t)
	run := key.NewRunId()

	_, err := s.SetPath(run, "user-1", "/address/city", value.String("nyc"))
	require.NoError(t, err)

	got, err := s.GetPath(run, "user-1", "/address/city")
	require.NoError(t, err)
	require.Equal(t, value.String("nyc"), got)
}

func TestDeletePath(t *testing.T) {
	s := newTestStore(t)
	run := key.NewRunId()

	_, err := s.Put(run, "d", value.Object{"a": value.Int(1), "b": value.Int(2)})
	require.NoError(t, err)

	_, err = s.DeletePath(run, "d", "/a")
	require.NoError(t, err)

	_, err = s.GetPath(run, "d", "/a")
	require.Error(t, err)

	got, err := s.GetPath(run, "d", "/b")
	require.NoError(t, err)
	require.Equal(t, value.Int(2), got)
}

func TestInsertPathIntoArray(t *testing.T) {
	s := newTestStore(t)
	run := key.NewRunId()

	_, err := s.Put(run, "d", value.Object{"tags": value.Array{value.String("a"), value.String("c")}})
	require.NoError(t, err)

	_, err = s.InsertPath(run, "d", "/tags", 1, value.String("b"))
	require.NoError(t, err)

	got, err := s.GetPath(run, "d", "/tags")
	require.NoError(t, err)
	require.Equal(t, value.Array{value.String("a"), value.String("b"), value.String("c")}, got)
}

func TestConcurrentPatchesToSameDocumentConflict(t *testing.T) {
	s := newTestStore(t)
	run := key.NewRunId()
	_, err := s.Put(run, "d", value.Object{"a": value.Int(1)})
	require.NoError(t, err)

	mgr := s.mgr
	t1 := mgr.Begin()
	_, _ = t1.Get(docKey(run, "d"))
	t1.Put(docKey(run, "d"), value.Object{"a": value.Int(2)}, nil)

	t2 := mgr.Begin()
	_, _ = t2.Get(docKey(run, "d"))
	t2.Put(docKey(run, "d"), value.Object{"a": value.Int(3)}, nil)

	require.NoError(t, mgr.Commit(t1))
	require.Error(t, mgr.Commit(t2))
}

func TestDeclaredPrefixesDoNotConflictAcrossEachOther(t *testing.T) {
	s := newTestStore(t)
	run := key.NewRunId()

	_, err := s.SetAtPrefix(run, "doc", "profile", value.Object{"name": value.String("x")})
	require.NoError(t, err)
	_, err = s.SetAtPrefix(run, "doc", "settings", value.Object{"theme": value.String("dark")})
	require.NoError(t, err)

	profile, err := s.GetAtPrefix(run, "doc", "profile")
	require.NoError(t, err)
	require.Equal(t, value.Object{"name": value.String("x")}, profile)

	settings, err := s.GetAtPrefix(run, "doc", "settings")
	require.NoError(t, err)
	require.Equal(t, value.Object{"theme": value.String("dark")}, settings)
}
