package statecell

import (
	"sync"
	"testing"
	"time"

	"github.com/stratadb/strata/internal/config"
	"github.com/stratadb/strata/internal/errors"
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

func TestCreateThenGet(t *testing.T) {
	s := newTestStore(t)
	run := key.NewRunId()

	v1, err := s.Create(run, "flag", value.Bool(true))
	require.NoError(t, err)

	got, err := s.Get(run, "flag")
	require.NoError(t, err)
	require.Equal(t, value.Bool(true), got.Value)
	require.Equal(t, v1, got.Version)
}

func TestCreateTwiceConflicts(t *testing.T) {
	s := newTestStore(t)
	run := key.NewRunId()

	v1, err := s.Create(run, "s", value.Int(1))
	require.NoError(t, err)

	_, err = s.Create(run, "s", value.Int(2))
	require.Error(t, err)
	require.True(t, errors.IsConflict(err))

	got, err := s.Get(run, "s")
	require.NoError(t, err)
	require.Equal(t, value.Int(1), got.Value)
	require.Equal(t, v1, got.Version)
}

func TestCompareAndSwapStale(t *testing.T) {
	s := newTestStore(t)
	run := key.NewRunId()

	_, err := s.Create(run, "s", value.Int(1))
	require.NoError(t, err)

	_, err = s.CompareAndSwap(run, "s", 999, value.Int(2))
	require.Error(t, err)
}

func TestTransitionAppliesPureFunction(t *testing.T) {
	s := newTestStore(t)
	run := key.NewRunId()

	_, _, err := s.Transition(run, "counter", func(cur value.Value, exists bool) (value.Value, error) {
		if !exists {
			return value.Int(1), nil
		}
		return value.Int(int64(cur.(value.Int)) + 1), nil
	})
	require.NoError(t, err)

	newVal, _, err := s.Transition(run, "counter", func(cur value.Value, exists bool) (value.Value, error) {
		return value.Int(int64(cur.(value.Int)) + 1), nil
	})
	require.NoError(t, err)
	require.Equal(t, value.Int(2), newVal)
}

func TestTransitionUnderConcurrency(t *testing.T) {
	s := newTestStore(t)
	run := key.NewRunId()

	_, err := s.Create(run, "counter", value.Int(0))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := s.Transition(run, "counter", func(cur value.Value, exists bool) (value.Value, error) {
				return value.Int(int64(cur.(value.Int)) + 1), nil
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := s.Get(run, "counter")
	require.NoError(t, err)
	require.Equal(t, value.Int(20), got.Value)
}
