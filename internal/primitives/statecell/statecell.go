// Package statecell implements Strata's state cell primitive (spec.md
// §4.8): a single value per (run, name) with CAS semantics, plus
// Transition(f), a bounded-retry read-compute-CAS helper whose closure
// must be pure since it may run more than once.
//
// New relative to the teacher — docdb/internal/docdb/validator.go
// checks document health but never offers a CAS-based single-cell
// primitive — so this package is grounded on the CAS machinery
// internal/txn already implements (CompareAndSwap, CasConflict) plus
// internal/errors.RetryController for the bounded retry spec.md
// describes, the same shared retry shape used by
// internal/primitives/kv.Increment and eventlog.Append.
package statecell

import (
	"github.com/stratadb/strata/internal/errors"
	"github.com/stratadb/strata/internal/key"
	"github.com/stratadb/strata/internal/store"
	"github.com/stratadb/strata/internal/txn"
	"github.com/stratadb/strata/internal/value"
)

// Store is the state cell façade over one transaction manager.
type Store struct {
	mgr   *txn.Manager
	retry *errors.RetryController
}

func New(mgr *txn.Manager) *Store {
	return &Store{mgr: mgr, retry: errors.DefaultRetryController()}
}

func cellKey(run key.RunId, name string) key.Key {
	return key.New(run, key.TagState, []byte(name))
}

// Get returns the cell's current value and version.
func (s *Store) Get(run key.RunId, name string) (*store.Versioned, error) {
	ctx := s.mgr.Begin()
	v := ctx.Snapshot().Get(cellKey(run, name))
	s.mgr.Abort(ctx)
	if v == nil || v.IsTombstone() {
		return nil, errors.NotFound("state cell not found", name, run.String())
	}
	return v, nil
}

// Create sets name's value only if it does not already exist (expected
// version 0), returning CasConflict{expected:0, actual} if it does —
// spec.md §8 scenario 3's "CAS-create."
func (s *Store) Create(run key.RunId, name string, v value.Value) (uint64, error) {
	return s.CompareAndSwap(run, name, 0, v)
}

// CompareAndSwap writes v only if the cell is still at expectedVersion.
func (s *Store) CompareAndSwap(run key.RunId, name string, expectedVersion uint64, v value.Value) (uint64, error) {
	ctx := s.mgr.Begin()
	ctx.CompareAndSwap(cellKey(run, name), expectedVersion, v)
	if err := s.mgr.Commit(ctx); err != nil {
		return 0, err
	}
	return ctx.CommitVersion(), nil
}

// Delete tombstones the cell.
func (s *Store) Delete(run key.RunId, name string) (uint64, error) {
	ctx := s.mgr.Begin()
	ctx.Delete(cellKey(run, name))
	if err := s.mgr.Commit(ctx); err != nil {
		return 0, err
	}
	return ctx.CommitVersion(), nil
}

// Transition retries the read-compute-CAS loop up to the bounded retry
// controller's limit: it reads the cell's current value (nil if absent),
// passes it to f, and CAS-writes f's result. f must be pure — it may be
// invoked more than once if another writer wins the race — per spec.md
// §4.8's explicit warning.
func (s *Store) Transition(run key.RunId, name string, f func(current value.Value, exists bool) (value.Value, error)) (newValue value.Value, version uint64, err error) {
	k := cellKey(run, name)
	retryErr := s.retry.Do(func(attempt int) error {
		ctx := s.mgr.Begin()
		cur := ctx.Snapshot().Get(k)
		var expected uint64
		var current value.Value
		exists := cur != nil && !cur.IsTombstone()
		if exists {
			current = cur.Value
			expected = cur.Version
		}

		next, ferr := f(current, exists)
		if ferr != nil {
			s.mgr.Abort(ctx)
			return ferr
		}

		ctx.CompareAndSwap(k, expected, next)
		if err := s.mgr.Commit(ctx); err != nil {
			return err
		}
		newValue = next
		version = ctx.CommitVersion()
		return nil
	})
	if retryErr != nil {
		return nil, 0, retryErr
	}
	return newValue, version, nil
}
