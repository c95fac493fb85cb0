// Package kv implements Strata's raw key/value primitive (spec.md §4.8):
// get/put/delete, batch variants, atomic increment on Int, TTL, and
// scan-with-cursor, all projected onto the TagKV namespace of the shared
// substrate.
//
// Grounded on docdb's Create/Read/Update/Delete path
// (docdb/internal/docdb/docdb.go) generalized from per-document CRUD to
// raw byte keys, since Strata's KV primitive has no document/schema
// layer above it. Increment is grounded on
// docdb/internal/memory/pool.go's atomic-counter idiom (a retry loop
// around a CAS-shaped update, not a hardware atomic, since the counter
// lives in the versioned substrate rather than in memory).
package kv

import (
	"bytes"
	"sort"
	"time"

	"github.com/stratadb/strata/internal/errors"
	"github.com/stratadb/strata/internal/key"
	"github.com/stratadb/strata/internal/store"
	"github.com/stratadb/strata/internal/txn"
	"github.com/stratadb/strata/internal/value"
)

// Store is the KV façade over one transaction manager.
type Store struct {
	mgr   *txn.Manager
	retry *errors.RetryController
}

func New(mgr *txn.Manager) *Store {
	return &Store{mgr: mgr, retry: errors.DefaultRetryController()}
}

func namedKey(run key.RunId, k []byte) key.Key {
	return key.New(run, key.TagKV, k)
}

// Get returns the current value at k, or NotFound if absent/tombstoned.
func (s *Store) Get(run key.RunId, k []byte) (*store.Versioned, error) {
	ctx := s.mgr.Begin()
	kk := namedKey(run, k)
	v := ctx.Snapshot().Get(kk)
	s.mgr.Abort(ctx)
	if v == nil || v.IsTombstone() {
		return nil, errors.NotFound("key not found", kk.String(), run.String())
	}
	return v, nil
}

// GetAt returns the value visible at a specific prior version, bypassing
// the "always now" transaction snapshot (spec.md §8 scenario 1).
func (s *Store) GetAt(run key.RunId, k []byte, version uint64) (*store.Versioned, error) {
	kk := namedKey(run, k)
	entry := s.mgr.GetAtVersion(kk, version)
	if entry == nil || entry.IsTombstone() {
		return nil, errors.NotFound("key not found at version", kk.String(), run.String())
	}
	return entry, nil
}

// Put writes v at k, returning the commit version.
func (s *Store) Put(run key.RunId, k []byte, v value.Value) (uint64, error) {
	return s.PutTTL(run, k, v, nil)
}

// PutTTL writes v at k with an optional expiry.
func (s *Store) PutTTL(run key.RunId, k []byte, v value.Value, ttl *time.Time) (uint64, error) {
	ctx := s.mgr.Begin()
	ctx.Put(namedKey(run, k), v, ttl)
	if err := s.mgr.Commit(ctx); err != nil {
		return 0, err
	}
	return ctx.CommitVersion(), nil
}

// Delete tombstones k, returning the commit version.
func (s *Store) Delete(run key.RunId, k []byte) (uint64, error) {
	ctx := s.mgr.Begin()
	ctx.Delete(namedKey(run, k))
	if err := s.mgr.Commit(ctx); err != nil {
		return 0, err
	}
	return ctx.CommitVersion(), nil
}

// Item is one entry of a batch write.
type Item struct {
	Key   []byte
	Value value.Value
	TTL   *time.Time
}

// BatchPut applies every item atomically in one transaction.
func (s *Store) BatchPut(run key.RunId, items []Item) (uint64, error) {
	ctx := s.mgr.Begin()
	for _, it := range items {
		ctx.Put(namedKey(run, it.Key), it.Value, it.TTL)
	}
	if err := s.mgr.Commit(ctx); err != nil {
		return 0, err
	}
	return ctx.CommitVersion(), nil
}

// BatchDelete tombstones every key atomically in one transaction.
func (s *Store) BatchDelete(run key.RunId, keys [][]byte) (uint64, error) {
	ctx := s.mgr.Begin()
	for _, k := range keys {
		ctx.Delete(namedKey(run, k))
	}
	if err := s.mgr.Commit(ctx); err != nil {
		return 0, err
	}
	return ctx.CommitVersion(), nil
}

// BatchGet reads every key as of one consistent snapshot. Missing keys
// are simply absent from the result map rather than erroring, since a
// batch read over a mixed existing/missing key set is a normal case.
func (s *Store) BatchGet(run key.RunId, keys [][]byte) map[string]*store.Versioned {
	ctx := s.mgr.Begin()
	defer s.mgr.Abort(ctx)
	snap := ctx.Snapshot()
	out := make(map[string]*store.Versioned, len(keys))
	for _, k := range keys {
		v := snap.Get(namedKey(run, k))
		if v != nil && !v.IsTombstone() {
			out[string(k)] = v
		}
	}
	return out
}

// Increment atomically adds delta to the Int stored at k (treating an
// absent key as 0), retrying on conflict via the bounded
// read-compute-CAS loop shared with internal/primitives/statecell.
func (s *Store) Increment(run key.RunId, k []byte, delta int64) (newValue int64, version uint64, err error) {
	kk := namedKey(run, k)
	retryErr := s.retry.Do(func(attempt int) error {
		ctx := s.mgr.Begin()
		cur := ctx.Snapshot().Get(kk)
		var base int64
		var expected uint64
		if cur != nil && !cur.IsTombstone() {
			iv, ok := cur.Value.(value.Int)
			if !ok {
				s.mgr.Abort(ctx)
				return errors.InvalidInput("increment target is not an Int")
			}
			base = int64(iv)
			expected = cur.Version
		}
		newValue = base + delta
		ctx.CompareAndSwap(kk, expected, value.Int(newValue))
		if err := s.mgr.Commit(ctx); err != nil {
			return err
		}
		version = ctx.CommitVersion()
		return nil
	})
	if retryErr != nil {
		return 0, 0, retryErr
	}
	return newValue, version, nil
}

// ScanResult is one entry of a Scan page.
type ScanResult struct {
	Key   []byte
	Value *store.Versioned
}

// Scan returns up to limit keys under prefix, in byte order, strictly
// after cursor (empty cursor starts from the beginning), plus the
// cursor to pass for the next page (nil once exhausted) — the
// scan-with-cursor operation of spec.md §4.8, grounded on the teacher's
// query/engine.go row-stream interface trimmed of query semantics.
func (s *Store) Scan(run key.RunId, prefix []byte, cursor []byte, limit int) (items []ScanResult, nextCursor []byte, err error) {
	ctx := s.mgr.Begin()
	defer s.mgr.Abort(ctx)

	results := ctx.Snapshot().Scan(run, key.TagKV, prefix)
	sort.Slice(results, func(i, j int) bool {
		return bytes.Compare(results[i].Key.User, results[j].Key.User) < 0
	})

	start := 0
	if len(cursor) > 0 {
		start = sort.Search(len(results), func(i int) bool {
			return bytes.Compare(results[i].Key.User, cursor) > 0
		})
	}

	for i := start; i < len(results) && len(items) < limit; i++ {
		r := results[i]
		items = append(items, ScanResult{Key: r.Key.User, Value: r.Entry})
	}
	if start+len(items) < len(results) {
		nextCursor = items[len(items)-1].Key
	}
	return items, nextCursor, nil
}
