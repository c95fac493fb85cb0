package run

import (
	"sort"
	"time"

	"github.com/stratadb/strata/internal/errors"
	"github.com/stratadb/strata/internal/key"
	"github.com/stratadb/strata/internal/txn"
	"github.com/stratadb/strata/internal/value"
)

// deleteBatchSize bounds how many tombstones one cascading-delete
// transaction stages, so DeleteRun on a run with many thousands of keys
// doesn't build one unbounded commit.
const deleteBatchSize = 256

// metaKey is the single substrate key holding a run's Info, keyed under
// TagRunMeta with a fixed user-key since a run has exactly one metadata
// record (unlike kv/jsondoc/etc., which are keyed by caller-chosen name).
func metaKey(run key.RunId) key.Key {
	return key.New(run, key.TagRunMeta, []byte("meta"))
}

// sweepTags lists every namespace a cascading delete must tombstone.
// TagRunMeta is handled separately (last), so it isn't double-swept here.
var sweepTags = []key.TypeTag{key.TagKV, key.TagJSON, key.TagEvent, key.TagState, key.TagVector}

// Store is the run/branch index façade over one transaction manager.
type Store struct {
	mgr   *txn.Manager
	retry *errors.RetryController
}

func New(mgr *txn.Manager) *Store {
	return &Store{mgr: mgr, retry: errors.DefaultRetryController()}
}

// Create registers run with name, in the Active status.
func (s *Store) Create(run key.RunId, name string) (uint64, error) {
	ctx := s.mgr.Begin()
	k := metaKey(run)
	cur := ctx.Snapshot().Get(k)
	if cur != nil && !cur.IsTombstone() {
		s.mgr.Abort(ctx)
		return 0, errors.ConstraintViolation("run already exists: " + run.String())
	}
	now := time.Now()
	info := Info{Name: name, Status: Active, CreatedAt: now, UpdatedAt: now}
	ctx.CompareAndSwap(k, 0, encodeInfo(info))
	if err := s.mgr.Commit(ctx); err != nil {
		return 0, err
	}
	return ctx.CommitVersion(), nil
}

// Get returns run's metadata.
func (s *Store) Get(run key.RunId) (Info, error) {
	ctx := s.mgr.Begin()
	v := ctx.Snapshot().Get(metaKey(run))
	s.mgr.Abort(ctx)
	if v == nil || v.IsTombstone() {
		return Info{}, errors.NotFound("run not found", "meta", run.String())
	}
	return decodeInfo(v.Value), nil
}

// transition applies a single lifecycle edge via bounded read-compute-CAS
// retry, the same shape used by kv.Increment/eventlog.Append/
// vector.Insert's counter assignment.
func (s *Store) transition(run key.RunId, to Status) (uint64, error) {
	k := metaKey(run)
	var version uint64
	retryErr := s.retry.Do(func(attempt int) error {
		ctx := s.mgr.Begin()
		cur := ctx.Snapshot().Get(k)
		if cur == nil || cur.IsTombstone() {
			s.mgr.Abort(ctx)
			return errors.NotFound("run not found", "meta", run.String())
		}
		info := decodeInfo(cur.Value)
		if !canTransition(info.Status, to) {
			s.mgr.Abort(ctx)
			return errors.ConstraintViolation("illegal run status transition: " + info.Status.String() + " -> " + to.String())
		}
		info.Status = to
		info.UpdatedAt = time.Now()
		ctx.CompareAndSwap(k, cur.Version, encodeInfo(info))
		if err := s.mgr.Commit(ctx); err != nil {
			return err
		}
		version = ctx.CommitVersion()
		return nil
	})
	if retryErr != nil {
		return 0, retryErr
	}
	return version, nil
}

// Close marks an Active run Closed.
func (s *Store) Close(run key.RunId) (uint64, error) { return s.transition(run, Closed) }

// Fail marks an Active run Failed.
func (s *Store) Fail(run key.RunId) (uint64, error) { return s.transition(run, Failed) }

// Archive marks an Active, Closed or Failed run Archived, the terminal status.
func (s *Store) Archive(run key.RunId) (uint64, error) { return s.transition(run, Archived) }

// DeleteRun cascades a tombstone sweep over every key in run's namespace
// across all six primitives, then tombstones the run's own metadata —
// spec.md §4.5's "delete_run cascades over every key with that RunId".
// The sweep runs in batches so a single cascading delete never stages an
// unbounded transaction.
func (s *Store) DeleteRun(run key.RunId) error {
	if _, err := s.Get(run); err != nil {
		return err
	}

	for _, tag := range sweepTags {
		for {
			ctx := s.mgr.Begin()
			results := ctx.Snapshot().Scan(run, tag, nil)
			if len(results) == 0 {
				s.mgr.Abort(ctx)
				break
			}
			sort.Slice(results, func(i, j int) bool {
				return string(results[i].Key.User) < string(results[j].Key.User)
			})
			n := len(results)
			if n > deleteBatchSize {
				n = deleteBatchSize
			}
			for _, r := range results[:n] {
				ctx.Delete(r.Key)
			}
			if err := s.mgr.Commit(ctx); err != nil {
				return err
			}
			if n < deleteBatchSize {
				break
			}
		}
	}

	ctx := s.mgr.Begin()
	ctx.Delete(metaKey(run))
	return s.mgr.Commit(ctx)
}

// Diff compares two runs' namespaces key-by-key across all primitives,
// reporting every user-key that exists in only one side or whose values
// differ — grounded on original_source/crates/engine/src/replay.rs's
// diff_runs (SPEC_FULL.md §6).
func (s *Store) Diff(a, b key.RunId) []ValueDiff {
	ctx := s.mgr.Begin()
	defer s.mgr.Abort(ctx)

	type cell struct {
		tag key.TypeTag
		k   string
	}
	av := make(map[cell]value.Value)
	bv := make(map[cell]value.Value)
	for _, tag := range sweepTags {
		for _, r := range ctx.Snapshot().Scan(a, tag, nil) {
			av[cell{tag, string(r.Key.User)}] = r.Entry.Value
		}
		for _, r := range ctx.Snapshot().Scan(b, tag, nil) {
			bv[cell{tag, string(r.Key.User)}] = r.Entry.Value
		}
	}

	seen := make(map[cell]bool)
	var out []ValueDiff
	for c, av := range av {
		seen[c] = true
		bval, inB := bv[c]
		d := ValueDiff{UserKey: []byte(c.k), InA: true, InB: inB}
		if inB {
			d.Equal = value.Equal(av, bval)
		}
		if !d.Equal {
			out = append(out, d)
		}
	}
	for c := range bv {
		if seen[c] {
			continue
		}
		out = append(out, ValueDiff{UserKey: []byte(c.k), InA: false, InB: true})
	}
	return out
}

// FindOrphaned returns every known run whose metadata key exists but
// whose status never advanced past Active with zero activity recorded
// under it — a conservative proxy, since this layer has no WAL replay
// visibility of its own, for original_source/crates/engine/src/replay.rs's
// orphaned-run detection (SPEC_FULL.md §6). candidates is the set of run
// ids to check, typically sourced from a manifest or catalog listing
// upstream of this primitive.
func (s *Store) FindOrphaned(candidates []key.RunId) []key.RunId {
	ctx := s.mgr.Begin()
	defer s.mgr.Abort(ctx)

	var orphaned []key.RunId
	for _, run := range candidates {
		v := ctx.Snapshot().Get(metaKey(run))
		if v == nil || v.IsTombstone() {
			continue
		}
		info := decodeInfo(v.Value)
		if info.Status != Active {
			continue
		}
		hasActivity := false
		for _, tag := range sweepTags {
			if len(ctx.Snapshot().Scan(run, tag, nil)) > 0 {
				hasActivity = true
				break
			}
		}
		if !hasActivity {
			orphaned = append(orphaned, run)
		}
	}
	return orphaned
}
