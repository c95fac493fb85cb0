// Package txn implements Strata's transaction manager: optimistic
// concurrency control with snapshot isolation and first-committer-wins
// semantics (spec.md §4.3).
//
// Generalized from docdb/internal/docdb/{transaction,mvcc}.go, whose
// MVCC-lite model is explicitly "no conflict detection... last commit
// wins" (docdb/internal/docdb/mvcc.go's doc comment) and cannot satisfy
// spec.md's OCC invariants. The validation semantics this package
// implements — read-set/write-set/CAS-set checked at commit, not at
// write time — are grounded on
// original_source/crates/concurrency/src/{transaction,validation}.rs's
// module layout (TransactionContext, validate_read_set, validate_cas_set,
// validate_transaction, ConflictType), translated from Rust's
// trait-object Storage abstraction to a direct *store.VersionedStore
// since Strata has exactly one storage substrate, not a pluggable one.
package txn

import (
	"time"

	"github.com/google/uuid"
	"github.com/stratadb/strata/internal/key"
	"github.com/stratadb/strata/internal/store"
	"github.com/stratadb/strata/internal/value"
)

// State is a transaction's lifecycle stage.
type State int

const (
	Open State = iota
	Committed
	Aborted
)

// CASOperation records a compare-and-swap precondition: Key must still be
// at ExpectedVersion when this transaction commits (spec.md §5.10 state
// cell primitive; §4.3 invariant I3: CAS atomicity).
type CASOperation struct {
	Key             key.Key
	ExpectedVersion uint64
}

// Context is one in-flight transaction's read/write/CAS sets, captured
// against a fixed snapshot version so every read within the transaction
// sees a single consistent point in time (spec.md invariant I1: snapshot
// isolation).
type Context struct {
	TxID            uuid.UUID
	SnapshotVersion uint64
	snapshot        *store.SnapshotView

	readSet  map[string]uint64          // key.Encode() -> version observed
	writeSet map[string]store.Mutation  // key.Encode() -> pending mutation
	casSet   map[string]CASOperation    // key.Encode() -> precondition

	state         State
	commitVersion uint64
}

func newContext(txid uuid.UUID, snap *store.SnapshotView) *Context {
	return &Context{
		TxID:            txid,
		SnapshotVersion: snap.Version(),
		snapshot:        snap,
		readSet:         make(map[string]uint64),
		writeSet:        make(map[string]store.Mutation),
		casSet:          make(map[string]CASOperation),
		state:           Open,
	}
}

// Get reads k as of this transaction's snapshot, recording the version
// observed (or 0 if absent) into the read set so commit-time validation
// can detect if another transaction changed it first.
func (c *Context) Get(k key.Key) (value.Value, bool) {
	entry := c.snapshot.Get(k)
	encoded := string(k.Encode())
	if entry == nil {
		if _, already := c.readSet[encoded]; !already {
			c.readSet[encoded] = 0
		}
		return nil, false
	}
	c.readSet[encoded] = entry.Version
	return entry.Value, true
}

// Put stages a write, visible to later reads/writes within this
// transaction's own write set but not to other transactions until commit.
func (c *Context) Put(k key.Key, v value.Value, ttl *time.Time) {
	c.writeSet[string(k.Encode())] = store.Mutation{Key: k, Value: v, TTL: ttl}
}

// Delete stages a tombstone write.
func (c *Context) Delete(k key.Key) {
	c.writeSet[string(k.Encode())] = store.Mutation{Key: k, Value: nil}
}

// CompareAndSwap stages a write that only survives commit-time validation
// if k is still at expectedVersion (spec.md §5.10 state cell CAS).
func (c *Context) CompareAndSwap(k key.Key, expectedVersion uint64, v value.Value) {
	c.casSet[string(k.Encode())] = CASOperation{Key: k, ExpectedVersion: expectedVersion}
	c.writeSet[string(k.Encode())] = store.Mutation{Key: k, Value: v}
}

// Snapshot exposes the transaction's read snapshot directly, for readers
// that want a scan rather than a point lookup.
func (c *Context) Snapshot() *store.SnapshotView { return c.snapshot }

func (c *Context) State() State { return c.state }

// CommitVersion returns the version this transaction committed at, valid
// only once State() == Committed. A read-only commit (empty write set)
// reports the snapshot version it read from, since it never advanced the
// counter (spec.md §6 "commit(ctx) -> Version").
func (c *Context) CommitVersion() uint64 { return c.commitVersion }
