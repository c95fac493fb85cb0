package txn

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stratadb/strata/internal/errors"
	"github.com/stratadb/strata/internal/key"
	"github.com/stratadb/strata/internal/logger"
	"github.com/stratadb/strata/internal/metrics"
	"github.com/stratadb/strata/internal/store"
	"github.com/stratadb/strata/internal/value"
	"github.com/stratadb/strata/internal/wal"
)

// Manager runs Strata's seven-step commit pipeline (spec.md §4.3):
//  1. Begin: capture a snapshot view and a fresh transaction id.
//  2. Stage reads/writes/CAS ops into the transaction's Context.
//  3. Validate the read-set/CAS-set against current store state.
//  4. Issue a new global version.
//  5. Emit the transaction's WAL records (Begin, one per mutation, Commit).
//  6. Apply the write set to the store at the new version.
//  7. Publish the version, making it visible to new readers, and release
//     the commit lock.
//
// Steps 3-7 run under commitMu, serializing commits one at a time — the
// same single-writer model docdb/internal/docdb/mvcc.go documents
// ("Writers: Serialized (one at a time)"), kept because the substrate's
// version counter and WAL are both inherently sequential; only step 3's
// *outcome* differs from the teacher (real conflict detection instead of
// last-commit-wins).
type Manager struct {
	commitMu sync.Mutex
	store    *store.VersionedStore
	wal      *wal.Writer
	logger   *logger.Logger
}

func NewManager(s *store.VersionedStore, w *wal.Writer, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.Nop()
	}
	return &Manager{store: s, wal: w, logger: log.Component("txn.manager")}
}

// Begin opens a new transaction against the store's current published
// version.
func (m *Manager) Begin() *Context {
	return newContext(uuid.New(), m.store.Snapshot())
}

// Commit validates and, if successful, durably applies c's write set. On
// a conflict, c is marked Aborted and the specific *errors.StrataError
// (ReadWriteConflict or CasConflict) is returned so callers can decide
// whether to retry (see internal/errors.IsConflict /
// internal/errors.RetryController).
func (m *Manager) Commit(c *Context) error {
	if c.state != Open {
		return errors.InvalidInput("transaction is not open")
	}

	m.commitMu.Lock()
	defer m.commitMu.Unlock()

	if err := validate(m.store, c); err != nil {
		c.state = Aborted
		metrics.CommitsTotal.WithLabelValues(outcomeFor(err)).Inc()
		return err
	}

	if len(c.writeSet) == 0 {
		// Read-only transactions always commit (occ_invariants.rs), and
		// never need a version or a WAL entry.
		c.state = Committed
		c.commitVersion = c.SnapshotVersion
		metrics.CommitsTotal.WithLabelValues("committed").Inc()
		return nil
	}

	version := m.store.NextVersion()
	now := time.Now()

	if m.wal != nil {
		if err := m.writeRecords(c, version, now); err != nil {
			c.state = Aborted
			metrics.CommitsTotal.WithLabelValues("internal").Inc()
			return errors.Durability("failed to write commit records", err)
		}
	}

	muts := make([]store.Mutation, 0, len(c.writeSet))
	for _, mut := range c.writeSet {
		muts = append(muts, mut)
	}
	m.store.Apply(version, now, muts)
	m.store.Publish(version)

	c.state = Committed
	c.commitVersion = version
	metrics.CommitsTotal.WithLabelValues("committed").Inc()
	return nil
}

// Abort marks c as aborted without touching the store; nothing it staged
// was ever visible to another transaction.
func (m *Manager) Abort(c *Context) {
	c.state = Aborted
}

// GetAtVersion reads k as it stood at a specific prior version, bypassing
// the "always now" transaction snapshot — used by primitives' pinned
// historical reads (spec.md §8 scenario 1's "Get-at-V1").
func (m *Manager) GetAtVersion(k key.Key, version uint64) *store.Versioned {
	return m.store.GetAt(k, version)
}

func (m *Manager) writeRecords(c *Context, version uint64, now time.Time) error {
	if _, err := m.wal.Append(wal.Record{TxID: c.TxID, Type: wal.RecordBeginTxn}); err != nil {
		return err
	}
	for _, mut := range c.writeSet {
		rec := wal.Record{
			TxID: c.TxID,
			Type: recordTypeFor(mut.Key.Tag, mut.Value == nil),
			Key:  mut.Key.Encode(),
		}
		if mut.Value != nil {
			rec.Payload = value.Encode(mut.Value)
		}
		if _, err := m.wal.Append(rec); err != nil {
			return err
		}
	}
	commitPayload := make([]byte, 8)
	binary.LittleEndian.PutUint64(commitPayload, version)
	if _, err := m.wal.Append(wal.Record{TxID: c.TxID, Type: wal.RecordCommitTxn, Payload: commitPayload}); err != nil {
		return err
	}
	return nil
}

func recordTypeFor(tag key.TypeTag, isDelete bool) wal.RecordType {
	switch tag {
	case key.TagKV:
		if isDelete {
			return wal.RecordKvDelete
		}
		return wal.RecordKvPut
	case key.TagJSON:
		return wal.RecordJSONPatch
	case key.TagEvent:
		return wal.RecordEventAppend
	case key.TagState:
		return wal.RecordStateSet
	case key.TagVector:
		if isDelete {
			return wal.RecordVectorDelete
		}
		return wal.RecordVectorInsert
	case key.TagRunMeta:
		return wal.RecordRunMeta
	default:
		return wal.RecordKvPut
	}
}

func outcomeFor(err error) string {
	switch errors.KindOf(err) {
	case errors.KindReadWriteConflict:
		return "read_write_conflict"
	case errors.KindCasConflict:
		return "cas_conflict"
	case errors.KindJsonPathConflict:
		return "json_path_conflict"
	default:
		return "internal"
	}
}
