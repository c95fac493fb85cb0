// Package recovery implements Strata's crash recovery sequence (spec.md
// §4.5): find the manifest, load the latest valid snapshot (falling back
// to an older one on corruption), replay the WAL from the snapshot's
// watermark grouped by transaction id, and seed a fresh store with exactly
// the committed prefix of the transaction history — invariants R1-R6.
//
// Grounded on docdb/internal/docdb/{healer,healing}.go's corruption-
// tolerant, fall-back-and-continue posture and docdb/internal/wal/
// recovery.go's segment-by-segment replay loop (preserved in
// _teacher_other/docdb_wal_reference/recovery.go), generalized from a
// single flat WAL scan to the full manifest->snapshot->WAL pipeline
// described in original_source/crates/durability/src/recovery_manager.rs
// ("Find latest valid snapshot -> Load snapshot into memory -> Replay WAL
// from snapshot's WAL offset -> Rebuild indexes").
package recovery

import (
	"encoding/binary"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/stratadb/strata/internal/key"
	"github.com/stratadb/strata/internal/logger"
	"github.com/stratadb/strata/internal/manifest"
	"github.com/stratadb/strata/internal/snapshot"
	"github.com/stratadb/strata/internal/store"
	"github.com/stratadb/strata/internal/value"
	"github.com/stratadb/strata/internal/wal"
)

// Entry is one key's materialized post-recovery value, handed to
// participants grouped by primitive (spec.md §4.5 step 6).
type Entry struct {
	Key     key.Key
	Value   value.Value
	Version uint64
}

// Participant rebuilds a primitive's runtime-only index (e.g. the vector
// store's ANN graph) from materialized records once replay completes.
// Registered participants never see uncommitted or discarded data — only
// what Recover already decided belongs to the committed prefix.
type Participant func(entries []Entry) error

// Result summarizes one recovery run, useful for logs and tests asserting
// R1 (determinism) and R2 (idempotence) hold.
type Result struct {
	StoreVersion          uint64
	RecordsReplayed        int
	TransactionsApplied    int
	TransactionsDiscarded  int
	// WALSeq/WALOffset is where replay stopped — the position a newly
	// opened wal.Writer must resume appending from.
	WALSeq    int
	WALOffset int64
}

// Coordinator drives one data directory's recovery sequence.
type Coordinator struct {
	walDir       string
	snapshotDir  string
	manifestPath string
	logger       *logger.Logger
	participants map[key.TypeTag][]Participant
}

func New(walDir, snapshotDir, manifestPath string, log *logger.Logger) *Coordinator {
	if log == nil {
		log = logger.Nop()
	}
	return &Coordinator{
		walDir:       walDir,
		snapshotDir:  snapshotDir,
		manifestPath: manifestPath,
		logger:       log.Component("recovery"),
		participants: make(map[key.TypeTag][]Participant),
	}
}

// RegisterParticipant adds fn to the list notified for tag after Recover
// has materialized every committed record for it. Must be called before
// Recover runs.
func (c *Coordinator) RegisterParticipant(tag key.TypeTag, fn Participant) {
	c.participants[tag] = append(c.participants[tag], fn)
}

// txGroup buffers one transaction's staged WAL records until its
// CommitTxn (or AbortTxn, or EOF) is seen, per spec.md §4.5 step 4's
// prefix-consistency rule: records are never applied record-by-record,
// only as a whole group at its commit version.
type txGroup struct {
	records []wal.Record
}

// Recover executes the full snapshot-load + WAL-replay sequence against a
// fresh, empty s, and returns once s reflects exactly the committed
// prefix of the transaction history (R3). s must not be used by any
// writer until Recover returns.
func (c *Coordinator) Recover(s *store.VersionedStore) (*Result, error) {
	m := manifest.New(c.manifestPath, c.logger)
	if err := m.Load(); err != nil {
		return nil, err
	}

	snapStore := snapshot.NewStore(c.snapshotDir, c.logger)
	snap, err := snapStore.Load()

	fromSeq := 0
	var fromOffset int64
	storeVersion := uint64(0)
	materialized := make(map[key.TypeTag][]Entry)

	switch {
	case err == nil:
		if restoreErr := snapshot.Restore(s, snap); restoreErr != nil {
			return nil, restoreErr
		}
		fromSeq = snap.Header.WALSeq
		fromOffset = snap.Header.WALOffset
		storeVersion = snap.Header.StoreVersion
		for tag, entries := range snap.Sections {
			for _, e := range entries {
				k, derr := key.Decode(e.Key)
				if derr != nil {
					continue
				}
				v, _, derr := value.Decode(e.Value)
				if derr != nil {
					continue
				}
				materialized[key.TypeTag(tag)] = append(materialized[key.TypeTag(tag)], Entry{Key: k, Value: v, Version: e.Version})
			}
		}
	case err == snapshot.ErrNoSnapshots:
		c.logger.Info("no snapshot found, replaying entire WAL", nil)
	default:
		return nil, err
	}

	it, err := wal.NewIteratorFrom(c.walDir, fromSeq, fromOffset)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	groups := make(map[uuid.UUID]*txGroup)
	result := &Result{}
	maxVersion := storeVersion
	now := time.Now()

	for {
		rec, nerr := it.Next()
		if nerr == io.EOF {
			break
		}
		if nerr != nil {
			return nil, nerr
		}
		result.RecordsReplayed++

		switch rec.Type {
		case wal.RecordBeginTxn:
			groups[rec.TxID] = &txGroup{}

		case wal.RecordCommitTxn:
			g, ok := groups[rec.TxID]
			delete(groups, rec.TxID)
			if !ok || len(rec.Payload) < 8 {
				// A commit with no buffered begin, or a torn commit
				// payload, cannot be trusted to name a real version —
				// discard rather than invent state (R4).
				result.TransactionsDiscarded++
				continue
			}
			version := binary.LittleEndian.Uint64(rec.Payload)
			muts, entries, merr := materializeGroup(g.records)
			if merr != nil {
				result.TransactionsDiscarded++
				continue
			}
			s.Apply(version, now, muts)
			if version > maxVersion {
				maxVersion = version
			}
			for tag, es := range entries {
				for i := range es {
					es[i].Version = version
				}
				materialized[tag] = append(materialized[tag], es...)
			}
			result.TransactionsApplied++

		case wal.RecordAbortTxn:
			delete(groups, rec.TxID)
			result.TransactionsDiscarded++

		default:
			if g, ok := groups[rec.TxID]; ok {
				g.records = append(g.records, rec)
			}
			// A mutation record outside any open BeginTxn group is
			// orphaned (a torn write, or replay starting mid-transaction)
			// and is silently dropped — it can never reach a CommitTxn.
		}
	}

	// Any group still open at EOF never reached its CommitTxn: the crash
	// landed mid-transaction. Discard per R3/R6.
	result.TransactionsDiscarded += len(groups)

	s.SetVersion(maxVersion)
	result.StoreVersion = maxVersion
	result.WALSeq, result.WALOffset = it.Position()

	for tag, entries := range materialized {
		for _, fn := range c.participants[tag] {
			if perr := fn(entries); perr != nil {
				return nil, perr
			}
		}
	}

	c.logger.Info("recovery complete", map[string]any{
		"store_version":          result.StoreVersion,
		"records_replayed":       result.RecordsReplayed,
		"transactions_applied":   result.TransactionsApplied,
		"transactions_discarded": result.TransactionsDiscarded,
	})
	return result, nil
}

// materializeGroup turns one transaction's buffered WAL records into
// store mutations plus per-tag materialized entries for participants.
// Any record that fails to decode makes the whole group untrustworthy:
// callers discard it rather than applying a partially-decoded transaction.
func materializeGroup(records []wal.Record) ([]store.Mutation, map[key.TypeTag][]Entry, error) {
	muts := make([]store.Mutation, 0, len(records))
	entries := make(map[key.TypeTag][]Entry)

	for _, rec := range records {
		k, err := key.Decode(rec.Key)
		if err != nil {
			return nil, nil, err
		}
		var v value.Value
		if len(rec.Payload) > 0 {
			v, _, err = value.Decode(rec.Payload)
			if err != nil {
				return nil, nil, err
			}
		}
		muts = append(muts, store.Mutation{Key: k, Value: v})
		entries[k.Tag] = append(entries[k.Tag], Entry{Key: k, Value: v})
	}
	return muts, entries, nil
}
