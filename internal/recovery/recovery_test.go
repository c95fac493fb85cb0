package recovery

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stratadb/strata/internal/config"
	"github.com/stratadb/strata/internal/key"
	"github.com/stratadb/strata/internal/snapshot"
	"github.com/stratadb/strata/internal/store"
	"github.com/stratadb/strata/internal/value"
	"github.com/stratadb/strata/internal/wal"
	"github.com/stretchr/testify/require"
)

func newTestEnv(t *testing.T) (walDir, snapDir, manifestPath string) {
	t.Helper()
	base := t.TempDir()
	walDir = base + "/wal"
	snapDir = base + "/snapshots"
	manifestPath = base + "/manifest"
	return walDir, snapDir, manifestPath
}

func commitPut(t *testing.T, w *wal.Writer, k key.Key, v value.Value, version uint64) {
	t.Helper()
	txid := uuid.New()
	_, err := w.Append(wal.Record{TxID: txid, Type: wal.RecordBeginTxn})
	require.NoError(t, err)
	_, err = w.Append(wal.Record{TxID: txid, Type: wal.RecordKvPut, Key: k.Encode(), Payload: value.Encode(v)})
	require.NoError(t, err)
	payload := make([]byte, 8)
	binary.LittleEndian.PutUint64(payload, version)
	_, err = w.Append(wal.Record{TxID: txid, Type: wal.RecordCommitTxn, Payload: payload})
	require.NoError(t, err)
}

func TestRecoverFromWALOnly(t *testing.T) {
	walDir, snapDir, manifestPath := newTestEnv(t)

	w, err := wal.NewWriter(config.WALConfig{Dir: walDir, Durability: config.Strict}, nil)
	require.NoError(t, err)

	k1 := key.New(key.NewRunId(), key.TagKV, []byte("a"))
	k2 := key.New(key.NewRunId(), key.TagKV, []byte("b"))
	commitPut(t, w, k1, value.Int(1), 1)
	commitPut(t, w, k2, value.Int(2), 2)
	require.NoError(t, w.Close())

	s := store.New(8)
	c := New(walDir, snapDir, manifestPath, nil)
	res, err := c.Recover(s)
	require.NoError(t, err)

	require.Equal(t, uint64(2), res.StoreVersion)
	require.Equal(t, 2, res.TransactionsApplied)
	require.Equal(t, uint64(2), s.CurrentVersion())

	got := s.GetLatest(k1)
	require.NotNil(t, got)
	require.Equal(t, value.Int(1), got.Value)
}

func TestRecoverDiscardsIncompleteTransaction(t *testing.T) {
	walDir, snapDir, manifestPath := newTestEnv(t)

	w, err := wal.NewWriter(config.WALConfig{Dir: walDir, Durability: config.Strict}, nil)
	require.NoError(t, err)

	k := key.New(key.NewRunId(), key.TagKV, []byte("a"))
	commitPut(t, w, k, value.Int(1), 1)

	// A transaction that began but never committed: the crash happened
	// mid-write.
	txid := uuid.New()
	_, err = w.Append(wal.Record{TxID: txid, Type: wal.RecordBeginTxn})
	require.NoError(t, err)
	_, err = w.Append(wal.Record{TxID: txid, Type: wal.RecordKvPut, Key: k.Encode(), Payload: value.Encode(value.Int(99))})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	s := store.New(8)
	c := New(walDir, snapDir, manifestPath, nil)
	res, err := c.Recover(s)
	require.NoError(t, err)

	require.Equal(t, 1, res.TransactionsApplied)
	require.Equal(t, 1, res.TransactionsDiscarded)

	got := s.GetLatest(k)
	require.NotNil(t, got)
	require.Equal(t, value.Int(1), got.Value)
}

func TestRecoverWithSnapshotAndWALTail(t *testing.T) {
	walDir, snapDir, manifestPath := newTestEnv(t)

	w, err := wal.NewWriter(config.WALConfig{Dir: walDir, Durability: config.Strict}, nil)
	require.NoError(t, err)

	k1 := key.New(key.NewRunId(), key.TagKV, []byte("a"))
	k2 := key.New(key.NewRunId(), key.TagKV, []byte("b"))
	commitPut(t, w, k1, value.Int(1), 1)

	seq, size := w.Segment()

	seedStore := store.New(8)
	seedStore.Apply(1, time.Now(), []store.Mutation{{Key: k1, Value: value.Int(1)}})
	seedStore.SetVersion(1)

	snapStore := snapshot.NewStore(snapDir, nil)
	sections := snapshot.BuildSections(seedStore, time.Now())
	_, err = snapStore.Write(snapshot.Header{
		Timestamp:    time.Now(),
		WALSeq:       seq,
		WALOffset:    int64(size),
		StoreVersion: 1,
	}, sections)
	require.NoError(t, err)

	commitPut(t, w, k2, value.Int(2), 2)
	require.NoError(t, w.Close())

	s := store.New(8)
	c := New(walDir, snapDir, manifestPath, nil)
	res, err := c.Recover(s)
	require.NoError(t, err)

	require.Equal(t, uint64(2), res.StoreVersion)
	require.Equal(t, 1, res.TransactionsApplied) // only the post-snapshot commit replays

	got1 := s.GetLatest(k1)
	require.NotNil(t, got1)
	require.Equal(t, value.Int(1), got1.Value)

	got2 := s.GetLatest(k2)
	require.NotNil(t, got2)
	require.Equal(t, value.Int(2), got2.Value)
}

func TestRecoveryIsIdempotent(t *testing.T) {
	walDir, snapDir, manifestPath := newTestEnv(t)

	w, err := wal.NewWriter(config.WALConfig{Dir: walDir, Durability: config.Strict}, nil)
	require.NoError(t, err)
	k := key.New(key.NewRunId(), key.TagKV, []byte("a"))
	commitPut(t, w, k, value.Int(7), 1)
	require.NoError(t, w.Close())

	c := New(walDir, snapDir, manifestPath, nil)

	s1 := store.New(8)
	res1, err := c.Recover(s1)
	require.NoError(t, err)

	s2 := store.New(8)
	res2, err := c.Recover(s2)
	require.NoError(t, err)

	require.Equal(t, res1.StoreVersion, res2.StoreVersion)
	require.Equal(t, s1.GetLatest(k).Value, s2.GetLatest(k).Value)
}

func TestRecoverRegistersParticipants(t *testing.T) {
	walDir, snapDir, manifestPath := newTestEnv(t)

	w, err := wal.NewWriter(config.WALConfig{Dir: walDir, Durability: config.Strict}, nil)
	require.NoError(t, err)
	k := key.New(key.NewRunId(), key.TagVector, []byte("v1"))
	commitPut(t, w, k, value.Bytes([]byte{1, 2, 3}), 1)
	require.NoError(t, w.Close())

	c := New(walDir, snapDir, manifestPath, nil)
	var seen []Entry
	c.RegisterParticipant(key.TagVector, func(entries []Entry) error {
		seen = append(seen, entries...)
		return nil
	})

	s := store.New(8)
	_, err = c.Recover(s)
	require.NoError(t, err)

	require.Len(t, seen, 1)
	require.Equal(t, uint64(1), seen[0].Version)
}
