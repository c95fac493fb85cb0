package wal

import (
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stratadb/strata/internal/config"
	"github.com/stretchr/testify/require"
)

func newTestWriter(t *testing.T, mode config.DurabilityMode, maxSegMB uint64) *Writer {
	t.Helper()
	dir := t.TempDir()
	w, err := NewWriter(config.WALConfig{
		Dir:              dir,
		MaxSegmentSizeMB: maxSegMB,
		Durability:       mode,
		FlushInterval:    5 * time.Millisecond,
		MaxBatchSize:     4,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	return w
}

func TestWriterAppendAndIterate(t *testing.T) {
	w := newTestWriter(t, config.Strict, 0)
	dir := w.dir

	txid := uuid.New()
	records := []Record{
		{TxID: txid, Type: RecordBeginTxn},
		{TxID: txid, Type: RecordKvPut, Key: []byte("a"), Payload: []byte("1")},
		{TxID: txid, Type: RecordKvPut, Key: []byte("b"), Payload: []byte("2")},
		{TxID: txid, Type: RecordCommitTxn},
	}
	for _, r := range records {
		_, err := w.Append(r)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	it, err := NewIterator(dir)
	require.NoError(t, err)
	defer it.Close()

	var got []Record
	for {
		rec, err := it.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, rec)
	}
	require.Equal(t, records, got)
}

func TestWriterRotatesAtSizeThreshold(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(config.WALConfig{
		Dir:              dir,
		MaxSegmentSizeMB: 0,
		Durability:       config.Strict,
	}, nil)
	require.NoError(t, err)
	// Force a tiny threshold after construction to trigger rotation on the
	// very next append without needing a megabyte of writes.
	w.maxSeg = 1
	defer w.Close()

	txid := uuid.New()
	_, err = w.Append(Record{TxID: txid, Type: RecordKvPut, Key: []byte("a"), Payload: []byte("1")})
	require.NoError(t, err)
	_, err = w.Append(Record{TxID: txid, Type: RecordKvPut, Key: []byte("b"), Payload: []byte("2")})
	require.NoError(t, err)

	seqs, _, err := NewRotator(dir, nil).ListSegments()
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(seqs), 2)
}

func TestBatchedModeFlushesOnClose(t *testing.T) {
	w := newTestWriter(t, config.Batched, 0)
	dir := w.dir

	txid := uuid.New()
	_, err := w.Append(Record{TxID: txid, Type: RecordKvPut, Key: []byte("a"), Payload: []byte("1")})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	it, err := NewIterator(dir)
	require.NoError(t, err)
	defer it.Close()

	rec, err := it.Next()
	require.NoError(t, err)
	require.Equal(t, RecordKvPut, rec.Type)
}
