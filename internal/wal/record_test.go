package wal

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestRecordRoundTrip(t *testing.T) {
	r := Record{
		TxID:    uuid.New(),
		Type:    RecordKvPut,
		Key:     []byte("some-key"),
		Payload: []byte("some-payload"),
	}
	encoded, err := Encode(r)
	require.NoError(t, err)

	decoded, err := Decode(encoded)
	require.NoError(t, err)
	require.Equal(t, r, decoded)
}

func TestRecordRoundTripEmptyKeyAndPayload(t *testing.T) {
	r := Record{TxID: uuid.New(), Type: RecordCommitTxn}
	encoded, err := Encode(r)
	require.NoError(t, err)

	decoded, err := Decode(encoded)
	require.NoError(t, err)
	require.Equal(t, r.TxID, decoded.TxID)
	require.Equal(t, r.Type, decoded.Type)
	require.Empty(t, decoded.Key)
	require.Empty(t, decoded.Payload)
}

func TestDecodeRejectsTamperedRecord(t *testing.T) {
	r := Record{TxID: uuid.New(), Type: RecordKvPut, Key: []byte("k"), Payload: []byte("v")}
	encoded, err := Encode(r)
	require.NoError(t, err)

	tampered := append([]byte(nil), encoded...)
	tampered[len(tampered)-5] ^= 0xFF

	_, err = Decode(tampered)
	require.ErrorIs(t, err, ErrCRCMismatch)
}

func TestDecodeRejectsTruncatedRecord(t *testing.T) {
	r := Record{TxID: uuid.New(), Type: RecordKvPut, Key: []byte("k"), Payload: []byte("v")}
	encoded, err := Encode(r)
	require.NoError(t, err)

	_, err = Decode(encoded[:len(encoded)-2])
	require.Error(t, err)
}
