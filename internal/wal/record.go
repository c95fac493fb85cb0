// Package wal implements Strata's write-ahead log (spec.md §4.4): segmented
// append-only files under wal/seg-<n>.log holding self-describing,
// CRC32-protected records, with a durability mode per config.DurabilityMode
// selecting the fsync strategy.
//
// Record framing is grounded on docdb/internal/wal/format.go's
// length-prefixed, CRC-suffixed style, with the envelope generalized from
// "document op on a collection" (bare uint64 txid, one fixed op set) to the
// spec's closed RecordType enum and a 16-byte transaction id, following
// original_source/crates/durability/src/wal_types.rs's envelope shape
// (length | type | version | txid | payload | crc32).
package wal

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/google/uuid"
	"github.com/stratadb/strata/internal/errors"
)

// RecordType discriminates every effect Strata's commit pipeline can write
// to the log (spec.md §4.4, §5.10 per-primitive ops collapsed onto one WAL).
type RecordType uint8

const (
	RecordBeginTxn RecordType = iota + 1
	RecordKvPut
	RecordKvDelete
	RecordJSONPatch
	RecordEventAppend
	RecordStateSet
	RecordVectorInsert
	RecordVectorDelete
	RecordRunMeta
	RecordCommitTxn
	RecordAbortTxn
	RecordCheckpoint
)

func (t RecordType) String() string {
	switch t {
	case RecordBeginTxn:
		return "BeginTxn"
	case RecordKvPut:
		return "KvPut"
	case RecordKvDelete:
		return "KvDelete"
	case RecordJSONPatch:
		return "JsonPatch"
	case RecordEventAppend:
		return "EventAppend"
	case RecordStateSet:
		return "StateSet"
	case RecordVectorInsert:
		return "VectorInsert"
	case RecordVectorDelete:
		return "VectorDelete"
	case RecordRunMeta:
		return "RunMeta"
	case RecordCommitTxn:
		return "CommitTxn"
	case RecordAbortTxn:
		return "AbortTxn"
	case RecordCheckpoint:
		return "Checkpoint"
	default:
		return "Unknown"
	}
}

// FormatVersion is written into every record so a future envelope change
// can coexist with records the current code already wrote.
const FormatVersion uint8 = 1

const (
	lengthSize  = 4
	typeSize    = 1
	versionSize = 1
	txIDSize    = 16
	keyLenSize  = 2
	payloadLenSize = 4
	crcSize     = 4

	// headerSize covers every fixed-width field before the variable-length
	// key and payload.
	headerSize = lengthSize + typeSize + versionSize + txIDSize + keyLenSize + payloadLenSize

	// MaxPayloadSize bounds a single record's payload, mirroring
	// docdb/internal/wal/constants.go's MaxPayloadSize guard.
	MaxPayloadSize = 16 * 1024 * 1024
)

var byteOrder = binary.LittleEndian

// Record is one WAL entry: a single key-level effect tagged with the
// transaction that produced it. Commit and abort markers carry a nil Key.
type Record struct {
	TxID    uuid.UUID
	Type    RecordType
	Key     []byte // Strata key.Key.Encode(), absent for txn markers
	Payload []byte
}

// Encode serializes r into the on-disk envelope:
// length(4) | type(1) | version(1) | txid(16) | keylen(2) | key | payloadlen(4) | payload | crc32(4)
func Encode(r Record) ([]byte, error) {
	if len(r.Payload) > MaxPayloadSize {
		return nil, errors.Corruption("wal record payload exceeds maximum size", nil)
	}
	if len(r.Key) > 0xFFFF {
		return nil, errors.Corruption("wal record key exceeds maximum size", nil)
	}

	total := headerSize + len(r.Key) + len(r.Payload) + crcSize
	buf := make([]byte, total)

	off := 0
	byteOrder.PutUint32(buf[off:], uint32(total))
	off += lengthSize

	buf[off] = byte(r.Type)
	off += typeSize

	buf[off] = FormatVersion
	off += versionSize

	copy(buf[off:], r.TxID[:])
	off += txIDSize

	byteOrder.PutUint16(buf[off:], uint16(len(r.Key)))
	off += keyLenSize
	copy(buf[off:], r.Key)
	off += len(r.Key)

	byteOrder.PutUint32(buf[off:], uint32(len(r.Payload)))
	off += payloadLenSize
	copy(buf[off:], r.Payload)
	off += len(r.Payload)

	crc := crc32.ChecksumIEEE(buf[:off])
	byteOrder.PutUint32(buf[off:], crc)

	return buf, nil
}

// Decode parses a single record previously produced by Encode. It returns
// ErrCRCMismatch / ErrCorruptRecord rather than panicking, so callers
// (recovery replay in particular) can treat a bad tail record as "stop
// here" instead of crashing the process.
func Decode(data []byte) (Record, error) {
	if len(data) < headerSize+crcSize {
		return Record{}, ErrCorruptRecord
	}

	off := 0
	length := byteOrder.Uint32(data[off:])
	off += lengthSize
	if int(length) != len(data) {
		return Record{}, ErrCorruptRecord
	}

	storedCRC := byteOrder.Uint32(data[len(data)-crcSize:])
	computedCRC := crc32.ChecksumIEEE(data[:len(data)-crcSize])
	if storedCRC != computedCRC {
		return Record{}, ErrCRCMismatch
	}

	rtype := RecordType(data[off])
	off += typeSize

	off += versionSize // format version, unused by v1 readers

	var txid uuid.UUID
	copy(txid[:], data[off:off+txIDSize])
	off += txIDSize

	keyLen := int(byteOrder.Uint16(data[off:]))
	off += keyLenSize
	if off+keyLen > len(data) {
		return Record{}, ErrCorruptRecord
	}
	var key []byte
	if keyLen > 0 {
		key = make([]byte, keyLen)
		copy(key, data[off:off+keyLen])
		off += keyLen
	}

	payloadLen := int(byteOrder.Uint32(data[off:]))
	off += payloadLenSize
	if off+payloadLen+crcSize != len(data) {
		return Record{}, ErrCorruptRecord
	}
	var payload []byte
	if payloadLen > 0 {
		payload = make([]byte, payloadLen)
		copy(payload, data[off:off+payloadLen])
	}

	return Record{TxID: txid, Type: rtype, Key: key, Payload: payload}, nil
}
