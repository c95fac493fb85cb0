// Package snapshot implements periodic checkpointing of the versioned
// store to disk (spec.md §4.6): an atomically-installed file capturing
// every live key at a given version, so recovery can skip replaying the
// entire WAL history and instead start from the newest valid checkpoint.
//
// Format grounded on original_source/crates/durability/src/snapshot_types.rs's
// documented envelope (10-byte magic, version, header, CRC-protected body),
// generalized from one flat key/value section to per-TypeTag sections so
// each of the six primitives' live state lives in its own CRC-checked
// span; a corrupt vector section, say, doesn't have to invalidate the KV
// section sharing the same file.
package snapshot

import (
	"encoding/binary"
	"hash/crc32"
	"time"

	"github.com/stratadb/strata/internal/key"
)

// Magic identifies a Strata snapshot file, grounded on
// original_source/crates/durability/src/snapshot_types.rs's SNAPSHOT_MAGIC
// ("INMEM_SNAP") — renamed to this project's own tag.
const Magic = "STRATA_SNAP"

const FormatVersion uint8 = 1

var byteOrder = binary.LittleEndian

const (
	magicSize     = len(Magic)
	versionSize   = 1
	timestampSize = 8 // unix nanos
	walSeqSize    = 8
	walOffsetSize = 8
	txCountSize   = 8
	storeVerSize  = 8
	sectionsSize  = 4

	// headerSize covers every fixed field before the section list.
	headerSize = magicSize + versionSize + timestampSize + walSeqSize + walOffsetSize + txCountSize + storeVerSize + sectionsSize

	sectionTagSize    = 1
	sectionLengthSize = 4
	sectionCRCSize    = 4

	envelopeCRCSize = 4
)

// Header describes a snapshot's provenance: the WAL position it was taken
// at, so recovery knows where to resume replay (spec.md §4.5 step 3).
type Header struct {
	Timestamp time.Time
	WALSeq    int
	WALOffset int64
	TxCount   uint64
	// StoreVersion is the highest published store version reflected in
	// this snapshot; recovery seeds the version counter from it (spec.md
	// §4.5 step 5) before replaying any WAL record past WALOffset.
	StoreVersion uint64
}

// Section is one primitive's CRC-protected span of entries, encoded by its
// caller (internal/recovery and internal/engine) via internal/value's codec
// plus internal/key's Encode.
type Section struct {
	Tag  key.TypeTag
	Data []byte
}

// Entry is one key's live value as captured into a section, before the
// section's bytes are concatenated and CRC-covered.
type Entry struct {
	Key     []byte // key.Key.Encode()
	Value   []byte // value.Encode()
	Version uint64
}

// EncodeEntries packs entries into one section payload:
// count(4) | (keylen(2) key vallen(4) val version(8))*
func EncodeEntries(entries []Entry) []byte {
	size := 4
	for _, e := range entries {
		size += 2 + len(e.Key) + 4 + len(e.Value) + 8
	}
	buf := make([]byte, size)
	off := 0
	byteOrder.PutUint32(buf[off:], uint32(len(entries)))
	off += 4
	for _, e := range entries {
		byteOrder.PutUint16(buf[off:], uint16(len(e.Key)))
		off += 2
		copy(buf[off:], e.Key)
		off += len(e.Key)

		byteOrder.PutUint32(buf[off:], uint32(len(e.Value)))
		off += 4
		copy(buf[off:], e.Value)
		off += len(e.Value)

		byteOrder.PutUint64(buf[off:], e.Version)
		off += 8
	}
	return buf
}

// DecodeEntries reverses EncodeEntries.
func DecodeEntries(data []byte) ([]Entry, error) {
	if len(data) < 4 {
		return nil, ErrCorruptSection
	}
	off := 0
	count := byteOrder.Uint32(data[off:])
	off += 4

	entries := make([]Entry, 0, count)
	for i := uint32(0); i < count; i++ {
		if off+2 > len(data) {
			return nil, ErrCorruptSection
		}
		keyLen := int(byteOrder.Uint16(data[off:]))
		off += 2
		if off+keyLen > len(data) {
			return nil, ErrCorruptSection
		}
		k := make([]byte, keyLen)
		copy(k, data[off:off+keyLen])
		off += keyLen

		if off+4 > len(data) {
			return nil, ErrCorruptSection
		}
		valLen := int(byteOrder.Uint32(data[off:]))
		off += 4
		if off+valLen > len(data) {
			return nil, ErrCorruptSection
		}
		v := make([]byte, valLen)
		copy(v, data[off:off+valLen])
		off += valLen

		if off+8 > len(data) {
			return nil, ErrCorruptSection
		}
		version := byteOrder.Uint64(data[off:])
		off += 8

		entries = append(entries, Entry{Key: k, Value: v, Version: version})
	}
	return entries, nil
}

// encodeFile serializes the header and every section into one
// envelope-CRC-protected byte stream, ready to be written to a temp file.
func encodeFile(h Header, sections []Section) []byte {
	body := make([]byte, 0, 4096)

	hdr := make([]byte, headerSize)
	off := 0
	copy(hdr[off:], Magic)
	off += magicSize
	hdr[off] = FormatVersion
	off += versionSize
	byteOrder.PutUint64(hdr[off:], uint64(h.Timestamp.UnixNano()))
	off += timestampSize
	byteOrder.PutUint64(hdr[off:], uint64(h.WALSeq))
	off += walSeqSize
	byteOrder.PutUint64(hdr[off:], uint64(h.WALOffset))
	off += walOffsetSize
	byteOrder.PutUint64(hdr[off:], h.TxCount)
	off += txCountSize
	byteOrder.PutUint64(hdr[off:], h.StoreVersion)
	off += storeVerSize
	byteOrder.PutUint32(hdr[off:], uint32(len(sections)))
	body = append(body, hdr...)

	for _, s := range sections {
		secHeader := make([]byte, sectionTagSize+sectionLengthSize)
		secHeader[0] = byte(s.Tag)
		byteOrder.PutUint32(secHeader[sectionTagSize:], uint32(len(s.Data)))
		body = append(body, secHeader...)
		body = append(body, s.Data...)
		crc := crc32.ChecksumIEEE(s.Data)
		crcBuf := make([]byte, sectionCRCSize)
		byteOrder.PutUint32(crcBuf, crc)
		body = append(body, crcBuf...)
	}

	envelopeCRC := crc32.ChecksumIEEE(body)
	crcBuf := make([]byte, envelopeCRCSize)
	byteOrder.PutUint32(crcBuf, envelopeCRC)
	return append(body, crcBuf...)
}

// decodeFile is encodeFile's inverse, validating the envelope CRC and
// every section's own CRC before returning.
func decodeFile(data []byte) (Header, []Section, error) {
	if len(data) < headerSize+envelopeCRCSize {
		return Header{}, nil, ErrCorruptSnapshot
	}
	if string(data[:magicSize]) != Magic {
		return Header{}, nil, ErrBadMagic
	}

	body := data[:len(data)-envelopeCRCSize]
	storedEnvelopeCRC := byteOrder.Uint32(data[len(data)-envelopeCRCSize:])
	if crc32.ChecksumIEEE(body) != storedEnvelopeCRC {
		return Header{}, nil, ErrCRCMismatch
	}

	off := magicSize
	off += versionSize
	ts := int64(byteOrder.Uint64(data[off:]))
	off += timestampSize
	walSeq := int(byteOrder.Uint64(data[off:]))
	off += walSeqSize
	walOffset := int64(byteOrder.Uint64(data[off:]))
	off += walOffsetSize
	txCount := byteOrder.Uint64(data[off:])
	off += txCountSize
	storeVersion := byteOrder.Uint64(data[off:])
	off += storeVerSize
	sectionCount := byteOrder.Uint32(data[off:])
	off += sectionsSize

	h := Header{Timestamp: time.Unix(0, ts), WALSeq: walSeq, WALOffset: walOffset, TxCount: txCount, StoreVersion: storeVersion}

	sections := make([]Section, 0, sectionCount)
	for i := uint32(0); i < sectionCount; i++ {
		if off+sectionTagSize+sectionLengthSize > len(body) {
			return Header{}, nil, ErrCorruptSnapshot
		}
		tag := key.TypeTag(body[off])
		off += sectionTagSize
		length := int(byteOrder.Uint32(body[off:]))
		off += sectionLengthSize
		if off+length+sectionCRCSize > len(body) {
			return Header{}, nil, ErrCorruptSnapshot
		}
		sectionData := body[off : off+length]
		off += length
		storedCRC := byteOrder.Uint32(body[off:])
		off += sectionCRCSize
		if crc32.ChecksumIEEE(sectionData) != storedCRC {
			return Header{}, nil, ErrCorruptSection
		}
		sections = append(sections, Section{Tag: tag, Data: append([]byte(nil), sectionData...)})
	}

	return h, sections, nil
}
