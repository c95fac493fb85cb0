package wal

import (
	"encoding/binary"
	"io"
	"os"
)

// SegmentReader sequentially reads records from one segment file, stopping
// at the first corrupt or torn record (recovery treats that as "this is
// where the crash happened" per spec.md §4.5 invariant R3, rather than an
// error to propagate). Grounded on docdb/internal/wal/reader.go's
// forward-only iteration, adapted to the length-prefix-then-CRC framing of
// record.go instead of the teacher's fixed-offset header.
type SegmentReader struct {
	file   *os.File
	offset int64
}

func OpenSegmentReader(path string) (*SegmentReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if err := verifySegmentHeader(f); err != nil {
		f.Close()
		return nil, err
	}
	return &SegmentReader{file: f, offset: int64(segmentHeaderSize)}, nil
}

// Next returns the next record, or (Record{}, io.EOF) at a clean
// end-of-segment. A truncated or CRC-mismatched tail record also yields
// io.EOF (not an error) since that is the expected shape of a segment
// whose last write was interrupted by a crash; Offset() still reports the
// last good position so the caller can truncate or simply stop there.
func (r *SegmentReader) Next() (Record, error) {
	lenBuf := make([]byte, lengthSize)
	if _, err := io.ReadFull(r.file, lenBuf); err != nil {
		return Record{}, io.EOF
	}

	length := binary.LittleEndian.Uint32(lenBuf)
	if length < uint32(lengthSize) || length > uint32(MaxPayloadSize)+uint32(headerSize)+uint32(crcSize) {
		return Record{}, io.EOF
	}

	rest := make([]byte, length-uint32(lengthSize))
	if _, err := io.ReadFull(r.file, rest); err != nil {
		return Record{}, io.EOF
	}

	full := make([]byte, length)
	copy(full[:lengthSize], lenBuf)
	copy(full[lengthSize:], rest)

	rec, err := Decode(full)
	if err != nil {
		return Record{}, io.EOF
	}

	r.offset += int64(length)
	return rec, nil
}

// Offset reports the byte offset of the next unread record, i.e. the
// boundary of the last successfully-decoded record.
func (r *SegmentReader) Offset() int64 { return r.offset }

func (r *SegmentReader) Close() error { return r.file.Close() }
