package wal

import "io"

// Iterator walks every record across every segment in a WAL directory, in
// commit order, for the recovery coordinator's replay pass (spec.md §4.5
// step 3). Grounded on docdb/internal/wal/rotator.go's GetAllWALPaths
// (oldest segment first, active segment last).
type Iterator struct {
	dir      string
	seqs     []int
	segments []string
	idx      int
	cur      *SegmentReader
}

func NewIterator(dir string) (*Iterator, error) {
	r := NewRotator(dir, nil)
	seqs, paths, err := r.ListSegments()
	if err != nil {
		return nil, err
	}
	return &Iterator{dir: dir, seqs: seqs, segments: paths}, nil
}

// NewIteratorFrom skips every segment older than fromSeq and, within
// fromSeq itself, every record before fromOffset — the snapshot watermark
// recovery resumes WAL replay from (spec.md §4.5 step 4). A fromSeq with
// no matching segment (already trimmed, or never written) starts from the
// oldest segment still present, since that is the earliest durable data
// left to replay.
func NewIteratorFrom(dir string, fromSeq int, fromOffset int64) (*Iterator, error) {
	it, err := NewIterator(dir)
	if err != nil {
		return nil, err
	}
	for len(it.seqs) > 0 && it.seqs[0] < fromSeq {
		it.seqs = it.seqs[1:]
		it.segments = it.segments[1:]
	}
	if len(it.segments) == 0 {
		return it, nil
	}
	r, err := OpenSegmentReader(it.segments[0])
	if err != nil {
		return it, nil
	}
	if it.seqs[0] == fromSeq {
		for r.Offset() < fromOffset {
			if _, err := r.Next(); err != nil {
				break
			}
		}
	}
	it.cur = r
	it.idx = 0
	return it, nil
}

// Next returns the next record in the WAL, or io.EOF once every segment
// has been exhausted.
func (it *Iterator) Next() (Record, error) {
	for {
		if it.cur == nil {
			if it.idx >= len(it.segments) {
				return Record{}, io.EOF
			}
			r, err := OpenSegmentReader(it.segments[it.idx])
			if err != nil {
				// A segment that fails to open (bad header) is treated as
				// the end of the durable log, matching a corrupt tail
				// record's semantics: stop replay here.
				return Record{}, io.EOF
			}
			it.cur = r
		}

		rec, err := it.cur.Next()
		if err == io.EOF {
			it.cur.Close()
			it.cur = nil
			it.idx++
			continue
		}
		if err != nil {
			return Record{}, err
		}
		return rec, nil
	}
}

// Position reports the sequence number of the segment currently being
// read and the byte offset of its next unread record, or (0, 0) when no
// segment is open (including once Next has returned io.EOF). Recovery
// reports it as Result.WALSeq/WALOffset.
func (it *Iterator) Position() (seq int, offset int64) {
	if it.cur == nil {
		return 0, 0
	}
	return it.seqs[it.idx], it.cur.Offset()
}

func (it *Iterator) Close() error {
	if it.cur != nil {
		return it.cur.Close()
	}
	return nil
}
