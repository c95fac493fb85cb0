package wal

import (
	"fmt"
	"os"
	"path/filepath"
)

// segmentMagic identifies a Strata WAL segment file, written once at
// offset 0 when a segment is created.
const segmentMagic = "STRATA_WAL"

// segmentHeaderSize is len(segmentMagic) + 1 byte format version.
var segmentHeaderSize = len(segmentMagic) + 1

// segmentFileName returns the on-disk name for sequence n, per spec.md
// §4.4's wal/seg-<n>.log layout.
func segmentFileName(n int) string {
	return fmt.Sprintf("seg-%06d.log", n)
}

// segmentPath joins dir and the sequence's file name.
func segmentPath(dir string, n int) string {
	return filepath.Join(dir, segmentFileName(n))
}

// createSegment creates a brand-new segment file and writes its header.
func createSegment(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, err
	}
	header := make([]byte, segmentHeaderSize)
	copy(header, segmentMagic)
	header[len(segmentMagic)] = FormatVersion
	if _, err := f.Write(header); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

// openSegmentForAppend opens an existing segment for appending, verifying
// its header magic first.
func openSegmentForAppend(path string) (*os.File, int64, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, 0, err
	}
	if err := verifySegmentHeader(f); err != nil {
		f.Close()
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	return f, info.Size(), nil
}

func verifySegmentHeader(f *os.File) error {
	header := make([]byte, segmentHeaderSize)
	if _, err := f.ReadAt(header, 0); err != nil {
		return fmt.Errorf("wal: read segment header: %w", err)
	}
	if string(header[:len(segmentMagic)]) != segmentMagic {
		return ErrBadSegmentMagic
	}
	return nil
}

// segmentVersion returns the trailing 1-byte format version from a header,
// unused today but read so a future version bump has somewhere to land.
func segmentVersion(header []byte) uint8 {
	if len(header) <= len(segmentMagic) {
		return 0
	}
	return header[len(segmentMagic)]
}
