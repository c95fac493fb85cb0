package wal

import "errors"

var (
	ErrCorruptRecord   = errors.New("wal: corrupt record: invalid length or framing")
	ErrCRCMismatch     = errors.New("wal: crc mismatch")
	ErrSegmentNotFound = errors.New("wal: active segment not found")
	ErrBadSegmentMagic = errors.New("wal: segment header magic mismatch")
)
