package snapshot

import "errors"

var (
	ErrBadMagic        = errors.New("snapshot: magic mismatch")
	ErrCorruptSnapshot = errors.New("snapshot: corrupt file")
	ErrCorruptSection  = errors.New("snapshot: corrupt section")
	ErrCRCMismatch     = errors.New("snapshot: envelope crc mismatch")
	ErrNoSnapshots     = errors.New("snapshot: no snapshot files found")
)
