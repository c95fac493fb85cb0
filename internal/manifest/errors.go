package manifest

import "errors"

var (
	ErrBadMagic        = errors.New("manifest: magic mismatch")
	ErrCorruptManifest = errors.New("manifest: corrupt file")
	ErrCRCMismatch     = errors.New("manifest: crc mismatch")
)
