// Package manifest implements the small control file that tells recovery
// where to start: which snapshot is active, which WAL segments are still
// live, and the retention watermark below which chain entries have
// already been pruned (spec.md §4.5, §4.7).
//
// Grounded on docdb/internal/catalog/catalog.go's durable-entries-on-disk
// shape, replacing its append-only entry log (appropriate for catalog
// entries that are only ever added, never rewritten) with an
// atomically-rewritten single record, since a manifest's entire content
// changes on every checkpoint/trim and must never be read half-written —
// the same temp-file+fsync+rename discipline internal/snapshot uses for
// the same reason.
package manifest

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sync"

	"github.com/stratadb/strata/internal/logger"
)

// Magic identifies a Strata manifest file.
const Magic = "SMNF"

const formatVersion uint8 = 1

var byteOrder = binary.LittleEndian

// State is the manifest's full content: everything recovery needs to
// avoid replaying more of the WAL than necessary, and everything
// retention needs to avoid trimming data recovery would still want.
type State struct {
	ActiveSnapshotVersion uint64
	LiveSegments          []int // WAL segment sequence numbers not yet trimmed
	RetentionWatermark    uint64
}

// Manifest guards State with atomically-installed persistence.
type Manifest struct {
	mu     sync.RWMutex
	path   string
	state  State
	logger *logger.Logger
}

func New(path string, log *logger.Logger) *Manifest {
	if log == nil {
		log = logger.Nop()
	}
	return &Manifest{path: path, logger: log.Component("manifest")}
}

// Load reads the manifest file if present; a missing file is not an
// error — it means a fresh data directory, and State's zero value (no
// snapshot yet, no live segments, watermark 0) is exactly the right
// starting state for recovery (spec.md §4.5: "no snapshot means replay
// every WAL segment from the beginning").
func (m *Manifest) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("manifest: read %s: %w", m.path, err)
	}
	state, err := decode(data)
	if err != nil {
		return err
	}
	m.state = state
	return nil
}

// State returns a copy of the current in-memory manifest state.
func (m *Manifest) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Save atomically installs a new manifest state, replacing the prior one
// in its entirety.
func (m *Manifest) Save(s State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return fmt.Errorf("manifest: mkdir: %w", err)
	}

	data := encode(s)
	tmp := m.path + ".tmp"

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("manifest: create temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("manifest: write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("manifest: fsync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, m.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("manifest: install: %w", err)
	}

	m.state = s
	m.logger.Info("manifest saved", map[string]any{
		"active_snapshot_version": s.ActiveSnapshotVersion,
		"live_segments":           len(s.LiveSegments),
		"retention_watermark":     s.RetentionWatermark,
	})
	return nil
}

func encode(s State) []byte {
	size := len(Magic) + 1 + 8 + 4 + len(s.LiveSegments)*8 + 8 + 4
	buf := make([]byte, size)
	off := 0
	copy(buf[off:], Magic)
	off += len(Magic)
	buf[off] = formatVersion
	off += 1

	byteOrder.PutUint64(buf[off:], s.ActiveSnapshotVersion)
	off += 8

	byteOrder.PutUint32(buf[off:], uint32(len(s.LiveSegments)))
	off += 4
	for _, seg := range s.LiveSegments {
		byteOrder.PutUint64(buf[off:], uint64(seg))
		off += 8
	}

	byteOrder.PutUint64(buf[off:], s.RetentionWatermark)
	off += 8

	crc := crc32.ChecksumIEEE(buf[:off])
	byteOrder.PutUint32(buf[off:], crc)
	return buf
}

func decode(data []byte) (State, error) {
	minLen := len(Magic) + 1 + 8 + 4 + 8 + 4
	if len(data) < minLen {
		return State{}, ErrCorruptManifest
	}
	if string(data[:len(Magic)]) != Magic {
		return State{}, ErrBadMagic
	}

	storedCRC := byteOrder.Uint32(data[len(data)-4:])
	computedCRC := crc32.ChecksumIEEE(data[:len(data)-4])
	if storedCRC != computedCRC {
		return State{}, ErrCRCMismatch
	}

	off := len(Magic)
	off += 1 // format version, unused by v1 readers

	activeSnapshot := byteOrder.Uint64(data[off:])
	off += 8

	count := byteOrder.Uint32(data[off:])
	off += 4

	segments := make([]int, 0, count)
	for i := uint32(0); i < count; i++ {
		if off+8 > len(data) {
			return State{}, ErrCorruptManifest
		}
		segments = append(segments, int(byteOrder.Uint64(data[off:])))
		off += 8
	}

	if off+8 > len(data) {
		return State{}, ErrCorruptManifest
	}
	watermark := byteOrder.Uint64(data[off:])

	return State{
		ActiveSnapshotVersion: activeSnapshot,
		LiveSegments:          segments,
		RetentionWatermark:    watermark,
	}, nil
}
