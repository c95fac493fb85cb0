// Package retention implements Strata's retention and compaction
// bookkeeping (spec.md §4.7): garbage-collecting superseded chain
// versions once a snapshot covers them, and trimming WAL segments that a
// later snapshot has made redundant.
//
// Grounded on docdb/internal/docdb/compaction.go's trigger conditions
// (size threshold, tombstone ratio) and
// _teacher_other/docdb_wal_reference/trimmer.go's
// trim-everything-before-the-checkpoint-except-keepSegments discipline,
// adapted from per-document data-file rewriting (the teacher's model: one
// physical file per partition, compacted by rewriting it) to Strata's
// substrate, where compaction only ever needs to trim chain *tails*
// in-process (store.PruneBelow) and drop whole immutable WAL segments —
// there is no physical data file to rewrite.
package retention

import "time"

// Policy configures one retention sweep, matching the three shapes
// spec.md §4.7 names: "max age, max versions per key, or keep commit
// history up to version V."
type Policy struct {
	// MaxAge prunes, per key, every entry older than the newest entry
	// whose timestamp is more than MaxAge ago; that entry and all newer
	// ones stay. Sweep applies it without checking snapshot coverage.
	// Zero disables the age check.
	MaxAge time.Duration

	// MaxVersionsPerKey caps how many versions of a single key's chain
	// retention keeps, the live head included. Zero disables the cap.
	MaxVersionsPerKey int

	// WatermarkVersion: per key, entries older than the newest entry
	// below this version are pruned (fed by the manifest's
	// RetentionWatermark, itself derived from the newest installed
	// snapshot's StoreVersion — spec.md's "fully covered by a snapshot").
	WatermarkVersion uint64
}
