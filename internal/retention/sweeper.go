package retention

import (
	"time"

	"github.com/stratadb/strata/internal/logger"
	"github.com/stratadb/strata/internal/manifest"
	"github.com/stratadb/strata/internal/store"
)

// SweepResult reports what one retention pass actually did.
type SweepResult struct {
	VersionsPruned int
	TTLExpired     int
}

// Sweeper applies a Policy against the live store, grounded on
// docdb/internal/docdb/compaction.go's "decide, then act" split between
// ShouldCompact and Compact.
type Sweeper struct {
	store  *store.VersionedStore
	logger *logger.Logger
}

func NewSweeper(s *store.VersionedStore, log *logger.Logger) *Sweeper {
	if log == nil {
		log = logger.Nop()
	}
	return &Sweeper{store: s, logger: log.Component("retention.sweeper")}
}

// Sweep runs every configured policy dimension once. Policies compose:
// a version may be pruned by the watermark, the age cutoff, or the
// per-key version cap, whichever fires first for that chain entry.
func (sw *Sweeper) Sweep(p Policy, now time.Time) SweepResult {
	var res SweepResult

	res.TTLExpired = sw.store.TTLSweep(now)

	if p.WatermarkVersion > 0 {
		res.VersionsPruned += sw.store.PruneBelow(p.WatermarkVersion)
	}
	if p.MaxAge > 0 {
		res.VersionsPruned += sw.store.PruneOlderThan(now.Add(-p.MaxAge))
	}
	if p.MaxVersionsPerKey > 0 {
		res.VersionsPruned += sw.store.PruneVersionsPerKey(p.MaxVersionsPerKey)
	}

	sw.logger.Info("retention sweep complete", map[string]any{
		"versions_pruned": res.VersionsPruned,
		"ttl_expired":      res.TTLExpired,
	})
	return res
}

// WatermarkFromManifest derives a safe PruneBelow watermark: only chain
// entries covered by the manifest's currently-active, already-installed
// snapshot are safe to drop, since a crash before a newer snapshot lands
// must still be able to replay them from the WAL (spec.md §4.7:
// "only after a snapshot covers them").
func WatermarkFromManifest(m *manifest.Manifest) uint64 {
	return m.State().ActiveSnapshotVersion
}
