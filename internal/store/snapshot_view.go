package store

import (
	"time"

	"github.com/stratadb/strata/internal/key"
)

// SnapshotView is a cheap, immutable reader of the store at a captured
// version (spec.md §4.1, glossary "Snapshot view"). It is cheap because
// chain heads are copy-on-write: Apply never mutates an existing node, it
// only prepends, so a view simply needs to remember the version at which
// it was captured and route every read through GetAt with that bound.
// Capturing a view never blocks subsequent writers.
type SnapshotView struct {
	store   *VersionedStore
	version uint64
	at      time.Time
}

// Snapshot captures the current published version as an immutable view.
func (s *VersionedStore) Snapshot() *SnapshotView {
	return &SnapshotView{store: s, version: s.CurrentVersion(), at: time.Now()}
}

func (v *SnapshotView) Version() uint64 { return v.version }

func (v *SnapshotView) Get(k key.Key) *Versioned {
	return v.store.getAt(k, v.version, v.at)
}

// ScanResult is one entry returned by a prefix scan.
type ScanResult struct {
	Key   key.Key
	Entry *Versioned
}

// Scan walks every live key under (run, tag, prefix) as of this view.
// Weakly consistent per spec.md §4.1: it observes a fixed prefix point and
// skips keys created after the view was captured, because it only ever
// consults chain entries with version <= v.version.
func (v *SnapshotView) Scan(run key.RunId, tag key.TypeTag, prefix []byte) []ScanResult {
	var out []ScanResult
	for _, sh := range v.store.shards {
		sh.mu.RLock()
		for encoded, n := range sh.data {
			k, err := key.Decode([]byte(encoded))
			if err != nil {
				continue
			}
			if !k.HasPrefix(run, tag, prefix) {
				continue
			}
			for cur := n; cur != nil; cur = cur.next {
				if cur.version <= v.version {
					if cur.expiresAt != nil && cur.expiresAt.Before(v.at) {
						break
					}
					if cur.val != nil {
						out = append(out, ScanResult{Key: k, Entry: &Versioned{Value: cur.val, Version: cur.version, Timestamp: cur.ts}})
					}
					break
				}
			}
		}
		sh.mu.RUnlock()
	}
	return out
}
