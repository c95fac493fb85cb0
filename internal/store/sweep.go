package store

import (
	"time"

	"github.com/stratadb/strata/internal/key"
)

// TTLSweep drops chain heads (and any entries they mask) whose TTL has
// expired as of now. Reads of a TTL-expired head already return nil
// (spec.md §4.1 edge policy); this just reclaims the memory.
func (s *VersionedStore) TTLSweep(now time.Time) (swept int) {
	for _, sh := range s.shards {
		sh.mu.Lock()
		for encoded, n := range sh.data {
			if n.expiresAt != nil && n.expiresAt.Before(now) {
				delete(sh.data, encoded)
				swept++
			}
		}
		sh.mu.Unlock()
	}
	return swept
}

// ForEachLive calls fn for the newest live (non-tombstoned, non-expired)
// entry of every key, used by snapshot checkpointing and retention.
func (s *VersionedStore) ForEachLive(now time.Time, fn func(k key.Key, v *Versioned)) {
	for _, sh := range s.shards {
		sh.mu.RLock()
		for encoded, n := range sh.data {
			if n.expiresAt != nil && n.expiresAt.Before(now) {
				continue
			}
			if n.val == nil {
				continue
			}
			k, err := key.Decode([]byte(encoded))
			if err != nil {
				continue
			}
			fn(k, &Versioned{Value: n.val, Version: n.version, Timestamp: n.ts})
		}
		sh.mu.RUnlock()
	}
}

// PruneOlderThan trims each key's chain tail: it keeps the newest entry
// whose timestamp is before cutoff, and every newer one, and discards
// everything older — the "max age" retention policy of spec.md §4.7.
func (s *VersionedStore) PruneOlderThan(cutoff time.Time) (pruned int) {
	for _, sh := range s.shards {
		sh.mu.Lock()
		for _, n := range sh.data {
			cur := n
			for cur != nil && cur.next != nil {
				if !cur.ts.Before(cutoff) {
					cur = cur.next
					continue
				}
				cur.next = nil
				pruned++
				break
			}
		}
		sh.mu.Unlock()
	}
	return pruned
}

// PruneVersionsPerKey caps each key's chain to at most maxVersions
// entries, discarding the oldest beyond that — the "max versions per key"
// retention policy of spec.md §4.7. maxVersions <= 0 is a no-op.
func (s *VersionedStore) PruneVersionsPerKey(maxVersions int) (pruned int) {
	if maxVersions <= 0 {
		return 0
	}
	for _, sh := range s.shards {
		sh.mu.Lock()
		for _, n := range sh.data {
			cur := n
			depth := 1
			for cur != nil && cur.next != nil {
				if depth < maxVersions {
					depth++
					cur = cur.next
					continue
				}
				for t := cur.next; t != nil; t = t.next {
					pruned++
				}
				cur.next = nil
				break
			}
		}
		sh.mu.Unlock()
	}
	return pruned
}

// PruneBelow trims each key's chain tail: it keeps the newest entry whose
// version is below watermark, and every newer one, and discards everything
// older, supporting the retention policies of spec.md §4.7. It never removes the sole
// remaining entry for a key, live or tombstoned, so GetAt for versions at
// or above the watermark stays correct.
func (s *VersionedStore) PruneBelow(watermark uint64) (pruned int) {
	for _, sh := range s.shards {
		sh.mu.Lock()
		for _, n := range sh.data {
			cur := n
			for cur != nil && cur.next != nil {
				if cur.version >= watermark {
					cur = cur.next
					continue
				}
				// cur is below the watermark and has an older sibling;
				// everything from cur.next down is superseded and covered.
				cur.next = nil
				pruned++
				break
			}
		}
		sh.mu.Unlock()
	}
	return pruned
}
