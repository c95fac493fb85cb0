// Package store implements the versioned key/version store (spec.md §4.1):
// a sharded in-memory map from Key to a newest-first version chain, with
// TTL and tombstones, producing cloned SnapshotViews for isolated reads.
//
// Grounded on docdb/internal/docdb/index.go's IndexShard (sharded map,
// per-shard RWMutex, hash-modulo placement), generalized from "one
// DocumentVersion per key" to a full version chain so that GetAt(key, v)
// and invariant I2 (chain order) hold, which the teacher's MVCC-lite
// (single head, no history) does not need to support.
package store

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/stratadb/strata/internal/key"
	"github.com/stratadb/strata/internal/value"
)

// Versioned is the universal read result (spec.md glossary).
type Versioned struct {
	Value     value.Value // nil means tombstone
	Version   uint64
	Timestamp time.Time
}

func (v *Versioned) IsTombstone() bool { return v == nil || v.Value == nil }

// node is one entry in a key's version chain.
type node struct {
	version   uint64
	val       value.Value // nil == tombstone
	ts        time.Time
	expiresAt *time.Time
	next      *node // older
}

// Mutation describes a single key's effect at a commit version.
type Mutation struct {
	Key     key.Key
	Value   value.Value // nil == delete (tombstone)
	TTL     *time.Time
}

const DefaultNumShards = 256

// DefaultHeadCacheSize matches config.StoreConfig's default ScanCacheSize
// (internal/config.Default's Store.ScanCacheSize): the common case of
// repeatedly reading a hot key's current head shouldn't have to walk a
// shard's chain and take its lock every time.
const DefaultHeadCacheSize = 1024

type shard struct {
	mu   sync.RWMutex
	data map[string]*node
}

// headEntry is what VersionedStore.headCache caches: enough of a chain
// head to answer GetLatest without walking the chain, independent of the
// node it was read from (which may since have been superseded).
type headEntry struct {
	val       value.Value
	version   uint64
	ts        time.Time
	expiresAt *time.Time
}

// VersionedStore is the shared substrate under all six primitives.
type VersionedStore struct {
	shards    []*shard
	numShards uint64
	version   atomicCounter

	// headCache memoizes each key's current published head, invalidated
	// on every Apply (spec.md §4.1's read path is overwhelmingly
	// "read the live value", not "read some prior version" — GetAt with
	// an explicit historical version always bypasses it).
	headCache *lru.Cache[string, headEntry]
}

func New(numShards int) *VersionedStore {
	return NewWithCacheSize(numShards, DefaultHeadCacheSize)
}

// NewWithCacheSize is New with an explicit head-cache capacity, used by
// internal/engine to thread config.StoreConfig.ScanCacheSize through
// rather than hardcoding the default.
func NewWithCacheSize(numShards, cacheSize int) *VersionedStore {
	if numShards <= 0 {
		numShards = DefaultNumShards
	}
	s := &VersionedStore{
		shards:    make([]*shard, numShards),
		numShards: uint64(numShards),
	}
	for i := range s.shards {
		s.shards[i] = &shard{data: make(map[string]*node)}
	}
	if cacheSize > 0 {
		c, err := lru.New[string, headEntry](cacheSize)
		if err == nil {
			s.headCache = c
		}
	}
	return s
}

func (s *VersionedStore) shardFor(k key.Key) *shard {
	return s.shards[k.ShardHash()%s.numShards]
}

// CurrentVersion returns the highest published version.
func (s *VersionedStore) CurrentVersion() uint64 {
	return s.version.load()
}

// GetLatest returns the newest record visible at the current published
// version — for a deleted key that is its tombstone record (IsTombstone
// reports true) — or nil if the key is absent or that record has expired.
// Checks
// headCache first: a hit answers without taking the shard's lock or
// walking its chain at all.
func (s *VersionedStore) GetLatest(k key.Key) *Versioned {
	now := time.Now()
	encoded := string(k.Encode())
	if s.headCache != nil {
		if e, ok := s.headCache.Get(encoded); ok {
			if e.expiresAt != nil && e.expiresAt.Before(now) {
				return nil
			}
			return &Versioned{Value: e.val, Version: e.version, Timestamp: e.ts}
		}
	}

	current := s.CurrentVersion()
	sh := s.shardFor(k)
	sh.mu.RLock()
	n := sh.data[encoded]
	// A head above the published version belongs to a commit between Apply
	// and Publish, so the entry found below it is not cached. Adding under
	// the shard lock orders any Add before the Remove of a later Apply.
	pending := n != nil && n.version > current
	for n != nil && n.version > current {
		n = n.next
	}
	if n != nil && !pending && s.headCache != nil {
		s.headCache.Add(encoded, headEntry{val: n.val, version: n.version, ts: n.ts, expiresAt: n.expiresAt})
	}
	sh.mu.RUnlock()
	if n == nil {
		return nil
	}
	if n.expiresAt != nil && n.expiresAt.Before(now) {
		return nil
	}
	return &Versioned{Value: n.val, Version: n.version, Timestamp: n.ts}
}

// GetAt returns the newest record with version <= snapshotVersion. Always
// walks the chain: headCache only ever memoizes the current published
// head, not arbitrary historical versions.
func (s *VersionedStore) GetAt(k key.Key, snapshotVersion uint64) *Versioned {
	return s.getAt(k, snapshotVersion, time.Now())
}

func (s *VersionedStore) getAt(k key.Key, snapshotVersion uint64, now time.Time) *Versioned {
	sh := s.shardFor(k)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	n := sh.data[string(k.Encode())]
	for n != nil {
		if n.version <= snapshotVersion {
			if n.expiresAt != nil && n.expiresAt.Before(now) {
				return nil
			}
			return &Versioned{Value: n.val, Version: n.version, Timestamp: n.ts}
		}
		n = n.next
	}
	return nil
}

// Apply installs all mutations as new chain heads at version, atomically
// per shard (each shard's lock is held only long enough to prepend its
// share of the mutations, so a reader never sees a torn write: it sees
// either none of this version's heads or a fully-prepended one per key).
func (s *VersionedStore) Apply(version uint64, ts time.Time, muts []Mutation) {
	for _, m := range muts {
		sh := s.shardFor(m.Key)
		sh.mu.Lock()
		encoded := string(m.Key.Encode())
		head := &node{
			version:   version,
			val:       m.Value,
			ts:        ts,
			expiresAt: m.TTL,
			next:      sh.data[encoded],
		}
		sh.data[encoded] = head
		sh.mu.Unlock()

		// The new head isn't published yet (Publish runs after every
		// Apply in this commit), so don't cache it here — just evict
		// whatever GetLatest had cached for this key, so the first read
		// after Publish misses and repopulates from the new head instead
		// of answering from a now-superseded one.
		if s.headCache != nil {
			s.headCache.Remove(encoded)
		}
	}
}

// Publish advances the published version watermark. Must be called only
// by the transaction manager, exactly once per committed version, after
// Apply has completed (spec.md §4.3 step 6).
func (s *VersionedStore) Publish(version uint64) {
	s.version.advanceTo(version)
}

// NextVersion atomically increments and returns the new global version
// counter value (spec.md §4.3 step 3, invariant I6: exactly once/commit).
func (s *VersionedStore) NextVersion() uint64 {
	return s.version.increment()
}

// SetVersion seeds the version counter from recovery (spec.md §4.5 step 5).
// Must only be called before any writer begins issuing new versions.
func (s *VersionedStore) SetVersion(version uint64) {
	s.version.reset(version)
}
