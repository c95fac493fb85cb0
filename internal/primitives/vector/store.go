package vector

import (
	"bytes"
	"sort"
	"sync"

	"github.com/stratadb/strata/internal/errors"
	"github.com/stratadb/strata/internal/key"
	"github.com/stratadb/strata/internal/recovery"
	"github.com/stratadb/strata/internal/txn"
	"github.com/stratadb/strata/internal/value"
)

const (
	collSeparator = "\x1f"
	collPrefix    = "coll"
	entryInfix    = "v"
)

func collKey(run key.RunId, name string) key.Key {
	return key.New(run, key.TagVector, []byte(collPrefix+collSeparator+name))
}

func entryPrefix(name string) []byte {
	return []byte(collPrefix + collSeparator + name + collSeparator + entryInfix + collSeparator)
}

func entryKey(run key.RunId, name string, id uint64) key.Key {
	var buf [8]byte
	bePutUint64(buf[:], id)
	return key.New(run, key.TagVector, append(entryPrefix(name), buf[:]...))
}

func bePutUint64(dst []byte, v uint64) {
	for i := 7; i >= 0; i-- {
		dst[i] = byte(v)
		v >>= 8
	}
}

func beUint64(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

// Store is the vector façade over one transaction manager. It owns an
// in-memory ANN index per (run, collection), rebuilt from the substrate
// on recovery since the index itself is never persisted (spec.md §4.8).
type Store struct {
	mgr   *txn.Manager
	retry *errors.RetryController

	mu      sync.Mutex
	indexes map[string]Index // run.String()+"/"+collection -> index
}

func New(mgr *txn.Manager) *Store {
	return &Store{mgr: mgr, retry: errors.DefaultRetryController(), indexes: make(map[string]Index)}
}

// SetManager binds mgr after construction — used by internal/engine, which
// must register this Store's RecoveryParticipant with the recovery
// coordinator before a *txn.Manager exists (the manager needs a
// wal.Writer, and the writer must not be opened until WAL replay has
// finished reading the same segments). RecoveryParticipant itself never
// touches s.mgr, so it runs safely before SetManager is ever called;
// every other method requires it to have been set first.
func (s *Store) SetManager(mgr *txn.Manager) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mgr = mgr
}

func (s *Store) indexKey(run key.RunId, name string) string {
	return run.String() + "/" + name
}

func (s *Store) indexFor(run key.RunId, name string) Index {
	k := s.indexKey(run, name)
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.indexes[k]
	if !ok {
		idx = NewFlatIndex()
		s.indexes[k] = idx
	}
	return idx
}

// CreateCollection registers a new fixed-shape collection.
func (s *Store) CreateCollection(run key.RunId, name string, cfg VectorConfig) (uint64, error) {
	ctx := s.mgr.Begin()
	k := collKey(run, name)
	cur := ctx.Snapshot().Get(k)
	if cur != nil && !cur.IsTombstone() {
		s.mgr.Abort(ctx)
		return 0, errors.ConstraintViolation("collection already exists: " + name)
	}
	ctx.CompareAndSwap(k, 0, encodeCollection(CollectionInfo{Name: name, Config: cfg, NextID: 0}))
	if err := s.mgr.Commit(ctx); err != nil {
		return 0, err
	}
	return ctx.CommitVersion(), nil
}

// GetCollection returns a collection's metadata.
func (s *Store) GetCollection(run key.RunId, name string) (CollectionInfo, error) {
	ctx := s.mgr.Begin()
	v := ctx.Snapshot().Get(collKey(run, name))
	s.mgr.Abort(ctx)
	if v == nil || v.IsTombstone() {
		return CollectionInfo{}, errors.NotFound("collection not found", name, run.String())
	}
	return decodeCollection(v.Value), nil
}

// ListCollections returns every live collection under run.
func (s *Store) ListCollections(run key.RunId) ([]CollectionInfo, error) {
	ctx := s.mgr.Begin()
	defer s.mgr.Abort(ctx)
	results := ctx.Snapshot().Scan(run, key.TagVector, []byte(collPrefix+collSeparator))
	out := make([]CollectionInfo, 0, len(results))
	for _, r := range results {
		if bytes.Contains(r.Key.User[len(collPrefix)+1:], []byte(collSeparator+entryInfix+collSeparator)) {
			continue // skip vector entry keys, which share the "coll/" prefix
		}
		out = append(out, decodeCollection(r.Entry.Value))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Insert adds vec (and optional metadata) to name, returning its
// never-reused VectorId.
func (s *Store) Insert(run key.RunId, name string, vec []float64, metadata value.Object) (id uint64, version uint64, err error) {
	ck := collKey(run, name)
	retryErr := s.retry.Do(func(attempt int) error {
		ctx := s.mgr.Begin()
		cur := ctx.Snapshot().Get(ck)
		if cur == nil || cur.IsTombstone() {
			s.mgr.Abort(ctx)
			return errors.NotFound("collection not found", name, run.String())
		}
		info := decodeCollection(cur.Value)
		if len(vec) != info.Config.Dimension {
			s.mgr.Abort(ctx)
			return errors.InvalidInput("vector dimension mismatch")
		}

		assignedID := info.NextID
		ek := entryKey(run, name, assignedID)
		ctx.Put(ek, encodeEntry(assignedID, vec, metadata, info.Config.Dtype), nil)

		info.NextID++
		ctx.CompareAndSwap(ck, cur.Version, encodeCollection(info))

		if err := s.mgr.Commit(ctx); err != nil {
			return err
		}
		id = assignedID
		version = ctx.CommitVersion()
		return nil
	})
	if retryErr != nil {
		return 0, 0, retryErr
	}
	s.indexFor(run, name).Add(id, vec)
	return id, version, nil
}

// Delete removes a vector by id. Its id is never reissued, per spec.md
// §4.8's "IDs are monotonically issued and never reused across
// deletes" — NextID only ever advances forward on Insert.
func (s *Store) Delete(run key.RunId, name string, id uint64) (uint64, error) {
	ctx := s.mgr.Begin()
	ctx.Delete(entryKey(run, name, id))
	if err := s.mgr.Commit(ctx); err != nil {
		return 0, err
	}
	s.indexFor(run, name).Remove(id)
	return ctx.CommitVersion(), nil
}

// Get returns a single stored vector by id.
func (s *Store) Get(run key.RunId, name string, id uint64) (VectorEntry, error) {
	info, err := s.GetCollection(run, name)
	if err != nil {
		return VectorEntry{}, err
	}
	ctx := s.mgr.Begin()
	v := ctx.Snapshot().Get(entryKey(run, name, id))
	s.mgr.Abort(ctx)
	if v == nil || v.IsTombstone() {
		return VectorEntry{}, errors.NotFound("vector not found", name, run.String())
	}
	return decodeEntry(v.Value, info.Config.Dtype, info.Config.Dimension), nil
}

// Search returns the k nearest matches to query using name's configured
// metric, from the in-memory ANN index.
func (s *Store) Search(run key.RunId, name string, query []float64, k int) ([]VectorMatch, error) {
	info, err := s.GetCollection(run, name)
	if err != nil {
		return nil, err
	}
	if len(query) != info.Config.Dimension {
		return nil, errors.InvalidInput("query dimension mismatch")
	}
	return s.indexFor(run, name).Search(query, k, info.Config.Metric), nil
}

// RecoveryParticipant rebuilds every collection's volatile index from
// materialized vector entries, registered against key.TagVector
// (spec.md §4.5 step 6, SPEC_FULL.md §5.8). It decodes collection
// metadata directly from the entries batch rather than through s.mgr
// (see SetManager's doc comment): the batch already contains every live
// TagVector key, collection metadata included, since Recover groups
// participants purely by tag.
func (s *Store) RecoveryParticipant() recovery.Participant {
	return func(entries []recovery.Entry) error {
		s.mu.Lock()
		s.indexes = make(map[string]Index)
		s.mu.Unlock()

		infos := make(map[string]CollectionInfo) // run/name -> info
		byColl := make(map[string][]recovery.Entry)
		for _, e := range entries {
			rest := e.Key.User[len(collPrefix)+1:]
			if bytes.Contains(rest, []byte(collSeparator+entryInfix+collSeparator)) {
				name := collectionNameFromEntryKey(e.Key.User)
				idxKey := e.Key.Run.String() + "/" + name
				byColl[idxKey] = append(byColl[idxKey], e)
			} else {
				idxKey := e.Key.Run.String() + "/" + string(rest)
				infos[idxKey] = decodeCollection(e.Value)
			}
		}
		for idxKey, group := range byColl {
			info, ok := infos[idxKey]
			if !ok {
				continue
			}
			idx := NewFlatIndex()
			for _, e := range group {
				id, ok := entryIDFromKey(e.Key.User, info.Name)
				if !ok {
					continue
				}
				vec := decodeEntry(e.Value, info.Config.Dtype, info.Config.Dimension)
				idx.Add(id, vec.Vector)
			}
			s.mu.Lock()
			s.indexes[idxKey] = idx
			s.mu.Unlock()
		}
		return nil
	}
}

func collectionNameFromEntryKey(user []byte) string {
	rest := user[len(collPrefix)+1:]
	idx := bytes.Index(rest, []byte(collSeparator+entryInfix+collSeparator))
	if idx < 0 {
		return ""
	}
	return string(rest[:idx])
}

func entryIDFromKey(user []byte, name string) (uint64, bool) {
	prefix := entryPrefix(name)
	if !bytes.HasPrefix(user, prefix) {
		return 0, false
	}
	idBytes := user[len(prefix):]
	if len(idBytes) != 8 {
		return 0, false
	}
	return beUint64(idBytes), true
}
