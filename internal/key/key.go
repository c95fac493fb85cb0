// Package key implements Strata's namespacing model: every key is a
// (RunId, TypeTag, user_bytes) triple, and two keys collide iff all three
// components match (spec.md invariant I4: run isolation, I5: TypeTag
// purity).
package key

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"

	"github.com/google/uuid"
)

// RunId identifies the top-level isolation unit. Generated with
// google/uuid, grounded on its use across the retrieval pack (platform,
// cuemby-warren) for exactly this kind of opaque stable identifier.
type RunId [16]byte

func NewRunId() RunId {
	return RunId(uuid.New())
}

func (r RunId) String() string {
	return uuid.UUID(r).String()
}

func (r RunId) IsZero() bool {
	return r == RunId{}
}

// TypeTag discriminates the six primitives sharing the substrate.
type TypeTag byte

const (
	TagKV TypeTag = iota + 1
	TagJSON
	TagEvent
	TagState
	TagVector
	TagRunMeta
)

func (t TypeTag) String() string {
	switch t {
	case TagKV:
		return "kv"
	case TagJSON:
		return "json"
	case TagEvent:
		return "event"
	case TagState:
		return "state"
	case TagVector:
		return "vector"
	case TagRunMeta:
		return "run"
	default:
		return fmt.Sprintf("tag(%d)", t)
	}
}

// Key is the universal addressing triple.
type Key struct {
	Run  RunId
	Tag  TypeTag
	User []byte
}

func New(run RunId, tag TypeTag, user []byte) Key {
	u := make([]byte, len(user))
	copy(u, user)
	return Key{Run: run, Tag: tag, User: u}
}

// Encode produces a stable byte representation used both as the store's
// map key and as the key payload inside WAL/snapshot records.
func (k Key) Encode() []byte {
	buf := make([]byte, 0, 16+1+len(k.User))
	buf = append(buf, k.Run[:]...)
	buf = append(buf, byte(k.Tag))
	buf = append(buf, k.User...)
	return buf
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Run, k.Tag, k.User)
}

// ShardHash hashes the fully-namespaced key (run + tag + user bytes) so
// shard placement depends on the whole triple, not just the user-visible
// name — generalizing the teacher's `doc_id % num_shards` (which sharded
// on a bare numeric ID) so that invariant I4/I5 hold even if two runs
// happen to pick identical user-key bytes.
func (k Key) ShardHash() uint64 {
	h := fnv.New64a()
	var tmp [8]byte
	h.Write(k.Run[:])
	h.Write([]byte{byte(k.Tag)})
	h.Write(k.User)
	sum := h.Sum64()
	binary.LittleEndian.PutUint64(tmp[:], sum)
	return sum
}

// Decode parses a Key previously produced by Encode.
func Decode(data []byte) (Key, error) {
	if len(data) < 17 {
		return Key{}, fmt.Errorf("key: truncated encoding")
	}
	var run RunId
	copy(run[:], data[:16])
	tag := TypeTag(data[16])
	user := make([]byte, len(data)-17)
	copy(user, data[17:])
	return Key{Run: run, Tag: tag, User: user}, nil
}

// HasPrefix reports whether k's user bytes begin with prefix, for scan
// operations within a single run+tag namespace.
func (k Key) HasPrefix(run RunId, tag TypeTag, prefix []byte) bool {
	if k.Run != run || k.Tag != tag {
		return false
	}
	if len(prefix) > len(k.User) {
		return false
	}
	for i, b := range prefix {
		if k.User[i] != b {
			return false
		}
	}
	return true
}
