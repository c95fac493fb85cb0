package snapshot

import (
	"time"

	"github.com/stratadb/strata/internal/key"
	"github.com/stratadb/strata/internal/store"
	"github.com/stratadb/strata/internal/value"
)

// BuildSections walks every live entry in s (internal/store.ForEachLive)
// and groups it into one Section per TypeTag, encoding each Value with
// internal/value's stable codec — the one canonical serialization Open
// Question 2 settles on, used identically here and in the WAL.
func BuildSections(s *store.VersionedStore, at time.Time) []Section {
	byTag := make(map[key.TypeTag][]Entry)
	s.ForEachLive(at, func(k key.Key, v *store.Versioned) {
		byTag[k.Tag] = append(byTag[k.Tag], Entry{
			Key:     k.Encode(),
			Value:   value.Encode(v.Value),
			Version: v.Version,
		})
	})

	sections := make([]Section, 0, len(byTag))
	for tag, entries := range byTag {
		sections = append(sections, Section{Tag: tag, Data: EncodeEntries(entries)})
	}
	return sections
}

// Restore replays every section's entries back into s at their original
// versions, then seeds s's version counter to h.StoreVersion — the first
// half of spec.md §4.5's recovery sequence (snapshot load precedes WAL
// replay from h.WALOffset).
func Restore(s *store.VersionedStore, snap *Snapshot) error {
	for _, entries := range snap.Sections {
		for _, e := range entries {
			k, err := key.Decode(e.Key)
			if err != nil {
				return err
			}
			v, _, err := value.Decode(e.Value)
			if err != nil {
				return err
			}
			s.Apply(e.Version, snap.Header.Timestamp, []store.Mutation{{Key: k, Value: v}})
		}
	}
	s.SetVersion(snap.Header.StoreVersion)
	return nil
}
