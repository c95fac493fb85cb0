package txn

import (
	"github.com/stratadb/strata/internal/errors"
	"github.com/stratadb/strata/internal/key"
	"github.com/stratadb/strata/internal/store"
)

// ConflictType discriminates why a transaction failed validation, mirroring
// original_source/crates/concurrency/src/validation.rs's ConflictType.
type ConflictType int

const (
	NoConflict ConflictType = iota
	ReadWriteConflict
	CasConflict
)

// Conflict names the specific key that caused validation to fail.
type Conflict struct {
	Type ConflictType
	Key  key.Key
}

// validateReadSet checks first-committer-wins: if any key this
// transaction read has a newer committed version than what the
// transaction observed, a concurrent writer beat it to that key (spec.md
// invariant I1, edge case "concurrent writers to the same key").
// Blind writes — keys in the write set that were never read — never
// conflict here, matching occ_invariants.rs's "blind writes don't
// conflict" and allowing write skew, which spec.md permits.
func validateReadSet(s *store.VersionedStore, readSet map[string]uint64) *Conflict {
	for encoded, observedVersion := range readSet {
		k, err := key.Decode([]byte(encoded))
		if err != nil {
			continue
		}
		current := s.GetLatest(k)
		var currentVersion uint64
		if current != nil {
			currentVersion = current.Version
		}
		if currentVersion != observedVersion {
			return &Conflict{Type: ReadWriteConflict, Key: k}
		}
	}
	return nil
}

// validateCASSet checks every compare-and-swap precondition against the
// store's current state, independent of whether the key was also read
// (cas_operations.rs's "CAS not in read set" case).
func validateCASSet(s *store.VersionedStore, casSet map[string]CASOperation) *Conflict {
	for _, op := range casSet {
		current := s.GetLatest(op.Key)
		var currentVersion uint64
		if current != nil {
			currentVersion = current.Version
		}
		if currentVersion != op.ExpectedVersion {
			return &Conflict{Type: CasConflict, Key: op.Key}
		}
	}
	return nil
}

// validate runs every check the commit pipeline requires before a
// transaction is allowed to issue a new version (spec.md §4.3 step 2).
// Must be called while holding the manager's commit lock so the
// store state it checks against cannot change before Apply/Publish.
func validate(s *store.VersionedStore, c *Context) error {
	if conflict := validateReadSet(s, c.readSet); conflict != nil {
		return errors.ReadWriteConflict(conflict.Key.String(), conflict.Key.Run.String())
	}
	if conflict := validateCASSet(s, c.casSet); conflict != nil {
		current := s.GetLatest(conflict.Key)
		var actual uint64
		if current != nil {
			actual = current.Version
		}
		return errors.CasConflict(conflict.Key.String(), conflict.Key.Run.String(), c.casSet[string(conflict.Key.Encode())].ExpectedVersion, actual)
	}
	return nil
}
