package recovery

import "github.com/stratadb/strata/internal/store"

// ReplayReport is the read-only result of a DryRun: what recovery would
// produce, without ever installing it as the canonical store.
type ReplayReport struct {
	Result
}

// DryRun runs the full recovery sequence against a throwaway, never-
// published store and reports what it would have produced — diagnostic
// tooling for "what would recovery produce right now", grounded on
// original_source/crates/engine/src/replay.rs's side-effect-free
// ReplayView: it reads the same manifest/snapshot/WAL inputs a real
// recovery would, but the store it builds is discarded when DryRun
// returns, and registered participants (which mutate runtime indices
// outside the store) are intentionally not invoked here.
func DryRun(walDir, snapshotDir, manifestPath string) (*ReplayReport, error) {
	c := New(walDir, snapshotDir, manifestPath, nil)
	scratch := store.New(store.DefaultNumShards)
	res, err := c.Recover(scratch)
	if err != nil {
		return nil, err
	}
	return &ReplayReport{Result: *res}, nil
}
