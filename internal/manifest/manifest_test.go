package manifest

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileIsZeroState(t *testing.T) {
	m := New(filepath.Join(t.TempDir(), "MANIFEST"), nil)
	require.NoError(t, m.Load())
	require.Equal(t, State{}, m.State())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "MANIFEST")
	m := New(path, nil)

	s := State{ActiveSnapshotVersion: 42, LiveSegments: []int{3, 4, 5}, RetentionWatermark: 10}
	require.NoError(t, m.Save(s))

	m2 := New(path, nil)
	require.NoError(t, m2.Load())
	require.Equal(t, s, m2.State())
}

func TestSaveOverwritesPriorState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "MANIFEST")
	m := New(path, nil)
	require.NoError(t, m.Save(State{ActiveSnapshotVersion: 1, LiveSegments: []int{1}}))
	require.NoError(t, m.Save(State{ActiveSnapshotVersion: 2, LiveSegments: []int{2, 3}, RetentionWatermark: 5}))

	m2 := New(path, nil)
	require.NoError(t, m2.Load())
	require.Equal(t, State{ActiveSnapshotVersion: 2, LiveSegments: []int{2, 3}, RetentionWatermark: 5}, m2.State())
}
