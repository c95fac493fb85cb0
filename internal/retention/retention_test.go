package retention

import (
	"testing"
	"time"

	"github.com/stratadb/strata/internal/key"
	"github.com/stratadb/strata/internal/manifest"
	"github.com/stratadb/strata/internal/store"
	"github.com/stratadb/strata/internal/value"
	"github.com/stratadb/strata/internal/wal"
	"github.com/stretchr/testify/require"
)

func TestSweepPrunesBelowWatermark(t *testing.T) {
	s := store.New(4)
	k := key.New(key.NewRunId(), key.TagKV, []byte("a"))
	now := time.Now()

	s.Apply(1, now, []store.Mutation{{Key: k, Value: value.Int(1)}})
	s.Apply(2, now, []store.Mutation{{Key: k, Value: value.Int(2)}})
	s.Apply(3, now, []store.Mutation{{Key: k, Value: value.Int(3)}})
	s.SetVersion(3)

	sw := NewSweeper(s, nil)
	res := sw.Sweep(Policy{WatermarkVersion: 3}, now)
	require.GreaterOrEqual(t, res.VersionsPruned, 1)

	require.NotNil(t, s.GetAt(k, 3))
	require.Nil(t, s.GetAt(k, 1))
}

func TestSweepMaxVersionsPerKey(t *testing.T) {
	s := store.New(4)
	k := key.New(key.NewRunId(), key.TagKV, []byte("a"))
	now := time.Now()

	for v := uint64(1); v <= 5; v++ {
		s.Apply(v, now, []store.Mutation{{Key: k, Value: value.Int(int64(v))}})
	}
	s.SetVersion(5)

	sw := NewSweeper(s, nil)
	sw.Sweep(Policy{MaxVersionsPerKey: 2}, now)

	require.NotNil(t, s.GetAt(k, 5))
	require.NotNil(t, s.GetAt(k, 4))
	require.Nil(t, s.GetAt(k, 3))
}

func TestSweepMaxAge(t *testing.T) {
	s := store.New(4)
	k := key.New(key.NewRunId(), key.TagKV, []byte("a"))
	now := time.Now()
	veryOld := now.Add(-2 * time.Hour)
	old := now.Add(-90 * time.Minute)

	s.Apply(1, veryOld, []store.Mutation{{Key: k, Value: value.Int(1)}})
	s.Apply(2, old, []store.Mutation{{Key: k, Value: value.Int(2)}})
	s.Apply(3, now, []store.Mutation{{Key: k, Value: value.Int(3)}})
	s.SetVersion(3)

	sw := NewSweeper(s, nil)
	sw.Sweep(Policy{MaxAge: 10 * time.Minute}, now)

	require.NotNil(t, s.GetAt(k, 3))
	require.NotNil(t, s.GetAt(k, 2))
	require.Nil(t, s.GetAt(k, 1))
}

func TestWALCompactorTrimsOlderSegments(t *testing.T) {
	dir := t.TempDir()
	r := wal.NewRotator(dir, nil)
	for i := 0; i < 5; i++ {
		_, _, f, err := r.CreateNext()
		require.NoError(t, err)
		require.NoError(t, f.Close())
	}

	seqsBefore, _, err := r.ListSegments()
	require.NoError(t, err)
	require.Greater(t, len(seqsBefore), 1)

	c := NewWALCompactor(dir, nil)
	keepFrom := seqsBefore[len(seqsBefore)-1]
	trimmed, err := c.Compact(keepFrom)
	require.NoError(t, err)
	require.Equal(t, len(seqsBefore)-1, len(trimmed))

	seqsAfter, _, err := r.ListSegments()
	require.NoError(t, err)
	require.Equal(t, []int{keepFrom}, seqsAfter)
}

func TestWatermarkFromManifest(t *testing.T) {
	path := t.TempDir() + "/manifest"
	m := manifest.New(path, nil)
	require.NoError(t, m.Load())
	require.NoError(t, m.Save(manifest.State{ActiveSnapshotVersion: 42}))

	require.Equal(t, uint64(42), WatermarkFromManifest(m))
}
