package store

import (
	"testing"
	"time"

	"github.com/stratadb/strata/internal/key"
	"github.com/stratadb/strata/internal/value"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T, user string) key.Key {
	t.Helper()
	return key.New(key.NewRunId(), key.TagKV, []byte(user))
}

func TestPutGetAtVersion(t *testing.T) {
	s := New(16)
	k := testKey(t, "k")

	v1 := s.NextVersion()
	s.Apply(v1, time.Now(), []Mutation{{Key: k, Value: value.Int(1)}})
	s.Publish(v1)

	v2 := s.NextVersion()
	s.Apply(v2, time.Now(), []Mutation{{Key: k, Value: value.Int(2)}})
	s.Publish(v2)

	require.Greater(t, v2, v1)

	latest := s.GetLatest(k)
	require.NotNil(t, latest)
	require.Equal(t, value.Int(2), latest.Value)
	require.Equal(t, v2, latest.Version)

	atV1 := s.GetAt(k, v1)
	require.NotNil(t, atV1)
	require.Equal(t, value.Int(1), atV1.Value)
	require.Equal(t, v1, atV1.Version)
}

func TestTombstoneMasksEarlier(t *testing.T) {
	s := New(16)
	k := testKey(t, "k")

	v1 := s.NextVersion()
	s.Apply(v1, time.Now(), []Mutation{{Key: k, Value: value.String("x")}})
	s.Publish(v1)

	v2 := s.NextVersion()
	s.Apply(v2, time.Now(), []Mutation{{Key: k, Value: nil}})
	s.Publish(v2)

	masked := s.GetLatest(k)
	require.NotNil(t, masked)
	require.True(t, masked.IsTombstone())

	v3 := s.NextVersion()
	s.Apply(v3, time.Now(), []Mutation{{Key: k, Value: value.String("y")}})
	s.Publish(v3)

	latest := s.GetLatest(k)
	require.NotNil(t, latest)
	require.Equal(t, value.String("y"), latest.Value)
}

func TestSnapshotIgnoresLaterVersions(t *testing.T) {
	s := New(16)
	k := testKey(t, "k")

	v1 := s.NextVersion()
	s.Apply(v1, time.Now(), []Mutation{{Key: k, Value: value.Int(1)}})
	s.Publish(v1)

	view := s.Snapshot()

	v2 := s.NextVersion()
	s.Apply(v2, time.Now(), []Mutation{{Key: k, Value: value.Int(2)}})
	s.Publish(v2)

	got := view.Get(k)
	require.NotNil(t, got)
	require.Equal(t, value.Int(1), got.Value)

	require.Equal(t, value.Int(2), s.GetLatest(k).Value)
}

func TestTTLExpiry(t *testing.T) {
	s := New(16)
	k := testKey(t, "k")
	past := time.Now().Add(-time.Minute)

	v1 := s.NextVersion()
	s.Apply(v1, time.Now(), []Mutation{{Key: k, Value: value.Int(1), TTL: &past}})
	s.Publish(v1)

	require.Nil(t, s.GetLatest(k))

	swept := s.TTLSweep(time.Now())
	require.Equal(t, 1, swept)
}

func TestScanPrefix(t *testing.T) {
	s := New(16)
	run := key.NewRunId()
	a := key.New(run, key.TagKV, []byte("users/1"))
	b := key.New(run, key.TagKV, []byte("users/2"))
	c := key.New(run, key.TagKV, []byte("other"))

	v := s.NextVersion()
	s.Apply(v, time.Now(), []Mutation{
		{Key: a, Value: value.Int(1)},
		{Key: b, Value: value.Int(2)},
		{Key: c, Value: value.Int(3)},
	})
	s.Publish(v)

	results := s.Snapshot().Scan(run, key.TagKV, []byte("users/"))
	require.Len(t, results, 2)
}

func TestVersionMonotonicityAcrossManyCommits(t *testing.T) {
	s := New(4)
	k := testKey(t, "k")
	var last uint64
	for i := 0; i < 100; i++ {
		v := s.NextVersion()
		require.Greater(t, v, last)
		last = v
		s.Apply(v, time.Now(), []Mutation{{Key: k, Value: value.Int(int64(i))}})
		s.Publish(v)
	}
}
