package snapshot

import (
	"os"
	"testing"
	"time"

	"github.com/stratadb/strata/internal/key"
	"github.com/stratadb/strata/internal/store"
	"github.com/stratadb/strata/internal/value"
	"github.com/stretchr/testify/require"
)

func TestWriteLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, nil)

	k := key.New(key.NewRunId(), key.TagKV, []byte("hello"))
	entries := []Entry{{Key: k.Encode(), Value: mustEncode(t, value.String("world")), Version: 7}}
	sections := []Section{{Tag: key.TagKV, Data: EncodeEntries(entries)}}

	h := Header{Timestamp: time.Unix(1000, 0), WALSeq: 3, WALOffset: 128, TxCount: 1, StoreVersion: 7}
	path, err := s.Write(h, sections)
	require.NoError(t, err)
	require.FileExists(t, path)

	loaded, err := s.Load()
	require.NoError(t, err)
	require.Equal(t, uint64(7), loaded.Header.StoreVersion)
	require.Len(t, loaded.Sections[uint8(key.TagKV)], 1)
	require.Equal(t, k.Encode(), loaded.Sections[uint8(key.TagKV)][0].Key)
}

func TestLoadFallsBackOnCorruptNewest(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, nil)

	entries := []Entry{{Key: []byte("k1"), Value: mustEncode(t, value.Int(1)), Version: 1}}
	sections := []Section{{Tag: key.TagKV, Data: EncodeEntries(entries)}}

	_, err := s.Write(Header{StoreVersion: 1, Timestamp: time.Unix(1, 0)}, sections)
	require.NoError(t, err)
	_, err = s.Write(Header{StoreVersion: 2, Timestamp: time.Unix(2, 0)}, sections)
	require.NoError(t, err)

	corruptPath := s.pathFor(2)
	require.NoError(t, os.WriteFile(corruptPath, []byte("not a snapshot"), 0644))

	loaded, err := s.Load()
	require.NoError(t, err)
	require.Equal(t, uint64(1), loaded.Header.StoreVersion)
}

func TestPruneKeepsNewestOnly(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, nil)
	for v := uint64(1); v <= 3; v++ {
		_, err := s.Write(Header{StoreVersion: v, Timestamp: time.Unix(int64(v), 0)}, nil)
		require.NoError(t, err)
	}
	require.NoError(t, s.Prune(1))
	versions, err := s.versions()
	require.NoError(t, err)
	require.Equal(t, []uint64{3}, versions)
}

func TestBuildAndRestoreRoundTrip(t *testing.T) {
	src := store.New(8)
	k := key.New(key.NewRunId(), key.TagKV, []byte("x"))
	v1 := src.NextVersion()
	src.Apply(v1, time.Now(), []store.Mutation{{Key: k, Value: value.Int(42)}})
	src.Publish(v1)

	sections := BuildSections(src, time.Now())
	snap := &Snapshot{Header: Header{StoreVersion: v1, Timestamp: time.Now()}, Sections: map[uint8][]Entry{}}
	for _, sec := range sections {
		entries, err := DecodeEntries(sec.Data)
		require.NoError(t, err)
		snap.Sections[uint8(sec.Tag)] = entries
	}

	dst := store.New(8)
	require.NoError(t, Restore(dst, snap))
	got := dst.GetLatest(k)
	require.NotNil(t, got)
	require.Equal(t, value.Int(42), got.Value)
	require.Equal(t, v1, dst.CurrentVersion())
}

func mustEncode(t *testing.T, v value.Value) []byte {
	t.Helper()
	return value.Encode(v)
}
