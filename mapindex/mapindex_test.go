package mapindex_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rair-go/rio/mapindex"
)

func TestMapAndSplit(t *testing.T) {
	mi := mapindex.NewMapIndex()
	require.NoError(t, mi.Map(0x1000, 0x400, 11))
	require.NoError(t, mi.Map(0x2000, 0x40B, 11))
	require.NoError(t, mi.Map(0x3000, 0x416, 11))

	entries, ok := mi.SplitVAddrRange(0x40B-4, 8)
	require.True(t, ok)
	require.Len(t, entries, 2)
	require.EqualValues(t, 4, entries[0].Size)
	require.EqualValues(t, 0x1000+7, entries[0].PAddr)
	require.EqualValues(t, 4, entries[1].Size)
	require.EqualValues(t, 0x2000, entries[1].PAddr)
}

func TestMapOverlapRejected(t *testing.T) {
	mi := mapindex.NewMapIndex()
	require.NoError(t, mi.Map(0, 0x400, 10))
	err := mi.Map(0x100, 0x405, 10)
	require.Error(t, err)
}

func TestRevQueryAscendingAndAliasing(t *testing.T) {
	mi := mapindex.NewMapIndex()
	require.NoError(t, mi.Map(0x1000, 0x400, 11))
	require.NoError(t, mi.Map(0x2000, 0x40B, 11))
	require.NoError(t, mi.Map(0x3000, 0x416, 11))

	vs := mi.RevQuery(0x1005)
	require.Equal(t, []uint64{0x405}, vs)

	require.NoError(t, mi.Map(0x1000, 0x6000, 11))
	vs = mi.RevQuery(0x1005)
	require.Equal(t, []uint64{0x405, 0x6005}, vs)
}

func TestUnmapSplitsEntry(t *testing.T) {
	mi := mapindex.NewMapIndex()
	require.NoError(t, mi.Map(0x1000, 0x400, 20))
	require.NoError(t, mi.Unmap(0x405, 5))

	entries := mi.Iter()
	require.Len(t, entries, 2)
	require.EqualValues(t, 0x400, entries[0].VAddr)
	require.EqualValues(t, 5, entries[0].Size)
	require.EqualValues(t, 0x40A, entries[1].VAddr)
	require.EqualValues(t, 10, entries[1].Size)
}

func TestUnmapNotFullyMappedFails(t *testing.T) {
	mi := mapindex.NewMapIndex()
	require.NoError(t, mi.Map(0x1000, 0x400, 5))
	err := mi.Unmap(0x400, 20)
	require.Error(t, err)
	// All-or-nothing: the original entry must still be intact.
	entries := mi.Iter()
	require.Len(t, entries, 1)
	require.EqualValues(t, 5, entries[0].Size)
}

func TestIterAscendingVAddr(t *testing.T) {
	mi := mapindex.NewMapIndex()
	require.NoError(t, mi.Map(0, 200, 5))
	require.NoError(t, mi.Map(0, 50, 5))
	require.NoError(t, mi.Map(0, 100, 5))
	entries := mi.Iter()
	require.Len(t, entries, 3)
	require.EqualValues(t, 50, entries[0].VAddr)
	require.EqualValues(t, 100, entries[1].VAddr)
	require.EqualValues(t, 200, entries[2].VAddr)
}

func TestSparseSplitSkipsGaps(t *testing.T) {
	mi := mapindex.NewMapIndex()
	require.NoError(t, mi.Map(0, 0, 4))
	require.NoError(t, mi.Map(100, 10, 4))
	entries := mi.SplitVAddrSparseRange(0, 14)
	require.Len(t, entries, 2)
}
