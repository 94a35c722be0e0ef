package rio_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rair-go/rio/ioerr"
	"github.com/rair-go/rio/perm"
	"github.com/rair-go/rio/rio"
)

func tempFile(t *testing.T, content []byte) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}

func bytesRange(start, n byte) []byte {
	b := make([]byte, int(n))
	for i := range b {
		b[i] = start + byte(i)
	}
	return b
}

func TestPreadAcrossThreeFiles(t *testing.T) {
	ctx := context.Background()
	x := rio.NewDefault(ctx)

	a := tempFile(t, bytesRange(0, 11))
	b := tempFile(t, bytesRange(100, 11))
	c := tempFile(t, bytesRange(200, 11))

	_, err := x.Open(ctx, a, perm.Read)
	require.NoError(t, err)
	_, err = x.Open(ctx, b, perm.Read)
	require.NoError(t, err)
	_, err = x.Open(ctx, c, perm.Read)
	require.NoError(t, err)

	buf := make([]byte, 27)
	n, err := x.Pread(0, buf)
	require.NoError(t, err)
	require.Equal(t, 27, n)

	want := append(append(bytesRange(0, 11), bytesRange(100, 11)...), bytesRange(200, 5)...)
	require.Equal(t, want, buf)
}

func TestPwriteAddressNotFound(t *testing.T) {
	ctx := context.Background()
	x := rio.NewDefault(ctx)

	a := tempFile(t, bytesRange(0, 11))
	_, err := x.Open(ctx, a, perm.Read|perm.Write)
	require.NoError(t, err)

	_, err = x.Pwrite(0x500, make([]byte, 8))
	require.Error(t, err)
	require.True(t, ioerr.Is(err, ioerr.AddressNotFound))

	_, err = x.Pwrite(0, make([]byte, 12))
	require.Error(t, err)
	require.True(t, ioerr.Is(err, ioerr.AddressNotFound))
}

func TestVReadAcrossMapBoundary(t *testing.T) {
	ctx := context.Background()
	x := rio.NewDefault(ctx)

	f1 := tempFile(t, bytesRange(0, 11))
	f2 := tempFile(t, bytesRange(100, 11))
	f3 := tempFile(t, bytesRange(200, 11))

	_, err := x.OpenAt(ctx, f1, perm.Read, 0x1000)
	require.NoError(t, err)
	_, err = x.OpenAt(ctx, f2, perm.Read, 0x2000)
	require.NoError(t, err)
	_, err = x.OpenAt(ctx, f3, perm.Read, 0x3000)
	require.NoError(t, err)

	require.NoError(t, x.Map(0x1000, 0x400, 11))
	require.NoError(t, x.Map(0x2000, 0x40B, 11))
	require.NoError(t, x.Map(0x3000, 0x416, 11))

	buf := make([]byte, 8)
	n, err := x.VRead(0x40B-4, buf)
	require.NoError(t, err)
	require.Equal(t, 8, n)

	want := append(bytesRange(0, 11)[7:11], bytesRange(100, 11)[0:4]...)
	require.Equal(t, want, buf)
}

func TestPhyToVirAscendingAndAliasing(t *testing.T) {
	ctx := context.Background()
	x := rio.NewDefault(ctx)

	f1 := tempFile(t, bytesRange(0, 11))
	f2 := tempFile(t, bytesRange(100, 11))
	f3 := tempFile(t, bytesRange(200, 11))

	_, err := x.OpenAt(ctx, f1, perm.Read, 0x1000)
	require.NoError(t, err)
	_, err = x.OpenAt(ctx, f2, perm.Read, 0x2000)
	require.NoError(t, err)
	_, err = x.OpenAt(ctx, f3, perm.Read, 0x3000)
	require.NoError(t, err)

	require.NoError(t, x.Map(0x1000, 0x400, 11))
	require.NoError(t, x.Map(0x2000, 0x40B, 11))
	require.NoError(t, x.Map(0x3000, 0x416, 11))

	require.Equal(t, []uint64{0x405}, x.PhyToVir(0x1005))

	require.NoError(t, x.Map(0x1000, 0x6000, 11))
	require.Equal(t, []uint64{0x405, 0x6005}, x.PhyToVir(0x1005))
}

func TestMapRequiresPhysicalCoverage(t *testing.T) {
	ctx := context.Background()
	x := rio.NewDefault(ctx)
	err := x.Map(0x1000, 0x400, 11)
	require.Error(t, err)
	require.True(t, ioerr.Is(err, ioerr.AddressNotFound))
}

func TestCloseDoesNotUnmapDanglingAliases(t *testing.T) {
	ctx := context.Background()
	x := rio.NewDefault(ctx)

	f1 := tempFile(t, bytesRange(0, 11))
	h1, err := x.OpenAt(ctx, f1, perm.Read, 0x1000)
	require.NoError(t, err)
	require.NoError(t, x.Map(0x1000, 0x400, 11))

	require.NoError(t, x.Close(h1))

	_, err = x.VRead(0x400, make([]byte, 4))
	require.Error(t, err)
	require.True(t, ioerr.Is(err, ioerr.AddressNotFound))
}

func TestCloseAllResetsMapIndex(t *testing.T) {
	ctx := context.Background()
	x := rio.NewDefault(ctx)

	f1 := tempFile(t, bytesRange(0, 11))
	_, err := x.OpenAt(ctx, f1, perm.Read, 0x1000)
	require.NoError(t, err)
	require.NoError(t, x.Map(0x1000, 0x400, 11))

	require.NoError(t, x.CloseAll())
	require.Empty(t, x.UriIter())
	require.Empty(t, x.MapIter())
}

func TestUriIterAscendingPAddrBase(t *testing.T) {
	ctx := context.Background()
	x := rio.NewDefault(ctx)

	f1 := tempFile(t, bytesRange(0, 5))
	f2 := tempFile(t, bytesRange(0, 5))
	f3 := tempFile(t, bytesRange(0, 5))

	_, err := x.OpenAt(ctx, f3, perm.Read, 20)
	require.NoError(t, err)
	_, err = x.OpenAt(ctx, f1, perm.Read, 0)
	require.NoError(t, err)
	_, err = x.OpenAt(ctx, f2, perm.Read, 10)
	require.NoError(t, err)

	descs := x.UriIter()
	require.Len(t, descs, 3)
	require.EqualValues(t, 0, descs[0].PAddrBase)
	require.EqualValues(t, 10, descs[1].PAddrBase)
	require.EqualValues(t, 20, descs[2].PAddrBase)
}

func TestSerializeRoundTrip(t *testing.T) {
	ctx := context.Background()
	x := rio.NewDefault(ctx)

	f1 := tempFile(t, bytesRange(0, 11))
	f2 := tempFile(t, bytesRange(100, 11))
	f3 := tempFile(t, bytesRange(200, 11))

	_, err := x.OpenAt(ctx, f1, perm.Read, 0x1000)
	require.NoError(t, err)
	_, err = x.OpenAt(ctx, f2, perm.Read, 0x2000)
	require.NoError(t, err)
	_, err = x.OpenAt(ctx, f3, perm.Read, 0x3000)
	require.NoError(t, err)

	require.NoError(t, x.Map(0x1000, 0x400, 11))
	require.NoError(t, x.Map(0x2000, 0x40B, 11))
	require.NoError(t, x.Map(0x3000, 0x416, 11))

	var buf bytes.Buffer
	require.NoError(t, x.Serialize(ctx, &buf))

	x2, err := rio.DeserializeInto(ctx, &buf)
	require.NoError(t, err)

	out := make([]byte, 8)
	n, err := x2.VRead(0x400, out)
	require.NoError(t, err)
	require.Equal(t, 8, n)
	require.Equal(t, bytesRange(0, 8), out)

	require.Len(t, x2.UriIter(), 3)
	require.Len(t, x2.MapIter(), 3)
}
