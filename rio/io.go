package rio

import (
	"context"

	"github.com/rair-go/rio/desc"
	"github.com/rair-go/rio/ioerr"
	"github.com/rair-go/rio/mapindex"
	"github.com/rair-go/rio/perm"
	"github.com/rair-go/rio/plugin"
)

// IO is the single-owner façade over a descriptor index, a map index, and a
// plugin registry (spec.md §4.4). It is not safe for concurrent use; an
// embedder sharing one IO across goroutines must supply its own exclusive
// lock (spec.md §5).
type IO struct {
	registry *plugin.Registry
	descs    *desc.DescIndex
	maps     *mapindex.MapIndex
}

// NewDefault returns an IO backed by NewDefaultRegistry.
func NewDefault(ctx context.Context) *IO {
	return New(ctx, NewDefaultRegistry())
}

// New returns an IO backed by an explicit registry (used internally by
// DeserializeInto with a freshly built default registry).
func New(ctx context.Context, registry *plugin.Registry) *IO {
	return &IO{
		registry: registry,
		descs:    desc.NewDescIndex(),
		maps:     mapindex.NewMapIndex(),
	}
}

// Open picks the first plugin whose AcceptURI(uri) is true and opens it at
// the lowest free physical gap (spec.md §4.4).
func (x *IO) Open(ctx context.Context, uri string, want perm.Set) (desc.Handle, error) {
	p, ok := x.registry.Resolve(uri)
	if !ok {
		return 0, ioerr.NewIoPluginNotFound("rio: open", uri)
	}
	pd, err := p.Open(ctx, uri, want)
	if err != nil {
		return 0, err
	}
	d, err := x.descs.RegisterOpen(uri, want, pd)
	if err != nil {
		return 0, err
	}
	return d.Handle, nil
}

// OpenAt is like Open but places the descriptor at exactly physical address
// at, failing with AddressesOverlap on collision.
func (x *IO) OpenAt(ctx context.Context, uri string, want perm.Set, at uint64) (desc.Handle, error) {
	p, ok := x.registry.Resolve(uri)
	if !ok {
		return 0, ioerr.NewIoPluginNotFound("rio: open_at", uri)
	}
	pd, err := p.Open(ctx, uri, want)
	if err != nil {
		return 0, err
	}
	d, err := x.descs.RegisterOpenAt(uri, want, pd, at)
	if err != nil {
		return 0, err
	}
	return d.Handle, nil
}

// Close destroys the descriptor for h. It does not unmap aliasing map
// entries; they become dangling and a later v-read over them fails with
// AddressNotFound once pread finds no descriptor covering the referenced
// physical bytes (spec.md §4.4).
func (x *IO) Close(h desc.Handle) error {
	return x.descs.Close(h)
}

// CloseAll destroys every descriptor and resets the map index.
func (x *IO) CloseAll() error {
	err := x.descs.CloseAll()
	x.maps.Reset()
	return err
}

// Pread fully succeeds or fails: if any byte in [paddr, paddr+len(buf)) is
// not covered by a descriptor, no bytes are written to buf and
// AddressNotFound is returned.
func (x *IO) Pread(paddr uint64, buf []byte) (int, error) {
	segs, ok := x.descs.PAddrRangeToHandles(paddr, uint64(len(buf)))
	if !ok {
		return 0, ioerr.NewAddressNotFound("rio: pread", paddr, uint64(len(buf)))
	}
	off := 0
	for _, s := range segs {
		d, ok := x.descs.Get(s.Handle)
		if !ok {
			return 0, ioerr.NewHndlNotFound("rio: pread", s.Handle)
		}
		n, err := d.Ops.Read(s.LocalOff, buf[off:off+int(s.Len)])
		if err != nil {
			return 0, err
		}
		off += n
	}
	return off, nil
}

// PreadSparse returns a sparse mapping paddr->byte containing only covered
// bytes; it never fails for unmapped gaps.
func (x *IO) PreadSparse(paddr, size uint64) (map[uint64]byte, error) {
	segs := x.descs.PAddrSparseRangeToHandles(paddr, size)
	out := make(map[uint64]byte)
	for _, s := range segs {
		d, ok := x.descs.Get(s.Handle)
		if !ok {
			return nil, ioerr.NewHndlNotFound("rio: pread_sparse", s.Handle)
		}
		buf := make([]byte, s.Len)
		if _, err := d.Ops.Read(s.LocalOff, buf); err != nil {
			return nil, err
		}
		base := d.PAddrBase + s.LocalOff
		for i, b := range buf {
			out[base+uint64(i)] = b
		}
	}
	return out, nil
}

// Pwrite is symmetric to Pread; a plugin may reject the write with
// PermissionDenied.
func (x *IO) Pwrite(paddr uint64, buf []byte) (int, error) {
	segs, ok := x.descs.PAddrRangeToHandles(paddr, uint64(len(buf)))
	if !ok {
		return 0, ioerr.NewAddressNotFound("rio: pwrite", paddr, uint64(len(buf)))
	}
	off := 0
	for _, s := range segs {
		d, ok := x.descs.Get(s.Handle)
		if !ok {
			return 0, ioerr.NewHndlNotFound("rio: pwrite", s.Handle)
		}
		n, err := d.Ops.Write(s.LocalOff, buf[off:off+int(s.Len)])
		if err != nil {
			return 0, err
		}
		off += n
	}
	return off, nil
}

// Map inserts {paddr, vaddr, size} into the map index. In addition to
// mapindex.Map's own AddressesOverlap check, the façade requires the
// physical range to be fully covered by live descriptors (spec.md §4.4).
func (x *IO) Map(paddr, vaddr, size uint64) error {
	if _, ok := x.descs.PAddrRangeToHandles(paddr, size); !ok {
		return ioerr.NewAddressNotFound("rio: map", paddr, size)
	}
	return x.maps.Map(paddr, vaddr, size)
}

// Unmap removes [vaddr, vaddr+size) from the map index.
func (x *IO) Unmap(vaddr, size uint64) error {
	return x.maps.Unmap(vaddr, size)
}

// VRead fails atomically with AddressNotFound if the virtual range is not
// fully mapped; otherwise it is equivalent to composing Pread over the
// physical sub-ranges split_vaddr_range produces.
func (x *IO) VRead(vaddr uint64, buf []byte) (int, error) {
	entries, ok := x.maps.SplitVAddrRange(vaddr, uint64(len(buf)))
	if !ok {
		return 0, ioerr.NewAddressNotFound("rio: vread", vaddr, uint64(len(buf)))
	}
	off := 0
	for _, e := range entries {
		n, err := x.Pread(e.PAddr, buf[off:off+int(e.Size)])
		if err != nil {
			return 0, err
		}
		off += n
	}
	return off, nil
}

// VWrite is symmetric to VRead.
func (x *IO) VWrite(vaddr uint64, buf []byte) (int, error) {
	entries, ok := x.maps.SplitVAddrRange(vaddr, uint64(len(buf)))
	if !ok {
		return 0, ioerr.NewAddressNotFound("rio: vwrite", vaddr, uint64(len(buf)))
	}
	off := 0
	for _, e := range entries {
		n, err := x.Pwrite(e.PAddr, buf[off:off+int(e.Size)])
		if err != nil {
			return 0, err
		}
		off += n
	}
	return off, nil
}

// VReadSparse never fails for unmapped gaps; it returns only covered bytes,
// keyed by virtual address.
func (x *IO) VReadSparse(vaddr, size uint64) (map[uint64]byte, error) {
	entries := x.maps.SplitVAddrSparseRange(vaddr, size)
	out := make(map[uint64]byte)
	for _, e := range entries {
		buf := make([]byte, e.Size)
		if _, err := x.Pread(e.PAddr, buf); err != nil {
			return nil, err
		}
		for i, b := range buf {
			out[e.VAddr+uint64(i)] = b
		}
	}
	return out, nil
}

// VirToPhy decomposes [vaddr, vaddr+size) into the tiling map entries
// covering it, failing with AddressNotFound if any byte is unmapped.
func (x *IO) VirToPhy(vaddr, size uint64) ([]mapindex.Entry, error) {
	entries, ok := x.maps.SplitVAddrRange(vaddr, size)
	if !ok {
		return nil, ioerr.NewAddressNotFound("rio: vir_to_phy", vaddr, size)
	}
	return entries, nil
}

// PhyToVir returns every virtual address translating to physical address
// paddr, ascending.
func (x *IO) PhyToVir(paddr uint64) []uint64 {
	return x.maps.RevQuery(paddr)
}

// UriIter yields live descriptors in ascending paddr_base order.
func (x *IO) UriIter() []*desc.Desc {
	return x.descs.Iter()
}

// Desc returns the descriptor for handle h, for callers that need its
// Size/PAddrBase/Perm without walking UriIter.
func (x *IO) Desc(h desc.Handle) (*desc.Desc, bool) {
	return x.descs.Get(h)
}

// MapIter yields map entries in ascending vaddr order.
func (x *IO) MapIter() []mapindex.Entry {
	return x.maps.Iter()
}
