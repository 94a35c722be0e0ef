// Package desc implements the descriptor layer (spec.md §3, §4.2): each
// opened URI is wrapped in a Desc owning a disjoint slice of the physical
// address space, and DescIndex answers allocation and range-decomposition
// queries against the whole set of live descriptors.
package desc

import (
	"io"
	"sort"

	"github.com/biogo/store/llrb"

	"github.com/rair-go/rio/ioerr"
	"github.com/rair-go/rio/perm"
	"github.com/rair-go/rio/plugin"
)

// Handle identifies one opened descriptor. Handles are assigned
// monotonically and are never reused within the life of a DescIndex.
type Handle = uint64

// Desc is one opened URI (spec.md §3).
type Desc struct {
	Handle    Handle
	URI       string
	Perm      perm.Set
	Size      uint64
	PAddrBase uint64
	Ops       plugin.Ops
}

// end returns the exclusive upper bound of d's physical interval.
func (d *Desc) end() uint64 { return d.PAddrBase + d.Size }

// paddrKey orders descriptors by their physical base address for the llrb
// tree backing containment queries (spec.md §4.2: "an auxiliary structure
// supporting fast range queries on physical intervals").
type paddrKey struct {
	base uint64
	d    *Desc
}

// Compare implements llrb.Comparable.
func (k paddrKey) Compare(other llrb.Comparable) int {
	o := other.(paddrKey)
	switch {
	case k.base < o.base:
		return -1
	case k.base > o.base:
		return 1
	default:
		return 0
	}
}

// Segment is one fragment of a range decomposition: len bytes starting at
// localOff within the file owned by Handle.
type Segment struct {
	Handle   Handle
	LocalOff uint64
	Len      uint64
}

// DescIndex allocates and looks up descriptors by physical address.
type DescIndex struct {
	byHandle   map[Handle]*Desc
	tree       llrb.Tree // keyed by paddrKey, for O(log n) containment queries
	order      []*Desc   // kept sorted by PAddrBase, for gap search and Iter
	nextHandle Handle
}

// NewDescIndex returns an empty index.
func NewDescIndex() *DescIndex {
	return &DescIndex{byHandle: make(map[Handle]*Desc)}
}

// overlaps reports whether [a, a+alen) and [b, b+blen) intersect.
func overlaps(a, alen, b, blen uint64) bool {
	return a < b+blen && b < a+alen
}

// findGap returns the lowest paddr_base such that [base, base+size) is
// disjoint from every live interval, per spec.md §4.2's "scan the sorted
// interval list; pick the first gap large enough, starting at 0".
func (idx *DescIndex) findGap(size uint64) uint64 {
	base := uint64(0)
	for _, d := range idx.order {
		if base+size <= d.PAddrBase {
			return base
		}
		if d.end() > base {
			base = d.end()
		}
	}
	return base
}

func (idx *DescIndex) insertOrdered(d *Desc) {
	i := sort.Search(len(idx.order), func(i int) bool { return idx.order[i].PAddrBase >= d.PAddrBase })
	idx.order = append(idx.order, nil)
	copy(idx.order[i+1:], idx.order[i:])
	idx.order[i] = d
	idx.tree.Insert(paddrKey{base: d.PAddrBase, d: d})
}

func (idx *DescIndex) removeOrdered(d *Desc) {
	for i, e := range idx.order {
		if e == d {
			idx.order = append(idx.order[:i], idx.order[i+1:]...)
			break
		}
	}
	idx.tree.Delete(paddrKey{base: d.PAddrBase})
}

// RegisterOpen allocates the lowest free physical gap large enough for a
// descriptor of size size, registers it, and returns the new Desc.
func (idx *DescIndex) RegisterOpen(uri string, want perm.Set, pd plugin.Desc) (*Desc, error) {
	if idx.nextHandle == ^Handle(0) {
		return nil, ioerr.NewTooManyFiles("desc: handle space exhausted")
	}
	base := idx.findGap(pd.Size)
	return idx.register(uri, want, pd, base)
}

// RegisterOpenAt registers a descriptor at exactly paddr at, failing with
// AddressesOverlap if any existing interval intersects [at, at+size).
func (idx *DescIndex) RegisterOpenAt(uri string, want perm.Set, pd plugin.Desc, at uint64) (*Desc, error) {
	if idx.nextHandle == ^Handle(0) {
		return nil, ioerr.NewTooManyFiles("desc: handle space exhausted")
	}
	for _, d := range idx.order {
		if overlaps(at, pd.Size, d.PAddrBase, d.Size) {
			return nil, ioerr.NewAddressesOverlap("desc: open_at", at, "collides with handle", d.Handle)
		}
	}
	return idx.register(uri, want, pd, at)
}

func (idx *DescIndex) register(uri string, want perm.Set, pd plugin.Desc, base uint64) (*Desc, error) {
	h := idx.nextHandle
	idx.nextHandle++
	d := &Desc{
		Handle:    h,
		URI:       uri,
		Perm:      want,
		Size:      pd.Size,
		PAddrBase: base,
		Ops:       pd.Ops,
	}
	idx.byHandle[h] = d
	idx.insertOrdered(d)
	return d, nil
}

// Get returns the descriptor for handle.
func (idx *DescIndex) Get(h Handle) (*Desc, bool) {
	d, ok := idx.byHandle[h]
	return d, ok
}

// Close removes the descriptor for handle, releasing its underlying OS
// resources if its Ops implements io.Closer. Close performs no compaction:
// the vacated gap is only reused if a later RegisterOpen's scan lands on
// it (spec.md §4.2).
func (idx *DescIndex) Close(h Handle) error {
	d, ok := idx.byHandle[h]
	if !ok {
		return ioerr.NewHndlNotFound("desc: close", h)
	}
	delete(idx.byHandle, h)
	idx.removeOrdered(d)
	if c, ok := d.Ops.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// CloseAll removes every descriptor, releasing underlying OS resources.
// The first close error encountered (if any) is returned after every
// descriptor has been attempted.
func (idx *DescIndex) CloseAll() error {
	var firstErr error
	for h := range idx.byHandle {
		if err := idx.Close(h); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// descAt returns the descriptor owning physical address p, if any, using
// the llrb tree for an O(log n) predecessor lookup.
func (idx *DescIndex) descAt(p uint64) (*Desc, bool) {
	c := idx.tree.Floor(paddrKey{base: p})
	if c == nil {
		return nil, false
	}
	k := c.(paddrKey)
	if p >= k.d.PAddrBase && p < k.d.end() {
		return k.d, true
	}
	return nil, false
}

// PAddrRangeToHandles decomposes [paddr, paddr+length) into the ordered
// sequence of (handle, local_offset, length) fragments that cover it. It
// returns ok=false iff any byte in the range is uncovered, per spec.md
// §4.2's all-or-nothing contract.
func (idx *DescIndex) PAddrRangeToHandles(paddr, length uint64) ([]Segment, bool) {
	if length == 0 {
		return nil, true
	}
	var segs []Segment
	cur := paddr
	end := paddr + length
	for cur < end {
		d, ok := idx.descAt(cur)
		if !ok {
			return nil, false
		}
		segLen := d.end() - cur
		if remaining := end - cur; segLen > remaining {
			segLen = remaining
		}
		segs = append(segs, Segment{Handle: d.Handle, LocalOff: cur - d.PAddrBase, Len: segLen})
		cur += segLen
	}
	return segs, true
}

// PAddrSparseRangeToHandles is like PAddrRangeToHandles but never fails:
// gaps in coverage are simply omitted from the result.
func (idx *DescIndex) PAddrSparseRangeToHandles(paddr, length uint64) []Segment {
	if length == 0 {
		return nil
	}
	var segs []Segment
	cur := paddr
	end := paddr + length
	for cur < end {
		d, ok := idx.descAt(cur)
		if !ok {
			// Skip forward to the next descriptor's start, if any.
			next, found := idx.nextBaseAfter(cur)
			if !found || next >= end {
				break
			}
			cur = next
			continue
		}
		segLen := d.end() - cur
		if remaining := end - cur; segLen > remaining {
			segLen = remaining
		}
		segs = append(segs, Segment{Handle: d.Handle, LocalOff: cur - d.PAddrBase, Len: segLen})
		cur += segLen
	}
	return segs
}

// nextBaseAfter returns the smallest PAddrBase strictly greater than p.
func (idx *DescIndex) nextBaseAfter(p uint64) (uint64, bool) {
	i := sort.Search(len(idx.order), func(i int) bool { return idx.order[i].PAddrBase > p })
	if i == len(idx.order) {
		return 0, false
	}
	return idx.order[i].PAddrBase, true
}

// Iter returns every live descriptor in ascending PAddrBase order.
func (idx *DescIndex) Iter() []*Desc {
	out := make([]*Desc, len(idx.order))
	copy(out, idx.order)
	return out
}

// Len returns the number of live descriptors.
func (idx *DescIndex) Len() int { return len(idx.byHandle) }
