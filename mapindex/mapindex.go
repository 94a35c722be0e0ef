// Package mapindex implements the virtual-to-physical translation index
// (spec.md §3, §4.3): a forward tree keyed by virtual address plus a
// derived reverse multimap keyed by physical address, since many virtual
// regions may alias the same physical bytes.
package mapindex

import (
	"sort"

	"github.com/biogo/store/llrb"

	"github.com/rair-go/rio/ioerr"
)

// Entry is one virtual-to-physical translation record (spec.md §3).
type Entry struct {
	PAddr uint64
	VAddr uint64
	Size  uint64
}

func (e Entry) vend() uint64 { return e.VAddr + e.Size }
func (e Entry) pend() uint64 { return e.PAddr + e.Size }

// vaddrKey orders entries by their virtual base address for the llrb
// forward tree.
type vaddrKey struct {
	vaddr uint64
	e     *Entry
}

// Compare implements llrb.Comparable.
func (k vaddrKey) Compare(other llrb.Comparable) int {
	o := other.(vaddrKey)
	switch {
	case k.vaddr < o.vaddr:
		return -1
	case k.vaddr > o.vaddr:
		return 1
	default:
		return 0
	}
}

// MapIndex stores virtual-to-physical translations.
//
// Design note (spec.md §9): rather than maintaining two mutually
// consistent trees, there is a single authoritative ordered-by-vaddr
// structure (forward) and a derived multimap keyed by paddr, rebuilt
// incrementally on every mutating call.
type MapIndex struct {
	tree    llrb.Tree // keyed by vaddrKey, for O(log n) containment queries
	order   []*Entry  // kept sorted by VAddr, for ordered iteration/splitting
	reverse map[uint64][]*Entry
}

// NewMapIndex returns an empty index.
func NewMapIndex() *MapIndex {
	return &MapIndex{reverse: make(map[uint64][]*Entry)}
}

func overlaps(a, alen, b, blen uint64) bool {
	return a < b+blen && b < a+alen
}

// Map inserts {paddr, vaddr, size}, failing with AddressesOverlap if
// [vaddr, vaddr+size) intersects any existing virtual interval. It is not
// required that the physical range currently be covered by descriptors;
// callers enforcing that belong at the façade layer (spec.md §4.3).
func (m *MapIndex) Map(paddr, vaddr, size uint64) error {
	if size == 0 {
		return ioerr.NewCustom("mapindex: map size must be > 0")
	}
	for _, e := range m.order {
		if overlaps(vaddr, size, e.VAddr, e.Size) {
			return ioerr.NewAddressesOverlap("mapindex: map", vaddr, "collides with existing vaddr", e.VAddr)
		}
	}
	e := &Entry{PAddr: paddr, VAddr: vaddr, Size: size}
	m.insert(e)
	return nil
}

func (m *MapIndex) insert(e *Entry) {
	i := sort.Search(len(m.order), func(i int) bool { return m.order[i].VAddr >= e.VAddr })
	m.order = append(m.order, nil)
	copy(m.order[i+1:], m.order[i:])
	m.order[i] = e
	m.tree.Insert(vaddrKey{vaddr: e.VAddr, e: e})
	m.reverse[e.PAddr] = append(m.reverse[e.PAddr], e)
}

func (m *MapIndex) remove(e *Entry) {
	for i, o := range m.order {
		if o == e {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.tree.Delete(vaddrKey{vaddr: e.VAddr})
	rs := m.reverse[e.PAddr]
	for i, r := range rs {
		if r == e {
			m.reverse[e.PAddr] = append(rs[:i], rs[i+1:]...)
			break
		}
	}
	if len(m.reverse[e.PAddr]) == 0 {
		delete(m.reverse, e.PAddr)
	}
}

// entryAt returns the entry covering virtual address v, if any.
func (m *MapIndex) entryAt(v uint64) (*Entry, bool) {
	c := m.tree.Floor(vaddrKey{vaddr: v})
	if c == nil {
		return nil, false
	}
	k := c.(vaddrKey)
	if v >= k.e.VAddr && v < k.e.vend() {
		return k.e, true
	}
	return nil, false
}

// sliceOf returns the portion of e covering [from, from+length) as a
// stand-alone Entry.
func sliceOf(e *Entry, from, length uint64) Entry {
	off := from - e.VAddr
	return Entry{PAddr: e.PAddr + off, VAddr: from, Size: length}
}

// SplitVAddrRange returns the contiguous, ascending sequence of entries
// that exactly tile [vaddr, vaddr+length), or ok=false if any byte in the
// range is unmapped (spec.md §4.3).
func (m *MapIndex) SplitVAddrRange(vaddr, length uint64) ([]Entry, bool) {
	if length == 0 {
		return nil, true
	}
	var out []Entry
	cur := vaddr
	end := vaddr + length
	for cur < end {
		e, ok := m.entryAt(cur)
		if !ok {
			return nil, false
		}
		segLen := e.vend() - cur
		if remaining := end - cur; segLen > remaining {
			segLen = remaining
		}
		out = append(out, sliceOf(e, cur, segLen))
		cur += segLen
	}
	return out, true
}

// nextVAddrAfter returns the smallest VAddr strictly greater than v.
func (m *MapIndex) nextVAddrAfter(v uint64) (uint64, bool) {
	i := sort.Search(len(m.order), func(i int) bool { return m.order[i].VAddr > v })
	if i == len(m.order) {
		return 0, false
	}
	return m.order[i].VAddr, true
}

// SplitVAddrSparseRange is like SplitVAddrRange but skips unmapped gaps
// instead of failing.
func (m *MapIndex) SplitVAddrSparseRange(vaddr, length uint64) []Entry {
	if length == 0 {
		return nil
	}
	var out []Entry
	cur := vaddr
	end := vaddr + length
	for cur < end {
		e, ok := m.entryAt(cur)
		if !ok {
			next, found := m.nextVAddrAfter(cur)
			if !found || next >= end {
				break
			}
			cur = next
			continue
		}
		segLen := e.vend() - cur
		if remaining := end - cur; segLen > remaining {
			segLen = remaining
		}
		out = append(out, sliceOf(e, cur, segLen))
		cur += segLen
	}
	return out
}

// RevQuery returns every virtual address translating to physical address
// paddr, in ascending order (spec.md §4.3).
func (m *MapIndex) RevQuery(paddr uint64) []uint64 {
	var vs []uint64
	for p, entries := range m.reverse {
		for _, e := range entries {
			if paddr >= p && paddr < e.pend() {
				vs = append(vs, e.VAddr+(paddr-e.PAddr))
			}
		}
	}
	sort.Slice(vs, func(i, j int) bool { return vs[i] < vs[j] })
	return vs
}

// Unmap removes [vaddr, vaddr+length), splitting any entry it bisects into
// up to two residual entries. It fails with AddressNotFound and leaves the
// index unchanged if the region is not fully mapped (all-or-nothing,
// spec.md §4.3).
func (m *MapIndex) Unmap(vaddr, length uint64) error {
	if length == 0 {
		return nil
	}
	if _, ok := m.SplitVAddrRange(vaddr, length); !ok {
		return ioerr.NewAddressNotFound("mapindex: unmap", vaddr, length)
	}
	end := vaddr + length
	// Collect the affected entries first (snapshot), then mutate, since
	// Unmap replaces entries in place and iterating m.order while mutating
	// it would be unsafe.
	var affected []*Entry
	for _, e := range m.order {
		if overlaps(vaddr, length, e.VAddr, e.Size) {
			affected = append(affected, e)
		}
	}
	for _, e := range affected {
		m.remove(e)
		if e.VAddr < vaddr {
			m.insert(&Entry{PAddr: e.PAddr, VAddr: e.VAddr, Size: vaddr - e.VAddr})
		}
		if e.vend() > end {
			off := end - e.VAddr
			m.insert(&Entry{PAddr: e.PAddr + off, VAddr: end, Size: e.vend() - end})
		}
	}
	return nil
}

// Iter returns every entry in ascending VAddr order.
func (m *MapIndex) Iter() []Entry {
	out := make([]Entry, len(m.order))
	for i, e := range m.order {
		out[i] = *e
	}
	return out
}

// Len returns the number of live entries.
func (m *MapIndex) Len() int { return len(m.order) }

// Reset removes every entry (used by IO.CloseAll, spec.md §4.4).
func (m *MapIndex) Reset() {
	m.tree = llrb.Tree{}
	m.order = nil
	m.reverse = make(map[uint64][]*Entry)
}
