// Package sparse implements an ordered sparse byte map keyed by uint64,
// the storage backing Component F's (Intel HEX) in-memory representation
// of a container file: most addressable offsets are never written, so a
// dense byte slice would waste memory proportional to the address range
// rather than the occupied byte count.
//
// No example repo ships a generic ordered sparse map; encoding/fasta's
// indexed reader (index.go) and interval/bedunion.go both lean on
// sort.SliceStable over plain slices for the same "keep it ordered,
// rebuild lazily" shape, which this type follows.
package sparse

import "sort"

// Map is a sparse byte store keyed by address. The zero value is ready to
// use.
type Map struct {
	bytes map[uint64]byte
	// keys caches the ascending key order; invalidated (set to nil) on any
	// mutation and rebuilt lazily on the next call that needs order.
	keys []uint64
}

// NewMap returns an empty Map.
func NewMap() *Map {
	return &Map{bytes: make(map[uint64]byte)}
}

// Len returns the number of occupied addresses.
func (m *Map) Len() int {
	return len(m.bytes)
}

// Get returns the byte at addr and whether it is occupied.
func (m *Map) Get(addr uint64) (byte, bool) {
	b, ok := m.bytes[addr]
	return b, ok
}

// GetOrZero returns the byte at addr, or 0 if unoccupied (the sparse-fill
// behavior spec.md §4.5 requires for HEX reads outside occupied keys).
func (m *Map) GetOrZero(addr uint64) byte {
	return m.bytes[addr]
}

// Set stores b at addr.
func (m *Map) Set(addr uint64, b byte) {
	if m.bytes == nil {
		m.bytes = make(map[uint64]byte)
	}
	if _, exists := m.bytes[addr]; !exists {
		m.keys = nil
	}
	m.bytes[addr] = b
}

// MinMaxKey returns the smallest and largest occupied addresses. ok is
// false for an empty map.
func (m *Map) MinMaxKey() (min, max uint64, ok bool) {
	if len(m.bytes) == 0 {
		return 0, 0, false
	}
	m.ensureKeys()
	return m.keys[0], m.keys[len(m.keys)-1], true
}

// Ascend calls fn for every occupied address in ascending key order,
// stopping early if fn returns false. This backs the HEX serializer's
// ordered walk over occupied bytes (spec.md §4.5).
func (m *Map) Ascend(fn func(addr uint64, b byte) bool) {
	m.ensureKeys()
	for _, k := range m.keys {
		if !fn(k, m.bytes[k]) {
			return
		}
	}
}

func (m *Map) ensureKeys() {
	if m.keys != nil || len(m.bytes) == 0 {
		return
	}
	keys := make([]uint64, 0, len(m.bytes))
	for k := range m.bytes {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	m.keys = keys
}
