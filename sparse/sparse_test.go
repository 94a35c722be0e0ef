package sparse_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rair-go/rio/sparse"
)

func TestMapBasics(t *testing.T) {
	m := sparse.NewMap()
	require.Equal(t, 0, m.Len())
	_, ok := m.Get(5)
	require.False(t, ok)
	require.Equal(t, byte(0), m.GetOrZero(5))

	m.Set(10, 0xAB)
	m.Set(5, 0xCD)
	m.Set(20, 0xEF)
	require.Equal(t, 3, m.Len())

	b, ok := m.Get(10)
	require.True(t, ok)
	require.Equal(t, byte(0xAB), b)

	min, max, ok := m.MinMaxKey()
	require.True(t, ok)
	require.Equal(t, uint64(5), min)
	require.Equal(t, uint64(20), max)

	var order []uint64
	m.Ascend(func(addr uint64, b byte) bool {
		order = append(order, addr)
		return true
	})
	require.Equal(t, []uint64{5, 10, 20}, order)
}

func TestMapAscendStopsEarly(t *testing.T) {
	m := sparse.NewMap()
	for i := uint64(0); i < 10; i++ {
		m.Set(i, byte(i))
	}
	count := 0
	m.Ascend(func(addr uint64, b byte) bool {
		count++
		return addr < 3
	})
	require.Equal(t, 4, count)
}

func TestMapOverwrite(t *testing.T) {
	m := sparse.NewMap()
	m.Set(1, 0x01)
	m.Set(1, 0x02)
	require.Equal(t, 1, m.Len())
	b, _ := m.Get(1)
	require.Equal(t, byte(0x02), b)
}

func TestEmptyMapMinMax(t *testing.T) {
	m := sparse.NewMap()
	_, _, ok := m.MinMaxKey()
	require.False(t, ok)
}
