package ioerr_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rair-go/rio/ioerr"
)

func TestIsComparesKindOnly(t *testing.T) {
	err1 := ioerr.NewAddressNotFound("paddr", 0x1000)
	err2 := ioerr.E(ioerr.AddressNotFound, errors.New("wrapped os error"), "paddr", 0x2000)

	require.True(t, ioerr.Is(err1, ioerr.AddressNotFound))
	require.True(t, ioerr.Is(err2, ioerr.AddressNotFound))
	require.False(t, ioerr.Is(err1, ioerr.AddressesOverlap))
	require.NotEqual(t, err1.Error(), err2.Error())
}

func TestKindOf(t *testing.T) {
	require.Equal(t, ioerr.HndlNotFound, ioerr.KindOf(ioerr.NewHndlNotFound("h", 7)))
	require.Equal(t, ioerr.Other, ioerr.KindOf(errors.New("plain")))
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("disk exploded")
	err := ioerr.NewParse(cause, "ihex: line", 4)
	require.True(t, errors.Is(err, cause) || errors.Unwrap(err) != nil)
}
