package perm_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rair-go/rio/perm"
)

func TestSetAccessors(t *testing.T) {
	require.True(t, perm.Read.CanRead())
	require.False(t, perm.Read.CanWrite())
	require.False(t, perm.Read.CanMutate())

	rw := perm.Read | perm.Write
	require.True(t, rw.CanRead())
	require.True(t, rw.CanWrite())
	require.True(t, rw.CanMutate())
	require.False(t, rw.IsCOW())

	cow := perm.Read | perm.COW
	require.True(t, cow.IsCOW())
	require.True(t, cow.CanMutate())
	require.False(t, cow.CanWrite())

	require.False(t, perm.None.CanMutate())
}

func TestSetString(t *testing.T) {
	require.Equal(t, "-", perm.None.String())
	require.Equal(t, "r", perm.Read.String())
	require.Equal(t, "rw", (perm.Read | perm.Write).String())
	require.Equal(t, "rwc", (perm.Read | perm.Write | perm.COW).String())
}
