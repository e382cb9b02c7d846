package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemory_SetGetDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := NewMemory(time.Minute)

	_, ok := c.Get(ctx, "k")
	require.False(t, ok)

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	require.Equal(t, []byte("v"), got)

	require.NoError(t, c.Delete(ctx, "k"))
	_, ok = c.Get(ctx, "k")
	require.False(t, ok)
}

func TestMemory_AddIsOneShot(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := NewMemory(time.Minute)

	stored, err := c.Add(ctx, "state:abc", []byte{1}, time.Minute)
	require.NoError(t, err)
	require.True(t, stored)

	stored, err = c.Add(ctx, "state:abc", []byte{1}, time.Minute)
	require.NoError(t, err)
	require.False(t, stored)
}
