package cache

import (
	"errors"
	"testing"

	"github.com/kmaximk/itmo-os-networkfs/internal/fine"
	"github.com/stretchr/testify/require"
)

type closeCounter struct {
	closed int
	err    error
}

func (c *closeCounter) Close() error {
	c.closed++
	return c.err
}

func TestCache_Root(t *testing.T) {
	root := &closeCounter{}
	c := New(nil, 1000, root)

	info, node, err := c.GetNode(fine.RootNode)
	require.NoError(t, err)
	require.Equal(t, uint64(1000), info.RemoteID)
	require.Same(t, root, node)
}

func TestCache_AddNode_SameRemoteID(t *testing.T) {
	c := New(nil, 1000, nil)

	first := &closeCounter{}
	a, stored, err := c.AddNode(42, first)
	require.NoError(t, err)
	require.Same(t, first, stored)

	b, stored, err := c.AddNode(42, &closeCounter{})
	require.NoError(t, err)
	require.Equal(t, a.ID, b.ID, "same remote id must resolve to the same node")
	require.Same(t, first, stored)

	// Two references were taken; releasing one keeps the node alive.
	require.NoError(t, c.ReleaseNode(a.ID, 1))
	_, _, err = c.GetNode(a.ID)
	require.NoError(t, err)
	require.Equal(t, 0, first.closed)

	require.NoError(t, c.ReleaseNode(a.ID, 1))
	_, _, err = c.GetNode(a.ID)
	require.ErrorIs(t, err, fine.ErrorStale)
	require.Equal(t, 1, first.closed)
	require.Equal(t, 1, c.NumNodes())
}

func TestCache_ReleaseNode_MoreThanHeld(t *testing.T) {
	c := New(nil, 1000, nil)

	info, _, err := c.AddNode(7, nil)
	require.NoError(t, err)
	require.NoError(t, c.ReleaseNode(info.ID, 10))

	err = c.ReleaseNode(info.ID, 1)
	require.ErrorIs(t, err, fine.ErrorStale)
}

func TestCache_ReaddAfterRelease(t *testing.T) {
	c := New(nil, 1000, nil)

	a, _, err := c.AddNode(7, nil)
	require.NoError(t, err)
	require.NoError(t, c.ReleaseNode(a.ID, 1))

	b, _, err := c.AddNode(7, nil)
	require.NoError(t, err)
	require.NotEqual(t, a.ID, b.ID)
	require.Equal(t, uint64(7), b.RemoteID)
}

func TestCache_Handles(t *testing.T) {
	c := New(nil, 1000, nil)

	h1 := &closeCounter{}
	info1, err := c.AddHandle(h1)
	require.NoError(t, err)

	_, got, err := c.GetHandle(info1.ID)
	require.NoError(t, err)
	require.Same(t, h1, got)

	require.NoError(t, c.ReleaseHandle(info1.ID))
	require.Equal(t, 1, h1.closed)

	_, _, err = c.GetHandle(info1.ID)
	require.ErrorIs(t, err, fine.ErrorBadHandle)
	require.ErrorIs(t, c.ReleaseHandle(info1.ID), fine.ErrorBadHandle)

	// Released IDs are reused.
	info2, err := c.AddHandle(&closeCounter{})
	require.NoError(t, err)
	require.Equal(t, info1.ID, info2.ID)
}

func TestCache_ReleaseAllHandles(t *testing.T) {
	c := New(nil, 1000, nil)

	ok := &closeCounter{}
	bad := &closeCounter{err: errors.New("boom")}
	_, err := c.AddHandle(ok)
	require.NoError(t, err)
	_, err = c.AddHandle(bad)
	require.NoError(t, err)

	errs := c.ReleaseAllHandles()
	require.Len(t, errs, 1)
	require.Equal(t, 1, ok.closed)
	require.Equal(t, 1, bad.closed)
	require.Equal(t, 0, c.NumHandles())
}
