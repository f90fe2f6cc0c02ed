package networkfs

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/kmaximk/itmo-os-networkfs/internal/fine"
	"github.com/kmaximk/itmo-os-networkfs/internal/remote"
	"github.com/stretchr/testify/require"
)

type stubLister struct {
	listing remote.Listing
	err     error
	calls   int
}

func (s *stubLister) List(_ context.Context, _ uint64) (remote.Listing, error) {
	s.calls++
	return s.listing, s.err
}

func TestEnumerator_EmptyDirectory(t *testing.T) {
	l := &stubLister{}
	e := NewEnumerator(l)

	entries, records, err := e.Enumerate(context.Background(), 1001, 1000, 0)
	require.NoError(t, err)
	require.Zero(t, records)
	require.Equal(t, []fine.DirEntry{
		{Inode: 1001, Type: fine.EntryDirectory, Name: ".", Offset: 1},
		{Inode: 1000, Type: fine.EntryDirectory, Name: "..", Offset: 2},
	}, entries)
	require.Equal(t, 1, l.calls)
}

func TestEnumerator_Entries(t *testing.T) {
	l := &stubLister{listing: remote.Listing{
		Declared: 2,
		Entries: []remote.DirEntry{
			{Type: remote.TypeFile, Ino: 1002, Name: "a.txt"},
			{Type: remote.TypeDirectory, Ino: 1003, Name: "sub"},
		},
	}}
	e := NewEnumerator(l)

	entries, records, err := e.Enumerate(context.Background(), 1000, 1000, 0)
	require.NoError(t, err)
	require.Equal(t, 2, records)
	require.Len(t, entries, 4)
	require.Equal(t, fine.DirEntry{Inode: 1002, Type: fine.EntryRegular, Name: "a.txt", Offset: 3}, entries[2])
	require.Equal(t, fine.DirEntry{Inode: 1003, Type: fine.EntryDirectory, Name: "sub", Offset: 4}, entries[3])

	// Resuming from the offset of an entry continues right after it.
	entries, records, err = e.Enumerate(context.Background(), 1000, 1000, entries[2].Offset)
	require.NoError(t, err)
	require.Equal(t, 1, records)
	require.Equal(t, []fine.DirEntry{{Inode: 1003, Type: fine.EntryDirectory, Name: "sub", Offset: 4}}, entries)

	entries, records, err = e.Enumerate(context.Background(), 1000, 1000, 4)
	require.NoError(t, err)
	require.Zero(t, records)
	require.Empty(t, entries)
	require.Equal(t, 3, l.calls)
}

func TestEnumerator_FullBatch(t *testing.T) {
	listing := remote.Listing{Declared: remote.MaxEntries}
	for i := 0; i < remote.MaxEntries; i++ {
		listing.Entries = append(listing.Entries, remote.DirEntry{
			Type: remote.TypeFile,
			Ino:  uint64(1002 + i),
			Name: fmt.Sprintf("f%d", i),
		})
	}
	e := NewEnumerator(&stubLister{listing: listing})

	entries, records, err := e.Enumerate(context.Background(), 1000, 1000, 0)
	require.NoError(t, err)
	require.Equal(t, remote.MaxEntries, records)
	require.Len(t, entries, remote.MaxEntries+2)
	for i, ent := range entries {
		require.Equal(t, uint64(i+1), ent.Offset)
	}
	require.Equal(t, fine.DirEntry{Inode: 1017, Type: fine.EntryRegular, Name: "f15", Offset: 18}, entries[17])

	entries, records, err = e.Enumerate(context.Background(), 1000, 1000, 17)
	require.NoError(t, err)
	require.Equal(t, 1, records)
	require.Equal(t, []fine.DirEntry{{Inode: 1017, Type: fine.EntryRegular, Name: "f15", Offset: 18}}, entries)

	entries, _, err = e.Enumerate(context.Background(), 1000, 1000, 18)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestEnumerator_ListFailure(t *testing.T) {
	e := NewEnumerator(&stubLister{err: errors.New("unreachable")})
	_, _, err := e.Enumerate(context.Background(), 1000, 1000, 0)
	require.Error(t, err)
}
