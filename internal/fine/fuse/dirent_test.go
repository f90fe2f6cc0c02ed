package fuse

import (
	"encoding/binary"
	"testing"

	"github.com/kmaximk/itmo-os-networkfs/internal/fine"
	"github.com/stretchr/testify/require"
)

func TestAlign64(t *testing.T) {
	tt := []struct{ in, expect uint64 }{
		{0, 0},
		{1, 8},
		{8, 8},
		{24, 24},
		{25, 32},
		{31, 32},
	}
	for _, tc := range tt {
		require.Equal(t, tc.expect, align64(tc.in), "align64(%d)", tc.in)
	}
}

func TestAppendDirents(t *testing.T) {
	ents := []fine.DirEntry{
		{Inode: 1000, Type: fine.EntryDirectory, Name: ".", Offset: 1},
		{Inode: 1002, Type: fine.EntryRegular, Name: "file.txt", Offset: 2},
	}

	buf := appendDirents(nil, ents, 4096)
	// "." pads to 32 bytes, "file.txt" is exactly 32 bytes.
	require.Len(t, buf, 64)

	require.Equal(t, uint64(1000), binary.NativeEndian.Uint64(buf[0:]))
	require.Equal(t, uint64(1), binary.NativeEndian.Uint64(buf[8:]))
	require.Equal(t, uint32(1), binary.NativeEndian.Uint32(buf[16:]))
	require.Equal(t, uint32(fine.EntryDirectory), binary.NativeEndian.Uint32(buf[20:]))
	require.Equal(t, ".", string(buf[24:25]))
	require.Equal(t, make([]byte, 7), buf[25:32])

	second := buf[32:]
	require.Equal(t, uint64(1002), binary.NativeEndian.Uint64(second[0:]))
	require.Equal(t, uint64(2), binary.NativeEndian.Uint64(second[8:]))
	require.Equal(t, uint32(8), binary.NativeEndian.Uint32(second[16:]))
	require.Equal(t, uint32(fine.EntryRegular), binary.NativeEndian.Uint32(second[20:]))
	require.Equal(t, "file.txt", string(second[24:32]))
}

func TestAppendDirents_StopsAtSize(t *testing.T) {
	ents := []fine.DirEntry{
		{Inode: 1, Name: "a", Offset: 1},
		{Inode: 2, Name: "b", Offset: 2},
		{Inode: 3, Name: "c", Offset: 3},
	}

	buf := appendDirents(nil, ents, 70)
	require.Len(t, buf, 64)
	require.Equal(t, uint64(2), binary.NativeEndian.Uint64(buf[32+8:]))

	require.Empty(t, appendDirents(nil, ents, 31))
}
