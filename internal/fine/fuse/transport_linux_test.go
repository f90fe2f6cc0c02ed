package fuse

import (
	"os"
	"testing"
	"time"

	bfuse "bazil.org/fuse"
	"github.com/go-kit/log"
	"github.com/kmaximk/itmo-os-networkfs/internal/fine"
	"github.com/stretchr/testify/require"
)

func TestTransport_ToFineRequest(t *testing.T) {
	tr := newTransport(log.NewNopLogger(), nil, nil)
	hdr := bfuse.Header{ID: 7, Node: 3, Uid: 1000, Gid: 100, Pid: 42}

	tt := []struct {
		name   string
		req    bfuse.Request
		op     fine.Op
		expect fine.Request
	}{
		{
			name:   "lookup",
			req:    &bfuse.LookupRequest{Header: hdr, Name: "a.txt"},
			op:     fine.OpLookup,
			expect: &fine.LookupRequest{Name: "a.txt"},
		},
		{
			name:   "unlink",
			req:    &bfuse.RemoveRequest{Header: hdr, Name: "a.txt"},
			op:     fine.OpUnlink,
			expect: &fine.UnlinkRequest{Name: "a.txt"},
		},
		{
			name:   "rmdir",
			req:    &bfuse.RemoveRequest{Header: hdr, Name: "sub", Dir: true},
			op:     fine.OpRmdir,
			expect: &fine.RmdirRequest{Name: "sub"},
		},
		{
			name:   "opendir",
			req:    &bfuse.OpenRequest{Header: hdr, Dir: true},
			op:     fine.OpOpendir,
			expect: &fine.OpenRequest{},
		},
		{
			name:   "open append",
			req:    &bfuse.OpenRequest{Header: hdr, Flags: bfuse.OpenWriteOnly | bfuse.OpenAppend},
			op:     fine.OpOpen,
			expect: &fine.OpenRequest{Flags: fine.OpenWriteOnly | fine.OpenAppend},
		},
		{
			name:   "readdir",
			req:    &bfuse.ReadRequest{Header: hdr, Dir: true, Handle: 2, Offset: 3, Size: 4096},
			op:     fine.OpReaddir,
			expect: &fine.ReadRequest{Handle: 2, Offset: 3, Size: 4096},
		},
		{
			name:   "write",
			req:    &bfuse.WriteRequest{Header: hdr, Handle: 2, Offset: 5, Data: []byte("hi")},
			op:     fine.OpWrite,
			expect: &fine.WriteRequest{Handle: 2, Offset: 5, Data: []byte("hi")},
		},
		{
			name:   "truncate",
			req:    &bfuse.SetattrRequest{Header: hdr, Valid: bfuse.SetattrSize | bfuse.SetattrHandle, Handle: 2, Size: 10},
			op:     fine.OpSetattr,
			expect: &fine.SetattrRequest{UpdateMask: fine.AttribMaskSize | fine.AttribMaskFileHandle, Handle: 2, Size: 10},
		},
		{
			name:   "link",
			req:    &bfuse.LinkRequest{Header: hdr, OldNode: 9, NewName: "b"},
			op:     fine.OpLink,
			expect: &fine.LinkRequest{OldNode: 9, NewName: "b"},
		},
		{
			name:   "releasedir",
			req:    &bfuse.ReleaseRequest{Header: hdr, Dir: true, Handle: 4},
			op:     fine.OpReleasedir,
			expect: &fine.ReleaseRequest{Handle: 4},
		},
		{
			name:   "interrupt",
			req:    &bfuse.InterruptRequest{Header: hdr, IntrID: 6},
			op:     fine.OpInterrupt,
			expect: &fine.InterruptRequest{RequestID: 6},
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			h, req, ok := tr.toFineRequest(tc.req)
			require.True(t, ok)
			require.Equal(t, fine.RequestHeader{
				Op:        tc.op,
				RequestID: 7,
				Node:      3,
				UID:       1000,
				GID:       100,
				PID:       42,
			}, h)
			require.Equal(t, tc.expect, req)
		})
	}
}

func TestToLookupResponse(t *testing.T) {
	now := time.Now()
	resp := toLookupResponse(fine.Entry{
		Node:       5,
		Generation: 1,
		EntryTTL:   time.Second,
		Attrib: fine.Attrib{
			Inode:      1002,
			Size:       5,
			Blocks:     1,
			LastModify: now,
			Mode:       os.ModeDir | 0777,
			HardLinks:  2,
			BlockSize:  512,
		},
	})

	require.Equal(t, bfuse.NodeID(5), resp.Node)
	require.Equal(t, time.Second, resp.EntryValid)
	require.Equal(t, uint64(1002), resp.Attr.Inode)
	require.Equal(t, now, resp.Attr.Mtime)
	require.Equal(t, os.ModeDir|0777, resp.Attr.Mode)
	require.Equal(t, uint32(2), resp.Attr.Nlink)
	require.Zero(t, resp.Attr.Valid)
}

func TestToOpenResponse(t *testing.T) {
	resp := toOpenResponse(3, fine.OpenedDirectIO)
	require.Equal(t, bfuse.HandleID(3), resp.Handle)
	require.Equal(t, bfuse.OpenDirectIO, resp.Flags)
}
