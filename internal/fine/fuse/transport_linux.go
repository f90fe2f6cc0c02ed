package fuse

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"syscall"
	"time"

	bfuse "bazil.org/fuse"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/hashicorp/go-multierror"
	"github.com/kmaximk/itmo-os-networkfs/internal/fine"
	"go.uber.org/atomic"
)

// Transport implements fine.Transport over a kernel FUSE connection.
//
// Requests the fine protocol does not model are answered by the Transport
// itself and never returned from RecvRequest.
type Transport struct {
	log     log.Logger
	conn    *bfuse.Conn
	onClose func() error

	mut     sync.Mutex
	pending map[uint64]bfuse.Request

	closed atomic.Bool
}

var _ fine.Transport = (*Transport)(nil)

func newTransport(l log.Logger, conn *bfuse.Conn, onClose func() error) *Transport {
	return &Transport{
		log:     l,
		conn:    conn,
		onClose: onClose,
		pending: make(map[uint64]bfuse.Request),
	}
}

// RecvRequest implements fine.Transport.
func (t *Transport) RecvRequest() (fine.RequestHeader, fine.Request, error) {
	for {
		req, err := t.conn.ReadRequest()
		if err != nil {
			if errors.Is(err, io.EOF) || t.closed.Load() {
				return fine.RequestHeader{}, nil, io.EOF
			}
			return fine.RequestHeader{}, nil, fmt.Errorf("reading request: %w", err)
		}

		hdr, freq, ok := t.toFineRequest(req)
		if !ok {
			continue
		}
		if hdr.Op.HasResponse() {
			t.mut.Lock()
			t.pending[hdr.RequestID] = req
			t.mut.Unlock()
		}
		return hdr, freq, nil
	}
}

// toFineRequest converts req. ok is false when req was answered locally.
func (t *Transport) toFineRequest(req bfuse.Request) (hdr fine.RequestHeader, freq fine.Request, ok bool) {
	rh := req.Hdr()
	hdr = fine.RequestHeader{
		RequestID: uint64(rh.ID),
		Node:      fine.Node(rh.Node),
		UID:       rh.Uid,
		GID:       rh.Gid,
		PID:       rh.Pid,
	}

	switch r := req.(type) {
	case *bfuse.LookupRequest:
		hdr.Op = fine.OpLookup
		freq = &fine.LookupRequest{Name: r.Name}

	case *bfuse.ForgetRequest:
		// The kernel never waits on a forget.
		r.Respond()
		hdr.Op = fine.OpForget
		freq = &fine.ForgetRequest{NumLookups: r.N}

	case *bfuse.BatchForgetRequest:
		r.Respond()
		items := make([]fine.BatchForgetItem, 0, len(r.Forget))
		for _, f := range r.Forget {
			items = append(items, fine.BatchForgetItem{Node: fine.Node(f.NodeID), NumLookups: f.N})
		}
		hdr.Op = fine.OpBatchForget
		freq = &fine.BatchForgetRequest{Items: items}

	case *bfuse.GetattrRequest:
		hdr.Op = fine.OpGetattr
		freq = &fine.GetattrRequest{Handle: fine.Handle(r.Handle)}

	case *bfuse.SetattrRequest:
		hdr.Op = fine.OpSetattr
		freq = &fine.SetattrRequest{
			UpdateMask: toAttribMask(r.Valid),
			Handle:     fine.Handle(r.Handle),
			Size:       r.Size,
			LastAccess: r.Atime,
			LastModify: r.Mtime,
			Mode:       r.Mode,
			UID:        r.Uid,
			GID:        r.Gid,
		}

	case *bfuse.MkdirRequest:
		hdr.Op = fine.OpMkdir
		freq = &fine.MkdirRequest{Mode: r.Mode, Umask: r.Umask, Name: r.Name}

	case *bfuse.CreateRequest:
		hdr.Op = fine.OpCreate
		freq = &fine.CreateRequest{
			Flags: fine.FileFlags(r.Flags),
			Mode:  r.Mode,
			Umask: r.Umask,
			Name:  r.Name,
		}

	case *bfuse.RemoveRequest:
		if r.Dir {
			hdr.Op = fine.OpRmdir
			freq = &fine.RmdirRequest{Name: r.Name}
		} else {
			hdr.Op = fine.OpUnlink
			freq = &fine.UnlinkRequest{Name: r.Name}
		}

	case *bfuse.LinkRequest:
		hdr.Op = fine.OpLink
		freq = &fine.LinkRequest{OldNode: fine.Node(r.OldNode), NewName: r.NewName}

	case *bfuse.OpenRequest:
		hdr.Op = fine.OpOpen
		if r.Dir {
			hdr.Op = fine.OpOpendir
		}
		freq = &fine.OpenRequest{Flags: fine.FileFlags(r.Flags)}

	case *bfuse.ReadRequest:
		hdr.Op = fine.OpRead
		if r.Dir {
			hdr.Op = fine.OpReaddir
		}
		freq = &fine.ReadRequest{
			Handle:    fine.Handle(r.Handle),
			Offset:    uint64(r.Offset),
			Size:      uint32(r.Size),
			FileFlags: fine.FileFlags(r.FileFlags),
		}

	case *bfuse.WriteRequest:
		hdr.Op = fine.OpWrite
		freq = &fine.WriteRequest{
			Handle:    fine.Handle(r.Handle),
			Offset:    uint64(r.Offset),
			Data:      r.Data,
			FileFlags: fine.FileFlags(r.FileFlags),
		}

	case *bfuse.ReleaseRequest:
		hdr.Op = fine.OpRelease
		if r.Dir {
			hdr.Op = fine.OpReleasedir
		}
		freq = &fine.ReleaseRequest{Handle: fine.Handle(r.Handle), FileFlags: fine.FileFlags(r.Flags)}

	case *bfuse.FlushRequest:
		hdr.Op = fine.OpFlush
		freq = &fine.FlushRequest{Handle: fine.Handle(r.Handle)}

	case *bfuse.FsyncRequest:
		if r.Dir {
			// Directory changes are never buffered.
			r.Respond()
			return hdr, nil, false
		}
		hdr.Op = fine.OpFsync
		freq = &fine.FsyncRequest{Handle: fine.Handle(r.Handle)}

	case *bfuse.InterruptRequest:
		hdr.Op = fine.OpInterrupt
		freq = &fine.InterruptRequest{RequestID: uint64(r.IntrID)}

	case *bfuse.DestroyRequest:
		hdr.Op = fine.OpDestroy

	case *bfuse.StatfsRequest:
		r.Respond(&bfuse.StatfsResponse{Bsize: 512, Frsize: 512, Namelen: 255})
		return hdr, nil, false

	case *bfuse.AccessRequest:
		// Every node is reported as 0777.
		r.Respond()
		return hdr, nil, false

	default:
		level.Debug(t.log).Log("msg", "unsupported request", "req", req)
		req.RespondError(bfuse.ENOSYS)
		return hdr, nil, false
	}
	return hdr, freq, true
}

func toAttribMask(v bfuse.SetattrValid) fine.AttribMask {
	var mask fine.AttribMask
	if v.Mode() {
		mask |= fine.AttribMaskMode
	}
	if v.Uid() {
		mask |= fine.AttribMaskUID
	}
	if v.Gid() {
		mask |= fine.AttribMaskGID
	}
	if v.Size() {
		mask |= fine.AttribMaskSize
	}
	if v.Atime() {
		mask |= fine.AttribMaskLastAccess
	}
	if v.Mtime() {
		mask |= fine.AttribMaskLastModify
	}
	if v.Handle() {
		mask |= fine.AttribMaskFileHandle
	}
	return mask
}

// emptyResponder is implemented by requests whose reply carries no data.
type emptyResponder interface {
	Respond()
}

// SendResponse implements fine.Transport.
func (t *Transport) SendResponse(h fine.ResponseHeader, resp fine.Response) error {
	t.mut.Lock()
	req, ok := t.pending[h.RequestID]
	delete(t.pending, h.RequestID)
	t.mut.Unlock()
	if !ok {
		return fmt.Errorf("no pending request %d for %s response", h.RequestID, h.Op)
	}

	if h.Error != 0 {
		// The kernel does not expect a reply to an unmatched interrupt.
		if r, isInterrupt := req.(*bfuse.InterruptRequest); isInterrupt {
			r.Respond()
			return nil
		}
		req.RespondError(bfuse.Errno(syscall.Errno(h.Error.Errno())))
		return nil
	}

	mismatch := func() error {
		req.RespondError(bfuse.EIO)
		return fmt.Errorf("unexpected response %T for %s", resp, h.Op)
	}

	switch r := req.(type) {
	case *bfuse.LookupRequest:
		er, ok := resp.(*fine.EntryResponse)
		if !ok {
			return mismatch()
		}
		lr := toLookupResponse(er.Entry)
		r.Respond(&lr)

	case *bfuse.LinkRequest:
		er, ok := resp.(*fine.EntryResponse)
		if !ok {
			return mismatch()
		}
		lr := toLookupResponse(er.Entry)
		r.Respond(&lr)

	case *bfuse.MkdirRequest:
		er, ok := resp.(*fine.EntryResponse)
		if !ok {
			return mismatch()
		}
		r.Respond(&bfuse.MkdirResponse{LookupResponse: toLookupResponse(er.Entry)})

	case *bfuse.GetattrRequest:
		ar, ok := resp.(*fine.AttrResponse)
		if !ok {
			return mismatch()
		}
		r.Respond(&bfuse.GetattrResponse{Attr: toAttr(ar.Attrib, ar.TTL)})

	case *bfuse.SetattrRequest:
		ar, ok := resp.(*fine.AttrResponse)
		if !ok {
			return mismatch()
		}
		r.Respond(&bfuse.SetattrResponse{Attr: toAttr(ar.Attrib, ar.TTL)})

	case *bfuse.CreateRequest:
		cr, ok := resp.(*fine.CreateResponse)
		if !ok {
			return mismatch()
		}
		r.Respond(&bfuse.CreateResponse{
			LookupResponse: toLookupResponse(cr.Entry),
			OpenResponse:   toOpenResponse(cr.Handle, cr.OpenedFlags),
		})

	case *bfuse.OpenRequest:
		opened, ok := resp.(*fine.OpenedResponse)
		if !ok {
			return mismatch()
		}
		out := toOpenResponse(opened.Handle, opened.OpenedFlags)
		r.Respond(&out)

	case *bfuse.ReadRequest:
		if r.Dir {
			dr, ok := resp.(*fine.ReaddirResponse)
			if !ok {
				return mismatch()
			}
			r.Respond(&bfuse.ReadResponse{Data: appendDirents(nil, dr.Entries, r.Size)})
			break
		}
		rr, ok := resp.(*fine.ReadResponse)
		if !ok {
			return mismatch()
		}
		r.Respond(&bfuse.ReadResponse{Data: rr.Data})

	case *bfuse.WriteRequest:
		wr, ok := resp.(*fine.WriteResponse)
		if !ok {
			return mismatch()
		}
		r.Respond(&bfuse.WriteResponse{Size: int(wr.Written)})

	case emptyResponder:
		// Remove, release, flush, fsync, interrupt and destroy.
		r.Respond()

	default:
		return mismatch()
	}
	return nil
}

// Close unmounts the filesystem and closes the connection to the kernel.
func (t *Transport) Close() error {
	if !t.closed.CAS(false, true) {
		return nil
	}

	var errs error
	if t.onClose != nil {
		if err := t.onClose(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	if err := t.conn.Close(); err != nil {
		errs = multierror.Append(errs, err)
	}

	t.mut.Lock()
	abandoned := len(t.pending)
	t.pending = make(map[uint64]bfuse.Request)
	t.mut.Unlock()

	level.Debug(t.log).Log("msg", "closed transport", "abandoned_requests", abandoned, "err", errs)
	return errs
}

func toLookupResponse(e fine.Entry) bfuse.LookupResponse {
	return bfuse.LookupResponse{
		Node:       bfuse.NodeID(e.Node),
		Generation: e.Generation,
		EntryValid: e.EntryTTL,
		Attr:       toAttr(e.Attrib, e.AttribTTL),
	}
}

func toAttr(a fine.Attrib, ttl time.Duration) bfuse.Attr {
	return bfuse.Attr{
		Valid:     ttl,
		Inode:     a.Inode,
		Size:      a.Size,
		Blocks:    a.Blocks,
		Atime:     a.LastAccess,
		Mtime:     a.LastModify,
		Ctime:     a.LastChange,
		Mode:      a.Mode,
		Nlink:     a.HardLinks,
		Uid:       a.UID,
		Gid:       a.GID,
		BlockSize: a.BlockSize,
	}
}

func toOpenResponse(h fine.Handle, flags fine.OpenedFlags) bfuse.OpenResponse {
	out := bfuse.OpenResponse{Handle: bfuse.HandleID(h)}
	if flags&fine.OpenedDirectIO != 0 {
		out.Flags |= bfuse.OpenDirectIO
	}
	if flags&fine.OpenedKeepCache != 0 {
		out.Flags |= bfuse.OpenKeepCache
	}
	if flags&fine.OpenedNonSeekable != 0 {
		out.Flags |= bfuse.OpenNonSeekable
	}
	return out
}
