// Package networkfs implements a fine server.Handler whose files and
// directories live on a networkfs backend.
//
// Nodes are identified by the inode numbers the backend assigns. Directory
// operations are forwarded to the backend one call at a time. File content is
// held in memory per open handle (see File) and only sent to the backend when
// the kernel flushes or syncs the handle.
package networkfs

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/hashicorp/go-multierror"
	"github.com/kmaximk/itmo-os-networkfs/internal/fine"
	"github.com/kmaximk/itmo-os-networkfs/internal/fine/cache"
	"github.com/kmaximk/itmo-os-networkfs/internal/fine/server"
	"github.com/kmaximk/itmo-os-networkfs/internal/remote"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
)

// Backend is the set of remote operations used by Handler. *remote.Client
// implements Backend.
type Backend interface {
	ContentStore
	Lister

	Lookup(ctx context.Context, parent uint64, name string) (remote.EntryInfo, error)
	Create(ctx context.Context, parent uint64, name string, typ remote.EntryType) (uint64, error)
	Unlink(ctx context.Context, parent uint64, name string) error
	Rmdir(ctx context.Context, parent uint64, name string) error
	Link(ctx context.Context, source, parent uint64, name string) error
}

// Options configures a Handler.
type Options struct {
	UID, GID uint32 // Owner reported for every node.
}

// Handler serves a networkfs mount.
type Handler struct {
	log     log.Logger
	backend Backend
	o       Options

	cache *cache.Cache
	enum  *Enumerator
}

var _ server.Handler = (*Handler)(nil)

// New creates a new Handler. Metrics are registered against reg if it is
// non-nil.
func New(l log.Logger, reg prometheus.Registerer, b Backend, o Options) *Handler {
	if l == nil {
		l = log.NewNopLogger()
	}

	root := newNode(remote.RootID, remote.TypeDirectory, remote.RootID)
	h := &Handler{
		log:     l,
		backend: b,
		o:       o,
		cache:   cache.New(l, remote.RootID, root),
		enum:    NewEnumerator(b),
	}
	registerCacheMetrics(reg, h.cache)
	return h
}

type node struct {
	remoteID uint64
	kind     remote.EntryType
	parent   uint64 // remote ID of the directory the node was found in
	created  time.Time

	size  atomic.Uint64
	nlink atomic.Uint32
}

func newNode(remoteID uint64, kind remote.EntryType, parent uint64) *node {
	n := &node{remoteID: remoteID, kind: kind, parent: parent, created: time.Now()}
	n.nlink.Store(1)
	return n
}

func (n *node) Close() error { return nil }

type fileHandle struct {
	// The kernel may issue concurrent requests against one handle; File
	// itself is unsynchronized.
	mut  sync.Mutex
	node *node
	file *File
}

func (fh *fileHandle) Close() error {
	fh.mut.Lock()
	defer fh.mut.Unlock()
	return fh.file.Close()
}

type dirHandle struct {
	node *node
}

func (dh *dirHandle) Close() error { return nil }

// Init checks that the backend can list the root directory.
func (h *Handler) Init(ctx context.Context) error {
	if _, err := h.backend.List(ctx, remote.RootID); err != nil {
		return fmt.Errorf("listing root directory: %w", err)
	}
	level.Debug(h.log).Log("msg", "backend reachable", "root", remote.RootID)
	return nil
}

// Close releases all open handles. Unflushed content is dropped.
func (h *Handler) Close() error {
	var errs error
	for _, err := range h.cache.ReleaseAllHandles() {
		errs = multierror.Append(errs, err)
	}
	return errs
}

func (h *Handler) getNode(id fine.Node) (*node, error) {
	_, n, err := h.cache.GetNode(id)
	if err != nil {
		return nil, err
	}
	return n.(*node), nil
}

func (h *Handler) getDir(id fine.Node) (*node, error) {
	n, err := h.getNode(id)
	if err != nil {
		return nil, err
	}
	if n.kind != remote.TypeDirectory {
		return nil, fine.ErrorNotDir
	}
	return n, nil
}

func (h *Handler) getFileHandle(id fine.Handle) (*fileHandle, error) {
	_, hh, err := h.cache.GetHandle(id)
	if err != nil {
		return nil, err
	}
	fh, ok := hh.(*fileHandle)
	if !ok {
		return nil, fine.ErrorIsDir
	}
	return fh, nil
}

// addNode records a node the kernel now holds a reference to and builds its
// entry.
func (h *Handler) addNode(remoteID uint64, kind remote.EntryType, parent uint64) (fine.Entry, *node, error) {
	info, stored, err := h.cache.AddNode(remoteID, newNode(remoteID, kind, parent))
	if err != nil {
		return fine.Entry{}, nil, err
	}
	n := stored.(*node)
	return fine.Entry{
		Node:       info.ID,
		Generation: info.Generation,
		Attrib:     h.attrib(n),
	}, n, nil
}

func (h *Handler) attrib(n *node) fine.Attrib {
	size := n.size.Load()
	mode := os.FileMode(0777)
	if n.kind == remote.TypeDirectory {
		mode |= os.ModeDir
	}
	return fine.Attrib{
		Inode:      n.remoteID,
		Size:       size,
		Blocks:     (size + 511) / 512,
		LastAccess: n.created,
		LastModify: n.created,
		LastChange: n.created,
		Mode:       mode,
		HardLinks:  n.nlink.Load(),
		UID:        h.o.UID,
		GID:        h.o.GID,
		BlockSize:  512,
	}
}

// Lookup resolves a name through the backend. Any failure, including an
// unreachable backend, is reported as ErrorNotExist.
func (h *Handler) Lookup(ctx context.Context, hdr *fine.RequestHeader, req *fine.LookupRequest) (*fine.EntryResponse, error) {
	parent, err := h.getDir(hdr.Node)
	if err != nil {
		return nil, err
	}

	info, err := h.backend.Lookup(ctx, parent.remoteID, req.Name)
	if err != nil {
		if _, isStatus := remote.StatusOf(err); !isStatus {
			level.Warn(h.log).Log("msg", "lookup failed", "parent", parent.remoteID, "name", req.Name, "err", err)
		}
		return nil, fmt.Errorf("lookup %q: %w", req.Name, fine.ErrorNotExist)
	}

	entry, _, err := h.addNode(info.Ino, info.Type, parent.remoteID)
	if err != nil {
		return nil, err
	}
	return &fine.EntryResponse{Entry: entry}, nil
}

func (h *Handler) Forget(ctx context.Context, hdr *fine.RequestHeader, req *fine.ForgetRequest) {
	h.forget(hdr.Node, req.NumLookups)
}

func (h *Handler) BatchForget(ctx context.Context, hdr *fine.RequestHeader, req *fine.BatchForgetRequest) {
	for _, item := range req.Items {
		h.forget(item.Node, item.NumLookups)
	}
}

func (h *Handler) forget(id fine.Node, lookups uint64) {
	if id == fine.RootNode {
		return
	}
	if err := h.cache.ReleaseNode(id, lookups); err != nil {
		level.Debug(h.log).Log("msg", "forget for unknown node", "node", id, "err", err)
	}
}

func (h *Handler) Getattr(ctx context.Context, hdr *fine.RequestHeader, req *fine.GetattrRequest) (*fine.AttrResponse, error) {
	n, err := h.getNode(hdr.Node)
	if err != nil {
		return nil, err
	}
	return &fine.AttrResponse{Attrib: h.attrib(n)}, nil
}

// Setattr only applies size changes, and only locally: the new size reaches
// the backend with the next flush of an open handle. When the request names
// an open handle, that handle's content is truncated too. Sizes are capped at
// MaxFileSize.
func (h *Handler) Setattr(ctx context.Context, hdr *fine.RequestHeader, req *fine.SetattrRequest) (*fine.AttrResponse, error) {
	n, err := h.getNode(hdr.Node)
	if err != nil {
		return nil, err
	}

	if req.UpdateMask&fine.AttribMaskSize != 0 {
		if n.kind == remote.TypeDirectory {
			return nil, fine.ErrorIsDir
		}

		var fh *fileHandle
		if req.UpdateMask&fine.AttribMaskFileHandle != 0 {
			if fh, err = h.getFileHandle(req.Handle); err != nil {
				return nil, err
			}
		}

		size := req.Size
		if size > MaxFileSize {
			size = MaxFileSize
		}
		if fh != nil {
			fh.mut.Lock()
			fh.file.Truncate(size)
			fh.mut.Unlock()
		}
		n.size.Store(size)
	}
	return &fine.AttrResponse{Attrib: h.attrib(n)}, nil
}

func (h *Handler) create(ctx context.Context, hdr *fine.RequestHeader, name string, kind remote.EntryType) (fine.Entry, *node, error) {
	parent, err := h.getDir(hdr.Node)
	if err != nil {
		return fine.Entry{}, nil, err
	}

	ino, err := h.backend.Create(ctx, parent.remoteID, name, kind)
	if err != nil {
		return fine.Entry{}, nil, fmt.Errorf("create %s %q: %w: %w", kind, name, err, fine.ErrorIO)
	}
	return h.addNode(ino, kind, parent.remoteID)
}

func (h *Handler) Mkdir(ctx context.Context, hdr *fine.RequestHeader, req *fine.MkdirRequest) (*fine.EntryResponse, error) {
	entry, _, err := h.create(ctx, hdr, req.Name, remote.TypeDirectory)
	if err != nil {
		return nil, err
	}
	return &fine.EntryResponse{Entry: entry}, nil
}

// Create creates a file and opens it. The new handle starts empty without
// reading from the backend.
func (h *Handler) Create(ctx context.Context, hdr *fine.RequestHeader, req *fine.CreateRequest) (*fine.CreateResponse, error) {
	entry, n, err := h.create(ctx, hdr, req.Name, remote.TypeFile)
	if err != nil {
		return nil, err
	}

	fh := &fileHandle{
		node: n,
		file: &File{remoteID: n.remoteID, appendMode: req.Flags&fine.OpenAppend != 0},
	}
	info, err := h.cache.AddHandle(fh)
	if err != nil {
		return nil, err
	}
	return &fine.CreateResponse{
		Handle:      info.ID,
		OpenedFlags: fine.OpenedDirectIO,
		Entry:       entry,
	}, nil
}

func (h *Handler) Unlink(ctx context.Context, hdr *fine.RequestHeader, req *fine.UnlinkRequest) error {
	parent, err := h.getDir(hdr.Node)
	if err != nil {
		return err
	}
	if err := h.backend.Unlink(ctx, parent.remoteID, req.Name); err != nil {
		return fmt.Errorf("unlink %q: %w: %w", req.Name, err, fine.ErrorIO)
	}
	return nil
}

func (h *Handler) Rmdir(ctx context.Context, hdr *fine.RequestHeader, req *fine.RmdirRequest) error {
	parent, err := h.getDir(hdr.Node)
	if err != nil {
		return err
	}
	if err := h.backend.Rmdir(ctx, parent.remoteID, req.Name); err != nil {
		return fmt.Errorf("rmdir %q: %w: %w", req.Name, err, fine.ErrorIO)
	}
	return nil
}

// Link adds a name for an existing file. The link count reported for the
// file is a local counter; the backend's own count is never queried.
func (h *Handler) Link(ctx context.Context, hdr *fine.RequestHeader, req *fine.LinkRequest) (*fine.EntryResponse, error) {
	parent, err := h.getDir(hdr.Node)
	if err != nil {
		return nil, err
	}
	source, err := h.getNode(req.OldNode)
	if err != nil {
		return nil, err
	}

	if err := h.backend.Link(ctx, source.remoteID, parent.remoteID, req.NewName); err != nil {
		return nil, fmt.Errorf("link %q: %w: %w", req.NewName, err, fine.ErrorIO)
	}
	source.nlink.Inc()

	entry, _, err := h.addNode(source.remoteID, source.kind, parent.remoteID)
	if err != nil {
		return nil, err
	}
	return &fine.EntryResponse{Entry: entry}, nil
}

// Open loads the file content into a new handle. Open never fails because of
// the backend: an unreadable file opens empty.
func (h *Handler) Open(ctx context.Context, hdr *fine.RequestHeader, req *fine.OpenRequest) (*fine.OpenedResponse, error) {
	n, err := h.getNode(hdr.Node)
	if err != nil {
		return nil, err
	}
	if n.kind == remote.TypeDirectory {
		return nil, fine.ErrorIsDir
	}

	f := OpenFile(ctx, h.log, h.backend, n.remoteID, req.Flags&fine.OpenAppend != 0)
	n.size.Store(uint64(f.Size()))

	info, err := h.cache.AddHandle(&fileHandle{node: n, file: f})
	if err != nil {
		return nil, err
	}
	return &fine.OpenedResponse{Handle: info.ID, OpenedFlags: fine.OpenedDirectIO}, nil
}

func (h *Handler) Read(ctx context.Context, hdr *fine.RequestHeader, req *fine.ReadRequest) (*fine.ReadResponse, error) {
	fh, err := h.getFileHandle(req.Handle)
	if err != nil {
		return nil, err
	}

	fh.mut.Lock()
	defer fh.mut.Unlock()

	buf := make([]byte, req.Size)
	n := fh.file.ReadAt(buf, int64(req.Offset))
	return &fine.ReadResponse{Data: buf[:n]}, nil
}

func (h *Handler) Write(ctx context.Context, hdr *fine.RequestHeader, req *fine.WriteRequest) (*fine.WriteResponse, error) {
	fh, err := h.getFileHandle(req.Handle)
	if err != nil {
		return nil, err
	}

	fh.mut.Lock()
	defer fh.mut.Unlock()

	n, err := fh.file.WriteAt(req.Data, int64(req.Offset))
	if err != nil {
		return nil, err
	}
	fh.node.size.Store(uint64(fh.file.Size()))
	return &fine.WriteResponse{Written: uint32(n)}, nil
}

func (h *Handler) Flush(ctx context.Context, hdr *fine.RequestHeader, req *fine.FlushRequest) error {
	return h.flush(ctx, req.Handle)
}

func (h *Handler) Fsync(ctx context.Context, hdr *fine.RequestHeader, req *fine.FsyncRequest) error {
	return h.flush(ctx, req.Handle)
}

func (h *Handler) flush(ctx context.Context, id fine.Handle) error {
	fh, err := h.getFileHandle(id)
	if err != nil {
		return err
	}

	fh.mut.Lock()
	defer fh.mut.Unlock()

	if err := fh.file.Flush(ctx, h.backend); err != nil {
		return fmt.Errorf("flush inode %d: %w: %w", fh.node.remoteID, err, fine.ErrorIO)
	}
	return nil
}

// Release drops the handle and its content without flushing. The kernel
// sends a flush for every close(2) before the final release, so content is
// only lost if that flush failed.
func (h *Handler) Release(ctx context.Context, hdr *fine.RequestHeader, req *fine.ReleaseRequest) error {
	return h.cache.ReleaseHandle(req.Handle)
}

func (h *Handler) Opendir(ctx context.Context, hdr *fine.RequestHeader, req *fine.OpenRequest) (*fine.OpenedResponse, error) {
	n, err := h.getDir(hdr.Node)
	if err != nil {
		return nil, err
	}
	info, err := h.cache.AddHandle(&dirHandle{node: n})
	if err != nil {
		return nil, err
	}
	return &fine.OpenedResponse{Handle: info.ID}, nil
}

// Readdir lists the directory from the cursor in req.Offset. Every call
// lists the directory again.
func (h *Handler) Readdir(ctx context.Context, hdr *fine.RequestHeader, req *fine.ReadRequest) (*fine.ReaddirResponse, error) {
	_, hh, err := h.cache.GetHandle(req.Handle)
	if err != nil {
		return nil, err
	}
	dh, ok := hh.(*dirHandle)
	if !ok {
		return nil, fine.ErrorNotDir
	}

	entries, records, err := h.enum.Enumerate(ctx, dh.node.remoteID, dh.node.parent, req.Offset)
	if err != nil {
		return nil, fmt.Errorf("list inode %d: %w: %w", dh.node.remoteID, err, fine.ErrorIO)
	}
	level.Debug(h.log).Log("msg", "listed directory", "inode", dh.node.remoteID, "cursor", req.Offset, "records", records)
	return &fine.ReaddirResponse{Entries: entries}, nil
}

func (h *Handler) Releasedir(ctx context.Context, hdr *fine.RequestHeader, req *fine.ReleaseRequest) error {
	return h.cache.ReleaseHandle(req.Handle)
}
