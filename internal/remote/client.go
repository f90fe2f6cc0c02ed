package remote

import (
	"context"
	"strconv"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
)

// Caller performs a single backend call. *Gateway implements Caller.
type Caller interface {
	Call(ctx context.Context, op string, resp []byte, params ...Param) error
}

// Client exposes the backend operations with typed arguments and results.
// Names and content are escaped by the Client.
type Client struct {
	log     log.Logger
	c       Caller
	metrics *clientMetrics
}

// NewClient wraps c. Metrics are registered against reg if it is non-nil.
func NewClient(l log.Logger, reg prometheus.Registerer, c Caller) *Client {
	if l == nil {
		l = log.NewNopLogger()
	}
	return &Client{log: l, c: c, metrics: newClientMetrics(reg)}
}

// Lookup finds name in the directory parent.
func (c *Client) Lookup(ctx context.Context, parent uint64, name string) (EntryInfo, error) {
	buf := make([]byte, EntryInfoSize)
	err := c.c.Call(ctx, "lookup", buf,
		Param{"parent", formatID(parent)},
		Param{"name", EscapeString(name)},
	)
	if err != nil {
		return EntryInfo{}, err
	}
	return DecodeEntryInfo(buf)
}

// List returns the entries of the directory inode. Directories holding more
// than MaxEntries entries are reported with Listing.Truncated set.
func (c *Client) List(ctx context.Context, inode uint64) (Listing, error) {
	buf := make([]byte, ListingSize)
	if err := c.c.Call(ctx, "list", buf, Param{"inode", formatID(inode)}); err != nil {
		return Listing{}, err
	}
	l, err := DecodeListing(buf)
	if err != nil {
		return Listing{}, err
	}
	if l.Truncated() {
		c.metrics.listOverflows.Inc()
		level.Warn(c.log).Log(
			"msg", "directory has more entries than a single list response can carry; listing is incomplete",
			"inode", inode, "declared", l.Declared, "returned", len(l.Entries),
		)
	}
	return l, nil
}

// Create creates a file or directory called name in parent and returns the
// identifier the backend assigned to it.
func (c *Client) Create(ctx context.Context, parent uint64, name string, typ EntryType) (uint64, error) {
	buf := make([]byte, InodeSize)
	err := c.c.Call(ctx, "create", buf,
		Param{"parent", formatID(parent)},
		Param{"name", EscapeString(name)},
		Param{"type", typ.Param()},
	)
	if err != nil {
		return 0, err
	}
	return DecodeInode(buf)
}

// Unlink removes the file name from parent.
func (c *Client) Unlink(ctx context.Context, parent uint64, name string) error {
	return c.c.Call(ctx, "unlink", nil,
		Param{"parent", formatID(parent)},
		Param{"name", EscapeString(name)},
	)
}

// Rmdir removes the empty directory name from parent.
func (c *Client) Rmdir(ctx context.Context, parent uint64, name string) error {
	return c.c.Call(ctx, "rmdir", nil,
		Param{"parent", formatID(parent)},
		Param{"name", EscapeString(name)},
	)
}

// Link makes the file source reachable as name in parent.
func (c *Client) Link(ctx context.Context, source, parent uint64, name string) error {
	return c.c.Call(ctx, "link", nil,
		Param{"source", formatID(source)},
		Param{"parent", formatID(parent)},
		Param{"name", EscapeString(name)},
	)
}

// Read returns the content of the file inode.
func (c *Client) Read(ctx context.Context, inode uint64) ([]byte, error) {
	buf := make([]byte, ContentSize)
	if err := c.c.Call(ctx, "read", buf, Param{"inode", formatID(inode)}); err != nil {
		return nil, err
	}
	return DecodeContent(buf)
}

// Write replaces the content of the file inode.
func (c *Client) Write(ctx context.Context, inode uint64, content []byte) error {
	return c.c.Call(ctx, "write", nil,
		Param{"inode", formatID(inode)},
		Param{"content", Escape(content)},
	)
}

func formatID(id uint64) string {
	return strconv.FormatUint(id, 10)
}
