// Package cache implements the node and handle tables used by a Handler.
//
// Nodes are keyed by the identifier a remote backend assigned to them, so a
// file reached through two names (hard links) resolves to the same fine.Node.
package cache

import (
	"fmt"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/kmaximk/itmo-os-networkfs/internal/fine"
	"go.uber.org/atomic"
)

// Cache implements a cache of nodes and handles that a Handler can use.
type Cache struct {
	log log.Logger

	mut        sync.RWMutex
	nodes      map[fine.Node]*cachedNode
	remoteKeys map[uint64]*cachedNode
	nextID     uint64
	generation uint64

	handleMut    sync.RWMutex
	handles      map[fine.Handle]*cachedHandle
	availHandles []fine.Handle
	nextHandle   fine.Handle
}

type cachedNode struct {
	Node Node
	Info NodeInfo

	refs atomic.Uint64
}

type cachedHandle struct {
	Handle Handle
	Info   HandleInfo
}

type Node interface {
	// Close is called when the Node is fully removed from the cache.
	Close() error
}

type Handle interface {
	// Close is called when the Handle is fully removed from the cache.
	Close() error
}

type NodeInfo struct {
	ID         fine.Node // ID of the Node
	Generation uint64    // Generation of the ID
	RemoteID   uint64    // Identifier assigned by the backend
}

type HandleInfo struct {
	ID fine.Handle
}

// New creates a new cache, pre-populated with a root node. The root always
// receives fine.RootNode.
func New(l log.Logger, rootRemoteID uint64, rootNode Node) *Cache {
	if l == nil {
		l = log.NewNopLogger()
	}
	c := &Cache{
		log: l,

		nodes:      make(map[fine.Node]*cachedNode),
		remoteKeys: make(map[uint64]*cachedNode),
		handles:    make(map[fine.Handle]*cachedHandle),
	}

	info, _, err := c.AddNode(rootRemoteID, rootNode)
	if err != nil {
		panic(err)
	}
	if info.ID != fine.RootNode {
		panic(fmt.Sprintf("root node registered as %d", info.ID))
	}
	return c
}

// AddNode stores a node for remoteID. If a node for remoteID already exists,
// the node argument is ignored, the reference count of the existing node is
// increased and the existing node is returned.
func (c *Cache) AddNode(remoteID uint64, node Node) (info NodeInfo, stored Node, err error) {
	c.mut.Lock()
	defer c.mut.Unlock()

	if n, found := c.remoteKeys[remoteID]; found {
		n.refs.Inc()
		return n.Info, n.Node, nil
	}

	c.nextID++
	id := c.nextID
	if id == 0 {
		// Our IDs wrapped around. Increase the generation.
		id = 1
		c.generation++

		if c.generation == 0 {
			// Out generations wrapped around. This means we've exhausted the entire
			// (2^64-1)*(2^64-1) space. Reset both so the error repeats.
			c.generation--
			c.nextID--
			return info, nil, fmt.Errorf("exhausted node ID space: %w", fine.ErrorNoMemory)
		}

		c.nextID = 1 // nextID is currently 0 (an invalid ID), move it forward
	}

	n := &cachedNode{
		Node: node,
		Info: NodeInfo{
			ID:         fine.Node(id),
			Generation: c.generation,
			RemoteID:   remoteID,
		},
	}
	n.refs.Store(1)

	c.nodes[n.Info.ID] = n
	c.remoteKeys[remoteID] = n
	return n.Info, n.Node, nil
}

// ReleaseNode releases a node. refs are subtracted from the total reference
// count, and the node will be fully removed once refs decreases to 0.
func (c *Cache) ReleaseNode(id fine.Node, refs uint64) error {
	var n *cachedNode

	// We close the node in a defer so the lock isn't held for longer than it
	// needs to be.
	defer func() {
		if n == nil || n.Node == nil {
			return
		}
		err := n.Node.Close()
		if err != nil {
			level.Error(c.log).Log("msg", "error when closing stale cache node", "id", id, "err", err)
		}
	}()

	c.mut.Lock()
	defer c.mut.Unlock()

	found, ok := c.nodes[id]
	if !ok {
		return fine.ErrorStale
	}
	if cur := found.refs.Load(); refs < cur {
		found.refs.Sub(refs)
		return nil
	}

	n = found
	delete(c.nodes, id)
	if c.remoteKeys[n.Info.RemoteID] == n {
		delete(c.remoteKeys, n.Info.RemoteID)
	}
	return nil
}

// GetNode returns the node for ID.
func (c *Cache) GetNode(id fine.Node) (NodeInfo, Node, error) {
	c.mut.RLock()
	defer c.mut.RUnlock()

	n, ok := c.nodes[id]
	if !ok {
		return NodeInfo{}, nil, fine.ErrorStale
	}
	return n.Info, n.Node, nil
}

// NumNodes returns the number of cached nodes, including the root.
func (c *Cache) NumNodes() int {
	c.mut.RLock()
	defer c.mut.RUnlock()
	return len(c.nodes)
}

// GetHandle returns the Handle for a Handle ID.
func (c *Cache) GetHandle(id fine.Handle) (HandleInfo, Handle, error) {
	c.handleMut.RLock()
	defer c.handleMut.RUnlock()

	h, ok := c.handles[id]
	if !ok {
		return HandleInfo{}, nil, fine.ErrorBadHandle
	}
	return h.Info, h.Handle, nil
}

// NumHandles returns the number of open handles.
func (c *Cache) NumHandles() int {
	c.handleMut.RLock()
	defer c.handleMut.RUnlock()
	return len(c.handles)
}

// AddHandle stores a new handle.
func (c *Cache) AddHandle(handle Handle) (HandleInfo, error) {
	c.handleMut.Lock()
	defer c.handleMut.Unlock()

	h := &cachedHandle{Handle: handle}

	if numAvail := len(c.availHandles); numAvail > 0 {
		h.Info.ID = c.availHandles[numAvail-1]
		c.availHandles = c.availHandles[:numAvail-1]
	} else {
		c.nextHandle++
		h.Info.ID = c.nextHandle

		if h.Info.ID == 0 {
			// We've temporarily exhausted the handle space until some existing
			// handles close
			c.nextHandle--
			return HandleInfo{}, fine.ErrorNoMemory
		}
	}

	c.handles[h.Info.ID] = h
	return h.Info, nil
}

// ReleaseHandle releases an existing handle.
func (c *Cache) ReleaseHandle(id fine.Handle) error {
	var h *cachedHandle

	// We close the handle in a defer so the lock isn't held for longer than it
	// needs to be.
	defer func() {
		if h == nil || h.Handle == nil {
			return
		}
		err := h.Handle.Close()
		if err != nil {
			level.Error(c.log).Log("msg", "error when closing stale cache handle", "id", id, "err", err)
		}
	}()

	c.handleMut.Lock()
	defer c.handleMut.Unlock()

	found, ok := c.handles[id]
	if !ok {
		return fine.ErrorBadHandle
	}

	h = found
	delete(c.handles, id)
	c.availHandles = append(c.availHandles, id)
	return nil
}

// ReleaseAllHandles closes every open handle. Errors from individual handles
// are returned together.
func (c *Cache) ReleaseAllHandles() []error {
	c.handleMut.Lock()
	handles := c.handles
	c.handles = make(map[fine.Handle]*cachedHandle)
	c.availHandles = nil
	c.nextHandle = 0
	c.handleMut.Unlock()

	var errs []error
	for id, h := range handles {
		if h.Handle == nil {
			continue
		}
		if err := h.Handle.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing handle %d: %w", id, err))
		}
	}
	return errs
}
