package backend

import (
	"fmt"

	"github.com/kmaximk/itmo-os-networkfs/internal/remote"
)

// filesystem is the tree behind a single token.
type filesystem struct {
	NextID uint64            `msgpack:"next_id"`
	Nodes  map[uint64]*inode `msgpack:"nodes"`
}

type inode struct {
	Type    remote.EntryType `msgpack:"type"`
	Links   int              `msgpack:"links"`
	Content []byte           `msgpack:"content,omitempty"`
	Entries []dirent         `msgpack:"entries,omitempty"`
}

type dirent struct {
	Name string `msgpack:"name"`
	Ino  uint64 `msgpack:"ino"`
}

func newFilesystem() *filesystem {
	return &filesystem{
		NextID: remote.RootID + 1,
		Nodes: map[uint64]*inode{
			remote.RootID: {Type: remote.TypeDirectory, Links: 1},
		},
	}
}

func (n *inode) find(name string) (int, bool) {
	for i, ent := range n.Entries {
		if ent.Name == name {
			return i, true
		}
	}
	return -1, false
}

// call runs op against fs.
func (fs *filesystem) call(o Options, op string, p queryParams) (remote.Status, []byte, error) {
	switch op {
	case "lookup":
		return fs.lookup(p)
	case "list":
		return fs.list(p)
	case "create":
		return fs.create(o, p)
	case "unlink":
		return fs.remove(p, remote.TypeFile)
	case "rmdir":
		return fs.remove(p, remote.TypeDirectory)
	case "link":
		return fs.link(o, p)
	case "read":
		return fs.read(p)
	case "write":
		return fs.write(p)
	default:
		return 0, nil, fmt.Errorf("unknown op %q: %w", op, errBadRequest)
	}
}

// dir resolves the directory named by the parameter key.
func (fs *filesystem) dir(p queryParams, key string) (*inode, remote.Status, error) {
	id, err := p.id(key)
	if err != nil {
		return nil, 0, err
	}
	n, ok := fs.Nodes[id]
	if !ok {
		return nil, remote.StatusNoDir, nil
	}
	if n.Type != remote.TypeDirectory {
		return nil, remote.StatusNotDir, nil
	}
	return n, remote.StatusOK, nil
}

func (fs *filesystem) lookup(p queryParams) (remote.Status, []byte, error) {
	parent, status, err := fs.dir(p, "parent")
	if err != nil || status != remote.StatusOK {
		return status, nil, err
	}
	name, err := p.str("name")
	if err != nil {
		return 0, nil, err
	}

	i, ok := parent.find(name)
	if !ok {
		return remote.StatusNotFound, nil, nil
	}
	ino := parent.Entries[i].Ino
	return remote.StatusOK, remote.EncodeEntryInfo(remote.EntryInfo{Type: fs.Nodes[ino].Type, Ino: ino}), nil
}

func (fs *filesystem) list(p queryParams) (remote.Status, []byte, error) {
	dir, status, err := fs.dir(p, "inode")
	if err != nil || status != remote.StatusOK {
		return status, nil, err
	}

	entries := make([]remote.DirEntry, 0, len(dir.Entries))
	for _, ent := range dir.Entries {
		entries = append(entries, remote.DirEntry{Type: fs.Nodes[ent.Ino].Type, Ino: ent.Ino, Name: ent.Name})
	}
	payload, err := remote.EncodeListing(entries)
	return remote.StatusOK, payload, err
}

// addEntryStatus reports whether name can be added to parent.
func addEntryStatus(o Options, parent *inode, name string) remote.Status {
	switch {
	case len(name) > remote.MaxNameLen:
		return remote.StatusNameTooLong
	case len(name) == 0:
		return remote.StatusNotFound
	}
	if _, exists := parent.find(name); exists {
		return remote.StatusExists
	}
	if len(parent.Entries) >= o.MaxDirEntries {
		return remote.StatusDirFull
	}
	return remote.StatusOK
}

func (fs *filesystem) create(o Options, p queryParams) (remote.Status, []byte, error) {
	parent, status, err := fs.dir(p, "parent")
	if err != nil || status != remote.StatusOK {
		return status, nil, err
	}
	name, err := p.str("name")
	if err != nil {
		return 0, nil, err
	}
	typ, err := p.str("type")
	if err != nil {
		return 0, nil, err
	}

	var kind remote.EntryType
	switch typ {
	case "file":
		kind = remote.TypeFile
	case "directory":
		kind = remote.TypeDirectory
	default:
		return 0, nil, fmt.Errorf("unknown type %q: %w", typ, errBadRequest)
	}

	if status := addEntryStatus(o, parent, name); status != remote.StatusOK {
		return status, nil, nil
	}

	ino := fs.NextID
	fs.NextID++
	fs.Nodes[ino] = &inode{Type: kind, Links: 1}
	parent.Entries = append(parent.Entries, dirent{Name: name, Ino: ino})
	return remote.StatusOK, remote.EncodeInode(ino), nil
}

func (fs *filesystem) remove(p queryParams, kind remote.EntryType) (remote.Status, []byte, error) {
	parent, status, err := fs.dir(p, "parent")
	if err != nil || status != remote.StatusOK {
		return status, nil, err
	}
	name, err := p.str("name")
	if err != nil {
		return 0, nil, err
	}

	i, ok := parent.find(name)
	if !ok {
		return remote.StatusNotFound, nil, nil
	}
	ino := parent.Entries[i].Ino
	target := fs.Nodes[ino]

	switch {
	case kind == remote.TypeFile && target.Type != remote.TypeFile:
		return remote.StatusNotFile, nil, nil
	case kind == remote.TypeDirectory && target.Type != remote.TypeDirectory:
		return remote.StatusNotDir, nil, nil
	case kind == remote.TypeDirectory && len(target.Entries) > 0:
		return remote.StatusNotEmpty, nil, nil
	}

	parent.Entries = append(parent.Entries[:i], parent.Entries[i+1:]...)
	target.Links--
	if target.Links <= 0 {
		delete(fs.Nodes, ino)
	}
	return remote.StatusOK, nil, nil
}

func (fs *filesystem) link(o Options, p queryParams) (remote.Status, []byte, error) {
	sourceID, err := p.id("source")
	if err != nil {
		return 0, nil, err
	}
	parent, status, err := fs.dir(p, "parent")
	if err != nil || status != remote.StatusOK {
		return status, nil, err
	}
	name, err := p.str("name")
	if err != nil {
		return 0, nil, err
	}

	source, ok := fs.Nodes[sourceID]
	if !ok {
		return remote.StatusNotFound, nil, nil
	}
	if source.Type != remote.TypeFile {
		return remote.StatusNotFile, nil, nil
	}
	if status := addEntryStatus(o, parent, name); status != remote.StatusOK {
		return status, nil, nil
	}

	source.Links++
	parent.Entries = append(parent.Entries, dirent{Name: name, Ino: sourceID})
	return remote.StatusOK, nil, nil
}

// file resolves the file named by the inode parameter.
func (fs *filesystem) file(p queryParams) (*inode, remote.Status, error) {
	id, err := p.id("inode")
	if err != nil {
		return nil, 0, err
	}
	n, ok := fs.Nodes[id]
	if !ok {
		return nil, remote.StatusNotFound, nil
	}
	if n.Type != remote.TypeFile {
		return nil, remote.StatusNotFile, nil
	}
	return n, remote.StatusOK, nil
}

func (fs *filesystem) read(p queryParams) (remote.Status, []byte, error) {
	n, status, err := fs.file(p)
	if err != nil || status != remote.StatusOK {
		return status, nil, err
	}
	payload, err := remote.EncodeContent(n.Content)
	return remote.StatusOK, payload, err
}

func (fs *filesystem) write(p queryParams) (remote.Status, []byte, error) {
	n, status, err := fs.file(p)
	if err != nil || status != remote.StatusOK {
		return status, nil, err
	}
	content, err := p.str("content")
	if err != nil {
		return 0, nil, err
	}
	if len(content) > remote.MaxContent {
		return remote.StatusFileTooBig, nil, nil
	}
	n.Content = []byte(content)
	return remote.StatusOK, nil, nil
}
