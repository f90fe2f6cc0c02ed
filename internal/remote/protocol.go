package remote

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Protocol limits.
const (
	// RootID is the remote identifier of every filesystem's root directory.
	RootID uint64 = 1000

	// MaxContent is the largest file the backend stores, in bytes.
	MaxContent = 512

	// MaxEntries is the number of entries a single list response can carry.
	MaxEntries = 16

	// MaxNameLen is the longest name that fits a list entry, leaving room
	// for the terminating NUL.
	MaxNameLen = 255
)

// Response payload sizes. Layouts follow the backend's little-endian C
// structs, including padding.
const (
	EntryInfoSize = 16                           // u8 type, 7 pad, u64 ino
	InodeSize     = 8                            // u64 ino
	ListEntrySize = 16 + MaxNameLen + 1          // u8 type, 7 pad, u64 ino, name[256]
	ListingSize   = 8 + MaxEntries*ListEntrySize // u64 count, entries
	ContentSize   = 8 + MaxContent               // u64 length, content
)

// EntryType is the kind of a remote node. Values match DT_DIR and DT_REG.
type EntryType uint8

const (
	TypeDirectory EntryType = 4
	TypeFile      EntryType = 8
)

// Param returns the value the create call expects for t.
func (t EntryType) Param() string {
	if t == TypeDirectory {
		return "directory"
	}
	return "file"
}

func (t EntryType) String() string {
	switch t {
	case TypeDirectory:
		return "directory"
	case TypeFile:
		return "file"
	default:
		return fmt.Sprintf("EntryType(%d)", uint8(t))
	}
}

func (t EntryType) valid() bool {
	return t == TypeDirectory || t == TypeFile
}

// EntryInfo is the response to a lookup call.
type EntryInfo struct {
	Type EntryType
	Ino  uint64
}

// DirEntry is one entry of a list response.
type DirEntry struct {
	Type EntryType
	Ino  uint64
	Name string
}

// Listing is a decoded list response.
type Listing struct {
	Entries []DirEntry

	// Declared is the entry count reported by the backend. It exceeds
	// len(Entries) when the directory holds more than MaxEntries entries.
	Declared uint64
}

// Truncated reports whether the backend declared more entries than fit in a
// single response.
func (l Listing) Truncated() bool {
	return l.Declared > uint64(len(l.Entries))
}

// DecodeEntryInfo decodes a lookup response.
func DecodeEntryInfo(b []byte) (EntryInfo, error) {
	if len(b) < EntryInfoSize {
		return EntryInfo{}, fmt.Errorf("entry info: short payload of %d bytes", len(b))
	}
	info := EntryInfo{
		Type: EntryType(b[0]),
		Ino:  binary.LittleEndian.Uint64(b[8:16]),
	}
	if !info.Type.valid() {
		return EntryInfo{}, fmt.Errorf("entry info: unknown entry type %d", b[0])
	}
	return info, nil
}

// EncodeEntryInfo encodes a lookup response.
func EncodeEntryInfo(info EntryInfo) []byte {
	b := make([]byte, EntryInfoSize)
	b[0] = byte(info.Type)
	binary.LittleEndian.PutUint64(b[8:16], info.Ino)
	return b
}

// DecodeListing decodes a list response. Only as many entries as the
// declared count are read; the remaining slots are ignored even if they hold
// data.
func DecodeListing(b []byte) (Listing, error) {
	if len(b) < ListingSize {
		return Listing{}, fmt.Errorf("listing: short payload of %d bytes", len(b))
	}

	declared := binary.LittleEndian.Uint64(b[:8])
	n := declared
	if n > MaxEntries {
		n = MaxEntries
	}

	l := Listing{Declared: declared, Entries: make([]DirEntry, 0, n)}
	for i := uint64(0); i < n; i++ {
		raw := b[8+i*ListEntrySize : 8+(i+1)*ListEntrySize]

		name := raw[16:]
		if end := bytes.IndexByte(name, 0); end >= 0 {
			name = name[:end]
		} else {
			return Listing{}, fmt.Errorf("listing: entry %d name is not terminated", i)
		}
		if len(name) == 0 {
			return Listing{}, fmt.Errorf("listing: entry %d has an empty name", i)
		}

		ent := DirEntry{
			Type: EntryType(raw[0]),
			Ino:  binary.LittleEndian.Uint64(raw[8:16]),
			Name: string(name),
		}
		if !ent.Type.valid() {
			return Listing{}, fmt.Errorf("listing: entry %d (%q) has unknown type %d", i, ent.Name, raw[0])
		}
		l.Entries = append(l.Entries, ent)
	}
	return l, nil
}

// EncodeListing encodes a list response. At most MaxEntries entries are
// written, but the declared count is always len(entries).
func EncodeListing(entries []DirEntry) ([]byte, error) {
	b := make([]byte, ListingSize)
	binary.LittleEndian.PutUint64(b[:8], uint64(len(entries)))

	for i, ent := range entries {
		if i == MaxEntries {
			break
		}
		if len(ent.Name) > MaxNameLen {
			return nil, fmt.Errorf("listing: name %q exceeds %d bytes", ent.Name, MaxNameLen)
		}
		raw := b[8+i*ListEntrySize : 8+(i+1)*ListEntrySize]
		raw[0] = byte(ent.Type)
		binary.LittleEndian.PutUint64(raw[8:16], ent.Ino)
		copy(raw[16:], ent.Name)
	}
	return b, nil
}

// DecodeContent decodes a read response and returns the file content.
func DecodeContent(b []byte) ([]byte, error) {
	if len(b) < ContentSize {
		return nil, fmt.Errorf("content: short payload of %d bytes", len(b))
	}
	length := binary.LittleEndian.Uint64(b[:8])
	if length > MaxContent {
		return nil, fmt.Errorf("content: declared length %d exceeds %d", length, MaxContent)
	}
	out := make([]byte, length)
	copy(out, b[8:8+length])
	return out, nil
}

// EncodeContent encodes a read response.
func EncodeContent(content []byte) ([]byte, error) {
	if len(content) > MaxContent {
		return nil, fmt.Errorf("content: %d bytes exceeds %d", len(content), MaxContent)
	}
	b := make([]byte, ContentSize)
	binary.LittleEndian.PutUint64(b[:8], uint64(len(content)))
	copy(b[8:], content)
	return b, nil
}

// DecodeInode decodes a create response.
func DecodeInode(b []byte) (uint64, error) {
	if len(b) < InodeSize {
		return 0, fmt.Errorf("inode: short payload of %d bytes", len(b))
	}
	return binary.LittleEndian.Uint64(b[:InodeSize]), nil
}

// EncodeInode encodes a create response.
func EncodeInode(ino uint64) []byte {
	b := make([]byte, InodeSize)
	binary.LittleEndian.PutUint64(b, ino)
	return b
}
