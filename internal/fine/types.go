package fine

import (
	"os"
	"time"
)

// RootNode represents the root of the mount. It always has node ID 1.
var RootNode Node = Node(1)

// ID types. FUSE has a collection of handles that are used during the lifetime
// of a connection.
type (
	// Node is an ID representing a file. 0 is never a valid reference. 1 will
	// always refer to the root filesystem of the driver, and is always assumed
	// to exist by both sides of the peer connection.
	Node uint64

	// Handle is a specific handle for a Node. Handles must have unique IDs for
	// the lifetime of the handle. Handle IDs may be reassigned to other Nodes
	// once the handle is released.
	Handle uint64
)

// Common data types. Common data types represent entities in a filesystem and
// are communicated over the protocol as part of messages.
type (
	// RequestHeader is present in every request.
	RequestHeader struct {
		Op        Op     // Op representing the request.
		RequestID uint64 // Response must match this value.
		Node      Node   // Node the request is for.
		UID       uint32 // UID of requesting user.
		GID       uint32 // GID of requesting user.
		PID       uint32 // PID of requesting user.
	}

	// ResponseHeader is present in every response.
	ResponseHeader struct {
		Op        Op     // Op representing the response. Must match Op from request.
		RequestID uint64 // Request for which this response applies to.
		Error     Error
	}

	// Entry is a description of a file.
	Entry struct {
		Node       Node          // Node ID.
		Generation uint64        // Generation of Node. Increase whenever Node value wraps around to 0.
		EntryTTL   time.Duration // Cache validility of this Node.
		AttribTTL  time.Duration // Cache validility of this Node's attributes.
		Attrib     Attrib        // Attributes for the Node.
	}

	// Attrib are the set of attributes for a Node.
	Attrib struct {
		Inode      uint64      // Real inode number.
		Size       uint64      // Size in bytes.
		Blocks     uint64      // Size in blocks (512-byte units).
		LastAccess time.Time   // Last time file was accessed.
		LastModify time.Time   // Last time contents were modified
		LastChange time.Time   // Last time inode was updated.
		Mode       os.FileMode // File permissions.
		HardLinks  uint32      // Number of hard links to the file (usually 1)
		UID        uint32      // Owner UID
		GID        uint32      // Owner GID
		BlockSize  uint32      // Block size for filesystem i/O
	}

	// DirEntry is a directory entry returned during ReadDir.
	DirEntry struct {
		Inode uint64
		Type  EntryType
		Name  string

		// Offset is the cursor a following ReadDir should pass to resume
		// after this entry.
		Offset uint64
	}

	BatchForgetItem struct {
		Node       Node
		NumLookups uint64
	}
)

// EntryType specifies the type of a file in a directory.
type EntryType uint32

// Entry types. Values match the DT_* constants from dirent.h.
const (
	EntryUnknown   EntryType = 0x0 // Entry type isn't known
	EntryDirectory EntryType = 0x4 // Entry is another directory
	EntryRegular   EntryType = 0x8 // Entry is a regular file
)

// Flag types. Every flag type here is a bitmask of options.
type (
	// AttribMask is used when setting file attributes to mark which fields from
	// the request can be used.
	AttribMask uint32
	// Flags used for interacting with a node.
	FileFlags uint32
	// Flags returned for an opened file.
	OpenedFlags uint32
)

const (
	AttribMaskMode       AttribMask = 1 << 0 // The Mode field can be used
	AttribMaskUID        AttribMask = 1 << 1 // The UID field can be used
	AttribMaskGID        AttribMask = 1 << 2 // The GID field can be used
	AttribMaskSize       AttribMask = 1 << 3 // The Size field can be used
	AttribMaskLastAccess AttribMask = 1 << 4 // The LastAccess field can be used
	AttribMaskLastModify AttribMask = 1 << 5 // The LastModify field can be used
	AttribMaskFileHandle AttribMask = 1 << 6 // The Handle field can be used

	OpenReadOnly  FileFlags = 0x0 // Open the file for reading.
	OpenWriteOnly FileFlags = 0x1 // Open the file for writing.
	OpenReadWrite FileFlags = 0x2 // Open the file for reading and writing.
	OpenAccesMode FileFlags = 0x3 // Open the file to get access mode bits.

	OpenCreate    FileFlags = 0x40    // Create the file if it doesn't exist.
	OpenExclusive FileFlags = 0x80    // Open the file with an exclusive lock.
	OpenTruncate  FileFlags = 0x200   // Truncate file contents before opening for writing
	OpenAppend    FileFlags = 0x400   // Open with the file seeked to the end.
	OpenDirectory FileFlags = 0x10000 // Open the file as a directory.

	OpenedDirectIO    OpenedFlags = 1 << 0 // Page cache should be bypassed when writing
	OpenedKeepCache   OpenedFlags = 1 << 1 // Existing page cache should be kept intact
	OpenedNonSeekable OpenedFlags = 1 << 2 // File does not support seeking
)
