package fine

import (
	"os"
	"time"
)

// Protocol types. Each type here is used as part of the request or response
// for a specific operation.
type (
	LookupRequest struct {
		Name string
	}
	EntryResponse struct {
		Entry Entry
	}

	ForgetRequest struct {
		NumLookups uint64
	}

	GetattrRequest struct {
		Handle Handle
	}
	SetattrRequest struct {
		UpdateMask AttribMask  // Mask indicating which fields to use for the update.
		Handle     Handle      // Handle to set attributes for.
		Size       uint64      // File size.
		LastAccess time.Time   // Last time file was accessed.
		LastModify time.Time   // Last time file was modified.
		Mode       os.FileMode // File permissions.
		UID        uint32      // Owner UID
		GID        uint32      // Owner GID
	}
	AttrResponse struct {
		TTL    time.Duration // Cache validility of the attributes.
		Attrib Attrib        // Attribute data
	}

	MkdirRequest struct {
		Mode  os.FileMode
		Umask os.FileMode
		Name  string
	}

	UnlinkRequest struct {
		Name string
	}

	RmdirRequest struct {
		Name string
	}

	LinkRequest struct {
		OldNode Node
		NewName string
	}

	OpenRequest struct {
		Flags FileFlags
	}
	OpenedResponse struct {
		Handle      Handle
		OpenedFlags OpenedFlags
	}

	// ReadRequest is used for both file reads and directory listings. For
	// directories, Offset is the cursor returned with the last DirEntry.
	ReadRequest struct {
		Handle    Handle
		Offset    uint64
		Size      uint32
		FileFlags FileFlags
	}
	ReadResponse struct {
		Data []byte
	}

	WriteRequest struct {
		Handle    Handle    // Handle to write to
		Offset    uint64    // Offset in the handle to write
		Data      []byte    // Data to write
		FileFlags FileFlags // Flags the handle was opened with
	}
	WriteResponse struct {
		Written uint32 // Written bytes
	}

	ReleaseRequest struct {
		Handle    Handle
		FileFlags FileFlags
	}

	FsyncRequest struct {
		Handle Handle
	}

	FlushRequest struct {
		Handle Handle
	}

	ReaddirResponse struct {
		Entries []DirEntry
	}

	CreateRequest struct {
		Flags FileFlags   // Flags for creation
		Mode  os.FileMode // File mode
		Umask os.FileMode // Umask for file
		Name  string      // Name of file to create
	}
	CreateResponse struct {
		Handle      Handle      // Handle to newly created node
		OpenedFlags OpenedFlags // Flags used for the create
		Entry       Entry       // Created node entry
	}

	// InterruptRequest interrupts an ongoing request. The interupted request
	// should return with ErrorInterrupted. Handler implementations may ignore
	// the context cancelation that comes from an interrupt.
	InterruptRequest struct {
		RequestID uint64 // Request to interrupt
	}

	BatchForgetRequest struct {
		Items []BatchForgetItem
	}
)

//
// Request / Response type implementations
//

func (*LookupRequest) fineRequest()      {}
func (*EntryResponse) fineResponse()     {}
func (*ForgetRequest) fineRequest()      {}
func (*GetattrRequest) fineRequest()     {}
func (*SetattrRequest) fineRequest()     {}
func (*AttrResponse) fineResponse()      {}
func (*MkdirRequest) fineRequest()       {}
func (*UnlinkRequest) fineRequest()      {}
func (*RmdirRequest) fineRequest()       {}
func (*LinkRequest) fineRequest()        {}
func (*OpenRequest) fineRequest()        {}
func (*OpenedResponse) fineResponse()    {}
func (*ReadRequest) fineRequest()        {}
func (*ReadResponse) fineResponse()      {}
func (*WriteRequest) fineRequest()       {}
func (*WriteResponse) fineResponse()     {}
func (*ReleaseRequest) fineRequest()     {}
func (*FsyncRequest) fineRequest()       {}
func (*FlushRequest) fineRequest()       {}
func (*ReaddirResponse) fineResponse()   {}
func (*CreateRequest) fineRequest()      {}
func (*CreateResponse) fineResponse()    {}
func (*InterruptRequest) fineRequest()   {}
func (*BatchForgetRequest) fineRequest() {}
