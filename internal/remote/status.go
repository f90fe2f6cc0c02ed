package remote

import (
	"errors"
	"fmt"
)

// Status is the code the backend prefixes every response with.
type Status int64

// Backend statuses.
const (
	StatusOK          Status = 0
	StatusNotFound    Status = 1 // ENOENT: no entry with the given name
	StatusNotFile     Status = 2 // ENOTFILE: entry is not a file
	StatusNotDir      Status = 3 // ENOTDIR: entry is not a directory
	StatusNoDir       Status = 4 // ENOENT_DIR: no directory with the given inode
	StatusExists      Status = 5 // EEXIST: entry with the given name already exists
	StatusFileTooBig  Status = 6 // EFBIG: file content exceeds the size limit
	StatusDirFull     Status = 7 // ENOSPC_DIR: directory entry limit reached
	StatusNotEmpty    Status = 8 // ENOTEMPTY: directory is not empty
	StatusNameTooLong Status = 9 // ENAMETOOLONG: name exceeds the length limit
)

var statusNames = map[Status]string{
	StatusOK:          "OK",
	StatusNotFound:    "ENOENT",
	StatusNotFile:     "ENOTFILE",
	StatusNotDir:      "ENOTDIR",
	StatusNoDir:       "ENOENT_DIR",
	StatusExists:      "EEXIST",
	StatusFileTooBig:  "EFBIG",
	StatusDirFull:     "ENOSPC_DIR",
	StatusNotEmpty:    "ENOTEMPTY",
	StatusNameTooLong: "ENAMETOOLONG",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status %d", int64(s))
}

// StatusError is returned by a call when the backend answers with a
// non-zero status.
type StatusError struct {
	Op     string
	Status Status
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote %s failed: %s", e.Op, e.Status)
}

// StatusOf returns the backend status carried by err, if any.
func StatusOf(err error) (Status, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status, true
	}
	return StatusOK, false
}
