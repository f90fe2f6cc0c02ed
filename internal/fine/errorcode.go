package fine

import (
	"strconv"
)

// Error is a FUSE error code. FUSE accepts POSIX error codes that are inverted
// to be negative (i.e., -syscall.ENOTSUP).
//
// The codes a networkfs mount can produce are re-defined here so handlers
// don't need to import syscall.
type Error int32

// Error codes. Values are negated Linux errnos.
const (
	ErrorNotPermitted  = Error(-0x01) // EPERM
	ErrorNotExist      = Error(-0x02) // ENOENT
	ErrorInterrupted   = Error(-0x04) // EINTR
	ErrorIO            = Error(-0x05) // EIO
	ErrorBadHandle     = Error(-0x09) // EBADF
	ErrorNoMemory      = Error(-0x0c) // ENOMEM
	ErrorExists        = Error(-0x11) // EEXIST
	ErrorNotDir        = Error(-0x14) // ENOTDIR
	ErrorIsDir         = Error(-0x15) // EISDIR
	ErrorInvalid       = Error(-0x16) // EINVAL
	ErrorUnimplemented = Error(-0x26) // ENOSYS
	ErrorAborted       = Error(-0x67) // ECONNABORTED
	ErrorStale         = Error(-0x74) // ESTALE
	ErrorQuotaExceeded = Error(-0x7a) // EDQUOT
)

// Error description table
var errorDescriptions = map[Error]string{
	ErrorNotPermitted:  "operation not permitted",
	ErrorNotExist:      "no such file or directory",
	ErrorInterrupted:   "interrupted system call",
	ErrorIO:            "input/output error",
	ErrorBadHandle:     "bad file descriptor",
	ErrorNoMemory:      "cannot allocate memory",
	ErrorExists:        "file exists",
	ErrorNotDir:        "not a directory",
	ErrorIsDir:         "is a directory",
	ErrorInvalid:       "invalid argument",
	ErrorUnimplemented: "function not implemented",
	ErrorAborted:       "software caused connection abort",
	ErrorStale:         "stale file handle",
	ErrorQuotaExceeded: "disk quota exceeded",
}

// Error prints the description of the error.
func (e Error) Error() string {
	desc := errorDescriptions[e]
	if desc != "" {
		return desc
	}
	return "FUSE errno " + strconv.Itoa(int(e))
}

// Errno returns the positive errno value for e.
func (e Error) Errno() int32 {
	return -int32(e)
}
