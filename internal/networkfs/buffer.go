package networkfs

import (
	"context"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/kmaximk/itmo-os-networkfs/internal/fine"
	"github.com/kmaximk/itmo-os-networkfs/internal/remote"
)

// MaxFileSize is the largest file content a File can hold.
const MaxFileSize = remote.MaxContent

// ContentStore loads and stores whole-file content. *remote.Client
// implements ContentStore.
type ContentStore interface {
	Read(ctx context.Context, inode uint64) ([]byte, error)
	Write(ctx context.Context, inode uint64, content []byte) error
}

// File is the in-memory content of an open file. All reads and writes are
// served from memory; content only reaches the backend through Flush.
//
// File is not safe for concurrent use.
type File struct {
	remoteID   uint64
	data       []byte // allocated buffer; data[size:] is always zero
	size       int
	appendMode bool
}

// OpenFile loads the content of the file remoteID. A failed read is not an
// error: the file opens empty instead. When appendMode is set, every write
// lands at the current end of the file.
func OpenFile(ctx context.Context, l log.Logger, store ContentStore, remoteID uint64, appendMode bool) *File {
	f := &File{remoteID: remoteID, appendMode: appendMode}

	content, err := store.Read(ctx, remoteID)
	if err != nil {
		level.Debug(l).Log("msg", "reading file content failed, opening empty", "inode", remoteID, "err", err)
		return f
	}
	f.data = content
	f.size = len(content)
	return f
}

// Size returns the length of the file content.
func (f *File) Size() int { return f.size }

// Bytes returns the file content. The slice is only valid until the next
// write.
func (f *File) Bytes() []byte { return f.data[:f.size] }

// ReadAt copies content starting at off into p and returns the number of
// bytes copied. Reading at or past the end of the file returns 0.
func (f *File) ReadAt(p []byte, off int64) int {
	if off < 0 || off >= int64(f.size) {
		return 0
	}
	return copy(p, f.data[off:f.size])
}

// WriteAt copies p into the file at off and returns the number of bytes
// written.
//
// Writes starting at or past MaxFileSize fail with fine.ErrorQuotaExceeded;
// writes crossing it are cut short. Every write grows the file by the number
// of bytes written, even when it overwrites existing content, and the size
// never exceeds MaxFileSize. Bytes between the old end of file and off read
// back as zero.
func (f *File) WriteAt(p []byte, off int64) (int, error) {
	if f.appendMode {
		off = int64(f.size)
	}
	if off < 0 {
		return 0, fine.ErrorInvalid
	}
	if off >= MaxFileSize {
		return 0, fine.ErrorQuotaExceeded
	}

	n := len(p)
	if off+int64(n) > MaxFileSize {
		n = MaxFileSize - int(off)
	}

	newSize := f.size + n
	if newSize > MaxFileSize {
		newSize = MaxFileSize
	}
	capacity := newSize
	if end := int(off) + n; end > capacity {
		capacity = end
	}
	if capacity > len(f.data) {
		grown := make([]byte, capacity)
		copy(grown, f.data[:f.size])
		f.data = grown
	}

	copy(f.data[off:], p[:n])
	f.size = newSize
	// Bytes written past the new size are dropped.
	clear(f.data[f.size:])
	return n, nil
}

// Truncate sets the file length to size, capped at MaxFileSize. Growing the
// file exposes zero bytes.
func (f *File) Truncate(size uint64) {
	if size > MaxFileSize {
		size = MaxFileSize
	}
	newSize := int(size)

	switch {
	case newSize > len(f.data):
		grown := make([]byte, newSize)
		copy(grown, f.data[:f.size])
		f.data = grown
	case newSize < f.size:
		clear(f.data[newSize:f.size])
	}
	f.size = newSize
}

// Flush stores the file content in the backend. An empty file is never
// written. On failure the content is kept so Flush can be called again.
func (f *File) Flush(ctx context.Context, store ContentStore) error {
	if f.size == 0 {
		return nil
	}
	return store.Write(ctx, f.remoteID, f.data[:f.size])
}

// Close drops the file content. Close does not flush: content written since
// the last Flush is lost.
func (f *File) Close() error {
	f.data = nil
	f.size = 0
	return nil
}
