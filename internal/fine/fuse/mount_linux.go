package fuse

import (
	"fmt"

	bfuse "bazil.org/fuse"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// MountOption customizes the filesystem mount.
type MountOption = bfuse.MountOption

// FSName sets the fsname that is visible in the list of mounted filesystems.
func FSName(name string) MountOption { return bfuse.FSName(name) }

// Subtype sets the subtype of the mount. The full type appears as
// `fuse.<subtype>`.
func Subtype(subtype string) MountOption { return bfuse.Subtype(subtype) }

// AllowOther allows other users to access the filesystem.
func AllowOther() MountOption { return bfuse.AllowOther() }

// DefaultPermissions requests for the kernel to enforce access control based
// on the file mode.
func DefaultPermissions() MountOption { return bfuse.DefaultPermissions() }

// Mount mounts a filesystem at dir and returns the Transport serving requests
// from the kernel. The connection handshake has completed once Mount returns.
//
// Closing the Transport unmounts dir.
func Mount(l log.Logger, dir string, opts ...MountOption) (*Transport, error) {
	if l == nil {
		l = log.NewNopLogger()
	}

	conn, err := bfuse.Mount(dir, opts...)
	if err != nil {
		return nil, fmt.Errorf("mounting %s: %w", dir, err)
	}
	level.Debug(l).Log("msg", "mounted volume", "dir", dir)

	return newTransport(l, conn, func() error {
		level.Debug(l).Log("msg", "unmounting volume", "dir", dir)
		return Unmount(dir)
	}), nil
}

// Unmount lazily unmounts dir.
func Unmount(dir string) error {
	if err := bfuse.Unmount(dir); err != nil {
		return fmt.Errorf("unmounting %s: %w", dir, err)
	}
	return nil
}
