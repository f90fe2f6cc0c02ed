package networkfs

import (
	"context"

	"github.com/kmaximk/itmo-os-networkfs/internal/fine"
	"github.com/kmaximk/itmo-os-networkfs/internal/remote"
)

// Lister fetches the entries of a remote directory. *remote.Client
// implements Lister.
type Lister interface {
	List(ctx context.Context, inode uint64) (remote.Listing, error)
}

// Enumerator lists directories for readdir.
//
// Cursor positions 0 and 1 are "." and ".."; position 2+i is entry i of the
// directory's list response. Every emitted entry carries the cursor that
// resumes right after it.
type Enumerator struct {
	lister Lister
}

// NewEnumerator creates an Enumerator backed by l.
func NewEnumerator(l Lister) *Enumerator {
	return &Enumerator{lister: l}
}

// Enumerate lists the directory dir starting at cursor. parent is the remote
// identifier reported for "..". Each call issues exactly one list request.
//
// records is the number of real (non-synthetic) entries emitted.
func (e *Enumerator) Enumerate(ctx context.Context, dir, parent, cursor uint64) (entries []fine.DirEntry, records int, err error) {
	listing, err := e.lister.List(ctx, dir)
	if err != nil {
		return nil, 0, err
	}

	total := uint64(2 + len(listing.Entries))
	for pos := cursor; pos < total; pos++ {
		ent := fine.DirEntry{Offset: pos + 1}

		switch pos {
		case 0:
			ent.Name, ent.Inode, ent.Type = ".", dir, fine.EntryDirectory
		case 1:
			ent.Name, ent.Inode, ent.Type = "..", parent, fine.EntryDirectory
		default:
			item := listing.Entries[pos-2]
			ent.Name, ent.Inode, ent.Type = item.Name, item.Ino, fine.EntryType(item.Type)
			records++
		}
		entries = append(entries, ent)
	}
	return entries, records, nil
}
