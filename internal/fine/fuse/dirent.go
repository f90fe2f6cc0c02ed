package fuse

import (
	"encoding/binary"

	"github.com/kmaximk/itmo-os-networkfs/internal/fine"
)

// direntSize is the size of struct fuse_dirent without its name.
const direntSize = 24

// appendDirents appends ents to buf in the layout the kernel expects for a
// READDIR reply: a fixed header followed by the unterminated name, padded to
// 64 bits. Entries are appended until the next one would make buf longer than
// size.
//
// The offset written for each entry is ent.Offset, the cursor that resumes
// the listing after it.
func appendDirents(buf []byte, ents []fine.DirEntry, size int) []byte {
	for _, ent := range ents {
		recLen := uint64(direntSize + len(ent.Name))
		padded := align64(recLen)
		if uint64(len(buf))+padded > uint64(size) {
			break
		}

		var hdr [direntSize]byte
		binary.NativeEndian.PutUint64(hdr[0:], ent.Inode)
		binary.NativeEndian.PutUint64(hdr[8:], ent.Offset)
		binary.NativeEndian.PutUint32(hdr[16:], uint32(len(ent.Name)))
		binary.NativeEndian.PutUint32(hdr[20:], uint32(ent.Type))

		buf = append(buf, hdr[:]...)
		buf = append(buf, ent.Name...)
		buf = append(buf, make([]byte, padded-recLen)...)
	}
	return buf
}
