package fuse

// align64 rounds numBytes up to the next multiple of 8. Every kernel dirent
// record must start on a 64-bit boundary.
func align64(numBytes uint64) uint64 {
	const size64 = 8
	return (numBytes + size64 - 1) &^ (size64 - 1)
}
