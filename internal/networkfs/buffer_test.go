package networkfs

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/go-kit/log"
	"github.com/kmaximk/itmo-os-networkfs/internal/fine"
	"github.com/stretchr/testify/require"
)

// memStore is a ContentStore backed by a map.
type memStore struct {
	content  map[uint64][]byte
	readErr  error
	writeErr error
	writes   int
}

func newMemStore() *memStore {
	return &memStore{content: make(map[uint64][]byte)}
}

func (s *memStore) Read(_ context.Context, inode uint64) ([]byte, error) {
	if s.readErr != nil {
		return nil, s.readErr
	}
	return append([]byte(nil), s.content[inode]...), nil
}

func (s *memStore) Write(_ context.Context, inode uint64, content []byte) error {
	s.writes++
	if s.writeErr != nil {
		return s.writeErr
	}
	s.content[inode] = append([]byte(nil), content...)
	return nil
}

func openTestFile(t *testing.T, store *memStore, appendMode bool) *File {
	t.Helper()
	return OpenFile(context.Background(), log.NewNopLogger(), store, 1, appendMode)
}

func TestFile_ReadAt(t *testing.T) {
	store := newMemStore()
	store.content[1] = []byte("hello")
	f := openTestFile(t, store, false)
	require.Equal(t, 5, f.Size())

	buf := make([]byte, 10)
	n := f.ReadAt(buf, 2)
	require.Equal(t, "llo", string(buf[:n]))

	require.Zero(t, f.ReadAt(buf, 5))
	require.Zero(t, f.ReadAt(buf, 100))
}

func TestFile_OpenFailureIsEmpty(t *testing.T) {
	store := newMemStore()
	store.readErr = errors.New("unreachable")

	f := openTestFile(t, store, false)
	require.Zero(t, f.Size())
	require.Empty(t, f.Bytes())
}

func TestFile_WriteThenRead(t *testing.T) {
	f := openTestFile(t, newMemStore(), false)

	n, err := f.WriteAt([]byte("abc"), 0)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Equal(t, []byte("abc"), f.Bytes())

	buf := make([]byte, 3)
	require.Equal(t, 3, f.ReadAt(buf, 0))
	require.Equal(t, []byte("abc"), buf)
}

func TestFile_WriteGrowsBySize(t *testing.T) {
	store := newMemStore()
	store.content[1] = []byte("hello")
	f := openTestFile(t, store, false)

	// Overwriting still grows the file by the number of bytes written.
	_, err := f.WriteAt([]byte("HE"), 0)
	require.NoError(t, err)
	require.Equal(t, 7, f.Size())
	require.Equal(t, []byte("HEllo\x00\x00"), f.Bytes())
}

func TestFile_WritePastEnd(t *testing.T) {
	store := newMemStore()
	store.content[1] = []byte("ab")
	f := openTestFile(t, store, false)

	// The size grows by the bytes written, not up to the end of the write.
	_, err := f.WriteAt([]byte("z"), 4)
	require.NoError(t, err)
	require.Equal(t, []byte("ab\x00"), f.Bytes())

	_, err = f.WriteAt([]byte("xy"), 6)
	require.NoError(t, err)
	require.Equal(t, []byte("ab\x00\x00\x00"), f.Bytes())
}

func TestFile_WriteLimits(t *testing.T) {
	f := openTestFile(t, newMemStore(), false)

	_, err := f.WriteAt([]byte("x"), MaxFileSize)
	require.ErrorIs(t, err, fine.ErrorQuotaExceeded)
	require.Zero(t, f.Size())

	_, err = f.WriteAt([]byte("x"), -1)
	require.ErrorIs(t, err, fine.ErrorInvalid)

	n, err := f.WriteAt(bytes.Repeat([]byte("a"), 20), MaxFileSize-10)
	require.NoError(t, err)
	require.Equal(t, 10, n)
	require.LessOrEqual(t, f.Size(), MaxFileSize)

	n, err = f.WriteAt(bytes.Repeat([]byte("b"), MaxFileSize), 0)
	require.NoError(t, err)
	require.Equal(t, MaxFileSize, n)
	require.Equal(t, MaxFileSize, f.Size())
}

func TestFile_Append(t *testing.T) {
	store := newMemStore()
	store.content[1] = []byte("log:")
	f := openTestFile(t, store, true)

	_, err := f.WriteAt([]byte("one"), 0)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte("two"), 1)
	require.NoError(t, err)
	require.Equal(t, "log:onetwo", string(f.Bytes()))
}

func TestFile_Truncate(t *testing.T) {
	store := newMemStore()
	store.content[1] = []byte("hello")
	f := openTestFile(t, store, false)

	f.Truncate(2)
	require.Equal(t, "he", string(f.Bytes()))

	f.Truncate(4)
	require.Equal(t, []byte("he\x00\x00"), f.Bytes())

	f.Truncate(MaxFileSize * 2)
	require.Equal(t, MaxFileSize, f.Size())
}

func TestFile_TruncateDropsContent(t *testing.T) {
	store := newMemStore()
	store.content[1] = []byte("secret")
	f := openTestFile(t, store, false)

	f.Truncate(0)
	_, err := f.WriteAt([]byte("ab"), 0)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte("c"), 0)
	require.NoError(t, err)
	require.Equal(t, []byte("cb\x00"), f.Bytes())

	// Bytes dropped by a write past the end stay dropped.
	_, err = f.WriteAt([]byte("xyz"), 5)
	require.NoError(t, err)
	require.Equal(t, []byte("cb\x00\x00\x00x"), f.Bytes())
	_, err = f.WriteAt([]byte("q"), 0)
	require.NoError(t, err)
	require.Equal(t, []byte("qb\x00\x00\x00x\x00"), f.Bytes())

	require.NoError(t, f.Flush(context.Background(), store))
	require.Equal(t, []byte("qb\x00\x00\x00x\x00"), store.content[1])
}

func TestFile_Flush(t *testing.T) {
	store := newMemStore()
	f := openTestFile(t, store, false)

	// Empty files are never written.
	require.NoError(t, f.Flush(context.Background(), store))
	require.Zero(t, store.writes)

	_, err := f.WriteAt([]byte("data"), 0)
	require.NoError(t, err)
	require.NoError(t, f.Flush(context.Background(), store))
	require.Equal(t, []byte("data"), store.content[1])
}

func TestFile_FlushFailureKeepsContent(t *testing.T) {
	store := newMemStore()
	f := openTestFile(t, store, false)
	_, err := f.WriteAt([]byte("data"), 0)
	require.NoError(t, err)

	store.writeErr = errors.New("backend down")
	require.Error(t, f.Flush(context.Background(), store))
	require.Equal(t, "data", string(f.Bytes()))

	store.writeErr = nil
	require.NoError(t, f.Flush(context.Background(), store))
	require.Equal(t, []byte("data"), store.content[1])
}
