package tagstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-tinyfs/internal/blockalloc"
	"github.com/deploymenttheory/go-tinyfs/internal/blockdev"
	"github.com/deploymenttheory/go-tinyfs/internal/directory"
	"github.com/deploymenttheory/go-tinyfs/internal/fsops"
	"github.com/deploymenttheory/go-tinyfs/internal/inode"
	"github.com/deploymenttheory/go-tinyfs/internal/mkfs"
	"github.com/deploymenttheory/go-tinyfs/internal/pathresolve"
	"github.com/deploymenttheory/go-tinyfs/internal/proc"
	"github.com/deploymenttheory/go-tinyfs/internal/types"
)

func newTestEnv(t *testing.T) (*Store, *fsops.FS, *proc.Process, func()) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "disk.img")
	require.NoError(t, mkfs.Format(path, mkfs.Options{NBlocks: 512, NInodes: 64}))

	dev, err := blockdev.Open(path)
	require.NoError(t, err)

	sbBuf, err := dev.Bread(1)
	require.NoError(t, err)
	sb, err := types.DecodeSuperblock(sbBuf.Data[:])
	dev.Brelse(sbBuf)
	require.NoError(t, err)

	alloc := blockalloc.New(dev, sb)
	cache := inode.New(dev, alloc, sb)
	dir := directory.New(cache)
	res := pathresolve.New(cache, dir)
	fs := fsops.New(cache, dir, res)
	store := New(cache)

	root, err := cache.Iget(types.RootDev, types.RootInum)
	require.NoError(t, err)
	p := proc.New(root)

	return store, fs, p, func() { dev.Close() }
}

func TestTagFileSetThenGet(t *testing.T) {
	store, fs, p, cleanup := newTestEnv(t)
	defer cleanup()

	fd, err := fs.Open("/f.txt", types.OCreate|types.ORdWr, p)
	require.NoError(t, err)
	defer fs.Close(fd, p)

	ret, err := store.TagFile(p, fd, "color", []byte("blue"))
	require.NoError(t, err)
	require.Equal(t, 1, ret)

	buf := make([]byte, 32)
	n, err := store.GetFileTag(p, fd, "color", buf)
	require.NoError(t, err)
	require.Equal(t, "blue", string(buf[:n]))
}

func TestTagFileOverwritesExistingKey(t *testing.T) {
	store, fs, p, cleanup := newTestEnv(t)
	defer cleanup()

	fd, err := fs.Open("/f.txt", types.OCreate|types.ORdWr, p)
	require.NoError(t, err)
	defer fs.Close(fd, p)

	_, err = store.TagFile(p, fd, "color", []byte("blue"))
	require.NoError(t, err)
	_, err = store.TagFile(p, fd, "color", []byte("green"))
	require.NoError(t, err)

	buf := make([]byte, 32)
	n, err := store.GetFileTag(p, fd, "color", buf)
	require.NoError(t, err)
	require.Equal(t, "green", string(buf[:n]))
}

func TestGetFileTagReturnsFullLengthEvenWithShortBuffer(t *testing.T) {
	store, fs, p, cleanup := newTestEnv(t)
	defer cleanup()

	fd, err := fs.Open("/f.txt", types.OCreate|types.ORdWr, p)
	require.NoError(t, err)
	defer fs.Close(fd, p)

	_, err = store.TagFile(p, fd, "color", []byte("turquoise"))
	require.NoError(t, err)

	short := make([]byte, 3)
	n, err := store.GetFileTag(p, fd, "color", short)
	require.NoError(t, err)
	require.Equal(t, len("turquoise"), n, "GetFileTag must return the full stored length, not the copied length")
	require.Equal(t, "tur", string(short))
}

func TestTagFileRejectsOversizedKeyAndValue(t *testing.T) {
	store, fs, p, cleanup := newTestEnv(t)
	defer cleanup()

	fd, err := fs.Open("/f.txt", types.OCreate, p)
	require.NoError(t, err)
	defer fs.Close(fd, p)

	_, err = store.TagFile(p, fd, "", []byte("x"))
	require.Error(t, err)

	longKey := make([]byte, types.TagMaxKeyLen+1)
	_, err = store.TagFile(p, fd, string(longKey), []byte("x"))
	require.Error(t, err)

	longVal := make([]byte, types.TagValueFieldSize+1)
	_, err = store.TagFile(p, fd, "k", longVal)
	require.Error(t, err)
}

func TestRemoveFileTag(t *testing.T) {
	store, fs, p, cleanup := newTestEnv(t)
	defer cleanup()

	fd, err := fs.Open("/f.txt", types.OCreate|types.ORdWr, p)
	require.NoError(t, err)
	defer fs.Close(fd, p)

	_, err = store.TagFile(p, fd, "k", []byte("v"))
	require.NoError(t, err)

	_, err = store.RemoveFileTag(p, fd, "k")
	require.NoError(t, err)

	buf := make([]byte, 32)
	_, err = store.GetFileTag(p, fd, "k", buf)
	require.Error(t, err)
}

func TestGetFileTagOnUntaggedFileFails(t *testing.T) {
	store, fs, p, cleanup := newTestEnv(t)
	defer cleanup()

	fd, err := fs.Open("/f.txt", types.OCreate, p)
	require.NoError(t, err)
	defer fs.Close(fd, p)

	buf := make([]byte, 32)
	_, err = store.GetFileTag(p, fd, "k", buf)
	require.Error(t, err)
}

func TestTagFileRejectsReadOnlyDescriptor(t *testing.T) {
	store, fs, p, cleanup := newTestEnv(t)
	defer cleanup()

	fd, err := fs.Open("/f.txt", types.OCreate, p)
	require.NoError(t, err)
	fs.Close(fd, p)

	fd2, err := fs.Open("/f.txt", types.ORdOnly, p)
	require.NoError(t, err)
	defer fs.Close(fd2, p)

	_, err = store.TagFile(p, fd2, "k", []byte("v"))
	require.Error(t, err)
}
