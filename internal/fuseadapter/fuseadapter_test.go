package fuseadapter

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/jacobsa/fuse/fuseops"
	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-tinyfs/internal/kpanic"
	"github.com/deploymenttheory/go-tinyfs/internal/mkfs"
	"github.com/deploymenttheory/go-tinyfs/internal/mount"
	"github.com/deploymenttheory/go-tinyfs/internal/types"
)

// The fuseops op structs (MkDirOp, ReadFileOp, ...) embed unexported fields
// tied to a live fuse.Connection and their Respond method writes a kernel
// reply through that connection, so there is no way to construct one in
// isolation and observe Respond's argument without a real mount. These tests
// instead exercise tinyFS's unexported helpers directly, which carry all of
// the package's actual filesystem logic; the fuseops.*Op methods above them
// are thin wrappers that only shuttle arguments in and out of op.Respond.
func newTestFS(t *testing.T) *tinyFS {
	t.Helper()

	path := filepath.Join(t.TempDir(), "disk.img")
	require.NoError(t, mkfs.Format(path, mkfs.Options{NBlocks: 512, NInodes: 64}))

	sess, err := mount.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { sess.Close() })

	fs := New(sess).(*tinyFS)
	return fs
}

func TestToAttrsReportsSizeAndLinkCount(t *testing.T) {
	fs := newTestFS(t)

	ip, err := fs.mkChild(fuseops.InodeID(types.RootInum), "f.txt", types.TypeFile)
	require.NoError(t, err)
	defer fs.sess.Cache.Iunlockput(ip)

	attrs := toAttrs(ip)
	require.EqualValues(t, 0, attrs.Size)
	require.EqualValues(t, 1, attrs.Nlink)
	require.Equal(t, os.FileMode(0644), attrs.Mode)

	dir, err := fs.mkChild(fuseops.InodeID(types.RootInum), "sub", types.TypeDir)
	require.NoError(t, err)
	defer fs.sess.Cache.Iunlockput(dir)

	dirAttrs := toAttrs(dir)
	require.Equal(t, os.ModeDir|0755, dirAttrs.Mode)
}

func TestGetLockedReturnsInodeAndRejectsUnknownID(t *testing.T) {
	fs := newTestFS(t)

	root, err := fs.getLocked(fuseops.InodeID(types.RootInum))
	require.NoError(t, err)
	require.Equal(t, types.TypeDir, root.Type)
	require.NoError(t, fs.sess.Cache.Iunlockput(root))

	// Locking a never-allocated inode is fatal; stub the exit so the fatal
	// path returns its error instead of ending the test binary.
	exited := false
	prevExit := kpanic.Exit
	kpanic.Exit = func(code int) { exited = true }
	defer func() { kpanic.Exit = prevExit }()

	_, err = fs.getLocked(fuseops.InodeID(999))
	require.Error(t, err)
	require.True(t, exited)
}

func TestMkChildCreatesFileAndRejectsDuplicateName(t *testing.T) {
	fs := newTestFS(t)

	ip, err := fs.mkChild(fuseops.InodeID(types.RootInum), "a.txt", types.TypeFile)
	require.NoError(t, err)
	require.Equal(t, types.TypeFile, ip.Type)
	require.EqualValues(t, 1, ip.NLink)
	require.NoError(t, fs.sess.Cache.Iunlockput(ip))

	_, err = fs.mkChild(fuseops.InodeID(types.RootInum), "a.txt", types.TypeFile)
	require.ErrorIs(t, err, syscall.EEXIST)
}

func TestMkChildDirectoryWiresDotAndDotDot(t *testing.T) {
	fs := newTestFS(t)

	dir, err := fs.mkChild(fuseops.InodeID(types.RootInum), "sub", types.TypeDir)
	require.NoError(t, err)
	require.EqualValues(t, 1, dir.NLink)
	defer fs.sess.Cache.Iunlockput(dir)

	dot, _, err := fs.sess.Dir.Lookup(dir, ".")
	require.NoError(t, err)
	require.Equal(t, dir.Inum, dot.Inum)
	fs.sess.Cache.Iput(dot)

	dotdot, _, err := fs.sess.Dir.Lookup(dir, "..")
	require.NoError(t, err)
	require.Equal(t, uint32(types.RootInum), dotdot.Inum)
	fs.sess.Cache.Iput(dotdot)

	root, err := fs.getLocked(fuseops.InodeID(types.RootInum))
	require.NoError(t, err)
	require.EqualValues(t, 2, root.NLink)
	require.NoError(t, fs.sess.Cache.Iunlockput(root))
}

func TestUnlinkCommonRejectsTypeMismatchAndNonEmptyDir(t *testing.T) {
	fs := newTestFS(t)

	file, err := fs.mkChild(fuseops.InodeID(types.RootInum), "f.txt", types.TypeFile)
	require.NoError(t, err)
	require.NoError(t, fs.sess.Cache.Iunlockput(file))

	err = fs.unlinkCommon(fuseops.InodeID(types.RootInum), "f.txt", true)
	require.ErrorIs(t, err, syscall.ENOTDIR)

	dir, err := fs.mkChild(fuseops.InodeID(types.RootInum), "sub", types.TypeDir)
	require.NoError(t, err)
	require.NoError(t, fs.sess.Cache.Iunlockput(dir))

	child, err := fs.mkChild(fuseops.InodeID(dir.Inum), "child.txt", types.TypeFile)
	require.NoError(t, err)
	require.NoError(t, fs.sess.Cache.Iunlockput(child))

	err = fs.unlinkCommon(fuseops.InodeID(types.RootInum), "sub", true)
	require.ErrorIs(t, err, syscall.ENOTEMPTY)
}

func TestUnlinkCommonRemovesEmptyDir(t *testing.T) {
	fs := newTestFS(t)

	dir, err := fs.mkChild(fuseops.InodeID(types.RootInum), "sub", types.TypeDir)
	require.NoError(t, err)
	require.NoError(t, fs.sess.Cache.Iunlockput(dir))

	require.NoError(t, fs.unlinkCommon(fuseops.InodeID(types.RootInum), "sub", true))

	parent, name, err := fs.sess.Res.NameiParent("/sub", fs.sess.Root.Cwd())
	require.NoError(t, err)
	require.Equal(t, "sub", name)
	fs.sess.Cache.Iput(parent)

	_, err = fs.sess.Res.Namei("/sub", fs.sess.Root.Cwd())
	require.Error(t, err) // "sub" itself is gone now
}

func TestAllocHandleIsMonotonicAndDistinct(t *testing.T) {
	fs := newTestFS(t)

	h1 := fs.allocHandle(&dirHandle{})
	h2 := fs.allocHandle(&dirHandle{})
	require.NotEqual(t, h1, h2)

	fs.mu.Lock()
	_, ok1 := fs.dirHandles[h1]
	_, ok2 := fs.dirHandles[h2]
	fs.mu.Unlock()
	require.True(t, ok1)
	require.True(t, ok2)
}
