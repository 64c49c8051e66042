// Package fuseadapter exposes a mounted session (internal/mount) as a
// github.com/jacobsa/fuse/fuseutil.FileSystem, the per-op-method interface
// fuseutil.NewFileSystemServer drives against a fuse.Connection — the same
// shape samples/hellofs/hello_fs.go implements in the jacobsa/fuse tree this
// package is grounded on. File content ops go straight through inode.Cache's
// Readi/Writei rather than through internal/proc's descriptor table: FUSE
// already hands every op an explicit (inode, offset) pair, so there is no
// kernel-side fd whose offset this layer needs to track itself.
package fuseadapter

import (
	"fmt"
	"os"
	"sync"

	"syscall"

	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"

	"github.com/deploymenttheory/go-tinyfs/internal/directory"
	"github.com/deploymenttheory/go-tinyfs/internal/inode"
	"github.com/deploymenttheory/go-tinyfs/internal/mount"
	"github.com/deploymenttheory/go-tinyfs/internal/types"
)

// dirHandle pins the entry list an OpenDir call read, so a ReadDir sequence
// that pages through increasing offsets sees one consistent snapshot even if
// the directory is mutated mid-read.
type dirHandle struct {
	entries []directory.Entry
}

type tinyFS struct {
	sess *mount.Session

	mu         sync.Mutex
	nextHandle fuseops.HandleID
	dirHandles map[fuseops.HandleID]*dirHandle
}

// New returns a fuseutil.FileSystem backed by an already-mounted session.
func New(sess *mount.Session) fuseutil.FileSystem {
	return &tinyFS{
		sess:       sess,
		dirHandles: make(map[fuseops.HandleID]*dirHandle),
	}
}

func toAttrs(ip *inode.Inode) fuseops.InodeAttributes {
	mode := os.FileMode(0644)
	if ip.Type == types.TypeDir {
		mode = os.ModeDir | 0755
	}
	return fuseops.InodeAttributes{
		Size:  uint64(ip.Size),
		Nlink: uint32(ip.NLink),
		Mode:  mode,
		Uid:   uint32(os.Getuid()),
		Gid:   uint32(os.Getgid()),
	}
}

// getLocked returns id's inode, locked (BUSY held). Callers must Iunlockput
// (or Iunlock, then separately Iput) exactly once.
func (fs *tinyFS) getLocked(id fuseops.InodeID) (*inode.Inode, error) {
	ip, err := fs.sess.Cache.Iget(types.RootDev, uint32(id))
	if err != nil {
		return nil, err
	}
	if err := fs.sess.Cache.Ilock(ip); err != nil {
		fs.sess.Cache.Iput(ip)
		return nil, err
	}
	return ip, nil
}

func (fs *tinyFS) Init(op *fuseops.InitOp) {
	op.Respond(nil)
}

func (fs *tinyFS) LookUpInode(op *fuseops.LookUpInodeOp) {
	var err error
	defer func() { op.Respond(err) }()

	dp, dErr := fs.getLocked(op.Parent)
	if dErr != nil {
		err = dErr
		return
	}

	child, _, lErr := fs.sess.Dir.Lookup(dp, op.Name)
	fs.sess.Cache.Iunlockput(dp)
	if lErr != nil {
		err = lErr
		return
	}
	if child == nil {
		err = syscall.ENOENT
		return
	}

	if lErr := fs.sess.Cache.Ilock(child); lErr != nil {
		fs.sess.Cache.Iput(child)
		err = lErr
		return
	}
	op.Entry.Child = fuseops.InodeID(child.Inum)
	op.Entry.Attributes = toAttrs(child)
	fs.sess.Cache.Iunlockput(child)
}

func (fs *tinyFS) GetInodeAttributes(op *fuseops.GetInodeAttributesOp) {
	var err error
	defer func() { op.Respond(err) }()

	ip, iErr := fs.getLocked(op.Inode)
	if iErr != nil {
		err = iErr
		return
	}
	op.Attributes = toAttrs(ip)
	fs.sess.Cache.Iunlockput(ip)
}

// SetInodeAttributes only honors a Size of 0 (the ftruncate(fd, 0)/O_TRUNC
// case, via Cache.Itrunc); other fields and nonzero sizes are accepted but
// not applied, since neither a mode/owner bit nor a partial-truncate/extend
// primitive exists below this layer (spec.md's dinode carries no mode/owner
// fields at all).
func (fs *tinyFS) SetInodeAttributes(op *fuseops.SetInodeAttributesOp) {
	var err error
	defer func() { op.Respond(err) }()

	ip, iErr := fs.getLocked(op.Inode)
	if iErr != nil {
		err = iErr
		return
	}
	defer fs.sess.Cache.Iunlockput(ip)

	if op.Size != nil && *op.Size == 0 {
		if tErr := fs.sess.Cache.Itrunc(ip); tErr != nil {
			err = tErr
			return
		}
	}
	op.Attributes = toAttrs(ip)
}

// ForgetInode is a no-op: every other method here already drops its own
// Iget/Iput pair within the same call, so this layer never holds a
// kernel-lifetime reference for ForgetInode to release.
func (fs *tinyFS) ForgetInode(op *fuseops.ForgetInodeOp) {
	op.Respond(nil)
}

func (fs *tinyFS) mkChild(parent fuseops.InodeID, name string, typ types.InodeType) (*inode.Inode, error) {
	dp, err := fs.sess.Cache.Iget(types.RootDev, uint32(parent))
	if err != nil {
		return nil, err
	}
	if err := fs.sess.Cache.Ilock(dp); err != nil {
		fs.sess.Cache.Iput(dp)
		return nil, err
	}

	if existing, _, lErr := fs.sess.Dir.Lookup(dp, name); lErr != nil {
		fs.sess.Cache.Iunlockput(dp)
		return nil, lErr
	} else if existing != nil {
		fs.sess.Cache.Iunlockput(dp)
		fs.sess.Cache.Iput(existing)
		return nil, syscall.EEXIST
	}

	ip, aErr := fs.sess.Cache.Ialloc(typ)
	if aErr != nil {
		fs.sess.Cache.Iunlockput(dp)
		return nil, aErr
	}
	if err := fs.sess.Cache.Ilock(ip); err != nil {
		fs.sess.Cache.Iput(ip)
		fs.sess.Cache.Iunlockput(dp)
		return nil, err
	}

	ip.NLink = 1
	if err := fs.sess.Cache.Iupdate(ip); err != nil {
		fs.sess.Cache.Iunlockput(ip)
		fs.sess.Cache.Iunlockput(dp)
		return nil, err
	}

	if typ == types.TypeDir {
		dp.NLink++
		if err := fs.sess.Cache.Iupdate(dp); err != nil {
			fs.sess.Cache.Iunlockput(ip)
			fs.sess.Cache.Iunlockput(dp)
			return nil, err
		}
		if err := fs.sess.Dir.Link(ip, ".", ip.Inum); err != nil {
			fs.sess.Cache.Iunlockput(ip)
			fs.sess.Cache.Iunlockput(dp)
			return nil, err
		}
		if err := fs.sess.Dir.Link(ip, "..", dp.Inum); err != nil {
			fs.sess.Cache.Iunlockput(ip)
			fs.sess.Cache.Iunlockput(dp)
			return nil, err
		}
	}

	if err := fs.sess.Dir.Link(dp, name, ip.Inum); err != nil {
		fs.sess.Cache.Iunlockput(ip)
		fs.sess.Cache.Iunlockput(dp)
		return nil, err
	}

	fs.sess.Cache.Iunlockput(dp)
	return ip, nil
}

func (fs *tinyFS) MkDir(op *fuseops.MkDirOp) {
	var err error
	defer func() { op.Respond(err) }()

	ip, mErr := fs.mkChild(op.Parent, op.Name, types.TypeDir)
	if mErr != nil {
		err = mErr
		return
	}
	op.Entry.Child = fuseops.InodeID(ip.Inum)
	op.Entry.Attributes = toAttrs(ip)
	fs.sess.Cache.Iunlockput(ip)
}

func (fs *tinyFS) CreateFile(op *fuseops.CreateFileOp) {
	var err error
	defer func() { op.Respond(err) }()

	ip, mErr := fs.mkChild(op.Parent, op.Name, types.TypeFile)
	if mErr != nil {
		err = mErr
		return
	}
	op.Entry.Child = fuseops.InodeID(ip.Inum)
	op.Entry.Attributes = toAttrs(ip)
	op.Handle = fuseops.HandleID(ip.Inum)
	fs.sess.Cache.Iunlockput(ip)
}

func (fs *tinyFS) CreateSymlink(op *fuseops.CreateSymlinkOp) {
	op.Respond(syscall.ENOSYS)
}

func (fs *tinyFS) unlinkCommon(parent fuseops.InodeID, name string, wantDir bool) error {
	dp, err := fs.sess.Cache.Iget(types.RootDev, uint32(parent))
	if err != nil {
		return err
	}
	if err := fs.sess.Cache.Ilock(dp); err != nil {
		fs.sess.Cache.Iput(dp)
		return err
	}

	child, off, lErr := fs.sess.Dir.Lookup(dp, name)
	if lErr != nil {
		fs.sess.Cache.Iunlockput(dp)
		return lErr
	}
	if child == nil {
		fs.sess.Cache.Iunlockput(dp)
		return syscall.ENOENT
	}

	if err := fs.sess.Cache.Ilock(child); err != nil {
		fs.sess.Cache.Iput(child)
		fs.sess.Cache.Iunlockput(dp)
		return err
	}

	isDir := child.Type == types.TypeDir
	if isDir != wantDir {
		fs.sess.Cache.Iunlockput(child)
		fs.sess.Cache.Iunlockput(dp)
		if wantDir {
			return syscall.ENOTDIR
		}
		return syscall.EISDIR
	}

	if isDir {
		empty, eErr := fs.sess.Dir.IsEmpty(child)
		if eErr != nil {
			fs.sess.Cache.Iunlockput(child)
			fs.sess.Cache.Iunlockput(dp)
			return eErr
		}
		if !empty {
			fs.sess.Cache.Iunlockput(child)
			fs.sess.Cache.Iunlockput(dp)
			return syscall.ENOTEMPTY
		}
	}

	if err := fs.sess.Dir.Unset(dp, off); err != nil {
		fs.sess.Cache.Iunlockput(child)
		fs.sess.Cache.Iunlockput(dp)
		return err
	}

	if isDir {
		dp.NLink--
		if err := fs.sess.Cache.Iupdate(dp); err != nil {
			fs.sess.Cache.Iunlockput(child)
			fs.sess.Cache.Iunlockput(dp)
			return err
		}
	}
	fs.sess.Cache.Iunlockput(dp)

	child.NLink--
	if err := fs.sess.Cache.Iupdate(child); err != nil {
		fs.sess.Cache.Iunlockput(child)
		return err
	}
	return fs.sess.Cache.Iunlockput(child)
}

func (fs *tinyFS) RmDir(op *fuseops.RmDirOp) {
	var err error
	defer func() { op.Respond(err) }()
	err = fs.unlinkCommon(op.Parent, op.Name, true)
}

func (fs *tinyFS) Unlink(op *fuseops.UnlinkOp) {
	var err error
	defer func() { op.Respond(err) }()
	err = fs.unlinkCommon(op.Parent, op.Name, false)
}

func (fs *tinyFS) allocHandle(dh *dirHandle) fuseops.HandleID {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.nextHandle++
	h := fs.nextHandle
	fs.dirHandles[h] = dh
	return h
}

func (fs *tinyFS) OpenDir(op *fuseops.OpenDirOp) {
	var err error
	defer func() { op.Respond(err) }()

	dp, iErr := fs.getLocked(op.Inode)
	if iErr != nil {
		err = iErr
		return
	}
	entries, lErr := fs.sess.Dir.List(dp)
	fs.sess.Cache.Iunlockput(dp)
	if lErr != nil {
		err = lErr
		return
	}

	op.Handle = fs.allocHandle(&dirHandle{entries: entries})
}

func (fs *tinyFS) ReadDir(op *fuseops.ReadDirOp) {
	var err error
	defer func() { op.Respond(err) }()

	fs.mu.Lock()
	dh, ok := fs.dirHandles[op.Handle]
	fs.mu.Unlock()
	if !ok {
		err = fmt.Errorf("fuseadapter: unknown directory handle %d", op.Handle)
		return
	}

	for i := int(op.Offset); i < len(dh.entries); i++ {
		e := dh.entries[i]
		typ := fuseutil.DT_File
		// A directory entry's type isn't recorded in spec.md's fixed-size
		// DirEnt; resolve it by looking the child up rather than guessing.
		if childIp, gErr := fs.sess.Cache.Iget(types.RootDev, e.Inum); gErr == nil {
			if lErr := fs.sess.Cache.Ilock(childIp); lErr == nil {
				if childIp.Type == types.TypeDir {
					typ = fuseutil.DT_Directory
				}
				fs.sess.Cache.Iunlockput(childIp)
			} else {
				fs.sess.Cache.Iput(childIp)
			}
		}

		d := fuseutil.Dirent{
			Offset: fuseops.DirOffset(i + 1),
			Inode:  fuseops.InodeID(e.Inum),
			Name:   e.Name,
			Type:   typ,
		}
		rec := fuseutil.AppendDirent(op.Data, d)
		if len(rec) > op.Size {
			break
		}
		op.Data = rec
		if len(op.Data) >= op.Size {
			break
		}
	}
}

func (fs *tinyFS) ReleaseDirHandle(op *fuseops.ReleaseDirHandleOp) {
	fs.mu.Lock()
	delete(fs.dirHandles, op.Handle)
	fs.mu.Unlock()
	op.Respond(nil)
}

// OpenFile grants access to any inode the kernel already resolved a LookUp
// for; the handle ID doubles as the inode number, since every ReadFile and
// WriteFile op already carries an explicit offset and this layer needs no
// further per-handle state.
func (fs *tinyFS) OpenFile(op *fuseops.OpenFileOp) {
	var err error
	defer func() { op.Respond(err) }()

	ip, iErr := fs.getLocked(op.Inode)
	if iErr != nil {
		err = iErr
		return
	}
	fs.sess.Cache.Iunlockput(ip)
	op.Handle = fuseops.HandleID(ip.Inum)
}

func (fs *tinyFS) ReadFile(op *fuseops.ReadFileOp) {
	var err error
	defer func() { op.Respond(err) }()

	ip, iErr := fs.getLocked(op.Inode)
	if iErr != nil {
		err = iErr
		return
	}
	defer fs.sess.Cache.Iunlockput(ip)

	buf := make([]byte, op.Size)
	n, rErr := fs.sess.Cache.Readi(ip, buf, uint32(op.Offset), uint32(op.Size))
	if rErr != nil {
		err = rErr
		return
	}
	op.Data = buf[:n]
}

func (fs *tinyFS) WriteFile(op *fuseops.WriteFileOp) {
	var err error
	defer func() { op.Respond(err) }()

	ip, iErr := fs.getLocked(op.Inode)
	if iErr != nil {
		err = iErr
		return
	}
	defer fs.sess.Cache.Iunlockput(ip)

	_, wErr := fs.sess.Cache.Writei(ip, op.Data, uint32(op.Offset), uint32(len(op.Data)))
	if wErr != nil {
		err = wErr
	}
}

func (fs *tinyFS) ReleaseFileHandle(op *fuseops.ReleaseFileHandleOp) {
	op.Respond(nil)
}

// SyncFile and FlushFile are no-ops: Writei/Iupdate write through to the
// block device synchronously, so there is never anything buffered to push
// out on a fsync(2)/close(2) (spec.md never specifies a write-back cache).
func (fs *tinyFS) SyncFile(op *fuseops.SyncFileOp) {
	op.Respond(nil)
}

func (fs *tinyFS) FlushFile(op *fuseops.FlushFileOp) {
	op.Respond(nil)
}
