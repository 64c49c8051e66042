package fsops

import (
	"fmt"

	"github.com/deploymenttheory/go-tinyfs/internal/inode"
	"github.com/deploymenttheory/go-tinyfs/internal/proc"
	"github.com/deploymenttheory/go-tinyfs/internal/types"
)

// Open implements spec.md §4.6's open: with O_CREATE it calls Create for a
// regular file; otherwise it resolves and locks the existing path. Opening a
// directory for anything but read-only is rejected. On success it installs a
// proc.File into p's descriptor table and returns the new fd.
func (fs *FS) Open(path string, flags types.OpenFlag, p *proc.Process) (int, error) {
	cwd := p.Cwd()

	var ip *inode.Inode
	var err error

	if flags&types.OCreate != 0 {
		ip, err = fs.Create(path, types.TypeFile, 0, 0, cwd)
	} else {
		ip, err = fs.Res.Namei(path, cwd)
		if err == nil {
			if lerr := fs.Cache.Ilock(ip); lerr != nil {
				fs.Cache.Iput(ip)
				err = lerr
			}
		}
	}
	if err != nil {
		return -1, fmt.Errorf("open: %w", err)
	}

	if ip.Type == types.TypeDir && (flags&types.OWrOnly != 0 || flags&types.ORdWr != 0) {
		fs.Cache.Iunlockput(ip)
		return -1, fmt.Errorf("open: %q is a directory", path)
	}

	f := &proc.File{
		Kind:     proc.KindInode,
		Inode:    ip,
		Readable: flags&types.OWrOnly == 0,
		Writable: flags&types.OWrOnly != 0 || flags&types.ORdWr != 0,
	}
	fs.Cache.Iunlock(ip)

	fd, err := p.AllocFD(f)
	if err != nil {
		fs.Cache.Iput(ip)
		return -1, fmt.Errorf("open: %w", err)
	}

	return fd, nil
}

// Close releases the inode reference behind fd.
func (fs *FS) Close(fd int, p *proc.Process) error {
	f, err := p.Close(fd)
	if err != nil {
		return fmt.Errorf("close: %w", err)
	}
	if f.Kind == proc.KindInode {
		return fs.Cache.Iput(f.Inode)
	}
	return nil
}

// Read reads up to len(dst) bytes from fd at its current offset, advancing
// the offset by the amount actually read.
func (fs *FS) Read(fd int, dst []byte, p *proc.Process) (uint32, error) {
	f, err := p.Get(fd)
	if err != nil {
		return 0, fmt.Errorf("read: %w", err)
	}
	if !f.Readable {
		return 0, fmt.Errorf("read: file descriptor %d is not readable", fd)
	}

	f.Lock()
	defer f.Unlock()

	if err := fs.Cache.Ilock(f.Inode); err != nil {
		return 0, fmt.Errorf("read: %w", err)
	}
	defer fs.Cache.Iunlock(f.Inode)

	n, err := fs.Cache.Readi(f.Inode, dst, f.Offset, uint32(len(dst)))
	if err != nil {
		return 0, fmt.Errorf("read: %w", err)
	}
	f.Offset += n
	return n, nil
}

// Write writes src to fd at its current offset, advancing the offset by the
// amount actually written.
func (fs *FS) Write(fd int, src []byte, p *proc.Process) (uint32, error) {
	f, err := p.Get(fd)
	if err != nil {
		return 0, fmt.Errorf("write: %w", err)
	}
	if !f.Writable {
		return 0, fmt.Errorf("write: file descriptor %d is not writable", fd)
	}

	f.Lock()
	defer f.Unlock()

	if err := fs.Cache.Ilock(f.Inode); err != nil {
		return 0, fmt.Errorf("write: %w", err)
	}
	defer fs.Cache.Iunlock(f.Inode)

	n, err := fs.Cache.Writei(f.Inode, src, f.Offset, uint32(len(src)))
	if err != nil {
		return 0, fmt.Errorf("write: %w", err)
	}
	f.Offset += n
	return n, nil
}
