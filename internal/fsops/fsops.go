// Package fsops composes the inode, directory, and path-resolution layers
// into the higher-level operations of spec.md §4.6: link, unlink, create,
// and open. Their ordering and failure behavior (which inode gets locked
// when, what gets reverted on a later failure) is itself part of the spec,
// not an implementation detail.
package fsops

import (
	"fmt"

	"github.com/deploymenttheory/go-tinyfs/internal/directory"
	"github.com/deploymenttheory/go-tinyfs/internal/inode"
	"github.com/deploymenttheory/go-tinyfs/internal/kpanic"
	"github.com/deploymenttheory/go-tinyfs/internal/pathresolve"
	"github.com/deploymenttheory/go-tinyfs/internal/types"
)

// FS is the facade syscall handlers (and the FUSE adapter, and the CLI) sit
// on top of.
type FS struct {
	Cache *inode.Cache
	Dir   *directory.Directory
	Res   *pathresolve.Resolver
}

// New returns an FS wired to one inode cache/directory/resolver triple.
func New(cache *inode.Cache, dir *directory.Directory, res *pathresolve.Resolver) *FS {
	return &FS{Cache: cache, Dir: dir, Res: res}
}

// Link creates newPath as another name for the file at oldPath. Rejects
// directories, cross-device targets, and duplicate names; reverts the bumped
// nlink on any failure after it, so the namespace reflects all-or-nothing
// semantics for the syscall (spec.md §4.6, §7).
func (fs *FS) Link(oldPath, newPath string, cwd *inode.Inode) error {
	ip, err := fs.Res.Namei(oldPath, cwd)
	if err != nil {
		return fmt.Errorf("link: %w", err)
	}

	if err := fs.Cache.Ilock(ip); err != nil {
		fs.Cache.Iput(ip)
		return fmt.Errorf("link: %w", err)
	}
	if ip.Type == types.TypeDir {
		fs.Cache.Iunlockput(ip)
		return fmt.Errorf("link: %q is a directory", oldPath)
	}

	ip.NLink++
	if err := fs.Cache.Iupdate(ip); err != nil {
		ip.NLink--
		fs.Cache.Iunlockput(ip)
		return fmt.Errorf("link: %w", err)
	}
	fs.Cache.Iunlock(ip)

	revert := func() {
		if err := fs.Cache.Ilock(ip); err != nil {
			fs.Cache.Iput(ip)
			return
		}
		ip.NLink--
		fs.Cache.Iupdate(ip)
		fs.Cache.Iunlockput(ip)
	}

	dp, name, err := fs.Res.NameiParent(newPath, cwd)
	if err != nil {
		revert()
		return fmt.Errorf("link: %w", err)
	}

	if err := fs.Cache.Ilock(dp); err != nil {
		fs.Cache.Iput(dp)
		revert()
		return fmt.Errorf("link: %w", err)
	}

	if dp.Dev != ip.Dev {
		fs.Cache.Iunlockput(dp)
		revert()
		return fmt.Errorf("link: cross-device link")
	}

	if err := fs.Dir.Link(dp, name, ip.Inum); err != nil {
		fs.Cache.Iunlockput(dp)
		revert()
		return fmt.Errorf("link: %w", err)
	}
	fs.Cache.Iunlockput(dp)

	return fs.Cache.Iput(ip)
}

// Unlink removes the name at path. If it was the last link to a file, the
// inode is destroyed once its last cache reference drops. Matches xv6's own
// unlink exactly: the parent and the looked-up child are locked
// simultaneously (the one nested-hold exception spec.md §5 allows, since the
// child was looked up while the parent was already locked).
func (fs *FS) Unlink(path string, cwd *inode.Inode) error {
	dp, name, err := fs.Res.NameiParent(path, cwd)
	if err != nil {
		return fmt.Errorf("unlink: %w", err)
	}

	if name == "." || name == ".." {
		fs.Cache.Iput(dp)
		return fmt.Errorf("unlink: refusing to unlink %q", name)
	}

	if err := fs.Cache.Ilock(dp); err != nil {
		fs.Cache.Iput(dp)
		return fmt.Errorf("unlink: %w", err)
	}

	ip, off, err := fs.Dir.Lookup(dp, name)
	if err != nil {
		fs.Cache.Iunlockput(dp)
		return fmt.Errorf("unlink: %w", err)
	}
	if ip == nil {
		fs.Cache.Iunlockput(dp)
		return fmt.Errorf("unlink: %q: no such file or directory", name)
	}

	if err := fs.Cache.Ilock(ip); err != nil {
		fs.Cache.Iput(ip)
		fs.Cache.Iunlockput(dp)
		return fmt.Errorf("unlink: %w", err)
	}

	if ip.NLink < 1 {
		kpanic.Fatal("unlink: inode %d has nlink < 1 before removal", ip.Inum)
	}

	if ip.Type == types.TypeDir {
		empty, err := fs.Dir.IsEmpty(ip)
		if err != nil {
			fs.Cache.Iunlockput(ip)
			fs.Cache.Iunlockput(dp)
			return fmt.Errorf("unlink: %w", err)
		}
		if !empty {
			fs.Cache.Iunlockput(ip)
			fs.Cache.Iunlockput(dp)
			return fmt.Errorf("unlink: directory %q not empty", name)
		}
	}

	if err := fs.Dir.Unset(dp, off); err != nil {
		fs.Cache.Iunlockput(ip)
		fs.Cache.Iunlockput(dp)
		return fmt.Errorf("unlink: %w", err)
	}

	if ip.Type == types.TypeDir {
		dp.NLink--
		if err := fs.Cache.Iupdate(dp); err != nil {
			fs.Cache.Iunlockput(ip)
			fs.Cache.Iunlockput(dp)
			return fmt.Errorf("unlink: %w", err)
		}
	}
	fs.Cache.Iunlockput(dp)

	ip.NLink--
	if err := fs.Cache.Iupdate(ip); err != nil {
		fs.Cache.Iunlockput(ip)
		return fmt.Errorf("unlink: %w", err)
	}
	return fs.Cache.Iunlockput(ip)
}

// Create implements spec.md §4.6's create: idempotent open-for-create when
// path already names a regular file and the caller also asked for a regular
// file, otherwise a fresh inode (with "." and ".." wired up for a new
// directory, without bumping the child's own nlink for "."). Returns the
// target inode locked.
func (fs *FS) Create(path string, typ types.InodeType, major, minor uint16, cwd *inode.Inode) (*inode.Inode, error) {
	dp, name, err := fs.Res.NameiParent(path, cwd)
	if err != nil {
		return nil, fmt.Errorf("create: %w", err)
	}

	if err := fs.Cache.Ilock(dp); err != nil {
		fs.Cache.Iput(dp)
		return nil, fmt.Errorf("create: %w", err)
	}

	existing, _, err := fs.Dir.Lookup(dp, name)
	if err != nil {
		fs.Cache.Iunlockput(dp)
		return nil, fmt.Errorf("create: %w", err)
	}
	if existing != nil {
		fs.Cache.Iunlockput(dp)
		if err := fs.Cache.Ilock(existing); err != nil {
			fs.Cache.Iput(existing)
			return nil, fmt.Errorf("create: %w", err)
		}
		if typ == types.TypeFile && existing.Type == types.TypeFile {
			return existing, nil
		}
		fs.Cache.Iunlockput(existing)
		return nil, fmt.Errorf("create: %q already exists", name)
	}

	ip, err := fs.Cache.Ialloc(typ)
	if err != nil {
		fs.Cache.Iunlockput(dp)
		return nil, fmt.Errorf("create: %w", err)
	}

	if err := fs.Cache.Ilock(ip); err != nil {
		fs.Cache.Iput(ip)
		fs.Cache.Iunlockput(dp)
		return nil, fmt.Errorf("create: %w", err)
	}

	ip.Major = major
	ip.Minor = minor
	ip.NLink = 1
	if err := fs.Cache.Iupdate(ip); err != nil {
		fs.Cache.Iunlockput(ip)
		fs.Cache.Iunlockput(dp)
		return nil, fmt.Errorf("create: %w", err)
	}

	if typ == types.TypeDir {
		dp.NLink++
		if err := fs.Cache.Iupdate(dp); err != nil {
			fs.Cache.Iunlockput(ip)
			fs.Cache.Iunlockput(dp)
			return nil, fmt.Errorf("create: %w", err)
		}
		// "." points at self but must not bump self nlink, to avoid a cycle
		// (spec.md §9); ".." counts, via dp.NLink++ above.
		if err := fs.Dir.Link(ip, ".", ip.Inum); err != nil {
			fs.Cache.Iunlockput(ip)
			fs.Cache.Iunlockput(dp)
			return nil, fmt.Errorf("create: %w", err)
		}
		if err := fs.Dir.Link(ip, "..", dp.Inum); err != nil {
			fs.Cache.Iunlockput(ip)
			fs.Cache.Iunlockput(dp)
			return nil, fmt.Errorf("create: %w", err)
		}
	}

	if err := fs.Dir.Link(dp, name, ip.Inum); err != nil {
		fs.Cache.Iunlockput(ip)
		fs.Cache.Iunlockput(dp)
		return nil, fmt.Errorf("create: %w", err)
	}

	fs.Cache.Iunlockput(dp)
	return ip, nil
}
