// Package mount assembles the full layer stack (block device through
// fsops/tagstore) over an existing image file, the way a kernel boot
// sequence would: read the superblock, then wire the allocator, inode
// cache, directory layer, and path resolver on top of it.
package mount

import (
	"fmt"

	"github.com/deploymenttheory/go-tinyfs/internal/blockalloc"
	"github.com/deploymenttheory/go-tinyfs/internal/blockdev"
	"github.com/deploymenttheory/go-tinyfs/internal/directory"
	"github.com/deploymenttheory/go-tinyfs/internal/fsops"
	"github.com/deploymenttheory/go-tinyfs/internal/inode"
	"github.com/deploymenttheory/go-tinyfs/internal/pathresolve"
	"github.com/deploymenttheory/go-tinyfs/internal/proc"
	"github.com/deploymenttheory/go-tinyfs/internal/tagstore"
	"github.com/deploymenttheory/go-tinyfs/internal/types"
)

// Session is a fully wired, open filesystem plus a root process whose
// working directory starts at the root inode.
type Session struct {
	Dev   *blockdev.Device
	Sb    *types.Superblock
	Alloc *blockalloc.Allocator
	Cache *inode.Cache
	Dir   *directory.Directory
	Res   *pathresolve.Resolver
	FS    *fsops.FS
	Tags  *tagstore.Store
	Root  *proc.Process
}

// Open reads the superblock from path and wires every layer on top of it.
func Open(path string) (*Session, error) {
	dev, err := blockdev.Open(path)
	if err != nil {
		return nil, fmt.Errorf("mount: %w", err)
	}

	sbBuf, err := dev.Bread(1)
	if err != nil {
		dev.Close()
		return nil, fmt.Errorf("mount: read superblock: %w", err)
	}
	sb, err := types.DecodeSuperblock(sbBuf.Data[:])
	dev.Brelse(sbBuf)
	if err != nil {
		dev.Close()
		return nil, fmt.Errorf("mount: %w", err)
	}

	alloc := blockalloc.New(dev, sb)
	cache := inode.New(dev, alloc, sb)
	dir := directory.New(cache)
	res := pathresolve.New(cache, dir)
	fs := fsops.New(cache, dir, res)
	tags := tagstore.New(cache)

	rootIp, err := cache.Iget(types.RootDev, types.RootInum)
	if err != nil {
		dev.Close()
		return nil, fmt.Errorf("mount: %w", err)
	}

	return &Session{
		Dev:   dev,
		Sb:    sb,
		Alloc: alloc,
		Cache: cache,
		Dir:   dir,
		Res:   res,
		FS:    fs,
		Tags:  tags,
		Root:  proc.New(rootIp),
	}, nil
}

// Close releases the root process's working-directory reference and closes
// the backing device.
func (s *Session) Close() error {
	if err := s.Cache.Iput(s.Root.Cwd()); err != nil {
		s.Dev.Close()
		return fmt.Errorf("mount: %w", err)
	}
	return s.Dev.Close()
}
