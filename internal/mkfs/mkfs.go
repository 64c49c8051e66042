// Package mkfs builds a fresh tinyfs image: the on-disk layout spec.md §6
// fixes bit-exact (boot block, superblock, inode region, bitmap region,
// data region), a root directory whose ".." points at itself per spec.md §9,
// and a filesystem UUID (SPEC_FULL.md §4) for operator-facing identification
// only.
package mkfs

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/deploymenttheory/go-tinyfs/internal/blockalloc"
	"github.com/deploymenttheory/go-tinyfs/internal/blockdev"
	"github.com/deploymenttheory/go-tinyfs/internal/directory"
	"github.com/deploymenttheory/go-tinyfs/internal/inode"
	"github.com/deploymenttheory/go-tinyfs/internal/types"
)

// Options controls the shape of a freshly formatted image.
type Options struct {
	NBlocks uint32 // total device size in blocks, including reserved regions
	NInodes uint32 // number of inode slots the image is formatted with
}

// DefaultOptions mirrors a small teaching-image size: enough for a handful
// of files without wasting disk on the sample/test images this repo ships.
func DefaultOptions() Options {
	return Options{NBlocks: 1024, NInodes: 200}
}

func ceilDiv(a, b uint32) uint32 {
	return (a + b - 1) / b
}

// Format creates a new image file at path and lays out an empty filesystem
// on it: boot block, superblock, inode region, bitmap region, and a root
// directory (inum=RootInum) containing only "." and "..".
func Format(path string, opts Options) error {
	if opts.NBlocks == 0 {
		opts = DefaultOptions()
	}

	inodeBlocks := ceilDiv(opts.NInodes, types.IPB)
	if inodeBlocks == 0 {
		inodeBlocks = 1
	}
	inodeStart := uint32(2) // block 0 boot, block 1 superblock
	bmapBlocks := ceilDiv(opts.NBlocks, types.BPB)
	if bmapBlocks == 0 {
		bmapBlocks = 1
	}
	bmapStart := inodeStart + inodeBlocks
	dataStart := bmapStart + bmapBlocks

	if dataStart >= opts.NBlocks {
		return fmt.Errorf("mkfs: image of %d blocks too small for %d inodes (needs at least %d reserved blocks)", opts.NBlocks, opts.NInodes, dataStart)
	}

	dev, err := blockdev.Create(path, opts.NBlocks)
	if err != nil {
		return fmt.Errorf("mkfs: %w", err)
	}
	defer dev.Close()

	sb := &types.Superblock{
		Size:       opts.NBlocks,
		NInodes:    opts.NInodes,
		InodeStart: inodeStart,
		BmapStart:  bmapStart,
	}
	volUUID := uuid.New()
	copy(sb.VolumeUUID[:], volUUID[:])

	sbBuf, err := dev.Bread(1)
	if err != nil {
		return fmt.Errorf("mkfs: %w", err)
	}
	copy(sbBuf.Data[:], sb.Encode())
	if err := dev.Bwrite(sbBuf); err != nil {
		dev.Brelse(sbBuf)
		return fmt.Errorf("mkfs: write superblock: %w", err)
	}
	dev.Brelse(sbBuf)

	if err := reserveBlocks(dev, sb, dataStart); err != nil {
		return fmt.Errorf("mkfs: %w", err)
	}

	alloc := blockalloc.New(dev, sb)
	cache := inode.New(dev, alloc, sb)
	dir := directory.New(cache)

	root, err := cache.Ialloc(types.TypeDir)
	if err != nil {
		return fmt.Errorf("mkfs: allocate root inode: %w", err)
	}
	if root.Inum != types.RootInum {
		return fmt.Errorf("mkfs: root inode allocated as %d, want %d", root.Inum, types.RootInum)
	}

	if err := cache.Ilock(root); err != nil {
		return fmt.Errorf("mkfs: %w", err)
	}
	root.NLink = 1 // only ".." refers to it; "." never bumps nlink (spec.md §9)
	if err := cache.Iupdate(root); err != nil {
		cache.Iunlockput(root)
		return fmt.Errorf("mkfs: %w", err)
	}
	if err := dir.Link(root, ".", root.Inum); err != nil {
		cache.Iunlockput(root)
		return fmt.Errorf("mkfs: %w", err)
	}
	if err := dir.Link(root, "..", root.Inum); err != nil {
		cache.Iunlockput(root)
		return fmt.Errorf("mkfs: %w", err)
	}

	return cache.Iunlockput(root)
}

// reserveBlocks marks blocks [0, count) as allocated in the bitmap, so the
// boot block, superblock, inode region, and bitmap region itself are never
// handed out by Balloc.
func reserveBlocks(dev *blockdev.Device, sb *types.Superblock, count uint32) error {
	for b := uint32(0); b < count; b++ {
		bmapBlock := sb.BBlock(b)
		buf, err := dev.Bread(bmapBlock)
		if err != nil {
			return fmt.Errorf("reserve block %d: %w", b, err)
		}

		bi := b % types.BPB
		buf.Data[bi/8] |= 1 << (bi % 8)

		if err := dev.Bwrite(buf); err != nil {
			dev.Brelse(buf)
			return fmt.Errorf("reserve block %d: %w", b, err)
		}
		dev.Brelse(buf)
	}
	return nil
}
