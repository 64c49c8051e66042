// Package blockalloc implements the block allocator of spec.md §4.1: a
// first-fit scan over a contiguous on-disk bitmap region, one bit per data
// block. It does not cache bitmap state across calls; every call re-reads
// the current bitmap block through blockdev.
package blockalloc

import (
	"fmt"

	"github.com/deploymenttheory/go-tinyfs/internal/blockdev"
	"github.com/deploymenttheory/go-tinyfs/internal/kpanic"
	"github.com/deploymenttheory/go-tinyfs/internal/types"
)

// Allocator finds and frees data blocks for one device.
type Allocator struct {
	dev *blockdev.Device
	sb  *types.Superblock
}

// New returns an Allocator bound to dev using sb's cached layout constants.
func New(dev *blockdev.Device, sb *types.Superblock) *Allocator {
	return &Allocator{dev: dev, sb: sb}
}

// Balloc finds the first clear bit in the allocation bitmap, sets it, writes
// the bitmap block, zeroes the returned data block on disk, and returns its
// number. Fatal if no free block exists (spec.md §4.1, §7).
func (a *Allocator) Balloc() (uint32, error) {
	for b := uint32(0); b < a.sb.Size; b += types.BPB {
		bmapBlock := a.sb.BBlock(b)
		buf, err := a.dev.Bread(bmapBlock)
		if err != nil {
			return 0, fmt.Errorf("balloc: read bitmap block %d: %w", bmapBlock, err)
		}

		for bi := uint32(0); bi < types.BPB && b+bi < a.sb.Size; bi++ {
			byteIdx := bi / 8
			mask := byte(1 << (bi % 8))
			if buf.Data[byteIdx]&mask != 0 {
				continue // already allocated
			}

			buf.Data[byteIdx] |= mask
			if err := a.dev.Bwrite(buf); err != nil {
				a.dev.Brelse(buf)
				return 0, fmt.Errorf("balloc: write bitmap block %d: %w", bmapBlock, err)
			}
			a.dev.Brelse(buf)

			blockno := b + bi
			if err := a.zero(blockno); err != nil {
				return 0, err
			}
			return blockno, nil
		}

		a.dev.Brelse(buf)
	}

	kpanic.Fatal("balloc: no free blocks on device")
	return 0, fmt.Errorf("balloc: no free blocks") // unreachable when Exit is real
}

// Bfree zeroes block b on disk and clears its bitmap bit. Fatal if the bit
// was already clear (double-free), per spec.md §4.1, §7.
func (a *Allocator) Bfree(b uint32) error {
	if err := a.zero(b); err != nil {
		return err
	}

	bmapBlock := a.sb.BBlock(b)
	buf, err := a.dev.Bread(bmapBlock)
	if err != nil {
		return fmt.Errorf("bfree: read bitmap block %d: %w", bmapBlock, err)
	}
	defer a.dev.Brelse(buf)

	bi := b % types.BPB
	byteIdx := bi / 8
	mask := byte(1 << (bi % 8))

	if buf.Data[byteIdx]&mask == 0 {
		kpanic.Fatal("bfree: double free of block %d", b)
		return fmt.Errorf("bfree: double free of block %d", b)
	}

	buf.Data[byteIdx] &^= mask
	if err := a.dev.Bwrite(buf); err != nil {
		return fmt.Errorf("bfree: write bitmap block %d: %w", bmapBlock, err)
	}

	return nil
}

func (a *Allocator) zero(blockno uint32) error {
	buf, err := a.dev.Bread(blockno)
	if err != nil {
		return fmt.Errorf("zero block %d: %w", blockno, err)
	}
	defer a.dev.Brelse(buf)

	buf.Data = [types.BlockSize]byte{}
	if err := a.dev.Bwrite(buf); err != nil {
		return fmt.Errorf("zero block %d: write: %w", blockno, err)
	}
	return nil
}
