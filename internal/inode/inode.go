// Package inode implements spec.md §4.2: inode allocation, the fixed-size
// in-memory cache, and its two-level locking discipline — a short critical
// section over slot identity/ref/flags under one cache-wide lock, and a
// longer, sleepable BUSY flag over contents that may require disk I/O.
package inode

import (
	"fmt"
	"sync"

	"github.com/deploymenttheory/go-tinyfs/internal/blockalloc"
	"github.com/deploymenttheory/go-tinyfs/internal/blockdev"
	"github.com/deploymenttheory/go-tinyfs/internal/kpanic"
	"github.com/deploymenttheory/go-tinyfs/internal/sleeplock"
	"github.com/deploymenttheory/go-tinyfs/internal/types"
)

// Flag holds the two independent per-slot bits spec.md §3 defines.
type Flag uint8

const (
	FlagValid Flag = 1 << iota
	FlagBusy
)

// Inode is an in-memory cache slot, augmenting the on-disk dinode with
// identity and reference/flag bookkeeping (spec.md §3).
type Inode struct {
	Dev  uint32
	Inum uint32

	ref   int  // GUARDED_BY Cache.mu
	flags Flag // GUARDED_BY Cache.mu for identity; BUSY itself guards contents

	types.DInode // contents; valid only once FlagValid is set, mutated only while BUSY
}

// Ref reports the current reference count. Callers holding BUSY (i.e. every
// caller with a legitimately locked inode) may read this without racing.
func (ip *Inode) Ref() int { return ip.ref }

// Cache is the fixed-size inode-cache array plus its one guarding lock.
type Cache struct {
	dev   *blockdev.Device
	alloc *blockalloc.Allocator
	sb    *types.Superblock

	mu    sync.Mutex // the cache spinlock: short CS only, never held across I/O
	cond  *sleeplock.Cond
	slots [types.NInode]*Inode
}

// New returns an empty inode cache bound to dev/alloc/sb.
func New(dev *blockdev.Device, alloc *blockalloc.Allocator, sb *types.Superblock) *Cache {
	c := &Cache{dev: dev, alloc: alloc, sb: sb}
	c.cond = sleeplock.NewCond(&c.mu)
	for i := range c.slots {
		c.slots[i] = &Inode{}
	}
	return c
}

// Ialloc scans inode blocks from inum=1 upward; the first block whose
// on-disk type is 0 is claimed by writing the requested type. Returns an
// unlocked reference via Iget. Fatal if no inode is free (spec.md §4.2, §7).
func (c *Cache) Ialloc(typ types.InodeType) (*Inode, error) {
	for inum := uint32(1); inum < c.sb.NInodes; inum++ {
		blockno := c.sb.InodeBlock(inum)
		buf, err := c.dev.Bread(blockno)
		if err != nil {
			return nil, fmt.Errorf("ialloc: read inode block %d: %w", blockno, err)
		}

		byteOff := int(inum%types.IPB) * types.DInodeSize
		d, err := types.DecodeDInode(buf.Data[:], byteOff)
		if err != nil {
			c.dev.Brelse(buf)
			return nil, fmt.Errorf("ialloc: %w", err)
		}

		if d.Type != types.TypeFree {
			c.dev.Brelse(buf)
			continue
		}

		*d = types.DInode{Type: typ}
		if err := d.EncodeInto(buf.Data[:], byteOff); err != nil {
			c.dev.Brelse(buf)
			return nil, fmt.Errorf("ialloc: %w", err)
		}
		if err := c.dev.Bwrite(buf); err != nil {
			c.dev.Brelse(buf)
			return nil, fmt.Errorf("ialloc: write inode block %d: %w", blockno, err)
		}
		c.dev.Brelse(buf)

		return c.Iget(c.sb0Dev(), inum)
	}

	kpanic.Fatal("ialloc: no free inodes")
	return nil, fmt.Errorf("ialloc: no free inodes")
}

// sb0Dev is a tiny indirection so the single-device assumption (spec.md §1)
// stays in one place.
func (c *Cache) sb0Dev() uint32 { return types.RootDev }

// Iget finds an existing slot for (dev,inum) and bumps its ref, or reserves
// an empty slot with ref=1. Does not touch disk. Fatal if no slot is free
// (spec.md §4.2).
func (c *Cache) Iget(dev, inum uint32) (*Inode, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var empty *Inode
	for _, ip := range c.slots {
		if ip.ref > 0 && ip.Dev == dev && ip.Inum == inum {
			ip.ref++
			return ip, nil
		}
		if empty == nil && ip.ref == 0 {
			empty = ip
		}
	}

	if empty == nil {
		kpanic.Fatal("iget: no inode cache slots free")
		return nil, fmt.Errorf("iget: no inode cache slots free")
	}

	empty.Dev = dev
	empty.Inum = inum
	empty.ref = 1
	empty.flags = 0
	return empty, nil
}

// Idup increments ip's reference count.
func (c *Cache) Idup(ip *Inode) *Inode {
	c.mu.Lock()
	ip.ref++
	c.mu.Unlock()
	return ip
}

// Ilock waits for any other BUSY holder to finish, claims BUSY, and — if the
// slot's contents haven't been loaded yet — reads the dinode from disk.
// Precondition: ip.ref >= 1.
func (c *Cache) Ilock(ip *Inode) error {
	c.mu.Lock()
	c.cond.WaitWhile(func() bool { return ip.flags&FlagBusy != 0 })
	ip.flags |= FlagBusy
	c.mu.Unlock()

	if ip.flags&FlagValid != 0 {
		return nil
	}

	blockno := c.sb.InodeBlock(ip.Inum)
	buf, err := c.dev.Bread(blockno)
	if err != nil {
		return fmt.Errorf("ilock: read inode block %d: %w", blockno, err)
	}

	byteOff := int(ip.Inum%types.IPB) * types.DInodeSize
	d, err := types.DecodeDInode(buf.Data[:], byteOff)
	c.dev.Brelse(buf)
	if err != nil {
		return fmt.Errorf("ilock: %w", err)
	}

	if d.Type == types.TypeFree {
		kpanic.Fatal("ilock: inode %d has no type (use after free)", ip.Inum)
		return fmt.Errorf("ilock: inode %d has no type", ip.Inum)
	}

	ip.DInode = *d

	c.mu.Lock()
	ip.flags |= FlagValid
	c.mu.Unlock()

	return nil
}

// Iunlock clears BUSY and wakes any waiters. Precondition: BUSY set, ref>=1.
func (c *Cache) Iunlock(ip *Inode) {
	c.mu.Lock()
	ip.flags &^= FlagBusy
	c.cond.WakeAll()
	c.mu.Unlock()
}

// Iupdate rewrites the on-disk inode from ip's in-memory fields.
// Precondition: ip locked (BUSY).
func (c *Cache) Iupdate(ip *Inode) error {
	blockno := c.sb.InodeBlock(ip.Inum)
	buf, err := c.dev.Bread(blockno)
	if err != nil {
		return fmt.Errorf("iupdate: read inode block %d: %w", blockno, err)
	}
	defer c.dev.Brelse(buf)

	byteOff := int(ip.Inum%types.IPB) * types.DInodeSize
	if err := ip.DInode.EncodeInto(buf.Data[:], byteOff); err != nil {
		return fmt.Errorf("iupdate: %w", err)
	}

	if err := c.dev.Bwrite(buf); err != nil {
		return fmt.Errorf("iupdate: write inode block %d: %w", blockno, err)
	}
	return nil
}

// Iput drops one reference. If this was the last reference to a loaded
// inode whose on-disk nlink has reached 0, the inode is destroyed: its
// contents (including any tag block) are freed, its on-disk type is cleared,
// and its cache slot becomes reusable (spec.md §3, §4.2).
func (c *Cache) Iput(ip *Inode) error {
	c.mu.Lock()
	if ip.ref == 1 && ip.flags&FlagValid != 0 && ip.NLink == 0 {
		ip.flags |= FlagBusy
		c.mu.Unlock()

		if err := c.Itrunc(ip); err != nil {
			return fmt.Errorf("iput: truncate inode %d: %w", ip.Inum, err)
		}
		ip.Type = types.TypeFree
		if err := c.Iupdate(ip); err != nil {
			return fmt.Errorf("iput: update inode %d: %w", ip.Inum, err)
		}

		c.mu.Lock()
		ip.flags = 0
		c.cond.WakeAll()
	}

	ip.ref--
	c.mu.Unlock()
	return nil
}

// Iunlockput is the sequential composition of Iunlock then Iput.
func (c *Cache) Iunlockput(ip *Inode) error {
	c.Iunlock(ip)
	return c.Iput(ip)
}

// Device exposes the underlying block device for callers that need it
// directly (the tag store reads and writes its tag block by hand).
func (c *Cache) Device() *blockdev.Device { return c.dev }

// Allocator exposes the block allocator bound to this cache.
func (c *Cache) Allocator() *blockalloc.Allocator { return c.alloc }

// Superblock exposes the cached superblock.
func (c *Cache) Superblock() *types.Superblock { return c.sb }
