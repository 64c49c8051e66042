package inode

import (
	"fmt"

	"github.com/deploymenttheory/go-tinyfs/internal/kpanic"
	"github.com/deploymenttheory/go-tinyfs/internal/types"
)

// Bmap maps logical block bn of ip to a physical block number, allocating it
// on demand. Precondition: ip locked. Fatal if bn is out of range (spec.md
// §4.3).
func (c *Cache) Bmap(ip *Inode, bn uint32) (uint32, error) {
	if bn < types.NDirect {
		if ip.Addrs[bn] == 0 {
			addr, err := c.alloc.Balloc()
			if err != nil {
				return 0, fmt.Errorf("bmap: %w", err)
			}
			ip.Addrs[bn] = addr
		}
		return ip.Addrs[bn], nil
	}

	bn -= types.NDirect
	if bn >= types.NIndirect {
		kpanic.Fatal("bmap: logical block %d out of range", bn+types.NDirect)
		return 0, fmt.Errorf("bmap: logical block out of range")
	}

	if ip.Addrs[types.NDirect] == 0 {
		addr, err := c.alloc.Balloc()
		if err != nil {
			return 0, fmt.Errorf("bmap: indirect block: %w", err)
		}
		ip.Addrs[types.NDirect] = addr
	}

	indBuf, err := c.dev.Bread(ip.Addrs[types.NDirect])
	if err != nil {
		return 0, fmt.Errorf("bmap: read indirect block: %w", err)
	}
	defer c.dev.Brelse(indBuf)

	addr := types.Endian.Uint32(indBuf.Data[bn*4 : bn*4+4])
	if addr == 0 {
		addr, err = c.alloc.Balloc()
		if err != nil {
			return 0, fmt.Errorf("bmap: %w", err)
		}
		types.Endian.PutUint32(indBuf.Data[bn*4:bn*4+4], addr)
		if err := c.dev.Bwrite(indBuf); err != nil {
			return 0, fmt.Errorf("bmap: write indirect block: %w", err)
		}
	}

	return addr, nil
}

// Readi copies n bytes starting at off from ip's contents into dst, clamping
// n to the file's size. Device inodes are out of scope (spec.md §1: devsw is
// an external collaborator this core does not implement). Precondition: ip
// locked.
func (c *Cache) Readi(ip *Inode, dst []byte, off, n uint32) (uint32, error) {
	if ip.Type == types.TypeDevice {
		return 0, fmt.Errorf("readi: device inode I/O requires devsw, which this core does not implement")
	}

	if off > ip.Size {
		return 0, fmt.Errorf("readi: offset %d beyond size %d", off, ip.Size)
	}
	if off+n < off {
		return 0, fmt.Errorf("readi: offset+n overflow")
	}
	if off+n > ip.Size {
		n = ip.Size - off
	}

	var total uint32
	for total < n {
		bn := (off + total) / types.BlockSize
		bOff := (off + total) % types.BlockSize

		phys, err := c.Bmap(ip, bn)
		if err != nil {
			return total, fmt.Errorf("readi: %w", err)
		}
		buf, err := c.dev.Bread(phys)
		if err != nil {
			return total, fmt.Errorf("readi: %w", err)
		}

		m := types.BlockSize - bOff
		if remaining := n - total; m > remaining {
			m = remaining
		}
		copy(dst[total:total+m], buf.Data[bOff:bOff+m])
		c.dev.Brelse(buf)

		total += m
	}

	return total, nil
}

// Writei copies n bytes from src into ip's contents starting at off,
// extending the file (and writing the new size back via Iupdate) when the
// write runs past the current end. Precondition: ip locked (spec.md §4.3).
func (c *Cache) Writei(ip *Inode, src []byte, off, n uint32) (uint32, error) {
	if ip.Type == types.TypeDevice {
		return 0, fmt.Errorf("writei: device inode I/O requires devsw, which this core does not implement")
	}

	if off > ip.Size {
		return 0, fmt.Errorf("writei: offset %d beyond size %d", off, ip.Size)
	}
	if off+n < off {
		return 0, fmt.Errorf("writei: offset+n overflow")
	}
	if off+n > types.MaxFile*types.BlockSize {
		n = types.MaxFile*types.BlockSize - off
	}

	var total uint32
	for total < n {
		bn := (off + total) / types.BlockSize
		bOff := (off + total) % types.BlockSize

		phys, err := c.Bmap(ip, bn)
		if err != nil {
			return total, fmt.Errorf("writei: %w", err)
		}
		buf, err := c.dev.Bread(phys)
		if err != nil {
			return total, fmt.Errorf("writei: %w", err)
		}

		m := types.BlockSize - bOff
		if remaining := n - total; m > remaining {
			m = remaining
		}
		copy(buf.Data[bOff:bOff+m], src[total:total+m])
		if err := c.dev.Bwrite(buf); err != nil {
			c.dev.Brelse(buf)
			return total, fmt.Errorf("writei: %w", err)
		}
		c.dev.Brelse(buf)

		total += m
	}

	if off+total > ip.Size {
		ip.Size = off + total
		if err := c.Iupdate(ip); err != nil {
			return total, fmt.Errorf("writei: %w", err)
		}
	}

	return total, nil
}

// Itrunc frees every block ip owns — direct blocks, the indirect block and
// everything it lists, and (per SPEC_FULL.md's resolution of spec.md §9's
// open question) the tag block — then zeroes size and persists the inode.
// Precondition: ip locked.
func (c *Cache) Itrunc(ip *Inode) error {
	for i := 0; i < types.NDirect; i++ {
		if ip.Addrs[i] != 0 {
			if err := c.alloc.Bfree(ip.Addrs[i]); err != nil {
				return fmt.Errorf("itrunc: %w", err)
			}
			ip.Addrs[i] = 0
		}
	}

	if ip.Addrs[types.NDirect] != 0 {
		indBuf, err := c.dev.Bread(ip.Addrs[types.NDirect])
		if err != nil {
			return fmt.Errorf("itrunc: read indirect block: %w", err)
		}
		for i := 0; i < types.NIndirect; i++ {
			addr := types.Endian.Uint32(indBuf.Data[i*4 : i*4+4])
			if addr != 0 {
				if err := c.alloc.Bfree(addr); err != nil {
					c.dev.Brelse(indBuf)
					return fmt.Errorf("itrunc: %w", err)
				}
			}
		}
		c.dev.Brelse(indBuf)

		if err := c.alloc.Bfree(ip.Addrs[types.NDirect]); err != nil {
			return fmt.Errorf("itrunc: %w", err)
		}
		ip.Addrs[types.NDirect] = 0
	}

	if ip.Tags != 0 {
		if err := c.alloc.Bfree(ip.Tags); err != nil {
			return fmt.Errorf("itrunc: free tag block: %w", err)
		}
		ip.Tags = 0
	}

	ip.Size = 0
	return c.Iupdate(ip)
}
