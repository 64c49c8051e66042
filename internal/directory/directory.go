// Package directory interprets a directory inode's contents as a sequence
// of fixed-size name->inode-number records (spec.md §4.4): lookup, creation
// of a new entry, and the "empty except for . and .." test.
package directory

import (
	"fmt"

	"github.com/deploymenttheory/go-tinyfs/internal/inode"
	"github.com/deploymenttheory/go-tinyfs/internal/kpanic"
	"github.com/deploymenttheory/go-tinyfs/internal/types"
)

// Directory reads and writes directory contents through an inode cache.
type Directory struct {
	cache *inode.Cache
}

// New returns a Directory bound to the given inode cache.
func New(c *inode.Cache) *Directory {
	return &Directory{cache: c}
}

// Namecmp reports whether a and b are equal over at most DirSiz bytes.
func Namecmp(a, b string) bool {
	if len(a) > types.DirSiz {
		a = a[:types.DirSiz]
	}
	if len(b) > types.DirSiz {
		b = b[:types.DirSiz]
	}
	return a == b
}

func (d *Directory) readEnt(dp *inode.Inode, off uint32) (*types.DirEnt, error) {
	buf := make([]byte, types.DirEntSize)
	n, err := d.cache.Readi(dp, buf, off, types.DirEntSize)
	if err != nil {
		return nil, fmt.Errorf("directory: read entry at %d: %w", off, err)
	}
	if n != types.DirEntSize {
		kpanic.Fatal("directory: short read of entry at offset %d", off)
	}
	return types.DecodeDirEnt(buf, 0)
}

// Lookup scans dp block by block for an entry named name. Precondition: dp
// is locked and of type directory — fatal otherwise. Returns (nil, 0, nil)
// on a miss, never an error for "not found". On a hit, returns an unlocked
// reference to the target inode (via Iget) and the byte offset of the entry.
func (d *Directory) Lookup(dp *inode.Inode, name string) (*inode.Inode, uint32, error) {
	if dp.Type != types.TypeDir {
		kpanic.Fatal("dirlookup: inode %d is not a directory", dp.Inum)
	}

	for off := uint32(0); off < dp.Size; off += types.DirEntSize {
		ent, err := d.readEnt(dp, off)
		if err != nil {
			return nil, 0, err
		}
		if ent.Inum == 0 {
			continue
		}
		if Namecmp(ent.NameString(), name) {
			ip, err := d.cache.Iget(dp.Dev, uint32(ent.Inum))
			if err != nil {
				return nil, 0, err
			}
			return ip, off, nil
		}
	}

	return nil, 0, nil
}

// Link adds a (name, inum) entry to dp, reusing the first free slot if one
// exists or extending the directory otherwise. Fails if name is already
// present or too long. Precondition: dp locked and of type directory.
func (d *Directory) Link(dp *inode.Inode, name string, inum uint32) error {
	if len(name) == 0 || len(name) > types.DirSiz {
		return fmt.Errorf("dirlink: name %q invalid length", name)
	}

	existing, _, err := d.Lookup(dp, name)
	if err != nil {
		return err
	}
	if existing != nil {
		if err := d.cache.Iput(existing); err != nil {
			return err
		}
		return fmt.Errorf("dirlink: %q already exists", name)
	}

	var off uint32
	for off = 0; off < dp.Size; off += types.DirEntSize {
		ent, err := d.readEnt(dp, off)
		if err != nil {
			return err
		}
		if ent.Inum == 0 {
			break
		}
	}

	ent := &types.DirEnt{Inum: uint16(inum)}
	ent.SetName(name)
	encoded := make([]byte, types.DirEntSize)
	if err := ent.EncodeInto(encoded, 0); err != nil {
		return fmt.Errorf("dirlink: %w", err)
	}

	if _, err := d.cache.Writei(dp, encoded, off, types.DirEntSize); err != nil {
		return fmt.Errorf("dirlink: %w", err)
	}
	return nil
}

// Unset zeroes the directory entry at off (inum=0), used by unlink to free
// a slot without shifting later entries.
func (d *Directory) Unset(dp *inode.Inode, off uint32) error {
	encoded := make([]byte, types.DirEntSize)
	if _, err := d.cache.Writei(dp, encoded, off, types.DirEntSize); err != nil {
		return fmt.Errorf("directory: clear entry at %d: %w", off, err)
	}
	return nil
}

// Entry is one resolved (name, inum) pair read back out of a directory,
// used by callers that need to enumerate a whole directory at once (the FUSE
// adapter's ReadDir) rather than look up one name.
type Entry struct {
	Name string
	Inum uint32
}

// List returns every non-free entry in dp in on-disk order. Precondition: dp
// locked and of type directory.
func (d *Directory) List(dp *inode.Inode) ([]Entry, error) {
	if dp.Type != types.TypeDir {
		kpanic.Fatal("dirlist: inode %d is not a directory", dp.Inum)
	}

	var entries []Entry
	for off := uint32(0); off < dp.Size; off += types.DirEntSize {
		ent, err := d.readEnt(dp, off)
		if err != nil {
			return nil, err
		}
		if ent.Inum == 0 {
			continue
		}
		entries = append(entries, Entry{Name: ent.NameString(), Inum: uint32(ent.Inum)})
	}
	return entries, nil
}

// IsEmpty reports whether dp contains only "." and ".." (spec.md §4.4):
// every entry from offset 2*sizeof(entry) onward must have inum=0.
func (d *Directory) IsEmpty(dp *inode.Inode) (bool, error) {
	for off := uint32(2 * types.DirEntSize); off < dp.Size; off += types.DirEntSize {
		ent, err := d.readEnt(dp, off)
		if err != nil {
			return false, err
		}
		if ent.Inum != 0 {
			return false, nil
		}
	}
	return true, nil
}
