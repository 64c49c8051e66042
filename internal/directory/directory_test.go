package directory

import (
	"path/filepath"
	"testing"

	"github.com/deploymenttheory/go-tinyfs/internal/blockalloc"
	"github.com/deploymenttheory/go-tinyfs/internal/blockdev"
	"github.com/deploymenttheory/go-tinyfs/internal/inode"
	"github.com/deploymenttheory/go-tinyfs/internal/types"
)

func newTestDir(t *testing.T) (*Directory, *inode.Cache) {
	t.Helper()

	nInodes := uint32(16)
	inodeBlocks := (nInodes + types.IPB - 1) / types.IPB
	if inodeBlocks == 0 {
		inodeBlocks = 1
	}
	inodeStart := uint32(2)
	bmapStart := inodeStart + inodeBlocks
	dataStart := bmapStart + 1
	nBlocks := dataStart + types.BPB

	path := filepath.Join(t.TempDir(), "disk.img")
	dev, err := blockdev.Create(path, nBlocks)
	if err != nil {
		t.Fatalf("blockdev.Create: %v", err)
	}
	t.Cleanup(func() { dev.Close() })

	sb := &types.Superblock{Size: nBlocks, NInodes: nInodes, InodeStart: inodeStart, BmapStart: bmapStart}
	for b := uint32(0); b < dataStart; b++ {
		buf, err := dev.Bread(sb.BBlock(b))
		if err != nil {
			t.Fatalf("Bread: %v", err)
		}
		bi := b % types.BPB
		buf.Data[bi/8] |= 1 << (bi % 8)
		dev.Bwrite(buf)
		dev.Brelse(buf)
	}

	alloc := blockalloc.New(dev, sb)
	cache := inode.New(dev, alloc, sb)
	return New(cache), cache
}

func mustDir(t *testing.T, cache *inode.Cache) *inode.Inode {
	t.Helper()
	ip, err := cache.Ialloc(types.TypeDir)
	if err != nil {
		t.Fatalf("Ialloc: %v", err)
	}
	if err := cache.Ilock(ip); err != nil {
		t.Fatalf("Ilock: %v", err)
	}
	return ip
}

func TestNamecmp(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"a", "a", true},
		{"a", "b", false},
		{"averylongnamethatexceedsdirsiz", "averylongnamethatexceedsdirsizXXXX", true},
		{"short", "shortX", false},
	}
	for _, c := range cases {
		if got := Namecmp(c.a, c.b); got != c.want {
			t.Errorf("Namecmp(%q, %q) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}

func TestLinkAndLookup(t *testing.T) {
	d, cache := newTestDir(t)
	dp := mustDir(t, cache)
	defer cache.Iunlockput(dp)

	file, err := cache.Ialloc(types.TypeFile)
	if err != nil {
		t.Fatalf("Ialloc: %v", err)
	}
	cache.Iput(file)

	if err := d.Link(dp, "a.txt", file.Inum); err != nil {
		t.Fatalf("Link: %v", err)
	}

	found, off, err := d.Lookup(dp, "a.txt")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if found == nil {
		t.Fatalf("Lookup did not find a.txt")
	}
	if found.Inum != file.Inum {
		t.Fatalf("Lookup returned inum %d, want %d", found.Inum, file.Inum)
	}
	if off != 0 {
		t.Fatalf("Lookup offset = %d, want 0", off)
	}
	cache.Iput(found)
}

func TestLookupMiss(t *testing.T) {
	d, cache := newTestDir(t)
	dp := mustDir(t, cache)
	defer cache.Iunlockput(dp)

	found, _, err := d.Lookup(dp, "nope")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if found != nil {
		t.Fatalf("Lookup should return nil for a missing name")
	}
}

func TestLinkRejectsDuplicateName(t *testing.T) {
	d, cache := newTestDir(t)
	dp := mustDir(t, cache)
	defer cache.Iunlockput(dp)

	f1, _ := cache.Ialloc(types.TypeFile)
	cache.Iput(f1)
	f2, _ := cache.Ialloc(types.TypeFile)
	cache.Iput(f2)

	if err := d.Link(dp, "dup", f1.Inum); err != nil {
		t.Fatalf("Link: %v", err)
	}
	if err := d.Link(dp, "dup", f2.Inum); err == nil {
		t.Fatalf("expected Link to reject a duplicate name")
	}
}

func TestLinkReusesFreedSlot(t *testing.T) {
	d, cache := newTestDir(t)
	dp := mustDir(t, cache)
	defer cache.Iunlockput(dp)

	f1, _ := cache.Ialloc(types.TypeFile)
	cache.Iput(f1)
	if err := d.Link(dp, "a", f1.Inum); err != nil {
		t.Fatalf("Link: %v", err)
	}
	_, off, err := d.Lookup(dp, "a")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if err := d.Unset(dp, off); err != nil {
		t.Fatalf("Unset: %v", err)
	}

	f2, _ := cache.Ialloc(types.TypeFile)
	cache.Iput(f2)
	if err := d.Link(dp, "b", f2.Inum); err != nil {
		t.Fatalf("Link: %v", err)
	}
	if dp.Size != types.DirEntSize {
		t.Fatalf("expected Link to reuse the freed slot instead of growing the directory, size = %d", dp.Size)
	}
}

func TestIsEmpty(t *testing.T) {
	d, cache := newTestDir(t)
	dp := mustDir(t, cache)
	defer cache.Iunlockput(dp)

	if err := d.Link(dp, ".", dp.Inum); err != nil {
		t.Fatalf("Link .: %v", err)
	}
	if err := d.Link(dp, "..", dp.Inum); err != nil {
		t.Fatalf("Link ..: %v", err)
	}

	empty, err := d.IsEmpty(dp)
	if err != nil {
		t.Fatalf("IsEmpty: %v", err)
	}
	if !empty {
		t.Fatalf("directory with only . and .. should be empty")
	}

	child, _ := cache.Ialloc(types.TypeFile)
	cache.Iput(child)
	if err := d.Link(dp, "c", child.Inum); err != nil {
		t.Fatalf("Link: %v", err)
	}

	empty, err = d.IsEmpty(dp)
	if err != nil {
		t.Fatalf("IsEmpty: %v", err)
	}
	if empty {
		t.Fatalf("directory with an extra entry should not be empty")
	}
}

func TestList(t *testing.T) {
	d, cache := newTestDir(t)
	dp := mustDir(t, cache)
	defer cache.Iunlockput(dp)

	a, _ := cache.Ialloc(types.TypeFile)
	cache.Iput(a)
	b, _ := cache.Ialloc(types.TypeFile)
	cache.Iput(b)

	d.Link(dp, "a", a.Inum)
	d.Link(dp, "b", b.Inum)

	entries, err := d.List(dp)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("List returned %d entries, want 2", len(entries))
	}
}
