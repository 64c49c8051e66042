package inode

import (
	"bytes"
	"testing"

	"github.com/deploymenttheory/go-tinyfs/internal/types"
)

func TestWriteiThenReadiRoundTrip(t *testing.T) {
	c := newTestCache(t, 16)

	ip, err := c.Ialloc(types.TypeFile)
	if err != nil {
		t.Fatalf("Ialloc: %v", err)
	}
	if err := c.Ilock(ip); err != nil {
		t.Fatalf("Ilock: %v", err)
	}
	defer c.Iunlockput(ip)

	want := []byte("hello, tinyfs")
	n, err := c.Writei(ip, want, 0, uint32(len(want)))
	if err != nil {
		t.Fatalf("Writei: %v", err)
	}
	if int(n) != len(want) {
		t.Fatalf("Writei returned %d, want %d", n, len(want))
	}
	if ip.Size != uint32(len(want)) {
		t.Fatalf("Size = %d, want %d", ip.Size, len(want))
	}

	got := make([]byte, len(want))
	n, err = c.Readi(ip, got, 0, uint32(len(got)))
	if err != nil {
		t.Fatalf("Readi: %v", err)
	}
	if !bytes.Equal(got[:n], want) {
		t.Fatalf("Readi = %q, want %q", got[:n], want)
	}
}

func TestWriteiAcrossIndirectBlock(t *testing.T) {
	c := newTestCache(t, 16)

	ip, err := c.Ialloc(types.TypeFile)
	if err != nil {
		t.Fatalf("Ialloc: %v", err)
	}
	if err := c.Ilock(ip); err != nil {
		t.Fatalf("Ilock: %v", err)
	}
	defer c.Iunlockput(ip)

	off := uint32((types.NDirect + 2) * types.BlockSize)
	// Writei rejects an offset past the current size, so fill up to off first.
	if _, err := c.Writei(ip, make([]byte, off), 0, off); err != nil {
		t.Fatalf("Writei fill: %v", err)
	}
	want := []byte("past the direct blocks")
	if _, err := c.Writei(ip, want, off, uint32(len(want))); err != nil {
		t.Fatalf("Writei: %v", err)
	}
	if ip.Addrs[types.NDirect] == 0 {
		t.Fatalf("expected the indirect block pointer to be allocated")
	}

	got := make([]byte, len(want))
	if _, err := c.Readi(ip, got, off, uint32(len(got))); err != nil {
		t.Fatalf("Readi: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("Readi = %q, want %q", got, want)
	}
}

func TestReadiClampsToSize(t *testing.T) {
	c := newTestCache(t, 16)

	ip, err := c.Ialloc(types.TypeFile)
	if err != nil {
		t.Fatalf("Ialloc: %v", err)
	}
	if err := c.Ilock(ip); err != nil {
		t.Fatalf("Ilock: %v", err)
	}
	defer c.Iunlockput(ip)

	if _, err := c.Writei(ip, []byte("abc"), 0, 3); err != nil {
		t.Fatalf("Writei: %v", err)
	}

	buf := make([]byte, 100)
	n, err := c.Readi(ip, buf, 0, uint32(len(buf)))
	if err != nil {
		t.Fatalf("Readi: %v", err)
	}
	if n != 3 {
		t.Fatalf("Readi clamped length = %d, want 3", n)
	}
}

func TestReadiPastEndOfFileFails(t *testing.T) {
	c := newTestCache(t, 16)

	ip, err := c.Ialloc(types.TypeFile)
	if err != nil {
		t.Fatalf("Ialloc: %v", err)
	}
	if err := c.Ilock(ip); err != nil {
		t.Fatalf("Ilock: %v", err)
	}
	defer c.Iunlockput(ip)

	buf := make([]byte, 10)
	if _, err := c.Readi(ip, buf, 5, 10); err == nil {
		t.Fatalf("expected error reading past an empty file's size")
	}
}

func TestItruncFreesBlocksAndZeroesSize(t *testing.T) {
	c := newTestCache(t, 16)

	ip, err := c.Ialloc(types.TypeFile)
	if err != nil {
		t.Fatalf("Ialloc: %v", err)
	}
	if err := c.Ilock(ip); err != nil {
		t.Fatalf("Ilock: %v", err)
	}
	defer c.Iunlockput(ip)

	off := uint32((types.NDirect + 1) * types.BlockSize)
	if _, err := c.Writei(ip, make([]byte, off), 0, off); err != nil {
		t.Fatalf("Writei fill: %v", err)
	}
	if _, err := c.Writei(ip, []byte("x"), off, 1); err != nil {
		t.Fatalf("Writei: %v", err)
	}

	if err := c.Itrunc(ip); err != nil {
		t.Fatalf("Itrunc: %v", err)
	}
	if ip.Size != 0 {
		t.Fatalf("Size after Itrunc = %d, want 0", ip.Size)
	}
	for i, a := range ip.Addrs {
		if a != 0 {
			t.Fatalf("Addrs[%d] = %d after Itrunc, want 0", i, a)
		}
	}

	if _, err := c.Allocator().Balloc(); err != nil {
		t.Fatalf("Balloc after Itrunc: %v", err)
	}
}
