// Package tagstore implements spec.md §4.7: a single, optional 512-byte
// block per regular file holding a packed set of up to 16 (key, value)
// records. Keys are 1-9 bytes plus a NUL terminator; values are capped at 21
// bytes. The tag block is allocated lazily on the first successful set and
// freed by inode.Cache.Itrunc alongside the file's regular data blocks
// (SPEC_FULL.md's resolution of spec.md §9's open question).
package tagstore

import (
	"fmt"

	"github.com/deploymenttheory/go-tinyfs/internal/inode"
	"github.com/deploymenttheory/go-tinyfs/internal/proc"
	"github.com/deploymenttheory/go-tinyfs/internal/types"
)

// Store operates on tag blocks through one inode cache.
type Store struct {
	cache *inode.Cache
}

// New returns a Store bound to the given inode cache.
func New(c *inode.Cache) *Store {
	return &Store{cache: c}
}

func (s *Store) validate(p *proc.Process, fd int, needWrite bool) (*proc.File, error) {
	f, err := p.Get(fd)
	if err != nil {
		return nil, err
	}
	if f.Kind != proc.KindInode {
		return nil, fmt.Errorf("tag: file descriptor %d is not inode-backed", fd)
	}
	if needWrite && !f.Writable {
		return nil, fmt.Errorf("tag: file descriptor %d is not writable", fd)
	}
	if !needWrite && !f.Readable {
		return nil, fmt.Errorf("tag: file descriptor %d is not readable", fd)
	}
	return f, nil
}

// TagFile sets key=value on the file behind fd, overwriting any existing
// record for key. Returns 1 on success, -1 on any failure (spec.md §6's
// return convention): key out of bounds, value too large, or no free record
// slot. Allocates the tag block lazily through balloc on first use.
func (s *Store) TagFile(p *proc.Process, fd int, key string, value []byte) (int, error) {
	if len(key) < 1 || len(key) > types.TagMaxKeyLen {
		return -1, fmt.Errorf("tag: key %q length out of bounds (1..%d)", key, types.TagMaxKeyLen)
	}
	if len(value) > types.TagValueFieldSize {
		return -1, fmt.Errorf("tag: value of %d bytes exceeds capacity of %d", len(value), types.TagValueFieldSize)
	}

	f, err := s.validate(p, fd, true)
	if err != nil {
		return -1, err
	}
	ip := f.Inode

	if err := s.cache.Ilock(ip); err != nil {
		return -1, err
	}
	defer s.cache.Iunlock(ip)

	allocatedNew := ip.Tags == 0
	if allocatedNew {
		addr, err := s.cache.Allocator().Balloc()
		if err != nil {
			return -1, fmt.Errorf("tag: %w", err)
		}
		ip.Tags = addr
	}

	buf, err := s.cache.Device().Bread(ip.Tags)
	if err != nil {
		return -1, fmt.Errorf("tag: %w", err)
	}
	defer s.cache.Device().Brelse(buf)

	foundOff, freeOff := -1, -1
	for i := 0; i < types.TagRecordsPerBlock; i++ {
		off := i * types.TagRecordSize
		rec, err := types.DecodeTagRecord(buf.Data[:], off)
		if err != nil {
			return -1, fmt.Errorf("tag: %w", err)
		}
		if rec.Free() {
			if freeOff == -1 {
				freeOff = off
			}
			continue
		}
		if rec.KeyString() == key {
			foundOff = off
			break
		}
	}

	targetOff := foundOff
	if targetOff == -1 {
		if freeOff == -1 {
			return -1, fmt.Errorf("tag: no free record slots (max %d tags per file)", types.TagRecordsPerBlock)
		}
		targetOff = freeOff
	}

	rec := &types.TagRecord{VLen: byte(len(value))}
	copy(rec.Key[:], key)
	copy(rec.Value[:], value)
	if err := rec.EncodeInto(buf.Data[:], targetOff); err != nil {
		return -1, fmt.Errorf("tag: %w", err)
	}

	if err := s.cache.Device().Bwrite(buf); err != nil {
		return -1, fmt.Errorf("tag: %w", err)
	}

	if allocatedNew {
		if err := s.cache.Iupdate(ip); err != nil {
			return -1, fmt.Errorf("tag: %w", err)
		}
	}

	return 1, nil
}

// RemoveFileTag deletes the record for key. Fails if the file has no tag
// block or key is absent.
func (s *Store) RemoveFileTag(p *proc.Process, fd int, key string) (int, error) {
	f, err := s.validate(p, fd, true)
	if err != nil {
		return -1, err
	}
	ip := f.Inode

	if err := s.cache.Ilock(ip); err != nil {
		return -1, err
	}
	defer s.cache.Iunlock(ip)

	if ip.Tags == 0 {
		return -1, fmt.Errorf("tag: file has no tags")
	}

	buf, err := s.cache.Device().Bread(ip.Tags)
	if err != nil {
		return -1, fmt.Errorf("tag: %w", err)
	}
	defer s.cache.Device().Brelse(buf)

	for i := 0; i < types.TagRecordsPerBlock; i++ {
		off := i * types.TagRecordSize
		rec, err := types.DecodeTagRecord(buf.Data[:], off)
		if err != nil {
			return -1, fmt.Errorf("tag: %w", err)
		}
		if rec.Free() || rec.KeyString() != key {
			continue
		}

		buf.Data[off] = 0
		if err := s.cache.Device().Bwrite(buf); err != nil {
			return -1, fmt.Errorf("tag: %w", err)
		}
		return 1, nil
	}

	return -1, fmt.Errorf("tag: key %q not found", key)
}

// GetFileTag copies min(L, len(buffer)) bytes of key's stored value into
// buffer and returns L, the stored length, regardless of how much was
// copied — a caller seeing L>len(buffer) retries with a larger buffer
// (spec.md §6).
func (s *Store) GetFileTag(p *proc.Process, fd int, key string, buffer []byte) (int, error) {
	f, err := s.validate(p, fd, false)
	if err != nil {
		return -1, err
	}
	ip := f.Inode

	if err := s.cache.Ilock(ip); err != nil {
		return -1, err
	}
	defer s.cache.Iunlock(ip)

	if ip.Tags == 0 {
		return -1, fmt.Errorf("tag: file has no tags")
	}

	buf, err := s.cache.Device().Bread(ip.Tags)
	if err != nil {
		return -1, fmt.Errorf("tag: %w", err)
	}
	defer s.cache.Device().Brelse(buf)

	for i := 0; i < types.TagRecordsPerBlock; i++ {
		off := i * types.TagRecordSize
		rec, err := types.DecodeTagRecord(buf.Data[:], off)
		if err != nil {
			return -1, fmt.Errorf("tag: %w", err)
		}
		if rec.Free() || rec.KeyString() != key {
			continue
		}

		l := int(rec.VLen)
		n := l
		if n > len(buffer) {
			n = len(buffer)
		}
		copy(buffer[:n], rec.Value[:n])
		return l, nil
	}

	return -1, fmt.Errorf("tag: key %q not found", key)
}
