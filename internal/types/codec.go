package types

import (
	"encoding/binary"
	"fmt"
)

// Endian is the byte order used for every packed on-disk structure. The
// teacher parses APFS structures as little-endian throughout
// (container_reader.go, inode_reader.go); tinyfs keeps that convention.
var Endian = binary.LittleEndian

// DecodeSuperblock parses block 1 into a Superblock.
func DecodeSuperblock(data []byte) (*Superblock, error) {
	const minLen = 4*6 + 16
	if len(data) < minLen {
		return nil, fmt.Errorf("decode superblock: insufficient data: got %d bytes, need %d", len(data), minLen)
	}

	sb := &Superblock{}
	off := 0
	sb.Size = Endian.Uint32(data[off : off+4])
	off += 4
	sb.NInodes = Endian.Uint32(data[off : off+4])
	off += 4
	sb.NLog = Endian.Uint32(data[off : off+4])
	off += 4
	sb.LogStart = Endian.Uint32(data[off : off+4])
	off += 4
	sb.InodeStart = Endian.Uint32(data[off : off+4])
	off += 4
	sb.BmapStart = Endian.Uint32(data[off : off+4])
	off += 4
	copy(sb.VolumeUUID[:], data[off:off+16])

	return sb, nil
}

// Encode serializes the superblock into a BlockSize buffer.
func (sb *Superblock) Encode() []byte {
	buf := make([]byte, BlockSize)
	off := 0
	Endian.PutUint32(buf[off:off+4], sb.Size)
	off += 4
	Endian.PutUint32(buf[off:off+4], sb.NInodes)
	off += 4
	Endian.PutUint32(buf[off:off+4], sb.NLog)
	off += 4
	Endian.PutUint32(buf[off:off+4], sb.LogStart)
	off += 4
	Endian.PutUint32(buf[off:off+4], sb.InodeStart)
	off += 4
	Endian.PutUint32(buf[off:off+4], sb.BmapStart)
	off += 4
	copy(buf[off:off+16], sb.VolumeUUID[:])
	return buf
}

// DecodeDInode parses one packed dinode out of an inode-block buffer at the
// given byte offset.
func DecodeDInode(block []byte, byteOff int) (*DInode, error) {
	if byteOff+DInodeSize > len(block) {
		return nil, fmt.Errorf("decode dinode: offset %d out of range for block of %d bytes", byteOff, len(block))
	}

	d := &DInode{}
	off := byteOff
	d.Type = InodeType(Endian.Uint16(block[off : off+2]))
	off += 2
	d.Major = Endian.Uint16(block[off : off+2])
	off += 2
	d.Minor = Endian.Uint16(block[off : off+2])
	off += 2
	d.NLink = Endian.Uint16(block[off : off+2])
	off += 2
	d.Size = Endian.Uint32(block[off : off+4])
	off += 4
	for i := range d.Addrs {
		d.Addrs[i] = Endian.Uint32(block[off : off+4])
		off += 4
	}
	d.Tags = Endian.Uint32(block[off : off+4])

	return d, nil
}

// EncodeInto serializes d into block at byteOff.
func (d *DInode) EncodeInto(block []byte, byteOff int) error {
	if byteOff+DInodeSize > len(block) {
		return fmt.Errorf("encode dinode: offset %d out of range for block of %d bytes", byteOff, len(block))
	}

	off := byteOff
	Endian.PutUint16(block[off:off+2], uint16(d.Type))
	off += 2
	Endian.PutUint16(block[off:off+2], d.Major)
	off += 2
	Endian.PutUint16(block[off:off+2], d.Minor)
	off += 2
	Endian.PutUint16(block[off:off+2], d.NLink)
	off += 2
	Endian.PutUint32(block[off:off+4], d.Size)
	off += 4
	for _, a := range d.Addrs {
		Endian.PutUint32(block[off:off+4], a)
		off += 4
	}
	Endian.PutUint32(block[off:off+4], d.Tags)

	return nil
}

// DecodeDirEnt parses one directory record at byteOff within block.
func DecodeDirEnt(block []byte, byteOff int) (*DirEnt, error) {
	if byteOff+DirEntSize > len(block) {
		return nil, fmt.Errorf("decode dirent: offset %d out of range for block of %d bytes", byteOff, len(block))
	}

	e := &DirEnt{}
	e.Inum = Endian.Uint16(block[byteOff : byteOff+2])
	copy(e.Name[:], block[byteOff+2:byteOff+DirEntSize])
	return e, nil
}

// EncodeInto serializes e into block at byteOff.
func (e *DirEnt) EncodeInto(block []byte, byteOff int) error {
	if byteOff+DirEntSize > len(block) {
		return fmt.Errorf("encode dirent: offset %d out of range for block of %d bytes", byteOff, len(block))
	}
	Endian.PutUint16(block[byteOff:byteOff+2], e.Inum)
	copy(block[byteOff+2:byteOff+DirEntSize], e.Name[:])
	return nil
}

// NameString returns the directory entry's name, stopping at the first NUL
// if the name is shorter than DirSiz.
func (e *DirEnt) NameString() string {
	for i, b := range e.Name {
		if b == 0 {
			return string(e.Name[:i])
		}
	}
	return string(e.Name[:])
}

// SetName copies name into the entry's fixed-size field. It is the caller's
// responsibility (pathresolve.Skipelem) to have already rejected names
// longer than DirSiz.
func (e *DirEnt) SetName(name string) {
	e.Name = [DirSiz]byte{}
	copy(e.Name[:], name)
}

// DecodeTagRecord parses one tag record at byteOff within a tag block.
func DecodeTagRecord(block []byte, byteOff int) (*TagRecord, error) {
	if byteOff+TagRecordSize > len(block) {
		return nil, fmt.Errorf("decode tag record: offset %d out of range for block of %d bytes", byteOff, len(block))
	}
	r := &TagRecord{}
	off := byteOff
	copy(r.Key[:], block[off:off+TagKeyFieldSize])
	off += TagKeyFieldSize
	r.VLen = block[off]
	off++
	copy(r.Value[:], block[off:off+TagValueFieldSize])
	return r, nil
}

// EncodeInto serializes r into block at byteOff.
func (r *TagRecord) EncodeInto(block []byte, byteOff int) error {
	if byteOff+TagRecordSize > len(block) {
		return fmt.Errorf("encode tag record: offset %d out of range for block of %d bytes", byteOff, len(block))
	}
	off := byteOff
	copy(block[off:off+TagKeyFieldSize], r.Key[:])
	off += TagKeyFieldSize
	block[off] = r.VLen
	off++
	copy(block[off:off+TagValueFieldSize], r.Value[:])
	return nil
}
