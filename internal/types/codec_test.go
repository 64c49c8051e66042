package types

import "testing"

func TestSuperblockRoundTrip(t *testing.T) {
	sb := &Superblock{
		Size:       1024,
		NInodes:    200,
		InodeStart: 2,
		BmapStart:  9,
	}
	copy(sb.VolumeUUID[:], []byte("0123456789abcdef"))

	got, err := DecodeSuperblock(sb.Encode())
	if err != nil {
		t.Fatalf("DecodeSuperblock: %v", err)
	}
	if *got != *sb {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, sb)
	}
}

func TestDInodeRoundTrip(t *testing.T) {
	block := make([]byte, BlockSize)
	d := &DInode{Type: TypeFile, Major: 1, Minor: 2, NLink: 3, Size: 4096, Tags: 7}
	d.Addrs[0] = 10
	d.Addrs[NDirect] = 99

	if err := d.EncodeInto(block, DInodeSize); err != nil {
		t.Fatalf("EncodeInto: %v", err)
	}
	got, err := DecodeDInode(block, DInodeSize)
	if err != nil {
		t.Fatalf("DecodeDInode: %v", err)
	}
	if *got != *d {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, d)
	}
}

func TestDInodeEncodeOutOfRange(t *testing.T) {
	block := make([]byte, DInodeSize-1)
	d := &DInode{}
	if err := d.EncodeInto(block, 0); err == nil {
		t.Fatalf("expected error encoding into too-small block")
	}
}

func TestDirEntRoundTrip(t *testing.T) {
	block := make([]byte, BlockSize)
	e := &DirEnt{Inum: 5}
	e.SetName("readme.txt")

	if err := e.EncodeInto(block, 0); err != nil {
		t.Fatalf("EncodeInto: %v", err)
	}
	got, err := DecodeDirEnt(block, 0)
	if err != nil {
		t.Fatalf("DecodeDirEnt: %v", err)
	}
	if got.Inum != 5 || got.NameString() != "readme.txt" {
		t.Fatalf("round trip mismatch: inum=%d name=%q", got.Inum, got.NameString())
	}
}

func TestDirEntNameStringStopsAtNUL(t *testing.T) {
	e := &DirEnt{}
	e.SetName("ab")
	if got := e.NameString(); got != "ab" {
		t.Fatalf("NameString() = %q, want %q", got, "ab")
	}
}

func TestTagRecordRoundTrip(t *testing.T) {
	block := make([]byte, BlockSize)
	r := &TagRecord{VLen: 3}
	copy(r.Key[:], "color")
	copy(r.Value[:], "red")

	if err := r.EncodeInto(block, TagRecordSize); err != nil {
		t.Fatalf("EncodeInto: %v", err)
	}
	got, err := DecodeTagRecord(block, TagRecordSize)
	if err != nil {
		t.Fatalf("DecodeTagRecord: %v", err)
	}
	if got.KeyString() != "color" || got.VLen != 3 || string(got.Value[:3]) != "red" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestTagRecordFree(t *testing.T) {
	var r TagRecord
	if !r.Free() {
		t.Fatalf("zero-value TagRecord should report Free()")
	}
	copy(r.Key[:], "k")
	if r.Free() {
		t.Fatalf("TagRecord with a key should not report Free()")
	}
}

func TestBBlockAndInodeBlock(t *testing.T) {
	sb := &Superblock{InodeStart: 2, BmapStart: 9}
	if got := sb.InodeBlock(0); got != 2 {
		t.Fatalf("InodeBlock(0) = %d, want 2", got)
	}
	if got := sb.BBlock(0); got != 9 {
		t.Fatalf("BBlock(0) = %d, want 9", got)
	}
	if got := sb.BBlock(BPB); got != 10 {
		t.Fatalf("BBlock(BPB) = %d, want 10", got)
	}
}
