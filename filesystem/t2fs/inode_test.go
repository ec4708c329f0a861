package t2fs

import "testing"

func TestInodeRoundTrip(t *testing.T) {
	in := &inode{
		Type:      TypeRegular,
		HLCount:   3,
		BytesSize: 123456,
		NumBlocks: 7,
	}
	in.Pointers[0] = 10
	in.Pointers[NumPointers-1] = 99

	decoded, err := inodeFromBytes(in.toBytes())
	if err != nil {
		t.Fatalf("inodeFromBytes: %v", err)
	}
	if *decoded != *in {
		t.Fatalf("round trip mismatch: got %+v, want %+v", decoded, in)
	}
}

func TestInodeFromBytesRejectsShort(t *testing.T) {
	if _, err := inodeFromBytes(make([]byte, inodeSize-1)); err == nil {
		t.Fatalf("expected error decoding a short inode record")
	}
}

func TestSuperblockRoundTrip(t *testing.T) {
	sb := &superblock{
		SectorsPerBlock:      4,
		SectorSize:           SectorSize,
		BlockSize:            1024,
		PartitionFirstSector: 1,
		TotalSectors:         600,
		NumBlocks:            100,
		NumInodes:            32,
		InodeTableSector:     1,
		InodeBitmapSector:    10,
		BlockBitmapSector:    11,
		DataBlockSector:      12,
	}
	decoded, err := superblockFromBytes(sb.toBytes())
	if err != nil {
		t.Fatalf("superblockFromBytes: %v", err)
	}
	if *decoded != *sb {
		t.Fatalf("round trip mismatch: got %+v, want %+v", decoded, sb)
	}
}

func TestSuperblockFromBytesRejectsBadMagic(t *testing.T) {
	sb := &superblock{SectorSize: SectorSize}
	b := sb.toBytes()
	b[0] = 'x'
	if _, err := superblockFromBytes(b); err == nil {
		t.Fatalf("expected error decoding a superblock with bad magic")
	}
}
