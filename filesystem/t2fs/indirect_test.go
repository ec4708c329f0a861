package t2fs

import (
	"testing"

	"github.com/t2fs/t2fs/device"
	"github.com/t2fs/t2fs/partition/mbr"
	"github.com/t2fs/t2fs/testhelper"
)

// newTestFileSystem formats a small in-memory filesystem without going
// through an on-disk MBR: Format only needs the partition's geometry, so a
// bare mbr.Partition value describing the whole device is enough.
func newTestFileSystem(t *testing.T, totalSectors uint32) *FileSystem {
	t.Helper()
	buf := make([]byte, int(totalSectors)*device.SectorSize)
	storage := testhelper.NewMemoryStorage(buf)
	dev, err := device.Open(storage, nil)
	if err != nil {
		t.Fatalf("device.Open: %v", err)
	}
	part := mbr.Partition{FirstSector: 0, LastSector: totalSectors - 1}
	fs, err := Format(dev, part, 4, nil)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	return fs
}

func TestAllocateNewBlockCrossesIntoIndirect(t *testing.T) {
	fs := newTestFileSystem(t, 600)
	in, err := fs.readInode(RootInode)
	if err != nil {
		t.Fatalf("readInode: %v", err)
	}

	ppb := fs.pointersPerBlock()
	// Index NumDirect lands on the first singly-indirect leaf.
	target := uint32(NumDirect)
	blockNum, err := fs.allocateNewBlock(in, target)
	if err != nil {
		t.Fatalf("allocateNewBlock(%d): %v", target, err)
	}
	if blockNum == 0 {
		t.Fatalf("allocateNewBlock returned block 0")
	}
	if in.Pointers[NumDirect] == 0 {
		t.Fatalf("singly-indirect root pointer was not populated")
	}

	got, err := fs.getNthBlock(in, target)
	if err != nil {
		t.Fatalf("getNthBlock(%d): %v", target, err)
	}
	if got != blockNum {
		t.Fatalf("getNthBlock(%d) = %d, want %d", target, got, blockNum)
	}

	// A hole elsewhere in the same indirect block must still read back as 0.
	hole, err := fs.getNthBlock(in, target+1)
	if err != nil {
		t.Fatalf("getNthBlock(%d): %v", target+1, err)
	}
	if hole != 0 {
		t.Fatalf("getNthBlock(%d) = %d, want 0 (hole)", target+1, hole)
	}
	_ = ppb
}

func TestDeallocateBlocksFreesTrailingAndIndirectRoot(t *testing.T) {
	fs := newTestFileSystem(t, 600)
	inodeNum, err := fs.useNewInode(TypeRegular)
	if err != nil {
		t.Fatalf("useNewInode: %v", err)
	}
	in, err := fs.readInode(inodeNum)
	if err != nil {
		t.Fatalf("readInode: %v", err)
	}

	var blocks []uint32
	for i := uint32(0); i < NumDirect+2; i++ {
		b, err := fs.allocateNewBlock(in, i)
		if err != nil {
			t.Fatalf("allocateNewBlock(%d): %v", i, err)
		}
		blocks = append(blocks, b)
	}
	in.NumBlocks = NumDirect + 2
	in.BytesSize = uint64(in.NumBlocks) * uint64(fs.cache.blockSize())
	if err := fs.writeInode(inodeNum, in); err != nil {
		t.Fatalf("writeInode: %v", err)
	}
	indirectRoot := in.Pointers[NumDirect]
	if indirectRoot == 0 {
		t.Fatalf("expected singly-indirect root to be allocated")
	}

	if err := fs.deallocateBlocks(inodeNum, 0); err != nil {
		t.Fatalf("deallocateBlocks: %v", err)
	}

	for _, b := range blocks {
		set, err := fs.blockBitmap.check(b)
		if err != nil {
			t.Fatalf("blockBitmap.check(%d): %v", b, err)
		}
		if set {
			t.Fatalf("block %d should have been freed", b)
		}
	}
	set, err := fs.blockBitmap.check(indirectRoot)
	if err != nil {
		t.Fatalf("blockBitmap.check(indirectRoot): %v", err)
	}
	if set {
		t.Fatalf("indirect root block %d should have been freed once emptied", indirectRoot)
	}

	after, err := fs.readInode(inodeNum)
	if err != nil {
		t.Fatalf("readInode after dealloc: %v", err)
	}
	if after.NumBlocks != 0 || after.BytesSize != 0 {
		t.Fatalf("inode not reset after full deallocation: %+v", after)
	}
}
