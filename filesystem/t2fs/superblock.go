package t2fs

import (
	"encoding/binary"
	"fmt"
)

// superblockSize is the fixed on-disk size, in bytes, of the superblock
// record. It is deliberately smaller than SectorSize so it always occupies
// exactly the partition's first sector.
const superblockSize = 64

// superblock is the first sector of the partition: geometry, counts and the
// partition-relative sector offsets of every other region.
type superblock struct {
	SectorsPerBlock      uint16
	SectorSize           uint16
	BlockSize            uint32
	PartitionFirstSector uint32
	TotalSectors         uint32
	NumBlocks            uint32
	NumInodes            uint32
	InodeTableSector     uint32
	InodeBitmapSector    uint32
	BlockBitmapSector    uint32
	DataBlockSector      uint32
}

func superblockFromBytes(b []byte) (*superblock, error) {
	if len(b) < superblockSize {
		return nil, fmt.Errorf("%w: superblock sector too short: %d bytes", ErrCorrupt, len(b))
	}
	magic := make([]byte, 16)
	copy(magic, b[0:16])
	magicLen := 0
	for magicLen < len(magic) && magic[magicLen] != 0 {
		magicLen++
	}
	if string(magic[:magicLen]) != Magic {
		return nil, fmt.Errorf("%w: bad magic %q, expected %q", ErrCorrupt, magic[:magicLen], Magic)
	}
	sb := &superblock{
		SectorsPerBlock:      binary.LittleEndian.Uint16(b[16:18]),
		SectorSize:           binary.LittleEndian.Uint16(b[18:20]),
		BlockSize:            binary.LittleEndian.Uint32(b[20:24]),
		PartitionFirstSector: binary.LittleEndian.Uint32(b[24:28]),
		TotalSectors:         binary.LittleEndian.Uint32(b[28:32]),
		NumBlocks:            binary.LittleEndian.Uint32(b[32:36]),
		NumInodes:            binary.LittleEndian.Uint32(b[36:40]),
		InodeTableSector:     binary.LittleEndian.Uint32(b[40:44]),
		InodeBitmapSector:    binary.LittleEndian.Uint32(b[44:48]),
		BlockBitmapSector:    binary.LittleEndian.Uint32(b[48:52]),
		DataBlockSector:      binary.LittleEndian.Uint32(b[52:56]),
	}
	if sb.SectorSize != SectorSize {
		return nil, fmt.Errorf("%w: superblock sector size %d != %d", ErrCorrupt, sb.SectorSize, SectorSize)
	}
	return sb, nil
}

func (sb *superblock) toBytes() []byte {
	b := make([]byte, superblockSize)
	copy(b[0:16], []byte(Magic))
	binary.LittleEndian.PutUint16(b[16:18], sb.SectorsPerBlock)
	binary.LittleEndian.PutUint16(b[18:20], sb.SectorSize)
	binary.LittleEndian.PutUint32(b[20:24], sb.BlockSize)
	binary.LittleEndian.PutUint32(b[24:28], sb.PartitionFirstSector)
	binary.LittleEndian.PutUint32(b[28:32], sb.TotalSectors)
	binary.LittleEndian.PutUint32(b[32:36], sb.NumBlocks)
	binary.LittleEndian.PutUint32(b[36:40], sb.NumInodes)
	binary.LittleEndian.PutUint32(b[40:44], sb.InodeTableSector)
	binary.LittleEndian.PutUint32(b[44:48], sb.InodeBitmapSector)
	binary.LittleEndian.PutUint32(b[48:52], sb.BlockBitmapSector)
	binary.LittleEndian.PutUint32(b[52:56], sb.DataBlockSector)
	return b
}

// inodesPerSector is how many packed inode records fit in one sector.
func (sb *superblock) inodesPerSector() uint32 {
	return SectorSize / inodeSize
}
