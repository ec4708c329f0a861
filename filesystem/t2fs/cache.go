package t2fs

import (
	"fmt"

	"github.com/t2fs/t2fs/device"
)

// sectorCache is the serialization boundary between the device's fixed
// 256-byte sector interface and T2FS's variable block size. It holds no
// state beyond partition geometry: every read/write round-trips through
// the underlying device, so "cache" names the boundary, not a memory cache.
type sectorCache struct {
	dev             *device.Device
	firstSector     uint32
	numSectors      uint32
	blocksOffset    uint32 // partition-relative sector offset of the data block region
	sectorsPerBlock uint32
	numBlocks       uint32
}

func newSectorCache(dev *device.Device, firstSector, numSectors uint32) *sectorCache {
	return &sectorCache{dev: dev, firstSector: firstSector, numSectors: numSectors}
}

// configure wires in the block-region geometry once the superblock has been
// read or installed; before this is called only ReadSector/WriteSector work.
func (c *sectorCache) configure(blocksOffset, sectorsPerBlock, numBlocks uint32) {
	c.blocksOffset = blocksOffset
	c.sectorsPerBlock = sectorsPerBlock
	c.numBlocks = numBlocks
}

func (c *sectorCache) blockSize() uint32 {
	return c.sectorsPerBlock * device.SectorSize
}

// ReadSector copies size bytes, starting at offset within the partition
// relative sector, into dst.
func (c *sectorCache) ReadSector(sector uint32, offset, size int, dst []byte) error {
	if sector >= c.numSectors {
		return fmt.Errorf("%w: sector %d out of range (%d in partition)", ErrInvalidArgument, sector, c.numSectors)
	}
	if offset < 0 || size < 0 || offset+size > device.SectorSize {
		return fmt.Errorf("%w: sector slice [%d:%d+%d] exceeds sector size %d", ErrInvalidArgument, offset, offset, size, device.SectorSize)
	}
	buf := make([]byte, device.SectorSize)
	if err := c.dev.ReadSector(c.firstSector+sector, buf); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	copy(dst, buf[offset:offset+size])
	return nil
}

// WriteSector writes size bytes from src into offset within the partition
// relative sector, preserving the rest of the sector's contents.
func (c *sectorCache) WriteSector(sector uint32, offset, size int, src []byte) error {
	if sector >= c.numSectors {
		return fmt.Errorf("%w: sector %d out of range (%d in partition)", ErrInvalidArgument, sector, c.numSectors)
	}
	if offset < 0 || size < 0 || offset+size > device.SectorSize {
		return fmt.Errorf("%w: sector slice [%d:%d+%d] exceeds sector size %d", ErrInvalidArgument, offset, offset, size, device.SectorSize)
	}
	buf := make([]byte, device.SectorSize)
	if err := c.dev.ReadSector(c.firstSector+sector, buf); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	copy(buf[offset:offset+size], src)
	if err := c.dev.WriteSector(c.firstSector+sector, buf); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	return nil
}

// ReadBlock reads one full logical block into dst, which must be exactly
// blockSize() bytes.
func (c *sectorCache) ReadBlock(block uint32, dst []byte) error {
	if block >= c.numBlocks {
		return fmt.Errorf("%w: block %d out of range (%d total)", ErrInvalidArgument, block, c.numBlocks)
	}
	if uint32(len(dst)) != c.blockSize() {
		return fmt.Errorf("%w: dst must be %d bytes, got %d", ErrInvalidArgument, c.blockSize(), len(dst))
	}
	baseSector := c.blocksOffset + block*c.sectorsPerBlock
	for i := uint32(0); i < c.sectorsPerBlock; i++ {
		if err := c.ReadSector(baseSector+i, 0, device.SectorSize, dst[i*device.SectorSize:(i+1)*device.SectorSize]); err != nil {
			return err
		}
	}
	return nil
}

// WriteBlock writes one full logical block from src, which must be exactly
// blockSize() bytes.
func (c *sectorCache) WriteBlock(block uint32, src []byte) error {
	if block >= c.numBlocks {
		return fmt.Errorf("%w: block %d out of range (%d total)", ErrInvalidArgument, block, c.numBlocks)
	}
	if uint32(len(src)) != c.blockSize() {
		return fmt.Errorf("%w: src must be %d bytes, got %d", ErrInvalidArgument, c.blockSize(), len(src))
	}
	baseSector := c.blocksOffset + block*c.sectorsPerBlock
	for i := uint32(0); i < c.sectorsPerBlock; i++ {
		if err := c.WriteSector(baseSector+i, 0, device.SectorSize, src[i*device.SectorSize:(i+1)*device.SectorSize]); err != nil {
			return err
		}
	}
	return nil
}
