package t2fs

import (
	"fmt"

	"github.com/t2fs/t2fs/util/bitmap"
)

// bitmapRegion is a bitmap allocator: one bit per inode or per data block,
// addressed by bit index. Bit 0 is always reserved by the
// caller (inode 0, block 0) and never handed out by firstFree.
//
// Each operation round-trips a single byte through the sector cache via
// util/bitmap.Bitmap, so the allocator carries no full-bitmap state of its
// own; it only knows where its region starts and how many bits it covers.
type bitmapRegion struct {
	cache       *sectorCache
	startSector uint32
	numBits     uint32
}

func newBitmapRegion(cache *sectorCache, startSector, numBits uint32) *bitmapRegion {
	return &bitmapRegion{cache: cache, startSector: startSector, numBits: numBits}
}

func (r *bitmapRegion) locate(n uint32) (sector uint32, byteOffset int, bitInByte int) {
	byteIndex := n / 8
	sector = r.startSector + byteIndex/SectorSize
	byteOffset = int(byteIndex % SectorSize)
	bitInByte = int(n % 8)
	return
}

func (r *bitmapRegion) readByte(n uint32) (byte, uint32, int, error) {
	sector, byteOffset, bitInByte := r.locate(n)
	var buf [1]byte
	if err := r.cache.ReadSector(sector, byteOffset, 1, buf[:]); err != nil {
		return 0, sector, bitInByte, err
	}
	return buf[0], sector, bitInByte, nil
}

func (r *bitmapRegion) check(n uint32) (bool, error) {
	if n >= r.numBits {
		return false, fmt.Errorf("%w: bitmap index %d out of range (%d bits)", ErrInvalidArgument, n, r.numBits)
	}
	raw, _, bitInByte, err := r.readByte(n)
	if err != nil {
		return false, err
	}
	bm := bitmap.FromBytes([]byte{raw})
	return bm.IsSet(bitInByte)
}

func (r *bitmapRegion) set(n uint32) error {
	return r.setBit(n, true)
}

func (r *bitmapRegion) clear(n uint32) error {
	return r.setBit(n, false)
}

func (r *bitmapRegion) setBit(n uint32, value bool) error {
	if n >= r.numBits {
		return fmt.Errorf("%w: bitmap index %d out of range (%d bits)", ErrInvalidArgument, n, r.numBits)
	}
	raw, sector, bitInByte, err := r.readByte(n)
	if err != nil {
		return err
	}
	byteIndex := n / 8
	byteOffset := int(byteIndex % SectorSize)
	bm := bitmap.FromBytes([]byte{raw})
	if value {
		if err := bm.Set(bitInByte); err != nil {
			return err
		}
	} else {
		if err := bm.Clear(bitInByte); err != nil {
			return err
		}
	}
	return r.cache.WriteSector(sector, byteOffset, 1, bm.ToBytes())
}

// firstFree linearly scans from bit index 1 upward (index 0 is reserved)
// and returns the first clear bit, or 0 if the region is saturated.
func (r *bitmapRegion) firstFree() (uint32, error) {
	numBytes := (r.numBits + 7) / 8
	for byteIndex := uint32(0); byteIndex < numBytes; byteIndex++ {
		sector := r.startSector + byteIndex/SectorSize
		byteOffset := int(byteIndex % SectorSize)
		var buf [1]byte
		if err := r.cache.ReadSector(sector, byteOffset, 1, buf[:]); err != nil {
			return 0, err
		}
		if buf[0] == 0xff {
			continue
		}
		bm := bitmap.FromBytes(buf[:])
		for bit := 0; bit < 8; bit++ {
			n := byteIndex*8 + uint32(bit)
			if n == 0 || n >= r.numBits {
				continue
			}
			set, err := bm.IsSet(bit)
			if err != nil {
				return 0, err
			}
			if !set {
				return n, nil
			}
		}
	}
	return 0, nil
}

// countSet returns the number of bits in the region currently marked in-use,
// including the reserved bit 0.
func (r *bitmapRegion) countSet() (uint32, error) {
	numBytes := (r.numBits + 7) / 8
	var total uint32
	for byteIndex := uint32(0); byteIndex < numBytes; byteIndex++ {
		sector := r.startSector + byteIndex/SectorSize
		byteOffset := int(byteIndex % SectorSize)
		var buf [1]byte
		if err := r.cache.ReadSector(sector, byteOffset, 1, buf[:]); err != nil {
			return 0, err
		}
		if buf[0] == 0 {
			continue
		}
		bm := bitmap.FromBytes(buf[:])
		total += uint32(bm.CountSet())
	}
	return total, nil
}

// findNewBlock allocates and marks in-use the first free data block.
func (fs *FileSystem) findNewBlock() (uint32, error) {
	n, err := fs.blockBitmap.firstFree()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, ErrNoSpace
	}
	if err := fs.blockBitmap.set(n); err != nil {
		return 0, err
	}
	return n, nil
}

// useNewInode allocates the first free inode, stamps a zeroed record of the
// given type and marks it in-use.
func (fs *FileSystem) useNewInode(t InodeType) (uint32, error) {
	n, err := fs.inodeBitmap.firstFree()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, ErrNoSpace
	}
	in := &inode{Type: t}
	if err := fs.writeInode(n, in); err != nil {
		return 0, err
	}
	if err := fs.inodeBitmap.set(n); err != nil {
		return 0, err
	}
	return n, nil
}
