package t2fs

import (
	"encoding/binary"
	"fmt"

	"github.com/sirupsen/logrus"
)

// inodeSize is the fixed on-disk size, in bytes, of one inode record:
// type(1) + hlCount(2) + bytesSize(8) + numBlocks(4) + NumPointers*4.
const inodeSize = 1 + 2 + 8 + 4 + NumPointers*4

// inode is the in-memory form of one inode record.
type inode struct {
	Type      InodeType
	HLCount   uint16
	BytesSize uint64
	NumBlocks uint32
	Pointers  [NumPointers]uint32
}

func inodeFromBytes(b []byte) (*inode, error) {
	if len(b) < inodeSize {
		return nil, fmt.Errorf("%w: inode record too short: %d bytes", ErrCorrupt, len(b))
	}
	in := &inode{
		Type:      InodeType(b[0]),
		HLCount:   binary.LittleEndian.Uint16(b[1:3]),
		BytesSize: binary.LittleEndian.Uint64(b[3:11]),
		NumBlocks: binary.LittleEndian.Uint32(b[11:15]),
	}
	for i := 0; i < NumPointers; i++ {
		off := 15 + i*4
		in.Pointers[i] = binary.LittleEndian.Uint32(b[off : off+4])
	}
	return in, nil
}

func (in *inode) toBytes() []byte {
	b := make([]byte, inodeSize)
	b[0] = byte(in.Type)
	binary.LittleEndian.PutUint16(b[1:3], in.HLCount)
	binary.LittleEndian.PutUint64(b[3:11], in.BytesSize)
	binary.LittleEndian.PutUint32(b[11:15], in.NumBlocks)
	for i, p := range in.Pointers {
		off := 15 + i*4
		binary.LittleEndian.PutUint32(b[off:off+4], p)
	}
	return b
}

// readInode loads inode number n. Inode 0 is reserved and never valid.
func (fs *FileSystem) readInode(n uint32) (*inode, error) {
	if n == 0 || n >= fs.sb.NumInodes {
		return nil, fmt.Errorf("%w: inode %d out of range", ErrInvalidArgument, n)
	}
	sector := fs.sb.InodeTableSector + n/fs.sb.inodesPerSector()
	byteOff := int(n%fs.sb.inodesPerSector()) * inodeSize
	buf := make([]byte, inodeSize)
	if err := fs.cache.ReadSector(sector, byteOff, inodeSize, buf); err != nil {
		return nil, err
	}
	return inodeFromBytes(buf)
}

// writeInode persists inode number n.
func (fs *FileSystem) writeInode(n uint32, in *inode) error {
	if n == 0 || n >= fs.sb.NumInodes {
		return fmt.Errorf("%w: inode %d out of range", ErrInvalidArgument, n)
	}
	sector := fs.sb.InodeTableSector + n/fs.sb.inodesPerSector()
	byteOff := int(n%fs.sb.inodesPerSector()) * inodeSize
	return fs.cache.WriteSector(sector, byteOff, inodeSize, in.toBytes())
}

// incHLCount bumps the hard link count of inode n.
func (fs *FileSystem) incHLCount(n uint32) error {
	in, err := fs.readInode(n)
	if err != nil {
		return err
	}
	in.HLCount++
	return fs.writeInode(n, in)
}

// decHLCount drops the hard link count of inode n, freeing it entirely once
// the count reaches zero.
func (fs *FileSystem) decHLCount(n uint32) error {
	in, err := fs.readInode(n)
	if err != nil {
		return err
	}
	if in.HLCount == 0 {
		return fmt.Errorf("%w: inode %d already has zero hard links", ErrCorrupt, n)
	}
	in.HLCount--
	if in.HLCount > 0 {
		return fs.writeInode(n, in)
	}

	fs.log.WithField("inode", n).Debug("t2fs: last reference dropped, freeing inode")
	if err := fs.deallocateBlocks(n, -1); err != nil {
		return err
	}
	if closed := fs.descriptors.closeAllForInode(n); len(closed) > 0 {
		fs.log.WithFields(logrus.Fields{"inode": n, "closed": closed}).Debug("t2fs: invalidated open descriptors for freed inode")
	}
	*in = inode{}
	if err := fs.writeInode(n, in); err != nil {
		return err
	}
	return fs.inodeBitmap.clear(n)
}
