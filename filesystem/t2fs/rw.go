package t2fs

import "fmt"

// readData gathers len(dst) bytes starting at offset from in's data blocks.
// offset+len(dst) must not exceed in.BytesSize; holes read back as zeroes.
func (fs *FileSystem) readData(in *inode, offset uint64, dst []byte) error {
	if offset+uint64(len(dst)) > in.BytesSize {
		return fmt.Errorf("%w: read [%d:%d) beyond size %d", ErrOffsetOutOfRange, offset, offset+uint64(len(dst)), in.BytesSize)
	}
	blockSize := uint64(fs.cache.blockSize())
	remaining := dst
	pos := offset
	for len(remaining) > 0 {
		logicalBlock := uint32(pos / blockSize)
		inBlock := pos % blockSize
		n := blockSize - inBlock
		if n > uint64(len(remaining)) {
			n = uint64(len(remaining))
		}
		blockNum, err := fs.getNthBlock(in, logicalBlock)
		if err != nil {
			return err
		}
		if blockNum == 0 {
			for i := uint64(0); i < n; i++ {
				remaining[i] = 0
			}
		} else {
			buf := make([]byte, blockSize)
			if err := fs.cache.ReadBlock(blockNum, buf); err != nil {
				return err
			}
			copy(remaining[:n], buf[inBlock:inBlock+n])
		}
		remaining = remaining[n:]
		pos += n
	}
	return nil
}

// writeData scatters src into inodeNum's data blocks starting at offset,
// allocating new blocks and growing the inode's recorded size as needed.
// A write starting past the current end of file extends it; the gap reads
// back as zeroes rather than being explicitly hole-punched, then persists
// the inode.
func (fs *FileSystem) writeData(inodeNum uint32, in *inode, offset uint64, src []byte) error {
	blockSize := uint64(fs.cache.blockSize())
	remaining := src
	pos := offset
	for len(remaining) > 0 {
		logicalBlock := uint32(pos / blockSize)
		inBlock := pos % blockSize
		n := blockSize - inBlock
		if n > uint64(len(remaining)) {
			n = uint64(len(remaining))
		}
		blockNum, err := fs.allocateNewBlock(in, logicalBlock)
		if err != nil {
			return err
		}
		if logicalBlock+1 > in.NumBlocks {
			in.NumBlocks = logicalBlock + 1
		}
		buf := make([]byte, blockSize)
		if inBlock != 0 || n != blockSize {
			if err := fs.cache.ReadBlock(blockNum, buf); err != nil {
				return err
			}
		}
		copy(buf[inBlock:inBlock+n], remaining[:n])
		if err := fs.cache.WriteBlock(blockNum, buf); err != nil {
			return err
		}
		remaining = remaining[n:]
		pos += n
	}
	if pos > in.BytesSize {
		in.BytesSize = pos
	}
	return fs.writeInode(inodeNum, in)
}
