package t2fs

import (
	"encoding/binary"
	"fmt"
)

// blockVisitor is invoked once per logical block position of an inode, in
// increasing logical-index order. Its return value drives the walk, the
// same three-way contract the directory, read and write paths all share:
//
//	0   continue to the next block
//	>0  stop the walk immediately, successfully
//	<0  stop the walk immediately; err holds the reason
//
// A zero blockNum passed to visit means the position is a hole that was
// never allocated; visitors that care (directory search, emptiness checks)
// simply skip it, while a writer treats it as "needs allocateNewBlock".
type blockVisitor func(logicalIndex uint32, blockNum uint32) (int, error)

func (fs *FileSystem) pointersPerBlock() uint32 {
	return fs.cache.blockSize() / 4
}

// iterateInodeBlocks walks every logical block position of in that actually
// falls within its allocated extent (in.NumBlocks): the direct pointers
// first, then each indirection level in turn. Blocks are always grown
// contiguously from logical index 0, so nothing meaningful ever lives past
// NumBlocks; stopping there keeps a scan of a small or empty inode cheap
// instead of descending into entirely-hole indirect levels that can span
// millions of phantom positions.
func (fs *FileSystem) iterateInodeBlocks(in *inode, visit blockVisitor) (int, error) {
	limit := in.NumBlocks
	logical := uint32(0)
	for i := 0; i < NumDirect && logical < limit; i++ {
		code, err := visit(logical, in.Pointers[i])
		if code != 0 || err != nil {
			return code, err
		}
		logical++
	}
	ppb := fs.pointersPerBlock()
	for lvl := 1; lvl <= NumIndirectLvl && logical < limit; lvl++ {
		code, err := fs.walkIndirect(in.Pointers[NumDirect+lvl-1], lvl, &logical, ppb, visit, limit)
		if code != 0 || err != nil {
			return code, err
		}
	}
	return 0, nil
}

// walkIndirect recursively visits the subtree rooted at block, stopping once
// logical reaches limit. level counts down to 0, at which point block itself
// is a data block handed to visit.
func (fs *FileSystem) walkIndirect(block uint32, level int, logical *uint32, ppb uint32, visit blockVisitor, limit uint32) (int, error) {
	if *logical >= limit {
		return 0, nil
	}
	if level == 0 {
		code, err := visit(*logical, block)
		*logical++
		return code, err
	}
	if block == 0 {
		span := spanAtLevel(level, ppb)
		end := *logical + span
		if end > limit {
			end = limit
		}
		for *logical < end {
			code, err := visit(*logical, 0)
			*logical++
			if code != 0 || err != nil {
				return code, err
			}
		}
		return 0, nil
	}
	buf := make([]byte, fs.cache.blockSize())
	if err := fs.cache.ReadBlock(block, buf); err != nil {
		return -1, err
	}
	for i := uint32(0); i < ppb && *logical < limit; i++ {
		child := binary.LittleEndian.Uint32(buf[i*4 : i*4+4])
		code, err := fs.walkIndirect(child, level-1, logical, ppb, visit, limit)
		if code != 0 || err != nil {
			return code, err
		}
	}
	return 0, nil
}

func spanAtLevel(level int, ppb uint32) uint32 {
	span := uint32(1)
	for i := 0; i < level; i++ {
		span *= ppb
	}
	return span
}

// getNthBlock returns the block number at logical position n of in, or 0 if
// that position is a hole that was never allocated.
func (fs *FileSystem) getNthBlock(in *inode, n uint32) (uint32, error) {
	ppb := fs.pointersPerBlock()
	if n < NumDirect {
		return in.Pointers[n], nil
	}
	n -= NumDirect
	span := ppb
	for lvl := 1; lvl <= NumIndirectLvl; lvl++ {
		if n < span {
			root := in.Pointers[NumDirect+lvl-1]
			if root == 0 {
				return 0, nil
			}
			return fs.readPointerTree(root, lvl, n, span/ppb, ppb)
		}
		n -= span
		span *= ppb
	}
	return 0, fmt.Errorf("%w: logical block index out of range", ErrOffsetOutOfRange)
}

func (fs *FileSystem) readPointerTree(block uint32, level int, n, childSpan, ppb uint32) (uint32, error) {
	buf := make([]byte, fs.cache.blockSize())
	if err := fs.cache.ReadBlock(block, buf); err != nil {
		return 0, err
	}
	i := n / childSpan
	rem := n % childSpan
	off := i * 4
	child := binary.LittleEndian.Uint32(buf[off : off+4])
	if level == 1 || child == 0 {
		return child, nil
	}
	return fs.readPointerTree(child, level-1, rem, childSpan/ppb, ppb)
}

// allocateNewBlock ensures a block exists at logical position n of in,
// allocating intermediate indirect blocks and the final data block as
// needed. It mutates in.Pointers in place; the caller persists the inode.
func (fs *FileSystem) allocateNewBlock(in *inode, n uint32) (uint32, error) {
	ppb := fs.pointersPerBlock()
	if n < NumDirect {
		if in.Pointers[n] == 0 {
			b, err := fs.findNewBlock()
			if err != nil {
				return 0, err
			}
			in.Pointers[n] = b
		}
		return in.Pointers[n], nil
	}
	n -= NumDirect
	span := ppb
	for lvl := 1; lvl <= NumIndirectLvl; lvl++ {
		if n < span {
			rootIdx := NumDirect + lvl - 1
			if in.Pointers[rootIdx] == 0 {
				b, err := fs.allocateZeroedBlock()
				if err != nil {
					return 0, err
				}
				in.Pointers[rootIdx] = b
			}
			return fs.allocateInTree(in.Pointers[rootIdx], lvl, n, span/ppb, ppb)
		}
		n -= span
		span *= ppb
	}
	return 0, fmt.Errorf("%w: logical block index out of range", ErrOffsetOutOfRange)
}

func (fs *FileSystem) allocateZeroedBlock() (uint32, error) {
	b, err := fs.findNewBlock()
	if err != nil {
		return 0, err
	}
	buf := make([]byte, fs.cache.blockSize())
	if err := fs.cache.WriteBlock(b, buf); err != nil {
		return 0, err
	}
	return b, nil
}

func (fs *FileSystem) allocateInTree(block uint32, level int, n, childSpan, ppb uint32) (uint32, error) {
	buf := make([]byte, fs.cache.blockSize())
	if err := fs.cache.ReadBlock(block, buf); err != nil {
		return 0, err
	}
	i := n / childSpan
	rem := n % childSpan
	off := i * 4
	child := binary.LittleEndian.Uint32(buf[off : off+4])
	if level == 1 {
		if child != 0 {
			return child, nil
		}
		b, err := fs.findNewBlock()
		if err != nil {
			return 0, err
		}
		binary.LittleEndian.PutUint32(buf[off:off+4], b)
		if err := fs.cache.WriteBlock(block, buf); err != nil {
			return 0, err
		}
		return b, nil
	}
	if child == 0 {
		b, err := fs.allocateZeroedBlock()
		if err != nil {
			return 0, err
		}
		binary.LittleEndian.PutUint32(buf[off:off+4], b)
		if err := fs.cache.WriteBlock(block, buf); err != nil {
			return 0, err
		}
		child = b
	}
	return fs.allocateInTree(child, level-1, rem, childSpan/ppb, ppb)
}

// deallocateBlocks frees every logical block of inode n from index
// keepBlocks onward. keepBlocks < 0 is treated as 0, freeing the whole
// file; decHLCount uses that form to reclaim a deleted inode's data, and
// truncate uses the positive form to shrink a file in place.
func (fs *FileSystem) deallocateBlocks(n uint32, keepBlocks int) error {
	in, err := fs.readInode(n)
	if err != nil {
		return err
	}
	if keepBlocks < 0 {
		keepBlocks = 0
	}
	keep := uint32(keepBlocks)
	if keep >= in.NumBlocks {
		return nil
	}

	for i := uint32(0); i < NumDirect; i++ {
		if i < keep {
			continue
		}
		if in.Pointers[i] != 0 {
			if err := fs.blockBitmap.clear(in.Pointers[i]); err != nil {
				return err
			}
			in.Pointers[i] = 0
		}
	}

	ppb := fs.pointersPerBlock()
	base := uint32(NumDirect)
	span := ppb
	for lvl := 1; lvl <= NumIndirectLvl; lvl++ {
		rootIdx := NumDirect + lvl - 1
		root := in.Pointers[rootIdx]
		if root != 0 {
			var localKeep uint32
			if keep > base {
				localKeep = keep - base
			}
			emptied, err := fs.deallocateSubtree(root, lvl, localKeep, span)
			if err != nil {
				return err
			}
			if emptied {
				if err := fs.blockBitmap.clear(root); err != nil {
					return err
				}
				in.Pointers[rootIdx] = 0
			}
		}
		base += span
		span *= ppb
	}

	if keep == 0 {
		in.NumBlocks = 0
		in.BytesSize = 0
	} else {
		in.NumBlocks = keep
		maxSize := uint64(keep) * uint64(fs.cache.blockSize())
		if in.BytesSize > maxSize {
			in.BytesSize = maxSize
		}
	}
	return fs.writeInode(n, in)
}

// deallocateSubtree frees leaves and intermediate pointer blocks within the
// subtree rooted at block for logical positions >= keep, relative to the
// subtree's own base. span is the number of leaves (data blocks) reachable
// through block. It reports whether the subtree ended up fully empty so the
// caller can free block itself too.
func (fs *FileSystem) deallocateSubtree(block uint32, level int, keep, span uint32) (bool, error) {
	ppb := fs.pointersPerBlock()
	childSpan := span / ppb
	buf := make([]byte, fs.cache.blockSize())
	if err := fs.cache.ReadBlock(block, buf); err != nil {
		return false, err
	}
	changed := false
	allEmpty := true
	for i := uint32(0); i < ppb; i++ {
		childBase := i * childSpan
		off := i * 4
		child := binary.LittleEndian.Uint32(buf[off : off+4])
		if child == 0 {
			if childBase < keep {
				allEmpty = false
			}
			continue
		}
		if childBase+childSpan <= keep {
			allEmpty = false // fully below the keep boundary, left untouched
			continue
		}
		var childKeep uint32
		if keep > childBase {
			childKeep = keep - childBase
		}
		if level == 1 {
			if childKeep == 0 {
				if err := fs.blockBitmap.clear(child); err != nil {
					return false, err
				}
				binary.LittleEndian.PutUint32(buf[off:off+4], 0)
				changed = true
			} else {
				allEmpty = false
			}
			continue
		}
		emptied, err := fs.deallocateSubtree(child, level-1, childKeep, childSpan)
		if err != nil {
			return false, err
		}
		if emptied {
			if err := fs.blockBitmap.clear(child); err != nil {
				return false, err
			}
			binary.LittleEndian.PutUint32(buf[off:off+4], 0)
			changed = true
		} else {
			allEmpty = false
		}
	}
	if changed {
		if err := fs.cache.WriteBlock(block, buf); err != nil {
			return false, err
		}
	}
	return allEmpty, nil
}
