package t2fs

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// dirEntrySize is the fixed on-disk size of one directory record: the
// child's inode number (4 bytes) followed by a NUL-padded name (NameMax
// bytes). A zero inode number marks a free slot.
const dirEntrySize = 4 + NameMax

type dirEntry struct {
	Inode uint32
	Name  string
}

func dirEntryFromBytes(b []byte) dirEntry {
	inode := binary.LittleEndian.Uint32(b[0:4])
	nameBytes := b[4:dirEntrySize]
	n := bytes.IndexByte(nameBytes, 0)
	if n < 0 {
		n = len(nameBytes)
	}
	return dirEntry{Inode: inode, Name: string(nameBytes[:n])}
}

func (e dirEntry) toBytes() ([]byte, error) {
	if len(e.Name) >= NameMax {
		return nil, ErrNameTooLong
	}
	b := make([]byte, dirEntrySize)
	binary.LittleEndian.PutUint32(b[0:4], e.Inode)
	copy(b[4:dirEntrySize], e.Name)
	return b, nil
}

func (fs *FileSystem) entriesPerBlock() uint32 {
	return fs.cache.blockSize() / dirEntrySize
}

// dirEntryLocation pins down one directory record to a block and its
// byte offset within that block, so callers can read-modify-write it.
type dirEntryLocation struct {
	block  uint32
	offset int
	entry  dirEntry
}

// scanDirectory walks the data blocks of directory inode dirIno, invoking
// visit for every occupied slot it finds. visit follows the same
// 0/err/stop contract as blockVisitor: a non-zero return or error halts
// the scan and is propagated to the caller.
func (fs *FileSystem) scanDirectory(dirIno uint32, visit func(loc dirEntryLocation) (int, error)) (int, error) {
	in, err := fs.readInode(dirIno)
	if err != nil {
		return 0, err
	}
	if in.Type != TypeDirectory {
		return 0, ErrNotDirectory
	}
	epb := fs.entriesPerBlock()
	return fs.iterateInodeBlocks(in, func(logical, blockNum uint32) (int, error) {
		if blockNum == 0 {
			return 0, nil
		}
		buf := make([]byte, fs.cache.blockSize())
		if err := fs.cache.ReadBlock(blockNum, buf); err != nil {
			return -1, err
		}
		for i := uint32(0); i < epb; i++ {
			off := int(i) * dirEntrySize
			e := dirEntryFromBytes(buf[off : off+dirEntrySize])
			if e.Inode == 0 {
				continue
			}
			code, err := visit(dirEntryLocation{block: blockNum, offset: off, entry: e})
			if code != 0 || err != nil {
				return code, err
			}
		}
		return 0, nil
	})
}

// getInodeByName resolves one path component to a child inode number
// within directory dirIno.
func (fs *FileSystem) getInodeByName(dirIno uint32, name string) (uint32, error) {
	var found uint32
	code, err := fs.scanDirectory(dirIno, func(loc dirEntryLocation) (int, error) {
		if loc.entry.Name == name {
			found = loc.entry.Inode
			return 1, nil
		}
		return 0, nil
	})
	if err != nil {
		return 0, err
	}
	if code == 0 {
		return 0, ErrNotFound
	}
	return found, nil
}

// getNameByInode is the reverse lookup, used when reconstructing a path
// from an inode number (e.g. for getcwd-style queries). It skips the "."
// and ".." bookkeeping entries so a self-referencing root doesn't match.
func (fs *FileSystem) getNameByInode(dirIno, childIno uint32) (string, error) {
	var found string
	code, err := fs.scanDirectory(dirIno, func(loc dirEntryLocation) (int, error) {
		if loc.entry.Name == "." || loc.entry.Name == ".." {
			return 0, nil
		}
		if loc.entry.Inode == childIno {
			found = loc.entry.Name
			return 1, nil
		}
		return 0, nil
	})
	if err != nil {
		return "", err
	}
	if code == 0 {
		return "", ErrNotFound
	}
	return found, nil
}

// insertEntry adds a (name -> childIno) record to directory dirIno,
// reusing the first free slot it finds and allocating a new block only
// when every existing block is full.
func (fs *FileSystem) insertEntry(dirIno uint32, name string, childIno uint32) error {
	if len(name) == 0 || len(name) >= NameMax {
		return ErrNameTooLong
	}
	in, err := fs.readInode(dirIno)
	if err != nil {
		return err
	}
	if in.Type != TypeDirectory {
		return ErrNotDirectory
	}

	epb := fs.entriesPerBlock()
	inserted := false
	code, err := fs.iterateInodeBlocks(in, func(logical, blockNum uint32) (int, error) {
		if blockNum == 0 {
			return 0, nil
		}
		buf := make([]byte, fs.cache.blockSize())
		if err := fs.cache.ReadBlock(blockNum, buf); err != nil {
			return -1, err
		}
		for i := uint32(0); i < epb; i++ {
			off := int(i) * dirEntrySize
			e := dirEntryFromBytes(buf[off : off+dirEntrySize])
			if e.Inode != 0 {
				if e.Name == name {
					return -1, ErrExists
				}
				continue
			}
			rec, err := dirEntry{Inode: childIno, Name: name}.toBytes()
			if err != nil {
				return -1, err
			}
			copy(buf[off:off+dirEntrySize], rec)
			if err := fs.cache.WriteBlock(blockNum, buf); err != nil {
				return -1, err
			}
			inserted = true
			return 1, nil
		}
		return 0, nil
	})
	if err != nil {
		return err
	}
	if code != 0 && inserted {
		return nil
	}

	// No free slot in any existing block: grow the directory by one block.
	logicalBlock := in.NumBlocks
	blockNum, err := fs.allocateNewBlock(in, logicalBlock)
	if err != nil {
		return err
	}
	in.NumBlocks++
	in.BytesSize = uint64(in.NumBlocks) * uint64(fs.cache.blockSize())

	buf := make([]byte, fs.cache.blockSize())
	rec, err := dirEntry{Inode: childIno, Name: name}.toBytes()
	if err != nil {
		return err
	}
	copy(buf[0:dirEntrySize], rec)
	if err := fs.cache.WriteBlock(blockNum, buf); err != nil {
		return err
	}
	return fs.writeInode(dirIno, in)
}

// deleteEntry removes the record named name from directory dirIno.
func (fs *FileSystem) deleteEntry(dirIno uint32, name string) error {
	var target *dirEntryLocation
	code, err := fs.scanDirectory(dirIno, func(loc dirEntryLocation) (int, error) {
		if loc.entry.Name == name {
			l := loc
			target = &l
			return 1, nil
		}
		return 0, nil
	})
	if err != nil {
		return err
	}
	if code == 0 || target == nil {
		return ErrNotFound
	}
	buf := make([]byte, fs.cache.blockSize())
	if err := fs.cache.ReadBlock(target.block, buf); err != nil {
		return err
	}
	for i := 0; i < dirEntrySize; i++ {
		buf[target.offset+i] = 0
	}
	return fs.cache.WriteBlock(target.block, buf)
}

// dirDeletable reports whether directory dirIno has no live entries besides
// the "." and ".." bookkeeping records every directory carries, i.e. it is
// safe to rmdir.
func (fs *FileSystem) dirDeletable(dirIno uint32) (bool, error) {
	code, err := fs.scanDirectory(dirIno, func(loc dirEntryLocation) (int, error) {
		if loc.entry.Name == "." || loc.entry.Name == ".." {
			return 0, nil
		}
		return 1, nil
	})
	if err != nil {
		return false, err
	}
	return code == 0, nil
}

// readDir returns every live (name, inode, type) triple in directory
// dirIno, in on-disk order.
type DirEntryInfo struct {
	Name  string
	Inode uint32
	Type  InodeType
}

func (fs *FileSystem) readDirEntries(dirIno uint32) ([]DirEntryInfo, error) {
	var out []DirEntryInfo
	_, err := fs.scanDirectory(dirIno, func(loc dirEntryLocation) (int, error) {
		childIn, err := fs.readInode(loc.entry.Inode)
		if err != nil {
			return -1, fmt.Errorf("%w: reading directory entry %q", err, loc.entry.Name)
		}
		out = append(out, DirEntryInfo{Name: loc.entry.Name, Inode: loc.entry.Inode, Type: childIn.Type})
		return 0, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
