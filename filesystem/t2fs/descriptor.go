package t2fs

import "sync"

// regularDescriptor is one open handle onto a regular file: which inode it
// refers to and where the next Read/Write will start.
type regularDescriptor struct {
	inUse  bool
	inode  uint32
	offset uint64
}

func (d regularDescriptor) kind() DescriptorType { return DescRegular }

// dirDescriptor is the filesystem's single open-directory handle. T2FS
// allows only one directory to be open for reading at a time.
type dirDescriptor struct {
	inUse bool
	inode uint32
	index int // next entry index ReadDirNext will return
}

func (d dirDescriptor) kind() DescriptorType { return DescDirectory }

// descriptorTable is the fixed-size handle pool: one directory slot plus
// MaxOpenRegular regular-file slots. Handles are small integers so the
// public API can hand callers a plain int, mirroring a classic fd table
// rather than a Go *os.File-like object.
type descriptorTable struct {
	mu      sync.Mutex
	dir     dirDescriptor
	regular [MaxOpenRegular]regularDescriptor
}

func newDescriptorTable() *descriptorTable {
	return &descriptorTable{}
}

// openRegular allocates the first free regular-file slot for inode and
// returns its handle.
func (t *descriptorTable) openRegular(inode uint32) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.regular {
		if !t.regular[i].inUse {
			t.regular[i] = regularDescriptor{inUse: true, inode: inode}
			return i, nil
		}
	}
	return -1, ErrTableFull
}

func (t *descriptorTable) find(fd int) (*regularDescriptor, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if fd < 0 || fd >= len(t.regular) || !t.regular[fd].inUse {
		return nil, ErrBadDescriptor
	}
	return &t.regular[fd], nil
}

func (t *descriptorTable) releaseRegular(fd int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if fd < 0 || fd >= len(t.regular) || !t.regular[fd].inUse {
		return ErrBadDescriptor
	}
	t.regular[fd] = regularDescriptor{}
	return nil
}

// openDirectory claims the single directory slot; it fails with ErrBusy if
// a directory is already open, matching the fixed one-slot table.
func (t *descriptorTable) openDirectory(inode uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.dir.inUse {
		return ErrBusy
	}
	t.dir = dirDescriptor{inUse: true, inode: inode}
	return nil
}

func (t *descriptorTable) directory() (*dirDescriptor, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.dir.inUse {
		return nil, ErrBadDescriptor
	}
	return &t.dir, nil
}

func (t *descriptorTable) releaseDirectory() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.dir.inUse {
		return ErrBadDescriptor
	}
	t.dir = dirDescriptor{}
	return nil
}

// closeAllForInode forcibly invalidates every descriptor pointing at
// inode, returning the kind of each one it closed. decHLCount and Rmdir
// call this right after they reclaim the inode's blocks, so any handle left open
// across a delete becomes a bad descriptor on its next use instead of
// reading freed data.
func (t *descriptorTable) closeAllForInode(inode uint32) []DescriptorType {
	t.mu.Lock()
	defer t.mu.Unlock()
	var closed []DescriptorType
	for i := range t.regular {
		if t.regular[i].inUse && t.regular[i].inode == inode {
			closed = append(closed, t.regular[i].kind())
			t.regular[i] = regularDescriptor{}
		}
	}
	if t.dir.inUse && t.dir.inode == inode {
		closed = append(closed, t.dir.kind())
		t.dir = dirDescriptor{}
	}
	return closed
}

// clampOffsets pulls every open regular descriptor's cursor back to
// newSize wherever it overran, the bookkeeping truncate needs to keep a
// concurrently-held handle from seeking past the new end of file.
func (t *descriptorTable) clampOffsets(inode uint32, newSize uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.regular {
		if t.regular[i].inUse && t.regular[i].inode == inode && t.regular[i].offset > newSize {
			t.regular[i].offset = newSize
		}
	}
}
