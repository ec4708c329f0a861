// Package t2fs implements the on-disk filesystem engine: superblock,
// bitmap allocation, inode I/O, the indirect-block tree, directories, path
// resolution and the descriptor table described by device.Device and
// partition/mbr. FileSystem is the package's single exported entry point.
package t2fs

import (
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/t2fs/t2fs/device"
	"github.com/t2fs/t2fs/partition/mbr"
)

// FileSystem is one mounted T2FS partition: the geometry read from its
// superblock, the two bitmap allocators, the fixed descriptor table and
// the current working directory.
type FileSystem struct {
	dev       *device.Device
	partition mbr.Partition

	cache *sectorCache
	sb    *superblock

	inodeBitmap *bitmapRegion
	blockBitmap *bitmapRegion
	descriptors *descriptorTable

	cwdInode uint32

	log   *logrus.Entry
	runID uuid.UUID
}

func ceilDiv(a, b uint32) uint32 {
	return (a + b - 1) / b
}

// Format lays out a fresh T2FS filesystem within part on dev: superblock,
// inode table, both bitmaps, and a root directory containing "." and "..".
// sectorsPerBlock of 0 defaults to 4 (a 1024-byte block on a 256-byte
// sector device); any other value must fall within [1,128]. part must hold
// at least 2*sectorsPerBlock + 4 sectors.
func Format(dev *device.Device, part mbr.Partition, sectorsPerBlock uint16, log *logrus.Entry) (*FileSystem, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if sectorsPerBlock == 0 {
		sectorsPerBlock = 4
	}
	if sectorsPerBlock > 128 {
		return nil, fmt.Errorf("%w: sectors_per_block %d outside [1,128]", ErrInvalidArgument, sectorsPerBlock)
	}
	totalSectors := part.SectorCount()
	if totalSectors == 0 {
		return nil, fmt.Errorf("%w: empty partition", ErrInvalidArgument)
	}
	if minSectors := 2*uint32(sectorsPerBlock) + 4; totalSectors < minSectors {
		return nil, fmt.Errorf("%w: partition of %d sectors smaller than minimum %d for sectors_per_block=%d",
			ErrInvalidArgument, totalSectors, minSectors, sectorsPerBlock)
	}

	runID := uuid.New()
	log = log.WithField("format_run", runID.String())

	const reservedSectors = 1 // superblock occupies sector 0 of the partition
	numInodes := totalSectors / 8
	if numInodes < 16 {
		numInodes = 16
	}
	inodeTableSectors := ceilDiv(numInodes, SectorSize/inodeSize)
	inodeBitmapSectors := ceilDiv(ceilDiv(numInodes, 8), SectorSize)

	overhead := reservedSectors + inodeTableSectors + inodeBitmapSectors
	if overhead >= totalSectors {
		return nil, fmt.Errorf("%w: partition too small for %d inodes", ErrNoSpace, numInodes)
	}
	remaining := totalSectors - overhead
	blockBitmapSectors := ceilDiv(ceilDiv(remaining/uint32(sectorsPerBlock), 8), SectorSize)
	if blockBitmapSectors >= remaining {
		return nil, fmt.Errorf("%w: partition too small for any data blocks", ErrNoSpace)
	}
	numBlocks := (remaining - blockBitmapSectors) / uint32(sectorsPerBlock)
	if numBlocks == 0 {
		return nil, fmt.Errorf("%w: partition too small for any data blocks", ErrNoSpace)
	}

	sb := &superblock{
		SectorsPerBlock:      sectorsPerBlock,
		SectorSize:           SectorSize,
		BlockSize:            uint32(sectorsPerBlock) * SectorSize,
		PartitionFirstSector: part.FirstSector,
		TotalSectors:         totalSectors,
		NumBlocks:            numBlocks,
		NumInodes:            numInodes,
		InodeTableSector:     reservedSectors,
		InodeBitmapSector:    reservedSectors + inodeTableSectors,
		BlockBitmapSector:    reservedSectors + inodeTableSectors + inodeBitmapSectors,
		DataBlockSector:      reservedSectors + inodeTableSectors + inodeBitmapSectors + blockBitmapSectors,
	}

	cache := newSectorCache(dev, part.FirstSector, totalSectors)
	cache.configure(sb.DataBlockSector, uint32(sectorsPerBlock), numBlocks)

	fs := &FileSystem{
		dev:         dev,
		partition:   part,
		cache:       cache,
		sb:          sb,
		inodeBitmap: newBitmapRegion(cache, sb.InodeBitmapSector, numInodes),
		blockBitmap: newBitmapRegion(cache, sb.BlockBitmapSector, numBlocks),
		descriptors: newDescriptorTable(),
		log:         log,
		runID:       runID,
	}

	zero := make([]byte, SectorSize)
	for s := sb.InodeTableSector; s < sb.DataBlockSector; s++ {
		if err := cache.WriteSector(s, 0, SectorSize, zero); err != nil {
			return nil, fmt.Errorf("t2fs: zeroing metadata region: %w", err)
		}
	}
	if err := cache.WriteSector(0, 0, superblockSize, sb.toBytes()); err != nil {
		return nil, fmt.Errorf("t2fs: writing superblock: %w", err)
	}
	if err := fs.inodeBitmap.set(0); err != nil {
		return nil, err
	}
	if err := fs.blockBitmap.set(0); err != nil {
		return nil, err
	}

	rootIno, err := fs.useNewInode(TypeDirectory)
	if err != nil {
		return nil, err
	}
	if rootIno != RootInode {
		return nil, fmt.Errorf("%w: root allocated as inode %d, expected %d", ErrCorrupt, rootIno, RootInode)
	}
	root, err := fs.readInode(rootIno)
	if err != nil {
		return nil, err
	}
	root.HLCount = 2 // "." plus the conceptual reference that mounts it
	if err := fs.writeInode(rootIno, root); err != nil {
		return nil, err
	}
	fs.cwdInode = rootIno
	if err := fs.insertEntry(rootIno, ".", rootIno); err != nil {
		return nil, err
	}
	if err := fs.insertEntry(rootIno, "..", rootIno); err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"num_inodes": numInodes,
		"num_blocks": numBlocks,
		"block_size": sb.BlockSize,
	}).Info("t2fs: formatted partition")
	return fs, nil
}

// Open mounts an already-formatted partition by reading its superblock.
func Open(dev *device.Device, part mbr.Partition, log *logrus.Entry) (*FileSystem, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	cache := newSectorCache(dev, part.FirstSector, part.SectorCount())
	sbBuf := make([]byte, superblockSize)
	if err := cache.ReadSector(0, 0, superblockSize, sbBuf); err != nil {
		return nil, err
	}
	sb, err := superblockFromBytes(sbBuf)
	if err != nil {
		return nil, err
	}
	cache.configure(sb.DataBlockSector, uint32(sb.SectorsPerBlock), sb.NumBlocks)
	fs := &FileSystem{
		dev:         dev,
		partition:   part,
		cache:       cache,
		sb:          sb,
		inodeBitmap: newBitmapRegion(cache, sb.InodeBitmapSector, sb.NumInodes),
		blockBitmap: newBitmapRegion(cache, sb.BlockBitmapSector, sb.NumBlocks),
		descriptors: newDescriptorTable(),
		cwdInode:    RootInode,
		log:         log,
		runID:       uuid.New(),
	}
	return fs, nil
}

// Close releases the underlying device. It does not flush anything beyond
// what the device already wrote synchronously, since the sector cache never
// buffers writes.
func (fs *FileSystem) Close() error {
	return fs.dev.Close()
}

// Identify returns the on-disk magic string stamped into the superblock.
func (fs *FileSystem) Identify() string {
	return Magic
}

// FilesystemStat reports allocation counts across the whole filesystem.
type FilesystemStat struct {
	TotalInodes uint32
	FreeInodes  uint32
	TotalBlocks uint32
	FreeBlocks  uint32
	BlockSize   uint32
}

// StatFS scans both bitmaps and reports how much of the inode and block
// space remains free.
func (fs *FileSystem) StatFS() (FilesystemStat, error) {
	usedInodes, err := fs.inodeBitmap.countSet()
	if err != nil {
		return FilesystemStat{}, fmt.Errorf("t2fs: counting inode bitmap: %w", err)
	}
	usedBlocks, err := fs.blockBitmap.countSet()
	if err != nil {
		return FilesystemStat{}, fmt.Errorf("t2fs: counting block bitmap: %w", err)
	}
	return FilesystemStat{
		TotalInodes: fs.sb.NumInodes,
		FreeInodes:  fs.sb.NumInodes - usedInodes,
		TotalBlocks: fs.sb.NumBlocks,
		FreeBlocks:  fs.sb.NumBlocks - usedBlocks,
		BlockSize:   fs.sb.BlockSize,
	}, nil
}

// Stat resolves path and reports its size and type, without opening it.
func (fs *FileSystem) Stat(path string) (size uint64, typ InodeType, err error) {
	r, err := fs.resolvePath(path, true)
	if err != nil {
		return 0, 0, err
	}
	if r.ino == 0 {
		return 0, 0, ErrNotFound
	}
	in, err := fs.readInode(r.ino)
	if err != nil {
		return 0, 0, err
	}
	return in.BytesSize, in.Type, nil
}

// Mkdir creates a new, empty directory at path.
func (fs *FileSystem) Mkdir(path string) error {
	r, err := fs.resolvePath(path, false)
	if err != nil {
		return err
	}
	if r.ino != 0 {
		return ErrExists
	}
	childIno, err := fs.useNewInode(TypeDirectory)
	if err != nil {
		return err
	}
	child, err := fs.readInode(childIno)
	if err != nil {
		return err
	}
	child.HLCount = 2 // "." plus the parent's directory entry
	if err := fs.writeInode(childIno, child); err != nil {
		return err
	}
	if err := fs.insertEntry(childIno, ".", childIno); err != nil {
		return err
	}
	if err := fs.insertEntry(childIno, "..", r.parentIno); err != nil {
		return err
	}
	if err := fs.insertEntry(r.parentIno, r.name, childIno); err != nil {
		return err
	}
	return fs.incHLCount(r.parentIno) // the new ".." now references it
}

// Rmdir removes an empty directory. Directories manage their own link
// count by convention ("." plus the parent's entry) rather than through
// the generic decHLCount path, since their self-reference would otherwise
// never let the count reach zero.
func (fs *FileSystem) Rmdir(path string) error {
	r, err := fs.resolvePath(path, false)
	if err != nil {
		return err
	}
	if r.ino == 0 {
		return ErrNotFound
	}
	if r.inType != TypeDirectory {
		return ErrNotDirectory
	}
	if r.ino == RootInode {
		return fmt.Errorf("%w: cannot remove root directory", ErrInvalidArgument)
	}
	if r.ino == fs.cwdInode {
		return ErrBusy
	}
	deletable, err := fs.dirDeletable(r.ino)
	if err != nil {
		return err
	}
	if !deletable {
		return ErrNotEmpty
	}
	if err := fs.deleteEntry(r.parentIno, r.name); err != nil {
		return err
	}
	if err := fs.decHLCount(r.parentIno); err != nil {
		return err
	}
	if err := fs.deallocateBlocks(r.ino, -1); err != nil {
		return err
	}
	if closed := fs.descriptors.closeAllForInode(r.ino); len(closed) > 0 {
		fs.log.WithFields(logrus.Fields{"inode": r.ino, "closed": closed}).Debug("t2fs: invalidated open descriptors for removed directory")
	}
	if err := fs.writeInode(r.ino, &inode{}); err != nil {
		return err
	}
	return fs.inodeBitmap.clear(r.ino)
}

// Create makes a new regular file (truncating it if it already exists) and
// returns an open descriptor onto it.
func (fs *FileSystem) Create(path string) (int, error) {
	r, err := fs.resolvePath(path, false)
	if err != nil {
		return -1, err
	}
	if r.ino != 0 {
		if r.inType == TypeDirectory {
			return -1, ErrIsDirectory
		}
		if err := fs.truncateInode(r.ino, 0); err != nil {
			return -1, err
		}
		return fs.descriptors.openRegular(r.ino)
	}
	childIno, err := fs.useNewInode(TypeRegular)
	if err != nil {
		return -1, err
	}
	if err := fs.incHLCount(childIno); err != nil {
		return -1, err
	}
	if err := fs.insertEntry(r.parentIno, r.name, childIno); err != nil {
		return -1, err
	}
	return fs.descriptors.openRegular(childIno)
}

// Open opens an existing regular file for reading and writing.
func (fs *FileSystem) Open(path string) (int, error) {
	r, err := fs.resolvePath(path, true)
	if err != nil {
		return -1, err
	}
	if r.ino == 0 {
		return -1, ErrNotFound
	}
	if r.inType != TypeRegular {
		return -1, ErrIsDirectory
	}
	return fs.descriptors.openRegular(r.ino)
}

// CloseFile releases a regular-file descriptor returned by Create or Open.
func (fs *FileSystem) CloseFile(fd int) error {
	if _, err := fs.descriptors.find(fd); err != nil {
		return err
	}
	return fs.descriptors.releaseRegular(fd)
}

// Read copies up to len(buf) bytes from fd's current offset, advancing it.
func (fs *FileSystem) Read(fd int, buf []byte) (int, error) {
	d, err := fs.descriptors.find(fd)
	if err != nil {
		return 0, err
	}
	in, err := fs.readInode(d.inode)
	if err != nil {
		return 0, err
	}
	if d.offset >= in.BytesSize {
		return 0, nil
	}
	n := uint64(len(buf))
	if d.offset+n > in.BytesSize {
		n = in.BytesSize - d.offset
	}
	if err := fs.readData(in, d.offset, buf[:n]); err != nil {
		return 0, err
	}
	d.offset += n
	return int(n), nil
}

// Write scatters buf into fd's file starting at its current offset,
// extending the file as needed, and advances the offset.
func (fs *FileSystem) Write(fd int, buf []byte) (int, error) {
	d, err := fs.descriptors.find(fd)
	if err != nil {
		return 0, err
	}
	in, err := fs.readInode(d.inode)
	if err != nil {
		return 0, err
	}
	if err := fs.writeData(d.inode, in, d.offset, buf); err != nil {
		return 0, err
	}
	d.offset += uint64(len(buf))
	return len(buf), nil
}

// Seek repositions fd's cursor, following io.Seeker's whence convention.
func (fs *FileSystem) Seek(fd int, offset int64, whence int) (int64, error) {
	d, err := fs.descriptors.find(fd)
	if err != nil {
		return 0, err
	}
	in, err := fs.readInode(d.inode)
	if err != nil {
		return 0, err
	}
	var base int64
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = int64(d.offset)
	case io.SeekEnd:
		base = int64(in.BytesSize)
	default:
		return 0, ErrInvalidArgument
	}
	newOffset := base + offset
	if newOffset < 0 {
		return 0, ErrOffsetOutOfRange
	}
	// Mirrors the single-parameter seek(fd, off) contract: off must not
	// exceed the file's current size, so a seek can never open a hole that
	// a later write would allocate past.
	if newOffset > int64(in.BytesSize) {
		return 0, ErrOffsetOutOfRange
	}
	d.offset = uint64(newOffset)
	return newOffset, nil
}

// Truncate sets a regular file's size, freeing trailing blocks when
// shrinking. Growing a file this way leaves the new tail as a hole, read
// back as zeroes, the same as a write-past-EOF extension.
func (fs *FileSystem) Truncate(path string, size uint64) error {
	r, err := fs.resolvePath(path, true)
	if err != nil {
		return err
	}
	if r.ino == 0 {
		return ErrNotFound
	}
	if r.inType != TypeRegular {
		return ErrIsDirectory
	}
	return fs.truncateInode(r.ino, size)
}

func (fs *FileSystem) truncateInode(ino uint32, size uint64) error {
	in, err := fs.readInode(ino)
	if err != nil {
		return err
	}
	if size < in.BytesSize {
		keepBlocks := int(ceilDiv(uint32(size), fs.cache.blockSize()))
		if err := fs.deallocateBlocks(ino, keepBlocks); err != nil {
			return err
		}
		if in, err = fs.readInode(ino); err != nil {
			return err
		}
	}
	in.BytesSize = size
	if err := fs.writeInode(ino, in); err != nil {
		return err
	}
	fs.descriptors.clampOffsets(ino, size)
	return nil
}

// Delete unlinks a regular file or symlink, freeing its inode once its
// last hard link is gone.
func (fs *FileSystem) Delete(path string) error {
	r, err := fs.resolvePath(path, false)
	if err != nil {
		return err
	}
	if r.ino == 0 {
		return ErrNotFound
	}
	if r.inType == TypeDirectory {
		return ErrIsDirectory
	}
	if err := fs.deleteEntry(r.parentIno, r.name); err != nil {
		return err
	}
	return fs.decHLCount(r.ino)
}

// Link creates a new hard link to an existing regular file or symlink.
// Hard-linking directories is refused, the classic restriction against
// introducing cycles that a "." / ".." convention cannot represent.
func (fs *FileSystem) Link(oldPath, newPath string) error {
	old, err := fs.resolvePath(oldPath, true)
	if err != nil {
		return err
	}
	if old.ino == 0 {
		return ErrNotFound
	}
	if old.inType == TypeDirectory {
		return ErrIsDirectory
	}
	r, err := fs.resolvePath(newPath, false)
	if err != nil {
		return err
	}
	if r.ino != 0 {
		return ErrExists
	}
	if err := fs.insertEntry(r.parentIno, r.name, old.ino); err != nil {
		return err
	}
	return fs.incHLCount(old.ino)
}

// Symlink creates a new symbolic link at linkPath holding the literal
// string target, resolved lazily whenever the link is traversed.
func (fs *FileSystem) Symlink(target, linkPath string) error {
	if len(target) == 0 || len(target) > PathMax {
		return ErrInvalidPath
	}
	r, err := fs.resolvePath(linkPath, false)
	if err != nil {
		return err
	}
	if r.ino != 0 {
		return ErrExists
	}
	childIno, err := fs.useNewInode(TypeSymlink)
	if err != nil {
		return err
	}
	if err := fs.incHLCount(childIno); err != nil {
		return err
	}
	in, err := fs.readInode(childIno)
	if err != nil {
		return err
	}
	if err := fs.writeData(childIno, in, 0, []byte(target)); err != nil {
		return err
	}
	return fs.insertEntry(r.parentIno, r.name, childIno)
}

// Chdir changes the current working directory used to resolve relative
// paths.
func (fs *FileSystem) Chdir(path string) error {
	r, err := fs.resolvePath(path, true)
	if err != nil {
		return err
	}
	if r.ino == 0 {
		return ErrNotFound
	}
	if r.inType != TypeDirectory {
		return ErrNotDirectory
	}
	fs.cwdInode = r.ino
	return nil
}

// Getcwd reconstructs the absolute path of the current working directory
// by walking ".." links up to the root.
func (fs *FileSystem) Getcwd() (string, error) {
	if fs.cwdInode == RootInode {
		return "/", nil
	}
	var parts []string
	cur := fs.cwdInode
	for cur != RootInode {
		parentIno, err := fs.getInodeByName(cur, "..")
		if err != nil {
			return "", err
		}
		name, err := fs.getNameByInode(parentIno, cur)
		if err != nil {
			return "", err
		}
		parts = append(parts, name)
		cur = parentIno
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return "/" + strings.Join(parts, "/"), nil
}

// ReadDir lists every live entry of the directory at path, in on-disk order.
func (fs *FileSystem) ReadDir(path string) ([]DirEntryInfo, error) {
	r, err := fs.resolvePath(path, true)
	if err != nil {
		return nil, err
	}
	if r.ino == 0 {
		return nil, ErrNotFound
	}
	if r.inType != TypeDirectory {
		return nil, ErrNotDirectory
	}
	return fs.readDirEntries(r.ino)
}

// OpenDir claims the filesystem's single directory-reading slot.
func (fs *FileSystem) OpenDir(path string) error {
	r, err := fs.resolvePath(path, true)
	if err != nil {
		return err
	}
	if r.ino == 0 {
		return ErrNotFound
	}
	if r.inType != TypeDirectory {
		return ErrNotDirectory
	}
	return fs.descriptors.openDirectory(r.ino)
}

// ReadDirNext returns the next entry from the directory opened by OpenDir.
func (fs *FileSystem) ReadDirNext() (DirEntryInfo, error) {
	d, err := fs.descriptors.directory()
	if err != nil {
		return DirEntryInfo{}, err
	}
	entries, err := fs.readDirEntries(d.inode)
	if err != nil {
		return DirEntryInfo{}, err
	}
	if d.index >= len(entries) {
		return DirEntryInfo{}, ErrNotFound
	}
	e := entries[d.index]
	d.index++
	return e, nil
}

// CloseDir releases the directory-reading slot claimed by OpenDir.
func (fs *FileSystem) CloseDir() error {
	return fs.descriptors.releaseDirectory()
}
