package t2fs_test

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/t2fs/t2fs/backend"
	"github.com/t2fs/t2fs/device"
	"github.com/t2fs/t2fs/filesystem/t2fs"
	"github.com/t2fs/t2fs/partition/mbr"
	"github.com/t2fs/t2fs/testhelper"
)

const testSectors = 600

func newTestPartition(t *testing.T) (*device.Device, mbr.Partition) {
	t.Helper()
	buf := make([]byte, testSectors*device.SectorSize)

	table := mbr.New(device.SectorSize)
	table.Partitions[0] = mbr.Partition{FirstSector: 1, LastSector: testSectors - 1, Name: "t2fs-test"}
	raw, err := table.ToBytes(device.SectorSize)
	if err != nil {
		t.Fatalf("encode mbr: %v", err)
	}
	copy(buf[0:device.SectorSize], raw)

	storage := testhelper.NewMemoryStorage(buf)
	dev, err := device.Open(storage, nil)
	if err != nil {
		t.Fatalf("device.Open: %v", err)
	}

	var sector0 [device.SectorSize]byte
	if err := dev.ReadSector(0, sector0[:]); err != nil {
		t.Fatalf("read mbr sector: %v", err)
	}
	decoded, err := mbr.FromBytes(sector0[:])
	if err != nil {
		t.Fatalf("decode mbr: %v", err)
	}
	part, err := decoded.Partition(0)
	if err != nil {
		t.Fatalf("partition 0: %v", err)
	}
	return dev, part
}

func mustFormat(t *testing.T) *t2fs.FileSystem {
	t.Helper()
	dev, part := newTestPartition(t)
	fs, err := t2fs.Format(dev, part, 4, nil)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	return fs
}

func TestFormatCreatesRootDirectory(t *testing.T) {
	fs := mustFormat(t)
	entries, err := fs.ReadDir("/")
	if err != nil {
		t.Fatalf("ReadDir(/): %v", err)
	}
	names := map[string]bool{}
	for _, e := range entries {
		names[e.Name] = true
	}
	if !names["."] || !names[".."] {
		t.Fatalf("expected root to contain . and .., got %v", entries)
	}
}

func TestFormatRejectsSectorsPerBlockOutOfRange(t *testing.T) {
	dev, part := newTestPartition(t)
	if _, err := t2fs.Format(dev, part, 129, nil); !errors.Is(err, t2fs.ErrInvalidArgument) {
		t.Fatalf("Format(129): %v, want ErrInvalidArgument", err)
	}
}

func TestFormatRejectsPartitionSmallerThanMinimum(t *testing.T) {
	const sectorsPerBlock = 4
	// 2*sectorsPerBlock + 4 is the documented floor; one sector under that
	// must be rejected regardless of how few inodes/blocks it could fit.
	tooSmall := uint32(2*sectorsPerBlock + 4 - 1)
	buf := make([]byte, int(tooSmall)*device.SectorSize)
	storage := testhelper.NewMemoryStorage(buf)
	dev, err := device.Open(storage, nil)
	if err != nil {
		t.Fatalf("device.Open: %v", err)
	}
	part := mbr.Partition{FirstSector: 0, LastSector: tooSmall - 1}
	if _, err := t2fs.Format(dev, part, sectorsPerBlock, nil); !errors.Is(err, t2fs.ErrInvalidArgument) {
		t.Fatalf("Format on undersized partition: %v, want ErrInvalidArgument", err)
	}
}

func TestCreateWriteReadRoundTrip(t *testing.T) {
	fs := mustFormat(t)

	fd, err := fs.Create("/hello.txt")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	payload := bytes.Repeat([]byte("t2fs-content-"), 200) // spans multiple blocks
	if n, err := fs.Write(fd, payload); err != nil || n != len(payload) {
		t.Fatalf("Write: n=%d err=%v", n, err)
	}
	if err := fs.CloseFile(fd); err != nil {
		t.Fatalf("CloseFile: %v", err)
	}

	fd, err = fs.Open("/hello.txt")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	got := make([]byte, len(payload))
	total := 0
	for total < len(got) {
		n, err := fs.Read(fd, got[total:])
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		if n == 0 {
			break
		}
		total += n
	}
	if !bytes.Equal(got[:total], payload) {
		t.Fatalf("round-tripped content mismatch: got %d bytes, want %d", total, len(payload))
	}
	if err := fs.CloseFile(fd); err != nil {
		t.Fatalf("CloseFile: %v", err)
	}
}

func TestSeekWithinFileSize(t *testing.T) {
	fs := mustFormat(t)
	fd, err := fs.Create("/seek.txt")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	payload := []byte("0123456789")
	if _, err := fs.Write(fd, payload); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if off, err := fs.Seek(fd, 0, io.SeekStart); err != nil || off != 0 {
		t.Fatalf("Seek(start,0) = %d, %v; want 0, nil", off, err)
	}
	if off, err := fs.Seek(fd, 5, io.SeekStart); err != nil || off != 5 {
		t.Fatalf("Seek(start,5) = %d, %v; want 5, nil", off, err)
	}
	if off, err := fs.Seek(fd, 2, io.SeekCurrent); err != nil || off != 7 {
		t.Fatalf("Seek(current,2) = %d, %v; want 7, nil", off, err)
	}
	if off, err := fs.Seek(fd, 0, io.SeekEnd); err != nil || off != int64(len(payload)) {
		t.Fatalf("Seek(end,0) = %d, %v; want %d, nil", off, err, len(payload))
	}

	got := make([]byte, 3)
	if _, err := fs.Seek(fd, 2, io.SeekStart); err != nil {
		t.Fatalf("Seek(start,2): %v", err)
	}
	n, err := fs.Read(fd, got)
	if err != nil || n != 3 || string(got) != "234" {
		t.Fatalf("Read after seek = %d, %q, %v; want 3, \"234\", nil", n, got, err)
	}
}

func TestSeekRejectsOffsetPastFileSize(t *testing.T) {
	fs := mustFormat(t)
	fd, err := fs.Create("/seek2.txt")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := fs.Write(fd, []byte("hello")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if _, err := fs.Seek(fd, 6, io.SeekStart); !errors.Is(err, t2fs.ErrOffsetOutOfRange) {
		t.Fatalf("Seek past file size = %v, want ErrOffsetOutOfRange", err)
	}
	if _, err := fs.Seek(fd, 1, io.SeekEnd); !errors.Is(err, t2fs.ErrOffsetOutOfRange) {
		t.Fatalf("Seek past end = %v, want ErrOffsetOutOfRange", err)
	}

	// Exactly at file size must still be accepted (a subsequent write there
	// grows the file by appending, not by opening a hole).
	if off, err := fs.Seek(fd, 5, io.SeekStart); err != nil || off != 5 {
		t.Fatalf("Seek to exactly file size = %d, %v; want 5, nil", off, err)
	}
}

func TestSeekCannotOpenHoleBeforeWrite(t *testing.T) {
	fs := mustFormat(t)
	fd, err := fs.Create("/hole.txt")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	blockSize := int64(4 * device.SectorSize)
	if _, err := fs.Seek(fd, 5*blockSize, io.SeekStart); !errors.Is(err, t2fs.ErrOffsetOutOfRange) {
		t.Fatalf("Seek far past an empty file = %v, want ErrOffsetOutOfRange", err)
	}
	size, _, err := fs.Stat("/hole.txt")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if size != 0 {
		t.Fatalf("size after rejected seek = %d, want 0", size)
	}
}

func TestMkdirAndChdir(t *testing.T) {
	fs := mustFormat(t)
	if err := fs.Mkdir("/sub"); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	if err := fs.Chdir("/sub"); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	cwd, err := fs.Getcwd()
	if err != nil {
		t.Fatalf("Getcwd: %v", err)
	}
	if cwd != "/sub" {
		t.Fatalf("Getcwd = %q, want /sub", cwd)
	}
	if err := fs.Mkdir("nested"); err != nil {
		t.Fatalf("Mkdir relative: %v", err)
	}
	if err := fs.Chdir("nested"); err != nil {
		t.Fatalf("Chdir relative: %v", err)
	}
	cwd, err = fs.Getcwd()
	if err != nil {
		t.Fatalf("Getcwd: %v", err)
	}
	if cwd != "/sub/nested" {
		t.Fatalf("Getcwd = %q, want /sub/nested", cwd)
	}
}

func TestRmdirRejectsNonEmpty(t *testing.T) {
	fs := mustFormat(t)
	if err := fs.Mkdir("/sub"); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	fd, err := fs.Create("/sub/file")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := fs.CloseFile(fd); err != nil {
		t.Fatalf("CloseFile: %v", err)
	}
	if err := fs.Rmdir("/sub"); err != t2fs.ErrNotEmpty {
		t.Fatalf("Rmdir on non-empty dir: got %v, want ErrNotEmpty", err)
	}
	if err := fs.Delete("/sub/file"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := fs.Rmdir("/sub"); err != nil {
		t.Fatalf("Rmdir after emptied: %v", err)
	}
}

func TestDeleteFreesInodeAfterLastLink(t *testing.T) {
	fs := mustFormat(t)
	fd, err := fs.Create("/a")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := fs.Write(fd, []byte("payload")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := fs.CloseFile(fd); err != nil {
		t.Fatalf("CloseFile: %v", err)
	}
	if err := fs.Link("/a", "/b"); err != nil {
		t.Fatalf("Link: %v", err)
	}
	if err := fs.Delete("/a"); err != nil {
		t.Fatalf("Delete /a: %v", err)
	}
	// /b still references the same inode, so it must still read back fine.
	fd, err = fs.Open("/b")
	if err != nil {
		t.Fatalf("Open /b after deleting /a: %v", err)
	}
	got := make([]byte, len("payload"))
	if _, err := io.ReadFull(readerFor(fs, fd), got); err != nil {
		t.Fatalf("Read /b: %v", err)
	}
	if string(got) != "payload" {
		t.Fatalf("content = %q, want payload", got)
	}
	if err := fs.CloseFile(fd); err != nil {
		t.Fatalf("CloseFile: %v", err)
	}
	if err := fs.Delete("/b"); err != nil {
		t.Fatalf("Delete /b: %v", err)
	}
	if _, err := fs.Open("/b"); err != t2fs.ErrNotFound {
		t.Fatalf("Open /b after final delete: got %v, want ErrNotFound", err)
	}
}

func TestSymlinkResolution(t *testing.T) {
	fs := mustFormat(t)
	fd, err := fs.Create("/target")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := fs.Write(fd, []byte("via-link")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := fs.CloseFile(fd); err != nil {
		t.Fatalf("CloseFile: %v", err)
	}
	if err := fs.Symlink("/target", "/link"); err != nil {
		t.Fatalf("Symlink: %v", err)
	}
	fd, err = fs.Open("/link")
	if err != nil {
		t.Fatalf("Open via symlink: %v", err)
	}
	got := make([]byte, len("via-link"))
	if _, err := fs.Read(fd, got); err != nil {
		t.Fatalf("Read via symlink: %v", err)
	}
	if string(got) != "via-link" {
		t.Fatalf("content = %q, want via-link", got)
	}
	_ = fs.CloseFile(fd)
}

func TestSymlinkLoopIsRejected(t *testing.T) {
	fs := mustFormat(t)
	if err := fs.Symlink("/loop-b", "/loop-a"); err != nil {
		t.Fatalf("Symlink a->b: %v", err)
	}
	if err := fs.Symlink("/loop-a", "/loop-b"); err != nil {
		t.Fatalf("Symlink b->a: %v", err)
	}
	if _, err := fs.Open("/loop-a"); err != t2fs.ErrTooManySymlinks {
		t.Fatalf("Open looped symlink: got %v, want ErrTooManySymlinks", err)
	}
}

func TestTruncateShrinksAndFreesBlocks(t *testing.T) {
	fs := mustFormat(t)
	fd, err := fs.Create("/big")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	payload := bytes.Repeat([]byte("x"), 4096)
	if _, err := fs.Write(fd, payload); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := fs.CloseFile(fd); err != nil {
		t.Fatalf("CloseFile: %v", err)
	}
	before, err := fs.StatFS()
	if err != nil {
		t.Fatalf("StatFS: %v", err)
	}
	if err := fs.Truncate("/big", 10); err != nil {
		t.Fatalf("Truncate: %v", err)
	}
	size, _, err := fs.Stat("/big")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if size != 10 {
		t.Fatalf("size after truncate = %d, want 10", size)
	}
	after, err := fs.StatFS()
	if err != nil {
		t.Fatalf("StatFS after truncate: %v", err)
	}
	// 4096 bytes used three direct blocks plus one indirect leaf and its
	// pointer block; keeping 10 bytes keeps only the first direct block.
	if after.FreeBlocks != before.FreeBlocks+4 {
		t.Fatalf("FreeBlocks after truncate = %d, want %d", after.FreeBlocks, before.FreeBlocks+4)
	}
}

func TestStatFSReflectsAllocations(t *testing.T) {
	fs := mustFormat(t)

	before, err := fs.StatFS()
	if err != nil {
		t.Fatalf("StatFS: %v", err)
	}
	if before.FreeInodes != before.TotalInodes-2 {
		t.Fatalf("FreeInodes = %d, want %d (reserved inode 0 and root already consume two)", before.FreeInodes, before.TotalInodes-2)
	}

	fd, err := fs.Create("/big")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	payload := bytes.Repeat([]byte("x"), 4096)
	if _, err := fs.Write(fd, payload); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := fs.CloseFile(fd); err != nil {
		t.Fatalf("CloseFile: %v", err)
	}

	after, err := fs.StatFS()
	if err != nil {
		t.Fatalf("StatFS after write: %v", err)
	}
	if after.FreeInodes != before.FreeInodes-1 {
		t.Fatalf("FreeInodes after Create = %d, want %d", after.FreeInodes, before.FreeInodes-1)
	}
	if after.FreeBlocks >= before.FreeBlocks {
		t.Fatalf("FreeBlocks after writing %d bytes = %d, want fewer than %d", len(payload), after.FreeBlocks, before.FreeBlocks)
	}
	if after.TotalBlocks != before.TotalBlocks || after.TotalInodes != before.TotalInodes {
		t.Fatalf("totals changed across StatFS calls: %+v vs %+v", before, after)
	}

	if err := fs.Delete("/big"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	final, err := fs.StatFS()
	if err != nil {
		t.Fatalf("StatFS after delete: %v", err)
	}
	if final.FreeInodes != before.FreeInodes || final.FreeBlocks != before.FreeBlocks {
		t.Fatalf("free space after delete = %+v, want back to %+v", final, before)
	}
}

// readerFor adapts fs.Read(fd, ...) to an io.Reader for use with io.ReadFull.
func readerFor(fs *t2fs.FileSystem, fd int) io.Reader {
	return readerFunc(func(p []byte) (int, error) {
		return fs.Read(fd, p)
	})
}

type readerFunc func([]byte) (int, error)

func (f readerFunc) Read(p []byte) (int, error) { return f(p) }

var _ backend.Storage = (*testhelper.FileImpl)(nil)
