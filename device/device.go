// Package device implements the raw sector I/O adapter T2FS is built on:
// fixed-size reads and writes of one sector against a backing store, plus
// partition-relative bounds checking. It is the serialization boundary
// between the pluggable backing-store container (disk/formats) and the
// fixed 256-byte sector interface the rest of the filesystem assumes.
package device

import (
	"fmt"
	"io/fs"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/t2fs/t2fs/backend"
	"github.com/t2fs/t2fs/disk/formats/qcow2"
	"github.com/t2fs/t2fs/disk/formats/raw"
)

// SectorSize is the fixed size, in bytes, of one sector on the backing
// device. It is a format constant, not configurable per T2FS spec.
const SectorSize = 256

// ReaderWriterAt is satisfied by both disk/formats containers (raw, qcow2).
type ReaderWriterAt interface {
	ReadAt(b []byte, offset int64) (int, error)
	WriteAt(b []byte, offset int64) (int, error)
}

// Device is a raw, sector-addressed view of a backing store. It has no
// notion of partitions or filesystems; it only knows how to move exactly
// one sector at a time, which is the contract the rest of T2FS relies on.
type Device struct {
	container   ReaderWriterAt
	storage     backend.Storage
	totalSize   int64
	log         *logrus.Entry
}

// Open wraps an already-open backend.Storage as a sector device. If the
// file looks like a qcow2 container (magic "QFI\xfb") it is transparently
// decoded; otherwise it is treated as a raw flat image, letting a single
// backing store sit on either container.
func Open(storage backend.Storage, log *logrus.Entry) (*Device, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	info, err := storage.Stat()
	if err != nil {
		return nil, fmt.Errorf("device: stat backing store: %w", err)
	}

	osFile, isOSFile := asOSFile(storage)

	var container ReaderWriterAt
	if isOSFile && looksLikeQcow2(storage) {
		q, err := qcow2.Read(osFile, 0)
		if err != nil {
			return nil, fmt.Errorf("device: open qcow2 container: %w", err)
		}
		container = q
		log.Debug("device: opened backing store as qcow2 container")
	} else if isOSFile {
		r, err := raw.NewRaw(osFile, false, info.Size())
		if err != nil {
			return nil, fmt.Errorf("device: open raw container: %w", err)
		}
		container = r
		log.Debug("device: opened backing store as raw container")
	} else {
		// not an *os.File (e.g. an in-memory fs.File); fall back to the
		// backend.Storage's own ReaderAt/WriterAt, which is always raw.
		container = storageReaderWriterAt{storage}
	}

	return &Device{container: container, storage: storage, totalSize: info.Size(), log: log}, nil
}

// CreateFile creates a new flat backing-store file of the given size and
// opens it as a Device, the equivalent of `format`'s underlying `dd`.
func CreateFile(path string, size int64, log *logrus.Entry) (*Device, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o666)
	if err != nil {
		return nil, fmt.Errorf("device: create backing file %s: %w", path, err)
	}
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, fmt.Errorf("device: size backing file %s: %w", path, err)
	}
	r, err := raw.NewRaw(f, true, size)
	if err != nil {
		f.Close()
		return nil, err
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Device{container: r, storage: rawFileStorage{f}, totalSize: size, log: log}, nil
}

// TotalSize returns the size, in bytes, of the logical backing store.
func (d *Device) TotalSize() int64 {
	return d.totalSize
}

// TotalSectors returns the number of whole sectors available on the device.
func (d *Device) TotalSectors() uint32 {
	return uint32(d.totalSize / SectorSize)
}

// ReadSector reads exactly SectorSize bytes starting at sector n.
func (d *Device) ReadSector(n uint32, dst []byte) error {
	if uint32(len(dst)) != SectorSize {
		return fmt.Errorf("device: dst must be exactly %d bytes, got %d", SectorSize, len(dst))
	}
	if n >= d.TotalSectors() {
		return fmt.Errorf("device: sector %d out of range (%d total)", n, d.TotalSectors())
	}
	read, err := d.container.ReadAt(dst, int64(n)*SectorSize)
	if err != nil {
		return fmt.Errorf("device: read sector %d: %w", n, err)
	}
	if read != SectorSize {
		return fmt.Errorf("device: short read of sector %d: got %d of %d bytes", n, read, SectorSize)
	}
	return nil
}

// WriteSector writes exactly SectorSize bytes starting at sector n.
func (d *Device) WriteSector(n uint32, src []byte) error {
	if uint32(len(src)) != SectorSize {
		return fmt.Errorf("device: src must be exactly %d bytes, got %d", SectorSize, len(src))
	}
	if n >= d.TotalSectors() {
		return fmt.Errorf("device: sector %d out of range (%d total)", n, d.TotalSectors())
	}
	written, err := d.container.WriteAt(src, int64(n)*SectorSize)
	if err != nil {
		return fmt.Errorf("device: write sector %d: %w", n, err)
	}
	if written != SectorSize {
		return fmt.Errorf("device: short write of sector %d: wrote %d of %d bytes", n, written, SectorSize)
	}
	return nil
}

// Close releases the underlying backing store.
func (d *Device) Close() error {
	return d.storage.Close()
}

func looksLikeQcow2(storage backend.Storage) bool {
	magic := make([]byte, 4)
	n, err := storage.ReadAt(magic, 0)
	if err != nil || n != 4 {
		return false
	}
	return magic[0] == 'Q' && magic[1] == 'F' && magic[2] == 'I' && magic[3] == 0xfb
}

func asOSFile(storage backend.Storage) (*os.File, bool) {
	f, err := storage.Sys()
	if err != nil {
		return nil, false
	}
	return f, true
}

// storageReaderWriterAt adapts a backend.Storage (which may not be a plain
// *os.File, e.g. an in-memory fstest.MapFS entry) directly to ReaderWriterAt.
type storageReaderWriterAt struct {
	s backend.Storage
}

func (s storageReaderWriterAt) ReadAt(b []byte, offset int64) (int, error) {
	return s.s.ReadAt(b, offset)
}

func (s storageReaderWriterAt) WriteAt(b []byte, offset int64) (int, error) {
	w, err := s.s.Writable()
	if err != nil {
		return 0, err
	}
	return w.WriteAt(b, offset)
}

// rawFileStorage adapts a freshly created *os.File to backend.Storage for
// the CreateFile path, where we already hold the file handle.
type rawFileStorage struct {
	f *os.File
}

func (r rawFileStorage) Stat() (fs.FileInfo, error)       { return r.f.Stat() }
func (r rawFileStorage) Read(b []byte) (int, error)       { return r.f.Read(b) }
func (r rawFileStorage) Close() error                     { return r.f.Close() }
func (r rawFileStorage) ReadAt(p []byte, off int64) (int, error)  { return r.f.ReadAt(p, off) }
func (r rawFileStorage) Seek(offset int64, whence int) (int64, error) { return r.f.Seek(offset, whence) }
func (r rawFileStorage) Sys() (*os.File, error)           { return r.f, nil }
func (r rawFileStorage) Writable() (backend.WritableFile, error) { return r.f, nil }
