// Package testhelper provides small stand-ins for backend.Storage so
// filesystem/t2fs tests can drive the engine over an in-memory buffer
// instead of a real file.
package testhelper

import (
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/t2fs/t2fs/backend"
)

type reader func(b []byte, offset int64) (int, error)
type writer func(b []byte, offset int64) (int, error)

// FileImpl is a minimal backend.Storage backed by caller-supplied
// read/write closures, letting a test stub out a backing store without a
// real *os.File.
type FileImpl struct {
	Reader reader
	Writer writer
	Size   int64
}

func (f *FileImpl) Stat() (fs.FileInfo, error) {
	return fakeFileInfo{size: f.Size}, nil
}

func (f *FileImpl) Read(b []byte) (int, error) {
	return f.Reader(b, 0)
}

func (f *FileImpl) Close() error {
	return nil
}

// ReadAt reads at a particular offset.
func (f *FileImpl) ReadAt(b []byte, offset int64) (int, error) {
	return f.Reader(b, offset)
}

// WriteAt writes at a particular offset.
func (f *FileImpl) WriteAt(b []byte, offset int64) (int, error) {
	return f.Writer(b, offset)
}

// Seek is unsupported; nothing in the engine uses it through
// backend.Storage (ReadAt/WriteAt carry the offset instead).
//
//nolint:unused,revive // to implement the interface
func (f *FileImpl) Seek(offset int64, whence int) (int64, error) {
	return 0, fmt.Errorf("FileImpl does not implement Seek()")
}

// Sys reports that no *os.File backs this stub, matching backend.Storage's
// contract for non-device-backed storage.
func (f *FileImpl) Sys() (*os.File, error) {
	return nil, backend.ErrNotSuitable
}

// Writable returns f itself, since FileImpl already implements WriteAt.
func (f *FileImpl) Writable() (backend.WritableFile, error) {
	return f, nil
}

var _ backend.Storage = (*FileImpl)(nil)

type fakeFileInfo struct {
	size int64
}

func (i fakeFileInfo) Name() string       { return "fileimpl" }
func (i fakeFileInfo) Size() int64        { return i.size }
func (i fakeFileInfo) Mode() fs.FileMode  { return 0o666 }
func (i fakeFileInfo) ModTime() time.Time { return time.Time{} }
func (i fakeFileInfo) IsDir() bool        { return false }
func (i fakeFileInfo) Sys() any           { return nil }

// NewMemoryStorage returns a FileImpl backed by an in-memory byte slice.
// The slice never grows: a write that would extend past len(buf) fails.
func NewMemoryStorage(buf []byte) *FileImpl {
	f := &FileImpl{Size: int64(len(buf))}
	f.Reader = func(b []byte, offset int64) (int, error) {
		if offset < 0 || offset > int64(len(buf)) {
			return 0, fmt.Errorf("testhelper: read offset %d out of range", offset)
		}
		n := copy(b, buf[offset:])
		return n, nil
	}
	f.Writer = func(b []byte, offset int64) (int, error) {
		end := offset + int64(len(b))
		if end > int64(len(buf)) {
			return 0, fmt.Errorf("testhelper: write [%d:%d) exceeds backing size %d", offset, end, len(buf))
		}
		n := copy(buf[offset:end], b)
		return n, nil
	}
	return f
}
