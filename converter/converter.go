// Package converter adapts a mounted T2FS filesystem onto the standard
// io/fs.FS interface, so host tooling (http.FileServer, text/template,
// archive readers) can walk a T2FS image without knowing anything about
// inodes or blocks.
package converter

import (
	"io"
	"io/fs"
	"path"
	"time"

	"github.com/t2fs/t2fs/filesystem/t2fs"
)

type t2fsAdapter struct {
	fsys *t2fs.FileSystem
}

// FS wraps f as a read-only io/fs.FS.
func FS(f *t2fs.FileSystem) fs.FS {
	return &t2fsAdapter{fsys: f}
}

func (a *t2fsAdapter) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	p := "/" + name
	if name == "." {
		p = "/"
	}

	size, typ, err := a.fsys.Stat(p)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	if typ == t2fs.TypeDirectory {
		entries, err := a.fsys.ReadDir(p)
		if err != nil {
			return nil, &fs.PathError{Op: "open", Path: name, Err: err}
		}
		return &dirHandle{name: path.Base(p), entries: entries}, nil
	}

	fd, err := a.fsys.Open(p)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	return &fileHandle{fsys: a.fsys, fd: fd, name: path.Base(p), size: int64(size)}, nil
}

// fileInfo is a minimal fs.FileInfo backed by the three facts T2FS tracks
// about a path: name, size and whether it is a directory.
type fileInfo struct {
	name  string
	size  int64
	isDir bool
}

func (i fileInfo) Name() string { return i.name }
func (i fileInfo) Size() int64  { return i.size }
func (i fileInfo) Mode() fs.FileMode {
	if i.isDir {
		return fs.ModeDir | 0o555
	}
	return 0o444
}
func (i fileInfo) ModTime() time.Time { return time.Time{} }
func (i fileInfo) IsDir() bool        { return i.isDir }
func (i fileInfo) Sys() any           { return nil }

type fileHandle struct {
	fsys   *t2fs.FileSystem
	fd     int
	name   string
	size   int64
	closed bool
}

func (f *fileHandle) Stat() (fs.FileInfo, error) {
	return fileInfo{name: f.name, size: f.size}, nil
}

func (f *fileHandle) Read(p []byte) (int, error) {
	if f.closed {
		return 0, fs.ErrClosed
	}
	n, err := f.fsys.Read(f.fd, p)
	if err != nil {
		return n, err
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

func (f *fileHandle) Close() error {
	if f.closed {
		return fs.ErrClosed
	}
	f.closed = true
	return f.fsys.CloseFile(f.fd)
}

type dirHandle struct {
	name    string
	entries []t2fs.DirEntryInfo
	pos     int
}

func (d *dirHandle) Stat() (fs.FileInfo, error) {
	return fileInfo{name: d.name, isDir: true}, nil
}

func (d *dirHandle) Read([]byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: d.name, Err: fs.ErrInvalid}
}

func (d *dirHandle) Close() error { return nil }

func (d *dirHandle) ReadDir(n int) ([]fs.DirEntry, error) {
	var out []fs.DirEntry
	for (n <= 0 || len(out) < n) && d.pos < len(d.entries) {
		e := d.entries[d.pos]
		d.pos++
		if e.Name == "." || e.Name == ".." {
			continue
		}
		out = append(out, dirEntry{e})
	}
	if n > 0 && len(out) == 0 {
		return nil, io.EOF
	}
	return out, nil
}

type dirEntry struct {
	info t2fs.DirEntryInfo
}

func (e dirEntry) Name() string { return e.info.Name }
func (e dirEntry) IsDir() bool  { return e.info.Type == t2fs.TypeDirectory }
func (e dirEntry) Type() fs.FileMode {
	if e.IsDir() {
		return fs.ModeDir
	}
	return 0
}
func (e dirEntry) Info() (fs.FileInfo, error) {
	return fileInfo{name: e.info.Name, isDir: e.IsDir()}, nil
}
