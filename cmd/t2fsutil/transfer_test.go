package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/t2fs/t2fs/device"
	"github.com/t2fs/t2fs/filesystem/t2fs"
	"github.com/t2fs/t2fs/partition/mbr"
	"github.com/t2fs/t2fs/testhelper"
)

func newTestFS(t *testing.T) *t2fs.FileSystem {
	t.Helper()
	const totalSectors = 600
	buf := make([]byte, totalSectors*device.SectorSize)
	storage := testhelper.NewMemoryStorage(buf)
	dev, err := device.Open(storage, nil)
	if err != nil {
		t.Fatalf("device.Open: %v", err)
	}
	part := mbr.Partition{FirstSector: 0, LastSector: totalSectors - 1}
	fs, err := t2fs.Format(dev, part, 4, nil)
	if err != nil {
		t.Fatalf("t2fs.Format: %v", err)
	}
	return fs
}

func TestWriteFileThenCatFileRoundTrip(t *testing.T) {
	fs := newTestFS(t)
	content := strings.Repeat("t2fsutil round trip payload ", 200)

	if err := writeFile(fs, "/payload.txt", strings.NewReader(content)); err != nil {
		t.Fatalf("writeFile: %v", err)
	}

	var out bytes.Buffer
	if err := catFile(fs, "/payload.txt", &out); err != nil {
		t.Fatalf("catFile: %v", err)
	}
	if out.String() != content {
		t.Fatalf("round trip mismatch: got %d bytes, want %d", out.Len(), len(content))
	}
}

func TestWriteFileTruncatesExisting(t *testing.T) {
	fs := newTestFS(t)
	if err := writeFile(fs, "/a.txt", strings.NewReader("a long first payload that will be shrunk")); err != nil {
		t.Fatalf("writeFile first: %v", err)
	}
	if err := writeFile(fs, "/a.txt", strings.NewReader("short")); err != nil {
		t.Fatalf("writeFile second: %v", err)
	}
	var out bytes.Buffer
	if err := catFile(fs, "/a.txt", &out); err != nil {
		t.Fatalf("catFile: %v", err)
	}
	if out.String() != "short" {
		t.Fatalf("expected truncated content %q, got %q", "short", out.String())
	}
}
