package main

import (
	"path/filepath"
	"testing"

	"github.com/spf13/viper"

	"github.com/t2fs/t2fs/backend/file"
	"github.com/t2fs/t2fs/device"
	"github.com/t2fs/t2fs/filesystem/t2fs"
	"github.com/t2fs/t2fs/partition/mbr"
)

func TestRunFormatProducesMountableImage(t *testing.T) {
	viper.Reset()
	imagePath := filepath.Join(t.TempDir(), "image.t2fs")

	cmd := newRootCmd()
	cmd.SetArgs([]string{imagePath, "--size", "1048576", "--label", "test"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("mkt2fs: %v", err)
	}

	storage, err := file.OpenFromPath(imagePath, true)
	if err != nil {
		t.Fatalf("opening produced image: %v", err)
	}
	defer storage.Close()

	dev, err := device.Open(storage, nil)
	if err != nil {
		t.Fatalf("device.Open: %v", err)
	}
	defer dev.Close()

	buf := make([]byte, device.SectorSize)
	if err := dev.ReadSector(0, buf); err != nil {
		t.Fatalf("reading MBR sector: %v", err)
	}
	table, err := mbr.FromBytes(buf)
	if err != nil {
		t.Fatalf("decoding MBR: %v", err)
	}
	part, err := table.Partition(0)
	if err != nil {
		t.Fatalf("partition 0: %v", err)
	}
	if part.Name != "test" {
		t.Fatalf("partition name = %q, want %q", part.Name, "test")
	}

	fs, err := t2fs.Open(dev, part, nil)
	if err != nil {
		t.Fatalf("t2fs.Open: %v", err)
	}
	defer fs.Close()
	size, typ, err := fs.Stat("/")
	if err != nil {
		t.Fatalf("Stat(/): %v", err)
	}
	if typ != t2fs.TypeDirectory {
		t.Fatalf("root type = %v, want directory", typ)
	}
	_ = size
}

func TestRunFormatRejectsExistingImageWithoutForce(t *testing.T) {
	viper.Reset()
	imagePath := filepath.Join(t.TempDir(), "image.t2fs")

	first := newRootCmd()
	first.SetArgs([]string{imagePath, "--size", "1048576"})
	if err := first.Execute(); err != nil {
		t.Fatalf("first format: %v", err)
	}

	second := newRootCmd()
	second.SetArgs([]string{imagePath, "--size", "1048576"})
	if err := second.Execute(); err == nil {
		t.Fatalf("expected second format without --force to fail")
	}
}
