package main

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/t2fs/t2fs/backend"
	"github.com/t2fs/t2fs/backend/file"
	"github.com/t2fs/t2fs/device"
	"github.com/t2fs/t2fs/filesystem/t2fs"
	"github.com/t2fs/t2fs/partition/mbr"
)

// openDevice opens storage as a sector device and reads back its partition
// table, resolving index. On error the device is closed before returning.
func openDevice(storage backend.Storage, index int, log *logrus.Entry) (*device.Device, mbr.Partition, error) {
	dev, err := device.Open(storage, log)
	if err != nil {
		storage.Close()
		return nil, mbr.Partition{}, err
	}
	buf := make([]byte, device.SectorSize)
	if err := dev.ReadSector(0, buf); err != nil {
		dev.Close()
		return nil, mbr.Partition{}, fmt.Errorf("reading MBR sector: %w", err)
	}
	table, err := mbr.FromBytes(buf)
	if err != nil {
		dev.Close()
		return nil, mbr.Partition{}, fmt.Errorf("decoding MBR: %w", err)
	}
	part, err := table.Partition(index)
	if err != nil {
		dev.Close()
		return nil, mbr.Partition{}, err
	}
	return dev, part, nil
}

// mount opens imagePath and mounts the T2FS filesystem living in the given
// partition index. The caller is responsible for closing the returned
// filesystem, which in turn closes the device and backing storage.
func mount(imagePath string, partIndex int, readOnly bool, log *logrus.Entry) (*t2fs.FileSystem, error) {
	storage, err := file.OpenFromPath(imagePath, readOnly)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", imagePath, err)
	}
	dev, part, err := openDevice(storage, partIndex, log)
	if err != nil {
		return nil, err
	}
	return t2fs.Open(dev, part, log)
}
