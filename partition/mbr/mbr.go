// Package mbr reads and writes the T2FS master boot record: the fixed,
// 8-byte-header partition table that lives in sector 0 of the backing
// device and names up to four partitions.
//
// This is not a PC-BIOS MBR. It is the small, custom layout documented by
// the T2FS on-disk format: a version/sector-size/offset/count header
// followed by four fixed-width partition entries. There is no boot code,
// no CHS geometry and no 0x55AA signature.
package mbr

import (
	"encoding/binary"
	"fmt"
)

const (
	// Version identifies the MBR layout itself.
	Version uint16 = 0x7E31
	// HeaderSize is the length, in bytes, of the fixed MBR header.
	HeaderSize = 8
	// EntrySize is the length, in bytes, of one partition table entry.
	EntrySize = 32
	// NumEntries is the number of partition entries the table always carries.
	NumEntries = 4
	// NameSize is the length, in bytes, of a partition's name field.
	NameSize = 24
	// TableOffset is the byte offset of the partition table within the MBR sector.
	TableOffset uint16 = HeaderSize
)

// Partition describes one entry of the partition table. Sector numbers are
// absolute, device-relative sector indices, inclusive on both ends.
type Partition struct {
	FirstSector uint32
	LastSector  uint32
	Name        string
}

// SectorCount returns the number of sectors the partition occupies.
func (p Partition) SectorCount() uint32 {
	if p.LastSector < p.FirstSector {
		return 0
	}
	return p.LastSector - p.FirstSector + 1
}

// Empty reports whether the entry names no partition at all.
func (p Partition) Empty() bool {
	return p.FirstSector == 0 && p.LastSector == 0
}

// Table is the decoded MBR: the header plus its four partition entries.
type Table struct {
	Version    uint16
	SectorSize uint16
	Partitions [NumEntries]Partition
}

// New builds a zeroed table with the current version and sector size stamped in.
func New(sectorSize uint16) *Table {
	return &Table{Version: Version, SectorSize: sectorSize}
}

// FromBytes decodes a Table from one raw MBR sector.
func FromBytes(b []byte) (*Table, error) {
	if len(b) < HeaderSize+NumEntries*EntrySize {
		return nil, fmt.Errorf("mbr: sector too short: %d bytes", len(b))
	}
	t := &Table{
		Version:    binary.LittleEndian.Uint16(b[0:2]),
		SectorSize: binary.LittleEndian.Uint16(b[2:4]),
	}
	tableOffset := binary.LittleEndian.Uint16(b[4:6])
	entryCount := binary.LittleEndian.Uint16(b[6:8])
	if t.Version != Version {
		return nil, fmt.Errorf("mbr: unknown version %#04x, expected %#04x", t.Version, Version)
	}
	if tableOffset != TableOffset {
		return nil, fmt.Errorf("mbr: unexpected partition table offset %d, expected %d", tableOffset, TableOffset)
	}
	if int(entryCount) > NumEntries {
		return nil, fmt.Errorf("mbr: partition table claims %d entries, max is %d", entryCount, NumEntries)
	}
	for i := 0; i < int(entryCount); i++ {
		off := int(tableOffset) + i*EntrySize
		entry := b[off : off+EntrySize]
		name := entry[8:EntrySize]
		nameLen := 0
		for nameLen < len(name) && name[nameLen] != 0 {
			nameLen++
		}
		t.Partitions[i] = Partition{
			FirstSector: binary.LittleEndian.Uint32(entry[0:4]),
			LastSector:  binary.LittleEndian.Uint32(entry[4:8]),
			Name:        string(name[:nameLen]),
		}
	}
	return t, nil
}

// ToBytes encodes the table ready to be written to sector 0. The returned
// slice is exactly sectorSize bytes, zero-padded past the table.
func (t *Table) ToBytes(sectorSize int) ([]byte, error) {
	needed := HeaderSize + NumEntries*EntrySize
	if sectorSize < needed {
		return nil, fmt.Errorf("mbr: sector size %d too small to hold MBR, need at least %d", sectorSize, needed)
	}
	b := make([]byte, sectorSize)
	binary.LittleEndian.PutUint16(b[0:2], Version)
	binary.LittleEndian.PutUint16(b[2:4], t.SectorSize)
	binary.LittleEndian.PutUint16(b[4:6], TableOffset)
	binary.LittleEndian.PutUint16(b[6:8], NumEntries)
	for i, p := range t.Partitions {
		if len(p.Name) > NameSize {
			return nil, fmt.Errorf("mbr: partition %d name %q longer than %d bytes", i, p.Name, NameSize)
		}
		off := int(TableOffset) + i*EntrySize
		entry := b[off : off+EntrySize]
		binary.LittleEndian.PutUint32(entry[0:4], p.FirstSector)
		binary.LittleEndian.PutUint32(entry[4:8], p.LastSector)
		copy(entry[8:EntrySize], p.Name)
	}
	return b, nil
}

// Partition returns the entry at the given fixed index, validating bounds.
func (t *Table) Partition(index int) (Partition, error) {
	if index < 0 || index >= NumEntries {
		return Partition{}, fmt.Errorf("mbr: partition index %d out of range [0,%d)", index, NumEntries)
	}
	p := t.Partitions[index]
	if p.Empty() {
		return Partition{}, fmt.Errorf("mbr: partition index %d is not in use", index)
	}
	return p, nil
}
