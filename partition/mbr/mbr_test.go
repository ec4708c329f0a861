package mbr_test

import (
	"testing"

	"github.com/t2fs/t2fs/partition/mbr"
)

func TestRoundTrip(t *testing.T) {
	table := mbr.New(256)
	table.Partitions[0] = mbr.Partition{FirstSector: 1, LastSector: 2047, Name: "t2fs"}

	b, err := table.ToBytes(256)
	if err != nil {
		t.Fatalf("ToBytes: %v", err)
	}
	if len(b) != 256 {
		t.Fatalf("expected 256 byte sector, got %d", len(b))
	}

	decoded, err := mbr.FromBytes(b)
	if err != nil {
		t.Fatalf("FromBytes: %v", err)
	}
	if decoded.Version != mbr.Version {
		t.Errorf("version = %#04x, want %#04x", decoded.Version, mbr.Version)
	}
	got, err := decoded.Partition(0)
	if err != nil {
		t.Fatalf("Partition(0): %v", err)
	}
	if got.FirstSector != 1 || got.LastSector != 2047 || got.Name != "t2fs" {
		t.Errorf("partition 0 = %+v, want {1 2047 t2fs}", got)
	}
	if _, err := decoded.Partition(1); err == nil {
		t.Errorf("expected error reading unused partition 1")
	}
}

func TestFromBytesRejectsBadVersion(t *testing.T) {
	b := make([]byte, 256)
	b[0], b[1] = 0x00, 0x00
	if _, err := mbr.FromBytes(b); err == nil {
		t.Errorf("expected error for bad version")
	}
}

func TestFromBytesRejectsShortSector(t *testing.T) {
	if _, err := mbr.FromBytes(make([]byte, 4)); err == nil {
		t.Errorf("expected error for short sector")
	}
}

func TestToBytesRejectsLongName(t *testing.T) {
	table := mbr.New(256)
	table.Partitions[0] = mbr.Partition{FirstSector: 1, LastSector: 2, Name: "this-name-is-far-too-long-for-the-field"}
	if _, err := table.ToBytes(256); err == nil {
		t.Errorf("expected error for over-long partition name")
	}
}
