package t2fs

import (
	"testing"

	"github.com/t2fs/t2fs/device"
	"github.com/t2fs/t2fs/testhelper"
)

func newTestCache(t *testing.T, numSectors uint32) *sectorCache {
	t.Helper()
	buf := make([]byte, int(numSectors)*device.SectorSize)
	storage := testhelper.NewMemoryStorage(buf)
	dev, err := device.Open(storage, nil)
	if err != nil {
		t.Fatalf("device.Open: %v", err)
	}
	return newSectorCache(dev, 0, numSectors)
}

func TestBitmapRegionSetClearCheck(t *testing.T) {
	cache := newTestCache(t, 4)
	r := newBitmapRegion(cache, 0, 64)

	for _, n := range []uint32{1, 2, 63} {
		set, err := r.check(n)
		if err != nil {
			t.Fatalf("check(%d): %v", n, err)
		}
		if set {
			t.Fatalf("bit %d should start clear", n)
		}
	}

	if err := r.set(2); err != nil {
		t.Fatalf("set(2): %v", err)
	}
	set, err := r.check(2)
	if err != nil || !set {
		t.Fatalf("check(2) after set = %v, %v; want true, nil", set, err)
	}
	// A neighbouring bit in the same byte must be unaffected.
	set, err = r.check(1)
	if err != nil || set {
		t.Fatalf("check(1) after setting 2 = %v, %v; want false, nil", set, err)
	}

	if err := r.clear(2); err != nil {
		t.Fatalf("clear(2): %v", err)
	}
	set, err = r.check(2)
	if err != nil || set {
		t.Fatalf("check(2) after clear = %v, %v; want false, nil", set, err)
	}
}

func TestBitmapRegionFirstFreeSkipsReservedZero(t *testing.T) {
	cache := newTestCache(t, 4)
	r := newBitmapRegion(cache, 0, 16)
	if err := r.set(0); err != nil {
		t.Fatalf("set(0): %v", err)
	}
	n, err := r.firstFree()
	if err != nil {
		t.Fatalf("firstFree: %v", err)
	}
	if n != 1 {
		t.Fatalf("firstFree = %d, want 1", n)
	}
	for i := uint32(1); i < 16; i++ {
		if err := r.set(i); err != nil {
			t.Fatalf("set(%d): %v", i, err)
		}
	}
	n, err = r.firstFree()
	if err != nil {
		t.Fatalf("firstFree on saturated region: %v", err)
	}
	if n != 0 {
		t.Fatalf("firstFree on saturated region = %d, want 0 (no free bits)", n)
	}
}

func TestBitmapRegionCountSet(t *testing.T) {
	cache := newTestCache(t, 4)
	r := newBitmapRegion(cache, 0, 20)

	count, err := r.countSet()
	if err != nil {
		t.Fatalf("countSet on empty region: %v", err)
	}
	if count != 0 {
		t.Fatalf("countSet on empty region = %d, want 0", count)
	}

	for _, n := range []uint32{0, 3, 9, 19} {
		if err := r.set(n); err != nil {
			t.Fatalf("set(%d): %v", n, err)
		}
	}
	count, err = r.countSet()
	if err != nil {
		t.Fatalf("countSet: %v", err)
	}
	if count != 4 {
		t.Fatalf("countSet = %d, want 4", count)
	}

	if err := r.clear(3); err != nil {
		t.Fatalf("clear(3): %v", err)
	}
	count, err = r.countSet()
	if err != nil {
		t.Fatalf("countSet after clear: %v", err)
	}
	if count != 3 {
		t.Fatalf("countSet after clear = %d, want 3", count)
	}
}

func TestBitmapRegionOutOfRange(t *testing.T) {
	cache := newTestCache(t, 4)
	r := newBitmapRegion(cache, 0, 8)
	if _, err := r.check(8); err == nil {
		t.Fatalf("check(8) on an 8-bit region should fail")
	}
	if err := r.set(100); err == nil {
		t.Fatalf("set(100) on an 8-bit region should fail")
	}
}
