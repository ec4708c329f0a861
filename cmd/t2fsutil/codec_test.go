package main

import (
	"bytes"
	"io"
	"testing"
)

func roundTrip(t *testing.T, codec string) {
	t.Helper()
	var compressed bytes.Buffer
	w, finish, err := wrapWriter(codec, &compressed)
	if err != nil {
		t.Fatalf("wrapWriter(%s): %v", codec, err)
	}
	want := []byte("the quick brown fox jumps over the lazy dog, repeated: " +
		"the quick brown fox jumps over the lazy dog")
	if _, err := w.Write(want); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := finish(); err != nil {
		t.Fatalf("finish: %v", err)
	}

	r, err := wrapReader(codec, &compressed)
	if err != nil {
		t.Fatalf("wrapReader(%s): %v", codec, err)
	}
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("round trip via %s mismatch: got %q, want %q", codec, got, want)
	}
}

func TestCodecRoundTripNone(t *testing.T) { roundTrip(t, "none") }
func TestCodecRoundTripLZ4(t *testing.T)  { roundTrip(t, "lz4") }
func TestCodecRoundTripXZ(t *testing.T)   { roundTrip(t, "xz") }

func TestCodecUnknownRejected(t *testing.T) {
	if _, _, err := wrapWriter("bogus", &bytes.Buffer{}); err == nil {
		t.Fatalf("expected error for unknown codec")
	}
	if _, err := wrapReader("bogus", &bytes.Buffer{}); err == nil {
		t.Fatalf("expected error for unknown codec")
	}
}
