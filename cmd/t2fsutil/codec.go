package main

import (
	"fmt"
	"io"

	"github.com/pierrec/lz4"
	"github.com/ulikunitz/xz"
)

// wrapWriter returns a writer that compresses everything written to it with
// the named codec before handing it to w, plus a flush/close step the
// caller must run when done. "none" returns w unchanged with a no-op close.
func wrapWriter(codec string, w io.Writer) (io.Writer, func() error, error) {
	switch codec {
	case "", "none":
		return w, func() error { return nil }, nil
	case "lz4":
		lw := lz4.NewWriter(w)
		return lw, lw.Close, nil
	case "xz":
		xw, err := xz.NewWriter(w)
		if err != nil {
			return nil, nil, fmt.Errorf("t2fsutil: xz writer: %w", err)
		}
		return xw, xw.Close, nil
	default:
		return nil, nil, fmt.Errorf("t2fsutil: unknown codec %q, want none, lz4 or xz", codec)
	}
}

// wrapReader returns a reader that decompresses r with the named codec as
// it is read. "none" returns r unchanged.
func wrapReader(codec string, r io.Reader) (io.Reader, error) {
	switch codec {
	case "", "none":
		return r, nil
	case "lz4":
		return lz4.NewReader(r), nil
	case "xz":
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("t2fsutil: xz reader: %w", err)
		}
		return xr, nil
	default:
		return nil, fmt.Errorf("t2fsutil: unknown codec %q, want none, lz4 or xz", codec)
	}
}
