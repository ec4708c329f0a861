package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/t2fs/t2fs/backend"
	"github.com/t2fs/t2fs/backend/file"
	"github.com/t2fs/t2fs/device"
)

// newPartitionDumpCmd copies the raw byte range of one partition straight
// out of the backing image, bypassing the T2FS layer entirely. It exists
// for recovering or diffing a partition's bytes when the filesystem inside
// it won't mount.
func newPartitionDumpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "partition-dump <host-path>",
		Short: "Write the raw bytes of one partition to a host file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger()
			storage, err := file.OpenFromPath(flagImage, true)
			if err != nil {
				return fmt.Errorf("t2fsutil: opening %s: %w", flagImage, err)
			}
			dev, part, err := openDevice(storage, flagPartition, log)
			if err != nil {
				return err
			}
			defer dev.Close()

			offset := int64(part.FirstSector) * device.SectorSize
			size := int64(part.SectorCount()) * device.SectorSize
			sub := backend.Sub(storage, offset, size)

			out, err := os.Create(args[0])
			if err != nil {
				return fmt.Errorf("t2fsutil: creating %s: %w", args[0], err)
			}
			defer out.Close()

			return copySub(sub, out, size)
		},
	}
}

// copySub drains exactly n bytes of a SubStorage view into w, in
// fixed-size chunks addressed by explicit offsets since backend.Storage's
// plain Read has no defined relationship to ReadAt's cursor.
func copySub(src backend.Storage, w io.Writer, n int64) error {
	buf := make([]byte, 256*1024)
	var pos int64
	for pos < n {
		want := int64(len(buf))
		if remaining := n - pos; remaining < want {
			want = remaining
		}
		read, err := src.ReadAt(buf[:want], pos)
		if read > 0 {
			if _, werr := w.Write(buf[:read]); werr != nil {
				return werr
			}
			pos += int64(read)
		}
		if err != nil && err != io.EOF {
			return err
		}
		if read == 0 {
			break
		}
	}
	return nil
}
