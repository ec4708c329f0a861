package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/t2fs/t2fs/filesystem/t2fs"
)

func newImportCmd() *cobra.Command {
	var codec string
	cmd := &cobra.Command{
		Use:   "import <host-path> <t2fs-path>",
		Short: "Copy a file from the host filesystem into the image",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			srcPath, dstPath := args[0], args[1]
			log := newLogger()
			fs, err := mount(flagImage, flagPartition, false, log)
			if err != nil {
				return err
			}
			defer fs.Close()

			in, err := os.Open(srcPath)
			if err != nil {
				return fmt.Errorf("t2fsutil: opening %s: %w", srcPath, err)
			}
			defer in.Close()

			r, err := wrapReader(codec, in)
			if err != nil {
				return err
			}
			return writeFile(fs, dstPath, r)
		},
	}
	cmd.Flags().StringVar(&codec, "codec", "none", "decompress the source before importing: none, lz4 or xz")
	return cmd
}

// writeFile creates (or truncates) path and copies all of src into it
// through the fixed descriptor table's write path.
func writeFile(fs *t2fs.FileSystem, path string, src io.Reader) error {
	fd, err := fs.Create(path)
	if err != nil {
		return err
	}
	defer fs.CloseFile(fd)
	buf := make([]byte, 64*1024)
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := fs.Write(fd, buf[:n]); werr != nil {
				return werr
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return rerr
		}
	}
}
