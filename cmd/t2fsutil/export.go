package main

import (
	"fmt"
	"os"

	"github.com/pkg/xattr"
	"github.com/spf13/cobra"
)

func newExportCmd() *cobra.Command {
	var codec string
	cmd := &cobra.Command{
		Use:   "export <t2fs-path> <host-path>",
		Short: "Copy a file out of the image onto the host filesystem",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			srcPath, dstPath := args[0], args[1]
			log := newLogger()
			fs, err := mount(flagImage, flagPartition, true, log)
			if err != nil {
				return err
			}
			defer fs.Close()

			out, err := os.Create(dstPath)
			if err != nil {
				return fmt.Errorf("t2fsutil: creating %s: %w", dstPath, err)
			}
			defer out.Close()

			w, finish, err := wrapWriter(codec, out)
			if err != nil {
				return err
			}
			if err := catFile(fs, srcPath, w); err != nil {
				return err
			}
			if err := finish(); err != nil {
				return fmt.Errorf("t2fsutil: finishing %s compression: %w", codec, err)
			}

			// Record provenance on the host copy. Not every filesystem the
			// export lands on supports extended attributes (tmpfs, some
			// network mounts), so a failure here is logged, not fatal.
			if err := xattr.Set(dstPath, "user.t2fs.source", []byte(srcPath)); err != nil {
				log.WithError(err).Debug("t2fsutil: could not tag export with source xattr")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&codec, "codec", "none", "compress the exported copy: none, lz4 or xz")
	return cmd
}
