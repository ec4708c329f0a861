package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/djherbis/times.v1"
)

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Print filesystem and host file metadata for the image",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger()
			fs, err := mount(flagImage, flagPartition, true, log)
			if err != nil {
				return err
			}
			defer fs.Close()

			fmt.Printf("magic:     %s\n", fs.Identify())
			rootSize, rootType, err := fs.Stat("/")
			if err != nil {
				return err
			}
			fmt.Printf("root:      %s, %d bytes\n", rootType, rootSize)

			stat, err := fs.StatFS()
			if err != nil {
				return err
			}
			fmt.Printf("inodes:    %d free / %d total\n", stat.FreeInodes, stat.TotalInodes)
			fmt.Printf("blocks:    %d free / %d total (%d bytes/block)\n", stat.FreeBlocks, stat.TotalBlocks, stat.BlockSize)

			t, err := times.Stat(flagImage)
			if err != nil {
				return fmt.Errorf("t2fsutil: host timestamps for %s: %w", flagImage, err)
			}
			fmt.Printf("image mtime: %s\n", t.ModTime())
			fmt.Printf("image atime: %s\n", t.AccessTime())
			if t.HasChangeTime() {
				fmt.Printf("image ctime: %s\n", t.ChangeTime())
			}
			if t.HasBirthTime() {
				fmt.Printf("image birth: %s\n", t.BirthTime())
			}
			return nil
		},
	}
}
