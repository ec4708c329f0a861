// Command mkt2fs creates a new backing image file, writes a single-partition
// MBR spanning it, and formats that partition as T2FS.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/t2fs/t2fs/device"
	"github.com/t2fs/t2fs/filesystem/t2fs"
	"github.com/t2fs/t2fs/partition/mbr"
	"github.com/t2fs/t2fs/util/timestamp"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mkt2fs <image-path>",
		Short: "Create and format a T2FS image file",
		Args:  cobra.ExactArgs(1),
		RunE:  runFormat,
	}
	flags := cmd.Flags()
	flags.Int64("size", 32<<20, "size of the backing image, in bytes")
	flags.Uint16("sectors-per-block", 4, "sectors per data block (0 defaults to 4)")
	flags.String("label", "", "partition name stored in the MBR entry")
	flags.Bool("force", false, "overwrite the image path if it already exists")
	flags.String("log-level", "info", "logrus level: debug, info, warn, error")

	viper.BindPFlag("size", flags.Lookup("size"))
	viper.BindPFlag("sectors-per-block", flags.Lookup("sectors-per-block"))
	viper.BindPFlag("label", flags.Lookup("label"))
	viper.BindPFlag("force", flags.Lookup("force"))
	viper.BindPFlag("log-level", flags.Lookup("log-level"))
	viper.SetEnvPrefix("MKT2FS")
	viper.AutomaticEnv()

	return cmd
}

func runFormat(cmd *cobra.Command, args []string) error {
	imagePath := args[0]

	level, err := logrus.ParseLevel(viper.GetString("log-level"))
	if err != nil {
		return fmt.Errorf("mkt2fs: %w", err)
	}
	logger := logrus.New()
	logger.SetLevel(level)
	log := logrus.NewEntry(logger)

	if viper.GetBool("force") {
		if err := os.Remove(imagePath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("mkt2fs: removing existing image: %w", err)
		}
	}

	size := viper.GetInt64("size")
	dev, err := device.CreateFile(imagePath, size, log)
	if err != nil {
		return fmt.Errorf("mkt2fs: %w", err)
	}

	totalSectors := dev.TotalSectors()
	if totalSectors < 2 {
		dev.Close()
		return fmt.Errorf("mkt2fs: image of %d bytes too small for an MBR sector plus data", size)
	}

	table := mbr.New(device.SectorSize)
	table.Partitions[0] = mbr.Partition{
		FirstSector: 1,
		LastSector:  totalSectors - 1,
		Name:        viper.GetString("label"),
	}
	mbrBytes, err := table.ToBytes(device.SectorSize)
	if err != nil {
		dev.Close()
		return fmt.Errorf("mkt2fs: encoding MBR: %w", err)
	}
	if err := dev.WriteSector(0, mbrBytes); err != nil {
		dev.Close()
		return fmt.Errorf("mkt2fs: writing MBR: %w", err)
	}

	// Format takes over dev; from here its lifetime is tied to fs.
	sectorsPerBlock := uint16(viper.GetInt("sectors-per-block"))
	fs, err := t2fs.Format(dev, table.Partitions[0], sectorsPerBlock, log)
	if err != nil {
		dev.Close()
		return fmt.Errorf("mkt2fs: %w", err)
	}
	defer fs.Close()

	log.WithFields(logrus.Fields{
		"image":     imagePath,
		"size":      size,
		"formatted": timestamp.GetTime(),
	}).Info("mkt2fs: image ready")
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

