// Command t2fsutil inspects and moves data in and out of T2FS images
// without mounting them through the operating system.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/t2fs/t2fs/filesystem/t2fs"
)

var (
	flagImage     string
	flagPartition int
	flagLogLevel  string
)

func newLogger() *logrus.Entry {
	level, err := logrus.ParseLevel(flagLogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger := logrus.New()
	logger.SetLevel(level)
	return logrus.NewEntry(logger)
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "t2fsutil",
		Short: "Inspect and transfer files in a T2FS image",
	}
	root.PersistentFlags().StringVar(&flagImage, "image", "", "path to the T2FS backing image")
	root.PersistentFlags().IntVar(&flagPartition, "partition", 0, "MBR partition index holding the T2FS filesystem")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "warn", "logrus level: debug, info, warn, error")
	root.MarkPersistentFlagRequired("image")
	viper.BindPFlag("image", root.PersistentFlags().Lookup("image"))
	viper.SetEnvPrefix("T2FSUTIL")
	viper.AutomaticEnv()

	root.AddCommand(newLsCmd())
	root.AddCommand(newStatCmd())
	root.AddCommand(newCatCmd())
	root.AddCommand(newExportCmd())
	root.AddCommand(newImportCmd())
	root.AddCommand(newInfoCmd())
	root.AddCommand(newPartitionDumpCmd())
	return root
}

func newLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls [path]",
		Short: "List a directory's entries",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/"
			if len(args) == 1 {
				path = args[0]
			}
			log := newLogger()
			fs, err := mount(flagImage, flagPartition, true, log)
			if err != nil {
				return err
			}
			defer fs.Close()
			entries, err := fs.ReadDir(path)
			if err != nil {
				return err
			}
			for _, e := range entries {
				if e.Name == "." || e.Name == ".." {
					continue
				}
				fmt.Printf("%-10s %8d  %s\n", e.Type, e.Inode, e.Name)
			}
			return nil
		},
	}
}

func newStatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stat <path>",
		Short: "Print the size and type of a file or directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger()
			fs, err := mount(flagImage, flagPartition, true, log)
			if err != nil {
				return err
			}
			defer fs.Close()
			size, typ, err := fs.Stat(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s\t%s\t%d bytes\n", args[0], typ, size)
			return nil
		},
	}
}

func newCatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cat <path>",
		Short: "Write a file's contents to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger()
			fs, err := mount(flagImage, flagPartition, true, log)
			if err != nil {
				return err
			}
			defer fs.Close()
			return catFile(fs, args[0], os.Stdout)
		},
	}
}

// catFile streams path's contents to dst through the fixed descriptor
// table's read path, a buffer at a time.
func catFile(fs *t2fs.FileSystem, path string, dst io.Writer) error {
	fd, err := fs.Open(path)
	if err != nil {
		return err
	}
	defer fs.CloseFile(fd)
	buf := make([]byte, 64*1024)
	for {
		n, err := fs.Read(fd, buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
