//go:build aix || darwin || dragonfly || freebsd || linux || netbsd || openbsd || solaris
// +build aix darwin dragonfly freebsd linux netbsd openbsd solaris

package device

import (
	"os"

	"golang.org/x/sys/unix"
)

const blkrrpart = 0x125f

// ReReadPartitionTable asks the kernel to re-read the partition table on
// the backing device via an ioctl with request BLKRRPART. It is a no-op
// for regular files.
func (d *Device) ReReadPartitionTable() error {
	info, err := d.storage.Stat()
	if err != nil {
		return err
	}
	if info.Mode()&os.ModeDevice == 0 {
		return nil
	}
	osFile, err := d.storage.Sys()
	if err != nil {
		return err
	}
	_, err = unix.IoctlGetInt(int(osFile.Fd()), blkrrpart)
	return err
}
