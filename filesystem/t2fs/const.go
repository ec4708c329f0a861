package t2fs

// On-disk format constants. These mirror the documented T2FS source values
// and are not configurable per filesystem instance.
const (
	// SectorSize is the fixed size, in bytes, of one sector (device.SectorSize).
	SectorSize = 256

	// NameMax is the maximum length of a path component, including the
	// terminating NUL.
	NameMax = 32

	// PathMax is the maximum length of a full path string.
	PathMax = 1024

	// NumDirect is the number of direct block pointers carried by an inode.
	NumDirect = 3

	// NumIndirectLvl is the number of indirection levels (singly, doubly,
	// triply, ...) carried by an inode, beyond the direct pointers.
	NumIndirectLvl = 3

	// NumPointers is the total number of pointer slots in an inode record.
	NumPointers = NumDirect + NumIndirectLvl

	// MaxOpenRegular is the size of the regular-file descriptor pool.
	MaxOpenRegular = 10

	// MaxSymlinkExpansions bounds the number of symlink hops a single path
	// resolution will follow before failing with a loop error.
	MaxSymlinkExpansions = 128

	// Magic identifies a formatted T2FS partition.
	Magic = "os sisopeiros"

	// RootInode is the inode number of the filesystem root directory.
	RootInode = 1
)

// InodeType enumerates the kind of object an inode describes.
type InodeType uint8

const (
	// TypeInvalid marks an unused inode record.
	TypeInvalid InodeType = 0
	// TypeRegular is a regular file.
	TypeRegular InodeType = 1
	// TypeDirectory is a directory.
	TypeDirectory InodeType = 2
	// TypeSymlink is a symbolic link.
	TypeSymlink InodeType = 3
)

func (t InodeType) String() string {
	switch t {
	case TypeInvalid:
		return "invalid"
	case TypeRegular:
		return "regular"
	case TypeDirectory:
		return "directory"
	case TypeSymlink:
		return "symlink"
	default:
		return "unknown"
	}
}

// DescriptorType distinguishes the two pools of the descriptor table.
type DescriptorType uint8

const (
	// DescRegular is a descriptor for a regular-file handle.
	DescRegular DescriptorType = iota
	// DescDirectory is the single directory descriptor.
	DescDirectory
)

func (t DescriptorType) String() string {
	switch t {
	case DescRegular:
		return "regular"
	case DescDirectory:
		return "directory"
	default:
		return "unknown"
	}
}
