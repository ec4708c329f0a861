package t2fs

import (
	"fmt"
	"strings"
)

// splitPath breaks a path into its non-empty components. A leading '/'
// only affects where resolution starts (root vs. cwd); splitPath itself is
// agnostic to that.
func splitPath(path string) []string {
	parts := strings.Split(path, "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// resolved is the outcome of walking a path to its final component.
type resolved struct {
	parentIno uint32 // inode of the directory containing the final component
	name      string // the final path component, unresolved
	ino       uint32 // inode the final component names, 0 if it doesn't exist
	inType    InodeType
}

// resolvePath walks path starting from fs.cwdInode (relative) or RootInode
// (absolute), expanding symbolic links along the way, and returns the
// parent directory and final component. When followFinal is true and the
// final component is itself a symlink, it is expanded too; directory
// operations like mkdir/create pass false so they can see the link itself.
func (fs *FileSystem) resolvePath(path string, followFinal bool) (*resolved, error) {
	expansions := 0
	return fs.resolvePathCounting(path, followFinal, &expansions)
}

// resolvePathCounting is resolvePath's real body. It takes the symlink hop
// counter by reference so a chain of links (a -> b -> c -> ...) shares a
// single budget across every nested resolvePathCounting/followSymlinks
// call instead of each link resetting it to zero, which would turn a
// symlink loop into unbounded recursion rather than ErrTooManySymlinks.
func (fs *FileSystem) resolvePathCounting(path string, followFinal bool, expansions *int) (*resolved, error) {
	if len(path) == 0 {
		return nil, ErrInvalidPath
	}
	if len(path) > PathMax {
		return nil, ErrPathTooLong
	}
	start := fs.cwdInode
	if strings.HasPrefix(path, "/") {
		start = RootInode
	}
	comps := splitPath(path)
	if len(comps) == 0 {
		// "/" or "" after trimming: the root/cwd itself has no named parent.
		return &resolved{parentIno: start, name: ".", ino: start, inType: TypeDirectory}, nil
	}

	dir := start
	for i := 0; i < len(comps)-1; i++ {
		name := comps[i]
		if len(name) >= NameMax {
			return nil, ErrNameTooLong
		}
		childIno, err := fs.getInodeByName(dir, name)
		if err != nil {
			return nil, err
		}
		childIno, err = fs.followSymlinks(childIno, expansions)
		if err != nil {
			return nil, err
		}
		in, err := fs.readInode(childIno)
		if err != nil {
			return nil, err
		}
		if in.Type != TypeDirectory {
			return nil, ErrNotDirectory
		}
		dir = childIno
	}

	final := comps[len(comps)-1]
	if len(final) >= NameMax {
		return nil, ErrNameTooLong
	}
	childIno, err := fs.getInodeByName(dir, final)
	if err != nil {
		if err == ErrNotFound {
			return &resolved{parentIno: dir, name: final, ino: 0}, nil
		}
		return nil, err
	}
	if followFinal {
		childIno, err = fs.followSymlinks(childIno, expansions)
		if err != nil {
			return nil, err
		}
	}
	in, err := fs.readInode(childIno)
	if err != nil {
		return nil, err
	}
	return &resolved{parentIno: dir, name: final, ino: childIno, inType: in.Type}, nil
}

// followSymlinks dereferences ino as many times as it takes to reach a
// non-symlink target, bounding the chain at MaxSymlinkExpansions hops
// shared across the whole resolution via expansions.
func (fs *FileSystem) followSymlinks(ino uint32, expansions *int) (uint32, error) {
	for {
		in, err := fs.readInode(ino)
		if err != nil {
			return 0, err
		}
		if in.Type != TypeSymlink {
			return ino, nil
		}
		*expansions++
		if *expansions > MaxSymlinkExpansions {
			return 0, ErrTooManySymlinks
		}
		target, err := fs.readSymlinkTarget(in)
		if err != nil {
			return 0, err
		}
		r, err := fs.resolvePathCounting(target, true, expansions)
		if err != nil {
			return 0, err
		}
		if r.ino == 0 {
			return 0, ErrNotFound
		}
		ino = r.ino
	}
}

// readSymlinkTarget returns the path string stored in a symlink inode's
// data blocks.
func (fs *FileSystem) readSymlinkTarget(in *inode) (string, error) {
	buf := make([]byte, in.BytesSize)
	if len(buf) == 0 {
		return "", fmt.Errorf("%w: empty symlink target", ErrCorrupt)
	}
	if err := fs.readData(in, 0, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
