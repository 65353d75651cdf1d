package vfs

import (
	"os"
	"time"
)

// DirectorySize is the logical size reported for every directory.
const DirectorySize = 4096

// Default permission bits for nodes created without an explicit mode.
const (
	DefaultFileMode os.FileMode = 0o644
	DefaultDirMode  os.FileMode = 0o755
)

// Kind distinguishes the two mutually exclusive node kinds.
type Kind int

const (
	KindFile Kind = iota
	KindDirectory
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "directory"
	default:
		return "unknown"
	}
}

// Attr is the POSIX-style metadata of an entry.
type Attr struct {
	// Mode holds the permission bits plus os.ModeDir for directories
	Mode os.FileMode

	// Size is the logical content size in bytes (DirectorySize for directories)
	Size int64

	UID   uint32
	GID   uint32
	Nlink uint32

	// Inode is assigned when the entry is inserted into a directory.
	// Unattached entries report 0; the root is always RootInode.
	Inode uint64

	Atime time.Time
	Mtime time.Time
	Ctime time.Time
}

// IsDir reports whether the mode carries the directory bit.
func (a Attr) IsDir() bool {
	return a.Mode&os.ModeDir != 0
}

// AccessMask is the set of capabilities requested from an access check.
// Bit values match the access(2) R_OK/W_OK/X_OK constants.
type AccessMask uint32

const (
	AccessExec  AccessMask = 1
	AccessWrite AccessMask = 2
	AccessRead  AccessMask = 4
)

// DirEntry is one row produced by directory enumeration.
type DirEntry struct {
	Name  string
	Inode uint64
	Kind  Kind
}

// AttrChanges describes a partial attribute update. Nil fields are left
// untouched.
type AttrChanges struct {
	Size  *int64
	Mode  *os.FileMode
	UID   *uint32
	GID   *uint32
	Atime *time.Time
	Mtime *time.Time
}

func newAttr(kind Kind, perm os.FileMode) Attr {
	now := time.Now()
	a := Attr{
		Mode:  perm.Perm(),
		UID:   uint32(os.Getuid()),
		GID:   uint32(os.Getgid()),
		Nlink: 1,
		Atime: now,
		Mtime: now,
		Ctime: now,
	}
	if kind == KindDirectory {
		a.Mode |= os.ModeDir
		a.Size = DirectorySize
		a.Nlink = 2
	}
	return a
}
