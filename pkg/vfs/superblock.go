package vfs

import (
	"os"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// RootInode is the inode number of the root directory.
const RootInode uint64 = 1

// Superblock is the root container of one mounted filesystem instance.
//
// It owns the root directory, the global file counter and the
// filesystem-wide default tables, the last tier of every fallback chain.
type Superblock struct {
	id         uuid.UUID
	mountPoint string
	readOnly   atomic.Bool
	root       *Entry

	// countMu orders increments of fileCount only. It is never held
	// together with a directory, entry or file lock.
	countMu   sync.Mutex
	fileCount uint64

	nextInode atomic.Uint64

	defaultsMu sync.RWMutex
	defaults   Defaults
}

// SuperblockOptions configures a new superblock.
type SuperblockOptions struct {
	// MountPoint is recorded verbatim; Filesystem resolves it against the
	// working directory.
	MountPoint string

	// Defaults are the filesystem-wide default tables. The root directory
	// starts with the same tables as its own defaults.
	Defaults Defaults

	// RootMode holds the permission bits of the root directory.
	// Zero selects DefaultDirMode.
	RootMode os.FileMode

	// ReadOnly marks the whole namespace as read-only for capability checks.
	ReadOnly bool
}

// NewSuperblock creates a superblock with an empty root directory.
func NewSuperblock(opts SuperblockOptions) *Superblock {
	sb := &Superblock{
		id:         uuid.New(),
		mountPoint: opts.MountPoint,
		defaults:   opts.Defaults,
	}
	sb.readOnly.Store(opts.ReadOnly)
	sb.nextInode.Store(RootInode)

	mode := DefaultDirMode
	if opts.RootMode != 0 {
		mode = opts.RootMode
	}

	root := NewDirectoryWithMode("/", mode)
	root.attr.Inode = RootInode
	root.ops = opts.Defaults.Entry

	dir := root.payload.(*Directory)
	dir.sb.Store(sb)
	dir.defaults = opts.Defaults

	sb.root = root
	return sb
}

// ID returns the instance identifier generated at construction.
func (sb *Superblock) ID() uuid.UUID { return sb.id }

// MountPoint returns the mount point exactly as configured.
func (sb *Superblock) MountPoint() string { return sb.mountPoint }

// ReadOnly reports whether the namespace refuses writes.
func (sb *Superblock) ReadOnly() bool { return sb.readOnly.Load() }

// SetReadOnly switches the namespace between read-only and writable, for
// example after populating it.
func (sb *Superblock) SetReadOnly(ro bool) { sb.readOnly.Store(ro) }

// Root returns the root directory entry.
func (sb *Superblock) Root() *Entry { return sb.root }

// RootDir returns the root directory store.
func (sb *Superblock) RootDir() *Directory { return sb.root.payload.(*Directory) }

// FileCount returns the number of successful insertions so far.
func (sb *Superblock) FileCount() uint64 {
	sb.countMu.Lock()
	defer sb.countMu.Unlock()
	return sb.fileCount
}

func (sb *Superblock) incFileCount() {
	sb.countMu.Lock()
	defer sb.countMu.Unlock()
	sb.fileCount++
}

func (sb *Superblock) allocInode() uint64 {
	return sb.nextInode.Add(1)
}

// Defaults returns the filesystem-wide default tables.
func (sb *Superblock) Defaults() Defaults {
	sb.defaultsMu.RLock()
	defer sb.defaultsMu.RUnlock()
	return sb.defaults
}

// SetDefaults replaces the filesystem-wide default tables. Nodes created
// earlier still reach them through dispatch fallback.
func (sb *Superblock) SetDefaults(defs Defaults) {
	sb.defaultsMu.Lock()
	defer sb.defaultsMu.Unlock()
	sb.defaults = defs
}
