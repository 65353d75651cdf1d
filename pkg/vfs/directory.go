package vfs

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/petar/GoLLRB/llrb"
)

// child is the tree item stored in a directory: entries ordered by name.
type child struct {
	name  string
	entry *Entry
}

func (c child) Less(than llrb.Item) bool {
	return c.name < than.(child).name
}

// Directory is the payload of a directory entry: an ordered, name-keyed
// child set plus the inheritable default tables.
//
// The read/write lock is held shared for lookup and enumeration and
// exclusive for insertion and for table changes.
type Directory struct {
	entry *Entry
	sb    atomic.Pointer[Superblock]

	mu       sync.RWMutex
	children *llrb.LLRB
	ops      DirOps
	defaults Defaults
}

func newDirectoryStore(e *Entry) *Directory {
	return &Directory{entry: e, children: llrb.New()}
}

func (*Directory) Kind() Kind { return KindDirectory }
func (*Directory) isPayload() {}

// Entry returns the entry owning this store.
func (d *Directory) Entry() *Entry { return d.entry }

// Superblock returns the superblock, nil while the directory is unattached.
func (d *Directory) Superblock() *Superblock { return d.sb.Load() }

// Ops returns the directory's own table.
func (d *Directory) Ops() DirOps {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.ops
}

// SetOps replaces the directory's own table.
func (d *Directory) SetOps(ops DirOps) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ops = ops
}

// Defaults returns the tables children of this directory fall back to.
func (d *Directory) Defaults() Defaults {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.defaults
}

// SetDefaults replaces the inheritable default tables. Nil members clear
// the directory-level default so dispatch falls through to the superblock.
func (d *Directory) SetDefaults(defs Defaults) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.defaults = defs
}

// SetFileDefault replaces only the file-default table.
func (d *Directory) SetFileDefault(ops FileOps) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.defaults.File = ops
}

// Lookup finds a direct child by exact name.
func (d *Directory) Lookup(name string) (*Entry, error) {
	d.mu.RLock()
	item := d.children.Get(child{name: name})
	d.mu.RUnlock()

	if item == nil {
		return nil, newError(ErrNotFound, joinPath(d.entry.Path(), name))
	}
	return item.(child).entry, nil
}

// Len returns the number of children.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.children.Len()
}

// Children returns a snapshot of the children in name order.
func (d *Directory) Children() []*Entry {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]*Entry, 0, d.children.Len())
	d.children.AscendGreaterOrEqual(child{}, func(i llrb.Item) bool {
		out = append(out, i.(child).entry)
		return true
	})
	return out
}

// Add inserts a freshly created, unattached entry.
//
// Insertion happens under the exclusive directory lock and fails with
// ErrNameCollision, leaving the directory unchanged, when the name is
// taken. The parent link and inode are recorded before the entry becomes
// visible. After the lock is released the entry inherits this directory's
// defaults and the superblock file counter is incremented.
func (d *Directory) Add(e *Entry) error {
	if err := ValidateName(e.name); err != nil {
		return err
	}
	sb := d.sb.Load()
	if sb == nil {
		return Errorf(ErrInvalidArgument, d.entry.name, "directory is not attached to a filesystem")
	}
	if e.Parent() != nil || e.isRoot() {
		return Errorf(ErrInvalidArgument, e.Path(), "entry is already attached")
	}

	if err := d.insert(sb, e); err != nil {
		return err
	}

	defs := d.Defaults()
	e.inheritEntryDefault(defs.Entry)
	if sub, ok := e.payload.(*Directory); ok {
		sub.inheritDefaults(defs)
	}

	sb.incFileCount()
	return nil
}

func (d *Directory) insert(sb *Superblock, e *Entry) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	item := child{name: e.name, entry: e}
	if d.children.Has(item) {
		return newError(ErrNameCollision, joinPath(d.entry.Path(), e.name))
	}

	if !e.parent.CompareAndSwap(nil, d) {
		return Errorf(ErrInvalidArgument, e.name, "entry is already attached")
	}
	if sub, ok := e.payload.(*Directory); ok {
		sub.sb.Store(sb)
	}
	e.setInode(sb.allocInode())

	d.children.InsertNoReplace(item)
	return nil
}

// inheritDefaults fills unset default tables from the parent's.
func (d *Directory) inheritDefaults(parent Defaults) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.defaults = d.defaults.merge(parent)
}

// CreateFile allocates a file named name and inserts it.
func (d *Directory) CreateFile(name string) (*Entry, error) {
	e := NewFile(name)
	if err := d.Add(e); err != nil {
		return nil, err
	}
	return e, nil
}

// CreateDirectory allocates a directory named name and inserts it.
func (d *Directory) CreateDirectory(name string) (*Entry, error) {
	e := NewDirectory(name)
	if err := d.Add(e); err != nil {
		return nil, err
	}
	return e, nil
}

// ValidateName rejects names that cannot appear as a single path segment.
func ValidateName(name string) error {
	switch {
	case name == "":
		return Errorf(ErrInvalidArgument, "", "empty name")
	case name == "." || name == "..":
		return Errorf(ErrInvalidArgument, name, "reserved name")
	case strings.ContainsRune(name, '/'):
		return Errorf(ErrInvalidArgument, name, "name contains a path separator")
	case strings.ContainsRune(name, 0):
		return Errorf(ErrInvalidArgument, name, "name contains NUL")
	}
	return nil
}

func joinPath(dir, name string) string {
	if dir == "/" {
		return "/" + name
	}
	return dir + "/" + name
}
