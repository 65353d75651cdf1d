package vfs

import (
	"os"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Payload is the kind-specific half of an Entry: exactly one of *File or
// *Directory. The set is closed; other packages cannot add variants.
type Payload interface {
	Kind() Kind
	isPayload()
}

// Entry is one named node of the namespace.
//
// Name, payload and kind are fixed at construction. The parent link is set
// once, when the entry is inserted into a directory, and never changes.
// Attributes and the entry-level table are guarded by the entry lock.
type Entry struct {
	name    string
	payload Payload
	parent  atomic.Pointer[Directory]

	mu   sync.Mutex
	attr Attr
	ops  EntryOps
}

// NewFile allocates an unattached file entry with an empty content buffer.
func NewFile(name string) *Entry {
	return NewFileWithMode(name, DefaultFileMode)
}

// NewFileWithMode is NewFile with explicit permission bits.
func NewFileWithMode(name string, perm os.FileMode) *Entry {
	e := &Entry{name: name, attr: newAttr(KindFile, perm)}
	e.payload = &File{entry: e}
	return e
}

// NewDirectory allocates an unattached directory entry with no children.
func NewDirectory(name string) *Entry {
	return NewDirectoryWithMode(name, DefaultDirMode)
}

// NewDirectoryWithMode is NewDirectory with explicit permission bits.
func NewDirectoryWithMode(name string, perm os.FileMode) *Entry {
	e := &Entry{name: name, attr: newAttr(KindDirectory, perm)}
	e.payload = newDirectoryStore(e)
	return e
}

// Name returns the entry's name within its parent.
func (e *Entry) Name() string { return e.name }

// Kind returns the node kind. It is derived from the payload and cannot
// disagree with it.
func (e *Entry) Kind() Kind { return e.payload.Kind() }

// IsDir reports whether the entry is a directory.
func (e *Entry) IsDir() bool { return e.Kind() == KindDirectory }

// Payload returns the kind-specific payload.
func (e *Entry) Payload() Payload { return e.payload }

// File returns the file payload, or ErrIsADirectory for directories.
func (e *Entry) File() (*File, error) {
	f, ok := e.payload.(*File)
	if !ok {
		return nil, newError(ErrIsADirectory, e.Path())
	}
	return f, nil
}

// Dir returns the directory payload, or ErrNotADirectory for files.
func (e *Entry) Dir() (*Directory, error) {
	d, ok := e.payload.(*Directory)
	if !ok {
		return nil, newError(ErrNotADirectory, e.Path())
	}
	return d, nil
}

// Parent returns the owning directory, nil for the root and for entries
// not yet inserted.
func (e *Entry) Parent() *Directory {
	return e.parent.Load()
}

// Superblock returns the superblock the entry belongs to, nil while
// unattached.
func (e *Entry) Superblock() *Superblock {
	if d, ok := e.payload.(*Directory); ok {
		if sb := d.sb.Load(); sb != nil {
			return sb
		}
	}
	if p := e.Parent(); p != nil {
		return p.sb.Load()
	}
	return nil
}

// Path returns the absolute path of the entry. Unattached entries report
// their bare name.
func (e *Entry) Path() string {
	var parts []string
	cur := e
	for {
		p := cur.Parent()
		if p == nil {
			break
		}
		parts = append(parts, cur.name)
		cur = p.entry
	}

	if len(parts) == 0 {
		if e.isRoot() {
			return "/"
		}
		return e.name
	}

	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	if !cur.isRoot() {
		return path.Join(append([]string{cur.name}, parts...)...)
	}
	return "/" + strings.Join(parts, "/")
}

func (e *Entry) isRoot() bool {
	sb := e.Superblock()
	return sb != nil && sb.root == e
}

// Attr returns a snapshot of the attributes. For files the size is read
// from the file payload after the entry lock is released.
func (e *Entry) Attr() Attr {
	e.mu.Lock()
	a := e.attr
	e.mu.Unlock()

	if f, ok := e.payload.(*File); ok {
		a.Size = f.Size()
	}
	return a
}

// Inode returns the inode number (0 while unattached).
func (e *Entry) Inode() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.attr.Inode
}

// Ops returns the entry's own entry-level table.
func (e *Entry) Ops() EntryOps {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ops
}

// SetOps replaces the entry's own entry-level table.
func (e *Entry) SetOps(ops EntryOps) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ops = ops
}

// SetMode replaces the permission bits, preserving the kind bit.
func (e *Entry) SetMode(perm os.FileMode) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.attr.Mode = (e.attr.Mode &^ os.ModePerm) | perm.Perm()
	e.attr.Ctime = time.Now()
}

// SetOwner replaces uid and gid.
func (e *Entry) SetOwner(uid, gid uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.attr.UID = uid
	e.attr.GID = gid
	e.attr.Ctime = time.Now()
}

// SetTimes replaces access and modification times. Zero values are ignored.
func (e *Entry) SetTimes(atime, mtime time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !atime.IsZero() {
		e.attr.Atime = atime
	}
	if !mtime.IsZero() {
		e.attr.Mtime = mtime
	}
}

// Touch records a content modification.
func (e *Entry) Touch() {
	now := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()
	e.attr.Mtime = now
	e.attr.Ctime = now
}

func (e *Entry) setInode(inode uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.attr.Inode = inode
}

// inheritEntryDefault adopts the parent's entry-level default when the
// entry has no table of its own.
func (e *Entry) inheritEntryDefault(ops EntryOps) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ops == nil {
		e.ops = ops
	}
}
