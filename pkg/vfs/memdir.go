package vfs

import (
	"os"
)

// MemoryDirOps is the reference directory table.
type MemoryDirOps struct{}

// Create allocates a file, or a directory when mode has os.ModeDir, and
// inserts it into d. The caller, when known, owns the new node.
func (MemoryDirOps) Create(op *OpContext, d *Directory, name string, mode os.FileMode) (*Entry, error) {
	var e *Entry
	if mode&os.ModeDir != 0 {
		e = NewDirectoryWithMode(name, mode.Perm())
	} else {
		e = NewFileWithMode(name, mode.Perm())
	}
	if op != nil && op.Caller != nil {
		e.SetOwner(op.Caller.UID, op.Caller.GID)
	}

	if err := d.Add(e); err != nil {
		return nil, err
	}
	return e, nil
}

func (MemoryDirOps) Open(op *OpContext, d *Directory) error  { return nil }
func (MemoryDirOps) Close(op *OpContext, d *Directory) error { return nil }

// ReadDir lists ".", ".." and then every child in name order.
func (MemoryDirOps) ReadDir(op *OpContext, d *Directory) ([]DirEntry, error) {
	children := d.Children()

	parentInode := d.entry.Inode()
	if p := d.entry.Parent(); p != nil {
		parentInode = p.entry.Inode()
	}

	out := make([]DirEntry, 0, len(children)+2)
	out = append(out,
		DirEntry{Name: ".", Inode: d.entry.Inode(), Kind: KindDirectory},
		DirEntry{Name: "..", Inode: parentInode, Kind: KindDirectory},
	)
	for _, c := range children {
		out = append(out, DirEntry{Name: c.name, Inode: c.Inode(), Kind: c.Kind()})
	}
	return out, nil
}

func (MemoryDirOps) Getattr(op *OpContext, d *Directory) (Attr, error) {
	return d.entry.Attr(), nil
}

func (MemoryDirOps) Release(op *OpContext, d *Directory) error { return nil }

// GenericEntryOps is the reference entry-level table: an attribute
// snapshot, a no-op release and a stub capability check that only refuses
// writes on a read-only superblock.
type GenericEntryOps struct{}

func (GenericEntryOps) Getattr(op *OpContext, e *Entry) (Attr, error) {
	return e.Attr(), nil
}

func (GenericEntryOps) Release(op *OpContext, e *Entry) error { return nil }

func (GenericEntryOps) IsCapable(op *OpContext, e *Entry, mask AccessMask) error {
	if mask&AccessWrite == 0 {
		return nil
	}
	if sb := e.Superblock(); sb != nil && sb.ReadOnly() {
		return newError(ErrReadOnly, e.Path())
	}
	return nil
}

// MemoryDefaults returns the reference default tables: every node keeps
// its content in memory.
func MemoryDefaults(budget *Budget, maxFileSize int64) Defaults {
	return Defaults{
		Entry: GenericEntryOps{},
		File:  &MemoryFileOps{Budget: budget, MaxFileSize: maxFileSize},
		Dir:   MemoryDirOps{},
	}
}

// ReadOnlyFileOps wraps a table and refuses write and truncate. Every
// other operation is forwarded through explicit methods, so a wrapped
// table that lacks one of them makes the wrapper report ErrNotImplemented
// rather than deferring down the chain.
type ReadOnlyFileOps struct {
	Inner FileOps
}

func (r ReadOnlyFileOps) Open(op *OpContext, f *File) error {
	if o, ok := r.Inner.(FileOpener); ok {
		return o.Open(op, f)
	}
	return newError(ErrNotImplemented, f.entry.Path())
}

func (r ReadOnlyFileOps) Close(op *OpContext, f *File) error {
	if c, ok := r.Inner.(FileCloser); ok {
		return c.Close(op, f)
	}
	return newError(ErrNotImplemented, f.entry.Path())
}

func (r ReadOnlyFileOps) Read(op *OpContext, f *File, p []byte, off int64) (int, error) {
	if rd, ok := r.Inner.(FileReader); ok {
		return rd.Read(op, f, p, off)
	}
	return 0, newError(ErrNotImplemented, f.entry.Path())
}

func (r ReadOnlyFileOps) Write(op *OpContext, f *File, p []byte, off int64) (int, error) {
	return 0, newError(ErrReadOnly, f.entry.Path())
}

func (r ReadOnlyFileOps) Truncate(op *OpContext, f *File, size int64) error {
	return newError(ErrReadOnly, f.entry.Path())
}

func (r ReadOnlyFileOps) Getattr(op *OpContext, f *File) (Attr, error) {
	var a Attr
	if g, ok := r.Inner.(FileGetattrer); ok {
		var err error
		if a, err = g.Getattr(op, f); err != nil {
			return Attr{}, err
		}
	} else {
		a = f.entry.Attr()
	}
	a.Mode &^= 0o222
	return a, nil
}
