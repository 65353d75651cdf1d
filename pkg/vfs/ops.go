package vfs

import (
	"context"
	"os"
)

// EntryOps, DirOps and FileOps are operation tables. A table is any value;
// it participates in dispatch for every operation interface below that it
// implements. A table that implements nothing is legal and simply defers
// every operation to the next tier of the fallback chain.
type (
	EntryOps any
	DirOps   any
	FileOps  any
)

// Defaults groups the three inheritable default tables carried by the
// superblock and by every directory.
type Defaults struct {
	Entry EntryOps
	File  FileOps
	Dir   DirOps
}

// merge fills nil tables of d from parent.
func (d Defaults) merge(parent Defaults) Defaults {
	if d.Entry == nil {
		d.Entry = parent.Entry
	}
	if d.File == nil {
		d.File = parent.File
	}
	if d.Dir == nil {
		d.Dir = parent.Dir
	}
	return d
}

// Caller identifies the process on whose behalf an operation runs.
type Caller struct {
	UID uint32
	GID uint32
	PID uint32
}

type callerKey struct{}

// WithCaller attaches caller identity to ctx.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// CallerFrom returns the caller attached by WithCaller.
func CallerFrom(ctx context.Context) (Caller, bool) {
	if ctx == nil {
		return Caller{}, false
	}
	c, ok := ctx.Value(callerKey{}).(Caller)
	return c, ok
}

// OpContext is passed explicitly to every table operation. It replaces any
// notion of an ambient "current filesystem".
type OpContext struct {
	// Context carries cancellation from the adapter. Core operations run to
	// completion; providers doing I/O should honour it.
	Context context.Context

	// FS is the filesystem handle the operation was dispatched through
	FS *Filesystem

	// Caller is nil when the adapter did not supply identity
	Caller *Caller

	// Path is the namespace path of the target when the dispatcher knows it
	Path string
}

// Entry-level operations.

type EntryGetattrer interface {
	Getattr(op *OpContext, e *Entry) (Attr, error)
}

type EntryReleaser interface {
	Release(op *OpContext, e *Entry) error
}

// EntryCapabilityChecker returns nil when the caller may perform the
// operations described by mask.
type EntryCapabilityChecker interface {
	IsCapable(op *OpContext, e *Entry, mask AccessMask) error
}

// Directory-level operations.

// DirCreator creates and inserts a new child named name. A mode carrying
// os.ModeDir requests a directory.
type DirCreator interface {
	Create(op *OpContext, d *Directory, name string, mode os.FileMode) (*Entry, error)
}

type DirOpener interface {
	Open(op *OpContext, d *Directory) error
}

type DirCloser interface {
	Close(op *OpContext, d *Directory) error
}

type DirReader interface {
	ReadDir(op *OpContext, d *Directory) ([]DirEntry, error)
}

type DirGetattrer interface {
	Getattr(op *OpContext, d *Directory) (Attr, error)
}

type DirReleaser interface {
	Release(op *OpContext, d *Directory) error
}

// File-level operations.

type FileOpener interface {
	Open(op *OpContext, f *File) error
}

type FileCloser interface {
	Close(op *OpContext, f *File) error
}

// FileReader copies up to len(p) bytes starting at off. Reading at or past
// the end returns 0 and a nil error.
type FileReader interface {
	Read(op *OpContext, f *File, p []byte, off int64) (int, error)
}

type FileWriter interface {
	Write(op *OpContext, f *File, p []byte, off int64) (int, error)
}

type FileTruncater interface {
	Truncate(op *OpContext, f *File, size int64) error
}

type FileGetattrer interface {
	Getattr(op *OpContext, f *File) (Attr, error)
}

type FileReleaser interface {
	Release(op *OpContext, f *File) error
}
