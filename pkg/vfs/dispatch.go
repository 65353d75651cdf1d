package vfs

import (
	"context"
	"math"
	"os"
	"time"

	"go.uber.org/multierr"
)

// Open dispatches file open against e and returns a handle bound to it.
//
// flags uses the os.O_* constants. Opening for writing consults the
// entry-level capability check first; a chain without one allows it.
func (fs *Filesystem) Open(ctx context.Context, e *Entry, flags int) (id HandleID, err error) {
	start := time.Now()
	tier := TierNone
	defer func() { fs.observe("open", tier, start, err) }()

	f, err := e.File()
	if err != nil {
		return 0, err
	}

	op := fs.opContext(ctx, e)
	writable := flags&(os.O_WRONLY|os.O_RDWR) != 0
	if writable {
		if err = fs.checkCapability(op, e, AccessWrite); err != nil {
			return 0, err
		}
	}

	var opener FileOpener
	if opener, tier, err = resolveFileOp[FileOpener](f); err != nil {
		return 0, err
	}
	if err = opener.Open(op, f); err != nil {
		return 0, err
	}

	id, n := fs.handles.add(handle{entry: e, writable: writable})
	fs.metrics.SetOpenHandles(n)
	return id, nil
}

// Read dispatches file read for an open handle.
func (fs *Filesystem) Read(ctx context.Context, id HandleID, p []byte, off int64) (n int, err error) {
	start := time.Now()
	tier := TierNone
	defer func() { fs.observe("read", tier, start, err) }()

	h, f, err := fs.fileHandle(id)
	if err != nil {
		return 0, err
	}
	if off < 0 {
		return 0, Errorf(ErrInvalidArgument, h.entry.Path(), "negative offset %d", off)
	}

	var reader FileReader
	if reader, tier, err = resolveFileOp[FileReader](f); err != nil {
		return 0, err
	}
	n, err = reader.Read(fs.opContext(ctx, h.entry), f, p, off)
	fs.metrics.RecordBytesTransferred("read", int64(n))
	return n, err
}

// Write dispatches file write for a handle opened for writing.
func (fs *Filesystem) Write(ctx context.Context, id HandleID, p []byte, off int64) (n int, err error) {
	start := time.Now()
	tier := TierNone
	defer func() { fs.observe("write", tier, start, err) }()

	h, f, err := fs.fileHandle(id)
	if err != nil {
		return 0, err
	}
	if !h.writable {
		return 0, Errorf(ErrBadHandle, h.entry.Path(), "handle %d not open for writing", id)
	}
	if off < 0 {
		return 0, Errorf(ErrInvalidArgument, h.entry.Path(), "negative offset %d", off)
	}
	if off > math.MaxInt64-int64(len(p)) {
		return 0, Errorf(ErrOutOfSpace, h.entry.Path(), "write of %d bytes at offset %d overflows the file size", len(p), off)
	}

	var writer FileWriter
	if writer, tier, err = resolveFileOp[FileWriter](f); err != nil {
		return 0, err
	}
	n, err = writer.Write(fs.opContext(ctx, h.entry), f, p, off)
	fs.metrics.RecordBytesTransferred("write", int64(n))
	return n, err
}

// Close dispatches file close. The handle stays valid for Release.
func (fs *Filesystem) Close(ctx context.Context, id HandleID) (err error) {
	start := time.Now()
	tier := TierNone
	defer func() { fs.observe("close", tier, start, err) }()

	h, f, err := fs.fileHandle(id)
	if err != nil {
		return err
	}
	if !fs.handles.markClosed(id) {
		return Errorf(ErrBadHandle, h.entry.Path(), "handle %d already closed", id)
	}

	tier, err = fs.closeFile(fs.opContext(ctx, h.entry), f)
	return err
}

// Release forgets a file handle. A handle that was never closed is closed
// first; then the release hook runs, falling back to the entry-level chain.
func (fs *Filesystem) Release(ctx context.Context, id HandleID) (err error) {
	start := time.Now()
	tier := TierNone
	defer func() { fs.observe("release", tier, start, err) }()

	h, err := fs.handles.get(id)
	if err != nil {
		return err
	}
	if h.dir {
		return newError(ErrIsADirectory, h.entry.Path())
	}
	h, n, err := fs.handles.take(id)
	if err != nil {
		return err
	}
	fs.metrics.SetOpenHandles(n)

	f, err := h.entry.File()
	if err != nil {
		return err
	}

	op := fs.opContext(ctx, h.entry)
	if !h.closed {
		_, closeErr := fs.closeFile(op, f)
		err = multierr.Append(err, closeErr)
	}

	if releaser, t, rErr := resolveFileOp[FileReleaser](f); rErr == nil {
		tier = t
		return multierr.Append(err, releaser.Release(op, f))
	}

	releaser, t, rErr := resolveEntryOp[EntryReleaser](h.entry)
	if rErr != nil {
		return multierr.Append(err, rErr)
	}
	tier = t
	return multierr.Append(err, releaser.Release(op, h.entry))
}

// Truncate dispatches file truncate against e.
func (fs *Filesystem) Truncate(ctx context.Context, e *Entry, size int64) (err error) {
	start := time.Now()
	tier := TierNone
	defer func() { fs.observe("truncate", tier, start, err) }()

	f, err := e.File()
	if err != nil {
		return err
	}
	if size < 0 {
		return Errorf(ErrInvalidArgument, e.Path(), "negative size %d", size)
	}

	op := fs.opContext(ctx, e)
	if err = fs.checkCapability(op, e, AccessWrite); err != nil {
		return err
	}

	var truncater FileTruncater
	if truncater, tier, err = resolveFileOp[FileTruncater](f); err != nil {
		return err
	}
	return truncater.Truncate(op, f, size)
}

// Getattr dispatches the kind-specific attribute query, falling back to
// the entry-level chain.
func (fs *Filesystem) Getattr(ctx context.Context, e *Entry) (attr Attr, err error) {
	start := time.Now()
	tier := TierNone
	defer func() { fs.observe("getattr", tier, start, err) }()

	op := fs.opContext(ctx, e)
	switch p := e.payload.(type) {
	case *File:
		if g, t, gErr := resolveFileOp[FileGetattrer](p); gErr == nil {
			tier = t
			return g.Getattr(op, p)
		}
	case *Directory:
		if g, t, gErr := resolveDirOp[DirGetattrer](p); gErr == nil {
			tier = t
			return g.Getattr(op, p)
		}
	}

	var g EntryGetattrer
	if g, tier, err = resolveEntryOp[EntryGetattrer](e); err != nil {
		return Attr{}, err
	}
	return g.Getattr(op, e)
}

// Setattr applies a partial attribute update. A size change is dispatched
// as a truncate; the remaining fields are written under the entry lock.
func (fs *Filesystem) Setattr(ctx context.Context, e *Entry, ch AttrChanges) (attr Attr, err error) {
	start := time.Now()
	defer func() { fs.observe("setattr", TierNone, start, err) }()

	op := fs.opContext(ctx, e)
	if err = fs.checkCapability(op, e, AccessWrite); err != nil {
		return Attr{}, err
	}

	if ch.Size != nil {
		if err = fs.Truncate(ctx, e, *ch.Size); err != nil {
			return Attr{}, err
		}
	}
	if ch.Mode != nil {
		e.SetMode(*ch.Mode)
	}
	if ch.UID != nil || ch.GID != nil {
		cur := e.Attr()
		uid, gid := cur.UID, cur.GID
		if ch.UID != nil {
			uid = *ch.UID
		}
		if ch.GID != nil {
			gid = *ch.GID
		}
		e.SetOwner(uid, gid)
	}
	if ch.Atime != nil || ch.Mtime != nil {
		var atime, mtime time.Time
		if ch.Atime != nil {
			atime = *ch.Atime
		}
		if ch.Mtime != nil {
			mtime = *ch.Mtime
		}
		e.SetTimes(atime, mtime)
	}

	return fs.Getattr(ctx, e)
}

// Access runs the entry-level capability check.
func (fs *Filesystem) Access(ctx context.Context, e *Entry, mask AccessMask) (err error) {
	start := time.Now()
	tier := TierNone
	defer func() { fs.observe("access", tier, start, err) }()

	var checker EntryCapabilityChecker
	if checker, tier, err = resolveEntryOp[EntryCapabilityChecker](e); err != nil {
		return err
	}
	return checker.IsCapable(fs.opContext(ctx, e), e, mask)
}

// OpenDir dispatches directory open against e and returns a handle.
func (fs *Filesystem) OpenDir(ctx context.Context, e *Entry) (id HandleID, err error) {
	start := time.Now()
	tier := TierNone
	defer func() { fs.observe("opendir", tier, start, err) }()

	d, err := e.Dir()
	if err != nil {
		return 0, err
	}

	var opener DirOpener
	if opener, tier, err = resolveDirOp[DirOpener](d); err != nil {
		return 0, err
	}
	if err = opener.Open(fs.opContext(ctx, e), d); err != nil {
		return 0, err
	}

	id, n := fs.handles.add(handle{entry: e, dir: true})
	fs.metrics.SetOpenHandles(n)
	return id, nil
}

// ReadDir dispatches directory enumeration for an open directory handle.
func (fs *Filesystem) ReadDir(ctx context.Context, id HandleID) (entries []DirEntry, err error) {
	start := time.Now()
	tier := TierNone
	defer func() { fs.observe("readdir", tier, start, err) }()

	h, d, err := fs.dirHandle(id)
	if err != nil {
		return nil, err
	}

	var reader DirReader
	if reader, tier, err = resolveDirOp[DirReader](d); err != nil {
		return nil, err
	}
	return reader.ReadDir(fs.opContext(ctx, h.entry), d)
}

// ReleaseDir closes and forgets a directory handle.
func (fs *Filesystem) ReleaseDir(ctx context.Context, id HandleID) (err error) {
	start := time.Now()
	tier := TierNone
	defer func() { fs.observe("releasedir", tier, start, err) }()

	h, err := fs.handles.get(id)
	if err != nil {
		return err
	}
	if !h.dir {
		return Errorf(ErrBadHandle, h.entry.Path(), "handle %d is not a directory handle", id)
	}
	h, n, err := fs.handles.take(id)
	if err != nil {
		return err
	}
	fs.metrics.SetOpenHandles(n)

	d, err := h.entry.Dir()
	if err != nil {
		return err
	}

	op := fs.opContext(ctx, h.entry)
	if closer, _, cErr := resolveDirOp[DirCloser](d); cErr == nil {
		err = closer.Close(op, d)
	}

	if releaser, t, rErr := resolveDirOp[DirReleaser](d); rErr == nil {
		tier = t
		return multierr.Append(err, releaser.Release(op, d))
	}

	releaser, t, rErr := resolveEntryOp[EntryReleaser](h.entry)
	if rErr != nil {
		return multierr.Append(err, rErr)
	}
	tier = t
	return multierr.Append(err, releaser.Release(op, h.entry))
}

// Create resolves the parent of p and dispatches directory-level create
// with the final segment and mode. A mode carrying os.ModeDir creates a
// directory.
func (fs *Filesystem) Create(ctx context.Context, p string, mode os.FileMode) (e *Entry, err error) {
	start := time.Now()
	tier := TierNone
	defer func() { fs.observe("create", tier, start, err) }()

	dir, name, err := fs.sb.ResolveParent(p)
	if err != nil {
		return nil, err
	}
	if err = ValidateName(name); err != nil {
		return nil, err
	}

	op := fs.opContext(ctx, dir.entry)
	op.Path = p
	if err = fs.checkCapability(op, dir.entry, AccessWrite); err != nil {
		return nil, err
	}

	var creator DirCreator
	if creator, tier, err = resolveDirOp[DirCreator](dir); err != nil {
		return nil, err
	}
	if e, err = creator.Create(op, dir, name, mode); err != nil {
		return nil, err
	}

	fs.metrics.SetFileCount(fs.sb.FileCount())
	return e, nil
}

// Mkdir is Create with the directory bit set.
func (fs *Filesystem) Mkdir(ctx context.Context, p string, perm os.FileMode) (*Entry, error) {
	return fs.Create(ctx, p, perm.Perm()|os.ModeDir)
}

// HandleEntry returns the entry a live handle was opened on.
func (fs *Filesystem) HandleEntry(id HandleID) (*Entry, error) {
	h, err := fs.handles.get(id)
	if err != nil {
		return nil, err
	}
	return h.entry, nil
}

func (fs *Filesystem) fileHandle(id HandleID) (handle, *File, error) {
	h, err := fs.handles.get(id)
	if err != nil {
		return handle{}, nil, err
	}
	if h.dir {
		return handle{}, nil, newError(ErrIsADirectory, h.entry.Path())
	}
	if h.closed {
		return handle{}, nil, Errorf(ErrBadHandle, h.entry.Path(), "handle %d is closed", id)
	}
	f, err := h.entry.File()
	return h, f, err
}

func (fs *Filesystem) dirHandle(id HandleID) (handle, *Directory, error) {
	h, err := fs.handles.get(id)
	if err != nil {
		return handle{}, nil, err
	}
	if !h.dir {
		return handle{}, nil, newError(ErrNotADirectory, h.entry.Path())
	}
	d, err := h.entry.Dir()
	return h, d, err
}

func (fs *Filesystem) closeFile(op *OpContext, f *File) (Tier, error) {
	closer, tier, err := resolveFileOp[FileCloser](f)
	if err != nil {
		return TierNone, err
	}
	return tier, closer.Close(op, f)
}

// checkCapability runs the entry-level capability check when one exists.
func (fs *Filesystem) checkCapability(op *OpContext, e *Entry, mask AccessMask) error {
	checker, _, err := resolveEntryOp[EntryCapabilityChecker](e)
	if err != nil {
		return nil
	}
	return checker.IsCapable(op, e, mask)
}
