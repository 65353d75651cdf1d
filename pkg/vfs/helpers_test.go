package vfs

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestFS(t *testing.T) *Filesystem {
	t.Helper()
	return newTestFSWith(t, SuperblockOptions{
		MountPoint: "mnt",
		Defaults:   MemoryDefaults(nil, 0),
	})
}

func newTestFSWith(t *testing.T, opts SuperblockOptions) *Filesystem {
	t.Helper()
	fs, err := NewFilesystem(NewSuperblock(opts), Options{WorkDir: "/work"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = fs.Shutdown() })
	return fs
}

// writeFile creates p with data through the dispatch path.
func writeFile(t *testing.T, fs *Filesystem, p string, data []byte) *Entry {
	t.Helper()
	ctx := context.Background()

	e, err := fs.Create(ctx, p, 0o644)
	require.NoError(t, err)

	h, err := fs.Open(ctx, e, os.O_RDWR)
	require.NoError(t, err)
	n, err := fs.Write(ctx, h, data, 0)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
	require.NoError(t, fs.Release(ctx, h))
	return e
}

func readAll(t *testing.T, fs *Filesystem, e *Entry, size int) []byte {
	t.Helper()
	ctx := context.Background()

	h, err := fs.Open(ctx, e, os.O_RDONLY)
	require.NoError(t, err)
	defer func() { require.NoError(t, fs.Release(ctx, h)) }()

	buf := make([]byte, size)
	n, err := fs.Read(ctx, h, buf, 0)
	require.NoError(t, err)
	return buf[:n]
}

// recorder is a table that implements whatever the test needs and logs
// which table served each call.
type recorder struct {
	name  string
	calls *[]string
}

func (r recorder) Read(op *OpContext, f *File, p []byte, off int64) (int, error) {
	*r.calls = append(*r.calls, r.name+":read")
	return copy(p, r.name), nil
}

func (r recorder) Getattr(op *OpContext, e *Entry) (Attr, error) {
	*r.calls = append(*r.calls, r.name+":getattr")
	return Attr{Size: 42}, nil
}

func (r recorder) Release(op *OpContext, e *Entry) error {
	*r.calls = append(*r.calls, r.name+":release")
	return nil
}

// openOnly opens and closes but provides nothing else.
type openOnly struct{}

func (openOnly) Open(op *OpContext, f *File) error  { f.IncOpen(); return nil }
func (openOnly) Close(op *OpContext, f *File) error { _, err := f.DecOpen(); return err }

func ctxBG() context.Context { return context.Background() }
