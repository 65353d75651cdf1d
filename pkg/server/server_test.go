package server

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/marmos91/framefs/pkg/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAdapter blocks in Serve until cancelled, or fails when told to.
type fakeAdapter struct {
	name    string
	mp      string
	fail    error
	exit    bool
	fsys    *vfs.Filesystem
	stopped atomic.Int32
	started chan struct{}
}

func newFakeAdapter(name, mp string) *fakeAdapter {
	return &fakeAdapter{name: name, mp: mp, started: make(chan struct{})}
}

func (a *fakeAdapter) Serve(ctx context.Context) error {
	close(a.started)
	if a.fail != nil {
		return a.fail
	}
	if a.exit {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func (a *fakeAdapter) SetFilesystem(fsys *vfs.Filesystem) { a.fsys = fsys }
func (a *fakeAdapter) Stop(ctx context.Context) error {
	a.stopped.Add(1)
	return nil
}
func (a *fakeAdapter) Protocol() string   { return a.name }
func (a *fakeAdapter) MountPoint() string { return a.mp }

type closeRecorder struct{ closed atomic.Bool }

func (c *closeRecorder) Close() error {
	c.closed.Store(true)
	return nil
}

func newFS(t *testing.T) (*vfs.Filesystem, *closeRecorder) {
	t.Helper()
	sb := vfs.NewSuperblock(vfs.SuperblockOptions{Defaults: vfs.MemoryDefaults(nil, 0)})
	fsys, err := vfs.NewFilesystem(sb, vfs.Options{WorkDir: t.TempDir()})
	require.NoError(t, err)
	rec := &closeRecorder{}
	fsys.AddCloser(rec)
	return fsys, rec
}

func TestAddAdapter(t *testing.T) {
	fsys, _ := newFS(t)
	srv := New(fsys, Options{})

	a := newFakeAdapter("FUSE", "/mnt/a")
	require.NoError(t, srv.AddAdapter(a))
	assert.Same(t, fsys, a.fsys, "filesystem injected on registration")

	err := srv.AddAdapter(newFakeAdapter("FUSE", "/mnt/a"))
	assert.Error(t, err, "mount point collision")

	require.NoError(t, srv.AddAdapter(newFakeAdapter("FUSE", "/mnt/b")))
	assert.Len(t, srv.Adapters(), 2)
}

func TestServeWithoutAdapters(t *testing.T) {
	fsys, _ := newFS(t)
	assert.Error(t, New(fsys, Options{}).Serve(context.Background()))
}

func TestServeCancellation(t *testing.T) {
	fsys, rec := newFS(t)
	srv := New(fsys, Options{ShutdownTimeout: time.Second})
	a := newFakeAdapter("FUSE", "/mnt/a")
	require.NoError(t, srv.AddAdapter(a))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	<-a.started
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}

	assert.Equal(t, int32(1), a.stopped.Load())
	assert.True(t, rec.closed.Load(), "filesystem closed after shutdown")

	assert.Error(t, srv.Serve(context.Background()), "second Serve is rejected")
}

func TestServeAdapterFailureStopsOthers(t *testing.T) {
	fsys, rec := newFS(t)
	srv := New(fsys, Options{})

	healthy := newFakeAdapter("FUSE", "/mnt/a")
	broken := newFakeAdapter("FUSE", "/mnt/b")
	broken.fail = errors.New("mount refused")
	require.NoError(t, srv.AddAdapter(healthy))
	require.NoError(t, srv.AddAdapter(broken))

	err := srv.Serve(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mount refused")
	assert.Equal(t, int32(1), healthy.stopped.Load())
	assert.True(t, rec.closed.Load())
}

func TestServeExternalUnmount(t *testing.T) {
	fsys, rec := newFS(t)
	srv := New(fsys, Options{})
	a := newFakeAdapter("FUSE", "/mnt/a")
	a.exit = true
	require.NoError(t, srv.AddAdapter(a))

	assert.NoError(t, srv.Serve(context.Background()))
	assert.True(t, rec.closed.Load())
}
