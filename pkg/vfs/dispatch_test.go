package vfs

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type opRecord struct {
	op   string
	tier string
	err  error
}

type fakeMetrics struct {
	mu      sync.Mutex
	ops     []opRecord
	bytes   map[string]int64
	handles int
	files   uint64
}

func (m *fakeMetrics) RecordOperation(op, tier string, d time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, opRecord{op: op, tier: tier, err: err})
}

func (m *fakeMetrics) RecordBytesTransferred(direction string, n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bytes == nil {
		m.bytes = make(map[string]int64)
	}
	m.bytes[direction] += n
}

func (m *fakeMetrics) SetOpenHandles(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handles = n
}

func (m *fakeMetrics) SetFileCount(n uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files = n
}

func (m *fakeMetrics) last(op string) opRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.ops) - 1; i >= 0; i-- {
		if m.ops[i].op == op {
			return m.ops[i]
		}
	}
	return opRecord{}
}

func TestDispatch_FallbackOrder(t *testing.T) {
	var calls []string
	m := &fakeMetrics{}

	sb := NewSuperblock(SuperblockOptions{
		Defaults: Defaults{
			Entry: recorder{name: "entry", calls: &calls},
			File:  recorder{name: "sb", calls: &calls},
			Dir:   MemoryDirOps{},
		},
	})
	fs, err := NewFilesystem(sb, Options{WorkDir: "/", Metrics: m})
	require.NoError(t, err)

	dirEntry, err := sb.RootDir().CreateDirectory("devices")
	require.NoError(t, err)
	dir, _ := dirEntry.Dir()
	dir.SetFileDefault(recorder{name: "dir", calls: &calls})

	e, err := dir.CreateFile("panel")
	require.NoError(t, err)
	f, _ := e.File()
	f.SetOps(openOnly{})

	ctx := context.Background()
	h, err := fs.Open(ctx, e, os.O_RDONLY)
	require.NoError(t, err)
	assert.Equal(t, "own", m.last("open").tier)

	t.Run("ReadUsesDirectoryDefault", func(t *testing.T) {
		calls = nil
		buf := make([]byte, 8)
		n, err := fs.Read(ctx, h, buf, 0)
		require.NoError(t, err)
		assert.Equal(t, "dir", string(buf[:n]))
		assert.Equal(t, []string{"dir:read"}, calls)
		assert.Equal(t, "directory", m.last("read").tier)
	})

	t.Run("ReadFallsToSuperblockWithoutDirectoryDefault", func(t *testing.T) {
		dir.SetFileDefault(nil)
		defer dir.SetFileDefault(recorder{name: "dir", calls: &calls})

		calls = nil
		buf := make([]byte, 8)
		n, err := fs.Read(ctx, h, buf, 0)
		require.NoError(t, err)
		assert.Equal(t, "sb", string(buf[:n]))
		assert.Equal(t, []string{"sb:read"}, calls)
		assert.Equal(t, "superblock", m.last("read").tier)
	})

	t.Run("OwnTableWins", func(t *testing.T) {
		f.SetOps(struct {
			openOnly
			recorder
		}{recorder: recorder{name: "own", calls: &calls}})
		defer f.SetOps(openOnly{})

		calls = nil
		buf := make([]byte, 8)
		n, err := fs.Read(ctx, h, buf, 0)
		require.NoError(t, err)
		assert.Equal(t, "own", string(buf[:n]))
		assert.Equal(t, []string{"own:read"}, calls)
	})

	t.Run("GetattrFallsToEntryLevel", func(t *testing.T) {
		calls = nil
		attr, err := fs.Getattr(ctx, e)
		require.NoError(t, err)
		assert.Equal(t, int64(42), attr.Size)
		assert.Equal(t, []string{"entry:getattr"}, calls)
		assert.Equal(t, "entry", m.last("getattr").tier)
	})

	t.Run("WriteNotImplemented", func(t *testing.T) {
		wh, err := fs.Open(ctx, e, os.O_WRONLY)
		require.NoError(t, err)
		defer func() { _ = fs.Release(ctx, wh) }()

		_, err = fs.Write(ctx, wh, []byte("x"), 0)
		assert.True(t, errors.Is(err, ErrNotImplemented))
		assert.Equal(t, "none", m.last("write").tier)
	})

	t.Run("ReleaseFallsToEntryLevel", func(t *testing.T) {
		calls = nil
		require.NoError(t, fs.Release(ctx, h))
		assert.Equal(t, []string{"entry:release"}, calls)
		assert.Equal(t, 0, f.OpenCount())

		_, err := fs.Read(ctx, h, make([]byte, 1), 0)
		assert.True(t, errors.Is(err, ErrBadHandle))
	})
}

func TestDispatch_NothingImplemented(t *testing.T) {
	sb := NewSuperblock(SuperblockOptions{})
	fs, err := NewFilesystem(sb, Options{WorkDir: "/"})
	require.NoError(t, err)

	e, err := sb.RootDir().CreateFile("bare")
	require.NoError(t, err)
	ctx := context.Background()

	_, err = fs.Open(ctx, e, os.O_RDONLY)
	assert.True(t, errors.Is(err, ErrNotImplemented))

	_, err = fs.Getattr(ctx, e)
	assert.True(t, errors.Is(err, ErrNotImplemented))

	assert.True(t, errors.Is(fs.Access(ctx, e, AccessRead), ErrNotImplemented))

	_, err = fs.Create(ctx, "/new", 0o644)
	assert.True(t, errors.Is(err, ErrNotImplemented))

	_, err = fs.OpenDir(ctx, fs.Root())
	assert.True(t, errors.Is(err, ErrNotImplemented))
}

func TestDispatch_KindMismatch(t *testing.T) {
	fs := newTestFS(t)
	ctx := context.Background()

	dir, err := fs.Mkdir(ctx, "/d", 0o755)
	require.NoError(t, err)
	file := writeFile(t, fs, "/f", []byte("data"))

	_, err = fs.Open(ctx, dir, os.O_RDONLY)
	assert.True(t, errors.Is(err, ErrIsADirectory))

	assert.True(t, errors.Is(fs.Truncate(ctx, dir, 0), ErrIsADirectory))

	_, err = fs.OpenDir(ctx, file)
	assert.True(t, errors.Is(err, ErrNotADirectory))

	_, err = fs.Create(ctx, "/f/child", 0o644)
	assert.True(t, errors.Is(err, ErrNotADirectory))

	dh, err := fs.OpenDir(ctx, dir)
	require.NoError(t, err)
	_, err = fs.Read(ctx, dh, make([]byte, 4), 0)
	assert.True(t, errors.Is(err, ErrIsADirectory))
	require.NoError(t, fs.ReleaseDir(ctx, dh))
}

func TestDispatch_Handles(t *testing.T) {
	fs := newTestFS(t)
	ctx := context.Background()
	e := writeFile(t, fs, "/h", []byte("hello"))
	f, _ := e.File()

	t.Run("UnknownHandle", func(t *testing.T) {
		_, err := fs.Read(ctx, HandleID(9999), make([]byte, 1), 0)
		assert.True(t, errors.Is(err, ErrBadHandle))
		assert.True(t, errors.Is(fs.Release(ctx, HandleID(9999)), ErrBadHandle))
		assert.True(t, errors.Is(fs.ReleaseDir(ctx, HandleID(9999)), ErrBadHandle))
	})

	t.Run("HandleSurvivesWithoutPath", func(t *testing.T) {
		h, err := fs.Open(ctx, e, os.O_RDONLY)
		require.NoError(t, err)

		got, err := fs.HandleEntry(h)
		require.NoError(t, err)
		assert.Same(t, e, got)

		buf := make([]byte, 16)
		n, err := fs.Read(ctx, h, buf, 1)
		require.NoError(t, err)
		assert.Equal(t, "ello", string(buf[:n]))
		require.NoError(t, fs.Release(ctx, h))
	})

	t.Run("CloseThenRelease", func(t *testing.T) {
		h, err := fs.Open(ctx, e, os.O_RDONLY)
		require.NoError(t, err)
		assert.Equal(t, 1, f.OpenCount())

		require.NoError(t, fs.Close(ctx, h))
		assert.Equal(t, 0, f.OpenCount())
		assert.True(t, errors.Is(fs.Close(ctx, h), ErrBadHandle))

		_, err = fs.Read(ctx, h, make([]byte, 1), 0)
		assert.True(t, errors.Is(err, ErrBadHandle))

		require.NoError(t, fs.Release(ctx, h))
		assert.Equal(t, 0, f.OpenCount())
		assert.Equal(t, 0, fs.OpenHandles())
	})

	t.Run("ReleaseImpliesClose", func(t *testing.T) {
		h, err := fs.Open(ctx, e, os.O_RDONLY)
		require.NoError(t, err)
		require.NoError(t, fs.Release(ctx, h))
		assert.Equal(t, 0, f.OpenCount())
	})

	t.Run("ReadOnlyHandleRejectsWrite", func(t *testing.T) {
		h, err := fs.Open(ctx, e, os.O_RDONLY)
		require.NoError(t, err)
		defer func() { _ = fs.Release(ctx, h) }()

		_, err = fs.Write(ctx, h, []byte("x"), 0)
		assert.True(t, errors.Is(err, ErrBadHandle))
	})

	t.Run("NegativeOffset", func(t *testing.T) {
		h, err := fs.Open(ctx, e, os.O_RDWR)
		require.NoError(t, err)
		defer func() { _ = fs.Release(ctx, h) }()

		_, err = fs.Read(ctx, h, make([]byte, 1), -1)
		assert.True(t, IsCode(err, ErrInvalidArgument))
	})

	t.Run("DirectoryHandleIsNotAFileHandle", func(t *testing.T) {
		dh, err := fs.OpenDir(ctx, fs.Root())
		require.NoError(t, err)
		assert.True(t, errors.Is(fs.Release(ctx, dh), ErrIsADirectory))
		require.NoError(t, fs.ReleaseDir(ctx, dh))

		fh, err := fs.Open(ctx, e, os.O_RDONLY)
		require.NoError(t, err)
		assert.True(t, errors.Is(fs.ReleaseDir(ctx, fh), ErrBadHandle))
		require.NoError(t, fs.Release(ctx, fh))
	})
}

func TestDispatch_ReadOnlySuperblock(t *testing.T) {
	fs := newTestFSWith(t, SuperblockOptions{
		Defaults: MemoryDefaults(nil, 0),
		ReadOnly: true,
	})
	ctx := context.Background()

	e, err := fs.Superblock().RootDir().CreateFile("ro")
	require.NoError(t, err)

	_, err = fs.Open(ctx, e, os.O_RDWR)
	assert.True(t, errors.Is(err, ErrReadOnly))

	assert.True(t, errors.Is(fs.Truncate(ctx, e, 0), ErrReadOnly))

	_, err = fs.Create(ctx, "/other", 0o644)
	assert.True(t, errors.Is(err, ErrReadOnly))

	assert.NoError(t, fs.Access(ctx, e, AccessRead))

	h, err := fs.Open(ctx, e, os.O_RDONLY)
	require.NoError(t, err)
	require.NoError(t, fs.Release(ctx, h))
}

func TestDispatch_ReadOnlyDirectoryPolicy(t *testing.T) {
	fs := newTestFS(t)
	ctx := context.Background()

	mirrors, err := fs.Mkdir(ctx, "/mirrors", 0o755)
	require.NoError(t, err)
	dir, _ := mirrors.Dir()
	dir.SetFileDefault(ReadOnlyFileOps{Inner: fs.Superblock().Defaults().File})

	e, err := fs.Create(ctx, "/mirrors/one", 0o644)
	require.NoError(t, err)
	f, _ := e.File()
	f.SetContent([]byte("snapshot"))

	h, err := fs.Open(ctx, e, os.O_RDWR)
	require.NoError(t, err)
	defer func() { _ = fs.Release(ctx, h) }()

	_, err = fs.Write(ctx, h, []byte("x"), 0)
	assert.True(t, errors.Is(err, ErrReadOnly))

	buf := make([]byte, 32)
	n, err := fs.Read(ctx, h, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "snapshot", string(buf[:n]))

	attr, err := fs.Getattr(ctx, e)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o444), attr.Mode.Perm())
}

func TestSetattr(t *testing.T) {
	fs := newTestFS(t)
	ctx := context.Background()
	e := writeFile(t, fs, "/s", []byte("0123456789"))

	size := int64(4)
	mode := os.FileMode(0o600)
	uid := uint32(1234)
	mtime := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)

	attr, err := fs.Setattr(ctx, e, AttrChanges{Size: &size, Mode: &mode, UID: &uid, Mtime: &mtime})
	require.NoError(t, err)
	assert.Equal(t, int64(4), attr.Size)
	assert.Equal(t, mode, attr.Mode.Perm())
	assert.Equal(t, uid, attr.UID)
	assert.True(t, attr.Mtime.Equal(mtime))
	assert.Equal(t, make([]byte, 4), readAll(t, fs, e, 16))
}

func TestSetattr_Observed(t *testing.T) {
	ctx := context.Background()
	m := &fakeMetrics{}
	sb := NewSuperblock(SuperblockOptions{Defaults: MemoryDefaults(nil, 4)})
	fs, err := NewFilesystem(sb, Options{WorkDir: "/", Metrics: m})
	require.NoError(t, err)
	e := writeFile(t, fs, "/s", []byte("ab"))

	mode := os.FileMode(0o600)
	_, err = fs.Setattr(ctx, e, AttrChanges{Mode: &mode})
	require.NoError(t, err)
	rec := m.last("setattr")
	assert.Equal(t, "setattr", rec.op)
	assert.NoError(t, rec.err)

	size := int64(64)
	_, err = fs.Setattr(ctx, e, AttrChanges{Size: &size})
	assert.True(t, errors.Is(err, ErrOutOfSpace))
	assert.True(t, errors.Is(m.last("setattr").err, ErrOutOfSpace))
}

func TestCreate_CallerOwnsNode(t *testing.T) {
	fs := newTestFS(t)
	ctx := WithCaller(context.Background(), Caller{UID: 501, GID: 20, PID: 77})

	e, err := fs.Create(ctx, "/mine", 0o600)
	require.NoError(t, err)
	attr := e.Attr()
	assert.Equal(t, uint32(501), attr.UID)
	assert.Equal(t, uint32(20), attr.GID)
	assert.Equal(t, os.FileMode(0o600), attr.Mode)

	_, err = fs.Create(ctx, "/mine", 0o600)
	assert.True(t, errors.Is(err, ErrNameCollision))

	_, err = fs.Create(ctx, "/missing/x", 0o600)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMountPoint(t *testing.T) {
	fs := newTestFS(t)
	assert.Equal(t, "/work/mnt", fs.MountPoint())

	abs := newTestFSWith(t, SuperblockOptions{MountPoint: "/mnt/frame/"})
	assert.Equal(t, "/mnt/frame", abs.MountPoint())
}
