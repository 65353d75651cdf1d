package fuse

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"bazil.org/fuse"
	"github.com/marmos91/framefs/pkg/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFS(t *testing.T) *vfs.Filesystem {
	t.Helper()
	sb := vfs.NewSuperblock(vfs.SuperblockOptions{
		MountPoint: "mnt",
		Defaults:   vfs.MemoryDefaults(nil, 0),
	})
	fsys, err := vfs.NewFilesystem(sb, vfs.Options{WorkDir: "/work"})
	require.NoError(t, err)
	return fsys
}

func rootNode(t *testing.T, fsys *vfs.Filesystem) *Node {
	t.Helper()
	n, err := NewFS(fsys).Root()
	require.NoError(t, err)
	return n.(*Node)
}

func TestToErrno(t *testing.T) {
	tests := []struct {
		code vfs.ErrorCode
		want syscall.Errno
	}{
		{vfs.ErrNotFound, syscall.ENOENT},
		{vfs.ErrNotADirectory, syscall.ENOTDIR},
		{vfs.ErrIsADirectory, syscall.EISDIR},
		{vfs.ErrBadHandle, syscall.EBADF},
		{vfs.ErrNotImplemented, syscall.ENOSYS},
		{vfs.ErrOutOfSpace, syscall.ENOSPC},
		{vfs.ErrNameCollision, syscall.EEXIST},
		{vfs.ErrInvalidArgument, syscall.EINVAL},
		{vfs.ErrReadOnly, syscall.EROFS},
		{vfs.ErrPermissionDenied, syscall.EACCES},
	}

	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			assert.Equal(t, fuse.Errno(tt.want), toErrno(vfs.Errorf(tt.code, "/x", "boom")))
			assert.Equal(t, fuse.Errno(tt.want), toErrno(tt.code))
		})
	}

	assert.Nil(t, toErrno(nil))
	assert.Equal(t, fuse.Errno(syscall.EIO), toErrno(errors.New("disk on fire")))
	assert.Equal(t, fuse.Errno(syscall.EINTR), toErrno(context.Canceled))
}

func TestFillAttr(t *testing.T) {
	now := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	var dst fuse.Attr
	fillAttr(&dst, vfs.Attr{
		Mode:  0o640,
		Size:  1025,
		UID:   10,
		GID:   20,
		Nlink: 1,
		Inode: 42,
		Atime: now,
		Mtime: now,
		Ctime: now,
	})

	assert.Equal(t, uint64(42), dst.Inode)
	assert.Equal(t, uint64(1025), dst.Size)
	assert.Equal(t, uint64(3), dst.Blocks)
	assert.Equal(t, os.FileMode(0o640), dst.Mode)
	assert.Equal(t, uint32(10), dst.Uid)
	assert.Equal(t, uint32(20), dst.Gid)
	assert.Equal(t, now, dst.Mtime)
	assert.Zero(t, dst.Valid)
}

func TestAttrChanges(t *testing.T) {
	mtime := time.Unix(1000, 0)
	ch := attrChanges(&fuse.SetattrRequest{
		Valid: fuse.SetattrSize | fuse.SetattrMode | fuse.SetattrMtime,
		Size:  7,
		Mode:  os.ModeDir | 0o700,
		Mtime: mtime,
		Uid:   99,
	})

	require.NotNil(t, ch.Size)
	assert.Equal(t, int64(7), *ch.Size)
	require.NotNil(t, ch.Mode)
	assert.Equal(t, os.FileMode(0o700), *ch.Mode)
	require.NotNil(t, ch.Mtime)
	assert.Equal(t, mtime, *ch.Mtime)
	assert.Nil(t, ch.UID, "uid not marked valid")
	assert.Nil(t, ch.GID)
	assert.Nil(t, ch.Atime)
}

func TestNodeFileLifecycle(t *testing.T) {
	ctx := context.Background()
	fsys := newTestFS(t)
	root := rootNode(t, fsys)

	createResp := &fuse.CreateResponse{}
	node, handle, err := root.Create(ctx, &fuse.CreateRequest{
		Name:  "hello.txt",
		Flags: fuse.OpenReadWrite,
		Mode:  0o666,
		Umask: 0o022,
	}, createResp)
	require.NoError(t, err)
	assert.NotZero(t, createResp.Flags&fuse.OpenDirectIO)

	h := handle.(*Handle)
	writeResp := &fuse.WriteResponse{}
	require.NoError(t, h.Write(ctx, &fuse.WriteRequest{Data: []byte("hello world"), Offset: 0}, writeResp))
	assert.Equal(t, 11, writeResp.Size)

	readResp := &fuse.ReadResponse{}
	require.NoError(t, h.Read(ctx, &fuse.ReadRequest{Offset: 6, Size: 64}, readResp))
	assert.Equal(t, "world", string(readResp.Data))

	require.NoError(t, h.Flush(ctx, &fuse.FlushRequest{}))
	require.NoError(t, h.Release(ctx, &fuse.ReleaseRequest{}))
	assert.Zero(t, fsys.OpenHandles())

	var attr fuse.Attr
	require.NoError(t, node.(*Node).Attr(ctx, &attr))
	assert.Equal(t, uint64(11), attr.Size)
	assert.Equal(t, os.FileMode(0o644), attr.Mode.Perm(), "umask applied")

	lookupResp := &fuse.LookupResponse{}
	found, err := root.Lookup(ctx, &fuse.LookupRequest{Name: "hello.txt"}, lookupResp)
	require.NoError(t, err)
	assert.Same(t, node.(*Node).entry, found.(*Node).entry)

	_, err = root.Lookup(ctx, &fuse.LookupRequest{Name: "missing"}, &fuse.LookupResponse{})
	assert.Equal(t, fuse.Errno(syscall.ENOENT), err)

	_, err = found.(*Node).Lookup(ctx, &fuse.LookupRequest{Name: "x"}, &fuse.LookupResponse{})
	assert.Equal(t, fuse.Errno(syscall.ENOTDIR), err)
}

func TestNodeSetattrTruncates(t *testing.T) {
	ctx := context.Background()
	fsys := newTestFS(t)
	root := rootNode(t, fsys)

	node, handle, err := root.Create(ctx, &fuse.CreateRequest{Name: "f", Flags: fuse.OpenWriteOnly, Mode: 0o644}, &fuse.CreateResponse{})
	require.NoError(t, err)
	require.NoError(t, handle.(*Handle).Write(ctx, &fuse.WriteRequest{Data: []byte("abcdef")}, &fuse.WriteResponse{}))
	require.NoError(t, handle.(*Handle).Release(ctx, &fuse.ReleaseRequest{}))

	resp := &fuse.SetattrResponse{}
	require.NoError(t, node.(*Node).Setattr(ctx, &fuse.SetattrRequest{Valid: fuse.SetattrSize, Size: 2}, resp))
	assert.Equal(t, uint64(2), resp.Attr.Size)
}

func TestNodeDirectories(t *testing.T) {
	ctx := context.Background()
	fsys := newTestFS(t)
	root := rootNode(t, fsys)

	sub, err := root.Mkdir(ctx, &fuse.MkdirRequest{Name: "sub", Mode: os.ModeDir | 0o777, Umask: 0o022})
	require.NoError(t, err)

	var attr fuse.Attr
	require.NoError(t, sub.(*Node).Attr(ctx, &attr))
	assert.True(t, attr.Mode.IsDir())
	assert.Equal(t, os.FileMode(0o755), attr.Mode.Perm())

	_, _, err = sub.(*Node).Create(ctx, &fuse.CreateRequest{Name: "inner", Mode: 0o644}, &fuse.CreateResponse{})
	require.NoError(t, err)

	_, err = root.Mkdir(ctx, &fuse.MkdirRequest{Name: "sub", Mode: os.ModeDir | 0o755})
	assert.Equal(t, fuse.Errno(syscall.EEXIST), err)

	handle, err := sub.(*Node).Open(ctx, &fuse.OpenRequest{Dir: true}, &fuse.OpenResponse{})
	require.NoError(t, err)
	dirents, err := handle.(*Handle).ReadDirAll(ctx)
	require.NoError(t, err)

	require.Len(t, dirents, 3)
	assert.Equal(t, ".", dirents[0].Name)
	assert.Equal(t, fuse.DT_Dir, dirents[0].Type)
	assert.Equal(t, "..", dirents[1].Name)
	assert.Equal(t, "inner", dirents[2].Name)
	assert.Equal(t, fuse.DT_File, dirents[2].Type)

	require.NoError(t, handle.(*Handle).Release(ctx, &fuse.ReleaseRequest{Dir: true}))
}

func TestNodeAccess(t *testing.T) {
	ctx := context.Background()
	sb := vfs.NewSuperblock(vfs.SuperblockOptions{
		Defaults: vfs.MemoryDefaults(nil, 0),
		ReadOnly: true,
	})
	fsys, err := vfs.NewFilesystem(sb, vfs.Options{WorkDir: "/work"})
	require.NoError(t, err)
	root := rootNode(t, fsys)

	assert.NoError(t, root.Access(ctx, &fuse.AccessRequest{Mask: uint32(vfs.AccessRead)}))
	assert.Equal(t, fuse.Errno(syscall.EROFS), root.Access(ctx, &fuse.AccessRequest{Mask: uint32(vfs.AccessWrite)}))
}

func TestAdapterMountPoint(t *testing.T) {
	fsys := newTestFS(t)

	a := New(Config{})
	assert.Equal(t, "FUSE", a.Protocol())
	assert.Equal(t, "", a.MountPoint())
	a.SetFilesystem(fsys)
	assert.Equal(t, filepath.Join("/work", "mnt"), a.MountPoint())

	override := New(Config{MountPoint: "elsewhere"})
	override.SetFilesystem(fsys)
	assert.Equal(t, "/work/elsewhere", override.MountPoint())

	abs := New(Config{MountPoint: "/mnt/fb/"})
	abs.SetFilesystem(fsys)
	assert.Equal(t, "/mnt/fb", abs.MountPoint())

	assert.NoError(t, a.Stop(context.Background()), "stopping an unmounted adapter is a no-op")
}

func TestAdapterDefaults(t *testing.T) {
	a := New(Config{ReadOnly: true, AllowOther: true})
	assert.Equal(t, "framefs", a.config.FSName)
	assert.Equal(t, "framefs", a.config.Subtype)
	assert.Len(t, a.mountOptions(), 4)
}

func TestServeWithoutFilesystem(t *testing.T) {
	err := New(Config{MountPoint: t.TempDir()}).Serve(context.Background())
	assert.Error(t, err)
}
