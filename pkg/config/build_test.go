package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	contentBadger "github.com/marmos91/framefs/pkg/content/badger"
	contentS3 "github.com/marmos91/framefs/pkg/content/s3"
	"github.com/marmos91/framefs/pkg/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// bucket is a single-page in-memory S3 listing.
type bucket map[string][]byte

func (b bucket) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	out := &s3.ListObjectsV2Output{}
	for k, v := range b {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k), Size: aws.Int64(int64(len(v)))})
	}
	return out, nil
}

func (b bucket) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := b[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	var start, end int64
	if _, err := fmt.Sscanf(aws.ToString(in.Range), "bytes=%d-%d", &start, &end); err != nil {
		return nil, err
	}
	end = min(end, int64(len(data))-1)
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data[start : end+1]))}, nil
}

func (b bucket) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	data, ok := b[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(data)))}, nil
}

func buildFS(t *testing.T, cfg *Config) *vfs.Filesystem {
	t.Helper()
	require.NoError(t, Validate(cfg))

	fsys, err := BuildFilesystem(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = fsys.Shutdown() })
	return fsys
}

func readFile(t *testing.T, fsys *vfs.Filesystem, p string) string {
	t.Helper()
	ctx := context.Background()

	e, err := fsys.Resolve(p)
	require.NoError(t, err)
	h, err := fsys.Open(ctx, e, os.O_RDONLY)
	require.NoError(t, err)
	defer func() { _ = fsys.Release(ctx, h) }()

	buf := make([]byte, 4096)
	n, err := fsys.Read(ctx, h, buf, 0)
	require.NoError(t, err)
	return string(buf[:n])
}

func TestBuildFilesystem_DefaultTree(t *testing.T) {
	fsys := buildFS(t, GetDefaultConfig())

	assert.Equal(t, "Welcome to FrameFS.\n", readFile(t, fsys, "/README"))

	readme, err := fsys.Resolve("/README")
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o444), readme.Attr().Mode.Perm())

	scratch, err := fsys.Resolve("/scratch")
	require.NoError(t, err)
	assert.True(t, scratch.IsDir())
	assert.Equal(t, os.FileMode(0o755), scratch.Attr().Mode.Perm())

	assert.Equal(t, "mnt", fsys.Superblock().MountPoint())
	assert.False(t, fsys.Superblock().ReadOnly())
}

func TestBuildFilesystem_NestedParentsAndOwner(t *testing.T) {
	cfg := GetDefaultConfig()
	uid, gid := uint32(1234), uint32(5678)
	cfg.Filesystem.UID = &uid
	cfg.Filesystem.GID = &gid
	cfg.Tree = []NodeConfig{{Path: "/a/b/c.txt", Type: "file", Content: "deep"}}

	fsys := buildFS(t, cfg)
	assert.Equal(t, "deep", readFile(t, fsys, "/a/b/c.txt"))

	for _, p := range []string{"/", "/a", "/a/b", "/a/b/c.txt"} {
		e, err := fsys.Resolve(p)
		require.NoError(t, err, p)
		a := e.Attr()
		assert.Equal(t, uid, a.UID, p)
		assert.Equal(t, gid, a.GID, p)
	}
}

func TestBuildFilesystem_Providers(t *testing.T) {
	ctx := context.Background()
	cfg := GetDefaultConfig()
	cfg.Providers.Badger["enabled"] = true
	cfg.Tree = []NodeConfig{
		{Path: "/kv", Type: "dir", Provider: "badger"},
		{Path: "/kv/seeded", Type: "file", Content: "from badger"},
		{Path: "/pinned", Type: "file", Content: "own table", Provider: "badger"},
	}

	fsys := buildFS(t, cfg)

	kv, err := fsys.Resolve("/kv")
	require.NoError(t, err)
	dir, err := kv.Dir()
	require.NoError(t, err)
	assert.IsType(t, &contentBadger.FileOps{}, dir.Defaults().File)
	assert.Equal(t, "from badger", readFile(t, fsys, "/kv/seeded"))

	pinned, err := fsys.Resolve("/pinned")
	require.NoError(t, err)
	f, err := pinned.File()
	require.NoError(t, err)
	assert.IsType(t, &contentBadger.FileOps{}, f.Ops())
	assert.Equal(t, "own table", readFile(t, fsys, "/pinned"))

	// Files created at runtime under /kv use the directory's default.
	e, err := fsys.Create(ctx, "/kv/runtime", 0o644)
	require.NoError(t, err)
	h, err := fsys.Open(ctx, e, os.O_RDWR)
	require.NoError(t, err)
	_, err = fsys.Write(ctx, h, []byte("later"), 0)
	require.NoError(t, err)
	require.NoError(t, fsys.Release(ctx, h))
	assert.Equal(t, "later", readFile(t, fsys, "/kv/runtime"))
}

func TestBuildFilesystem_BadgerDefaultProvider(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Providers.Badger["enabled"] = true
	cfg.Filesystem.DefaultProvider = "badger"

	fsys := buildFS(t, cfg)
	assert.IsType(t, &contentBadger.FileOps{}, fsys.Superblock().Defaults().File)
	assert.Equal(t, "Welcome to FrameFS.\n", readFile(t, fsys, "/README"))
}

func TestBuildFilesystem_MaxFileSize(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Filesystem.MaxFileSize = 4
	cfg.Tree = []NodeConfig{{Path: "/big", Type: "file", Content: "too large"}}
	require.NoError(t, Validate(cfg))

	_, err := BuildFilesystem(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, vfs.ErrOutOfSpace))
	assert.Contains(t, err.Error(), "tree[0]")
}

func TestBuildFilesystem_ConflictingTree(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Tree = []NodeConfig{
		{Path: "/x", Type: "file"},
		{Path: "/x/y", Type: "file"},
	}
	require.NoError(t, Validate(cfg))

	_, err := BuildFilesystem(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, vfs.ErrNotADirectory))
}

func TestBuildFilesystem_ReadOnlyMount(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Mount.ReadOnly = true

	fsys := buildFS(t, cfg)
	assert.True(t, fsys.Superblock().ReadOnly())
	assert.Equal(t, "Welcome to FrameFS.\n", readFile(t, fsys, "/README"))

	_, err := fsys.Create(context.Background(), "/new", 0o644)
	assert.True(t, errors.Is(err, vfs.ErrReadOnly))
}

func TestBuildFilesystem_Framebuffer(t *testing.T) {
	ctx := context.Background()
	panelPath := filepath.Join(t.TempDir(), "panel.raw")

	cfg := GetDefaultConfig()
	cfg.Providers.Framebuffer = map[string]any{
		"enabled":         true,
		"path":            "/dev/fb0",
		"width":           2,
		"height":          2,
		"bytes_per_pixel": 1,
		"panel":           map[string]any{"type": "file", "path": panelPath},
	}

	fsys := buildFS(t, cfg)
	assert.Equal(t, "2x2x1\n", readFile(t, fsys, "/dev/fb0/geometry"))

	pixels, err := fsys.Resolve("/dev/fb0/pixels")
	require.NoError(t, err)
	h, err := fsys.Open(ctx, pixels, os.O_WRONLY)
	require.NoError(t, err)
	_, err = fsys.Write(ctx, h, []byte{1, 2, 3, 4}, 0)
	require.NoError(t, err)
	require.NoError(t, fsys.Release(ctx, h))

	data, err := os.ReadFile(panelPath)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, data)
}

func TestBuildFilesystem_S3Mirror(t *testing.T) {
	prev := newS3Client
	t.Cleanup(func() { newS3Client = prev })

	objects := bucket{
		"frames/a.txt":     []byte("alpha"),
		"frames/sub/b.txt": []byte("bravo"),
	}
	newS3Client = func(ctx context.Context, cfg contentS3.Config) (contentS3.Client, error) {
		assert.Equal(t, "frames-bucket", cfg.Bucket)
		return objects, nil
	}

	cfg := GetDefaultConfig()
	cfg.Providers.S3 = map[string]any{
		"enabled": true,
		"path":    "/remote/s3",
		"bucket":  "frames-bucket",
		"region":  "us-east-1",
		"prefix":  "frames",
	}

	fsys := buildFS(t, cfg)
	assert.Equal(t, "alpha", readFile(t, fsys, "/remote/s3/a.txt"))
	assert.Equal(t, "bravo", readFile(t, fsys, "/remote/s3/sub/b.txt"))

	e, err := fsys.Resolve("/remote/s3/a.txt")
	require.NoError(t, err)
	h, err := fsys.Open(context.Background(), e, os.O_RDWR)
	require.NoError(t, err)
	defer func() { _ = fsys.Release(context.Background(), h) }()
	_, err = fsys.Write(context.Background(), h, []byte("x"), 0)
	assert.True(t, errors.Is(err, vfs.ErrReadOnly))
}

func TestBuildFilesystem_S3ClientFailure(t *testing.T) {
	prev := newS3Client
	t.Cleanup(func() { newS3Client = prev })
	newS3Client = func(ctx context.Context, cfg contentS3.Config) (contentS3.Client, error) {
		return nil, errors.New("no credentials")
	}

	cfg := GetDefaultConfig()
	cfg.Providers.S3["enabled"] = true
	cfg.Providers.S3["bucket"] = "b"
	cfg.Providers.S3["region"] = "r"
	require.NoError(t, Validate(cfg))

	_, err := BuildFilesystem(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no credentials")
}
