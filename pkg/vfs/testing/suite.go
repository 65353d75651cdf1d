package testing

import (
	"context"
	"os"
	"testing"

	"github.com/marmos91/framefs/pkg/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// FileOpsTestSuite is a conformance suite for writable file-level content
// providers. It drives the provider through vfs.Filesystem dispatch, so it
// tests the contract adapters rely on rather than provider internals.
//
// Usage:
//
//	func TestMyFileOps(t *testing.T) {
//	    suite := &testing.FileOpsTestSuite{
//	        NewOps: func(t *testing.T) vfs.FileOps {
//	            return myprovider.New()
//	        },
//	    }
//	    suite.Run(t)
//	}
type FileOpsTestSuite struct {
	// NewOps returns a fresh table. Each test installs it as the own table
	// of a newly created file.
	NewOps func(t *testing.T) vfs.FileOps
}

// Run executes all tests in the suite.
func (suite *FileOpsTestSuite) Run(t *testing.T) {
	t.Run("OpenClose", suite.testOpenClose)
	t.Run("WriteRead", suite.testWriteRead)
	t.Run("ReadClamped", suite.testReadClamped)
	t.Run("ReadPastEnd", suite.testReadPastEnd)
	t.Run("WriteGrowsWithGap", suite.testWriteGrowsWithGap)
	t.Run("WriteIdempotent", suite.testWriteIdempotent)
	t.Run("TruncateShrink", suite.testTruncateShrink)
	t.Run("TruncateThenWrite", suite.testTruncateThenWrite)
	t.Run("Getattr", suite.testGetattr)
}

// fixture is one filesystem with one file using the provider under test.
type fixture struct {
	fs    *vfs.Filesystem
	entry *vfs.Entry
	file  *vfs.File
}

func testContext() context.Context {
	return context.Background()
}

func (suite *FileOpsTestSuite) newFixture(t *testing.T) *fixture {
	t.Helper()

	sb := vfs.NewSuperblock(vfs.SuperblockOptions{Defaults: vfs.MemoryDefaults(nil, 0)})
	fs, err := vfs.NewFilesystem(sb, vfs.Options{WorkDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = fs.Shutdown() })

	e, err := sb.RootDir().CreateFile("subject")
	require.NoError(t, err)
	f, err := e.File()
	require.NoError(t, err)
	f.SetOps(suite.NewOps(t))

	return &fixture{fs: fs, entry: e, file: f}
}

func (fx *fixture) open(t *testing.T, flags int) vfs.HandleID {
	t.Helper()
	h, err := fx.fs.Open(testContext(), fx.entry, flags)
	require.NoError(t, err, "Open should succeed")
	t.Cleanup(func() { _ = fx.fs.Release(testContext(), h) })
	return h
}

func (fx *fixture) mustWrite(t *testing.T, h vfs.HandleID, data []byte, off int64) {
	t.Helper()
	n, err := fx.fs.Write(testContext(), h, data, off)
	require.NoError(t, err, "Write should succeed")
	require.Equal(t, len(data), n, "Write should report every byte")
}

func (fx *fixture) mustRead(t *testing.T, h vfs.HandleID, size int, off int64) []byte {
	t.Helper()
	buf := make([]byte, size)
	n, err := fx.fs.Read(testContext(), h, buf, off)
	require.NoError(t, err, "Read should succeed")
	return buf[:n]
}

func (fx *fixture) size(t *testing.T) int64 {
	t.Helper()
	attr, err := fx.fs.Getattr(testContext(), fx.entry)
	require.NoError(t, err, "Getattr should succeed")
	return attr.Size
}

func (suite *FileOpsTestSuite) testOpenClose(t *testing.T) {
	fx := suite.newFixture(t)
	ctx := testContext()

	h1, err := fx.fs.Open(ctx, fx.entry, os.O_RDONLY)
	require.NoError(t, err)
	h2, err := fx.fs.Open(ctx, fx.entry, os.O_RDWR)
	require.NoError(t, err)
	assert.Equal(t, 2, fx.file.OpenCount())

	require.NoError(t, fx.fs.Close(ctx, h1))
	require.NoError(t, fx.fs.Release(ctx, h1))
	require.NoError(t, fx.fs.Release(ctx, h2))
	assert.Equal(t, 0, fx.file.OpenCount())
}

func (suite *FileOpsTestSuite) testWriteRead(t *testing.T) {
	fx := suite.newFixture(t)
	h := fx.open(t, os.O_RDWR)

	data := []byte("Hello, World!")
	fx.mustWrite(t, h, data, 0)
	assert.Equal(t, data, fx.mustRead(t, h, 64, 0))
	assert.Equal(t, []byte("World"), fx.mustRead(t, h, 5, 7))
}

func (suite *FileOpsTestSuite) testReadClamped(t *testing.T) {
	fx := suite.newFixture(t)
	h := fx.open(t, os.O_RDWR)

	fx.mustWrite(t, h, []byte("hi\n"), 0)
	got := fx.mustRead(t, h, 10, 0)
	assert.Equal(t, "hi\n", string(got))
}

func (suite *FileOpsTestSuite) testReadPastEnd(t *testing.T) {
	fx := suite.newFixture(t)
	h := fx.open(t, os.O_RDWR)

	assert.Empty(t, fx.mustRead(t, h, 8, 0), "empty file reads nothing")
	fx.mustWrite(t, h, []byte("abc"), 0)
	assert.Empty(t, fx.mustRead(t, h, 8, 3))
	assert.Empty(t, fx.mustRead(t, h, 8, 1000))
}

func (suite *FileOpsTestSuite) testWriteGrowsWithGap(t *testing.T) {
	fx := suite.newFixture(t)
	h := fx.open(t, os.O_RDWR)

	fx.mustWrite(t, h, []byte("ab"), 0)
	fx.mustWrite(t, h, []byte("z"), 5)

	assert.Equal(t, int64(6), fx.size(t))
	got := fx.mustRead(t, h, 16, 0)
	require.Len(t, got, 6)
	assert.Equal(t, byte('a'), got[0])
	assert.Equal(t, byte('z'), got[5])
}

func (suite *FileOpsTestSuite) testWriteIdempotent(t *testing.T) {
	fx := suite.newFixture(t)
	h := fx.open(t, os.O_RDWR)

	fx.mustWrite(t, h, []byte("same"), 2)
	first := fx.mustRead(t, h, 64, 0)
	firstSize := fx.size(t)

	fx.mustWrite(t, h, []byte("same"), 2)
	assert.Equal(t, first, fx.mustRead(t, h, 64, 0))
	assert.Equal(t, firstSize, fx.size(t))
}

func (suite *FileOpsTestSuite) testTruncateShrink(t *testing.T) {
	fx := suite.newFixture(t)
	h := fx.open(t, os.O_RDWR)

	fx.mustWrite(t, h, []byte("0123456789"), 0)
	require.NoError(t, fx.fs.Truncate(testContext(), fx.entry, 4))

	assert.Equal(t, int64(4), fx.size(t))
	assert.Equal(t, make([]byte, 4), fx.mustRead(t, h, 16, 0), "truncate zero-fills")
}

func (suite *FileOpsTestSuite) testTruncateThenWrite(t *testing.T) {
	fx := suite.newFixture(t)
	h := fx.open(t, os.O_RDWR)

	fx.mustWrite(t, h, []byte("stale content"), 0)
	require.NoError(t, fx.fs.Truncate(testContext(), fx.entry, 0))
	fx.mustWrite(t, h, []byte("fresh"), 0)

	assert.Equal(t, int64(5), fx.size(t))
	assert.Equal(t, "fresh", string(fx.mustRead(t, h, 16, 0)))
}

func (suite *FileOpsTestSuite) testGetattr(t *testing.T) {
	fx := suite.newFixture(t)
	h := fx.open(t, os.O_RDWR)
	fx.mustWrite(t, h, []byte("12345678"), 0)

	attr, err := fx.fs.Getattr(testContext(), fx.entry)
	require.NoError(t, err)
	assert.Equal(t, int64(8), attr.Size)
	assert.False(t, attr.IsDir())
	assert.Equal(t, fx.entry.Inode(), attr.Inode)
}
