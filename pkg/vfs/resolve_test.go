package vfs

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTree(t *testing.T, fs *Filesystem) {
	t.Helper()
	for _, p := range []string{"/a", "/a/b", "/a/b/c"} {
		_, err := fs.Mkdir(ctxBG(), p, 0o755)
		require.NoError(t, err)
	}
	writeFile(t, fs, "/a/b/c/leaf", []byte("x"))
	writeFile(t, fs, "/top", []byte("y"))
}

func TestResolve(t *testing.T) {
	fs := newTestFS(t)
	buildTree(t, fs)

	t.Run("Root", func(t *testing.T) {
		e, err := fs.Resolve("/")
		require.NoError(t, err)
		assert.Same(t, fs.Root(), e)
		assert.Equal(t, RootInode, e.Inode())
		assert.Equal(t, "/", e.Path())
	})

	t.Run("FileAndDirectoryTargets", func(t *testing.T) {
		leaf, err := fs.Resolve("/a/b/c/leaf")
		require.NoError(t, err)
		assert.Equal(t, KindFile, leaf.Kind())
		assert.Equal(t, "/a/b/c/leaf", leaf.Path())

		dir, err := fs.Resolve("/a/b")
		require.NoError(t, err)
		assert.Equal(t, KindDirectory, dir.Kind())
	})

	t.Run("EmptySegmentsIgnored", func(t *testing.T) {
		a, err := fs.Resolve("/a/b/c/leaf")
		require.NoError(t, err)
		b, err := fs.Resolve("//a///b/c//leaf/")
		require.NoError(t, err)
		assert.Same(t, a, b)
	})

	t.Run("StepwiseWalkMatchesDirectResolution", func(t *testing.T) {
		p := "/a/b/c/leaf"
		direct, err := fs.Resolve(p)
		require.NoError(t, err)

		cur := fs.Root()
		for _, seg := range strings.Split(strings.TrimPrefix(p, "/"), "/") {
			d, err := cur.Dir()
			require.NoError(t, err)
			cur, err = d.Lookup(seg)
			require.NoError(t, err)
		}
		assert.Same(t, direct, cur)
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := fs.Resolve("/missing")
		assert.True(t, errors.Is(err, ErrNotFound))

		_, err = fs.Resolve("/a/missing/c")
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("NotADirectory", func(t *testing.T) {
		_, err := fs.Resolve("/top/x")
		assert.True(t, errors.Is(err, ErrNotADirectory))
	})

	t.Run("CaseSensitive", func(t *testing.T) {
		_, err := fs.Resolve("/A")
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("DotSegmentsAreLiteral", func(t *testing.T) {
		_, err := fs.Resolve("/a/../top")
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("Relative", func(t *testing.T) {
		_, err := fs.Resolve("a/b")
		assert.True(t, IsCode(err, ErrInvalidArgument))
	})
}

func TestResolveParent(t *testing.T) {
	fs := newTestFS(t)
	buildTree(t, fs)
	sb := fs.Superblock()

	dir, name, err := sb.ResolveParent("/a/b/new")
	require.NoError(t, err)
	assert.Equal(t, "new", name)
	assert.Equal(t, "/a/b", dir.Entry().Path())

	dir, name, err = sb.ResolveParent("/x")
	require.NoError(t, err)
	assert.Same(t, sb.RootDir(), dir)
	assert.Equal(t, "x", name)

	_, _, err = sb.ResolveParent("/top/x")
	assert.True(t, errors.Is(err, ErrNotADirectory))

	_, _, err = sb.ResolveParent("/")
	assert.True(t, IsCode(err, ErrInvalidArgument))
}
