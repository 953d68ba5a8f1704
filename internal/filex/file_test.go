package filex

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOS_ExistsSeesDanglingSymlink(t *testing.T) {
	dir := t.TempDir()
	link := filepath.Join(dir, "link.conf")
	require.NoError(t, os.Symlink(filepath.Join(dir, "missing.conf"), link))

	fs := OS{}
	ok, err := fs.Exists(link)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = fs.Exists(filepath.Join(dir, "nope"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOS_IsDir(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

	fs := OS{}
	ok, err := fs.IsDir(dir)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = fs.IsDir(file)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = fs.IsDir(filepath.Join(dir, "nope"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOS_WriteFileReplacesAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "alice-blog.conf")

	fs := OS{}
	require.NoError(t, fs.WriteFile(path, []byte("first"), 0o644))
	require.NoError(t, fs.WriteFile(path, []byte("second"), 0o644))

	got, err := fs.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), fi.Mode().Perm())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestOS_WriteFileMissingDir(t *testing.T) {
	err := OS{}.WriteFile(filepath.Join(t.TempDir(), "no", "such", "file"), []byte("x"), 0o600)
	require.Error(t, err)
}

func TestOS_RemoveContentsKeepsDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub", "deep"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".git"), []byte("x"), 0o644))

	require.NoError(t, OS{}.RemoveContents(dir))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestOS_RemoveIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gone")
	require.NoError(t, OS{}.Remove(path))
}

func TestOS_SymlinkAndReadlink(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "available.conf")
	link := filepath.Join(dir, "enabled.conf")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))

	fs := OS{}
	require.NoError(t, fs.Symlink(target, link))

	got, err := fs.Readlink(link)
	require.NoError(t, err)
	assert.Equal(t, target, got)

	require.Error(t, fs.Symlink(target, link), "existing link is an error")
}

func TestOS_MkdirFailsWhenPresent(t *testing.T) {
	dir := t.TempDir()
	fs := OS{}
	require.NoError(t, fs.Mkdir(filepath.Join(dir, "app"), 0o755))
	require.Error(t, fs.Mkdir(filepath.Join(dir, "app"), 0o755))
	require.NoError(t, fs.MkdirAll(filepath.Join(dir, "x", "y"), 0o755))
}
