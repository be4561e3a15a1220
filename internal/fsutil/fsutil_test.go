package fsutil_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ruminaider/ccswitch/internal/fsutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFileAtomicCreatesParent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "settings.json")
	require.NoError(t, fsutil.WriteFileAtomic(path, []byte("{}\n"), 0600))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{}\n", string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestWriteFileAtomicLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.yaml")
	require.NoError(t, fsutil.WriteFileAtomic(path, []byte("one"), 0644))
	require.NoError(t, fsutil.WriteFileAtomic(path, []byte("two"), 0644))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a.yaml", entries[0].Name())
}

func TestCaptureAndRestore(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "existing")
	require.NoError(t, os.WriteFile(existing, []byte("before"), 0644))
	missing := filepath.Join(dir, "missing")

	snapExisting, err := fsutil.Capture(existing)
	require.NoError(t, err)
	assert.True(t, snapExisting.Exists)
	snapMissing, err := fsutil.Capture(missing)
	require.NoError(t, err)
	assert.False(t, snapMissing.Exists)

	require.NoError(t, os.WriteFile(existing, []byte("after"), 0644))
	require.NoError(t, os.WriteFile(missing, []byte("new"), 0644))

	require.NoError(t, snapExisting.Restore(fsutil.WriteFileAtomic))
	require.NoError(t, snapMissing.Restore(fsutil.WriteFileAtomic))

	data, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, "before", string(data))
	_, err = os.Stat(missing)
	assert.True(t, os.IsNotExist(err))
}

func TestWriteFileAtomicFollowsSymlink(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "real.json")
	link := filepath.Join(dir, "link.json")
	require.NoError(t, os.WriteFile(target, []byte("old"), 0644))
	require.NoError(t, os.Symlink(target, link))

	require.NoError(t, fsutil.WriteFileAtomic(link, []byte("new"), 0644))

	info, err := os.Lstat(link)
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&os.ModeSymlink)
	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}
