package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, nil, 0o644))
}

func TestResolvePath(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "b.hcl"))
	touch(t, filepath.Join(dir, "nested", "a.hcl"))
	touch(t, filepath.Join(dir, ".git", "ignored.hcl"))
	touch(t, filepath.Join(dir, "notes.txt"))

	files, err := ResolvePath(dir, ".hcl")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "b.hcl"), filepath.Join(dir, "nested", "a.hcl")}, files)

	files, err = ResolvePath(filepath.Join(dir, "b.hcl"), ".hcl")
	require.NoError(t, err)
	assert.Len(t, files, 1)

	_, err = ResolvePath(filepath.Join(dir, "notes.txt"), ".hcl")
	assert.Error(t, err)

	_, err = ResolvePath(filepath.Join(dir, "missing"), ".hcl")
	assert.ErrorContains(t, err, "path not found")
}
