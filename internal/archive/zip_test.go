package archive

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeZip(t *testing.T, path string, files map[string]string, order []string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for _, name := range order {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(files[name]))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

func TestExtract(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "parcels.zip")
	files := map[string]string{
		"Property Boundaries.shp": "shp",
		"Property Boundaries.dbf": "dbf",
		"meta/readme.txt":         "hello",
	}
	writeZip(t, src, files, []string{"Property Boundaries.shp", "Property Boundaries.dbf", "meta/readme.txt"})

	dest := filepath.Join(dir, "out")
	got, err := Extract(src, dest)
	require.NoError(t, err)
	require.Len(t, got, 3)

	b, err := os.ReadFile(filepath.Join(dest, "meta", "readme.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(b))

	ok, err := IsZip(src)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = IsZip(got[0])
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExtract_RejectsZipSlip(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "evil.zip")
	writeZip(t, src, map[string]string{"../escape.txt": "x"}, []string{"../escape.txt"})

	_, err := Extract(src, filepath.Join(dir, "out"))
	assert.ErrorIs(t, err, ErrUnsafePath)

	_, statErr := os.Stat(filepath.Join(dir, "escape.txt"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestSafeJoin(t *testing.T) {
	root := filepath.Join(string(filepath.Separator), "data", "pkg")

	p, err := safeJoin(root, "a/b.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "a", "b.txt"), p)

	for _, bad := range []string{"../x", "a/../../x", "/etc/passwd"} {
		_, err := safeJoin(root, bad)
		assert.ErrorIs(t, err, ErrUnsafePath, bad)
	}
}

func TestIsZip_ShortFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "tiny")
	require.NoError(t, os.WriteFile(p, []byte("P"), 0o644))
	ok, err := IsZip(p)
	require.NoError(t, err)
	assert.False(t, ok)
}
