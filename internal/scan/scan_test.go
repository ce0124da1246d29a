package scan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanSegments_SortedByStemAndFiltered(t *testing.T) {
	dir := t.TempDir()

	touch(t, filepath.Join(dir, "00002.mkv"), 3)
	touch(t, filepath.Join(dir, "00000.mkv"), 1)
	touch(t, filepath.Join(dir, "00001.mkv"), 2)
	touch(t, filepath.Join(dir, "00001_fpf.log"), 1)
	touch(t, filepath.Join(dir, "nested", "00003.mkv"), 1)

	got, err := ScanSegments(dir, ".mkv")
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "00000", got[0].Stem)
	assert.Equal(t, "00001", got[1].Stem)
	assert.Equal(t, "00002", got[2].Stem)
	assert.Equal(t, int64(2), got[1].Size)
	assert.True(t, filepath.IsAbs(got[0].AbsPath))
}

func TestScanSegments_ExtCaseInsensitiveAndDefault(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "A.MKV"), 1)

	got, err := ScanSegments(dir, "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ".mkv", got[0].Ext)

	got, err = ScanSegments(dir, "MKV")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestScanSegments_MissingDirIsEmpty(t *testing.T) {
	got, err := ScanSegments(filepath.Join(t.TempDir(), "split"), ".mkv")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestScanSegments_LexicographicNotNumeric(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "10.mkv"), 1)
	touch(t, filepath.Join(dir, "9.mkv"), 1)

	got, err := ScanSegments(dir, ".mkv")
	require.NoError(t, err)
	require.Len(t, got, 2)
	// 按 stem 字典序："10" < "9"。segmenter 负责写出补零文件名。
	assert.Equal(t, "10", got[0].Stem)
}

func touch(t *testing.T, path string, size int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
}
