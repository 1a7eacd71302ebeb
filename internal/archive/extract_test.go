package archive

import (
	"archive/tar"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "capture1.tar.gz")
	files := map[string][]byte{
		"1700000000C05MJPG1080P.jpeg":      []byte("jpeg"),
		"1700000000D0320288NFOV_2x2BINNED": bytes.Repeat([]byte{0x01, 0x02}, 64),
		"nested/notes.txt":                 []byte("hello"),
	}
	require.NoError(t, Pack(src, files))

	dst := filepath.Join(dir, "out", "capture1-1")
	n, err := Extract(context.Background(), src, dst)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	for name, want := range files {
		got, err := os.ReadFile(filepath.Join(dst, filepath.FromSlash(name)))
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}
}

func TestExtract_CorruptArchive(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "broken.tar.gz")
	require.NoError(t, os.WriteFile(src, []byte("definitely not gzip"), 0644))

	_, err := Extract(context.Background(), src, filepath.Join(dir, "out"))
	require.Error(t, err)
	assert.True(t, IsExtractionError(err))

	var ee *ExtractionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, src, ee.Archive)
}

func TestExtract_MissingArchive(t *testing.T) {
	dir := t.TempDir()
	_, err := Extract(context.Background(), filepath.Join(dir, "nope.tar.gz"), filepath.Join(dir, "out"))
	assert.True(t, IsExtractionError(err))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestExtract_TruncatedArchive(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "full.tar.gz")
	require.NoError(t, Pack(src, map[string][]byte{"big": bytes.Repeat([]byte("x"), 1<<16)}))

	data, err := os.ReadFile(src)
	require.NoError(t, err)
	truncated := filepath.Join(dir, "truncated.tar.gz")
	require.NoError(t, os.WriteFile(truncated, data[:len(data)/2], 0644))

	_, err = Extract(context.Background(), truncated, filepath.Join(dir, "out"))
	assert.True(t, IsExtractionError(err))
}

func TestExtract_RejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "evil.tar.gz")

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "../escape.txt", Mode: 0644, Size: 1, Typeflag: tar.TypeReg}))
	_, err := tw.Write([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	require.NoError(t, os.WriteFile(src, buf.Bytes(), 0644))

	_, err = Extract(context.Background(), src, filepath.Join(dir, "out"))
	assert.True(t, IsExtractionError(err))
	assert.NoFileExists(t, filepath.Join(dir, "escape.txt"))
}

func TestExtract_CancelledContext(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "capture.tar.gz")
	require.NoError(t, Pack(src, map[string][]byte{"a": []byte("a")}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Extract(ctx, src, filepath.Join(dir, "out"))
	assert.True(t, IsExtractionError(err))
	assert.ErrorIs(t, err, context.Canceled)
}
