package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/nd3-capture-pipeline/pkg/pipeline"
)

func TestCreateOutputDir_Exclusive(t *testing.T) {
	fs, err := NewFilesystemStorage(filepath.Join(t.TempDir(), "processed"))
	require.NoError(t, err)

	first, err := fs.CreateOutputDir("capture1-1700000000000")
	require.NoError(t, err)
	second, err := fs.CreateOutputDir("capture1-1700000000000")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(fs.BaseDir(), "capture1-1700000000000"), first)
	assert.Equal(t, filepath.Join(fs.BaseDir(), "capture1-1700000000000-1"), second)
	assert.DirExists(t, first)
	assert.DirExists(t, second)
}

func TestPath_RejectsTraversal(t *testing.T) {
	fs, err := NewFilesystemStorage(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"../escape", "a/../../escape", ".", ""} {
		_, err := fs.Path(key)
		assert.Error(t, err, key)
	}

	p, err := fs.Path("ok/nested")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(fs.BaseDir(), "ok", "nested"), p)
}

func TestWithin(t *testing.T) {
	assert.True(t, Within("/a/b", "/a/b"))
	assert.True(t, Within("/a/b", "/a/b/c"))
	assert.False(t, Within("/a/b", "/a/bc"))
	assert.False(t, Within("/a/b", "/a"))
	assert.True(t, Within("/a/b", "/a/b/..c"))
}

func TestWriteFileAtomic_Replaces(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, WriteFileAtomic(dir, "meta.json", []byte("one")))
	require.NoError(t, WriteFileAtomic(dir, "meta.json", []byte("two")))

	data, err := os.ReadFile(filepath.Join(dir, "meta.json"))
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestSQLStore_SaveAndGet(t *testing.T) {
	ctx := context.Background()
	store, err := OpenSQLStore(ctx, DriverSQLite, filepath.Join(t.TempDir(), "db", "nd3.db"))
	require.NoError(t, err)
	defer store.Close()

	jpeg := "1700000000C05MJPG1080P.jpeg"
	meta := &pipeline.Nd3Metadata{
		OriginalFileName: "capture1",
		ProcessedPath:    "/data/processed/capture1-1",
		AkallCommand:     pipeline.UnknownCommand,
		Outputs: pipeline.Outputs{
			OriginalJPEG:      &jpeg,
			Nd3Reconstruction: []pipeline.Reconstruction{},
			RawConverted:      []string{},
		},
	}

	id, err := store.Save(ctx, meta)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	rec, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "capture1", rec.OriginalFileName)
	assert.Equal(t, StatusProcessed, rec.Status)
	if diff := cmp.Diff(*meta, rec.Meta); diff != "" {
		t.Errorf("stored metadata mismatch (-want +got):\n%s", diff)
	}

	_, err = store.Get(ctx, "missing")
	assert.Error(t, err)
}

func TestOpenSQLStore_UnsupportedDriver(t *testing.T) {
	_, err := OpenSQLStore(context.Background(), "mongo", "x")
	assert.Error(t, err)
}

func TestRebind(t *testing.T) {
	q := "INSERT INTO t (a, b) VALUES (?, ?)"
	assert.Equal(t, q, Rebind(DriverSQLite, q))
	assert.Equal(t, "INSERT INTO t (a, b) VALUES ($1, $2)", Rebind(DriverPostgres, q))
}

func TestNopStore(t *testing.T) {
	id, err := NopStore{}.Save(context.Background(), &pipeline.Nd3Metadata{})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}
