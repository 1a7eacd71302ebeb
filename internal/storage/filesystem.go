package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// maxDirAttempts bounds the collision suffixes tried by CreateOutputDir
const maxDirAttempts = 100

// FilesystemStorage allocates output directories under the processed root
type FilesystemStorage struct {
	baseDir string
}

// NewFilesystemStorage creates a new filesystem storage rooted at baseDir
func NewFilesystemStorage(baseDir string) (*FilesystemStorage, error) {
	// Ensure base directory exists
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &FilesystemStorage{
		baseDir: baseDir,
	}, nil
}

// BaseDir returns the processed root
func (fs *FilesystemStorage) BaseDir() string {
	return fs.baseDir
}

// CreateOutputDir creates a fresh directory named after the job. The
// directory is created exclusively; if the name is taken a numeric suffix
// is appended so two jobs never share a directory.
func (fs *FilesystemStorage) CreateOutputDir(name string) (string, error) {
	for i := 0; i < maxDirAttempts; i++ {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s-%d", name, i)
		}

		path, err := fs.Path(candidate)
		if err != nil {
			return "", err
		}

		err = os.Mkdir(path, 0755)
		if err == nil {
			return path, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	return "", fmt.Errorf("failed to create output directory for %s: too many collisions", name)
}

// Path resolves key under the base directory
func (fs *FilesystemStorage) Path(key string) (string, error) {
	path := filepath.Join(fs.baseDir, key)

	// Security: prevent directory traversal
	if !Within(fs.baseDir, path) || filepath.Clean(path) == filepath.Clean(fs.baseDir) {
		return "", fmt.Errorf("invalid key: path traversal detected")
	}
	return path, nil
}

// Within reports whether path is base or lies below it
func Within(base, path string) bool {
	rel, err := filepath.Rel(filepath.Clean(base), filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// WriteFileAtomic writes name in dir through a temp file and a rename so
// readers never observe a partially written file. An existing file is
// replaced.
func WriteFileAtomic(dir, name string, data []byte) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+name+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if err := writeAll(tmp, data); err != nil {
		return err
	}
	if err := tmp.Chmod(0644); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmpName, filepath.Join(dir, name)); err != nil {
		return err
	}

	// best-effort: directory fsync semantics differ across platforms
	_ = syncDir(dir)
	return nil
}

func writeAll(w io.Writer, b []byte) error {
	for len(b) > 0 {
		n, err := w.Write(b)
		if err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

func syncDir(dir string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
