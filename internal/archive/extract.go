package archive

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/tendant/nd3-capture-pipeline/internal/storage"
)

// ExtractionError means the archive could not be fully unpacked. The job
// that owns it is abandoned.
type ExtractionError struct {
	Archive string
	Err     error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("failed to extract %s: %v", e.Archive, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// IsExtractionError reports whether err is or wraps an *ExtractionError
func IsExtractionError(err error) bool {
	var e *ExtractionError
	return errors.As(err, &e)
}

// Extract unpacks the gzip-compressed tar at src into dst, creating dst
// if needed. It returns the number of regular files written.
func Extract(ctx context.Context, src, dst string) (int, error) {
	n, err := extract(ctx, src, dst)
	if err != nil {
		return n, &ExtractionError{Archive: src, Err: err}
	}
	return n, nil
}

func extract(ctx context.Context, src, dst string) (int, error) {
	if err := os.MkdirAll(dst, 0755); err != nil {
		return 0, err
	}

	f, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return 0, fmt.Errorf("gzip: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	files := 0
	for {
		if err := ctx.Err(); err != nil {
			return files, err
		}

		hdr, err := tr.Next()
		if err == io.EOF {
			return files, nil
		}
		if err != nil {
			return files, fmt.Errorf("tar: %w", err)
		}

		target, err := entryPath(dst, hdr.Name)
		if err != nil {
			return files, err
		}
		if target == "" {
			continue
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return files, err
			}
		case tar.TypeReg:
			if err := writeFile(target, tr, hdr.FileInfo().Mode().Perm()); err != nil {
				return files, err
			}
			files++
		default:
			log.Printf("Skipping unsupported tar entry %q (type %c) in %s", hdr.Name, hdr.Typeflag, src)
		}
	}
}

// entryPath maps a tar entry name into dst. It returns "" for the archive
// root entry and an error for names that would escape dst.
func entryPath(dst, name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if clean == "." {
		return "", nil
	}
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("illegal path in archive: %q", name)
	}

	target := filepath.Join(dst, clean)
	// Security: prevent directory traversal
	if !storage.Within(dst, target) {
		return "", fmt.Errorf("illegal path in archive: %q", name)
	}
	return target, nil
}

func writeFile(path string, r io.Reader, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	if perm == 0 {
		perm = 0644
	}

	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
