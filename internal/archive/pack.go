package archive

import (
	"archive/tar"
	"os"
	"sort"
	"time"

	"github.com/klauspost/compress/gzip"
)

// Pack writes files into a gzip-compressed tar at dst. Entries are written
// in name order.
func Pack(dst string, files map[string][]byte) error {
	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	now := time.Now()
	for _, name := range names {
		data := files[name]
		hdr := &tar.Header{
			Name:     name,
			Mode:     0644,
			Size:     int64(len(data)),
			ModTime:  now,
			Typeflag: tar.TypeReg,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			out.Close()
			return err
		}
		if _, err := tw.Write(data); err != nil {
			out.Close()
			return err
		}
	}

	if err := tw.Close(); err != nil {
		out.Close()
		return err
	}
	if err := gz.Close(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
