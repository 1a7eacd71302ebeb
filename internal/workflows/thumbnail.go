package workflows

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"

	"github.com/tendant/nd3-capture-pipeline/internal/metadata"
	"github.com/tendant/nd3-capture-pipeline/internal/naming"
)

// thumbnailQuality is the JPEG quality of preview thumbnails
const thumbnailQuality = 80

// GenerateThumbnail writes a preview of the original color image in dir,
// fitted into size x size. It returns the thumbnail name, or "" when dir
// has no original color image.
func GenerateThumbnail(dir string, size int) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}

	original := metadata.Classify(names).Original
	if original == "" {
		return "", nil
	}

	img, err := imaging.Open(filepath.Join(dir, original))
	if err != nil {
		return "", fmt.Errorf("image decode failed: %w", err)
	}

	// Lanczos resampling, aspect ratio kept
	thumb := imaging.Fit(img, size, size, imaging.Lanczos)

	name := naming.ThumbnailName(original)
	if err := imaging.Save(thumb, filepath.Join(dir, name), imaging.JPEGQuality(thumbnailQuality)); err != nil {
		return "", fmt.Errorf("JPEG encode failed: %w", err)
	}
	return name, nil
}
