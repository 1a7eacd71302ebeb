package metadata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tendant/nd3-capture-pipeline/internal/naming"
	"github.com/tendant/nd3-capture-pipeline/internal/storage"
	"github.com/tendant/nd3-capture-pipeline/pkg/pipeline"
)

// Synthesize builds the record for dir. If the directory cannot be read the
// record describes an empty listing and the read error is returned with it.
func Synthesize(dir, baseName string) (*pipeline.Nd3Metadata, error) {
	names, readErr := listNames(dir)

	fs := Classify(names)
	params, command := DecodeCaptureParameters(fs.Original, fs.DepthName())

	meta := &pipeline.Nd3Metadata{
		OriginalFileName:  baseName,
		ProcessedPath:     dir,
		AkallCommand:      command,
		CaptureParameters: params,
		Outputs:           fs.Outputs(),
	}
	if fs.Original != "" {
		meta.Timestamp = ParseTimestamp(fs.Original)
	}

	if readErr != nil {
		return meta, fmt.Errorf("failed to read %s: %w", dir, readErr)
	}
	return meta, nil
}

// Encode renders meta as the sidecar document
func Encode(meta *pipeline.Nd3Metadata) ([]byte, error) {
	return json.MarshalIndent(meta, "", "  ")
}

// WriteSidecar writes meta.json into dir, replacing any previous one atomically
func WriteSidecar(dir string, meta *pipeline.Nd3Metadata) error {
	data, err := Encode(meta)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	if err := storage.WriteFileAtomic(dir, naming.MetaFileName, data); err != nil {
		return fmt.Errorf("failed to write %s: %w", naming.MetaFileName, err)
	}
	return nil
}

// ReadSidecar loads meta.json from dir
func ReadSidecar(dir string) (*pipeline.Nd3Metadata, error) {
	data, err := os.ReadFile(filepath.Join(dir, naming.MetaFileName))
	if err != nil {
		return nil, err
	}
	var meta pipeline.Nd3Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", naming.MetaFileName, err)
	}
	return &meta, nil
}

func listNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || e.Name() == naming.MetaFileName {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}
