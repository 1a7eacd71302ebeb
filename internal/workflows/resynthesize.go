package workflows

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"

	"github.com/tendant/nd3-capture-pipeline/internal/metadata"
)

// jobSuffix is the "-<unix ms>" (and optional collision counter) a job adds
// to the archive name when naming its output directory
var jobSuffix = regexp.MustCompile(`-\d{10,}(-\d+)?$`)

// ResynthesizeWorkflow rebuilds meta.json for an existing output directory.
// Nothing is extracted, run or persisted.
type ResynthesizeWorkflow struct{}

// NewResynthesizeWorkflow creates the resynthesize workflow
func NewResynthesizeWorkflow() *ResynthesizeWorkflow {
	return &ResynthesizeWorkflow{}
}

// Name returns the workflow name
func (w *ResynthesizeWorkflow) Name() string {
	return "ResynthesizeWorkflow"
}

// Execute runs the workflow
func (w *ResynthesizeWorkflow) Execute(wctx *WorkflowContext) (*WorkflowResult, error) {
	dir := wctx.Request.Capture.OutputDir
	if dir == "" {
		return &WorkflowResult{Success: false, Error: ErrInvalidRequest}, ErrInvalidRequest
	}

	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		err = fmt.Errorf("%w: %s is not a directory", ErrInvalidRequest, dir)
		return &WorkflowResult{Success: false, Error: err}, err
	}

	baseName := wctx.Request.Capture.BaseName
	if baseName == "" {
		baseName = BaseNameOf(dir)
	}

	log.Printf("[%s] Resynthesizing metadata in %s", wctx.RunID, dir)

	meta, err := metadata.Synthesize(dir, baseName)
	if err != nil {
		return &WorkflowResult{Success: false, Error: err}, err
	}
	if err := metadata.WriteSidecar(dir, meta); err != nil {
		werr := &MetadataWriteError{Dir: dir, Err: err}
		return &WorkflowResult{Success: false, Error: werr}, werr
	}

	log.Printf("[%s] ✓ Metadata rewritten (akallCommand=%s)", wctx.RunID, meta.AkallCommand)

	return &WorkflowResult{
		Success: true,
		Outputs: map[string]interface{}{
			"output_dir":    dir,
			"akall_command": meta.AkallCommand,
			"metadata":      meta,
		},
	}, nil
}

// BaseNameOf recovers the archive base name of an output directory, from
// its existing meta.json when there is one
func BaseNameOf(dir string) string {
	if meta, err := metadata.ReadSidecar(dir); err == nil && meta.OriginalFileName != "" {
		return meta.OriginalFileName
	}
	return jobSuffix.ReplaceAllString(filepath.Base(filepath.Clean(dir)), "")
}
