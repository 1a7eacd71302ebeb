package workflows

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/tendant/nd3-capture-pipeline/internal/archive"
	"github.com/tendant/nd3-capture-pipeline/internal/metadata"
	"github.com/tendant/nd3-capture-pipeline/internal/metrics"
	"github.com/tendant/nd3-capture-pipeline/internal/notify"
	"github.com/tendant/nd3-capture-pipeline/internal/storage"
	"github.com/tendant/nd3-capture-pipeline/internal/tools"
	"github.com/tendant/nd3-capture-pipeline/pkg/pipeline"
)

// Ledger counts archive deliveries
type Ledger interface {
	Record(ctx context.Context, archiveName, jobID string) (int, error)
}

// CaptureConfig holds the collaborators of the capture workflow. Ledger,
// Observer and Metrics are optional.
type CaptureConfig struct {
	Outputs       *storage.FilesystemStorage
	Tools         *tools.Orchestrator
	Store         storage.RecordStore
	Notifier      notify.Notifier
	Ledger        Ledger
	ThumbnailSize int
	Observer      StageObserver
	Metrics       *metrics.Metrics
}

// CaptureWorkflow takes one archive from extraction to a persisted record
type CaptureWorkflow struct {
	cfg CaptureConfig
}

// NewCaptureWorkflow creates the capture workflow
func NewCaptureWorkflow(cfg CaptureConfig) *CaptureWorkflow {
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Nop{}
	}
	if cfg.Store == nil {
		cfg.Store = storage.NopStore{}
	}
	return &CaptureWorkflow{cfg: cfg}
}

// Name returns the workflow name
func (w *CaptureWorkflow) Name() string {
	return "CaptureWorkflow"
}

// Execute runs the workflow. Only extraction and persistence failures fail
// the job; tool, thumbnail, sidecar and notification problems are logged.
func (w *CaptureWorkflow) Execute(wctx *WorkflowContext) (*WorkflowResult, error) {
	ctx := wctx.Ctx
	job := wctx.Request.Capture
	runID := wctx.RunID
	start := time.Now()

	if job.ArchivePath == "" {
		return &WorkflowResult{Success: false, Error: ErrInvalidRequest}, ErrInvalidRequest
	}
	if job.BaseName == "" {
		job.BaseName = filepath.Base(job.ArchivePath)
	}
	if job.ID == "" {
		job.ID = runID
	}

	log.Printf("[%s] Starting capture workflow for %s", runID, job.ArchivePath)

	if w.cfg.Ledger != nil {
		seen, err := w.cfg.Ledger.Record(ctx, filepath.Base(job.ArchivePath), job.ID)
		if err != nil {
			log.Printf("[%s] Warning: ingest ledger unavailable: %v", runID, err)
		} else if seen > 1 {
			log.Printf("[%s] Archive %s seen %d times, processing into a fresh directory", runID, filepath.Base(job.ArchivePath), seen)
		}
	}

	// Step 1: Allocate the output directory and extract
	w.stage(job.ID, pipeline.StageExtracting)

	dir, err := w.cfg.Outputs.CreateOutputDir(job.ID)
	if err != nil {
		return w.fail(ctx, job, start, metrics.OutcomeExtraction, fmt.Errorf("%w: %w", ErrExtraction, err))
	}
	job.OutputDir = dir

	count, err := archive.Extract(ctx, job.ArchivePath, dir)
	if err != nil {
		return w.fail(ctx, job, start, metrics.OutcomeExtraction, fmt.Errorf("%w: %w", ErrExtraction, err))
	}
	log.Printf("[%s] ✓ Extracted %d files to %s", runID, count, dir)

	w.notify(ctx, job, pipeline.EventDecompressionComplete, map[string]string{
		"filePath":  job.ArchivePath,
		"outputDir": dir,
	})

	// Step 2: External tools
	w.stage(job.ID, pipeline.StageOrchestrating)

	report := w.cfg.Tools.Run(ctx, runID, dir)
	log.Printf("[%s] ✓ Tools finished: %s", runID, report)

	if w.cfg.ThumbnailSize > 0 {
		if name, err := GenerateThumbnail(dir, w.cfg.ThumbnailSize); err != nil {
			log.Printf("[%s] Warning: thumbnail failed: %v", runID, err)
		} else if name != "" {
			log.Printf("[%s] ✓ Thumbnail written: %s", runID, name)
		}
	}

	w.notify(ctx, job, pipeline.EventShellCommandsDone, map[string]string{
		"filePath": job.ArchivePath,
	})

	// Step 3: Metadata
	w.stage(job.ID, pipeline.StageSynthesizing)

	meta, err := metadata.Synthesize(dir, job.BaseName)
	if err != nil {
		log.Printf("[%s] Warning: %v - metadata describes an empty directory", runID, err)
	}
	if err := metadata.WriteSidecar(dir, meta); err != nil {
		warn := &MetadataWriteError{Dir: dir, Err: err}
		log.Printf("[%s] Warning: %v", runID, warn)
	} else {
		log.Printf("[%s] ✓ Metadata written (akallCommand=%s)", runID, meta.AkallCommand)
	}

	// Step 4: Persist
	w.stage(job.ID, pipeline.StagePersisting)

	recordID, err := w.cfg.Store.Save(ctx, meta)
	if err != nil {
		return w.fail(ctx, job, start, metrics.OutcomePersist, &PersistenceError{JobID: job.ID, Err: err})
	}
	log.Printf("[%s] ✓ Record saved: %s", runID, recordID)

	w.notify(ctx, job, pipeline.EventFileProcessed, map[string]string{
		"_id":      recordID,
		"filePath": job.ArchivePath,
	})

	w.stage(job.ID, pipeline.StageDone)
	if w.cfg.Metrics != nil {
		w.cfg.Metrics.ObserveJob(metrics.OutcomeDone, time.Since(start))
	}
	log.Printf("[%s] Capture workflow completed in %s", runID, time.Since(start).Round(time.Millisecond))

	return &WorkflowResult{
		Success: true,
		Outputs: map[string]interface{}{
			"output_dir":    dir,
			"record_id":     recordID,
			"akall_command": meta.AkallCommand,
			"invocations":   report.Invocations,
			"tool_failures": len(report.Failures),
			"files":         count,
		},
	}, nil
}

func (w *CaptureWorkflow) fail(ctx context.Context, job pipeline.CaptureJob, start time.Time, outcome string, err error) (*WorkflowResult, error) {
	w.stage(job.ID, pipeline.StageErrored)
	log.Printf("[%s] Capture workflow failed: %v", job.ID, err)

	if archive.IsExtractionError(err) {
		log.Printf("[%s] No metadata written for %s", job.ID, job.ArchivePath)
	}

	w.notify(ctx, job, pipeline.EventJobFailed, map[string]string{
		"filePath": job.ArchivePath,
		"error":    err.Error(),
	})
	if w.cfg.Metrics != nil {
		w.cfg.Metrics.ObserveJob(outcome, time.Since(start))
	}

	outputs := map[string]interface{}{}
	if job.OutputDir != "" {
		outputs["output_dir"] = job.OutputDir
	}
	return &WorkflowResult{Success: false, Error: err, Outputs: outputs}, err
}

func (w *CaptureWorkflow) stage(jobID string, stage pipeline.Stage) {
	if w.cfg.Observer != nil {
		w.cfg.Observer(jobID, stage)
	}
}

// notify delivers an event; failures are logged and otherwise ignored
func (w *CaptureWorkflow) notify(ctx context.Context, job pipeline.CaptureJob, name string, payload map[string]string) {
	ev := pipeline.Event{Name: name, JobID: job.ID, Payload: payload}
	switch name {
	case pipeline.EventDecompressionComplete:
		ev.Stage = pipeline.StageExtracting
	case pipeline.EventShellCommandsDone:
		ev.Stage = pipeline.StageOrchestrating
	case pipeline.EventFileProcessed:
		ev.Stage = pipeline.StageDone
	default:
		ev.Stage = pipeline.StageErrored
	}

	err := w.cfg.Notifier.Notify(ctx, ev)
	if err != nil {
		log.Printf("[%s] Warning: notification %s failed: %v", job.ID, name, err)
	}
	if w.cfg.Metrics != nil {
		w.cfg.Metrics.ObserveNotification(name, err)
	}
}
