// Package runner embeds the capture pipeline in another program.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"time"

	"github.com/tendant/nd3-capture-pipeline/internal/config"
	"github.com/tendant/nd3-capture-pipeline/internal/dbosruntime"
	"github.com/tendant/nd3-capture-pipeline/internal/dedupe"
	"github.com/tendant/nd3-capture-pipeline/internal/handlers"
	"github.com/tendant/nd3-capture-pipeline/internal/metrics"
	"github.com/tendant/nd3-capture-pipeline/internal/notify"
	"github.com/tendant/nd3-capture-pipeline/internal/queue"
	"github.com/tendant/nd3-capture-pipeline/internal/storage"
	"github.com/tendant/nd3-capture-pipeline/internal/tools"
	"github.com/tendant/nd3-capture-pipeline/internal/watcher"
	"github.com/tendant/nd3-capture-pipeline/internal/workflows"
	"github.com/tendant/nd3-capture-pipeline/pkg/pipeline"
)

// Config holds the configuration for initializing the pipeline runner
type Config = config.Config

// LoadConfig reads .env, the optional YAML file at path and the environment
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// Submitter accepts jobs for eventual processing
type Submitter interface {
	Submit(job pipeline.CaptureJob) error
}

// Runner owns every pipeline component: the serial queue, the workflows
// and the sinks they report to
type Runner struct {
	cfg Config

	metrics *metrics.Metrics
	store   storage.RecordStore
	mqtt    *notify.MQTTNotifier
	runner  *workflows.WorkflowRunner
	queue   *queue.Queue
	durable *queue.Durable
	runtime *dbosruntime.Runtime
	submit  Submitter
	cancel  context.CancelFunc
	version string
}

// New builds the pipeline from cfg. Jobs run with a context derived from
// ctx; Shutdown cancels it.
func New(ctx context.Context, cfg Config, version string) (*Runner, error) {
	cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := &Runner{cfg: cfg, metrics: metrics.New(), version: version}
	ok := false
	defer func() {
		if !ok {
			r.Shutdown(time.Second)
		}
	}()

	outputs, err := storage.NewFilesystemStorage(cfg.ProcessedDir)
	if err != nil {
		return nil, err
	}
	log.Printf("✓ Output root: %s", outputs.BaseDir())

	var ledger workflows.Ledger
	switch cfg.StoreDriver {
	case config.StoreNone:
		r.store = storage.NopStore{}
		log.Printf("Record store disabled")
	default:
		sqlStore, err := storage.OpenSQLStore(ctx, cfg.StoreDriver, cfg.StoreDSN)
		if err != nil {
			return nil, err
		}
		r.store = sqlStore
		tracker, err := dedupe.NewTracker(ctx, sqlStore.DB(), sqlStore.Driver())
		if err != nil {
			return nil, err
		}
		ledger = tracker
		log.Printf("✓ Record store: %s", cfg.StoreDriver)
	}

	notifiers := notify.Multi{notify.LogNotifier{}}
	if cfg.MQTTBroker != "" {
		r.mqtt = notify.NewMQTTNotifier(notify.MQTTConfig{
			Broker:   cfg.MQTTBroker,
			ClientID: cfg.MQTTClientID,
			Topic:    cfg.MQTTTopic,
		})
		if err := r.mqtt.Connect(ctx); err != nil {
			log.Printf("Warning: %v - events will be published once the broker is reachable", err)
		}
		notifiers = append(notifiers, r.mqtt)
		r.metrics.WatchBroker(func() (bool, uint64) {
			st := r.mqtt.Stats()
			return st.Connected, st.Errors
		})
	}

	var splitter tools.ChannelSplitter
	execRunner := tools.NewExecRunner(cfg.ToolTimeout)
	if cfg.ChannelSplitter == config.SplitterBuiltin {
		splitter = &tools.BuiltinSplitter{}
	}
	orchestrator := tools.NewOrchestrator(tools.Options{
		ImageTool:       cfg.ImageTool,
		ND3Binary:       cfg.ND3Binary,
		CalibrationFile: cfg.CalibrationFile,
		ReconWorkers:    cfg.ReconWorkers,
	}, execRunner, splitter)
	orchestrator.OnInvocation(r.metrics.ObserveTool)
	if !cfg.ReconstructionEnabled() {
		log.Printf("Warning: ND3_BINARY or CALIBRATION not set - reconstruction will be skipped")
	}

	jobCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.runner = workflows.NewWorkflowRunner()
	r.queue = queue.New(jobCtx, r.runner.HandleCapture)
	r.queue.OnDepth(r.metrics.SetQueueDepth)

	capture := workflows.NewCaptureWorkflow(workflows.CaptureConfig{
		Outputs:       outputs,
		Tools:         orchestrator,
		Store:         r.store,
		Notifier:      notifiers,
		Ledger:        ledger,
		ThumbnailSize: cfg.ThumbnailSize,
		Observer:      r.queue.Observe,
		Metrics:       r.metrics,
	})
	r.runner.Register(pipeline.JobCapture, capture)
	log.Printf("✓ Registered workflow: %s for job: %s", capture.Name(), pipeline.JobCapture)

	resynth := workflows.NewResynthesizeWorkflow()
	r.runner.Register(pipeline.JobResynthesize, resynth)
	log.Printf("✓ Registered workflow: %s for job: %s", resynth.Name(), pipeline.JobResynthesize)

	r.submit = r.queue
	if cfg.QueueBackend == config.QueueDBOS {
		r.runtime, err = dbosruntime.NewRuntime(ctx, dbosruntime.Config{
			DatabaseURL: cfg.DBOSDatabaseURL,
			AppName:     "nd3d",
			QueueName:   cfg.DBOSQueueName,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize DBOS: %w", err)
		}
		// the workflow must be registered before Launch
		r.durable = queue.NewDurable(r.runtime, r.queue)
		if err := r.runtime.Launch(); err != nil {
			return nil, fmt.Errorf("failed to launch DBOS: %w", err)
		}
		r.submit = r.durable
	}

	ok = true
	return r, nil
}

// Process runs one archive through the pipeline and waits for it
func (r *Runner) Process(ctx context.Context, archivePath string) (pipeline.CaptureJob, error) {
	path, err := filepath.Abs(archivePath)
	if err != nil {
		return pipeline.CaptureJob{}, err
	}
	job := pipeline.NewCaptureJob(path, r.cfg.ArchiveSuffix, time.Now())
	return job, r.queue.SubmitWait(ctx, job)
}

// Enqueue submits one archive without waiting. With the dbos backend the
// submission is durable.
func (r *Runner) Enqueue(archivePath string) (pipeline.CaptureJob, error) {
	path, err := filepath.Abs(archivePath)
	if err != nil {
		return pipeline.CaptureJob{}, err
	}
	job := pipeline.NewCaptureJob(path, r.cfg.ArchiveSuffix, time.Now())
	return job, r.submit.Submit(job)
}

// Resynthesize rewrites meta.json of an existing output directory
func (r *Runner) Resynthesize(ctx context.Context, dir string) (*pipeline.Nd3Metadata, error) {
	result, err := r.runner.Resynthesize(ctx, dir, "")
	if err != nil {
		return nil, err
	}
	meta, _ := result.Outputs["metadata"].(*pipeline.Nd3Metadata)
	return meta, nil
}

// Watch watches the incoming directory until ctx is cancelled. A
// *watcher.FatalIngestError means ingestion could not start.
func (r *Runner) Watch(ctx context.Context) error {
	w := watcher.New(watcher.Config{
		Dir:          r.cfg.IncomingDir,
		Suffix:       r.cfg.ArchiveSuffix,
		PollInterval: r.cfg.PollInterval,
		ScanExisting: r.cfg.ScanExisting,
	}, r.submit)
	w.OnDetected(r.metrics.ArchivesDetected.Inc)
	w.OnSubmitted(r.metrics.ArchivesSubmitted.Inc)
	return w.Run(ctx)
}

// Wait blocks until every submitted job has finished
func (r *Runner) Wait() {
	r.queue.Wait()
}

// Status reports the job queue
func (r *Runner) Status() queue.Status {
	return r.queue.Status()
}

// Handler serves /health, /v1/queue and /metrics
func (r *Runner) Handler() http.Handler {
	return handlers.NewOpsHandler(r.queue, r.metrics.Handler(), r.version).Routes()
}

// WorkflowStatus reads the durable state of a capture workflow
func (r *Runner) WorkflowStatus(ctx context.Context, workflowID string) (*dbosruntime.WorkflowStatusInfo, error) {
	if r.runtime == nil {
		return nil, errors.New("workflow status requires the dbos queue backend")
	}
	return r.runtime.GetWorkflowStatus(ctx, workflowID)
}

// Shutdown stops accepting jobs, waits up to timeout for the running job
// and releases every connection
func (r *Runner) Shutdown(timeout time.Duration) {
	// stop dequeuing durable work first so pending captures stay pending
	if r.runtime != nil {
		if err := r.runtime.Shutdown(timeout); err != nil {
			log.Printf("Warning: closing DBOS connection: %v", err)
		}
	}
	if r.queue != nil {
		r.queue.Close()
		done := make(chan struct{})
		go func() {
			r.queue.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(timeout):
			log.Printf("Warning: running job did not finish within %s, cancelling", timeout)
		}
	}
	if r.cancel != nil {
		r.cancel()
	}
	if r.mqtt != nil {
		r.mqtt.Close()
	}
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			log.Printf("Warning: closing record store: %v", err)
		}
	}
}
