package workflows

import (
	"context"
	"path/filepath"

	"github.com/tendant/nd3-capture-pipeline/pkg/pipeline"
)

// WorkflowContext contains context for workflow execution
type WorkflowContext struct {
	Ctx     context.Context
	Request pipeline.Request
	RunID   string
}

// WorkflowResult contains the result of workflow execution
type WorkflowResult struct {
	Success bool
	Error   error
	Outputs map[string]interface{}
}

// Workflow defines the interface for processing workflows
type Workflow interface {
	// Execute runs the workflow
	Execute(wctx *WorkflowContext) (*WorkflowResult, error)

	// Name returns the workflow name
	Name() string
}

// StageObserver is told about every stage a job enters
type StageObserver func(jobID string, stage pipeline.Stage)

// WorkflowRunner dispatches requests to registered workflows by job type
type WorkflowRunner struct {
	workflows map[string]Workflow
}

// NewWorkflowRunner creates an empty workflow runner
func NewWorkflowRunner() *WorkflowRunner {
	return &WorkflowRunner{
		workflows: make(map[string]Workflow),
	}
}

// Register registers a workflow
func (r *WorkflowRunner) Register(job string, workflow Workflow) {
	r.workflows[job] = workflow
}

// Run executes the workflow registered for wctx.Request.Job
func (r *WorkflowRunner) Run(wctx *WorkflowContext) (*WorkflowResult, error) {
	workflow, ok := r.workflows[wctx.Request.Job]
	if !ok {
		return &WorkflowResult{
			Success: false,
			Error:   ErrWorkflowNotFound,
		}, ErrWorkflowNotFound
	}

	return workflow.Execute(wctx)
}

// HandleCapture runs the capture workflow for job. It has the shape of a
// queue handler.
func (r *WorkflowRunner) HandleCapture(ctx context.Context, job pipeline.CaptureJob) error {
	result, err := r.Run(&WorkflowContext{
		Ctx:     ctx,
		Request: pipeline.Request{Job: pipeline.JobCapture, Capture: job},
		RunID:   job.ID,
	})
	if err != nil {
		return err
	}
	if !result.Success {
		return result.Error
	}
	return nil
}

// Resynthesize rebuilds the metadata of an existing output directory
func (r *WorkflowRunner) Resynthesize(ctx context.Context, dir, baseName string) (*WorkflowResult, error) {
	return r.Run(&WorkflowContext{
		Ctx: ctx,
		Request: pipeline.Request{
			Job:     pipeline.JobResynthesize,
			Capture: pipeline.CaptureJob{ID: filepath.Base(dir), OutputDir: dir, BaseName: baseName},
		},
		RunID: filepath.Base(dir),
	})
}
