package queue

import (
	"context"
	"fmt"
	"log"

	"github.com/dbos-inc/dbos-transact-golang/dbos"

	"github.com/tendant/nd3-capture-pipeline/internal/dbosruntime"
	"github.com/tendant/nd3-capture-pipeline/pkg/pipeline"
)

// Durable records each submission as a DBOS workflow so pending captures
// survive a restart. The workflow body hands the job to the local Queue,
// which still runs at most one job at a time.
type Durable struct {
	runtime *dbosruntime.Runtime
	local   *Queue
}

// NewDurable registers the capture workflow with rt. Call it before rt.Launch.
func NewDurable(rt *dbosruntime.Runtime, local *Queue) *Durable {
	d := &Durable{runtime: rt, local: local}
	dbos.RegisterWorkflow(rt.Context(), d.captureWorkflow)
	return d
}

// Submit enqueues job durably
func (d *Durable) Submit(job pipeline.CaptureJob) error {
	_, err := d.Enqueue(context.Background(), job)
	return err
}

// Enqueue starts the capture workflow on the DBOS queue and returns its
// workflow id, which is the job id
func (d *Durable) Enqueue(ctx context.Context, job pipeline.CaptureJob) (string, error) {
	handle, err := dbos.RunWorkflow[pipeline.CaptureJob, string](
		d.runtime.Context(),
		d.captureWorkflow,
		job,
		dbos.WithWorkflowID(job.ID),
		dbos.WithQueue(d.runtime.QueueName()),
	)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue %s: %w", job.ID, err)
	}

	log.Printf("[%s] Enqueued durably on %s", job.ID, d.runtime.QueueName())
	return handle.GetWorkflowID(), nil
}

// Status reports the local queue
func (d *Durable) Status() Status {
	return d.local.Status()
}

// captureWorkflow is the DBOS workflow function
func (d *Durable) captureWorkflow(dbosCtx dbos.DBOSContext, job pipeline.CaptureJob) (string, error) {
	workflowID, err := dbosCtx.GetWorkflowID()
	if err != nil {
		return "", err
	}
	if workflowID != job.ID {
		log.Printf("[%s] Running under workflow %s", job.ID, workflowID)
	}

	// DBOSContext implements context.Context
	if err := d.local.SubmitWait(dbosCtx, job); err != nil {
		return "", err
	}
	return job.ID, nil
}
