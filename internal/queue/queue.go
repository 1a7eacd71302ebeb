// Package queue runs capture jobs one at a time in submission order.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"sync"

	"github.com/tendant/nd3-capture-pipeline/pkg/pipeline"
)

// ErrClosed is returned when submitting to a closed queue
var ErrClosed = errors.New("queue closed")

// Handler processes one job. Its error is reported to SubmitWait callers
// and counted; it never stops the queue.
type Handler func(ctx context.Context, job pipeline.CaptureJob) error

// Status is a snapshot of the queue
type Status struct {
	Depth     int            `json:"depth"`
	Current   string         `json:"current,omitempty"`
	Stage     pipeline.Stage `json:"stage,omitempty"`
	Completed int            `json:"completed"`
	Failed    int            `json:"failed"`
	Closed    bool           `json:"closed"`
}

type entry struct {
	job  pipeline.CaptureJob
	done chan error
}

// Queue is an in-memory FIFO with at most one job running. Pending jobs
// are lost when the process exits.
type Queue struct {
	ctx     context.Context
	handler Handler

	mu        sync.Mutex
	idle      *sync.Cond
	backlog   []entry
	busy      bool
	current   string
	stage     pipeline.Stage
	completed int
	failed    int
	closed    bool

	onDepth func(int)
}

// New creates a queue whose jobs run with ctx
func New(ctx context.Context, handler Handler) *Queue {
	q := &Queue{ctx: ctx, handler: handler}
	q.idle = sync.NewCond(&q.mu)
	return q
}

// OnDepth registers a callback invoked with the backlog length whenever it changes
func (q *Queue) OnDepth(fn func(int)) { q.onDepth = fn }

// Submit appends job to the backlog and starts it if the queue is idle
func (q *Queue) Submit(job pipeline.CaptureJob) error {
	return q.enqueue(entry{job: job})
}

// SubmitWait submits job and blocks until it has run or ctx is done
func (q *Queue) SubmitWait(ctx context.Context, job pipeline.CaptureJob) error {
	done := make(chan error, 1)
	if err := q.enqueue(entry{job: job, done: done}); err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) enqueue(e entry) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.backlog = append(q.backlog, e)
	depth := len(q.backlog)
	q.mu.Unlock()

	log.Printf("[%s] Queued (%d pending)", e.job.ID, depth)
	q.reportDepth(depth)
	q.runNext()
	return nil
}

// runNext starts the head of the backlog unless a job is already running
func (q *Queue) runNext() {
	q.mu.Lock()
	if q.busy || len(q.backlog) == 0 {
		q.mu.Unlock()
		return
	}
	e := q.backlog[0]
	q.backlog = q.backlog[1:]
	q.busy = true
	q.current = e.job.ID
	q.stage = pipeline.StageQueued
	depth := len(q.backlog)
	q.mu.Unlock()

	q.reportDepth(depth)
	go q.run(e)
}

func (q *Queue) run(e entry) {
	err := q.execute(e.job)

	q.mu.Lock()
	q.busy = false
	q.current = ""
	q.stage = ""
	q.completed++
	if err != nil {
		q.failed++
	}
	q.idle.Broadcast()
	q.mu.Unlock()

	if e.done != nil {
		e.done <- err
	}
	q.runNext()
}

func (q *Queue) execute(job pipeline.CaptureJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[%s] Job panicked: %v\n%s", job.ID, r, debug.Stack())
			err = fmt.Errorf("job %s panicked: %v", job.ID, r)
		}
	}()
	return q.handler(q.ctx, job)
}

// Observe records the stage of the running job
func (q *Queue) Observe(jobID string, stage pipeline.Stage) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.current == jobID {
		q.stage = stage
	}
}

// Wait blocks until the backlog is empty and no job is running
func (q *Queue) Wait() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.busy || len(q.backlog) > 0 {
		q.idle.Wait()
	}
}

// Status returns a snapshot of the queue
func (q *Queue) Status() Status {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Status{
		Depth:     len(q.backlog),
		Current:   q.current,
		Stage:     q.stage,
		Completed: q.completed,
		Failed:    q.failed,
		Closed:    q.closed,
	}
}

// Close stops accepting jobs. Queued jobs still run; use Wait to drain.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}

func (q *Queue) reportDepth(depth int) {
	if q.onDepth != nil {
		q.onDepth(depth)
	}
}
