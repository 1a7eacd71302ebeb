package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/nd3-capture-pipeline/pkg/pipeline"
)

func job(id string) pipeline.CaptureJob {
	return pipeline.CaptureJob{ID: id, ArchivePath: "/in/" + id + ".tar.gz", BaseName: id}
}

func TestQueue_SerialInSubmissionOrder(t *testing.T) {
	var (
		mu      sync.Mutex
		order   []string
		running int32
		maxSeen int32
	)
	q := New(context.Background(), func(ctx context.Context, j pipeline.CaptureJob) error {
		n := atomic.AddInt32(&running, 1)
		for {
			m := atomic.LoadInt32(&maxSeen)
			if n <= m || atomic.CompareAndSwapInt32(&maxSeen, m, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		order = append(order, j.ID)
		mu.Unlock()
		atomic.AddInt32(&running, -1)
		return nil
	})

	var want []string
	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("job-%d", i)
		want = append(want, id)
		require.NoError(t, q.Submit(job(id)))
	}
	q.Wait()

	assert.Equal(t, want, order)
	assert.Equal(t, int32(1), atomic.LoadInt32(&maxSeen))
	assert.Equal(t, 10, q.Status().Completed)
}

func TestQueue_FailuresDoNotBlock(t *testing.T) {
	var ran []string
	q := New(context.Background(), func(ctx context.Context, j pipeline.CaptureJob) error {
		ran = append(ran, j.ID)
		switch j.ID {
		case "bad":
			return errors.New("extraction failed")
		case "panic":
			panic("tool crashed")
		}
		return nil
	})

	require.NoError(t, q.Submit(job("bad")))
	require.NoError(t, q.Submit(job("panic")))
	require.NoError(t, q.Submit(job("good")))
	q.Wait()

	assert.Equal(t, []string{"bad", "panic", "good"}, ran)
	st := q.Status()
	assert.Equal(t, 3, st.Completed)
	assert.Equal(t, 2, st.Failed)
}

func TestQueue_SubmitWait(t *testing.T) {
	q := New(context.Background(), func(ctx context.Context, j pipeline.CaptureJob) error {
		if j.ID == "bad" {
			return errors.New("boom")
		}
		return nil
	})

	assert.NoError(t, q.SubmitWait(context.Background(), job("ok")))
	assert.EqualError(t, q.SubmitWait(context.Background(), job("bad")), "boom")
}

func TestQueue_SubmitWaitPanicBecomesError(t *testing.T) {
	q := New(context.Background(), func(ctx context.Context, j pipeline.CaptureJob) error {
		panic("boom")
	})

	err := q.SubmitWait(context.Background(), job("p"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")
}

func TestQueue_SubmitWaitContextDone(t *testing.T) {
	release := make(chan struct{})
	q := New(context.Background(), func(ctx context.Context, j pipeline.CaptureJob) error {
		<-release
		return nil
	})
	defer func() {
		close(release)
		q.Wait()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.SubmitWait(ctx, job("slow")), context.DeadlineExceeded)
}

func TestQueue_StatusAndObserve(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	q := New(context.Background(), func(ctx context.Context, j pipeline.CaptureJob) error {
		if j.ID == "first" {
			close(started)
			<-release
		}
		return nil
	})

	var depths []int
	var dmu sync.Mutex
	q.OnDepth(func(d int) { dmu.Lock(); depths = append(depths, d); dmu.Unlock() })

	require.NoError(t, q.Submit(job("first")))
	<-started
	require.NoError(t, q.Submit(job("second")))

	q.Observe("first", pipeline.StageOrchestrating)
	q.Observe("other", pipeline.StageDone)
	st := q.Status()
	assert.Equal(t, "first", st.Current)
	assert.Equal(t, pipeline.StageOrchestrating, st.Stage)
	assert.Equal(t, 1, st.Depth)

	close(release)
	q.Wait()

	st = q.Status()
	assert.Empty(t, st.Current)
	assert.Equal(t, 0, st.Depth)
	assert.Equal(t, 2, st.Completed)

	dmu.Lock()
	defer dmu.Unlock()
	assert.Equal(t, 0, depths[len(depths)-1])
}

func TestQueue_Close(t *testing.T) {
	q := New(context.Background(), func(ctx context.Context, j pipeline.CaptureJob) error { return nil })
	q.Close()

	assert.ErrorIs(t, q.Submit(job("late")), ErrClosed)
	assert.ErrorIs(t, q.SubmitWait(context.Background(), job("late")), ErrClosed)
	assert.True(t, q.Status().Closed)
	q.Wait()
}
