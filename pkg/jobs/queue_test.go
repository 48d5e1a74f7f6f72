package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueProcessesJobs(t *testing.T) {
	var handled int32
	done := make(chan struct{}, 3)
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		atomic.AddInt32(&handled, 1)
		done <- struct{}{}
		return nil
	}, QueueConfig{Workers: 2})
	q.Start(context.Background())
	defer q.Stop()

	for i := 0; i < 3; i++ {
		require.NoError(t, q.TryEnqueue(Job{ID: "job", Kind: "notify"}))
	}
	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("job not processed")
		}
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&handled))
}

func TestQueueRejectsWhenNotRunning(t *testing.T) {
	q := NewQueue("idle", func(context.Context, Job) error { return nil }, QueueConfig{})
	err := q.TryEnqueue(Job{ID: "x"})
	require.ErrorIs(t, err, ErrQueueStopped)

	q.Start(context.Background())
	q.Stop()
	require.ErrorIs(t, q.TryEnqueue(Job{ID: "y"}), ErrQueueStopped)
}

func TestQueueTryEnqueueDoesNotBlockWhenFull(t *testing.T) {
	release := make(chan struct{})
	q := NewQueue("full", func(ctx context.Context, job Job) error {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 1, DrainTimeout: 10 * time.Millisecond})
	q.Start(context.Background())
	defer func() {
		close(release)
		q.Stop()
	}()

	var full bool
	for i := 0; i < 5; i++ {
		if err := q.TryEnqueue(Job{ID: "j"}); errors.Is(err, ErrQueueFull) {
			full = true
			break
		}
	}
	assert.True(t, full)
}

func TestQueueReportsExhaustedRetries(t *testing.T) {
	var mu sync.Mutex
	var failed []Job
	failedCh := make(chan struct{}, 1)
	q := NewQueue("retry", func(context.Context, Job) error {
		return errors.New("store unavailable")
	}, QueueConfig{
		Workers:    1,
		MaxRetries: 1,
		RetryDelay: 5 * time.Millisecond,
		OnFailure: func(j Job, err error) {
			mu.Lock()
			failed = append(failed, j)
			mu.Unlock()
			failedCh <- struct{}{}
		},
	})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.TryEnqueue(Job{ID: "n-1", Kind: "notify"}))
	select {
	case <-failedCh:
	case <-time.After(2 * time.Second):
		t.Fatal("failure callback not invoked")
	}
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, failed, 1)
	assert.Equal(t, 2, failed[0].Attempt)
}

func TestQueueStopKeepsJobFailingDuringShutdown(t *testing.T) {
	var retried, reported int32
	started := make(chan struct{})
	q := NewQueue("shutdown", func(ctx context.Context, job Job) error {
		if job.Attempt > 0 {
			atomic.AddInt32(&retried, 1)
			return nil
		}
		close(started)
		<-ctx.Done()
		return errors.New("write cancelled")
	}, QueueConfig{
		Workers:    1,
		MaxRetries: 3,
		RetryDelay: time.Hour,
		OnFailure: func(Job, error) {
			atomic.AddInt32(&reported, 1)
		},
	})
	q.Start(context.Background())
	require.NoError(t, q.TryEnqueue(Job{ID: "n-1", Kind: "notify"}))

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("handler not started")
	}
	q.Stop()

	assert.Equal(t, int32(1), atomic.LoadInt32(&retried)+atomic.LoadInt32(&reported))
}
