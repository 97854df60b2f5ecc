package notifications

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestDefaultWorkerConfig(t *testing.T) {
	config := DefaultWorkerConfig()

	assert.Equal(t, 5, config.NumWorkers)
	assert.Equal(t, 1000, config.QueueSize)
	assert.Equal(t, 2*time.Minute, config.TaskTimeout)
}

func TestWorker_RunsTasks(t *testing.T) {
	w := NewWorker(WorkerConfig{NumWorkers: 2, QueueSize: 10})
	w.Start(context.Background())

	var done atomic.Int32
	for i := 0; i < 5; i++ {
		err := w.Enqueue(Task{Name: "notify", IncidentID: "inc-1", Run: func(_ context.Context) error {
			done.Add(1)
			return nil
		}})
		require.NoError(t, err)
	}

	w.Stop()

	assert.Equal(t, int32(5), done.Load())
	_, open := <-w.Errors()
	assert.False(t, open)
}

func TestWorker_ReportsErrors(t *testing.T) {
	w := NewWorker(WorkerConfig{NumWorkers: 1, QueueSize: 10})
	w.Start(context.Background())

	require.NoError(t, w.Enqueue(Task{Name: "broadcast", IncidentID: "inc-1", Run: func(_ context.Context) error {
		return errors.New("service not found")
	}}))
	require.NoError(t, w.Enqueue(Task{Name: "escalate", IncidentID: "inc-2", Run: func(_ context.Context) error {
		panic("boom")
	}}))

	w.Stop()

	var got []TaskError
	for taskErr := range w.Errors() {
		got = append(got, taskErr)
	}
	require.Len(t, got, 2)
	assert.Equal(t, "broadcast", got[0].Task)
	assert.EqualError(t, got[0], "task broadcast for incident inc-1: service not found")
	assert.Equal(t, "inc-2", got[1].IncidentID)
	assert.Contains(t, got[1].Err.Error(), "panic: boom")
}

func TestWorker_QueueFull(t *testing.T) {
	w := NewWorker(WorkerConfig{NumWorkers: 1, QueueSize: 1})
	noop := Task{Name: "noop", Run: func(_ context.Context) error { return nil }}

	// Not started, so the queue does not drain.
	require.NoError(t, w.Enqueue(noop))
	assert.ErrorIs(t, w.Enqueue(noop), ErrQueueFull)

	w.Start(context.Background())
	w.Stop()
}

func TestWorker_EnqueueAfterStop(t *testing.T) {
	w := NewWorker(WorkerConfig{NumWorkers: 1, QueueSize: 1})
	w.Start(context.Background())
	w.Stop()
	w.Stop()

	err := w.Enqueue(Task{Name: "late", Run: func(_ context.Context) error { return nil }})
	assert.ErrorIs(t, err, ErrWorkerStopped)
}

func TestWorker_TaskTimeout(t *testing.T) {
	w := NewWorker(WorkerConfig{NumWorkers: 1, QueueSize: 1, TaskTimeout: 10 * time.Millisecond})
	w.Start(context.Background())

	require.NoError(t, w.Enqueue(Task{Name: "slow", Run: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}))
	w.Stop()

	taskErr, ok := <-w.Errors()
	require.True(t, ok)
	assert.ErrorIs(t, taskErr.Err, context.DeadlineExceeded)
}
