package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// WorkerConfig contains worker configuration.
type WorkerConfig struct {
	NumWorkers  int
	QueueSize   int
	TaskTimeout time.Duration
}

// DefaultWorkerConfig returns default worker configuration.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		NumWorkers:  5,
		QueueSize:   1000,
		TaskTimeout: 2 * time.Minute,
	}
}

// Task is a unit of post-commit notification work.
type Task struct {
	Name       string
	IncidentID string
	Run        func(ctx context.Context) error
}

// TaskError reports a failed task on the worker's error channel.
type TaskError struct {
	Task       string
	IncidentID string
	Err        error
}

func (e TaskError) Error() string {
	return fmt.Sprintf("task %s for incident %s: %v", e.Task, e.IncidentID, e.Err)
}

// Worker runs notification tasks from a bounded in-process queue so that
// status changes commit without waiting on delivery.
type Worker struct {
	config WorkerConfig
	tasks  chan Task
	errs   chan TaskError

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
}

// NewWorker creates a new notification worker.
func NewWorker(config WorkerConfig) *Worker {
	defaults := DefaultWorkerConfig()
	if config.NumWorkers <= 0 {
		config.NumWorkers = defaults.NumWorkers
	}
	if config.QueueSize <= 0 {
		config.QueueSize = defaults.QueueSize
	}
	if config.TaskTimeout <= 0 {
		config.TaskTimeout = defaults.TaskTimeout
	}

	return &Worker{
		config: config,
		tasks:  make(chan Task, config.QueueSize),
		errs:   make(chan TaskError, config.QueueSize),
	}
}

// Start launches worker goroutines.
func (w *Worker) Start(ctx context.Context) {
	slog.Info("starting notification worker",
		"workers", w.config.NumWorkers,
		"queue_size", w.config.QueueSize,
	)

	for i := 0; i < w.config.NumWorkers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i)
	}
}

// Enqueue adds a task without blocking. It fails when the queue is full or stopped.
func (w *Worker) Enqueue(task Task) error {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.stopped {
		return ErrWorkerStopped
	}

	select {
	case w.tasks <- task:
		setQueueDepth(len(w.tasks))
		return nil
	default:
		recordTask("dropped")
		return ErrQueueFull
	}
}

// Errors returns the channel of failed tasks. It is closed by Stop.
func (w *Worker) Errors() <-chan TaskError {
	return w.errs
}

// Stop rejects new tasks, drains the queue and waits for workers to finish.
func (w *Worker) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	close(w.tasks)
	w.mu.Unlock()

	w.wg.Wait()
	close(w.errs)
	slog.Info("notification worker stopped")
}

func (w *Worker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()

	for task := range w.tasks {
		setQueueDepth(len(w.tasks))
		w.process(ctx, workerID, task)
	}
}

func (w *Worker) process(ctx context.Context, workerID int, task Task) {
	ctx, cancel := context.WithTimeout(ctx, w.config.TaskTimeout)
	defer cancel()

	start := time.Now()
	err := runTask(ctx, task)
	if err == nil {
		recordTask("success")
		slog.Debug("notification task done",
			"worker", workerID,
			"task", task.Name,
			"incident_id", task.IncidentID,
			"duration", time.Since(start),
		)
		return
	}

	recordTask("failed")
	w.report(TaskError{Task: task.Name, IncidentID: task.IncidentID, Err: err})
}

func (w *Worker) report(taskErr TaskError) {
	select {
	case w.errs <- taskErr:
	default:
		slog.Error("notification error channel full, dropping error", "error", taskErr)
	}
}

func runTask(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return task.Run(ctx)
}
