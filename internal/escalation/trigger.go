package escalation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// StepExecutor runs the due step of one incident.
type StepExecutor interface {
	Execute(ctx context.Context, incidentID string) (Outcome, error)
}

// Unsnoozer reopens an incident whose snooze has expired.
type Unsnoozer interface {
	Unsnooze(ctx context.Context, incidentID string) error
}

// TriggerConfig contains trigger configuration.
type TriggerConfig struct {
	Interval       time.Duration
	BatchSize      int
	MaxConcurrency int
	LeaseTTL       time.Duration
	AutoUnsnooze   bool
}

// DefaultTriggerConfig returns default trigger configuration.
func DefaultTriggerConfig() TriggerConfig {
	return TriggerConfig{
		Interval:       60 * time.Second,
		BatchSize:      100,
		MaxConcurrency: 10,
		LeaseTTL:       55 * time.Second,
		AutoUnsnooze:   true,
	}
}

// TickResult summarises one tick.
type TickResult struct {
	Skipped   bool
	Due       int
	Executed  int
	Conflicts int
	Failed    int
	Unsnoozed int
}

// Trigger periodically executes every due incident.
type Trigger struct {
	repo      Repository
	executor  StepExecutor
	unsnoozer Unsnoozer
	lease     Lease
	config    TriggerConfig
	now       func() time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewTrigger creates a new escalation trigger. unsnoozer and lease may be nil.
func NewTrigger(repo Repository, executor StepExecutor, unsnoozer Unsnoozer, lease Lease, config TriggerConfig) *Trigger {
	defaults := DefaultTriggerConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = defaults.MaxConcurrency
	}
	if config.LeaseTTL <= 0 {
		config.LeaseTTL = config.Interval - config.Interval/12
	}

	return &Trigger{
		repo:      repo,
		executor:  executor,
		unsnoozer: unsnoozer,
		lease:     lease,
		config:    config,
		now:       Now,
		stopCh:    make(chan struct{}),
	}
}

// Start runs ticks on the configured interval until Stop or ctx is done.
func (t *Trigger) Start(ctx context.Context) {
	slog.Info("starting escalation trigger",
		"interval", t.config.Interval,
		"batch_size", t.config.BatchSize,
		"max_concurrency", t.config.MaxConcurrency,
	)

	t.wg.Add(1)
	go t.loop(ctx)
}

// Stop stops the tick loop and waits for the running tick to finish.
func (t *Trigger) Stop() {
	select {
	case <-t.stopCh:
	default:
		close(t.stopCh)
	}
	t.wg.Wait()
	slog.Info("escalation trigger stopped")
}

func (t *Trigger) loop(ctx context.Context) {
	defer t.wg.Done()

	ticker := time.NewTicker(t.config.Interval)
	defer ticker.Stop()

	t.runTick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stopCh:
			return
		case <-ticker.C:
			t.runTick(ctx)
		}
	}
}

func (t *Trigger) runTick(ctx context.Context) {
	res, err := t.Tick(ctx)
	if err != nil {
		slog.Error("escalation tick failed", "error", err)
		return
	}
	if res.Due > 0 || res.Unsnoozed > 0 {
		slog.Info("escalation tick done",
			"due", res.Due,
			"executed", res.Executed,
			"conflicts", res.Conflicts,
			"failed", res.Failed,
			"unsnoozed", res.Unsnoozed,
		)
	}
}

// Tick executes every incident that is due now. It is safe to call
// concurrently with itself. Per-incident failures are counted, not returned;
// only a failed selection is an error.
func (t *Trigger) Tick(ctx context.Context) (TickResult, error) {
	start := time.Now()

	if t.lease != nil {
		acquired, err := t.lease.Acquire(ctx, t.config.LeaseTTL)
		if err != nil {
			slog.Warn("tick lease unavailable, running anyway", "error", err)
		} else if !acquired {
			slog.Debug("tick lease held elsewhere, skipping")
			return TickResult{Skipped: true}, nil
		}
	}

	var result TickResult
	now := t.now()

	if t.config.AutoUnsnooze && t.unsnoozer != nil {
		result.Unsnoozed = t.unsnoozeExpired(ctx, now)
	}

	ids, err := t.repo.ListDue(ctx, now, t.config.BatchSize)
	if err != nil {
		tickErrors.Inc()
		return result, fmt.Errorf("list due incidents: %w", err)
	}
	result.Due = len(ids)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(t.config.MaxConcurrency)

	for _, id := range ids {
		g.Go(func() error {
			status := t.executeOne(ctx, id)
			mu.Lock()
			defer mu.Unlock()
			switch status {
			case OutcomeExecuted, OutcomeConfigError:
				result.Executed++
			case OutcomeConflict, OutcomeNotDue:
				result.Conflicts++
			default:
				result.Failed++
			}
			return nil
		})
	}
	_ = g.Wait()

	recordTick(time.Since(start), result.Due)
	return result, nil
}

// executeOne isolates one incident: errors and panics are logged and reported as "".
func (t *Trigger) executeOne(ctx context.Context, incidentID string) (status OutcomeStatus) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("escalation step panicked", "incident_id", incidentID, "panic", r)
			recordStep("failed")
			status = ""
		}
	}()

	outcome, err := t.executor.Execute(ctx, incidentID)
	if err != nil {
		slog.Error("escalation step failed", "incident_id", incidentID, "error", err)
		recordStep("failed")
		return ""
	}
	return outcome.Status
}

func (t *Trigger) unsnoozeExpired(ctx context.Context, now time.Time) int {
	ids, err := t.repo.ListExpiredSnoozes(ctx, now, t.config.BatchSize)
	if err != nil {
		slog.Error("failed to list expired snoozes", "error", err)
		return 0
	}

	reopened := 0
	for _, id := range ids {
		if err := t.unsnoozer.Unsnooze(ctx, id); err != nil {
			slog.Error("failed to unsnooze incident", "incident_id", id, "error", err)
			continue
		}
		reopened++
	}
	return reopened
}
