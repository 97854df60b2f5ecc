package escalation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bissquit/incident-escalator/internal/domain"
	"github.com/bissquit/incident-escalator/internal/notifications"
	"github.com/bissquit/incident-escalator/internal/pkg/ctxlog"
	"golang.org/x/sync/errgroup"
)

const defaultMaxFanout = 10

// OutcomeStatus classifies one Execute call.
type OutcomeStatus string

// Execution outcomes.
const (
	OutcomeExecuted    OutcomeStatus = "executed"
	OutcomeConfigError OutcomeStatus = "config_error"
	OutcomeNotDue      OutcomeStatus = "not_due"
	OutcomeConflict    OutcomeStatus = "conflict"
)

// Outcome reports what Execute did.
type Outcome struct {
	Status     OutcomeStatus
	Step       int
	Recipients []string
	Delivered  int
	Next       domain.EscalationState
}

// TargetResolver resolves a step target to user ids.
type TargetResolver interface {
	ResolveTargets(ctx context.Context, targetType domain.TargetType, targetID string, at time.Time, teamLeadOnly bool) []string
}

// Dispatcher notifies one user.
type Dispatcher interface {
	Dispatch(ctx context.Context, req notifications.DispatchRequest) notifications.DispatchResult
}

// ExecutorConfig contains executor configuration.
type ExecutorConfig struct {
	// BaseURL is used to build incident links in notifications.
	BaseURL string
	// MaxFanout bounds concurrent dispatches within one step.
	MaxFanout int
}

// Executor runs the current escalation step of one incident.
type Executor struct {
	repo       Repository
	services   ServiceReader
	policies   PolicyReader
	resolver   TargetResolver
	dispatcher Dispatcher
	config     ExecutorConfig
	now        func() time.Time
}

// NewExecutor creates a new escalation executor.
func NewExecutor(repo Repository, services ServiceReader, policies PolicyReader, resolver TargetResolver, dispatcher Dispatcher, config ExecutorConfig) *Executor {
	if config.MaxFanout <= 0 {
		config.MaxFanout = defaultMaxFanout
	}
	return &Executor{
		repo:       repo,
		services:   services,
		policies:   policies,
		resolver:   resolver,
		dispatcher: dispatcher,
		config:     config,
		now:        Now,
	}
}

// Now returns the current time at the precision the store keeps.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// Execute runs the due step of an incident. The step advance is claimed with
// a conditional write before anyone is notified, so concurrent callers for
// the same due time notify at most once. Losing the claim is not an error.
func (e *Executor) Execute(ctx context.Context, incidentID string) (Outcome, error) {
	incident, err := e.repo.GetIncident(ctx, incidentID)
	if err != nil {
		return Outcome{}, fmt.Errorf("get incident: %w", err)
	}

	now := e.now()
	current := incident.Escalation()
	if !incident.IsDue(now) {
		return Outcome{Status: OutcomeNotDue, Step: current.Step, Next: current}, nil
	}

	ctx, logger := ctxlog.With(ctx, "incident_id", incident.ID, "step", current.Step)

	service, err := e.services.GetService(ctx, incident.ServiceID)
	if err != nil {
		return Outcome{}, fmt.Errorf("get service: %w", err)
	}

	policy, err := e.loadPolicy(ctx, service)
	if err != nil {
		return Outcome{}, err
	}

	step, ok := policy.Step(current.Step)
	if !ok {
		logger.Warn("escalation step is missing from policy, completing escalation",
			"config_error", true,
			"service_id", service.ID,
		)
		next := domain.EscalationState{Status: domain.EscalationStatusCompleted, Step: current.Step}
		return e.claimOnly(ctx, incident, current, next, logger)
	}

	next := nextState(policy, current.Step, now)
	won, err := e.repo.AdvanceEscalation(ctx, incident.ID, current, next)
	if err != nil {
		return Outcome{}, fmt.Errorf("advance escalation: %w", err)
	}
	if !won {
		logger.Debug("escalation step already claimed")
		recordStep(OutcomeConflict)
		return Outcome{Status: OutcomeConflict, Step: current.Step, Next: current}, nil
	}

	recipients := e.resolver.ResolveTargets(ctx, step.TargetType, step.TargetID, now, step.NotifyOnlyTeamLead)
	if len(recipients) == 0 {
		logger.Warn("escalation step resolved no recipients",
			"config_error", true,
			"target_type", step.TargetType,
			"target_id", step.TargetID,
		)
	}

	snapshot := notifications.NewSnapshot(incident, service.Name, e.config.BaseURL)
	delivered := e.dispatchAll(ctx, snapshot, step, current.Step, recipients)

	e.appendTimeline(ctx, incident.ID, stepMessage(current.Step, step, len(recipients), delivered, next), now)

	logger.Info("escalation step executed",
		"recipients", len(recipients),
		"delivered", delivered,
		"next_status", next.Status,
	)
	recordStep(OutcomeExecuted)

	return Outcome{
		Status:     OutcomeExecuted,
		Step:       current.Step,
		Recipients: recipients,
		Delivered:  delivered,
		Next:       next,
	}, nil
}

func (e *Executor) loadPolicy(ctx context.Context, service *domain.Service) (*domain.EscalationPolicy, error) {
	if service.PolicyID == nil {
		return nil, nil
	}
	policy, err := e.policies.GetPolicy(ctx, *service.PolicyID)
	if errors.Is(err, ErrPolicyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get policy: %w", err)
	}
	return policy, nil
}

// claimOnly advances without notifying anyone.
func (e *Executor) claimOnly(ctx context.Context, incident *domain.Incident, current, next domain.EscalationState, logger *slog.Logger) (Outcome, error) {
	won, err := e.repo.AdvanceEscalation(ctx, incident.ID, current, next)
	if err != nil {
		return Outcome{}, fmt.Errorf("advance escalation: %w", err)
	}
	if !won {
		recordStep(OutcomeConflict)
		return Outcome{Status: OutcomeConflict, Step: current.Step, Next: current}, nil
	}

	e.appendTimeline(ctx, incident.ID, "Escalation completed: no escalation step configured", e.now())
	logger.Info("escalation completed without notifying")
	recordStep(OutcomeConfigError)
	return Outcome{Status: OutcomeConfigError, Step: current.Step, Recipients: []string{}, Next: next}, nil
}

// dispatchAll notifies recipients concurrently. Failures stay per-recipient.
func (e *Executor) dispatchAll(ctx context.Context, snapshot notifications.IncidentSnapshot, step domain.EscalationStep, index int, recipients []string) int {
	event := notifications.EventTriggered
	if index > 0 {
		event = notifications.EventEscalated
	}

	var (
		mu        sync.Mutex
		delivered int
		g         errgroup.Group
	)
	g.SetLimit(e.config.MaxFanout)

	for _, userID := range recipients {
		g.Go(func() error {
			stepIndex := index
			res := e.dispatcher.Dispatch(ctx, notifications.DispatchRequest{
				UserID:    userID,
				Incident:  snapshot,
				Event:     event,
				Channels:  step.NotificationChannels,
				StepIndex: &stepIndex,
			})
			if res.Success {
				mu.Lock()
				delivered++
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return delivered
}

func (e *Executor) appendTimeline(ctx context.Context, incidentID, message string, at time.Time) {
	entry := &domain.TimelineEntry{
		IncidentID: incidentID,
		Kind:       domain.TimelineKindEscalated,
		Message:    message,
		CreatedAt:  at,
	}
	if err := e.repo.AppendTimeline(ctx, entry); err != nil {
		ctxlog.FromContext(ctx).Error("failed to append timeline entry", "error", err)
	}
}

func stepMessage(index int, step domain.EscalationStep, recipients, delivered int, next domain.EscalationState) string {
	msg := fmt.Sprintf("Escalated to %s %s (level %d): %d of %d recipients notified",
		step.TargetType, step.TargetID, index+1, delivered, recipients)
	if next.NextAt != nil {
		msg += fmt.Sprintf("; level %d due at %s", next.Step+1, next.NextAt.Format(time.RFC3339))
	}
	return msg
}
