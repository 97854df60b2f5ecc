package incidents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bissquit/incident-escalator/internal/domain"
	"github.com/bissquit/incident-escalator/internal/escalation"
	"github.com/bissquit/incident-escalator/internal/notifications"
	"github.com/bissquit/incident-escalator/internal/pkg/ctxlog"
	"github.com/jackc/pgx/v5"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// Broadcaster pushes lifecycle events to a service's integrations.
type Broadcaster interface {
	Broadcast(ctx context.Context, serviceID string, event notifications.EventKind, incident notifications.IncidentSnapshot) notifications.BroadcastResult
}

// TaskQueue runs notification work after the status write commits.
type TaskQueue interface {
	Enqueue(task notifications.Task) error
}

// NotificationLister reads the delivery audit log.
type NotificationLister interface {
	ListNotifications(ctx context.Context, filter domain.NotificationFilter) ([]domain.NotificationRecord, error)
}

// Deps holds the collaborators of Service.
type Deps struct {
	Repo        Repository
	Services    escalation.ServiceReader
	Policies    escalation.PolicyReader
	Broadcaster Broadcaster
	Dispatcher  escalation.Dispatcher
	Executor    escalation.StepExecutor
	Tasks       TaskQueue
	Audit       NotificationLister
}

// Config contains incident service configuration.
type Config struct {
	// BaseURL is used to build incident links in notifications.
	BaseURL string
}

// Service implements incident business logic.
type Service struct {
	repo        Repository
	services    escalation.ServiceReader
	policies    escalation.PolicyReader
	broadcaster Broadcaster
	dispatcher  escalation.Dispatcher
	executor    escalation.StepExecutor
	tasks       TaskQueue
	audit       NotificationLister
	config      Config
	now         func() time.Time
}

// NewService creates a new incident service.
func NewService(deps Deps, config Config) *Service {
	return &Service{
		repo:        deps.Repo,
		services:    deps.Services,
		policies:    deps.Policies,
		broadcaster: deps.Broadcaster,
		dispatcher:  deps.Dispatcher,
		executor:    deps.Executor,
		tasks:       deps.Tasks,
		audit:       deps.Audit,
		config:      config,
		now:         escalation.Now,
	}
}

// CreateIncidentInput holds data for creating an incident.
type CreateIncidentInput struct {
	Title       string
	Description string
	ServiceID   string
	Urgency     domain.Urgency
	AssigneeID  *string
}

// UpdateIncidentInput holds a partial update. Nil fields are left unchanged.
// An empty AssigneeID unassigns the incident.
type UpdateIncidentInput struct {
	Status        *domain.IncidentStatus
	Urgency       *domain.Urgency
	AssigneeID    *string
	SnoozeMinutes *int
}

func (in UpdateIncidentInput) isEmpty() bool {
	return in.Status == nil && in.Urgency == nil && in.AssigneeID == nil && in.SnoozeMinutes == nil
}

// CreateIncident opens an incident and starts escalation under the service's policy.
func (s *Service) CreateIncident(ctx context.Context, input CreateIncidentInput) (*domain.Incident, error) {
	if input.Urgency == "" {
		input.Urgency = domain.UrgencyHigh
	}
	if !input.Urgency.IsValid() {
		return nil, fmt.Errorf("invalid urgency: %s", input.Urgency)
	}

	service, err := s.services.GetService(ctx, input.ServiceID)
	if err != nil {
		return nil, fmt.Errorf("get service: %w", err)
	}

	policy, err := s.livePolicy(ctx, service)
	if err != nil {
		return nil, err
	}

	now := s.now()
	incident := &domain.Incident{
		Title:       input.Title,
		Description: input.Description,
		ServiceID:   service.ID,
		Status:      domain.IncidentStatusOpen,
		Urgency:     input.Urgency,
		AssigneeID:  nonEmpty(input.AssigneeID),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	escalation.StartEscalation(incident, policy, now)

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer rollback(ctx, tx)

	if err := s.repo.CreateIncidentTx(ctx, tx, incident); err != nil {
		return nil, fmt.Errorf("create incident: %w", err)
	}

	entry := &domain.TimelineEntry{
		IncidentID: incident.ID,
		Kind:       domain.TimelineKindCreated,
		Message:    fmt.Sprintf("Incident created with %s urgency", incident.Urgency),
		CreatedAt:  now,
	}
	if err := s.repo.AppendTimelineTx(ctx, tx, entry); err != nil {
		return nil, fmt.Errorf("append timeline: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	ctxlog.FromContext(ctx).Info("incident created",
		"incident_id", incident.ID,
		"service_id", incident.ServiceID,
		"escalation_status", incident.EscalationStatus,
	)

	snapshot := notifications.NewSnapshot(incident, service.Name, s.config.BaseURL)
	s.enqueueBroadcast(incident.ServiceID, notifications.EventTriggered, snapshot)
	if incident.AssigneeID != nil {
		s.enqueueAssigned(*incident.AssigneeID, snapshot)
	}
	if incident.IsDue(now) {
		s.enqueueExecute(incident.ID)
	}

	return incident, nil
}

// GetIncident retrieves an incident by ID.
func (s *Service) GetIncident(ctx context.Context, id string) (*domain.Incident, error) {
	return s.repo.GetIncident(ctx, id)
}

// ListIncidents retrieves incidents with optional filters.
func (s *Service) ListIncidents(ctx context.Context, filters IncidentFilters) ([]*domain.Incident, error) {
	if filters.Status != nil && !filters.Status.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, *filters.Status)
	}
	if filters.Limit <= 0 {
		filters.Limit = defaultListLimit
	}
	if filters.Limit > maxListLimit {
		filters.Limit = maxListLimit
	}
	return s.repo.ListIncidents(ctx, filters)
}

// UpdateIncident applies a status, urgency, assignee or snooze change. The
// escalation transition is written in the same transaction as the status,
// under a row lock, so a concurrent step advance either commits first or
// loses its conditional write.
func (s *Service) UpdateIncident(ctx context.Context, id string, input UpdateIncidentInput) (*domain.Incident, error) {
	if input.isEmpty() {
		return nil, ErrEmptyUpdate
	}
	if input.SnoozeMinutes != nil && (input.Status == nil || *input.Status != domain.IncidentStatusSnoozed) {
		return nil, ErrInvalidSnooze
	}
	if input.Urgency != nil && !input.Urgency.IsValid() {
		return nil, fmt.Errorf("invalid urgency: %s", *input.Urgency)
	}

	return s.update(ctx, id, input, nil)
}

// Unsnooze reopens an incident whose snooze has expired. It does nothing
// if the incident was changed since it was selected.
func (s *Service) Unsnooze(ctx context.Context, id string) error {
	open := domain.IncidentStatusOpen
	expired := func(incident *domain.Incident, now time.Time) bool {
		return incident.Status == domain.IncidentStatusSnoozed &&
			incident.SnoozedUntil != nil &&
			!incident.SnoozedUntil.After(now)
	}

	_, err := s.update(ctx, id, UpdateIncidentInput{Status: &open}, expired)
	return err
}

// Timeline returns the incident's history, oldest first.
func (s *Service) Timeline(ctx context.Context, id string) ([]domain.TimelineEntry, error) {
	if _, err := s.repo.GetIncident(ctx, id); err != nil {
		return nil, err
	}
	entries, err := s.repo.ListTimeline(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list timeline: %w", err)
	}
	return entries, nil
}

// Notifications returns delivery attempts made for the incident, newest first.
// A non-positive limit means the default page size.
func (s *Service) Notifications(ctx context.Context, id string, limit int) ([]domain.NotificationRecord, error) {
	if _, err := s.repo.GetIncident(ctx, id); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return s.audit.ListNotifications(ctx, domain.NotificationFilter{IncidentID: id, Limit: limit})
}

// update is shared by UpdateIncident and Unsnooze. guard, when set, is
// evaluated on the locked row and turns the update into a no-op if false.
func (s *Service) update(ctx context.Context, id string, input UpdateIncidentInput, guard func(*domain.Incident, time.Time) bool) (*domain.Incident, error) {
	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer rollback(ctx, tx)

	incident, err := s.repo.GetIncidentForUpdateTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if guard != nil && !guard(incident, now) {
		return incident, nil
	}

	service, err := s.services.GetService(ctx, incident.ServiceID)
	if err != nil {
		return nil, fmt.Errorf("get service: %w", err)
	}

	var (
		entries []*domain.TimelineEntry
		change  escalation.Change
		event   notifications.EventKind
	)
	addEntry := func(kind domain.TimelineKind, format string, args ...any) {
		entries = append(entries, &domain.TimelineEntry{
			IncidentID: incident.ID,
			Kind:       kind,
			Message:    fmt.Sprintf(format, args...),
			CreatedAt:  now,
		})
	}

	if input.Status != nil {
		policy, err := s.livePolicy(ctx, service)
		if err != nil {
			return nil, err
		}
		change, err = escalation.ApplyStatusChange(incident, *input.Status, policy, now)
		if err != nil {
			return nil, err
		}
		if change.StatusChanged() {
			event = notifications.EventForStatus(change.To)
			addEntry(domain.TimelineKindStatusChanged, "Status changed from %s to %s", change.From, change.To)
		}
		if input.SnoozeMinutes != nil {
			until := now.Add(time.Duration(*input.SnoozeMinutes) * time.Minute)
			incident.SnoozedUntil = &until
			addEntry(domain.TimelineKindStatusChanged, "Snoozed until %s", until.Format(time.RFC3339))
		}
	}

	if input.Urgency != nil && *input.Urgency != incident.Urgency {
		addEntry(domain.TimelineKindUrgency, "Urgency changed from %s to %s", incident.Urgency, *input.Urgency)
		incident.Urgency = *input.Urgency
		if event == "" {
			event = notifications.EventUpdated
		}
	}

	var newAssignee *string
	if input.AssigneeID != nil && !sameAssignee(incident.AssigneeID, nonEmpty(input.AssigneeID)) {
		incident.AssigneeID = nonEmpty(input.AssigneeID)
		if incident.AssigneeID != nil {
			newAssignee = incident.AssigneeID
			addEntry(domain.TimelineKindReassigned, "Assigned to %s", *incident.AssigneeID)
		} else {
			addEntry(domain.TimelineKindReassigned, "Unassigned")
		}
		if event == "" {
			event = notifications.EventUpdated
		}
	}

	if len(entries) == 0 {
		return incident, nil
	}

	incident.UpdatedAt = now
	if err := s.repo.UpdateIncidentTx(ctx, tx, incident); err != nil {
		return nil, fmt.Errorf("update incident: %w", err)
	}
	for _, entry := range entries {
		if err := s.repo.AppendTimelineTx(ctx, tx, entry); err != nil {
			return nil, fmt.Errorf("append timeline: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	ctxlog.FromContext(ctx).Info("incident updated",
		"incident_id", incident.ID,
		"status", incident.Status,
		"escalation_status", incident.EscalationStatus,
		"step", incident.CurrentEscalationStep,
	)

	snapshot := notifications.NewSnapshot(incident, service.Name, s.config.BaseURL)
	if event != "" {
		s.enqueueBroadcast(incident.ServiceID, event, snapshot)
	}
	if newAssignee != nil {
		s.enqueueAssigned(*newAssignee, snapshot)
	}
	if change.Reopened() && incident.IsDue(now) {
		s.enqueueExecute(incident.ID)
	}

	return incident, nil
}

// livePolicy loads the policy the service references now. A dangling
// reference is treated as no policy.
func (s *Service) livePolicy(ctx context.Context, service *domain.Service) (*domain.EscalationPolicy, error) {
	if service.PolicyID == nil {
		return nil, nil
	}
	policy, err := s.policies.GetPolicy(ctx, *service.PolicyID)
	if errors.Is(err, escalation.ErrPolicyNotFound) {
		ctxlog.FromContext(ctx).Warn("service references a missing escalation policy",
			"config_error", true,
			"service_id", service.ID,
			"policy_id", *service.PolicyID,
		)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get policy: %w", err)
	}
	return policy, nil
}

func (s *Service) enqueueBroadcast(serviceID string, event notifications.EventKind, snapshot notifications.IncidentSnapshot) {
	s.enqueue(notifications.Task{
		Name:       "broadcast_" + string(event),
		IncidentID: snapshot.ID,
		Run: func(ctx context.Context) error {
			res := s.broadcaster.Broadcast(ctx, serviceID, event, snapshot)
			if res.Failed > 0 && res.Delivered == 0 {
				return fmt.Errorf("broadcast %s: %d integrations failed", event, res.Failed)
			}
			return nil
		},
	})
}

func (s *Service) enqueueAssigned(userID string, snapshot notifications.IncidentSnapshot) {
	s.enqueue(notifications.Task{
		Name:       "notify_assignee",
		IncidentID: snapshot.ID,
		Run: func(ctx context.Context) error {
			res := s.dispatcher.Dispatch(ctx, notifications.DispatchRequest{
				UserID:   userID,
				Incident: snapshot,
				Event:    notifications.EventAssigned,
			})
			if !res.Success {
				return fmt.Errorf("notify assignee %s: no channel delivered", userID)
			}
			return nil
		},
	})
}

// enqueueExecute runs a step that is already due without waiting for the next tick.
func (s *Service) enqueueExecute(incidentID string) {
	s.enqueue(notifications.Task{
		Name:       "execute_step",
		IncidentID: incidentID,
		Run: func(ctx context.Context) error {
			_, err := s.executor.Execute(ctx, incidentID)
			return err
		},
	})
}

func (s *Service) enqueue(task notifications.Task) {
	if err := s.tasks.Enqueue(task); err != nil {
		slog.Warn("failed to enqueue notification task",
			"task", task.Name,
			"incident_id", task.IncidentID,
			"error", err,
		)
	}
}

func rollback(ctx context.Context, tx pgx.Tx) {
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		slog.Error("failed to rollback transaction", "error", err)
	}
}

func nonEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	v := *s
	return &v
}

func sameAssignee(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
