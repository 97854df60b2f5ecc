package notifications

import (
	"context"
	"log/slog"
	"time"

	"github.com/bissquit/incident-escalator/internal/domain"
	"github.com/google/uuid"
)

const defaultAdapterTimeout = 10 * time.Second

// DispatcherConfig contains dispatcher configuration.
type DispatcherConfig struct {
	AdapterTimeout time.Duration
	Breaker        BreakerConfig
}

// DispatchRequest asks for one user to be notified about one incident event.
type DispatchRequest struct {
	UserID   string
	Incident IncidentSnapshot
	Event    EventKind
	// Channels replaces the default priority order when non-empty.
	Channels  []domain.ChannelKind
	StepIndex *int
}

// DispatchResult reports whether any channel delivered and which were tried.
type DispatchResult struct {
	Success           bool                 `json:"success"`
	ChannelsAttempted []domain.ChannelKind `json:"channels_attempted"`
}

// Dispatcher walks a user's channels in order and stops at the first delivery.
type Dispatcher struct {
	users    UserReader
	gate     *Gate
	registry *Registry
	renderer *Renderer
	audit    AuditRepository
	breakers *breakers
	timeout  time.Duration
	now      func() time.Time
}

// NewDispatcher creates a new notification dispatcher.
func NewDispatcher(users UserReader, registry *Registry, renderer *Renderer, audit AuditRepository, config DispatcherConfig) *Dispatcher {
	if config.AdapterTimeout <= 0 {
		config.AdapterTimeout = defaultAdapterTimeout
	}
	return &Dispatcher{
		users:    users,
		gate:     NewGate(users, registry),
		registry: registry,
		renderer: renderer,
		audit:    audit,
		breakers: newBreakers(config.Breaker),
		timeout:  config.AdapterTimeout,
		now:      time.Now,
	}
}

// Gate returns the availability gate used by the dispatcher.
func (d *Dispatcher) Gate() *Gate {
	return d.gate
}

// Dispatch notifies one user. It never returns an error: failures are
// recorded per attempt and reported through the result.
func (d *Dispatcher) Dispatch(ctx context.Context, req DispatchRequest) DispatchResult {
	result := DispatchResult{ChannelsAttempted: []domain.ChannelKind{}}
	logger := slog.With("incident_id", req.Incident.ID, "user_id", req.UserID, "event", req.Event)

	user, err := d.users.GetUser(ctx, req.UserID)
	if err != nil {
		logger.Warn("cannot dispatch to unknown user", "error", err)
		recordDispatch(false)
		return result
	}

	channels := req.Channels
	override := len(channels) > 0
	if !override {
		channels = d.gate.ChannelsFor(user)
	}

	if len(channels) == 0 {
		logger.Warn("user has no available notification channels")
		recordDispatch(false)
		return result
	}

	payload := NewPayload(req.Event, req.Incident, req.StepIndex)

	for _, kind := range channels {
		if override {
			if reason := d.gate.Unavailable(user, kind); reason != "" {
				d.record(ctx, req, kind, domain.DeliveryOutcomeSkipped, reason)
				recordAttempt(string(kind), string(domain.DeliveryOutcomeSkipped))
				continue
			}
		}

		result.ChannelsAttempted = append(result.ChannelsAttempted, kind)

		res := d.attempt(ctx, user, kind, payload)
		if res.Success {
			d.record(ctx, req, kind, domain.DeliveryOutcomeSent, "")
			result.Success = true
			break
		}

		logger.Warn("notification channel failed", "channel", kind, "error", res.Error)
		d.record(ctx, req, kind, domain.DeliveryOutcomeFailed, res.Error)
	}

	if !result.Success {
		logger.Error("all notification channels failed", "attempted", result.ChannelsAttempted)
	}
	recordDispatch(result.Success)

	return result
}

func (d *Dispatcher) attempt(ctx context.Context, user *domain.User, kind domain.ChannelKind, payload NotificationPayload) Result {
	adapter, ok := d.registry.Adapter(kind)
	if !ok {
		recordAttempt(string(kind), string(domain.DeliveryOutcomeFailed))
		return Result{Error: "no adapter registered"}
	}

	subject, body, err := d.renderer.Render(kind, payload)
	if err != nil {
		recordAttempt(string(kind), string(domain.DeliveryOutcomeFailed))
		return Result{Error: "render: " + err.Error()}
	}

	msg := Message{
		To:       destination(user, kind),
		Subject:  subject,
		Body:     body,
		Event:    payload.Event,
		Incident: payload.Incident,
	}
	if kind == domain.ChannelKindPush {
		msg.DeviceTokens = user.PushDeviceTokens
	}

	start := time.Now()
	res := d.breakers.run(kind, func() Result {
		return sendBounded(ctx, adapter, msg, d.timeout)
	})
	recordSendDuration(string(kind), time.Since(start))

	if res.Success {
		recordAttempt(string(kind), string(domain.DeliveryOutcomeSent))
	} else {
		recordAttempt(string(kind), string(domain.DeliveryOutcomeFailed))
	}
	return res
}

func (d *Dispatcher) record(ctx context.Context, req DispatchRequest, kind domain.ChannelKind, outcome domain.DeliveryOutcome, reason string) {
	userID := req.UserID
	record := &domain.NotificationRecord{
		ID:         uuid.NewString(),
		IncidentID: req.Incident.ID,
		UserID:     &userID,
		Channel:    kind,
		Event:      string(req.Event),
		Outcome:    outcome,
		Error:      reason,
		StepIndex:  req.StepIndex,
		CreatedAt:  d.now(),
	}
	if err := d.audit.RecordNotification(ctx, record); err != nil {
		slog.Error("failed to record notification",
			"incident_id", req.Incident.ID,
			"user_id", req.UserID,
			"channel", kind,
			"error", err,
		)
	}
}
