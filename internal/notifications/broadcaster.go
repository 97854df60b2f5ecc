package notifications

import (
	"context"
	"log/slog"
	"time"

	"github.com/bissquit/incident-escalator/internal/domain"
	"github.com/google/uuid"
)

// BroadcastResult counts deliveries to service integrations.
type BroadcastResult struct {
	Delivered int
	Failed    int
	Skipped   int
}

// Broadcaster pushes incident lifecycle events to a service's own integrations,
// independent of who is being escalated to.
type Broadcaster struct {
	services ServiceRepository
	registry *Registry
	renderer *Renderer
	audit    AuditRepository
	breakers *breakers
	timeout  time.Duration
	now      func() time.Time
}

// NewBroadcaster creates a new service broadcaster.
func NewBroadcaster(services ServiceRepository, registry *Registry, renderer *Renderer, audit AuditRepository, config DispatcherConfig) *Broadcaster {
	if config.AdapterTimeout <= 0 {
		config.AdapterTimeout = defaultAdapterTimeout
	}
	return &Broadcaster{
		services: services,
		registry: registry,
		renderer: renderer,
		audit:    audit,
		breakers: newBreakers(config.Breaker),
		timeout:  config.AdapterTimeout,
		now:      time.Now,
	}
}

// Broadcast fans the event out to every enabled integration on the service.
// Failures are logged and recorded, never returned.
func (b *Broadcaster) Broadcast(ctx context.Context, serviceID string, event EventKind, incident IncidentSnapshot) BroadcastResult {
	var result BroadcastResult
	logger := slog.With("incident_id", incident.ID, "service_id", serviceID, "event", event)

	service, err := b.services.GetService(ctx, serviceID)
	if err != nil {
		logger.Error("failed to load service for broadcast", "error", err)
		return result
	}

	if incident.ServiceName == "" {
		incident.ServiceName = service.Name
	}
	payload := NewPayload(event, incident, nil)

	for _, integration := range service.Integrations {
		if !integration.Enabled {
			continue
		}

		kind := integration.Kind
		adapter, ok := b.registry.Adapter(kind)
		if !ok || !adapter.Enabled() {
			logger.Warn("integration provider not available", "channel", kind)
			b.record(ctx, serviceID, incident.ID, kind, event, domain.DeliveryOutcomeSkipped, "provider is not configured")
			recordAttempt(string(kind), string(domain.DeliveryOutcomeSkipped))
			result.Skipped++
			continue
		}

		subject, body, err := b.renderer.Render(kind, payload)
		if err != nil {
			logger.Error("failed to render broadcast", "channel", kind, "error", err)
			b.record(ctx, serviceID, incident.ID, kind, event, domain.DeliveryOutcomeFailed, "render: "+err.Error())
			recordAttempt(string(kind), string(domain.DeliveryOutcomeFailed))
			result.Failed++
			continue
		}

		msg := Message{
			To:       integration.Destination(),
			Subject:  subject,
			Body:     body,
			Event:    event,
			Incident: incident,
		}
		if integration.Webhook != nil {
			msg.SigningSecret = integration.Webhook.Secret
		}

		start := time.Now()
		res := b.breakers.run(kind, func() Result {
			return sendBounded(ctx, adapter, msg, b.timeout)
		})
		recordSendDuration(string(kind), time.Since(start))

		if res.Success {
			b.record(ctx, serviceID, incident.ID, kind, event, domain.DeliveryOutcomeSent, "")
			recordAttempt(string(kind), string(domain.DeliveryOutcomeSent))
			result.Delivered++
			continue
		}

		logger.Warn("service integration failed", "channel", kind, "error", res.Error)
		b.record(ctx, serviceID, incident.ID, kind, event, domain.DeliveryOutcomeFailed, res.Error)
		recordAttempt(string(kind), string(domain.DeliveryOutcomeFailed))
		result.Failed++
	}

	return result
}

func (b *Broadcaster) record(ctx context.Context, serviceID, incidentID string, kind domain.ChannelKind, event EventKind, outcome domain.DeliveryOutcome, reason string) {
	record := &domain.NotificationRecord{
		ID:         uuid.NewString(),
		IncidentID: incidentID,
		ServiceID:  &serviceID,
		Channel:    kind,
		Event:      string(event),
		Outcome:    outcome,
		Error:      reason,
		CreatedAt:  b.now(),
	}
	if err := b.audit.RecordNotification(ctx, record); err != nil {
		slog.Error("failed to record broadcast", "incident_id", incidentID, "channel", kind, "error", err)
	}
}
