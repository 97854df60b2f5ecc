package notifications

import (
	"context"
	"errors"
	"sync"

	"github.com/bissquit/incident-escalator/internal/domain"
)

var errUserNotFound = errors.New("user not found")

// mockAdapter implements Adapter for testing.
type mockAdapter struct {
	kind     domain.ChannelKind
	disabled bool
	result   Result
	send     func(ctx context.Context, msg Message) Result

	mu   sync.Mutex
	sent []Message
}

func newMockAdapter(kind domain.ChannelKind, result Result) *mockAdapter {
	return &mockAdapter{kind: kind, result: result}
}

func (m *mockAdapter) Kind() domain.ChannelKind { return m.kind }

func (m *mockAdapter) Enabled() bool { return !m.disabled }

func (m *mockAdapter) Send(ctx context.Context, msg Message) Result {
	m.mu.Lock()
	m.sent = append(m.sent, msg)
	m.mu.Unlock()
	if m.send != nil {
		return m.send(ctx, msg)
	}
	return m.result
}

func (m *mockAdapter) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// mockAudit implements AuditRepository for testing.
type mockAudit struct {
	mu      sync.Mutex
	records []domain.NotificationRecord
	err     error
}

func (m *mockAudit) RecordNotification(_ context.Context, record *domain.NotificationRecord) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, *record)
	return nil
}

func (m *mockAudit) ListNotifications(_ context.Context, filter domain.NotificationFilter) ([]domain.NotificationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.NotificationRecord
	for _, r := range m.records {
		if filter.IncidentID != "" && r.IncidentID != filter.IncidentID {
			continue
		}
		if filter.Channel != "" && r.Channel != filter.Channel {
			continue
		}
		out = append(out, r)
		if len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (m *mockAudit) outcomes() map[domain.ChannelKind]domain.DeliveryOutcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[domain.ChannelKind]domain.DeliveryOutcome, len(m.records))
	for _, r := range m.records {
		out[r.Channel] = r.Outcome
	}
	return out
}

// mockUsers implements UserReader for testing.
type mockUsers map[string]*domain.User

func (m mockUsers) GetUser(_ context.Context, id string) (*domain.User, error) {
	u, ok := m[id]
	if !ok {
		return nil, errUserNotFound
	}
	return u, nil
}

// mockServices implements ServiceRepository for testing.
type mockServices struct {
	services map[string]*domain.Service
	setErr   error
}

func newMockServices() *mockServices {
	return &mockServices{services: make(map[string]*domain.Service)}
}

func (m *mockServices) GetService(_ context.Context, id string) (*domain.Service, error) {
	s, ok := m.services[id]
	if !ok {
		return nil, ErrServiceNotFound
	}
	return s, nil
}

func (m *mockServices) SetServiceIntegrations(_ context.Context, serviceID string, integrations []domain.ServiceIntegration) error {
	if m.setErr != nil {
		return m.setErr
	}
	s, ok := m.services[serviceID]
	if !ok {
		return ErrServiceNotFound
	}
	s.Integrations = integrations
	return nil
}

func strPtr(s string) *string { return &s }

func fullyReachableUser(id string) *domain.User {
	return &domain.User{
		ID:               id,
		Name:             "Alice",
		Email:            id + "@example.com",
		PhoneNumber:      strPtr("+15550100"),
		Preferences:      domain.NotificationPreferences{Email: true, SMS: true, Push: true, WhatsApp: true},
		PushDeviceTokens: []string{"device-1"},
	}
}
