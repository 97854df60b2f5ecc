package escalation

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/bissquit/incident-escalator/internal/domain"
	"github.com/bissquit/incident-escalator/internal/notifications"
)

type mockRepo struct {
	mu        sync.Mutex
	incidents map[string]*domain.Incident
	timeline  []domain.TimelineEntry
	snoozed   []string
	listErr   error
	advances  int
}

func newMockRepo(incidents ...*domain.Incident) *mockRepo {
	m := &mockRepo{incidents: make(map[string]*domain.Incident)}
	for _, inc := range incidents {
		m.incidents[inc.ID] = inc
	}
	return m
}

func (m *mockRepo) GetIncident(_ context.Context, id string) (*domain.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inc, ok := m.incidents[id]
	if !ok {
		return nil, ErrIncidentNotFound
	}
	cp := *inc
	return &cp, nil
}

func (m *mockRepo) ListDue(_ context.Context, now time.Time, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var ids []string
	for id, inc := range m.incidents {
		if inc.IsDue(now) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (m *mockRepo) ListExpiredSnoozes(_ context.Context, _ time.Time, _ int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.snoozed...), nil
}

func (m *mockRepo) AdvanceEscalation(_ context.Context, id string, expected, next domain.EscalationState) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inc, ok := m.incidents[id]
	if !ok {
		return false, ErrIncidentNotFound
	}
	if inc.Status != domain.IncidentStatusOpen || !inc.Escalation().Equal(expected) {
		return false, nil
	}
	inc.SetEscalation(next)
	m.advances++
	return true, nil
}

func (m *mockRepo) AppendTimeline(_ context.Context, entry *domain.TimelineEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeline = append(m.timeline, *entry)
	return nil
}

func (m *mockRepo) state(id string) domain.EscalationState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.incidents[id].Escalation()
}

type mockServices map[string]*domain.Service

func (m mockServices) GetService(_ context.Context, id string) (*domain.Service, error) {
	svc, ok := m[id]
	if !ok {
		return nil, errors.New("service not found")
	}
	return svc, nil
}

type mockPolicies map[string]*domain.EscalationPolicy

func (m mockPolicies) GetPolicy(_ context.Context, id string) (*domain.EscalationPolicy, error) {
	p, ok := m[id]
	if !ok {
		return nil, ErrPolicyNotFound
	}
	return p, nil
}

// mockResolver maps "type:id" to recipients.
type mockResolver map[string][]string

func (m mockResolver) ResolveTargets(_ context.Context, targetType domain.TargetType, targetID string, _ time.Time, teamLeadOnly bool) []string {
	key := string(targetType) + ":" + targetID
	if teamLeadOnly {
		key += ":lead"
	}
	return m[key]
}

type mockDispatcher struct {
	mu       sync.Mutex
	requests []notifications.DispatchRequest
	failFor  map[string]bool
	delay    time.Duration
}

func newMockDispatcher() *mockDispatcher {
	return &mockDispatcher{failFor: make(map[string]bool)}
}

func (m *mockDispatcher) Dispatch(_ context.Context, req notifications.DispatchRequest) notifications.DispatchResult {
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	return notifications.DispatchResult{Success: !m.failFor[req.UserID]}
}

func (m *mockDispatcher) users() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.requests))
	for _, r := range m.requests {
		ids = append(ids, r.UserID)
	}
	sort.Strings(ids)
	return ids
}

func (m *mockDispatcher) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func strPtr(s string) *string { return &s }
