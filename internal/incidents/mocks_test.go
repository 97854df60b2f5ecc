package incidents

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bissquit/incident-escalator/internal/domain"
	"github.com/bissquit/incident-escalator/internal/escalation"
	"github.com/bissquit/incident-escalator/internal/notifications"
	"github.com/jackc/pgx/v5"
)

// mockTx stages writes and applies them on Commit.
type mockTx struct {
	pgx.Tx
	ops        []func()
	committed  bool
	rolledBack bool
}

func (t *mockTx) Commit(context.Context) error {
	for _, op := range t.ops {
		op()
	}
	t.committed = true
	return nil
}

func (t *mockTx) Rollback(context.Context) error {
	if t.committed {
		return pgx.ErrTxClosed
	}
	t.rolledBack = true
	return nil
}

type mockRepo struct {
	mu        sync.Mutex
	incidents map[string]*domain.Incident
	timeline  []domain.TimelineEntry
	txs       []*mockTx
	seq       int
}

func newMockRepo() *mockRepo {
	return &mockRepo{incidents: make(map[string]*domain.Incident)}
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

func (m *mockRepo) ListIncidents(_ context.Context, filters IncidentFilters) ([]*domain.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*domain.Incident, 0)
	for _, inc := range m.incidents {
		if filters.Status != nil && inc.Status != *filters.Status {
			continue
		}
		if filters.ServiceID != "" && inc.ServiceID != filters.ServiceID {
			continue
		}
		cp := *inc
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	if len(result) > filters.Limit {
		result = result[:filters.Limit]
	}
	return result, nil
}

func (m *mockRepo) ListTimeline(_ context.Context, incidentID string) ([]domain.TimelineEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := make([]domain.TimelineEntry, 0)
	for _, e := range m.timeline {
		if e.IncidentID == incidentID {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

func (m *mockRepo) BeginTx(context.Context) (pgx.Tx, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := &mockTx{}
	m.txs = append(m.txs, tx)
	return tx, nil
}

func (m *mockRepo) CreateIncidentTx(_ context.Context, tx pgx.Tx, incident *domain.Incident) error {
	m.mu.Lock()
	m.seq++
	incident.ID = fmt.Sprintf("inc-%d", m.seq)
	m.mu.Unlock()

	cp := *incident
	m.stage(tx, func() { m.incidents[cp.ID] = &cp })
	return nil
}

func (m *mockRepo) GetIncidentForUpdateTx(ctx context.Context, _ pgx.Tx, id string) (*domain.Incident, error) {
	return m.GetIncident(ctx, id)
}

func (m *mockRepo) UpdateIncidentTx(_ context.Context, tx pgx.Tx, incident *domain.Incident) error {
	cp := *incident
	m.stage(tx, func() { m.incidents[cp.ID] = &cp })
	return nil
}

func (m *mockRepo) AppendTimelineTx(_ context.Context, tx pgx.Tx, entry *domain.TimelineEntry) error {
	cp := *entry
	m.stage(tx, func() { m.timeline = append(m.timeline, cp) })
	return nil
}

func (m *mockRepo) stage(tx pgx.Tx, op func()) {
	mt := tx.(*mockTx)
	mt.ops = append(mt.ops, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		op()
	})
}

func (m *mockRepo) lastTx() *mockTx {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.txs) == 0 {
		return nil
	}
	return m.txs[len(m.txs)-1]
}

func (m *mockRepo) timelineKinds(incidentID string) []domain.TimelineKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kinds []domain.TimelineKind
	for _, e := range m.timeline {
		if e.IncidentID == incidentID {
			kinds = append(kinds, e.Kind)
		}
	}
	return kinds
}

type mockServices map[string]*domain.Service

func (m mockServices) GetService(_ context.Context, id string) (*domain.Service, error) {
	svc, ok := m[id]
	if !ok {
		return nil, notifications.ErrServiceNotFound
	}
	return svc, nil
}

type mockPolicies map[string]*domain.EscalationPolicy

func (m mockPolicies) GetPolicy(_ context.Context, id string) (*domain.EscalationPolicy, error) {
	p, ok := m[id]
	if !ok {
		return nil, escalation.ErrPolicyNotFound
	}
	return p, nil
}

type broadcastCall struct {
	serviceID string
	event     notifications.EventKind
	incident  notifications.IncidentSnapshot
}

type mockBroadcaster struct {
	mu    sync.Mutex
	calls []broadcastCall
}

func (m *mockBroadcaster) Broadcast(_ context.Context, serviceID string, event notifications.EventKind, incident notifications.IncidentSnapshot) notifications.BroadcastResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, broadcastCall{serviceID: serviceID, event: event, incident: incident})
	return notifications.BroadcastResult{Delivered: 1}
}

func (m *mockBroadcaster) events() []notifications.EventKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	events := make([]notifications.EventKind, 0, len(m.calls))
	for _, c := range m.calls {
		events = append(events, c.event)
	}
	return events
}

type mockDispatcher struct {
	mu       sync.Mutex
	requests []notifications.DispatchRequest
	success  bool
}

func (m *mockDispatcher) Dispatch(_ context.Context, req notifications.DispatchRequest) notifications.DispatchResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	return notifications.DispatchResult{Success: m.success}
}

type mockExecutor struct {
	mu  sync.Mutex
	ids []string
}

func (m *mockExecutor) Execute(_ context.Context, id string) (escalation.Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids = append(m.ids, id)
	return escalation.Outcome{Status: escalation.OutcomeExecuted}, nil
}

// mockTasks collects tasks and runs them on demand.
type mockTasks struct {
	mu    sync.Mutex
	tasks []notifications.Task
	full  bool
}

func (m *mockTasks) Enqueue(task notifications.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.full {
		return notifications.ErrQueueFull
	}
	m.tasks = append(m.tasks, task)
	return nil
}

func (m *mockTasks) names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.tasks))
	for _, t := range m.tasks {
		names = append(names, t.Name)
	}
	return names
}

func (m *mockTasks) runAll(ctx context.Context) error {
	m.mu.Lock()
	tasks := m.tasks
	m.tasks = nil
	m.mu.Unlock()

	var errs []error
	for _, t := range tasks {
		if err := t.Run(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type mockAudit struct {
	filters []domain.NotificationFilter
	records []domain.NotificationRecord
}

func (m *mockAudit) ListNotifications(_ context.Context, filter domain.NotificationFilter) ([]domain.NotificationRecord, error) {
	m.filters = append(m.filters, filter)
	if filter.Limit < len(m.records) {
		return m.records[:filter.Limit], nil
	}
	return m.records, nil
}

type fixture struct {
	repo        *mockRepo
	broadcaster *mockBroadcaster
	dispatcher  *mockDispatcher
	executor    *mockExecutor
	tasks       *mockTasks
	audit       *mockAudit
	policies    mockPolicies
	services    mockServices
	service     *Service
	now         time.Time
}

var testNow = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

const (
	testServiceID = "4b5c1f3e-8a8e-4c1e-9d5a-1f2e3d4c5b6a"
	testUserID    = "7f3e2d1c-0b9a-4876-9543-210fedcba987"
)

func newFixture() *fixture {
	f := &fixture{
		repo:        newMockRepo(),
		broadcaster: &mockBroadcaster{},
		dispatcher:  &mockDispatcher{success: true},
		executor:    &mockExecutor{},
		tasks:       &mockTasks{},
		audit:       &mockAudit{},
		policies: mockPolicies{
			"pol-1": {
				ID: "pol-1",
				Steps: []domain.EscalationStep{
					{StepOrder: 0, DelayMinutes: 5, TargetType: domain.TargetTypeUser, TargetID: "u1"},
					{StepOrder: 1, DelayMinutes: 15, TargetType: domain.TargetTypeTeam, TargetID: "t1"},
				},
			},
		},
		now: testNow,
	}
	policyID := "pol-1"
	f.services = mockServices{
		testServiceID: {ID: testServiceID, Name: "Payments", PolicyID: &policyID},
		"svc-none":    {ID: "svc-none", Name: "Batch"},
	}

	f.service = NewService(Deps{
		Repo:        f.repo,
		Services:    f.services,
		Policies:    f.policies,
		Broadcaster: f.broadcaster,
		Dispatcher:  f.dispatcher,
		Executor:    f.executor,
		Tasks:       f.tasks,
		Audit:       f.audit,
	}, Config{BaseURL: "https://escalator.example.com"})
	f.service.now = func() time.Time { return f.now }

	return f
}

// seed stores an incident as if it had been created earlier.
func (f *fixture) seed(inc *domain.Incident) {
	if inc.ServiceID == "" {
		inc.ServiceID = testServiceID
	}
	if inc.Urgency == "" {
		inc.Urgency = domain.UrgencyHigh
	}
	f.repo.incidents[inc.ID] = inc
}

func statusPtr(s domain.IncidentStatus) *domain.IncidentStatus { return &s }
func urgencyPtr(u domain.Urgency) *domain.Urgency              { return &u }
func strPtr(s string) *string                                  { return &s }
func intPtr(i int) *int                                        { return &i }
func timePtr(t time.Time) *time.Time                           { return &t }
