package service

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/mock"

	"github.com/spec-kit/admin-ops/internal/domain"
	"github.com/spec-kit/admin-ops/internal/repository"
)

type memoryTickets struct {
	mu             sync.Mutex
	tickets        map[string]*domain.Ticket
	order          []string
	listErr        error
	priorityWrites int
}

func newMemoryTickets(tickets ...domain.Ticket) *memoryTickets {
	m := &memoryTickets{tickets: map[string]*domain.Ticket{}}
	for i := range tickets {
		t := tickets[i]
		m.tickets[t.ID] = &t
		m.order = append(m.order, t.ID)
	}
	return m
}

func (m *memoryTickets) get(id string) domain.Ticket {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.tickets[id]
}

func (m *memoryTickets) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	c := *t
	return &c, nil
}

func (m *memoryTickets) ListByStatuses(_ context.Context, statuses []domain.TicketStatus) ([]domain.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []domain.Ticket
	for _, id := range m.order {
		t := m.tickets[id]
		for _, s := range statuses {
			if t.Status == s {
				out = append(out, *t)
				break
			}
		}
	}
	return out, nil
}

func (m *memoryTickets) update(id string, fn func(*domain.Ticket)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[id]
	if !ok {
		return pgx.ErrNoRows
	}
	fn(t)
	return nil
}

func (m *memoryTickets) UpdatePriority(_ context.Context, id string, priority domain.TicketPriority) error {
	return m.update(id, func(t *domain.Ticket) {
		m.priorityWrites++
		t.Priority = priority
	})
}

func (m *memoryTickets) UpdateStage(_ context.Context, id, stage string) error {
	return m.update(id, func(t *domain.Ticket) { t.Stage = stage })
}

func (m *memoryTickets) Assign(_ context.Context, id string, assignedTo, assignedTeam *string) error {
	return m.update(id, func(t *domain.Ticket) {
		if assignedTo != nil {
			t.AssignedTo = assignedTo
		}
		if assignedTeam != nil {
			t.AssignedTeam = assignedTeam
		}
	})
}

func (m *memoryTickets) IncrementEscalationCount(_ context.Context, id string) error {
	return m.update(id, func(t *domain.Ticket) { t.EscalationCount++ })
}

type memoryEscalations struct {
	mu          sync.Mutex
	items       map[string]*domain.TicketEscalation
	hasActiveFn func(ticketID string) error
	listErr     error
}

func newMemoryEscalations() *memoryEscalations {
	return &memoryEscalations{items: map[string]*domain.TicketEscalation{}}
}

func cloneEscalation(e *domain.TicketEscalation) domain.TicketEscalation {
	c := *e
	c.Actions = append([]domain.EscalationAction(nil), e.Actions...)
	return c
}

func (m *memoryEscalations) Create(_ context.Context, e *domain.TicketEscalation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.items {
		if existing.TicketID == e.TicketID && existing.Type == e.Type && existing.Status == domain.EscalationActive {
			return repository.ErrActiveEscalationExists
		}
	}
	c := cloneEscalation(e)
	m.items[e.ID] = &c
	return nil
}

func (m *memoryEscalations) GetByID(_ context.Context, id string) (*domain.TicketEscalation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.items[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	c := cloneEscalation(e)
	return &c, nil
}

func (m *memoryEscalations) HasActive(_ context.Context, ticketID string, triggerType domain.TriggerType) (bool, error) {
	if m.hasActiveFn != nil {
		if err := m.hasActiveFn(ticketID); err != nil {
			return false, err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.items {
		if e.TicketID == ticketID && e.Type == triggerType && e.Status == domain.EscalationActive {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryEscalations) AppendAction(_ context.Context, id string, action domain.EscalationAction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.items[id]
	if !ok {
		return pgx.ErrNoRows
	}
	e.Actions = append(e.Actions, action)
	return nil
}

func (m *memoryEscalations) SetStatus(_ context.Context, id string, status domain.EscalationStatus, at time.Time, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.items[id]
	if !ok {
		return pgx.ErrNoRows
	}
	e.Status = status
	e.ResolvedAt = &at
	e.Notes = note
	return nil
}

func (m *memoryEscalations) ListByTicket(_ context.Context, ticketID string) ([]domain.TicketEscalation, error) {
	all, err := m.ListAll(context.Background())
	if err != nil {
		return nil, err
	}
	var out []domain.TicketEscalation
	for _, e := range all {
		if e.TicketID == ticketID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memoryEscalations) ListAll(context.Context) ([]domain.TicketEscalation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]domain.TicketEscalation, 0, len(m.items))
	for _, e := range m.items {
		out = append(out, cloneEscalation(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EscalatedAt.After(out[j].EscalatedAt) })
	return out, nil
}

func (m *memoryEscalations) all() []domain.TicketEscalation {
	out, _ := m.ListAll(context.Background())
	return out
}

type memoryRules struct {
	rules []domain.EscalationRule
	err   error
}

func (m *memoryRules) ListAll(context.Context) ([]domain.EscalationRule, error) {
	return m.rules, m.err
}

func (m *memoryRules) Upsert(_ context.Context, rule *domain.EscalationRule) error {
	m.rules = append(m.rules, *rule)
	return nil
}

type memoryAssignments struct {
	mu   sync.Mutex
	rows []domain.TicketAssignment
}

func (m *memoryAssignments) Create(_ context.Context, a *domain.TicketAssignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = "asg-" + strconv.Itoa(len(m.rows)+1)
	m.rows = append(m.rows, *a)
	return nil
}

func (m *memoryAssignments) ListByTicket(_ context.Context, ticketID string) ([]domain.TicketAssignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.TicketAssignment
	for _, a := range m.rows {
		if a.TicketID == ticketID {
			out = append(out, a)
		}
	}
	return out, nil
}

type memoryTasks struct {
	mu   sync.Mutex
	rows []domain.Task
}

func (m *memoryTasks) Create(_ context.Context, task *domain.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	task.ID = "task-" + strconv.Itoa(len(m.rows)+1)
	m.rows = append(m.rows, *task)
	return nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []domain.Notification
	err  error
}

func (r *recordingNotifier) SendNotification(_ context.Context, n domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, n)
	return nil
}

type mockEmailSender struct {
	mock.Mock
}

func (m *mockEmailSender) SendEmail(ctx context.Context, email domain.Email) error {
	return m.Called(ctx, email).Error(0)
}
