package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/admin-ops/internal/auth"
	"github.com/spec-kit/admin-ops/internal/domain"
	"github.com/spec-kit/admin-ops/internal/observability"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeProvider mimics auth.LocalProvider without tokens or a user store.
type fakeProvider struct {
	mu             sync.Mutex
	clock          *testClock
	ttl            time.Duration
	session        *domain.AuthSession
	getErr         error
	refreshErr     error
	getCalls       int
	refreshCalls   int
	subscribeCalls int
	listener       auth.StateListener
}

func newFakeProvider(clock *testClock) *fakeProvider {
	return &fakeProvider{clock: clock, ttl: time.Hour}
}

func (p *fakeProvider) GetSession(context.Context) (*domain.AuthSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.getCalls++
	if p.getErr != nil {
		return nil, p.getErr
	}
	if p.session == nil {
		return nil, nil
	}
	s := *p.session
	return &s, nil
}

func (p *fakeProvider) RefreshSession(ctx context.Context) (*domain.AuthSession, error) {
	p.mu.Lock()
	p.refreshCalls++
	if p.refreshErr != nil {
		p.mu.Unlock()
		return nil, p.refreshErr
	}
	if p.session == nil {
		p.mu.Unlock()
		return nil, auth.ErrNoSession
	}
	p.session.AccessToken = p.session.AccessToken + "+"
	p.session.ExpiresAt = p.clock.Now().Add(p.ttl)
	s := *p.session
	p.mu.Unlock()

	p.notify(ctx, domain.AuthEventTokenRefreshed, &s)
	return &s, nil
}

func (p *fakeProvider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	held := p.session
	p.session = nil
	p.mu.Unlock()
	if held != nil {
		p.notify(ctx, domain.AuthEventSignedOut, nil)
	}
	return nil
}

func (p *fakeProvider) OnAuthStateChange(listener auth.StateListener) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscribeCalls++
	p.listener = listener
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.listener = nil
	}
}

func (p *fakeProvider) signIn(ctx context.Context, expiresIn time.Duration) *domain.AuthSession {
	now := p.clock.Now()
	p.mu.Lock()
	p.session = &domain.AuthSession{
		ID:          "sess-1",
		AccessToken: "token",
		CreatedAt:   now,
		ExpiresAt:   now.Add(expiresIn),
		User:        domain.AuthUser{ID: "user-1", Email: "ops@example.com", Role: domain.RoleAdmin},
	}
	s := *p.session
	p.mu.Unlock()
	p.notify(ctx, domain.AuthEventSignedIn, &s)
	return &s
}

func (p *fakeProvider) notify(ctx context.Context, event domain.AuthEvent, session *domain.AuthSession) {
	p.mu.Lock()
	listener := p.listener
	p.mu.Unlock()
	if listener != nil {
		listener(ctx, event, session)
	}
}

type sessionWrite struct {
	op string
	id string
}

type fakeSessions struct {
	mu     sync.Mutex
	err    error
	writes []sessionWrite
}

func (f *fakeSessions) log(op, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, sessionWrite{op: op, id: id})
	return f.err
}

func (f *fakeSessions) ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.writes))
	for _, w := range f.writes {
		out = append(out, w.op)
	}
	return out
}

func (f *fakeSessions) Record(_ context.Context, record *domain.SessionRecord) error {
	return f.log("record", record.ID)
}

func (f *fakeSessions) UpdateActivity(_ context.Context, id string, _, _ time.Time) error {
	return f.log("update_activity", id)
}

func (f *fakeSessions) Terminate(_ context.Context, id string, _ time.Time) error {
	return f.log("terminate", id)
}

func (f *fakeSessions) GetByID(context.Context, string) (*domain.SessionRecord, error) {
	return nil, pgx.ErrNoRows
}

func (f *fakeSessions) ListByUser(context.Context, string) ([]domain.SessionRecord, error) {
	return nil, nil
}

type mockPrompter struct {
	mock.Mock
}

func (m *mockPrompter) Prompt(ctx context.Context, userID string, prompt SessionPrompt) {
	m.Called(ctx, userID, prompt)
}

type eventRecorder struct {
	mu     sync.Mutex
	events []domain.SessionEvent
}

func (r *eventRecorder) listen(m *SessionManager, types ...domain.SessionEventType) {
	for _, t := range types {
		m.AddEventListener(t, func(e domain.SessionEvent) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.events = append(r.events, e)
		})
	}
}

func (r *eventRecorder) types() []domain.SessionEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.SessionEventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

// counterValue reads one labelled counter from the metrics registry.
func counterValue(t *testing.T, m *observability.Metrics, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
	metrics:
		for _, metric := range family.GetMetric() {
			for _, pair := range metric.GetLabel() {
				if want, ok := labels[pair.GetName()]; ok && want != pair.GetValue() {
					continue metrics
				}
			}
			return metric.GetCounter().GetValue()
		}
	}
	return 0
}

var errStore = errors.New("store unavailable")
