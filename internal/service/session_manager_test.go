package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/admin-ops/internal/auth"
	"github.com/spec-kit/admin-ops/internal/config"
	"github.com/spec-kit/admin-ops/internal/domain"
	"github.com/spec-kit/admin-ops/internal/observability"
)

type sessionHarness struct {
	clock    *testClock
	provider *fakeProvider
	sessions *fakeSessions
	prompter *mockPrompter
	metrics  *observability.Metrics
	events   *eventRecorder
	manager  *SessionManager
}

func newSessionHarness(t *testing.T, mutate func(*config.SessionConfig)) *sessionHarness {
	t.Helper()
	cfg := config.SessionConfig{
		CheckInterval:       time.Hour,
		WarningBeforeExpiry: 5 * time.Minute,
		AutoRenewThreshold:  10 * time.Minute,
		AutoRenew:           true,
		SideEffectTimeout:   time.Second,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	h := &sessionHarness{
		clock:    newTestClock(),
		sessions: &fakeSessions{},
		prompter: &mockPrompter{},
		metrics:  observability.NewMetrics(),
		events:   &eventRecorder{},
	}
	h.provider = newFakeProvider(h.clock)
	h.manager = NewSessionManager(SessionManagerDependencies{
		Provider: h.provider,
		Sessions: h.sessions,
		Prompter: h.prompter,
		Metrics:  h.metrics,
		Config:   cfg,
		Clock:    h.clock.Now,
	})
	h.events.listen(h.manager,
		domain.SessionEventExpiringSoon,
		domain.SessionEventExpired,
		domain.SessionEventRenewed,
		domain.SessionEventInvalid,
	)
	t.Cleanup(h.manager.Cleanup)
	return h
}

func TestCalculateSessionStatus(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	warning := 5 * time.Minute

	cases := []struct {
		name      string
		expiresIn time.Duration
		want      domain.SessionStatus
	}{
		{"long past", -time.Hour, domain.SessionExpired},
		{"exactly now", 0, domain.SessionExpired},
		{"one second left", time.Second, domain.SessionExpiringSoon},
		{"at warning edge", warning, domain.SessionExpiringSoon},
		{"just outside warning", warning + time.Second, domain.SessionActive},
		{"far future", 24 * time.Hour, domain.SessionActive},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CalculateSessionStatus(now.Add(tc.expiresIn), now, warning))
		})
	}
}

func TestIsRenewable(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	renewal := 10 * time.Minute

	assert.False(t, IsRenewable(now, now, renewal))
	assert.False(t, IsRenewable(now.Add(-time.Minute), now, renewal))
	assert.True(t, IsRenewable(now.Add(time.Minute), now, renewal))
	assert.True(t, IsRenewable(now.Add(renewal), now, renewal))
	assert.False(t, IsRenewable(now.Add(renewal+time.Second), now, renewal))
}

func TestTimeRemainingNeverNegative(t *testing.T) {
	h := newSessionHarness(t, nil)
	h.manager.Initialize(context.Background())

	assert.Equal(t, 0, h.manager.GetSessionTimeRemaining())

	h.provider.signIn(context.Background(), 30*time.Minute)
	assert.Equal(t, 30, h.manager.GetSessionTimeRemaining())

	h.clock.Advance(2 * time.Hour)
	assert.Equal(t, 0, h.manager.GetSessionTimeRemaining())
	assert.True(t, h.manager.IsSessionExpired())
}

func TestInitializeIsIdempotent(t *testing.T) {
	h := newSessionHarness(t, nil)
	ctx := context.Background()

	h.manager.Initialize(ctx)
	h.manager.Initialize(ctx)

	assert.Equal(t, 1, h.provider.getCalls)
	assert.Equal(t, 1, h.provider.subscribeCalls)
}

func TestInitializeRetriesAfterFailedPull(t *testing.T) {
	h := newSessionHarness(t, nil)
	ctx := context.Background()
	h.provider.getErr = errors.New("network down")

	assert.NotPanics(t, func() { h.manager.Initialize(ctx) })
	assert.Nil(t, h.manager.GetCurrentSession())
	assert.Zero(t, h.provider.subscribeCalls)

	h.provider.getErr = nil
	h.provider.session = &domain.AuthSession{
		ID:        "sess-2",
		CreatedAt: h.clock.Now(),
		ExpiresAt: h.clock.Now().Add(time.Hour),
		User:      domain.AuthUser{ID: "user-2", Role: domain.RoleAdmin},
	}
	h.manager.Initialize(ctx)
	h.manager.Initialize(ctx)

	assert.Equal(t, 2, h.provider.getCalls)
	assert.Equal(t, 1, h.provider.subscribeCalls)
	require.NotNil(t, h.manager.GetCurrentSession())
	assert.Equal(t, "sess-2", h.manager.GetCurrentSession().ID)
}

func TestInitializeLoadsExistingSession(t *testing.T) {
	h := newSessionHarness(t, nil)
	now := h.clock.Now()
	h.provider.session = &domain.AuthSession{
		ID:        "sess-9",
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
		User:      domain.AuthUser{ID: "user-9", Email: "nine@example.com", Role: domain.RoleModerator},
	}

	h.manager.Initialize(context.Background())

	info := h.manager.GetCurrentSession()
	require.NotNil(t, info)
	assert.Equal(t, "sess-9", info.ID)
	assert.Equal(t, domain.RoleModerator, info.Role)
	assert.True(t, h.manager.IsSessionActive())
	assert.False(t, info.IsRenewable)
	assert.Equal(t, []string{"record"}, h.sessions.ops())
	assert.Empty(t, h.events.types())
}

func TestTokenRefreshOutsideRenewalWritesActivity(t *testing.T) {
	h := newSessionHarness(t, nil)
	ctx := context.Background()
	h.manager.Initialize(ctx)
	signedIn := h.provider.signIn(ctx, time.Hour)

	refreshed := *signedIn
	refreshed.ExpiresAt = signedIn.ExpiresAt.Add(time.Hour)
	h.provider.notify(ctx, domain.AuthEventTokenRefreshed, &refreshed)

	assert.Equal(t, []string{"record", "update_activity"}, h.sessions.ops())
	assert.Equal(t, refreshed.ExpiresAt, h.manager.GetCurrentSession().ExpiresAt)
}

func newLocalProviderManager(t *testing.T) (*auth.LocalProvider, *SessionManager, *fakeSessions, *eventRecorder) {
	t.Helper()
	ctx := context.Background()
	provider := auth.NewLocalProvider(&memoryUsers{}, auth.NewTokenManager("session-secret", 60), 4)
	_, err := provider.RegisterUser(ctx, "svc@example.com", "svc-password", domain.RoleAdmin)
	require.NoError(t, err)

	sessions := &fakeSessions{}
	manager := NewSessionManager(SessionManagerDependencies{
		Provider: provider,
		Sessions: sessions,
		Config: config.SessionConfig{
			CheckInterval:       time.Hour,
			WarningBeforeExpiry: 5 * time.Minute,
			AutoRenewThreshold:  10 * time.Minute,
			SideEffectTimeout:   time.Second,
		},
	})
	events := &eventRecorder{}
	events.listen(manager, domain.SessionEventRenewed, domain.SessionEventExpired)
	t.Cleanup(manager.Cleanup)
	return provider, manager, sessions, events
}

func TestLocalProviderSignInBeforeInitializeIsRecorded(t *testing.T) {
	provider, manager, sessions, _ := newLocalProviderManager(t)
	ctx := context.Background()

	signedIn, err := provider.SignInWithPassword(ctx, "svc@example.com", "svc-password")
	require.NoError(t, err)
	manager.Initialize(ctx)

	info := manager.GetCurrentSession()
	require.NotNil(t, info)
	assert.Equal(t, signedIn.ID, info.ID)

	require.True(t, manager.RenewSession(ctx))
	assert.Equal(t, []string{"record", "update_activity"}, sessions.ops())
}

func TestLocalProviderInitializeThenSignIn(t *testing.T) {
	provider, manager, sessions, events := newLocalProviderManager(t)
	ctx := context.Background()

	manager.Initialize(ctx)
	_, err := provider.SignInWithPassword(ctx, "svc@example.com", "svc-password")
	require.NoError(t, err)

	require.True(t, manager.IsSessionActive())
	assert.Equal(t, []domain.SessionEventType{domain.SessionEventRenewed}, events.types())

	require.True(t, manager.RenewSession(ctx))
	require.NoError(t, provider.SignOut(ctx))

	assert.Equal(t, []string{"record", "update_activity", "terminate"}, sessions.ops())
	assert.Equal(t, []domain.SessionEventType{
		domain.SessionEventRenewed,
		domain.SessionEventRenewed,
		domain.SessionEventExpired,
	}, events.types())
}

func TestRenewSessionFailureEmitsInvalid(t *testing.T) {
	h := newSessionHarness(t, nil)
	ctx := context.Background()
	h.manager.Initialize(ctx)
	h.provider.signIn(ctx, time.Hour)
	h.provider.refreshErr = errors.New("refresh rejected")

	ok := h.manager.RenewSession(ctx)

	assert.False(t, ok)
	assert.Equal(t, []domain.SessionEventType{domain.SessionEventRenewed, domain.SessionEventInvalid}, h.events.types())
}

func TestRenewSessionSuccess(t *testing.T) {
	h := newSessionHarness(t, nil)
	ctx := context.Background()
	h.manager.Initialize(ctx)
	h.provider.signIn(ctx, 8*time.Minute)
	created := h.manager.GetCurrentSession().CreatedAt

	h.clock.Advance(time.Minute)
	ok := h.manager.RenewSession(ctx)

	require.True(t, ok)
	info := h.manager.GetCurrentSession()
	require.NotNil(t, info)
	assert.Equal(t, "sess-1", info.ID)
	assert.Equal(t, created, info.CreatedAt)
	assert.Equal(t, h.clock.Now().Add(time.Hour), info.ExpiresAt)
	assert.Equal(t, domain.SessionActive, info.Status)
	assert.Equal(t, []domain.SessionEventType{domain.SessionEventRenewed, domain.SessionEventRenewed}, h.events.types())
	assert.Equal(t, []string{"record", "update_activity"}, h.sessions.ops())
}

func TestExpiringSoonPromptsOncePerTransition(t *testing.T) {
	h := newSessionHarness(t, func(c *config.SessionConfig) { c.AutoRenew = false })
	ctx := context.Background()
	h.prompter.On("Prompt", mock.Anything, "user-1", mock.MatchedBy(func(p SessionPrompt) bool {
		return p.Action == PromptActionRenew
	})).Return()

	h.manager.Initialize(ctx)
	h.provider.signIn(ctx, 3*time.Minute)
	assert.True(t, h.manager.IsSessionExpiringSoon())

	h.manager.periodicCheck(ctx)
	h.clock.Advance(time.Minute)
	h.manager.periodicCheck(ctx)

	h.prompter.AssertNumberOfCalls(t, "Prompt", 1)
	assert.Equal(t, []domain.SessionEventType{domain.SessionEventRenewed, domain.SessionEventExpiringSoon}, h.events.types())

	// a renewal leaves the window; coming back into it prompts again
	require.True(t, h.manager.RenewSession(ctx))
	h.clock.Advance(57 * time.Minute)
	h.manager.periodicCheck(ctx)
	h.prompter.AssertNumberOfCalls(t, "Prompt", 2)
}

func TestExpiringSoonRepeatsWhenConfigured(t *testing.T) {
	h := newSessionHarness(t, func(c *config.SessionConfig) {
		c.AutoRenew = false
		c.RepeatExpiryPrompt = true
	})
	ctx := context.Background()
	h.prompter.On("Prompt", mock.Anything, "user-1", mock.Anything).Return()

	h.manager.Initialize(ctx)
	h.provider.signIn(ctx, 4*time.Minute)

	h.manager.periodicCheck(ctx)
	h.manager.periodicCheck(ctx)
	h.manager.periodicCheck(ctx)

	h.prompter.AssertNumberOfCalls(t, "Prompt", 3)
}

func TestExpiredSessionIsSignedOut(t *testing.T) {
	h := newSessionHarness(t, nil)
	ctx := context.Background()
	h.manager.Initialize(ctx)
	h.provider.signIn(ctx, 30*time.Minute)

	h.clock.Advance(31 * time.Minute)
	h.manager.periodicCheck(ctx)

	assert.Nil(t, h.manager.GetCurrentSession())
	assert.Nil(t, h.provider.session)
	assert.False(t, h.manager.IsSessionExpired())
	assert.Equal(t, []domain.SessionEventType{domain.SessionEventRenewed, domain.SessionEventExpired}, h.events.types())
	assert.Equal(t, []string{"record", "terminate"}, h.sessions.ops())
}

func TestAutoRenewInsideThreshold(t *testing.T) {
	h := newSessionHarness(t, nil)
	ctx := context.Background()
	h.manager.Initialize(ctx)
	h.provider.signIn(ctx, 8*time.Minute)

	h.manager.periodicCheck(ctx)

	assert.Equal(t, 1, h.provider.refreshCalls)
	assert.Equal(t, 60, h.manager.GetSessionTimeRemaining())
}

func TestNoAutoRenewOutsideThreshold(t *testing.T) {
	h := newSessionHarness(t, nil)
	ctx := context.Background()
	h.manager.Initialize(ctx)
	h.provider.signIn(ctx, 45*time.Minute)

	h.manager.periodicCheck(ctx)

	assert.Zero(t, h.provider.refreshCalls)
}

func TestSignOutEmitsExpiredAndTerminates(t *testing.T) {
	h := newSessionHarness(t, nil)
	ctx := context.Background()
	h.manager.Initialize(ctx)
	h.provider.signIn(ctx, time.Hour)

	h.manager.ForceSignOut(ctx)

	assert.Nil(t, h.manager.GetCurrentSession())
	assert.Equal(t, []domain.SessionEventType{domain.SessionEventRenewed, domain.SessionEventExpired}, h.events.types())
	assert.Equal(t, []string{"record", "terminate"}, h.sessions.ops())
}

func TestSwallowedWritesAreCounted(t *testing.T) {
	h := newSessionHarness(t, nil)
	h.sessions.err = errStore
	ctx := context.Background()
	h.manager.Initialize(ctx)

	assert.NotPanics(t, func() { h.provider.signIn(ctx, time.Hour) })
	assert.NotNil(t, h.manager.GetCurrentSession())

	assert.Equal(t, 1.0, counterValue(t, h.metrics, "admin_ops_swallowed_errors_total",
		map[string]string{"component": "session", "operation": "record"}))
}

func TestListenerLastRegistrationWins(t *testing.T) {
	h := newSessionHarness(t, nil)
	ctx := context.Background()
	h.manager.Initialize(ctx)

	var first, second int
	h.manager.AddEventListener(domain.SessionEventRenewed, func(domain.SessionEvent) { first++ })
	h.manager.AddEventListener(domain.SessionEventRenewed, func(domain.SessionEvent) { second++ })
	h.provider.signIn(ctx, time.Hour)

	assert.Zero(t, first)
	assert.Equal(t, 1, second)

	h.manager.RemoveEventListener(domain.SessionEventRenewed)
	require.True(t, h.manager.RenewSession(ctx))
	assert.Equal(t, 1, second)
}

func TestCleanupResetsState(t *testing.T) {
	h := newSessionHarness(t, nil)
	ctx := context.Background()
	h.manager.Initialize(ctx)
	h.provider.signIn(ctx, time.Hour)

	h.manager.Cleanup()

	assert.Nil(t, h.manager.GetCurrentSession())
	assert.Nil(t, h.provider.listener)

	h.manager.Initialize(ctx)
	assert.Equal(t, 2, h.provider.getCalls)
	assert.Equal(t, 2, h.provider.subscribeCalls)
}
