package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/admin-ops/internal/auth"
	"github.com/spec-kit/admin-ops/internal/config"
	"github.com/spec-kit/admin-ops/internal/domain"
	"github.com/spec-kit/admin-ops/internal/observability"
	"github.com/spec-kit/admin-ops/internal/repository"
)

// AuthProvider issues and refreshes the session tracked by SessionManager.
type AuthProvider interface {
	GetSession(ctx context.Context) (*domain.AuthSession, error)
	RefreshSession(ctx context.Context) (*domain.AuthSession, error)
	SignOut(ctx context.Context) error
	OnAuthStateChange(listener auth.StateListener) func()
}

// SessionPrompt is a user-facing message with an optional follow-up action.
type SessionPrompt struct {
	Title   string
	Message string
	Action  string
}

// PromptActionRenew asks the owner to call the renew endpoint.
const PromptActionRenew = "renew"

// Prompter surfaces prompts to the owner of a session.
type Prompter interface {
	Prompt(ctx context.Context, userID string, prompt SessionPrompt)
}

// SessionEventListener receives session lifecycle events.
type SessionEventListener func(event domain.SessionEvent)

// SessionManagerDependencies bundles collaborators.
type SessionManagerDependencies struct {
	Provider AuthProvider
	Sessions repository.SessionRepository
	Prompter Prompter
	Metrics  *observability.Metrics
	Logger   *zap.Logger
	Config   config.SessionConfig
	Clock    func() time.Time
}

// SessionManager tracks the lifecycle of the process session: it polls for
// expiry, renews ahead of it and signs out once it has passed.
type SessionManager struct {
	provider AuthProvider
	sessions repository.SessionRepository
	prompter Prompter
	metrics  *observability.Metrics
	logger   *zap.Logger
	cfg      config.SessionConfig
	now      func() time.Time

	mu           sync.Mutex
	current      *domain.SessionInfo
	listeners    map[domain.SessionEventType]SessionEventListener
	initialized  bool
	initializing bool
	renewing     int
	prompted     bool
	stop         chan struct{}
	unsubscribe  func()
}

// NewSessionManager creates the manager. Nothing runs until Initialize.
func NewSessionManager(deps SessionManagerDependencies) *SessionManager {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &SessionManager{
		provider:  deps.Provider,
		sessions:  deps.Sessions,
		prompter:  deps.Prompter,
		metrics:   deps.Metrics,
		logger:    logger.Named("session"),
		cfg:       deps.Config,
		now:       clock,
		listeners: make(map[domain.SessionEventType]SessionEventListener),
	}
}

// Initialize pulls the current session, starts the periodic check and
// subscribes to provider state changes. A failed pull leaves the manager
// uninitialized so a later call can retry; calls after the first successful
// one are no-ops.
func (m *SessionManager) Initialize(ctx context.Context) {
	m.mu.Lock()
	if m.initialized || m.initializing {
		m.mu.Unlock()
		return
	}
	m.initializing = true
	m.mu.Unlock()

	info, err := m.loadSession(ctx)
	if err != nil {
		m.logger.Warn("initial session pull failed", zap.Error(err))
		m.mu.Lock()
		m.initializing = false
		m.mu.Unlock()
		return
	}
	if info != nil {
		m.logger.Info("session loaded",
			zap.String("session_id", info.ID),
			zap.String("user_id", info.UserID),
			zap.String("status", string(info.Status)),
			zap.Time("expires_at", info.ExpiresAt))
		// opened before we subscribed, so no SIGNED_IN reached us
		m.recordSession(ctx, info)
	}

	unsubscribe := m.provider.OnAuthStateChange(m.handleAuthStateChange)
	stop := make(chan struct{})
	m.mu.Lock()
	m.initializing = false
	m.initialized = true
	m.stop = stop
	m.unsubscribe = unsubscribe
	m.mu.Unlock()

	interval := m.cfg.CheckInterval
	if interval <= 0 {
		interval = time.Minute
	}
	go m.run(interval, stop)
}

func (m *SessionManager) run(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.periodicCheck(context.Background())
		}
	}
}

// CheckCurrentSession asks the provider for its session and replaces the
// held state. It returns nil when the provider has no session or fails.
func (m *SessionManager) CheckCurrentSession(ctx context.Context) *domain.SessionInfo {
	info, err := m.loadSession(ctx)
	if err != nil {
		m.logger.Warn("get session failed", zap.Error(err))
		return nil
	}
	return info
}

func (m *SessionManager) loadSession(ctx context.Context) (*domain.SessionInfo, error) {
	session, err := m.provider.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if session == nil {
		m.mu.Lock()
		m.current = nil
		m.prompted = false
		m.mu.Unlock()
		return nil, nil
	}

	info := m.buildInfo(session)
	m.mu.Lock()
	m.current = info
	snapshot := *info
	m.mu.Unlock()
	return &snapshot, nil
}

// RenewSession refreshes the provider session. It reports success and never
// returns an error; failures emit an invalid event instead.
func (m *SessionManager) RenewSession(ctx context.Context) bool {
	m.mu.Lock()
	m.renewing++
	m.mu.Unlock()
	session, err := m.provider.RefreshSession(ctx)
	m.mu.Lock()
	m.renewing--
	m.mu.Unlock()
	if err != nil || session == nil {
		if err == nil {
			err = auth.ErrNoSession
		}
		m.logger.Warn("session renewal failed", zap.Error(err))
		m.emit(domain.SessionEventInvalid, "No se pudo renovar la sesión", m.GetCurrentSession())
		return false
	}

	info := m.buildInfo(session)
	m.mu.Lock()
	if m.current != nil && m.current.ID == info.ID {
		info.CreatedAt = m.current.CreatedAt
	}
	m.current = info
	m.prompted = false
	snapshot := *info
	m.mu.Unlock()

	m.updateActivity(ctx, &snapshot)
	m.emit(domain.SessionEventRenewed, "Sesión renovada correctamente", &snapshot)
	return true
}

// ForceSignOut signs out at the provider and drops the held session. Events
// come from the provider's own state change notification.
func (m *SessionManager) ForceSignOut(ctx context.Context) {
	if err := m.provider.SignOut(ctx); err != nil {
		m.swallow("sign_out", err)
	}
	m.mu.Lock()
	m.current = nil
	m.prompted = false
	m.mu.Unlock()
}

// GetCurrentSession returns a copy of the held session with its status
// recomputed, or nil.
func (m *SessionManager) GetCurrentSession() *domain.SessionInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	snapshot := *m.current
	m.refreshStatus(&snapshot, m.now())
	return &snapshot
}

func (m *SessionManager) IsSessionActive() bool {
	return m.statusIs(domain.SessionActive)
}

func (m *SessionManager) IsSessionExpiringSoon() bool {
	return m.statusIs(domain.SessionExpiringSoon)
}

func (m *SessionManager) IsSessionExpired() bool {
	return m.statusIs(domain.SessionExpired)
}

// GetSessionTimeRemaining returns whole minutes until expiry, never negative.
func (m *SessionManager) GetSessionTimeRemaining() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return 0
	}
	return minutesRemaining(m.current.ExpiresAt, m.now())
}

// AddEventListener registers fn for eventType, replacing any previous one.
func (m *SessionManager) AddEventListener(eventType domain.SessionEventType, fn SessionEventListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners[eventType] = fn
}

// RemoveEventListener drops the listener for eventType.
func (m *SessionManager) RemoveEventListener(eventType domain.SessionEventType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.listeners, eventType)
}

// Cleanup stops the periodic check and forgets all state. Provider calls
// already in flight are not cancelled.
func (m *SessionManager) Cleanup() {
	m.mu.Lock()
	if m.stop != nil {
		close(m.stop)
		m.stop = nil
	}
	unsubscribe := m.unsubscribe
	m.unsubscribe = nil
	m.current = nil
	m.prompted = false
	m.listeners = make(map[domain.SessionEventType]SessionEventListener)
	m.initialized = false
	m.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

func (m *SessionManager) periodicCheck(ctx context.Context) {
	m.mu.Lock()
	if m.current == nil {
		m.mu.Unlock()
		return
	}
	now := m.now()
	m.refreshStatus(m.current, now)
	snapshot := *m.current

	switch snapshot.Status {
	case domain.SessionExpired:
		m.mu.Unlock()
		m.emit(domain.SessionEventExpired, "La sesión ha expirado", &snapshot)
		m.ForceSignOut(ctx)

	case domain.SessionExpiringSoon:
		notify := !m.prompted || m.cfg.RepeatExpiryPrompt
		m.prompted = true
		m.mu.Unlock()
		if !notify {
			return
		}
		remaining := minutesRemaining(snapshot.ExpiresAt, now)
		message := fmt.Sprintf("Tu sesión expirará en %d minutos", remaining)
		m.emit(domain.SessionEventExpiringSoon, message, &snapshot)
		if m.prompter != nil {
			m.prompter.Prompt(ctx, snapshot.UserID, SessionPrompt{
				Title:   "Sesión por expirar",
				Message: message + ". ¿Deseas renovarla?",
				Action:  PromptActionRenew,
			})
		}

	default:
		m.mu.Unlock()
		if m.cfg.AutoRenew && snapshot.IsRenewable {
			m.RenewSession(ctx)
		}
	}
}

func (m *SessionManager) handleAuthStateChange(ctx context.Context, event domain.AuthEvent, session *domain.AuthSession) {
	switch event {
	case domain.AuthEventSignedIn:
		if session == nil {
			return
		}
		info := m.buildInfo(session)
		m.mu.Lock()
		m.current = info
		m.prompted = false
		snapshot := *info
		m.mu.Unlock()
		m.recordSession(ctx, &snapshot)
		m.emit(domain.SessionEventRenewed, "Sesión iniciada", &snapshot)

	case domain.AuthEventSignedOut:
		m.mu.Lock()
		held := m.current
		m.current = nil
		m.prompted = false
		m.mu.Unlock()
		if held != nil {
			m.terminateSession(ctx, held.ID)
			// the periodic check already announced this expiry
			if held.Status == domain.SessionExpired {
				return
			}
		}
		m.emit(domain.SessionEventExpired, "Sesión cerrada", held)

	case domain.AuthEventTokenRefreshed:
		if session == nil {
			return
		}
		m.mu.Lock()
		if m.current == nil || m.current.ID != session.ID {
			m.current = m.buildInfo(session)
		} else {
			m.current.AccessToken = session.AccessToken
			m.current.ExpiresAt = session.ExpiresAt
			m.current.LastActivity = m.now()
			m.refreshStatus(m.current, m.current.LastActivity)
		}
		snapshot := *m.current
		// RenewSession writes the activity itself once the refresh returns
		renewing := m.renewing > 0
		m.mu.Unlock()
		if !renewing {
			m.updateActivity(ctx, &snapshot)
		}

	case domain.AuthEventUserUpdated:
		if session == nil {
			return
		}
		m.mu.Lock()
		if m.current != nil {
			m.current.Email = session.User.Email
			m.current.LastActivity = m.now()
		}
		m.mu.Unlock()
	}
}

func (m *SessionManager) buildInfo(session *domain.AuthSession) *domain.SessionInfo {
	now := m.now()
	info := &domain.SessionInfo{
		ID:           session.ID,
		AccessToken:  session.AccessToken,
		UserID:       session.User.ID,
		Email:        session.User.Email,
		Role:         session.User.Role,
		CreatedAt:    session.CreatedAt,
		ExpiresAt:    session.ExpiresAt,
		LastActivity: now,
	}
	m.refreshStatus(info, now)
	return info
}

func (m *SessionManager) refreshStatus(info *domain.SessionInfo, now time.Time) {
	info.Status = CalculateSessionStatus(info.ExpiresAt, now, m.cfg.WarningBeforeExpiry)
	info.IsRenewable = IsRenewable(info.ExpiresAt, now, m.cfg.AutoRenewThreshold)
}

func (m *SessionManager) statusIs(status domain.SessionStatus) bool {
	info := m.GetCurrentSession()
	return info != nil && info.Status == status
}

func (m *SessionManager) emit(eventType domain.SessionEventType, message string, info *domain.SessionInfo) {
	m.metrics.RecordSessionEvent(string(eventType))

	m.mu.Lock()
	listener := m.listeners[eventType]
	m.mu.Unlock()
	if listener == nil {
		return
	}

	event := domain.SessionEvent{Type: eventType, Message: message, Timestamp: m.now()}
	if info != nil {
		snapshot := *info
		event.Session = &snapshot
	}
	listener(event)
}

func (m *SessionManager) recordSession(ctx context.Context, info *domain.SessionInfo) {
	if m.sessions == nil {
		return
	}
	ctx, cancel := m.sideEffectContext(ctx)
	defer cancel()
	err := m.sessions.Record(ctx, &domain.SessionRecord{
		ID:           info.ID,
		UserID:       info.UserID,
		Email:        info.Email,
		Role:         info.Role,
		CreatedAt:    info.CreatedAt,
		ExpiresAt:    info.ExpiresAt,
		LastActivity: info.LastActivity,
		Status:       domain.SessionRecordActive,
	})
	if err != nil {
		m.swallow("record", err)
	}
}

func (m *SessionManager) updateActivity(ctx context.Context, info *domain.SessionInfo) {
	if m.sessions == nil {
		return
	}
	ctx, cancel := m.sideEffectContext(ctx)
	defer cancel()
	if err := m.sessions.UpdateActivity(ctx, info.ID, info.ExpiresAt, info.LastActivity); err != nil {
		m.swallow("update_activity", err)
	}
}

func (m *SessionManager) terminateSession(ctx context.Context, id string) {
	if m.sessions == nil {
		return
	}
	ctx, cancel := m.sideEffectContext(ctx)
	defer cancel()
	if err := m.sessions.Terminate(ctx, id, m.now()); err != nil {
		m.swallow("terminate", err)
	}
}

func (m *SessionManager) sideEffectContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithoutCancel(ctx)
	if m.cfg.SideEffectTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, m.cfg.SideEffectTimeout)
}

func (m *SessionManager) swallow(operation string, err error) {
	m.logger.Warn("session side effect failed", zap.String("operation", operation), zap.Error(err))
	m.metrics.RecordSwallowed("session", operation)
}
