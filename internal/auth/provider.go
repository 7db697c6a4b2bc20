package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/admin-ops/internal/domain"
	"github.com/spec-kit/admin-ops/internal/repository"
)

var (
	// ErrInvalidCredentials is returned for an unknown email or a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNoSession is returned when an operation needs a signed-in session.
	ErrNoSession = errors.New("no active session")
)

// StateListener receives auth state changes. session is nil on sign-out.
type StateListener func(ctx context.Context, event domain.AuthEvent, session *domain.AuthSession)

// LocalProvider is an in-process auth provider backed by the users table.
// It holds at most one session at a time.
type LocalProvider struct {
	users      repository.UserRepository
	tokens     *TokenManager
	bcryptCost int
	now        func() time.Time

	mu        sync.Mutex
	current   *domain.AuthSession
	listeners map[int]StateListener
	nextID    int
}

// NewLocalProvider builds the provider.
func NewLocalProvider(users repository.UserRepository, tokens *TokenManager, bcryptCost int) *LocalProvider {
	return &LocalProvider{
		users:      users,
		tokens:     tokens,
		bcryptCost: bcryptCost,
		now:        time.Now,
		listeners:  make(map[int]StateListener),
	}
}

// Tokens exposes the token manager for middleware usage.
func (p *LocalProvider) Tokens() *TokenManager {
	return p.tokens
}

// RegisterUser creates an account; used to bootstrap the service account.
func (p *LocalProvider) RegisterUser(ctx context.Context, email, password string, role domain.UserRole) (*domain.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, errors.New("email and password required")
	}
	if !role.Valid() {
		return nil, errors.New("invalid role")
	}
	if _, err := p.users.GetByEmail(ctx, email); err == nil {
		return nil, errors.New("email already registered")
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	hash, err := HashPassword(password, p.bcryptCost)
	if err != nil {
		return nil, err
	}
	user := &domain.User{Email: email, PasswordHash: hash, Role: role}
	if err := p.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// SignInWithPassword authenticates and opens a new session.
func (p *LocalProvider) SignInWithPassword(ctx context.Context, email, password string) (*domain.AuthSession, error) {
	user, err := p.users.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := ComparePassword(user.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}

	authUser := domain.AuthUser{ID: user.ID, Email: user.Email, Role: user.Role}
	sessionID := uuid.NewString()
	token, expiresAt, err := p.tokens.GenerateToken(authUser, sessionID)
	if err != nil {
		return nil, err
	}
	session := &domain.AuthSession{
		ID:          sessionID,
		AccessToken: token,
		ExpiresAt:   expiresAt,
		CreatedAt:   p.now(),
		User:        authUser,
	}

	p.mu.Lock()
	p.current = session
	p.mu.Unlock()

	p.notify(ctx, domain.AuthEventSignedIn, session)
	return copySession(session), nil
}

// GetSession returns the current session, or nil when signed out.
func (p *LocalProvider) GetSession(_ context.Context) (*domain.AuthSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return copySession(p.current), nil
}

// RefreshSession reissues the access token, keeping the session ID.
func (p *LocalProvider) RefreshSession(ctx context.Context) (*domain.AuthSession, error) {
	p.mu.Lock()
	current := copySession(p.current)
	p.mu.Unlock()
	if current == nil {
		return nil, ErrNoSession
	}

	token, expiresAt, err := p.tokens.GenerateToken(current.User, current.ID)
	if err != nil {
		return nil, err
	}
	current.AccessToken = token
	current.ExpiresAt = expiresAt

	p.mu.Lock()
	if p.current == nil || p.current.ID != current.ID {
		p.mu.Unlock()
		return nil, ErrNoSession
	}
	p.current = current
	p.mu.Unlock()

	p.notify(ctx, domain.AuthEventTokenRefreshed, current)
	return copySession(current), nil
}

// SignOut clears the session. Signing out twice is not an error.
func (p *LocalProvider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	had := p.current != nil
	p.current = nil
	p.mu.Unlock()

	if had {
		p.notify(ctx, domain.AuthEventSignedOut, nil)
	}
	return nil
}

// UpdateEmail changes the signed-in user's email.
func (p *LocalProvider) UpdateEmail(ctx context.Context, email string) (*domain.AuthSession, error) {
	p.mu.Lock()
	current := copySession(p.current)
	p.mu.Unlock()
	if current == nil {
		return nil, ErrNoSession
	}

	user, err := p.users.GetByID(ctx, current.User.ID)
	if err != nil {
		return nil, err
	}
	user.Email = strings.TrimSpace(email)
	if err := p.users.Update(ctx, user); err != nil {
		return nil, err
	}
	current.User.Email = user.Email

	p.mu.Lock()
	if p.current != nil && p.current.ID == current.ID {
		p.current = current
	}
	p.mu.Unlock()

	p.notify(ctx, domain.AuthEventUserUpdated, current)
	return copySession(current), nil
}

// OnAuthStateChange registers a listener and returns its unsubscribe func.
func (p *LocalProvider) OnAuthStateChange(listener StateListener) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = listener
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

func (p *LocalProvider) notify(ctx context.Context, event domain.AuthEvent, session *domain.AuthSession) {
	p.mu.Lock()
	listeners := make([]StateListener, 0, len(p.listeners))
	for _, l := range p.listeners {
		listeners = append(listeners, l)
	}
	p.mu.Unlock()

	for _, l := range listeners {
		l(ctx, event, copySession(session))
	}
}

func copySession(s *domain.AuthSession) *domain.AuthSession {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
