package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/admin-ops/internal/auth"
	"github.com/spec-kit/admin-ops/internal/domain"
	"github.com/spec-kit/admin-ops/internal/observability"
	"github.com/spec-kit/admin-ops/internal/repository"
	apperrors "github.com/spec-kit/admin-ops/pkg/util/errorutil"
)

// AuthService coordinates dashboard logins and account administration.
type AuthService struct {
	users      repository.UserRepository
	sessions   repository.SessionRepository
	tokens     *auth.TokenManager
	bcryptCost int
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// AuthDependencies encapsulates repo requirements for auth service.
type AuthDependencies struct {
	UserRepo    repository.UserRepository
	SessionRepo repository.SessionRepository
	Tokens      *auth.TokenManager
	BcryptCost  int
	Metrics     *observability.Metrics
	Logger      *zap.Logger
}

// NewAuthService builds the service.
func NewAuthService(deps AuthDependencies) *AuthService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		users:      deps.UserRepo,
		sessions:   deps.SessionRepo,
		tokens:     deps.Tokens,
		bcryptCost: deps.BcryptCost,
		metrics:    deps.Metrics,
		logger:     logger.Named("auth"),
		now:        time.Now,
	}
}

// RegisterUser creates a dashboard account.
func (s *AuthService) RegisterUser(ctx context.Context, email, password string, role domain.UserRole) (*domain.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, apperrors.NewValidationError("valid email required", nil)
	}
	if err := auth.CheckPassword(password); err != nil {
		return nil, apperrors.NewValidationError(err.Error(), map[string]any{"min_length": auth.MinPasswordLength})
	}
	if !role.Valid() {
		return nil, apperrors.NewValidationError("invalid role", map[string]any{"role": role})
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, apperrors.NewConflict("email already registered", nil)
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.MapError(err)
	}

	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	user := &domain.User{Email: email, PasswordHash: hash, Role: role}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, apperrors.MapError(err)
	}
	return user, nil
}

// Login authenticates a dashboard user and opens a tracked session.
func (s *AuthService) Login(ctx context.Context, email, password string) (*domain.User, string, time.Time, error) {
	user, err := s.users.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", time.Time{}, apperrors.NewUnauthorized("invalid credentials")
		}
		return nil, "", time.Time{}, apperrors.MapError(err)
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, "", time.Time{}, apperrors.NewUnauthorized("invalid credentials")
	}

	sessionID := uuid.NewString()
	token, exp, err := s.tokens.GenerateToken(domain.AuthUser{ID: user.ID, Email: user.Email, Role: user.Role}, sessionID)
	if err != nil {
		return nil, "", time.Time{}, apperrors.NewInternalError(err)
	}

	if s.sessions != nil {
		now := s.now()
		if err := s.sessions.Record(ctx, &domain.SessionRecord{
			ID:           sessionID,
			UserID:       user.ID,
			Email:        user.Email,
			Role:         user.Role,
			CreatedAt:    now,
			ExpiresAt:    exp,
			LastActivity: now,
			Status:       domain.SessionRecordActive,
		}); err != nil {
			s.logger.Warn("record login session", zap.String("user_id", user.ID), zap.Error(err))
			s.metrics.RecordSwallowed("auth", "record")
		}
	}
	return user, token, exp, nil
}

// Logout terminates the tracked session of the caller. Tokens stay valid until
// they expire.
func (s *AuthService) Logout(ctx context.Context, principal *auth.Principal) error {
	if principal == nil || principal.SessionID == "" || s.sessions == nil {
		return nil
	}
	record, err := s.sessions.GetByID(ctx, principal.SessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return apperrors.MapError(err)
	}
	if record.UserID != principal.UserID {
		return apperrors.NewForbidden("session belongs to another user")
	}
	if err := s.sessions.Terminate(ctx, record.ID, s.now()); err != nil {
		return apperrors.MapError(err)
	}
	return nil
}

// ListSessions returns the tracked sessions of a user.
func (s *AuthService) ListSessions(ctx context.Context, userID string) ([]domain.SessionRecord, error) {
	if s.sessions == nil {
		return []domain.SessionRecord{}, nil
	}
	records, err := s.sessions.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return records, nil
}

// ChangePassword verifies current password before updating to new hash.
func (s *AuthService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	if err := auth.CheckPassword(newPassword); err != nil {
		return apperrors.NewValidationError(err.Error(), map[string]any{"min_length": auth.MinPasswordLength})
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return apperrors.MapError(err)
	}
	if err := auth.ComparePassword(user.PasswordHash, currentPassword); err != nil {
		return apperrors.NewUnauthorized("invalid credentials")
	}
	hash, err := auth.HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	user.PasswordHash = hash
	if err := s.users.Update(ctx, user); err != nil {
		return apperrors.MapError(err)
	}
	return nil
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokens
}
