package service

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/admin-ops/internal/auth"
	"github.com/spec-kit/admin-ops/internal/domain"
	apperrors "github.com/spec-kit/admin-ops/pkg/util/errorutil"
)

type memoryUsers struct {
	mu   sync.Mutex
	byID map[string]domain.User
}

func (m *memoryUsers) Create(_ context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.byID == nil {
		m.byID = map[string]domain.User{}
	}
	user.ID = "user-" + strconv.Itoa(len(m.byID)+1)
	m.byID[user.ID] = *user
	return nil
}

func (m *memoryUsers) Update(_ context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[user.ID]; !ok {
		return pgx.ErrNoRows
	}
	m.byID[user.ID] = *user
	return nil
}

func (m *memoryUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &u, nil
}

func (m *memoryUsers) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Email == email {
			c := u
			return &c, nil
		}
	}
	return nil, pgx.ErrNoRows
}

type storedSessions struct {
	fakeSessions
	records map[string]domain.SessionRecord
}

func (s *storedSessions) Record(ctx context.Context, record *domain.SessionRecord) error {
	if s.records == nil {
		s.records = map[string]domain.SessionRecord{}
	}
	s.records[record.ID] = *record
	return s.fakeSessions.Record(ctx, record)
}

func (s *storedSessions) GetByID(_ context.Context, id string) (*domain.SessionRecord, error) {
	r, ok := s.records[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &r, nil
}

func (s *storedSessions) ListByUser(_ context.Context, userID string) ([]domain.SessionRecord, error) {
	var out []domain.SessionRecord
	for _, r := range s.records {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func newAuthService(sessions *storedSessions) *AuthService {
	return NewAuthService(AuthDependencies{
		UserRepo:    &memoryUsers{},
		SessionRepo: sessions,
		Tokens:      auth.NewTokenManager("secret", 15),
		BcryptCost:  4,
	})
}

func TestRegisterAndLogin(t *testing.T) {
	sessions := &storedSessions{}
	svc := newAuthService(sessions)
	ctx := context.Background()

	user, err := svc.RegisterUser(ctx, "mod@example.com", "correct-horse", domain.RoleModerator)
	require.NoError(t, err)

	_, err = svc.RegisterUser(ctx, "mod@example.com", "correct-horse", domain.RoleModerator)
	assert.Equal(t, "CONFLICT", apperrors.ToDomainError(err).Code)

	loggedIn, token, exp, err := svc.Login(ctx, "mod@example.com", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, user.ID, loggedIn.ID)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), exp, 5*time.Second)

	claims, err := svc.TokenManager().ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleModerator, claims.Role)

	records, err := svc.ListSessions(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, claims.SessionID, records[0].ID)

	require.NoError(t, svc.Logout(ctx, &auth.Principal{UserID: user.ID, SessionID: claims.SessionID}))
	assert.Equal(t, []string{"record", "terminate"}, sessions.ops())

	err = svc.Logout(ctx, &auth.Principal{UserID: "someone-else", SessionID: claims.SessionID})
	assert.Equal(t, "FORBIDDEN", apperrors.ToDomainError(err).Code)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc := newAuthService(&storedSessions{})
	ctx := context.Background()
	_, err := svc.RegisterUser(ctx, "a@example.com", "correct-horse", domain.RoleUser)
	require.NoError(t, err)

	_, _, _, err = svc.Login(ctx, "a@example.com", "wrong-password")
	assert.Equal(t, "UNAUTHORIZED", apperrors.ToDomainError(err).Code)

	_, _, _, err = svc.Login(ctx, "nobody@example.com", "correct-horse")
	assert.Equal(t, "UNAUTHORIZED", apperrors.ToDomainError(err).Code)
}

func TestRegisterValidation(t *testing.T) {
	svc := newAuthService(&storedSessions{})
	ctx := context.Background()

	_, err := svc.RegisterUser(ctx, "not-an-email", "correct-horse", domain.RoleUser)
	assert.Equal(t, "VALIDATION_FAILED", apperrors.ToDomainError(err).Code)
	_, err = svc.RegisterUser(ctx, "a@example.com", "short", domain.RoleUser)
	assert.Equal(t, "VALIDATION_FAILED", apperrors.ToDomainError(err).Code)
	_, err = svc.RegisterUser(ctx, "a@example.com", "correct-horse", "root")
	assert.Equal(t, "VALIDATION_FAILED", apperrors.ToDomainError(err).Code)
}

func TestChangePassword(t *testing.T) {
	svc := newAuthService(&storedSessions{})
	ctx := context.Background()
	user, err := svc.RegisterUser(ctx, "a@example.com", "correct-horse", domain.RoleUser)
	require.NoError(t, err)

	err = svc.ChangePassword(ctx, user.ID, "wrong-password", "new-password-1")
	assert.Equal(t, "UNAUTHORIZED", apperrors.ToDomainError(err).Code)

	require.NoError(t, svc.ChangePassword(ctx, user.ID, "correct-horse", "new-password-1"))
	_, _, _, err = svc.Login(ctx, "a@example.com", "new-password-1")
	assert.NoError(t, err)
}
