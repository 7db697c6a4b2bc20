package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/admin-ops/internal/api/http/handlers"
	"github.com/spec-kit/admin-ops/internal/auth"
	"github.com/spec-kit/admin-ops/internal/domain"
	"github.com/spec-kit/admin-ops/internal/observability"
	"github.com/spec-kit/admin-ops/internal/service"
	apperrors "github.com/spec-kit/admin-ops/pkg/util/errorutil"
)

type mockEscalations struct {
	mock.Mock
}

func (m *mockEscalations) CheckEscalations(ctx context.Context) service.PassResult {
	return m.Called(ctx).Get(0).(service.PassResult)
}

func (m *mockEscalations) EscalateManually(ctx context.Context, input service.ManualEscalationInput) (*domain.TicketEscalation, error) {
	args := m.Called(ctx, input)
	esc, _ := args.Get(0).(*domain.TicketEscalation)
	return esc, args.Error(1)
}

func (m *mockEscalations) ResolveEscalation(ctx context.Context, id, note string) (*domain.TicketEscalation, error) {
	args := m.Called(ctx, id, note)
	esc, _ := args.Get(0).(*domain.TicketEscalation)
	return esc, args.Error(1)
}

func (m *mockEscalations) CancelEscalation(ctx context.Context, id, reason string) (*domain.TicketEscalation, error) {
	args := m.Called(ctx, id, reason)
	esc, _ := args.Get(0).(*domain.TicketEscalation)
	return esc, args.Error(1)
}

func (m *mockEscalations) GetEscalationStats(ctx context.Context) domain.EscalationStats {
	return m.Called(ctx).Get(0).(domain.EscalationStats)
}

func (m *mockEscalations) ListTicketEscalations(ctx context.Context, ticketID string) ([]domain.TicketEscalation, error) {
	args := m.Called(ctx, ticketID)
	list, _ := args.Get(0).([]domain.TicketEscalation)
	return list, args.Error(1)
}

func (m *mockEscalations) Rules() []domain.EscalationRule {
	return m.Called().Get(0).([]domain.EscalationRule)
}

type stubSession struct {
	info    *domain.SessionInfo
	renewOK bool
	signOut int
}

func (s *stubSession) CheckCurrentSession(context.Context) *domain.SessionInfo { return s.info }
func (s *stubSession) RenewSession(context.Context) bool { return s.renewOK }
func (s *stubSession) ForceSignOut(context.Context) { s.signOut++ }
func (s *stubSession) GetCurrentSession() *domain.SessionInfo { return s.info }
func (s *stubSession) GetSessionTimeRemaining() int { return 42 }
func (s *stubSession) IsSessionActive() bool { return s.info != nil }
func (s *stubSession) IsSessionExpiringSoon() bool { return false }
func (s *stubSession) IsSessionExpired() bool { return false }

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

type testServer struct {
	app         *fiber.App
	tokens      *auth.TokenManager
	escalations *mockEscalations
	session     *stubSession
	metrics     *observability.Metrics
}

func newTestServer(t *testing.T, postgres handlers.Pinger) *testServer {
	t.Helper()

	tokens := auth.NewTokenManager("router-test-secret", 60)
	metrics := observability.NewMetrics()
	escalations := &mockEscalations{}
	session := &stubSession{info: &domain.SessionInfo{ID: "sess-1", Status: domain.SessionActive}, renewOK: true}

	app := fiber.New()
	RegisterMiddlewares(app, zap.NewNop(), metrics, 0)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("admin-ops", "test", map[string]handlers.Pinger{"postgres": postgres}, session),
		Auth:           handlers.NewAuthHandler(service.NewAuthService(service.AuthDependencies{Tokens: tokens})),
		Session:        handlers.NewSessionHandler(session),
		Escalations:    handlers.NewEscalationsHandler(escalations),
		AuthMiddleware: auth.NewAuthMiddleware(tokens, nil),
		Metrics:        metrics,
	})

	return &testServer{app: app, tokens: tokens, escalations: escalations, session: session, metrics: metrics}
}

func (s *testServer) token(t *testing.T, role domain.UserRole) string {
	t.Helper()
	token, _, err := s.tokens.GenerateToken(domain.AuthUser{ID: "user-1", Email: "ops@example.com", Role: role}, "sess-1")
	require.NoError(t, err)
	return token
}

func (s *testServer) do(t *testing.T, method, path, token, body string) (*nethttp.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var decoded map[string]any
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &decoded))
	}
	return resp, decoded
}

func okPinger() handlers.Pinger {
	return pingerFunc(func(context.Context) error { return nil })
}

func TestHealthReadyReportsDependencies(t *testing.T) {
	srv := newTestServer(t, okPinger())
	resp, body := srv.do(t, nethttp.MethodGet, "/health/ready", "", "")
	assert.Equal(t, nethttp.StatusOK, resp.StatusCode)
	assert.Equal(t, "ready", body["status"])
	assert.Equal(t, "active", body["session"])

	down := newTestServer(t, pingerFunc(func(context.Context) error { return errors.New("connection refused") }))
	resp, body = down.do(t, nethttp.MethodGet, "/health/ready", "", "")
	assert.Equal(t, nethttp.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "DEPENDENCY_UNAVAILABLE", body["error"].(map[string]any)["code"])
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	srv := newTestServer(t, okPinger())
	resp, body := srv.do(t, nethttp.MethodGet, "/api/v1/escalations/stats", "", "")
	assert.Equal(t, nethttp.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "UNAUTHORIZED", body["error"].(map[string]any)["code"])
}

func TestPermissionsFollowRole(t *testing.T) {
	srv := newTestServer(t, okPinger())
	srv.escalations.On("GetEscalationStats", mock.Anything).Return(domain.NewEscalationStats())

	resp, _ := srv.do(t, nethttp.MethodGet, "/api/v1/escalations/stats", srv.token(t, domain.RoleUser), "")
	assert.Equal(t, nethttp.StatusOK, resp.StatusCode)

	resp, body := srv.do(t, nethttp.MethodPost, "/api/v1/escalations/check", srv.token(t, domain.RoleModerator), "")
	assert.Equal(t, nethttp.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "FORBIDDEN", body["error"].(map[string]any)["code"])

	resp, _ = srv.do(t, nethttp.MethodPost, "/api/v1/session/renew", srv.token(t, domain.RoleModerator), "")
	assert.Equal(t, nethttp.StatusForbidden, resp.StatusCode)
}

func TestCheckEscalationsReturnsPassResult(t *testing.T) {
	srv := newTestServer(t, okPinger())
	srv.escalations.On("CheckEscalations", mock.Anything).Return(service.PassResult{TicketsScanned: 3, EscalationsCreated: 1})

	resp, body := srv.do(t, nethttp.MethodPost, "/api/v1/escalations/check", srv.token(t, domain.RoleAdmin), "")
	require.Equal(t, nethttp.StatusOK, resp.StatusCode)
	data := body["data"].(map[string]any)
	assert.EqualValues(t, 3, data["tickets_scanned"])
	assert.EqualValues(t, 1, data["escalations_created"])
}

func TestManualEscalationPassesActorAndActions(t *testing.T) {
	srv := newTestServer(t, okPinger())
	srv.escalations.On("EscalateManually", mock.Anything, mock.MatchedBy(func(in service.ManualEscalationInput) bool {
		return in.TicketID == "t-1" &&
			in.ActorID == "user-1" &&
			in.Reason == "cliente VIP" &&
			len(in.Actions) == 1 &&
			in.Actions[0].Type == domain.ActionNotify
	})).Return(&domain.TicketEscalation{ID: "esc-1", TicketID: "t-1", Status: domain.EscalationActive}, nil)

	body := `{"reason":" cliente VIP ","actions":[{"type":"notify","parameters":{"recipients":["lead"]}}]}`
	resp, decoded := srv.do(t, nethttp.MethodPost, "/api/v1/tickets/t-1/escalations", srv.token(t, domain.RoleModerator), body)
	require.Equal(t, nethttp.StatusCreated, resp.StatusCode)
	assert.Equal(t, "esc-1", decoded["data"].(map[string]any)["id"])
	srv.escalations.AssertExpectations(t)
}

func TestManualEscalationConflict(t *testing.T) {
	srv := newTestServer(t, okPinger())
	srv.escalations.On("EscalateManually", mock.Anything, mock.Anything).
		Return(nil, apperrors.NewConflict("ticket already has an active manual escalation", nil))

	resp, body := srv.do(t, nethttp.MethodPost, "/api/v1/tickets/t-1/escalations", srv.token(t, domain.RoleAdmin), "")
	assert.Equal(t, nethttp.StatusConflict, resp.StatusCode)
	assert.Equal(t, "CONFLICT", body["error"].(map[string]any)["code"])
}

func TestResolveAndCancelEscalation(t *testing.T) {
	srv := newTestServer(t, okPinger())
	srv.escalations.On("ResolveEscalation", mock.Anything, "esc-1", "hecho").
		Return(&domain.TicketEscalation{ID: "esc-1", Status: domain.EscalationResolved}, nil)
	srv.escalations.On("CancelEscalation", mock.Anything, "missing", "").
		Return(nil, apperrors.NewNotFound("escalation", nil))

	token := srv.token(t, domain.RoleAdmin)
	resp, body := srv.do(t, nethttp.MethodPost, "/api/v1/escalations/esc-1/resolve", token, `{"note":"hecho"}`)
	require.Equal(t, nethttp.StatusOK, resp.StatusCode)
	assert.Equal(t, "resolved", body["data"].(map[string]any)["status"])

	resp, _ = srv.do(t, nethttp.MethodPost, "/api/v1/escalations/missing/cancel", token, "")
	assert.Equal(t, nethttp.StatusNotFound, resp.StatusCode)
}

func TestSessionEndpoints(t *testing.T) {
	srv := newTestServer(t, okPinger())
	token := srv.token(t, domain.RoleAdmin)

	resp, body := srv.do(t, nethttp.MethodGet, "/api/v1/session", token, "")
	require.Equal(t, nethttp.StatusOK, resp.StatusCode)
	data := body["data"].(map[string]any)
	assert.EqualValues(t, 42, data["minutes_remaining"])
	assert.Equal(t, "sess-1", data["session"].(map[string]any)["id"])

	srv.session.renewOK = false
	resp, body = srv.do(t, nethttp.MethodPost, "/api/v1/session/renew", token, "")
	assert.Equal(t, nethttp.StatusConflict, resp.StatusCode)
	assert.Equal(t, "SESSION_RENEW_FAILED", body["error"].(map[string]any)["code"])

	resp, _ = srv.do(t, nethttp.MethodPost, "/api/v1/session/sign-out", token, "")
	assert.Equal(t, nethttp.StatusNoContent, resp.StatusCode)
	assert.Equal(t, 1, srv.session.signOut)
}

func TestUnknownRouteKeepsStatus(t *testing.T) {
	srv := newTestServer(t, okPinger())
	resp, body := srv.do(t, nethttp.MethodGet, "/nope", "", "")
	assert.Equal(t, nethttp.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", body["error"].(map[string]any)["code"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, okPinger())
	srv.metrics.RecordSwallowed("session_manager", "record_session")

	req := httptest.NewRequest(nethttp.MethodGet, "/metrics", nil)
	resp, err := srv.app.Test(req, -1)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, nethttp.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), "admin_ops_swallowed_errors_total")
}
