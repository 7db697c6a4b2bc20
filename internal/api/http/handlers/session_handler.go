package handlers

import (
	"context"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/admin-ops/internal/api/dto"
	"github.com/spec-kit/admin-ops/internal/domain"
	apperrors "github.com/spec-kit/admin-ops/pkg/util/errorutil"
)

// SessionController is the part of the session manager exposed over HTTP.
type SessionController interface {
	CheckCurrentSession(ctx context.Context) *domain.SessionInfo
	RenewSession(ctx context.Context) bool
	ForceSignOut(ctx context.Context)
	GetCurrentSession() *domain.SessionInfo
	GetSessionTimeRemaining() int
}

// SessionHandler reports and controls the process session.
type SessionHandler struct {
	sessions SessionController
}

// NewSessionHandler constructs handler.
func NewSessionHandler(sessions SessionController) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// Current handles GET /api/v1/session.
func (h *SessionHandler) Current(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": h.snapshot()})
}

// Check handles POST /api/v1/session/check.
func (h *SessionHandler) Check(c *fiber.Ctx) error {
	h.sessions.CheckCurrentSession(c.UserContext())
	return c.JSON(fiber.Map{"data": h.snapshot()})
}

// Renew handles POST /api/v1/session/renew.
func (h *SessionHandler) Renew(c *fiber.Ctx) error {
	if !h.sessions.RenewSession(c.UserContext()) {
		return apperrors.NewDomainError("SESSION_RENEW_FAILED", "session could not be renewed", http.StatusConflict, nil)
	}
	return c.JSON(fiber.Map{"data": h.snapshot()})
}

// SignOut handles POST /api/v1/session/sign-out.
func (h *SessionHandler) SignOut(c *fiber.Ctx) error {
	h.sessions.ForceSignOut(c.UserContext())
	return c.SendStatus(http.StatusNoContent)
}

func (h *SessionHandler) snapshot() dto.SessionResponse {
	return dto.SessionResponse{
		Session:          h.sessions.GetCurrentSession(),
		MinutesRemaining: h.sessions.GetSessionTimeRemaining(),
	}
}
