package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/admin-ops/internal/api/dto"
	"github.com/spec-kit/admin-ops/internal/auth"
	"github.com/spec-kit/admin-ops/internal/domain"
	"github.com/spec-kit/admin-ops/internal/service"
	apperrors "github.com/spec-kit/admin-ops/pkg/util/errorutil"
)

// EscalationOperator is the escalation service surface used by the API.
type EscalationOperator interface {
	CheckEscalations(ctx context.Context) service.PassResult
	EscalateManually(ctx context.Context, input service.ManualEscalationInput) (*domain.TicketEscalation, error)
	ResolveEscalation(ctx context.Context, id, note string) (*domain.TicketEscalation, error)
	CancelEscalation(ctx context.Context, id, reason string) (*domain.TicketEscalation, error)
	GetEscalationStats(ctx context.Context) domain.EscalationStats
	ListTicketEscalations(ctx context.Context, ticketID string) ([]domain.TicketEscalation, error)
	Rules() []domain.EscalationRule
}

// EscalationsHandler exposes escalation endpoints.
type EscalationsHandler struct {
	escalations EscalationOperator
}

// NewEscalationsHandler constructs handler.
func NewEscalationsHandler(escalations EscalationOperator) *EscalationsHandler {
	return &EscalationsHandler{escalations: escalations}
}

// Check handles POST /api/v1/escalations/check and runs one pass synchronously.
func (h *EscalationsHandler) Check(c *fiber.Ctx) error {
	result := h.escalations.CheckEscalations(c.UserContext())
	return c.JSON(fiber.Map{"data": result})
}

// Stats handles GET /api/v1/escalations/stats.
func (h *EscalationsHandler) Stats(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": h.escalations.GetEscalationStats(c.UserContext())})
}

// Rules handles GET /api/v1/escalations/rules.
func (h *EscalationsHandler) Rules(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": h.escalations.Rules()})
}

// ListForTicket handles GET /api/v1/tickets/:id/escalations.
func (h *EscalationsHandler) ListForTicket(c *fiber.Ctx) error {
	list, err := h.escalations.ListTicketEscalations(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": list})
}

// Escalate handles POST /api/v1/tickets/:id/escalations.
func (h *EscalationsHandler) Escalate(c *fiber.Ctx) error {
	var req dto.ManualEscalationRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
	}

	input := service.ManualEscalationInput{
		TicketID:    c.Params("id"),
		Reason:      strings.TrimSpace(req.Reason),
		Notes:       req.Notes,
		EscalatedTo: req.EscalatedTo,
		Actions:     req.ActionConfigs(),
	}
	if principal, ok := auth.PrincipalFromContext(c); ok {
		input.ActorID = principal.UserID
	}

	escalation, err := h.escalations.EscalateManually(c.UserContext(), input)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": escalation})
}

// Resolve handles POST /api/v1/escalations/:id/resolve.
func (h *EscalationsHandler) Resolve(c *fiber.Ctx) error {
	note, err := closeNote(c)
	if err != nil {
		return err
	}
	escalation, err := h.escalations.ResolveEscalation(c.UserContext(), c.Params("id"), note)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": escalation})
}

// Cancel handles POST /api/v1/escalations/:id/cancel.
func (h *EscalationsHandler) Cancel(c *fiber.Ctx) error {
	note, err := closeNote(c)
	if err != nil {
		return err
	}
	escalation, err := h.escalations.CancelEscalation(c.UserContext(), c.Params("id"), note)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": escalation})
}

func closeNote(c *fiber.Ctx) (string, error) {
	if len(c.Body()) == 0 {
		return "", nil
	}
	var req dto.CloseEscalationRequest
	if err := c.BodyParser(&req); err != nil {
		return "", apperrors.NewValidationError("invalid payload", nil)
	}
	return strings.TrimSpace(req.Note), nil
}
