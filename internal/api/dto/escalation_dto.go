package dto

import (
	"github.com/spec-kit/admin-ops/internal/domain"
)

// ActionRequest is one action of a manual escalation.
type ActionRequest struct {
	Type       domain.ActionType `json:"type"`
	Parameters map[string]any    `json:"parameters"`
}

// ManualEscalationRequest payload for POST /tickets/:id/escalations.
type ManualEscalationRequest struct {
	Reason      string          `json:"reason"`
	Notes       string          `json:"notes"`
	EscalatedTo *string         `json:"escalated_to"`
	Actions     []ActionRequest `json:"actions"`
}

// ActionConfigs converts the requested actions.
func (r ManualEscalationRequest) ActionConfigs() []domain.ActionConfig {
	out := make([]domain.ActionConfig, 0, len(r.Actions))
	for _, a := range r.Actions {
		out = append(out, domain.ActionConfig{Type: a.Type, Parameters: a.Parameters})
	}
	return out
}

// CloseEscalationRequest payload for resolve and cancel.
type CloseEscalationRequest struct {
	Note string `json:"note"`
}

// SessionResponse wraps the tracked session with its remaining lifetime.
type SessionResponse struct {
	Session          *domain.SessionInfo `json:"session"`
	MinutesRemaining int                 `json:"minutes_remaining"`
}
