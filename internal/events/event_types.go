package events

import (
	"time"

	"github.com/spec-kit/admin-ops/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventEscalationCreated   EventType = "escalation_created"
	EventEscalationResolved  EventType = "escalation_resolved"
	EventEscalationCancelled EventType = "escalation_cancelled"
)

// ActorType tells who caused an event.
type ActorType string

const (
	ActorSystem ActorType = "system"
	ActorUser   ActorType = "user"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Type   ActorType `json:"type"`
	UserID *string   `json:"user_id,omitempty"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	TicketID  string    `json:"ticket_id"`
	Actor     Actor     `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// EscalationCreatedPayload payload.
type EscalationCreatedPayload struct {
	EscalationID string             `json:"escalation_id"`
	RuleID       *string            `json:"rule_id,omitempty"`
	TriggerType  domain.TriggerType `json:"trigger_type"`
	Reason       string             `json:"reason"`
	EscalatedTo  *string            `json:"escalated_to,omitempty"`
	Level        int                `json:"level"`
	FailedSteps  int                `json:"failed_steps"`
}

// EscalationClosedPayload is shared by the resolved and cancelled events.
type EscalationClosedPayload struct {
	EscalationID string                  `json:"escalation_id"`
	Status       domain.EscalationStatus `json:"status"`
	Note         string                  `json:"note,omitempty"`
}
