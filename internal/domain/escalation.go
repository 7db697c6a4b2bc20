package domain

import "time"

// TriggerType is the category of condition behind an escalation.
type TriggerType string

const (
	TriggerTime     TriggerType = "time"
	TriggerPriority TriggerType = "priority"
	TriggerStage    TriggerType = "stage"
	TriggerCustom   TriggerType = "custom"
	TriggerManual   TriggerType = "manual"
)

// Valid reports whether t is a known trigger type.
func (t TriggerType) Valid() bool {
	switch t {
	case TriggerTime, TriggerPriority, TriggerStage, TriggerCustom, TriggerManual:
		return true
	}
	return false
}

// EscalationStatus moves active -> resolved | cancelled and never back.
type EscalationStatus string

const (
	EscalationActive    EscalationStatus = "active"
	EscalationResolved  EscalationStatus = "resolved"
	EscalationCancelled EscalationStatus = "cancelled"
)

// ActionType names a side-effecting escalation step.
type ActionType string

const (
	ActionNotify         ActionType = "notify"
	ActionAssign         ActionType = "assign"
	ActionUpdateStage    ActionType = "update_stage"
	ActionUpdatePriority ActionType = "update_priority"
	ActionCreateTask     ActionType = "create_task"
	ActionSendEmail      ActionType = "send_email"
)

// ActionTypes lists every action kind; each must have a handler.
var ActionTypes = []ActionType{
	ActionNotify,
	ActionAssign,
	ActionUpdateStage,
	ActionUpdatePriority,
	ActionCreateTask,
	ActionSendEmail,
}

// Valid reports whether a is one of ActionTypes.
func (a ActionType) Valid() bool {
	for _, t := range ActionTypes {
		if t == a {
			return true
		}
	}
	return false
}

// ActionStatus is the outcome of one action.
type ActionStatus string

const (
	ActionPending   ActionStatus = "pending"
	ActionCompleted ActionStatus = "completed"
	ActionFailed    ActionStatus = "failed"
)

// EscalationAction is appended, never removed, to its escalation.
type EscalationAction struct {
	ID         string         `json:"id"`
	Type       ActionType     `json:"type"`
	Status     ActionStatus   `json:"status"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Result     map[string]any `json:"result,omitempty"`
	ExecutedAt time.Time      `json:"executed_at"`
}

// TicketEscalation records one escalation applied to one ticket.
type TicketEscalation struct {
	ID            string             `json:"id"`
	TicketID      string             `json:"ticket_id"`
	RuleID        *string            `json:"rule_id,omitempty"`
	EscalatedFrom *string            `json:"escalated_from,omitempty"`
	EscalatedTo   *string            `json:"escalated_to,omitempty"`
	Reason        string             `json:"reason"`
	Type          TriggerType        `json:"type"`
	EscalatedAt   time.Time          `json:"escalated_at"`
	ResolvedAt    *time.Time         `json:"resolved_at,omitempty"`
	Notes         string             `json:"notes,omitempty"`
	Actions       []EscalationAction `json:"actions"`
	Status        EscalationStatus   `json:"status"`
}

// EscalationStats aggregates escalation records.
type EscalationStats struct {
	Total     int            `json:"total"`
	Active    int            `json:"active"`
	Resolved  int            `json:"resolved"`
	Cancelled int            `json:"cancelled"`
	ByType    map[string]int `json:"by_type"`
	ByReason  map[string]int `json:"by_reason"`
}

// NewEscalationStats returns stats with initialized maps.
func NewEscalationStats() EscalationStats {
	return EscalationStats{ByType: map[string]int{}, ByReason: map[string]int{}}
}
