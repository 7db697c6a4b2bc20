package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusNew        TicketStatus = "new"
	TicketStatusInProgress TicketStatus = "in_progress"
	TicketStatusWaiting    TicketStatus = "waiting"
	TicketStatusResolved   TicketStatus = "resolved"
	TicketStatusClosed     TicketStatus = "closed"
)

// OpenTicketStatuses are the statuses scanned for escalation.
var OpenTicketStatuses = []TicketStatus{TicketStatusNew, TicketStatusInProgress, TicketStatusWaiting}

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityLow      TicketPriority = "low"
	TicketPriorityMedium   TicketPriority = "medium"
	TicketPriorityHigh     TicketPriority = "high"
	TicketPriorityCritical TicketPriority = "critical"
)

// Valid reports whether p is an accepted priority.
func (p TicketPriority) Valid() bool {
	switch p {
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh, TicketPriorityCritical:
		return true
	}
	return false
}

// Ticket is the stored support ticket.
type Ticket struct {
	ID              string
	Title           string
	Priority        TicketPriority
	Status          TicketStatus
	Stage           string
	AssignedTo      *string
	AssignedTeam    *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	StageChangedAt  *time.Time
	FirstResponseAt *time.Time
	EscalationCount int
	CustomFields    map[string]any
}

// TicketData is the read-only snapshot a rule evaluation works on.
// Durations are whole minutes.
type TicketData struct {
	ID                string
	Title             string
	Priority          TicketPriority
	Status            TicketStatus
	Stage             string
	AssignedTo        string
	AssignedTeam      string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	TimeInStage       int
	TimeSinceCreation int
	ResponseTime      int
	EscalationCount   int
	CustomFields      map[string]any
}

// NewTicketData derives the evaluation snapshot of t at now.
func NewTicketData(t Ticket, now time.Time) TicketData {
	stageStart := t.CreatedAt
	if t.StageChangedAt != nil {
		stageStart = *t.StageChangedAt
	}
	responseEnd := now
	if t.FirstResponseAt != nil {
		responseEnd = *t.FirstResponseAt
	}
	data := TicketData{
		ID:                t.ID,
		Title:             t.Title,
		Priority:          t.Priority,
		Status:            t.Status,
		Stage:             t.Stage,
		CreatedAt:         t.CreatedAt,
		UpdatedAt:         t.UpdatedAt,
		TimeInStage:       minutesBetween(stageStart, now),
		TimeSinceCreation: minutesBetween(t.CreatedAt, now),
		ResponseTime:      minutesBetween(t.CreatedAt, responseEnd),
		EscalationCount:   t.EscalationCount,
		CustomFields:      t.CustomFields,
	}
	if t.AssignedTo != nil {
		data.AssignedTo = *t.AssignedTo
	}
	if t.AssignedTeam != nil {
		data.AssignedTeam = *t.AssignedTeam
	}
	return data
}

// Field resolves a rule condition field name. Unknown names fall back to
// custom fields; the second result is false when nothing matches.
func (d TicketData) Field(name string) (any, bool) {
	switch name {
	case "id":
		return d.ID, true
	case "title":
		return d.Title, true
	case "priority":
		return string(d.Priority), true
	case "status":
		return string(d.Status), true
	case "stage":
		return d.Stage, true
	case "assignedTo", "assigned_to":
		return d.AssignedTo, true
	case "assignedTeam", "assigned_team":
		return d.AssignedTeam, true
	case "timeInStage", "time_in_stage":
		return d.TimeInStage, true
	case "timeSinceCreation", "time_since_creation":
		return d.TimeSinceCreation, true
	case "responseTime", "response_time":
		return d.ResponseTime, true
	case "escalationCount", "escalation_count":
		return d.EscalationCount, true
	}
	v, ok := d.CustomFields[name]
	return v, ok
}

func minutesBetween(from, to time.Time) int {
	if from.IsZero() || to.Before(from) {
		return 0
	}
	return int(to.Sub(from) / time.Minute)
}
