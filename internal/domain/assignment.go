package domain

import "time"

// TicketAssignment is an immutable assignment history entry.
type TicketAssignment struct {
	ID           string
	TicketID     string
	AssignedTo   *string
	AssignedTeam *string
	AssignedBy   string
	Reason       string
	CreatedAt    time.Time
}
