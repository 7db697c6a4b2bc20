package domain

import "time"

// TaskStatus enumerates follow-up task states.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusCompleted TaskStatus = "completed"
)

// Task is a follow-up item linked to a ticket.
type Task struct {
	ID          string
	TicketID    string
	Title       string
	Description string
	AssignedTo  *string
	DueDate     time.Time
	Status      TaskStatus
	CreatedAt   time.Time
}
