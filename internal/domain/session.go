package domain

import "time"

// SessionStatus is derived from the expiry time on every read.
type SessionStatus string

const (
	SessionActive       SessionStatus = "active"
	SessionExpiringSoon SessionStatus = "expiring_soon"
	SessionExpired      SessionStatus = "expired"
	SessionInvalid      SessionStatus = "invalid"
)

// SessionInfo is the process view of the authenticated session.
type SessionInfo struct {
	ID           string        `json:"id"`
	AccessToken  string        `json:"-"`
	UserID       string        `json:"user_id"`
	Email        string        `json:"email"`
	Role         UserRole      `json:"role"`
	CreatedAt    time.Time     `json:"created_at"`
	ExpiresAt    time.Time     `json:"expires_at"`
	LastActivity time.Time     `json:"last_activity"`
	Status       SessionStatus `json:"status"`
	IsRenewable  bool          `json:"is_renewable"`
}

// SessionEventType names a session lifecycle transition.
type SessionEventType string

const (
	SessionEventExpiringSoon SessionEventType = "expiring_soon"
	SessionEventExpired      SessionEventType = "expired"
	SessionEventRenewed      SessionEventType = "renewed"
	SessionEventInvalid      SessionEventType = "invalid"
)

// SessionEvent is an immutable notification of a lifecycle transition.
type SessionEvent struct {
	Type      SessionEventType `json:"type"`
	Message   string           `json:"message"`
	Timestamp time.Time        `json:"timestamp"`
	Session   *SessionInfo     `json:"session,omitempty"`
}

// SessionRecordStatus is the stored state of a user_sessions row.
type SessionRecordStatus string

const (
	SessionRecordActive     SessionRecordStatus = "active"
	SessionRecordTerminated SessionRecordStatus = "terminated"
)

// SessionRecord is the observability row kept in user_sessions.
type SessionRecord struct {
	ID           string
	UserID       string
	Email        string
	Role         UserRole
	CreatedAt    time.Time
	ExpiresAt    time.Time
	LastActivity time.Time
	Status       SessionRecordStatus
	TerminatedAt *time.Time
}
