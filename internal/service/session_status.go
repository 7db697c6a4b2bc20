package service

import (
	"time"

	"github.com/spec-kit/admin-ops/internal/domain"
)

// CalculateSessionStatus derives the status of a session expiring at expiresAt.
func CalculateSessionStatus(expiresAt, now time.Time, warning time.Duration) domain.SessionStatus {
	remaining := expiresAt.Sub(now)
	switch {
	case remaining <= 0:
		return domain.SessionExpired
	case remaining <= warning:
		return domain.SessionExpiringSoon
	default:
		return domain.SessionActive
	}
}

// IsRenewable reports whether the session is alive and inside the renewal window.
func IsRenewable(expiresAt, now time.Time, renewal time.Duration) bool {
	remaining := expiresAt.Sub(now)
	return remaining > 0 && remaining <= renewal
}

// minutesRemaining floors at zero.
func minutesRemaining(expiresAt, now time.Time) int {
	remaining := expiresAt.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int(remaining / time.Minute)
}
