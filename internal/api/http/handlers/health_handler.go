package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Pinger is a dependency checked by the readiness endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SessionReporter reports whether the process holds a usable session.
type SessionReporter interface {
	IsSessionActive() bool
	IsSessionExpiringSoon() bool
	IsSessionExpired() bool
}

// HealthHandler responds to liveness and readiness checks.
type HealthHandler struct {
	serviceName  string
	version      string
	dependencies map[string]Pinger
	session      SessionReporter
}

// NewHealthHandler returns a new handler instance. session may be nil when
// the process runs without a service account.
func NewHealthHandler(serviceName, version string, dependencies map[string]Pinger, session SessionReporter) *HealthHandler {
	return &HealthHandler{serviceName: serviceName, version: version, dependencies: dependencies, session: session}
}

// Live reports service liveness.
func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "alive",
		"service": h.serviceName,
		"version": h.version,
	})
}

// Ready reports service readiness by checking dependencies. The session state
// is reported but does not affect readiness.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	depStatus := fiber.Map{}
	ready := true

	for name, dep := range h.dependencies {
		if err := dep.Ping(ctx); err != nil {
			depStatus[name] = err.Error()
			ready = false
			continue
		}
		depStatus[name] = "ok"
	}

	if ready {
		return c.JSON(fiber.Map{
			"status":       "ready",
			"dependencies": depStatus,
			"session":      h.sessionState(),
		})
	}

	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "DEPENDENCY_UNAVAILABLE",
			"message": "one or more dependencies unavailable",
			"details": depStatus,
		},
	})
}

func (h *HealthHandler) sessionState() string {
	switch {
	case h.session == nil:
		return "disabled"
	case h.session.IsSessionActive():
		return "active"
	case h.session.IsSessionExpiringSoon():
		return "expiring_soon"
	case h.session.IsSessionExpired():
		return "expired"
	default:
		return "none"
	}
}
