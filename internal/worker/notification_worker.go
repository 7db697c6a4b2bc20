package worker

import (
	"go.uber.org/zap"

	"github.com/spec-kit/admin-ops/internal/events"
)

// NotificationRegistrar hooks escalation notifiers onto the dispatcher.
type NotificationRegistrar interface {
	RegisterHandlers() []events.EventType
}

// StartNotificationWorker wires escalation notifications and reports the
// event types now covered.
func StartNotificationWorker(registrar NotificationRegistrar, logger *zap.Logger) []events.EventType {
	if registrar == nil {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	registered := registrar.RegisterHandlers()
	names := make([]string, 0, len(registered))
	for _, eventType := range registered {
		names = append(names, string(eventType))
	}
	if len(names) == 0 {
		logger.Warn("no escalation notifications registered")
	} else {
		logger.Info("escalation notifications registered", zap.Strings("events", names))
	}
	return registered
}
