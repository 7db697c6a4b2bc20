package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/admin-ops/internal/config"
	"github.com/spec-kit/admin-ops/internal/domain"
	"github.com/spec-kit/admin-ops/internal/events"
	"github.com/spec-kit/admin-ops/internal/observability"
)

// Publisher is the subset of the Redis client used for fan-out.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// NotificationService delivers notifications on a Redis channel and reacts to
// escalation events.
type NotificationService struct {
	dispatcher events.Dispatcher
	publisher  Publisher
	metrics    *observability.Metrics
	logger     *zap.Logger
	cfg        config.NotificationConfig
}

// NewNotificationService creates the service. A nil publisher only logs.
func NewNotificationService(dispatcher events.Dispatcher, publisher Publisher, metrics *observability.Metrics, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		publisher:  publisher,
		metrics:    metrics,
		logger:     logger.Named("notification"),
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes the escalation notifiers and returns the event
// types it now listens to.
func (n *NotificationService) RegisterHandlers() []events.EventType {
	if n.dispatcher == nil {
		return nil
	}
	n.dispatcher.Subscribe(events.EventEscalationCreated, "notify_escalation_created", n.handleEscalationCreated)
	n.dispatcher.Subscribe(events.EventEscalationResolved, "notify_escalation_closed", n.handleEscalationClosed)
	n.dispatcher.Subscribe(events.EventEscalationCancelled, "notify_escalation_closed", n.handleEscalationClosed)
	return []events.EventType{events.EventEscalationCreated, events.EventEscalationResolved, events.EventEscalationCancelled}
}

// SendNotification publishes the notification as JSON on the configured channel.
func (n *NotificationService) SendNotification(ctx context.Context, notification domain.Notification) error {
	if len(notification.Recipients) == 0 {
		return errors.New("notification has no recipients")
	}
	n.logger.Info("notification",
		zap.String("type", notification.Type),
		zap.String("title", notification.Title),
		zap.Strings("recipients", notification.Recipients))

	if n.publisher == nil {
		return nil
	}
	payload, err := json.Marshal(notification)
	if err != nil {
		return err
	}
	return n.publisher.Publish(ctx, n.channel(), payload).Err()
}

// Prompt delivers a session prompt to its owner. Failures are counted, not returned.
func (n *NotificationService) Prompt(ctx context.Context, userID string, prompt SessionPrompt) {
	err := n.SendNotification(ctx, domain.Notification{
		Type:       "session_prompt",
		Title:      prompt.Title,
		Message:    prompt.Message,
		Recipients: []string{userID},
		Metadata:   map[string]any{"action": prompt.Action},
	})
	if err != nil {
		n.logger.Warn("session prompt not delivered", zap.String("user_id", userID), zap.Error(err))
		n.metrics.RecordSwallowed("notification", "prompt")
	}
}

func (n *NotificationService) handleEscalationCreated(_ context.Context, event events.Event) error {
	n.logger.Info("EscalationCreated", zap.String("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	return nil
}

func (n *NotificationService) handleEscalationClosed(ctx context.Context, event events.Event) error {
	n.logger.Info("EscalationClosed",
		zap.String("ticket_id", event.TicketID),
		zap.String("event_type", string(event.Type)),
		zap.Any("payload", event.Payload))

	payload, ok := event.Payload.(events.EscalationClosedPayload)
	if !ok {
		return nil
	}
	title := "Escalación resuelta"
	if payload.Status == domain.EscalationCancelled {
		title = "Escalación cancelada"
	}
	return n.SendNotification(ctx, domain.Notification{
		Type:       string(event.Type),
		Title:      title,
		Message:    payload.Note,
		Recipients: n.cfg.DefaultRecipients,
		Metadata: map[string]any{
			"ticket_id":     event.TicketID,
			"escalation_id": payload.EscalationID,
		},
	})
}

func (n *NotificationService) channel() string {
	if strings.TrimSpace(n.cfg.Channel) == "" {
		return "notifications"
	}
	return n.cfg.Channel
}

// LoggingEmailSender is the default EmailSender: it records the email in the
// log and reports success.
type LoggingEmailSender struct {
	logger *zap.Logger
	from   string
}

// NewLoggingEmailSender builds the sender.
func NewLoggingEmailSender(logger *zap.Logger, from string) *LoggingEmailSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingEmailSender{logger: logger.Named("email"), from: from}
}

// SendEmail logs the email.
func (s *LoggingEmailSender) SendEmail(_ context.Context, email domain.Email) error {
	if strings.TrimSpace(s.from) == "" {
		return errors.New("email sender has no from address")
	}
	s.logger.Info("sendEmail",
		zap.String("from", s.from),
		zap.String("template", email.Template),
		zap.Strings("recipients", email.Recipients))
	return nil
}
