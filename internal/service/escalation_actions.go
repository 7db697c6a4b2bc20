package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"

	"github.com/spec-kit/admin-ops/internal/domain"
)

// AssignmentReason is stored on assignment history rows written by escalations.
const AssignmentReason = "Reasignación por escalación"

const (
	defaultEmailTemplate = "escalation_notification"
	defaultTaskDue       = 24 * time.Hour
	systemActor          = "system"
)

var errInvalidActionParams = errors.New("invalid action parameters")

// NotificationDispatcher delivers in-app notifications.
type NotificationDispatcher interface {
	SendNotification(ctx context.Context, notification domain.Notification) error
}

// EmailSender hands emails to an external delivery service.
type EmailSender interface {
	SendEmail(ctx context.Context, email domain.Email) error
}

type actionInput struct {
	ticket     domain.TicketData
	escalation *domain.TicketEscalation
	level      int
	params     map[string]any
}

type actionHandler func(ctx context.Context, in actionInput) (map[string]any, error)

type notifyParams struct {
	Recipients []string `mapstructure:"recipients"`
	Title      string   `mapstructure:"title"`
	Message    string   `mapstructure:"message"`
}

type assignParams struct {
	UserID string `mapstructure:"user_id"`
	TeamID string `mapstructure:"team_id"`
}

type updateStageParams struct {
	Stage string `mapstructure:"stage"`
}

type updatePriorityParams struct {
	Priority string `mapstructure:"priority"`
}

type createTaskParams struct {
	Title       string    `mapstructure:"title"`
	Description string    `mapstructure:"description"`
	AssignedTo  string    `mapstructure:"assigned_to"`
	DueDate     time.Time `mapstructure:"due_date"`
	DueInHours  int       `mapstructure:"due_in_hours"`
}

type sendEmailParams struct {
	Template   string         `mapstructure:"template"`
	Recipients []string       `mapstructure:"recipients"`
	Data       map[string]any `mapstructure:"data"`
}

// newActionHandlers maps every domain.ActionType to its handler.
func (s *EscalationService) newActionHandlers() map[domain.ActionType]actionHandler {
	return map[domain.ActionType]actionHandler{
		domain.ActionNotify:         s.executeNotify,
		domain.ActionAssign:         s.executeAssign,
		domain.ActionUpdateStage:    s.executeUpdateStage,
		domain.ActionUpdatePriority: s.executeUpdatePriority,
		domain.ActionCreateTask:     s.executeCreateTask,
		domain.ActionSendEmail:      s.executeSendEmail,
	}
}

// executeAction runs one configured action and returns its recorded outcome.
func (s *EscalationService) executeAction(ctx context.Context, in actionInput, cfg domain.ActionConfig) domain.EscalationAction {
	action := domain.EscalationAction{
		ID:         uuid.NewString(),
		Type:       cfg.Type,
		Status:     domain.ActionPending,
		Parameters: cfg.Parameters,
		ExecutedAt: s.now(),
	}

	var (
		result map[string]any
		err    error
	)
	if handler, ok := s.handlers[cfg.Type]; ok {
		in.params = cfg.Parameters
		result, err = handler(ctx, in)
	} else {
		err = fmt.Errorf("unknown action type %q", cfg.Type)
	}

	if err != nil {
		action.Status = domain.ActionFailed
		action.Result = map[string]any{"error": err.Error()}
		s.logger.Warn("escalation action failed",
			zap.String("ticket_id", in.ticket.ID),
			zap.String("action", string(cfg.Type)),
			zap.Error(err))
	} else {
		action.Status = domain.ActionCompleted
		action.Result = result
	}
	s.metrics.RecordEscalationAction(string(cfg.Type), string(action.Status))
	return action
}

func (s *EscalationService) executeNotify(ctx context.Context, in actionInput) (map[string]any, error) {
	var p notifyParams
	if err := decodeParams(in.params, &p); err != nil {
		return nil, err
	}
	if s.notifier == nil {
		return nil, errors.New("notification dispatcher not configured")
	}

	recipients := p.Recipients
	if len(recipients) == 0 {
		recipients = s.defaultRecipients
	}
	title := p.Title
	if title == "" {
		title = "Ticket escalado"
	}
	message := p.Message
	if message == "" {
		message = "El ticket {{ticket_title}} ha sido escalado (nivel {{level}}). Motivo: {{reason}}"
	}
	message = renderTemplate(message, in)

	err := s.notifier.SendNotification(ctx, domain.Notification{
		Type:       "escalation",
		Title:      title,
		Message:    message,
		Recipients: recipients,
		Metadata: map[string]any{
			"ticket_id":     in.ticket.ID,
			"escalation_id": in.escalation.ID,
			"level":         in.level,
		},
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"recipients": recipients, "message": message}, nil
}

func (s *EscalationService) executeAssign(ctx context.Context, in actionInput) (map[string]any, error) {
	var p assignParams
	if err := decodeParams(in.params, &p); err != nil {
		return nil, err
	}
	userID := optionalString(p.UserID)
	teamID := optionalString(p.TeamID)
	if userID == nil && teamID == nil {
		return nil, fmt.Errorf("%w: user_id or team_id required", errInvalidActionParams)
	}

	if err := s.tickets.Assign(ctx, in.ticket.ID, userID, teamID); err != nil {
		return nil, err
	}
	if err := s.assignments.Create(ctx, &domain.TicketAssignment{
		TicketID:     in.ticket.ID,
		AssignedTo:   userID,
		AssignedTeam: teamID,
		AssignedBy:   systemActor,
		Reason:       AssignmentReason,
	}); err != nil {
		return nil, err
	}
	return map[string]any{"user_id": p.UserID, "team_id": p.TeamID}, nil
}

func (s *EscalationService) executeUpdateStage(ctx context.Context, in actionInput) (map[string]any, error) {
	var p updateStageParams
	if err := decodeParams(in.params, &p); err != nil {
		return nil, err
	}
	stage := strings.TrimSpace(p.Stage)
	if stage == "" {
		return nil, fmt.Errorf("%w: stage required", errInvalidActionParams)
	}
	if err := s.tickets.UpdateStage(ctx, in.ticket.ID, stage); err != nil {
		return nil, err
	}
	return map[string]any{"stage": stage, "previous_stage": in.ticket.Stage}, nil
}

func (s *EscalationService) executeUpdatePriority(ctx context.Context, in actionInput) (map[string]any, error) {
	var p updatePriorityParams
	if err := decodeParams(in.params, &p); err != nil {
		return nil, err
	}
	priority := domain.TicketPriority(p.Priority)
	if !priority.Valid() {
		return nil, fmt.Errorf("%w: priority %q", errInvalidActionParams, p.Priority)
	}
	if err := s.tickets.UpdatePriority(ctx, in.ticket.ID, priority); err != nil {
		return nil, err
	}
	return map[string]any{"priority": string(priority), "previous_priority": string(in.ticket.Priority)}, nil
}

func (s *EscalationService) executeCreateTask(ctx context.Context, in actionInput) (map[string]any, error) {
	var p createTaskParams
	if err := decodeParams(in.params, &p); err != nil {
		return nil, err
	}

	due := p.DueDate
	if due.IsZero() {
		offset := defaultTaskDue
		if p.DueInHours > 0 {
			offset = time.Duration(p.DueInHours) * time.Hour
		}
		due = s.now().Add(offset)
	}
	title := p.Title
	if title == "" {
		title = "Seguimiento de escalación: " + in.ticket.Title
	}
	description := p.Description
	if description == "" {
		description = in.escalation.Reason
	}

	task := &domain.Task{
		TicketID:    in.ticket.ID,
		Title:       renderTemplate(title, in),
		Description: renderTemplate(description, in),
		AssignedTo:  optionalString(p.AssignedTo),
		DueDate:     due,
		Status:      domain.TaskStatusPending,
	}
	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, err
	}
	return map[string]any{"task_id": task.ID, "due_date": due.Format(time.RFC3339)}, nil
}

func (s *EscalationService) executeSendEmail(ctx context.Context, in actionInput) (map[string]any, error) {
	var p sendEmailParams
	if err := decodeParams(in.params, &p); err != nil {
		return nil, err
	}

	template := p.Template
	if template == "" {
		template = defaultEmailTemplate
	}
	recipients := p.Recipients
	if len(recipients) == 0 {
		recipients = s.defaultRecipients
	}
	data := map[string]any{
		"ticket_id":    in.ticket.ID,
		"ticket_title": in.ticket.Title,
		"priority":     string(in.ticket.Priority),
		"reason":       in.escalation.Reason,
		"level":        in.level,
	}
	for k, v := range p.Data {
		data[k] = v
	}

	email := domain.Email{Template: template, Recipients: recipients, Data: data}
	if s.email == nil {
		s.logger.Info("no email sender configured; email not delivered",
			zap.String("template", template),
			zap.Strings("recipients", recipients))
		return map[string]any{"template": template, "recipients": recipients, "delivered": false}, nil
	}
	if err := s.email.SendEmail(ctx, email); err != nil {
		return nil, err
	}
	return map[string]any{"template": template, "recipients": recipients, "delivered": true}, nil
}

func decodeParams(params map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeHookFunc(time.RFC3339),
			mapstructure.StringToSliceHookFunc(","),
		),
		Result: out,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(params); err != nil {
		return fmt.Errorf("%w: %v", errInvalidActionParams, err)
	}
	return nil
}

func renderTemplate(text string, in actionInput) string {
	reason := ""
	if in.escalation != nil {
		reason = in.escalation.Reason
	}
	return strings.NewReplacer(
		"{{ticket_id}}", in.ticket.ID,
		"{{ticket_title}}", in.ticket.Title,
		"{{priority}}", string(in.ticket.Priority),
		"{{stage}}", in.ticket.Stage,
		"{{reason}}", reason,
		"{{level}}", fmt.Sprint(in.level),
	).Replace(text)
}

func optionalString(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
