package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/admin-ops/internal/domain"
	"github.com/spec-kit/admin-ops/internal/events"
	"github.com/spec-kit/admin-ops/internal/observability"
	"github.com/spec-kit/admin-ops/internal/repository"
	apperrors "github.com/spec-kit/admin-ops/pkg/util/errorutil"
)

// ManualReason is the default reason of operator escalations.
const ManualReason = "Escalación manual"

// EscalationDependencies bundles collaborators of the escalation service.
type EscalationDependencies struct {
	TicketRepo        repository.TicketRepository
	EscalationRepo    repository.EscalationRepository
	RuleRepo          repository.RuleRepository
	AssignmentRepo    repository.AssignmentRepository
	TaskRepo          repository.TaskRepository
	Notifier          NotificationDispatcher
	EmailSender       EmailSender
	Locker            TicketLocker
	Dispatcher        events.Dispatcher
	Metrics           *observability.Metrics
	Logger            *zap.Logger
	DefaultRecipients []string
	Clock             func() time.Time
}

// EscalationService evaluates open tickets against the loaded rules and
// executes the actions of matching rules.
type EscalationService struct {
	tickets           repository.TicketRepository
	escalations       repository.EscalationRepository
	assignments       repository.AssignmentRepository
	tasks             repository.TaskRepository
	notifier          NotificationDispatcher
	email             EmailSender
	locker            TicketLocker
	dispatcher        events.Dispatcher
	metrics           *observability.Metrics
	logger            *zap.Logger
	defaultRecipients []string
	now               func() time.Time

	rules    []domain.EscalationRule
	active   []domain.EscalationRule
	handlers map[domain.ActionType]actionHandler
}

// PassResult summarizes one CheckEscalations run.
type PassResult struct {
	StartedAt          time.Time `json:"started_at"`
	FinishedAt         time.Time `json:"finished_at"`
	TicketsScanned     int       `json:"tickets_scanned"`
	EscalationsCreated int       `json:"escalations_created"`
	TicketsSkipped     int       `json:"tickets_skipped"`
	TicketsFailed      int       `json:"tickets_failed"`
	Aborted            bool      `json:"aborted"`
}

// ManualEscalationInput describes an operator escalation.
type ManualEscalationInput struct {
	TicketID    string
	Reason      string
	Notes       string
	EscalatedTo *string
	Actions     []domain.ActionConfig
	ActorID     string
}

type escalationPlan struct {
	ruleID      *string
	trigger     domain.TriggerType
	reason      string
	notes       string
	escalatedTo *string
	level       int
	actions     []domain.ActionConfig
	actor       events.Actor
}

// NewEscalationService builds the service and loads the rules once. A failed
// load leaves the service without rules.
func NewEscalationService(ctx context.Context, deps EscalationDependencies) *EscalationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	locker := deps.Locker
	if locker == nil {
		locker = NewLocalTicketLocker()
	}
	recipients := deps.DefaultRecipients
	if len(recipients) == 0 {
		recipients = []string{"managers"}
	}

	s := &EscalationService{
		tickets:           deps.TicketRepo,
		escalations:       deps.EscalationRepo,
		assignments:       deps.AssignmentRepo,
		tasks:             deps.TaskRepo,
		notifier:          deps.Notifier,
		email:             deps.EmailSender,
		locker:            locker,
		dispatcher:        deps.Dispatcher,
		metrics:           deps.Metrics,
		logger:            logger.Named("escalation"),
		defaultRecipients: recipients,
		now:               clock,
	}
	s.handlers = s.newActionHandlers()

	if deps.RuleRepo != nil {
		rules, err := deps.RuleRepo.ListAll(ctx)
		if err != nil {
			s.logger.Error("load escalation rules", zap.Error(err))
		} else {
			s.setRules(rules)
		}
	}
	s.logger.Info("escalation rules loaded", zap.Int("total", len(s.rules)), zap.Int("active", len(s.active)))
	return s
}

func (s *EscalationService) setRules(rules []domain.EscalationRule) {
	s.rules = rules
	active := make([]domain.EscalationRule, 0, len(rules))
	for _, rule := range rules {
		if rule.IsActive {
			active = append(active, rule)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		if active[i].Priority != active[j].Priority {
			return active[i].Priority > active[j].Priority
		}
		return active[i].EscalationLevel < active[j].EscalationLevel
	})
	s.active = active
}

// Rules returns a copy of the loaded rules.
func (s *EscalationService) Rules() []domain.EscalationRule {
	return append([]domain.EscalationRule(nil), s.rules...)
}

// CheckEscalations runs one pass over all open tickets. A failed ticket list
// aborts the pass; a failing ticket does not affect the others.
func (s *EscalationService) CheckEscalations(ctx context.Context) PassResult {
	result := PassResult{StartedAt: s.now()}

	tickets, err := s.tickets.ListByStatuses(ctx, domain.OpenTicketStatuses)
	if err != nil {
		s.logger.Error("list open tickets", zap.Error(err))
		result.Aborted = true
		result.FinishedAt = s.now()
		s.metrics.RecordEscalationPass("aborted")
		return result
	}

	for _, ticket := range tickets {
		result.TicketsScanned++
		created, err := s.evaluateTicket(ctx, ticket)
		result.EscalationsCreated += created
		switch {
		case err == nil:
		case errors.Is(err, ErrTicketLocked):
			result.TicketsSkipped++
			s.logger.Debug("ticket locked; skipped", zap.String("ticket_id", ticket.ID))
		default:
			result.TicketsFailed++
			s.logger.Error("evaluate ticket", zap.String("ticket_id", ticket.ID), zap.Error(err))
		}
	}

	result.FinishedAt = s.now()
	s.metrics.RecordEscalationPass("completed")
	s.logger.Info("escalation pass finished",
		zap.Int("scanned", result.TicketsScanned),
		zap.Int("created", result.EscalationsCreated),
		zap.Int("skipped", result.TicketsSkipped),
		zap.Int("failed", result.TicketsFailed))
	return result
}

func (s *EscalationService) evaluateTicket(ctx context.Context, ticket domain.Ticket) (created int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic evaluating ticket: %v", r)
		}
	}()

	unlock, err := s.locker.Lock(ctx, ticket.ID)
	if err != nil {
		return 0, err
	}
	defer unlock()

	data := domain.NewTicketData(ticket, s.now())
	for i := range s.active {
		rule := &s.active[i]
		if !RuleMatches(data, *rule) {
			continue
		}
		exists, err := s.escalations.HasActive(ctx, ticket.ID, rule.TriggerType)
		if err != nil {
			return created, err
		}
		if exists {
			continue
		}

		_, err = s.execute(ctx, data, s.planForRule(rule))
		if errors.Is(err, repository.ErrActiveEscalationExists) {
			continue
		}
		if err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}

func (s *EscalationService) planForRule(rule *domain.EscalationRule) escalationPlan {
	var escalatedTo *string
	switch {
	case len(rule.TargetUsers) > 0:
		escalatedTo = optionalString(rule.TargetUsers[0])
	case rule.TargetTeam != nil:
		escalatedTo = optionalString(*rule.TargetTeam)
	}
	var ruleID *string
	if rule.ID != "" {
		id := rule.ID
		ruleID = &id
	}
	return escalationPlan{
		ruleID:      ruleID,
		trigger:     rule.TriggerType,
		reason:      "Regla de escalación: " + rule.Name,
		escalatedTo: escalatedTo,
		level:       rule.EscalationLevel,
		actions:     rule.Actions,
		actor:       events.Actor{Type: events.ActorSystem},
	}
}

// execute persists the escalation, runs its actions in order and bumps the
// ticket counter.
func (s *EscalationService) execute(ctx context.Context, ticket domain.TicketData, plan escalationPlan) (*domain.TicketEscalation, error) {
	escalation := &domain.TicketEscalation{
		ID:            uuid.NewString(),
		TicketID:      ticket.ID,
		RuleID:        plan.ruleID,
		EscalatedFrom: optionalString(ticket.AssignedTo),
		EscalatedTo:   plan.escalatedTo,
		Reason:        plan.reason,
		Type:          plan.trigger,
		EscalatedAt:   s.now(),
		Notes:         plan.notes,
		Actions:       []domain.EscalationAction{},
		Status:        domain.EscalationActive,
	}
	if err := s.escalations.Create(ctx, escalation); err != nil {
		return nil, err
	}
	s.metrics.RecordEscalation(string(plan.trigger))

	failed := 0
	in := actionInput{ticket: ticket, escalation: escalation, level: plan.level}
	for _, cfg := range plan.actions {
		action := s.executeAction(ctx, in, cfg)
		if action.Status == domain.ActionFailed {
			failed++
		}
		escalation.Actions = append(escalation.Actions, action)
		if err := s.escalations.AppendAction(ctx, escalation.ID, action); err != nil {
			s.swallow("append_action", err, zap.String("escalation_id", escalation.ID))
		}
	}

	if err := s.tickets.IncrementEscalationCount(ctx, ticket.ID); err != nil {
		s.swallow("increment_count", err, zap.String("ticket_id", ticket.ID))
	}

	s.logger.Info("ticket escalated",
		zap.String("ticket_id", ticket.ID),
		zap.String("escalation_id", escalation.ID),
		zap.String("type", string(plan.trigger)),
		zap.String("reason", plan.reason),
		zap.Int("actions", len(escalation.Actions)),
		zap.Int("failed_actions", failed))

	s.publish(ctx, events.EventEscalationCreated, escalation.TicketID, plan.actor, events.EscalationCreatedPayload{
		EscalationID: escalation.ID,
		RuleID:       escalation.RuleID,
		TriggerType:  escalation.Type,
		Reason:       escalation.Reason,
		EscalatedTo:  escalation.EscalatedTo,
		Level:        plan.level,
		FailedSteps:  failed,
	})
	return escalation, nil
}

// EscalateManually opens a manual escalation for a ticket and runs the given
// actions through the same path as rule escalations.
func (s *EscalationService) EscalateManually(ctx context.Context, input ManualEscalationInput) (*domain.TicketEscalation, error) {
	if strings.TrimSpace(input.TicketID) == "" {
		return nil, apperrors.NewValidationError("ticket_id is required", nil)
	}
	if !isUUID(input.TicketID) {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": input.TicketID})
	}
	for _, action := range input.Actions {
		if _, ok := s.handlers[action.Type]; !ok {
			return nil, apperrors.NewValidationError("unknown action type", map[string]any{"type": action.Type})
		}
	}

	ticket, err := s.tickets.GetByID(ctx, input.TicketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": input.TicketID})
		}
		return nil, apperrors.MapError(err)
	}

	unlock, err := s.locker.Lock(ctx, ticket.ID)
	if err != nil {
		if errors.Is(err, ErrTicketLocked) {
			return nil, apperrors.NewConflict("ticket is being escalated", map[string]any{"ticket_id": ticket.ID})
		}
		return nil, apperrors.MapError(err)
	}
	defer unlock()

	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		reason = ManualReason
	}
	actor := events.Actor{Type: events.ActorUser}
	if input.ActorID != "" {
		id := input.ActorID
		actor.UserID = &id
	}

	escalation, err := s.execute(ctx, domain.NewTicketData(*ticket, s.now()), escalationPlan{
		trigger:     domain.TriggerManual,
		reason:      reason,
		notes:       input.Notes,
		escalatedTo: input.EscalatedTo,
		actions:     input.Actions,
		actor:       actor,
	})
	if err != nil {
		if errors.Is(err, repository.ErrActiveEscalationExists) {
			return nil, apperrors.NewConflict("ticket already has an active manual escalation", map[string]any{"ticket_id": ticket.ID})
		}
		return nil, apperrors.MapError(err)
	}
	return escalation, nil
}

// ResolveEscalation marks the escalation resolved. A terminal escalation only
// gets its note and timestamp overwritten.
func (s *EscalationService) ResolveEscalation(ctx context.Context, id, note string) (*domain.TicketEscalation, error) {
	return s.closeEscalation(ctx, id, domain.EscalationResolved, note, events.EventEscalationResolved)
}

// CancelEscalation marks the escalation cancelled.
func (s *EscalationService) CancelEscalation(ctx context.Context, id, reason string) (*domain.TicketEscalation, error) {
	return s.closeEscalation(ctx, id, domain.EscalationCancelled, reason, events.EventEscalationCancelled)
}

func (s *EscalationService) closeEscalation(ctx context.Context, id string, status domain.EscalationStatus, note string, eventType events.EventType) (*domain.TicketEscalation, error) {
	if !isUUID(id) {
		return nil, apperrors.NewNotFound("escalation", map[string]any{"escalation_id": id})
	}
	if err := s.escalations.SetStatus(ctx, id, status, s.now(), note); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("escalation", map[string]any{"escalation_id": id})
		}
		return nil, apperrors.MapError(err)
	}
	escalation, err := s.escalations.GetByID(ctx, id)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	s.logger.Info("escalation closed", zap.String("escalation_id", id), zap.String("status", string(status)))
	s.publish(ctx, eventType, escalation.TicketID, events.Actor{Type: events.ActorUser}, events.EscalationClosedPayload{
		EscalationID: id,
		Status:       status,
		Note:         note,
	})
	return escalation, nil
}

// GetEscalationStats counts escalations by status, type and reason. Store
// failures yield empty stats.
func (s *EscalationService) GetEscalationStats(ctx context.Context) domain.EscalationStats {
	stats := domain.NewEscalationStats()
	all, err := s.escalations.ListAll(ctx)
	if err != nil {
		s.logger.Error("list escalations for stats", zap.Error(err))
		return stats
	}
	for _, e := range all {
		stats.Total++
		switch e.Status {
		case domain.EscalationActive:
			stats.Active++
		case domain.EscalationResolved:
			stats.Resolved++
		case domain.EscalationCancelled:
			stats.Cancelled++
		}
		stats.ByType[string(e.Type)]++
		stats.ByReason[e.Reason]++
	}
	return stats
}

// ListTicketEscalations returns the escalations of one ticket, newest first.
func (s *EscalationService) ListTicketEscalations(ctx context.Context, ticketID string) ([]domain.TicketEscalation, error) {
	if !isUUID(ticketID) {
		return nil, apperrors.NewValidationError("ticket id must be a UUID", map[string]any{"ticket_id": ticketID})
	}
	list, err := s.escalations.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return list, nil
}

func (s *EscalationService) publish(ctx context.Context, eventType events.EventType, ticketID string, actor events.Actor, payload any) {
	if s.dispatcher == nil {
		return
	}
	err := s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TicketID:  ticketID,
		Actor:     actor,
		Timestamp: s.now(),
		Payload:   payload,
	})
	if err != nil {
		s.swallow("publish", err, zap.String("event", string(eventType)))
	}
}

func (s *EscalationService) swallow(operation string, err error, fields ...zap.Field) {
	s.logger.Warn("escalation side effect failed", append(fields, zap.String("operation", operation), zap.Error(err))...)
	s.metrics.RecordSwallowed("escalation", operation)
}

// isUUID guards UUID columns; postgres rejects other text with 22P02.
func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
