package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/admin-ops/internal/domain"
)

// ErrActiveEscalationExists is returned when the ticket already has an active
// escalation of the same trigger type.
var ErrActiveEscalationExists = errors.New("active escalation of this type already exists")

// EscalationRepository persists ticket_escalations rows.
type EscalationRepository interface {
	Create(ctx context.Context, escalation *domain.TicketEscalation) error
	GetByID(ctx context.Context, id string) (*domain.TicketEscalation, error)
	HasActive(ctx context.Context, ticketID string, triggerType domain.TriggerType) (bool, error)
	AppendAction(ctx context.Context, id string, action domain.EscalationAction) error
	SetStatus(ctx context.Context, id string, status domain.EscalationStatus, at time.Time, note string) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketEscalation, error)
	ListAll(ctx context.Context) ([]domain.TicketEscalation, error)
}

type escalationRepository struct {
	pool *pgxpool.Pool
}

// NewEscalationRepository instantiates the repository.
func NewEscalationRepository(pool *pgxpool.Pool) EscalationRepository {
	return &escalationRepository{pool: pool}
}

const escalationColumns = `id, ticket_id, rule_id, escalated_from, escalated_to, reason, type,
               escalated_at, resolved_at, notes, actions, status`

// Create inserts the escalation. The partial unique index on (ticket_id, type)
// for active rows turns a duplicate into ErrActiveEscalationExists.
func (r *escalationRepository) Create(ctx context.Context, escalation *domain.TicketEscalation) error {
	const query = `
        INSERT INTO ticket_escalations (id, ticket_id, rule_id, escalated_from, escalated_to, reason, type, escalated_at, notes, actions, status)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
        ON CONFLICT (ticket_id, type) WHERE status = 'active' DO NOTHING
        RETURNING escalated_at`
	actions := escalation.Actions
	if actions == nil {
		actions = []domain.EscalationAction{}
	}
	err := r.pool.QueryRow(ctx, query,
		escalation.ID,
		escalation.TicketID,
		escalation.RuleID,
		escalation.EscalatedFrom,
		escalation.EscalatedTo,
		escalation.Reason,
		escalation.Type,
		escalation.EscalatedAt,
		escalation.Notes,
		actions,
		escalation.Status,
	).Scan(&escalation.EscalatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrActiveEscalationExists
	}
	return err
}

func (r *escalationRepository) GetByID(ctx context.Context, id string) (*domain.TicketEscalation, error) {
	query := `SELECT ` + escalationColumns + ` FROM ticket_escalations WHERE id=$1`
	var escalation domain.TicketEscalation
	if err := scanEscalation(r.pool.QueryRow(ctx, query, id), &escalation); err != nil {
		return nil, err
	}
	return &escalation, nil
}

func (r *escalationRepository) HasActive(ctx context.Context, ticketID string, triggerType domain.TriggerType) (bool, error) {
	const query = `
        SELECT EXISTS (
            SELECT 1 FROM ticket_escalations WHERE ticket_id=$1 AND type=$2 AND status='active'
        )`
	var exists bool
	err := r.pool.QueryRow(ctx, query, ticketID, triggerType).Scan(&exists)
	return exists, err
}

func (r *escalationRepository) AppendAction(ctx context.Context, id string, action domain.EscalationAction) error {
	const query = `UPDATE ticket_escalations SET actions = actions || jsonb_build_array($2::jsonb) WHERE id=$1`
	cmd, err := r.pool.Exec(ctx, query, id, action)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *escalationRepository) SetStatus(ctx context.Context, id string, status domain.EscalationStatus, at time.Time, note string) error {
	const query = `UPDATE ticket_escalations SET status=$2, resolved_at=$3, notes=$4 WHERE id=$1`
	cmd, err := r.pool.Exec(ctx, query, id, status, at, note)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *escalationRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketEscalation, error) {
	query := `SELECT ` + escalationColumns + ` FROM ticket_escalations WHERE ticket_id=$1 ORDER BY escalated_at DESC`
	return r.list(ctx, query, ticketID)
}

func (r *escalationRepository) ListAll(ctx context.Context) ([]domain.TicketEscalation, error) {
	query := `SELECT ` + escalationColumns + ` FROM ticket_escalations ORDER BY escalated_at DESC`
	return r.list(ctx, query)
}

func (r *escalationRepository) list(ctx context.Context, query string, args ...any) ([]domain.TicketEscalation, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketEscalation
	for rows.Next() {
		var escalation domain.TicketEscalation
		if err := scanEscalation(rows, &escalation); err != nil {
			return nil, err
		}
		result = append(result, escalation)
	}
	return result, rows.Err()
}

func scanEscalation(row pgx.Row, escalation *domain.TicketEscalation) error {
	return row.Scan(
		&escalation.ID,
		&escalation.TicketID,
		&escalation.RuleID,
		&escalation.EscalatedFrom,
		&escalation.EscalatedTo,
		&escalation.Reason,
		&escalation.Type,
		&escalation.EscalatedAt,
		&escalation.ResolvedAt,
		&escalation.Notes,
		&escalation.Actions,
		&escalation.Status,
	)
}
