package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/admin-ops/internal/domain"
)

// TicketRepository encapsulates the ticket operations the escalation engine needs.
type TicketRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	ListByStatuses(ctx context.Context, statuses []domain.TicketStatus) ([]domain.Ticket, error)
	UpdatePriority(ctx context.Context, id string, priority domain.TicketPriority) error
	UpdateStage(ctx context.Context, id, stage string) error
	Assign(ctx context.Context, id string, assignedTo, assignedTeam *string) error
	IncrementEscalationCount(ctx context.Context, id string) error
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, title, priority, status, stage, assigned_to, assigned_team,
               created_at, updated_at, stage_changed_at, first_response_at, escalation_count, custom_fields`

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	var ticket domain.Ticket
	if err := scanTicket(r.pool.QueryRow(ctx, query, id), &ticket); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketRepository) ListByStatuses(ctx context.Context, statuses []domain.TicketStatus) ([]domain.Ticket, error) {
	args := make([]any, 0, len(statuses))
	placeholders := make([]string, len(statuses))
	for i, status := range statuses {
		args = append(args, status)
		placeholders[i] = fmt.Sprintf("$%d", len(args))
	}
	query := `SELECT ` + ticketColumns + ` FROM tickets`
	if len(placeholders) > 0 {
		query += fmt.Sprintf(" WHERE status IN (%s)", strings.Join(placeholders, ","))
	}
	query += " ORDER BY created_at ASC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := scanTicket(rows, &ticket); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}

func (r *ticketRepository) UpdatePriority(ctx context.Context, id string, priority domain.TicketPriority) error {
	return r.exec(ctx, `UPDATE tickets SET priority=$2, updated_at=NOW() WHERE id=$1`, id, priority)
}

func (r *ticketRepository) UpdateStage(ctx context.Context, id, stage string) error {
	return r.exec(ctx, `UPDATE tickets SET stage=$2, stage_changed_at=NOW(), updated_at=NOW() WHERE id=$1`, id, stage)
}

func (r *ticketRepository) Assign(ctx context.Context, id string, assignedTo, assignedTeam *string) error {
	const query = `
        UPDATE tickets SET assigned_to=COALESCE($2, assigned_to), assigned_team=COALESCE($3, assigned_team), updated_at=NOW()
        WHERE id=$1`
	return r.exec(ctx, query, id, assignedTo, assignedTeam)
}

func (r *ticketRepository) IncrementEscalationCount(ctx context.Context, id string) error {
	return r.exec(ctx, `UPDATE tickets SET escalation_count=escalation_count+1, updated_at=NOW() WHERE id=$1`, id)
}

func (r *ticketRepository) exec(ctx context.Context, query string, args ...any) error {
	cmd, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func scanTicket(row pgx.Row, ticket *domain.Ticket) error {
	return row.Scan(
		&ticket.ID,
		&ticket.Title,
		&ticket.Priority,
		&ticket.Status,
		&ticket.Stage,
		&ticket.AssignedTo,
		&ticket.AssignedTeam,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.StageChangedAt,
		&ticket.FirstResponseAt,
		&ticket.EscalationCount,
		&ticket.CustomFields,
	)
}
