package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/admin-ops/internal/domain"
)

// AssignmentRepository stores assignment history entries.
type AssignmentRepository interface {
	Create(ctx context.Context, assignment *domain.TicketAssignment) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketAssignment, error)
}

type assignmentRepository struct {
	pool *pgxpool.Pool
}

// NewAssignmentRepository builds repository.
func NewAssignmentRepository(pool *pgxpool.Pool) AssignmentRepository {
	return &assignmentRepository{pool: pool}
}

func (r *assignmentRepository) Create(ctx context.Context, assignment *domain.TicketAssignment) error {
	const query = `
        INSERT INTO ticket_assignments (ticket_id, assigned_to, assigned_team, assigned_by, reason)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		assignment.TicketID,
		assignment.AssignedTo,
		assignment.AssignedTeam,
		assignment.AssignedBy,
		assignment.Reason,
	).Scan(&assignment.ID, &assignment.CreatedAt)
}

func (r *assignmentRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketAssignment, error) {
	const query = `
        SELECT id, ticket_id, assigned_to, assigned_team, assigned_by, reason, created_at
        FROM ticket_assignments WHERE ticket_id=$1 ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketAssignment
	for rows.Next() {
		var assignment domain.TicketAssignment
		if err := rows.Scan(
			&assignment.ID,
			&assignment.TicketID,
			&assignment.AssignedTo,
			&assignment.AssignedTeam,
			&assignment.AssignedBy,
			&assignment.Reason,
			&assignment.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, assignment)
	}
	return result, rows.Err()
}
