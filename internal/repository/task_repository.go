package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/admin-ops/internal/domain"
)

// TaskRepository persists follow-up tasks.
type TaskRepository interface {
	Create(ctx context.Context, task *domain.Task) error
}

type taskRepository struct {
	pool *pgxpool.Pool
}

// NewTaskRepository instantiates the repository.
func NewTaskRepository(pool *pgxpool.Pool) TaskRepository {
	return &taskRepository{pool: pool}
}

func (r *taskRepository) Create(ctx context.Context, task *domain.Task) error {
	const query = `
        INSERT INTO tasks (ticket_id, title, description, assigned_to, due_date, status)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		task.TicketID,
		task.Title,
		task.Description,
		task.AssignedTo,
		task.DueDate,
		task.Status,
	).Scan(&task.ID, &task.CreatedAt)
}
