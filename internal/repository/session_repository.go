package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/admin-ops/internal/domain"
)

// SessionRepository keeps the user_sessions observability rows.
type SessionRepository interface {
	Record(ctx context.Context, record *domain.SessionRecord) error
	UpdateActivity(ctx context.Context, id string, expiresAt, lastActivity time.Time) error
	Terminate(ctx context.Context, id string, at time.Time) error
	GetByID(ctx context.Context, id string) (*domain.SessionRecord, error)
	ListByUser(ctx context.Context, userID string) ([]domain.SessionRecord, error)
}

type sessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository instantiates the repository.
func NewSessionRepository(pool *pgxpool.Pool) SessionRepository {
	return &sessionRepository{pool: pool}
}

func (r *sessionRepository) Record(ctx context.Context, record *domain.SessionRecord) error {
	const query = `
        INSERT INTO user_sessions (id, user_id, email, role, created_at, expires_at, last_activity, status)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        ON CONFLICT (id) DO UPDATE SET
            expires_at = EXCLUDED.expires_at,
            last_activity = EXCLUDED.last_activity,
            status = EXCLUDED.status,
            terminated_at = NULL`
	_, err := r.pool.Exec(ctx, query,
		record.ID,
		record.UserID,
		record.Email,
		record.Role,
		record.CreatedAt,
		record.ExpiresAt,
		record.LastActivity,
		record.Status,
	)
	return err
}

func (r *sessionRepository) UpdateActivity(ctx context.Context, id string, expiresAt, lastActivity time.Time) error {
	const query = `UPDATE user_sessions SET expires_at=$2, last_activity=$3 WHERE id=$1`
	cmd, err := r.pool.Exec(ctx, query, id, expiresAt, lastActivity)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *sessionRepository) Terminate(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE user_sessions SET status=$2, terminated_at=$3 WHERE id=$1`
	cmd, err := r.pool.Exec(ctx, query, id, domain.SessionRecordTerminated, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *sessionRepository) GetByID(ctx context.Context, id string) (*domain.SessionRecord, error) {
	const query = `
        SELECT id, user_id, email, role, created_at, expires_at, last_activity, status, terminated_at
        FROM user_sessions WHERE id=$1`
	var rec domain.SessionRecord
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&rec.ID,
		&rec.UserID,
		&rec.Email,
		&rec.Role,
		&rec.CreatedAt,
		&rec.ExpiresAt,
		&rec.LastActivity,
		&rec.Status,
		&rec.TerminatedAt,
	); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *sessionRepository) ListByUser(ctx context.Context, userID string) ([]domain.SessionRecord, error) {
	const query = `
        SELECT id, user_id, email, role, created_at, expires_at, last_activity, status, terminated_at
        FROM user_sessions WHERE user_id=$1 ORDER BY last_activity DESC`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.SessionRecord
	for rows.Next() {
		var rec domain.SessionRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.UserID,
			&rec.Email,
			&rec.Role,
			&rec.CreatedAt,
			&rec.ExpiresAt,
			&rec.LastActivity,
			&rec.Status,
			&rec.TerminatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}
