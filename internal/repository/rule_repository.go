package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/admin-ops/internal/domain"
)

// RuleRepository reads and seeds escalation_rules.
type RuleRepository interface {
	ListAll(ctx context.Context) ([]domain.EscalationRule, error)
	Upsert(ctx context.Context, rule *domain.EscalationRule) error
}

type ruleRepository struct {
	pool *pgxpool.Pool
}

// NewRuleRepository instantiates the repository.
func NewRuleRepository(pool *pgxpool.Pool) RuleRepository {
	return &ruleRepository{pool: pool}
}

func (r *ruleRepository) ListAll(ctx context.Context) ([]domain.EscalationRule, error) {
	const query = `
        SELECT id, name, description, trigger_type, conditions, actions, priority,
               escalation_level, is_active, target_users, target_team, created_at
        FROM escalation_rules ORDER BY priority DESC, escalation_level ASC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.EscalationRule
	for rows.Next() {
		var rule domain.EscalationRule
		if err := rows.Scan(
			&rule.ID,
			&rule.Name,
			&rule.Description,
			&rule.TriggerType,
			&rule.Conditions,
			&rule.Actions,
			&rule.Priority,
			&rule.EscalationLevel,
			&rule.IsActive,
			&rule.TargetUsers,
			&rule.TargetTeam,
			&rule.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, rule)
	}
	return result, rows.Err()
}

// Upsert inserts or replaces a rule keyed by its name.
func (r *ruleRepository) Upsert(ctx context.Context, rule *domain.EscalationRule) error {
	const query = `
        INSERT INTO escalation_rules (name, description, trigger_type, conditions, actions, priority, escalation_level, is_active, target_users, target_team)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        ON CONFLICT (name) DO UPDATE SET
            description = EXCLUDED.description,
            trigger_type = EXCLUDED.trigger_type,
            conditions = EXCLUDED.conditions,
            actions = EXCLUDED.actions,
            priority = EXCLUDED.priority,
            escalation_level = EXCLUDED.escalation_level,
            is_active = EXCLUDED.is_active,
            target_users = EXCLUDED.target_users,
            target_team = EXCLUDED.target_team
        RETURNING id, created_at`
	conditions := rule.Conditions
	if conditions == nil {
		conditions = []domain.RuleCondition{}
	}
	actions := rule.Actions
	if actions == nil {
		actions = []domain.ActionConfig{}
	}
	targets := rule.TargetUsers
	if targets == nil {
		targets = []string{}
	}
	return r.pool.QueryRow(ctx, query,
		rule.Name,
		rule.Description,
		rule.TriggerType,
		conditions,
		actions,
		rule.Priority,
		rule.EscalationLevel,
		rule.IsActive,
		targets,
		rule.TargetTeam,
	).Scan(&rule.ID, &rule.CreatedAt)
}
