package domain

import "time"

// ConditionOperator compares a ticket field with a rule value.
type ConditionOperator string

const (
	OperatorEquals      ConditionOperator = "equals"
	OperatorNotEquals   ConditionOperator = "not_equals"
	OperatorContains    ConditionOperator = "contains"
	OperatorGreaterThan ConditionOperator = "greater_than"
	OperatorLessThan    ConditionOperator = "less_than"
	OperatorIn          ConditionOperator = "in"
	OperatorNotIn       ConditionOperator = "not_in"
)

// Valid reports whether o is a known operator.
func (o ConditionOperator) Valid() bool {
	switch o {
	case OperatorEquals, OperatorNotEquals, OperatorContains, OperatorGreaterThan,
		OperatorLessThan, OperatorIn, OperatorNotIn:
		return true
	}
	return false
}

// RuleCondition is one clause of a rule; all clauses must hold.
type RuleCondition struct {
	Field    string            `json:"field" yaml:"field"`
	Operator ConditionOperator `json:"operator" yaml:"operator"`
	Value    any               `json:"value" yaml:"value"`
}

// ActionConfig is one configured side effect of a rule.
type ActionConfig struct {
	Type       ActionType     `json:"type" yaml:"type"`
	Parameters map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// EscalationRule is static configuration loaded once at startup.
type EscalationRule struct {
	ID              string          `json:"id" yaml:"id"`
	Name            string          `json:"name" yaml:"name"`
	Description     string          `json:"description,omitempty" yaml:"description,omitempty"`
	TriggerType     TriggerType     `json:"trigger_type" yaml:"trigger_type"`
	Conditions      []RuleCondition `json:"conditions" yaml:"conditions"`
	Actions         []ActionConfig  `json:"actions" yaml:"actions"`
	Priority        int             `json:"priority" yaml:"priority"`
	EscalationLevel int             `json:"escalation_level" yaml:"escalation_level"`
	IsActive        bool            `json:"is_active" yaml:"is_active"`
	TargetUsers     []string        `json:"target_users,omitempty" yaml:"target_users,omitempty"`
	TargetTeam      *string         `json:"target_team,omitempty" yaml:"target_team,omitempty"`
	CreatedAt       time.Time       `json:"created_at" yaml:"-"`
}
