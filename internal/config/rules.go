package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/spec-kit/admin-ops/internal/domain"
)

type rulesDocument struct {
	Rules []domain.EscalationRule `yaml:"rules"`
}

// LoadEscalationRules reads and validates a YAML rule file.
func LoadEscalationRules(path string) ([]domain.EscalationRule, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("rules file path is empty")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	return ParseEscalationRules(raw)
}

// ParseEscalationRules decodes a YAML document with a top level "rules" list.
func ParseEscalationRules(raw []byte) ([]domain.EscalationRule, error) {
	var doc rulesDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode rules: %w", err)
	}

	seen := make(map[string]struct{}, len(doc.Rules))
	var errs []error
	for i, rule := range doc.Rules {
		if err := validateRule(rule); err != nil {
			errs = append(errs, fmt.Errorf("rule %d (%s): %w", i, rule.Name, err))
			continue
		}
		if _, dup := seen[rule.Name]; dup {
			errs = append(errs, fmt.Errorf("rule %d: duplicate name %q", i, rule.Name))
		}
		seen[rule.Name] = struct{}{}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return doc.Rules, nil
}

func validateRule(rule domain.EscalationRule) error {
	if strings.TrimSpace(rule.Name) == "" {
		return errors.New("name is required")
	}
	if !rule.TriggerType.Valid() || rule.TriggerType == domain.TriggerManual {
		return fmt.Errorf("unsupported trigger_type %q", rule.TriggerType)
	}
	if rule.EscalationLevel < 1 {
		return errors.New("escalation_level must be at least 1")
	}
	for _, cond := range rule.Conditions {
		if strings.TrimSpace(cond.Field) == "" {
			return errors.New("condition field is required")
		}
		if !cond.Operator.Valid() {
			return fmt.Errorf("unknown operator %q", cond.Operator)
		}
	}
	for _, action := range rule.Actions {
		if !action.Type.Valid() {
			return fmt.Errorf("unknown action type %q", action.Type)
		}
	}
	return nil
}
