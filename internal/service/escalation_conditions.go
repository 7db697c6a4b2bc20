package service

import (
	"reflect"
	"strings"

	"github.com/spf13/cast"

	"github.com/spec-kit/admin-ops/internal/domain"
)

// EvaluateCondition reports whether ticket satisfies cond. Unknown operators,
// missing fields and values that cannot be coerced evaluate to false.
func EvaluateCondition(ticket domain.TicketData, cond domain.RuleCondition) bool {
	value, _ := ticket.Field(cond.Field)

	switch cond.Operator {
	case domain.OperatorEquals:
		return valuesEqual(value, cond.Value)
	case domain.OperatorNotEquals:
		return !valuesEqual(value, cond.Value)
	case domain.OperatorContains:
		return strings.Contains(cast.ToString(value), cast.ToString(cond.Value))
	case domain.OperatorGreaterThan:
		left, right, ok := numericPair(value, cond.Value)
		return ok && left > right
	case domain.OperatorLessThan:
		left, right, ok := numericPair(value, cond.Value)
		return ok && left < right
	case domain.OperatorIn:
		list, ok := toList(cond.Value)
		return ok && listContains(list, value)
	case domain.OperatorNotIn:
		list, ok := toList(cond.Value)
		return ok && !listContains(list, value)
	default:
		return false
	}
}

// RuleMatches is the AND of all rule conditions.
func RuleMatches(ticket domain.TicketData, rule domain.EscalationRule) bool {
	for _, cond := range rule.Conditions {
		if !EvaluateCondition(ticket, cond) {
			return false
		}
	}
	return true
}

func valuesEqual(a, b any) bool {
	if isNumber(a) && isNumber(b) {
		return cast.ToFloat64(a) == cast.ToFloat64(b)
	}
	if as, ok := a.(string); ok {
		bs, ok := b.(string)
		return ok && as == bs
	}
	return reflect.DeepEqual(a, b)
}

func numericPair(a, b any) (float64, float64, bool) {
	if a == nil || b == nil {
		return 0, 0, false
	}
	left, err := cast.ToFloat64E(a)
	if err != nil {
		return 0, 0, false
	}
	right, err := cast.ToFloat64E(b)
	if err != nil {
		return 0, 0, false
	}
	return left, right, true
}

func isNumber(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	}
	return false
}

func toList(v any) ([]any, bool) {
	if v == nil {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func listContains(list []any, value any) bool {
	for _, item := range list {
		if valuesEqual(value, item) {
			return true
		}
	}
	return false
}
