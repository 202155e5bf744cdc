// Package condition evaluates simple and compound predicates against a
// case's JSON envelope. Evaluation is total: a malformed or type-mismatched
// comparison resolves to false rather than erroring.
package condition

import (
	"encoding/json"
	"strings"

	"github.com/derivia/orchepy/internal/automation"
	"github.com/derivia/orchepy/internal/path"
)

// Eval evaluates a simple condition against envelope.
func Eval(envelope []byte, c automation.Condition) bool {
	left := path.Get(envelope, c.Field)
	switch c.Op {
	case "==":
		return structuralEqual(left, c.Value)
	case "!=":
		return !structuralEqual(left, c.Value)
	case ">", "<", ">=", "<=":
		lf, lok := toFloat(left)
		rf, rok := toFloat(c.Value)
		if !lok || !rok {
			return false
		}
		switch c.Op {
		case ">":
			return lf > rf
		case "<":
			return lf < rf
		case ">=":
			return lf >= rf
		case "<=":
			return lf <= rf
		}
		return false
	case "contains":
		return evalContains(left, c.Value)
	default:
		return false
	}
}

// EvalAction evaluates the condition embedded in a conditional Action,
// supporting both the simple shape (field/op/value) and the compound shape
// (operator/conditions), matching the Automation Program grammar.
func EvalAction(envelope []byte, a automation.Action) bool {
	if len(a.Conditions) > 0 {
		return EvalCompound(envelope, a.CondOperator, a.Conditions)
	}
	return Eval(envelope, automation.Condition{Field: a.Field, Op: a.Op, Value: a.Value})
}

// EvalCompound evaluates an AND/OR group of conditions with short-circuit
// semantics.
func EvalCompound(envelope []byte, operator string, conditions []automation.Condition) bool {
	switch operator {
	case "AND":
		for _, c := range conditions {
			if !Eval(envelope, c) {
				return false
			}
		}
		return true
	case "OR":
		for _, c := range conditions {
			if Eval(envelope, c) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func evalContains(left, right interface{}) bool {
	switch lv := left.(type) {
	case string:
		rv, ok := right.(string)
		if !ok {
			return false
		}
		return strings.Contains(lv, rv)
	case []interface{}:
		for _, item := range lv {
			if structuralEqual(item, right) {
				return true
			}
		}
		return false
	case map[string]interface{}:
		rv, ok := right.(string)
		if !ok {
			return false
		}
		_, exists := lv[rv]
		return exists
	default:
		return false
	}
}

func structuralEqual(a, b interface{}) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	ja, err1 := json.Marshal(a)
	jb, err2 := json.Marshal(b)
	if err1 != nil || err2 != nil {
		return false
	}
	return string(ja) == string(jb)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
