package condition

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/derivia/orchepy/internal/automation"
	"github.com/derivia/orchepy/internal/path"
)

func fixtureEnvelope(t *testing.T) []byte {
	t.Helper()
	env, err := path.Envelope("Review", nil, "active", []byte(`{"amount":1500,"tags":["urgent","vip"],"meta":{"region":"us"}}`), []byte(`{}`))
	require.NoError(t, err)
	return env
}

func TestEval_NumericOperators(t *testing.T) {
	env := fixtureEnvelope(t)

	tests := []struct {
		op   string
		val  interface{}
		want bool
	}{
		{">", float64(1000), true},
		{">", float64(2000), false},
		{"<", float64(2000), true},
		{">=", float64(1500), true},
		{"<=", float64(1499), false},
	}
	for _, tt := range tests {
		t.Run(tt.op, func(t *testing.T) {
			got := Eval(env, automation.Condition{Field: "data.amount", Op: tt.op, Value: tt.val})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEval_NumericOperatorOnNonNumeric_IsFalse(t *testing.T) {
	env := fixtureEnvelope(t)
	assert.False(t, Eval(env, automation.Condition{Field: "current_phase", Op: ">", Value: float64(1)}))
}

func TestEval_EqualityIsStructural(t *testing.T) {
	env := fixtureEnvelope(t)
	assert.True(t, Eval(env, automation.Condition{Field: "current_phase", Op: "==", Value: "Review"}))
	assert.True(t, Eval(env, automation.Condition{Field: "current_phase", Op: "!=", Value: "Pending"}))
}

func TestEval_Contains(t *testing.T) {
	env := fixtureEnvelope(t)
	assert.True(t, Eval(env, automation.Condition{Field: "data.tags", Op: "contains", Value: "urgent"}))
	assert.False(t, Eval(env, automation.Condition{Field: "data.tags", Op: "contains", Value: "missing"}))
	assert.True(t, Eval(env, automation.Condition{Field: "data.meta", Op: "contains", Value: "region"}))
}

func TestEval_UnknownOperator_IsFalse(t *testing.T) {
	env := fixtureEnvelope(t)
	assert.False(t, Eval(env, automation.Condition{Field: "data.amount", Op: "~=", Value: 1}))
}

func TestEvalCompound_ANDShortCircuits(t *testing.T) {
	env := fixtureEnvelope(t)
	conds := []automation.Condition{
		{Field: "data.amount", Op: ">", Value: float64(1000)},
		{Field: "data.amount", Op: "<", Value: float64(100)},
	}
	assert.False(t, EvalCompound(env, "AND", conds))
}

func TestEvalCompound_ORMatchesAny(t *testing.T) {
	env := fixtureEnvelope(t)
	conds := []automation.Condition{
		{Field: "data.amount", Op: "<", Value: float64(100)},
		{Field: "data.amount", Op: ">", Value: float64(1000)},
	}
	assert.True(t, EvalCompound(env, "OR", conds))
}

func TestEvalAction_LegacyOperatorShape(t *testing.T) {
	env := fixtureEnvelope(t)
	var a automation.Action
	raw := []byte(`{"type":"conditional","field":"data.amount","operator":">","value":1000}`)
	require.NoError(t, json.Unmarshal(raw, &a))
	assert.True(t, EvalAction(env, a))
}
