// Package automation defines the automation program tree bound to
// phase-entry/phase-exit triggers: bindings, actions, and conditions. Parsing
// here is structural only; internal/automation/interp executes the parsed
// tree.
package automation

import (
	"encoding/json"
	"fmt"
)

// Trigger scopes a Binding to a phase-entry or phase-exit point.
type Trigger string

const (
	OnEnter Trigger = "on_enter"
	OnExit  Trigger = "on_exit"
)

// Program is the full automation tree attached to a Workflow.
type Program struct {
	Automations []Binding `json:"automations"`
}

// Binding ties a (trigger, phase) pair to the ordered actions it runs.
type Binding struct {
	Trigger Trigger  `json:"trigger"`
	Phase   string   `json:"phase"`
	Actions []Action `json:"actions"`
}

// ActionType discriminates the Action tagged union.
type ActionType string

const (
	ActionWebhook      ActionType = "webhook"
	ActionDelay        ActionType = "delay"
	ActionConditional  ActionType = "conditional"
	ActionMoveToPhase  ActionType = "move_to_phase"
	ActionSetField     ActionType = "set_field"
)

// OnErrorPolicy governs what a failed webhook does to its enclosing list.
type OnErrorPolicy string

const (
	OnErrorStop     OnErrorPolicy = "stop"
	OnErrorContinue OnErrorPolicy = "continue"
)

// RetryPolicy configures webhook retry/backoff.
type RetryPolicy struct {
	Enabled     bool `json:"enabled"`
	MaxAttempts int  `json:"max_attempts"`
	DelayMS     int  `json:"delay_ms"`
}

// Condition is a single predicate evaluated against case state.
type Condition struct {
	Field string      `json:"field"`
	Op    string      `json:"op"`
	Value interface{} `json:"value"`
}

// UnmarshalJSON accepts both the current `op` shape and the legacy
// `operator` shape for backwards compatibility.
func (c *Condition) UnmarshalJSON(data []byte) error {
	type alias struct {
		Field    string      `json:"field"`
		Op       string      `json:"op"`
		Operator string      `json:"operator"`
		Value    interface{} `json:"value"`
	}
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	c.Field = a.Field
	c.Value = a.Value
	if a.Op != "" {
		c.Op = a.Op
	} else {
		c.Op = a.Operator
	}
	return nil
}

// Action is a tagged variant discriminated by Type. Exactly one of the
// type-specific fields is populated depending on Type.
type Action struct {
	Type ActionType `json:"type"`

	// webhook
	ID              string            `json:"id,omitempty"`
	Name            string            `json:"name,omitempty"`
	URL             string            `json:"url,omitempty"`
	Method          string            `json:"method,omitempty"`
	Headers         map[string]string `json:"headers,omitempty"`
	Fields          []string          `json:"fields,omitempty"`
	Body            json.RawMessage   `json:"body,omitempty"`
	UseResponseFrom string            `json:"use_response_from,omitempty"`
	Retry           *RetryPolicy      `json:"retry,omitempty"`
	OnError         OnErrorPolicy     `json:"on_error,omitempty"`

	// delay
	DurationMS int `json:"duration_ms,omitempty"`

	// conditional (simple)
	Field string      `json:"field,omitempty"`
	Op    string      `json:"op,omitempty"`
	Value interface{} `json:"value,omitempty"`

	// conditional (compound)
	CondOperator string      `json:"operator,omitempty"`
	Conditions   []Condition `json:"conditions,omitempty"`

	Then []Action `json:"then,omitempty"`
	Else []Action `json:"else,omitempty"`

	// move_to_phase
	Phase string `json:"phase,omitempty"`

	// set_field — uses Field above, Value above for the new value
}

// UnmarshalJSON disambiguates the legacy `operator` key, which means two
// different things depending on shape: for a compound conditional
// (a "conditions" array is present) it is the AND/OR combinator; for a
// simple conditional it is a legacy alias for `op`.
func (a *Action) UnmarshalJSON(data []byte) error {
	type alias Action
	var raw alias
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*a = Action(raw)
	if len(a.Conditions) == 0 && a.Op == "" && a.CondOperator != "" {
		a.Op = a.CondOperator
		a.CondOperator = ""
	}
	return nil
}

// Validate checks Action-tree invariants that are independent of any
// concrete workflow's phase list: required fields per tag, finiteness of the
// then/else subtrees. Phase-membership checks happen separately in
// internal/service, since they need the owning Workflow's phase list.
func (a *Action) Validate() error {
	switch a.Type {
	case ActionWebhook:
		if a.URL == "" {
			return fmt.Errorf("webhook action requires url")
		}
		if a.OnError == "" {
			a.OnError = OnErrorStop
		}
		if a.OnError != OnErrorStop && a.OnError != OnErrorContinue {
			return fmt.Errorf("webhook action has invalid on_error %q", a.OnError)
		}
		if a.Method == "" {
			a.Method = "POST"
		}
	case ActionDelay:
		if a.DurationMS < 0 {
			return fmt.Errorf("delay action requires duration_ms >= 0")
		}
	case ActionConditional:
		if len(a.Conditions) > 0 {
			if a.CondOperator != "AND" && a.CondOperator != "OR" {
				return fmt.Errorf("compound conditional requires operator AND or OR")
			}
		} else if a.Field == "" {
			return fmt.Errorf("simple conditional requires field")
		}
		for i := range a.Then {
			if err := a.Then[i].Validate(); err != nil {
				return fmt.Errorf("then[%d]: %w", i, err)
			}
		}
		for i := range a.Else {
			if err := a.Else[i].Validate(); err != nil {
				return fmt.Errorf("else[%d]: %w", i, err)
			}
		}
	case ActionMoveToPhase:
		if a.Phase == "" {
			return fmt.Errorf("move_to_phase action requires phase")
		}
	case ActionSetField:
		if a.Field == "" {
			return fmt.Errorf("set_field action requires field")
		}
	default:
		return fmt.Errorf("unknown action type %q", a.Type)
	}
	return nil
}

// Parse unmarshals a raw automations block — the bindings array stored
// verbatim in Workflow.Automations — into a Program, validating the shape
// of every action recursively. Invalid trees are rejected here so they
// never reach the interpreter.
func Parse(raw json.RawMessage) (*Program, error) {
	if len(raw) == 0 {
		return &Program{}, nil
	}
	var bindings []Binding
	if err := json.Unmarshal(raw, &bindings); err != nil {
		return nil, fmt.Errorf("parsing automation program: %w", err)
	}
	p := Program{Automations: bindings}
	for bi := range p.Automations {
		b := &p.Automations[bi]
		if b.Trigger != OnEnter && b.Trigger != OnExit {
			return nil, fmt.Errorf("binding %d: invalid trigger %q", bi, b.Trigger)
		}
		if b.Phase == "" {
			return nil, fmt.Errorf("binding %d: phase is required", bi)
		}
		for ai := range b.Actions {
			if err := b.Actions[ai].Validate(); err != nil {
				return nil, fmt.Errorf("binding %d action %d: %w", bi, ai, err)
			}
		}
	}
	return &p, nil
}

// BindingsFor returns the actions bound to (trigger, phase), in declaration
// order. A phase/trigger pair may appear in more than one binding; their
// action lists are concatenated.
func (p *Program) BindingsFor(trigger Trigger, phase string) []Action {
	var actions []Action
	for _, b := range p.Automations {
		if b.Trigger == trigger && b.Phase == phase {
			actions = append(actions, b.Actions...)
		}
	}
	return actions
}
