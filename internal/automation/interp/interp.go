// Package interp executes a parsed automation action list over a mutable
// evaluation context: the recursive action interpreter.
package interp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/derivia/orchepy/internal/automation"
	"github.com/derivia/orchepy/internal/condition"
	"github.com/derivia/orchepy/internal/logx"
	"github.com/derivia/orchepy/internal/path"
	"github.com/derivia/orchepy/internal/webhook"
)

// Context is the transient, per-transition evaluation context
// defines: the mutable case envelope, response chaining map, and the
// trigger/phase pair driving this run.
type Context struct {
	Envelope  []byte
	Responses webhook.Responses
	Trigger   string
	FromPhase string
	ToPhase   string
	CaseID    string
	WorkflowID string

	Dirty bool
}

// Result is what Execute returns: whether a move_to_phase was deferred, and
// to which phase.
type Result struct {
	Deferred    bool
	TargetPhase string
}

// Interpreter runs action lists against a Context, dispatching webhook
// actions through dispatcher.
type Interpreter struct {
	dispatcher *webhook.Dispatcher
}

// New builds an Interpreter bound to dispatcher.
func New(dispatcher *webhook.Dispatcher) *Interpreter {
	return &Interpreter{dispatcher: dispatcher}
}

// Execute runs actions in order against ctx. It returns as soon as a
// move_to_phase action is reached (the Controller re-enters after applying
// the deferred transition), or when a webhook with
// on_error=stop fails, or when the list is exhausted.
func (in *Interpreter) Execute(ctx context.Context, actions []automation.Action, ec *Context) (Result, error) {
	for i := range actions {
		a := actions[i]
		switch a.Type {
		case automation.ActionWebhook:
			currentPhase, _ := path.Get(ec.Envelope, "current_phase").(string)
			var previousPhase *string
			if pp, ok := path.Get(ec.Envelope, "previous_phase").(string); ok {
				previousPhase = &pp
			}
			def := webhook.Envelope{
				CaseID:        ec.CaseID,
				WorkflowID:    ec.WorkflowID,
				CurrentPhase:  currentPhase,
				PreviousPhase: previousPhase,
				Trigger:       ec.Trigger,
				FromPhase:     ec.FromPhase,
				ToPhase:       ec.ToPhase,
				Data:          json.RawMessage(path.GetRaw(ec.Envelope, "data")),
				Metadata:      json.RawMessage(path.GetRaw(ec.Envelope, "metadata")),
			}
			if err := in.dispatcher.Dispatch(ctx, a, ec.Envelope, ec.Responses, def); err != nil {
				return Result{}, err
			}

		case automation.ActionDelay:
			logx.FromContext(ctx).Debug("delay action", "duration_ms", a.DurationMS)
			select {
			case <-time.After(time.Duration(a.DurationMS) * time.Millisecond):
			case <-ctx.Done():
				return Result{}, ctx.Err()
			}

		case automation.ActionConditional:
			branch := a.Else
			if condition.EvalAction(ec.Envelope, a) {
				branch = a.Then
			}
			if len(branch) == 0 {
				continue
			}
			res, err := in.Execute(ctx, branch, ec)
			if err != nil {
				return Result{}, err
			}
			if res.Deferred {
				return res, nil
			}

		case automation.ActionSetField:
			out, err := path.Set(ec.Envelope, a.Field, a.Value)
			if err != nil {
				return Result{}, fmt.Errorf("set_field %q: %w", a.Field, err)
			}
			ec.Envelope = out
			ec.Dirty = true

		case automation.ActionMoveToPhase:
			return Result{Deferred: true, TargetPhase: a.Phase}, nil

		default:
			return Result{}, fmt.Errorf("unknown action type %q", a.Type)
		}
	}
	return Result{}, nil
}
