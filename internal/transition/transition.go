// Package transition is the Transition Controller: it owns
// case creation and phase movement, serializing each case's transitions with
// a session-level advisory lock held for the duration of the move and
// driving on_exit/on_enter automations through a bounded redirection chain.
package transition

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"

	"github.com/jackc/pgx/v5"

	"github.com/derivia/orchepy/internal/automation"
	"github.com/derivia/orchepy/internal/automation/interp"
	"github.com/derivia/orchepy/internal/logx"
	"github.com/derivia/orchepy/internal/model"
	"github.com/derivia/orchepy/internal/orcherr"
	"github.com/derivia/orchepy/internal/path"
	"github.com/derivia/orchepy/internal/store"
	"github.com/derivia/orchepy/internal/webhook"
)

// Controller creates and moves cases, wiring the store, interpreter, and
// global webhook dispatch together.
type Controller struct {
	store               *store.Store
	interp              *interp.Interpreter
	dispatcher          *webhook.Dispatcher
	maxChainDepth       int
	webhookOnCaseCreate bool
	webhookOnCaseMove   bool
}

// New builds a Controller. maxChainDepth bounds move_to_phase redirection
// chains (the AutomationLoop guard); the webhookOn* flags gate
// the workflow-level case.created/case.moved notifications.
func New(s *store.Store, dispatcher *webhook.Dispatcher, maxChainDepth int, webhookOnCaseCreate, webhookOnCaseMove bool) *Controller {
	if maxChainDepth <= 0 {
		maxChainDepth = 16
	}
	return &Controller{
		store:               s,
		interp:              interp.New(dispatcher),
		dispatcher:          dispatcher,
		maxChainDepth:       maxChainDepth,
		webhookOnCaseCreate: webhookOnCaseCreate,
		webhookOnCaseMove:   webhookOnCaseMove,
	}
}

// lockKey derives the bigint key pg_advisory_lock needs from a case id.
func lockKey(caseID string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(caseID))
	return int64(h.Sum64())
}

// withCaseLock checks a connection out of the pool, holds a session-level
// advisory lock on caseID for the duration of fn, and releases both
// afterward. Unlike a lock scoped to one transaction, this lets fn run
// several sequential transactions — each committing durably as it
// completes — while still serializing every step against other callers
// working the same case.
func (c *Controller) withCaseLock(ctx context.Context, caseID string, fn func(conn store.Conn) error) error {
	conn, err := c.store.AcquireConn(ctx)
	if err != nil {
		return orcherr.Wrap(orcherr.KindInfrastructure, "acquiring connection", err)
	}
	defer conn.Release()

	key := lockKey(caseID)
	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", key); err != nil {
		return orcherr.Wrap(orcherr.KindInfrastructure, "acquiring case lock", err)
	}
	defer func() {
		if _, err := conn.Exec(context.Background(), "SELECT pg_advisory_unlock($1)", key); err != nil {
			logx.FromContext(ctx).Warn("releasing case advisory lock", "case_id", caseID, "error", err)
		}
	}()

	return fn(conn)
}

// CreateCase instantiates a new Case in the workflow's initial phase, runs
// that phase's on_enter automations, and fires case.created if configured.
func (c *Controller) CreateCase(ctx context.Context, workflowID string, data, metadata json.RawMessage, triggeredBy string) (*model.Case, error) {
	wf, err := c.store.Workflows.Get(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if !wf.Active {
		return nil, orcherr.New(orcherr.KindConflict, "workflow is not active")
	}
	if !wf.HasPhase(wf.InitialPhase) {
		return nil, orcherr.New(orcherr.KindValidation, "workflow initial_phase is not a member of its own phase list")
	}

	kase := &model.Case{
		WorkflowID:   wf.ID,
		CurrentPhase: wf.InitialPhase,
		Data:         data,
		Metadata:     metadata,
		Status:       model.StatusActive,
	}
	if _, err := c.store.Cases.Create(ctx, kase, triggeredBy); err != nil {
		return nil, err
	}

	err = c.withCaseLock(ctx, kase.ID, func(conn store.Conn) error {
		if err := store.WithConnTx(ctx, conn, func(tx pgx.Tx) error {
			locked, err := c.store.Cases.LockForUpdate(ctx, tx, kase.ID)
			if err != nil {
				return err
			}
			*kase = *locked
			return nil
		}); err != nil {
			return err
		}
		return c.driveEnter(ctx, conn, wf, kase, triggeredBy, 0)
	})
	if err != nil {
		return nil, err
	}

	if c.webhookOnCaseCreate {
		c.notifyGlobal(ctx, wf, kase, "case.created", nil, kase.CurrentPhase)
	}
	return kase, nil
}

// MoveCase transitions a case to toPhase, running the departing phase's
// on_exit and the arriving phase's on_enter automations while a
// session-level advisory lock on the case remains held, chasing any
// move_to_phase redirections up to maxChainDepth. Each step along the
// redirect chain commits as soon as it completes, so a chain that hits
// AutomationLoop leaves the case in the last phase it durably reached
// instead of rolling the whole move back.
func (c *Controller) MoveCase(ctx context.Context, caseID, toPhase, reason, triggeredBy string) (*model.Case, error) {
	var kase *model.Case
	var wf *model.Workflow
	var fromPhase string
	moved := false

	err := c.withCaseLock(ctx, caseID, func(conn store.Conn) error {
		if err := store.WithConnTx(ctx, conn, func(tx pgx.Tx) error {
			locked, err := c.store.Cases.LockForUpdate(ctx, tx, caseID)
			if err != nil {
				return err
			}
			kase = locked

			wf, err = c.store.Workflows.Get(ctx, kase.WorkflowID)
			if err != nil {
				return err
			}
			if !wf.Active {
				return orcherr.New(orcherr.KindConflict, "workflow is not active")
			}
			if !wf.HasPhase(toPhase) {
				return orcherr.New(orcherr.KindValidation, fmt.Sprintf("phase %q is not a member of workflow %q", toPhase, wf.ID))
			}
			if kase.CurrentPhase == toPhase {
				return nil
			}
			fromPhase = kase.CurrentPhase
			moved = true
			return nil
		}); err != nil {
			return err
		}
		if !moved {
			return nil
		}
		return c.driveMove(ctx, conn, wf, kase, toPhase, reason, triggeredBy, 0)
	})
	if err != nil {
		return nil, err
	}

	if moved && c.webhookOnCaseMove {
		c.notifyGlobal(ctx, wf, kase, "case.moved", &fromPhase, kase.CurrentPhase)
	}
	return kase, nil
}

// driveMove performs one logical move: runs on_exit for the departing
// phase in its own transaction, writes the new phase and history row in
// another, then runs on_enter for the arriving phase and recurses for any
// deferred move_to_phase — each step committing independently under the
// advisory lock conn holds, bounded by depth < maxChainDepth.
func (c *Controller) driveMove(ctx context.Context, conn store.Conn, wf *model.Workflow, kase *model.Case, toPhase, reason, triggeredBy string, depth int) error {
	if depth >= c.maxChainDepth {
		return orcherr.New(orcherr.KindAutomationLoop, fmt.Sprintf("automation chain exceeded max depth %d", c.maxChainDepth))
	}

	prog, err := automation.Parse(wf.Automations)
	if err != nil {
		return fmt.Errorf("transition: parsing automations: %w", err)
	}

	exitActions := prog.BindingsFor(automation.OnExit, kase.CurrentPhase)
	var deferredPhase *string
	if err := store.WithConnTx(ctx, conn, func(tx pgx.Tx) error {
		var runErr error
		deferredPhase, runErr = c.run(ctx, tx, exitActions, wf, kase, automation.OnExit, triggeredBy)
		return runErr
	}); err != nil {
		return err
	}

	nextPhase := toPhase
	if deferredPhase != nil {
		// on_exit itself redirected; that target wins per the
		// "first deferred transition in a trigger wins" rule.
		nextPhase = *deferredPhase
	}

	fromPhase := kase.CurrentPhase
	kase.CurrentPhase = nextPhase
	if err := store.WithConnTx(ctx, conn, func(tx pgx.Tx) error {
		_, err := c.store.Cases.UpdatePhase(ctx, tx, kase, reason, triggeredBy)
		return err
	}); err != nil {
		return err
	}
	logx.FromContext(ctx).Info("case moved", "case_id", kase.ID, "from", fromPhase, "to", nextPhase)

	return c.driveEnter(ctx, conn, wf, kase, triggeredBy, depth)
}

// driveEnter runs the arriving phase's on_enter bindings in their own
// transaction and chases a deferred move_to_phase, if any, through another
// driveMove step.
func (c *Controller) driveEnter(ctx context.Context, conn store.Conn, wf *model.Workflow, kase *model.Case, triggeredBy string, depth int) error {
	prog, err := automation.Parse(wf.Automations)
	if err != nil {
		return fmt.Errorf("transition: parsing automations: %w", err)
	}
	enterActions := prog.BindingsFor(automation.OnEnter, kase.CurrentPhase)
	var deferredPhase *string
	if err := store.WithConnTx(ctx, conn, func(tx pgx.Tx) error {
		var runErr error
		deferredPhase, runErr = c.run(ctx, tx, enterActions, wf, kase, automation.OnEnter, triggeredBy)
		return runErr
	}); err != nil {
		return err
	}
	if deferredPhase != nil {
		return c.driveMove(ctx, conn, wf, kase, *deferredPhase, "automation redirect", triggeredBy, depth+1)
	}
	return nil
}

// run executes actions through the interpreter, flushing any set_field
// mutations to the case's data/metadata columns once the list completes
// (the "flush dirty case once" rule), and returns a deferred
// move_to_phase target if the list ended with one. Empty action lists are a
// no-op (no envelope build, no flush).
func (c *Controller) run(ctx context.Context, tx pgx.Tx, actions []automation.Action, wf *model.Workflow, kase *model.Case, trigger automation.Trigger, triggeredBy string) (*string, error) {
	if len(actions) == 0 {
		return nil, nil
	}

	envelope, err := path.Envelope(kase.CurrentPhase, kase.PreviousPhase, string(kase.Status), kase.Data, kase.Metadata)
	if err != nil {
		return nil, err
	}

	ec := &interp.Context{
		Envelope:   envelope,
		Responses:  webhook.Responses{},
		Trigger:    string(trigger),
		ToPhase:    kase.CurrentPhase,
		CaseID:     kase.ID,
		WorkflowID: wf.ID,
	}
	if kase.PreviousPhase != nil {
		ec.FromPhase = *kase.PreviousPhase
	}

	result, err := c.interp.Execute(ctx, actions, ec)
	if err != nil {
		return nil, err
	}

	if ec.Dirty {
		kase.Data = path.GetRaw(ec.Envelope, "data")
		kase.Metadata = path.GetRaw(ec.Envelope, "metadata")
		if err := c.store.Cases.UpdateData(ctx, tx, kase); err != nil {
			return nil, err
		}
	}

	if result.Deferred {
		return &result.TargetPhase, nil
	}
	return nil, nil
}

// globalEventPayload is the shape case.created/case.moved notifications
// carry, distinct from the per-action default envelope: callers subscribe
// to event_type, not to trigger/from_phase/to_phase at the top level.
type globalEventPayload struct {
	EventType string          `json:"event_type"`
	Data      globalEventData `json:"data"`
}

type globalEventData struct {
	CaseID     string          `json:"case_id"`
	WorkflowID string          `json:"workflow_id"`
	ToPhase    string          `json:"to_phase"`
	FromPhase  *string         `json:"from_phase"`
	CaseData   json.RawMessage `json:"case_data"`
}

// notifyGlobal dispatches the workflow-level case.created/case.moved
// webhook as a best-effort side effect: failures are logged, never returned
// to the caller, since these notifications sit outside the automation
// on_error policy and run after the transition has already committed.
func (c *Controller) notifyGlobal(ctx context.Context, wf *model.Workflow, kase *model.Case, eventName string, fromPhase *string, toPhase string) {
	if wf.WebhookURL == "" {
		return
	}

	payload := globalEventPayload{
		EventType: eventName,
		Data: globalEventData{
			CaseID:     kase.ID,
			WorkflowID: wf.ID,
			ToPhase:    toPhase,
			FromPhase:  fromPhase,
			CaseData:   kase.Data,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		logx.FromContext(ctx).Warn("global webhook payload build failed", "case_id", kase.ID, "error", err)
		return
	}

	action := automation.Action{
		Type:    automation.ActionWebhook,
		URL:     wf.WebhookURL,
		Method:  "POST",
		OnError: automation.OnErrorContinue,
		Name:    eventName,
		Body:    body,
	}
	if err := c.dispatcher.Dispatch(ctx, action, nil, webhook.Responses{}, webhook.Envelope{}); err != nil {
		logx.FromContext(ctx).Warn("global webhook failed", "event", eventName, "case_id", kase.ID, "error", err)
	}
}
