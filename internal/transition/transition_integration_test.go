package transition

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/derivia/orchepy/internal/model"
	"github.com/derivia/orchepy/internal/orcherr"
	"github.com/derivia/orchepy/internal/store"
	"github.com/derivia/orchepy/internal/webhook"
)

// setupController mirrors internal/store's own gated test harness: it needs
// a real Postgres instance, so it's an opt-in integration suite rather than
// part of the default unit run.
func setupController(t *testing.T) (*Controller, *store.Store, context.Context) {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping Postgres-backed integration test")
	}

	ctx := context.Background()
	require.NoError(t, store.Migrate(dsn))

	pool, err := store.Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, "TRUNCATE orchepy_case_history, orchepy_cases, orchepy_workflows CASCADE")
	require.NoError(t, err)

	s := store.New(pool)
	dispatcher := webhook.New(2 * time.Second)
	c := New(s, dispatcher, 16, false, false)
	return c, s, ctx
}

func TestController_CreateCase_EntersInitialPhase(t *testing.T) {
	c, s, ctx := setupController(t)
	wf := &model.Workflow{Name: "wf", Phases: []string{"Submitted", "Review"}, InitialPhase: "Submitted", Active: true}
	require.NoError(t, s.Workflows.Create(ctx, wf))

	kase, err := c.CreateCase(ctx, wf.ID, json.RawMessage(`{"amount":10}`), json.RawMessage(`{}`), "tester")
	require.NoError(t, err)
	assert.Equal(t, "Submitted", kase.CurrentPhase)
}

func TestController_MoveCase_RunsAutomationsAndAppendsHistory(t *testing.T) {
	c, s, ctx := setupController(t)
	automations := json.RawMessage(`[
		{"trigger":"on_enter","phase":"Review","actions":[
			{"type":"set_field","field":"data.reviewed","value":true}
		]}
	]`)
	wf := &model.Workflow{
		Name: "wf", Phases: []string{"Submitted", "Review"}, InitialPhase: "Submitted",
		Active: true, Automations: automations,
	}
	require.NoError(t, s.Workflows.Create(ctx, wf))

	kase, err := c.CreateCase(ctx, wf.ID, json.RawMessage(`{}`), json.RawMessage(`{}`), "tester")
	require.NoError(t, err)

	moved, err := c.MoveCase(ctx, kase.ID, "Review", "manual review", "tester")
	require.NoError(t, err)
	assert.Equal(t, "Review", moved.CurrentPhase)
	assert.JSONEq(t, `{"reviewed":true}`, string(moved.Data))

	history, err := s.History.ForCase(ctx, kase.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestController_MoveCase_SamePhaseIsNoop(t *testing.T) {
	c, s, ctx := setupController(t)
	wf := &model.Workflow{Name: "wf", Phases: []string{"Submitted"}, InitialPhase: "Submitted", Active: true}
	require.NoError(t, s.Workflows.Create(ctx, wf))

	kase, err := c.CreateCase(ctx, wf.ID, json.RawMessage(`{}`), json.RawMessage(`{}`), "tester")
	require.NoError(t, err)

	_, err = c.MoveCase(ctx, kase.ID, "Submitted", "", "tester")
	require.NoError(t, err)

	history, err := s.History.ForCase(ctx, kase.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestController_MoveCase_RejectsUnknownPhase(t *testing.T) {
	c, s, ctx := setupController(t)
	wf := &model.Workflow{Name: "wf", Phases: []string{"Submitted"}, InitialPhase: "Submitted", Active: true}
	require.NoError(t, s.Workflows.Create(ctx, wf))

	kase, err := c.CreateCase(ctx, wf.ID, json.RawMessage(`{}`), json.RawMessage(`{}`), "tester")
	require.NoError(t, err)

	_, err = c.MoveCase(ctx, kase.ID, "Ghost", "", "tester")
	require.Error(t, err)
	assert.Equal(t, 400, orcherr.StatusCode(err))
}

func TestController_MoveCase_ChainedMoveToPhase_StopsAtMaxDepth(t *testing.T) {
	c, s, ctx := setupController(t)
	automations := json.RawMessage(`[
		{"trigger":"on_enter","phase":"A","actions":[{"type":"move_to_phase","phase":"B"}]},
		{"trigger":"on_enter","phase":"B","actions":[{"type":"move_to_phase","phase":"A"}]}
	]`)
	wf := &model.Workflow{
		Name: "wf", Phases: []string{"Start", "A", "B"}, InitialPhase: "Start",
		Active: true, Automations: automations,
	}
	require.NoError(t, s.Workflows.Create(ctx, wf))

	kase, err := c.CreateCase(ctx, wf.ID, json.RawMessage(`{}`), json.RawMessage(`{}`), "tester")
	require.NoError(t, err)

	_, err = c.MoveCase(ctx, kase.ID, "A", "", "tester")
	require.Error(t, err)
	assert.Equal(t, 422, orcherr.StatusCode(err))

	// Each redirect step commits as it completes, so the failure leaves the
	// case in the last phase it durably reached (A or B) rather than rolling
	// the whole chain back to where MoveCase started it.
	final, err := s.Cases.Get(ctx, kase.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "Start", final.CurrentPhase)

	history, err := s.History.ForCase(ctx, kase.ID)
	require.NoError(t, err)
	assert.Greater(t, len(history), 1, "redirect chain should have committed intermediate phase changes before AutomationLoop fired")
	assert.LessOrEqual(t, len(history), 17, "history should stay bounded by the max chain depth")
}
