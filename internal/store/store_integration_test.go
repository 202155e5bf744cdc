package store

import (
	"encoding/json"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/derivia/orchepy/internal/model"
)

func newTestWorkflow() *model.Workflow {
	return &model.Workflow{
		Name:         "Expense Approval",
		Phases:       []string{"Submitted", "Review", "Approved", "Rejected"},
		InitialPhase: "Submitted",
		Active:       true,
	}
}

func TestWorkflowRepo_CreateThenGet_RoundTrips(t *testing.T) {
	s, ctx := setupTestStore(t)
	wf := newTestWorkflow()
	require.NoError(t, s.Workflows.Create(ctx, wf))
	require.NotEmpty(t, wf.ID)

	got, err := s.Workflows.Get(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, wf.Name, got.Name)
	assert.Equal(t, wf.Phases, got.Phases)
	assert.Equal(t, wf.InitialPhase, got.InitialPhase)
}

func TestWorkflowRepo_Get_MissingReturnsNotFound(t *testing.T) {
	s, ctx := setupTestStore(t)
	_, err := s.Workflows.Get(ctx, "00000000-0000-0000-0000-000000000000")
	require.Error(t, err)
}

func TestCaseRepo_Create_WritesInitialHistoryEntry(t *testing.T) {
	s, ctx := setupTestStore(t)
	wf := newTestWorkflow()
	require.NoError(t, s.Workflows.Create(ctx, wf))

	kase := &model.Case{
		WorkflowID:   wf.ID,
		CurrentPhase: wf.InitialPhase,
		Data:         json.RawMessage(`{"amount":100}`),
		Status:       model.StatusActive,
	}
	entry, err := s.Cases.Create(ctx, kase, "tester")
	require.NoError(t, err)
	assert.Nil(t, entry.FromPhase)
	assert.Equal(t, wf.InitialPhase, entry.ToPhase)

	history, err := s.History.ForCase(ctx, kase.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
}

func TestCaseRepo_UpdatePhase_AppendsHistoryAndMovesPhase(t *testing.T) {
	s, ctx := setupTestStore(t)
	wf := newTestWorkflow()
	require.NoError(t, s.Workflows.Create(ctx, wf))

	kase := &model.Case{WorkflowID: wf.ID, CurrentPhase: wf.InitialPhase, Status: model.StatusActive}
	_, err := s.Cases.Create(ctx, kase, "tester")
	require.NoError(t, err)

	err = s.WithTx(ctx, func(tx pgx.Tx) error {
		kase.CurrentPhase = "Review"
		_, err := s.Cases.UpdatePhase(ctx, tx, kase, "submitted for review", "tester")
		return err
	})
	require.NoError(t, err)

	got, err := s.Cases.Get(ctx, kase.ID)
	require.NoError(t, err)
	assert.Equal(t, "Review", got.CurrentPhase)
	require.NotNil(t, got.PreviousPhase)
	assert.Equal(t, wf.InitialPhase, *got.PreviousPhase)

	history, err := s.History.ForCase(ctx, kase.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestCaseRepo_LockForUpdate_FailsForMissingCase(t *testing.T) {
	s, ctx := setupTestStore(t)
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := s.Cases.LockForUpdate(ctx, tx, "00000000-0000-0000-0000-000000000000")
		return err
	})
	require.Error(t, err)
}
