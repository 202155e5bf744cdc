package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/derivia/orchepy/internal/model"
)

// These exercise only the validation path, which returns before the service
// ever touches its store — so a nil store is safe to construct against.

func TestWorkflowService_Create_RejectsEmptyName(t *testing.T) {
	s := NewWorkflowService(nil)
	w := &model.Workflow{Phases: []string{"A"}, InitialPhase: "A"}
	err := s.Create(context.Background(), w)
	require.Error(t, err)
}

func TestWorkflowService_Create_RejectsEmptyPhases(t *testing.T) {
	s := NewWorkflowService(nil)
	w := &model.Workflow{Name: "wf"}
	err := s.Create(context.Background(), w)
	require.Error(t, err)
}

func TestWorkflowService_Create_RejectsDuplicatePhases(t *testing.T) {
	s := NewWorkflowService(nil)
	w := &model.Workflow{Name: "wf", Phases: []string{"A", "A"}, InitialPhase: "A"}
	err := s.Create(context.Background(), w)
	require.Error(t, err)
}

func TestWorkflowService_Create_RejectsInitialPhaseNotMember(t *testing.T) {
	s := NewWorkflowService(nil)
	w := &model.Workflow{Name: "wf", Phases: []string{"A", "B"}, InitialPhase: "C"}
	err := s.Create(context.Background(), w)
	require.Error(t, err)
}

func TestWorkflowService_Create_RejectsAutomationReferencingUnknownPhase(t *testing.T) {
	s := NewWorkflowService(nil)
	w := &model.Workflow{
		Name: "wf", Phases: []string{"A", "B"}, InitialPhase: "A",
		Automations: json.RawMessage(`[{"trigger":"on_enter","phase":"Ghost","actions":[]}]`),
	}
	err := s.Create(context.Background(), w)
	require.Error(t, err)
}

func TestWorkflowService_Create_RejectsMoveToPhaseReferencingUnknownPhase(t *testing.T) {
	s := NewWorkflowService(nil)
	w := &model.Workflow{
		Name: "wf", Phases: []string{"A", "B"}, InitialPhase: "A",
		Automations: json.RawMessage(`[{"trigger":"on_enter","phase":"A","actions":[
			{"type":"move_to_phase","phase":"Ghost"}
		]}]`),
	}
	err := s.Create(context.Background(), w)
	require.Error(t, err)
}

func TestWorkflowService_Create_RejectsSLAConfigReferencingUnknownPhase(t *testing.T) {
	s := NewWorkflowService(nil)
	w := &model.Workflow{
		Name: "wf", Phases: []string{"A"}, InitialPhase: "A",
		SLAConfig: map[string]model.SLAPhaseConfig{"Ghost": {Hours: 1}},
	}
	err := s.Create(context.Background(), w)
	require.Error(t, err)
}

func TestDryRunAutomations_ReportsUnknownPhaseBinding(t *testing.T) {
	w := &model.Workflow{Name: "wf", Phases: []string{"A"}, InitialPhase: "A"}
	raw := json.RawMessage(`[{"trigger":"on_enter","phase":"Ghost","actions":[]}]`)
	issues, err := DryRunAutomations(raw, w)
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0], "Ghost")
}

func TestDryRunAutomations_NoIssuesForValidTree(t *testing.T) {
	w := &model.Workflow{Name: "wf", Phases: []string{"A", "B"}, InitialPhase: "A"}
	raw := json.RawMessage(`[{"trigger":"on_enter","phase":"A","actions":[
		{"type":"move_to_phase","phase":"B"}
	]}]`)
	issues, err := DryRunAutomations(raw, w)
	require.NoError(t, err)
	assert.Empty(t, issues)
}
