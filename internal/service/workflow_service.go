// Package service holds the thin validators: they check
// input shape and phase-membership invariants, then delegate to the store
// or the transition controller for anything persistent.
package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/derivia/orchepy/internal/automation"
	"github.com/derivia/orchepy/internal/model"
	"github.com/derivia/orchepy/internal/orcherr"
	"github.com/derivia/orchepy/internal/store"
)

// WorkflowService validates and persists Workflow blueprints.
type WorkflowService struct {
	store *store.Store
}

// NewWorkflowService builds a WorkflowService.
func NewWorkflowService(s *store.Store) *WorkflowService {
	return &WorkflowService{store: s}
}

// Create validates w and inserts it.
func (s *WorkflowService) Create(ctx context.Context, w *model.Workflow) error {
	if err := s.validate(w); err != nil {
		return err
	}
	return s.store.Workflows.Create(ctx, w)
}

// Update validates w and overwrites the existing row with the same id.
func (s *WorkflowService) Update(ctx context.Context, w *model.Workflow) error {
	if err := s.validate(w); err != nil {
		return err
	}
	return s.store.Workflows.Update(ctx, w)
}

// Get fetches a workflow by id.
func (s *WorkflowService) Get(ctx context.Context, id string) (*model.Workflow, error) {
	return s.store.Workflows.Get(ctx, id)
}

// List returns every workflow.
func (s *WorkflowService) List(ctx context.Context) ([]*model.Workflow, error) {
	return s.store.Workflows.List(ctx)
}

// Delete removes a workflow and, via FK cascade, its cases and history.
func (s *WorkflowService) Delete(ctx context.Context, id string) error {
	return s.store.Workflows.Delete(ctx, id)
}

// validate enforces the workflow invariants: phases non-empty
// and unique, initial_phase a member, and every phase referenced by
// automations/sla_config a member of the phase list.
func (s *WorkflowService) validate(w *model.Workflow) error {
	if w.Name == "" {
		return orcherr.New(orcherr.KindValidation, "name is required")
	}
	if len(w.Phases) == 0 {
		return orcherr.New(orcherr.KindValidation, "phases must be non-empty")
	}
	seen := make(map[string]bool, len(w.Phases))
	for _, p := range w.Phases {
		if p == "" {
			return orcherr.New(orcherr.KindValidation, "phase names must be non-empty")
		}
		if seen[p] {
			return orcherr.New(orcherr.KindValidation, fmt.Sprintf("duplicate phase %q", p))
		}
		seen[p] = true
	}
	if !w.HasPhase(w.InitialPhase) {
		return orcherr.New(orcherr.KindValidation, fmt.Sprintf("initial_phase %q is not a member of phases", w.InitialPhase))
	}

	if len(w.Automations) > 0 {
		if issues, err := automation.ValidateSchema(w.Automations); err != nil {
			return fmt.Errorf("validating automations schema: %w", err)
		} else if len(issues) > 0 {
			return orcherr.New(orcherr.KindValidation, fmt.Sprintf("automations: %v", issues))
		}
		prog, err := automation.Parse(w.Automations)
		if err != nil {
			return orcherr.Wrap(orcherr.KindValidation, "parsing automations", err)
		}
		for _, b := range prog.Automations {
			if !w.HasPhase(b.Phase) {
				return orcherr.New(orcherr.KindValidation, fmt.Sprintf("automation binding references unknown phase %q", b.Phase))
			}
			if err := validatePhaseReferences(b.Actions, w); err != nil {
				return err
			}
		}
	}

	for phase := range w.SLAConfig {
		if !w.HasPhase(phase) {
			return orcherr.New(orcherr.KindValidation, fmt.Sprintf("sla_config references unknown phase %q", phase))
		}
	}
	return nil
}

func validatePhaseReferences(actions []automation.Action, w *model.Workflow) error {
	for _, a := range actions {
		if a.Type == automation.ActionMoveToPhase && !w.HasPhase(a.Phase) {
			return orcherr.New(orcherr.KindValidation, fmt.Sprintf("move_to_phase references unknown phase %q", a.Phase))
		}
		if err := validatePhaseReferences(a.Then, w); err != nil {
			return err
		}
		if err := validatePhaseReferences(a.Else, w); err != nil {
			return err
		}
	}
	return nil
}

// DryRunAutomations parses and phase-validates raw against w's phase list
// without persisting anything — the supplemented dry-run endpoint of
// letting a client check an automation tree before saving it.
func DryRunAutomations(raw json.RawMessage, w *model.Workflow) ([]string, error) {
	if issues, err := automation.ValidateSchema(raw); err != nil {
		return nil, err
	} else if len(issues) > 0 {
		return issues, nil
	}
	prog, err := automation.Parse(raw)
	if err != nil {
		return []string{err.Error()}, nil
	}
	var issues []string
	for _, b := range prog.Automations {
		if !w.HasPhase(b.Phase) {
			issues = append(issues, fmt.Sprintf("binding references unknown phase %q", b.Phase))
		}
		if err := validatePhaseReferences(b.Actions, w); err != nil {
			issues = append(issues, err.Error())
		}
	}
	return issues, nil
}
