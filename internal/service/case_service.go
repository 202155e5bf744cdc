package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/derivia/orchepy/internal/model"
	"github.com/derivia/orchepy/internal/orcherr"
	"github.com/derivia/orchepy/internal/store"
	"github.com/derivia/orchepy/internal/transition"
)

// CaseService validates case-facing requests and delegates phase changes to
// the Transition Controller.
type CaseService struct {
	store      *store.Store
	controller *transition.Controller
}

// NewCaseService builds a CaseService.
func NewCaseService(s *store.Store, c *transition.Controller) *CaseService {
	return &CaseService{store: s, controller: c}
}

// Create starts a new case on workflowID via the controller.
func (s *CaseService) Create(ctx context.Context, workflowID string, data, metadata json.RawMessage, triggeredBy string) (*model.Case, error) {
	return s.controller.CreateCase(ctx, workflowID, data, metadata, triggeredBy)
}

// Get fetches a case by id.
func (s *CaseService) Get(ctx context.Context, id string) (*model.Case, error) {
	return s.store.Cases.Get(ctx, id)
}

// List returns cases matching filter.
func (s *CaseService) List(ctx context.Context, filter store.ListFilter) ([]*model.Case, error) {
	return s.store.Cases.List(ctx, filter)
}

// Move runs the phase transition pipeline for a case.
func (s *CaseService) Move(ctx context.Context, caseID, toPhase, reason, triggeredBy string) (*model.Case, error) {
	return s.controller.MoveCase(ctx, caseID, toPhase, reason, triggeredBy)
}

// PatchData shallow-merges patch into the case's data document and persists
// it without touching current_phase — the "no schema
// enforcement" rule. The read-merge-write runs under the same per-case row
// lock as a transition, so a patch can't race a concurrent move.
func (s *CaseService) PatchData(ctx context.Context, caseID string, patch json.RawMessage) (*model.Case, error) {
	var patchObj map[string]interface{}
	if err := json.Unmarshal(patch, &patchObj); err != nil {
		return nil, orcherr.Wrap(orcherr.KindValidation, "decoding patch body", err)
	}

	var kase *model.Case
	err := s.store.WithTx(ctx, func(tx pgx.Tx) error {
		locked, err := s.store.Cases.LockForUpdate(ctx, tx, caseID)
		if err != nil {
			return err
		}
		kase = locked

		var current map[string]interface{}
		if len(kase.Data) > 0 {
			if err := json.Unmarshal(kase.Data, &current); err != nil {
				return fmt.Errorf("decoding existing case data: %w", err)
			}
		}
		if current == nil {
			current = map[string]interface{}{}
		}
		for k, v := range patchObj {
			current[k] = v
		}

		merged, err := json.Marshal(current)
		if err != nil {
			return fmt.Errorf("encoding merged case data: %w", err)
		}
		kase.Data = merged

		return s.store.Cases.UpdateData(ctx, tx, kase)
	})
	if err != nil {
		return nil, err
	}
	return kase, nil
}

// History returns a case's append-only transition audit trail.
func (s *CaseService) History(ctx context.Context, caseID string) ([]*model.HistoryEntry, error) {
	return s.store.History.ForCase(ctx, caseID)
}
