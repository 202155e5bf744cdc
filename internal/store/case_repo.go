package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/derivia/orchepy/internal/model"
	"github.com/derivia/orchepy/internal/orcherr"
)

var caseColumns = []string{
	"id", "workflow_id", "current_phase", "previous_phase", "data", "status",
	"metadata", "created_at", "updated_at", "completed_at", "phase_entered_at",
}

type caseRow struct {
	ID             string          `db:"id"`
	WorkflowID     string          `db:"workflow_id"`
	CurrentPhase   string          `db:"current_phase"`
	PreviousPhase  *string         `db:"previous_phase"`
	Data           json.RawMessage `db:"data"`
	Status         string          `db:"status"`
	Metadata       json.RawMessage `db:"metadata"`
	CreatedAt      time.Time       `db:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at"`
	CompletedAt    *time.Time      `db:"completed_at"`
	PhaseEnteredAt time.Time       `db:"phase_entered_at"`
}

func (r *caseRow) toModel() *model.Case {
	return &model.Case{
		ID:             r.ID,
		WorkflowID:     r.WorkflowID,
		CurrentPhase:   r.CurrentPhase,
		PreviousPhase:  r.PreviousPhase,
		Data:           r.Data,
		Status:         model.CaseStatus(r.Status),
		Metadata:       r.Metadata,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
		CompletedAt:    r.CompletedAt,
		PhaseEnteredAt: r.PhaseEnteredAt,
	}
}

// CaseRepo persists Case instances and their history.
type CaseRepo struct {
	db DB
}

// Create writes the case row and its initial history entry
// (from_phase=null) in one transaction.
func (r *CaseRepo) Create(ctx context.Context, c *model.Case, triggeredBy string) (*model.HistoryEntry, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt, c.PhaseEnteredAt = now, now, now
	if c.Status == "" {
		c.Status = model.StatusActive
	}
	if len(c.Data) == 0 {
		c.Data = json.RawMessage(`{}`)
	}
	if len(c.Metadata) == 0 {
		c.Metadata = json.RawMessage(`{}`)
	}

	var entry *model.HistoryEntry
	err := WithTx(ctx, r.db, func(tx pgx.Tx) error {
		sql, args, err := psql.Insert("orchepy_cases").
			Columns(caseColumns...).
			Values(c.ID, c.WorkflowID, c.CurrentPhase, c.PreviousPhase, []byte(c.Data), string(c.Status),
				[]byte(c.Metadata), c.CreatedAt, c.UpdatedAt, c.CompletedAt, c.PhaseEnteredAt).
			ToSql()
		if err != nil {
			return fmt.Errorf("building case insert: %w", err)
		}
		if _, err := tx.Exec(ctx, sql, args...); err != nil {
			return err
		}
		entry, err = insertHistory(ctx, tx, c.ID, nil, c.CurrentPhase, "", triggeredBy, now)
		return err
	})
	if err != nil {
		return nil, orcherr.Wrap(orcherr.KindInfrastructure, "creating case", err)
	}
	return entry, nil
}

// Get fetches a case by id.
func (r *CaseRepo) Get(ctx context.Context, id string) (*model.Case, error) {
	return r.getWith(ctx, r.db, id)
}

func (r *CaseRepo) getWith(ctx context.Context, q pgxscan.Querier, id string) (*model.Case, error) {
	sql, args, err := psql.Select(caseColumns...).From("orchepy_cases").Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select: %w", err)
	}
	var row caseRow
	if err := pgxscan.Get(ctx, q, &row, sql, args...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, orcherr.New(orcherr.KindNotFound, "case not found")
		}
		return nil, orcherr.Wrap(orcherr.KindInfrastructure, "fetching case", err)
	}
	return row.toModel(), nil
}

// LockForUpdate fetches a case inside tx with SELECT ... FOR UPDATE,
// serializing concurrent transitions/patches on the same case, mirroring
// compozy-compozy's getStateForUpdateTx.
func (r *CaseRepo) LockForUpdate(ctx context.Context, tx pgx.Tx, id string) (*model.Case, error) {
	sql, args, err := psql.Select(caseColumns...).
		From("orchepy_cases").
		Where(squirrel.Eq{"id": id}).
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select for update: %w", err)
	}
	var row caseRow
	if err := pgxscan.Get(ctx, tx, &row, sql, args...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, orcherr.New(orcherr.KindNotFound, "case not found")
		}
		return nil, orcherr.Wrap(orcherr.KindInfrastructure, "locking case", err)
	}
	return row.toModel(), nil
}

// ListFilter narrows List to a subset of cases.
type ListFilter struct {
	WorkflowID   *string
	Status       *string
	CurrentPhase *string
	Limit        int
	Offset       int
}

// List returns cases matching filter, newest first.
func (r *CaseRepo) List(ctx context.Context, filter ListFilter) ([]*model.Case, error) {
	sb := psql.Select(caseColumns...).From("orchepy_cases")
	if filter.WorkflowID != nil {
		sb = sb.Where(squirrel.Eq{"workflow_id": *filter.WorkflowID})
	}
	if filter.Status != nil {
		sb = sb.Where(squirrel.Eq{"status": *filter.Status})
	}
	if filter.CurrentPhase != nil {
		sb = sb.Where(squirrel.Eq{"current_phase": *filter.CurrentPhase})
	}
	sb = sb.OrderBy("created_at DESC")
	if filter.Limit > 0 {
		sb = sb.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		sb = sb.Offset(uint64(filter.Offset))
	}
	sql, args, err := sb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select: %w", err)
	}
	var rows []caseRow
	if err := pgxscan.Select(ctx, r.db, &rows, sql, args...); err != nil {
		return nil, orcherr.Wrap(orcherr.KindInfrastructure, "listing cases", err)
	}
	out := make([]*model.Case, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toModel())
	}
	return out, nil
}

// UpdateData persists a case's data/metadata/status columns within tx,
// without touching current_phase or writing history.
func (r *CaseRepo) UpdateData(ctx context.Context, tx pgx.Tx, c *model.Case) error {
	c.UpdatedAt = time.Now().UTC()
	sql, args, err := psql.Update("orchepy_cases").
		Set("data", []byte(c.Data)).
		Set("metadata", []byte(c.Metadata)).
		Set("status", string(c.Status)).
		Set("completed_at", c.CompletedAt).
		Set("updated_at", c.UpdatedAt).
		Where(squirrel.Eq{"id": c.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building update: %w", err)
	}
	if _, err := tx.Exec(ctx, sql, args...); err != nil {
		return orcherr.Wrap(orcherr.KindInfrastructure, "updating case data", err)
	}
	return nil
}

// UpdatePhase writes the case's new phase and appends a history row within
// tx, atomically, bumping phase_entered_at.
func (r *CaseRepo) UpdatePhase(ctx context.Context, tx pgx.Tx, c *model.Case, reason, triggeredBy string) (*model.HistoryEntry, error) {
	now := time.Now().UTC()
	c.PhaseEnteredAt = now
	c.UpdatedAt = now

	// c.CurrentPhase already holds the new phase; the phase being left is
	// the stored current_phase, which the UPDATE copies into previous_phase.
	sql, args, err := psql.Update("orchepy_cases").
		Set("previous_phase", squirrel.Expr("current_phase")).
		Set("current_phase", c.CurrentPhase).
		Set("data", []byte(c.Data)).
		Set("metadata", []byte(c.Metadata)).
		Set("status", string(c.Status)).
		Set("completed_at", c.CompletedAt).
		Set("phase_entered_at", c.PhaseEnteredAt).
		Set("updated_at", c.UpdatedAt).
		Where(squirrel.Eq{"id": c.ID}).
		Suffix("RETURNING previous_phase").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building update: %w", err)
	}
	var fromPhase string
	if err := tx.QueryRow(ctx, sql, args...).Scan(&fromPhase); err != nil {
		return nil, orcherr.Wrap(orcherr.KindInfrastructure, "updating case phase", err)
	}
	c.PreviousPhase = &fromPhase
	return insertHistory(ctx, tx, c.ID, &fromPhase, c.CurrentPhase, reason, triggeredBy, now)
}

func insertHistory(ctx context.Context, tx pgx.Tx, caseID string, fromPhase *string, toPhase, reason, triggeredBy string, at time.Time) (*model.HistoryEntry, error) {
	entry := &model.HistoryEntry{
		ID:             uuid.NewString(),
		CaseID:         caseID,
		FromPhase:      fromPhase,
		ToPhase:        toPhase,
		Reason:         reason,
		TriggeredBy:    triggeredBy,
		TransitionedAt: at,
	}
	sql, args, err := psql.Insert("orchepy_case_history").
		Columns("id", "case_id", "from_phase", "to_phase", "reason", "triggered_by", "transitioned_at").
		Values(entry.ID, entry.CaseID, entry.FromPhase, entry.ToPhase, nullableString(entry.Reason),
			nullableString(entry.TriggeredBy), entry.TransitionedAt).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building history insert: %w", err)
	}
	if _, err := tx.Exec(ctx, sql, args...); err != nil {
		return nil, err
	}
	return entry, nil
}

// HistoryRepo reads the append-only case history audit trail.
type HistoryRepo struct {
	db DB
}

// ForCase returns every history entry for caseID, ordered by transition
// time. Entries with equal transition times are ordered by id, a random
// UUID, so their order does not follow insertion order.
func (h *HistoryRepo) ForCase(ctx context.Context, caseID string) ([]*model.HistoryEntry, error) {
	sql, args, err := psql.Select("id", "case_id", "from_phase", "to_phase",
		"COALESCE(reason, '') AS reason", "COALESCE(triggered_by, '') AS triggered_by", "transitioned_at").
		From("orchepy_case_history").
		Where(squirrel.Eq{"case_id": caseID}).
		OrderBy("transitioned_at ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select: %w", err)
	}
	var entries []*model.HistoryEntry
	if err := pgxscan.Select(ctx, h.db, &entries, sql, args...); err != nil {
		return nil, orcherr.Wrap(orcherr.KindInfrastructure, "fetching case history", err)
	}
	return entries, nil
}
