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

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

var workflowColumns = []string{
	"id", "name", "phases", "initial_phase", "webhook_url",
	"automations", "sla_config", "active", "created_at", "updated_at",
}

type workflowRow struct {
	ID           string          `db:"id"`
	Name         string          `db:"name"`
	Phases       []string        `db:"phases"`
	InitialPhase string          `db:"initial_phase"`
	WebhookURL   *string         `db:"webhook_url"`
	Automations  json.RawMessage `db:"automations"`
	SLAConfig    json.RawMessage `db:"sla_config"`
	Active       bool            `db:"active"`
	CreatedAt    time.Time       `db:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at"`
}

func (r *workflowRow) toModel() (*model.Workflow, error) {
	w := &model.Workflow{
		ID:           r.ID,
		Name:         r.Name,
		Phases:       r.Phases,
		InitialPhase: r.InitialPhase,
		Automations:  r.Automations,
		Active:       r.Active,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	if r.WebhookURL != nil {
		w.WebhookURL = *r.WebhookURL
	}
	if len(r.SLAConfig) > 0 {
		if err := json.Unmarshal(r.SLAConfig, &w.SLAConfig); err != nil {
			return nil, fmt.Errorf("decoding sla_config: %w", err)
		}
	}
	return w, nil
}

// WorkflowRepo persists Workflow blueprints.
type WorkflowRepo struct {
	db DB
}

// Create inserts a new workflow row.
func (r *WorkflowRepo) Create(ctx context.Context, w *model.Workflow) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	w.CreatedAt, w.UpdatedAt = now, now

	sla, err := json.Marshal(w.SLAConfig)
	if err != nil {
		return fmt.Errorf("encoding sla_config: %w", err)
	}

	sql, args, err := psql.Insert("orchepy_workflows").
		Columns(workflowColumns...).
		Values(w.ID, w.Name, w.Phases, w.InitialPhase, nullableString(w.WebhookURL),
			nullableRaw(w.Automations), sla, w.Active, w.CreatedAt, w.UpdatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("building insert: %w", err)
	}
	if _, err := r.db.Exec(ctx, sql, args...); err != nil {
		return orcherr.Wrap(orcherr.KindInfrastructure, "inserting workflow", err)
	}
	return nil
}

// Update overwrites an existing workflow's mutable fields.
func (r *WorkflowRepo) Update(ctx context.Context, w *model.Workflow) error {
	w.UpdatedAt = time.Now().UTC()
	sla, err := json.Marshal(w.SLAConfig)
	if err != nil {
		return fmt.Errorf("encoding sla_config: %w", err)
	}

	sql, args, err := psql.Update("orchepy_workflows").
		Set("name", w.Name).
		Set("phases", w.Phases).
		Set("initial_phase", w.InitialPhase).
		Set("webhook_url", nullableString(w.WebhookURL)).
		Set("automations", nullableRaw(w.Automations)).
		Set("sla_config", sla).
		Set("active", w.Active).
		Set("updated_at", w.UpdatedAt).
		Where(squirrel.Eq{"id": w.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building update: %w", err)
	}
	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return orcherr.Wrap(orcherr.KindInfrastructure, "updating workflow", err)
	}
	if tag.RowsAffected() == 0 {
		return orcherr.New(orcherr.KindNotFound, "workflow not found")
	}
	return nil
}

// Get fetches a single workflow by id.
func (r *WorkflowRepo) Get(ctx context.Context, id string) (*model.Workflow, error) {
	sql, args, err := psql.Select(workflowColumns...).
		From("orchepy_workflows").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select: %w", err)
	}
	var row workflowRow
	if err := pgxscan.Get(ctx, r.db, &row, sql, args...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, orcherr.New(orcherr.KindNotFound, "workflow not found")
		}
		return nil, orcherr.Wrap(orcherr.KindInfrastructure, "fetching workflow", err)
	}
	return row.toModel()
}

// List returns every workflow, newest first.
func (r *WorkflowRepo) List(ctx context.Context) ([]*model.Workflow, error) {
	sql, args, err := psql.Select(workflowColumns...).
		From("orchepy_workflows").
		OrderBy("created_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select: %w", err)
	}
	var rows []workflowRow
	if err := pgxscan.Select(ctx, r.db, &rows, sql, args...); err != nil {
		return nil, orcherr.Wrap(orcherr.KindInfrastructure, "listing workflows", err)
	}
	out := make([]*model.Workflow, 0, len(rows))
	for i := range rows {
		w, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}

// Delete removes a workflow; cascades to cases and history via FK per
// the workflow table schema.
func (r *WorkflowRepo) Delete(ctx context.Context, id string) error {
	sql, args, err := psql.Delete("orchepy_workflows").Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("building delete: %w", err)
	}
	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return orcherr.Wrap(orcherr.KindInfrastructure, "deleting workflow", err)
	}
	if tag.RowsAffected() == 0 {
		return orcherr.New(orcherr.KindNotFound, "workflow not found")
	}
	return nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullableRaw(b json.RawMessage) interface{} {
	if len(b) == 0 {
		return nil
	}
	return []byte(b)
}
