// Package model defines the persisted shapes of the orchestrator: workflows,
// cases, and case history. These types are the JSON/DB boundary — the
// automation engine operates on them through internal/path and
// internal/condition rather than touching struct fields directly.
package model

import (
	"encoding/json"
	"time"
)

// CaseStatus is the lifecycle state of a Case, independent of its phase.
type CaseStatus string

const (
	StatusActive    CaseStatus = "active"
	StatusCompleted CaseStatus = "completed"
	StatusFailed    CaseStatus = "failed"
	StatusPaused    CaseStatus = "paused"
)

// SLAPhaseConfig is the purely-informational per-phase SLA entry.
type SLAPhaseConfig struct {
	Hours int `json:"hours"`
}

// Workflow is the immutable blueprint a Case moves through.
type Workflow struct {
	ID            string                    `json:"id" db:"id"`
	Name          string                    `json:"name" db:"name"`
	Phases        []string                  `json:"phases" db:"phases"`
	InitialPhase  string                    `json:"initial_phase" db:"initial_phase"`
	WebhookURL    string                    `json:"webhook_url,omitempty" db:"webhook_url"`
	Automations   json.RawMessage           `json:"automations,omitempty" db:"automations"`
	SLAConfig     map[string]SLAPhaseConfig `json:"sla_config,omitempty" db:"sla_config"`
	Active        bool                      `json:"active" db:"active"`
	CreatedAt     time.Time                 `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time                 `json:"updated_at" db:"updated_at"`
}

// HasPhase reports whether name is a member of the workflow's phase list.
func (w *Workflow) HasPhase(name string) bool {
	for _, p := range w.Phases {
		if p == name {
			return true
		}
	}
	return false
}

// Case is a mutable instance of a Workflow.
type Case struct {
	ID             string          `json:"id" db:"id"`
	WorkflowID     string          `json:"workflow_id" db:"workflow_id"`
	CurrentPhase   string          `json:"current_phase" db:"current_phase"`
	PreviousPhase  *string         `json:"previous_phase,omitempty" db:"previous_phase"`
	Data           json.RawMessage `json:"data" db:"data"`
	Status         CaseStatus      `json:"status" db:"status"`
	Metadata       json.RawMessage `json:"metadata,omitempty" db:"metadata"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
	PhaseEnteredAt time.Time       `json:"phase_entered_at" db:"phase_entered_at"`
}

// HistoryEntry is an append-only audit record of one phase transition.
type HistoryEntry struct {
	ID            string    `json:"id" db:"id"`
	CaseID        string    `json:"case_id" db:"case_id"`
	FromPhase     *string   `json:"from_phase,omitempty" db:"from_phase"`
	ToPhase       string    `json:"to_phase" db:"to_phase"`
	Reason        string    `json:"reason,omitempty" db:"reason"`
	TriggeredBy   string    `json:"triggered_by,omitempty" db:"triggered_by"`
	TransitionedAt time.Time `json:"transitioned_at" db:"transitioned_at"`
}
