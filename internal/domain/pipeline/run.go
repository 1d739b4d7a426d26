package pipeline

import (
	"fmt"
	"time"

	"github.com/erp/agreementclone/internal/domain/shared"
	"github.com/google/uuid"
)

// RunStatus represents the status of a stage run
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusPartial   RunStatus = "partial"
	RunStatusFailed    RunStatus = "failed"
	RunStatusAborted   RunStatus = "aborted"
)

// IsValid checks if the status is valid
func (s RunStatus) IsValid() bool {
	switch s {
	case RunStatusRunning, RunStatusCompleted, RunStatusPartial, RunStatusFailed, RunStatusAborted:
		return true
	}
	return false
}

// IsTerminal returns true if this is a terminal state
func (s RunStatus) IsTerminal() bool {
	return s != RunStatusRunning
}

// Counts is the per-entity outcome of a stage.
type Counts struct {
	Succeeded int
	Failed    int
	Skipped   int
	// Incomplete marks a run that finished without producing everything it
	// should have, even when no entity failed.
	Incomplete bool
}

// Run records one execution of a stage for an agreement.
type Run struct {
	ID          uuid.UUID  `json:"id"`
	AgreementID string     `json:"agreement_id"`
	Stage       Stage      `json:"stage"`
	Status      RunStatus  `json:"status"`
	Mode        string     `json:"mode,omitempty"`
	DryRun      bool       `json:"dry_run"`
	Succeeded   int        `json:"succeeded"`
	Failed      int        `json:"failed"`
	Skipped     int        `json:"skipped"`
	Message     string     `json:"message,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewRun starts a run of stage for agreementID.
func NewRun(agreementID string, stage Stage, mode string, dryRun bool) (*Run, error) {
	if agreementID == "" {
		return nil, shared.NewDomainError("INVALID_AGREEMENT_ID", "Agreement ID cannot be empty")
	}
	if !stage.IsValid() {
		return nil, shared.NewDomainError("INVALID_STAGE", fmt.Sprintf("Invalid stage: %s", stage))
	}

	return &Run{
		ID:          uuid.New(),
		AgreementID: agreementID,
		Stage:       stage,
		Status:      RunStatusRunning,
		Mode:        mode,
		DryRun:      dryRun,
		StartedAt:   time.Now().UTC(),
	}, nil
}

// Complete marks the run as finished. Any failed entity, or an incomplete
// result, makes the run partial.
func (r *Run) Complete(counts Counts, message string) error {
	if r.Status != RunStatusRunning {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot complete from state: %s", r.Status))
	}

	status := RunStatusCompleted
	if counts.Failed > 0 || counts.Incomplete {
		status = RunStatusPartial
	}
	r.Status = status
	r.Succeeded = counts.Succeeded
	r.Failed = counts.Failed
	r.Skipped = counts.Skipped
	r.Message = message
	r.finish()
	return nil
}

// Fail marks the run as failed
func (r *Run) Fail(message string) error {
	if r.Status.IsTerminal() {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot fail from terminal state: %s", r.Status))
	}
	r.Status = RunStatusFailed
	r.Message = message
	r.finish()
	return nil
}

// Abort marks the run as stopped before doing any work, typically on a missing
// prerequisite or identifier.
func (r *Run) Abort(message string) error {
	if r.Status.IsTerminal() {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot abort from terminal state: %s", r.Status))
	}
	r.Status = RunStatusAborted
	r.Message = message
	r.finish()
	return nil
}

// Duration returns how long the run took, or zero while it is running.
func (r *Run) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

func (r *Run) finish() {
	now := time.Now().UTC()
	r.CompletedAt = &now
}
