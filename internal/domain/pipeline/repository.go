package pipeline

import "context"

// RunRepository persists stage runs.
type RunRepository interface {
	// Save inserts or updates a run
	Save(ctx context.Context, run *Run) error
	// FindByAgreement returns the most recent runs of an agreement, newest first.
	// A limit of zero returns every run.
	FindByAgreement(ctx context.Context, agreementID string, limit int) ([]Run, error)
	// Latest returns the newest run of stage for an agreement.
	Latest(ctx context.Context, agreementID string, stage Stage) (*Run, error)
}
