// Package pipeline models the clone pipeline: its stages, the checkpoint
// artifacts that gate them and the run ledger entries they produce.
package pipeline

// Stage is one step of the clone pipeline.
type Stage string

const (
	StageDump      Stage = "dump"
	StageCreate    Stage = "create"
	StageReprice   Stage = "reprice"
	StageTerminate Stage = "terminate"
	StageAudit     Stage = "audit"
)

// IsValid checks if the stage is known
func (s Stage) IsValid() bool {
	switch s {
	case StageDump, StageCreate, StageReprice, StageTerminate, StageAudit:
		return true
	}
	return false
}

// UserAgent is the User-Agent sent by requests made on behalf of the stage.
func (s Stage) UserAgent() string {
	switch s {
	case StageDump:
		return "Agreements Clone"
	case StageCreate:
		return "Agreement Clone Creator"
	case StageReprice:
		return "Clone Agreement Markup Updater"
	case StageTerminate:
		return "Agreement Termination Utility"
	case StageAudit:
		return "Agreement Clone Audit"
	}
	return "Agreement Clone"
}

// ValidatorUserAgent identifies the precondition checks.
const ValidatorUserAgent = "Agreement Clone Validator"

