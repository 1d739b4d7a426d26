package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

// Artifact is a checkpoint file name under the agreement directory.
type Artifact string

const (
	ArtifactAgreement         Artifact = "agreement_object.json"
	ArtifactNewAgreement      Artifact = "new_agreement_object.json"
	ArtifactAuthorization     Artifact = "authorization.json"
	ArtifactFinalAgreement    Artifact = "final_agreement.json"
	ArtifactWorksheet         Artifact = "subscriptions.xlsx"
	ArtifactRepriceReport     Artifact = "reprice_report.json"
	ArtifactTerminationReport Artifact = "termination_report.json"
	ArtifactAuditReport       Artifact = "audit_report.json"
)

// SubscriptionArtifact names the dump of one source subscription.
func SubscriptionArtifact(subscriptionID string) Artifact {
	return Artifact(subscriptionID + ".json")
}

// Artifacts reports which checkpoint files exist.
type Artifacts interface {
	Has(Artifact) bool
}

// ArtifactSet is an in-memory Artifacts.
type ArtifactSet map[Artifact]bool

// Has implements Artifacts.
func (s ArtifactSet) Has(a Artifact) bool {
	return s[a]
}

// NewArtifactSet builds a set from the given artifacts.
func NewArtifactSet(artifacts ...Artifact) ArtifactSet {
	s := make(ArtifactSet, len(artifacts))
	for _, a := range artifacts {
		s[a] = true
	}
	return s
}

// State is a milestone of the pipeline, reached when its artifacts exist.
type State string

const (
	StateDumped     State = "dumped"
	StateCreated    State = "created"
	StateRepriced   State = "repriced"
	StateTerminated State = "terminated"
	StateAudited    State = "audited"
)

type transition struct {
	stage    Stage
	state    State
	produces []Artifact
}

var transitions = []transition{
	{StageDump, StateDumped, []Artifact{ArtifactAgreement, ArtifactNewAgreement, ArtifactWorksheet}},
	{StageCreate, StateCreated, []Artifact{ArtifactFinalAgreement}},
	{StageReprice, StateRepriced, []Artifact{ArtifactRepriceReport}},
	{StageTerminate, StateTerminated, []Artifact{ArtifactTerminationReport}},
	{StageAudit, StateAudited, []Artifact{ArtifactAuditReport}},
}

// ErrPrerequisiteMissing is matched by every *PrerequisiteError.
var ErrPrerequisiteMissing = errors.New("pipeline: prerequisite artifact missing")

// PrerequisiteError names the artifacts a stage needs but cannot find.
type PrerequisiteError struct {
	Stage   Stage
	Missing []Artifact
}

func (e *PrerequisiteError) Error() string {
	names := make([]string, len(e.Missing))
	for i, a := range e.Missing {
		names[i] = string(a)
	}
	return fmt.Sprintf("%s: %s stage requires %s", ErrPrerequisiteMissing, e.Stage, strings.Join(names, ", "))
}

// Is makes errors.Is(err, ErrPrerequisiteMissing) hold.
func (e *PrerequisiteError) Is(target error) bool {
	return target == ErrPrerequisiteMissing
}

// Machine evaluates stage prerequisites against checkpoint artifacts.
// Mode only affects the create stage; the zero value means worksheet mode.
type Machine struct {
	Mode CreateMode
}

// Prerequisites returns the artifacts stage needs before it may run.
func (m Machine) Prerequisites(stage Stage) []Artifact {
	switch stage {
	case StageCreate:
		if m.Mode == CreatePlatformSync {
			return []Artifact{ArtifactNewAgreement}
		}
		return []Artifact{ArtifactNewAgreement, ArtifactWorksheet}
	case StageReprice:
		return []Artifact{ArtifactFinalAgreement, ArtifactWorksheet}
	case StageTerminate:
		return []Artifact{ArtifactAgreement}
	case StageAudit:
		return []Artifact{ArtifactAgreement, ArtifactFinalAgreement}
	}
	return nil
}

// Require returns a *PrerequisiteError when any prerequisite of stage is
// missing from artifacts.
func (m Machine) Require(stage Stage, artifacts Artifacts) error {
	var missing []Artifact
	for _, a := range m.Prerequisites(stage) {
		if !artifacts.Has(a) {
			missing = append(missing, a)
		}
	}
	if len(missing) > 0 {
		return &PrerequisiteError{Stage: stage, Missing: missing}
	}
	return nil
}

// Progress returns the states reached, in pipeline order.
func (m Machine) Progress(artifacts Artifacts) []State {
	var reached []State
	for _, t := range transitions {
		if hasAll(artifacts, t.produces) {
			reached = append(reached, t.state)
		}
	}
	return reached
}

// Current returns the furthest state reached, or "" before the first dump.
func (m Machine) Current(artifacts Artifacts) State {
	progress := m.Progress(artifacts)
	if len(progress) == 0 {
		return ""
	}
	return progress[len(progress)-1]
}

// Runnable lists the stages whose prerequisites are met and whose own
// state has not been reached yet.
func (m Machine) Runnable(artifacts Artifacts) []Stage {
	var stages []Stage
	for _, t := range transitions {
		if hasAll(artifacts, t.produces) {
			continue
		}
		if m.Require(t.stage, artifacts) == nil {
			stages = append(stages, t.stage)
		}
	}
	return stages
}

func hasAll(artifacts Artifacts, want []Artifact) bool {
	for _, a := range want {
		if !artifacts.Has(a) {
			return false
		}
	}
	return true
}
