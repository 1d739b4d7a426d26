package clone

import (
	"context"

	"github.com/erp/agreementclone/internal/domain/pipeline"
	"go.uber.org/zap"
)

// historyLimit caps the ledger entries returned by Status.
const historyLimit = 20

// StatusReport describes how far the pipeline got for an agreement.
type StatusReport struct {
	AgreementID string
	Reached     []pipeline.State
	Current     pipeline.State
	Runnable    []pipeline.Stage
	Artifacts   []pipeline.Artifact
	History     []pipeline.Run
}

// Status inspects the checkpoint store and the run ledger. It makes no
// network call.
func (s *Service) Status(ctx context.Context) (*StatusReport, error) {
	snapshot := s.store.Snapshot()
	machine := pipeline.Machine{}

	report := &StatusReport{
		AgreementID: s.AgreementID(),
		Reached:     machine.Progress(snapshot),
		Current:     machine.Current(snapshot),
		Runnable:    machine.Runnable(snapshot),
	}
	for _, a := range statusArtifacts {
		if snapshot.Has(a) {
			report.Artifacts = append(report.Artifacts, a)
		}
	}

	if s.runs != nil {
		runs, err := s.runs.FindByAgreement(ctx, s.AgreementID(), historyLimit)
		if err != nil {
			s.logger.Warn("Failed to read run ledger", zap.Error(err))
		} else {
			report.History = runs
		}
	}
	return report, nil
}

var statusArtifacts = []pipeline.Artifact{
	pipeline.ArtifactAgreement,
	pipeline.ArtifactNewAgreement,
	pipeline.ArtifactAuthorization,
	pipeline.ArtifactWorksheet,
	pipeline.ArtifactFinalAgreement,
	pipeline.ArtifactRepriceReport,
	pipeline.ArtifactTerminationReport,
	pipeline.ArtifactAuditReport,
}
