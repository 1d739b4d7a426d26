package clone

import (
	"context"
	"fmt"
	"net/http"

	"github.com/erp/agreementclone/internal/domain/pipeline"
	"github.com/erp/agreementclone/internal/infrastructure/commerce"
	"go.uber.org/zap"
)

// Audit record constants.
const (
	AuditEvent = "extensions.clone.agreement"
	AuditType  = "Private"
)

// Audit document names.
const (
	documentOld = "Old Agreement"
	documentNew = "New Agreement"
)

// AuditOutcome is the result of one audit record.
type AuditOutcome struct {
	ObjectID string `json:"objectId"`
	Summary  string `json:"summary"`
	Recorded bool   `json:"recorded"`
	Status   int    `json:"status,omitempty"`
	Error    string `json:"error,omitempty"`
}

// AuditReport is persisted as audit_report.json.
type AuditReport struct {
	SourceAgreementID string       `json:"sourceAgreementId"`
	NewAgreementID    string       `json:"newAgreementId"`
	Source            AuditOutcome `json:"source"`
	Target            AuditOutcome `json:"target"`
}

// Audit records the clone on both agreements. The two records succeed or
// fail independently.
func (s *Service) Audit(ctx context.Context) (*AuditReport, error) {
	ctx, t := s.begin(ctx, pipeline.StageAudit, "", false)
	report, err := s.audit(ctx, t.logger)

	counts := pipeline.Counts{}
	message := ""
	if report != nil {
		for _, outcome := range []AuditOutcome{report.Source, report.Target} {
			if outcome.Recorded {
				counts.Succeeded++
			} else {
				counts.Failed++
			}
		}
		message = fmt.Sprintf("%d of 2 audit records created", counts.Succeeded)
	}
	return report, t.end(ctx, counts, message, err)
}

func (s *Service) audit(ctx context.Context, log *zap.Logger) (*AuditReport, error) {
	if err := s.require(pipeline.StageAudit, ""); err != nil {
		return nil, err
	}
	ops, err := s.api("ops", s.apis.Ops)
	if err != nil {
		return nil, err
	}

	oldAgreement, err := s.readRecord(pipeline.ArtifactAgreement)
	if err != nil {
		return nil, err
	}
	newAgreement, err := s.readRecord(pipeline.ArtifactFinalAgreement)
	if err != nil {
		return nil, err
	}
	oldID, newID := oldAgreement.ID(), newAgreement.ID()
	if oldID == "" {
		return nil, missing("id", string(pipeline.ArtifactAgreement))
	}
	if newID == "" {
		return nil, missing("id", string(pipeline.ArtifactFinalAgreement))
	}

	documents := map[string]any{
		documentOld: oldAgreement,
		documentNew: newAgreement,
	}
	report := &AuditReport{SourceAgreementID: oldID, NewAgreementID: newID}

	report.Source = s.record(ctx, log, ops, commerce.AuditRecord{
		Event:     AuditEvent,
		Summary:   fmt.Sprintf("Agreement has been cloned to %s", newID),
		Details:   fmt.Sprintf("The agreement has been cloned to new one with id %s", newID),
		Type:      AuditType,
		Object:    commerce.AuditObject{ID: oldID},
		Documents: documents,
	})
	report.Target = s.record(ctx, log, ops, commerce.AuditRecord{
		Event:     AuditEvent,
		Summary:   fmt.Sprintf("Agreement has been cloned from %s", oldID),
		Details:   fmt.Sprintf("The agreement has been cloned from the one with id %s", oldID),
		Type:      AuditType,
		Object:    commerce.AuditObject{ID: newID},
		Documents: documents,
	})

	if err := s.store.WriteJSON(ctx, pipeline.ArtifactAuditReport, report); err != nil {
		return report, err
	}
	return report, nil
}

func (s *Service) record(ctx context.Context, log *zap.Logger, ops *commerce.API, rec commerce.AuditRecord) AuditOutcome {
	outcome := AuditOutcome{ObjectID: rec.Object.ID, Summary: rec.Summary}

	resp, err := ops.CreateAuditRecord(ctx, rec)
	if resp != nil {
		outcome.Status = resp.StatusCode
	}
	if err == nil && !succeeded(resp, http.StatusOK, http.StatusCreated, http.StatusAccepted, http.StatusNoContent) {
		err = statusError(resp)
	}
	if err != nil {
		log.Error("Failed to create audit record", zap.String("object_id", rec.Object.ID), zap.Error(err))
		outcome.Error = err.Error()
		return outcome
	}

	outcome.Recorded = true
	log.Info("Audit record created", zap.String("object_id", rec.Object.ID), zap.String("summary", rec.Summary))
	return outcome
}
