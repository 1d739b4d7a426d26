package clone

import (
	"context"
	"fmt"
	"net/http"

	"github.com/erp/agreementclone/internal/domain/pipeline"
	"github.com/erp/agreementclone/internal/infrastructure/commerce"
	"go.uber.org/zap"
)

// TerminationFailure is a subscription that could not be terminated.
type TerminationFailure struct {
	SubscriptionID string `json:"subscriptionId"`
	Error          string `json:"error"`
}

// TerminationReport is persisted as termination_report.json.
type TerminationReport struct {
	AgreementID string               `json:"agreementId"`
	Total       int                  `json:"total"`
	Terminated  []string             `json:"terminated"`
	Failed      []TerminationFailure `json:"failed"`
	Complete    bool                 `json:"complete"`
}

// Terminate requests the termination of every active subscription of the
// source agreement. Failures are counted and never stop the loop.
func (s *Service) Terminate(ctx context.Context) (*TerminationReport, error) {
	ctx, t := s.begin(ctx, pipeline.StageTerminate, "", false)
	report, err := s.terminate(ctx, t.logger)

	counts := pipeline.Counts{}
	message := ""
	if report != nil {
		counts = pipeline.Counts{
			Succeeded:  len(report.Terminated),
			Failed:     len(report.Failed),
			Incomplete: !report.Complete,
		}
		message = fmt.Sprintf("%d of %d subscriptions terminated", len(report.Terminated), report.Total)
	}
	return report, t.end(ctx, counts, message, err)
}

func (s *Service) terminate(ctx context.Context, log *zap.Logger) (*TerminationReport, error) {
	if err := s.require(pipeline.StageTerminate, ""); err != nil {
		return nil, err
	}
	if err := s.validate(ctx); err != nil {
		return nil, err
	}
	vendor, err := s.api("vendor", s.apis.Vendor)
	if err != nil {
		return nil, err
	}

	source, err := s.readRecord(pipeline.ArtifactAgreement)
	if err != nil {
		return nil, err
	}
	agreementID := source.ID()
	if agreementID == "" {
		return nil, missing("id", string(pipeline.ArtifactAgreement))
	}

	log.Info("Fetching subscriptions to terminate", zap.String("agreement_id", agreementID))
	coll := vendor.ListSubscriptions(ctx, commerce.TerminationQuery(agreementID))
	if coll.Err != nil && len(coll.Items) == 0 {
		return nil, fmt.Errorf("listing subscriptions of %s: %w", agreementID, coll.Err)
	}
	if !coll.Complete {
		log.Warn("Subscription listing is incomplete", zap.Int("fetched", len(coll.Items)), zap.Error(coll.Err))
	}

	report := &TerminationReport{
		AgreementID: agreementID,
		Total:       len(coll.Items),
		Terminated:  []string{},
		Failed:      []TerminationFailure{},
		Complete:    coll.Complete,
	}
	if report.Total == 0 {
		log.Info("No active subscriptions found")
	}

	for i, sub := range coll.Items {
		id := sub.ID()
		if id == "" {
			log.Error("Subscription without id", zap.Int("index", i))
			report.Failed = append(report.Failed, TerminationFailure{Error: "missing subscription id"})
			continue
		}

		resp, err := vendor.TerminateSubscription(ctx, id)
		if err == nil && !succeeded(resp, http.StatusOK, http.StatusAccepted, http.StatusNoContent) {
			err = statusError(resp)
		}
		if err != nil {
			log.Error("Failed to terminate subscription", zap.String("subscription_id", id), zap.Error(err))
			report.Failed = append(report.Failed, TerminationFailure{SubscriptionID: id, Error: err.Error()})
			continue
		}
		report.Terminated = append(report.Terminated, id)
		log.Info("Subscription terminated",
			zap.String("subscription_id", id), zap.Int("progress", i+1), zap.Int("total", report.Total))
	}

	log.Info("Termination finished",
		zap.Int("total", report.Total),
		zap.Int("terminated", len(report.Terminated)),
		zap.Int("failed", len(report.Failed)))

	if err := s.store.WriteJSON(ctx, pipeline.ArtifactTerminationReport, report); err != nil {
		return report, err
	}
	return report, nil
}
