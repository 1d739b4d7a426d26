package clone

import (
	"context"
	"errors"
	"fmt"

	"github.com/erp/agreementclone/internal/domain/agreement"
	"github.com/erp/agreementclone/internal/domain/pipeline"
	"github.com/erp/agreementclone/internal/domain/shared"
	"github.com/erp/agreementclone/internal/infrastructure/commerce"
	"go.uber.org/zap"
)

// RepriceOptions tunes the reprice stage.
type RepriceOptions struct {
	// Live sends the updates. The zero value is a dry run that only logs
	// the payloads.
	Live              bool
	KeepPurchasePrice bool
}

// RepricedSubscription is the outcome for one cloned subscription.
type RepricedSubscription struct {
	SubscriptionID string `json:"subscriptionId"`
	VendorID       string `json:"vendorId"`
	Lines          int    `json:"lines"`
	Updated        bool   `json:"updated"`
	Error          string `json:"error,omitempty"`
}

// RepriceReport is persisted as reprice_report.json after a live run.
type RepriceReport struct {
	SourceAgreementID      string                 `json:"sourceAgreementId"`
	AgreementID            string                 `json:"agreementId"`
	DryRun                 bool                   `json:"dryRun"`
	KeepPurchasePrice      bool                   `json:"keepPurchasePrice"`
	TotalSubscriptions     int                    `json:"totalSubscriptions"`
	WorksheetSubscriptions int                    `json:"worksheetSubscriptions"`
	Matched                int                    `json:"matched"`
	Updated                int                    `json:"updated"`
	LinesUpdated           int                    `json:"linesUpdated"`
	NotFound               int                    `json:"notFound"`
	Failed                 int                    `json:"failed"`
	Complete               bool                   `json:"complete"`
	Subscriptions          []RepricedSubscription `json:"subscriptions"`
}

// Reprice applies the worksheet markups to the lines of the cloned
// subscriptions, matched on the vendor subscription id. Dry runs send
// nothing and leave no report behind.
func (s *Service) Reprice(ctx context.Context, opts RepriceOptions) (*RepriceReport, error) {
	if opts.Live {
		s.warnUnpreviewed(ctx)
	}
	ctx, t := s.begin(ctx, pipeline.StageReprice, "", !opts.Live)
	report, err := s.reprice(ctx, t.logger, opts)

	counts := pipeline.Counts{}
	message := ""
	if report != nil {
		counts = pipeline.Counts{
			Succeeded:  report.Updated,
			Failed:     report.Failed,
			Skipped:    report.TotalSubscriptions - report.Matched,
			Incomplete: !report.Complete,
		}
		message = fmt.Sprintf("%d subscriptions, %d lines updated", report.Updated, report.LinesUpdated)
		if report.DryRun {
			message = "dry run: " + message
		}
	}
	return report, t.end(ctx, counts, message, err)
}

// warnUnpreviewed warns when the last recorded reprice of the agreement was
// not a dry run.
func (s *Service) warnUnpreviewed(ctx context.Context) {
	if s.runs == nil {
		return
	}
	last, err := s.runs.Latest(ctx, s.AgreementID(), pipeline.StageReprice)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		s.logger.Warn("No reprice dry run recorded for this agreement; updates are sent without a preview")
	case err != nil:
		s.logger.Debug("Could not read the last reprice run", zap.Error(err))
	case !last.DryRun:
		s.logger.Warn("Last reprice run was not a dry run; updates are sent again",
			zap.String("last_run_id", last.ID.String()),
			zap.String("last_status", string(last.Status)),
		)
	}
}

func (s *Service) reprice(ctx context.Context, log *zap.Logger, opts RepriceOptions) (*RepriceReport, error) {
	if err := s.require(pipeline.StageReprice, ""); err != nil {
		return nil, err
	}
	if err := s.validate(ctx); err != nil {
		return nil, err
	}
	ops, err := s.api("ops", s.apis.Ops)
	if err != nil {
		return nil, err
	}

	final, err := s.readRecord(pipeline.ArtifactFinalAgreement)
	if err != nil {
		return nil, err
	}
	newID := final.ID()
	if newID == "" {
		return nil, missing("id", string(pipeline.ArtifactFinalAgreement))
	}

	rows, err := s.store.ReadWorksheet()
	if err != nil {
		return nil, abort(err)
	}
	sheet, err := agreement.ReadRepriceSheet(rows)
	if err != nil {
		return nil, abort(err)
	}
	for _, msg := range sheet.Warnings {
		log.Warn(msg)
	}
	if sheet.UnitPPColumn < 0 {
		log.Warn("Worksheet has no Unit PP column, purchase prices come from the API")
	}

	report := &RepriceReport{
		SourceAgreementID:      s.AgreementID(),
		AgreementID:            newID,
		DryRun:                 !opts.Live,
		KeepPurchasePrice:      opts.KeepPurchasePrice,
		WorksheetSubscriptions: len(sheet.Groups),
		Subscriptions:          []RepricedSubscription{},
	}
	log.Info("Worksheet loaded",
		zap.Int("rows", sheet.Rows), zap.Int("subscriptions", len(sheet.Groups)))

	coll := ops.ListSubscriptions(ctx, commerce.ActiveSubscriptionsQuery(newID, s.now()))
	if coll.Err != nil && len(coll.Items) == 0 {
		return nil, fmt.Errorf("listing subscriptions of %s: %w", newID, coll.Err)
	}
	report.Complete = coll.Complete
	report.TotalSubscriptions = len(coll.Items)
	if !coll.Complete {
		log.Warn("Subscription listing is incomplete", zap.Int("fetched", len(coll.Items)), zap.Error(coll.Err))
	}

	for _, sub := range coll.Items {
		id := sub.ID()
		vendorID := agreement.VendorID(sub)
		if vendorID == "" {
			log.Debug("Subscription has no vendor id, skipping", zap.String("subscription_id", id))
			continue
		}
		group, ok := sheet.Groups[vendorID]
		if !ok {
			report.NotFound++
			log.Debug("Subscription not in worksheet",
				zap.String("subscription_id", id), zap.String("vendor_id", vendorID))
			continue
		}
		report.Matched++

		plan := agreement.PlanLineUpdates(sub, group, opts.KeepPurchasePrice)
		for _, msg := range plan.Warnings {
			log.Warn(msg)
		}
		if len(plan.Updates) == 0 {
			if len(agreement.ActiveLines(sub)) == 0 {
				log.Warn("No active lines found", zap.String("subscription_id", id))
			} else {
				log.Warn("No lines matched the worksheet", zap.String("subscription_id", id))
			}
			continue
		}

		entry := RepricedSubscription{SubscriptionID: id, VendorID: vendorID, Lines: len(plan.Updates)}
		body := plan.Body()
		if !opts.Live {
			log.Info("Dry run, update not sent", zap.String("subscription_id", id), zap.Any("payload", body))
		} else if _, err := ops.UpdateSubscription(ctx, id, body); err != nil {
			log.Error("Failed to update subscription", zap.String("subscription_id", id), zap.Error(err))
			entry.Error = err.Error()
			report.Failed++
			report.Subscriptions = append(report.Subscriptions, entry)
			continue
		}

		entry.Updated = true
		report.Updated++
		report.LinesUpdated += len(plan.Updates)
		report.Subscriptions = append(report.Subscriptions, entry)
		log.Info("Subscription repriced", zap.String("subscription_id", id), zap.Int("lines", len(plan.Updates)))
	}

	log.Info("Reprice finished",
		zap.Int("total", report.TotalSubscriptions),
		zap.Int("worksheet_subscriptions", report.WorksheetSubscriptions),
		zap.Int("matched", report.Matched),
		zap.Int("updated", report.Updated),
		zap.Int("lines_updated", report.LinesUpdated),
		zap.Int("not_found", report.NotFound),
		zap.Bool("dry_run", report.DryRun))

	if !opts.Live {
		return report, nil
	}
	if err := s.store.WriteJSON(ctx, pipeline.ArtifactRepriceReport, report); err != nil {
		return report, err
	}
	return report, nil
}
