package clone

import (
	"context"
	"fmt"
	"net/http"

	"github.com/erp/agreementclone/internal/domain/agreement"
	"github.com/erp/agreementclone/internal/domain/pipeline"
	"github.com/erp/agreementclone/internal/infrastructure/commerce"
	"go.uber.org/zap"
)

// CreateOptions tunes the create stage.
type CreateOptions struct {
	// Mode selects what happens once the agreement exists. Empty means
	// worksheet mode.
	Mode pipeline.CreateMode
	// KeepPurchasePrice copies line prices into the subscription payloads.
	KeepPurchasePrice bool
}

// CreateResult summarises a create run.
type CreateResult struct {
	AgreementID string
	Restored    []string
	// Created maps source subscription ids to the ids of their clones.
	Created map[string]string
	Failed  []string
	Synced  bool
	// FinalSaved is false when the created agreement could not be re-read.
	FinalSaved bool
}

// Create creates the new agreement, restores the fields the create endpoint
// rejects and then recreates the subscriptions (worksheet mode) or asks the
// vendor platform to synchronise them (platform-sync mode).
func (s *Service) Create(ctx context.Context, opts CreateOptions) (*CreateResult, error) {
	mode := opts.Mode
	if mode == "" {
		mode = pipeline.CreateWorksheet
	}
	ctx, t := s.begin(ctx, pipeline.StageCreate, string(mode), false)
	result, err := s.create(ctx, t.logger, mode, opts)

	counts := pipeline.Counts{}
	message := ""
	if result != nil {
		counts = pipeline.Counts{
			Succeeded:  len(result.Created),
			Failed:     len(result.Failed),
			Incomplete: !result.FinalSaved || (mode == pipeline.CreatePlatformSync && !result.Synced),
		}
		message = fmt.Sprintf("created agreement %s", result.AgreementID)
	}
	return result, t.end(ctx, counts, message, err)
}

func (s *Service) create(ctx context.Context, log *zap.Logger, mode pipeline.CreateMode, opts CreateOptions) (*CreateResult, error) {
	if !mode.IsValid() {
		return nil, abortf("clone: unknown create mode %q", mode)
	}
	if err := s.require(pipeline.StageCreate, mode); err != nil {
		return nil, err
	}
	if mode == pipeline.CreatePlatformSync && s.apis.Tunnel == nil {
		return nil, abort(ErrTunnelRequired)
	}
	if err := s.validate(ctx); err != nil {
		return nil, err
	}
	ops, err := s.api("ops", s.apis.Ops)
	if err != nil {
		return nil, err
	}
	vendor, err := s.api("vendor", s.apis.Vendor)
	if err != nil {
		return nil, err
	}

	source, err := s.readRecord(pipeline.ArtifactNewAgreement)
	if err != nil {
		return nil, err
	}
	payload, side := agreement.StripAgreement(source)

	log.Info("Creating agreement")
	newID, err := ops.CreateAgreement(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("creating agreement: %w", err)
	}
	log.Info("Agreement created", zap.String("new_agreement_id", newID))
	result := &CreateResult{AgreementID: newID, Created: map[string]string{}}

	for _, sv := range side {
		field := sv.Field.Path.String()
		if !sv.Present {
			log.Warn("No value to restore, skipping", zap.String("field", field))
			continue
		}
		body, err := agreement.RestoreBody(newID, sv)
		if err != nil {
			log.Warn("Cannot restore field, skipping", zap.String("field", field), zap.Error(err))
			continue
		}
		if _, err := vendor.UpdateAgreement(ctx, newID, body); err != nil {
			log.Warn("Failed to restore field", zap.String("field", field), zap.Error(err))
			continue
		}
		result.Restored = append(result.Restored, field)
		log.Info("Field restored", zap.String("field", field))
	}

	switch mode {
	case pipeline.CreatePlatformSync:
		result.Synced = s.syncCustomer(ctx, log, source)
	default:
		s.createSubscriptions(ctx, log, vendor, newID, opts, result)
	}

	final, err := ops.GetAgreement(ctx, newID)
	if err != nil {
		log.Warn("Failed to fetch the created agreement", zap.String("new_agreement_id", newID), zap.Error(err))
		return result, nil
	}
	if err := s.store.WriteJSON(ctx, pipeline.ArtifactFinalAgreement, final); err != nil {
		return result, err
	}
	result.FinalSaved = true

	log.Info("Create finished",
		zap.String("new_agreement_id", newID),
		zap.Int("created", len(result.Created)),
		zap.Int("failed", len(result.Failed)))
	return result, nil
}

func (s *Service) createSubscriptions(ctx context.Context, log *zap.Logger, vendor *commerce.API, newID string, opts CreateOptions, result *CreateResult) {
	rows, err := s.store.ReadWorksheet()
	if err != nil {
		log.Error("Failed to read worksheet", zap.Error(err))
		return
	}
	ids, err := agreement.SubscriptionIDs(rows)
	if err != nil {
		log.Error("Failed to read subscription ids from worksheet", zap.Error(err))
		return
	}
	log.Info("Creating subscriptions", zap.Int("count", len(ids)))

	for _, id := range ids {
		src, err := s.store.ReadRecord(pipeline.SubscriptionArtifact(id))
		if err != nil {
			log.Error("Failed to load subscription dump", zap.String("subscription_id", id), zap.Error(err))
			result.Failed = append(result.Failed, id)
			continue
		}
		src.Set("agreement.id", newID)

		payload, report, err := agreement.SubscriptionPayload(id, src, agreement.PayloadOptions{
			KeepPurchasePrice: opts.KeepPurchasePrice,
		})
		if err != nil {
			log.Error("Invalid subscription dump", zap.String("subscription_id", id), zap.Error(err))
			result.Failed = append(result.Failed, id)
			continue
		}
		for _, msg := range report.Warnings {
			log.Warn(msg)
		}
		if len(report.Omitted) > 0 {
			log.Debug("Fields not present in dump",
				zap.String("subscription_id", id), zap.Any("fields", report.Omitted))
		}

		createdID, err := vendor.CreateSubscription(ctx, payload)
		if err != nil {
			log.Error("Failed to create subscription", zap.String("subscription_id", id), zap.Error(err))
			result.Failed = append(result.Failed, id)
			continue
		}
		result.Created[id] = createdID
		log.Info("Subscription created",
			zap.String("subscription_id", id), zap.String("new_subscription_id", createdID))
	}
}

// syncCustomer asks the vendor platform to synchronise the customer of the
// new agreement. Every problem is a warning.
func (s *Service) syncCustomer(ctx context.Context, log *zap.Logger, source agreement.Record) bool {
	auth, err := s.store.ReadRecord(pipeline.ArtifactAuthorization)
	if err != nil {
		log.Warn("No authorization to synchronise", zap.Error(err))
		return false
	}
	authorizationID := auth.String("externalIds.operations")
	if authorizationID == "" {
		log.Warn("Authorization has no externalIds.operations, skipping sync")
		return false
	}
	tenantID := source.String(agreement.VendorIDPath)
	if tenantID == "" {
		log.Warn("Agreement has no externalIds.vendor, skipping sync")
		return false
	}

	key := s.now().Unix()
	log.Info("Synchronising customer",
		zap.String("authorization", authorizationID),
		zap.String("tenant", tenantID),
		zap.Int64("synchronization_key", key))
	resp, err := s.apis.Tunnel.SyncCustomer(ctx, authorizationID, tenantID, key)
	if err != nil {
		log.Warn("Customer sync failed", zap.Error(err))
		return false
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		log.Warn("Customer sync failed", zap.Error(statusError(resp)))
		return false
	}
	log.Info("Customer sync requested", zap.Int("status", resp.StatusCode))
	return true
}
