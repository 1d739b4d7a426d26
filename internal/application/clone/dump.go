package clone

import (
	"context"
	"fmt"

	"github.com/erp/agreementclone/internal/domain/agreement"
	"github.com/erp/agreementclone/internal/domain/pipeline"
	"github.com/erp/agreementclone/internal/infrastructure/commerce"
	"go.uber.org/zap"
)

// DumpTarget says where the agreement is cloned to: another listing or
// another licensee of the same seller and client.
type DumpTarget interface {
	// Mode names the target kind in the run ledger.
	Mode() string
	validate() error
}

// ListingTarget moves the agreement to another listing.
type ListingTarget struct {
	ListingID string
}

// Mode implements DumpTarget.
func (ListingTarget) Mode() string { return "listing" }

func (t ListingTarget) validate() error { return agreement.ValidateListingID(t.ListingID) }

// LicenseeTarget moves the agreement to another licensee.
type LicenseeTarget struct {
	LicenseeID string
}

// Mode implements DumpTarget.
func (LicenseeTarget) Mode() string { return "licensee" }

func (t LicenseeTarget) validate() error { return agreement.ValidateLicenseeID(t.LicenseeID) }

// DumpResult summarises a dump.
type DumpResult struct {
	NewAgreement  agreement.Record
	Subscriptions int
	Rows          int
	Dumped        int
	Failed        []string
	Skipped       int
	// Problematic lists subscriptions without lines.
	Problematic []string
	// Complete is false when the subscription listing stopped early.
	Complete bool
}

// Dump fetches the agreement and its active subscriptions, derives the
// agreement to create and writes the worksheet and the subscription dumps.
func (s *Service) Dump(ctx context.Context, target DumpTarget) (*DumpResult, error) {
	if target == nil {
		return nil, abort(fmt.Errorf("%w: dump target", ErrMissingIdentifier))
	}
	ctx, t := s.begin(ctx, pipeline.StageDump, target.Mode(), false)
	result, err := s.dump(ctx, t.logger, target)
	counts := pipeline.Counts{}
	message := ""
	if result != nil {
		counts = pipeline.Counts{
			Succeeded:  result.Dumped,
			Failed:     len(result.Failed),
			Skipped:    result.Skipped,
			Incomplete: !result.Complete,
		}
		message = fmt.Sprintf("%d of %d subscriptions dumped", result.Dumped, result.Subscriptions)
	}
	return result, t.end(ctx, counts, message, err)
}

func (s *Service) dump(ctx context.Context, log *zap.Logger, target DumpTarget) (*DumpResult, error) {
	if err := target.validate(); err != nil {
		return nil, abort(err)
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

	agreementID := s.AgreementID()
	log.Info("Fetching agreement", zap.String("agreement_id", agreementID))
	source, err := ops.GetAgreement(ctx, agreementID)
	if err != nil {
		return nil, fmt.Errorf("fetching agreement %s: %w", agreementID, err)
	}
	if err := s.store.WriteJSON(ctx, pipeline.ArtifactAgreement, source); err != nil {
		return nil, err
	}

	var newAgreement agreement.Record
	switch tgt := target.(type) {
	case ListingTarget:
		newAgreement, err = s.forListing(ctx, log, ops, source, tgt)
	case LicenseeTarget:
		newAgreement, err = s.forLicensee(ctx, log, ops, source, tgt)
	default:
		err = abortf("clone: unsupported dump target %T", target)
	}
	if err != nil {
		return nil, err
	}
	if err := s.store.WriteJSON(ctx, pipeline.ArtifactNewAgreement, newAgreement); err != nil {
		return nil, err
	}

	result := &DumpResult{NewAgreement: newAgreement}

	log.Info("Fetching active subscriptions", zap.String("agreement_id", agreementID))
	coll := ops.ListSubscriptions(ctx, commerce.ActiveSubscriptionsQuery(agreementID, s.now()))
	result.Subscriptions = len(coll.Items)
	result.Complete = coll.Complete
	if !coll.Complete {
		log.Warn("Subscription listing is incomplete",
			zap.Int("fetched", len(coll.Items)), zap.Int("pages", coll.Pages), zap.Error(coll.Err))
	}

	joinKeys, err := agreement.CheckVendorIDs(coll.Items)
	if err != nil {
		return result, abort(err)
	}
	if joinKeys.Warn() {
		log.Warn("One subscription has no vendor id and cannot be matched when repricing",
			zap.Strings("subscription_ids", joinKeys.Missing))
	}
	for vendorID, ids := range joinKeys.Duplicates {
		log.Warn("Vendor id shared by several subscriptions",
			zap.String("vendor_id", vendorID), zap.Strings("subscription_ids", ids))
	}

	sheet := agreement.WorksheetRows(coll.Items)
	for _, msg := range sheet.Warnings {
		log.Warn(msg)
	}
	for _, msg := range sheet.Errors {
		log.Error(msg)
	}
	for _, id := range sheet.Problematic {
		log.Error("Subscription has no lines", zap.String("subscription_id", id))
	}
	result.Rows = len(sheet.Rows)
	result.Skipped = sheet.Skipped
	result.Problematic = sheet.Problematic
	if err := s.store.WriteWorksheet(ctx, sheet.Rows); err != nil {
		return result, err
	}
	log.Info("Worksheet written",
		zap.Int("rows", sheet.Processed),
		zap.Int("skipped", sheet.Skipped),
		zap.String("path", s.store.Path(pipeline.ArtifactWorksheet)))

	for _, sub := range coll.Items {
		id := sub.ID()
		if id == "" {
			log.Error("Subscription without id, cannot dump")
			result.Failed = append(result.Failed, "")
			continue
		}
		full, err := vendor.GetSubscription(ctx, id)
		if err != nil {
			log.Error("Failed to fetch subscription", zap.String("subscription_id", id), zap.Error(err))
			result.Failed = append(result.Failed, id)
			continue
		}
		delete(full, "id")
		if err := s.store.WriteJSON(ctx, pipeline.SubscriptionArtifact(id), full); err != nil {
			log.Error("Failed to write subscription", zap.String("subscription_id", id), zap.Error(err))
			result.Failed = append(result.Failed, id)
			continue
		}
		result.Dumped++
		log.Debug("Subscription dumped", zap.String("subscription_id", id))
	}

	if len(result.Problematic) > 0 {
		log.Error("Subscriptions without lines were left out of the worksheet",
			zap.Int("count", len(result.Problematic)),
			zap.Strings("subscription_ids", result.Problematic))
	}
	log.Info("Dump finished",
		zap.Int("subscriptions", result.Subscriptions),
		zap.Int("dumped", result.Dumped),
		zap.Int("failed", len(result.Failed)))
	return result, nil
}

func (s *Service) forListing(ctx context.Context, log *zap.Logger, ops *commerce.API, source agreement.Record, target ListingTarget) (agreement.Record, error) {
	log.Info("Fetching listing", zap.String("listing_id", target.ListingID))
	listing, err := ops.GetListing(ctx, target.ListingID)
	if err != nil {
		return nil, abort(fmt.Errorf("fetching listing %s: %w", target.ListingID, err))
	}

	authorizationID, err := s.saveAuthorization(ctx, listing, target.ListingID)
	if err != nil {
		return nil, err
	}
	return agreement.NewAgreementForListing(source, target.ListingID, authorizationID), nil
}

func (s *Service) forLicensee(ctx context.Context, log *zap.Logger, ops *commerce.API, source agreement.Record, target LicenseeTarget) (agreement.Record, error) {
	licenseeID := source.String("licensee.id")
	sellerID := source.String("seller.id")
	clientID := source.String("client.id")
	listingID := source.String("listing.id")
	for _, field := range []struct{ name, value string }{
		{"licensee.id", licenseeID},
		{"seller.id", sellerID},
		{"client.id", clientID},
		{"listing.id", listingID},
	} {
		if field.value == "" {
			return nil, missing(field.name, string(pipeline.ArtifactAgreement))
		}
	}

	if _, err := ops.FindLicensee(ctx, licenseeID, sellerID, clientID); err != nil {
		return nil, abort(fmt.Errorf("resolving source licensee: %w", err))
	}
	log.Info("Resolving destination licensee", zap.String("licensee_id", target.LicenseeID))
	destination, err := ops.FindLicensee(ctx, target.LicenseeID, sellerID, clientID)
	if err != nil {
		return nil, abort(fmt.Errorf("resolving destination licensee: %w", err))
	}

	listing, err := ops.GetListing(ctx, listingID)
	if err != nil {
		return nil, abort(fmt.Errorf("fetching listing %s: %w", listingID, err))
	}
	authorizationID, err := s.saveAuthorization(ctx, listing, listingID)
	if err != nil {
		return nil, err
	}

	buyerID := destination.String("buyer.id")
	if buyerID == "" {
		return nil, missing("buyer.id", "licensee "+target.LicenseeID)
	}
	return agreement.NewAgreementForLicensee(source, target.LicenseeID, buyerID, authorizationID), nil
}

// saveAuthorization writes the listing authorization and returns its id.
func (s *Service) saveAuthorization(ctx context.Context, listing agreement.Record, listingID string) (string, error) {
	auth := listing.Object("authorization")
	if auth != nil {
		if err := s.store.WriteJSON(ctx, pipeline.ArtifactAuthorization, auth); err != nil {
			return "", err
		}
	}
	id := auth.String("id")
	if id == "" {
		return "", missing("authorization.id", "listing "+listingID)
	}
	return id, nil
}
