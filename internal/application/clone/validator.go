package clone

import (
	"context"
	"fmt"
	"strings"

	"github.com/erp/agreementclone/internal/domain/agreement"
	"github.com/erp/agreementclone/internal/infrastructure/commerce"
	"go.uber.org/zap"
)

// Preconditions checks that an agreement may be processed.
type Preconditions interface {
	Validate(ctx context.Context, agreementID string) (agreement.Record, error)
}

// Agreement statuses that allow cloning.
const (
	StatusActive     = "Active"
	StatusTerminated = "Terminated"
)

// Validator verifies the agreement and the credentials before a stage runs.
type Validator struct {
	ops    *commerce.API
	vendor *commerce.API
	logger *zap.Logger
}

// NewValidator creates a validator using the ops and vendor APIs.
func NewValidator(ops, vendor *commerce.API, logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{ops: ops, vendor: vendor, logger: logger}
}

// Validate fetches the agreement with both tokens. Both fetches must
// succeed, the status must be Active or Terminated, and only the ops token
// may see the default markup. It returns the ops view of the agreement.
func (v *Validator) Validate(ctx context.Context, agreementID string) (agreement.Record, error) {
	v.logger.Info("Validating agreement", zap.String("agreement_id", agreementID))

	opsView, err := v.ops.GetAgreement(ctx, agreementID)
	if err != nil {
		return nil, fmt.Errorf("%w: agreement %s is not accessible with the ops token: %w",
			ErrCredentialMismatch, agreementID, err)
	}
	vendorView, err := v.vendor.GetAgreement(ctx, agreementID)
	if err != nil {
		return nil, fmt.Errorf("%w: agreement %s is not accessible with the vendor token: %w",
			ErrCredentialMismatch, agreementID, err)
	}

	status := strings.TrimSpace(opsView.String("status"))
	if status != StatusActive && status != StatusTerminated {
		return nil, fmt.Errorf("%w: agreement %s is %q, expected %s or %s",
			ErrAgreementStatus, agreementID, status, StatusActive, StatusTerminated)
	}

	if !hasDefaultMarkup(opsView) {
		return nil, fmt.Errorf("%w: the ops token cannot see the default markup of %s, check OPS_TOKEN",
			ErrCredentialMismatch, agreementID)
	}
	if hasDefaultMarkup(vendorView) {
		return nil, fmt.Errorf("%w: the vendor token can see the default markup of %s, check VENDOR_TOKEN",
			ErrCredentialMismatch, agreementID)
	}

	v.logger.Info("Agreement validated", zap.String("agreement_id", agreementID), zap.String("status", status))
	return opsView, nil
}

// hasDefaultMarkup reports whether the markup is visible, under price or at
// the top level.
func hasDefaultMarkup(rec agreement.Record) bool {
	return rec.Has("price.defaultMarkup") || rec.Has("defaultMarkup")
}
