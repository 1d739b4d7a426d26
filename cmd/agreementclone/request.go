package main

import (
	"errors"
	"fmt"

	"github.com/erp/agreementclone/internal/domain/agreement"
	"github.com/go-playground/validator/v10"
)

// idChecks maps the identifier tags to the checks that produce their messages.
var idChecks = map[string]func(string) error{
	"agreement_id": agreement.ValidateAgreementID,
	"listing_id":   agreement.ValidateListingID,
	"licensee_id":  agreement.ValidateLicenseeID,
}

var requests = newRequestValidator()

func newRequestValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	for tag, check := range idChecks {
		_ = v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
			return check(fl.Field().String()) == nil
		})
	}
	return v
}

// stageRequest is the input every stage command shares.
type stageRequest struct {
	AgreementID string `validate:"agreement_id"`
}

// dumpRequest is the input of the dump command.
type dumpRequest struct {
	AgreementID string `validate:"agreement_id"`
	ListingID   string `validate:"omitempty,listing_id"`
	LicenseeID  string `validate:"omitempty,licensee_id"`
}

// validateRequest validates req and reports failing identifiers with the
// errors of the agreement package.
func validateRequest(req any) error {
	err := requests.Struct(req)
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	errs := make([]error, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		if check, ok := idChecks[fe.Tag()]; ok {
			errs = append(errs, check(fmt.Sprint(fe.Value())))
			continue
		}
		errs = append(errs, fmt.Errorf("invalid %s: %s", fe.Field(), fe.Tag()))
	}
	return errors.Join(errs...)
}
