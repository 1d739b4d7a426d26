package agreement

import (
	"fmt"
	"strings"
)

// Identifier prefixes used by the commerce platform.
const (
	AgreementIDPrefix = "AGR-"
	ListingIDPrefix   = "LST-"
	LicenseeIDPrefix  = "LCE-"
)

// ValidateAgreementID checks that id starts with AGR-.
func ValidateAgreementID(id string) error {
	if !strings.HasPrefix(id, AgreementIDPrefix) {
		return fmt.Errorf("%w: '%s'. Must start with 'AGR-' (e.g., AGR-1234-5678-9012)", ErrInvalidAgreementID, id)
	}
	return nil
}

// ValidateListingID checks that id starts with LST-.
func ValidateListingID(id string) error {
	if !strings.HasPrefix(id, ListingIDPrefix) {
		return fmt.Errorf("%w: '%s'. Must start with 'LST-' (e.g., LST-9279-6638)", ErrInvalidListingID, id)
	}
	return nil
}

// ValidateLicenseeID checks that id starts with LCE-.
func ValidateLicenseeID(id string) error {
	if !strings.HasPrefix(id, LicenseeIDPrefix) {
		return fmt.Errorf("%w: '%s'. Must start with 'LCE-' (e.g., LCE-1234-5678-9012)", ErrInvalidLicenseeID, id)
	}
	return nil
}
