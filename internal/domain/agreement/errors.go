package agreement

import "errors"

// Errors returned by the agreement package.
var (
	// ErrInvalidAgreementID is returned when an agreement id lacks the AGR- prefix.
	ErrInvalidAgreementID = errors.New("invalid agreement ID format")
	// ErrInvalidListingID is returned when a listing id lacks the LST- prefix.
	ErrInvalidListingID = errors.New("invalid listing ID format")
	// ErrInvalidLicenseeID is returned when a licensee id lacks the LCE- prefix.
	ErrInvalidLicenseeID = errors.New("invalid licensee ID format")
	// ErrInvalidJSON is returned when a document is not a JSON object.
	ErrInvalidJSON = errors.New("agreement: document is not a JSON object")
	// ErrSubscriptionIncomplete is returned when a subscription lacks its id or name.
	ErrSubscriptionIncomplete = errors.New("agreement: subscription is missing id or name")
	// ErrAmbiguousJoinKey is returned when more than one subscription has no vendor id.
	ErrAmbiguousJoinKey = errors.New("agreement: ambiguous subscription join key")
	// ErrNoCertificateReferences is returned when no certificate carries an id.
	ErrNoCertificateReferences = errors.New("agreement: no valid certificate IDs found")
	// ErrMissingColumns is returned when a worksheet lacks a required column.
	ErrMissingColumns = errors.New("agreement: worksheet is missing required columns")
)
