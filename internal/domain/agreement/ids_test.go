package agreement

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateIDs(t *testing.T) {
	t.Run("accepts prefixed ids", func(t *testing.T) {
		assert.NoError(t, ValidateAgreementID("AGR-1234-5678-9012"))
		assert.NoError(t, ValidateListingID("LST-9279-6638"))
		assert.NoError(t, ValidateLicenseeID("LCE-1234-5678-9012"))
	})

	t.Run("rejects other prefixes", func(t *testing.T) {
		err := ValidateAgreementID("SUB-1")
		assert.ErrorIs(t, err, ErrInvalidAgreementID)
		assert.EqualError(t, err, "invalid agreement ID format: 'SUB-1'. Must start with 'AGR-' (e.g., AGR-1234-5678-9012)")

		assert.ErrorIs(t, ValidateListingID("agr-1"), ErrInvalidListingID)
		assert.ErrorIs(t, ValidateLicenseeID(""), ErrInvalidLicenseeID)
	})
}
