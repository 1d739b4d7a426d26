package agreement

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
)

// VendorIDPath is the join key between source and cloned subscriptions.
const VendorIDPath FieldPath = "externalIds.vendor"

// VendorID returns the trimmed vendor id of a subscription.
func VendorID(sub Record) string {
	return strings.TrimSpace(sub.String(VendorIDPath))
}

// JoinKeyReport summarises vendor id coverage across subscriptions.
type JoinKeyReport struct {
	// Missing lists the ids of subscriptions without a vendor id.
	Missing []string
	// Duplicates maps a vendor id shared by several subscriptions to their ids.
	Duplicates map[string][]string
}

// Warn reports whether a single subscription lacks a vendor id.
func (r JoinKeyReport) Warn() bool {
	return len(r.Missing) == 1
}

// CheckVendorIDs verifies that vendor ids can be used to match subscriptions.
// More than one subscription without a vendor id makes matching ambiguous.
func CheckVendorIDs(subs []Record) (JoinKeyReport, error) {
	report := JoinKeyReport{Duplicates: map[string][]string{}}

	byVendor := lo.GroupBy(subs, VendorID)
	for vendorID, group := range byVendor {
		ids := lo.Map(group, func(sub Record, _ int) string { return sub.ID() })
		if vendorID == "" {
			report.Missing = ids
			continue
		}
		if len(group) > 1 {
			report.Duplicates[vendorID] = ids
		}
	}

	if len(report.Missing) > 1 {
		return report, fmt.Errorf("%w: %d subscriptions have no %s: %s",
			ErrAmbiguousJoinKey, len(report.Missing), VendorIDPath, strings.Join(report.Missing, ", "))
	}
	return report, nil
}
