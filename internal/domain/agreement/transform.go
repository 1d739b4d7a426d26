package agreement

import (
	"fmt"
)

// SideValue is a field removed from (or carried next to) the create payload,
// kept exactly as found so it can be restored after creation.
type SideValue struct {
	Field RestoreField
	Value any
	// Present is false when the source had no usable value for the field.
	Present bool
}

// StripAgreement returns a deep copy of rec without the fields the create
// endpoint rejects, plus the side values to restore, in restore order.
func StripAgreement(rec Record) (Record, []SideValue) {
	payload := rec.Clone()
	if payload == nil {
		payload = Record{}
	}

	side := make([]SideValue, 0, len(AgreementRestoreFields))
	for _, field := range AgreementRestoreFields {
		v, _ := rec.Lookup(field.Path)
		side = append(side, SideValue{
			Field:   field,
			Value:   deepCopy(v),
			Present: Truthy(v),
		})
		if field.Strip {
			payload.Delete(field.Path)
		}
	}
	return payload, side
}

// RestoreBody builds the update body that writes sv back onto the agreement
// agreementID.
func RestoreBody(agreementID string, sv SideValue) (Record, error) {
	switch sv.Field.Kind {
	case RestoreReferences:
		refs := CertificateReferences(sv.Value)
		if len(refs) == 0 {
			return nil, ErrNoCertificateReferences
		}
		items := make([]any, len(refs))
		for i, ref := range refs {
			items[i] = ref
		}
		return Record{sv.Field.Path.String(): items}, nil
	default:
		body := Record{"id": agreementID}
		body.Set(sv.Field.Path, deepCopy(sv.Value))
		return body, nil
	}
}

// CertificateReferences reduces a certificates value to {id} references,
// ignoring entries without an id.
func CertificateReferences(v any) []Record {
	var refs []Record
	for _, cert := range Objects(v) {
		if id := cert.String("id"); id != "" {
			refs = append(refs, Record{"id": id})
		}
	}
	return refs
}

// PayloadOptions tunes SubscriptionPayload.
type PayloadOptions struct {
	KeepPurchasePrice bool
}

// PayloadReport describes what SubscriptionPayload left out.
type PayloadReport struct {
	Omitted      []FieldPath
	DroppedLines int
	Warnings     []string
}

// SubscriptionPayload projects a dumped subscription onto the create
// allow-list. sourceID is the id of the subscription the record was dumped
// from; dumps do not carry it.
func SubscriptionPayload(sourceID string, src Record, opts PayloadOptions) (Record, PayloadReport, error) {
	var report PayloadReport
	if sourceID == "" {
		return nil, report, fmt.Errorf("%w: missing source subscription id", ErrSubscriptionIncomplete)
	}
	if !src.Truthy("name") {
		return nil, report, fmt.Errorf("%w: subscription %s has no name", ErrSubscriptionIncomplete, sourceID)
	}

	payload, omitted := SubscriptionFields.Apply(src)
	report.Omitted = omitted

	if _, ok := src.Lookup("lines"); ok {
		lines := make([]any, 0)
		for i, line := range src.Objects("lines") {
			if line.String("item.id") == "" {
				report.DroppedLines++
				report.Warnings = append(report.Warnings,
					fmt.Sprintf("subscription %s: line %d has no item.id, dropped", sourceID, i))
				continue
			}
			projected, _ := LineFields.Apply(line)
			if opts.KeepPurchasePrice {
				if price, ok := line.Lookup(LinePriceField); ok {
					projected.Set(LinePriceField, deepCopy(price))
				}
			}
			lines = append(lines, projected)
		}
		payload["lines"] = lines
	}

	return payload, report, nil
}

// NewAgreementForListing derives the agreement to create when moving to
// another listing.
func NewAgreementForListing(src Record, listingID, authorizationID string) Record {
	out := src.Clone()
	if out == nil {
		out = Record{}
	}
	delete(out, "id")
	if _, ok := asObject(out["listing"]); !ok {
		out["listing"] = Record{}
	}
	out.Set("listing.id", listingID)
	out["authorization"] = Record{"id": authorizationID}
	return out
}

// NewAgreementForLicensee derives the agreement to create for another
// licensee of the same seller and client.
func NewAgreementForLicensee(src Record, licenseeID, buyerID, authorizationID string) Record {
	out := src.Clone()
	if out == nil {
		out = Record{}
	}
	delete(out, "id")
	out["licensee"] = Record{"id": licenseeID}
	out["buyer"] = Record{"id": buyerID}
	out["authorization"] = Record{"id": authorizationID}
	return out
}
