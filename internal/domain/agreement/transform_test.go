package agreement

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleAgreement(t *testing.T) Record {
	t.Helper()
	rec, err := DecodeRecord([]byte(`{
		"id": "AGR-1111-2222-3333",
		"name": "Contoso",
		"externalIds": {"vendor": "tenant-1", "client": "c-1"},
		"parameters": {"ordering": [{"externalId": "x"}], "fulfillment": [{"externalId": "y"}]},
		"template": {"id": "TPL-1", "name": "Default"},
		"certificates": [{"id": "CER-1", "name": "partner"}, {"name": "no id"}, {"id": "CER-2"}],
		"price": {"defaultMarkup": 10}
	}`))
	require.NoError(t, err)
	return rec
}

func TestStripAgreement(t *testing.T) {
	src := sampleAgreement(t)
	payload, side := StripAgreement(src)

	t.Run("removes rejected fields", func(t *testing.T) {
		assert.False(t, payload.Has("externalIds.vendor"))
		assert.False(t, payload.Has("parameters.fulfillment"))
		assert.False(t, payload.Has("certificates"))
		assert.Equal(t, "c-1", payload.String("externalIds.client"))
		assert.True(t, payload.Has("parameters.ordering"))
		assert.Equal(t, "TPL-1", payload.String("template.id"))
	})

	t.Run("does not mutate the source", func(t *testing.T) {
		assert.Equal(t, "tenant-1", src.String("externalIds.vendor"))
		assert.True(t, src.Has("certificates"))
	})

	t.Run("side values follow the restore order", func(t *testing.T) {
		require.Len(t, side, len(AgreementRestoreFields))
		paths := make([]FieldPath, len(side))
		for i, sv := range side {
			paths[i] = sv.Field.Path
			assert.True(t, sv.Present, sv.Field.Path)
		}
		assert.Equal(t, []FieldPath{"parameters.fulfillment", "externalIds.vendor", "template.id", "certificates"}, paths)
		assert.Equal(t, "tenant-1", side[1].Value)
	})

	t.Run("absent fields are not present", func(t *testing.T) {
		_, side := StripAgreement(Record{"id": "AGR-1"})
		for _, sv := range side {
			assert.False(t, sv.Present)
		}
	})
}

func TestRestoreBody(t *testing.T) {
	_, side := StripAgreement(sampleAgreement(t))

	t.Run("value fields nest under their path", func(t *testing.T) {
		body, err := RestoreBody("AGR-NEW", side[0])
		require.NoError(t, err)
		want := Record{
			"id":         "AGR-NEW",
			"parameters": Record{"fulfillment": []any{Record{"externalId": "y"}}},
		}
		if diff := cmp.Diff(want, body); diff != "" {
			t.Errorf("restore body mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("template id", func(t *testing.T) {
		body, err := RestoreBody("AGR-NEW", side[2])
		require.NoError(t, err)
		assert.Equal(t, Record{"id": "AGR-NEW", "template": Record{"id": "TPL-1"}}, body)
	})

	t.Run("certificates keep only ids", func(t *testing.T) {
		body, err := RestoreBody("AGR-NEW", side[3])
		require.NoError(t, err)
		assert.Equal(t, Record{"certificates": []any{Record{"id": "CER-1"}, Record{"id": "CER-2"}}}, body)
	})

	t.Run("certificates without ids", func(t *testing.T) {
		_, err := RestoreBody("AGR-NEW", SideValue{
			Field: AgreementRestoreFields[3],
			Value: []any{map[string]any{"name": "x"}},
		})
		assert.ErrorIs(t, err, ErrNoCertificateReferences)
	})
}

func TestSubscriptionPayload(t *testing.T) {
	src, err := DecodeRecord([]byte(`{
		"name": "Office 365 E3",
		"status": "Active",
		"agreement": {"id": "AGR-OLD"},
		"autoRenew": true,
		"externalIds": {"vendor": "sub-v-1"},
		"audit": {"created": {"at": "2024-01-01"}},
		"lines": [
			{"id": "ALI-1", "item": {"id": "ITM-1", "name": "E3"}, "quantity": 5, "price": {"unitPP": 10}},
			{"id": "ALI-2", "quantity": 1}
		],
		"startDate": "2024-01-01T00:00:00Z"
	}`))
	require.NoError(t, err)

	t.Run("allow-lists top level fields and projects lines", func(t *testing.T) {
		payload, report, err := SubscriptionPayload("SUB-1", src, PayloadOptions{})
		require.NoError(t, err)

		want := Record{
			"name":        "Office 365 E3",
			"agreement":   Record{"id": "AGR-OLD"},
			"autoRenew":   true,
			"externalIds": Record{"vendor": "sub-v-1"},
			"startDate":   "2024-01-01T00:00:00Z",
			"lines": []any{
				Record{"item": Record{"id": "ITM-1"}, "quantity": json.Number("5")},
			},
		}
		if diff := cmp.Diff(want, payload); diff != "" {
			t.Errorf("payload mismatch (-want +got):\n%s", diff)
		}
		assert.Equal(t, 1, report.DroppedLines)
		assert.Len(t, report.Warnings, 1)
		assert.ElementsMatch(t, []FieldPath{"commitmentDate", "parameters", "template"}, report.Omitted)
	})

	t.Run("keeps the price node when requested", func(t *testing.T) {
		payload, _, err := SubscriptionPayload("SUB-1", src, PayloadOptions{KeepPurchasePrice: true})
		require.NoError(t, err)
		line := payload.Objects("lines")[0]
		assert.Equal(t, json.Number("10"), line.Get("price.unitPP"))
	})

	t.Run("accepts a single line object", func(t *testing.T) {
		single := Record{"name": "x", "lines": map[string]any{"item": map[string]any{"id": "ITM-9"}, "quantity": 2}}
		payload, _, err := SubscriptionPayload("SUB-2", single, PayloadOptions{})
		require.NoError(t, err)
		require.Len(t, payload.Objects("lines"), 1)
		assert.Equal(t, "ITM-9", payload.Objects("lines")[0].String("item.id"))
	})

	t.Run("incomplete records are rejected", func(t *testing.T) {
		_, _, err := SubscriptionPayload("", src, PayloadOptions{})
		assert.ErrorIs(t, err, ErrSubscriptionIncomplete)

		_, _, err = SubscriptionPayload("SUB-3", Record{"lines": []any{}}, PayloadOptions{})
		assert.ErrorIs(t, err, ErrSubscriptionIncomplete)
	})
}

func TestNewAgreement(t *testing.T) {
	src := sampleAgreement(t)
	src.Set("listing", Record{"id": "LST-OLD", "name": "old"})

	t.Run("for listing", func(t *testing.T) {
		out := NewAgreementForListing(src, "LST-NEW", "AUT-1")
		assert.False(t, out.Has("id"))
		assert.Equal(t, "LST-NEW", out.String("listing.id"))
		assert.Equal(t, "old", out.String("listing.name"))
		assert.Equal(t, Record{"id": "AUT-1"}, out.Object("authorization"))
		assert.Equal(t, "LST-OLD", src.String("listing.id"))
	})

	t.Run("for listing without listing object", func(t *testing.T) {
		out := NewAgreementForListing(Record{"id": "AGR-1", "listing": "bogus"}, "LST-NEW", "AUT-1")
		assert.Equal(t, Record{"id": "LST-NEW"}, out.Object("listing"))
	})

	t.Run("for licensee", func(t *testing.T) {
		out := NewAgreementForLicensee(src, "LCE-NEW", "BUY-1", "AUT-1")
		assert.False(t, out.Has("id"))
		assert.Equal(t, Record{"id": "LCE-NEW"}, out.Object("licensee"))
		assert.Equal(t, Record{"id": "BUY-1"}, out.Object("buyer"))
		assert.Equal(t, Record{"id": "AUT-1"}, out.Object("authorization"))
	})
}
