package agreement

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// RepriceRow is one worksheet line eligible for repricing.
type RepriceRow struct {
	SubscriptionID string
	VendorSubID    string
	ItemID         string
	Markup         decimal.Decimal
	// UnitPP is only valid when the sheet carried a non-zero purchase price.
	UnitPP PriceCandidate
}

// RepriceGroup collects the worksheet rows of one source subscription.
type RepriceGroup struct {
	SubscriptionID string
	Items          map[string]RepriceRow
}

// RepriceSheet is the worksheet content keyed by vendor subscription id.
type RepriceSheet struct {
	Groups map[string]RepriceGroup
	Rows   int
	// UnitPPColumn is the 0-based purchase price column, or -1.
	UnitPPColumn int
	Warnings     []string
}

// ReadRepriceSheet extracts repricing rows from raw worksheet rows, the first
// of which is the header. Rows missing any of ID, Vendor Sub ID, Item ID or
// Markup are ignored.
func ReadRepriceSheet(rows [][]string) (RepriceSheet, error) {
	sheet := RepriceSheet{Groups: map[string]RepriceGroup{}, UnitPPColumn: -1}
	if len(rows) == 0 {
		return sheet, fmt.Errorf("%w: %s", ErrMissingColumns,
			strings.Join([]string{ColumnID, ColumnVendorSubID, ColumnItemID, ColumnMarkup}, ", "))
	}

	header := rows[0]
	index := map[string]int{}
	for i, h := range header {
		if _, seen := index[h]; h != "" && !seen {
			index[h] = i
		}
	}

	required := []string{ColumnID, ColumnVendorSubID, ColumnItemID, ColumnMarkup}
	if missing := lo.Filter(required, func(c string, _ int) bool {
		_, ok := index[c]
		return !ok
	}); len(missing) > 0 {
		return sheet, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	if i, ok := index[ColumnUnitPP]; ok {
		sheet.UnitPPColumn = i
	} else if len(header) >= UnitPPColumn {
		sheet.UnitPPColumn = UnitPPColumn - 1
	} else {
		sheet.Warnings = append(sheet.Warnings,
			fmt.Sprintf("column %d not found, purchase prices will come from the API", UnitPPColumn))
	}

	var parsed []RepriceRow
	for n, row := range rows[1:] {
		r := RepriceRow{
			SubscriptionID: strings.TrimSpace(at(row, index[ColumnID])),
			VendorSubID:    at(row, index[ColumnVendorSubID]),
			ItemID:         at(row, index[ColumnItemID]),
		}
		rawMarkup := strings.TrimSpace(at(row, index[ColumnMarkup]))
		if r.SubscriptionID == "" || r.VendorSubID == "" || r.ItemID == "" || rawMarkup == "" {
			continue
		}
		markup, err := decimal.NewFromString(rawMarkup)
		if err != nil {
			sheet.Warnings = append(sheet.Warnings,
				fmt.Sprintf("row %d: markup %q is not a number, skipping", n+2, rawMarkup))
			continue
		}
		r.Markup = markup
		if sheet.UnitPPColumn >= 0 {
			r.UnitPP = Candidate("worksheet", at(row, sheet.UnitPPColumn))
		}
		parsed = append(parsed, r)
	}

	for vendorID, group := range lo.GroupBy(parsed, func(r RepriceRow) string { return r.VendorSubID }) {
		sheet.Groups[vendorID] = RepriceGroup{
			SubscriptionID: group[0].SubscriptionID,
			Items:          lo.KeyBy(group, func(r RepriceRow) string { return r.ItemID }),
		}
	}
	sheet.Rows = len(parsed)
	return sheet, nil
}

// LineUpdate is the planned update of one subscription line.
type LineUpdate struct {
	LineID  string
	ItemID  string
	Price   PriceDecision
	Payload Record
}

// LinePlan is the set of line updates for one subscription.
type LinePlan struct {
	SubscriptionID string
	Updates        []LineUpdate
	Warnings       []string
}

// Body returns the subscription update body.
func (p LinePlan) Body() Record {
	lines := lo.Map(p.Updates, func(u LineUpdate, _ int) any { return u.Payload })
	return Record{"lines": lines}
}

// PlanLineUpdates matches the active lines of a cloned subscription against
// its worksheet group and builds the line payloads.
func PlanLineUpdates(sub Record, group RepriceGroup, keepPurchasePrice bool) LinePlan {
	plan := LinePlan{SubscriptionID: sub.ID()}
	for _, line := range ActiveLines(sub) {
		itemID := line.String("item.id")
		if itemID == "" {
			continue
		}
		row, ok := group.Items[itemID]
		if !ok {
			continue
		}
		lineID := line.String("id")
		if lineID == "" {
			plan.Warnings = append(plan.Warnings,
				fmt.Sprintf("subscription %s line with item %s has no line id, skipping", plan.SubscriptionID, itemID))
			continue
		}

		price := LinePrice(row.Markup, keepPurchasePrice,
			row.UnitPP, Candidate("api", line.Get("price.unitPP")))
		if price.Fallback {
			plan.Warnings = append(plan.Warnings,
				fmt.Sprintf("subscription %s line with item %s has no valid unitPP, using markup instead",
					plan.SubscriptionID, itemID))
		}

		plan.Updates = append(plan.Updates, LineUpdate{
			LineID:  lineID,
			ItemID:  itemID,
			Price:   price,
			Payload: repriceLinePayload(plan.SubscriptionID, lineID, itemID, line, price, keepPurchasePrice),
		})
	}
	return plan
}

func repriceLinePayload(subscriptionID, lineID, itemID string, line Record, price PriceDecision, keepPurchasePrice bool) Record {
	quantity, ok := line.Lookup("quantity")
	if !ok {
		quantity = json.Number("1")
	}
	quantityNotApplicable, ok := line.Lookup("quantityNotApplicable")
	if !ok {
		quantityNotApplicable = false
	}

	payload := Record{
		"price":                 price.Payload(),
		"subscription":          Record{"id": subscriptionID},
		"id":                    lineID,
		"quantity":              deepCopy(quantity),
		"item":                  Record{"id": itemID},
		"quantityNotApplicable": quantityNotApplicable,
	}
	if !keepPurchasePrice {
		terms, ok := line.Lookup("terms")
		if !ok {
			terms = Record{}
		}
		payload["terms"] = deepCopy(terms)
	}
	return payload
}
