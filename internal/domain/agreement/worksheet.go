package agreement

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// Worksheet column headers read back by later stages.
const (
	ColumnID          = "ID"
	ColumnVendorSubID = "Vendor Sub ID"
	ColumnItemID      = "Item ID"
	ColumnMarkup      = "Markup"
	ColumnUnitPP      = "Unit PP"
)

// UnitPPColumn is the 1-based column used for the purchase price when the
// sheet has no "Unit PP" header.
const UnitPPColumn = 27

// WorksheetSheet is the name of the sheet holding the subscription rows.
const WorksheetSheet = "subscriptions"

// WorksheetHeaders is the fixed header row of subscriptions.xlsx.
var WorksheetHeaders = []string{
	ColumnID, ColumnVendorSubID, "Client Sub ID", "Name", "Status", "Agreement ID",
	"Agreement CCO", "Agreement Client ID", "Agreement Name", "Agreement Vendor ID",
	"Agreement Authorization ID", "Buyer ID", "Buyer SCU", "Buyer Name", "Seller ID",
	"Seller Nav", "Seller Name", "Item Name", ColumnItemID, "Item MS ID", "billing period",
	"Commitment period", ColumnMarkup, "Margin", "Currency", "Unit SP", ColumnUnitPP, "Quantity",
	"AutoRenew", "Start date", "Commitment date", "Original domain", "From Migrated Data",
	"Tier 2/Resell", "MPN",
}

const (
	partnerProgramID   = "PRG-0742-8320"
	existingDomainName = "ExistingDomainName"
	maxColumnWidth     = 50
)

// WorksheetReport is the outcome of projecting subscriptions onto rows.
type WorksheetReport struct {
	Rows      [][]any
	Processed int
	Skipped   int
	// Problematic lists subscriptions that have no lines at all.
	Problematic []string
	Warnings    []string
	Errors      []string
}

// WorksheetRows builds one row per active line of each subscription.
func WorksheetRows(subs []Record) WorksheetReport {
	var report WorksheetReport
	for _, sub := range subs {
		id := sub.ID()
		if !sub.Truthy("lines") {
			report.Problematic = append(report.Problematic, id)
			report.Skipped++
			continue
		}

		active := ActiveLines(sub)
		if len(active) == 0 {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("no active lines found for subscription %s, skipping", id))
			report.Skipped++
			continue
		}
		if id == "" || !sub.Truthy("name") {
			report.Errors = append(report.Errors,
				fmt.Sprintf("missing basic subscription data for subscription %s", id))
			report.Skipped++
			continue
		}

		for _, line := range active {
			report.Rows = append(report.Rows, worksheetRow(sub, line))
			report.Processed++
		}
	}
	return report
}

// ActiveLines returns the lines whose status is active, case-insensitively.
func ActiveLines(sub Record) []Record {
	return lo.Filter(sub.Objects("lines"), func(line Record, _ int) bool {
		return strings.EqualFold(line.String("status"), "active")
	})
}

func worksheetRow(sub, line Record) []any {
	defaultMarkup := decimalAt(sub, "price.defaultMarkup")

	markup := decimalAt(line, "price.markup").Round(2)
	if markup.IsZero() {
		markup = defaultMarkup.Round(2)
	}
	margin := decimalAt(line, "price.margin").Round(2)
	if margin.IsZero() {
		margin = FallbackMargin(defaultMarkup)
	}

	quantity := cell(line, "quantity")
	if _, ok := line.Lookup("quantity"); !ok {
		quantity = "1"
	}

	autoRenew := "Disabled"
	if sub.Truthy("autoRenew") {
		autoRenew = "Enabled"
	}

	partner := Truthy(pick(sub, "licensee.eligibility.partner"))
	mpn := "-"
	if partner {
		mpn = partnerMPN(sub.Objects("agreement.certificates"))
	}

	return []any{
		sub.ID(),
		cell(sub, "externalIds.vendor"),
		cell(sub, "externalIds.client"),
		sub.String("name"),
		cell(sub, "status"),
		cell(sub, "agreement.id"),
		cell(sub, "agreement.externalIds.operations"),
		cell(sub, "agreement.externalIds.client"),
		cell(sub, "agreement.name"),
		cell(sub, "agreement.externalIds.vendor"),
		cell(sub, "agreement.authorization.externalIds.operations"),
		cell(sub, "buyer.externalIds.erpCustomer"),
		cell(sub, "buyer.id"),
		cell(sub, "buyer.name"),
		cell(sub, "seller.id"),
		cell(sub, "seller.externalId"),
		cell(sub, "seller.name"),
		cell(line, "item.name"),
		cell(line, "item.id"),
		cell(line, "item.externalIds.vendor"),
		cell(sub, "terms.period"),
		cell(sub, "terms.commitment"),
		markup.InexactFloat64(),
		margin.InexactFloat64(),
		cell(line, "price.currency"),
		cell(line, "price.unitSP"),
		cell(line, "price.unitPP"),
		quantity,
		autoRenew,
		sheetDate(sub.String("startDate")),
		sheetDate(sub.String("commitmentDate")),
		parameterDisplayValue(sub.Objects("agreement.parameters.ordering"), existingDomainName),
		"No",
		partner,
		mpn,
	}
}

// pick walks path like Lookup but descends into the first element of any
// array met on the way. Missing values yield nil.
func pick(rec Record, path FieldPath) any {
	var current any = rec
	for _, key := range path.Segments() {
		if items, ok := current.([]any); ok {
			if len(items) == 0 {
				return nil
			}
			current = items[0]
		}
		obj, ok := asObject(current)
		if !ok {
			return nil
		}
		current = obj[key]
	}
	return current
}

func decimalAt(rec Record, path FieldPath) decimal.Decimal {
	d, _ := ToDecimal(pick(rec, path))
	return d
}

// cell converts a JSON value to a spreadsheet cell value.
func cell(rec Record, path FieldPath) any {
	switch v := pick(rec, path).(type) {
	case nil:
		return ""
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
		return v.String()
	case string, bool, float64, int, int64:
		return v
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(raw)
	}
}

func sheetDate(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "T", " "), "Z", "")
}

func parameterDisplayValue(params []Record, externalID string) string {
	for _, p := range params {
		if strings.EqualFold(p.String("externalId"), externalID) {
			return p.String("displayValue")
		}
	}
	return ""
}

func partnerMPN(certificates []Record) string {
	for _, cert := range certificates {
		if cert.String("program.id") != partnerProgramID {
			continue
		}
		if v, ok := cert.Lookup("externalIds.vendor"); ok && v != nil {
			return Text(v)
		}
		return "-"
	}
	return "-"
}

// CellText renders a cell value the way it is measured for column widths.
func CellText(v any) string {
	switch t := v.(type) {
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		if t {
			return "True"
		}
		return "False"
	default:
		return Text(v)
	}
}

// ColumnWidths sizes each column to its longest set value plus padding,
// capped at 50 characters.
func ColumnWidths(rows [][]any) []float64 {
	var widths []int
	for _, row := range rows {
		for i, v := range row {
			for len(widths) <= i {
				widths = append(widths, 0)
			}
			if !Truthy(v) {
				continue
			}
			widths[i] = max(widths[i], utf8.RuneCountInString(CellText(v)))
		}
	}
	return lo.Map(widths, func(w int, _ int) float64 {
		return float64(min(w+2, maxColumnWidth))
	})
}

// HeaderRow returns the worksheet header as cell values.
func HeaderRow() []any {
	return lo.Map(WorksheetHeaders, func(h string, _ int) any { return h })
}

// SubscriptionIDs reads the ID column of a worksheet, trimmed, in order and
// without duplicates.
func SubscriptionIDs(rows [][]string) ([]string, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumns, ColumnID)
	}
	col := lo.IndexOf(lo.Map(rows[0], func(h string, _ int) string { return strings.TrimSpace(h) }), ColumnID)
	if col < 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumns, ColumnID)
	}

	var ids []string
	for _, row := range rows[1:] {
		if id := strings.TrimSpace(at(row, col)); id != "" {
			ids = append(ids, id)
		}
	}
	return lo.Uniq(ids), nil
}

func at(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}
