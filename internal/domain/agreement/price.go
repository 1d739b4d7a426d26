package agreement

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// UnitSP computes the selling price from a purchase price and a percentage
// markup, rounded to cents.
func UnitSP(unitPP, markup decimal.Decimal) decimal.Decimal {
	return unitPP.Mul(one.Add(markup.Div(hundred))).Round(2)
}

// FallbackMargin derives a margin percentage from a default markup for lines
// that report none. A markup of -100 has no margin and yields zero.
// The formula, (m/100)/(1+m/100)*100, is kept as the tool has always applied
// it, pending confirmation by the pricing owner.
func FallbackMargin(defaultMarkup decimal.Decimal) decimal.Decimal {
	m := defaultMarkup.Div(hundred)
	denominator := one.Add(m)
	if denominator.IsZero() {
		return decimal.Zero
	}
	return m.Div(denominator).Mul(hundred).Round(2)
}

// PriceCandidate is one possible source of a purchase price.
type PriceCandidate struct {
	Source string
	Value  decimal.Decimal
	Valid  bool
}

// Candidate builds a PriceCandidate from a raw JSON or worksheet value.
func Candidate(source string, v any) PriceCandidate {
	d, ok := ToDecimal(v)
	return PriceCandidate{Source: source, Value: d, Valid: ok}
}

func (c PriceCandidate) usable() bool {
	return c.Valid && !c.Value.IsZero()
}

// PriceDecision is the price node sent for one line.
type PriceDecision struct {
	Markup decimal.Decimal
	UnitPP decimal.Decimal
	UnitSP decimal.Decimal
	// PurchasePrice is true when the line is priced from unitPP/unitSP.
	PurchasePrice bool
	// Fallback is true when a purchase price was requested but no candidate
	// carried one, so the markup is sent instead.
	Fallback bool
	Source   string
}

// LinePrice decides how a line is priced. With keepPurchasePrice the first
// non-zero candidate wins; otherwise, or when none qualifies, the markup is
// used.
func LinePrice(markup decimal.Decimal, keepPurchasePrice bool, candidates ...PriceCandidate) PriceDecision {
	if !keepPurchasePrice {
		return PriceDecision{Markup: markup}
	}
	for _, c := range candidates {
		if c.usable() {
			return PriceDecision{
				Markup:        markup,
				UnitPP:        c.Value,
				UnitSP:        UnitSP(c.Value, markup),
				PurchasePrice: true,
				Source:        c.Source,
			}
		}
	}
	return PriceDecision{Markup: markup, Fallback: true}
}

// Payload renders the decision as the line price node.
func (d PriceDecision) Payload() Record {
	if d.PurchasePrice {
		return Record{
			"unitPP": json.Number(d.UnitPP.String()),
			"unitSP": json.Number(d.UnitSP.StringFixed(2)),
		}
	}
	return Record{"markup": json.Number(d.Markup.String())}
}
