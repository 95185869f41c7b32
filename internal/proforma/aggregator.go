package proforma

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Totals are the document level amounts. They are always derived from the
// items and the promo rate.
type Totals struct {
	SubtotalHT    decimal.Decimal `json:"subtotal_ht"`
	DiscountTotal decimal.Decimal `json:"discount_total"`
	TaxableBase   decimal.Decimal `json:"taxable_base"`
	TaxTotal      decimal.Decimal `json:"tax_total"`
	TotalTTC      decimal.Decimal `json:"total_ttc"`
}

// Aggregate sums the line breakdowns and applies the optional document-level
// promo rate. The promo is taken on the HT subtotal, capped at the line
// taxable total, and the line taxes are scaled by the share of the taxable
// base that remains after it.
func Aggregate(items []LineItem, promoRate *decimal.Decimal) (Totals, error) {
	var subtotalHT, lineDiscountTotal, lineTaxableTotal, lineTaxTotal decimal.Decimal
	for i, item := range items {
		b, err := item.Breakdown()
		if err != nil {
			return Totals{}, fmt.Errorf("line %d: %w", i+1, err)
		}
		subtotalHT = subtotalHT.Add(b.LineHT)
		lineDiscountTotal = lineDiscountTotal.Add(b.LineDiscount)
		lineTaxableTotal = lineTaxableTotal.Add(b.LineTaxable)
		lineTaxTotal = lineTaxTotal.Add(b.LineTax)
	}

	promoAmount := zero
	if promoRate != nil {
		if !validRate(*promoRate) {
			return Totals{}, fmt.Errorf("%w: rate must be within [0,1], got %s", ErrInvalidPromo, promoRate)
		}
		promoAmount = subtotalHT.Mul(*promoRate)
	}
	// The promo can at most absorb what the line discounts left taxable.
	promoAmount = decimal.Min(promoAmount, lineTaxableTotal)

	taxableBase := lineTaxableTotal.Sub(promoAmount)
	taxTotal := lineTaxTotal
	if !lineTaxableTotal.IsZero() && !promoAmount.IsZero() {
		// lineTax * (taxableBase / lineTaxable), multiplied first so the
		// only rounding is the final division.
		taxTotal = lineTaxTotal.Mul(taxableBase).DivRound(lineTaxableTotal, divisionPrecision)
	}

	return Totals{
		SubtotalHT:    subtotalHT,
		DiscountTotal: lineDiscountTotal.Add(promoAmount),
		TaxableBase:   taxableBase,
		TaxTotal:      taxTotal,
		TotalTTC:      taxableBase.Add(taxTotal),
	}, nil
}

// Reconcile checks the accounting identities between the totals.
func (t Totals) Reconcile() error {
	if !t.TotalTTC.Equal(t.TaxableBase.Add(t.TaxTotal)) {
		return fmt.Errorf("%w: total_ttc %s != taxable_base %s + tax_total %s", ErrIntegrity, t.TotalTTC, t.TaxableBase, t.TaxTotal)
	}
	if !t.TaxableBase.Equal(t.SubtotalHT.Sub(t.DiscountTotal)) {
		return fmt.Errorf("%w: taxable_base %s != subtotal_ht %s - discount_total %s", ErrIntegrity, t.TaxableBase, t.SubtotalHT, t.DiscountTotal)
	}
	return nil
}

// Equal reports whether both totals carry the same amounts.
func (t Totals) Equal(other Totals) bool {
	return t.SubtotalHT.Equal(other.SubtotalHT) &&
		t.DiscountTotal.Equal(other.DiscountTotal) &&
		t.TaxableBase.Equal(other.TaxableBase) &&
		t.TaxTotal.Equal(other.TaxTotal) &&
		t.TotalTTC.Equal(other.TotalTTC)
}
