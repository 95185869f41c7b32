package proforma

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// divisionPrecision bounds the digits kept by the one division the engine
// performs (tax re-proration). Nothing else divides.
const divisionPrecision = 28

var (
	zero = decimal.Zero
	one  = decimal.NewFromInt(1)
)

// LineBreakdown holds the derived amounts of a single line.
type LineBreakdown struct {
	LineHT       decimal.Decimal `json:"line_ht"`
	LineDiscount decimal.Decimal `json:"line_discount"`
	LineTaxable  decimal.Decimal `json:"line_taxable"`
	LineTax      decimal.Decimal `json:"line_tax"`
	LineTTC      decimal.Decimal `json:"line_ttc"`
}

// ComputeLine derives the HT, discount, taxable, tax and TTC amounts of one
// line. Amounts are exact; rounding is left to presentation.
func ComputeLine(unitPriceHT decimal.Decimal, quantity int, discountRate, taxRate decimal.Decimal) (LineBreakdown, error) {
	if quantity <= 0 {
		return LineBreakdown{}, fmt.Errorf("%w: quantity must be greater than zero, got %d", ErrInvalidLineItem, quantity)
	}
	if unitPriceHT.IsNegative() {
		return LineBreakdown{}, fmt.Errorf("%w: unit price must not be negative, got %s", ErrInvalidLineItem, unitPriceHT)
	}
	if !validRate(discountRate) {
		return LineBreakdown{}, fmt.Errorf("%w: discount rate must be within [0,1], got %s", ErrInvalidLineItem, discountRate)
	}
	if !validRate(taxRate) {
		return LineBreakdown{}, fmt.Errorf("%w: tax rate must be within [0,1], got %s", ErrInvalidLineItem, taxRate)
	}

	lineHT := unitPriceHT.Mul(decimal.NewFromInt(int64(quantity)))
	lineDiscount := lineHT.Mul(discountRate)
	lineTaxable := lineHT.Sub(lineDiscount)
	lineTax := lineTaxable.Mul(taxRate)

	return LineBreakdown{
		LineHT:       lineHT,
		LineDiscount: lineDiscount,
		LineTaxable:  lineTaxable,
		LineTax:      lineTax,
		LineTTC:      lineTaxable.Add(lineTax),
	}, nil
}

func validRate(rate decimal.Decimal) bool {
	return !rate.IsNegative() && rate.LessThanOrEqual(one)
}
