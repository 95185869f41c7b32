package notify

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// zeroDecimalCurrencies have no minor unit in everyday use.
var zeroDecimalCurrencies = map[string]bool{
	"FCFA": true,
	"XAF":  true,
	"XOF":  true,
}

// FormatAmount renders amount for humans in French conventions, rounded to
// the currency's minor unit.
func FormatAmount(amount decimal.Decimal, currency string) string {
	scale := 2
	if zeroDecimalCurrencies[strings.ToUpper(currency)] {
		scale = 0
	}
	rounded, _ := amount.Round(int32(scale)).Float64()
	p := message.NewPrinter(language.French)
	formatted := p.Sprint(number.Decimal(rounded, number.Scale(scale)))
	if currency == "" {
		return formatted
	}
	return formatted + " " + currency
}
