package money

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// Format renders an amount with two decimals and thousands separators.
// Amounts are only rounded here, never during calculation.
func Format(amount float64) string {
	return printer.Sprintf("%.2f", amount)
}

// FormatWithSymbol prefixes the formatted amount with a currency symbol.
func FormatWithSymbol(symbol string, amount float64) string {
	if symbol == "" {
		return Format(amount)
	}
	return symbol + " " + Format(amount)
}
