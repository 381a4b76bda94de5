package domain

import (
	"math"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// DefaultCurrency is the ISO 4217 code prices are quoted in.
const DefaultCurrency = "USD"

// ToCents converts a decimal amount to minor units, rounding half away from zero.
func ToCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// FromCents converts minor units back to a decimal amount.
func FromCents(cents int64) float64 {
	return float64(cents) / 100
}

var displayPrinter = message.NewPrinter(language.AmericanEnglish)

// FormatPrice renders amount for display, e.g. "$35.48".
func FormatPrice(amount float64) string {
	return FormatPriceIn(DefaultCurrency, amount)
}

// FormatPriceIn renders amount in the given ISO currency. Unknown codes fall back to USD.
func FormatPriceIn(code string, amount float64) string {
	unit, err := currency.ParseISO(code)
	if err != nil {
		unit = currency.USD
	}
	return displayPrinter.Sprint(currency.Symbol(unit.Amount(FromCents(ToCents(amount)))))
}
