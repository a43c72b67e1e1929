package models

import (
	"strings"
	"time"
)

// ExchangeRate converts USD costs into a display currency. The zero-value
// fallback is the USD identity rate.
type ExchangeRate struct {
	Code      string    `json:"code"`
	Symbol    string    `json:"symbol"`
	Rate      float64   `json:"rate"`
	FetchedAt time.Time `json:"fetched_at"`
}

// ExchangeRateTTL is how long a fetched exchange rate stays fresh.
const ExchangeRateTTL = 7 * 24 * time.Hour

// USDRate returns the identity rate for the base currency.
func USDRate() ExchangeRate {
	return ExchangeRate{Code: "USD", Symbol: "$", Rate: 1.0}
}

// Fresh reports whether the rate is still within its freshness window.
func (e *ExchangeRate) Fresh(now time.Time) bool {
	return now.Sub(e.FetchedAt) < ExchangeRateTTL
}

// Convert converts a USD amount to the target currency. A zero rate is
// treated as identity so a missing rate passes values through unchanged.
func (e *ExchangeRate) Convert(usd float64) float64 {
	if e.Rate == 0 {
		return usd
	}
	return usd * e.Rate
}

var currencySymbols = map[string]string{
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"JPY": "¥",
	"CNY": "¥",
	"KRW": "₩",
	"INR": "₹",
	"BRL": "R$",
	"CHF": "CHF ",
	"CAD": "CA$",
	"AUD": "A$",
	"SEK": "kr ",
	"NOK": "kr ",
	"DKK": "kr ",
	"PLN": "zł",
	"CZK": "Kč ",
	"TRY": "₺",
	"THB": "฿",
	"MXN": "MX$",
	"ZAR": "R ",
}

// CurrencySymbol returns the display symbol for an ISO 4217 code,
// defaulting to "<CODE> " when no symbol is known.
func CurrencySymbol(code string) string {
	code = strings.ToUpper(code)
	if sym, ok := currencySymbols[code]; ok {
		return sym
	}
	return code + " "
}
