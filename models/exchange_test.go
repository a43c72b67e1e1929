package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUSDRate(t *testing.T) {
	rate := USDRate()
	assert.Equal(t, "USD", rate.Code)
	assert.Equal(t, "$", rate.Symbol)
	assert.Equal(t, 10.5, rate.Convert(10.5))
}

func TestConvert(t *testing.T) {
	eur := ExchangeRate{Code: "EUR", Symbol: "€", Rate: 0.92}
	assert.InDelta(t, 9.2, eur.Convert(10), 1e-9)

	zero := ExchangeRate{Code: "EUR"}
	assert.Equal(t, 10.0, zero.Convert(10), "a zero rate passes through unchanged")
}

func TestExchangeRateFresh(t *testing.T) {
	now := time.Now()
	rate := ExchangeRate{FetchedAt: now.Add(-6 * 24 * time.Hour)}
	assert.True(t, rate.Fresh(now))

	rate.FetchedAt = now.Add(-8 * 24 * time.Hour)
	assert.False(t, rate.Fresh(now))
}

func TestCurrencySymbol(t *testing.T) {
	assert.Equal(t, "€", CurrencySymbol("EUR"))
	assert.Equal(t, "€", CurrencySymbol("eur"))
	assert.Equal(t, "₩", CurrencySymbol("KRW"))
	assert.Equal(t, "XYZ ", CurrencySymbol("xyz"))
}
