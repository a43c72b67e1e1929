package pricing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/penwyp/tokencat/logging"
	"github.com/penwyp/tokencat/models"
)

// frankfurterURL serves ECB reference rates; base is pinned to USD because
// every computed cost is a USD amount.
const frankfurterURL = "https://api.frankfurter.dev/v1/latest?base=USD&symbols=%s"

type frankfurterResponse struct {
	Rates map[string]float64 `json:"rates"`
}

func (r *Resolver) exchangeRate(ctx context.Context, currency string) (models.ExchangeRate, error) {
	code := strings.ToUpper(currency)
	if code == "" || code == "USD" {
		return models.USDRate(), nil
	}

	key := "exchange:" + code
	cached, fetchedAt, haveCache := r.cacheGet(key)

	if haveCache && r.now().Sub(fetchedAt) < models.ExchangeRateTTL {
		if rate, err := parseFrankfurter(cached, code); err == nil {
			return buildRate(code, rate, fetchedAt), nil
		}
		haveCache = false
	}

	if r.offline {
		if haveCache {
			if rate, err := parseFrankfurter(cached, code); err == nil {
				logging.LogWarnf("Offline: using stale exchange rate for %s from %s",
					code, fetchedAt.Format(time.RFC3339))
				return buildRate(code, rate, fetchedAt), nil
			}
		}
		return models.ExchangeRate{}, fmt.Errorf("offline mode: no cached exchange rate for %s", code)
	}

	data, err := r.fetch(ctx, fmt.Sprintf(frankfurterURL, code))
	if err == nil {
		var rate float64
		if rate, err = parseFrankfurter(data, code); err == nil {
			now := r.now()
			r.cacheSet(key, data, now)
			return buildRate(code, rate, now), nil
		}
	}

	if haveCache {
		if rate, perr := parseFrankfurter(cached, code); perr == nil {
			logging.LogWarnf("Failed to refresh exchange rate for %s, using cached rate from %s: %v",
				code, fetchedAt.Format(time.RFC3339), err)
			return buildRate(code, rate, fetchedAt), nil
		}
	}
	return models.ExchangeRate{}, fmt.Errorf("failed to load exchange rate for %s: %w", code, err)
}

func parseFrankfurter(data []byte, code string) (float64, error) {
	var resp frankfurterResponse
	if err := sonic.Unmarshal(data, &resp); err != nil {
		return 0, fmt.Errorf("failed to parse exchange rate response: %w", err)
	}
	rate, ok := resp.Rates[code]
	if !ok {
		return 0, fmt.Errorf("currency %s not present in exchange rate response", code)
	}
	return rate, nil
}

func buildRate(code string, rate float64, fetchedAt time.Time) models.ExchangeRate {
	return models.ExchangeRate{
		Code:      code,
		Symbol:    models.CurrencySymbol(code),
		Rate:      rate,
		FetchedAt: fetchedAt,
	}
}
