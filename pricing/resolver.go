package pricing

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/penwyp/tokencat/cache"
	"github.com/penwyp/tokencat/logging"
	"github.com/penwyp/tokencat/models"
)

// Resolver loads price tables and exchange rates, preferring the local
// fetch cache and falling back to stale data when a refresh fails. Only
// offline mode with an empty cache is a hard failure, and only for pricing;
// a missing exchange rate degrades to USD.
type Resolver struct {
	fetchCache *cache.FetchCache
	client     *http.Client
	sources    map[string]source
	offline    bool
	now        func() time.Time
}

// NewResolver creates a resolver backed by the given fetch cache.
func NewResolver(fc *cache.FetchCache, offline bool) *Resolver {
	return &Resolver{
		fetchCache: fc,
		client:     &http.Client{Timeout: 30 * time.Second},
		sources:    defaultSources(),
		offline:    offline,
		now:        time.Now,
	}
}

// PriceTable returns the pricing catalog for the named source. Cached
// payloads fresher than the table TTL are used without a network round
// trip; a failed refresh falls back to whatever is cached.
func (r *Resolver) PriceTable(ctx context.Context, sourceName string) (*models.PriceTable, error) {
	src, ok := r.sources[sourceName]
	if !ok {
		return nil, models.NewUsageError("unknown pricing source %q (expected litellm, openrouter, or llmprices)", sourceName)
	}

	key := "pricing:" + sourceName
	cached, fetchedAt, haveCache := r.cacheGet(key)

	if haveCache && r.now().Sub(fetchedAt) < models.PriceTableTTL {
		if table, err := r.buildTable(sourceName, src, cached, fetchedAt); err == nil {
			return table, nil
		}
		// A cached payload that no longer parses is treated as absent.
		haveCache = false
	}

	if r.offline {
		if haveCache {
			logging.LogWarnf("Offline: using cached %s pricing from %s", sourceName, fetchedAt.Format(time.RFC3339))
			return r.buildTable(sourceName, src, cached, fetchedAt)
		}
		return nil, models.ErrNoPricingAvailable
	}

	data, err := r.fetch(ctx, src.url)
	if err == nil {
		now := r.now()
		if table, perr := r.buildTable(sourceName, src, data, now); perr == nil {
			r.cacheSet(key, data, now)
			return table, nil
		} else {
			err = perr
		}
	}

	if haveCache {
		logging.LogWarnf("Failed to refresh %s pricing, using cached data from %s: %v",
			sourceName, fetchedAt.Format(time.RFC3339), err)
		return r.buildTable(sourceName, src, cached, fetchedAt)
	}
	return nil, fmt.Errorf("failed to load %s pricing: %w", sourceName, err)
}

func (r *Resolver) buildTable(name string, src source, data []byte, fetchedAt time.Time) (*models.PriceTable, error) {
	table, err := src.parse(data)
	if err != nil {
		return nil, err
	}
	return &models.PriceTable{
		Source:    name,
		FetchedAt: fetchedAt,
		Models:    table,
	}, nil
}

// ExchangeRate resolves the USD conversion rate for a currency. It never
// fails: when no rate can be obtained the USD identity rate is returned so
// costs still render.
func (r *Resolver) ExchangeRate(ctx context.Context, currency string) models.ExchangeRate {
	rate, err := r.exchangeRate(ctx, currency)
	if err != nil {
		logging.LogWarnf("Falling back to USD: %v", err)
		return models.USDRate()
	}
	return rate
}

func (r *Resolver) cacheGet(key string) ([]byte, time.Time, bool) {
	if r.fetchCache == nil {
		return nil, time.Time{}, false
	}
	return r.fetchCache.Get(key)
}

func (r *Resolver) cacheSet(key string, data []byte, fetchedAt time.Time) {
	if r.fetchCache == nil {
		return
	}
	if err := r.fetchCache.Set(key, data, fetchedAt); err != nil {
		logging.LogWarnf("Failed to cache fetched payload %s: %v", key, err)
	}
}

func (r *Resolver) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", url, err)
	}
	return body, nil
}
