package internal

import (
	"context"
	"sync"
	"time"

	"github.com/penwyp/tokencat/aggregate"
	"github.com/penwyp/tokencat/cache"
	"github.com/penwyp/tokencat/config"
	"github.com/penwyp/tokencat/fileio"
	"github.com/penwyp/tokencat/models"
	"github.com/penwyp/tokencat/monitor"
	"github.com/penwyp/tokencat/pricing"
	"github.com/penwyp/tokencat/providers"
)

// App wires the scanner, cache, pricing resolver, and aggregation engine
// into the pipeline the commands run: scan, normalize, dedup, price,
// aggregate.
type App struct {
	cfg       *config.Config
	store     cache.Store
	fetch     *cache.FetchCache
	scanner   *fileio.Scanner
	providers []providers.Provider
	resolver  *pricing.Resolver

	mu    sync.Mutex
	table *models.PriceTable
}

// ReportOptions selects what one Report call produces.
type ReportOptions struct {
	GroupBy   aggregate.GroupBy
	Filter    aggregate.ReportFilter
	Breakdown bool
}

// NewApp opens the cache backends and builds the pipeline from config.
func NewApp(cfg *config.Config) (*App, error) {
	store, err := cache.Open(cfg.Cache)
	if err != nil {
		return nil, err
	}

	fetch, err := cache.OpenFetchCache(cfg.Cache.Dir)
	if err != nil {
		store.Close()
		return nil, err
	}

	provs := providers.All(cfg.Data.ExtraRoots)
	return &App{
		cfg:       cfg,
		store:     store,
		fetch:     fetch,
		scanner:   fileio.NewScanner(store, cfg),
		providers: provs,
		resolver:  pricing.NewResolver(fetch, cfg.Data.Offline),
	}, nil
}

// Close flushes and releases both cache backends.
func (a *App) Close() error {
	err := a.store.Close()
	if ferr := a.fetch.Close(); err == nil {
		err = ferr
	}
	return err
}

// records scans the provider roots and returns the deduplicated record set.
func (a *App) records(ctx context.Context) ([]models.UsageRecord, error) {
	if _, err := a.scanner.Scan(ctx, a.providers); err != nil {
		return nil, err
	}
	all, err := a.store.Records()
	if err != nil {
		return nil, err
	}
	return providers.Dedup(all), nil
}

// priceTable resolves the configured pricing source, reusing the previous
// table while it is fresh so watch cycles do not reparse the catalog.
func (a *App) priceTable(ctx context.Context) (*models.PriceTable, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.table != nil && a.table.Fresh(time.Now()) {
		return a.table, nil
	}
	table, err := a.resolver.PriceTable(ctx, a.cfg.Data.PricingSource)
	if err != nil {
		return nil, err
	}
	a.table = table
	return table, nil
}

// Report runs the full pipeline and aggregates into a report.
func (a *App) Report(ctx context.Context, opts ReportOptions) (*aggregate.Report, error) {
	if err := opts.Filter.Validate(); err != nil {
		return nil, err
	}

	records, err := a.records(ctx)
	if err != nil {
		return nil, err
	}
	table, err := a.priceTable(ctx)
	if err != nil {
		return nil, err
	}
	rate := a.resolver.ExchangeRate(ctx, a.cfg.Data.Currency)

	return aggregate.Build(records, aggregate.Options{
		GroupBy:   opts.GroupBy,
		Filter:    opts.Filter,
		Breakdown: opts.Breakdown,
		Pricing:   table,
		Rate:      rate,
		Location:  a.cfg.Location(),
	})
}

// Histogram runs the pipeline and buckets tokens over a time window.
func (a *App) Histogram(ctx context.Context, period aggregate.HistogramPeriod, relative bool) (*aggregate.Histogram, error) {
	records, err := a.records(ctx)
	if err != nil {
		return nil, err
	}
	return aggregate.BuildHistogram(records, period, relative, time.Now(), a.cfg.Location())
}

// RefreshFunc adapts Report for the monitor loop under fixed options.
func (a *App) RefreshFunc(opts ReportOptions) monitor.RefreshFunc {
	return func(ctx context.Context) (*aggregate.Report, error) {
		return a.Report(ctx, opts)
	}
}

// WatchRoots returns the existing provider directories to watch.
func (a *App) WatchRoots() []string {
	return providers.WatchRoots(a.providers)
}
