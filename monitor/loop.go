package monitor

import (
	"context"
	"time"

	"github.com/penwyp/tokencat/aggregate"
	"github.com/penwyp/tokencat/fileio"
	"github.com/penwyp/tokencat/logging"
)

// Renderer receives each refreshed report. Implementations must not block
// for long; the loop refreshes synchronously.
type Renderer interface {
	Render(report *aggregate.Report) error
}

// RefreshFunc produces a fresh report. The monitor calls it once per cycle.
type RefreshFunc func(ctx context.Context) (*aggregate.Report, error)

// Loop watches the provider roots and re-renders the report when the logs
// change. Filesystem events are debounced: a refresh runs only after the
// quiet interval passes with no further events, so bursts of writes
// coalesce into one cycle. A max-interval ticker forces a refresh even
// when no events arrive, covering missed notifications.
type Loop struct {
	watcher     *fileio.Watcher
	refresh     RefreshFunc
	renderer    Renderer
	quiet       time.Duration
	maxInterval time.Duration
}

// New creates a monitor loop. quiet and maxInterval below sensible floors
// are clamped.
func New(watcher *fileio.Watcher, refresh RefreshFunc, renderer Renderer, quiet, maxInterval time.Duration) *Loop {
	if quiet <= 0 {
		quiet = 2 * time.Second
	}
	if maxInterval < quiet {
		// The safety net must never fire more often than the debounce.
		maxInterval = quiet
		if maxInterval < time.Minute {
			maxInterval = time.Minute
		}
	}
	return &Loop{
		watcher:     watcher,
		refresh:     refresh,
		renderer:    renderer,
		quiet:       quiet,
		maxInterval: maxInterval,
	}
}

// Run refreshes once immediately, then keeps refreshing on debounced
// filesystem changes until ctx is canceled. Cancellation is honored
// between cycles; an in-flight refresh always completes. Per-cycle
// failures are logged and the loop keeps going.
func (l *Loop) Run(ctx context.Context) error {
	if err := l.watcher.Start(); err != nil {
		return err
	}
	defer l.watcher.Close()

	l.cycle(ctx)

	// The debounce timer is armed on the first event and re-armed on
	// each following one; it fires only after a quiet gap.
	debounce := time.NewTimer(l.quiet)
	if !debounce.Stop() {
		<-debounce.C
	}
	debounceArmed := false

	ticker := time.NewTicker(l.maxInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case _, ok := <-l.watcher.Events():
			if !ok {
				return nil
			}
			if debounceArmed && !debounce.Stop() {
				<-debounce.C
			}
			debounce.Reset(l.quiet)
			debounceArmed = true

		case err, ok := <-l.watcher.Errors():
			if !ok {
				return nil
			}
			logging.LogWarnf("Watcher error: %v", err)

		case <-debounce.C:
			debounceArmed = false
			l.cycle(ctx)
			ticker.Reset(l.maxInterval)

		case <-ticker.C:
			if debounceArmed {
				continue
			}
			l.cycle(ctx)
		}
	}
}

func (l *Loop) cycle(ctx context.Context) {
	start := time.Now()
	report, err := l.refresh(ctx)
	if err != nil {
		logging.LogErrorf("Refresh failed: %v", err)
		return
	}
	if err := l.renderer.Render(report); err != nil {
		logging.LogErrorf("Render failed: %v", err)
		return
	}
	logging.LogDebugf("Refresh cycle completed in %v", time.Since(start))
}
