package monitor

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/penwyp/tokencat/aggregate"
	"github.com/penwyp/tokencat/fileio"
)

type countingRenderer struct {
	renders int64
}

func (r *countingRenderer) Render(_ *aggregate.Report) error {
	atomic.AddInt64(&r.renders, 1)
	return nil
}

func (r *countingRenderer) count() int64 {
	return atomic.LoadInt64(&r.renders)
}

func newLoop(t *testing.T, dir string, refresh RefreshFunc, quiet time.Duration) (*Loop, *countingRenderer) {
	t.Helper()
	w, err := fileio.NewWatcher([]string{dir})
	require.NoError(t, err)

	renderer := &countingRenderer{}
	return New(w, refresh, renderer, quiet, time.Hour), renderer
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func TestLoopRefreshesOnStartup(t *testing.T) {
	var refreshes int64
	refresh := func(context.Context) (*aggregate.Report, error) {
		atomic.AddInt64(&refreshes, 1)
		return &aggregate.Report{}, nil
	}

	loop, renderer := newLoop(t, t.TempDir(), refresh, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()

	assert.True(t, waitFor(t, 2*time.Second, func() bool { return renderer.count() >= 1 }))
	cancel()
	<-done
	assert.Equal(t, atomic.LoadInt64(&refreshes), renderer.count())
}

func TestLoopDebouncesBursts(t *testing.T) {
	dir := t.TempDir()

	var refreshes int64
	refresh := func(context.Context) (*aggregate.Report, error) {
		atomic.AddInt64(&refreshes, 1)
		return &aggregate.Report{}, nil
	}

	loop, renderer := newLoop(t, dir, refresh, 150*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()

	// Wait for the startup refresh.
	require.True(t, waitFor(t, 2*time.Second, func() bool { return renderer.count() >= 1 }))

	// A burst of writes inside the quiet interval must coalesce into a
	// single additional cycle.
	path := filepath.Join(dir, "session.jsonl")
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte("line\n"), 0644))
		time.Sleep(20 * time.Millisecond)
	}

	require.True(t, waitFor(t, 2*time.Second, func() bool { return renderer.count() >= 2 }))
	// Allow any stray cycle to land before asserting.
	time.Sleep(300 * time.Millisecond)
	assert.LessOrEqual(t, renderer.count(), int64(2), "burst must coalesce into one refresh")

	cancel()
	<-done
}

func TestLoopSurvivesRefreshFailure(t *testing.T) {
	dir := t.TempDir()

	var calls int64
	refresh := func(context.Context) (*aggregate.Report, error) {
		if atomic.AddInt64(&calls, 1) == 1 {
			return nil, assert.AnError
		}
		return &aggregate.Report{}, nil
	}

	loop, renderer := newLoop(t, dir, refresh, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()

	// First cycle fails; a file change must still trigger the next one.
	require.True(t, waitFor(t, 2*time.Second, func() bool { return atomic.LoadInt64(&calls) >= 1 }))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "s.jsonl"), []byte("x\n"), 0644))

	assert.True(t, waitFor(t, 2*time.Second, func() bool { return renderer.count() >= 1 }))
	cancel()
	<-done
}

func TestNewClampsIntervals(t *testing.T) {
	// A quiet interval longer than a minute still bounds the safety net.
	loop := New(nil, nil, nil, 5*time.Minute, time.Second)
	assert.Equal(t, 5*time.Minute, loop.quiet)
	assert.GreaterOrEqual(t, loop.maxInterval, loop.quiet)

	loop = New(nil, nil, nil, 0, 0)
	assert.Equal(t, 2*time.Second, loop.quiet)
	assert.GreaterOrEqual(t, loop.maxInterval, loop.quiet)

	loop = New(nil, nil, nil, time.Second, time.Hour)
	assert.Equal(t, time.Hour, loop.maxInterval)
}
