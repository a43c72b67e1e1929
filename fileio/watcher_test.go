package fileio

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitForEvent(t *testing.T, w *Watcher, want string) bool {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case path, ok := <-w.Events():
			if !ok {
				return false
			}
			if path == want {
				return true
			}
		case <-deadline:
			return false
		}
	}
}

func TestWatcherDeliversWriteEvents(t *testing.T) {
	dir := t.TempDir()

	w, err := NewWatcher([]string{dir})
	require.NoError(t, err)
	defer w.Close()
	require.NoError(t, w.Start())

	path := filepath.Join(dir, "session.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("line\n"), 0644))

	assert.True(t, waitForEvent(t, w, path))
}

func TestWatcherFollowsNewDirectories(t *testing.T) {
	dir := t.TempDir()

	w, err := NewWatcher([]string{dir})
	require.NoError(t, err)
	defer w.Close()
	require.NoError(t, w.Start())

	sub := filepath.Join(dir, "new-project")
	require.NoError(t, os.Mkdir(sub, 0755))

	// Give the watcher a moment to register the new directory.
	time.Sleep(200 * time.Millisecond)

	path := filepath.Join(sub, "session.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("line\n"), 0644))

	assert.True(t, waitForEvent(t, w, path))
}

func TestWatcherSkipsMissingRoots(t *testing.T) {
	w, err := NewWatcher([]string{filepath.Join(t.TempDir(), "absent")})
	require.NoError(t, err)
	require.NoError(t, w.Start())
	require.NoError(t, w.Close())
}

func TestWatcherStartTwiceFails(t *testing.T) {
	w, err := NewWatcher([]string{t.TempDir()})
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Start())
	assert.Error(t, w.Start())
}
