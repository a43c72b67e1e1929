package fileio

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/penwyp/tokencat/logging"
)

// Watcher monitors the provider root directories for changes. fsnotify
// watches are not recursive, so every subdirectory is registered at start
// and newly created directories are registered as they appear.
type Watcher struct {
	watcher *fsnotify.Watcher
	events  chan string
	errors  chan error
	stopCh  chan struct{}

	mu      sync.Mutex
	running bool
}

// NewWatcher creates a watcher over the given root directories. Roots that
// do not exist are skipped.
func NewWatcher(roots []string) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		watcher: fsWatcher,
		events:  make(chan string, 256),
		errors:  make(chan error, 16),
		stopCh:  make(chan struct{}),
	}

	for _, root := range roots {
		if err := w.addRecursive(root); err != nil {
			fsWatcher.Close()
			return nil, err
		}
	}
	return w, nil
}

// addRecursive registers dir and every subdirectory below it.
func (w *Watcher) addRecursive(dir string) error {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil
	}
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logging.LogWarnf("Failed to walk %s for watching: %v", path, err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("failed to watch directory %s: %w", path, err)
		}
		return nil
	})
}

// Start begins delivering events. It may be called once.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watcher is already running")
	}
	w.running = true

	go w.processEvents()
	return nil
}

// Events delivers the path of each changed file.
func (w *Watcher) Events() <-chan string {
	return w.events
}

// Errors delivers watch failures. The monitor logs them and keeps running.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Close stops the watcher. Events and Errors are closed afterwards.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return w.watcher.Close()
	}
	w.running = false

	close(w.stopCh)
	return w.watcher.Close()
}

func (w *Watcher) processEvents() {
	defer close(w.events)
	defer close(w.errors)

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			case <-w.stopCh:
				return
			default:
			}

		case <-w.stopCh:
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	// New directories must be registered or changes below them are missed.
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(event.Name); err != nil {
				logging.LogWarnf("Failed to watch new directory %s: %v", event.Name, err)
			}
			return
		}
	}

	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	select {
	case w.events <- event.Name:
	case <-w.stopCh:
	default:
		// Drop when the buffer is full; the monitor refreshes on a
		// quiet interval, so a missed event coalesces with the next.
	}
}
