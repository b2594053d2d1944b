package fsstore

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/kraklabs/cortex/internal/logging"
)

// debounceWindow coalesces the burst of fsnotify events a single editor save
// typically produces (write + chmod + rename-swap) into one notification.
const debounceWindow = 250 * time.Millisecond

// ExternalEditWatcher watches the bank root for file changes made outside of
// Store.Write — e.g. a user editing a Markdown file directly in their editor
// — and reports the settled, debounced set of changed names.
type ExternalEditWatcher struct {
	bankRoot string
	watcher  *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]*time.Timer

	Changed chan string
	done    chan struct{}
}

// NewExternalEditWatcher starts watching bankRoot non-recursively. Callers
// that need subdirectories watched should call Add for each one.
func NewExternalEditWatcher(bankRoot string) (*ExternalEditWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(bankRoot); err != nil {
		w.Close()
		return nil, err
	}

	ew := &ExternalEditWatcher{
		bankRoot: bankRoot,
		watcher:  w,
		pending:  make(map[string]*time.Timer),
		Changed:  make(chan string, 64),
		done:     make(chan struct{}),
	}
	go ew.run()
	return ew, nil
}

// Add watches an additional directory (used for reviews/plans/rules).
func (ew *ExternalEditWatcher) Add(dir string) error {
	return ew.watcher.Add(dir)
}

func (ew *ExternalEditWatcher) run() {
	log := logging.Get(logging.CategoryFSStore)
	for {
		select {
		case ev, ok := <-ew.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			ew.debounce(ev.Name)
		case err, ok := <-ew.watcher.Errors:
			if !ok {
				return
			}
			log.Warn("external watcher error: %v", err)
		case <-ew.done:
			return
		}
	}
}

// debounce resets the settle timer for name; only after debounceWindow
// passes with no further events does the change get reported.
func (ew *ExternalEditWatcher) debounce(name string) {
	ew.mu.Lock()
	defer ew.mu.Unlock()

	if t, ok := ew.pending[name]; ok {
		t.Stop()
	}
	ew.pending[name] = time.AfterFunc(debounceWindow, func() {
		ew.mu.Lock()
		delete(ew.pending, name)
		ew.mu.Unlock()

		select {
		case ew.Changed <- name:
		case <-ew.done:
		}
	})
}

// Stop shuts down the watcher and releases its file descriptor.
func (ew *ExternalEditWatcher) Stop() {
	close(ew.done)
	ew.watcher.Close()

	ew.mu.Lock()
	for _, t := range ew.pending {
		t.Stop()
	}
	ew.mu.Unlock()
}
