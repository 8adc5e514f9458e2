package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"steward/pkg/logging"
)

// Watcher reloads the catalog into a Holder whenever a YAML file of the
// catalog directory changes. A reload that fails validation keeps the
// previous catalog active.
type Watcher struct {
	mu sync.Mutex

	dir    string
	holder *Holder

	// debounceInterval is how long to wait for additional changes
	debounceInterval time.Duration
	timer            *time.Timer

	// onReload is invoked after each successful reload
	onReload func(*Catalog)
}

// NewWatcher creates a watcher for dir.
func NewWatcher(dir string, holder *Holder, debounceInterval time.Duration) *Watcher {
	if debounceInterval == 0 {
		debounceInterval = 500 * time.Millisecond
	}
	return &Watcher{dir: dir, holder: holder, debounceInterval: debounceInterval}
}

// OnReload registers a callback run after every successful reload.
func (w *Watcher) OnReload(fn func(*Catalog)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onReload = fn
}

// Run watches until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return err
	}
	logging.Info(catalogSubsystem, "Watching %s for catalog changes", w.dir)

	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			if w.timer != nil {
				w.timer.Stop()
			}
			w.mu.Unlock()
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !isYAMLFile(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.schedule()

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logging.Error(catalogSubsystem, err, "Catalog watcher error")
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounceInterval, w.reload)
}

func (w *Watcher) reload() {
	c, err := LoadDir(w.dir)
	if err != nil {
		logging.Error(catalogSubsystem, err, "Catalog reload failed, keeping previous catalog")
		return
	}
	w.holder.Replace(c)

	w.mu.Lock()
	fn := w.onReload
	w.mu.Unlock()
	if fn != nil {
		fn(c)
	}
}
