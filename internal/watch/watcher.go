// Package watch turns changes to the registry directory into
// RegistryChanged events, so views stay current when another process edits
// profiles.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/ruminaider/ccswitch/internal/events"
	"github.com/ruminaider/ccswitch/internal/tools"
)

// DefaultDebounce collapses the burst of events one atomic rewrite
// produces.
const DefaultDebounce = 150 * time.Millisecond

// Publisher receives RegistryChanged events.
type Publisher interface {
	Publish(events.Event)
}

// RegistryWatcher watches the registry directory.
type RegistryWatcher struct {
	dir      string
	hub      Publisher
	debounce time.Duration
	watcher  *fsnotify.Watcher
	stopChan chan struct{}

	mu      sync.Mutex
	pending map[tools.Tool]*time.Timer
}

// NewRegistryWatcher creates a watcher for dir. A zero debounce means
// DefaultDebounce.
func NewRegistryWatcher(dir string, hub Publisher, debounce time.Duration) (*RegistryWatcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	return &RegistryWatcher{
		dir:      dir,
		hub:      hub,
		debounce: debounce,
		watcher:  watcher,
		stopChan: make(chan struct{}),
		pending:  map[tools.Tool]*time.Timer{},
	}, nil
}

// Start begins watching. The directory is created if missing so that the
// first registry written by another process is seen.
func (w *RegistryWatcher) Start() error {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", w.dir, err)
	}
	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}
	go w.watchForChanges()
	log.Info().Str("dir", w.dir).Msg("watching registry for changes")
	return nil
}

// Stop stops the watcher. Pending debounced events are dropped.
func (w *RegistryWatcher) Stop() {
	select {
	case <-w.stopChan:
		return
	default:
		close(w.stopChan)
	}
	w.watcher.Close()

	w.mu.Lock()
	defer w.mu.Unlock()
	for t, timer := range w.pending {
		timer.Stop()
		delete(w.pending, t)
	}
}

// Run starts the watcher and blocks until ctx is done.
func (w *RegistryWatcher) Run(ctx context.Context) error {
	if err := w.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	w.Stop()
	return nil
}

// toolForFile maps a registry file name to its tool.
func toolForFile(name string) (tools.Tool, bool) {
	base := filepath.Base(name)
	stem, ok := strings.CutSuffix(base, ".yaml")
	if !ok {
		return "", false
	}
	t, err := tools.Parse(stem)
	if err != nil || string(t) != stem {
		return "", false
	}
	return t, true
}

func (w *RegistryWatcher) watchForChanges() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			tool, ok := toolForFile(event.Name)
			if !ok {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			log.Debug().Str("event", event.Op.String()).Str("tool", tool.String()).Msg("registry file changed")
			w.schedule(tool)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("registry watcher error")

		case <-w.stopChan:
			return
		}
	}
}

func (w *RegistryWatcher) schedule(tool tools.Tool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	select {
	case <-w.stopChan:
		return
	default:
	}
	if timer, ok := w.pending[tool]; ok {
		timer.Reset(w.debounce)
		return
	}
	w.pending[tool] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, tool)
		w.mu.Unlock()
		select {
		case <-w.stopChan:
			return
		default:
		}
		w.hub.Publish(events.Event{Type: events.RegistryChanged, Tool: tool})
	})
}
