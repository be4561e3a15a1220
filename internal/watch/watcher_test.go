package watch_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ruminaider/ccswitch/internal/events"
	"github.com/ruminaider/ccswitch/internal/profiles"
	"github.com/ruminaider/ccswitch/internal/tools"
	"github.com/ruminaider/ccswitch/internal/watch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) snapshot() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

func TestRegistryWatcherPublishesChanges(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "providers")
	rec := &recorder{}
	w, err := watch.NewRegistryWatcher(dir, rec, 20*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	store := profiles.NewStore(dir)
	_, err = store.Upsert(tools.Gemini, profiles.Profile{Name: "g", SettingsConfig: map[string]any{}})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(rec.snapshot()) > 0 }, 3*time.Second, 10*time.Millisecond)
	for _, e := range rec.snapshot() {
		assert.Equal(t, events.RegistryChanged, e.Type)
		assert.Equal(t, tools.Gemini, e.Tool)
	}
}

func TestRegistryWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	w, err := watch.NewRegistryWatcher(dir, rec, 10*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "vim.yaml"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Claude.yaml"), []byte("x"), 0644))

	time.Sleep(200 * time.Millisecond)
	assert.Empty(t, rec.snapshot())
}

func TestRegistryWatcherStopIsIdempotent(t *testing.T) {
	w, err := watch.NewRegistryWatcher(t.TempDir(), &recorder{}, 0)
	require.NoError(t, err)
	require.NoError(t, w.Start())
	w.Stop()
	w.Stop()
}
