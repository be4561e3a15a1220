package tray_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ruminaider/ccswitch/internal/events"
	"github.com/ruminaider/ccswitch/internal/profiles"
	"github.com/ruminaider/ccswitch/internal/tools"
	"github.com/ruminaider/ccswitch/internal/tray"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *profiles.Store {
	t.Helper()
	return profiles.NewStore(filepath.Join(t.TempDir(), "providers"))
}

func add(t *testing.T, s *profiles.Store, name string, sortIndex *int) profiles.Profile {
	t.Helper()
	p, err := s.Upsert(tools.Claude, profiles.Profile{
		Name:      name,
		SortIndex: sortIndex,
		SettingsConfig: map[string]any{
			"env": map[string]any{"ANTHROPIC_BASE_URL": "https://" + name + ".example.com"},
		},
	})
	require.NoError(t, err)
	return p
}

func TestModelFollowsSwitchEvents(t *testing.T) {
	store := newStore(t)
	b := add(t, store, "b", profiles.IntPtr(1))
	a := add(t, store, "a", profiles.IntPtr(0))

	hub := events.NewHub()
	m := tray.New(store)
	m.Attach(hub)
	require.NoError(t, m.RefreshAll())

	s := m.Section(tools.Claude)
	require.Len(t, s.Entries, 2)
	assert.Equal(t, "a", s.Entries[0].Name)
	assert.Equal(t, "https://b.example.com", s.Entries[1].Summary)
	_, ok := s.Current()
	assert.False(t, ok)

	var seen []tray.Menu
	m.OnChange(func(menu tray.Menu) { seen = append(seen, menu) })

	require.NoError(t, store.SetCurrent(tools.Claude, b.ID))
	hub.Publish(events.Event{Type: events.ProfileSwitched, Tool: tools.Claude, ProfileID: b.ID})

	cur, ok := m.Section(tools.Claude).Current()
	require.True(t, ok)
	assert.Equal(t, b.ID, cur.ID)
	require.Len(t, seen, 1)
	assert.Len(t, seen[0].Sections, 3)

	require.NoError(t, store.Remove(tools.Claude, b.ID))
	hub.Publish(events.Event{Type: events.RegistryChanged, Tool: tools.Claude})
	s = m.Section(tools.Claude)
	require.Len(t, s.Entries, 1)
	assert.Equal(t, a.ID, s.Entries[0].ID)
}

func TestModelKeepsLastGoodStateOnError(t *testing.T) {
	store := newStore(t)
	add(t, store, "a", nil)
	m := tray.New(store)
	require.NoError(t, m.RefreshAll())

	require.NoError(t, os.WriteFile(store.Path(tools.Claude), []byte("profiles: [broken"), 0600))
	err := m.Refresh(tools.Claude)
	require.Error(t, err)

	s := m.Section(tools.Claude)
	assert.Error(t, s.Err)
	assert.Len(t, s.Entries, 1)
}

type failingLister struct{}

func (failingLister) List(tools.Tool) (profiles.Registry, error) {
	return profiles.Registry{}, errors.New("boom")
}

func TestRender(t *testing.T) {
	store := newStore(t)
	a := add(t, store, "alpha", nil)
	require.NoError(t, store.SetCurrent(tools.Claude, a.ID))
	m := tray.New(store)
	require.NoError(t, m.RefreshAll())

	out := tray.Render(m.Menu())
	assert.Contains(t, out, "Claude")
	assert.Contains(t, out, "✓ alpha")
	assert.Contains(t, out, "https://alpha.example.com")
	assert.Contains(t, out, "(no profiles)")

	broken := tray.New(failingLister{})
	require.Error(t, broken.RefreshAll())
	assert.Contains(t, tray.Render(broken.Menu()), "unavailable: boom")
}
