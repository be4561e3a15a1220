// Package tray keeps a per-tool menu of profiles in sync with the registry.
// The model only reads: it rebuilds itself after ProfileSwitched and
// RegistryChanged events and never writes the store.
package tray

import (
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/ruminaider/ccswitch/internal/events"
	"github.com/ruminaider/ccswitch/internal/profiles"
	"github.com/ruminaider/ccswitch/internal/tools"
)

// Lister reads profile registries.
type Lister interface {
	List(tool tools.Tool) (profiles.Registry, error)
}

// Entry is one profile in the menu.
type Entry struct {
	ID      string
	Name    string
	Summary string
	Checked bool
}

// Section is the menu for one tool.
type Section struct {
	Tool    tools.Tool
	Entries []Entry
	// Err is set when the registry could not be read; Entries then holds
	// the last good state.
	Err error
}

// Current returns the checked entry, if any.
func (s Section) Current() (Entry, bool) {
	for _, e := range s.Entries {
		if e.Checked {
			return e, true
		}
	}
	return Entry{}, false
}

// Menu is the whole tray menu in tool order.
type Menu struct {
	Sections []Section
}

// Model holds the latest menu.
type Model struct {
	store Lister

	mu       sync.RWMutex
	sections map[tools.Tool]Section
	onChange []func(Menu)
}

// New returns a Model. Call RefreshAll to populate it.
func New(store Lister) *Model {
	m := &Model{store: store, sections: map[tools.Tool]Section{}}
	for _, t := range tools.All() {
		m.sections[t] = Section{Tool: t}
	}
	return m
}

// OnChange registers fn to run with the new menu after each rebuild.
func (m *Model) OnChange(fn func(Menu)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = append(m.onChange, fn)
}

// Attach subscribes the model to hub.
func (m *Model) Attach(hub *events.Hub) events.Unsubscribe {
	return hub.Subscribe(m.Handle)
}

// Handle rebuilds the section of the event's tool.
func (m *Model) Handle(e events.Event) {
	switch e.Type {
	case events.ProfileSwitched, events.RegistryChanged:
		if err := m.Refresh(e.Tool); err != nil {
			log.Warn().Err(err).Str("tool", e.Tool.String()).Msg("tray menu refresh failed")
		}
	}
}

// RefreshAll rebuilds every section. It returns the first error but still
// refreshes the remaining tools.
func (m *Model) RefreshAll() error {
	var first error
	for _, t := range tools.All() {
		if err := m.rebuild(t); err != nil && first == nil {
			first = err
		}
	}
	m.notify()
	return first
}

// Refresh rebuilds the section for tool.
func (m *Model) Refresh(tool tools.Tool) error {
	err := m.rebuild(tool)
	m.notify()
	return err
}

func (m *Model) rebuild(tool tools.Tool) error {
	reg, err := m.store.List(tool)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		s := m.sections[tool]
		s.Tool = tool
		s.Err = err
		m.sections[tool] = s
		return err
	}

	sorted := reg.Sorted()
	entries := make([]Entry, 0, len(sorted))
	for _, p := range sorted {
		entries = append(entries, Entry{
			ID:      p.ID,
			Name:    p.Name,
			Summary: profiles.Summary(p),
			Checked: p.ID == reg.CurrentProfileID,
		})
	}
	m.sections[tool] = Section{Tool: tool, Entries: entries}
	return nil
}

func (m *Model) notify() {
	menu := m.Menu()
	m.mu.RLock()
	fns := append([]func(Menu){}, m.onChange...)
	m.mu.RUnlock()
	for _, fn := range fns {
		fn(menu)
	}
}

// Menu returns a copy of the current menu.
func (m *Model) Menu() Menu {
	m.mu.RLock()
	defer m.mu.RUnlock()
	menu := Menu{Sections: make([]Section, 0, len(m.sections))}
	for _, t := range tools.All() {
		s := m.sections[t]
		s.Entries = append([]Entry(nil), s.Entries...)
		menu.Sections = append(menu.Sections, s)
	}
	return menu
}

// Section returns the current menu section for tool.
func (m *Model) Section(tool tools.Tool) Section {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.sections[tool]
	s.Entries = append([]Entry(nil), s.Entries...)
	return s
}
