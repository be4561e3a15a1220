// Package events fans out profile switch notifications to in-process
// listeners such as the tray menu and UI views.
package events

import (
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/ruminaider/ccswitch/internal/tools"
)

// Type names an event.
type Type string

const (
	// ProfileSwitched fires once per successful switch.
	ProfileSwitched Type = "profile_switched"
	// RegistryChanged fires when a registry file was modified outside this
	// process.
	RegistryChanged Type = "registry_changed"
)

// Event is delivered to subscribers.
type Event struct {
	Type      Type
	Tool      tools.Tool
	ProfileID string
}

// Handler receives events. Handlers run on the publishing goroutine and
// should hand slow work off to their own goroutine.
type Handler func(Event)

// Unsubscribe removes a handler. Calling it more than once is a no-op.
type Unsubscribe func()

// Hub is an in-process publish/subscribe fan-out.
type Hub struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[uint64]Handler
}

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{handlers: make(map[uint64]Handler)}
}

// Subscribe registers h and returns its unsubscribe function.
func (h *Hub) Subscribe(handler Handler) Unsubscribe {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	id := h.nextID
	h.handlers[id] = handler

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.handlers, id)
			h.mu.Unlock()
		})
	}
}

// Len returns the number of subscribed handlers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.handlers)
}

// Publish delivers e to every handler subscribed when Publish was called,
// in subscription order, each at most once. Handlers may subscribe or
// unsubscribe from inside the callback.
func (h *Hub) Publish(e Event) {
	h.mu.RLock()
	ids := make([]uint64, 0, len(h.handlers))
	for id := range h.handlers {
		ids = append(ids, id)
	}
	snapshot := make(map[uint64]Handler, len(h.handlers))
	for id, fn := range h.handlers {
		snapshot[id] = fn
	}
	h.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		deliver(snapshot[id], e)
	}
}

func deliver(fn Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Str("event", string(e.Type)).
				Str("tool", e.Tool.String()).
				Msg("event handler panicked")
		}
	}()
	fn(e)
}
