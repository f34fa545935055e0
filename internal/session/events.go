package session

import (
	"sync"

	"github.com/spatiallens/lens/internal/inspect"
)

// EventType identifies a session state transition.
type EventType string

const (
	EventLayerAdded        EventType = "layer-added"
	EventLayerRemoved      EventType = "layer-removed"
	EventVisibilityChanged EventType = "visibility-changed"
	EventStyleResolved     EventType = "style-resolved"
	EventBBoxResolved      EventType = "bbox-resolved"
	EventFeatureClicked    EventType = "feature-clicked"
	EventPopupClosed       EventType = "popup-closed"
	EventViewportFit       EventType = "viewport-fit"
	EventBoundaryToggled   EventType = "boundary-toggled"
)

// Event represents a session state change.
type Event struct {
	Type  EventType
	Slug  string              // empty for session-wide events
	Popup *inspect.PopupInfo  // EventFeatureClicked only
}

// Bus is a simple fan-out pub/sub for session events.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[chan Event]struct{})}
}

// Publish sends an event to all subscribers (non-blocking).
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			// subscriber too slow, skip
		}
	}
}

// Subscribe returns a buffered channel that receives events.
func (b *Bus) Subscribe() chan Event {
	ch := make(chan Event, 16)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	delete(b.subs, ch)
	b.mu.Unlock()
	close(ch)
}
