// Package telemetry carries relay lifecycle events to diagnostic subscribers
// and wraps the OpenTelemetry tracer used by the relay and cloud chunker.
package telemetry

import (
	"sync"
	"time"
)

// EventType identifies the kind of telemetry event.
type EventType string

const (
	EventPortConnected    EventType = "port.connected"
	EventPortDisconnected EventType = "port.disconnected"
	EventTabRemoved       EventType = "tab.removed"
	EventTabNavigation    EventType = "tab.navigation"
	EventTabUpdated       EventType = "tab.updated"
	EventPopupCreated     EventType = "tab.popup_created"
	EventRequestUnhandled EventType = "relay.unhandled"
	EventConnectionBroken EventType = "relay.connection_broken"
	EventBroadcast        EventType = "relay.broadcast"
	EventCloudPushed      EventType = "cloud.pushed"
	EventCloudPulled      EventType = "cloud.pulled"
	EventStorageChanged   EventType = "storage.changed"
	EventContextMenu      EventType = "menu.clicked"
)

// Event describes relay telemetry that IPC clients can consume.
type Event struct {
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Port      string         `json:"port,omitempty"`
	TabID     int            `json:"tabId,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Publisher is the narrow interface components publish through.
type Publisher interface {
	Publish(event Event)
}

// Hub fan-outs telemetry events to any number of subscribers.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
	closed      bool
}

// NewHub constructs a telemetry hub.
func NewHub() *Hub {
	return &Hub{subscribers: make(map[chan Event]struct{})}
}

// Publish notifies all subscribers of an event. Non-blocking; drops if buffer full.
func (h *Hub) Publish(event Event) {
	if h == nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	for ch := range h.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribe returns a channel that will receive future events and a cleanup func.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		empty := make(chan Event)
		close(empty)
		return empty, func() {}
	}
	ch := make(chan Event, 64)
	h.subscribers[ch] = struct{}{}
	unsubscribe := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subscribers[ch]; ok {
			delete(h.subscribers, ch)
			close(ch)
		}
	}
	return ch, unsubscribe
}

// Subscribers returns the current subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Close unsubscribes all listeners and prevents future publications.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subscribers {
		close(ch)
		delete(h.subscribers, ch)
	}
}
