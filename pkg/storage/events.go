package storage

import "time"

// EventType represents the type of storage event emitted.
type EventType string

const (
	EventCacheSet     EventType = "cache.set"
	EventCacheRemoved EventType = "cache.removed"
	EventCacheCleared EventType = "cache.cleared"
	EventSettingSet   EventType = "setting.set"
)

// Event describes a committed change in the storage layer.
type Event struct {
	Type      EventType `json:"type"`
	Keys      []string  `json:"keys,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Observer reacts to storage events.
type Observer interface {
	HandleStorageEvent(Event)
}

// ObserverFunc is a helper to turn a function into an Observer.
type ObserverFunc func(Event)

// HandleStorageEvent implements the Observer interface.
func (f ObserverFunc) HandleStorageEvent(e Event) {
	f(e)
}

func newEvent(eventType EventType, keys []string) Event {
	return Event{
		Type:      eventType,
		Keys:      keys,
		Timestamp: time.Now(),
	}
}
