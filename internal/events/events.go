package events

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	EventItemAdded       = "queue_item_added"
	EventItemRemoved     = "queue_item_removed"
	EventItemUpdated     = "queue_item_updated"
	EventProcessingStart = "processing_started"
	EventProcessingStop  = "processing_stopped"
	EventProcessingError = "processing_error"
)

// ItemEventPayload describes the minimal queue-item snapshot for event
// consumers.
type ItemEventPayload struct {
	ID            string `json:"id"`
	TvAppID       string `json:"tvAppId"`
	StartSlot     string `json:"startSlot,omitempty"`
	Status        string `json:"status,omitempty"`
	StatusMessage string `json:"status_message,omitempty"`
}

// ProcessingEventPayload carries loop lifecycle details.
type ProcessingEventPayload struct {
	IntervalMin time.Duration `json:"interval_min,omitempty"`
	IntervalMax time.Duration `json:"interval_max,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously and are never awaited on; the
		// emitter ignores their errors.
		_ = handler(event)
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}
