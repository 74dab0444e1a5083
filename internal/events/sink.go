package events

import "sync"

// Event names published to the UI collaborator.
const (
	BackendStarted = "backend_started"
	UpdateProgress = "update_progress"
	LogMessage     = "log_message"
	UpdateComplete = "update_complete"
	UpdateError    = "update_error"
)

// Event is a named notification with an event-specific payload.
type Event struct {
	Name    string
	Payload any
}

// ProgressPayload accompanies every update_progress event.
type ProgressPayload struct {
	Progress int `json:"progress"`
	Total    int `json:"total"`
}

// Sink is the publish target for the shell core. The UI channel, a test
// recorder and the CLI renderer all satisfy it.
type Sink interface {
	Publish(evt Event)
}

// Bus is an in-process fan-out Sink. Subscribers receive events in publish
// order; Publish blocks on a full subscriber buffer rather than dropping,
// since emission cadence is bounded by the 500ms poll interval.
type Bus struct {
	mu   sync.Mutex
	subs []chan Event
}

func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a new listener. The returned channel stays open for
// the lifetime of the bus.
func (b *Bus) Subscribe() <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Event, 64)
	b.subs = append(b.subs, ch)
	return ch
}

func (b *Bus) Publish(evt Event) {
	b.mu.Lock()
	subs := make([]chan Event, len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	for _, ch := range subs {
		ch <- evt
	}
}
