package gateway

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vvoronin/routegw/internal/backend"
)

// EventType discriminates gateway notifications.
type EventType string

const (
	// EventRequest is published after every recorded request, strictly
	// after the analytics mutation is visible.
	EventRequest EventType = "request"

	// EventHealthCheck is published after every completed health sweep.
	EventHealthCheck EventType = "healthCheck"
)

// RequestEvent is the payload of a request notification.
type RequestEvent struct {
	Route   string        `json:"route"`
	Method  string        `json:"method"`
	Status  int           `json:"status"`
	Latency time.Duration `json:"latency"`
	Error   string        `json:"error,omitempty"`
}

// Event is one gateway notification. Exactly one payload field is set
// depending on Type.
type Event struct {
	ID      string                 `json:"id"`
	Type    EventType              `json:"type"`
	Time    time.Time              `json:"time"`
	Request *RequestEvent          `json:"request,omitempty"`
	Health  *backend.HealthSummary `json:"health,omitempty"`
}

// Subscriber receives gateway events. Delivery is synchronous on the
// publishing goroutine; slow subscribers delay the caller.
type Subscriber func(Event)

// subscription pairs a subscriber with its handle.
type subscription struct {
	id string
	fn Subscriber
}

// observers is an explicit subscriber list. Delivery order is
// subscription order.
type observers struct {
	mu   sync.RWMutex
	subs []subscription
}

// add registers a subscriber and returns its handle.
func (o *observers) add(fn Subscriber) string {
	id := uuid.NewString()
	o.mu.Lock()
	o.subs = append(o.subs, subscription{id: id, fn: fn})
	o.mu.Unlock()
	return id
}

// remove detaches the subscriber with the given handle.
func (o *observers) remove(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, sub := range o.subs {
		if sub.id == id {
			o.subs = append(o.subs[:i], o.subs[i+1:]...)
			return
		}
	}
}

// clear detaches every subscriber.
func (o *observers) clear() {
	o.mu.Lock()
	o.subs = nil
	o.mu.Unlock()
}

// publish delivers the event to every subscriber in subscription order.
func (o *observers) publish(event Event) {
	o.mu.RLock()
	subs := make([]subscription, len(o.subs))
	copy(subs, o.subs)
	o.mu.RUnlock()

	for _, sub := range subs {
		sub.fn(event)
	}
}

// newEvent stamps an event with a fresh ID and the current time.
func newEvent(t EventType) Event {
	return Event{
		ID:   uuid.NewString(),
		Type: t,
		Time: time.Now(),
	}
}
