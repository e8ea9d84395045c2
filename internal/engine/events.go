package engine

import (
	"sync"

	"github.com/seantiz/edmunds/internal/model"
)

// subscriberBufferSize is the channel buffer for each event subscriber.
// Events are dropped if a subscriber falls this far behind.
const subscriberBufferSize = 16

// Event types.
const (
	EventStarted = "started"
	EventDone    = "done"
)

// Event is a call lifecycle notification.
type Event struct {
	Type string      `json:"type"`
	Call *model.Call `json:"call"`
}

// EventBroker fans out per-call events to subscribers. It is safe for
// concurrent use.
//
// Closed topics are kept as markers so that subscribers arriving after a call
// finished receive a closed channel instead of blocking forever.
type EventBroker struct {
	mu     sync.Mutex
	topics map[string]*eventTopic
}

type eventTopic struct {
	subs   map[int]chan Event
	nextID int
	closed bool
}

// NewEventBroker creates an empty broker.
func NewEventBroker() *EventBroker {
	return &EventBroker{
		topics: make(map[string]*eventTopic),
	}
}

// Subscribe returns a channel of events for callID and an unsubscribe
// function. If the call has already finished the channel is closed.
func (b *EventBroker) Subscribe(callID string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[callID]
	if !ok {
		t = &eventTopic{subs: make(map[int]chan Event)}
		b.topics[callID] = t
	}

	ch := make(chan Event, subscriberBufferSize)
	if t.closed {
		close(ch)
		return ch, func() {}
	}

	id := t.nextID
	t.nextID++
	t.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(t.subs, id)
	}
}

// Publish sends ev to every subscriber of callID, dropping it for
// subscribers whose buffers are full.
func (b *EventBroker) Publish(callID string, ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[callID]
	if !ok || t.closed {
		return
	}

	for _, ch := range t.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Close ends the event stream for callID.
func (b *EventBroker) Close(callID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[callID]
	if !ok {
		b.topics[callID] = &eventTopic{subs: make(map[int]chan Event), closed: true}
		return
	}

	t.closed = true
	for id, ch := range t.subs {
		close(ch)
		delete(t.subs, id)
	}
}
