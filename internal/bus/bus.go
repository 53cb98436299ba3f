package bus

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/lodestar-ai/lodestar/internal/logging"
)

// EventType represents the type of event.
type EventType string

const (
	SessionCreated EventType = "session.created"
	SessionUpdated EventType = "session.updated"
	SessionDeleted EventType = "session.deleted"
	SessionIdle    EventType = "session.idle"
	SessionError   EventType = "session.error"
	SessionUndone  EventType = "session.undone"

	MessageCreated   EventType = "message.created"
	MessageUpdated   EventType = "message.updated"
	MessageCompleted EventType = "message.completed"
	MessageRemoved   EventType = "message.removed"
	PartUpdated      EventType = "message.part.updated"
	PartRemoved      EventType = "message.part.removed"

	PermissionUpdated EventType = "permission.updated"
	PermissionReplied EventType = "permission.replied"

	FileEdited      EventType = "file.edited"
	TodoUpdated     EventType = "todo.updated"
	BranchUpdated   EventType = "vcs.branch.updated"
	SnapshotCreated EventType = "snapshot.created"
)

// Event represents an event to be published.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

// Subscriber is a function that receives events.
type Subscriber func(event Event)

// subscriberQueueSize buffers bursts so publishers rarely block. A full
// queue blocks the publisher rather than dropping or reordering events.
const subscriberQueueSize = 64

// envelope carries an event through a subscriber queue. ack is non-nil for
// PublishSync deliveries and receives one value after the handler ran.
type envelope struct {
	event Event
	ack   chan<- struct{}
}

// subscriberEntry owns one subscriber's delivery queue. A single goroutine
// drains the queue, so each subscriber observes events in publish order
// while a slow handler only stalls its own queue.
type subscriberEntry struct {
	id uint64
	fn Subscriber

	mu     sync.Mutex // serializes sends and guards closed
	closed bool
	queue  chan envelope
}

func newSubscriberEntry(id uint64, fn Subscriber) *subscriberEntry {
	e := &subscriberEntry{
		id:    id,
		fn:    fn,
		queue: make(chan envelope, subscriberQueueSize),
	}
	go e.drain()
	return e
}

func (e *subscriberEntry) drain() {
	for env := range e.queue {
		dispatch(e.fn, env.event)
		if env.ack != nil {
			env.ack <- struct{}{}
		}
	}
}

// send enqueues an event, reporting whether it was accepted. Sends after
// stop are dropped.
func (e *subscriberEntry) send(env envelope) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	e.queue <- env
	return true
}

// stop ends delivery; the drain goroutine exits once the queue empties.
func (e *subscriberEntry) stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	close(e.queue)
}

// Bus manages pub/sub over a watermill gochannel. Typed subscribers are
// delivered through per-subscriber ordered queues so payloads keep their Go
// types and each subscriber sees events in publish order; every event is
// also mirrored onto the watermill topic named after its type for consumers
// that want a raw message stream.
type Bus struct {
	mu sync.RWMutex

	pubsub *gochannel.GoChannel

	subscribers map[EventType][]*subscriberEntry
	global      []*subscriberEntry

	nextID       uint64
	closed       bool
	closedCtx    context.Context
	closedCancel context.CancelFunc
}

// New creates a new event bus.
func New() *Bus {
	ctx, cancel := context.WithCancel(context.Background())
	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{
				OutputChannelBuffer: 100,
				Persistent:          false,
			},
			watermill.NopLogger{},
		),
		subscribers:  make(map[EventType][]*subscriberEntry),
		closedCtx:    ctx,
		closedCancel: cancel,
	}
}

func (b *Bus) newID() uint64 {
	return atomic.AddUint64(&b.nextID, 1)
}

// Subscribe registers a subscriber for a specific event type.
// Returns an unsubscribe function.
func (b *Bus) Subscribe(eventType EventType, fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	id := b.newID()
	b.subscribers[eventType] = append(b.subscribers[eventType], newSubscriberEntry(id, fn))

	return func() {
		b.unsubscribe(eventType, id)
	}
}

// SubscribeAll registers a subscriber for all events.
// Returns an unsubscribe function.
func (b *Bus) SubscribeAll(fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	id := b.newID()
	b.global = append(b.global, newSubscriberEntry(id, fn))

	return func() {
		b.unsubscribeGlobal(id)
	}
}

// Raw returns the watermill message stream for one event type. Payloads are
// the JSON encoding of the Event. The subscription ends when ctx is done.
func (b *Bus) Raw(ctx context.Context, eventType EventType) (<-chan *message.Message, error) {
	return b.pubsub.Subscribe(ctx, string(eventType))
}

func (b *Bus) unsubscribe(eventType EventType, id uint64) {
	b.mu.Lock()
	var stopped *subscriberEntry
	subs := b.subscribers[eventType]
	for i, entry := range subs {
		if entry.id == id {
			stopped = entry
			b.subscribers[eventType] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	b.mu.Unlock()

	if stopped != nil {
		stopped.stop()
	}
}

func (b *Bus) unsubscribeGlobal(id uint64) {
	b.mu.Lock()
	var stopped *subscriberEntry
	for i, entry := range b.global {
		if entry.id == id {
			stopped = entry
			b.global = append(b.global[:i], b.global[i+1:]...)
			break
		}
	}
	b.mu.Unlock()

	if stopped != nil {
		stopped.stop()
	}
}

// collect gathers the subscriber entries for an event under the read lock.
func (b *Bus) collect(eventType EventType) []*subscriberEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil
	}

	subs := make([]*subscriberEntry, 0, len(b.subscribers[eventType])+len(b.global))
	subs = append(subs, b.subscribers[eventType]...)
	subs = append(subs, b.global...)
	return subs
}

// Publish enqueues an event on every subscriber's queue and returns without
// waiting for handlers. Each subscriber observes events in publish order; a
// slow handler backs up only its own queue.
func (b *Bus) Publish(event Event) {
	for _, sub := range b.collect(event.Type) {
		sub.send(envelope{event: event})
	}
	b.mirror(event)
}

// PublishSync enqueues an event like Publish but returns only after every
// subscriber's handler has run.
func (b *Bus) PublishSync(event Event) {
	subs := b.collect(event.Type)
	ack := make(chan struct{}, len(subs))
	sent := 0
	for _, sub := range subs {
		if sub.send(envelope{event: event, ack: ack}) {
			sent++
		}
	}
	for i := 0; i < sent; i++ {
		<-ack
	}
	b.mirror(event)
}

// dispatch invokes one subscriber, containing panics. A throwing handler is
// logged and dropped for that event; it never propagates to the publisher.
func dispatch(fn Subscriber, event Event) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error().
				Interface("panic", r).
				Str("event", string(event.Type)).
				Msg("event subscriber panicked")
		}
	}()
	fn(event)
}

// mirror publishes the JSON form of the event onto the watermill topic.
func (b *Bus) mirror(event Event) {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		logging.Warn().Err(err).Str("event", string(event.Type)).Msg("event payload not serializable")
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := b.pubsub.Publish(string(event.Type), msg); err != nil {
		logging.Warn().Err(err).Str("event", string(event.Type)).Msg("watermill publish failed")
	}
}

// Close shuts down the bus and drops all subscribers.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.closedCancel()

	var entries []*subscriberEntry
	for _, subs := range b.subscribers {
		entries = append(entries, subs...)
	}
	entries = append(entries, b.global...)
	b.subscribers = make(map[EventType][]*subscriberEntry)
	b.global = nil
	b.mu.Unlock()

	for _, entry := range entries {
		entry.stop()
	}
	return b.pubsub.Close()
}
