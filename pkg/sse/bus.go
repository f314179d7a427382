// Package sse implements the in-process event fan-out that bridges the
// event store to live dashboard subscribers: a Tailer polls committed
// events and publishes them to a Bus, which holds one bounded queue per
// subscriber.
package sse

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gbrigandi/soctalk/pkg/models"
)

// DefaultQueueCapacity is the default size of a subscriber's bounded queue.
const DefaultQueueCapacity = 100

// Heartbeat is how often a subscriber without traffic receives a ping.
const Heartbeat = 30 * time.Second

// BroadcastEvent is what a subscription yields for one committed event.
type BroadcastEvent struct {
	ID        uuid.UUID
	EventType models.EventType
	Data      map[string]any
	Timestamp time.Time
}

// Bus fans out BroadcastEvents to subscribers through per-subscriber
// bounded channels. Each channel is owned by exactly one producer (the
// bus, via Publish) and one consumer (the subscriber's SSE write loop).
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]chan BroadcastEvent
	capacity    int
}

// NewBus returns a Bus whose subscriber queues hold capacity events before
// dropping. capacity <= 0 uses DefaultQueueCapacity.
func NewBus(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &Bus{subscribers: make(map[string]chan BroadcastEvent), capacity: capacity}
}

// Subscribe registers a new subscriber and returns its id, its event
// channel, and an Unsubscribe func the caller must call exactly once when
// done (e.g. on SSE client disconnect).
func (b *Bus) Subscribe() (id string, events <-chan BroadcastEvent, unsubscribe func()) {
	id = uuid.NewString()
	ch := make(chan BroadcastEvent, b.capacity)

	b.mu.Lock()
	b.subscribers[id] = ch
	b.mu.Unlock()

	return id, ch, func() { b.unsubscribe(id) }
}

func (b *Bus) unsubscribe(id string) {
	b.mu.Lock()
	ch, ok := b.subscribers[id]
	if ok {
		delete(b.subscribers, id)
	}
	b.mu.Unlock()
	if ok {
		close(ch)
	}
}

// Publish fans ev out to every current subscriber. Publish never blocks: a
// subscriber whose queue is full drops the event and gets a warning log
// rather than stalling every other subscriber.
func (b *Bus) Publish(ev BroadcastEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
			slog.Warn("sse: subscriber queue full, dropping event", "subscriber_id", id, "event_id", ev.ID)
		}
	}
}

// SubscriberCount reports how many subscribers are currently registered.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
