package pipeline

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"ecowatch/monitor/internal/domain"
	"ecowatch/monitor/internal/metrics"
)

// TargetAll subscribes to events from every sensor.
const TargetAll = "all"

// Subscription is one live subscriber: a target and a bounded event
// buffer. Owned by the Hub; reads happen through Events.
type Subscription struct {
	id      uuid.UUID
	target  string
	events  chan domain.Event
	dropped atomic.Int64
}

func (s *Subscription) ID() uuid.UUID { return s.id }

func (s *Subscription) Target() string { return s.target }

// Events is closed when the subscription is unregistered.
func (s *Subscription) Events() <-chan domain.Event { return s.events }

// Dropped counts events discarded because the buffer was full.
func (s *Subscription) Dropped() int64 { return s.dropped.Load() }

// deliver never blocks. On a full buffer the oldest buffered event is
// discarded to make room; if the buffer is somehow still full the new event
// is discarded instead. Either way the drop is counted and the
// subscription stays open.
func (s *Subscription) deliver(ev domain.Event) {
	select {
	case s.events <- ev:
		return
	default:
	}

	select {
	case <-s.events:
	default:
	}
	s.dropped.Add(1)
	metrics.SubscriberDrops.Add(1)

	select {
	case s.events <- ev:
	default:
	}
}

// Hub fans committed events out to live subscribers. Publish is
// non-blocking toward the ingestion path: slow subscribers lose events,
// they never apply backpressure. Subscribers only observe events published
// after they register.
type Hub struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]*Subscription
	buf  int
	log  *slog.Logger
}

func NewHub(bufferSize int, log *slog.Logger) *Hub {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Hub{
		subs: make(map[uuid.UUID]*Subscription),
		buf:  bufferSize,
		log:  log.With("component", "hub"),
	}
}

// Subscribe registers a subscriber for one sensor ID, or for TargetAll.
func (h *Hub) Subscribe(target string) *Subscription {
	sub := &Subscription{
		id:     uuid.New(),
		target: target,
		events: make(chan domain.Event, h.buf),
	}

	h.mu.Lock()
	h.subs[sub.id] = sub
	h.mu.Unlock()

	metrics.SubscriptionsActive.Add(1)
	h.log.Debug("subscriber registered", "subscription_id", sub.id, "target", target)
	return sub
}

// Unsubscribe removes a subscription and closes its event channel.
// Idempotent; safe to call from any goroutine, including concurrently with
// Publish.
func (h *Hub) Unsubscribe(id uuid.UUID) {
	h.mu.Lock()
	sub, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
		// No publisher can be mid-send here: sends hold the read lock.
		close(sub.events)
	}
	h.mu.Unlock()

	if ok {
		metrics.SubscriptionsActive.Add(-1)
		h.log.Debug("subscriber unregistered", "subscription_id", id, "target", sub.target)
	}
}

// Publish delivers an event to every subscription whose target matches the
// reading's sensor plus all wildcard subscriptions. Never blocks.
func (h *Hub) Publish(ev domain.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs {
		if sub.target == TargetAll || sub.target == ev.Reading.SensorID {
			sub.deliver(ev)
		}
	}
}

// SubscriberCount reports the current number of live subscriptions.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
