// Package bus is the inter-agent message bus: one bounded FIFO per
// recipient with drop-oldest backpressure, plus synchronous event
// subscribers.
package bus

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cidadao-ai/citizen-intake/internal/domain"
	"github.com/cidadao-ai/citizen-intake/internal/observability"
)

// DefaultCapacity bounds each recipient queue when none is configured.
const DefaultCapacity = 1000

// Subscriber is invoked after a message with its event tag is enqueued.
type Subscriber func(ctx context.Context, msg domain.QueueMessage) error

// Stats summarizes the bus.
type Stats struct {
	TotalQueues   int            `json:"total_queues"`
	TotalMessages int            `json:"total_messages"`
	Subscribers   map[string]int `json:"subscribers"`
	QueueSizes    map[string]int `json:"queue_sizes"`
	Capacity      int            `json:"capacity"`
}

type queue struct {
	mu    sync.Mutex
	items []domain.QueueMessage
}

// Bus is safe for concurrent use. Each recipient queue has its own lock.
type Bus struct {
	capacity int
	logger   *zap.Logger
	metrics  *observability.Metrics
	now      func() time.Time

	queuesMu sync.RWMutex
	queues   map[string]*queue

	subsMu      sync.RWMutex
	subscribers map[string][]Subscriber
}

// New creates a bus. capacity <= 0 means DefaultCapacity.
func New(capacity int, logger *zap.Logger, metrics *observability.Metrics) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bus{
		capacity:    capacity,
		logger:      observability.Named(logger, "bus"),
		metrics:     metrics,
		now:         time.Now,
		queues:      make(map[string]*queue),
		subscribers: make(map[string][]Subscriber),
	}
}

// Subscribe registers fn for event. Subscribers run in registration order.
func (b *Bus) Subscribe(event string, fn Subscriber) {
	b.subsMu.Lock()
	defer b.subsMu.Unlock()
	b.subscribers[event] = append(b.subscribers[event], fn)
}

func (b *Bus) queueFor(recipient string, create bool) *queue {
	b.queuesMu.RLock()
	q, ok := b.queues[recipient]
	b.queuesMu.RUnlock()
	if ok || !create {
		return q
	}

	b.queuesMu.Lock()
	defer b.queuesMu.Unlock()
	if q, ok = b.queues[recipient]; !ok {
		q = &queue{}
		b.queues[recipient] = q
	}
	return q
}

// Enqueue appends msg to its recipient queue, evicting the oldest entry when
// the queue is full, then runs the event subscribers. It never blocks on a
// full queue and never fails; subscriber errors and panics are logged.
// Missing ID and Timestamp are filled in. The stored message is returned.
func (b *Bus) Enqueue(ctx context.Context, msg domain.QueueMessage) domain.QueueMessage {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = b.now()
	}
	msg.Data = cloneData(msg.Data)

	q := b.queueFor(msg.To, true)
	q.mu.Lock()
	evicted := false
	if len(q.items) >= b.capacity {
		dropped := q.items[0]
		q.items[0] = domain.QueueMessage{}
		q.items = q.items[1:]
		evicted = true
		b.logger.Warn("queue full, dropping oldest message",
			zap.String("recipient", msg.To),
			zap.String("dropped_id", dropped.ID),
			zap.String("dropped_event", dropped.Event),
		)
	}
	q.items = append(q.items, msg)
	q.mu.Unlock()

	b.metrics.RecordEnqueue(msg.To, msg.Event, evicted)
	b.logger.Debug("message enqueued",
		zap.String("id", msg.ID),
		zap.String("event", msg.Event),
		zap.String("from", msg.From),
		zap.String("to", msg.To),
	)

	b.notify(ctx, msg)
	return msg
}

func (b *Bus) notify(ctx context.Context, msg domain.QueueMessage) {
	b.subsMu.RLock()
	subs := append([]Subscriber(nil), b.subscribers[msg.Event]...)
	b.subsMu.RUnlock()

	for i, fn := range subs {
		if err := b.invoke(ctx, fn, msg); err != nil {
			b.metrics.RecordSubscriberFailure(msg.Event)
			b.logger.Error("subscriber failed",
				zap.String("event", msg.Event),
				zap.String("message_id", msg.ID),
				zap.Int("subscriber", i),
				zap.Error(err),
			)
		}
	}
}

func (b *Bus) invoke(ctx context.Context, fn Subscriber, msg domain.QueueMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("subscriber panic: %v", r)
		}
	}()
	return fn(ctx, msg)
}

// Dequeue pops the oldest message for recipient. ok is false when empty.
func (b *Bus) Dequeue(recipient string) (domain.QueueMessage, bool) {
	q := b.queueFor(recipient, false)
	if q == nil {
		return domain.QueueMessage{}, false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return domain.QueueMessage{}, false
	}
	msg := q.items[0]
	q.items[0] = domain.QueueMessage{}
	q.items = q.items[1:]
	return msg, true
}

// Peek returns the oldest message for recipient without removing it.
func (b *Bus) Peek(recipient string) (domain.QueueMessage, bool) {
	q := b.queueFor(recipient, false)
	if q == nil {
		return domain.QueueMessage{}, false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return domain.QueueMessage{}, false
	}
	return q.items[0], true
}

// Size is the number of pending messages for recipient.
func (b *Bus) Size(recipient string) int {
	q := b.queueFor(recipient, false)
	if q == nil {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Sizes reports every known recipient queue.
func (b *Bus) Sizes() map[string]int {
	b.queuesMu.RLock()
	names := make([]string, 0, len(b.queues))
	for name := range b.queues {
		names = append(names, name)
	}
	b.queuesMu.RUnlock()

	out := make(map[string]int, len(names))
	for _, name := range names {
		out[name] = b.Size(name)
	}
	return out
}

// Clear empties the queue of one recipient.
func (b *Bus) Clear(recipient string) {
	q := b.queueFor(recipient, false)
	if q == nil {
		return
	}
	q.mu.Lock()
	q.items = nil
	q.mu.Unlock()
	b.logger.Info("queue cleared", zap.String("recipient", recipient))
}

// ClearAll empties every queue.
func (b *Bus) ClearAll() {
	b.queuesMu.RLock()
	queues := make([]*queue, 0, len(b.queues))
	for _, q := range b.queues {
		queues = append(queues, q)
	}
	b.queuesMu.RUnlock()

	for _, q := range queues {
		q.mu.Lock()
		q.items = nil
		q.mu.Unlock()
	}
	b.logger.Info("all queues cleared")
}

// Stats returns queue sizes and subscriber counts per event.
func (b *Bus) Stats() Stats {
	sizes := b.Sizes()
	total := 0
	for _, n := range sizes {
		total += n
	}

	b.subsMu.RLock()
	subs := make(map[string]int, len(b.subscribers))
	for event, fns := range b.subscribers {
		subs[event] = len(fns)
	}
	b.subsMu.RUnlock()

	return Stats{
		TotalQueues:   len(sizes),
		TotalMessages: total,
		Subscribers:   subs,
		QueueSizes:    sizes,
		Capacity:      b.capacity,
	}
}

// Recipients lists known recipients in lexical order.
func (b *Bus) Recipients() []string {
	b.queuesMu.RLock()
	defer b.queuesMu.RUnlock()
	out := make([]string, 0, len(b.queues))
	for name := range b.queues {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func cloneData(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
