package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cidadao-ai/citizen-intake/internal/domain"
)

func msg(to, event string, n int) domain.QueueMessage {
	return domain.QueueMessage{To: to, Event: event, From: "test", Data: map[string]any{"n": n}}
}

func TestFIFOPerRecipient(t *testing.T) {
	b := New(10, nil, nil)
	ctx := context.Background()

	b.Enqueue(ctx, msg("ticket_agent", "e", 1))
	b.Enqueue(ctx, msg("other", "e", 99))
	b.Enqueue(ctx, msg("ticket_agent", "e", 2))

	peeked, ok := b.Peek("ticket_agent")
	require.True(t, ok)
	assert.Equal(t, 1, peeked.Data["n"])
	assert.Equal(t, 2, b.Size("ticket_agent"))

	first, _ := b.Dequeue("ticket_agent")
	second, _ := b.Dequeue("ticket_agent")
	assert.Equal(t, 1, first.Data["n"])
	assert.Equal(t, 2, second.Data["n"])
	assert.NotEmpty(t, first.ID)
	assert.False(t, first.Timestamp.IsZero())

	_, ok = b.Dequeue("ticket_agent")
	assert.False(t, ok)
	_, ok = b.Dequeue("nobody")
	assert.False(t, ok)
	assert.Equal(t, 1, b.Size("other"))
}

func TestSubscribersRunInOrderAndFailuresAreIsolated(t *testing.T) {
	b := New(10, nil, nil)
	var calls []string

	b.Subscribe("categorize_issue", func(context.Context, domain.QueueMessage) error {
		calls = append(calls, "first")
		return errors.New("boom")
	})
	b.Subscribe("categorize_issue", func(context.Context, domain.QueueMessage) error {
		calls = append(calls, "second")
		panic("kaboom")
	})
	b.Subscribe("categorize_issue", func(context.Context, domain.QueueMessage) error {
		calls = append(calls, "third")
		return nil
	})
	b.Subscribe("other_event", func(context.Context, domain.QueueMessage) error {
		calls = append(calls, "unrelated")
		return nil
	})

	stored := b.Enqueue(context.Background(), msg("categorization_agent", "categorize_issue", 1))

	assert.Equal(t, []string{"first", "second", "third"}, calls)
	assert.Equal(t, 1, b.Size("categorization_agent"))
	assert.NotEmpty(t, stored.ID)
}

func TestSubscriberCanDequeueItsOwnMessage(t *testing.T) {
	b := New(10, nil, nil)
	var got domain.QueueMessage
	b.Subscribe("ping", func(_ context.Context, m domain.QueueMessage) error {
		got, _ = b.Dequeue(m.To)
		return nil
	})

	b.Enqueue(context.Background(), msg("agent", "ping", 7))

	assert.Equal(t, 7, got.Data["n"])
	assert.Equal(t, 0, b.Size("agent"))
}

func TestClearAndStats(t *testing.T) {
	b := New(5, nil, nil)
	ctx := context.Background()
	b.Subscribe("e", func(context.Context, domain.QueueMessage) error { return nil })
	b.Enqueue(ctx, msg("a", "e", 1))
	b.Enqueue(ctx, msg("a", "e", 2))
	b.Enqueue(ctx, msg("b", "e", 3))

	stats := b.Stats()
	assert.Equal(t, 2, stats.TotalQueues)
	assert.Equal(t, 3, stats.TotalMessages)
	assert.Equal(t, map[string]int{"a": 2, "b": 1}, stats.QueueSizes)
	assert.Equal(t, 1, stats.Subscribers["e"])
	assert.Equal(t, []string{"a", "b"}, b.Recipients())

	b.Clear("a")
	assert.Equal(t, 0, b.Size("a"))
	assert.Equal(t, 1, b.Size("b"))

	b.ClearAll()
	assert.Equal(t, 0, b.Stats().TotalMessages)
}

func TestEnqueueCopiesPayload(t *testing.T) {
	b := New(5, nil, nil)
	data := map[string]any{"k": "v"}
	b.Enqueue(context.Background(), domain.QueueMessage{To: "a", Event: "e", Data: data})
	data["k"] = "changed"

	got, _ := b.Dequeue("a")
	assert.Equal(t, "v", got.Data["k"])
}

func TestConcurrentProducersAndConsumers(t *testing.T) {
	const producers, perProducer = 8, 200
	b := New(producers*perProducer, nil, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				b.Enqueue(ctx, msg(fmt.Sprintf("r%d", p%2), "e", i))
			}
		}(p)
	}

	var mu sync.Mutex
	consumed := 0
	for c := 0; c < 4; c++ {
		wg.Add(1)
		go func(c int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				if _, ok := b.Dequeue(fmt.Sprintf("r%d", c%2)); ok {
					mu.Lock()
					consumed++
					mu.Unlock()
				}
			}
		}(c)
	}
	wg.Wait()

	assert.Equal(t, producers*perProducer, consumed+b.Size("r0")+b.Size("r1"))
}

func TestPropertyFullQueueEvictsOldest(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		capacity := rapid.IntRange(1, 50).Draw(t, "capacity")
		extra := rapid.IntRange(1, 20).Draw(t, "extra")
		b := New(capacity, nil, nil)

		for i := 0; i < capacity+extra; i++ {
			b.Enqueue(context.Background(), msg("r", "e", i))
			want := i + 1
			if want > capacity {
				want = capacity
			}
			if got := b.Size("r"); got != want {
				t.Fatalf("size after %d inserts: got %d want %d", i+1, got, want)
			}
		}

		head, ok := b.Peek("r")
		if !ok || head.Data["n"] != extra {
			t.Fatalf("expected oldest surviving message %d, got %v", extra, head.Data["n"])
		}
	})
}
