// Package agents runs the specialised workers that talk over the message
// bus: categorization, ticket issuing and the citizen assistant.
package agents

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cidadao-ai/citizen-intake/internal/bus"
	"github.com/cidadao-ai/citizen-intake/internal/domain"
	"github.com/cidadao-ai/citizen-intake/internal/observability"
)

// Handler processes one message. A non-nil reply is enqueued on the bus.
type Handler func(ctx context.Context, msg domain.QueueMessage) (*domain.QueueMessage, error)

// ErrUnhandledEvent is recorded when an agent receives an event it has no handler for.
var ErrUnhandledEvent = errors.New("unhandled event")

// Metrics are the running counters of an agent.
type Metrics struct {
	MessagesProcessed   int        `json:"messages_processed"`
	SuccessfulResponses int        `json:"successful_responses"`
	FailedResponses     int        `json:"failed_responses"`
	AverageResponseTime float64    `json:"average_response_time"`
	LastActivity        *time.Time `json:"last_activity"`
}

// Status is a snapshot of an agent.
type Status struct {
	ID      string  `json:"agent_id"`
	Name    string  `json:"agent_name"`
	Type    string  `json:"agent_type"`
	Active  bool    `json:"is_active"`
	Metrics Metrics `json:"metrics"`
}

// Agent consumes its own bus queue. It drains the queue whenever a message
// for it is enqueued, unless deactivated; messages enqueued meanwhile stay
// queued until Activate.
type Agent struct {
	id       string
	name     string
	kind     string
	bus      *bus.Bus
	logger   *zap.Logger
	metrics  *observability.Metrics
	now      func() time.Time
	handlers map[string]Handler

	mu      sync.Mutex
	active  bool
	counter Metrics
}

func newAgent(id, name, kind string, b *bus.Bus, logger *zap.Logger, metrics *observability.Metrics) *Agent {
	a := &Agent{
		id:       id,
		name:     name,
		kind:     kind,
		bus:      b,
		logger:   observability.Named(logger, id),
		metrics:  metrics,
		now:      time.Now,
		handlers: make(map[string]Handler),
		active:   true,
	}
	a.logger.Info("agent initialized", zap.String("type", kind))
	return a
}

// ID returns the bus recipient id of the agent.
func (a *Agent) ID() string { return a.id }

// Handle registers h for event and subscribes the agent to it on the bus.
func (a *Agent) Handle(event string, h Handler) {
	a.handlers[event] = h
	a.bus.Subscribe(event, func(ctx context.Context, msg domain.QueueMessage) error {
		if msg.To != a.id {
			return nil
		}
		a.Drain(ctx)
		return nil
	})
}

// Drain processes queued messages until the queue is empty or the agent is
// deactivated. Returns how many messages were handled.
func (a *Agent) Drain(ctx context.Context) int {
	handled := 0
	for a.IsActive() {
		msg, ok := a.bus.Dequeue(a.id)
		if !ok {
			break
		}
		a.process(ctx, msg)
		handled++
	}
	return handled
}

func (a *Agent) process(ctx context.Context, msg domain.QueueMessage) {
	start := a.now()
	reply, err := a.dispatch(ctx, msg)
	elapsed := a.now().Sub(start)
	a.record(elapsed, err == nil)
	a.metrics.RecordAgentMessage(a.id, err == nil, elapsed)

	if err != nil {
		a.logger.Error("message processing failed",
			zap.String("message_id", msg.ID),
			zap.String("event", msg.Event),
			zap.String("from", msg.From),
			zap.Error(err))
		return
	}
	if reply == nil {
		return
	}
	if reply.From == "" {
		reply.From = a.id
	}
	if reply.ConversationID == "" {
		reply.ConversationID = msg.ConversationID
	}
	a.bus.Enqueue(ctx, *reply)
}

func (a *Agent) dispatch(ctx context.Context, msg domain.QueueMessage) (reply *domain.QueueMessage, err error) {
	h, ok := a.handlers[msg.Event]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnhandledEvent, msg.Event)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, msg)
}

// record folds one response into the running counters.
func (a *Agent) record(elapsed time.Duration, success bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.now()
	a.counter.MessagesProcessed++
	a.counter.LastActivity = &now
	if success {
		a.counter.SuccessfulResponses++
	} else {
		a.counter.FailedResponses++
	}
	n := float64(a.counter.SuccessfulResponses + a.counter.FailedResponses)
	a.counter.AverageResponseTime = (a.counter.AverageResponseTime*(n-1) + elapsed.Seconds()) / n
}

// IsActive reports whether the agent consumes its queue.
func (a *Agent) IsActive() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

// Activate resumes consumption and drains what accumulated.
func (a *Agent) Activate(ctx context.Context) {
	a.mu.Lock()
	a.active = true
	a.mu.Unlock()
	a.logger.Info("agent activated")
	a.Drain(ctx)
}

// Deactivate stops consumption; new messages stay queued.
func (a *Agent) Deactivate() {
	a.mu.Lock()
	a.active = false
	a.mu.Unlock()
	a.logger.Warn("agent deactivated")
}

// Status returns a snapshot of the agent.
func (a *Agent) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	m := a.counter
	if m.LastActivity != nil {
		t := *m.LastActivity
		m.LastActivity = &t
	}
	return Status{ID: a.id, Name: a.name, Type: a.kind, Active: a.active, Metrics: m}
}
