package agents

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cidadao-ai/citizen-intake/internal/bus"
	"github.com/cidadao-ai/citizen-intake/internal/classification"
	"github.com/cidadao-ai/citizen-intake/internal/domain"
	"github.com/cidadao-ai/citizen-intake/internal/service"
)

type fakeCreator struct {
	mu    sync.Mutex
	calls []service.CreateTicketInput
	err   error
}

func (f *fakeCreator) CreateTicket(_ context.Context, in service.CreateTicketInput) (*domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.calls = append(f.calls, in)
	deadline := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	team := domain.DefaultTeamName
	if in.Classification != nil && in.Classification.TeamName != "" {
		team = in.Classification.TeamName
	}
	return &domain.Ticket{ID: "t-1", Protocol: "GERAL-2024-001", TeamName: team, Priority: domain.PriorityHigh, Status: domain.TicketStatusOpen, SLADeadline: &deadline}, nil
}

func setup(t *testing.T) (*bus.Bus, *Agent, *Agent, *fakeCreator) {
	t.Helper()
	b := bus.New(10, nil, nil)
	creator := &fakeCreator{}
	cat := NewCategorizationAgent(b, classification.NewEngine(classification.Dependencies{}), nil, nil)
	tick := NewTicketAgent(b, creator, nil, nil)
	return b, cat, tick, creator
}

func TestPipelineCreatesTicketAndNotifies(t *testing.T) {
	b, cat, tick, creator := setup(t)

	b.Enqueue(context.Background(), domain.QueueMessage{
		Event:          EventCategorizeIssue,
		From:           "webhook",
		To:             CategorizationAgentID,
		ConversationID: "conv-9",
		Data: map[string]any{
			"description":   "tem um buraco na rua",
			"address":       "Rua A, 1",
			"citizen_phone": "5511",
		},
	})

	require.Len(t, creator.calls, 1)
	in := creator.calls[0]
	assert.Equal(t, "5511", in.Citizen.Phone)
	assert.Equal(t, "Rua A, 1", in.Address)
	assert.Equal(t, domain.SourceAgent, in.Source)
	require.NotNil(t, in.Classification)
	assert.Equal(t, "infraestrutura", in.Classification.Category)
	assert.Equal(t, 24, in.Classification.SLAHours)

	assert.Zero(t, b.Size(CategorizationAgentID))
	assert.Zero(t, b.Size(TicketAgentID))
	note, ok := b.Peek(NotificationAgentID)
	require.True(t, ok)
	assert.Equal(t, EventTicketCreated, note.Event)
	assert.Equal(t, TicketAgentID, note.From)
	assert.Equal(t, "conv-9", note.ConversationID)
	assert.Equal(t, "GERAL-2024-001", note.Data["protocol"])
	assert.Equal(t, "Secretaria de Infraestrutura", note.Data["team_name"])

	assert.Equal(t, 1, cat.Status().Metrics.SuccessfulResponses)
	assert.Equal(t, 1, tick.Status().Metrics.SuccessfulResponses)
	assert.NotNil(t, tick.Status().Metrics.LastActivity)
}

func TestCategorizationForwardsWithPriority(t *testing.T) {
	b := bus.New(10, nil, nil)
	NewCategorizationAgent(b, classification.NewEngine(classification.Dependencies{}), nil, nil)

	b.Enqueue(context.Background(), domain.QueueMessage{
		Event: EventCategorizeIssue, To: CategorizationAgentID,
		Data: map[string]any{"description": "posto sem médico", "extra": "kept"},
	})

	msg, ok := b.Peek(TicketAgentID)
	require.True(t, ok)
	assert.Equal(t, 1, msg.Priority)
	assert.Equal(t, "kept", msg.Data["extra"])
	cls := classificationFrom(msg.Data)
	require.NotNil(t, cls)
	assert.Equal(t, "saude", cls.Category)
}

func TestFailuresAreCounted(t *testing.T) {
	b, cat, tick, creator := setup(t)
	creator.err = errors.New("citizen not found")
	ctx := context.Background()

	b.Enqueue(ctx, domain.QueueMessage{Event: EventCategorizeIssue, To: CategorizationAgentID, Data: map[string]any{}})
	b.Enqueue(ctx, domain.QueueMessage{Event: EventCategorizeIssue, To: CategorizationAgentID, Data: map[string]any{"description": "buraco"}})

	st := cat.Status()
	assert.Equal(t, 2, st.Metrics.MessagesProcessed)
	assert.Equal(t, 1, st.Metrics.FailedResponses)
	assert.Equal(t, 1, st.Metrics.SuccessfulResponses)
	assert.Equal(t, 1, tick.Status().Metrics.FailedResponses)
	assert.Zero(t, b.Size(NotificationAgentID))
}

func TestDeactivatedAgentKeepsQueue(t *testing.T) {
	b, cat, _, creator := setup(t)
	ctx := context.Background()
	cat.Deactivate()

	b.Enqueue(ctx, domain.QueueMessage{Event: EventCategorizeIssue, To: CategorizationAgentID, Data: map[string]any{"description": "buraco"}})
	assert.Equal(t, 1, b.Size(CategorizationAgentID))
	assert.False(t, cat.Status().Active)
	assert.Empty(t, creator.calls)

	cat.Activate(ctx)
	assert.Zero(t, b.Size(CategorizationAgentID))
	assert.Len(t, creator.calls, 1)
}

func TestMessagesForOtherRecipientsAreIgnored(t *testing.T) {
	b, cat, _, _ := setup(t)
	b.Enqueue(context.Background(), domain.QueueMessage{Event: EventCategorizeIssue, To: "someone_else", Data: map[string]any{"description": "buraco"}})

	assert.Equal(t, 1, b.Size("someone_else"))
	assert.Zero(t, cat.Status().Metrics.MessagesProcessed)
}

func TestUnhandledEventFails(t *testing.T) {
	b, cat, _, _ := setup(t)
	b.Enqueue(context.Background(), domain.QueueMessage{Event: "get_categories", To: CategorizationAgentID})

	assert.Equal(t, 1, cat.Drain(context.Background()))
	assert.Equal(t, 1, cat.Status().Metrics.FailedResponses)
}

func TestRegistryStatusesSorted(t *testing.T) {
	_, cat, tick, _ := setup(t)
	reg := NewRegistry(tick, cat)

	statuses := reg.Statuses()
	require.Len(t, statuses, 2)
	assert.Equal(t, CategorizationAgentID, statuses[0].ID)
	assert.Equal(t, TicketAgentID, statuses[1].ID)

	got, ok := reg.Get(TicketAgentID)
	require.True(t, ok)
	assert.Same(t, tick, got)
	_, ok = reg.Get("nope")
	assert.False(t, ok)
}

func TestAverageResponseTime(t *testing.T) {
	a := newAgent("x", "x", "x", bus.New(1, nil, nil), nil, nil)
	a.record(2*time.Second, true)
	a.record(4*time.Second, false)
	assert.InDelta(t, 3.0, a.Status().Metrics.AverageResponseTime, 1e-9)
}
