package agents

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cidadao-ai/citizen-intake/internal/bus"
	"github.com/cidadao-ai/citizen-intake/internal/domain"
	"github.com/cidadao-ai/citizen-intake/internal/provider"
	"github.com/cidadao-ai/citizen-intake/internal/repository"
)

type scriptedCompleter struct {
	mu        sync.Mutex
	available bool
	err       error
	calls     [][]provider.Message
	opts      []provider.Options
}

func (s *scriptedCompleter) IsAvailable() bool { return s.available }

func (s *scriptedCompleter) GenerateCompletion(_ context.Context, messages []provider.Message, opts provider.Options) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, messages)
	s.opts = append(s.opts, opts)
	if s.err != nil {
		return "", s.err
	}
	return fmt.Sprintf(" resposta %d ", len(s.calls)), nil
}

func (s *scriptedCompleter) last() []provider.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[len(s.calls)-1]
}

func TestAssistantSendsSystemPromptAndRecentHistory(t *testing.T) {
	ai := &scriptedCompleter{available: true}
	history := repository.NewMemoryChatHistoryRepository()
	assistant := NewAssistant(ai, history, nil)
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		reply, err := assistant.Reply(ctx, "conv-1", fmt.Sprintf("pergunta %d", i))
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("resposta %d", i), reply)
	}

	sent := ai.last()
	require.Len(t, sent, 1+assistantContextTurns)
	assert.Equal(t, provider.RoleSystem, sent[0].Role)
	assert.Contains(t, sent[0].Content, "atendimento ao cidadão")
	assert.Equal(t, provider.Message{Role: provider.RoleUser, Content: "pergunta 2"}, sent[1])
	assert.Equal(t, provider.Message{Role: provider.RoleAssistant, Content: "resposta 3"}, sent[4])
	assert.Equal(t, provider.Message{Role: provider.RoleUser, Content: "pergunta 4"}, sent[len(sent)-1])
	assert.Equal(t, provider.Options{}, ai.opts[0], "façade defaults apply")

	stored, err := history.Recent(ctx, "conv-1", 50)
	require.NoError(t, err)
	assert.Len(t, stored, 8)

	_, err = assistant.Reply(ctx, "conv-2", "outra conversa")
	require.NoError(t, err)
	assert.Len(t, ai.last(), 2)
}

func TestAssistantFallbackKeepsHistory(t *testing.T) {
	ai := &scriptedCompleter{available: true, err: &provider.Error{Provider: "openai", StatusCode: 429, Err: errors.New("rate limited")}}
	history := repository.NewMemoryChatHistoryRepository()
	assistant := NewAssistant(ai, history, nil)

	reply, err := assistant.Reply(context.Background(), "conv-1", "qual o horário do posto?")
	require.NoError(t, err)
	assert.Equal(t, AssistantFallback, reply)

	stored, err := history.Recent(context.Background(), "conv-1", 10)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestAssistantUnavailable(t *testing.T) {
	_, err := NewAssistant(&scriptedCompleter{}, nil, nil).Reply(context.Background(), "c", "oi")
	assert.ErrorIs(t, err, ErrAssistantUnavailable)

	_, err = NewAssistant(nil, nil, nil).Reply(context.Background(), "c", "oi")
	assert.ErrorIs(t, err, ErrAssistantUnavailable)

	_, err = NewAssistant(&scriptedCompleter{available: true, err: provider.ErrProviderUnavailable}, nil, nil).Reply(context.Background(), "c", "oi")
	assert.ErrorIs(t, err, ErrAssistantUnavailable)

	_, err = NewAssistant(&scriptedCompleter{available: true}, nil, nil).Reply(context.Background(), "c", "  ")
	assert.Error(t, err)
}

func TestAssistantForget(t *testing.T) {
	ai := &scriptedCompleter{available: true}
	assistant := NewAssistant(ai, nil, nil)
	ctx := context.Background()

	_, err := assistant.Reply(ctx, "conv-1", "oi")
	require.NoError(t, err)
	require.NoError(t, assistant.Forget(ctx, "conv-1"))

	_, err = assistant.Reply(ctx, "conv-1", "oi de novo")
	require.NoError(t, err)
	assert.Len(t, ai.last(), 2)
}

func TestAssistantAgentAnswersOnTheBus(t *testing.T) {
	b := bus.New(10, nil, nil)
	agent := NewAssistantAgent(b, NewAssistant(&scriptedCompleter{available: true}, nil, nil), nil, nil)

	b.Enqueue(context.Background(), domain.QueueMessage{
		Event:          EventCitizenQuestion,
		From:           "webhook",
		To:             AssistantAgentID,
		ConversationID: "conv-3",
		Data:           map[string]any{"message": "como pago o IPTU?"},
	})

	reply, ok := b.Dequeue("webhook")
	require.True(t, ok)
	assert.Equal(t, EventAssistantReply, reply.Event)
	assert.Equal(t, AssistantAgentID, reply.From)
	assert.Equal(t, "conv-3", reply.ConversationID)
	assert.Equal(t, "resposta 1", reply.Data["ai_response"])
	assert.Equal(t, 1, agent.Status().Metrics.SuccessfulResponses)
}

func TestAssistantAgentRecordsUnavailableProvider(t *testing.T) {
	b := bus.New(10, nil, nil)
	agent := NewAssistantAgent(b, NewAssistant(&scriptedCompleter{}, nil, nil), nil, nil)

	b.Enqueue(context.Background(), domain.QueueMessage{Event: EventCitizenQuestion, From: "webhook", To: AssistantAgentID, Data: map[string]any{"message": "oi"}})

	assert.Equal(t, 1, agent.Status().Metrics.FailedResponses)
	assert.Zero(t, b.Size("webhook"))
}
