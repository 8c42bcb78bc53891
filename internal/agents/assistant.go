package agents

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cidadao-ai/citizen-intake/internal/bus"
	"github.com/cidadao-ai/citizen-intake/internal/domain"
	"github.com/cidadao-ai/citizen-intake/internal/observability"
	"github.com/cidadao-ai/citizen-intake/internal/provider"
	"github.com/cidadao-ai/citizen-intake/internal/repository"
)

const (
	AssistantAgentID = "assistant_agent"

	EventCitizenQuestion = "citizen_question"
	EventAssistantReply  = "assistant_reply"

	// assistantContextTurns is how many turns, the new question included,
	// reach the provider.
	assistantContextTurns = 5
)

// AssistantFallback is sent when the provider call fails.
const AssistantFallback = "Olá! Recebi sua mensagem. Nossa equipe técnica irá respondê-lo em breve. Obrigado pelo contato! 😊"

const assistantSystemPrompt = `Você é um assistente virtual especializado em atendimento ao cidadão para prefeituras brasileiras.

Suas principais responsabilidades:
- Fornecer informações sobre serviços municipais
- Orientar sobre documentos e procedimentos
- Explicar questões tributárias (IPTU, ISS, etc.)
- Informar sobre saúde, educação e outros serviços públicos
- Ser prestativo, educado e profissional

Diretrizes importantes:
- Use linguagem clara e acessível
- Seja sempre cortês e respeitoso
- Se não souber algo específico, oriente o cidadão a entrar em contato com o órgão responsável
- Mantenha foco em informações gerais e orientações básicas
- Se a questão for complexa, sugira que o cidadão fale com um técnico humano

Formato das respostas:
- Seja direto e objetivo
- Use emojis moderadamente para tornar a comunicação mais amigável
- Sempre termine oferecendo ajuda adicional`

// ErrAssistantUnavailable is returned when no AI provider was selected.
var ErrAssistantUnavailable = errors.New("assistant unavailable")

// Completer is the slice of the provider façade the assistant needs.
type Completer interface {
	IsAvailable() bool
	GenerateCompletion(ctx context.Context, messages []provider.Message, opts provider.Options) (string, error)
}

// Assistant answers free-form citizen questions with the provider, keeping a
// short per-conversation memory.
type Assistant struct {
	ai      Completer
	history repository.ChatHistoryRepository
	logger  *zap.Logger
	now     func() time.Time
}

// NewAssistant builds an assistant; a nil history keeps turns in memory.
func NewAssistant(ai Completer, history repository.ChatHistoryRepository, logger *zap.Logger) *Assistant {
	if history == nil {
		history = repository.NewMemoryChatHistoryRepository()
	}
	return &Assistant{
		ai:      ai,
		history: history,
		logger:  observability.Named(logger, "assistant"),
		now:     time.Now,
	}
}

// Available reports whether a provider backs the assistant.
func (a *Assistant) Available() bool {
	return a != nil && a.ai != nil && a.ai.IsAvailable()
}

// Reply answers message within conversationID. Provider failures are answered
// with AssistantFallback and leave the history untouched.
func (a *Assistant) Reply(ctx context.Context, conversationID, message string) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", errors.New("message required")
	}
	if !a.Available() {
		return "", ErrAssistantUnavailable
	}
	logger := a.logger.With(zap.String("conversation_id", conversationID))

	previous, err := a.history.Recent(ctx, conversationID, assistantContextTurns-1)
	if err != nil {
		logger.Warn("load chat history", zap.Error(err))
		previous = nil
	}
	messages := make([]provider.Message, 0, len(previous)+2)
	messages = append(messages, provider.Message{Role: provider.RoleSystem, Content: assistantSystemPrompt})
	for _, turn := range previous {
		messages = append(messages, provider.Message{Role: provider.Role(turn.Role), Content: turn.Content})
	}
	messages = append(messages, provider.Message{Role: provider.RoleUser, Content: message})

	text, err := a.ai.GenerateCompletion(ctx, messages, provider.Options{})
	if errors.Is(err, provider.ErrProviderUnavailable) {
		return "", ErrAssistantUnavailable
	}
	text = strings.TrimSpace(text)
	if err != nil || text == "" {
		logger.Warn("assistant completion failed, sending fallback", zap.Error(err))
		return AssistantFallback, nil
	}

	now := a.now()
	if err := a.history.Append(ctx, conversationID,
		domain.ChatTurn{Role: domain.ChatRoleUser, Content: message, At: now},
		domain.ChatTurn{Role: domain.ChatRoleAssistant, Content: text, At: now},
	); err != nil {
		logger.Warn("store chat history", zap.Error(err))
	}
	return text, nil
}

// Forget drops the memory of conversationID.
func (a *Assistant) Forget(ctx context.Context, conversationID string) error {
	return a.history.Clear(ctx, conversationID)
}

// NewAssistantAgent answers citizen_question messages (data.message) and
// sends the answer back to the sender as assistant_reply.
func NewAssistantAgent(b *bus.Bus, assistant *Assistant, logger *zap.Logger, metrics *observability.Metrics) *Agent {
	a := newAgent(AssistantAgentID, "Assistente Virtual", "assistant", b, logger, metrics)
	a.Handle(EventCitizenQuestion, func(ctx context.Context, msg domain.QueueMessage) (*domain.QueueMessage, error) {
		question := stringField(msg.Data, "message")
		reply, err := assistant.Reply(ctx, msg.ConversationID, question)
		if err != nil {
			return nil, err
		}
		if msg.From == "" {
			return nil, nil
		}
		return &domain.QueueMessage{
			Event: EventAssistantReply,
			To:    msg.From,
			Data: map[string]any{
				"message":     question,
				"ai_response": reply,
			},
		}, nil
	})
	return a
}
