package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/cidadao-ai/citizen-intake/internal/agents"
	"github.com/cidadao-ai/citizen-intake/internal/api/dto"
	apperrors "github.com/cidadao-ai/citizen-intake/pkg/util/errorutil"
)

const defaultAssistantConversation = "default"

// AssistantResponder answers free-form questions.
type AssistantResponder interface {
	Reply(ctx context.Context, conversationID, message string) (string, error)
}

// AssistantHandler lets staff talk to the virtual assistant directly.
type AssistantHandler struct {
	assistant AssistantResponder
}

// NewAssistantHandler constructs handler.
func NewAssistantHandler(assistant AssistantResponder) *AssistantHandler {
	return &AssistantHandler{assistant: assistant}
}

// Ask handles POST /agents/assistant.
func (h *AssistantHandler) Ask(c *fiber.Ctx) error {
	var req dto.AssistantRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return apperrors.NewValidationError("message required", nil)
	}
	conversationID := strings.TrimSpace(req.ConversationID)
	if conversationID == "" {
		conversationID = defaultAssistantConversation
	}

	reply, err := h.assistant.Reply(c.UserContext(), conversationID, message)
	if errors.Is(err, agents.ErrAssistantUnavailable) {
		return apperrors.NewDomainError("AGENT_UNAVAILABLE", "Agente não disponível", http.StatusServiceUnavailable, nil)
	}
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.AssistantResponse{
		ConversationID: conversationID,
		Message:        message,
		AIResponse:     reply,
	}})
}
