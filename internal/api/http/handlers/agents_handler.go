package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/cidadao-ai/citizen-intake/internal/agents"
	"github.com/cidadao-ai/citizen-intake/internal/api/dto"
	"github.com/cidadao-ai/citizen-intake/internal/bus"
	"github.com/cidadao-ai/citizen-intake/internal/domain"
	apperrors "github.com/cidadao-ai/citizen-intake/pkg/util/errorutil"
)

// AgentsHandler exposes the agent bus.
type AgentsHandler struct {
	bus    *bus.Bus
	agents *agents.Registry
}

// NewAgentsHandler constructs handler.
func NewAgentsHandler(b *bus.Bus, registry *agents.Registry) *AgentsHandler {
	return &AgentsHandler{bus: b, agents: registry}
}

// Publish handles POST /agents/messages.
func (h *AgentsHandler) Publish(c *fiber.Ctx) error {
	var req dto.AgentMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	req.Event = strings.TrimSpace(req.Event)
	req.To = strings.TrimSpace(req.To)
	if req.Event == "" || req.To == "" {
		return apperrors.NewValidationError("event and to required", nil)
	}
	from := strings.TrimSpace(req.From)
	if from == "" {
		from = "api"
	}
	stored := h.bus.Enqueue(c.UserContext(), domain.QueueMessage{
		Event:          req.Event,
		From:           from,
		To:             req.To,
		ConversationID: req.ConversationID,
		Data:           req.Data,
		Priority:       req.Priority,
	})
	return c.Status(http.StatusAccepted).JSON(fiber.Map{"data": stored})
}

// Status handles GET /agents/status.
func (h *AgentsHandler) Status(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": h.agents.Statuses()})
}

// Queues handles GET /agents/queues.
func (h *AgentsHandler) Queues(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": h.bus.Stats()})
}

// ClearQueue handles DELETE /agents/queues/:recipient.
func (h *AgentsHandler) ClearQueue(c *fiber.Ctx) error {
	h.bus.Clear(c.Params("recipient"))
	return c.SendStatus(http.StatusNoContent)
}

// ClearAll handles DELETE /agents/queues.
func (h *AgentsHandler) ClearAll(c *fiber.Ctx) error {
	h.bus.ClearAll()
	return c.SendStatus(http.StatusNoContent)
}

// Activate handles POST /agents/:id/activate.
func (h *AgentsHandler) Activate(c *fiber.Ctx) error {
	agent, err := h.agent(c)
	if err != nil {
		return err
	}
	agent.Activate(c.UserContext())
	return c.JSON(fiber.Map{"data": agent.Status()})
}

// Deactivate handles POST /agents/:id/deactivate.
func (h *AgentsHandler) Deactivate(c *fiber.Ctx) error {
	agent, err := h.agent(c)
	if err != nil {
		return err
	}
	agent.Deactivate()
	return c.JSON(fiber.Map{"data": agent.Status()})
}

func (h *AgentsHandler) agent(c *fiber.Ctx) (*agents.Agent, error) {
	id := c.Params("id")
	agent, ok := h.agents.Get(id)
	if !ok {
		return nil, apperrors.NewNotFound("agent", map[string]any{"id": id})
	}
	return agent, nil
}
