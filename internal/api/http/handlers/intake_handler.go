package handlers

import (
	"context"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/cidadao-ai/citizen-intake/internal/api/dto"
	"github.com/cidadao-ai/citizen-intake/internal/intake"
)

// MessageProcessor runs the intake conversation.
type MessageProcessor interface {
	HandleMessage(ctx context.Context, msg intake.InboundMessage) (string, error)
}

// IntakeHandler receives citizen messages relayed by the chat platform.
type IntakeHandler struct {
	machine MessageProcessor
}

// NewIntakeHandler constructs handler.
func NewIntakeHandler(machine MessageProcessor) *IntakeHandler {
	return &IntakeHandler{machine: machine}
}

// Receive handles POST /webhook/messages.
func (h *IntakeHandler) Receive(c *fiber.Ctx) error {
	var req dto.InboundMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	reply, err := h.machine.HandleMessage(c.UserContext(), intake.InboundMessage{
		ConversationID: req.ConversationID,
		Text:           req.Text,
		Contact:        intake.Contact{Phone: req.Contact.Phone, Name: req.Contact.Name},
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.InboundMessageResponse{ConversationID: req.ConversationID, Reply: reply}})
}
