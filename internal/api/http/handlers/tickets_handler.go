package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/cidadao-ai/citizen-intake/internal/api/dto"
	"github.com/cidadao-ai/citizen-intake/internal/catalog"
	"github.com/cidadao-ai/citizen-intake/internal/domain"
)

// TicketReader looks tickets up by protocol.
type TicketReader interface {
	GetByProtocol(ctx context.Context, protocol string) (*domain.Ticket, error)
}

// TicketsHandler serves public ticket and category lookups.
type TicketsHandler struct {
	tickets TicketReader
	catalog *catalog.Catalog
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(tickets TicketReader, cat *catalog.Catalog) *TicketsHandler {
	return &TicketsHandler{tickets: tickets, catalog: cat}
}

// GetByProtocol handles GET /tickets/:protocol.
func (h *TicketsHandler) GetByProtocol(c *fiber.Ctx) error {
	ticket, err := h.tickets.GetByProtocol(c.UserContext(), c.Params("protocol"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// ListCategories handles GET /categories.
func (h *TicketsHandler) ListCategories(c *fiber.Ctx) error {
	cats := h.catalog.All()
	resp := make([]dto.CategoryResponse, 0, len(cats))
	for _, cat := range cats {
		resp = append(resp, dto.CategoryResponse{
			Code:        cat.Code,
			Name:        cat.DisplayName(),
			Description: cat.Description,
			Keywords:    cat.Keywords,
			Priority:    cat.Priority,
			SLAHours:    cat.SLAHours,
			TeamName:    cat.TeamName,
		})
	}
	return c.JSON(fiber.Map{"data": resp})
}

func ticketResponse(t *domain.Ticket) dto.TicketResponse {
	return dto.TicketResponse{
		ID:           t.ID,
		Protocol:     t.Protocol,
		CategoryCode: t.CategoryCode,
		TeamID:       t.TeamID,
		TeamName:     t.TeamName,
		Title:        t.Title,
		Description:  t.Description,
		Address:      t.Address,
		Priority:     t.Priority,
		Status:       t.Status,
		Source:       t.Source,
		SLADeadline:  t.SLADeadline,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
		ResolvedAt:   t.ResolvedAt,
	}
}
