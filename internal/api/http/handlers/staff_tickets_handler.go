package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/cidadao-ai/citizen-intake/internal/api/dto"
	"github.com/cidadao-ai/citizen-intake/internal/auth"
	"github.com/cidadao-ai/citizen-intake/internal/domain"
	"github.com/cidadao-ai/citizen-intake/internal/service"
	apperrors "github.com/cidadao-ai/citizen-intake/pkg/util/errorutil"
)

// StaffTicketService is the slice of the ticket service staff endpoints use.
type StaffTicketService interface {
	ListStaffTickets(ctx context.Context, staff *domain.StaffMember, filter service.TicketStaffFilter) ([]domain.Ticket, error)
	History(ctx context.Context, staff *domain.StaffMember, protocol string) (*domain.Ticket, []domain.TicketHistory, error)
	UpdateStatus(ctx context.Context, staff *domain.StaffMember, protocol string, next domain.TicketStatus, comment string) (*domain.Ticket, error)
}

// StaffTicketsHandler handles staff ticket endpoints.
type StaffTicketsHandler struct {
	tickets StaffTicketService
}

// NewStaffTicketsHandler constructs handler.
func NewStaffTicketsHandler(tickets StaffTicketService) *StaffTicketsHandler {
	return &StaffTicketsHandler{tickets: tickets}
}

// ListStaffTickets GET /staff/tickets.
func (h *StaffTicketsHandler) ListStaffTickets(c *fiber.Ctx) error {
	staff, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	tickets, err := h.tickets.ListStaffTickets(c.UserContext(), staff, parseStaffTicketFilter(c))
	if err != nil {
		return err
	}
	items := make([]dto.TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketResponse(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// History GET /staff/tickets/:protocol/history.
func (h *StaffTicketsHandler) History(c *fiber.Ctx) error {
	staff, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	ticket, entries, err := h.tickets.History(c.UserContext(), staff, c.Params("protocol"))
	if err != nil {
		return err
	}
	items := make([]dto.TicketHistoryResponse, 0, len(entries))
	for _, e := range entries {
		items = append(items, dto.TicketHistoryResponse{
			ID:            e.ID,
			ChangedByType: e.ChangedByType,
			ChangedByID:   e.ChangedByID,
			ChangeType:    e.ChangeType,
			Content:       e.Content,
			OldValue:      e.OldValue,
			NewValue:      e.NewValue,
			CreatedAt:     e.CreatedAt,
		})
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"ticket": ticketResponse(ticket), "history": items}})
}

// UpdateStatus PATCH /staff/tickets/:protocol/status.
func (h *StaffTicketsHandler) UpdateStatus(c *fiber.Ctx) error {
	staff, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.UpdateTicketStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	ticket, err := h.tickets.UpdateStatus(c.UserContext(), staff, c.Params("protocol"), req.Status, strings.TrimSpace(req.Comment))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

func staffPrincipal(c *fiber.Ctx) (*domain.StaffMember, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Staff == nil {
		return nil, apperrors.NewUnauthorized("staff required")
	}
	return principal.Staff, nil
}

func parseStaffTicketFilter(c *fiber.Ctx) service.TicketStaffFilter {
	filter := service.TicketStaffFilter{}
	if teamID := c.Query("team_id"); teamID != "" {
		filter.TeamID = &teamID
	}
	if category := c.Query("category"); category != "" {
		filter.CategoryCode = &category
	}
	for _, part := range splitQuery(c.Query("status")) {
		filter.Statuses = append(filter.Statuses, domain.TicketStatus(part))
	}
	for _, part := range splitQuery(c.Query("priority")) {
		filter.Priorities = append(filter.Priorities, domain.Priority(part))
	}
	if search := c.Query("search"); search != "" {
		filter.SearchTerm = &search
	}
	filter.CreatedFrom = parseTime(c.Query("created_from"))
	filter.CreatedTo = parseTime(c.Query("created_to"))
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 20)
	filter.Offset = (page - 1) * pageSize
	filter.Limit = pageSize
	return filter
}

func splitQuery(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseTime(value string) *time.Time {
	if value == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil
	}
	return &t
}

func parseInt(value string, fallback int) int {
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
