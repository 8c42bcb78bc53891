package dto

import (
	"time"

	"github.com/cidadao-ai/citizen-intake/internal/domain"
)

// TicketResponse is the public view of a ticket.
type TicketResponse struct {
	ID           string              `json:"id"`
	Protocol     string              `json:"protocol"`
	CategoryCode *string             `json:"category_code"`
	TeamID       *string             `json:"team_id"`
	TeamName     string              `json:"team_name"`
	Title        string              `json:"title"`
	Description  string              `json:"description"`
	Address      string              `json:"address"`
	Priority     domain.Priority     `json:"priority"`
	Status       domain.TicketStatus `json:"status"`
	Source       string              `json:"source"`
	SLADeadline  *time.Time          `json:"sla_deadline"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
	ResolvedAt   *time.Time          `json:"resolved_at"`
}

// TicketHistoryResponse is one interaction entry.
type TicketHistoryResponse struct {
	ID            string                  `json:"id"`
	ChangedByType domain.SubjectType      `json:"changed_by_type"`
	ChangedByID   *string                 `json:"changed_by_id"`
	ChangeType    domain.TicketChangeType `json:"change_type"`
	Content       string                  `json:"content"`
	OldValue      map[string]any          `json:"old_value,omitempty"`
	NewValue      map[string]any          `json:"new_value,omitempty"`
	CreatedAt     time.Time               `json:"created_at"`
}

// UpdateTicketStatusRequest payload for PATCH /staff/tickets/:protocol/status.
type UpdateTicketStatusRequest struct {
	Status  domain.TicketStatus `json:"status"`
	Comment string              `json:"comment"`
}

// CategoryResponse describes one catalog entry.
type CategoryResponse struct {
	Code        string          `json:"code"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Keywords    []string        `json:"keywords"`
	Priority    domain.Priority `json:"priority"`
	SLAHours    int             `json:"sla_hours"`
	TeamName    string          `json:"team_name"`
}
