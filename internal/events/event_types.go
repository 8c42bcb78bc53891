package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/cidadao-ai/citizen-intake/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated       EventType = "ticket_created"
	EventTicketStatusChanged EventType = "ticket_status_changed"
	EventMessageProcessed    EventType = "message_processed"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Type domain.SubjectType `json:"type"`
	ID   *string            `json:"id,omitempty"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id,omitempty"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// New stamps an event with a fresh id.
func New(eventType EventType, ticketID string, actor Actor, at time.Time, payload interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TicketID:  ticketID,
		Actor:     actor,
		Timestamp: at,
		Payload:   payload,
	}
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Protocol     string          `json:"protocol"`
	CategoryCode *string         `json:"category_code,omitempty"`
	TeamName     string          `json:"team_name"`
	Priority     domain.Priority `json:"priority"`
	Title        string          `json:"title"`
	Source       string          `json:"source"`
	SLADeadline  *time.Time      `json:"sla_deadline,omitempty"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	Protocol  string              `json:"protocol"`
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
	Comment   string              `json:"comment,omitempty"`
}

// MessageProcessedPayload announces a handled inbound citizen message.
type MessageProcessedPayload struct {
	ConversationID string      `json:"conversation_id"`
	FromStep       domain.Step `json:"from_step"`
	ToStep         domain.Step `json:"to_step"`
	Protocol       string      `json:"protocol,omitempty"`
}
