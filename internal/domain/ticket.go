package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "open"
	TicketStatusInProgress TicketStatus = "in_progress"
	TicketStatusResolved   TicketStatus = "resolved"
	TicketStatusCancelled  TicketStatus = "cancelled"
)

// Source channels a ticket can originate from.
const (
	SourceWhatsApp = "whatsapp"
	SourceAgent    = "agent"
)

// Ticket is a citizen service request routed to a team.
type Ticket struct {
	ID           string
	Protocol     string
	CitizenID    string
	CategoryCode *string
	TeamID       *string
	TeamName     string
	Title        string
	Description  string
	Address      string
	Priority     Priority
	SLADeadline  *time.Time
	Status       TicketStatus
	Source       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	ResolvedAt   *time.Time
}

var allowedTransitions = map[TicketStatus][]TicketStatus{
	TicketStatusOpen:       {TicketStatusInProgress, TicketStatusCancelled},
	TicketStatusInProgress: {TicketStatusResolved, TicketStatusCancelled},
	TicketStatusResolved:   {TicketStatusCancelled},
	TicketStatusCancelled:  {},
}

// CanTransition reports whether current -> next is a monotonic move.
func CanTransition(current, next TicketStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}

// ValidStatus reports whether s is a known status.
func ValidStatus(s TicketStatus) bool {
	_, ok := allowedTransitions[s]
	return ok
}
