package domain

import "time"

// TicketChangeType captures what a history entry records.
type TicketChangeType string

const (
	ChangeTypeCreated TicketChangeType = "CREATED"
	ChangeTypeStatus  TicketChangeType = "STATUS_CHANGE"
	ChangeTypeMessage TicketChangeType = "MESSAGE"
)

// TicketHistory is an immutable interaction entry attached to a ticket.
type TicketHistory struct {
	ID            string
	TicketID      string
	ChangedByType SubjectType
	ChangedByID   *string
	ChangeType    TicketChangeType
	Content       string
	OldValue      map[string]any
	NewValue      map[string]any
	CreatedAt     time.Time
}
