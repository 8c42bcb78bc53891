package domain

import "time"

// QueueMessage is an inter-agent message carried by the bus. Immutable once enqueued.
type QueueMessage struct {
	ID             string         `json:"id"`
	Event          string         `json:"event"`
	From           string         `json:"from"`
	To             string         `json:"to"`
	ConversationID string         `json:"conversation_id"`
	Data           map[string]any `json:"data"`
	Timestamp      time.Time      `json:"timestamp"`
	// Priority is advisory; delivery is FIFO per recipient.
	Priority   int `json:"priority"`
	RetryCount int `json:"retry_count"`
}
