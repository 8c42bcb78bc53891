package domain

import "time"

// ChatTurn is one message of an assistant conversation. Role is "user" or
// "assistant".
type ChatTurn struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// Chat roles.
const (
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
)

// ChatHistoryLimit is how many turns are kept per conversation.
const ChatHistoryLimit = 10
