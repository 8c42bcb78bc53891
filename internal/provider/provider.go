// Package provider is a uniform completion interface over interchangeable
// AI text-completion backends, with a façade that picks one backend at
// startup by descending priority.
package provider

import (
	"context"
	"errors"
	"fmt"
)

// Role of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of the conversation sent to a backend.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Options tune a completion call. Zero fields fall back to the façade defaults.
type Options struct {
	Model       string
	MaxTokens   int
	Temperature *float64
	TopP        *float64
}

// Float is a helper for the pointer fields of Options.
func Float(v float64) *float64 { return &v }

// Provider wraps exactly one external backend.
type Provider interface {
	Name() string
	// Available reports whether the backend has a usable client handle.
	Available() bool
	Complete(ctx context.Context, messages []Message, opts Options) (string, error)
}

// ErrProviderUnavailable is returned when no backend was selected.
var ErrProviderUnavailable = errors.New("provider: no AI provider available")

// Error reports a failed call on the active backend (network, auth, rate-limit, timeout).
type Error struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider %s: status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
