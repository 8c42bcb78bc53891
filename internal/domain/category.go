package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Priority is the urgency tier of a category, ordered from most to least urgent.
type Priority string

const (
	PriorityCritical Priority = "critica"
	PriorityHigh     Priority = "alta"
	PriorityMedium   Priority = "media"
	PriorityLow      Priority = "baixa"
	// PriorityNormal is used for tickets that could not be categorized.
	PriorityNormal Priority = "normal"
)

// Rank orders priorities; lower is more urgent.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityNormal:
		return 3
	case PriorityLow:
		return 4
	default:
		return 5
	}
}

// Valid reports whether p is one of the known tiers.
func (p Priority) Valid() bool {
	return p.Rank() < 5
}

// Defaults applied when a ticket has no category.
const (
	DefaultPriority = PriorityNormal
	DefaultSLAHours = 72
	DefaultTeamName = "Secretaria Geral"
)

// Category maps a problem classification to a responsible team, priority and SLA.
type Category struct {
	Code        string
	Name        string
	Description string
	Keywords    []string
	Priority    Priority
	SLAHours    int
	TeamID      *string
	TeamName    string
}

// Validate checks the invariants of a loaded definition.
func (c Category) Validate() error {
	if strings.TrimSpace(c.Code) == "" {
		return errors.New("category code required")
	}
	if len(c.Keywords) == 0 {
		return fmt.Errorf("category %s: keyword set is empty", c.Code)
	}
	if c.SLAHours <= 0 {
		return fmt.Errorf("category %s: sla hours must be positive", c.Code)
	}
	if !c.Priority.Valid() {
		return fmt.Errorf("category %s: unknown priority %q", c.Code, c.Priority)
	}
	return nil
}

// DisplayName returns the human label, falling back to the code.
func (c Category) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Code
}
