package domain

import "time"

// Team is a responsible department (secretaria) that receives tickets.
type Team struct {
	ID             string
	Name           string
	ProtocolPrefix string
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
