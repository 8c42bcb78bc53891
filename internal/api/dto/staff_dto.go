package dto

import (
	"time"

	"github.com/cidadao-ai/citizen-intake/internal/domain"
)

// StaffLoginRequest payload.
type StaffLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse standard response for auth endpoints.
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// StaffResponse describes a staff member without credentials.
type StaffResponse struct {
	ID     string           `json:"id"`
	Name   string           `json:"name"`
	Email  string           `json:"email"`
	Role   domain.StaffRole `json:"role"`
	TeamID *string          `json:"team_id"`
	Active bool             `json:"active"`
}
