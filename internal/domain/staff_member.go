package domain

import "time"

// StaffRole enumerates operator roles inside the city hall.
type StaffRole string

const (
	StaffRoleTechnician StaffRole = "TECHNICIAN"
	StaffRoleSupervisor StaffRole = "SUPERVISOR"
	StaffRoleAdmin      StaffRole = "ADMIN"
)

// StaffMember models a technician who works tickets routed to a team.
type StaffMember struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         StaffRole
	TeamID       *string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
