package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/cidadao-ai/citizen-intake/internal/api/dto"
	"github.com/cidadao-ai/citizen-intake/internal/domain"
)

// StaffAuthenticator logs staff in.
type StaffAuthenticator interface {
	LoginStaff(ctx context.Context, email, password string) (*domain.StaffMember, string, time.Time, error)
}

// StaffHandler exposes staff auth endpoints.
type StaffHandler struct {
	auth StaffAuthenticator
}

// NewStaffHandler constructs handler.
func NewStaffHandler(auth StaffAuthenticator) *StaffHandler {
	return &StaffHandler{auth: auth}
}

// Login handles POST /auth/staff/login.
func (h *StaffHandler) Login(c *fiber.Ctx) error {
	var req dto.StaffLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if req.Email == "" || req.Password == "" {
		return fiber.NewError(http.StatusBadRequest, "email and password required")
	}

	staff, token, exp, err := h.auth.LoginStaff(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"staff": staffResponse(staff),
			"auth":  dto.AuthResponse{Token: token, ExpiresAt: exp},
		},
	})
}

func staffResponse(staff *domain.StaffMember) dto.StaffResponse {
	return dto.StaffResponse{
		ID:     staff.ID,
		Name:   staff.Name,
		Email:  staff.Email,
		Role:   staff.Role,
		TeamID: staff.TeamID,
		Active: staff.Active,
	}
}
