package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/cidadao-ai/citizen-intake/internal/auth"
	"github.com/cidadao-ai/citizen-intake/internal/config"
	"github.com/cidadao-ai/citizen-intake/internal/domain"
	"github.com/cidadao-ai/citizen-intake/internal/observability"
	"github.com/cidadao-ai/citizen-intake/internal/repository"
	apperrors "github.com/cidadao-ai/citizen-intake/pkg/util/errorutil"
)

// AuthService coordinates staff login.
type AuthService struct {
	staff      repository.StaffRepository
	tokenMgr   *auth.TokenManager
	bcryptCost int
	logger     *zap.Logger
}

// NewAuthService builds the service.
func NewAuthService(cfg config.AuthConfig, staff repository.StaffRepository, logger *zap.Logger) *AuthService {
	return &AuthService{
		staff:      staff,
		tokenMgr:   auth.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTLMinutes),
		bcryptCost: cfg.BcryptCost,
		logger:     observability.Named(logger, "auth"),
	}
}

// LoginStaff authenticates staff and returns a role-bearing token. Unknown
// email and wrong password are indistinguishable to the caller.
func (s *AuthService) LoginStaff(ctx context.Context, email, password string) (*domain.StaffMember, string, time.Time, error) {
	staff, err := s.staff.GetByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, "", time.Time{}, apperrors.NewUnauthorized("invalid credentials")
	}
	if err != nil {
		return nil, "", time.Time{}, apperrors.NewPersistenceError("get staff", err)
	}
	if err := auth.ComparePassword(staff.PasswordHash, password); err != nil {
		return nil, "", time.Time{}, apperrors.NewUnauthorized("invalid credentials")
	}
	if !staff.Active {
		return nil, "", time.Time{}, apperrors.NewForbidden("staff inactive")
	}
	token, exp, err := s.tokenMgr.GenerateToken(staff)
	if err != nil {
		return nil, "", time.Time{}, apperrors.NewInternalError(err)
	}
	return staff, token, exp, nil
}

// EnsureAdmin creates an admin account for email unless one exists.
func (s *AuthService) EnsureAdmin(ctx context.Context, email, password string) error {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil
	}
	if _, err := s.staff.GetByEmail(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return err
	}
	admin := &domain.StaffMember{
		Name:         "Administrador",
		Email:        email,
		PasswordHash: hash,
		Role:         domain.StaffRoleAdmin,
		Active:       true,
	}
	if err := s.staff.Create(ctx, admin); err != nil {
		return err
	}
	s.logger.Info("bootstrap admin created", zap.String("staff_id", admin.ID))
	return nil
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
