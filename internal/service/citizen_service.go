package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/cidadao-ai/citizen-intake/internal/domain"
	"github.com/cidadao-ai/citizen-intake/internal/observability"
	"github.com/cidadao-ai/citizen-intake/internal/repository"
	apperrors "github.com/cidadao-ai/citizen-intake/pkg/util/errorutil"
)

// CitizenService looks up and registers citizens.
type CitizenService struct {
	citizens       repository.CitizenRepository
	logger         *zap.Logger
	storageTimeout time.Duration
}

// NewCitizenService constructs the service.
func NewCitizenService(citizens repository.CitizenRepository, logger *zap.Logger, storageTimeout time.Duration) *CitizenService {
	return &CitizenService{
		citizens:       citizens,
		logger:         observability.Named(logger, "citizens"),
		storageTimeout: storageTimeout,
	}
}

// RegisterCitizenInput carries the fields collected during intake. A nil
// Email means the citizen has none.
type RegisterCitizenInput struct {
	Phone      string
	Name       string
	DocumentID string
	Email      *string
	Address    string
}

// FindByPhone returns CitizenNotFound when the phone is not registered.
func (s *CitizenService) FindByPhone(ctx context.Context, phone string) (*domain.Citizen, error) {
	var citizen *domain.Citizen
	err := withTimeout(ctx, s.storageTimeout, func(ctx context.Context) error {
		var err error
		citizen, err = s.citizens.GetByPhone(ctx, phone)
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NewCitizenNotFound(phone)
	}
	if err != nil {
		s.logger.Error("citizen lookup failed", zap.String("phone", phone), zap.Error(err))
		return nil, apperrors.NewPersistenceError("get citizen", err)
	}
	return citizen, nil
}

// InvalidField names the registration field a validation error is about, or
// "" when the error carries none.
func InvalidField(err error) string {
	de := apperrors.ToDomainError(err)
	if de == nil || de.Details == nil {
		return ""
	}
	field, _ := de.Details["field"].(string)
	return field
}

func fieldDetail(field string) map[string]any {
	return map[string]any{"field": field}
}

// Register validates and upserts a citizen keyed by phone.
func (s *CitizenService) Register(ctx context.Context, in RegisterCitizenInput) (*domain.Citizen, error) {
	name := strings.TrimSpace(in.Name)
	phone := strings.TrimSpace(in.Phone)
	doc, ok := domain.NormalizeDocumentID(in.DocumentID)
	switch {
	case phone == "":
		return nil, apperrors.NewValidationError("telefone não informado", fieldDetail(domain.FieldPhone))
	case name == "":
		return nil, apperrors.NewValidationError("nome não informado", fieldDetail(domain.FieldName))
	case !ok:
		return nil, apperrors.NewValidationError("CPF deve ter 11 dígitos", fieldDetail(domain.FieldDocumentID))
	}

	citizen := &domain.Citizen{
		Phone:      phone,
		Name:       name,
		DocumentID: doc,
		Email:      in.Email,
		Address:    strings.TrimSpace(in.Address),
	}
	err := withTimeout(ctx, s.storageTimeout, func(ctx context.Context) error {
		return s.citizens.Upsert(ctx, citizen)
	})
	if err != nil {
		s.logger.Error("citizen upsert failed", zap.String("phone", phone), zap.Error(err))
		return nil, apperrors.NewPersistenceError("upsert citizen", err)
	}
	s.logger.Info("citizen registered", zap.String("citizen_id", citizen.ID))
	return citizen, nil
}
