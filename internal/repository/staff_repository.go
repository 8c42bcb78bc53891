package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cidadao-ai/citizen-intake/internal/domain"
)

// StaffRepository handles persistence for staff members.
type StaffRepository interface {
	Create(ctx context.Context, staff *domain.StaffMember) error
	GetByID(ctx context.Context, id string) (*domain.StaffMember, error)
	GetByEmail(ctx context.Context, email string) (*domain.StaffMember, error)
}

type staffRepository struct {
	pool     *pgxpool.Pool
	tenantID int
}

// NewStaffRepository instantiates the repository.
func NewStaffRepository(pool *pgxpool.Pool, tenantID int) StaffRepository {
	return &staffRepository{pool: pool, tenantID: tenantID}
}

func (r *staffRepository) Create(ctx context.Context, staff *domain.StaffMember) error {
	const query = `
        INSERT INTO staff_members (tenant_id, name, email, password_hash, role, team_id, active_flag)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id, created_at, updated_at`

	return r.pool.QueryRow(ctx, query,
		r.tenantID,
		staff.Name,
		staff.Email,
		staff.PasswordHash,
		staff.Role,
		staff.TeamID,
		staff.Active,
	).Scan(&staff.ID, &staff.CreatedAt, &staff.UpdatedAt)
}

func (r *staffRepository) GetByID(ctx context.Context, id string) (*domain.StaffMember, error) {
	const query = `
        SELECT id, name, email, password_hash, role, team_id, active_flag, created_at, updated_at
        FROM staff_members WHERE tenant_id=$1 AND id=$2`
	return r.fetchSingle(ctx, query, id)
}

func (r *staffRepository) GetByEmail(ctx context.Context, email string) (*domain.StaffMember, error) {
	const query = `
        SELECT id, name, email, password_hash, role, team_id, active_flag, created_at, updated_at
        FROM staff_members WHERE tenant_id=$1 AND email=$2`
	return r.fetchSingle(ctx, query, email)
}

func (r *staffRepository) fetchSingle(ctx context.Context, query, arg string) (*domain.StaffMember, error) {
	var staff domain.StaffMember
	if err := r.pool.QueryRow(ctx, query, r.tenantID, arg).Scan(
		&staff.ID,
		&staff.Name,
		&staff.Email,
		&staff.PasswordHash,
		&staff.Role,
		&staff.TeamID,
		&staff.Active,
		&staff.CreatedAt,
		&staff.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &staff, nil
}
