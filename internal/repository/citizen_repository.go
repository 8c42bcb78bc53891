package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cidadao-ai/citizen-intake/internal/domain"
)

// CitizenRepository persists registered citizens. Lookups that find nothing
// return pgx.ErrNoRows.
type CitizenRepository interface {
	GetByPhone(ctx context.Context, phone string) (*domain.Citizen, error)
	GetByID(ctx context.Context, id string) (*domain.Citizen, error)
	Upsert(ctx context.Context, citizen *domain.Citizen) error
}

type citizenRepository struct {
	pool     *pgxpool.Pool
	tenantID int
}

// NewCitizenRepository instantiates the repository scoped to one tenant.
func NewCitizenRepository(pool *pgxpool.Pool, tenantID int) CitizenRepository {
	return &citizenRepository{pool: pool, tenantID: tenantID}
}

const citizenColumns = `id, phone, name, document_id, email, address, created_at, updated_at`

func (r *citizenRepository) GetByPhone(ctx context.Context, phone string) (*domain.Citizen, error) {
	query := `SELECT ` + citizenColumns + ` FROM citizens WHERE tenant_id=$1 AND phone=$2`
	return r.fetchSingle(ctx, query, r.tenantID, phone)
}

func (r *citizenRepository) GetByID(ctx context.Context, id string) (*domain.Citizen, error) {
	query := `SELECT ` + citizenColumns + ` FROM citizens WHERE tenant_id=$1 AND id=$2`
	return r.fetchSingle(ctx, query, r.tenantID, id)
}

// Upsert inserts a citizen or refreshes the registration of the same phone.
func (r *citizenRepository) Upsert(ctx context.Context, citizen *domain.Citizen) error {
	const query = `
        INSERT INTO citizens (tenant_id, phone, name, document_id, email, address)
        VALUES ($1,$2,$3,$4,$5,$6)
        ON CONFLICT (tenant_id, phone) DO UPDATE
            SET name=EXCLUDED.name, document_id=EXCLUDED.document_id, email=EXCLUDED.email,
                address=EXCLUDED.address, updated_at=NOW()
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		r.tenantID,
		citizen.Phone,
		citizen.Name,
		citizen.DocumentID,
		citizen.Email,
		citizen.Address,
	).Scan(&citizen.ID, &citizen.CreatedAt, &citizen.UpdatedAt)
}

func (r *citizenRepository) fetchSingle(ctx context.Context, query string, args ...any) (*domain.Citizen, error) {
	var c domain.Citizen
	if err := r.pool.QueryRow(ctx, query, args...).Scan(
		&c.ID,
		&c.Phone,
		&c.Name,
		&c.DocumentID,
		&c.Email,
		&c.Address,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &c, nil
}
