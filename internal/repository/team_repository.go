package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cidadao-ai/citizen-intake/internal/domain"
)

// TeamRepository reads the responsible departments.
type TeamRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Team, error)
	ListActive(ctx context.Context) ([]domain.Team, error)
}

type teamRepository struct {
	pool     *pgxpool.Pool
	tenantID int
}

// NewTeamRepository constructs repository.
func NewTeamRepository(pool *pgxpool.Pool, tenantID int) TeamRepository {
	return &teamRepository{pool: pool, tenantID: tenantID}
}

func (r *teamRepository) GetByID(ctx context.Context, id string) (*domain.Team, error) {
	const query = `
        SELECT id, name, protocol_prefix, is_active, created_at, updated_at
        FROM teams WHERE tenant_id=$1 AND id=$2`
	var team domain.Team
	if err := r.pool.QueryRow(ctx, query, r.tenantID, id).Scan(
		&team.ID,
		&team.Name,
		&team.ProtocolPrefix,
		&team.IsActive,
		&team.CreatedAt,
		&team.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &team, nil
}

func (r *teamRepository) ListActive(ctx context.Context) ([]domain.Team, error) {
	const query = `
        SELECT id, name, protocol_prefix, is_active, created_at, updated_at
        FROM teams WHERE tenant_id=$1 AND is_active=TRUE ORDER BY name`
	rows, err := r.pool.Query(ctx, query, r.tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Team
	for rows.Next() {
		var team domain.Team
		if err := rows.Scan(&team.ID, &team.Name, &team.ProtocolPrefix, &team.IsActive, &team.CreatedAt, &team.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, team)
	}
	return result, rows.Err()
}
