package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cidadao-ai/citizen-intake/internal/domain"
)

// CategoryRepository lists the category definitions configured for a tenant.
type CategoryRepository interface {
	ListActive(ctx context.Context) ([]domain.Category, error)
}

type categoryRepository struct {
	pool     *pgxpool.Pool
	tenantID int
}

// NewCategoryRepository constructs repository.
func NewCategoryRepository(pool *pgxpool.Pool, tenantID int) CategoryRepository {
	return &categoryRepository{pool: pool, tenantID: tenantID}
}

// ListActive returns categories in configured order, which is also the
// keyword tie-break order.
func (r *categoryRepository) ListActive(ctx context.Context) ([]domain.Category, error) {
	const query = `
        SELECT c.code, c.name, c.description, c.keywords, c.priority, c.sla_hours, c.team_id, COALESCE(t.name, '')
        FROM categories c LEFT JOIN teams t ON t.id = c.team_id
        WHERE c.tenant_id=$1 AND c.is_active=TRUE
        ORDER BY c.position, c.code`
	rows, err := r.pool.Query(ctx, query, r.tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Category
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(
			&c.Code,
			&c.Name,
			&c.Description,
			&c.Keywords,
			&c.Priority,
			&c.SLAHours,
			&c.TeamID,
			&c.TeamName,
		); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}
