package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cidadao-ai/citizen-intake/internal/domain"
)

// TicketHistoryRepository is the append-only audit trail of a ticket.
type TicketHistoryRepository interface {
	Create(ctx context.Context, history *domain.TicketHistory) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketHistory, error)
}

type ticketHistoryRepository struct {
	pool     *pgxpool.Pool
	tenantID int
}

// NewTicketHistoryRepository scopes history reads to the tenant owning the ticket.
func NewTicketHistoryRepository(pool *pgxpool.Pool, tenantID int) TicketHistoryRepository {
	return &ticketHistoryRepository{pool: pool, tenantID: tenantID}
}

func (r *ticketHistoryRepository) Create(ctx context.Context, entry *domain.TicketHistory) error {
	const query = `
        INSERT INTO ticket_history (ticket_id, changed_by_type, changed_by_id, change_type, content, old_value, new_value)
        SELECT t.id, $3, $4, $5, $6, $7, $8 FROM tickets t WHERE t.id=$1 AND t.tenant_id=$2
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		entry.TicketID, r.tenantID,
		entry.ChangedByType, entry.ChangedByID, entry.ChangeType,
		entry.Content, entry.OldValue, entry.NewValue,
	).Scan(&entry.ID, &entry.CreatedAt)
}

// ListByTicket returns entries oldest first. An unknown ticket yields an empty slice.
func (r *ticketHistoryRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketHistory, error) {
	const query = `
        SELECT h.id, h.ticket_id, h.changed_by_type, h.changed_by_id, h.change_type, h.content, h.old_value, h.new_value, h.created_at
        FROM ticket_history h
        JOIN tickets t ON t.id = h.ticket_id
        WHERE h.ticket_id=$1 AND t.tenant_id=$2
        ORDER BY h.created_at ASC, h.id ASC`
	rows, err := r.pool.Query(ctx, query, ticketID, r.tenantID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.TicketHistory, error) {
		var h domain.TicketHistory
		err := row.Scan(&h.ID, &h.TicketID, &h.ChangedByType, &h.ChangedByID, &h.ChangeType,
			&h.Content, &h.OldValue, &h.NewValue, &h.CreatedAt)
		return h, err
	})
}
