package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cidadao-ai/citizen-intake/internal/domain"
)

// ErrDuplicateProtocol is returned by Create when the protocol is taken.
var ErrDuplicateProtocol = errors.New("ticket protocol already exists")

// TicketFilter captures staff search parameters.
type TicketFilter struct {
	CitizenID    *string
	TeamID       *string
	CategoryCode *string
	Statuses     []domain.TicketStatus
	Priorities   []domain.Priority
	SearchTerm   *string
	CreatedFrom  *time.Time
	CreatedTo    *time.Time
	Limit        int
	Offset       int
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	UpdateStatus(ctx context.Context, ticket *domain.Ticket) error
	GetByProtocol(ctx context.Context, protocol string) (*domain.Ticket, error)
	LatestByCitizenPhone(ctx context.Context, phone string) (*domain.Ticket, error)
	List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	// NextGeneralSequence returns MAX+1 over the GERAL-<year>- protocols.
	NextGeneralSequence(ctx context.Context, year int) (int, error)
	// NextTeamProtocol delegates to the team-scoped generator in the database.
	NextTeamProtocol(ctx context.Context, teamID string) (string, error)
}

type ticketRepository struct {
	pool     *pgxpool.Pool
	tenantID int
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool, tenantID int) TicketRepository {
	return &ticketRepository{pool: pool, tenantID: tenantID}
}

const ticketColumns = `t.id, t.protocol, t.citizen_id, t.category_code, t.team_id, t.team_name, t.title,
               t.description, t.address, t.priority, t.sla_deadline, t.status, t.source,
               t.created_at, t.updated_at, t.resolved_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (id, tenant_id, protocol, citizen_id, category_code, team_id, team_name, title,
            description, address, priority, sla_deadline, status, source, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$15)`
	_, err := r.pool.Exec(ctx, query,
		ticket.ID,
		r.tenantID,
		ticket.Protocol,
		ticket.CitizenID,
		ticket.CategoryCode,
		ticket.TeamID,
		ticket.TeamName,
		ticket.Title,
		ticket.Description,
		ticket.Address,
		ticket.Priority,
		ticket.SLADeadline,
		ticket.Status,
		ticket.Source,
		ticket.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateProtocol
	}
	if err != nil {
		return err
	}
	ticket.UpdatedAt = ticket.CreatedAt
	return nil
}

func (r *ticketRepository) UpdateStatus(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET status=$1, resolved_at=$2, updated_at=$3
        WHERE tenant_id=$4 AND id=$5`
	cmd, err := r.pool.Exec(ctx, query,
		ticket.Status,
		ticket.ResolvedAt,
		ticket.UpdatedAt,
		r.tenantID,
		ticket.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) GetByProtocol(ctx context.Context, protocol string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets t WHERE t.tenant_id=$1 AND t.protocol=$2`
	return r.fetchSingle(ctx, query, r.tenantID, protocol)
}

func (r *ticketRepository) LatestByCitizenPhone(ctx context.Context, phone string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + `
        FROM tickets t JOIN citizens c ON c.id = t.citizen_id
        WHERE t.tenant_id=$1 AND c.phone=$2
        ORDER BY t.created_at DESC LIMIT 1`
	return r.fetchSingle(ctx, query, r.tenantID, phone)
}

func (r *ticketRepository) NextGeneralSequence(ctx context.Context, year int) (int, error) {
	const query = `
        SELECT COALESCE(MAX(split_part(protocol, '-', 3)::INTEGER), 0) + 1
        FROM tickets
        WHERE tenant_id=$1 AND protocol ~ ('^GERAL-' || $2::TEXT || '-[0-9]+$')`
	var next int
	if err := r.pool.QueryRow(ctx, query, r.tenantID, year).Scan(&next); err != nil {
		return 0, err
	}
	return next, nil
}

func (r *ticketRepository) NextTeamProtocol(ctx context.Context, teamID string) (string, error) {
	var protocol string
	if err := r.pool.QueryRow(ctx, `SELECT generate_ticket_protocol($1)`, teamID).Scan(&protocol); err != nil {
		return "", err
	}
	return protocol, nil
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, args ...any) (*domain.Ticket, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	tickets, err := scanTickets(rows)
	if err != nil {
		return nil, err
	}
	if len(tickets) == 0 {
		return nil, pgx.ErrNoRows
	}
	return &tickets[0], nil
}

func (r *ticketRepository) List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	base := `SELECT ` + ticketColumns + ` FROM tickets t`
	args := []any{r.tenantID}
	clauses := []string{"t.tenant_id=$1"}

	if filter.CitizenID != nil {
		args = append(args, *filter.CitizenID)
		clauses = append(clauses, fmt.Sprintf("t.citizen_id=$%d", len(args)))
	}
	if filter.TeamID != nil {
		args = append(args, *filter.TeamID)
		clauses = append(clauses, fmt.Sprintf("t.team_id=$%d", len(args)))
	}
	if filter.CategoryCode != nil {
		args = append(args, *filter.CategoryCode)
		clauses = append(clauses, fmt.Sprintf("t.category_code=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("t.status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Priorities) > 0 {
		placeholders := make([]string, len(filter.Priorities))
		for i, pr := range filter.Priorities {
			args = append(args, pr)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("t.priority IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		clauses = append(clauses, fmt.Sprintf("t.created_at >= $%d", len(args)))
	}
	if filter.CreatedTo != nil {
		args = append(args, *filter.CreatedTo)
		clauses = append(clauses, fmt.Sprintf("t.created_at <= $%d", len(args)))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		search := "%" + strings.ToLower(strings.TrimSpace(*filter.SearchTerm)) + "%"
		args = append(args, search)
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf("(LOWER(t.title) LIKE %s OR LOWER(t.description) LIKE %s)", placeholder, placeholder))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY t.created_at DESC LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := rows.Scan(
			&ticket.ID,
			&ticket.Protocol,
			&ticket.CitizenID,
			&ticket.CategoryCode,
			&ticket.TeamID,
			&ticket.TeamName,
			&ticket.Title,
			&ticket.Description,
			&ticket.Address,
			&ticket.Priority,
			&ticket.SLADeadline,
			&ticket.Status,
			&ticket.Source,
			&ticket.CreatedAt,
			&ticket.UpdatedAt,
			&ticket.ResolvedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}
