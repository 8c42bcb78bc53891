package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/cidadao-ai/citizen-intake/internal/catalog"
	"github.com/cidadao-ai/citizen-intake/internal/domain"
	"github.com/cidadao-ai/citizen-intake/internal/events"
	"github.com/cidadao-ai/citizen-intake/internal/observability"
	"github.com/cidadao-ai/citizen-intake/internal/repository"
	apperrors "github.com/cidadao-ai/citizen-intake/pkg/util/errorutil"
)

const (
	titleMaxWords = 8
	titleMaxLen   = 100
	untitled      = "Chamado sem título"
	// protocolAttempts bounds regeneration after a protocol collision.
	protocolAttempts = 3
)

// TicketService issues tickets and protocols and drives their status.
type TicketService struct {
	tickets        repository.TicketRepository
	citizens       repository.CitizenRepository
	teams          repository.TeamRepository
	history        repository.TicketHistoryRepository
	catalog        *catalog.Catalog
	dispatcher     events.Dispatcher
	logger         *zap.Logger
	metrics        *observability.Metrics
	now            func() time.Time
	storageTimeout time.Duration
	defaultSource  string
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo     repository.TicketRepository
	CitizenRepo    repository.CitizenRepository
	TeamRepo       repository.TeamRepository
	HistoryRepo    repository.TicketHistoryRepository
	Catalog        *catalog.Catalog
	Dispatcher     events.Dispatcher
	Logger         *zap.Logger
	Metrics        *observability.Metrics
	Clock          func() time.Time
	StorageTimeout time.Duration
	DefaultSource  string
}

// CitizenRef points at a registered citizen by id or, failing that, phone.
type CitizenRef struct {
	ID    string
	Phone string
}

func (r CitizenRef) String() string {
	if r.ID != "" {
		return r.ID
	}
	return r.Phone
}

// CreateTicketInput describes a ticket to issue. A nil or unclassified
// Classification yields the general defaults.
type CreateTicketInput struct {
	Citizen        CitizenRef
	Title          string
	Description    string
	Address        string
	Classification *domain.ClassificationResult
	Source         string
}

// TicketStaffFilter describes staff listing filters.
type TicketStaffFilter struct {
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

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	s := &TicketService{
		tickets:        deps.TicketRepo,
		citizens:       deps.CitizenRepo,
		teams:          deps.TeamRepo,
		history:        deps.HistoryRepo,
		catalog:        deps.Catalog,
		dispatcher:     deps.Dispatcher,
		logger:         observability.Named(deps.Logger, "tickets"),
		metrics:        deps.Metrics,
		now:            deps.Clock,
		storageTimeout: deps.StorageTimeout,
		defaultSource:  deps.DefaultSource,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.catalog == nil {
		s.catalog = catalog.Default()
	}
	if s.defaultSource == "" {
		s.defaultSource = domain.SourceWhatsApp
	}
	return s
}

// CreateTicket resolves routing from the category, generates a protocol
// and persists an open ticket whose SLA deadline is creation time plus the
// category SLA. Fails with CitizenNotFound or PersistenceError; nothing is
// retried except a protocol collision.
func (s *TicketService) CreateTicket(ctx context.Context, in CreateTicketInput) (*domain.Ticket, error) {
	citizen, err := s.resolveCitizen(ctx, in.Citizen)
	if err != nil {
		return nil, err
	}

	route := s.route(in.Classification)
	createdAt := s.now()
	deadline := createdAt.Add(time.Duration(route.slaHours) * time.Hour)

	source := strings.TrimSpace(in.Source)
	if source == "" {
		source = s.defaultSource
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = GenerateTitle(in.Description)
	}

	ticket := &domain.Ticket{
		ID:           uuid.NewString(),
		CitizenID:    citizen.ID,
		CategoryCode: route.category,
		TeamID:       route.teamID,
		TeamName:     route.teamName,
		Title:        title,
		Description:  strings.TrimSpace(in.Description),
		Address:      strings.TrimSpace(in.Address),
		Priority:     route.priority,
		SLADeadline:  &deadline,
		Status:       domain.TicketStatusOpen,
		Source:       source,
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
	}

	for attempt := 1; ; attempt++ {
		ticket.Protocol = s.generateProtocol(ctx, route.teamID, createdAt)
		err = s.storage(ctx, func(ctx context.Context) error { return s.tickets.Create(ctx, ticket) })
		if !errors.Is(err, repository.ErrDuplicateProtocol) || attempt == protocolAttempts {
			break
		}
		s.logger.Warn("protocol collision, regenerating", zap.String("protocol", ticket.Protocol), zap.Int("attempt", attempt))
	}
	if err != nil {
		s.logger.Error("ticket insert failed", zap.String("citizen_id", citizen.ID), zap.Error(err))
		return nil, apperrors.NewPersistenceError("insert ticket", err)
	}

	s.recordHistory(ctx, &domain.TicketHistory{
		TicketID:      ticket.ID,
		ChangedByType: domain.SubjectTypeSystem,
		ChangeType:    domain.ChangeTypeCreated,
		Content:       fmt.Sprintf("Chamado criado automaticamente via %s", source),
		NewValue:      map[string]any{"status": ticket.Status, "protocol": ticket.Protocol},
	})

	category := ""
	if ticket.CategoryCode != nil {
		category = *ticket.CategoryCode
	}
	s.metrics.RecordTicketCreated(category, source)
	s.logger.Info("ticket created",
		zap.String("protocol", ticket.Protocol),
		zap.String("category", category),
		zap.String("team", ticket.TeamName),
		zap.Time("sla_deadline", deadline))

	s.publish(ctx, events.New(events.EventTicketCreated, ticket.ID, systemActor(), createdAt, events.TicketCreatedPayload{
		Protocol:     ticket.Protocol,
		CategoryCode: ticket.CategoryCode,
		TeamName:     ticket.TeamName,
		Priority:     ticket.Priority,
		Title:        ticket.Title,
		Source:       ticket.Source,
		SLADeadline:  ticket.SLADeadline,
	}))
	return ticket, nil
}

type routing struct {
	category *string
	teamID   *string
	teamName string
	priority domain.Priority
	slaHours int
}

func (s *TicketService) route(res *domain.ClassificationResult) routing {
	out := routing{
		teamName: domain.DefaultTeamName,
		priority: domain.DefaultPriority,
		slaHours: domain.DefaultSLAHours,
	}
	if res == nil || !res.Classified() {
		return out
	}
	if cat, ok := s.catalog.Get(res.Category); ok {
		code := cat.Code
		out.category = &code
		out.teamID = cat.TeamID
		out.priority = cat.Priority
		out.slaHours = cat.SLAHours
		if cat.TeamName != "" {
			out.teamName = cat.TeamName
		}
		return out
	}
	// Category unknown to this catalog: keep what the classifier decorated.
	code := res.Category
	out.category = &code
	if res.Priority.Valid() {
		out.priority = res.Priority
	}
	if res.SLAHours > 0 {
		out.slaHours = res.SLAHours
	}
	if res.TeamName != "" {
		out.teamName = res.TeamName
	}
	return out
}

func (s *TicketService) resolveCitizen(ctx context.Context, ref CitizenRef) (*domain.Citizen, error) {
	if ref.ID == "" && ref.Phone == "" {
		return nil, apperrors.NewCitizenNotFound("")
	}
	var citizen *domain.Citizen
	err := s.storage(ctx, func(ctx context.Context) error {
		var err error
		if ref.ID != "" {
			citizen, err = s.citizens.GetByID(ctx, ref.ID)
		} else {
			citizen, err = s.citizens.GetByPhone(ctx, ref.Phone)
		}
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NewCitizenNotFound(ref.String())
	}
	if err != nil {
		s.logger.Error("citizen lookup failed", zap.String("citizen", ref.String()), zap.Error(err))
		return nil, apperrors.NewPersistenceError("get citizen", err)
	}
	return citizen, nil
}

// generateProtocol never fails: a team goes through the team sequence, no
// team through GERAL-<year>-<seq>, and any error falls back to a timestamp.
func (s *TicketService) generateProtocol(ctx context.Context, teamID *string, at time.Time) string {
	if teamID != nil && s.teamActive(ctx, *teamID) {
		var protocol string
		err := s.storage(ctx, func(ctx context.Context) error {
			var err error
			protocol, err = s.tickets.NextTeamProtocol(ctx, *teamID)
			return err
		})
		if err == nil && protocol != "" {
			return protocol
		}
		s.logger.Error("team protocol generation failed", zap.String("team_id", *teamID), zap.Error(err))
		return FallbackProtocol(at)
	}

	var seq int
	err := s.storage(ctx, func(ctx context.Context) error {
		var err error
		seq, err = s.tickets.NextGeneralSequence(ctx, at.Year())
		return err
	})
	if err != nil {
		s.logger.Error("general protocol sequence failed", zap.Error(err))
		return FallbackProtocol(at)
	}
	return GeneralProtocol(at.Year(), seq)
}

func (s *TicketService) teamActive(ctx context.Context, teamID string) bool {
	if s.teams == nil {
		return true
	}
	var team *domain.Team
	err := s.storage(ctx, func(ctx context.Context) error {
		var err error
		team, err = s.teams.GetByID(ctx, teamID)
		return err
	})
	if err != nil {
		s.logger.Warn("team lookup failed, using general protocol", zap.String("team_id", teamID), zap.Error(err))
		return false
	}
	return team.IsActive
}

// GeneralProtocol formats the protocol of a ticket without a team.
func GeneralProtocol(year, seq int) string {
	return fmt.Sprintf("GERAL-%d-%03d", year, seq)
}

// FallbackProtocol is used when no sequence could be derived.
func FallbackProtocol(at time.Time) string {
	return "CHAMADO-" + at.Format("20060102150405")
}

// GenerateTitle keeps the first eight words of description, capped at 100
// characters.
func GenerateTitle(description string) string {
	words := strings.Fields(description)
	if len(words) == 0 {
		return untitled
	}
	if len(words) > titleMaxWords {
		words = words[:titleMaxWords]
	}
	title := []rune(strings.Join(words, " "))
	if len(title) > titleMaxLen {
		return string(title[:titleMaxLen-3]) + "..."
	}
	return string(title)
}

// UpdateStatus moves a ticket forward. resolved_at is set exactly when the
// new status is resolved. Technicians may only touch their team's tickets.
func (s *TicketService) UpdateStatus(ctx context.Context, staff *domain.StaffMember, protocol string, next domain.TicketStatus, comment string) (*domain.Ticket, error) {
	if !domain.ValidStatus(next) {
		return nil, apperrors.NewValidationError("invalid status", map[string]any{"status": next})
	}
	ticket, err := s.GetByProtocol(ctx, protocol)
	if err != nil {
		return nil, err
	}
	if err := authorizeStaff(staff, ticket); err != nil {
		return nil, err
	}

	old := ticket.Status
	if !domain.CanTransition(old, next) {
		return nil, apperrors.NewConflict("invalid status transition", map[string]any{"from": old, "to": next})
	}

	now := s.now()
	ticket.Status = next
	ticket.UpdatedAt = now
	ticket.ResolvedAt = nil
	if next == domain.TicketStatusResolved {
		ticket.ResolvedAt = &now
	}

	if err := s.storage(ctx, func(ctx context.Context) error { return s.tickets.UpdateStatus(ctx, ticket) }); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"protocol": protocol})
		}
		return nil, apperrors.NewPersistenceError("update ticket status", err)
	}

	actor := staffActor(staff)
	s.recordHistory(ctx, &domain.TicketHistory{
		TicketID:      ticket.ID,
		ChangedByType: actor.Type,
		ChangedByID:   actor.ID,
		ChangeType:    domain.ChangeTypeStatus,
		Content:       comment,
		OldValue:      map[string]any{"status": old},
		NewValue:      map[string]any{"status": next},
	})
	s.publish(ctx, events.New(events.EventTicketStatusChanged, ticket.ID, actor, now, events.TicketStatusChangedPayload{
		Protocol:  ticket.Protocol,
		OldStatus: old,
		NewStatus: next,
		Comment:   comment,
	}))
	return ticket, nil
}

// GetByProtocol fetches a ticket by its protocol code.
func (s *TicketService) GetByProtocol(ctx context.Context, protocol string) (*domain.Ticket, error) {
	protocol = strings.ToUpper(strings.TrimSpace(protocol))
	var ticket *domain.Ticket
	err := s.storage(ctx, func(ctx context.Context) error {
		var err error
		ticket, err = s.tickets.GetByProtocol(ctx, protocol)
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"protocol": protocol})
	}
	if err != nil {
		return nil, apperrors.NewPersistenceError("get ticket", err)
	}
	return ticket, nil
}

// LatestForCitizen returns the most recent ticket opened from phone.
func (s *TicketService) LatestForCitizen(ctx context.Context, phone string) (*domain.Ticket, error) {
	var ticket *domain.Ticket
	err := s.storage(ctx, func(ctx context.Context) error {
		var err error
		ticket, err = s.tickets.LatestByCitizenPhone(ctx, phone)
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"phone": phone})
	}
	if err != nil {
		return nil, apperrors.NewPersistenceError("get latest ticket", err)
	}
	return ticket, nil
}

// ListStaffTickets returns tickets visible to staff.
func (s *TicketService) ListStaffTickets(ctx context.Context, staff *domain.StaffMember, filter TicketStaffFilter) ([]domain.Ticket, error) {
	repoFilter := repository.TicketFilter{
		TeamID:       filter.TeamID,
		CategoryCode: filter.CategoryCode,
		Statuses:     filter.Statuses,
		Priorities:   filter.Priorities,
		SearchTerm:   filter.SearchTerm,
		CreatedFrom:  filter.CreatedFrom,
		CreatedTo:    filter.CreatedTo,
		Limit:        filter.Limit,
		Offset:       filter.Offset,
	}
	applyStaffScope(&repoFilter, staff)

	var tickets []domain.Ticket
	err := s.storage(ctx, func(ctx context.Context) error {
		var err error
		tickets, err = s.tickets.List(ctx, repoFilter)
		return err
	})
	if err != nil {
		return nil, apperrors.NewPersistenceError("list tickets", err)
	}
	return tickets, nil
}

// History returns the interaction entries of a ticket.
func (s *TicketService) History(ctx context.Context, staff *domain.StaffMember, protocol string) (*domain.Ticket, []domain.TicketHistory, error) {
	ticket, err := s.GetByProtocol(ctx, protocol)
	if err != nil {
		return nil, nil, err
	}
	if err := authorizeStaff(staff, ticket); err != nil {
		return nil, nil, err
	}
	var entries []domain.TicketHistory
	err = s.storage(ctx, func(ctx context.Context) error {
		var err error
		entries, err = s.history.ListByTicket(ctx, ticket.ID)
		return err
	})
	if err != nil {
		return nil, nil, apperrors.NewPersistenceError("list ticket history", err)
	}
	return ticket, entries, nil
}

func applyStaffScope(filter *repository.TicketFilter, staff *domain.StaffMember) {
	if staff == nil || staff.Role != domain.StaffRoleTechnician {
		return
	}
	filter.TeamID = staff.TeamID
}

func authorizeStaff(staff *domain.StaffMember, ticket *domain.Ticket) error {
	if staff == nil || staff.Role != domain.StaffRoleTechnician {
		return nil
	}
	if staff.TeamID == nil || ticket.TeamID == nil || *staff.TeamID != *ticket.TeamID {
		return apperrors.NewForbidden("ticket belongs to another team")
	}
	return nil
}

func (s *TicketService) recordHistory(ctx context.Context, entry *domain.TicketHistory) {
	if s.history == nil {
		return
	}
	err := s.storage(ctx, func(ctx context.Context) error { return s.history.Create(ctx, entry) })
	if err != nil {
		s.logger.Warn("history entry not recorded", zap.String("ticket_id", entry.TicketID), zap.Error(err))
	}
}

func (s *TicketService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	s.dispatcher.Publish(ctx, event)
}

// storage runs fn under the storage timeout.
func (s *TicketService) storage(ctx context.Context, fn func(context.Context) error) error {
	return withTimeout(ctx, s.storageTimeout, fn)
}

func withTimeout(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(ctx)
}

func systemActor() events.Actor {
	return events.Actor{Type: domain.SubjectTypeSystem}
}

func staffActor(staff *domain.StaffMember) events.Actor {
	if staff == nil {
		return systemActor()
	}
	id := staff.ID
	return events.Actor{Type: domain.SubjectTypeStaff, ID: &id}
}
