package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"

	"github.com/cidadao-ai/citizen-intake/internal/domain"
	"github.com/cidadao-ai/citizen-intake/internal/events"
	"github.com/cidadao-ai/citizen-intake/internal/repository"
)

type fakeTicketRepo struct {
	mu         sync.Mutex
	byProtocol map[string]*domain.Ticket
	order      []string
	generalMax map[int]int
	teamSeq    map[string]int

	createErr   error
	generalErr  error
	teamErr     error
	block       bool
	duplicates  int
	teamPrefix  string
	updateCalls int
}

func newFakeTicketRepo() *fakeTicketRepo {
	return &fakeTicketRepo{
		byProtocol: map[string]*domain.Ticket{},
		generalMax: map[int]int{},
		teamSeq:    map[string]int{},
		teamPrefix: "INFRA",
	}
}

func (r *fakeTicketRepo) Create(ctx context.Context, t *domain.Ticket) error {
	if r.block {
		<-ctx.Done()
		return ctx.Err()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	if r.duplicates > 0 {
		r.duplicates--
		return repository.ErrDuplicateProtocol
	}
	if _, ok := r.byProtocol[t.Protocol]; ok {
		return repository.ErrDuplicateProtocol
	}
	stored := *t
	r.byProtocol[t.Protocol] = &stored
	r.order = append(r.order, t.Protocol)
	if parts := strings.Split(t.Protocol, "-"); len(parts) == 3 && parts[0] == "GERAL" {
		year, _ := strconv.Atoi(parts[1])
		seq, _ := strconv.Atoi(parts[2])
		if seq > r.generalMax[year] {
			r.generalMax[year] = seq
		}
	}
	return nil
}

func (r *fakeTicketRepo) UpdateStatus(_ context.Context, t *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updateCalls++
	stored, ok := r.byProtocol[t.Protocol]
	if !ok {
		return pgx.ErrNoRows
	}
	stored.Status = t.Status
	stored.ResolvedAt = t.ResolvedAt
	stored.UpdatedAt = t.UpdatedAt
	return nil
}

func (r *fakeTicketRepo) GetByProtocol(_ context.Context, protocol string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byProtocol[protocol]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	out := *t
	return &out, nil
}

func (r *fakeTicketRepo) LatestByCitizenPhone(_ context.Context, phone string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.order) - 1; i >= 0; i-- {
		t := r.byProtocol[r.order[i]]
		if t.CitizenID == "cid-"+phone {
			out := *t
			return &out, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeTicketRepo) List(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Ticket
	for _, p := range r.order {
		t := r.byProtocol[p]
		if filter.TeamID != nil && (t.TeamID == nil || *t.TeamID != *filter.TeamID) {
			continue
		}
		out = append(out, *t)
	}
	return out, nil
}

func (r *fakeTicketRepo) NextGeneralSequence(_ context.Context, year int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.generalErr != nil {
		return 0, r.generalErr
	}
	return r.generalMax[year] + 1, nil
}

func (r *fakeTicketRepo) NextTeamProtocol(_ context.Context, teamID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.teamErr != nil {
		return "", r.teamErr
	}
	r.teamSeq[teamID]++
	return fmt.Sprintf("%s-2024-%05d", r.teamPrefix, r.teamSeq[teamID]), nil
}

type fakeCitizenRepo struct {
	mu     sync.Mutex
	byID   map[string]*domain.Citizen
	err    error
	upsert int
}

func newFakeCitizenRepo(citizens ...domain.Citizen) *fakeCitizenRepo {
	r := &fakeCitizenRepo{byID: map[string]*domain.Citizen{}}
	for i := range citizens {
		c := citizens[i]
		r.byID[c.ID] = &c
	}
	return r
}

func (r *fakeCitizenRepo) GetByPhone(_ context.Context, phone string) (*domain.Citizen, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	for _, c := range r.byID {
		if c.Phone == phone {
			out := *c
			return &out, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeCitizenRepo) GetByID(_ context.Context, id string) (*domain.Citizen, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	c, ok := r.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	out := *c
	return &out, nil
}

func (r *fakeCitizenRepo) Upsert(_ context.Context, c *domain.Citizen) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.upsert++
	c.ID = "cid-" + c.Phone
	stored := *c
	r.byID[c.ID] = &stored
	return nil
}

type fakeTeamRepo struct {
	teams map[string]domain.Team
}

func (r fakeTeamRepo) GetByID(_ context.Context, id string) (*domain.Team, error) {
	t, ok := r.teams[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &t, nil
}

func (r fakeTeamRepo) ListActive(context.Context) ([]domain.Team, error) {
	var out []domain.Team
	for _, t := range r.teams {
		if t.IsActive {
			out = append(out, t)
		}
	}
	return out, nil
}

type fakeHistoryRepo struct {
	mu      sync.Mutex
	entries []domain.TicketHistory
	err     error
}

func (r *fakeHistoryRepo) Create(_ context.Context, h *domain.TicketHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.entries = append(r.entries, *h)
	return nil
}

func (r *fakeHistoryRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.TicketHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.TicketHistory
	for _, h := range r.entries {
		if h.TicketID == ticketID {
			out = append(out, h)
		}
	}
	return out, nil
}

type recordingDispatcher struct {
	mu        sync.Mutex
	published []events.Event
}

func (d *recordingDispatcher) Publish(_ context.Context, e events.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.published = append(d.published, e)
}

func (d *recordingDispatcher) Subscribe(events.EventType, events.EventHandler) {}

type fakeStaffRepo struct {
	byEmail map[string]*domain.StaffMember
	created int
}

func (r *fakeStaffRepo) Create(_ context.Context, s *domain.StaffMember) error {
	r.created++
	s.ID = fmt.Sprintf("staff-%d", r.created)
	stored := *s
	r.byEmail[s.Email] = &stored
	return nil
}

func (r *fakeStaffRepo) GetByID(_ context.Context, id string) (*domain.StaffMember, error) {
	for _, s := range r.byEmail {
		if s.ID == id {
			out := *s
			return &out, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeStaffRepo) GetByEmail(_ context.Context, email string) (*domain.StaffMember, error) {
	s, ok := r.byEmail[email]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	out := *s
	return &out, nil
}
