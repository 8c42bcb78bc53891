package intake

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cidadao-ai/citizen-intake/internal/domain"
	"github.com/cidadao-ai/citizen-intake/internal/repository"
	"github.com/cidadao-ai/citizen-intake/internal/service"
	apperrors "github.com/cidadao-ai/citizen-intake/pkg/util/errorutil"
)

// citizenRows is an in-memory repository.CitizenRepository.
type citizenRows struct {
	mu      sync.Mutex
	byPhone map[string]*domain.Citizen
}

func (r *citizenRows) GetByPhone(_ context.Context, phone string) (*domain.Citizen, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byPhone[phone]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	out := *c
	return &out, nil
}

func (r *citizenRows) GetByID(_ context.Context, id string) (*domain.Citizen, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.byPhone {
		if c.ID == id {
			out := *c
			return &out, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *citizenRows) Upsert(_ context.Context, c *domain.Citizen) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.ID = "cid-" + c.Phone
	stored := *c
	r.byPhone[c.Phone] = &stored
	return nil
}

// withCitizenService swaps the fixture's directory for the real service.
func (f *fixture) withCitizenService() *citizenRows {
	rows := &citizenRows{byPhone: map[string]*domain.Citizen{}}
	f.machine.citizens = service.NewCitizenService(rows, nil, time.Second)
	return rows
}

// flakyConversations fails the next failPuts calls to Put.
type flakyConversations struct {
	repository.ConversationRepository
	mu       sync.Mutex
	failPuts int
	puts     int
}

func (s *flakyConversations) Put(ctx context.Context, st *domain.ConversationState) error {
	s.mu.Lock()
	s.puts++
	fail := s.failPuts > 0
	if fail {
		s.failPuts--
	}
	s.mu.Unlock()
	if fail {
		return errors.New("redis: connection reset")
	}
	return s.ConversationRepository.Put(ctx, st)
}

func (s *flakyConversations) failNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failPuts = n
	s.puts = 0
}

func TestMessageWithoutPhoneIsRejected(t *testing.T) {
	f := newFixture(t)
	f.withCitizenService()

	for _, phone := range []string{"", "   "} {
		_, err := f.machine.HandleMessage(context.Background(), InboundMessage{
			ConversationID: "conv-1",
			Text:           "oi",
			Contact:        Contact{Phone: phone, Name: "Maria"},
		})
		assert.ErrorIs(t, err, apperrors.ErrValidation)
	}
	assert.Equal(t, domain.Step(""), f.step(t))
	assert.Empty(t, f.dispatcher.events)
}

func TestRegistrationThroughCitizenService(t *testing.T) {
	f := newFixture(t)
	rows := f.withCitizenService()

	assert.Equal(t, replyWelcome, f.send(t, "oi"))
	assert.Contains(t, f.send(t, "Maria Silva"), "CPF")
	assert.Equal(t, replyAskAddress, f.send(t, "123.456.789-00"))
	assert.Equal(t, replyAskEmail, f.send(t, "Rua das Flores, 12"))
	assert.Contains(t, f.send(t, "Maria@Exemplo.com"), "Cadastro realizado")
	assert.Equal(t, domain.StepCollectingIssue, f.step(t))

	citizen := rows.byPhone["5511999990000"]
	require.NotNil(t, citizen)
	assert.Equal(t, "Maria Silva", citizen.Name)
	assert.Equal(t, "12345678900", citizen.DocumentID)
	require.NotNil(t, citizen.Email)
	assert.Equal(t, "maria@exemplo.com", *citizen.Email)
}

func TestRegistrationFallsBackToSenderPhone(t *testing.T) {
	f := newFixture(t)
	rows := f.withCitizenService()
	require.NoError(t, f.conversations.Put(context.Background(), &domain.ConversationState{
		ConversationID: "conv-1",
		Step:           domain.StepCollectingRegistration,
		Fields: map[string]string{
			domain.FieldName:       "Maria",
			domain.FieldDocumentID: "12345678900",
			domain.FieldAddress:    "Rua A",
		},
	}))

	assert.Contains(t, f.send(t, "não tenho"), "Cadastro realizado")
	assert.Contains(t, rows.byPhone, "5511999990000")
}

func TestRejectedRegistrationAnswerIsAskedAgain(t *testing.T) {
	f := newFixture(t)
	rows := f.withCitizenService()
	require.NoError(t, f.conversations.Put(context.Background(), &domain.ConversationState{
		ConversationID: "conv-1",
		Step:           domain.StepCollectingRegistration,
		Fields: map[string]string{
			domain.FieldPhone:      "5511999990000",
			domain.FieldName:       "   ",
			domain.FieldDocumentID: "12345678900",
			domain.FieldAddress:    "Rua A",
		},
	}))

	reply := f.send(t, "não tenho")
	assert.Equal(t, "❌ Erro ao cadastrar: nome não informado\n\n"+replyAskName, reply)
	st, err := f.conversations.Get(context.Background(), "conv-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StepCollectingRegistration, st.Step)
	assert.False(t, st.Has(domain.FieldName))
	assert.Equal(t, "12345678900", st.Fields[domain.FieldDocumentID])
	assert.Empty(t, rows.byPhone)

	assert.Equal(t, replyAskEmail, f.send(t, "Maria"))
	assert.Contains(t, f.send(t, "não tenho"), "Olá Maria")
	assert.Equal(t, domain.StepCollectingIssue, f.step(t))
	assert.Equal(t, "Maria", rows.byPhone["5511999990000"].Name)
}

func TestRejectedDocumentIsAskedAgain(t *testing.T) {
	f := newFixture(t)
	f.machine.citizens = &rejectOnce{fakeCitizens: f.citizens, err: apperrors.NewValidationError("CPF deve ter 11 dígitos", map[string]any{"field": domain.FieldDocumentID})}

	f.send(t, "oi")
	f.send(t, "Maria")
	f.send(t, "12345678900")
	f.send(t, "Rua A")
	reply := f.send(t, "não tenho")
	assert.Contains(t, reply, "❌ Erro ao cadastrar: CPF deve ter 11 dígitos")
	assert.Contains(t, reply, replyAskCPF("Maria"))

	assert.Equal(t, replyAskEmail, f.send(t, "987.654.321-00"))
	assert.Contains(t, f.send(t, "não tenho"), "Cadastro realizado")
	assert.Equal(t, "98765432100", f.citizens.byPhone["5511999990000"].DocumentID)
}

func TestRejectionWithoutFieldRestartsRegistration(t *testing.T) {
	f := newFixture(t)
	f.machine.citizens = &rejectOnce{fakeCitizens: f.citizens, err: apperrors.NewValidationError("cadastro recusado", nil)}

	f.send(t, "oi")
	f.send(t, "Maria")
	f.send(t, "12345678900")
	f.send(t, "Rua A")
	assert.Equal(t, "❌ Erro ao cadastrar: cadastro recusado\n\n"+replyAskName, f.send(t, "não tenho"))

	st, err := f.conversations.Get(context.Background(), "conv-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{domain.FieldPhone: "5511999990000"}, st.Fields)
}

type rejectOnce struct {
	*fakeCitizens
	err error
}

func (r *rejectOnce) Register(ctx context.Context, in service.RegisterCitizenInput) (*domain.Citizen, error) {
	if err := r.err; err != nil {
		r.err = nil
		return nil, err
	}
	return r.fakeCitizens.Register(ctx, in)
}

func TestUndecodableStateStartsOver(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := newFixture(t)
	f.conversations = repository.NewRedisConversationRepository(client, 1, time.Hour)
	f.machine.conversations = f.conversations
	require.NoError(t, mr.Set("tenant:1:conversation:conv-1", "{not json"))

	assert.Equal(t, replyWelcome, f.send(t, "oi"))
	assert.Equal(t, domain.StepCollectingRegistration, f.step(t))
	assert.Contains(t, f.send(t, "Maria"), "CPF")
}

func TestStoreFailureAfterTicketDoesNotReissue(t *testing.T) {
	f := newFixture(t, domain.Citizen{ID: "cid-1", Phone: "5511999990000", Name: "João"})
	store := &flakyConversations{ConversationRepository: f.conversations}
	f.machine.conversations = store

	f.send(t, "oi")
	f.send(t, "buraco na rua")
	f.send(t, "sim")
	require.Equal(t, domain.StepCollectingAddress, f.step(t))

	store.failNext(2)
	assert.Contains(t, f.send(t, "Rua A"), "GERAL-2024-001")
	assert.Equal(t, 2, store.puts)
	assert.Equal(t, domain.StepCollectingAddress, f.step(t))
	assert.Equal(t, 1, f.machine.unsaved.size())

	assert.Contains(t, f.send(t, "Rua A"), "GERAL-2024-001 foi registrado")
	assert.Len(t, f.tickets.created, 1)
	assert.Equal(t, domain.StepTicketCreated, f.step(t))
	assert.Zero(t, f.machine.unsaved.size())
}

func TestStoreFailureIsRetriedOnce(t *testing.T) {
	f := newFixture(t, domain.Citizen{ID: "cid-1", Phone: "5511999990000", Name: "João"})
	store := &flakyConversations{ConversationRepository: f.conversations}
	f.machine.conversations = store

	f.send(t, "oi")
	f.send(t, "buraco na rua")
	f.send(t, "sim")

	store.failNext(1)
	assert.Contains(t, f.send(t, "Rua A"), "Chamado criado")
	assert.Equal(t, 2, store.puts)
	assert.Equal(t, domain.StepTicketCreated, f.step(t))
	assert.Zero(t, f.machine.unsaved.size())
}
