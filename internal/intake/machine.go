package intake

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cidadao-ai/citizen-intake/internal/catalog"
	"github.com/cidadao-ai/citizen-intake/internal/classification"
	"github.com/cidadao-ai/citizen-intake/internal/domain"
	"github.com/cidadao-ai/citizen-intake/internal/events"
	"github.com/cidadao-ai/citizen-intake/internal/observability"
	"github.com/cidadao-ai/citizen-intake/internal/repository"
	"github.com/cidadao-ai/citizen-intake/internal/service"
	apperrors "github.com/cidadao-ai/citizen-intake/pkg/util/errorutil"
)

var (
	statusWords      = []string{"status", "protocolo", "chamado", "situação"}
	afterTicketWords = []string{"status", "protocolo", "situação"}
	newIssueWords    = []string{"novo", "outro", "problema", "chamado"}
	yesWords         = []string{"sim", "s", "yes", "y", "correto", "certo"}
	noWords          = []string{"não", "nao", "n", "no", "errado", "incorreto"}
	noEmailWords     = []string{"não tenho", "nao tenho", "não", "nao", "-", ""}
)

// Classifier suggests and matches categories.
type Classifier interface {
	Classify(ctx context.Context, text string) domain.ClassificationResult
	MatchCategory(input string) (domain.ClassificationResult, bool)
}

// CitizenDirectory finds and registers citizens.
type CitizenDirectory interface {
	FindByPhone(ctx context.Context, phone string) (*domain.Citizen, error)
	Register(ctx context.Context, in service.RegisterCitizenInput) (*domain.Citizen, error)
}

// TicketIssuer opens tickets and answers status lookups.
type TicketIssuer interface {
	CreateTicket(ctx context.Context, in service.CreateTicketInput) (*domain.Ticket, error)
	GetByProtocol(ctx context.Context, protocol string) (*domain.Ticket, error)
	LatestForCitizen(ctx context.Context, phone string) (*domain.Ticket, error)
}

// Contact is what the chat platform tells us about the sender.
type Contact struct {
	Phone string
	Name  string
}

// InboundMessage is one citizen message delivered by the chat platform.
type InboundMessage struct {
	ConversationID string
	Text           string
	Contact        Contact
}

// Dependencies wires the machine.
type Dependencies struct {
	Conversations repository.ConversationRepository
	Citizens      CitizenDirectory
	Tickets       TicketIssuer
	Classifier    Classifier
	Catalog       *catalog.Catalog
	Dispatcher    events.Dispatcher
	Logger        *zap.Logger
	Metrics       *observability.Metrics
	Clock         func() time.Time
	Source        string
}

// Machine drives the intake conversation. Each message of a conversation is
// handled under that conversation's lock, against a copy of its state; the
// copy is stored only when the step completes without error.
type Machine struct {
	conversations repository.ConversationRepository
	citizens      CitizenDirectory
	tickets       TicketIssuer
	classifier    Classifier
	catalog       *catalog.Catalog
	dispatcher    events.Dispatcher
	logger        *zap.Logger
	metrics       *observability.Metrics
	now           func() time.Time
	source        string
	locks         *keyedMutex
	unsaved       *unsavedStates
}

// NewMachine builds a machine; a nil conversation store means in-memory.
func NewMachine(deps Dependencies) *Machine {
	m := &Machine{
		conversations: deps.Conversations,
		citizens:      deps.Citizens,
		tickets:       deps.Tickets,
		classifier:    deps.Classifier,
		catalog:       deps.Catalog,
		dispatcher:    deps.Dispatcher,
		logger:        observability.Named(deps.Logger, "intake"),
		metrics:       deps.Metrics,
		now:           deps.Clock,
		source:        deps.Source,
		locks:         newKeyedMutex(),
		unsaved:       newUnsavedStates(),
	}
	if m.conversations == nil {
		m.conversations = repository.NewMemoryConversationRepository()
	}
	if m.catalog == nil {
		m.catalog = catalog.Default()
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.source == "" {
		m.source = domain.SourceWhatsApp
	}
	return m
}

// HandleMessage processes one inbound message and returns the reply text.
// Only a message without a conversation id or sender phone is rejected; every
// other failure is logged and answered with a retry prompt, leaving the state
// untouched.
func (m *Machine) HandleMessage(ctx context.Context, msg InboundMessage) (string, error) {
	msg.ConversationID = strings.TrimSpace(msg.ConversationID)
	if msg.ConversationID == "" {
		return "", apperrors.NewValidationError("conversation id required", nil)
	}
	msg.Contact.Phone = strings.TrimSpace(msg.Contact.Phone)
	if msg.Contact.Phone == "" {
		return "", apperrors.NewValidationError("contact phone required", map[string]any{"field": "contact.phone"})
	}

	unlock := m.locks.Lock(msg.ConversationID)
	defer unlock()

	logger := m.logger.With(zap.String("conversation_id", msg.ConversationID))

	current, err := m.load(ctx, logger, msg.ConversationID)
	if err != nil {
		logger.Error("load conversation state", zap.Error(err))
		return replyRetry, nil
	}

	next := current.Clone()
	reply, err := m.step(ctx, next, msg)
	if err != nil {
		logger.Error("intake step failed", zap.String("step", string(current.Step)), zap.Error(err))
		return replyRetry, nil
	}

	next.UpdatedAt = m.now()
	if err := m.save(ctx, next); err != nil {
		// The step's side effects already happened; the citizen still gets
		// its reply and the next message continues from the unsaved state.
		logger.Error("store conversation state, keeping it in process", zap.Error(err))
		m.unsaved.put(next)
	} else {
		m.unsaved.drop(msg.ConversationID)
	}

	m.metrics.RecordTransition(string(current.Step), string(next.Step))
	logger.Debug("message processed", zap.String("from", string(current.Step)), zap.String("to", string(next.Step)))
	if m.dispatcher != nil {
		m.dispatcher.Publish(ctx, events.New(events.EventMessageProcessed, next.TicketID, events.Actor{Type: domain.SubjectTypeCitizen}, next.UpdatedAt,
			events.MessageProcessedPayload{
				ConversationID: msg.ConversationID,
				FromStep:       current.Step,
				ToStep:         next.Step,
				Protocol:       next.Protocol,
			}))
	}
	return reply, nil
}

// load returns the state the next step starts from. A state the store could
// not decode is discarded and the conversation starts over.
func (m *Machine) load(ctx context.Context, logger *zap.Logger, id string) (*domain.ConversationState, error) {
	if st, ok := m.unsaved.get(id); ok {
		return st, nil
	}
	current, err := m.conversations.Get(ctx, id)
	switch {
	case err == nil:
		return current, nil
	case errors.Is(err, repository.ErrConversationNotFound):
		return domain.NewConversationState(id), nil
	case errors.Is(err, repository.ErrConversationCorrupt):
		logger.Warn("discarding undecodable conversation state", zap.Error(err))
		if err := m.conversations.Delete(ctx, id); err != nil {
			logger.Warn("delete undecodable conversation state", zap.Error(err))
		}
		return domain.NewConversationState(id), nil
	default:
		return nil, err
	}
}

// save stores st, retrying once.
func (m *Machine) save(ctx context.Context, st *domain.ConversationState) error {
	if err := m.conversations.Put(ctx, st); err == nil {
		return nil
	}
	return m.conversations.Put(ctx, st)
}

func (m *Machine) step(ctx context.Context, st *domain.ConversationState, msg InboundMessage) (string, error) {
	switch st.Step {
	case domain.StepInitial:
		return m.initial(ctx, st, msg)
	case domain.StepCollectingRegistration:
		return m.registration(ctx, st, msg)
	case domain.StepCollectingIssue:
		return m.issue(ctx, st, msg)
	case domain.StepConfirmingCategory:
		return m.confirm(st, msg)
	case domain.StepManualCategory:
		return m.manual(st, msg)
	case domain.StepCollectingAddress:
		return m.address(ctx, st, msg)
	case domain.StepTicketCreated:
		return m.ticketCreated(ctx, st, msg)
	default:
		m.logger.Warn("unknown intake step, restarting", zap.String("conversation_id", st.ConversationID), zap.String("step", string(st.Step)))
		st.Reset(domain.StepInitial)
		st.CitizenID, st.CitizenName = "", ""
		return m.initial(ctx, st, msg)
	}
}

func (m *Machine) initial(ctx context.Context, st *domain.ConversationState, msg InboundMessage) (string, error) {
	if classification.ContainsWord(msg.Text, statusWords) {
		return m.status(ctx, msg)
	}

	citizen, err := m.citizens.FindByPhone(ctx, msg.Contact.Phone)
	if errors.Is(err, apperrors.ErrCitizenNotFound) {
		st.Reset(domain.StepCollectingRegistration)
		st.Fields[domain.FieldPhone] = msg.Contact.Phone
		return replyWelcome, nil
	}
	if err != nil {
		return "", err
	}

	st.Reset(domain.StepCollectingIssue)
	st.CitizenID = citizen.ID
	st.CitizenName = citizen.Name
	return replyGreeting(citizen.Name), nil
}

// registration collects name, document id, address and email in that order.
func (m *Machine) registration(ctx context.Context, st *domain.ConversationState, msg InboundMessage) (string, error) {
	text := strings.TrimSpace(msg.Text)

	switch {
	case !st.Has(domain.FieldName):
		if text == "" {
			return replyAskName, nil
		}
		st.Fields[domain.FieldName] = text
		return registrationPrompt(st), nil

	case !st.Has(domain.FieldDocumentID):
		doc, ok := domain.NormalizeDocumentID(text)
		if !ok {
			return replyInvalidCPF, nil
		}
		st.Fields[domain.FieldDocumentID] = doc
		return registrationPrompt(st), nil

	case !st.Has(domain.FieldAddress):
		if text == "" {
			return replyAskAddress, nil
		}
		st.Fields[domain.FieldAddress] = text
		return registrationPrompt(st), nil
	}

	var email *string
	if !containsFolded(noEmailWords, classification.Fold(text)) {
		lowered := strings.ToLower(text)
		email = &lowered
	}
	phone := st.Fields[domain.FieldPhone]
	if phone == "" {
		phone = msg.Contact.Phone
	}

	citizen, err := m.citizens.Register(ctx, service.RegisterCitizenInput{
		Phone:      phone,
		Name:       st.Fields[domain.FieldName],
		DocumentID: st.Fields[domain.FieldDocumentID],
		Email:      email,
		Address:    st.Fields[domain.FieldAddress],
	})
	if errors.Is(err, apperrors.ErrValidation) {
		return m.rejectRegistration(st, phone, err), nil
	}
	if err != nil {
		return "", err
	}

	st.Reset(domain.StepCollectingIssue)
	st.CitizenID = citizen.ID
	st.CitizenName = citizen.Name
	return replyRegistered(citizen.Name), nil
}

// rejectRegistration drops the answer the directory refused and asks for it
// again. Without a field hint every answer is collected again. A dropped
// phone is re-read from the sender of the next message.
func (m *Machine) rejectRegistration(st *domain.ConversationState, phone string, err error) string {
	switch field := service.InvalidField(err); field {
	case domain.FieldName, domain.FieldDocumentID, domain.FieldAddress, domain.FieldPhone:
		delete(st.Fields, field)
	default:
		st.Reset(domain.StepCollectingRegistration)
		st.Fields[domain.FieldPhone] = phone
	}
	m.logger.Info("registration rejected", zap.String("conversation_id", st.ConversationID), zap.Error(err))
	return replyRegistrationFailed(apperrors.ToDomainError(err).Message) + "\n\n" + registrationPrompt(st)
}

// registrationPrompt asks for the first registration answer still missing.
func registrationPrompt(st *domain.ConversationState) string {
	switch {
	case !st.Has(domain.FieldName):
		return replyAskName
	case !st.Has(domain.FieldDocumentID):
		return replyAskCPF(st.Fields[domain.FieldName])
	case !st.Has(domain.FieldAddress):
		return replyAskAddress
	default:
		return replyAskEmail
	}
}

func (m *Machine) issue(ctx context.Context, st *domain.ConversationState, msg InboundMessage) (string, error) {
	description := strings.TrimSpace(msg.Text)
	if description == "" {
		return replyAskIssue, nil
	}
	st.Fields[domain.FieldDescription] = description

	res := m.classifier.Classify(ctx, description)
	if !res.Classified() {
		st.Classification = nil
		st.Step = domain.StepManualCategory
		return categoryMenu(replyUnclassified, m.catalog), nil
	}
	st.Classification = &res
	st.Step = domain.StepConfirmingCategory
	return replySuggestion(m.categoryName(res.Category), res.TeamName), nil
}

func (m *Machine) confirm(st *domain.ConversationState, msg InboundMessage) (string, error) {
	answer := classification.Fold(msg.Text)
	switch {
	case containsFolded(yesWords, answer):
		st.Step = domain.StepCollectingAddress
		return replyConfirmed, nil
	case containsFolded(noWords, answer):
		st.Classification = nil
		st.Step = domain.StepManualCategory
		return categoryMenu(replyRejected, m.catalog), nil
	default:
		return replyAskYesNo, nil
	}
}

func (m *Machine) manual(st *domain.ConversationState, msg InboundMessage) (string, error) {
	res, ok := m.classifier.MatchCategory(msg.Text)
	if !ok {
		return categoryMenu(replyUnknownSector, m.catalog), nil
	}
	st.Classification = &res
	st.Step = domain.StepCollectingAddress
	return replySelected(m.categoryName(res.Category)), nil
}

func (m *Machine) address(ctx context.Context, st *domain.ConversationState, msg InboundMessage) (string, error) {
	address := strings.TrimSpace(msg.Text)
	if address == "" {
		return replyAskLocation, nil
	}
	st.Fields[domain.FieldOccurrence] = address

	ticket, err := m.tickets.CreateTicket(ctx, service.CreateTicketInput{
		Citizen:        service.CitizenRef{ID: st.CitizenID, Phone: msg.Contact.Phone},
		Description:    st.Fields[domain.FieldDescription],
		Address:        address,
		Classification: st.Classification,
		Source:         m.source,
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrCitizenNotFound) || errors.Is(err, apperrors.ErrValidation) {
			// Stay on this step; the issuer's message is meant for the citizen.
			delete(st.Fields, domain.FieldOccurrence)
			return replyTicketFailed(apperrors.ToDomainError(err).Message), nil
		}
		return "", err
	}

	st.Reset(domain.StepTicketCreated)
	st.TicketID = ticket.ID
	st.Protocol = ticket.Protocol
	return replyTicketCreated(ticket), nil
}

func (m *Machine) ticketCreated(ctx context.Context, st *domain.ConversationState, msg InboundMessage) (string, error) {
	if classification.ContainsWord(msg.Text, afterTicketWords) {
		return m.status(ctx, msg)
	}
	if classification.ContainsWord(msg.Text, newIssueWords) {
		st.Reset(domain.StepCollectingIssue)
		return replyNewTicket, nil
	}
	return replyAcknowledge(st.Protocol), nil
}

// status answers a lookup without touching the conversation state.
func (m *Machine) status(ctx context.Context, msg InboundMessage) (string, error) {
	var (
		ticket *domain.Ticket
		err    error
	)
	if protocol := ProtocolToken(msg.Text); protocol != "" {
		ticket, err = m.tickets.GetByProtocol(ctx, protocol)
	} else {
		ticket, err = m.tickets.LatestForCitizen(ctx, msg.Contact.Phone)
	}
	if errors.Is(err, apperrors.ErrNotFound) {
		return replyTicketMissing, nil
	}
	if err != nil {
		return "", err
	}
	return replyStatus(ticket), nil
}

// ProtocolToken returns the first word that looks like a protocol code
// (contains '-' and is longer than five characters), upper-cased.
func ProtocolToken(text string) string {
	for _, word := range strings.Fields(text) {
		word = strings.Trim(word, ".,;:!?()\"'")
		if strings.Contains(word, "-") && len(word) > 5 {
			return strings.ToUpper(word)
		}
	}
	return ""
}

func (m *Machine) categoryName(code string) string {
	if cat, ok := m.catalog.Get(code); ok {
		return cat.DisplayName()
	}
	return code
}

func containsFolded(words []string, folded string) bool {
	for _, w := range words {
		if classification.Fold(w) == folded {
			return true
		}
	}
	return false
}
