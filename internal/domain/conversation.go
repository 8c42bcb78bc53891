package domain

import "time"

// Step is the intake stage that decides how the next citizen message is read.
type Step string

const (
	StepInitial                Step = "initial"
	StepCollectingRegistration Step = "collecting_registration"
	StepCollectingIssue        Step = "collecting_issue"
	StepConfirmingCategory     Step = "confirming_category"
	StepManualCategory         Step = "manual_category"
	StepCollectingAddress      Step = "collecting_address"
	StepTicketCreated          Step = "ticket_created"
)

// Keys of ConversationState.Fields.
const (
	FieldName        = "name"
	FieldDocumentID  = "document_id"
	FieldAddress     = "address"
	FieldEmail       = "email"
	FieldPhone       = "phone"
	FieldDescription = "description"
	FieldOccurrence  = "occurrence_address"
)

// ConversationState is the per-conversation intake progress.
type ConversationState struct {
	ConversationID string                `json:"conversation_id"`
	Step           Step                  `json:"step"`
	Fields         map[string]string     `json:"fields,omitempty"`
	Classification *ClassificationResult `json:"classification,omitempty"`
	CitizenID      string                `json:"citizen_id,omitempty"`
	CitizenName    string                `json:"citizen_name,omitempty"`
	TicketID       string                `json:"ticket_id,omitempty"`
	Protocol       string                `json:"protocol,omitempty"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

// NewConversationState returns a fresh state at the initial step.
func NewConversationState(conversationID string) *ConversationState {
	return &ConversationState{
		ConversationID: conversationID,
		Step:           StepInitial,
		Fields:         map[string]string{},
	}
}

// Clone returns a deep copy so transitions can mutate without committing.
func (s *ConversationState) Clone() *ConversationState {
	if s == nil {
		return nil
	}
	out := *s
	out.Fields = make(map[string]string, len(s.Fields))
	for k, v := range s.Fields {
		out.Fields[k] = v
	}
	if s.Classification != nil {
		c := *s.Classification
		out.Classification = &c
	}
	return &out
}

// Has reports whether a field was collected. Present-but-empty counts (e.g. no email).
func (s *ConversationState) Has(field string) bool {
	_, ok := s.Fields[field]
	return ok
}

// Reset drops everything except the conversation id and moves to step.
func (s *ConversationState) Reset(step Step) {
	s.Step = step
	s.Fields = map[string]string{}
	s.Classification = nil
	s.TicketID = ""
	s.Protocol = ""
}
