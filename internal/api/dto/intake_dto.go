package dto

// ContactPayload identifies the sender on the chat platform.
type ContactPayload struct {
	Phone string `json:"phone"`
	Name  string `json:"name"`
}

// InboundMessageRequest is one citizen message relayed by the chat platform.
type InboundMessageRequest struct {
	ConversationID string         `json:"conversation_id"`
	Text           string         `json:"text"`
	Contact        ContactPayload `json:"contact"`
}

// InboundMessageResponse carries the reply to send back to the citizen.
type InboundMessageResponse struct {
	ConversationID string `json:"conversation_id"`
	Reply          string `json:"reply"`
}

// AgentMessageRequest publishes a message on the agent bus.
type AgentMessageRequest struct {
	Event          string         `json:"event"`
	From           string         `json:"from"`
	To             string         `json:"to"`
	ConversationID string         `json:"conversation_id"`
	Data           map[string]any `json:"data"`
	Priority       int            `json:"priority"`
}

// AssistantRequest asks the virtual assistant a free-form question.
type AssistantRequest struct {
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message"`
}

// AssistantResponse carries the assistant's answer.
type AssistantResponse struct {
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message"`
	AIResponse     string `json:"ai_response"`
}
