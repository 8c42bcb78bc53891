package agents

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/cidadao-ai/citizen-intake/internal/bus"
	"github.com/cidadao-ai/citizen-intake/internal/domain"
	"github.com/cidadao-ai/citizen-intake/internal/observability"
)

// Agent ids and the events they exchange.
const (
	CategorizationAgentID = "categorization_agent"
	TicketAgentID         = "ticket_agent"
	NotificationAgentID   = "notification_agent"

	EventCategorizeIssue  = "categorize_issue"
	EventIssueCategorized = "issue_categorized"
	EventTicketCreated    = "ticket_created"

	// DataCategorization is the data key carrying the classification.
	DataCategorization = "categorization"
)

// Classifier is what the categorization agent needs from the engine.
type Classifier interface {
	Classify(ctx context.Context, text string) domain.ClassificationResult
}

// NewCategorizationAgent classifies data.description of categorize_issue
// messages and forwards them to the ticket agent.
func NewCategorizationAgent(b *bus.Bus, classifier Classifier, logger *zap.Logger, metrics *observability.Metrics) *Agent {
	a := newAgent(CategorizationAgentID, "Agente de Categorização", "categorization", b, logger, metrics)
	a.Handle(EventCategorizeIssue, func(ctx context.Context, msg domain.QueueMessage) (*domain.QueueMessage, error) {
		description := strings.TrimSpace(stringField(msg.Data, "description"))
		if description == "" {
			return nil, errors.New("description required")
		}
		res := classifier.Classify(ctx, description)
		a.logger.Info("issue categorized",
			zap.String("conversation_id", msg.ConversationID),
			zap.String("category", res.Category),
			zap.Float64("confidence", res.Confidence),
			zap.String("method", string(res.Method)))

		data := make(map[string]any, len(msg.Data)+1)
		for k, v := range msg.Data {
			data[k] = v
		}
		data[DataCategorization] = classificationData(res)
		return &domain.QueueMessage{
			Event:    EventIssueCategorized,
			To:       TicketAgentID,
			Data:     data,
			Priority: 1,
		}, nil
	})
	return a
}

func classificationData(res domain.ClassificationResult) map[string]any {
	return map[string]any{
		"category":   res.Category,
		"confidence": res.Confidence,
		"method":     string(res.Method),
		"priority":   string(res.Priority),
		"sla_hours":  res.SLAHours,
		"team_name":  res.TeamName,
	}
}

// classificationFrom reads the categorization entry back. Values may have
// travelled through JSON, so numbers can arrive as float64.
func classificationFrom(data map[string]any) *domain.ClassificationResult {
	raw, ok := data[DataCategorization].(map[string]any)
	if !ok {
		return nil
	}
	res := &domain.ClassificationResult{
		Category:   stringField(raw, "category"),
		Confidence: numberField(raw, "confidence"),
		Method:     domain.ClassificationMethod(stringField(raw, "method")),
		Priority:   domain.Priority(stringField(raw, "priority")),
		SLAHours:   int(numberField(raw, "sla_hours")),
		TeamName:   stringField(raw, "team_name"),
	}
	return res
}

func stringField(data map[string]any, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

func numberField(data map[string]any, key string) float64 {
	switch v := data[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}
