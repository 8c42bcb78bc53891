package agents

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/cidadao-ai/citizen-intake/internal/bus"
	"github.com/cidadao-ai/citizen-intake/internal/domain"
	"github.com/cidadao-ai/citizen-intake/internal/observability"
	"github.com/cidadao-ai/citizen-intake/internal/service"
)

// TicketCreator is the issuer operation the ticket agent calls.
type TicketCreator interface {
	CreateTicket(ctx context.Context, in service.CreateTicketInput) (*domain.Ticket, error)
}

// NewTicketAgent opens a ticket for every issue_categorized message and
// announces it to the notification agent.
func NewTicketAgent(b *bus.Bus, tickets TicketCreator, logger *zap.Logger, metrics *observability.Metrics) *Agent {
	a := newAgent(TicketAgentID, "Agente de Chamados", "ticket", b, logger, metrics)
	a.Handle(EventIssueCategorized, func(ctx context.Context, msg domain.QueueMessage) (*domain.QueueMessage, error) {
		phone := stringField(msg.Data, "citizen_phone")
		if phone == "" {
			phone = stringField(msg.Data, "phone")
		}
		ticket, err := tickets.CreateTicket(ctx, service.CreateTicketInput{
			Citizen:        service.CitizenRef{ID: stringField(msg.Data, "citizen_id"), Phone: phone},
			Title:          stringField(msg.Data, "title"),
			Description:    stringField(msg.Data, "description"),
			Address:        stringField(msg.Data, "address"),
			Classification: classificationFrom(msg.Data),
			Source:         domain.SourceAgent,
		})
		if err != nil {
			return nil, err
		}

		data := map[string]any{
			"ticket_id": ticket.ID,
			"protocol":  ticket.Protocol,
			"team_name": ticket.TeamName,
			"priority":  string(ticket.Priority),
			"status":    string(ticket.Status),
		}
		if ticket.SLADeadline != nil {
			data["sla_deadline"] = ticket.SLADeadline.Format(time.RFC3339)
		}
		return &domain.QueueMessage{
			Event:    EventTicketCreated,
			To:       NotificationAgentID,
			Data:     data,
			Priority: 1,
		}, nil
	})
	return a
}
