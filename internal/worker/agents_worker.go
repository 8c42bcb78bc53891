package worker

import (
	"go.uber.org/zap"

	"github.com/cidadao-ai/citizen-intake/internal/agents"
	"github.com/cidadao-ai/citizen-intake/internal/bus"
	"github.com/cidadao-ai/citizen-intake/internal/observability"
)

// AgentDependencies bundles what the agent pipeline consumes. A nil
// Assistant runs no assistant agent.
type AgentDependencies struct {
	Bus        *bus.Bus
	Classifier agents.Classifier
	Tickets    agents.TicketCreator
	Assistant  *agents.Assistant
	Logger     *zap.Logger
	Metrics    *observability.Metrics
}

// StartAgents subscribes the categorization, ticket and assistant agents to
// the bus. ticket_created messages stay queued under notification_agent for
// whoever polls them.
func StartAgents(deps AgentDependencies) *agents.Registry {
	logger := observability.Named(deps.Logger, "agents")
	registry := agents.NewRegistry(
		agents.NewCategorizationAgent(deps.Bus, deps.Classifier, logger, deps.Metrics),
		agents.NewTicketAgent(deps.Bus, deps.Tickets, logger, deps.Metrics),
	)
	if deps.Assistant != nil {
		registry.Add(agents.NewAssistantAgent(deps.Bus, deps.Assistant, logger, deps.Metrics))
	}
	logger.Info("agents started", zap.Int("count", len(registry.Statuses())))
	return registry
}
