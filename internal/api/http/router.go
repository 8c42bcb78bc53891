package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/cidadao-ai/citizen-intake/internal/api/http/handlers"
	"github.com/cidadao-ai/citizen-intake/internal/auth"
	"github.com/cidadao-ai/citizen-intake/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Intake         *handlers.IntakeHandler
	Tickets        *handlers.TicketsHandler
	Staff          *handlers.StaffHandler
	StaffTickets   *handlers.StaffTicketsHandler
	Agents         *handlers.AgentsHandler
	Assistant      *handlers.AssistantHandler
	AuthMiddleware fiber.Handler
	// Metrics serves the Prometheus exposition; nil leaves /metrics unrouted.
	Metrics fiber.Handler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", cfg.Metrics)
	}

	app.Post("/webhook/messages", cfg.Intake.Receive)
	app.Get("/tickets/:protocol", cfg.Tickets.GetByProtocol)
	app.Get("/categories", cfg.Tickets.ListCategories)

	app.Post("/auth/staff/login", cfg.Staff.Login)

	staff := app.Group("/staff", cfg.AuthMiddleware, auth.RequireStaffRole())
	staff.Get("/tickets", cfg.StaffTickets.ListStaffTickets)
	staff.Get("/tickets/:protocol/history", cfg.StaffTickets.History)
	staff.Patch("/tickets/:protocol/status", cfg.StaffTickets.UpdateStatus)

	agentsGroup := app.Group("/agents", cfg.AuthMiddleware, auth.RequireStaffRole())
	agentsGroup.Post("/messages", cfg.Agents.Publish)
	agentsGroup.Get("/status", cfg.Agents.Status)
	agentsGroup.Get("/queues", cfg.Agents.Queues)
	if cfg.Assistant != nil {
		agentsGroup.Post("/assistant", cfg.Assistant.Ask)
	}

	// Per route: a group would mount the role check on the whole /agents prefix.
	adminOnly := auth.RequireStaffRole(domain.StaffRoleAdmin)
	agentsGroup.Delete("/queues/:recipient", adminOnly, cfg.Agents.ClearQueue)
	agentsGroup.Delete("/queues", adminOnly, cfg.Agents.ClearAll)
	agentsGroup.Post("/:id/activate", adminOnly, cfg.Agents.Activate)
	agentsGroup.Post("/:id/deactivate", adminOnly, cfg.Agents.Deactivate)
}
