package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/cidadao-ai/citizen-intake/internal/agents"
	httptransport "github.com/cidadao-ai/citizen-intake/internal/api/http"
	"github.com/cidadao-ai/citizen-intake/internal/api/http/handlers"
	"github.com/cidadao-ai/citizen-intake/internal/auth"
	"github.com/cidadao-ai/citizen-intake/internal/bus"
	"github.com/cidadao-ai/citizen-intake/internal/catalog"
	"github.com/cidadao-ai/citizen-intake/internal/classification"
	"github.com/cidadao-ai/citizen-intake/internal/config"
	"github.com/cidadao-ai/citizen-intake/internal/events"
	"github.com/cidadao-ai/citizen-intake/internal/intake"
	"github.com/cidadao-ai/citizen-intake/internal/observability"
	"github.com/cidadao-ai/citizen-intake/internal/persistence"
	"github.com/cidadao-ai/citizen-intake/internal/provider"
	"github.com/cidadao-ai/citizen-intake/internal/repository"
	"github.com/cidadao-ai/citizen-intake/internal/service"
	"github.com/cidadao-ai/citizen-intake/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, cfg.App.TenantID, logger)
	defer redis.Close()

	pool := pg.PoolHandle()
	tenant := cfg.App.TenantID
	ticketRepo := repository.NewTicketRepository(pool, tenant)
	citizenRepo := repository.NewCitizenRepository(pool, tenant)
	teamRepo := repository.NewTeamRepository(pool, tenant)
	historyRepo := repository.NewTicketHistoryRepository(pool, tenant)
	staffRepo := repository.NewStaffRepository(pool, tenant)
	categoryRepo := repository.NewCategoryRepository(pool, tenant)

	cat, err := catalog.Load(ctx, categoryRepo, cfg.Classification.CategoriesFile)
	if err != nil {
		logger.Fatal("failed to load category catalog", zap.Error(err))
	}
	logger.Info("category catalog loaded", zap.Strings("categories", cat.Codes()))

	httpClient := &http.Client{Timeout: cfg.AI.Timeout() + 5*time.Second}
	facade := provider.Configure(cfg.AI, provider.FacadeDependencies{
		HTTPClient: httpClient,
		Logger:     logger,
		Metrics:    metrics,
	})
	engine := classification.NewEngine(classification.Dependencies{
		Catalog:           cat,
		Completer:         facade,
		ProviderThreshold: cfg.Classification.ProviderThreshold,
		KeywordThreshold:  cfg.Classification.KeywordThreshold,
		Logger:            logger,
		Metrics:           metrics,
	})

	dispatcher := events.NewInMemoryDispatcher(logger)
	notificationService := service.NewNotificationService(dispatcher, redis.Client, &http.Client{Timeout: 5 * time.Second}, logger, cfg.Notification)
	waitNotifications := worker.StartNotificationWorker(ctx, notificationService, cfg.Notification.Workers, logger)

	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:     ticketRepo,
		CitizenRepo:    citizenRepo,
		TeamRepo:       teamRepo,
		HistoryRepo:    historyRepo,
		Catalog:        cat,
		Dispatcher:     dispatcher,
		Logger:         logger,
		Metrics:        metrics,
		StorageTimeout: cfg.Postgres.Timeout(),
		DefaultSource:  cfg.Intake.SourceChannel,
	})
	citizenService := service.NewCitizenService(citizenRepo, logger, cfg.Postgres.Timeout())

	authService := service.NewAuthService(cfg.Auth, staffRepo, logger)
	if err := authService.EnsureAdmin(ctx, cfg.Auth.BootstrapAdminEmail, cfg.Auth.BootstrapAdminPassword); err != nil {
		logger.Fatal("failed to bootstrap admin", zap.Error(err))
	}
	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), staffRepo)

	assistant := agents.NewAssistant(facade, redis.ChatHistory(cfg.Intake), logger)
	messageBus := bus.New(cfg.Bus.QueueCapacity, logger, metrics)
	agentRegistry := worker.StartAgents(worker.AgentDependencies{
		Bus:        messageBus,
		Classifier: engine,
		Tickets:    ticketService,
		Assistant:  assistant,
		Logger:     logger,
		Metrics:    metrics,
	})

	machine := intake.NewMachine(intake.Dependencies{
		Conversations: redis.ConversationStore(cfg.Intake),
		Citizens:      citizenService,
		Tickets:       ticketService,
		Classifier:    engine,
		Catalog:       cat,
		Dispatcher:    dispatcher,
		Logger:        logger,
		Metrics:       metrics,
		Source:        cfg.Intake.SourceChannel,
	})

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, map[string]handlers.Pinger{
			"postgres": pg,
			"redis":    redis,
		}),
		Intake:         handlers.NewIntakeHandler(machine),
		Tickets:        handlers.NewTicketsHandler(ticketService, cat),
		Staff:          handlers.NewStaffHandler(authService),
		StaffTickets:   handlers.NewStaffTicketsHandler(ticketService),
		Agents:         handlers.NewAgentsHandler(messageBus, agentRegistry),
		Assistant:      handlers.NewAssistantHandler(assistant),
		AuthMiddleware: authMiddleware.Handle,
		Metrics:        adaptor.HTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
	cancel()
	waitNotifications()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
