package cmd

import (
	"context"
	"fmt"
	"time"

	"raffler/application"
	"raffler/config"
	"raffler/database"
	"raffler/domain/entities"
	"raffler/domain/interfaces"
	"raffler/domain/services"
	"raffler/events"
	"raffler/httpapi"
	"raffler/infrastructure"
	"raffler/infrastructure/observability"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const devClaimAmount = 1_000_000_000

// App holds the wired service graph shared by the server and the admin commands
type App struct {
	cfg          *config.Config
	db           *database.DB
	store        interfaces.KeyValueStore
	natsClient   *infrastructure.NATSClient
	bus          *events.Bus
	publisher    *infrastructure.NATSEventPublisher
	metrics      *observability.MetricsProvider
	announcer    *infrastructure.DiscordAnnouncer
	orchestrator interfaces.DrawOrchestrator
	status       interfaces.StatusService
	ingestion    *application.ClaimIngestionHandler
	pollSources  []interfaces.ClaimSource

	closers []func()
}

// ConfigureLogging applies the configured level and formatter
func ConfigureLogging(cfg *config.Config) {
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warnf("Invalid LOG_LEVEL %q, using info", cfg.LogLevel)
		level = log.InfoLevel
	}
	log.SetLevel(level)
	if cfg.Environment == "production" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}

// Bootstrap connects to every backing service and wires the domain services
func Bootstrap(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{cfg: cfg}
	ok := false
	defer func() {
		if !ok {
			app.Close()
		}
	}()

	log.Info("Connecting to database...")
	db, err := database.NewConnection(ctx, cfg.GetDatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	app.db = db
	app.closers = append(app.closers, db.Close)

	if err := database.RunMigrationsWithURL(cfg.GetDatabaseURL()); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if cfg.RedisAddr != "" {
		log.Infof("Connecting to Redis at %s...", cfg.RedisAddr)
		client, err := infrastructure.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, err
		}
		app.store = infrastructure.NewRedisStore(client, "raffler:")
		app.closers = append(app.closers, func() { _ = client.Close() })
	} else {
		log.Warn("REDIS_ADDR not set, using in-memory store; locks and idempotency keys do not survive restarts")
		app.store = infrastructure.NewMemoryStore()
	}

	app.metrics = observability.NewMetricsProvider(cfg)
	if err := app.metrics.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}
	app.closers = append(app.closers, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := app.metrics.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("Failed to shut down metrics")
		}
	})

	eventPublisher, err := app.setupEvents(ctx)
	if err != nil {
		return nil, err
	}

	uowFactory := infrastructure.NewUnitOfWorkFactory(db, eventPublisher)

	if cfg.HolderSourceURL == "" || cfg.TransferServiceURL == "" {
		log.Warn("HOLDER_SOURCE_URL or TRANSFER_SERVICE_URL not set, draws will abort until configured")
	}
	holders := infrastructure.NewHolderAPIClient(cfg.HolderSourceURL, cfg.HTTPClientTimeout)
	transfers := infrastructure.NewTransferAPIClient(cfg.TransferServiceURL, cfg.HTTPClientTimeout)

	if cfg.ClaimTrackerURL != "" {
		app.pollSources = append(app.pollSources, infrastructure.NewTrackerClaimSource(cfg.ClaimTrackerURL, cfg.HTTPClientTimeout))
	}
	if cfg.IsDevelopment() {
		period := cfg.DrawInterval
		if period <= 0 {
			period = 20 * time.Minute
		}
		app.pollSources = append(app.pollSources, infrastructure.NewDevClaimSource(true, period, devClaimAmount))
	}

	dedup := services.NewClaimDeduplicator(uowFactory, app.store, app.pollSources...)
	phases := services.NewPhasePublisher(uowFactory, app.store, cfg.PhaseTTL)
	totals := services.NewTotalsTracker(app.store)

	app.orchestrator = services.NewDrawOrchestrator(services.OrchestratorDeps{
		UnitOfWorkFactory: uowFactory,
		Locker:            services.NewDrawLocker(app.store, cfg.LockTTL),
		Claims:            dedup,
		Balances:          holders,
		Payouts:           services.NewPayoutDispatcher(app.store, transfers, cfg.PayoutKeyTTL),
		Phases:            phases,
		Totals:            totals,
		Metrics:           app.metrics,
	}, services.DrawSettings{
		OddsMode:         entities.OddsMode(cfg.OddsMode),
		MaxWeightRatio:   cfg.MaxWeightRatio,
		WinnerCount:      cfg.WinnerCount,
		PayoutFraction:   cfg.PayoutFraction,
		MinClaimAmount:   cfg.MinClaimAmount,
		MinHolderBalance: cfg.MinHolderBalance,
		SecondaryWallet:  cfg.SecondaryWallet,
	})

	app.status = services.NewStatusService(uowFactory, totals, phases, holders, services.StatusSettings{
		DrawInterval:     cfg.DrawInterval,
		OddsMode:         entities.OddsMode(cfg.OddsMode),
		MaxWeightRatio:   cfg.MaxWeightRatio,
		WinnerCount:      cfg.WinnerCount,
		MinHolderBalance: cfg.MinHolderBalance,
	})

	app.ingestion = application.NewClaimIngestionHandler(dedup, app.orchestrator)

	ok = true
	return app, nil
}

// setupEvents picks NATS JetStream when configured and the in-process bus otherwise
func (a *App) setupEvents(ctx context.Context) (interfaces.EventPublisher, error) {
	mapper := infrastructure.NewEventSubjectMapper()

	if servers := a.cfg.NATSServerList(); len(servers) > 0 {
		client := infrastructure.NewNATSClient(servers)
		if err := client.Connect(ctx); err != nil {
			return nil, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		a.natsClient = client
		a.closers = append(a.closers, func() { _ = client.Close() })

		a.publisher = infrastructure.NewNATSEventPublisher(client, mapper)
		if err := a.publisher.EnsureRaffleStream(client); err != nil {
			log.WithError(err).Warn("Failed to ensure raffle stream")
		}
	} else {
		log.Info("NATS_SERVERS not set, events stay in process")
		a.bus = events.NewBus()
		a.closers = append(a.closers, a.bus.Wait)
	}

	if a.cfg.DiscordToken != "" && a.cfg.DiscordChannelID != "" {
		announcer, err := infrastructure.NewDiscordAnnouncer(a.cfg.DiscordToken, a.cfg.DiscordChannelID)
		if err != nil {
			log.WithError(err).Warn("Discord announcements disabled")
		} else {
			a.announcer = announcer
			a.closers = append(a.closers, func() { _ = announcer.Close() })
			a.subscribeLocal(events.EventTypeDrawFinished, announcer.HandleDrawFinished)
		}
	}

	if a.publisher != nil {
		return a.publisher, nil
	}
	return a.bus, nil
}

func (a *App) subscribeLocal(eventType events.EventType, handler func(context.Context, events.Event) error) {
	if a.publisher != nil {
		a.publisher.RegisterLocalHandler(eventType, handler)
		return
	}
	a.bus.Subscribe(eventType, func(ctx context.Context, event events.Event) {
		if err := handler(ctx, event); err != nil {
			log.WithError(err).Warn("Event handler failed")
		}
	})
}

// Close releases resources in reverse order of acquisition
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// Run initializes and starts the service until ctx is cancelled
func Run(ctx context.Context) error {
	cfg := config.Get()
	ConfigureLogging(cfg)
	log.Infof("Starting raffler in %s mode...", cfg.Environment)

	app, err := Bootstrap(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	if app.natsClient != nil {
		subscriber := infrastructure.NewNATSEventSubscriber(app.natsClient, infrastructure.NewEventSubjectMapper())
		if err := subscriber.Subscribe(events.EventTypeClaimObserved, app.ingestion.HandleClaimObserved); err != nil {
			return fmt.Errorf("failed to subscribe to claim events: %w", err)
		}
	}

	stopDraws := application.NewDrawWorker(app.orchestrator, cfg.DrawInterval).Start(ctx)
	stopPolling := application.NewClaimPollWorker(app.ingestion, cfg.ClaimPollInterval, app.pollSources...).Start(ctx)

	server := httpapi.NewServer(app.status, app.orchestrator, app.ingestion, httpapi.Options{
		Addr:          cfg.HTTPAddr,
		AdminToken:    cfg.AdminToken,
		WebhookSecret: cfg.WebhookSecret,
	})
	server.Start()

	log.Info("Raffler is running")
	<-ctx.Done()
	log.Info("Shutting down raffler...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("HTTP server shutdown error")
	}
	stopPolling()
	stopDraws()

	log.Info("Shutdown completed")
	return nil
}

// ForceDraw runs one draw attempt immediately and reports its outcome
func ForceDraw(ctx context.Context) error {
	cfg := config.Get()
	ConfigureLogging(cfg)

	app, err := Bootstrap(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	outcome, err := app.orchestrator.RunDraw(ctx, entities.TriggerForced)
	if err != nil {
		return err
	}
	fields := log.Fields{
		"result": outcome.Result,
		"reason": outcome.Reason,
	}
	if outcome.DrawID != nil {
		fields["drawId"] = outcome.DrawID.String()
	}
	log.WithFields(fields).Info("Forced draw finished")
	return nil
}

// RetryPayout re-attempts unpaid transfers of a finished draw
func RetryPayout(ctx context.Context, rawID string) error {
	drawID, err := uuid.Parse(rawID)
	if err != nil {
		return fmt.Errorf("invalid draw id %q: %w", rawID, err)
	}

	cfg := config.Get()
	ConfigureLogging(cfg)

	app, err := Bootstrap(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	result, err := app.orchestrator.RetryPayout(ctx, drawID)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"drawId":    result.DrawID,
		"attempted": result.Attempted,
		"paid":      result.Paid,
		"remaining": result.Remaining,
	}).Info("Payout retry finished")
	return nil
}
