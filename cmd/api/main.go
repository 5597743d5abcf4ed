package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/stocktide/api/internal/di"
	"github.com/stocktide/api/internal/handlers"
	"github.com/stocktide/api/internal/platform/config"
	"github.com/stocktide/api/internal/platform/events"
	pfirestore "github.com/stocktide/api/internal/platform/firestore"
	"github.com/stocktide/api/internal/platform/idempotency"
	"github.com/stocktide/api/internal/platform/observability"
	"github.com/stocktide/api/internal/platform/secrets"
	fsrepo "github.com/stocktide/api/internal/repositories/firestore"
	"github.com/stocktide/api/internal/services"
)

const (
	mutationEventBuffer = 64
	providerCloseGrace  = 5 * time.Second
	shutdownGrace       = 10 * time.Second
	cleanupTimeout      = 30 * time.Second
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()
	logger = logger.Named("api")

	if err := run(context.Background(), logger); err != nil {
		logger.Fatal("server terminated", zap.Error(err))
	}
}

func run(ctx context.Context, logger *zap.Logger) error {
	env, err := config.EnvironmentValues()
	if err != nil {
		return fmt.Errorf("read environment: %w", err)
	}

	fetcher, err := secrets.NewFetcher(ctx,
		secrets.WithLogger(logger),
		secrets.WithEnvironment(env["API_SECURITY_ENVIRONMENT"]),
		secrets.WithDefaultProject(env["API_FIRESTORE_PROJECT_ID"]),
	)
	if err != nil {
		return fmt.Errorf("initialise secret fetcher: %w", err)
	}
	defer func() {
		_ = fetcher.Close()
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Error("required secrets failed to resolve", zap.Strings("secrets", missing.RedactedNames()))
		}
		return fmt.Errorf("load configuration: %w", err)
	}

	build := buildInfoFromEnv(env, cfg.Security.Environment)
	logger.Info("starting",
		zap.String("version", build.Version),
		zap.String("commit", build.CommitSHA),
		zap.String("environment", build.Environment),
	)

	provider := pfirestore.NewProvider(cfg.Firestore)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), providerCloseGrace)
		defer cancel()
		if err := provider.Close(closeCtx); err != nil {
			logger.Warn("firestore close failed", zap.Error(err))
		}
	}()

	client, err := provider.Client(ctx)
	if err != nil {
		return fmt.Errorf("dial firestore: %w", err)
	}

	registry, err := fsrepo.NewRegistry(provider)
	if err != nil {
		return fmt.Errorf("build repositories: %w", err)
	}

	svcLogger := serviceLogger(logger)

	bus := events.NewBus(events.WithBusLogger(svcLogger))
	defer bus.Close()

	mutations, err := bus.Subscribe(mutationEventBuffer)
	if err != nil {
		return fmt.Errorf("subscribe analytics pipeline: %w", err)
	}

	publisher := services.MutationPublisher(bus)
	if cfg.Events.Topic != "" {
		pubsubClient, err := pubsub.NewClient(ctx, cfg.Events.ProjectID)
		if err != nil {
			return fmt.Errorf("dial pub/sub: %w", err)
		}
		defer func() {
			_ = pubsubClient.Close()
		}()

		topic := pubsubClient.Topic(cfg.Events.Topic)
		defer topic.Stop()

		remote, err := events.NewPubSubMutationPublisher(topic)
		if err != nil {
			return fmt.Errorf("initialise pub/sub publisher: %w", err)
		}
		publisher = events.NewMultiPublisher(bus, remote)
		logger.Info("mutation events mirrored to pub/sub",
			zap.String("project", cfg.Events.ProjectID),
			zap.String("topic", cfg.Events.Topic),
		)
	}

	sanitizer := bluemonday.StrictPolicy()

	container, err := di.NewContainer(ctx, cfg, registry, di.Deps{
		Events:      publisher,
		Logger:      svcLogger,
		IDGenerator: func() string { return ulid.Make().String() },
		Sanitizer:   sanitizer.Sanitize,
		Build:       build,
	})
	if err != nil {
		return fmt.Errorf("build container: %w", err)
	}

	pipeline, err := services.NewAnalyticsPipeline(services.AnalyticsPipelineDeps{
		Analytics:      container.Services.Analytics,
		Events:         mutations,
		Debounce:       cfg.Analytics.DebounceInterval,
		RefreshTimeout: cfg.Analytics.RefreshTimeout,
		Logger:         svcLogger,
	})
	if err != nil {
		return fmt.Errorf("build analytics pipeline: %w", err)
	}

	backgroundCtx, stopBackground := context.WithCancel(ctx)
	defer stopBackground()
	var background sync.WaitGroup

	background.Add(1)
	go func() {
		defer background.Done()
		pipeline.Run(backgroundCtx)
	}()

	// Warm the snapshot so dashboard endpoints answer before the first mutation.
	warmCtx, cancelWarm := context.WithTimeout(ctx, cfg.Analytics.RefreshTimeout)
	if _, err := container.Services.Analytics.Refresh(warmCtx); err != nil {
		logger.Warn("initial analytics refresh failed", zap.Error(err))
	}
	cancelWarm()

	store := idempotency.NewFirestoreStore(client)
	idemMiddleware := idempotency.Middleware(store,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(observability.NewPrintfAdapter(logger.Named("idempotency"))),
	)

	background.Add(1)
	go func() {
		defer background.Done()
		ticker := time.NewTicker(cfg.Idempotency.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-backgroundCtx.Done():
				return
			case now := <-ticker.C:
				cleanupCtx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
				removed, err := store.CleanupExpired(cleanupCtx, now.UTC(), cfg.Idempotency.CleanupBatchSize)
				cancel()
				if err != nil {
					logger.Warn("idempotency cleanup failed", zap.Error(err))
					continue
				}
				if removed > 0 {
					logger.Debug("expired idempotency records removed", zap.Int("count", removed))
				}
			}
		}
	}()

	if cfg.Security.AdminAPIKey == "" {
		logger.Warn("admin api key is empty; api key check disabled")
	}

	analyticsHandlers := handlers.NewAnalyticsHandlers(container.Services.Analytics)

	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.TraceMiddleware(cfg.Firestore.ProjectID),
			observability.InjectLoggerMiddleware(logger),
			observability.RequestLoggerMiddleware(cfg.Firestore.ProjectID),
			observability.RecoveryMiddleware(logger),
			handlers.ActorMiddleware(),
		),
		handlers.WithAPIMiddlewares(
			handlers.APIKeyMiddleware(cfg.Security.AdminAPIKey),
			handlers.RateLimitMiddleware(cfg.RateLimits.DefaultPerMinute, time.Minute),
			idemMiddleware,
		),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(
			handlers.WithHealthSystemService(container.Services.System),
			handlers.WithHealthBuildInfo(build),
		)),
		handlers.WithProductRoutes(handlers.NewProductHandlers(container.Services.Catalog).Routes),
		handlers.WithCategoryRoutes(handlers.NewCategoryHandlers(container.Services.Catalog).Routes),
		handlers.WithCustomerRoutes(handlers.NewCustomerHandlers(container.Services.Customers).Routes),
		handlers.WithOrderRoutes(handlers.NewOrderHandlers(container.Services.Orders).Routes),
		handlers.WithOrderRequestRoutes(handlers.NewOrderRequestHandlers(container.Services.OrderRequests).Routes),
		handlers.WithInventoryRoutes(handlers.NewInventoryHandlers(container.Services.Catalog, container.Services.Analytics).Routes),
		handlers.WithAnalyticsRoutes(analyticsHandlers.Routes),
		handlers.WithReportRoutes(analyticsHandlers.ReportRoutes),
		handlers.WithExpenseRoutes(handlers.NewExpenseHandlers(container.Services.Expenses).Routes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		stopBackground()
		background.Wait()
		return fmt.Errorf("http server: %w", err)
	case sig := <-stop:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown incomplete", zap.Error(err))
	}

	stopBackground()
	background.Wait()
	return nil
}

func buildInfoFromEnv(env map[string]string, environment string) services.BuildInfo {
	version := env["API_BUILD_VERSION"]
	if version == "" {
		version = "dev"
	}
	commit := env["API_BUILD_COMMIT_SHA"]
	if commit == "" {
		commit = "unknown"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   time.Now().UTC(),
	}
}

func serviceLogger(logger *zap.Logger) func(ctx context.Context, event string, fields map[string]any) {
	base := logger.Named("services")
	return func(_ context.Context, event string, fields map[string]any) {
		zapFields := make([]zap.Field, 0, len(fields))
		for key, value := range fields {
			zapFields = append(zapFields, zap.Any(key, value))
		}
		base.Debug(event, zapFields...)
	}
}
