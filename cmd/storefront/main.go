package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"

	"github.com/brickmini/storefront/internal/di"
	"github.com/brickmini/storefront/internal/handlers"
	"github.com/brickmini/storefront/internal/platform/config"
	pfirestore "github.com/brickmini/storefront/internal/platform/firestore"
	"github.com/brickmini/storefront/internal/platform/idempotency"
	"github.com/brickmini/storefront/internal/platform/observability"
	"github.com/brickmini/storefront/internal/platform/requestctx"
	"github.com/brickmini/storefront/internal/platform/secrets"
	platformstorage "github.com/brickmini/storefront/internal/platform/storage"
)

const sweepInterval = time.Minute

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("storefront")
	ctx = observability.WithLogger(ctx, logger)

	lookup, err := config.Lookup()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	fetcher, err := newSecretFetcher(ctx, logger, lookup)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx, config.WithSecretResolver(fetcher))
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	infra := di.Infra{HTTPClient: &http.Client{Timeout: 20 * time.Second}}
	var checks []handlers.HealthOption

	if addr := strings.TrimSpace(cfg.Redis.Addr); addr != "" {
		client := redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer func() {
			if err := client.Close(); err != nil {
				logger.Warn("redis close error", zap.Error(err))
			}
		}()
		infra.Redis = client
		checks = append(checks, handlers.WithReadinessCheck("redis", func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}))
	}

	if cfg.Orders.Backend == config.OrderBackendFirestore {
		provider := pfirestore.NewProvider(cfg.Firestore)
		defer func() {
			if err := provider.Close(); err != nil {
				logger.Warn("firestore close error", zap.Error(err))
			}
		}()
		infra.Firestore = provider
		checks = append(checks, handlers.WithReadinessCheck("firestore", func(ctx context.Context) error {
			client, err := provider.Client(ctx)
			if err != nil {
				return err
			}
			_, err = client.Collections(ctx).Next()
			if errors.Is(err, iterator.Done) {
				return nil
			}
			return err
		}))
	}

	if topicID := strings.TrimSpace(cfg.Notify.OrderTopic); topicID != "" {
		client, err := pubsub.NewClient(ctx, cfg.GCP.ProjectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		topic := client.Topic(topicID)
		defer func() {
			topic.Stop()
			if err := client.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
		infra.OrderTopic = topic
	}

	if keyFile := strings.TrimSpace(cfg.Catalogue.ImageSignerKeyFile); keyFile != "" {
		signer, err := platformstorage.LoadServiceAccountKey(keyFile)
		if err != nil {
			logger.Fatal("failed to load image signer key", zap.Error(err))
		}
		urls, err := platformstorage.NewClient(signer)
		if err != nil {
			logger.Fatal("failed to initialise signed url client", zap.Error(err))
		}
		infra.ImageSigner = urls
	}

	container, err := di.NewContainer(ctx, cfg, infra, logger)
	if err != nil {
		logger.Fatal("failed to build services", zap.Error(err))
	}

	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	var sweepWG sync.WaitGroup
	sweepTicker := time.NewTicker(sweepInterval)
	sweepWG.Add(1)
	go func() {
		defer sweepWG.Done()
		for {
			select {
			case <-sweepTicker.C:
				if removed := container.Sweep(); removed > 0 {
					logger.Debug("expired entries swept", zap.Int("count", removed))
				}
			case <-sweepCtx.Done():
				return
			}
		}
	}()

	require := container.Sessions.Require()
	submitGuard := idempotency.Middleware(
		container.Idempotency,
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithScope(func(r *http.Request) string {
			id, _ := requestctx.SessionID(r.Context())
			return id
		}),
		idempotency.WithLogger(observability.NewPrintfAdapter(logger.Named("idempotency"))),
	)

	sessionHandlers := handlers.NewSessionHandlers(container.Sessions, require,
		handlers.WithSessionRateLimit(cfg.Session.CreateLimit, cfg.Session.CreateWindow, nil))
	productHandlers := handlers.NewProductHandlers(container.Catalogue)
	cartHandlers := handlers.NewCartHandlers(container.Sessions, container.Catalogue, cfg.Payments.Currency)
	checkoutHandlers := handlers.NewCheckoutHandlers(container.Sessions, cfg.Payments.Currency, handlers.WithSubmitGuard(submitGuard))

	healthOpts := append([]handlers.HealthOption{handlers.WithHealthBuildInfo(buildInfo(lookup, cfg, startedAt))}, checks...)
	healthHandlers := handlers.NewHealthHandlers(healthOpts...)

	projectID := strings.TrimSpace(cfg.GCP.ProjectID)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(projectID),
	}

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithRequestTimeout(cfg.Server.RequestTimeout),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithSessionRoutes(sessionHandlers.Routes),
		handlers.WithProductRoutes(productHandlers.Routes),
		handlers.WithCartRoutes(cartHandlers.Routes),
		handlers.WithCheckoutRoutes(checkoutHandlers.Routes),
		handlers.WithShopperMiddlewares(require, observability.SessionFieldMiddleware),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("storefront api listening", zap.String("environment", cfg.Environment))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	sweepTicker.Stop()
	sweepCancel()
	sweepWG.Wait()

	// In-flight submissions keep running past the request deadline; allow them to finish.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Checkout.SubmitTimeout+5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func buildInfo(lookup func(string) (string, bool), cfg config.Config, started time.Time) handlers.BuildInfo {
	value := func(key, fallback string) string {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return fallback
	}
	return handlers.BuildInfo{
		Version:     value("BUILD_VERSION", "dev"),
		CommitSHA:   value("BUILD_COMMIT_SHA", "unknown"),
		Environment: cfg.Environment,
		StartedAt:   started,
	}
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, lookup func(string) (string, bool)) (*secrets.Fetcher, error) {
	value := func(key string) string {
		v, _ := lookup(key)
		return strings.TrimSpace(v)
	}

	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
	}
	if project := value("GCP_PROJECT_ID"); project != "" {
		opts = append(opts, secrets.WithProject(project))
	}
	if path := value("SECRET_FALLBACK_FILE"); path != "" {
		opts = append(opts, secrets.WithFallbackFile(path))
	}
	return secrets.NewFetcher(ctx, opts...)
}
