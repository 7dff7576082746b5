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
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/Mayne0963/otw-sub006/internal/di"
	"github.com/Mayne0963/otw-sub006/internal/domain"
	"github.com/Mayne0963/otw-sub006/internal/handlers"
	"github.com/Mayne0963/otw-sub006/internal/payments"
	"github.com/Mayne0963/otw-sub006/internal/platform/auth"
	"github.com/Mayne0963/otw-sub006/internal/platform/config"
	pfirestore "github.com/Mayne0963/otw-sub006/internal/platform/firestore"
	"github.com/Mayne0963/otw-sub006/internal/platform/idempotency"
	"github.com/Mayne0963/otw-sub006/internal/platform/jobs"
	"github.com/Mayne0963/otw-sub006/internal/platform/observability"
	"github.com/Mayne0963/otw-sub006/internal/platform/secrets"
	"github.com/Mayne0963/otw-sub006/internal/repositories"
	firestoreRepo "github.com/Mayne0963/otw-sub006/internal/repositories/firestore"
	"github.com/Mayne0963/otw-sub006/internal/services"
)

const (
	verifyRateLimit  = 30
	verifyRateWindow = time.Minute
)

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

	logger := baseLogger.Named("api")

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
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
		var invalid *config.ValidationError
		if errors.As(err, &invalid) {
			logger.Fatal("invalid configuration", zap.Strings("fields", invalid.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(envValues, startedAt)

	var firestoreOpts []pfirestore.ProviderOption
	if path := strings.TrimSpace(cfg.Firebase.CredentialsFile); path != "" {
		firestoreOpts = append(firestoreOpts, pfirestore.WithClientOptions(option.WithCredentialsFile(path)))
	}
	firestoreProvider := pfirestore.NewProvider(cfg.Firestore, firestoreOpts...)
	registry, err := firestoreRepo.NewRegistry(firestoreProvider,
		firestoreRepo.WithMirrorPolicy(mirrorPolicy(cfg)),
		firestoreRepo.WithOrderClock(time.Now),
	)
	if err != nil {
		logger.Fatal("failed to initialise order repository", zap.Error(err))
	}

	gateway, err := newPaymentGateway(logger, cfg)
	if err != nil {
		logger.Fatal("failed to initialise stripe gateway", zap.Error(err))
	}

	var (
		orderEvents services.OrderEventPublisher
		eventTopic  *pubsub.Topic
	)
	if topicName := strings.TrimSpace(cfg.Events.Topic); topicName != "" {
		pubsubClient, err := pubsub.NewClient(ctx, cfg.Events.ProjectID, pubsubClientOptions(cfg)...)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
		eventTopic = pubsubClient.Topic(topicName)
		publisher, err := jobs.NewPubSubOrderPublisher(eventTopic)
		if err != nil {
			logger.Fatal("failed to initialise order event publisher", zap.Error(err))
		}
		defer publisher.Stop()
		orderEvents = publisher
	} else {
		logger.Info("order events disabled; no topic configured")
	}

	deps := di.Deps{
		Events: orderEvents,
		Logger: observability.EventLogger(logger.Named("services")),
		Clock:  time.Now,
	}
	if gateway != nil {
		deps.Gateway = gateway
	}
	container, err := di.NewContainer(ctx, cfg, registry, deps)
	if err != nil {
		logger.Fatal("failed to initialise services", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	resolver := auth.NewIdentityResolver(firebaseVerifier)
	authenticator := auth.NewAuthenticator(resolver, auth.WithInvalidTokenPolicy(cfg.Auth.InvalidTokenPolicy))

	idempotencyStore, err := idempotency.NewFirestoreStore(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise idempotency store", zap.Error(err))
	}
	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
	)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workerWG sync.WaitGroup

	idempotencyLogger := logger.Named("idempotency")
	runPeriodic(workerCtx, &workerWG, cfg.Idempotency.CleanupInterval, func(runCtx context.Context) {
		removed, err := idempotencyStore.CleanupExpired(runCtx, time.Now().UTC(), cfg.Idempotency.CleanupBatchSize)
		if err != nil {
			idempotencyLogger.Error("idempotency cleanup error", zap.Error(err))
			return
		}
		if removed > 0 {
			idempotencyLogger.Info("idempotency cleanup removed records", zap.Int("count", removed))
		}
	})

	if reconciler := container.Services.Reconciler; reconciler != nil {
		indexLogger := logger.Named("order_index")
		runPeriodic(workerCtx, &workerWG, cfg.OrderIndex.SweepInterval, func(runCtx context.Context) {
			result, err := reconciler.Sweep(runCtx)
			if err != nil {
				indexLogger.Error("order index sweep error", zap.Error(err))
				return
			}
			if result.Scanned > 0 {
				indexLogger.Info("order index sweep finished",
					zap.Int("scanned", result.Scanned),
					zap.Int("repaired", result.Repaired),
					zap.Int("failed", result.Failed),
				)
			}
		})
	}

	probe, err := newReadinessProbe(firestoreProvider, eventTopic)
	if err != nil {
		logger.Fatal("failed to initialise readiness probe", zap.Error(err))
	}
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithHealthProbe(probe),
	)

	projectID := traceProjectID(cfg)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(projectID),
		authenticator.ResolveIdentity(),
	}

	svc := container.Services
	var opts []handlers.Option
	opts = append(opts, handlers.WithMiddlewares(middlewares...))
	opts = append(opts, handlers.WithHealthHandlers(healthHandlers))
	opts = append(opts, handlers.WithMutationMiddlewares(idempotencyMiddleware))
	opts = append(opts, handlers.WithOrderRoutes(handlers.NewOrderHandlers(svc.Orders).Routes))
	opts = append(opts, handlers.WithMeRoutes(handlers.NewMeHandlers(authenticator, svc.Orders).Routes))

	if svc.Checkout != nil && svc.Payments != nil {
		checkoutHandlers := handlers.NewCheckoutHandlers(svc.Orders, svc.Checkout, handlers.CheckoutURLs{
			SuccessURL: cfg.PSP.SuccessURL,
			CancelURL:  cfg.PSP.CancelURL,
		})
		paymentHandlers := handlers.NewPaymentHandlers(svc.Payments,
			handlers.WithVerifyRateLimit(verifyRateLimit, verifyRateWindow, time.Now),
		)
		opts = append(opts, handlers.WithCheckoutRoutes(checkoutHandlers.Routes))
		opts = append(opts, handlers.WithPaymentRoutes(paymentHandlers.Routes))

		if webhookVerifier, err := payments.NewStripeWebhookVerifier(cfg.PSP.StripeWebhookSecret); err != nil {
			logger.Warn("stripe webhooks disabled", zap.Error(err))
		} else {
			opts = append(opts, handlers.WithWebhookRoutes(handlers.NewWebhookHandlers(webhookVerifier, svc.Payments).Routes))
		}
	} else {
		logger.Warn("payment gateway not configured; checkout and verification routes disabled")
	}

	if svc.Reconciler != nil {
		opts = append(opts, handlers.WithInternalRoutes(handlers.NewInternalHandlers(svc.Reconciler).Routes))
		if oidcMiddleware := buildOIDCMiddleware(logger.Named("auth"), cfg); oidcMiddleware != nil {
			opts = append(opts, handlers.WithInternalMiddlewares(oidcMiddleware))
		}
	}

	router := handlers.NewRouter(opts...)
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
		serverLogger.Info("order api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	workerCancel()
	workerWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// runPeriodic calls fn every interval until ctx ends. A non-positive interval disables the worker.
func runPeriodic(ctx context.Context, wg *sync.WaitGroup, interval time.Duration, fn func(context.Context)) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				runCtx, cancel := context.WithTimeout(ctx, time.Minute)
				fn(runCtx)
				cancel()
			case <-ctx.Done():
				return
			}
		}
	}()
}

func mirrorPolicy(cfg config.Config) repositories.MirrorPolicy {
	policy := repositories.DefaultMirrorPolicy()
	if cfg.OrderIndex.MirrorAttempts > 0 {
		policy.Attempts = cfg.OrderIndex.MirrorAttempts
	}
	return policy
}

func newPaymentGateway(logger *zap.Logger, cfg config.Config) (*payments.StripeGateway, error) {
	if strings.TrimSpace(cfg.PSP.StripeAPIKey) == "" {
		return nil, nil
	}
	return payments.NewStripeGateway(payments.StripeGatewayConfig{
		APIKey:   cfg.PSP.StripeAPIKey,
		Currency: cfg.PSP.Currency,
		Timeout:  cfg.PSP.GatewayTimeout,
		Logger:   payments.StripeLogger(observability.EventLogger(logger.Named("payments"))),
	})
}

func pubsubClientOptions(cfg config.Config) []option.ClientOption {
	if file := strings.TrimSpace(cfg.Firebase.CredentialsFile); file != "" {
		return []option.ClientOption{option.WithCredentialsFile(file)}
	}
	return nil
}

func newReadinessProbe(provider *pfirestore.Provider, topic *pubsub.Topic) (*repositories.DependencyProbe, error) {
	checks := []repositories.DependencyCheck{{
		Name:    "firestore",
		Timeout: 1500 * time.Millisecond,
		Check:   provider.Ping,
	}}
	if topic != nil {
		t := topic
		checks = append(checks, repositories.DependencyCheck{
			Name:    "pubsub",
			Timeout: 1500 * time.Millisecond,
			Check: func(ctx context.Context) error {
				exists, err := t.Exists(ctx)
				if err != nil {
					return err
				}
				if !exists {
					return fmt.Errorf("topic %s not found", t.ID())
				}
				return nil
			},
		})
	}
	return repositories.NewDependencyProbe(checks)
}

func buildInfoFromEnv(env map[string]string, started time.Time) domain.BuildInfo {
	version := strings.TrimSpace(env["API_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["API_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(env["API_ENVIRONMENT"])
	if environment == "" {
		environment = "local"
	}
	return domain.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

func buildOIDCMiddleware(logger *zap.Logger, cfg config.Config) func(http.Handler) http.Handler {
	if strings.TrimSpace(cfg.Auth.OIDC.JWKSURL) == "" {
		return nil
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	cache := auth.NewJWKSCache(cfg.Auth.OIDC.JWKSURL)
	validator := auth.NewOIDCValidator(cache)

	audience := strings.TrimSpace(cfg.Auth.OIDC.Audience)
	if audience == "" {
		logger.Warn("auth: OIDC audience not configured; internal routes will reject requests")
	}
	issuers := cfg.Auth.OIDC.Issuers
	if len(issuers) == 0 {
		logger.Warn("auth: OIDC issuers not configured; internal routes will reject requests")
	}

	return validator.RequireOIDC(audience, issuers)
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		if env == nil {
			return ""
		}
		return strings.TrimSpace(env[key])
	}

	defaultProject := lookup("API_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("API_FIREBASE_PROJECT_ID")
	}
	fallbackPath := lookup("API_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}
	credentialsFile := lookup("API_FIREBASE_CREDENTIALS_FILE")

	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}
	if credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}

	return secrets.NewFetcher(ctx, opts...)
}
