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

	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/lovegallery/api/internal/di"
	"github.com/lovegallery/api/internal/handlers"
	"github.com/lovegallery/api/internal/platform/auth"
	"github.com/lovegallery/api/internal/platform/config"
	"github.com/lovegallery/api/internal/platform/idempotency"
	"github.com/lovegallery/api/internal/platform/observability"
	"github.com/lovegallery/api/internal/platform/secrets"
	"github.com/lovegallery/api/internal/services"
)

const serviceName = "lovegallery-api"

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	envValues, err := config.EnvironmentValues()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read environment values: %v\n", err)
		os.Exit(1)
	}

	buildVersion := lookupEnv(envValues, "LG_BUILD_VERSION")
	baseLogger, err := observability.NewLogger(serviceName, buildVersion)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("api")

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)

	backends, err := di.OpenBackends(ctx, cfg, di.BackendOptions{Logger: logger})
	if err != nil {
		logger.Fatal("failed to open backends", zap.Error(err))
	}
	container, err := di.NewContainer(cfg, backends, di.ContainerOptions{Logger: logger, Build: buildInfo})
	if err != nil {
		_ = backends.Close(ctx)
		logger.Fatal("failed to build services", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("backend close error", zap.Error(err))
		}
	}()
	logger.Info("backends ready",
		zap.String("records", cfg.Records.Driver),
		zap.String("objects", cfg.Objects.Driver),
		zap.String("drafts", cfg.Drafts.Driver),
		zap.String("cache", cfg.Cache.Driver),
		zap.String("events", cfg.Events.Driver),
	)

	idempotencyStore := backends.Idempotency
	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(logger.Named("idempotency")),
	)

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	var cleanupWG sync.WaitGroup
	var cleanupTicker *time.Ticker
	if cfg.Idempotency.CleanupInterval > 0 {
		cleanupTicker = time.NewTicker(cfg.Idempotency.CleanupInterval)
		cleanupWG.Add(1)
		go func() {
			defer cleanupWG.Done()
			cleanupLogger := logger.Named("idempotency")
			for {
				select {
				case <-cleanupTicker.C:
					runCtx, cancel := context.WithTimeout(cleanupCtx, time.Minute)
					removed, err := idempotencyStore.CleanupExpired(runCtx, time.Now().UTC(), cfg.Idempotency.CleanupBatchSize)
					cancel()
					if err != nil {
						cleanupLogger.Error("idempotency cleanup error", zap.Error(err))
						continue
					}
					if removed > 0 {
						cleanupLogger.Info("idempotency cleanup removed records", zap.Int("count", removed))
					}
				case <-cleanupCtx.Done():
					return
				}
			}
		}()
	}

	authenticator, err := buildAuthenticator(ctx, logger.Named("auth"), cfg)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	oidcMiddleware := buildOIDCMiddleware(logger.Named("auth"), cfg)

	svc := container.Services
	uploadLimits := handlers.WithUploadLimits(cfg.Drafts.MaxPhotoBytes, cfg.Drafts.MaxMusicBytes)
	draftHandlers := handlers.NewDraftHandlers(authenticator, svc.Drafts, svc.Submissions,
		uploadLimits, handlers.WithRateLimit(cfg.RateLimits.SubmitPerMinute))
	galleryHandlers := handlers.NewGalleryHandlers(authenticator, svc.Submissions, svc.Galleries,
		uploadLimits, handlers.WithRateLimit(cfg.RateLimits.SubmitPerMinute))
	valentineHandlers := handlers.NewValentineHandlers(svc.Valentines, handlers.WithRateLimit(cfg.RateLimits.ValentinePerMinute))
	catalogHandlers := handlers.NewCatalogHandlers(svc.Catalog)
	checkoutHandlers := handlers.NewCheckoutHandlers(authenticator, svc.Checkout)
	sharePageHandlers := handlers.NewSharePageHandlers(svc.Galleries, observability.NewEventLogger(logger.Named("share_page")))
	maintenanceHandlers := handlers.NewMaintenanceHandlers(idempotencyStore, cfg.Idempotency.CleanupBatchSize, nil)

	projectID := traceProjectID(cfg)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(),
	}

	healthOpts := []handlers.HealthOption{handlers.WithHealthBuildInfo(buildInfo)}
	if svc.System != nil {
		healthOpts = append(healthOpts, handlers.WithHealthSystemService(svc.System))
	}
	healthHandlers := handlers.NewHealthHandlers(healthOpts...)

	opts := []handlers.Option{
		handlers.WithMiddlewares(middlewares...),
		handlers.WithCORSOrigins(cfg.CORS.AllowedOrigins...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithAPIMiddlewares(idempotencyMiddleware),
		handlers.WithDraftRoutes(draftHandlers.Routes),
		handlers.WithGalleryRoutes(galleryHandlers.Routes),
		handlers.WithMeRoutes(galleryHandlers.MeRoutes),
		handlers.WithValentineRoutes(valentineHandlers.Routes),
		handlers.WithCatalogRoutes(catalogHandlers.Routes),
		handlers.WithCheckoutRoutes(checkoutHandlers.Routes),
		handlers.WithSharePageRoutes(sharePageHandlers.Routes),
		handlers.WithInternalRoutes(maintenanceHandlers.Routes),
	}
	if oidcMiddleware != nil {
		opts = append(opts, handlers.WithInternalMiddlewares(oidcMiddleware))
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
		serverLogger.Info("love gallery api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	if cleanupTicker != nil {
		cleanupTicker.Stop()
	}
	cleanupCancel()
	cleanupWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	version := lookupEnv(env, "LG_BUILD_VERSION")
	if version == "" {
		version = "dev"
	}
	commit := lookupEnv(env, "LG_BUILD_COMMIT_SHA")
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(cfg.Security.Environment)
	if environment == "" {
		environment = "local"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

// buildAuthenticator returns an authenticator that treats every caller as
// anonymous when no Firebase project is configured.
func buildAuthenticator(ctx context.Context, logger *zap.Logger, cfg config.Config) (*auth.Authenticator, error) {
	var verifier auth.TokenVerifier
	if strings.TrimSpace(cfg.Firebase.ProjectID) != "" {
		firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
		if err != nil {
			return nil, err
		}
		verifier = firebaseVerifier
	} else {
		logger.Warn("auth: firebase project not configured; owner routes will reject requests")
	}
	return auth.NewAuthenticator(verifier), nil
}

func buildOIDCMiddleware(logger *zap.Logger, cfg config.Config) func(http.Handler) http.Handler {
	if strings.TrimSpace(cfg.Security.OIDC.JWKSURL) == "" {
		return nil
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	cache := auth.NewJWKSCache(cfg.Security.OIDC.JWKSURL, auth.WithJWKSLogger(logger))
	validator := auth.NewOIDCValidator(cache, logger)

	audience := strings.TrimSpace(cfg.Security.OIDC.Audience)
	if audience == "" {
		audience = strings.TrimSpace(cfg.Security.OIDC.Audiences["maintenance"])
	}
	if audience == "" {
		logger.Warn("auth: OIDC audience not configured; internal routes will reject requests")
	}
	issuers := cfg.Security.OIDC.Issuers
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
	project := lookupEnv(env, "LG_SECRET_PROJECT_ID")
	if project == "" {
		project = lookupEnv(env, "LG_FIREBASE_PROJECT_ID")
	}
	fallbackPath := lookupEnv(env, "LG_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}
	credentialsFile := lookupEnv(env, "LG_FIREBASE_CREDENTIALS_FILE")

	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if project != "" {
		opts = append(opts, secrets.WithProject(project))
	}
	if credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}

	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames lists the secrets the selected drivers cannot run without.
func requiredSecretNames(env map[string]string) []string {
	var required []string
	if strings.EqualFold(lookupEnv(env, "LG_RECORDS_DRIVER"), "postgres") {
		required = append(required, "Postgres.URL")
	}
	if strings.EqualFold(lookupEnv(env, "LG_OBJECTS_DRIVER"), "s3") && lookupEnv(env, "LG_S3_ACCESS_KEY_ID") != "" {
		required = append(required, "Objects.S3.SecretAccessKey")
	}
	if strings.EqualFold(lookupEnv(env, "LG_SUBMISSION_REQUIRE_PLAN_PAYMENT"), "true") {
		required = append(required, "PSP.StripeAPIKey")
	}
	return required
}

func lookupEnv(env map[string]string, key string) string {
	if env == nil {
		return ""
	}
	return strings.TrimSpace(env[key])
}
