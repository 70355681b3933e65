package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	defaultSecurityIssuer    = "https://accounts.google.com"
	defaultSecurityIAPIssuer = "https://cloud.google.com/iap"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server      ServerConfig
	Public      PublicConfig
	Firebase    FirebaseConfig
	Firestore   FirestoreConfig
	Records     RecordsConfig
	Postgres    PostgresConfig
	Objects     ObjectsConfig
	Redis       RedisConfig
	Drafts      DraftConfig
	Submission  SubmissionConfig
	Cache       CacheConfig
	Events      EventsConfig
	PSP         PSPConfig
	CORS        CORSConfig
	RateLimits  RateLimitConfig
	Security    SecurityConfig
	Idempotency IdempotencyConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// PublicConfig describes how shared links are built.
type PublicConfig struct {
	BaseURL string
}

// FirebaseConfig stores Firebase project settings. Identity verification is
// enabled when ProjectID is set.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// RecordsConfig selects the gallery and valentine record backend.
type RecordsConfig struct {
	Driver string
}

// PostgresConfig configures the Postgres record backend.
type PostgresConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// ObjectsConfig selects the object storage backend for photos and music.
type ObjectsConfig struct {
	Driver        string
	Bucket        string
	PublicBaseURL string
	S3            S3Config
}

// S3Config carries S3-compatible endpoint settings.
type S3Config struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// RedisConfig configures the shared Redis client.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// DraftConfig controls the creation wizard drafts.
type DraftConfig struct {
	Driver          string
	TTL             time.Duration
	Variant         string
	DowngradePolicy string
	MaxPhotoBytes   int64
	MaxMusicBytes   int64
}

// SubmissionConfig controls gallery finalisation.
type SubmissionConfig struct {
	SlugStrategy       string
	UploadConcurrency  int
	UploadTimeout      time.Duration
	RequirePlanPayment bool
}

// CacheConfig controls the gallery read cache.
type CacheConfig struct {
	Driver string
	TTL    time.Duration
}

// EventsConfig controls domain event publication.
type EventsConfig struct {
	Driver    string
	ProjectID string
	Topic     string
}

// PSPConfig collects payment provider settings.
type PSPConfig struct {
	StripeAPIKey string
	Currency     string
	SuccessURL   string
	CancelURL    string
}

// CORSConfig lists browser origins allowed to call the API.
type CORSConfig struct {
	AllowedOrigins []string
}

// RateLimitConfig controls request throttling.
type RateLimitConfig struct {
	SubmitPerMinute    int
	ValentinePerMinute int
}

// SecurityConfig groups server-to-server authentication settings.
type SecurityConfig struct {
	Environment string
	OIDC        OIDCConfig
}

// OIDCConfig controls Google-signed token verification.
type OIDCConfig struct {
	JWKSURL   string
	Audience  string
	Audiences map[string]string
	Issuers   []string
}

// IdempotencyConfig controls idempotency middleware behaviour.
type IdempotencyConfig struct {
	Driver           string
	Header           string
	TTL              time.Duration
	CleanupInterval  time.Duration
	CleanupBatchSize int
}

// rawEnv mirrors the LG_* environment variables.
type rawEnv struct {
	ServerPort         string        `env:"LG_SERVER_PORT" envDefault:"8080"`
	ServerReadTimeout  time.Duration `env:"LG_SERVER_READ_TIMEOUT" envDefault:"15s"`
	ServerWriteTimeout time.Duration `env:"LG_SERVER_WRITE_TIMEOUT" envDefault:"60s"`
	ServerIdleTimeout  time.Duration `env:"LG_SERVER_IDLE_TIMEOUT" envDefault:"120s"`

	PublicBaseURL string `env:"LG_PUBLIC_BASE_URL"`

	FirebaseProjectID       string `env:"LG_FIREBASE_PROJECT_ID"`
	FirebaseCredentialsFile string `env:"LG_FIREBASE_CREDENTIALS_FILE"`
	FirestoreProjectID      string `env:"LG_FIRESTORE_PROJECT_ID"`
	FirestoreEmulatorHost   string `env:"LG_FIRESTORE_EMULATOR_HOST"`

	RecordsDriver string `env:"LG_RECORDS_DRIVER" envDefault:"firestore"`

	PostgresURL             string        `env:"LG_DATABASE_URL"`
	PostgresMaxOpenConns    int           `env:"LG_DATABASE_MAX_OPEN_CONNS" envDefault:"10"`
	PostgresMaxIdleConns    int           `env:"LG_DATABASE_MAX_IDLE_CONNS" envDefault:"5"`
	PostgresConnMaxLifetime time.Duration `env:"LG_DATABASE_CONN_MAX_LIFETIME" envDefault:"30m"`

	ObjectsDriver        string `env:"LG_OBJECTS_DRIVER" envDefault:"gcs"`
	ObjectsBucket        string `env:"LG_OBJECTS_BUCKET"`
	ObjectsPublicBaseURL string `env:"LG_OBJECTS_PUBLIC_BASE_URL"`
	S3Endpoint           string `env:"LG_S3_ENDPOINT"`
	S3Region             string `env:"LG_S3_REGION" envDefault:"us-east-1"`
	S3AccessKeyID        string `env:"LG_S3_ACCESS_KEY_ID"`
	S3SecretAccessKey    string `env:"LG_S3_SECRET_ACCESS_KEY"`
	S3UsePathStyle       bool   `env:"LG_S3_USE_PATH_STYLE" envDefault:"true"`

	RedisAddr     string `env:"LG_REDIS_ADDR"`
	RedisPassword string `env:"LG_REDIS_PASSWORD"`
	RedisDB       int    `env:"LG_REDIS_DB" envDefault:"0"`

	DraftsDriver          string        `env:"LG_DRAFTS_DRIVER" envDefault:"memory"`
	DraftsTTL             time.Duration `env:"LG_DRAFTS_TTL" envDefault:"24h"`
	DraftsVariant         string        `env:"LG_DRAFTS_VARIANT" envDefault:"classic"`
	DraftsDowngradePolicy string        `env:"LG_DRAFTS_DOWNGRADE_POLICY" envDefault:"block"`
	DraftsMaxPhotoBytes   int64         `env:"LG_DRAFTS_MAX_PHOTO_BYTES" envDefault:"10485760"`
	DraftsMaxMusicBytes   int64         `env:"LG_DRAFTS_MAX_MUSIC_BYTES" envDefault:"15728640"`

	SubmissionSlugStrategy       string        `env:"LG_SUBMISSION_SLUG_STRATEGY" envDefault:"legacy"`
	SubmissionUploadConcurrency  int           `env:"LG_SUBMISSION_UPLOAD_CONCURRENCY" envDefault:"8"`
	SubmissionUploadTimeout      time.Duration `env:"LG_SUBMISSION_UPLOAD_TIMEOUT" envDefault:"45s"`
	SubmissionRequirePlanPayment bool          `env:"LG_SUBMISSION_REQUIRE_PLAN_PAYMENT" envDefault:"false"`

	CacheDriver string        `env:"LG_CACHE_DRIVER" envDefault:"memory"`
	CacheTTL    time.Duration `env:"LG_CACHE_TTL" envDefault:"10m"`

	EventsDriver    string `env:"LG_EVENTS_DRIVER" envDefault:"none"`
	EventsProjectID string `env:"LG_EVENTS_PROJECT_ID"`
	EventsTopic     string `env:"LG_EVENTS_TOPIC" envDefault:"gallery-events"`

	StripeAPIKey      string `env:"LG_PSP_STRIPE_API_KEY"`
	PaymentCurrency   string `env:"LG_PSP_CURRENCY" envDefault:"inr"`
	PaymentSuccessURL string `env:"LG_PSP_SUCCESS_URL"`
	PaymentCancelURL  string `env:"LG_PSP_CANCEL_URL"`

	CORSAllowedOrigins []string `env:"LG_CORS_ALLOWED_ORIGINS" envSeparator:","`

	RateLimitSubmitPerMin    int `env:"LG_RATELIMIT_SUBMIT_PER_MIN" envDefault:"10"`
	RateLimitValentinePerMin int `env:"LG_RATELIMIT_VALENTINE_PER_MIN" envDefault:"20"`

	SecurityEnvironment string            `env:"LG_SECURITY_ENVIRONMENT" envDefault:"local"`
	OIDCJWKSURL         string            `env:"LG_SECURITY_OIDC_JWKS_URL" envDefault:"https://www.googleapis.com/oauth2/v3/certs"`
	OIDCAudience        string            `env:"LG_SECURITY_OIDC_AUDIENCE"`
	OIDCAudiences       map[string]string `env:"LG_SECURITY_OIDC_AUDIENCES" envSeparator:"," envKeyValSeparator:"="`
	OIDCIssuers         []string          `env:"LG_SECURITY_OIDC_ISSUERS" envSeparator:","`

	IdempotencyDriver       string        `env:"LG_IDEMPOTENCY_DRIVER" envDefault:"memory"`
	IdempotencyHeader       string        `env:"LG_IDEMPOTENCY_HEADER" envDefault:"Idempotency-Key"`
	IdempotencyTTL          time.Duration `env:"LG_IDEMPOTENCY_TTL" envDefault:"24h"`
	IdempotencyInterval     time.Duration `env:"LG_IDEMPOTENCY_CLEANUP_INTERVAL" envDefault:"1h"`
	IdempotencyCleanupBatch int           `env:"LG_IDEMPOTENCY_CLEANUP_BATCH" envDefault:"200"`
}

// Load assembles the application configuration by combining defaults, .env overrides,
// environment variables, and optional secret manager lookups.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
		secret: SecretResolverFunc(func(ctx context.Context, ref string) (string, error) {
			return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
		}),
	}
	for _, opt := range opts {
		opt(&options)
	}

	values, err := mergedValues(options)
	if err != nil {
		return Config{}, err
	}

	var raw rawEnv
	if err := env.ParseWithOptions(&raw, env.Options{Environment: values}); err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}

	cfg := raw.config()

	resolvedSecrets := make(map[string]string)
	secretFields := []struct {
		name  string
		field *string
	}{
		{"PSP.StripeAPIKey", &cfg.PSP.StripeAPIKey},
		{"Postgres.URL", &cfg.Postgres.URL},
		{"Objects.S3.SecretAccessKey", &cfg.Objects.S3.SecretAccessKey},
		{"Redis.Password", &cfg.Redis.Password},
	}
	for _, target := range secretFields {
		resolved, err := resolveSecret(ctx, *target.field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*target.field = resolved
		resolvedSecrets[target.name] = strings.TrimSpace(resolved)
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	if missing := findMissingSecrets(options.requiredSecrets, resolvedSecrets); missing != nil {
		if options.panicOnMissingSecrets {
			fmt.Fprintf(os.Stderr, "config: %s\n", missing.Error())
			panic(missing)
		}
		return Config{}, missing
	}

	return cfg, nil
}

func (r rawEnv) config() Config {
	cfg := Config{
		Server: ServerConfig{
			Port:         strings.TrimSpace(r.ServerPort),
			ReadTimeout:  r.ServerReadTimeout,
			WriteTimeout: r.ServerWriteTimeout,
			IdleTimeout:  r.ServerIdleTimeout,
		},
		Public: PublicConfig{BaseURL: strings.TrimRight(strings.TrimSpace(r.PublicBaseURL), "/")},
		Firebase: FirebaseConfig{
			ProjectID:       strings.TrimSpace(r.FirebaseProjectID),
			CredentialsFile: strings.TrimSpace(r.FirebaseCredentialsFile),
		},
		Firestore: FirestoreConfig{
			ProjectID:    strings.TrimSpace(r.FirestoreProjectID),
			EmulatorHost: strings.TrimSpace(r.FirestoreEmulatorHost),
		},
		Records: RecordsConfig{Driver: lower(r.RecordsDriver)},
		Postgres: PostgresConfig{
			URL:             strings.TrimSpace(r.PostgresURL),
			MaxOpenConns:    r.PostgresMaxOpenConns,
			MaxIdleConns:    r.PostgresMaxIdleConns,
			ConnMaxLifetime: r.PostgresConnMaxLifetime,
		},
		Objects: ObjectsConfig{
			Driver:        lower(r.ObjectsDriver),
			Bucket:        strings.TrimSpace(r.ObjectsBucket),
			PublicBaseURL: strings.TrimSpace(r.ObjectsPublicBaseURL),
			S3: S3Config{
				Endpoint:        strings.TrimSpace(r.S3Endpoint),
				Region:          strings.TrimSpace(r.S3Region),
				AccessKeyID:     strings.TrimSpace(r.S3AccessKeyID),
				SecretAccessKey: strings.TrimSpace(r.S3SecretAccessKey),
				UsePathStyle:    r.S3UsePathStyle,
			},
		},
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(r.RedisAddr),
			Password: r.RedisPassword,
			DB:       r.RedisDB,
		},
		Drafts: DraftConfig{
			Driver:          lower(r.DraftsDriver),
			TTL:             r.DraftsTTL,
			Variant:         lower(r.DraftsVariant),
			DowngradePolicy: lower(r.DraftsDowngradePolicy),
			MaxPhotoBytes:   r.DraftsMaxPhotoBytes,
			MaxMusicBytes:   r.DraftsMaxMusicBytes,
		},
		Submission: SubmissionConfig{
			SlugStrategy:       lower(r.SubmissionSlugStrategy),
			UploadConcurrency:  r.SubmissionUploadConcurrency,
			UploadTimeout:      r.SubmissionUploadTimeout,
			RequirePlanPayment: r.SubmissionRequirePlanPayment,
		},
		Cache:  CacheConfig{Driver: lower(r.CacheDriver), TTL: r.CacheTTL},
		Events: EventsConfig{Driver: lower(r.EventsDriver), ProjectID: strings.TrimSpace(r.EventsProjectID), Topic: strings.TrimSpace(r.EventsTopic)},
		PSP: PSPConfig{
			StripeAPIKey: strings.TrimSpace(r.StripeAPIKey),
			Currency:     lower(r.PaymentCurrency),
			SuccessURL:   strings.TrimSpace(r.PaymentSuccessURL),
			CancelURL:    strings.TrimSpace(r.PaymentCancelURL),
		},
		CORS: CORSConfig{AllowedOrigins: trimAll(r.CORSAllowedOrigins)},
		RateLimits: RateLimitConfig{
			SubmitPerMinute:    r.RateLimitSubmitPerMin,
			ValentinePerMinute: r.RateLimitValentinePerMin,
		},
		Security: SecurityConfig{
			Environment: lower(r.SecurityEnvironment),
			OIDC: OIDCConfig{
				JWKSURL:   strings.TrimSpace(r.OIDCJWKSURL),
				Audience:  strings.TrimSpace(r.OIDCAudience),
				Audiences: lowerKeys(r.OIDCAudiences),
				Issuers:   trimAll(r.OIDCIssuers),
			},
		},
		Idempotency: IdempotencyConfig{
			Driver:           lower(r.IdempotencyDriver),
			Header:           strings.TrimSpace(r.IdempotencyHeader),
			TTL:              r.IdempotencyTTL,
			CleanupInterval:  r.IdempotencyInterval,
			CleanupBatchSize: r.IdempotencyCleanupBatch,
		},
	}

	// Firestore project defaults to Firebase project when unspecified.
	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}
	if cfg.Events.ProjectID == "" {
		cfg.Events.ProjectID = cfg.Firestore.ProjectID
	}
	if cfg.PSP.SuccessURL == "" && cfg.Public.BaseURL != "" {
		cfg.PSP.SuccessURL = cfg.Public.BaseURL + "/create?checkout=success&session_id={CHECKOUT_SESSION_ID}"
	}
	if cfg.PSP.CancelURL == "" && cfg.Public.BaseURL != "" {
		cfg.PSP.CancelURL = cfg.Public.BaseURL + "/create?checkout=cancelled"
	}
	if len(cfg.Security.OIDC.Issuers) == 0 {
		cfg.Security.OIDC.Issuers = []string{defaultSecurityIssuer, defaultSecurityIAPIssuer}
	}
	if cfg.Security.OIDC.Audience == "" {
		if audience, ok := cfg.Security.OIDC.Audiences[cfg.Security.Environment]; ok {
			cfg.Security.OIDC.Audience = audience
		}
	}
	return cfg
}

func validateConfig(cfg Config) error {
	var missing []string
	oneOf := func(field, value string, allowed ...string) {
		for _, candidate := range allowed {
			if value == candidate {
				return
			}
		}
		missing = append(missing, field)
	}

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	if u, err := url.Parse(cfg.Public.BaseURL); cfg.Public.BaseURL == "" || err != nil || u.Scheme == "" || u.Host == "" {
		missing = append(missing, "Public.BaseURL")
	}

	oneOf("Records.Driver", cfg.Records.Driver, "firestore", "postgres", "memory")
	switch cfg.Records.Driver {
	case "firestore":
		if cfg.Firestore.ProjectID == "" {
			missing = append(missing, "Firestore.ProjectID")
		}
	case "postgres":
		if cfg.Postgres.URL == "" {
			missing = append(missing, "Postgres.URL")
		}
	}

	oneOf("Objects.Driver", cfg.Objects.Driver, "gcs", "s3", "memory")
	if cfg.Objects.Driver != "memory" && cfg.Objects.Bucket == "" {
		missing = append(missing, "Objects.Bucket")
	}

	oneOf("Drafts.Driver", cfg.Drafts.Driver, "memory", "redis")
	oneOf("Drafts.Variant", cfg.Drafts.Variant, "classic", "story", "complete")
	oneOf("Drafts.DowngradePolicy", cfg.Drafts.DowngradePolicy, "block", "trim", "allow")
	if cfg.Drafts.TTL <= 0 {
		missing = append(missing, "Drafts.TTL")
	}
	if cfg.Drafts.MaxPhotoBytes <= 0 {
		missing = append(missing, "Drafts.MaxPhotoBytes")
	}
	if cfg.Drafts.MaxMusicBytes <= 0 {
		missing = append(missing, "Drafts.MaxMusicBytes")
	}
	oneOf("Cache.Driver", cfg.Cache.Driver, "memory", "redis", "none")
	oneOf("Idempotency.Driver", cfg.Idempotency.Driver, "memory", "redis", "firestore")
	needsRedis := cfg.Drafts.Driver == "redis" || cfg.Cache.Driver == "redis" || cfg.Idempotency.Driver == "redis"
	if needsRedis && cfg.Redis.Addr == "" {
		missing = append(missing, "Redis.Addr")
	}
	if cfg.Idempotency.Driver == "firestore" && cfg.Firestore.ProjectID == "" {
		missing = append(missing, "Firestore.ProjectID")
	}

	oneOf("Submission.SlugStrategy", cfg.Submission.SlugStrategy, "legacy", "generated")
	if cfg.Submission.UploadConcurrency <= 0 {
		missing = append(missing, "Submission.UploadConcurrency")
	}
	if cfg.Submission.RequirePlanPayment && cfg.PSP.StripeAPIKey == "" {
		missing = append(missing, "PSP.StripeAPIKey")
	}

	oneOf("Events.Driver", cfg.Events.Driver, "none", "pubsub")
	if cfg.Events.Driver == "pubsub" {
		if cfg.Events.ProjectID == "" {
			missing = append(missing, "Events.ProjectID")
		}
		if cfg.Events.Topic == "" {
			missing = append(missing, "Events.Topic")
		}
	}

	if strings.TrimSpace(cfg.Idempotency.Header) == "" {
		missing = append(missing, "Idempotency.Header")
	}
	if cfg.Idempotency.TTL <= 0 {
		missing = append(missing, "Idempotency.TTL")
	}
	if cfg.Idempotency.CleanupInterval <= 0 {
		missing = append(missing, "Idempotency.CleanupInterval")
	}
	if cfg.Idempotency.CleanupBatchSize <= 0 {
		missing = append(missing, "Idempotency.CleanupBatchSize")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func lower(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func lowerKeys(values map[string]string) map[string]string {
	out := make(map[string]string, len(values))
	for key, value := range values {
		key = lower(key)
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		out[key] = value
	}
	return out
}
