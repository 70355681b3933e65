package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func baseEnv() map[string]string {
	return map[string]string{
		"LG_PUBLIC_BASE_URL":     "https://love.example.com/",
		"LG_FIREBASE_PROJECT_ID": "lg-dev",
		"LG_OBJECTS_BUCKET":      "lg-photos-dev",
	}
}

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := Load(context.Background(), WithEnvMap(baseEnv()), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Public.BaseURL != "https://love.example.com" {
		t.Errorf("expected trailing slash trimmed, got %s", cfg.Public.BaseURL)
	}
	if cfg.Firestore.ProjectID != "lg-dev" {
		t.Errorf("expected firestore project to default to firebase project, got %s", cfg.Firestore.ProjectID)
	}
	if cfg.Records.Driver != "firestore" || cfg.Objects.Driver != "gcs" {
		t.Errorf("unexpected default drivers records=%s objects=%s", cfg.Records.Driver, cfg.Objects.Driver)
	}
	if cfg.Drafts.Driver != "memory" || cfg.Drafts.TTL != 24*time.Hour || cfg.Drafts.DowngradePolicy != "block" {
		t.Errorf("unexpected draft defaults %+v", cfg.Drafts)
	}
	if cfg.Submission.SlugStrategy != "legacy" || cfg.Submission.UploadConcurrency != 8 {
		t.Errorf("unexpected submission defaults %+v", cfg.Submission)
	}
	if cfg.Events.Driver != "none" {
		t.Errorf("expected events disabled by default, got %s", cfg.Events.Driver)
	}
	if cfg.PSP.Currency != "inr" {
		t.Errorf("expected inr currency, got %s", cfg.PSP.Currency)
	}
	if !strings.HasPrefix(cfg.PSP.SuccessURL, "https://love.example.com/create") {
		t.Errorf("expected success url derived from base url, got %s", cfg.PSP.SuccessURL)
	}
	if len(cfg.CORS.AllowedOrigins) != 0 {
		t.Errorf("expected no cors origins, got %v", cfg.CORS.AllowedOrigins)
	}
	if cfg.Security.Environment != "local" {
		t.Errorf("expected default security environment local, got %s", cfg.Security.Environment)
	}
	if len(cfg.Security.OIDC.Issuers) != 2 {
		t.Errorf("expected default issuers, got %v", cfg.Security.OIDC.Issuers)
	}
	if cfg.Idempotency.Header != "Idempotency-Key" || cfg.Idempotency.TTL != 24*time.Hour {
		t.Errorf("unexpected idempotency defaults %+v", cfg.Idempotency)
	}
	if cfg.Idempotency.CleanupInterval != time.Hour || cfg.Idempotency.CleanupBatchSize != 200 {
		t.Errorf("unexpected idempotency cleanup defaults %+v", cfg.Idempotency)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"LG_SERVER_PORT":                     "9090",
		"LG_SERVER_IDLE_TIMEOUT":             "2m",
		"LG_PUBLIC_BASE_URL":                 "https://love.example.com",
		"LG_RECORDS_DRIVER":                  "Postgres",
		"LG_DATABASE_URL":                    "secret://supabase/db-url",
		"LG_OBJECTS_DRIVER":                  "s3",
		"LG_OBJECTS_BUCKET":                  "galleries",
		"LG_OBJECTS_PUBLIC_BASE_URL":         "https://abc.supabase.co/storage/v1/object/public/galleries",
		"LG_S3_ENDPOINT":                     "https://abc.supabase.co/storage/v1/s3",
		"LG_S3_ACCESS_KEY_ID":                "access",
		"LG_S3_SECRET_ACCESS_KEY":            "sm://supabase/s3-secret",
		"LG_REDIS_ADDR":                      "localhost:6379",
		"LG_DRAFTS_DRIVER":                   "redis",
		"LG_DRAFTS_VARIANT":                  "complete",
		"LG_DRAFTS_DOWNGRADE_POLICY":         "trim",
		"LG_CACHE_DRIVER":                    "redis",
		"LG_SUBMISSION_SLUG_STRATEGY":        "generated",
		"LG_SUBMISSION_REQUIRE_PLAN_PAYMENT": "true",
		"LG_PSP_STRIPE_API_KEY":              "secret://stripe/api",
		"LG_EVENTS_DRIVER":                   "pubsub",
		"LG_EVENTS_PROJECT_ID":               "lg-events",
		"LG_CORS_ALLOWED_ORIGINS":            "https://love.example.com, https://www.love.example.com",
		"LG_SECURITY_ENVIRONMENT":            "prod",
		"LG_SECURITY_OIDC_AUDIENCES":         "prod=https://api.love.example.com,stg=https://stg.love.example.com",
		"LG_IDEMPOTENCY_DRIVER":              "redis",
		"LG_IDEMPOTENCY_HEADER":              "X-Idem-Key",
		"LG_IDEMPOTENCY_TTL":                 "48h",
	}

	secrets := map[string]string{
		"secret://supabase/db-url":    "postgres://user:pw@db.abc.supabase.co:5432/postgres",
		"secret://supabase/s3-secret": "s3-secret",
		"secret://stripe/api":         "sk_test_123",
	}
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if v, ok := secrets[ref]; ok {
			return v, nil
		}
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" || cfg.Server.IdleTimeout != 2*time.Minute {
		t.Errorf("unexpected server config %+v", cfg.Server)
	}
	if cfg.Records.Driver != "postgres" {
		t.Errorf("expected driver to be normalised, got %s", cfg.Records.Driver)
	}
	if cfg.Postgres.URL != secrets["secret://supabase/db-url"] {
		t.Errorf("expected resolved database url, got %s", cfg.Postgres.URL)
	}
	if cfg.Objects.S3.SecretAccessKey != "s3-secret" {
		t.Errorf("expected resolved legacy sm:// secret, got %s", cfg.Objects.S3.SecretAccessKey)
	}
	if !cfg.Objects.S3.UsePathStyle {
		t.Errorf("expected path style default on")
	}
	if cfg.PSP.StripeAPIKey != "sk_test_123" {
		t.Errorf("expected resolved stripe key, got %s", cfg.PSP.StripeAPIKey)
	}
	if cfg.Events.ProjectID != "lg-events" || cfg.Events.Topic != "gallery-events" {
		t.Errorf("unexpected events config %+v", cfg.Events)
	}
	if len(cfg.CORS.AllowedOrigins) != 2 || cfg.CORS.AllowedOrigins[1] != "https://www.love.example.com" {
		t.Errorf("unexpected cors origins %v", cfg.CORS.AllowedOrigins)
	}
	if cfg.Security.OIDC.Audience != "https://api.love.example.com" {
		t.Errorf("expected audience picked by environment, got %s", cfg.Security.OIDC.Audience)
	}
	if cfg.Drafts.Variant != "complete" || cfg.Drafts.DowngradePolicy != "trim" {
		t.Errorf("unexpected drafts config %+v", cfg.Drafts)
	}
	if cfg.Idempotency.Header != "X-Idem-Key" || cfg.Idempotency.TTL != 48*time.Hour {
		t.Errorf("unexpected idempotency config %+v", cfg.Idempotency)
	}
}

func TestLoadDotEnvFallback(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "LG_SERVER_PORT=7070\nexport LG_PUBLIC_BASE_URL=\"http://localhost:3000\"\nLG_RECORDS_DRIVER=memory\nLG_OBJECTS_DRIVER=memory\n"
	if err := os.WriteFile(envPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write dotenv file: %v", err)
	}

	cfg, err := Load(context.Background(), WithEnvFile(envPath), WithoutSystemEnv())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port from dotenv 7070, got %s", cfg.Server.Port)
	}
	if cfg.Public.BaseURL != "http://localhost:3000" {
		t.Errorf("expected base url from dotenv, got %s", cfg.Public.BaseURL)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	_, err := Load(context.Background(), WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	fields := strings.Join(verr.Fields(), ",")
	for _, want := range []string{"Public.BaseURL", "Firestore.ProjectID", "Objects.Bucket"} {
		if !strings.Contains(fields, want) {
			t.Errorf("expected %s in %s", want, fields)
		}
	}
}

func TestLoadRejectsUnknownDriversAndMissingRedis(t *testing.T) {
	env := baseEnv()
	env["LG_RECORDS_DRIVER"] = "mongo"
	env["LG_DRAFTS_DRIVER"] = "redis"
	env["LG_SUBMISSION_SLUG_STRATEGY"] = "uuid"

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	fields := strings.Join(verr.Fields(), ",")
	for _, want := range []string{"Records.Driver", "Redis.Addr", "Submission.SlugStrategy"} {
		if !strings.Contains(fields, want) {
			t.Errorf("expected %s in %s", want, fields)
		}
	}
}

func TestLoadPaymentRequirementNeedsStripeKey(t *testing.T) {
	env := baseEnv()
	env["LG_SUBMISSION_REQUIRE_PLAN_PAYMENT"] = "true"

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var verr *ValidationError
	if !errors.As(err, &verr) || !strings.Contains(strings.Join(verr.Fields(), ","), "PSP.StripeAPIKey") {
		t.Fatalf("expected PSP.StripeAPIKey validation error, got %v", err)
	}
}

func TestLoadInvalidDuration(t *testing.T) {
	env := baseEnv()
	env["LG_DRAFTS_TTL"] = "forever"

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil || !strings.Contains(err.Error(), "parse env") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestLoadSecretResolverError(t *testing.T) {
	env := baseEnv()
	env["LG_PSP_STRIPE_API_KEY"] = "secret://missing"

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected secret resolution error, got nil")
	}
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %T", err)
	}
	if secretErr.Ref != "secret://missing" {
		t.Errorf("unexpected secret ref %s", secretErr.Ref)
	}
}

func TestEnvironmentValuesMergesSources(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "LG_FIREBASE_PROJECT_ID=dot-project\nLG_SECRET_FALLBACK_FILE=.dot.local\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("failed writing env file: %v", err)
	}

	t.Setenv("LG_FIREBASE_PROJECT_ID", "os-project")
	t.Setenv("LG_SECRET_PROJECT_IDS", "prod=project-prod")

	overrides := map[string]string{
		"LG_FIREBASE_PROJECT_ID": "override-project",
		"LG_SECRET_VERSION_PINS": "secret://stripe/api=5",
	}

	values, err := EnvironmentValues(WithEnvFile(envPath), WithEnvMap(overrides))
	if err != nil {
		t.Fatalf("EnvironmentValues returned error: %v", err)
	}

	if got := values["LG_FIREBASE_PROJECT_ID"]; got != "override-project" {
		t.Fatalf("expected override project, got %s", got)
	}
	if got := values["LG_SECRET_FALLBACK_FILE"]; got != ".dot.local" {
		t.Fatalf("expected dotenv fallback file, got %s", got)
	}
	if got := values["LG_SECRET_PROJECT_IDS"]; got != "prod=project-prod" {
		t.Fatalf("expected system env project map, got %s", got)
	}
	if got := values["LG_SECRET_VERSION_PINS"]; got != "secret://stripe/api=5" {
		t.Fatalf("expected override version pin, got %s", got)
	}
}

func TestLoadMissingRequiredSecrets(t *testing.T) {
	_, err := Load(context.Background(),
		WithEnvMap(baseEnv()),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithRequiredSecrets("PSP.StripeAPIKey"),
	)
	if err == nil {
		t.Fatal("expected missing secrets error, got nil")
	}
	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSecretsError, got %T", err)
	}
	expectedRedacted := redactSecretName("PSP.StripeAPIKey")
	if got := missing.RedactedNames(); len(got) != 1 || got[0] != expectedRedacted {
		t.Fatalf("unexpected redacted names %v", got)
	}
}

func TestLoadMissingRequiredSecretsPanic(t *testing.T) {
	defer func() {
		rec := recover()
		if rec == nil {
			t.Fatal("expected panic when required secrets missing")
		}
		missing, ok := rec.(*MissingSecretsError)
		if !ok {
			t.Fatalf("expected MissingSecretsError panic, got %T", rec)
		}
		if len(missing.Names()) != 1 || missing.Names()[0] != "Postgres.URL" {
			t.Fatalf("unexpected missing secrets %v", missing.Names())
		}
	}()

	_, _ = Load(context.Background(),
		WithEnvMap(baseEnv()),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithRequiredSecrets("Postgres.URL"),
		WithPanicOnMissingSecrets(),
	)
}
