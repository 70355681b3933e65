// Package secrets resolves secret:// and sm:// configuration values through
// Google Secret Manager, with a local KEY=VALUE file for development.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultFallbackPath = ".secrets.local"
	defaultCacheTTL     = 15 * time.Minute
)

var newSecretManagerClient = func(ctx context.Context, opts ...option.ClientOption) (accessClient, error) {
	return secretmanager.NewClient(ctx, opts...)
}

type accessClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Fetcher resolves references and caches values for a bounded time so rotated
// secrets (Stripe keys, database URLs) are picked up without a restart.
type Fetcher struct {
	client     accessClient
	ownsClient bool
	logger     *zap.Logger
	project    string
	cacheTTL   time.Duration
	now        func() time.Time

	fallbackPath string
	fallbackOnce sync.Once
	fallback     map[string]string
	fallbackErr  error

	mu    sync.Mutex
	cache map[string]cached

	fetches metric.Int64Counter
	latency metric.Float64Histogram
}

type cached struct {
	value     string
	expiresAt time.Time
}

type settings struct {
	logger       *zap.Logger
	project      string
	cacheTTL     time.Duration
	fallbackPath string
	client       accessClient
	clientOpts   []option.ClientOption
	meter        metric.Meter
	now          func() time.Time
}

type Option func(*settings)

func WithLogger(logger *zap.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// WithProject sets the project used when a reference has no ?project=.
func WithProject(projectID string) Option {
	return func(s *settings) { s.project = strings.TrimSpace(projectID) }
}

func WithCacheTTL(ttl time.Duration) Option {
	return func(s *settings) { s.cacheTTL = ttl }
}

// WithFallbackFile sets the development secrets file; empty disables it.
func WithFallbackFile(path string) Option {
	return func(s *settings) { s.fallbackPath = path }
}

func WithClientOptions(opts ...option.ClientOption) Option {
	return func(s *settings) { s.clientOpts = append(s.clientOpts, opts...) }
}

func WithMeter(meter metric.Meter) Option {
	return func(s *settings) { s.meter = meter }
}

func withClient(client accessClient) Option {
	return func(s *settings) { s.client = client }
}

func withClock(now func() time.Time) Option {
	return func(s *settings) { s.now = now }
}

// NewFetcher never fails on missing credentials: without a Secret Manager
// client every reference is served from the fallback file.
func NewFetcher(ctx context.Context, opts ...Option) (*Fetcher, error) {
	s := settings{
		logger:       zap.NewNop(),
		cacheTTL:     defaultCacheTTL,
		fallbackPath: defaultFallbackPath,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(&s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.meter == nil {
		s.meter = otel.GetMeterProvider().Meter("github.com/lovegallery/api/internal/platform/secrets")
	}

	f := &Fetcher{
		client:       s.client,
		logger:       s.logger,
		project:      s.project,
		cacheTTL:     s.cacheTTL,
		now:          s.now,
		fallbackPath: s.fallbackPath,
		cache:        make(map[string]cached),
	}

	var err error
	if f.fetches, err = s.meter.Int64Counter("lovegallery.secrets.fetches",
		metric.WithDescription("Secret resolutions by source")); err != nil {
		return nil, fmt.Errorf("secrets: register counter: %w", err)
	}
	if f.latency, err = s.meter.Float64Histogram("lovegallery.secrets.fetch_latency",
		metric.WithUnit("ms"), metric.WithDescription("Secret Manager access latency")); err != nil {
		return nil, fmt.Errorf("secrets: register histogram: %w", err)
	}

	if f.client == nil && f.project != "" {
		client, err := newSecretManagerClient(ctx, s.clientOpts...)
		if err != nil {
			f.logger.Warn("secret manager unavailable, using fallback file", zap.Error(err))
		} else {
			f.client = client
			f.ownsClient = true
		}
	}
	return f, nil
}

func (f *Fetcher) Close() error {
	if f.ownsClient && f.client != nil {
		return f.client.Close()
	}
	return nil
}

// Resolve returns the value for ref. Permission and availability failures
// fall back to the local file; NotFound does not.
func (f *Fetcher) Resolve(ctx context.Context, raw string) (string, error) {
	ref, err := ParseReference(raw)
	if err != nil {
		return "", err
	}
	project := ref.Project
	if project == "" {
		project = f.project
	}
	name := fmt.Sprintf("projects/%s/secrets/%s/versions/%s", project, ref.Name, ref.versionOr("latest"))

	if value, ok := f.cached(name); ok {
		f.record(ctx, "cache")
		return value, nil
	}

	if f.client != nil && project != "" {
		start := time.Now()
		value, err := f.access(ctx, name)
		f.latency.Record(ctx, float64(time.Since(start))/float64(time.Millisecond))
		if err == nil {
			f.store(name, value)
			f.record(ctx, "secret_manager")
			return value, nil
		}
		if !fallbackAllowed(err) {
			f.record(ctx, "error")
			return "", fmt.Errorf("secrets: access %s: %w", ref.Key(), err)
		}
		f.logger.Debug("secret manager access failed, trying fallback", zap.String("secret", ref.Name), zap.Error(err))
	}

	value, err := f.fromFallback(ref)
	if err != nil {
		f.record(ctx, "error")
		return "", err
	}
	f.store(name, value)
	f.record(ctx, "fallback")
	return value, nil
}

// Invalidate drops every cached version of ref.
func (f *Fetcher) Invalidate(raw string) {
	ref, err := ParseReference(raw)
	if err != nil {
		return
	}
	marker := "/secrets/" + ref.Name + "/versions/"
	f.mu.Lock()
	defer f.mu.Unlock()
	for key := range f.cache {
		if strings.Contains(key, marker) {
			delete(f.cache, key)
		}
	}
}

func (f *Fetcher) access(ctx context.Context, name string) (string, error) {
	resp, err := f.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		return "", err
	}
	if resp.GetPayload() == nil {
		return "", errors.New("empty payload")
	}
	return string(resp.GetPayload().GetData()), nil
}

func (f *Fetcher) fromFallback(ref Reference) (string, error) {
	f.fallbackOnce.Do(func() {
		f.fallback, f.fallbackErr = loadFallbackFile(f.fallbackPath)
	})
	if f.fallbackErr != nil {
		return "", f.fallbackErr
	}
	value, ok := f.fallback[ref.Key()]
	if !ok {
		return "", fmt.Errorf("secrets: %s not found", ref.Key())
	}
	return value, nil
}

func (f *Fetcher) cached(name string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.cache[name]
	if !ok {
		return "", false
	}
	if f.cacheTTL > 0 && !f.now().Before(entry.expiresAt) {
		delete(f.cache, name)
		return "", false
	}
	return entry.value, true
}

func (f *Fetcher) store(name, value string) {
	f.mu.Lock()
	f.cache[name] = cached{value: value, expiresAt: f.now().Add(f.cacheTTL)}
	f.mu.Unlock()
}

func (f *Fetcher) record(ctx context.Context, source string) {
	f.fetches.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}

func fallbackAllowed(err error) bool {
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated, codes.Unavailable, codes.DeadlineExceeded:
		return true
	}
	return false
}
