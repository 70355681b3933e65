package di

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	gcs "cloud.google.com/go/storage"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lovegallery/api/internal/payments"
	"github.com/lovegallery/api/internal/platform/config"
	pfirestore "github.com/lovegallery/api/internal/platform/firestore"
	"github.com/lovegallery/api/internal/platform/idempotency"
	"github.com/lovegallery/api/internal/platform/jobs"
	"github.com/lovegallery/api/internal/platform/storage"
	"github.com/lovegallery/api/internal/repositories"
	firestoreRepo "github.com/lovegallery/api/internal/repositories/firestore"
	"github.com/lovegallery/api/internal/repositories/memory"
	postgresRepo "github.com/lovegallery/api/internal/repositories/postgres"
	redisRepo "github.com/lovegallery/api/internal/repositories/redis"
	"github.com/lovegallery/api/internal/services"
)

// Backends holds every external client selected by configuration. Close
// releases them in reverse order of opening.
type Backends struct {
	Registry    repositories.Registry
	Objects     storage.ObjectStore
	Idempotency idempotency.Store
	Events      services.GalleryEventPublisher
	Payments    payments.Provider
}

// BackendOptions customises OpenBackends.
type BackendOptions struct {
	Logger *zap.Logger
	Clock  func() time.Time
}

type registry struct {
	galleries  repositories.GalleryRepository
	valentines repositories.ValentineRepository
	drafts     repositories.DraftRepository
	cache      repositories.GalleryCache
	health     repositories.HealthRepository
	closers    []func(context.Context) error
}

var _ repositories.Registry = (*registry)(nil)

func (r *registry) Galleries() repositories.GalleryRepository    { return r.galleries }
func (r *registry) Valentines() repositories.ValentineRepository { return r.valentines }
func (r *registry) Drafts() repositories.DraftRepository         { return r.drafts }
func (r *registry) GalleryCache() repositories.GalleryCache      { return r.cache }
func (r *registry) Health() repositories.HealthRepository        { return r.health }

// Close runs the registered closers newest first and joins their errors.
func (r *registry) Close(ctx context.Context) error {
	if r == nil {
		return nil
	}
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

func (r *registry) onClose(fn func(context.Context) error) {
	r.closers = append(r.closers, fn)
}

// OpenBackends connects the record store, object store, draft store, cache,
// idempotency store, event publisher and payment provider named by cfg.
// On error everything opened so far is closed again.
func OpenBackends(ctx context.Context, cfg config.Config, opts BackendOptions) (_ *Backends, err error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	reg := &registry{}
	defer func() {
		if err != nil {
			_ = reg.Close(context.Background())
		}
	}()
	var checks []repositories.DependencyCheck

	var firestoreProvider *pfirestore.Provider
	needFirestore := cfg.Records.Driver == "firestore" || cfg.Idempotency.Driver == "firestore"
	if needFirestore {
		firestoreProvider = pfirestore.NewProvider(cfg.Firestore)
		if _, err := firestoreProvider.Client(ctx); err != nil {
			return nil, fmt.Errorf("firestore: %w", err)
		}
		reg.onClose(firestoreProvider.Close)
		checks = append(checks, repositories.DependencyCheck{Name: "firestore", Critical: true, Check: firestoreProvider.Ping})
	}

	var redisClient goredis.UniversalClient
	if cfg.Drafts.Driver == "redis" || cfg.Cache.Driver == "redis" || cfg.Idempotency.Driver == "redis" {
		redisClient = goredis.NewUniversalClient(&goredis.UniversalOptions{
			Addrs:    []string{cfg.Redis.Addr},
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		reg.onClose(func(context.Context) error { return redisClient.Close() })
		if err := redisRepo.Ping(ctx, redisClient); err != nil {
			return nil, fmt.Errorf("redis: ping %s: %w", cfg.Redis.Addr, err)
		}
		checks = append(checks, repositories.DependencyCheck{
			Name:     "redis",
			Critical: cfg.Drafts.Driver == "redis",
			Check:    func(ctx context.Context) error { return redisRepo.Ping(ctx, redisClient) },
		})
	}

	if err := openRecords(ctx, cfg, reg, firestoreProvider, &checks); err != nil {
		return nil, err
	}

	switch cfg.Drafts.Driver {
	case "redis":
		drafts, err := redisRepo.NewDraftRepository(redisClient, clock)
		if err != nil {
			return nil, err
		}
		reg.drafts = drafts
	default:
		reg.drafts = memory.NewDraftRepository(clock)
	}

	switch cfg.Cache.Driver {
	case "redis":
		cache, err := redisRepo.NewGalleryCache(redisClient)
		if err != nil {
			return nil, err
		}
		reg.cache = cache
	case "memory":
		reg.cache = memory.NewGalleryCache(clock)
	}

	objects, err := openObjects(ctx, cfg, reg)
	if err != nil {
		return nil, err
	}
	checks = append(checks, repositories.DependencyCheck{Name: "objects", Critical: false, Check: objects.Ping})

	backends := &Backends{Registry: reg, Objects: objects}

	switch cfg.Idempotency.Driver {
	case "redis":
		backends.Idempotency = idempotency.NewRedisStore(redisClient)
	case "firestore":
		client, err := firestoreProvider.Client(ctx)
		if err != nil {
			return nil, fmt.Errorf("idempotency: %w", err)
		}
		backends.Idempotency = idempotency.NewFirestoreStore(client, "")
	default:
		backends.Idempotency = idempotency.NewMemoryStore()
	}

	if cfg.Events.Driver == "pubsub" {
		publisher, err := openPublisher(ctx, cfg.Events, reg)
		if err != nil {
			return nil, err
		}
		backends.Events = publisher
	}

	if cfg.PSP.StripeAPIKey != "" {
		paymentsLogger := logger.Named("payments")
		stripe, err := payments.NewStripeProvider(payments.StripeProviderConfig{
			APIKey: cfg.PSP.StripeAPIKey,
			Clock:  clock,
			Logger: payments.StripeLogger(eventLogger(paymentsLogger)),
		})
		if err != nil {
			return nil, fmt.Errorf("payments: %w", err)
		}
		backends.Payments = stripe
	} else {
		logger.Warn("stripe api key not configured; paid plans cannot be purchased")
		backends.Payments = payments.Disabled{}
	}

	health, err := repositories.NewDependencyHealthRepository(checks, repositories.WithDependencyClock(clock))
	if err != nil {
		return nil, err
	}
	reg.health = health
	return backends, nil
}

// Close releases every backend client.
func (b *Backends) Close(ctx context.Context) error {
	if b == nil || b.Registry == nil {
		return nil
	}
	return b.Registry.Close(ctx)
}

func openRecords(ctx context.Context, cfg config.Config, reg *registry, provider *pfirestore.Provider, checks *[]repositories.DependencyCheck) error {
	switch cfg.Records.Driver {
	case "firestore":
		galleries, err := firestoreRepo.NewGalleryRepository(provider)
		if err != nil {
			return err
		}
		valentines, err := firestoreRepo.NewValentineRepository(provider)
		if err != nil {
			return err
		}
		reg.galleries, reg.valentines = galleries, valentines
	case "postgres":
		db, err := postgresRepo.Open(ctx, cfg.Postgres)
		if err != nil {
			return err
		}
		reg.onClose(func(context.Context) error { return db.Close() })
		if err := postgresRepo.EnsureSchema(ctx, db); err != nil {
			return err
		}
		galleries, err := postgresRepo.NewGalleryRepository(db)
		if err != nil {
			return err
		}
		valentines, err := postgresRepo.NewValentineRepository(db)
		if err != nil {
			return err
		}
		reg.galleries, reg.valentines = galleries, valentines
		*checks = append(*checks, repositories.DependencyCheck{Name: "postgres", Critical: true, Check: pingSQL(db)})
	default:
		reg.galleries = memory.NewGalleryRepository()
		reg.valentines = memory.NewValentineRepository()
	}
	return nil
}

func pingSQL(db *sql.DB) func(context.Context) error {
	return func(ctx context.Context) error { return db.PingContext(ctx) }
}

func openObjects(ctx context.Context, cfg config.Config, reg *registry) (storage.ObjectStore, error) {
	switch cfg.Objects.Driver {
	case "gcs":
		client, err := gcs.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("storage: gcs client: %w", err)
		}
		reg.onClose(func(context.Context) error { return client.Close() })
		return storage.NewGCSStore(client, cfg.Objects.Bucket, cfg.Objects.PublicBaseURL)
	case "s3":
		s3cfg := storage.S3Config{
			Bucket:          cfg.Objects.Bucket,
			Region:          cfg.Objects.S3.Region,
			Endpoint:        cfg.Objects.S3.Endpoint,
			AccessKeyID:     cfg.Objects.S3.AccessKeyID,
			SecretAccessKey: cfg.Objects.S3.SecretAccessKey,
			PublicBaseURL:   cfg.Objects.PublicBaseURL,
			UsePathStyle:    cfg.Objects.S3.UsePathStyle,
		}
		client, err := storage.NewS3Client(ctx, s3cfg)
		if err != nil {
			return nil, err
		}
		return storage.NewS3Store(client, s3cfg)
	default:
		base := cfg.Objects.PublicBaseURL
		if base == "" {
			base = cfg.Public.BaseURL + "/objects"
		}
		return storage.NewMemoryStore(base), nil
	}
}

func openPublisher(ctx context.Context, cfg config.EventsConfig, reg *registry) (*jobs.PubSubEventPublisher, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub: client: %w", err)
	}
	reg.onClose(func(context.Context) error { return client.Close() })
	publisher, err := jobs.NewPubSubEventPublisher(client.Topic(cfg.Topic))
	if err != nil {
		return nil, err
	}
	reg.onClose(func(context.Context) error {
		publisher.Close()
		return nil
	})
	return publisher, nil
}
