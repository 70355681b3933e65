package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lovegallery/api/internal/platform/config"
	"github.com/lovegallery/api/internal/platform/observability"
	"github.com/lovegallery/api/internal/repositories"
	"github.com/lovegallery/api/internal/services"
	"github.com/lovegallery/api/internal/wizard"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Drafts      services.DraftService
	Submissions services.SubmissionService
	Galleries   services.GalleryResolver
	Valentines  services.ValentineService
	Catalog     services.CatalogService
	Checkout    services.CheckoutService
	System      services.SystemService
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Backends     *Backends
	Repositories repositories.Registry
	Services     Services
}

// ContainerOptions carries process-level collaborators into NewContainer.
type ContainerOptions struct {
	Logger *zap.Logger
	Clock  func() time.Time
	Build  services.BuildInfo
}

// NewContainer constructs the runtime dependencies on top of opened backends.
// Tests can pass backends built from in-memory repositories.
func NewContainer(cfg config.Config, backends *Backends, opts ContainerOptions) (*Container, error) {
	if backends == nil || backends.Registry == nil {
		return nil, errors.New("repositories registry is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	svc, err := buildServices(cfg, backends, opts)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Backends:     backends,
		Repositories: backends.Registry,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients, publishers, or caches.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.Backends.Close(ctx)
}

func buildServices(cfg config.Config, backends *Backends, opts ContainerOptions) (Services, error) {
	var svc Services
	reg := backends.Registry
	clock := opts.Clock

	policy, err := wizard.ParseDowngradePolicy(cfg.Drafts.DowngradePolicy)
	if err != nil {
		return Services{}, fmt.Errorf("build draft service: %w", err)
	}
	draftSvc, err := services.NewDraftService(services.DraftServiceDeps{
		Drafts:          reg.Drafts(),
		Objects:         backends.Objects,
		Variant:         cfg.Drafts.Variant,
		DowngradePolicy: policy,
		TTL:             cfg.Drafts.TTL,
		MaxPhotoBytes:   cfg.Drafts.MaxPhotoBytes,
		MaxMusicBytes:   cfg.Drafts.MaxMusicBytes,
		Clock:           clock,
		Logger:          eventLogger(opts.Logger.Named("drafts")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build draft service: %w", err)
	}
	svc.Drafts = draftSvc

	subDeps := services.SubmissionServiceDeps{
		Galleries:          reg.Galleries(),
		Objects:            backends.Objects,
		Drafts:             draftSvc,
		RequirePlanPayment: cfg.Submission.RequirePlanPayment,
		SlugStrategy:       cfg.Submission.SlugStrategy,
		UploadConcurrency:  cfg.Submission.UploadConcurrency,
		UploadTimeout:      cfg.Submission.UploadTimeout,
		PublicBaseURL:      cfg.Public.BaseURL,
		Clock:              clock,
		Logger:             eventLogger(opts.Logger.Named("submission")),
	}
	// Typed nils must not reach the optional collaborators.
	if backends.Events != nil {
		subDeps.Events = backends.Events
	}
	if backends.Payments != nil {
		subDeps.Payments = backends.Payments
	}
	submissionSvc, err := services.NewSubmissionService(subDeps)
	if err != nil {
		return Services{}, fmt.Errorf("build submission service: %w", err)
	}
	svc.Submissions = submissionSvc

	resolver, err := services.NewGalleryResolver(services.GalleryResolverDeps{
		Galleries:     reg.Galleries(),
		Cache:         reg.GalleryCache(),
		CacheTTL:      cfg.Cache.TTL,
		PublicBaseURL: cfg.Public.BaseURL,
		Logger:        eventLogger(opts.Logger.Named("galleries")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build gallery resolver: %w", err)
	}
	svc.Galleries = resolver

	if valentinesRepo := reg.Valentines(); valentinesRepo != nil {
		valentineSvc, err := services.NewValentineService(services.ValentineServiceDeps{
			Valentines:    valentinesRepo,
			PublicBaseURL: cfg.Public.BaseURL,
			Clock:         clock,
			Logger:        eventLogger(opts.Logger.Named("valentines")),
		})
		if err != nil {
			return Services{}, fmt.Errorf("build valentine service: %w", err)
		}
		svc.Valentines = valentineSvc
	}

	svc.Catalog = services.NewCatalogService(services.CatalogServiceDeps{})

	if backends.Payments != nil {
		checkoutSvc, err := services.NewCheckoutService(services.CheckoutServiceDeps{
			Payments:   backends.Payments,
			Currency:   cfg.PSP.Currency,
			SuccessURL: cfg.PSP.SuccessURL,
			CancelURL:  cfg.PSP.CancelURL,
			Clock:      clock,
			Logger:     eventLogger(opts.Logger.Named("checkout")),
		})
		if err != nil {
			return Services{}, fmt.Errorf("build checkout service: %w", err)
		}
		svc.Checkout = checkoutSvc
	}

	if healthRepo := reg.Health(); healthRepo != nil {
		build := opts.Build
		if build.Environment == "" {
			build.Environment = cfg.Security.Environment
		}
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            clock,
			Build:            build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}

func eventLogger(logger *zap.Logger) services.EventLogger {
	return services.EventLogger(observability.NewEventLogger(logger))
}
