package repositories

import (
	"context"
	"time"

	domain "github.com/lovegallery/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Galleries() GalleryRepository
	Valentines() ValentineRepository
	Drafts() DraftRepository
	GalleryCache() GalleryCache
	Health() HealthRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// GalleryRepository persists finalised galleries. Records are immutable once inserted.
type GalleryRepository interface {
	// Insert fails with a conflict error when the id or the slug is already taken.
	Insert(ctx context.Context, gallery domain.Gallery) error
	FindByID(ctx context.Context, galleryID string) (domain.Gallery, error)
	FindBySlug(ctx context.Context, slug string) (domain.Gallery, error)
	ListByOwner(ctx context.Context, ownerUID string, pager domain.Pagination) (domain.CursorPage[domain.Gallery], error)
}

// ValentineRepository persists valentine invitations.
type ValentineRepository interface {
	Insert(ctx context.Context, valentine domain.Valentine) error
	FindByID(ctx context.Context, valentineID string) (domain.Valentine, error)
}

// DraftRepository stores wizard drafts until they are submitted or expire.
type DraftRepository interface {
	Get(ctx context.Context, draftID string) (domain.DraftGallery, error)
	// Save upserts the draft; the record expires at draft.ExpiresAt.
	Save(ctx context.Context, draft domain.DraftGallery) error
	Delete(ctx context.Context, draftID string) error
}

// GalleryCache is a read-through cache for resolved galleries keyed by id or slug.
type GalleryCache interface {
	Get(ctx context.Context, key string) (domain.Gallery, bool, error)
	Set(ctx context.Context, gallery domain.Gallery, ttl time.Duration, keys ...string) error
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
