package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	domain "github.com/lovegallery/api/internal/domain"
	"github.com/lovegallery/api/internal/repositories"
)

// DraftRepository keeps drafts in memory and hides them once ExpiresAt passes.
type DraftRepository struct {
	mu     sync.Mutex
	drafts map[string]domain.DraftGallery
	now    func() time.Time
}

// NewDraftRepository returns an empty in-memory draft repository. A nil clock defaults to time.Now.
func NewDraftRepository(now func() time.Time) *DraftRepository {
	if now == nil {
		now = time.Now
	}
	return &DraftRepository{drafts: make(map[string]domain.DraftGallery), now: now}
}

func (r *DraftRepository) Get(_ context.Context, draftID string) (domain.DraftGallery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	draft, ok := r.drafts[strings.TrimSpace(draftID)]
	if !ok {
		return domain.DraftGallery{}, repositories.NotFound("drafts.get", "draft")
	}
	if !draft.ExpiresAt.IsZero() && !r.now().Before(draft.ExpiresAt) {
		delete(r.drafts, draft.ID)
		return domain.DraftGallery{}, repositories.NotFound("drafts.get", "draft")
	}
	return draft.Clone(), nil
}

func (r *DraftRepository) Save(_ context.Context, draft domain.DraftGallery) error {
	if strings.TrimSpace(draft.ID) == "" {
		return repositories.NewStoreError("drafts.save", repositories.StoreErrorUnknown, "draft id is required", nil)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drafts[draft.ID] = draft.Clone()
	return nil
}

func (r *DraftRepository) Delete(_ context.Context, draftID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.drafts, strings.TrimSpace(draftID))
	return nil
}

// GalleryCache is an in-process read cache with per-entry expiry.
type GalleryCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	now     func() time.Time
}

type cacheEntry struct {
	gallery   domain.Gallery
	expiresAt time.Time
}

// NewGalleryCache returns an empty cache. A nil clock defaults to time.Now.
func NewGalleryCache(now func() time.Time) *GalleryCache {
	if now == nil {
		now = time.Now
	}
	return &GalleryCache{entries: make(map[string]cacheEntry), now: now}
}

func (c *GalleryCache) Get(_ context.Context, key string) (domain.Gallery, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return domain.Gallery{}, false, nil
	}
	if !c.now().Before(entry.expiresAt) {
		delete(c.entries, key)
		return domain.Gallery{}, false, nil
	}
	return cloneGallery(entry.gallery), true, nil
}

func (c *GalleryCache) Set(_ context.Context, gallery domain.Gallery, ttl time.Duration, keys ...string) error {
	if ttl <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	expires := c.now().Add(ttl)
	for _, key := range keys {
		if key = strings.TrimSpace(key); key != "" {
			c.entries[key] = cacheEntry{gallery: cloneGallery(gallery), expiresAt: expires}
		}
	}
	return nil
}

// NoopGalleryCache disables caching.
type NoopGalleryCache struct{}

func (NoopGalleryCache) Get(context.Context, string) (domain.Gallery, bool, error) {
	return domain.Gallery{}, false, nil
}

func (NoopGalleryCache) Set(context.Context, domain.Gallery, time.Duration, ...string) error {
	return nil
}

var (
	_ repositories.DraftRepository = (*DraftRepository)(nil)
	_ repositories.GalleryCache    = (*GalleryCache)(nil)
	_ repositories.GalleryCache    = NoopGalleryCache{}
)
