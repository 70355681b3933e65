// Package memory provides process-local repositories used for local
// development and tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	domain "github.com/lovegallery/api/internal/domain"
	"github.com/lovegallery/api/internal/platform/pagination"
	"github.com/lovegallery/api/internal/repositories"
)

// GalleryRepository keeps galleries in a map guarded by a mutex.
type GalleryRepository struct {
	mu     sync.RWMutex
	byID   map[string]domain.Gallery
	bySlug map[string]string
}

// NewGalleryRepository returns an empty in-memory gallery repository.
func NewGalleryRepository() *GalleryRepository {
	return &GalleryRepository{
		byID:   make(map[string]domain.Gallery),
		bySlug: make(map[string]string),
	}
}

func (r *GalleryRepository) Insert(_ context.Context, gallery domain.Gallery) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[gallery.ID]; ok {
		return repositories.Conflict("galleries.insert", "gallery")
	}
	slug := strings.TrimSpace(gallery.Slug)
	if slug != "" {
		if _, ok := r.bySlug[slug]; ok {
			return repositories.Conflict("galleries.insert", "slug")
		}
		r.bySlug[slug] = gallery.ID
	}
	r.byID[gallery.ID] = cloneGallery(gallery)
	return nil
}

func (r *GalleryRepository) FindByID(_ context.Context, galleryID string) (domain.Gallery, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	gallery, ok := r.byID[strings.TrimSpace(galleryID)]
	if !ok {
		return domain.Gallery{}, repositories.NotFound("galleries.find_by_id", "gallery")
	}
	return cloneGallery(gallery), nil
}

func (r *GalleryRepository) FindBySlug(ctx context.Context, slug string) (domain.Gallery, error) {
	r.mu.RLock()
	id, ok := r.bySlug[strings.TrimSpace(slug)]
	r.mu.RUnlock()
	if !ok {
		return domain.Gallery{}, repositories.NotFound("galleries.find_by_slug", "gallery")
	}
	return r.FindByID(ctx, id)
}

func (r *GalleryRepository) ListByOwner(_ context.Context, ownerUID string, pager domain.Pagination) (domain.CursorPage[domain.Gallery], error) {
	ownerUID = strings.TrimSpace(ownerUID)
	limit := pagination.Clamp(pager.PageSize)

	var (
		cursorAt time.Time
		cursorID string
	)
	if token := strings.TrimSpace(pager.PageToken); token != "" {
		at, id, err := pagination.DecodeCursor(token)
		if err != nil {
			return domain.CursorPage[domain.Gallery]{}, err
		}
		cursorAt, cursorID = at, id
	}

	r.mu.RLock()
	var owned []domain.Gallery
	for _, g := range r.byID {
		if ownerUID != "" && g.OwnerUID == ownerUID {
			owned = append(owned, g)
		}
	}
	r.mu.RUnlock()

	sort.Slice(owned, func(i, j int) bool { return newerThan(owned[i], owned[j].CreatedAt, owned[j].ID) })

	page := domain.CursorPage[domain.Gallery]{Items: []domain.Gallery{}}
	for _, g := range owned {
		if cursorID != "" && !newerThan(domain.Gallery{ID: cursorID, CreatedAt: cursorAt}, g.CreatedAt, g.ID) {
			continue
		}
		if len(page.Items) == limit {
			last := page.Items[limit-1]
			page.NextPageToken = pagination.EncodeCursor(last.CreatedAt, last.ID)
			break
		}
		page.Items = append(page.Items, cloneGallery(g))
	}
	return page, nil
}

// newerThan orders by createdAt descending, then id descending.
func newerThan(g domain.Gallery, at time.Time, id string) bool {
	if !g.CreatedAt.Equal(at) {
		return g.CreatedAt.After(at)
	}
	return g.ID > id
}

func cloneGallery(g domain.Gallery) domain.Gallery {
	g.Photos = append([]domain.GalleryPhoto(nil), g.Photos...)
	g.Stories = append([]domain.Story(nil), g.Stories...)
	return g
}

// ValentineRepository keeps valentines in a map guarded by a mutex.
type ValentineRepository struct {
	mu    sync.RWMutex
	items map[string]domain.Valentine
}

// NewValentineRepository returns an empty in-memory valentine repository.
func NewValentineRepository() *ValentineRepository {
	return &ValentineRepository{items: make(map[string]domain.Valentine)}
}

func (r *ValentineRepository) Insert(_ context.Context, valentine domain.Valentine) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[valentine.ID]; ok {
		return repositories.Conflict("valentines.insert", "valentine")
	}
	r.items[valentine.ID] = valentine
	return nil
}

func (r *ValentineRepository) FindByID(_ context.Context, valentineID string) (domain.Valentine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.items[strings.TrimSpace(valentineID)]
	if !ok {
		return domain.Valentine{}, repositories.NotFound("valentines.find_by_id", "valentine")
	}
	return v, nil
}

var (
	_ repositories.GalleryRepository   = (*GalleryRepository)(nil)
	_ repositories.ValentineRepository = (*ValentineRepository)(nil)
)
