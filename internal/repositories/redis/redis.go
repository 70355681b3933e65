// Package redis stores wizard drafts and cached galleries in Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	domain "github.com/lovegallery/api/internal/domain"
	"github.com/lovegallery/api/internal/repositories"
)

const (
	draftKeyPrefix   = "lg:draft:"
	galleryKeyPrefix = "lg:gallery:"
)

// DraftRepository keeps each draft as a JSON string whose key expires at the draft's ExpiresAt.
type DraftRepository struct {
	client goredis.UniversalClient
	now    func() time.Time
}

// NewDraftRepository constructs a Redis draft repository. A nil clock defaults to time.Now.
func NewDraftRepository(client goredis.UniversalClient, now func() time.Time) (*DraftRepository, error) {
	if client == nil {
		return nil, errors.New("draft repository requires redis client")
	}
	if now == nil {
		now = time.Now
	}
	return &DraftRepository{client: client, now: now}, nil
}

func (r *DraftRepository) Get(ctx context.Context, draftID string) (domain.DraftGallery, error) {
	raw, err := r.client.Get(ctx, draftKeyPrefix+strings.TrimSpace(draftID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return domain.DraftGallery{}, repositories.NotFound("drafts.get", "draft")
	}
	if err != nil {
		return domain.DraftGallery{}, repositories.Unavailable("drafts.get", err)
	}
	var draft domain.DraftGallery
	if err := json.Unmarshal(raw, &draft); err != nil {
		return domain.DraftGallery{}, fmt.Errorf("drafts.get: decode draft: %w", err)
	}
	return draft, nil
}

func (r *DraftRepository) Save(ctx context.Context, draft domain.DraftGallery) error {
	id := strings.TrimSpace(draft.ID)
	if id == "" {
		return repositories.NewStoreError("drafts.save", repositories.StoreErrorUnknown, "draft id is required", nil)
	}
	ttl := draft.ExpiresAt.Sub(r.now())
	if draft.ExpiresAt.IsZero() {
		ttl = 0
	} else if ttl <= 0 {
		return r.Delete(ctx, id)
	}
	payload, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("drafts.save: encode draft: %w", err)
	}
	if err := r.client.Set(ctx, draftKeyPrefix+id, payload, ttl).Err(); err != nil {
		return repositories.Unavailable("drafts.save", err)
	}
	return nil
}

func (r *DraftRepository) Delete(ctx context.Context, draftID string) error {
	if err := r.client.Del(ctx, draftKeyPrefix+strings.TrimSpace(draftID)).Err(); err != nil {
		return repositories.Unavailable("drafts.delete", err)
	}
	return nil
}

// GalleryCache caches resolved galleries as JSON under every lookup key.
type GalleryCache struct {
	client goredis.UniversalClient
}

// NewGalleryCache constructs a Redis gallery cache.
func NewGalleryCache(client goredis.UniversalClient) (*GalleryCache, error) {
	if client == nil {
		return nil, errors.New("gallery cache requires redis client")
	}
	return &GalleryCache{client: client}, nil
}

func (c *GalleryCache) Get(ctx context.Context, key string) (domain.Gallery, bool, error) {
	raw, err := c.client.Get(ctx, galleryKeyPrefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return domain.Gallery{}, false, nil
	}
	if err != nil {
		return domain.Gallery{}, false, repositories.Unavailable("gallery_cache.get", err)
	}
	var gallery domain.Gallery
	if err := json.Unmarshal(raw, &gallery); err != nil {
		return domain.Gallery{}, false, fmt.Errorf("gallery_cache.get: decode: %w", err)
	}
	return gallery, true, nil
}

func (c *GalleryCache) Set(ctx context.Context, gallery domain.Gallery, ttl time.Duration, keys ...string) error {
	if ttl <= 0 || len(keys) == 0 {
		return nil
	}
	payload, err := json.Marshal(gallery)
	if err != nil {
		return fmt.Errorf("gallery_cache.set: encode: %w", err)
	}
	pipe := c.client.Pipeline()
	for _, key := range keys {
		if key = strings.TrimSpace(key); key != "" {
			pipe.Set(ctx, galleryKeyPrefix+key, payload, ttl)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return repositories.Unavailable("gallery_cache.set", err)
	}
	return nil
}

// Ping reports whether Redis answers.
func Ping(ctx context.Context, client goredis.UniversalClient) error {
	return client.Ping(ctx).Err()
}

var (
	_ repositories.DraftRepository = (*DraftRepository)(nil)
	_ repositories.GalleryCache    = (*GalleryCache)(nil)
)
