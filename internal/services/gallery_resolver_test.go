package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	domain "github.com/lovegallery/api/internal/domain"
	"github.com/lovegallery/api/internal/repositories/memory"
)

type stubGalleryCache struct {
	getErr error
	setErr error
	sets   int
}

func (s *stubGalleryCache) Get(context.Context, string) (domain.Gallery, bool, error) {
	return domain.Gallery{}, false, s.getErr
}

func (s *stubGalleryCache) Set(context.Context, domain.Gallery, time.Duration, ...string) error {
	s.sets++
	return s.setErr
}

func seedGallery(t *testing.T, repo *memory.GalleryRepository, gallery domain.Gallery) {
	t.Helper()
	if err := repo.Insert(context.Background(), gallery); err != nil {
		t.Fatalf("seed %s: %v", gallery.ID, err)
	}
}

func sampleGallery() domain.Gallery {
	return domain.Gallery{
		ID:          "01HZZGALLERY",
		Slug:        "asha-ravi-x7k2p",
		YourName:    "Asha",
		PartnerName: "Ravi",
		LoveMessage: "Forever yours",
		Theme:       "ocean-romance",
		Music:       "piano",
		Plan:        domain.PlanTrueLove,
		OwnerUID:    "user-1",
		Stories: []domain.Story{
			{Title: "First date", Content: "We met **here**\nin Goa"},
			{Title: "Oops", Content: "<script>alert(1)</script>"},
		},
		CreatedAt: time.Date(2025, 2, 14, 9, 0, 0, 0, time.UTC),
	}
}

func TestGalleryResolverResolvesByIDAndSlug(t *testing.T) {
	repo := memory.NewGalleryRepository()
	seedGallery(t, repo, sampleGallery())
	now := time.Date(2025, 2, 14, 10, 0, 0, 0, time.UTC)
	cache := memory.NewGalleryCache(func() time.Time { return now })

	resolver, err := NewGalleryResolver(GalleryResolverDeps{
		Galleries:     repo,
		Cache:         cache,
		PublicBaseURL: "https://lovegallery.test",
	})
	if err != nil {
		t.Fatalf("NewGalleryResolver: %v", err)
	}
	ctx := context.Background()

	byID, err := resolver.Resolve(ctx, "01HZZGALLERY")
	if err != nil {
		t.Fatalf("Resolve by id: %v", err)
	}
	bySlug, err := resolver.Resolve(ctx, "asha-ravi-x7k2p")
	if err != nil {
		t.Fatalf("Resolve by slug: %v", err)
	}
	if byID.Gallery.ID != bySlug.Gallery.ID {
		t.Fatalf("id and slug resolved to different galleries")
	}
	if byID.SharePath != "/g/asha-ravi-x7k2p" || byID.ShareURL != "https://lovegallery.test/g/asha-ravi-x7k2p" {
		t.Fatalf("unexpected share path %q url %q", byID.SharePath, byID.ShareURL)
	}
	wantShare := "https://wa.me/?text=Check%20out%20our%20love%20gallery!%20%F0%9F%92%95%20https%3A%2F%2Flovegallery.test%2Fg%2Fasha-ravi-x7k2p"
	if byID.WhatsAppShare != wantShare {
		t.Fatalf("unexpected whatsapp link\n got %s\nwant %s", byID.WhatsAppShare, wantShare)
	}
	if byID.Theme.Name != "Ocean Romance" || byID.MusicName != "Soft Piano" || byID.MusicURL != "" {
		t.Fatalf("unexpected presentation %+v %q %q", byID.Theme, byID.MusicName, byID.MusicURL)
	}

	if _, ok, _ := cache.Get(ctx, "asha-ravi-x7k2p"); !ok {
		t.Fatal("expected slug to be cached")
	}
	if _, ok, _ := cache.Get(ctx, "01HZZGALLERY"); !ok {
		t.Fatal("expected id to be cached")
	}
}

func TestGalleryResolverRendersStories(t *testing.T) {
	repo := memory.NewGalleryRepository()
	seedGallery(t, repo, sampleGallery())
	resolver, err := NewGalleryResolver(GalleryResolverDeps{Galleries: repo})
	if err != nil {
		t.Fatalf("NewGalleryResolver: %v", err)
	}

	view, err := resolver.Resolve(context.Background(), "01HZZGALLERY")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(view.StoriesHTML) != 2 {
		t.Fatalf("expected 2 rendered stories, got %d", len(view.StoriesHTML))
	}
	first := view.StoriesHTML[0]
	if !strings.Contains(first, "<strong>here</strong>") || !strings.Contains(first, "<br") {
		t.Fatalf("unexpected story html %q", first)
	}
	if strings.Contains(view.StoriesHTML[1], "script") {
		t.Fatalf("script survived rendering: %q", view.StoriesHTML[1])
	}
}

func TestGalleryResolverCustomMusic(t *testing.T) {
	repo := memory.NewGalleryRepository()
	gallery := sampleGallery()
	gallery.CustomMusic = true
	gallery.Music = "https://cdn.lovegallery.test/galleries/music/2025/02/1-u-song.mp3"
	seedGallery(t, repo, gallery)
	resolver, err := NewGalleryResolver(GalleryResolverDeps{Galleries: repo})
	if err != nil {
		t.Fatalf("NewGalleryResolver: %v", err)
	}
	view, err := resolver.Resolve(context.Background(), gallery.Slug)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if view.MusicURL != gallery.Music || view.MusicName != "Your Song" {
		t.Fatalf("unexpected music %q %q", view.MusicURL, view.MusicName)
	}
}

func TestGalleryResolverNotFound(t *testing.T) {
	resolver, err := NewGalleryResolver(GalleryResolverDeps{Galleries: memory.NewGalleryRepository()})
	if err != nil {
		t.Fatalf("NewGalleryResolver: %v", err)
	}
	for _, ref := range []string{"missing", "", "a/b", "x?y=1"} {
		if _, err := resolver.Resolve(context.Background(), ref); !errors.Is(err, ErrGalleryNotFound) {
			t.Fatalf("ref %q: expected not found, got %v", ref, err)
		}
	}
}

func TestGalleryResolverToleratesCacheFailures(t *testing.T) {
	repo := memory.NewGalleryRepository()
	seedGallery(t, repo, sampleGallery())
	cache := &stubGalleryCache{getErr: errors.New("redis down"), setErr: errors.New("redis down")}
	var events []string
	resolver, err := NewGalleryResolver(GalleryResolverDeps{
		Galleries: repo,
		Cache:     cache,
		Logger: func(_ context.Context, event string, _ map[string]any) {
			events = append(events, event)
		},
	})
	if err != nil {
		t.Fatalf("NewGalleryResolver: %v", err)
	}

	if _, err := resolver.Resolve(context.Background(), "asha-ravi-x7k2p"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cache.sets != 1 {
		t.Fatalf("expected one cache write, got %d", cache.sets)
	}
	if len(events) != 2 || events[0] != "gallery.cache_get_failed" || events[1] != "gallery.cache_set_failed" {
		t.Fatalf("unexpected events %v", events)
	}
}

func TestGalleryResolverListOwned(t *testing.T) {
	repo := memory.NewGalleryRepository()
	base := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"g1", "g2", "g3"} {
		seedGallery(t, repo, domain.Gallery{ID: id, OwnerUID: "user-1", Theme: domain.DefaultTheme, CreatedAt: base.Add(time.Duration(i) * time.Hour)})
	}
	seedGallery(t, repo, domain.Gallery{ID: "other", OwnerUID: "user-2", CreatedAt: base})

	resolver, err := NewGalleryResolver(GalleryResolverDeps{Galleries: repo})
	if err != nil {
		t.Fatalf("NewGalleryResolver: %v", err)
	}
	ctx := context.Background()

	first, err := resolver.ListOwned(ctx, ListOwnedCommand{OwnerUID: "user-1", PageSize: 2})
	if err != nil {
		t.Fatalf("ListOwned: %v", err)
	}
	if len(first.Items) != 2 || first.Items[0].Gallery.ID != "g3" || first.NextPageToken == "" {
		t.Fatalf("unexpected first page %+v", first)
	}
	if first.Items[0].SharePath != "/g/g3" {
		t.Fatalf("expected id share path, got %q", first.Items[0].SharePath)
	}

	second, err := resolver.ListOwned(ctx, ListOwnedCommand{OwnerUID: "user-1", PageSize: 2, PageToken: first.NextPageToken})
	if err != nil {
		t.Fatalf("ListOwned page 2: %v", err)
	}
	if len(second.Items) != 1 || second.Items[0].Gallery.ID != "g1" || second.NextPageToken != "" {
		t.Fatalf("unexpected second page %+v", second)
	}

	if _, err := resolver.ListOwned(ctx, ListOwnedCommand{}); !errors.Is(err, ErrGalleryInvalidInput) {
		t.Fatalf("expected invalid input without owner, got %v", err)
	}
	if _, err := resolver.ListOwned(ctx, ListOwnedCommand{OwnerUID: "user-1", PageToken: "%%%"}); !errors.Is(err, ErrGalleryInvalidInput) {
		t.Fatalf("expected invalid input for bad token, got %v", err)
	}
}
