package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	domain "github.com/lovegallery/api/internal/domain"
	"github.com/lovegallery/api/internal/platform/pagination"
	"github.com/lovegallery/api/internal/repositories"
)

const (
	defaultGalleryCacheTTL = 10 * time.Minute
	whatsAppShareText      = "Check out our love gallery! 💕 "
	customMusicName        = "Your Song"
)

var (
	ErrGalleryNotFound     = errors.New("gallery: not found")
	ErrGalleryInvalidInput = errors.New("gallery: invalid input")
	ErrGalleryUnavailable  = errors.New("gallery: unavailable")
)

type GalleryResolverDeps struct {
	Galleries     repositories.GalleryRepository
	Cache         repositories.GalleryCache
	CacheTTL      time.Duration
	PublicBaseURL string
	Logger        EventLogger
}

type galleryResolver struct {
	galleries repositories.GalleryRepository
	cache     repositories.GalleryCache
	cacheTTL  time.Duration
	baseURL   string
	markdown  goldmark.Markdown
	policy    *bluemonday.Policy
	logger    EventLogger
}

var _ GalleryResolver = (*galleryResolver)(nil)

func NewGalleryResolver(deps GalleryResolverDeps) (GalleryResolver, error) {
	if deps.Galleries == nil {
		return nil, errors.New("gallery resolver: gallery repository is required")
	}
	ttl := deps.CacheTTL
	if ttl <= 0 {
		ttl = defaultGalleryCacheTTL
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &galleryResolver{
		galleries: deps.Galleries,
		cache:     deps.Cache,
		cacheTTL:  ttl,
		baseURL:   strings.TrimRight(strings.TrimSpace(deps.PublicBaseURL), "/"),
		markdown:  goldmark.New(goldmark.WithRendererOptions(gmhtml.WithHardWraps())),
		policy:    bluemonday.UGCPolicy(),
		logger:    logger,
	}, nil
}

// Resolve looks ref up as an id first and then as a slug.
func (r *galleryResolver) Resolve(ctx context.Context, ref string) (GalleryView, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.ContainsAny(ref, "/?#") {
		return GalleryView{}, ErrGalleryNotFound
	}

	if r.cache != nil {
		gallery, ok, err := r.cache.Get(ctx, ref)
		if err != nil {
			r.logger(ctx, "gallery.cache_get_failed", map[string]any{"ref": ref, "error": err})
		} else if ok {
			return r.view(gallery), nil
		}
	}

	gallery, err := r.galleries.FindByID(ctx, ref)
	if isRepoNotFound(err) {
		gallery, err = r.galleries.FindBySlug(ctx, ref)
	}
	if err != nil {
		return GalleryView{}, r.mapRepositoryError(err)
	}

	if r.cache != nil {
		keys := []string{gallery.ID}
		if gallery.Slug != "" {
			keys = append(keys, gallery.Slug)
		}
		if err := r.cache.Set(ctx, gallery, r.cacheTTL, keys...); err != nil {
			r.logger(ctx, "gallery.cache_set_failed", map[string]any{"galleryId": gallery.ID, "error": err})
		}
	}
	return r.view(gallery), nil
}

func (r *galleryResolver) ListOwned(ctx context.Context, cmd ListOwnedCommand) (domain.CursorPage[GalleryView], error) {
	owner := strings.TrimSpace(cmd.OwnerUID)
	if owner == "" {
		return domain.CursorPage[GalleryView]{}, fmt.Errorf("%w: owner is required", ErrGalleryInvalidInput)
	}
	page, err := r.galleries.ListByOwner(ctx, owner, domain.Pagination{
		PageSize:  cmd.PageSize,
		PageToken: cmd.PageToken,
	})
	if err != nil {
		if errors.Is(err, pagination.ErrInvalidPageToken) {
			return domain.CursorPage[GalleryView]{}, fmt.Errorf("%w: %v", ErrGalleryInvalidInput, err)
		}
		return domain.CursorPage[GalleryView]{}, r.mapRepositoryError(err)
	}
	out := domain.CursorPage[GalleryView]{
		Items:         make([]GalleryView, 0, len(page.Items)),
		NextPageToken: page.NextPageToken,
	}
	for _, gallery := range page.Items {
		out.Items = append(out.Items, r.view(gallery))
	}
	return out, nil
}

func (r *galleryResolver) view(gallery domain.Gallery) GalleryView {
	sharePath := SharePath(gallery)
	shareURL := r.baseURL + sharePath
	view := GalleryView{
		Gallery:       gallery,
		SharePath:     sharePath,
		ShareURL:      shareURL,
		WhatsAppShare: "https://wa.me/?text=" + encodeURIComponent(whatsAppShareText+shareURL),
		StoriesHTML:   make([]string, len(gallery.Stories)),
	}
	for i, story := range gallery.Stories {
		view.StoriesHTML[i] = r.renderStory(story.Content)
	}

	catalog := domain.DefaultCatalog()
	if theme, ok := catalog.Theme(gallery.Theme); ok {
		view.Theme = theme
	} else {
		view.Theme = domain.Theme{ID: gallery.Theme, Name: gallery.Theme}
	}
	if gallery.CustomMusic {
		view.MusicURL = gallery.Music
		view.MusicName = customMusicName
	} else if preset, ok := catalog.MusicPreset(gallery.Music); ok {
		view.MusicName = preset.Name
	}
	return view
}

// renderStory converts Markdown to HTML safe for embedding.
func (r *galleryResolver) renderStory(content string) string {
	var buf bytes.Buffer
	if err := r.markdown.Convert([]byte(content), &buf); err != nil {
		return r.policy.Sanitize(content)
	}
	return strings.TrimSpace(r.policy.Sanitize(buf.String()))
}

func (r *galleryResolver) mapRepositoryError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if isRepoNotFound(err) {
		return ErrGalleryNotFound
	}
	return fmt.Errorf("%w: %v", ErrGalleryUnavailable, err)
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func isRepoConflict(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}

var uriComponentUnescaper = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

// encodeURIComponent escapes like the browser function of the same name, so
// share links match the ones the web client builds.
func encodeURIComponent(value string) string {
	return uriComponentUnescaper.Replace(url.QueryEscape(value))
}
