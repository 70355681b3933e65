package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/lovegallery/api/internal/domain"
	pfirestore "github.com/lovegallery/api/internal/platform/firestore"
	"github.com/lovegallery/api/internal/platform/pagination"
	"github.com/lovegallery/api/internal/repositories"
)

const (
	galleriesCollection   = "galleries"
	gallerySlugCollection = "gallery_slugs"
)

// GalleryRepository persists galleries in Firestore. Slugs are reserved in a
// sibling collection inside the same transaction so two galleries never share one.
type GalleryRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[galleryDocument]
	slugs    *pfirestore.BaseRepository[slugDocument]
}

// NewGalleryRepository constructs a Firestore-backed gallery repository.
func NewGalleryRepository(provider *pfirestore.Provider) (*GalleryRepository, error) {
	if provider == nil {
		return nil, errors.New("gallery repository requires firestore provider")
	}
	return &GalleryRepository{
		provider: provider,
		base:     pfirestore.NewBaseRepository[galleryDocument](provider, galleriesCollection, nil, nil),
		slugs:    pfirestore.NewBaseRepository[slugDocument](provider, gallerySlugCollection, nil, nil),
	}, nil
}

// Insert creates the gallery and, when present, its slug reservation.
func (r *GalleryRepository) Insert(ctx context.Context, gallery domain.Gallery) error {
	id := strings.TrimSpace(gallery.ID)
	if id == "" {
		return errors.New("gallery repository: gallery id is required")
	}
	galleryRef, err := r.base.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	var slugRef *firestore.DocumentRef
	if slug := strings.TrimSpace(gallery.Slug); slug != "" {
		if slugRef, err = r.slugs.DocumentRef(ctx, slug); err != nil {
			return err
		}
	}

	doc := encodeGallery(gallery)
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if slugRef != nil {
			if err := tx.Create(slugRef, slugDocument{GalleryID: id, CreatedAt: doc.CreatedAt}); err != nil {
				return err
			}
		}
		return tx.Create(galleryRef, doc)
	})
	return pfirestore.WrapError("galleries.insert", err)
}

// FindByID loads a gallery by its identifier.
func (r *GalleryRepository) FindByID(ctx context.Context, galleryID string) (domain.Gallery, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(galleryID))
	if err != nil {
		return domain.Gallery{}, err
	}
	return decodeGallery(doc.ID, doc.Data), nil
}

// FindBySlug resolves the slug reservation and loads the gallery it points at.
func (r *GalleryRepository) FindBySlug(ctx context.Context, slug string) (domain.Gallery, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return domain.Gallery{}, pfirestore.NotFound("galleries.find_by_slug", "gallery")
	}
	reservation, err := r.slugs.Get(ctx, slug)
	if err != nil {
		return domain.Gallery{}, err
	}
	return r.FindByID(ctx, reservation.Data.GalleryID)
}

// ListByOwner returns galleries created by ownerUID, newest first.
func (r *GalleryRepository) ListByOwner(ctx context.Context, ownerUID string, pager domain.Pagination) (domain.CursorPage[domain.Gallery], error) {
	ownerUID = strings.TrimSpace(ownerUID)
	if ownerUID == "" {
		return domain.CursorPage[domain.Gallery]{}, errors.New("gallery repository: owner uid is required")
	}
	limit := pagination.Clamp(pager.PageSize)

	var (
		cursorAt time.Time
		cursorID string
	)
	if token := strings.TrimSpace(pager.PageToken); token != "" {
		at, id, err := pagination.DecodeCursor(token)
		if err != nil {
			return domain.CursorPage[domain.Gallery]{}, fmt.Errorf("galleries.list_by_owner: %w", err)
		}
		cursorAt, cursorID = at, id
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("ownerUid", "==", ownerUID).
			OrderBy("createdAt", firestore.Desc).
			OrderBy(firestore.DocumentID, firestore.Desc)
		if cursorID != "" {
			q = q.StartAfter(cursorAt, cursorID)
		}
		return q.Limit(limit + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Gallery]{}, err
	}

	page := domain.CursorPage[domain.Gallery]{Items: make([]domain.Gallery, 0, len(docs))}
	if len(docs) > limit {
		docs = docs[:limit]
		last := docs[len(docs)-1]
		page.NextPageToken = pagination.EncodeCursor(last.Data.CreatedAt, last.ID)
	}
	for _, doc := range docs {
		page.Items = append(page.Items, decodeGallery(doc.ID, doc.Data))
	}
	return page, nil
}

type galleryDocument struct {
	Slug            string                 `firestore:"slug,omitempty"`
	YourName        string                 `firestore:"yourName"`
	PartnerName     string                 `firestore:"partnerName"`
	LoveMessage     string                 `firestore:"loveMessage"`
	SpecialDate     string                 `firestore:"specialDate,omitempty"`
	YourWhatsapp    string                 `firestore:"yourWhatsapp,omitempty"`
	PartnerWhatsapp string                 `firestore:"partnerWhatsapp,omitempty"`
	Photos          []galleryPhotoDocument `firestore:"photos"`
	Theme           string                 `firestore:"theme"`
	Music           string                 `firestore:"music"`
	CustomMusic     bool                   `firestore:"customMusic"`
	Stories         []storyDocument        `firestore:"stories"`
	Plan            string                 `firestore:"plan"`
	OwnerUID        string                 `firestore:"ownerUid,omitempty"`
	CreatedAt       time.Time              `firestore:"createdAt"`
}

type galleryPhotoDocument struct {
	ID       string `firestore:"id"`
	URL      string `firestore:"url"`
	Caption  string `firestore:"caption,omitempty"`
	Uploaded bool   `firestore:"uploaded"`
}

type storyDocument struct {
	Title   string `firestore:"title"`
	Content string `firestore:"content"`
	Icon    string `firestore:"icon,omitempty"`
}

type slugDocument struct {
	GalleryID string    `firestore:"galleryId"`
	CreatedAt time.Time `firestore:"createdAt"`
}

func encodeGallery(g domain.Gallery) galleryDocument {
	doc := galleryDocument{
		Slug:            strings.TrimSpace(g.Slug),
		YourName:        g.YourName,
		PartnerName:     g.PartnerName,
		LoveMessage:     g.LoveMessage,
		SpecialDate:     g.SpecialDate,
		YourWhatsapp:    g.YourWhatsapp,
		PartnerWhatsapp: g.PartnerWhatsapp,
		Photos:          make([]galleryPhotoDocument, 0, len(g.Photos)),
		Theme:           g.Theme,
		Music:           g.Music,
		CustomMusic:     g.CustomMusic,
		Stories:         make([]storyDocument, 0, len(g.Stories)),
		Plan:            g.Plan.String(),
		OwnerUID:        g.OwnerUID,
		CreatedAt:       g.CreatedAt.UTC(),
	}
	for _, photo := range g.Photos {
		doc.Photos = append(doc.Photos, galleryPhotoDocument(photo))
	}
	for _, story := range g.Stories {
		doc.Stories = append(doc.Stories, storyDocument(story))
	}
	return doc
}

func decodeGallery(id string, doc galleryDocument) domain.Gallery {
	plan, _ := domain.ParsePlan(doc.Plan)
	g := domain.Gallery{
		ID:              id,
		Slug:            doc.Slug,
		YourName:        doc.YourName,
		PartnerName:     doc.PartnerName,
		LoveMessage:     doc.LoveMessage,
		SpecialDate:     doc.SpecialDate,
		YourWhatsapp:    doc.YourWhatsapp,
		PartnerWhatsapp: doc.PartnerWhatsapp,
		Photos:          make([]domain.GalleryPhoto, 0, len(doc.Photos)),
		Theme:           doc.Theme,
		Music:           doc.Music,
		CustomMusic:     doc.CustomMusic,
		Stories:         make([]domain.Story, 0, len(doc.Stories)),
		Plan:            plan,
		OwnerUID:        doc.OwnerUID,
		CreatedAt:       doc.CreatedAt.UTC(),
	}
	for _, photo := range doc.Photos {
		g.Photos = append(g.Photos, domain.GalleryPhoto(photo))
	}
	for _, story := range doc.Stories {
		g.Stories = append(g.Stories, domain.Story(story))
	}
	return g
}

var _ repositories.GalleryRepository = (*GalleryRepository)(nil)
