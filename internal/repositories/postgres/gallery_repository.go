package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/lovegallery/api/internal/domain"
	"github.com/lovegallery/api/internal/platform/pagination"
	"github.com/lovegallery/api/internal/repositories"
)

const galleryColumns = `id, slug, your_name, partner_name, love_message, special_date, your_whatsapp,
	partner_whatsapp, photos, theme, music, custom_music, stories, plan, owner_uid, created_at`

// GalleryRepository persists galleries in the galleries table.
type GalleryRepository struct {
	db *sql.DB
}

// NewGalleryRepository constructs a Postgres-backed gallery repository.
func NewGalleryRepository(db *sql.DB) (*GalleryRepository, error) {
	if db == nil {
		return nil, errors.New("gallery repository requires postgres db")
	}
	return &GalleryRepository{db: db}, nil
}

// Insert writes the gallery row. The unique slug index rejects duplicates.
func (r *GalleryRepository) Insert(ctx context.Context, gallery domain.Gallery) error {
	if strings.TrimSpace(gallery.ID) == "" {
		return errors.New("gallery repository: gallery id is required")
	}
	photos, err := json.Marshal(photoRows(gallery.Photos))
	if err != nil {
		return fmt.Errorf("gallery repository: encode photos: %w", err)
	}
	stories, err := json.Marshal(storyRows(gallery.Stories))
	if err != nil {
		return fmt.Errorf("gallery repository: encode stories: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO galleries (`+galleryColumns+`)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		gallery.ID,
		strings.TrimSpace(gallery.Slug),
		gallery.YourName,
		gallery.PartnerName,
		gallery.LoveMessage,
		gallery.SpecialDate,
		gallery.YourWhatsapp,
		gallery.PartnerWhatsapp,
		photos,
		gallery.Theme,
		gallery.Music,
		gallery.CustomMusic,
		stories,
		gallery.Plan.String(),
		gallery.OwnerUID,
		gallery.CreatedAt.UTC(),
	)
	return wrapError("galleries.insert", "gallery", err)
}

func (r *GalleryRepository) FindByID(ctx context.Context, galleryID string) (domain.Gallery, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+galleryColumns+` FROM galleries WHERE id = $1`, strings.TrimSpace(galleryID))
	gallery, err := scanGallery(row)
	if err != nil {
		return domain.Gallery{}, wrapError("galleries.find_by_id", "gallery", err)
	}
	return gallery, nil
}

func (r *GalleryRepository) FindBySlug(ctx context.Context, slug string) (domain.Gallery, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return domain.Gallery{}, repositories.NotFound("galleries.find_by_slug", "gallery")
	}
	row := r.db.QueryRowContext(ctx, `SELECT `+galleryColumns+` FROM galleries WHERE slug = $1`, slug)
	gallery, err := scanGallery(row)
	if err != nil {
		return domain.Gallery{}, wrapError("galleries.find_by_slug", "gallery", err)
	}
	return gallery, nil
}

// ListByOwner pages through an owner's galleries using keyset pagination.
func (r *GalleryRepository) ListByOwner(ctx context.Context, ownerUID string, pager domain.Pagination) (domain.CursorPage[domain.Gallery], error) {
	ownerUID = strings.TrimSpace(ownerUID)
	if ownerUID == "" {
		return domain.CursorPage[domain.Gallery]{}, errors.New("gallery repository: owner uid is required")
	}
	limit := pagination.Clamp(pager.PageSize)

	var (
		rows *sql.Rows
		err  error
	)
	if token := strings.TrimSpace(pager.PageToken); token != "" {
		at, id, decodeErr := pagination.DecodeCursor(token)
		if decodeErr != nil {
			return domain.CursorPage[domain.Gallery]{}, fmt.Errorf("galleries.list_by_owner: %w", decodeErr)
		}
		rows, err = r.db.QueryContext(ctx, `SELECT `+galleryColumns+` FROM galleries
			WHERE owner_uid = $1 AND (created_at, id) < ($2, $3)
			ORDER BY created_at DESC, id DESC LIMIT $4`, ownerUID, at, id, limit+1)
	} else {
		rows, err = r.db.QueryContext(ctx, `SELECT `+galleryColumns+` FROM galleries
			WHERE owner_uid = $1
			ORDER BY created_at DESC, id DESC LIMIT $2`, ownerUID, limit+1)
	}
	if err != nil {
		return domain.CursorPage[domain.Gallery]{}, wrapError("galleries.list_by_owner", "gallery", err)
	}
	defer rows.Close()

	var items []domain.Gallery
	for rows.Next() {
		gallery, err := scanGallery(rows)
		if err != nil {
			return domain.CursorPage[domain.Gallery]{}, wrapError("galleries.list_by_owner", "gallery", err)
		}
		items = append(items, gallery)
	}
	if err := rows.Err(); err != nil {
		return domain.CursorPage[domain.Gallery]{}, wrapError("galleries.list_by_owner", "gallery", err)
	}

	page := domain.CursorPage[domain.Gallery]{Items: items}
	if len(items) > limit {
		page.Items = items[:limit]
		last := page.Items[limit-1]
		page.NextPageToken = pagination.EncodeCursor(last.CreatedAt, last.ID)
	}
	if page.Items == nil {
		page.Items = []domain.Gallery{}
	}
	return page, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanGallery(row scanner) (domain.Gallery, error) {
	var (
		g         domain.Gallery
		slug      sql.NullString
		photos    []byte
		stories   []byte
		plan      string
		createdAt time.Time
	)
	if err := row.Scan(
		&g.ID, &slug, &g.YourName, &g.PartnerName, &g.LoveMessage, &g.SpecialDate, &g.YourWhatsapp,
		&g.PartnerWhatsapp, &photos, &g.Theme, &g.Music, &g.CustomMusic, &stories, &plan, &g.OwnerUID, &createdAt,
	); err != nil {
		return domain.Gallery{}, err
	}
	g.Slug = slug.String
	g.Plan, _ = domain.ParsePlan(plan)
	g.CreatedAt = createdAt.UTC()

	var photoData []photoRow
	if len(photos) > 0 {
		if err := json.Unmarshal(photos, &photoData); err != nil {
			return domain.Gallery{}, fmt.Errorf("decode photos for %s: %w", g.ID, err)
		}
	}
	g.Photos = make([]domain.GalleryPhoto, 0, len(photoData))
	for _, p := range photoData {
		g.Photos = append(g.Photos, domain.GalleryPhoto(p))
	}

	var storyData []storyRow
	if len(stories) > 0 {
		if err := json.Unmarshal(stories, &storyData); err != nil {
			return domain.Gallery{}, fmt.Errorf("decode stories for %s: %w", g.ID, err)
		}
	}
	g.Stories = make([]domain.Story, 0, len(storyData))
	for _, s := range storyData {
		g.Stories = append(g.Stories, domain.Story(s))
	}
	return g, nil
}

type photoRow struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	Caption  string `json:"caption,omitempty"`
	Uploaded bool   `json:"uploaded"`
}

type storyRow struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Icon    string `json:"icon,omitempty"`
}

func photoRows(photos []domain.GalleryPhoto) []photoRow {
	out := make([]photoRow, 0, len(photos))
	for _, p := range photos {
		out = append(out, photoRow(p))
	}
	return out
}

func storyRows(stories []domain.Story) []storyRow {
	out := make([]storyRow, 0, len(stories))
	for _, s := range stories {
		out = append(out, storyRow(s))
	}
	return out
}

var _ repositories.GalleryRepository = (*GalleryRepository)(nil)
