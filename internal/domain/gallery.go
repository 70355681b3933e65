package domain

import (
	"strings"
	"time"
)

// Photo is a draft photo staged for submission.
type Photo struct {
	ID          string
	LocalRef    string
	FileName    string
	ContentType string
	Size        int64
	Caption     string
}

// Story is one entry of the couple's timeline.
type Story struct {
	Title   string
	Content string
	Icon    string
}

// MusicChoice is either a bundled preset or a staged custom upload.
type MusicChoice struct {
	Preset      string
	CustomRef   string
	FileName    string
	ContentType string
}

// Custom reports whether a custom track was staged.
func (m MusicChoice) Custom() bool {
	return strings.TrimSpace(m.CustomRef) != ""
}

// DraftGallery is the mutable state behind the creation wizard.
type DraftGallery struct {
	ID              string
	Variant         string
	Step            int
	YourName        string
	PartnerName     string
	LoveMessage     string
	SpecialDate     string
	YourWhatsapp    string
	PartnerWhatsapp string
	Stories         []Story
	Photos          []Photo
	Theme           string
	Music           MusicChoice
	Plan            Plan
	OwnerUID        string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ExpiresAt       time.Time
}

// Clone returns a deep copy so callers never share slices.
func (d DraftGallery) Clone() DraftGallery {
	out := d
	out.Stories = append([]Story(nil), d.Stories...)
	out.Photos = append([]Photo(nil), d.Photos...)
	return out
}

// GalleryPhoto is a persisted photo reference.
type GalleryPhoto struct {
	ID       string
	URL      string
	Caption  string
	Uploaded bool
}

// Gallery is the immutable record produced by a submission.
type Gallery struct {
	ID              string
	Slug            string
	YourName        string
	PartnerName     string
	LoveMessage     string
	SpecialDate     string
	YourWhatsapp    string
	PartnerWhatsapp string
	Photos          []GalleryPhoto
	Theme           string
	Music           string
	CustomMusic     bool
	Stories         []Story
	Plan            Plan
	OwnerUID        string
	CreatedAt       time.Time
}

// Valentine is a lightweight invitation shared over WhatsApp.
type Valentine struct {
	ID           string
	SenderName   string
	PartnerName  string
	SenderPhone  string
	PartnerPhone string
	Plan         Plan
	CreatedAt    time.Time
}

// Pagination defines cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// EventGalleryCreated is published once a submission has been persisted.
const EventGalleryCreated = "gallery.created"

// GalleryEvent is the payload published to the events topic.
type GalleryEvent struct {
	Type           string    `json:"type"`
	GalleryID      string    `json:"galleryId"`
	Slug           string    `json:"slug,omitempty"`
	Plan           Plan      `json:"plan"`
	OwnerUID       string    `json:"ownerUid,omitempty"`
	PhotoCount     int       `json:"photoCount"`
	UploadedPhotos int       `json:"uploadedPhotos"`
	MusicFallback  bool      `json:"musicFallback"`
	OccurredAt     time.Time `json:"occurredAt"`
}
