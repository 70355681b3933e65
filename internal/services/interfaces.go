package services

import (
	"context"
	"io"
	"time"

	domain "github.com/lovegallery/api/internal/domain"
	"github.com/lovegallery/api/internal/wizard"
)

// EventLogger is the structured logging hook every service accepts.
type EventLogger func(ctx context.Context, event string, fields map[string]any)

func noopLogger(context.Context, string, map[string]any) {}

// Upload is a file received from the client, already bounded by the HTTP layer.
type Upload struct {
	FileName    string
	ContentType string
	Size        int64
	Caption     string
	Body        io.Reader
}

// CreateDraftCommand starts a wizard session.
type CreateDraftCommand struct {
	Variant string
	Plan    *domain.Plan
}

// UpdateDraftCommand carries the fields to change; nil pointers are left untouched.
// The plan is applied first so theme locks reflect the new plan.
type UpdateDraftCommand struct {
	DraftID     string
	Plan        *domain.Plan
	Details     *wizard.Details
	Stories     *[]domain.Story
	Theme       *string
	MusicPreset *string
	Captions    map[string]string
	Step        *int
}

type AddPhotosCommand struct {
	DraftID string
	Files   []Upload
}

type SetCustomMusicCommand struct {
	DraftID string
	File    Upload
}

// DraftStep describes one row of the draft's step table.
type DraftStep struct {
	Index   int
	Kind    wizard.StepKind
	Title   string
	Valid   bool
	Current bool
}

// DraftEntitlements summarises what the draft's plan allows.
type DraftEntitlements struct {
	Plan            domain.Plan
	MaxPhotos       int
	RemainingPhotos int
	CustomMusic     bool
	ThemeLocked     bool
	ThemePlan       domain.Plan
	// Blocked is the entitlement that currently prevents submission, if any.
	Blocked *domain.UpgradeRequiredError
}

// DraftView is a draft plus everything the wizard UI derives from it.
type DraftView struct {
	Draft        domain.DraftGallery
	Steps        []DraftStep
	Entitlements DraftEntitlements
	PhotoURLs    map[string]string
	MusicURL     string
}

type DraftUpdateResult struct {
	View         DraftView
	TrimmedPhoto []string
}

type AddPhotosResult struct {
	View     DraftView
	Accepted []domain.Photo
	Dropped  int
}

type AdvanceResult struct {
	View       DraftView
	Transition wizard.Transition
}

// DraftService drives the creation wizard over persisted drafts.
type DraftService interface {
	Create(ctx context.Context, cmd CreateDraftCommand) (DraftView, error)
	Get(ctx context.Context, draftID string) (DraftView, error)
	Update(ctx context.Context, cmd UpdateDraftCommand) (DraftUpdateResult, error)
	Advance(ctx context.Context, draftID string) (AdvanceResult, error)
	Retreat(ctx context.Context, draftID string) (DraftView, error)
	AddPhotos(ctx context.Context, cmd AddPhotosCommand) (AddPhotosResult, error)
	RemovePhoto(ctx context.Context, draftID, photoID string) (DraftView, error)
	SetCustomMusic(ctx context.Context, cmd SetCustomMusicCommand) (DraftView, error)
	// Load returns the raw draft for submission.
	Load(ctx context.Context, draftID string) (domain.DraftGallery, error)
	Discard(ctx context.Context, draftID string) error
}

// Asset is an inline file supplied with a one-shot submission, keyed by the
// LocalRef of the photo or music choice it belongs to.
type Asset struct {
	FileName    string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

// SubmitCommand finalises a draft. Photos and music whose LocalRef has no
// entry in Assets are copied from their staged object.
type SubmitCommand struct {
	Draft      domain.DraftGallery
	Assets     map[string]Asset
	OwnerUID   string
	PaymentRef string
}

type SubmitDraftCommand struct {
	DraftID    string
	PaymentRef string
}

type SubmitResult struct {
	ID             string
	Slug           string
	SharePath      string
	ShareURL       string
	UploadedPhotos int
	FallbackPhotos int
	MusicFallback  bool
	Gallery        domain.Gallery
}

// SubmissionService turns a draft into a persisted gallery.
type SubmissionService interface {
	Submit(ctx context.Context, cmd SubmitCommand) (SubmitResult, error)
	SubmitDraft(ctx context.Context, cmd SubmitDraftCommand) (SubmitResult, error)
}

// GalleryView is a stored gallery prepared for display.
type GalleryView struct {
	Gallery       domain.Gallery
	SharePath     string
	ShareURL      string
	WhatsAppShare string
	StoriesHTML   []string
	Theme         domain.Theme
	MusicURL      string
	MusicName     string
}

type ListOwnedCommand struct {
	OwnerUID  string
	PageToken string
	PageSize  int
}

// GalleryResolver reads galleries by id or slug.
type GalleryResolver interface {
	Resolve(ctx context.Context, ref string) (GalleryView, error)
	ListOwned(ctx context.Context, cmd ListOwnedCommand) (domain.CursorPage[GalleryView], error)
}

type CreateValentineCommand struct {
	SenderName   string
	PartnerName  string
	SenderPhone  string
	PartnerPhone string
	Plan         *domain.Plan
}

type ValentineInvite struct {
	Valentine domain.Valentine
	Path      string
	URL       string
	SendLink  string
}

// ValentineView is what the recipient sees.
type ValentineView struct {
	ID          string
	PartnerName string
	SenderName  string
	SenderPhone string
	YesLink     string
	Found       bool
}

type ValentineService interface {
	Create(ctx context.Context, cmd CreateValentineCommand) (ValentineInvite, error)
	View(ctx context.Context, id, fallbackPhone string) (ValentineView, error)
}

// ThemeListing is a theme annotated for a given plan.
type ThemeListing struct {
	Theme        domain.Theme
	Locked       bool
	RequiredPlan domain.Plan
}

type CatalogService interface {
	Plans(ctx context.Context) []domain.PlanOffer
	Themes(ctx context.Context, plan domain.Plan) []ThemeListing
	Music(ctx context.Context) []domain.MusicPreset
}

type CreateCheckoutCommand struct {
	Plan           domain.Plan
	DraftID        string
	CustomerEmail  string
	SuccessURL     string
	CancelURL      string
	IdempotencyKey string
}

type CheckoutSession struct {
	SessionID   string
	RedirectURL string
	PaymentRef  string
	Plan        domain.Plan
	Amount      int64
	Currency    string
	ExpiresAt   time.Time
}

type CheckoutService interface {
	CreateCheckoutSession(ctx context.Context, cmd CreateCheckoutCommand) (CheckoutSession, error)
}

type SystemHealthReport = domain.SystemHealthReport

type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}
