package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	domain "github.com/lovegallery/api/internal/domain"
	"github.com/lovegallery/api/internal/payments"
	"github.com/lovegallery/api/internal/platform/auth"
	"github.com/lovegallery/api/internal/platform/storage"
	"github.com/lovegallery/api/internal/platform/textutil"
	"github.com/lovegallery/api/internal/repositories"
	"github.com/lovegallery/api/internal/wizard"
)

const (
	SlugStrategyLegacy    = "legacy"
	SlugStrategyGenerated = "generated"

	defaultUploadConcurrency = 8
	defaultUploadTimeout     = 45 * time.Second
	slugSuffixLength         = 5
	slugAttempts             = 3
	slugAlphabet             = "abcdefghijklmnopqrstuvwxyz0123456789"
)

var (
	ErrSubmissionInvalid         = errors.New("submission: invalid draft")
	ErrSubmissionUpgradeRequired = errors.New("submission: upgrade required")
	ErrSubmissionPaymentRequired = errors.New("submission: payment required")
	ErrSubmissionPersistFailed   = errors.New("submission: persist failed")
	ErrSubmissionUnavailable     = errors.New("submission: unavailable")

	errAssetNotStaged = errors.New("asset was not staged for this draft")
)

// GalleryEventPublisher is implemented by jobs.PubSubEventPublisher.
type GalleryEventPublisher interface {
	PublishGalleryEvent(ctx context.Context, event domain.GalleryEvent) (string, error)
}

type paymentLookup interface {
	LookupPayment(ctx context.Context, reference string) (payments.PaymentDetails, error)
}

type draftLoader interface {
	Load(ctx context.Context, draftID string) (domain.DraftGallery, error)
	Discard(ctx context.Context, draftID string) error
}

// SubmissionServiceDeps wires the submission pipeline.
type SubmissionServiceDeps struct {
	Galleries          repositories.GalleryRepository
	Objects            storage.ObjectStore
	Drafts             draftLoader
	Events             GalleryEventPublisher
	Payments           paymentLookup
	RequirePlanPayment bool
	SlugStrategy       string
	UploadConcurrency  int
	UploadTimeout      time.Duration
	PublicBaseURL      string
	Clock              func() time.Time
	IDGenerator        func() string
	SlugSuffix         func() string
	Meter              metric.Meter
	Logger             EventLogger
}

type submissionService struct {
	galleries          repositories.GalleryRepository
	objects            storage.ObjectStore
	drafts             draftLoader
	events             GalleryEventPublisher
	payments           paymentLookup
	requirePlanPayment bool
	slugStrategy       string
	concurrency        int
	uploadTimeout      time.Duration
	baseURL            string
	now                func() time.Time
	newID              func() string
	slugSuffix         func() string
	submissions        metric.Int64Counter
	photoUploads       metric.Int64Counter
	logger             EventLogger
}

var _ SubmissionService = (*submissionService)(nil)

func NewSubmissionService(deps SubmissionServiceDeps) (SubmissionService, error) {
	if deps.Galleries == nil {
		return nil, errors.New("submission service: gallery repository is required")
	}
	if deps.Objects == nil {
		return nil, errors.New("submission service: object store is required")
	}
	if deps.RequirePlanPayment && deps.Payments == nil {
		return nil, errors.New("submission service: payment provider is required when plan payment is enforced")
	}

	strategy := strings.ToLower(strings.TrimSpace(deps.SlugStrategy))
	switch strategy {
	case "":
		strategy = SlugStrategyLegacy
	case SlugStrategyLegacy, SlugStrategyGenerated:
	default:
		return nil, fmt.Errorf("submission service: unknown slug strategy %q", deps.SlugStrategy)
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	newID := deps.IDGenerator
	if newID == nil {
		newID = func() string { return ulid.Make().String() }
	}
	suffix := deps.SlugSuffix
	if suffix == nil {
		suffix = randomSlugSuffix
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	concurrency := deps.UploadConcurrency
	if concurrency <= 0 {
		concurrency = defaultUploadConcurrency
	}
	timeout := deps.UploadTimeout
	if timeout <= 0 {
		timeout = defaultUploadTimeout
	}
	meter := deps.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter("github.com/lovegallery/api/internal/services")
	}
	submissions, err := meter.Int64Counter("lovegallery.submissions",
		metric.WithDescription("Gallery submissions by outcome"))
	if err != nil {
		return nil, fmt.Errorf("submission service: register counter: %w", err)
	}
	photoUploads, err := meter.Int64Counter("lovegallery.photo_uploads",
		metric.WithDescription("Photo uploads during submission by outcome"))
	if err != nil {
		return nil, fmt.Errorf("submission service: register counter: %w", err)
	}

	return &submissionService{
		galleries:          deps.Galleries,
		objects:            deps.Objects,
		drafts:             deps.Drafts,
		events:             deps.Events,
		payments:           deps.Payments,
		requirePlanPayment: deps.RequirePlanPayment,
		slugStrategy:       strategy,
		concurrency:        concurrency,
		uploadTimeout:      timeout,
		baseURL:            strings.TrimRight(strings.TrimSpace(deps.PublicBaseURL), "/"),
		now: func() time.Time {
			return clock().UTC()
		},
		newID:        newID,
		slugSuffix:   suffix,
		submissions:  submissions,
		photoUploads: photoUploads,
		logger:       logger,
	}, nil
}

func (s *submissionService) SubmitDraft(ctx context.Context, cmd SubmitDraftCommand) (SubmitResult, error) {
	if s.drafts == nil {
		return SubmitResult{}, fmt.Errorf("%w: drafts not configured", ErrSubmissionUnavailable)
	}
	draft, err := s.drafts.Load(ctx, cmd.DraftID)
	if err != nil {
		return SubmitResult{}, err
	}
	owner := draft.OwnerUID
	if owner == "" {
		owner = auth.OwnerUID(ctx)
	}
	result, err := s.Submit(ctx, SubmitCommand{Draft: draft, OwnerUID: owner, PaymentRef: cmd.PaymentRef})
	if err != nil {
		return SubmitResult{}, err
	}
	if err := s.drafts.Discard(ctx, draft.ID); err != nil {
		s.logger(ctx, "submission.draft_discard_failed", map[string]any{
			"draftId":   draft.ID,
			"galleryId": result.ID,
			"error":     err,
		})
	}
	return result, nil
}

// Submit validates, uploads, persists and announces a gallery. Upload failures
// degrade the gallery instead of failing it; only validation, entitlement,
// payment and the final write can fail the submission.
func (s *submissionService) Submit(ctx context.Context, cmd SubmitCommand) (SubmitResult, error) {
	draft := cmd.Draft.Clone()
	if err := s.validate(draft); err != nil {
		s.record(ctx, draft.Plan, "rejected")
		return SubmitResult{}, err
	}
	if err := s.verifyPayment(ctx, draft, cmd.PaymentRef); err != nil {
		s.record(ctx, draft.Plan, "payment_required")
		return SubmitResult{}, err
	}

	owner := strings.TrimSpace(cmd.OwnerUID)
	if owner == "" {
		owner = draft.OwnerUID
	}
	now := s.now()
	gallery := domain.Gallery{
		ID:              s.newID(),
		YourName:        s.clean(draft.YourName),
		PartnerName:     s.clean(draft.PartnerName),
		LoveMessage:     s.clean(draft.LoveMessage),
		SpecialDate:     s.clean(draft.SpecialDate),
		YourWhatsapp:    textutil.DigitsOnly(draft.YourWhatsapp),
		PartnerWhatsapp: textutil.DigitsOnly(draft.PartnerWhatsapp),
		Theme:           draft.Theme,
		Stories:         s.cleanStories(draft.Stories),
		Plan:            draft.Plan,
		OwnerUID:        owner,
		CreatedAt:       now,
	}

	musicFallback := false
	gallery.Music, gallery.CustomMusic, musicFallback = s.publishMusic(ctx, draft, cmd.Assets, now)
	gallery.Photos = s.publishPhotos(ctx, draft, cmd.Assets, now)

	uploaded := 0
	for _, photo := range gallery.Photos {
		if photo.Uploaded {
			uploaded++
		}
	}

	if err := s.insert(ctx, &gallery); err != nil {
		s.record(ctx, draft.Plan, "persist_failed")
		s.logger(ctx, "submission.persist_failed", map[string]any{
			"galleryId": gallery.ID,
			"draftId":   draft.ID,
			"error":     err,
		})
		return SubmitResult{}, err
	}
	s.record(ctx, draft.Plan, "created")

	event := domain.GalleryEvent{
		Type:           domain.EventGalleryCreated,
		GalleryID:      gallery.ID,
		Slug:           gallery.Slug,
		Plan:           gallery.Plan,
		OwnerUID:       gallery.OwnerUID,
		PhotoCount:     len(gallery.Photos),
		UploadedPhotos: uploaded,
		MusicFallback:  musicFallback,
		OccurredAt:     now,
	}
	s.publish(ctx, event)

	sharePath := SharePath(gallery)
	result := SubmitResult{
		ID:             gallery.ID,
		Slug:           gallery.Slug,
		SharePath:      sharePath,
		ShareURL:       s.baseURL + sharePath,
		UploadedPhotos: uploaded,
		FallbackPhotos: len(gallery.Photos) - uploaded,
		MusicFallback:  musicFallback,
		Gallery:        gallery,
	}
	s.logger(ctx, "submission.completed", map[string]any{
		"galleryId":      gallery.ID,
		"slug":           gallery.Slug,
		"plan":           gallery.Plan.String(),
		"photos":         len(gallery.Photos),
		"uploadedPhotos": uploaded,
		"musicFallback":  musicFallback,
	})
	return result, nil
}

// SharePath is the public path of a gallery, preferring its slug.
func SharePath(gallery domain.Gallery) string {
	if gallery.Slug != "" {
		return "/g/" + gallery.Slug
	}
	return "/g/" + gallery.ID
}

func (s *submissionService) validate(draft domain.DraftGallery) error {
	variant, err := wizard.ParseVariant(draft.Variant)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSubmissionInvalid, err)
	}
	steps, err := wizard.Steps(variant)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSubmissionInvalid, err)
	}
	if !draft.Plan.Valid() {
		return fmt.Errorf("%w: %w", ErrSubmissionInvalid, domain.ErrUnknownPlan)
	}
	if _, ok := domain.DefaultCatalog().Theme(draft.Theme); !ok {
		return fmt.Errorf("%w: %w: %q", ErrSubmissionInvalid, domain.ErrUnknownTheme, draft.Theme)
	}
	if err := wizard.ValidateForSubmit(steps, draft); err != nil {
		if errors.Is(err, domain.ErrUpgradeRequired) {
			return fmt.Errorf("%w: %w", ErrSubmissionUpgradeRequired, err)
		}
		return fmt.Errorf("%w: %w", ErrSubmissionInvalid, err)
	}
	return nil
}

func (s *submissionService) verifyPayment(ctx context.Context, draft domain.DraftGallery, ref string) error {
	if !s.requirePlanPayment || !draft.Plan.Paid() {
		return nil
	}
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return fmt.Errorf("%w: %s needs a payment reference", ErrSubmissionPaymentRequired, draft.Plan.Label())
	}
	details, err := s.payments.LookupPayment(ctx, ref)
	if err != nil {
		if errors.Is(err, payments.ErrPaymentNotFound) {
			return fmt.Errorf("%w: unknown payment reference", ErrSubmissionPaymentRequired)
		}
		return fmt.Errorf("%w: payment lookup: %v", ErrSubmissionUnavailable, err)
	}
	if details.Status != payments.StatusSucceeded {
		return fmt.Errorf("%w: payment is %s", ErrSubmissionPaymentRequired, details.Status)
	}
	paid, err := domain.ParsePlan(details.Metadata[payments.MetadataPlan])
	if err != nil || !paid.AtLeast(draft.Plan) {
		return fmt.Errorf("%w: payment does not cover %s", ErrSubmissionPaymentRequired, draft.Plan.Label())
	}
	if paidDraft := details.Metadata[payments.MetadataDraftID]; paidDraft != "" && draft.ID != "" && paidDraft != draft.ID {
		return fmt.Errorf("%w: payment belongs to another draft", ErrSubmissionPaymentRequired)
	}
	return nil
}

// publishMusic returns the stored music value: the public URL of a custom
// track, or a preset id. Custom upload failures fall back to the preset.
func (s *submissionService) publishMusic(ctx context.Context, draft domain.DraftGallery, assets map[string]Asset, now time.Time) (string, bool, bool) {
	preset := strings.TrimSpace(draft.Music.Preset)
	if _, ok := domain.DefaultCatalog().MusicPreset(preset); !ok {
		preset = domain.DefaultCatalog().DefaultMusic()
	}
	if !draft.Music.Custom() {
		return preset, false, false
	}

	obj, err := s.publishObject(ctx, storage.PurposeGalleryMusic, draft.ID, draft.Music.CustomRef, draft.Music.FileName, draft.Music.ContentType, assets, now)
	if err != nil {
		s.logger(ctx, "submission.music_fallback", map[string]any{
			"draftId": draft.ID,
			"preset":  preset,
			"error":   err,
		})
		return preset, false, true
	}
	return obj.URL, true, false
}

// publishPhotos uploads every photo with bounded concurrency. Results keep the
// draft order; a failed photo keeps its local reference with Uploaded=false.
// Upload errors are recorded per photo, so the group only bounds concurrency
// and Wait never reports an error.
func (s *submissionService) publishPhotos(ctx context.Context, draft domain.DraftGallery, assets map[string]Asset, now time.Time) []domain.GalleryPhoto {
	out := make([]domain.GalleryPhoto, len(draft.Photos))
	var group errgroup.Group
	group.SetLimit(s.concurrency)
	for i, photo := range draft.Photos {
		i, photo := i, photo
		group.Go(func() error {
			out[i] = domain.GalleryPhoto{
				ID:      photo.ID,
				URL:     photo.LocalRef,
				Caption: s.clean(photo.Caption),
			}
			obj, err := s.publishObject(ctx, storage.PurposeGalleryPhoto, draft.ID, photo.LocalRef, photo.FileName, photo.ContentType, assets, now)
			if err != nil {
				s.photoUploads.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "failed")))
				s.logger(ctx, "submission.photo_upload_failed", map[string]any{
					"draftId": draft.ID,
					"photoId": photo.ID,
					"error":   err,
				})
				return nil
			}
			s.photoUploads.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "uploaded")))
			out[i].URL = obj.URL
			out[i].Uploaded = true
			return nil
		})
	}
	_ = group.Wait()
	return out
}

// publishObject writes an inline asset or copies a server-staged draft object
// to its published key. Refs outside drafts/{draftID}/ are never copied.
func (s *submissionService) publishObject(ctx context.Context, purpose storage.AssetPurpose, draftID, localRef, fileName, contentType string, assets map[string]Asset, now time.Time) (storage.Object, error) {
	asset, inline := assets[localRef]
	if !inline && !storage.StagedByDraft(draftID, localRef) {
		return storage.Object{}, fmt.Errorf("%w: %q", errAssetNotStaged, localRef)
	}
	if fileName == "" {
		fileName = localRef
	}
	key, err := storage.BuildObjectPath(purpose, storage.PathParams{
		UploadID: s.newID(),
		At:       now,
		FileName: fileName,
	})
	if err != nil {
		return storage.Object{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.uploadTimeout)
	defer cancel()

	if !inline {
		return s.objects.Copy(ctx, localRef, key)
	}
	if asset.Open == nil {
		return storage.Object{}, fmt.Errorf("asset %q has no content", localRef)
	}
	body, err := asset.Open()
	if err != nil {
		return storage.Object{}, err
	}
	defer body.Close()
	if asset.ContentType != "" {
		contentType = asset.ContentType
	}
	return s.objects.Put(ctx, key, body, storage.PutOptions{ContentType: contentType, Size: asset.Size})
}

// insert assigns the slug and writes the record, retrying slug collisions.
func (s *submissionService) insert(ctx context.Context, gallery *domain.Gallery) error {
	attempts := 1
	if s.slugStrategy == SlugStrategyLegacy {
		attempts = slugAttempts
	}
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if s.slugStrategy == SlugStrategyLegacy {
			gallery.Slug = legacySlug(gallery.YourName, gallery.PartnerName, s.slugSuffix())
		}
		err = s.galleries.Insert(ctx, *gallery)
		if err == nil {
			return nil
		}
		if !isRepoConflict(err) {
			break
		}
	}
	return fmt.Errorf("%w: %v", ErrSubmissionPersistFailed, err)
}

func (s *submissionService) publish(ctx context.Context, event domain.GalleryEvent) {
	if s.events == nil {
		return
	}
	if _, err := s.events.PublishGalleryEvent(ctx, event); err != nil {
		s.logger(ctx, "submission.event_publish_failed", map[string]any{
			"galleryId": event.GalleryID,
			"error":     err,
		})
	}
}

func (s *submissionService) record(ctx context.Context, plan domain.Plan, outcome string) {
	s.submissions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("plan", plan.String()),
		attribute.String("outcome", outcome),
	))
}

// clean trims user text. Markup is kept as typed and escaped when rendered.
func (s *submissionService) clean(value string) string {
	return strings.TrimSpace(value)
}

func (s *submissionService) cleanStories(stories []domain.Story) []domain.Story {
	out := make([]domain.Story, 0, len(stories))
	for _, story := range stories {
		cleaned := domain.Story{
			Title:   s.clean(story.Title),
			Content: s.clean(story.Content),
			Icon:    s.clean(story.Icon),
		}
		if cleaned.Title == "" && cleaned.Content == "" {
			continue
		}
		out = append(out, cleaned)
	}
	return out
}

func legacySlug(yourName, partnerName, suffix string) string {
	parts := make([]string, 0, 3)
	for _, name := range []string{yourName, partnerName} {
		if part := textutil.SlugPart(name); part != "" {
			parts = append(parts, part)
		}
	}
	if len(parts) == 0 {
		parts = append(parts, "love")
	}
	return strings.Join(append(parts, suffix), "-")
}

func randomSlugSuffix() string {
	var b strings.Builder
	alphabet := big.NewInt(int64(len(slugAlphabet)))
	for i := 0; i < slugSuffixLength; i++ {
		n, err := rand.Int(rand.Reader, alphabet)
		if err != nil {
			return strings.ToLower(ulid.Make().String()[21:])
		}
		b.WriteByte(slugAlphabet[n.Int64()])
	}
	return b.String()
}
