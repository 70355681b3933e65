package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/lovegallery/api/internal/domain"
	"github.com/lovegallery/api/internal/platform/auth"
	"github.com/lovegallery/api/internal/platform/storage"
	"github.com/lovegallery/api/internal/repositories"
	"github.com/lovegallery/api/internal/wizard"
)

const (
	defaultDraftTTL      = 24 * time.Hour
	defaultMaxPhotoBytes = 10 << 20
	defaultMaxMusicBytes = 15 << 20
)

var (
	ErrDraftInvalidInput     = errors.New("draft: invalid input")
	ErrDraftNotFound         = errors.New("draft: not found")
	ErrDraftUnavailable      = errors.New("draft: unavailable")
	ErrDraftUploadTooLarge   = errors.New("draft: upload too large")
	ErrDraftUnsupportedMedia = errors.New("draft: unsupported media type")
)

// DraftServiceDeps wires the draft service.
type DraftServiceDeps struct {
	Drafts          repositories.DraftRepository
	Objects         storage.ObjectStore
	Variant         string
	DowngradePolicy wizard.DowngradePolicy
	TTL             time.Duration
	MaxPhotoBytes   int64
	MaxMusicBytes   int64
	Clock           func() time.Time
	IDGenerator     func() string
	Logger          EventLogger
}

type draftService struct {
	drafts        repositories.DraftRepository
	objects       storage.ObjectStore
	variant       string
	policy        wizard.DowngradePolicy
	ttl           time.Duration
	maxPhotoBytes int64
	maxMusicBytes int64
	now           func() time.Time
	newID         func() string
	logger        EventLogger
}

var _ DraftService = (*draftService)(nil)

func NewDraftService(deps DraftServiceDeps) (DraftService, error) {
	if deps.Drafts == nil {
		return nil, errors.New("draft service: draft repository is required")
	}
	if deps.Objects == nil {
		return nil, errors.New("draft service: object store is required")
	}
	variant, err := wizard.ParseVariant(deps.Variant)
	if err != nil {
		return nil, fmt.Errorf("draft service: %w", err)
	}
	policy := deps.DowngradePolicy
	if policy == "" {
		policy = wizard.DowngradeBlock
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	newID := deps.IDGenerator
	if newID == nil {
		newID = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	ttl := deps.TTL
	if ttl <= 0 {
		ttl = defaultDraftTTL
	}
	maxPhoto := deps.MaxPhotoBytes
	if maxPhoto <= 0 {
		maxPhoto = defaultMaxPhotoBytes
	}
	maxMusic := deps.MaxMusicBytes
	if maxMusic <= 0 {
		maxMusic = defaultMaxMusicBytes
	}

	return &draftService{
		drafts:        deps.Drafts,
		objects:       deps.Objects,
		variant:       string(variant),
		policy:        policy,
		ttl:           ttl,
		maxPhotoBytes: maxPhoto,
		maxMusicBytes: maxMusic,
		now: func() time.Time {
			return clock().UTC()
		},
		newID:  newID,
		logger: logger,
	}, nil
}

func (s *draftService) Create(ctx context.Context, cmd CreateDraftCommand) (DraftView, error) {
	variant := strings.TrimSpace(cmd.Variant)
	if variant == "" {
		variant = s.variant
	}
	now := s.now()
	draft := domain.DraftGallery{
		ID:        s.newID(),
		Variant:   variant,
		OwnerUID:  auth.OwnerUID(ctx),
		CreatedAt: now,
	}
	if cmd.Plan != nil {
		if !cmd.Plan.Valid() {
			return DraftView{}, fmt.Errorf("%w: %v", ErrDraftInvalidInput, domain.ErrUnknownPlan)
		}
		draft.Plan = *cmd.Plan
	}

	ctrl, err := s.controller(draft)
	if err != nil {
		return DraftView{}, err
	}
	if err := s.save(ctx, ctrl); err != nil {
		return DraftView{}, err
	}
	s.logger(ctx, "draft.created", map[string]any{
		"draftId": draft.ID,
		"variant": ctrl.Draft().Variant,
		"plan":    ctrl.Draft().Plan.String(),
	})
	return s.view(ctrl), nil
}

func (s *draftService) Get(ctx context.Context, draftID string) (DraftView, error) {
	ctrl, err := s.load(ctx, draftID)
	if err != nil {
		return DraftView{}, err
	}
	return s.view(ctrl), nil
}

func (s *draftService) Load(ctx context.Context, draftID string) (domain.DraftGallery, error) {
	ctrl, err := s.load(ctx, draftID)
	if err != nil {
		return domain.DraftGallery{}, err
	}
	return ctrl.Draft(), nil
}

func (s *draftService) Update(ctx context.Context, cmd UpdateDraftCommand) (DraftUpdateResult, error) {
	ctrl, err := s.load(ctx, cmd.DraftID)
	if err != nil {
		return DraftUpdateResult{}, err
	}

	var discard []string
	var result DraftUpdateResult
	if cmd.Plan != nil {
		trimmed, err := ctrl.SetPlan(*cmd.Plan)
		if err != nil {
			return DraftUpdateResult{}, err
		}
		for _, photo := range trimmed {
			result.TrimmedPhoto = append(result.TrimmedPhoto, photo.ID)
			discard = append(discard, photo.LocalRef)
		}
	}
	if cmd.Details != nil {
		if err := ctrl.SetDetails(*cmd.Details); err != nil {
			return DraftUpdateResult{}, err
		}
	}
	if cmd.Stories != nil {
		if err := ctrl.SetStories(*cmd.Stories); err != nil {
			return DraftUpdateResult{}, err
		}
	}
	if cmd.Theme != nil {
		if _, err := ctrl.SetTheme(*cmd.Theme); err != nil {
			return DraftUpdateResult{}, err
		}
	}
	if cmd.MusicPreset != nil {
		previous, err := ctrl.SetMusicPreset(*cmd.MusicPreset)
		if err != nil {
			return DraftUpdateResult{}, err
		}
		if previous.Custom() {
			discard = append(discard, previous.CustomRef)
		}
	}
	for photoID, caption := range cmd.Captions {
		if err := ctrl.SetCaption(photoID, caption); err != nil {
			return DraftUpdateResult{}, err
		}
	}
	if cmd.Step != nil {
		if err := ctrl.GoTo(*cmd.Step); err != nil {
			return DraftUpdateResult{}, err
		}
	}

	if err := s.save(ctx, ctrl); err != nil {
		return DraftUpdateResult{}, err
	}
	s.discardObjects(ctx, ctrl.Draft().ID, discard)
	if len(result.TrimmedPhoto) > 0 {
		s.logger(ctx, "draft.photos_trimmed", map[string]any{
			"draftId": ctrl.Draft().ID,
			"count":   len(result.TrimmedPhoto),
			"plan":    ctrl.Draft().Plan.String(),
		})
	}
	result.View = s.view(ctrl)
	return result, nil
}

func (s *draftService) Advance(ctx context.Context, draftID string) (AdvanceResult, error) {
	ctrl, err := s.load(ctx, draftID)
	if err != nil {
		return AdvanceResult{}, err
	}
	transition, err := ctrl.Advance()
	if err != nil {
		return AdvanceResult{}, err
	}
	if transition == wizard.TransitionStepChanged {
		if err := s.save(ctx, ctrl); err != nil {
			return AdvanceResult{}, err
		}
	}
	return AdvanceResult{View: s.view(ctrl), Transition: transition}, nil
}

func (s *draftService) Retreat(ctx context.Context, draftID string) (DraftView, error) {
	ctrl, err := s.load(ctx, draftID)
	if err != nil {
		return DraftView{}, err
	}
	if ctrl.Retreat() {
		if err := s.save(ctx, ctrl); err != nil {
			return DraftView{}, err
		}
	}
	return s.view(ctrl), nil
}

// AddPhotos stages at most the plan's remaining slots. Non-image files and
// the overflow of the batch are reported as dropped without being uploaded.
func (s *draftService) AddPhotos(ctx context.Context, cmd AddPhotosCommand) (AddPhotosResult, error) {
	ctrl, err := s.load(ctx, cmd.DraftID)
	if err != nil {
		return AddPhotosResult{}, err
	}
	draft := ctrl.Draft()

	files := make([]Upload, 0, len(cmd.Files))
	for _, file := range cmd.Files {
		if !strings.HasPrefix(strings.ToLower(file.ContentType), "image/") {
			continue
		}
		if file.Size > s.maxPhotoBytes {
			return AddPhotosResult{}, fmt.Errorf("%w: %q exceeds %d bytes", ErrDraftUploadTooLarge, file.FileName, s.maxPhotoBytes)
		}
		files = append(files, file)
	}

	if remaining := domain.RemainingPhotoSlots(draft.Plan, len(draft.Photos)); len(files) > remaining {
		files = files[:remaining]
	}

	staged := make([]domain.Photo, 0, len(files))
	for _, file := range files {
		uploadID := s.newID()
		obj, err := s.stage(ctx, storage.PurposeDraftPhoto, draft.ID, uploadID, file, s.maxPhotoBytes)
		if err != nil {
			s.discardObjects(ctx, draft.ID, photoRefs(staged))
			return AddPhotosResult{}, err
		}
		staged = append(staged, domain.Photo{
			ID:          uploadID,
			LocalRef:    obj.Key,
			FileName:    file.FileName,
			ContentType: file.ContentType,
			Size:        obj.Size,
			Caption:     file.Caption,
		})
	}

	accepted, _ := ctrl.AddPhotos(staged)
	if err := s.save(ctx, ctrl); err != nil {
		s.discardObjects(ctx, draft.ID, photoRefs(staged))
		return AddPhotosResult{}, err
	}

	dropped := len(cmd.Files) - len(accepted)
	if dropped > 0 {
		s.logger(ctx, "draft.photos_dropped", map[string]any{
			"draftId":  draft.ID,
			"accepted": len(accepted),
			"dropped":  dropped,
			"plan":     draft.Plan.String(),
		})
	}
	return AddPhotosResult{View: s.view(ctrl), Accepted: accepted, Dropped: dropped}, nil
}

func (s *draftService) RemovePhoto(ctx context.Context, draftID, photoID string) (DraftView, error) {
	ctrl, err := s.load(ctx, draftID)
	if err != nil {
		return DraftView{}, err
	}
	removed, err := ctrl.RemovePhoto(strings.TrimSpace(photoID))
	if err != nil {
		return DraftView{}, err
	}
	if err := s.save(ctx, ctrl); err != nil {
		return DraftView{}, err
	}
	s.discardObjects(ctx, draftID, []string{removed.LocalRef})
	return s.view(ctrl), nil
}

func (s *draftService) SetCustomMusic(ctx context.Context, cmd SetCustomMusicCommand) (DraftView, error) {
	ctrl, err := s.load(ctx, cmd.DraftID)
	if err != nil {
		return DraftView{}, err
	}
	draft := ctrl.Draft()
	if !domain.AllowsCustomMusic(draft.Plan) {
		return DraftView{}, &domain.UpgradeRequiredError{
			Feature:  domain.FeatureCustomMusic,
			Current:  draft.Plan,
			Required: domain.PlanTrueLove,
		}
	}
	if !strings.HasPrefix(strings.ToLower(cmd.File.ContentType), "audio/") {
		return DraftView{}, fmt.Errorf("%w: %q is not audio", ErrDraftUnsupportedMedia, cmd.File.FileName)
	}
	if cmd.File.Size > s.maxMusicBytes {
		return DraftView{}, fmt.Errorf("%w: %q exceeds %d bytes", ErrDraftUploadTooLarge, cmd.File.FileName, s.maxMusicBytes)
	}

	obj, err := s.stage(ctx, storage.PurposeDraftMusic, draft.ID, s.newID(), cmd.File, s.maxMusicBytes)
	if err != nil {
		return DraftView{}, err
	}
	previous, err := ctrl.SetCustomMusic(domain.MusicChoice{
		Preset:      draft.Music.Preset,
		CustomRef:   obj.Key,
		FileName:    cmd.File.FileName,
		ContentType: cmd.File.ContentType,
	})
	if err != nil {
		s.discardObjects(ctx, draft.ID, []string{obj.Key})
		return DraftView{}, err
	}
	if err := s.save(ctx, ctrl); err != nil {
		s.discardObjects(ctx, draft.ID, []string{obj.Key})
		return DraftView{}, err
	}
	if previous.Custom() {
		s.discardObjects(ctx, draft.ID, []string{previous.CustomRef})
	}
	return s.view(ctrl), nil
}

// Discard deletes the draft record. Staged objects are kept: a submission may
// have fallen back to their URLs.
func (s *draftService) Discard(ctx context.Context, draftID string) error {
	draftID = strings.TrimSpace(draftID)
	if draftID == "" {
		return ErrDraftInvalidInput
	}
	if err := s.drafts.Delete(ctx, draftID); err != nil {
		mapped := s.mapRepositoryError(err)
		if errors.Is(mapped, ErrDraftNotFound) {
			return nil
		}
		return mapped
	}
	return nil
}

func (s *draftService) controller(draft domain.DraftGallery) (*wizard.Controller, error) {
	ctrl, err := wizard.New(draft,
		wizard.WithDowngradePolicy(s.policy),
		wizard.WithIDGenerator(s.newID),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDraftInvalidInput, err)
	}
	return ctrl, nil
}

// load fetches the draft and hides drafts that belong to another signed-in user.
func (s *draftService) load(ctx context.Context, draftID string) (*wizard.Controller, error) {
	draftID = strings.TrimSpace(draftID)
	if draftID == "" {
		return nil, ErrDraftInvalidInput
	}
	draft, err := s.drafts.Get(ctx, draftID)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	if draft.OwnerUID != "" && draft.OwnerUID != auth.OwnerUID(ctx) {
		return nil, ErrDraftNotFound
	}
	return s.controller(draft)
}

func (s *draftService) save(ctx context.Context, ctrl *wizard.Controller) error {
	draft := ctrl.Stamp(s.now(), s.ttl)
	if err := s.drafts.Save(ctx, draft); err != nil {
		return s.mapRepositoryError(err)
	}
	return nil
}

func (s *draftService) stage(ctx context.Context, purpose storage.AssetPurpose, draftID, uploadID string, file Upload, limit int64) (storage.Object, error) {
	if file.Body == nil {
		return storage.Object{}, fmt.Errorf("%w: empty upload", ErrDraftInvalidInput)
	}
	key, err := storage.BuildObjectPath(purpose, storage.PathParams{
		DraftID:  draftID,
		UploadID: uploadID,
		At:       s.now(),
		FileName: file.FileName,
	})
	if err != nil {
		return storage.Object{}, fmt.Errorf("%w: %v", ErrDraftInvalidInput, err)
	}
	body := &cappedReader{r: file.Body, remaining: limit}
	obj, err := s.objects.Put(ctx, key, body, storage.PutOptions{
		ContentType: file.ContentType,
		Size:        file.Size,
	})
	if body.exceeded {
		_ = s.objects.Delete(ctx, key)
		return storage.Object{}, fmt.Errorf("%w: %q exceeds %d bytes", ErrDraftUploadTooLarge, file.FileName, limit)
	}
	if err != nil {
		return storage.Object{}, fmt.Errorf("%w: stage %s: %v", ErrDraftUnavailable, purpose, err)
	}
	return obj, nil
}

func (s *draftService) discardObjects(ctx context.Context, draftID string, keys []string) {
	for _, key := range keys {
		if strings.TrimSpace(key) == "" {
			continue
		}
		if err := s.objects.Delete(ctx, key); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
			s.logger(ctx, "draft.object_discard_failed", map[string]any{
				"draftId": draftID,
				"key":     key,
				"error":   err,
			})
		}
	}
}

func (s *draftService) view(ctrl *wizard.Controller) DraftView {
	draft := ctrl.Draft()
	steps := ctrl.Steps()
	view := DraftView{
		Draft:     draft,
		Steps:     make([]DraftStep, len(steps)),
		PhotoURLs: make(map[string]string, len(draft.Photos)),
	}
	for i, def := range steps {
		view.Steps[i] = DraftStep{
			Index:   i + 1,
			Kind:    def.Kind,
			Title:   def.Title,
			Valid:   ctrl.CanAdvance(i + 1),
			Current: i+1 == draft.Step,
		}
	}
	for _, photo := range draft.Photos {
		view.PhotoURLs[photo.ID] = s.objects.PublicURL(photo.LocalRef)
	}
	if draft.Music.Custom() {
		view.MusicURL = s.objects.PublicURL(draft.Music.CustomRef)
	}

	ent := DraftEntitlements{
		Plan:            draft.Plan,
		MaxPhotos:       domain.MaxPhotosFor(draft.Plan),
		RemainingPhotos: domain.RemainingPhotoSlots(draft.Plan, len(draft.Photos)),
		CustomMusic:     domain.AllowsCustomMusic(draft.Plan),
		ThemeLocked:     domain.ThemeRequiresUpgrade(draft.Theme, draft.Plan),
		ThemePlan:       domain.ThemePackageOf(draft.Theme),
	}
	var upgrade *domain.UpgradeRequiredError
	if err := domain.CheckDraft(draft); errors.As(err, &upgrade) {
		ent.Blocked = upgrade
	}
	view.Entitlements = ent
	return view
}

func (s *draftService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrDraftNotFound
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrDraftUnavailable, err)
		}
	}
	return fmt.Errorf("%w: %v", ErrDraftUnavailable, err)
}

func photoRefs(photos []domain.Photo) []string {
	refs := make([]string, 0, len(photos))
	for _, photo := range photos {
		refs = append(refs, photo.LocalRef)
	}
	return refs
}

// cappedReader fails once more than remaining bytes are read.
type cappedReader struct {
	r         io.Reader
	remaining int64
	exceeded  bool
}

var errUploadCapExceeded = errors.New("upload exceeds limit")

func (c *cappedReader) Read(p []byte) (int, error) {
	if c.remaining < 0 {
		c.exceeded = true
		return 0, errUploadCapExceeded
	}
	if int64(len(p)) > c.remaining+1 {
		p = p[:c.remaining+1]
	}
	n, err := c.r.Read(p)
	c.remaining -= int64(n)
	if c.remaining < 0 {
		c.exceeded = true
		return n, errUploadCapExceeded
	}
	return n, err
}
