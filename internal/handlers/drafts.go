package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/lovegallery/api/internal/domain"
	"github.com/lovegallery/api/internal/platform/auth"
	"github.com/lovegallery/api/internal/platform/httpx"
	"github.com/lovegallery/api/internal/services"
	"github.com/lovegallery/api/internal/wizard"
)

// DraftHandlers expose the creation wizard over persisted drafts. A Firebase
// ID token is optional; when present the draft is owned by that user.
type DraftHandlers struct {
	authn       *auth.Authenticator
	drafts      services.DraftService
	submissions services.SubmissionService
	cfg         handlerConfig
}

// NewDraftHandlers constructs the /drafts handlers.
func NewDraftHandlers(authn *auth.Authenticator, drafts services.DraftService, submissions services.SubmissionService, opts ...HandlerOption) *DraftHandlers {
	return &DraftHandlers{
		authn:       authn,
		drafts:      drafts,
		submissions: submissions,
		cfg:         newHandlerConfig(opts),
	}
}

// Routes registers the /drafts endpoints.
func (h *DraftHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.OptionalFirebaseAuth())
	}
	r.Post("/", h.createDraft)
	r.Get("/{draftId}", h.getDraft)
	r.Patch("/{draftId}", h.updateDraft)
	r.Post("/{draftId}:advance", h.advanceDraft)
	r.Post("/{draftId}:retreat", h.retreatDraft)
	r.Post("/{draftId}:submit", h.submitDraft)
	r.Post("/{draftId}/photos", h.addPhotos)
	r.Delete("/{draftId}/photos/{photoId}", h.removePhoto)
	r.Put("/{draftId}/music", h.setMusic)
	r.Delete("/{draftId}", h.discardDraft)
}

type createDraftRequest struct {
	Variant string `json:"variant"`
	Plan    string `json:"plan"`
}

type detailsPayload struct {
	YourName        string `json:"yourName"`
	PartnerName     string `json:"partnerName"`
	LoveMessage     string `json:"loveMessage"`
	SpecialDate     string `json:"specialDate"`
	YourWhatsapp    string `json:"yourWhatsapp"`
	PartnerWhatsapp string `json:"partnerWhatsapp"`
}

type storyPayload struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Icon    string `json:"icon,omitempty"`
}

type updateDraftRequest struct {
	Plan     *string           `json:"plan"`
	Details  *detailsPayload   `json:"details"`
	Stories  *[]storyPayload   `json:"stories"`
	Theme    *string           `json:"theme"`
	Music    *string           `json:"music"`
	Captions map[string]string `json:"captions"`
	Step     *int              `json:"step"`
}

type submitDraftRequest struct {
	PaymentRef string `json:"paymentRef"`
}

type draftPhotoPayload struct {
	ID          string `json:"id"`
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	Caption     string `json:"caption,omitempty"`
	URL         string `json:"url"`
}

type draftMusicPayload struct {
	Preset   string `json:"preset"`
	Custom   bool   `json:"custom"`
	FileName string `json:"fileName,omitempty"`
	URL      string `json:"url,omitempty"`
}

type draftStepPayload struct {
	Index   int    `json:"index"`
	Kind    string `json:"kind"`
	Title   string `json:"title"`
	Valid   bool   `json:"valid"`
	Current bool   `json:"current"`
}

type blockedPayload struct {
	Feature      string `json:"feature"`
	RequiredPlan string `json:"requiredPlan"`
	Theme        string `json:"theme,omitempty"`
}

type entitlementsPayload struct {
	Plan            string          `json:"plan"`
	MaxPhotos       int             `json:"maxPhotos"`
	RemainingPhotos int             `json:"remainingPhotos"`
	CustomMusic     bool            `json:"customMusic"`
	ThemeLocked     bool            `json:"themeLocked"`
	ThemePlan       string          `json:"themePlan"`
	Blocked         *blockedPayload `json:"blocked,omitempty"`
}

type draftPayload struct {
	ID           string              `json:"id"`
	Variant      string              `json:"variant"`
	Step         int                 `json:"step"`
	Plan         string              `json:"plan"`
	Details      detailsPayload      `json:"details"`
	Stories      []storyPayload      `json:"stories"`
	Photos       []draftPhotoPayload `json:"photos"`
	Theme        string              `json:"theme"`
	Music        draftMusicPayload   `json:"music"`
	Steps        []draftStepPayload  `json:"steps"`
	Entitlements entitlementsPayload `json:"entitlements"`
	CreatedAt    string              `json:"createdAt,omitempty"`
	UpdatedAt    string              `json:"updatedAt,omitempty"`
	ExpiresAt    string              `json:"expiresAt,omitempty"`
}

type updateDraftResponse struct {
	Draft         draftPayload `json:"draft"`
	TrimmedPhotos []string     `json:"trimmedPhotos,omitempty"`
}

type addPhotosResponse struct {
	Draft    draftPayload `json:"draft"`
	Accepted []string     `json:"accepted"`
	Dropped  int          `json:"dropped"`
}

type advanceResponse struct {
	Transition string          `json:"transition"`
	Draft      *draftPayload   `json:"draft,omitempty"`
	Gallery    *submitResponse `json:"gallery,omitempty"`
}

type submitResponse struct {
	ID             string `json:"id"`
	Slug           string `json:"slug,omitempty"`
	SharePath      string `json:"sharePath"`
	ShareURL       string `json:"shareUrl"`
	UploadedPhotos int    `json:"uploadedPhotos"`
	FallbackPhotos int    `json:"fallbackPhotos"`
	MusicFallback  bool   `json:"musicFallback"`
	DroppedPhotos  int    `json:"droppedPhotos,omitempty"`
}

func (h *DraftHandlers) createDraft(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.drafts == nil {
		writeUnavailable(ctx, w, "draft")
		return
	}
	var req createDraftRequest
	if r.ContentLength != 0 {
		if !decodeJSONBody(w, r, &req) {
			return
		}
	}
	plan, err := parsePlanParam(req.Plan)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	view, err := h.drafts.Create(ctx, services.CreateDraftCommand{Variant: req.Variant, Plan: plan})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildDraftPayload(view))
}

func (h *DraftHandlers) getDraft(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.drafts == nil {
		writeUnavailable(ctx, w, "draft")
		return
	}
	view, err := h.drafts.Get(ctx, chi.URLParam(r, "draftId"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildDraftPayload(view))
}

func (h *DraftHandlers) updateDraft(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.drafts == nil {
		writeUnavailable(ctx, w, "draft")
		return
	}
	var req updateDraftRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	cmd := services.UpdateDraftCommand{
		DraftID:     chi.URLParam(r, "draftId"),
		Theme:       req.Theme,
		MusicPreset: req.Music,
		Captions:    req.Captions,
		Step:        req.Step,
	}
	if req.Plan != nil {
		plan, err := domain.ParsePlan(*req.Plan)
		if err != nil {
			writeServiceError(ctx, w, err)
			return
		}
		cmd.Plan = &plan
	}
	if req.Details != nil {
		cmd.Details = &wizard.Details{
			YourName:        req.Details.YourName,
			PartnerName:     req.Details.PartnerName,
			LoveMessage:     req.Details.LoveMessage,
			SpecialDate:     req.Details.SpecialDate,
			YourWhatsapp:    req.Details.YourWhatsapp,
			PartnerWhatsapp: req.Details.PartnerWhatsapp,
		}
	}
	if req.Stories != nil {
		stories := toStories(*req.Stories)
		cmd.Stories = &stories
	}

	result, err := h.drafts.Update(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, updateDraftResponse{
		Draft:         buildDraftPayload(result.View),
		TrimmedPhotos: result.TrimmedPhoto,
	})
}

// advanceDraft moves to the next step. On the last step a valid draft is
// submitted in the same call.
func (h *DraftHandlers) advanceDraft(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.drafts == nil {
		writeUnavailable(ctx, w, "draft")
		return
	}
	var req submitDraftRequest
	if r.ContentLength > 0 {
		if !decodeJSONBody(w, r, &req) {
			return
		}
	}
	draftID := chi.URLParam(r, "draftId")
	result, err := h.drafts.Advance(ctx, draftID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	if result.Transition != wizard.TransitionSubmit {
		draft := buildDraftPayload(result.View)
		writeJSONResponse(w, http.StatusOK, advanceResponse{
			Transition: transitionName(result.Transition),
			Draft:      &draft,
		})
		return
	}
	if !h.allowSubmit(w, r) {
		return
	}
	submitted, err := h.submit(r, draftID, req.PaymentRef)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	payload := buildSubmitResponse(submitted)
	writeJSONResponse(w, http.StatusCreated, advanceResponse{
		Transition: transitionName(result.Transition),
		Gallery:    &payload,
	})
}

func (h *DraftHandlers) retreatDraft(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.drafts == nil {
		writeUnavailable(ctx, w, "draft")
		return
	}
	view, err := h.drafts.Retreat(ctx, chi.URLParam(r, "draftId"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildDraftPayload(view))
}

func (h *DraftHandlers) submitDraft(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.allowSubmit(w, r) {
		return
	}
	var req submitDraftRequest
	if r.ContentLength > 0 {
		if !decodeJSONBody(w, r, &req) {
			return
		}
	}
	result, err := h.submit(r, chi.URLParam(r, "draftId"), req.PaymentRef)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildSubmitResponse(result))
}

func (h *DraftHandlers) submit(r *http.Request, draftID, paymentRef string) (services.SubmitResult, error) {
	if h.submissions == nil {
		return services.SubmitResult{}, services.ErrSubmissionUnavailable
	}
	return h.submissions.SubmitDraft(r.Context(), services.SubmitDraftCommand{
		DraftID:    draftID,
		PaymentRef: strings.TrimSpace(paymentRef),
	})
}

func (h *DraftHandlers) allowSubmit(w http.ResponseWriter, r *http.Request) bool {
	if allow(h.cfg.limiter, clientKey(r)) {
		return true
	}
	w.Header().Set("Retry-After", "60")
	httpx.WriteError(r.Context(), w, httpx.NewError("rate_limited", "too many submissions, try again shortly", http.StatusTooManyRequests))
	return false
}

func (h *DraftHandlers) addPhotos(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.drafts == nil {
		writeUnavailable(ctx, w, "draft")
		return
	}
	if err := parseMultipart(w, r, h.cfg.photoBatchLimit()); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	uploads, closeAll, err := openUploads(r.MultipartForm, "photos", r.MultipartForm.Value["captions"])
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	defer closeAll()
	if len(uploads) == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "at least one photos file part is required", http.StatusBadRequest))
		return
	}

	result, err := h.drafts.AddPhotos(ctx, services.AddPhotosCommand{
		DraftID: chi.URLParam(r, "draftId"),
		Files:   uploads,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	accepted := make([]string, 0, len(result.Accepted))
	for _, photo := range result.Accepted {
		accepted = append(accepted, photo.ID)
	}
	writeJSONResponse(w, http.StatusOK, addPhotosResponse{
		Draft:    buildDraftPayload(result.View),
		Accepted: accepted,
		Dropped:  result.Dropped,
	})
}

func (h *DraftHandlers) removePhoto(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.drafts == nil {
		writeUnavailable(ctx, w, "draft")
		return
	}
	view, err := h.drafts.RemovePhoto(ctx, chi.URLParam(r, "draftId"), chi.URLParam(r, "photoId"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildDraftPayload(view))
}

func (h *DraftHandlers) setMusic(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.drafts == nil {
		writeUnavailable(ctx, w, "draft")
		return
	}
	if err := parseMultipart(w, r, h.cfg.maxMusicBytes+multipartSlack); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	uploads, closeAll, err := openUploads(r.MultipartForm, "music", nil)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	defer closeAll()
	if len(uploads) != 1 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "exactly one music file part is required", http.StatusBadRequest))
		return
	}

	view, err := h.drafts.SetCustomMusic(ctx, services.SetCustomMusicCommand{
		DraftID: chi.URLParam(r, "draftId"),
		File:    uploads[0],
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildDraftPayload(view))
}

func (h *DraftHandlers) discardDraft(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.drafts == nil {
		writeUnavailable(ctx, w, "draft")
		return
	}
	if err := h.drafts.Discard(ctx, chi.URLParam(r, "draftId")); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toStories(in []storyPayload) []domain.Story {
	out := make([]domain.Story, 0, len(in))
	for _, s := range in {
		out = append(out, domain.Story{Title: s.Title, Content: s.Content, Icon: s.Icon})
	}
	return out
}

func fromStories(in []domain.Story) []storyPayload {
	out := make([]storyPayload, 0, len(in))
	for _, s := range in {
		out = append(out, storyPayload{Title: s.Title, Content: s.Content, Icon: s.Icon})
	}
	return out
}

func transitionName(t wizard.Transition) string {
	switch t {
	case wizard.TransitionStepChanged:
		return "step_changed"
	case wizard.TransitionSubmit:
		return "submit"
	default:
		return "none"
	}
}

func buildDraftPayload(view services.DraftView) draftPayload {
	d := view.Draft
	payload := draftPayload{
		ID:      d.ID,
		Variant: d.Variant,
		Step:    d.Step,
		Plan:    d.Plan.String(),
		Details: detailsPayload{
			YourName:        d.YourName,
			PartnerName:     d.PartnerName,
			LoveMessage:     d.LoveMessage,
			SpecialDate:     d.SpecialDate,
			YourWhatsapp:    d.YourWhatsapp,
			PartnerWhatsapp: d.PartnerWhatsapp,
		},
		Stories: fromStories(d.Stories),
		Photos:  make([]draftPhotoPayload, 0, len(d.Photos)),
		Theme:   d.Theme,
		Music: draftMusicPayload{
			Preset:   d.Music.Preset,
			Custom:   d.Music.Custom(),
			FileName: d.Music.FileName,
			URL:      view.MusicURL,
		},
		Steps: make([]draftStepPayload, 0, len(view.Steps)),
		Entitlements: entitlementsPayload{
			Plan:            view.Entitlements.Plan.String(),
			MaxPhotos:       view.Entitlements.MaxPhotos,
			RemainingPhotos: view.Entitlements.RemainingPhotos,
			CustomMusic:     view.Entitlements.CustomMusic,
			ThemeLocked:     view.Entitlements.ThemeLocked,
			ThemePlan:       view.Entitlements.ThemePlan.String(),
		},
		CreatedAt: formatTime(d.CreatedAt),
		UpdatedAt: formatTime(d.UpdatedAt),
		ExpiresAt: formatTime(d.ExpiresAt),
	}
	for _, photo := range d.Photos {
		payload.Photos = append(payload.Photos, draftPhotoPayload{
			ID:          photo.ID,
			FileName:    photo.FileName,
			ContentType: photo.ContentType,
			Size:        photo.Size,
			Caption:     photo.Caption,
			URL:         view.PhotoURLs[photo.ID],
		})
	}
	for _, step := range view.Steps {
		payload.Steps = append(payload.Steps, draftStepPayload{
			Index:   step.Index,
			Kind:    string(step.Kind),
			Title:   step.Title,
			Valid:   step.Valid,
			Current: step.Current,
		})
	}
	if blocked := view.Entitlements.Blocked; blocked != nil {
		payload.Entitlements.Blocked = &blockedPayload{
			Feature:      string(blocked.Feature),
			RequiredPlan: blocked.Required.String(),
			Theme:        blocked.Theme,
		}
	}
	return payload
}

func buildSubmitResponse(result services.SubmitResult) submitResponse {
	return submitResponse{
		ID:             result.ID,
		Slug:           result.Slug,
		SharePath:      result.SharePath,
		ShareURL:       result.ShareURL,
		UploadedPhotos: result.UploadedPhotos,
		FallbackPhotos: result.FallbackPhotos,
		MusicFallback:  result.MusicFallback,
	}
}
