package handlers

import (
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	domain "github.com/lovegallery/api/internal/domain"
	"github.com/lovegallery/api/internal/platform/auth"
	"github.com/lovegallery/api/internal/platform/httpx"
	"github.com/lovegallery/api/internal/platform/pagination"
	"github.com/lovegallery/api/internal/services"
)

// galleryMetadataField carries the JSON description of a one-shot submission;
// every other file part is named after the localRef it supplies.
const galleryMetadataField = "gallery"

// GalleryHandlers serve one-shot submission and public gallery reads.
type GalleryHandlers struct {
	authn       *auth.Authenticator
	submissions services.SubmissionService
	resolver    services.GalleryResolver
	cfg         handlerConfig
}

// NewGalleryHandlers constructs the /galleries handlers.
func NewGalleryHandlers(authn *auth.Authenticator, submissions services.SubmissionService, resolver services.GalleryResolver, opts ...HandlerOption) *GalleryHandlers {
	return &GalleryHandlers{
		authn:       authn,
		submissions: submissions,
		resolver:    resolver,
		cfg:         newHandlerConfig(opts),
	}
}

// Routes registers the /galleries endpoints.
func (h *GalleryHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.With(h.authn.OptionalFirebaseAuth()).Post("/", h.submitGallery)
	} else {
		r.Post("/", h.submitGallery)
	}
	r.Get("/{ref}", h.getGallery)
}

// MeRoutes registers the owner scoped listing under /me.
func (h *GalleryHandlers) MeRoutes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/galleries", h.listOwned)
}

type photoRefPayload struct {
	LocalRef string `json:"localRef"`
	Caption  string `json:"caption"`
}

type musicRefPayload struct {
	Preset   string `json:"preset"`
	LocalRef string `json:"localRef"`
}

type submitGalleryRequest struct {
	Variant         string            `json:"variant"`
	Plan            string            `json:"plan"`
	YourName        string            `json:"yourName"`
	PartnerName     string            `json:"partnerName"`
	LoveMessage     string            `json:"loveMessage"`
	SpecialDate     string            `json:"specialDate"`
	YourWhatsapp    string            `json:"yourWhatsapp"`
	PartnerWhatsapp string            `json:"partnerWhatsapp"`
	Stories         []storyPayload    `json:"stories"`
	Theme           string            `json:"theme"`
	Music           musicRefPayload   `json:"music"`
	Photos          []photoRefPayload `json:"photos"`
	PaymentRef      string            `json:"paymentRef"`
}

type galleryPhotoPayload struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	Caption  string `json:"caption,omitempty"`
	Uploaded bool   `json:"uploaded"`
}

type galleryStoryPayload struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Icon    string `json:"icon,omitempty"`
	HTML    string `json:"html"`
}

type themePayload struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Colors       string `json:"colors,omitempty"`
	RequiredPlan string `json:"requiredPlan"`
}

type galleryMusicPayload struct {
	ID     string `json:"id,omitempty"`
	Name   string `json:"name,omitempty"`
	Custom bool   `json:"custom"`
	URL    string `json:"url,omitempty"`
}

type galleryPayload struct {
	State           string                `json:"state"`
	ID              string                `json:"id"`
	Slug            string                `json:"slug,omitempty"`
	YourName        string                `json:"yourName"`
	PartnerName     string                `json:"partnerName"`
	LoveMessage     string                `json:"loveMessage"`
	SpecialDate     string                `json:"specialDate,omitempty"`
	YourWhatsapp    string                `json:"yourWhatsapp,omitempty"`
	PartnerWhatsapp string                `json:"partnerWhatsapp,omitempty"`
	Photos          []galleryPhotoPayload `json:"photos"`
	Stories         []galleryStoryPayload `json:"stories"`
	Theme           themePayload          `json:"theme"`
	Music           galleryMusicPayload   `json:"music"`
	Plan            string                `json:"plan"`
	SharePath       string                `json:"sharePath"`
	ShareURL        string                `json:"shareUrl"`
	WhatsAppShare   string                `json:"whatsappShareUrl"`
	CreatedAt       string                `json:"createdAt,omitempty"`
}

type galleryListResponse struct {
	Items         []galleryPayload `json:"items"`
	NextPageToken string           `json:"nextPageToken,omitempty"`
}

func (h *GalleryHandlers) submitGallery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.submissions == nil {
		writeUnavailable(ctx, w, "submission")
		return
	}
	if !allow(h.cfg.limiter, clientKey(r)) {
		w.Header().Set("Retry-After", "60")
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many submissions, try again shortly", http.StatusTooManyRequests))
		return
	}
	if err := parseMultipart(w, r, h.cfg.submissionLimit()); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	raw := strings.TrimSpace(firstValue(r.MultipartForm, galleryMetadataField))
	if raw == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "gallery field is required", http.StatusBadRequest))
		return
	}
	var req submitGalleryRequest
	decoder := json.NewDecoder(strings.NewReader(raw))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "gallery field must be valid JSON: "+err.Error(), http.StatusBadRequest))
		return
	}

	draft, assets, dropped, apiErr := h.buildSubmission(req, r.MultipartForm)
	if apiErr != nil {
		httpx.WriteError(ctx, w, *apiErr)
		return
	}
	result, err := h.submissions.Submit(ctx, services.SubmitCommand{
		Draft:      draft,
		Assets:     assets,
		OwnerUID:   auth.OwnerUID(ctx),
		PaymentRef: strings.TrimSpace(req.PaymentRef),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	resp := buildSubmitResponse(result)
	resp.DroppedPhotos = dropped
	writeJSONResponse(w, http.StatusCreated, resp)
}

// buildSubmission turns the request into a draft plus its inline assets. A
// photo whose file part is missing is still submitted; the pipeline keeps its
// localRef as the URL. Non-image parts and photos beyond the plan allowance
// are dropped in request order and counted.
func (h *GalleryHandlers) buildSubmission(req submitGalleryRequest, form *multipart.Form) (domain.DraftGallery, map[string]services.Asset, int, *httpx.Error) {
	plan := domain.DefaultPlan
	if strings.TrimSpace(req.Plan) != "" {
		parsed, err := domain.ParsePlan(req.Plan)
		if err != nil {
			e := httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest)
			return domain.DraftGallery{}, nil, 0, &e
		}
		plan = parsed
	}

	draft := domain.DraftGallery{
		Variant:         req.Variant,
		YourName:        req.YourName,
		PartnerName:     req.PartnerName,
		LoveMessage:     req.LoveMessage,
		SpecialDate:     req.SpecialDate,
		YourWhatsapp:    req.YourWhatsapp,
		PartnerWhatsapp: req.PartnerWhatsapp,
		Stories:         toStories(req.Stories),
		Theme:           strings.TrimSpace(req.Theme),
		Music:           domain.MusicChoice{Preset: strings.TrimSpace(req.Music.Preset)},
		Plan:            plan,
	}
	if draft.Theme == "" {
		draft.Theme = domain.DefaultTheme
	}

	assets := make(map[string]services.Asset)
	seen := make(map[string]struct{}, len(req.Photos))
	slots := domain.RemainingPhotoSlots(plan, 0)
	dropped := 0
	for _, ref := range req.Photos {
		localRef := strings.TrimSpace(ref.LocalRef)
		if localRef == "" || localRef == galleryMetadataField {
			e := httpx.NewError("invalid_request", "every photo needs a localRef", http.StatusBadRequest)
			return domain.DraftGallery{}, nil, 0, &e
		}
		if _, dup := seen[localRef]; dup {
			e := httpx.NewError("invalid_request", "duplicate photo localRef "+localRef, http.StatusBadRequest)
			return domain.DraftGallery{}, nil, 0, &e
		}
		seen[localRef] = struct{}{}
		header := firstFile(form, localRef)
		if header != nil && !isMediaPart(header, "image/") {
			dropped++
			continue
		}
		if len(draft.Photos) >= slots {
			dropped++
			continue
		}

		photo := domain.Photo{ID: ulid.Make().String(), LocalRef: localRef, Caption: ref.Caption}
		if header != nil {
			if apiErr := checkPart(header, "image/", h.cfg.maxPhotoBytes); apiErr != nil {
				return domain.DraftGallery{}, nil, 0, apiErr
			}
			photo.FileName = header.Filename
			photo.ContentType = partContentType(header)
			photo.Size = header.Size
			assets[localRef] = assetFromPart(header)
		}
		draft.Photos = append(draft.Photos, photo)
	}

	if localRef := strings.TrimSpace(req.Music.LocalRef); localRef != "" {
		header := firstFile(form, localRef)
		if header == nil {
			e := httpx.NewError("invalid_request", "music file part "+localRef+" is missing", http.StatusBadRequest)
			return domain.DraftGallery{}, nil, 0, &e
		}
		if apiErr := checkPart(header, "audio/", h.cfg.maxMusicBytes); apiErr != nil {
			return domain.DraftGallery{}, nil, 0, apiErr
		}
		draft.Music.CustomRef = localRef
		draft.Music.FileName = header.Filename
		draft.Music.ContentType = partContentType(header)
		assets[localRef] = assetFromPart(header)
	}
	return draft, assets, dropped, nil
}

func isMediaPart(header *multipart.FileHeader, mediaPrefix string) bool {
	return strings.HasPrefix(strings.ToLower(partContentType(header)), mediaPrefix)
}

func checkPart(header *multipart.FileHeader, mediaPrefix string, limit int64) *httpx.Error {
	if !isMediaPart(header, mediaPrefix) {
		e := httpx.NewError("unsupported_media_type", header.Filename+" must be "+strings.TrimSuffix(mediaPrefix, "/")+" media", http.StatusUnsupportedMediaType)
		return &e
	}
	if limit > 0 && header.Size > limit {
		e := httpx.NewError("payload_too_large", header.Filename+" is too large", http.StatusRequestEntityTooLarge)
		return &e
	}
	return nil
}

func assetFromPart(header *multipart.FileHeader) services.Asset {
	return services.Asset{
		FileName:    header.Filename,
		ContentType: partContentType(header),
		Size:        header.Size,
		Open:        func() (io.ReadCloser, error) { return header.Open() },
	}
}

func firstFile(form *multipart.Form, field string) *multipart.FileHeader {
	if form == nil {
		return nil
	}
	if files := form.File[field]; len(files) > 0 {
		return files[0]
	}
	return nil
}

func firstValue(form *multipart.Form, field string) string {
	if form == nil {
		return ""
	}
	if values := form.Value[field]; len(values) > 0 {
		return values[0]
	}
	if header := firstFile(form, field); header != nil {
		f, err := header.Open()
		if err != nil {
			return ""
		}
		defer f.Close()
		data, err := io.ReadAll(io.LimitReader(f, maxJSONRequestBody))
		if err != nil {
			return ""
		}
		return string(data)
	}
	return ""
}

func (h *GalleryHandlers) getGallery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.resolver == nil {
		writeUnavailable(ctx, w, "gallery")
		return
	}
	view, err := h.resolver.Resolve(ctx, chi.URLParam(r, "ref"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=60")
	writeJSONResponse(w, http.StatusOK, buildGalleryPayload(view))
}

func (h *GalleryHandlers) listOwned(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.resolver == nil {
		writeUnavailable(ctx, w, "gallery")
		return
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}
	params, err := pagination.FromRequest(r, pagination.Options{})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	page, err := h.resolver.ListOwned(ctx, services.ListOwnedCommand{
		OwnerUID:  identity.UID,
		PageToken: params.PageToken,
		PageSize:  params.PageSize,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	resp := galleryListResponse{
		Items:         make([]galleryPayload, 0, len(page.Items)),
		NextPageToken: page.NextPageToken,
	}
	for _, view := range page.Items {
		resp.Items = append(resp.Items, buildGalleryPayload(view))
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func buildGalleryPayload(view services.GalleryView) galleryPayload {
	g := view.Gallery
	payload := galleryPayload{
		State:           "ready",
		ID:              g.ID,
		Slug:            g.Slug,
		YourName:        g.YourName,
		PartnerName:     g.PartnerName,
		LoveMessage:     g.LoveMessage,
		SpecialDate:     g.SpecialDate,
		YourWhatsapp:    g.YourWhatsapp,
		PartnerWhatsapp: g.PartnerWhatsapp,
		Photos:          make([]galleryPhotoPayload, 0, len(g.Photos)),
		Stories:         make([]galleryStoryPayload, 0, len(g.Stories)),
		Theme: themePayload{
			ID:           view.Theme.ID,
			Name:         view.Theme.Name,
			Colors:       view.Theme.Colors,
			RequiredPlan: view.Theme.Tier.String(),
		},
		Music: galleryMusicPayload{
			Name:   view.MusicName,
			Custom: g.CustomMusic,
			URL:    view.MusicURL,
		},
		Plan:          g.Plan.String(),
		SharePath:     view.SharePath,
		ShareURL:      view.ShareURL,
		WhatsAppShare: view.WhatsAppShare,
		CreatedAt:     formatTime(g.CreatedAt),
	}
	if !g.CustomMusic {
		payload.Music.ID = g.Music
	}
	for _, photo := range g.Photos {
		payload.Photos = append(payload.Photos, galleryPhotoPayload{
			ID:       photo.ID,
			URL:      photo.URL,
			Caption:  photo.Caption,
			Uploaded: photo.Uploaded,
		})
	}
	for i, story := range g.Stories {
		item := galleryStoryPayload{Title: story.Title, Content: story.Content, Icon: story.Icon}
		if i < len(view.StoriesHTML) {
			item.HTML = view.StoriesHTML[i]
		}
		payload.Stories = append(payload.Stories, item)
	}
	return payload
}
