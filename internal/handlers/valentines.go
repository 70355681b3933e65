package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lovegallery/api/internal/platform/httpx"
	"github.com/lovegallery/api/internal/services"
)

// ValentineHandlers create and show valentine invitations.
type ValentineHandlers struct {
	valentines services.ValentineService
	cfg        handlerConfig
}

func NewValentineHandlers(valentines services.ValentineService, opts ...HandlerOption) *ValentineHandlers {
	return &ValentineHandlers{valentines: valentines, cfg: newHandlerConfig(opts)}
}

// Routes registers the /valentines endpoints.
func (h *ValentineHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.createValentine)
	r.Get("/{valentineId}", h.viewValentine)
}

type createValentineRequest struct {
	SenderName   string `json:"senderName"`
	PartnerName  string `json:"partnerName"`
	SenderPhone  string `json:"senderPhone"`
	PartnerPhone string `json:"partnerPhone"`
	Plan         string `json:"plan"`
}

type valentineInviteResponse struct {
	ID          string `json:"id"`
	SenderName  string `json:"senderName"`
	PartnerName string `json:"partnerName"`
	Plan        string `json:"plan"`
	Path        string `json:"path"`
	URL         string `json:"url"`
	SendLink    string `json:"sendLink"`
	CreatedAt   string `json:"createdAt,omitempty"`
}

type valentineViewResponse struct {
	ID          string `json:"id"`
	PartnerName string `json:"partnerName"`
	SenderName  string `json:"senderName,omitempty"`
	SenderPhone string `json:"senderPhone,omitempty"`
	YesLink     string `json:"yesLink"`
	Found       bool   `json:"found"`
}

func (h *ValentineHandlers) createValentine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.valentines == nil {
		writeUnavailable(ctx, w, "valentine")
		return
	}
	if !allow(h.cfg.limiter, clientKey(r)) {
		w.Header().Set("Retry-After", "60")
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many invitations, try again shortly", http.StatusTooManyRequests))
		return
	}
	var req createValentineRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	plan, err := parsePlanParam(req.Plan)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	invite, err := h.valentines.Create(ctx, services.CreateValentineCommand{
		SenderName:   req.SenderName,
		PartnerName:  req.PartnerName,
		SenderPhone:  req.SenderPhone,
		PartnerPhone: req.PartnerPhone,
		Plan:         plan,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	v := invite.Valentine
	writeJSONResponse(w, http.StatusCreated, valentineInviteResponse{
		ID:          v.ID,
		SenderName:  v.SenderName,
		PartnerName: v.PartnerName,
		Plan:        v.Plan.String(),
		Path:        invite.Path,
		URL:         invite.URL,
		SendLink:    invite.SendLink,
		CreatedAt:   formatTime(v.CreatedAt),
	})
}

// viewValentine never answers 404: unknown ids render from the id and ?phone=.
func (h *ValentineHandlers) viewValentine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.valentines == nil {
		writeUnavailable(ctx, w, "valentine")
		return
	}
	view, err := h.valentines.View(ctx, chi.URLParam(r, "valentineId"), r.URL.Query().Get("phone"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, valentineViewResponse{
		ID:          view.ID,
		PartnerName: view.PartnerName,
		SenderName:  view.SenderName,
		SenderPhone: view.SenderPhone,
		YesLink:     view.YesLink,
		Found:       view.Found,
	})
}
