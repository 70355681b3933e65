package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	domain "github.com/lovegallery/api/internal/domain"
	"github.com/lovegallery/api/internal/services"
)

// CatalogHandlers expose the plan, theme and music listings.
type CatalogHandlers struct {
	catalog services.CatalogService
}

// NewCatalogHandlers constructs catalogue handlers.
func NewCatalogHandlers(catalog services.CatalogService) *CatalogHandlers {
	return &CatalogHandlers{catalog: catalog}
}

// Routes registers the catalogue endpoints on the API root.
func (h *CatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/plans", h.listPlans)
	r.Get("/themes", h.listThemes)
	r.Get("/music", h.listMusic)
}

type planPayload struct {
	Plan           string   `json:"plan"`
	Label          string   `json:"label"`
	PricePaise     int64    `json:"pricePaise"`
	ListPricePaise int64    `json:"listPricePaise,omitempty"`
	MaxPhotos      int      `json:"maxPhotos"`
	CustomMusic    bool     `json:"customMusic"`
	Popular        bool     `json:"popular"`
	Features       []string `json:"features"`
}

type themeListingPayload struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Colors       string `json:"colors,omitempty"`
	Locked       bool   `json:"locked"`
	RequiredPlan string `json:"requiredPlan"`
}

type musicPresetPayload struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Emoji   string `json:"emoji,omitempty"`
	Default bool   `json:"default"`
}

type plansResponse struct {
	Items []planPayload `json:"items"`
}

type themesResponse struct {
	Plan  string                `json:"plan"`
	Items []themeListingPayload `json:"items"`
}

type musicResponse struct {
	Items []musicPresetPayload `json:"items"`
}

func (h *CatalogHandlers) listPlans(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeUnavailable(ctx, w, "catalog")
		return
	}
	offers := h.catalog.Plans(ctx)
	resp := plansResponse{Items: make([]planPayload, 0, len(offers))}
	for _, offer := range offers {
		features := offer.Features
		if features == nil {
			features = []string{}
		}
		resp.Items = append(resp.Items, planPayload{
			Plan:           offer.Plan.String(),
			Label:          offer.Label,
			PricePaise:     offer.PricePaise,
			ListPricePaise: offer.ListPricePaise,
			MaxPhotos:      offer.MaxPhotos,
			CustomMusic:    offer.CustomMusic,
			Popular:        offer.Popular,
			Features:       features,
		})
	}
	w.Header().Set("Cache-Control", "public, max-age=300")
	writeJSONResponse(w, http.StatusOK, resp)
}

// listThemes marks each theme locked or not for ?plan= (free when omitted).
func (h *CatalogHandlers) listThemes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeUnavailable(ctx, w, "catalog")
		return
	}
	plan := domain.DefaultPlan
	parsed, err := parsePlanParam(r.URL.Query().Get("plan"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	if parsed != nil {
		plan = *parsed
	}

	listings := h.catalog.Themes(ctx, plan)
	resp := themesResponse{Plan: plan.String(), Items: make([]themeListingPayload, 0, len(listings))}
	for _, listing := range listings {
		resp.Items = append(resp.Items, themeListingPayload{
			ID:           listing.Theme.ID,
			Name:         listing.Theme.Name,
			Colors:       listing.Theme.Colors,
			Locked:       listing.Locked,
			RequiredPlan: listing.RequiredPlan.String(),
		})
	}
	w.Header().Set("Cache-Control", "public, max-age=300")
	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *CatalogHandlers) listMusic(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeUnavailable(ctx, w, "catalog")
		return
	}
	presets := h.catalog.Music(ctx)
	resp := musicResponse{Items: make([]musicPresetPayload, 0, len(presets))}
	for _, preset := range presets {
		resp.Items = append(resp.Items, musicPresetPayload{
			ID:      preset.ID,
			Name:    preset.Name,
			Emoji:   preset.Emoji,
			Default: preset.Default,
		})
	}
	w.Header().Set("Cache-Control", "public, max-age=300")
	writeJSONResponse(w, http.StatusOK, resp)
}
