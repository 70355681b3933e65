package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lovegallery/api/internal/platform/httpx"
)

const defaultCleanupBatch = 200

// IdempotencyCleaner removes expired idempotency records.
type IdempotencyCleaner interface {
	CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

// MaintenanceHandlers serve scheduler-triggered housekeeping under /internal.
type MaintenanceHandlers struct {
	idempotency IdempotencyCleaner
	batch       int
	clock       func() time.Time
}

func NewMaintenanceHandlers(cleaner IdempotencyCleaner, batch int, clock func() time.Time) *MaintenanceHandlers {
	if batch <= 0 {
		batch = defaultCleanupBatch
	}
	if clock == nil {
		clock = time.Now
	}
	return &MaintenanceHandlers{idempotency: cleaner, batch: batch, clock: clock}
}

// Routes registers the maintenance endpoints.
func (h *MaintenanceHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/maintenance/idempotency:cleanup", h.cleanupIdempotency)
}

type cleanupRequest struct {
	Limit int `json:"limit"`
}

type cleanupResponse struct {
	Removed int    `json:"removed"`
	Limit   int    `json:"limit"`
	RanAt   string `json:"ranAt"`
}

func (h *MaintenanceHandlers) cleanupIdempotency(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.idempotency == nil {
		writeUnavailable(ctx, w, "idempotency")
		return
	}
	var req cleanupRequest
	if r.ContentLength > 0 {
		if !decodeJSONBody(w, r, &req) {
			return
		}
	}
	limit := h.batch
	if req.Limit > 0 && req.Limit < limit {
		limit = req.Limit
	}
	now := h.clock().UTC()
	removed, err := h.idempotency.CleanupExpired(ctx, now, limit)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("cleanup_failed", "idempotency cleanup failed", http.StatusServiceUnavailable))
		return
	}
	writeJSONResponse(w, http.StatusOK, cleanupResponse{
		Removed: removed,
		Limit:   limit,
		RanAt:   now.Format(time.RFC3339Nano),
	})
}
