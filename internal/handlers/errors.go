package handlers

import (
	"context"
	"errors"
	"net/http"

	domain "github.com/lovegallery/api/internal/domain"
	"github.com/lovegallery/api/internal/platform/httpx"
	"github.com/lovegallery/api/internal/services"
	"github.com/lovegallery/api/internal/wizard"
)

// writeServiceError maps service sentinels onto the JSON error envelope.
// Entitlement and step failures carry enough detail for the wizard to
// highlight the blocking field or offer the right upgrade.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	httpx.WriteError(ctx, w, serviceError(err))
}

func serviceError(err error) httpx.Error {
	var (
		upgrade    *domain.UpgradeRequiredError
		validation *wizard.ValidationError
	)
	switch {
	case errors.Is(err, errBodyTooLarge):
		return httpx.NewError("payload_too_large", "request body too large", http.StatusRequestEntityTooLarge)
	case errors.As(err, &upgrade):
		details := map[string]any{
			"feature":      string(upgrade.Feature),
			"currentPlan":  upgrade.Current.String(),
			"requiredPlan": upgrade.Required.String(),
		}
		if upgrade.Theme != "" {
			details["theme"] = upgrade.Theme
		}
		return httpx.NewError("upgrade_required", upgrade.Error(), http.StatusPaymentRequired).WithDetails(details)
	case errors.As(err, &validation):
		return httpx.NewError("step_invalid", validation.Error(), http.StatusUnprocessableEntity).WithDetails(map[string]any{
			"step":   string(validation.Step),
			"fields": validation.Fields,
		})
	case errors.Is(err, wizard.ErrPlanDowngradeExceedsPhotos):
		return httpx.NewError("plan_downgrade_conflict", err.Error(), http.StatusConflict)
	case errors.Is(err, wizard.ErrUnknownVariant),
		errors.Is(err, wizard.ErrUnknownMusic),
		errors.Is(err, wizard.ErrTooManyStories),
		errors.Is(err, wizard.ErrInvalidStep),
		errors.Is(err, domain.ErrUnknownTheme),
		errors.Is(err, domain.ErrUnknownPlan):
		return httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest)
	case errors.Is(err, wizard.ErrPhotoNotFound):
		return httpx.NewError("photo_not_found", "photo not found", http.StatusNotFound)
	case errors.Is(err, services.ErrDraftNotFound):
		return httpx.NewError("draft_not_found", "draft not found or expired", http.StatusNotFound)
	case errors.Is(err, services.ErrDraftUploadTooLarge):
		return httpx.NewError("payload_too_large", err.Error(), http.StatusRequestEntityTooLarge)
	case errors.Is(err, services.ErrDraftUnsupportedMedia):
		return httpx.NewError("unsupported_media_type", err.Error(), http.StatusUnsupportedMediaType)
	case errors.Is(err, services.ErrDraftInvalidInput),
		errors.Is(err, services.ErrSubmissionInvalid),
		errors.Is(err, services.ErrGalleryInvalidInput),
		errors.Is(err, services.ErrValentineInvalidInput),
		errors.Is(err, services.ErrCheckoutInvalidInput):
		return httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest)
	case errors.Is(err, services.ErrSubmissionUpgradeRequired):
		return httpx.NewError("upgrade_required", err.Error(), http.StatusPaymentRequired)
	case errors.Is(err, services.ErrSubmissionPaymentRequired):
		return httpx.NewError("payment_required", err.Error(), http.StatusPaymentRequired)
	case errors.Is(err, services.ErrGalleryNotFound):
		return httpx.NewError("gallery_not_found", "gallery not found", http.StatusNotFound).WithDetails(map[string]any{"state": "not_found"})
	case errors.Is(err, services.ErrCheckoutPaymentFailed):
		return httpx.NewError("payment_failed", "payment provider rejected the request", http.StatusBadGateway)
	case errors.Is(err, services.ErrSubmissionPersistFailed):
		return httpx.NewError("persist_failed", "gallery could not be saved", http.StatusInternalServerError)
	case errors.Is(err, services.ErrDraftUnavailable),
		errors.Is(err, services.ErrSubmissionUnavailable),
		errors.Is(err, services.ErrGalleryUnavailable),
		errors.Is(err, services.ErrValentineUnavailable),
		errors.Is(err, services.ErrCheckoutUnavailable):
		return httpx.NewError("service_unavailable", "service temporarily unavailable", http.StatusServiceUnavailable)
	default:
		return httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError)
	}
}

func writeUnavailable(ctx context.Context, w http.ResponseWriter, name string) {
	httpx.WriteError(ctx, w, httpx.NewError(name+"_unavailable", name+" service unavailable", http.StatusServiceUnavailable))
}
