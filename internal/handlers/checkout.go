package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/lovegallery/api/internal/domain"
	"github.com/lovegallery/api/internal/platform/auth"
	"github.com/lovegallery/api/internal/platform/httpx"
	"github.com/lovegallery/api/internal/services"
)

const idempotencyHeader = "Idempotency-Key"

// CheckoutHandlers start a hosted payment for a paid plan. Sign-in is optional;
// when present the customer email is pre-filled.
type CheckoutHandlers struct {
	authn    *auth.Authenticator
	checkout services.CheckoutService
}

// NewCheckoutHandlers constructs checkout handlers.
func NewCheckoutHandlers(authn *auth.Authenticator, checkout services.CheckoutService) *CheckoutHandlers {
	return &CheckoutHandlers{
		authn:    authn,
		checkout: checkout,
	}
}

// Routes registers checkout endpoints under the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	group := r
	if h.authn != nil {
		group = group.With(h.authn.OptionalFirebaseAuth())
	}
	group.Post("/checkout", h.createSession)
}

type checkoutSessionRequest struct {
	Plan       string `json:"plan"`
	DraftID    string `json:"draftId"`
	Email      string `json:"email"`
	SuccessURL string `json:"successUrl"`
	CancelURL  string `json:"cancelUrl"`
}

type checkoutSessionResponse struct {
	SessionID  string `json:"sessionId"`
	URL        string `json:"url"`
	PaymentRef string `json:"paymentRef"`
	Plan       string `json:"plan"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
	ExpiresAt  string `json:"expiresAt,omitempty"`
}

func (h *CheckoutHandlers) createSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req checkoutSessionRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Plan) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "plan is required", http.StatusBadRequest))
		return
	}
	plan, err := domain.ParsePlan(req.Plan)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	email := strings.TrimSpace(req.Email)
	if identity, ok := auth.IdentityFromContext(ctx); ok && email == "" {
		email = identity.Email
	}

	session, err := h.checkout.CreateCheckoutSession(ctx, services.CreateCheckoutCommand{
		Plan:           plan,
		DraftID:        strings.TrimSpace(req.DraftID),
		CustomerEmail:  email,
		SuccessURL:     strings.TrimSpace(req.SuccessURL),
		CancelURL:      strings.TrimSpace(req.CancelURL),
		IdempotencyKey: strings.TrimSpace(r.Header.Get(idempotencyHeader)),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	payload := checkoutSessionResponse{
		SessionID:  session.SessionID,
		URL:        session.RedirectURL,
		PaymentRef: session.PaymentRef,
		Plan:       session.Plan.String(),
		Amount:     session.Amount,
		Currency:   session.Currency,
	}
	if !session.ExpiresAt.IsZero() {
		payload.ExpiresAt = session.ExpiresAt.UTC().Format(time.RFC3339Nano)
	}
	writeJSONResponse(w, http.StatusOK, payload)
}
