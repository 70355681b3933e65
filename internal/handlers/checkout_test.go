package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/lovegallery/api/internal/domain"
	"github.com/lovegallery/api/internal/platform/auth"
	"github.com/lovegallery/api/internal/services"
)

type stubCheckoutService struct {
	createFunc func(ctx context.Context, cmd services.CreateCheckoutCommand) (services.CheckoutSession, error)
}

func (s *stubCheckoutService) CreateCheckoutSession(ctx context.Context, cmd services.CreateCheckoutCommand) (services.CheckoutSession, error) {
	if s.createFunc != nil {
		return s.createFunc(ctx, cmd)
	}
	return services.CheckoutSession{}, errNotStubbed
}

func TestCheckoutHandlersCreateSessionSuccess(t *testing.T) {
	router := chi.NewRouter()
	var captured services.CreateCheckoutCommand
	expires := time.Date(2025, 2, 14, 10, 30, 0, 0, time.UTC)
	service := &stubCheckoutService{
		createFunc: func(_ context.Context, cmd services.CreateCheckoutCommand) (services.CheckoutSession, error) {
			captured = cmd
			return services.CheckoutSession{
				SessionID:   "cs_test_123",
				RedirectURL: "https://checkout.stripe.test/c/cs_test_123",
				PaymentRef:  "cs_test_123",
				Plan:        cmd.Plan,
				Amount:      24900,
				Currency:    "inr",
				ExpiresAt:   expires,
			}, nil
		},
	}
	handler := NewCheckoutHandlers(nil, service)
	handler.Routes(router)

	body := []byte(`{"plan":"true-love","draftId":" d1 ","successUrl":"https://lovegallery.test/ok","cancelUrl":"https://lovegallery.test/cancel"}`)
	req := httptest.NewRequest(http.MethodPost, "/checkout", bytes.NewReader(body))
	req.Header.Set("Idempotency-Key", "idem-1")
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1", Email: "asha@example.com"}))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.Plan != domain.PlanTrueLove || captured.DraftID != "d1" {
		t.Fatalf("unexpected command %+v", captured)
	}
	if captured.CustomerEmail != "asha@example.com" {
		t.Fatalf("expected identity email fallback, got %q", captured.CustomerEmail)
	}
	if captured.IdempotencyKey != "idem-1" || captured.SuccessURL != "https://lovegallery.test/ok" {
		t.Fatalf("unexpected command %+v", captured)
	}

	var resp checkoutSessionResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.SessionID != "cs_test_123" || resp.URL == "" || resp.Amount != 24900 || resp.Plan != "true-love" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.ExpiresAt != "2025-02-14T10:30:00Z" {
		t.Fatalf("unexpected expiresAt %q", resp.ExpiresAt)
	}
}

func TestCheckoutHandlersCreateSessionValidation(t *testing.T) {
	router := chi.NewRouter()
	NewCheckoutHandlers(nil, &stubCheckoutService{}).Routes(router)

	for _, body := range []string{`{}`, `{"plan":"diamond"}`, `not-json`} {
		req := httptest.NewRequest(http.MethodPost, "/checkout", bytes.NewReader([]byte(body)))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("body %s: expected 400, got %d", body, rr.Code)
		}
	}
}

func TestCheckoutHandlersCreateSessionErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{name: "free plan", err: fmt.Errorf("%w: free plan needs no checkout", services.ErrCheckoutInvalidInput), status: http.StatusBadRequest},
		{name: "provider failure", err: fmt.Errorf("%w: card declined", services.ErrCheckoutPaymentFailed), status: http.StatusBadGateway},
		{name: "disabled", err: services.ErrCheckoutUnavailable, status: http.StatusServiceUnavailable},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			router := chi.NewRouter()
			NewCheckoutHandlers(nil, &stubCheckoutService{
				createFunc: func(context.Context, services.CreateCheckoutCommand) (services.CheckoutSession, error) {
					return services.CheckoutSession{}, tc.err
				},
			}).Routes(router)

			req := httptest.NewRequest(http.MethodPost, "/checkout", bytes.NewReader([]byte(`{"plan":"forever-love"}`)))
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rr.Code)
			}
		})
	}
}

func TestCheckoutHandlersUnavailable(t *testing.T) {
	router := chi.NewRouter()
	NewCheckoutHandlers(nil, nil).Routes(router)

	req := httptest.NewRequest(http.MethodPost, "/checkout", bytes.NewReader([]byte(`{"plan":"true-love"}`)))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}
