package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	domain "github.com/lovegallery/api/internal/domain"
	"github.com/lovegallery/api/internal/payments"
)

type stubCheckoutCreator struct {
	req     payments.CheckoutSessionRequest
	calls   int
	session payments.CheckoutSession
	err     error
}

func (s *stubCheckoutCreator) CreateCheckoutSession(_ context.Context, req payments.CheckoutSessionRequest) (payments.CheckoutSession, error) {
	s.calls++
	s.req = req
	return s.session, s.err
}

func newTestCheckoutService(t *testing.T, creator *stubCheckoutCreator) CheckoutService {
	t.Helper()
	now := time.Date(2025, 2, 14, 10, 0, 0, 0, time.UTC)
	svc, err := NewCheckoutService(CheckoutServiceDeps{
		Payments:   creator,
		SuccessURL: "https://lovegallery.example/create?paid=1",
		CancelURL:  "https://lovegallery.example/create",
		Clock:      func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("NewCheckoutService: %v", err)
	}
	return svc
}

func TestCheckoutServiceCreatesSessionForPaidPlan(t *testing.T) {
	expires := time.Date(2025, 2, 14, 11, 0, 0, 0, time.UTC)
	creator := &stubCheckoutCreator{session: payments.CheckoutSession{
		ID:          "cs_test_1",
		RedirectURL: "https://checkout.stripe.com/c/pay/cs_test_1",
		ExpiresAt:   expires,
	}}
	svc := newTestCheckoutService(t, creator)

	session, err := svc.CreateCheckoutSession(context.Background(), CreateCheckoutCommand{
		Plan:    domain.PlanTrueLove,
		DraftID: "draft-1",
	})
	if err != nil {
		t.Fatalf("CreateCheckoutSession: %v", err)
	}

	if creator.req.Amount != 24900 || creator.req.Currency != "inr" {
		t.Fatalf("unexpected amount %d %s", creator.req.Amount, creator.req.Currency)
	}
	if creator.req.Metadata[payments.MetadataPlan] != "true-love" || creator.req.Metadata[payments.MetadataDraftID] != "draft-1" {
		t.Fatalf("unexpected metadata %+v", creator.req.Metadata)
	}
	if !strings.HasPrefix(creator.req.IdempotencyKey, "lg-checkout-") {
		t.Fatalf("expected derived idempotency key, got %q", creator.req.IdempotencyKey)
	}
	if creator.req.SuccessURL != "https://lovegallery.example/create?paid=1" {
		t.Fatalf("expected default success url, got %q", creator.req.SuccessURL)
	}
	if session.PaymentRef != "cs_test_1" || session.Currency != "INR" || session.Amount != 24900 {
		t.Fatalf("unexpected session %+v", session)
	}
	if !session.ExpiresAt.Equal(expires) {
		t.Fatalf("unexpected expiry %s", session.ExpiresAt)
	}
}

func TestCheckoutServicePrefersIntentAsPaymentRef(t *testing.T) {
	creator := &stubCheckoutCreator{session: payments.CheckoutSession{ID: "cs_test_2", IntentID: "pi_test_2"}}
	svc := newTestCheckoutService(t, creator)

	session, err := svc.CreateCheckoutSession(context.Background(), CreateCheckoutCommand{
		Plan:           domain.PlanForeverLove,
		IdempotencyKey: "client-key",
	})
	if err != nil {
		t.Fatalf("CreateCheckoutSession: %v", err)
	}
	if session.PaymentRef != "pi_test_2" {
		t.Fatalf("expected intent ref, got %q", session.PaymentRef)
	}
	if creator.req.IdempotencyKey != "client-key" {
		t.Fatalf("expected caller idempotency key, got %q", creator.req.IdempotencyKey)
	}
	if _, ok := creator.req.Metadata[payments.MetadataDraftID]; ok {
		t.Fatal("draft id metadata should be omitted without a draft")
	}
}

func TestCheckoutServiceRejectsFreePlan(t *testing.T) {
	creator := &stubCheckoutCreator{}
	svc := newTestCheckoutService(t, creator)

	_, err := svc.CreateCheckoutSession(context.Background(), CreateCheckoutCommand{Plan: domain.PlanFirstLove})
	if !errors.Is(err, ErrCheckoutInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if creator.calls != 0 {
		t.Fatal("provider should not be called")
	}
}

func TestCheckoutServiceRejectsRelativeRedirects(t *testing.T) {
	svc := newTestCheckoutService(t, &stubCheckoutCreator{})
	_, err := svc.CreateCheckoutSession(context.Background(), CreateCheckoutCommand{
		Plan:       domain.PlanTrueLove,
		SuccessURL: "/create",
	})
	if !errors.Is(err, ErrCheckoutInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestCheckoutServiceMapsProviderErrors(t *testing.T) {
	disabled := &stubCheckoutCreator{err: payments.ErrNotConfigured}
	if _, err := newTestCheckoutService(t, disabled).CreateCheckoutSession(context.Background(), CreateCheckoutCommand{Plan: domain.PlanTrueLove}); !errors.Is(err, ErrCheckoutUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}

	failing := &stubCheckoutCreator{err: errors.New("card network down")}
	if _, err := newTestCheckoutService(t, failing).CreateCheckoutSession(context.Background(), CreateCheckoutCommand{Plan: domain.PlanTrueLove}); !errors.Is(err, ErrCheckoutPaymentFailed) {
		t.Fatalf("expected payment failed, got %v", err)
	}
}
