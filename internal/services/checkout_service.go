package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	domain "github.com/lovegallery/api/internal/domain"
	"github.com/lovegallery/api/internal/payments"
)

const defaultCheckoutCurrency = "inr"

var (
	ErrCheckoutInvalidInput  = errors.New("checkout: invalid input")
	ErrCheckoutUnavailable   = errors.New("checkout: unavailable")
	ErrCheckoutPaymentFailed = errors.New("checkout: payment failed")
)

type checkoutSessionCreator interface {
	CreateCheckoutSession(ctx context.Context, req payments.CheckoutSessionRequest) (payments.CheckoutSession, error)
}

// CheckoutServiceDeps wires the plan checkout.
type CheckoutServiceDeps struct {
	Payments   checkoutSessionCreator
	Currency   string
	SuccessURL string
	CancelURL  string
	Clock      func() time.Time
	Logger     EventLogger
}

type checkoutService struct {
	payments   checkoutSessionCreator
	currency   string
	successURL string
	cancelURL  string
	now        func() time.Time
	logger     EventLogger
}

var _ CheckoutService = (*checkoutService)(nil)

func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Payments == nil {
		return nil, errors.New("checkout service: payment provider is required")
	}
	currency := strings.ToLower(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = defaultCheckoutCurrency
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &checkoutService{
		payments:   deps.Payments,
		currency:   currency,
		successURL: strings.TrimSpace(deps.SuccessURL),
		cancelURL:  strings.TrimSpace(deps.CancelURL),
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// CreateCheckoutSession sells a paid plan. The returned PaymentRef is what the
// client passes back on submission.
func (s *checkoutService) CreateCheckoutSession(ctx context.Context, cmd CreateCheckoutCommand) (CheckoutSession, error) {
	if !cmd.Plan.Valid() || !cmd.Plan.Paid() {
		return CheckoutSession{}, fmt.Errorf("%w: plan %s cannot be purchased", ErrCheckoutInvalidInput, cmd.Plan)
	}
	successURL := firstNonEmpty(cmd.SuccessURL, s.successURL)
	cancelURL := firstNonEmpty(cmd.CancelURL, s.cancelURL)
	if !absoluteHTTPURL(successURL) || !absoluteHTTPURL(cancelURL) {
		return CheckoutSession{}, fmt.Errorf("%w: success and cancel urls must be absolute", ErrCheckoutInvalidInput)
	}

	draftID := strings.TrimSpace(cmd.DraftID)
	idempotencyKey := strings.TrimSpace(cmd.IdempotencyKey)
	if idempotencyKey == "" && draftID != "" {
		idempotencyKey = checkoutIdempotencyKey(draftID, cmd.Plan, s.now())
	}

	metadata := map[string]string{payments.MetadataPlan: cmd.Plan.String()}
	if draftID != "" {
		metadata[payments.MetadataDraftID] = draftID
	}
	amount := cmd.Plan.PricePaise()
	session, err := s.payments.CreateCheckoutSession(ctx, payments.CheckoutSessionRequest{
		ProductName:    "Love Gallery: " + cmd.Plan.Label(),
		Description:    fmt.Sprintf("Up to %d photos", domain.MaxPhotosFor(cmd.Plan)),
		Amount:         amount,
		Currency:       s.currency,
		SuccessURL:     successURL,
		CancelURL:      cancelURL,
		CustomerEmail:  cmd.CustomerEmail,
		Metadata:       metadata,
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		if errors.Is(err, payments.ErrNotConfigured) {
			return CheckoutSession{}, fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
		}
		s.logger(ctx, "checkout.session_failed", map[string]any{"plan": cmd.Plan.String(), "draftId": draftID, "error": err})
		return CheckoutSession{}, fmt.Errorf("%w: %v", ErrCheckoutPaymentFailed, err)
	}

	ref := session.IntentID
	if ref == "" {
		ref = session.ID
	}
	s.logger(ctx, "checkout.session_created", map[string]any{
		"plan":      cmd.Plan.String(),
		"draftId":   draftID,
		"sessionId": session.ID,
	})
	return CheckoutSession{
		SessionID:   session.ID,
		RedirectURL: session.RedirectURL,
		PaymentRef:  ref,
		Plan:        cmd.Plan,
		Amount:      amount,
		Currency:    strings.ToUpper(s.currency),
		ExpiresAt:   session.ExpiresAt,
	}, nil
}

// checkoutIdempotencyKey lets a retried checkout for the same draft and plan
// on the same day reuse the provider session.
func checkoutIdempotencyKey(draftID string, plan domain.Plan, now time.Time) string {
	sum := sha256.Sum256([]byte(draftID + "|" + plan.String() + "|" + now.Format("2006-01-02")))
	return "lg-checkout-" + hex.EncodeToString(sum[:12])
}

func absoluteHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "https" || u.Scheme == "http") && u.Host != ""
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
