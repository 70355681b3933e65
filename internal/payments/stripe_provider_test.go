package payments

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v78"
)

type fakeSessions struct {
	created *stripe.CheckoutSessionParams
	session *stripe.CheckoutSession
	err     error
}

func (f *fakeSessions) New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	f.created = params
	return f.session, f.err
}

func (f *fakeSessions) Get(id string, _ *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.session, nil
}

type fakeIntents struct {
	intents map[string]*stripe.PaymentIntent
}

func (f *fakeIntents) Get(id string, _ *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	intent, ok := f.intents[id]
	if !ok {
		return nil, &stripe.Error{HTTPStatusCode: http.StatusNotFound, Code: stripe.ErrorCodeResourceMissing}
	}
	return intent, nil
}

func newTestProvider(t *testing.T, sessions *fakeSessions, intents *fakeIntents) *StripeProvider {
	t.Helper()
	provider, err := NewStripeProvider(StripeProviderConfig{
		Clock:   func() time.Time { return time.Date(2026, 2, 14, 10, 0, 0, 0, time.UTC) },
		clients: &stripeClients{sessions: sessions, intents: intents},
	})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	return provider
}

func TestNewStripeProviderRequiresKey(t *testing.T) {
	if _, err := NewStripeProvider(StripeProviderConfig{APIKey: "  "}); err == nil {
		t.Fatal("expected missing api key error")
	}
}

func TestCreateCheckoutSession(t *testing.T) {
	sessions := &fakeSessions{session: &stripe.CheckoutSession{
		ID:        "cs_test_1",
		URL:       "https://checkout.stripe.com/c/pay/cs_test_1",
		ExpiresAt: time.Date(2026, 2, 15, 10, 0, 0, 0, time.UTC).Unix(),
	}}
	provider := newTestProvider(t, sessions, &fakeIntents{})

	session, err := provider.CreateCheckoutSession(context.Background(), CheckoutSessionRequest{
		ProductName: "True Love",
		Amount:      19900,
		Currency:    "INR",
		SuccessURL:  "https://lovegallery.app/create?paid=1",
		CancelURL:   "https://lovegallery.app/create",
		Metadata:    map[string]string{MetadataPlan: "true-love", " draftId ": "d1"},
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if session.ID != "cs_test_1" || session.RedirectURL == "" || session.ExpiresAt.Day() != 15 {
		t.Fatalf("unexpected session %+v", session)
	}

	params := sessions.created
	if got := *params.LineItems[0].PriceData.Currency; got != "inr" {
		t.Fatalf("expected lowercase currency, got %s", got)
	}
	if got := *params.LineItems[0].PriceData.UnitAmount; got != 19900 {
		t.Fatalf("unexpected amount %d", got)
	}
	if params.PaymentIntentData.Metadata[MetadataDraftID] != "d1" || params.Metadata[MetadataPlan] != "true-love" {
		t.Fatalf("metadata not propagated: %+v", params.PaymentIntentData.Metadata)
	}
}

func TestCheckoutMetadata(t *testing.T) {
	long := strings.Repeat("a", stripeMetadataValueLimit+20)
	got := checkoutMetadata(map[string]string{
		" plan ":                      " true-love ",
		"draftId":                     "",
		"  ":                          "orphan",
		strings.Repeat("k", 41):       "too long key",
		MetadataDraftID + "_original": long,
	})
	if len(got) != 2 || got[MetadataPlan] != "true-love" {
		t.Fatalf("unexpected metadata %+v", got)
	}
	if n := len(got[MetadataDraftID+"_original"]); n != stripeMetadataValueLimit {
		t.Fatalf("expected value clipped to %d, got %d", stripeMetadataValueLimit, n)
	}
	if checkoutMetadata(map[string]string{"draftId": " "}) != nil {
		t.Fatal("expected nil metadata when nothing survives")
	}
}

func TestCreateCheckoutSessionRejectsFreeAmount(t *testing.T) {
	provider := newTestProvider(t, &fakeSessions{}, &fakeIntents{})
	if _, err := provider.CreateCheckoutSession(context.Background(), CheckoutSessionRequest{Amount: 0}); err == nil {
		t.Fatal("expected error for zero amount")
	}
}

func TestLookupPaymentIntent(t *testing.T) {
	intents := &fakeIntents{intents: map[string]*stripe.PaymentIntent{
		"pi_paid": {
			ID: "pi_paid", Status: stripe.PaymentIntentStatusSucceeded, Amount: 19900, Currency: "inr",
			Metadata: map[string]string{MetadataPlan: "true-love"},
		},
		"pi_refunded": {
			ID: "pi_refunded", Status: stripe.PaymentIntentStatusSucceeded, Amount: 19900,
			LatestCharge: &stripe.Charge{Amount: 19900, AmountRefunded: 19900},
		},
	}}
	provider := newTestProvider(t, &fakeSessions{}, intents)

	details, err := provider.LookupPayment(context.Background(), "pi_paid")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if details.Status != StatusSucceeded || details.Currency != "INR" || details.Metadata[MetadataPlan] != "true-love" {
		t.Fatalf("unexpected details %+v", details)
	}

	details, err = provider.LookupPayment(context.Background(), "pi_refunded")
	if err != nil || details.Status != StatusRefunded {
		t.Fatalf("expected refunded, got %+v (%v)", details, err)
	}

	if _, err := provider.LookupPayment(context.Background(), "pi_missing"); !errors.Is(err, ErrPaymentNotFound) {
		t.Fatalf("expected ErrPaymentNotFound, got %v", err)
	}
}

func TestLookupCheckoutSession(t *testing.T) {
	sessions := &fakeSessions{session: &stripe.CheckoutSession{
		ID:            "cs_paid",
		AmountTotal:   49900,
		Currency:      "inr",
		PaymentStatus: stripe.CheckoutSessionPaymentStatusPaid,
		Metadata:      map[string]string{MetadataPlan: "forever-love"},
		PaymentIntent: &stripe.PaymentIntent{ID: "pi_1", Status: stripe.PaymentIntentStatusSucceeded},
	}}
	provider := newTestProvider(t, sessions, &fakeIntents{})

	details, err := provider.LookupPayment(context.Background(), "cs_paid")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if details.Status != StatusSucceeded || details.IntentID != "pi_1" || details.Metadata[MetadataPlan] != "forever-love" {
		t.Fatalf("unexpected details %+v", details)
	}
}

func TestDisabledProvider(t *testing.T) {
	var p Provider = Disabled{}
	if _, err := p.LookupPayment(context.Background(), "pi_1"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
