package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"

	"github.com/lovegallery/api/internal/platform/textutil"
)

// Stripe rejects metadata keys over 40 and values over 500 characters.
const (
	stripeMetadataKeyLimit   = 40
	stripeMetadataValueLimit = 500
)

// StripeLogger matches the service logger signature.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripeSessionAPI interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type stripePaymentIntentAPI interface {
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type stripeClients struct {
	sessions stripeSessionAPI
	intents  stripePaymentIntentAPI
}

// StripeProviderConfig configures StripeProvider. APIKey comes from config or
// Secret Manager; there is no default.
type StripeProviderConfig struct {
	APIKey   string
	Backends *stripe.Backends
	Logger   StripeLogger
	Clock    func() time.Time
	clients  *stripeClients
}

// StripeProvider sells plans through Stripe Checkout.
type StripeProvider struct {
	api    stripeClients
	clock  func() time.Time
	logger StripeLogger
}

func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	var clients stripeClients
	if cfg.clients != nil {
		clients = *cfg.clients
	} else {
		apiKey := strings.TrimSpace(cfg.APIKey)
		if apiKey == "" {
			return nil, errors.New("stripe: api key is required")
		}
		sc := client.New(apiKey, cfg.Backends)
		clients = stripeClients{sessions: sc.CheckoutSessions, intents: sc.PaymentIntents}
	}
	if clients.sessions == nil || clients.intents == nil {
		return nil, errors.New("stripe: incomplete client configuration")
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &StripeProvider{
		api:    clients,
		clock:  func() time.Time { return clock().UTC() },
		logger: logger,
	}, nil
}

func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error) {
	if req.Amount <= 0 {
		return CheckoutSession{}, errors.New("stripe: amount must be positive")
	}
	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	metadata := checkoutMetadata(req.Metadata)

	product := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
		Name: stripe.String(req.ProductName),
	}
	if desc := strings.TrimSpace(req.Description); desc != "" {
		product.Description = stripe.String(desc)
	}

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(currency),
				UnitAmount:  stripe.Int64(req.Amount),
				ProductData: product,
			},
		}},
		Metadata: metadata,
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: metadata,
		},
	}
	params.Context = ctx
	if email := strings.TrimSpace(req.CustomerEmail); email != "" {
		params.CustomerEmail = stripe.String(email)
	}
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}

	session, err := p.api.sessions.New(params)
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("stripe: create checkout session: %w", err)
	}

	out := CheckoutSession{
		ID:          session.ID,
		RedirectURL: session.URL,
		ExpiresAt:   p.clock().Add(24 * time.Hour),
	}
	if session.PaymentIntent != nil {
		out.IntentID = session.PaymentIntent.ID
	}
	if session.ExpiresAt != 0 {
		out.ExpiresAt = time.Unix(session.ExpiresAt, 0).UTC()
	}
	p.logger(ctx, "payments.stripe.session_created", map[string]any{
		"sessionId": session.ID,
		"plan":      metadata[MetadataPlan],
		"amount":    req.Amount,
		"currency":  currency,
	})
	return out, nil
}

func (p *StripeProvider) LookupPayment(ctx context.Context, reference string) (PaymentDetails, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return PaymentDetails{}, ErrPaymentNotFound
	}
	if strings.HasPrefix(reference, "cs_") {
		return p.lookupSession(ctx, reference)
	}

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	params.AddExpand("latest_charge")
	intent, err := p.api.intents.Get(reference, params)
	if err != nil {
		return PaymentDetails{}, mapStripeError("lookup payment intent", err)
	}
	details := intentDetails(intent)
	details.Reference = reference
	return details, nil
}

func (p *StripeProvider) lookupSession(ctx context.Context, id string) (PaymentDetails, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("payment_intent")
	session, err := p.api.sessions.Get(id, params)
	if err != nil {
		return PaymentDetails{}, mapStripeError("lookup checkout session", err)
	}

	details := PaymentDetails{
		Reference: id,
		Status:    StatusPending,
		Amount:    session.AmountTotal,
		Currency:  strings.ToUpper(string(session.Currency)),
		Metadata:  session.Metadata,
	}
	if session.PaymentIntent != nil && session.PaymentIntent.Status != "" {
		intent := intentDetails(session.PaymentIntent)
		details.IntentID = intent.IntentID
		details.Status = intent.Status
	}
	switch {
	case session.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid && details.Status == StatusPending:
		details.Status = StatusSucceeded
	case session.Status == stripe.CheckoutSessionStatusExpired:
		details.Status = StatusFailed
	}
	return details, nil
}

func intentDetails(intent *stripe.PaymentIntent) PaymentDetails {
	if intent == nil {
		return PaymentDetails{}
	}
	status := StatusPending
	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded:
		status = StatusSucceeded
	case stripe.PaymentIntentStatusCanceled:
		status = StatusFailed
	}
	if charge := intent.LatestCharge; charge != nil && charge.Amount > 0 && charge.AmountRefunded >= charge.Amount {
		status = StatusRefunded
	}
	return PaymentDetails{
		IntentID: intent.ID,
		Status:   status,
		Amount:   intent.Amount,
		Currency: strings.ToUpper(string(intent.Currency)),
		Metadata: intent.Metadata,
	}
}

func mapStripeError(op string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && (stripeErr.HTTPStatusCode == http.StatusNotFound || stripeErr.Code == stripe.ErrorCodeResourceMissing) {
		return fmt.Errorf("stripe: %s: %w", op, ErrPaymentNotFound)
	}
	return fmt.Errorf("stripe: %s: %w", op, err)
}

// checkoutMetadata trims entries, drops blank or oversized keys and empty
// values, and clips values to what Stripe stores.
func checkoutMetadata(values map[string]string) map[string]string {
	out := make(map[string]string, len(values))
	for key, value := range values {
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" || value == "" || len(key) > stripeMetadataKeyLimit {
			continue
		}
		out[key] = textutil.Truncate(value, stripeMetadataValueLimit)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
