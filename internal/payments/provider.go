// Package payments integrates the payment provider used to sell paid plans.
package payments

import (
	"context"
	"errors"
	"time"
)

// Status is the provider-independent payment state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusRefunded  Status = "refunded"
)

// Metadata keys written on checkout sessions and their payment intents.
const (
	MetadataPlan    = "plan"
	MetadataDraftID = "draftId"
)

var (
	// ErrPaymentNotFound is returned when the provider has no record of a reference.
	ErrPaymentNotFound = errors.New("payments: payment not found")
	// ErrNotConfigured is returned by Disabled.
	ErrNotConfigured = errors.New("payments: provider not configured")
)

// CheckoutSessionRequest describes a single-item hosted checkout.
type CheckoutSessionRequest struct {
	ProductName    string
	Description    string
	Amount         int64
	Currency       string
	SuccessURL     string
	CancelURL      string
	CustomerEmail  string
	Metadata       map[string]string
	IdempotencyKey string
}

// CheckoutSession is what the client needs to redirect the buyer.
type CheckoutSession struct {
	ID          string
	RedirectURL string
	IntentID    string
	ExpiresAt   time.Time
}

// PaymentDetails normalises the provider's view of a payment.
type PaymentDetails struct {
	Reference string
	IntentID  string
	Status    Status
	Amount    int64
	Currency  string
	Metadata  map[string]string
}

// Provider is implemented by PSP adapters.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error)
	// LookupPayment accepts a payment intent id or a checkout session id.
	LookupPayment(ctx context.Context, reference string) (PaymentDetails, error)
}

// Disabled is used when no PSP key is configured.
type Disabled struct{}

func (Disabled) CreateCheckoutSession(context.Context, CheckoutSessionRequest) (CheckoutSession, error) {
	return CheckoutSession{}, ErrNotConfigured
}

func (Disabled) LookupPayment(context.Context, string) (PaymentDetails, error) {
	return PaymentDetails{}, ErrNotConfigured
}
