package payments

import (
	"context"
	"errors"
	"time"
)

// Status enumerates the normalised payment states shared across providers.
type Status string

const (
	// StatusPending indicates the payment awaits customer action.
	StatusPending Status = "pending"
	// StatusSucceeded indicates the payment was captured.
	StatusSucceeded Status = "succeeded"
	// StatusFailed indicates a terminal failure.
	StatusFailed Status = "failed"
)

var (
	// ErrInvalidRequest indicates the caller supplied an unusable request.
	ErrInvalidRequest = errors.New("payments: invalid request")
	// ErrSessionFailed indicates the PSP rejected the session creation.
	ErrSessionFailed = errors.New("payments: session creation failed")
)

// SessionRequest captures the payload required to create a checkout session
// for a single catalog offer.
type SessionRequest struct {
	OfferToken     string
	Name           string
	Description    string
	AmountCents    int64
	Currency       string
	Quantity       int64
	ReturnURL      string
	Locale         string
	Metadata       map[string]string
	IdempotencyKey string
}

// Session is the PSP session handed back to the embedding widget. The widget
// mounts the payment element with ClientSecret.
type Session struct {
	ID           string
	ClientSecret string
	IntentID     string
	ExpiresAt    time.Time
}

// Details normalises PSP-specific payment state for reconciliation.
type Details struct {
	IntentID string
	Status   Status
	Amount   int64
	Currency string
}

// Provider is the contract a PSP adapter implements.
type Provider interface {
	// PublishableKey returns the client-side key the widget embeds.
	PublishableKey() string
	CreateSession(ctx context.Context, req SessionRequest) (Session, error)
	LookupPayment(ctx context.Context, intentID string) (Details, error)
}
