package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

// StripeLogger defines the logging contract for Stripe operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripeSessionAPI interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type stripePaymentIntentAPI interface {
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type stripeClients struct {
	sessions stripeSessionAPI
	intents  stripePaymentIntentAPI
}

// StripeConfig configures the Stripe provider.
type StripeConfig struct {
	APIKey         string
	PublishableKey string
	Backends       *stripe.Backends
	Logger         StripeLogger
	Clock          func() time.Time
	clients        *stripeClients
}

// StripeProvider implements Provider using Stripe's embedded Checkout.
type StripeProvider struct {
	api            stripeClients
	publishableKey string
	clock          func() time.Time
	logger         StripeLogger
}

// NewStripeProvider constructs a Stripe Provider from the configuration.
func NewStripeProvider(cfg StripeConfig) (*StripeProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.clients == nil {
		return nil, errors.New("stripe: api key is required")
	}

	var clients stripeClients
	if cfg.clients != nil {
		clients = *cfg.clients
	} else {
		sc := client.New(apiKey, cfg.Backends)
		clients = stripeClients{
			sessions: sc.CheckoutSessions,
			intents:  sc.PaymentIntents,
		}
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
		api:            clients,
		publishableKey: strings.TrimSpace(cfg.PublishableKey),
		clock:          func() time.Time { return clock().UTC() },
		logger:         logger,
	}, nil
}

// PublishableKey returns the client-side key the widget embeds.
func (p *StripeProvider) PublishableKey() string {
	if p == nil {
		return ""
	}
	return p.publishableKey
}

// CreateSession creates an embedded-mode Checkout session for the offer.
func (p *StripeProvider) CreateSession(ctx context.Context, req SessionRequest) (Session, error) {
	if p == nil {
		return Session{}, errors.New("stripe: provider is nil")
	}
	if req.AmountCents <= 0 || strings.TrimSpace(req.Currency) == "" || strings.TrimSpace(req.Name) == "" {
		return Session{}, ErrInvalidRequest
	}

	quantity := req.Quantity
	if quantity <= 0 {
		quantity = 1
	}

	line := &stripe.CheckoutSessionLineItemParams{
		Quantity: stripe.Int64(quantity),
		PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
			Currency:   stripe.String(strings.ToLower(req.Currency)),
			UnitAmount: stripe.Int64(req.AmountCents),
			ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
				Name: stripe.String(req.Name),
			},
		},
	}
	if desc := strings.TrimSpace(req.Description); desc != "" {
		line.PriceData.ProductData.Description = stripe.String(desc)
	}
	if token := strings.TrimSpace(req.OfferToken); token != "" {
		line.PriceData.ProductData.Metadata = map[string]string{"offer_token": token}
	}

	params := &stripe.CheckoutSessionParams{
		Mode:      stripe.String(string(stripe.CheckoutSessionModePayment)),
		UIMode:    stripe.String(string(stripe.CheckoutSessionUIModeEmbedded)),
		ReturnURL: stripe.String(req.ReturnURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{line},
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if locale := strings.TrimSpace(req.Locale); locale != "" {
		params.Locale = stripe.String(strings.ReplaceAll(strings.ToLower(locale), "_", "-"))
	}
	if len(req.Metadata) > 0 {
		params.Metadata = make(map[string]string, len(req.Metadata))
		for k, v := range req.Metadata {
			params.Metadata[k] = v
		}
	}

	session, err := p.api.sessions.New(params)
	if err != nil {
		p.logger(ctx, "payments.stripe.session_failed", map[string]any{
			"offerToken": req.OfferToken,
			"error":      err.Error(),
		})
		return Session{}, fmt.Errorf("%w: %v", ErrSessionFailed, err)
	}

	intentID := ""
	if session.PaymentIntent != nil {
		intentID = session.PaymentIntent.ID
	}
	expiresAt := p.clock().Add(30 * time.Minute)
	if session.ExpiresAt != 0 {
		expiresAt = time.Unix(session.ExpiresAt, 0).UTC()
	}

	p.logger(ctx, "payments.stripe.session_created", map[string]any{
		"sessionId":  session.ID,
		"offerToken": req.OfferToken,
	})

	return Session{
		ID:           session.ID,
		ClientSecret: session.ClientSecret,
		IntentID:     intentID,
		ExpiresAt:    expiresAt,
	}, nil
}

// LookupPayment fetches the payment intent state for reconciliation.
func (p *StripeProvider) LookupPayment(ctx context.Context, intentID string) (Details, error) {
	if p == nil {
		return Details{}, errors.New("stripe: provider is nil")
	}
	intentID = strings.TrimSpace(intentID)
	if intentID == "" {
		return Details{}, ErrInvalidRequest
	}
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	intent, err := p.api.intents.Get(intentID, params)
	if err != nil {
		return Details{}, fmt.Errorf("stripe: lookup payment intent: %w", err)
	}
	return Details{
		IntentID: intent.ID,
		Status:   stripeStatus(intent.Status),
		Amount:   intent.Amount,
		Currency: strings.ToUpper(string(intent.Currency)),
	}, nil
}

func stripeStatus(status stripe.PaymentIntentStatus) Status {
	switch status {
	case stripe.PaymentIntentStatusSucceeded:
		return StatusSucceeded
	case stripe.PaymentIntentStatusCanceled:
		return StatusFailed
	default:
		return StatusPending
	}
}
