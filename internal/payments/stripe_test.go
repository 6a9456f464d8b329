package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v78"
)

type stubSessionAPI struct {
	newFunc func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

func (s *stubSessionAPI) New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	if s.newFunc != nil {
		return s.newFunc(params)
	}
	return nil, errors.New("not implemented")
}

type stubIntentAPI struct {
	getFunc func(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

func (s *stubIntentAPI) Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	if s.getFunc != nil {
		return s.getFunc(id, params)
	}
	return nil, errors.New("not implemented")
}

func newStubProvider(t *testing.T, sessions stripeSessionAPI, intents stripePaymentIntentAPI) *StripeProvider {
	t.Helper()
	now := time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)
	provider, err := NewStripeProvider(StripeConfig{
		PublishableKey: "pk_test_123",
		Clock:          func() time.Time { return now },
		clients:        &stripeClients{sessions: sessions, intents: intents},
	})
	if err != nil {
		t.Fatalf("unexpected error creating provider: %v", err)
	}
	return provider
}

func TestStripeProviderCreateSessionEmbeddedMode(t *testing.T) {
	var captured *stripe.CheckoutSessionParams
	sessions := &stubSessionAPI{
		newFunc: func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
			captured = params
			return &stripe.CheckoutSession{
				ID:           "cs_123",
				ClientSecret: "cs_secret_abc",
			}, nil
		},
	}
	provider := newStubProvider(t, sessions, &stubIntentAPI{})

	session, err := provider.CreateSession(context.Background(), SessionRequest{
		OfferToken:  "t1",
		Name:        "Plan A",
		AmountCents: 2999,
		Currency:    "USD",
		ReturnURL:   "https://example.com/return",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.ID != "cs_123" || session.ClientSecret != "cs_secret_abc" {
		t.Fatalf("unexpected session %#v", session)
	}
	if session.ExpiresAt.IsZero() {
		t.Fatalf("expected fallback expiry set")
	}

	if captured == nil {
		t.Fatalf("expected session params captured")
	}
	if got := stripe.StringValue(captured.UIMode); got != string(stripe.CheckoutSessionUIModeEmbedded) {
		t.Fatalf("expected embedded ui mode, got %q", got)
	}
	if len(captured.LineItems) != 1 {
		t.Fatalf("expected one line item, got %d", len(captured.LineItems))
	}
	item := captured.LineItems[0]
	if stripe.Int64Value(item.PriceData.UnitAmount) != 2999 {
		t.Fatalf("unexpected unit amount %d", stripe.Int64Value(item.PriceData.UnitAmount))
	}
	if stripe.StringValue(item.PriceData.Currency) != "usd" {
		t.Fatalf("expected lowercase currency, got %q", stripe.StringValue(item.PriceData.Currency))
	}
	if item.PriceData.ProductData.Metadata["offer_token"] != "t1" {
		t.Fatalf("expected offer token metadata, got %#v", item.PriceData.ProductData.Metadata)
	}
}

func TestStripeProviderCreateSessionInvalidRequest(t *testing.T) {
	provider := newStubProvider(t, &stubSessionAPI{}, &stubIntentAPI{})
	_, err := provider.CreateSession(context.Background(), SessionRequest{
		Name:     "Plan A",
		Currency: "USD",
	})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected invalid request, got %v", err)
	}
}

func TestStripeProviderCreateSessionTranslatesFailure(t *testing.T) {
	sessions := &stubSessionAPI{
		newFunc: func(*stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
			return nil, errors.New("psp timeout")
		},
	}
	provider := newStubProvider(t, sessions, &stubIntentAPI{})
	_, err := provider.CreateSession(context.Background(), SessionRequest{
		Name:        "Plan A",
		AmountCents: 2999,
		Currency:    "USD",
		ReturnURL:   "https://example.com/return",
	})
	if !errors.Is(err, ErrSessionFailed) {
		t.Fatalf("expected session failed, got %v", err)
	}
}

func TestStripeProviderLookupPayment(t *testing.T) {
	intents := &stubIntentAPI{
		getFunc: func(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
			if id != "pi_123" {
				t.Fatalf("unexpected intent id %q", id)
			}
			return &stripe.PaymentIntent{
				ID:       "pi_123",
				Status:   stripe.PaymentIntentStatusSucceeded,
				Amount:   2999,
				Currency: "usd",
			}, nil
		},
	}
	provider := newStubProvider(t, &stubSessionAPI{}, intents)

	details, err := provider.LookupPayment(context.Background(), "pi_123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if details.Status != StatusSucceeded {
		t.Fatalf("expected succeeded, got %s", details.Status)
	}
	if details.Currency != "USD" {
		t.Fatalf("expected uppercased currency, got %q", details.Currency)
	}
}

func TestStripeProviderPublishableKey(t *testing.T) {
	provider := newStubProvider(t, &stubSessionAPI{}, &stubIntentAPI{})
	if provider.PublishableKey() != "pk_test_123" {
		t.Fatalf("unexpected key %q", provider.PublishableKey())
	}
}
