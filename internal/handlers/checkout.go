package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pagecraft/blocks-api/internal/catalog"
	"github.com/pagecraft/blocks-api/internal/payments"
	"github.com/pagecraft/blocks-api/internal/platform/httpx"
)

const maxCheckoutRequestBody = 8 * 1024

// CheckoutHandlers exposes embedded checkout endpoints for the payment widget.
type CheckoutHandlers struct {
	provider  payments.Provider
	store     *catalog.Store
	returnURL string
}

// NewCheckoutHandlers constructs checkout handlers that price sessions from the offer catalog.
func NewCheckoutHandlers(provider payments.Provider, store *catalog.Store, returnURL string) *CheckoutHandlers {
	return &CheckoutHandlers{
		provider:  provider,
		store:     store,
		returnURL: strings.TrimSpace(returnURL),
	}
}

// Routes registers checkout endpoints under the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/checkout/session", h.createSession)
	r.Get("/checkout/config", h.config)
}

type checkoutSessionRequest struct {
	OfferToken string `json:"offerToken"`
	Quantity   int64  `json:"quantity"`
	ReturnURL  string `json:"returnUrl"`
	Locale     string `json:"locale"`
}

type checkoutSessionResponse struct {
	SessionID    string `json:"sessionId"`
	ClientSecret string `json:"clientSecret"`
	ExpiresAt    string `json:"expiresAt,omitempty"`
}

func (h *CheckoutHandlers) createSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.provider == nil || h.store == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxCheckoutRequestBody)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return
	}

	var req checkoutSessionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	token := strings.TrimSpace(req.OfferToken)
	if token == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "offerToken is required", http.StatusBadRequest))
		return
	}

	if !h.store.IsLoaded() {
		if _, err := h.store.EnsureFetch(ctx); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
			return
		}
	}

	offer, ok := h.store.FindByToken(token)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("offer_not_found", "offer not found; refresh the catalog and retry", http.StatusNotFound))
		return
	}
	if offer.PriceCents == nil || *offer.PriceCents <= 0 {
		httpx.WriteError(ctx, w, httpx.NewError("offer_not_purchasable", "offer has no price configured", http.StatusConflict))
		return
	}

	returnURL := strings.TrimSpace(req.ReturnURL)
	if returnURL == "" {
		returnURL = h.returnURL
	}
	if returnURL == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "returnUrl is required", http.StatusBadRequest))
		return
	}

	currency := offer.Currency
	if currency == "" {
		currency = "USD"
	}

	session, err := h.provider.CreateSession(ctx, payments.SessionRequest{
		OfferToken:     token,
		Name:           offer.Label,
		Description:    offer.Description,
		AmountCents:    *offer.PriceCents,
		Currency:       currency,
		Quantity:       req.Quantity,
		ReturnURL:      returnURL,
		Locale:         strings.TrimSpace(req.Locale),
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	})
	if err != nil {
		h.writeCheckoutError(ctx, w, err)
		return
	}

	payload := checkoutSessionResponse{
		SessionID:    session.ID,
		ClientSecret: session.ClientSecret,
	}
	if !session.ExpiresAt.IsZero() {
		payload.ExpiresAt = session.ExpiresAt.UTC().Format(time.RFC3339Nano)
	}

	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *CheckoutHandlers) config(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.provider == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}

	key := h.provider.PublishableKey()
	if key == "" {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "publishable key not configured", http.StatusServiceUnavailable))
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]string{
		"publishableKey": key,
	})
}

func (h *CheckoutHandlers) writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, payments.ErrInvalidRequest):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, payments.ErrSessionFailed):
		httpx.WriteError(ctx, w, httpx.NewError("payment_failed", "payment session could not be created", http.StatusBadGateway))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("checkout_error", "failed to process checkout request", http.StatusInternalServerError))
	}
}
