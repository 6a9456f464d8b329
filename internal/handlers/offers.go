package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pagecraft/blocks-api/internal/catalog"
	"github.com/pagecraft/blocks-api/internal/platform/eventbus"
	"github.com/pagecraft/blocks-api/internal/platform/httpx"
	"github.com/pagecraft/blocks-api/internal/platform/requestctx"
)

const maxRefreshRequestBody = 256 * 1024

// OfferHandlers exposes the normalized offer catalog and its trait-option projection.
type OfferHandlers struct {
	store *catalog.Store
	bus   *eventbus.Bus
}

// NewOfferHandlers constructs offer handlers backed by the shared catalog store.
func NewOfferHandlers(store *catalog.Store, bus *eventbus.Bus) *OfferHandlers {
	return &OfferHandlers{
		store: store,
		bus:   bus,
	}
}

// Routes registers offer endpoints under the provided router.
func (h *OfferHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/offers", h.listOffers)
	r.Get("/offers/options", h.listOptions)
	r.Post("/offers/refresh", h.refresh)
}

func (h *OfferHandlers) listOffers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.store == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "offer catalog unavailable", http.StatusServiceUnavailable))
		return
	}

	offers := h.store.Offers()
	if !h.store.IsLoaded() {
		fetched, err := h.store.EnsureFetch(ctx)
		if err != nil {
			// EnsureFetch fails open; an error here means the context died.
			httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "offer catalog unavailable", http.StatusServiceUnavailable))
			return
		}
		offers = fetched
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"offers": offers,
		"loaded": h.store.IsLoaded(),
	})
}

func (h *OfferHandlers) listOptions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.store == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "offer catalog unavailable", http.StatusServiceUnavailable))
		return
	}

	if !h.store.IsLoaded() {
		if _, err := h.store.EnsureFetch(ctx); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "offer catalog unavailable", http.StatusServiceUnavailable))
			return
		}
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"options": h.store.TraitOptions(),
		"loaded":  h.store.IsLoaded(),
	})
}

// refresh accepts a replacement raw offer payload and publishes it on the
// event bus; the store picks it up through its subscription.
func (h *OfferHandlers) refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.bus == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "offer catalog unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxRefreshRequestBody)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return
	}

	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	h.bus.Publish(catalog.TopicOffersUpdated, payload)
	requestctx.Logger(ctx).Info("offers refresh published", zap.Int("bytes", len(body)))

	writeJSONResponse(w, http.StatusAccepted, map[string]any{
		"status": "accepted",
	})
}
