package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pagecraft/blocks-api/internal/geo"
	"github.com/pagecraft/blocks-api/internal/platform/httpx"
)

const maxGeoRequestBody = 4 * 1024

// Geocoder resolves free-form addresses and coordinates.
type Geocoder interface {
	Forward(ctx context.Context, query string) (geo.Place, error)
	Reverse(ctx context.Context, lat, lon float64) (geo.Place, error)
}

// GeoHandlers validates visitor addresses against the configured service area.
type GeoHandlers struct {
	geocoder Geocoder
	area     *geo.ServiceArea
}

// NewGeoHandlers constructs address validation handlers.
func NewGeoHandlers(geocoder Geocoder, area *geo.ServiceArea) *GeoHandlers {
	return &GeoHandlers{
		geocoder: geocoder,
		area:     area,
	}
}

// Routes registers geocoding endpoints under the provided router.
func (h *GeoHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/geo/validate", h.validate)
}

type geoValidateRequest struct {
	Address   string   `json:"address"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

type geoValidateResponse struct {
	geo.ValidationResult
	Place *geo.Place `json:"place,omitempty"`
}

func (h *GeoHandlers) validate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.area == nil {
		httpx.WriteError(ctx, w, httpx.NewError("geo_unavailable", "address validation unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxGeoRequestBody)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return
	}

	var req geoValidateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	var (
		lat, lon float64
		place    *geo.Place
	)
	switch {
	case req.Latitude != nil && req.Longitude != nil:
		lat, lon = *req.Latitude, *req.Longitude
		if h.geocoder != nil {
			if resolved, err := h.geocoder.Reverse(ctx, lat, lon); err == nil {
				place = &resolved
			}
		}
	case strings.TrimSpace(req.Address) != "":
		if h.geocoder == nil {
			httpx.WriteError(ctx, w, httpx.NewError("geo_unavailable", "address validation unavailable", http.StatusServiceUnavailable))
			return
		}
		resolved, err := h.geocoder.Forward(ctx, req.Address)
		if err != nil {
			if errors.Is(err, geo.ErrNoResult) {
				httpx.WriteError(ctx, w, httpx.NewError("address_not_found", "address could not be resolved", http.StatusUnprocessableEntity))
				return
			}
			httpx.WriteError(ctx, w, httpx.NewError("geo_unavailable", "address validation unavailable", http.StatusBadGateway))
			return
		}
		place = &resolved
		lat, lon = resolved.Latitude, resolved.Longitude
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "address or latitude/longitude required", http.StatusBadRequest))
		return
	}

	writeJSONResponse(w, http.StatusOK, geoValidateResponse{
		ValidationResult: h.area.Validate(lat, lon),
		Place:            place,
	})
}
