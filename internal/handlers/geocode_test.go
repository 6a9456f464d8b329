package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pagecraft/blocks-api/internal/geo"
)

type stubGeocoder struct {
	forwardFunc func(ctx context.Context, query string) (geo.Place, error)
	reverseFunc func(ctx context.Context, lat, lon float64) (geo.Place, error)
}

func (s *stubGeocoder) Forward(ctx context.Context, query string) (geo.Place, error) {
	if s.forwardFunc != nil {
		return s.forwardFunc(ctx, query)
	}
	return geo.Place{}, geo.ErrNoResult
}

func (s *stubGeocoder) Reverse(ctx context.Context, lat, lon float64) (geo.Place, error) {
	if s.reverseFunc != nil {
		return s.reverseFunc(ctx, lat, lon)
	}
	return geo.Place{}, geo.ErrNoResult
}

func testServiceArea(t *testing.T) *geo.ServiceArea {
	t.Helper()
	area, err := geo.NewServiceArea(geo.ServiceAreaConfig{
		CenterLat:   40.7128,
		CenterLon:   -74.0060,
		RadiusKm:    25,
		ServiceDays: []string{"mon"},
		Clock: func() time.Time {
			// Monday 2025-04-07.
			return time.Date(2025, 4, 7, 9, 0, 0, 0, time.UTC)
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return area
}

func newGeoRouter(h *GeoHandlers) chi.Router {
	r := chi.NewRouter()
	h.Routes(r)
	return r
}

func TestGeoValidateByAddress(t *testing.T) {
	geocoder := &stubGeocoder{
		forwardFunc: func(_ context.Context, query string) (geo.Place, error) {
			if query != "1 Main St, New York" {
				t.Fatalf("unexpected query %q", query)
			}
			return geo.Place{Latitude: 40.73, Longitude: -74.0, DisplayName: "1 Main St"}, nil
		},
	}
	router := newGeoRouter(NewGeoHandlers(geocoder, testServiceArea(t)))

	body := `{"address":"1 Main St, New York"}`
	req := httptest.NewRequest(http.MethodPost, "/geo/validate", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var payload struct {
		Inside         bool   `json:"insideServiceArea"`
		NextServiceDay string `json:"nextServiceDay"`
		Place          *struct {
			DisplayName string `json:"displayName"`
		} `json:"place"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if !payload.Inside {
		t.Fatalf("expected address inside service area")
	}
	if payload.NextServiceDay != "Monday" {
		t.Fatalf("unexpected next service day %q", payload.NextServiceDay)
	}
	if payload.Place == nil || payload.Place.DisplayName != "1 Main St" {
		t.Fatalf("expected resolved place in response")
	}
}

func TestGeoValidateByCoordinatesOutside(t *testing.T) {
	router := newGeoRouter(NewGeoHandlers(&stubGeocoder{}, testServiceArea(t)))

	// Boston coordinates, well outside a 25km radius around New York.
	body := `{"latitude":42.3601,"longitude":-71.0589}`
	req := httptest.NewRequest(http.MethodPost, "/geo/validate", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var payload struct {
		Inside bool `json:"insideServiceArea"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if payload.Inside {
		t.Fatalf("expected point outside service area")
	}
}

func TestGeoValidateUnresolvableAddress(t *testing.T) {
	router := newGeoRouter(NewGeoHandlers(&stubGeocoder{}, testServiceArea(t)))

	req := httptest.NewRequest(http.MethodPost, "/geo/validate", strings.NewReader(`{"address":"nowhere"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
}

func TestGeoValidateRequiresInput(t *testing.T) {
	router := newGeoRouter(NewGeoHandlers(&stubGeocoder{}, testServiceArea(t)))

	req := httptest.NewRequest(http.MethodPost, "/geo/validate", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
