package geo

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientForward(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			t.Fatalf("unexpected path %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("q"); got != "1 Main St" {
			t.Fatalf("unexpected query %q", got)
		}
		if got := r.Header.Get("User-Agent"); got != "test-agent" {
			t.Fatalf("unexpected user agent %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"lat":"40.7128","lon":"-74.0060","display_name":"1 Main St, New York","address":{"house_number":"1","road":"Main St","city":"New York","state":"NY","postcode":"10001","country":"USA"}}]`))
	}))
	defer server.Close()

	client, err := NewClient(ClientConfig{BaseURL: server.URL, UserAgent: "test-agent"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	place, err := client.Forward(context.Background(), "1 Main St")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if place.Latitude != 40.7128 || place.Longitude != -74.0060 {
		t.Fatalf("unexpected coordinates %f,%f", place.Latitude, place.Longitude)
	}
	if place.Address.City != "New York" || place.Address.Road != "Main St" {
		t.Fatalf("unexpected address %#v", place.Address)
	}
}

func TestClientForwardNoResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client, err := NewClient(ClientConfig{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := client.Forward(context.Background(), "nowhere"); !errors.Is(err, ErrNoResult) {
		t.Fatalf("expected no result, got %v", err)
	}
}

func TestClientReverseFallsBackToTown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/reverse" {
			t.Fatalf("unexpected path %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("lat"); got != "51.5" {
			t.Fatalf("unexpected lat %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"lat":"51.5","lon":"-0.1","display_name":"Somewhere, UK","address":{"town":"Watford","country":"UK"}}`))
	}))
	defer server.Close()

	client, err := NewClient(ClientConfig{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	place, err := client.Reverse(context.Background(), 51.5, -0.1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if place.Address.City != "Watford" {
		t.Fatalf("expected town fallback, got %q", place.Address.City)
	}
}

func TestClientSurfacesHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client, err := NewClient(ClientConfig{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := client.Forward(context.Background(), "somewhere"); err == nil {
		t.Fatalf("expected error for 429 response")
	}
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	if _, err := NewClient(ClientConfig{}); err == nil {
		t.Fatalf("expected error for missing base url")
	}
}
