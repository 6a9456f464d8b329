package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultTimeout   = 8 * time.Second
	defaultUserAgent = "blocks-api/1.0"
	maxResponseBytes = 1 << 20
)

// ErrNoResult is returned when the geocoder finds nothing for the query.
var ErrNoResult = errors.New("geo: no result")

// Address holds the structured components returned by the geocoder.
type Address struct {
	HouseNumber string `json:"houseNumber,omitempty"`
	Road        string `json:"road,omitempty"`
	City        string `json:"city,omitempty"`
	State       string `json:"state,omitempty"`
	Postcode    string `json:"postcode,omitempty"`
	Country     string `json:"country,omitempty"`
}

// Place is one geocoding result with its coordinates and display form.
type Place struct {
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	DisplayName string  `json:"displayName"`
	Address     Address `json:"address"`
}

// Client issues forward and reverse geocoding calls against a
// Nominatim-compatible endpoint.
type Client struct {
	baseURL   string
	userAgent string
	http      *http.Client
}

// ClientConfig configures the geocoding client.
type ClientConfig struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	HTTP      *http.Client
}

// NewClient constructs a geocoding client.
func NewClient(cfg ClientConfig) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("geo: base url is required")
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	httpClient := cfg.HTTP
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:   baseURL,
		userAgent: userAgent,
		http:      httpClient,
	}, nil
}

// Forward resolves a free-form address query to coordinates.
func (c *Client) Forward(ctx context.Context, query string) (Place, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Place{}, errors.New("geo: query is required")
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "jsonv2")
	params.Set("limit", "1")
	params.Set("addressdetails", "1")

	var results []nominatimPlace
	if err := c.get(ctx, "/search", params, &results); err != nil {
		return Place{}, err
	}
	if len(results) == 0 {
		return Place{}, ErrNoResult
	}
	return results[0].toPlace()
}

// Reverse resolves coordinates to a structured address.
func (c *Client) Reverse(ctx context.Context, lat, lon float64) (Place, error) {
	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	params.Set("format", "jsonv2")
	params.Set("addressdetails", "1")

	var result nominatimPlace
	if err := c.get(ctx, "/reverse", params, &result); err != nil {
		return Place{}, err
	}
	if strings.TrimSpace(result.DisplayName) == "" {
		return Place{}, ErrNoResult
	}
	return result.toPlace()
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	endpoint := c.baseURL + path + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("geo: %s status %d: %s", path, resp.StatusCode, drainError(resp.Body))
	}
	return json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out)
}

func drainError(r io.Reader) string {
	if r == nil {
		return ""
	}
	b, _ := io.ReadAll(io.LimitReader(r, 256))
	return strings.TrimSpace(string(b))
}

type nominatimPlace struct {
	Lat         string           `json:"lat"`
	Lon         string           `json:"lon"`
	DisplayName string           `json:"display_name"`
	Address     nominatimAddress `json:"address"`
}

type nominatimAddress struct {
	HouseNumber string `json:"house_number"`
	Road        string `json:"road"`
	City        string `json:"city"`
	Town        string `json:"town"`
	Village     string `json:"village"`
	State       string `json:"state"`
	Postcode    string `json:"postcode"`
	Country     string `json:"country"`
}

func (p nominatimPlace) toPlace() (Place, error) {
	lat, err := strconv.ParseFloat(strings.TrimSpace(p.Lat), 64)
	if err != nil {
		return Place{}, fmt.Errorf("geo: invalid latitude %q", p.Lat)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(p.Lon), 64)
	if err != nil {
		return Place{}, fmt.Errorf("geo: invalid longitude %q", p.Lon)
	}
	city := p.Address.City
	if city == "" {
		city = p.Address.Town
	}
	if city == "" {
		city = p.Address.Village
	}
	return Place{
		Latitude:    lat,
		Longitude:   lon,
		DisplayName: strings.TrimSpace(p.DisplayName),
		Address: Address{
			HouseNumber: p.Address.HouseNumber,
			Road:        p.Address.Road,
			City:        city,
			State:       p.Address.State,
			Postcode:    p.Address.Postcode,
			Country:     p.Address.Country,
		},
	}, nil
}
