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

	"github.com/beaconhq/beacon/internal/config"
	"github.com/beaconhq/beacon/internal/logging"
)

var (
	ErrNoResults          = errors.New("no geocoding results")
	ErrGeocodeUnavailable = errors.New("geocoding provider is currently unavailable")
)

// Place is a resolved location.
type Place struct {
	DisplayName string  `json:"display_name"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
}

// Client talks to a Nominatim-compatible geocoding endpoint. Nominatim's
// usage policy requires an identifying User-Agent on every request.
type Client struct {
	baseURL   string
	userAgent string
	client    *http.Client
}

func NewClient(cfg *config.GeocodeConfig) *Client {
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		userAgent: cfg.UserAgent,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

type nominatimResult struct {
	DisplayName string `json:"display_name"`
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
}

// Search resolves a free-form address or place name to coordinates.
func (c *Client) Search(ctx context.Context, query string) (*Place, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrNoResults
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("limit", "1")

	var results []nominatimResult
	if err := c.get(ctx, "/search", params, &results); err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, ErrNoResults
	}
	return placeFromResult(results[0])
}

// Reverse resolves coordinates to a human-readable address.
func (c *Client) Reverse(ctx context.Context, lat, lon float64) (*Place, error) {
	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(lat, 'f', 6, 64))
	params.Set("lon", strconv.FormatFloat(lon, 'f', 6, 64))
	params.Set("format", "json")

	var result nominatimResult
	if err := c.get(ctx, "/reverse", params, &result); err != nil {
		return nil, err
	}
	if result.DisplayName == "" {
		return nil, ErrNoResults
	}
	return placeFromResult(result)
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())
	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return fmt.Errorf("creating geocode request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		logging.Warn("Geocode request failed", map[string]interface{}{
			"path":  path,
			"error": err.Error(),
		})
		return fmt.Errorf("%w: %v", ErrGeocodeUnavailable, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		logging.Warn("Geocode non-200 response", map[string]interface{}{
			"path":   path,
			"status": resp.StatusCode,
		})
		return fmt.Errorf("%w: status %d", ErrGeocodeUnavailable, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: invalid response body", ErrGeocodeUnavailable)
	}
	return nil
}

func placeFromResult(r nominatimResult) (*Place, error) {
	lat, err := strconv.ParseFloat(r.Lat, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad latitude %q", ErrGeocodeUnavailable, r.Lat)
	}
	lon, err := strconv.ParseFloat(r.Lon, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad longitude %q", ErrGeocodeUnavailable, r.Lon)
	}
	return &Place{
		DisplayName: r.DisplayName,
		Latitude:    lat,
		Longitude:   lon,
	}, nil
}
