// Package geocode resolves coordinates to human-readable place names.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"
)

// Geocoder resolves a coordinate pair to a location string.
type Geocoder interface {
	Reverse(ctx context.Context, lat, lon float64) (string, error)
}

// FallbackName renders coordinates when no geocoder result is available.
func FallbackName(lat, lon float64) string {
	return fmt.Sprintf("%.4f, %.4f", lat, lon)
}

// Nominatim is a reverse geocoder backed by the OSM Nominatim API.
type Nominatim struct {
	baseURL   string
	userAgent string
	client    *http.Client
}

// NewNominatim creates a Nominatim client. RUNPOST_NOMINATIM_URL overrides
// the endpoint, mainly for tests.
func NewNominatim() *Nominatim {
	baseURL := os.Getenv("RUNPOST_NOMINATIM_URL")
	if baseURL == "" {
		baseURL = "https://nominatim.openstreetmap.org"
	}
	return &Nominatim{
		baseURL:   baseURL,
		userAgent: "runpost",
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

type nominatimResponse struct {
	DisplayName string            `json:"display_name"`
	Address     map[string]string `json:"address"`
}

// Reverse resolves lat/lon to a short place name: the most local component
// Nominatim knows (neighbourhood down to village), plus the state.
func (n *Nominatim) Reverse(ctx context.Context, lat, lon float64) (string, error) {
	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("lat", fmt.Sprintf("%f", lat))
	q.Set("lon", fmt.Sprintf("%f", lon))

	req, err := http.NewRequestWithContext(ctx, "GET", n.baseURL+"/reverse?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", n.userAgent)

	resp, err := n.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("nominatim request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("nominatim error %d: %s", resp.StatusCode, string(b))
	}

	var result nominatimResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}

	var components []string
	for _, key := range []string{"neighbourhood", "suburb", "city", "town", "village"} {
		if v, ok := result.Address[key]; ok {
			components = append(components, v)
			break
		}
	}
	if state, ok := result.Address["state"]; ok {
		components = append(components, state)
	}

	if len(components) == 0 {
		if result.DisplayName != "" {
			return result.DisplayName, nil
		}
		return FallbackName(lat, lon), nil
	}

	name := components[0]
	for _, c := range components[1:] {
		name += ", " + c
	}
	return name, nil
}
