package location

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/alerto-de-pin/dashboard-client/internal/geo"
)

// ReverseGeocoder resolves coordinates to a human-readable address via a
// nominatim-style endpoint. Best-effort: callers fall back to the user's
// stored address or raw coordinate text on failure.
type ReverseGeocoder struct {
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewReverseGeocoder creates a reverse-geocoding client. endpoint is the
// service root, e.g. "https://nominatim.openstreetmap.org".
func NewReverseGeocoder(endpoint string, logger *zap.Logger) *ReverseGeocoder {
	return &ReverseGeocoder{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: lookupTimeout,
		},
		logger: logger,
	}
}

// Address resolves a coordinate pair to a display address.
func (g *ReverseGeocoder) Address(ctx context.Context, coords geo.Coordinates) (string, error) {
	lookupURL := fmt.Sprintf("%s/reverse?format=json&lat=%s&lon=%s",
		g.endpoint,
		url.QueryEscape(fmt.Sprintf("%g", coords.Lat)),
		url.QueryEscape(fmt.Sprintf("%g", coords.Lng)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, lookupURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create reverse geocode request: %w", err)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("reverse geocode request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("reverse geocode failed with HTTP %d", resp.StatusCode)
	}

	var body struct {
		DisplayName string `json:"display_name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to parse reverse geocode response: %w", err)
	}
	if body.DisplayName == "" {
		return "", fmt.Errorf("reverse geocode returned no address")
	}

	g.logger.Debug("Reverse geocoded coordinates", zap.String("address", body.DisplayName))
	return body.DisplayName, nil
}
