// Package location wraps the external geolocation collaborators: the
// device's own position source, a coarse IP-based fallback, reverse
// geocoding, and the driving-directions service. Everything here is
// best-effort; callers decide whether a failure aborts their flow.
package location

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/alerto-de-pin/dashboard-client/internal/geo"
)

// lookupTimeout bounds each geolocation HTTP call.
const lookupTimeout = 30 * time.Second

// Locator resolves the client's current position. The platform GPS,
// the IP fallback, and test fakes all sit behind this interface.
type Locator interface {
	Locate(ctx context.Context) (geo.Coordinates, error)
}

// LocatorFunc adapts a function to the Locator interface.
type LocatorFunc func(ctx context.Context) (geo.Coordinates, error)

// Locate implements Locator.
func (f LocatorFunc) Locate(ctx context.Context) (geo.Coordinates, error) {
	return f(ctx)
}

// IPLocator resolves a coarse position from the client's public IP.
// Accuracy is city-level at best; it exists only as a fallback when the
// device position is denied or unavailable.
type IPLocator struct {
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewIPLocator creates an IP-geolocation client. endpoint is the lookup
// URL returning {"status", "lat", "lon"}.
func NewIPLocator(endpoint string, logger *zap.Logger) *IPLocator {
	return &IPLocator{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: lookupTimeout,
		},
		logger: logger,
	}
}

// Locate performs the IP lookup.
func (l *IPLocator) Locate(ctx context.Context) (geo.Coordinates, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.endpoint, nil)
	if err != nil {
		return geo.Coordinates{}, fmt.Errorf("failed to create IP lookup request: %w", err)
	}

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return geo.Coordinates{}, fmt.Errorf("IP lookup request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return geo.Coordinates{}, fmt.Errorf("IP lookup failed with HTTP %d", resp.StatusCode)
	}

	var body struct {
		Status string  `json:"status"`
		Lat    float64 `json:"lat"`
		Lon    float64 `json:"lon"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return geo.Coordinates{}, fmt.Errorf("failed to parse IP lookup response: %w", err)
	}
	if body.Status != "" && body.Status != "success" {
		return geo.Coordinates{}, fmt.Errorf("IP lookup returned status %q", body.Status)
	}

	coords := geo.Coordinates{Lat: body.Lat, Lng: body.Lon}
	l.logger.Debug("Resolved coarse location from IP", zap.Float64("lat", coords.Lat), zap.Float64("lng", coords.Lng))
	return coords, nil
}

// FallbackLocator tries the device position first and falls back to IP
// geolocation. Both failing is a hard error the caller must surface.
type FallbackLocator struct {
	device Locator
	ip     Locator
	logger *zap.Logger
}

// NewFallbackLocator chains a device locator with an IP fallback.
func NewFallbackLocator(device, ip Locator, logger *zap.Logger) *FallbackLocator {
	return &FallbackLocator{device: device, ip: ip, logger: logger}
}

// Locate returns the device position when available, the IP position
// otherwise.
func (l *FallbackLocator) Locate(ctx context.Context) (geo.Coordinates, error) {
	coords, err := l.device.Locate(ctx)
	if err == nil {
		return coords, nil
	}
	l.logger.Warn("Device location unavailable, falling back to IP lookup", zap.Error(err))

	coords, ipErr := l.ip.Locate(ctx)
	if ipErr != nil {
		return geo.Coordinates{}, errors.Wrap(ipErr, "unable to determine location")
	}
	return coords, nil
}
