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

// ErrNoRoute is returned when the directions service finds no driving
// route between the two points. It is an expected outcome, not a
// transport failure; the map simply draws nothing.
var ErrNoRoute = fmt.Errorf("no route found")

// DirectionsClient fetches driving routes from a mapbox-style directions
// service.
type DirectionsClient struct {
	endpoint    string
	accessToken string
	httpClient  *http.Client
	logger      *zap.Logger
}

// NewDirectionsClient creates a directions client. endpoint is the
// service root, e.g. "https://api.mapbox.com/directions/v5/mapbox".
func NewDirectionsClient(endpoint, accessToken string, logger *zap.Logger) *DirectionsClient {
	return &DirectionsClient{
		endpoint:    endpoint,
		accessToken: accessToken,
		httpClient: &http.Client{
			Timeout: lookupTimeout,
		},
		logger: logger,
	}
}

// DrivingRoute fetches the driving route from origin to dest and returns
// its polyline as normalized coordinates. Returns ErrNoRoute when the
// service has no route for the pair.
func (d *DirectionsClient) DrivingRoute(ctx context.Context, origin, dest geo.Coordinates) ([]geo.Coordinates, error) {
	// The directions API takes lng,lat pairs separated by semicolons.
	routeURL := fmt.Sprintf("%s/driving/%g,%g;%g,%g?geometries=geojson&access_token=%s",
		d.endpoint,
		origin.Lng, origin.Lat,
		dest.Lng, dest.Lat,
		url.QueryEscape(d.accessToken))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, routeURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create directions request: %w", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("directions request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("directions request failed with HTTP %d", resp.StatusCode)
	}

	var body struct {
		Routes []struct {
			Geometry struct {
				Coordinates [][]float64 `json:"coordinates"`
			} `json:"geometry"`
		} `json:"routes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to parse directions response: %w", err)
	}

	if len(body.Routes) == 0 {
		return nil, ErrNoRoute
	}

	raw := body.Routes[0].Geometry.Coordinates
	polyline := make([]geo.Coordinates, 0, len(raw))
	for _, pair := range raw {
		if len(pair) < 2 {
			continue
		}
		polyline = append(polyline, geo.Coordinates{Lat: pair[1], Lng: pair[0]})
	}
	if len(polyline) == 0 {
		return nil, ErrNoRoute
	}

	d.logger.Debug("Fetched driving route", zap.Int("points", len(polyline)))
	return polyline, nil
}
