// Package geo provides the pure geospatial helpers shared by the map
// projection and the alert lifecycle: great-circle distance, ETA
// estimation, and normalization of the historical coordinate encodings
// the backend has produced over time.
package geo

import (
	"encoding/json"
	"fmt"
	"math"
)

const (
	// EarthRadiusKm is the mean Earth radius used by the haversine formula.
	EarthRadiusKm = 6371.0

	// AverageUrbanSpeedKmh is the assumed average driving speed for ETA
	// estimates in city traffic.
	AverageUrbanSpeedKmh = 40.0
)

// Coordinates is the single coordinate representation used past the JSON
// boundary. Raw wire shapes are normalized into this type and never
// propagated further.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// IsZero reports whether the coordinates are the zero value. The backend
// never produces alerts at exactly (0, 0), so the zero value doubles as
// "no coordinates".
func (c Coordinates) IsZero() bool {
	return c.Lat == 0 && c.Lng == 0
}

// String formats coordinates as "lat, lng" with six decimal places,
// matching the precision the dashboards display.
func (c Coordinates) String() string {
	return fmt.Sprintf("%.6f, %.6f", c.Lat, c.Lng)
}

// DistanceKm returns the haversine great-circle distance in kilometers
// between two points. Total for finite inputs.
func DistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusKm * c
}

// ETAMinutes formats the estimated travel time for a distance at the
// average urban speed. Durations under an hour render as "N min",
// anything else as "Hh Mm"; exactly 60 minutes is "1h 0m".
func ETAMinutes(distanceKm float64) string {
	hours := distanceKm / AverageUrbanSpeedKmh
	minutes := int(math.Round(hours * 60))
	if minutes < 60 {
		return fmt.Sprintf("%d min", minutes)
	}
	hrs := minutes / 60
	mins := minutes % 60
	return fmt.Sprintf("%dh %dm", hrs, mins)
}

// NormalizeCoordinates extracts a Coordinates pair from any of the
// location shapes seen in historical alert data:
//
//   - flat object: {"lat": 13.62, "lng": 123.18}
//   - GeoJSON point: {"type": "Point", "coordinates": [lng, lat]}
//   - nested GeoJSON: {"coordinates": {"coordinates": [lng, lat]}}
//   - bare array: [lng, lat]
//
// The raw value is expected to be a decoded JSON tree (map[string]any,
// []any, float64). Returns ok=false when no recognizable shape is found;
// callers must treat that as "omit from map and distance calculations",
// never as an error.
func NormalizeCoordinates(raw any) (Coordinates, bool) {
	switch v := raw.(type) {
	case map[string]any:
		// Flat {lat, lng} object.
		lat, latOK := toFloat(v["lat"])
		lng, lngOK := toFloat(v["lng"])
		if latOK && lngOK {
			return Coordinates{Lat: lat, Lng: lng}, true
		}
		// GeoJSON or nested: descend through "coordinates" until we hit
		// an array or run out of objects.
		if inner, exists := v["coordinates"]; exists {
			return NormalizeCoordinates(inner)
		}
		return Coordinates{}, false
	case []any:
		// GeoJSON ordering: [lng, lat].
		if len(v) < 2 {
			return Coordinates{}, false
		}
		lng, lngOK := toFloat(v[0])
		lat, latOK := toFloat(v[1])
		if !lngOK || !latOK {
			return Coordinates{}, false
		}
		return Coordinates{Lat: lat, Lng: lng}, true
	default:
		return Coordinates{}, false
	}
}

// toFloat accepts the numeric types encoding/json produces plus string
// numbers, which some historical records used for coordinates.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		var f float64
		if _, err := fmt.Sscanf(n, "%g", &f); err == nil {
			return f, true
		}
	}
	return 0, false
}
