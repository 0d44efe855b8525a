// Package config assembles runtime configuration from the environment,
// optionally seeded from a .env file.
package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"

	"github.com/alerto-de-pin/dashboard-client/internal/alert"
)

// Config is the full runtime configuration for one dashboard process.
type Config struct {
	// APIBaseURL is the backend REST endpoint.
	APIBaseURL string

	// SocketURL is the backend push channel endpoint.
	SocketURL string

	// Role selects the dashboard: citizen, police, hospital, fire, admin.
	Role string

	// ListenAddr is where the local UI-facing HTTP surface binds.
	ListenAddr string

	// GeocodeURL is the reverse-geocoding service (nominatim-compatible).
	GeocodeURL string

	// DirectionsURL and DirectionsToken configure the routing service.
	DirectionsURL   string
	DirectionsToken string

	// IPLocationURL is the coarse IP-geolocation fallback.
	IPLocationURL string

	// SessionPath overrides the default session file location.
	SessionPath string

	// RefreshInterval is the periodic REST refresh cadence.
	RefreshInterval time.Duration

	// LogLevel is one of debug, info, warn, error. LogJSON switches the
	// console encoder for JSON output.
	LogLevel string
	LogJSON  bool
}

// Load reads the environment, seeding it from .env when one exists. A
// missing .env file is not an error.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		APIBaseURL:      getEnv("ALERTO_API_URL", "http://localhost:5000/api"),
		SocketURL:       getEnv("ALERTO_SOCKET_URL", "ws://localhost:5000/socket"),
		Role:            getEnv("ALERTO_ROLE", "citizen"),
		ListenAddr:      getEnv("ALERTO_LISTEN_ADDR", "127.0.0.1:8090"),
		GeocodeURL:      getEnv("ALERTO_GEOCODE_URL", "https://nominatim.openstreetmap.org"),
		DirectionsURL:   getEnv("ALERTO_DIRECTIONS_URL", "https://api.mapbox.com/directions/v5/mapbox/driving"),
		DirectionsToken: getEnv("ALERTO_DIRECTIONS_TOKEN", ""),
		IPLocationURL:   getEnv("ALERTO_IP_LOCATION_URL", "http://ip-api.com/json"),
		SessionPath:     getEnv("ALERTO_SESSION_PATH", ""),
		LogLevel:        getEnv("ALERTO_LOG_LEVEL", "info"),
		LogJSON:         getEnv("ALERTO_LOG_FORMAT", "console") == "json",
	}

	interval, err := time.ParseDuration(getEnv("ALERTO_REFRESH_INTERVAL", "30s"))
	if err != nil {
		return Config{}, errors.Wrap(err, "invalid ALERTO_REFRESH_INTERVAL")
	}
	cfg.RefreshInterval = interval

	if !validRole(cfg.Role) {
		return Config{}, errors.Errorf("invalid ALERTO_ROLE %q", cfg.Role)
	}

	return cfg, nil
}

// RelevantType maps the dashboard role to the alert type it watches.
// Citizen and admin dashboards watch everything.
func (c Config) RelevantType() alert.Type {
	switch c.Role {
	case "police":
		return alert.TypePolice
	case "hospital":
		return alert.TypeHospital
	case "fire":
		return alert.TypeFire
	default:
		return ""
	}
}

func validRole(role string) bool {
	switch role {
	case "citizen", "police", "hospital", "fire", "admin":
		return true
	}
	return false
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
