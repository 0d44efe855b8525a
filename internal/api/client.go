// Package api is the REST client for the ALERTO DE PIN backend. It
// covers the auth, alerts, users, and notifications surfaces; the
// realtime push channel is a separate collaborator.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/alerto-de-pin/dashboard-client/internal/alert"
	"github.com/alerto-de-pin/dashboard-client/internal/session"
)

// requestTimeout bounds every REST call.
const requestTimeout = 30 * time.Second

// TokenProvider supplies the current bearer token, empty when logged out.
type TokenProvider interface {
	Token() string
}

// Client talks to the backend REST API. All methods return the backend's
// {message} text inside the error on non-2xx responses so callers can
// surface it verbatim.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenProvider
	logger     *zap.Logger
}

// NewClient creates a REST client. baseURL is the API root, e.g.
// "https://backend.example.com/api".
func NewClient(baseURL string, tokens TokenProvider, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		tokens: tokens,
		logger: logger,
	}
}

// do executes one JSON request and decodes a 2xx body into out (which may
// be nil). Non-2xx bodies are decoded as {message} and returned as an
// error; a body that fails to decode falls back to the HTTP status text.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if token := c.tokens.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr errorBody
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Message != "" {
			return fmt.Errorf("%s", apiErr.Message)
		}
		return fmt.Errorf("request failed with HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// --- Auth ---

// Login authenticates with email and password.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	payload := map[string]string{"email": email, "password": password}
	var result AuthResult
	if err := c.do(ctx, http.MethodPost, "/auth/login", payload, &result); err != nil {
		return nil, err
	}
	c.logger.Info("Logged in", zap.String("userId", result.User.ID))
	return &result, nil
}

// Register creates a new account.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*AuthResult, error) {
	var result AuthResult
	if err := c.do(ctx, http.MethodPost, "/auth/register", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CurrentUser fetches the authenticated user's profile.
func (c *Client) CurrentUser(ctx context.Context) (*session.User, error) {
	var env userEnvelope
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, &env); err != nil {
		return nil, err
	}
	return &env.User, nil
}

// --- Alerts ---

// ListAlerts fetches alerts, optionally filtered (e.g. type, status).
func (c *Client) ListAlerts(ctx context.Context, filters map[string]string) ([]alert.Alert, error) {
	path := "/alerts"
	if len(filters) > 0 {
		q := url.Values{}
		for k, v := range filters {
			q.Set(k, v)
		}
		path += "?" + q.Encode()
	}

	var env alertListEnvelope
	if err := c.do(ctx, http.MethodGet, path, nil, &env); err != nil {
		return nil, err
	}

	items := env.items()
	c.logger.Debug("Fetched alerts", zap.Int("count", len(items)))
	return items, nil
}

// GetAlert fetches one alert by ID.
func (c *Client) GetAlert(ctx context.Context, id string) (*alert.Alert, error) {
	var env alertEnvelope
	if err := c.do(ctx, http.MethodGet, "/alerts/"+url.PathEscape(id), nil, &env); err != nil {
		return nil, err
	}
	return &env.Alert, nil
}

// CreateAlert submits a new alert.
func (c *Client) CreateAlert(ctx context.Context, draft AlertDraft) (*alert.Alert, error) {
	var env alertEnvelope
	if err := c.do(ctx, http.MethodPost, "/alerts", draft, &env); err != nil {
		return nil, err
	}
	c.logger.Info("Alert created", zap.String("alertId", env.Alert.ID), zap.String("type", string(env.Alert.Type)))
	return &env.Alert, nil
}

// UpdateAlert applies a partial update.
func (c *Client) UpdateAlert(ctx context.Context, id string, patch AlertPatch) (*alert.Alert, error) {
	var env alertEnvelope
	if err := c.do(ctx, http.MethodPut, "/alerts/"+url.PathEscape(id), patch, &env); err != nil {
		return nil, err
	}
	return &env.Alert, nil
}

// RespondAlert accepts the alert as the current responder.
func (c *Client) RespondAlert(ctx context.Context, id string) (*alert.Alert, error) {
	var env alertEnvelope
	if err := c.do(ctx, http.MethodPut, "/alerts/"+url.PathEscape(id)+"/respond", nil, &env); err != nil {
		return nil, err
	}
	return &env.Alert, nil
}

// ResolveAlert closes out an active alert with resolution notes.
func (c *Client) ResolveAlert(ctx context.Context, id, notes string) (*alert.Alert, error) {
	payload := map[string]string{"notes": notes}
	var env alertEnvelope
	if err := c.do(ctx, http.MethodPut, "/alerts/"+url.PathEscape(id)+"/resolve", payload, &env); err != nil {
		return nil, err
	}
	return &env.Alert, nil
}

// CancelAlert cancels an alert.
func (c *Client) CancelAlert(ctx context.Context, id string) (*alert.Alert, error) {
	var env alertEnvelope
	if err := c.do(ctx, http.MethodPut, "/alerts/"+url.PathEscape(id)+"/cancel", nil, &env); err != nil {
		return nil, err
	}
	return &env.Alert, nil
}

// NearbyAlerts fetches alerts of a type within radiusKm of a point.
func (c *Client) NearbyAlerts(ctx context.Context, typ alert.Type, lat, lng, radiusKm float64) ([]alert.Alert, error) {
	path := fmt.Sprintf("/alerts/nearby/%s?lat=%g&lng=%g&radius=%g", typ, lat, lng, radiusKm)
	var env alertListEnvelope
	if err := c.do(ctx, http.MethodGet, path, nil, &env); err != nil {
		return nil, err
	}
	return env.items(), nil
}

// --- Users ---

// UpdateLocation publishes the user's current coordinates. The backend
// expects GeoJSON [lng, lat] ordering.
func (c *Client) UpdateLocation(ctx context.Context, lat, lng float64) error {
	payload := map[string]any{"coordinates": [2]float64{lng, lat}}
	return c.do(ctx, http.MethodPut, "/users/location", payload, nil)
}

// UpdateProfile edits the user's profile and returns the updated record.
func (c *Client) UpdateProfile(ctx context.Context, update ProfileUpdate) (*session.User, error) {
	var env userEnvelope
	if err := c.do(ctx, http.MethodPut, "/users/profile", update, &env); err != nil {
		return nil, err
	}
	return &env.User, nil
}

// ChangePassword updates the account password.
func (c *Client) ChangePassword(ctx context.Context, change PasswordChange) error {
	return c.do(ctx, http.MethodPut, "/users/change-password", change, nil)
}

// UserStats fetches the user's alert statistics.
func (c *Client) UserStats(ctx context.Context) (*Stats, error) {
	var stats Stats
	if err := c.do(ctx, http.MethodGet, "/users/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// SearchUsers looks up users by name or email for family registration.
func (c *Client) SearchUsers(ctx context.Context, query string) ([]session.User, error) {
	var env usersEnvelope
	if err := c.do(ctx, http.MethodGet, "/users/search?q="+url.QueryEscape(query), nil, &env); err != nil {
		return nil, err
	}
	return env.Users, nil
}

// Family fetches the user's registered family members.
func (c *Client) Family(ctx context.Context) ([]session.User, error) {
	var env familyEnvelope
	if err := c.do(ctx, http.MethodGet, "/users/family", nil, &env); err != nil {
		return nil, err
	}
	return env.Family, nil
}

// UpdateFamily adds or removes a family member. action is "add" or
// "remove"; the updated member list is returned.
func (c *Client) UpdateFamily(ctx context.Context, action, memberID string) ([]session.User, error) {
	payload := map[string]string{"action": action, "memberId": memberID}
	var env familyEnvelope
	if err := c.do(ctx, http.MethodPut, "/users/family", payload, &env); err != nil {
		return nil, err
	}
	return env.Family, nil
}

// --- Notifications ---

// ListNotifications fetches the persisted notification history.
func (c *Client) ListNotifications(ctx context.Context) ([]RemoteNotification, error) {
	var env notificationsEnvelope
	if err := c.do(ctx, http.MethodGet, "/notifications", nil, &env); err != nil {
		return nil, err
	}
	return env.items(), nil
}

// MarkNotificationRead marks one notification as read.
func (c *Client) MarkNotificationRead(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPut, "/notifications/"+url.PathEscape(id)+"/read", nil, nil)
}

// MarkAllNotificationsRead marks the whole history as read.
func (c *Client) MarkAllNotificationsRead(ctx context.Context) error {
	return c.do(ctx, http.MethodPut, "/notifications/read-all", nil, nil)
}

// DeleteNotification removes one notification from the history.
func (c *Client) DeleteNotification(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/notifications/"+url.PathEscape(id), nil, nil)
}
