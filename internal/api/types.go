package api

import (
	"encoding/json"
	"time"

	"github.com/alerto-de-pin/dashboard-client/internal/alert"
	"github.com/alerto-de-pin/dashboard-client/internal/session"
)

// GeoJSONPoint is the coordinate payload the backend expects on alert
// creation and location updates: [lng, lat] ordering.
type GeoJSONPoint struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

// NewGeoJSONPoint builds a point from a lat/lng pair, taking care of the
// GeoJSON longitude-first ordering.
func NewGeoJSONPoint(lat, lng float64) GeoJSONPoint {
	return GeoJSONPoint{Type: "Point", Coordinates: [2]float64{lng, lat}}
}

// LocationPayload is the location section of an alert creation request.
type LocationPayload struct {
	Coordinates GeoJSONPoint `json:"coordinates"`
	Address     string       `json:"address"`
}

// AlertDraft is the payload for creating a new alert.
type AlertDraft struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Type        alert.Type      `json:"type"`
	Priority    string          `json:"priority"`
	Location    LocationPayload `json:"location"`
	Notes       string          `json:"notes,omitempty"`
}

// AlertPatch is a partial update for PUT /alerts/:id.
type AlertPatch struct {
	Status    alert.Status `json:"status,omitempty"`
	Notes     string       `json:"notes,omitempty"`
	ArrivedAt time.Time    `json:"arrivedAt,omitzero"`
}

// RegisterRequest is the payload for account creation.
type RegisterRequest struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	Password      string `json:"password"`
	AccountType   string `json:"accountType"`
	ContactNumber string `json:"contactNumber,omitempty"`
	Address       string `json:"address,omitempty"`
}

// ProfileUpdate is the payload for profile edits.
type ProfileUpdate struct {
	Name          string `json:"name,omitempty"`
	ContactNumber string `json:"contactNumber,omitempty"`
	Address       string `json:"address,omitempty"`
}

// PasswordChange is the payload for password updates.
type PasswordChange struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// Stats is the per-user alert statistics summary.
type Stats struct {
	MyAlerts       int `json:"myAlerts"`
	ActiveAlerts   int `json:"activeAlerts"`
	ResolvedAlerts int `json:"resolvedAlerts"`
}

// AuthResult is the outcome of a login or registration.
type AuthResult struct {
	User  session.User `json:"user"`
	Token string       `json:"token"`
}

// RemoteNotification is a notification record persisted by the backend,
// distinct from the client's local ephemeral feed.
type RemoteNotification struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	Read      bool   `json:"read"`
	CreatedAt string `json:"createdAt"`
}

// UnmarshalJSON accepts both id and Mongo-style _id.
func (n *RemoteNotification) UnmarshalJSON(data []byte) error {
	type Alias RemoteNotification
	aux := &struct {
		MongoID string `json:"_id"`
		*Alias
	}{
		Alias: (*Alias)(n),
	}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	if n.ID == "" {
		n.ID = aux.MongoID
	}
	return nil
}

// errorBody is the backend's error envelope on non-2xx responses.
type errorBody struct {
	Message string `json:"message"`
}

// alertListEnvelope tolerates both list envelopes the backend uses.
type alertListEnvelope struct {
	Alerts []alert.Alert `json:"alerts"`
	Data   []alert.Alert `json:"data"`
}

// items returns whichever list the backend populated.
func (e *alertListEnvelope) items() []alert.Alert {
	if e.Alerts != nil {
		return e.Alerts
	}
	return e.Data
}

// alertEnvelope wraps single-alert responses.
type alertEnvelope struct {
	Alert alert.Alert `json:"alert"`
}

// userEnvelope wraps responses carrying a single user.
type userEnvelope struct {
	User session.User `json:"user"`
}

// usersEnvelope wraps user-search results.
type usersEnvelope struct {
	Users []session.User `json:"users"`
}

// familyEnvelope wraps family-member lists.
type familyEnvelope struct {
	Family []session.User `json:"family"`
}

// notificationsEnvelope wraps the persisted notification list.
type notificationsEnvelope struct {
	Notifications []RemoteNotification `json:"notifications"`
	Data          []RemoteNotification `json:"data"`
}

func (e *notificationsEnvelope) items() []RemoteNotification {
	if e.Notifications != nil {
		return e.Notifications
	}
	return e.Data
}
