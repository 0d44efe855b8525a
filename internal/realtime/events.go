package realtime

import (
	"encoding/json"
	"time"

	"github.com/alerto-de-pin/dashboard-client/internal/alert"
	"github.com/alerto-de-pin/dashboard-client/internal/geo"
)

// Wire event names, exactly as the backend emits them. The asymmetric
// naming (kebab-case vs camelCase) is historical and must be preserved.
const (
	// Client -> server.
	EventUserOnline     = "user-online"
	EventUpdateLocation = "update-location"
	EventJoinRoom       = "join-room"

	// Server -> client.
	EventNewAlert           = "new-alert"
	EventAlertResponded     = "alertResponded"
	EventAlertUpdated       = "alertUpdated"
	EventAlertCancelled     = "alertCancelled"
	EventNewNotification    = "newNotification"
	EventOnlineUsersUpdate  = "online-users-update"
	EventUserLocationUpdate = "user-location-update"
)

// Frame is the envelope for every message on the push channel.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewFrame builds an outbound frame with the payload already encoded.
func NewFrame(event string, data any) (Frame, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Event: event, Data: raw}, nil
}

// Presence is the client -> server announcement payload for user-online.
// Location is optional: its absence must not block the announcement.
type Presence struct {
	UserID   string           `json:"userId"`
	Location *geo.Coordinates `json:"location,omitempty"`
	UserType string           `json:"userType"`
	Name     string           `json:"name"`
}

// roomJoin is the client -> server payload for join-room.
type roomJoin struct {
	Room string `json:"room"`
}

// LocationUpdate is the client -> server payload for update-location.
type LocationUpdate struct {
	UserID   string          `json:"userId"`
	Location geo.Coordinates `json:"location"`
}

// OnlineUser is one entry in the live presence roster. Held only in
// memory; removed on disconnect or channel reset.
type OnlineUser struct {
	UserID     string           `json:"userId"`
	Name       string           `json:"name"`
	UserType   string           `json:"userType"`
	Location   *geo.Coordinates `json:"location,omitempty"`
	LastUpdate time.Time        `json:"lastUpdate,omitzero"`
}

// alertEvent is the server payload wrapping an alert plus an optional
// human-readable message for alertResponded/alertUpdated/alertCancelled.
type alertEvent struct {
	Alert   alert.Alert `json:"alert"`
	Message string      `json:"message,omitempty"`
}

// pushNotification is the server payload for newNotification.
type pushNotification struct {
	Type    string `json:"type"`
	Title   string `json:"title"`
	Message string `json:"message"`
}
