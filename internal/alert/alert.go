// Package alert defines the alert data model shared by every dashboard,
// the in-memory store that is the single source of truth for a dashboard
// session, and the local notification feed.
package alert

import (
	"encoding/json"
	"time"

	"github.com/alerto-de-pin/dashboard-client/internal/geo"
)

// Type identifies which responder service an alert targets.
type Type string

const (
	TypePolice   Type = "police"
	TypeHospital Type = "hospital"
	TypeFire     Type = "fire"

	// TypeFamily is deprecated but still present in historical records
	// and must round-trip unchanged.
	TypeFamily Type = "family"
)

// Status is an alert's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusResponded Status = "responded"
	StatusActive    Status = "active"
	StatusResolved  Status = "resolved"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether no further lifecycle transition is accepted
// from this status.
func (s Status) IsTerminal() bool {
	return s == StatusResolved || s == StatusCancelled
}

// Identity references a user either by bare ID or as an embedded object.
// The backend is inconsistent about which form it sends, so both decode
// into this one type.
type Identity struct {
	ID            string `json:"id,omitempty"`
	Name          string `json:"name,omitempty"`
	ContactNumber string `json:"contactNumber,omitempty"`
	AccountType   string `json:"accountType,omitempty"`
}

// UnmarshalJSON accepts either a bare ID string or an object with _id/id
// plus profile fields.
func (u *Identity) UnmarshalJSON(data []byte) error {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		u.ID = id
		return nil
	}

	var obj struct {
		MongoID       string `json:"_id"`
		ID            string `json:"id"`
		Name          string `json:"name"`
		ContactNumber string `json:"contactNumber"`
		AccountType   string `json:"accountType"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}

	u.ID = obj.ID
	if u.ID == "" {
		u.ID = obj.MongoID
	}
	u.Name = obj.Name
	u.ContactNumber = obj.ContactNumber
	u.AccountType = obj.AccountType
	return nil
}

// Location carries the human-readable address and, when known, normalized
// coordinates. Historical records encode the coordinate pair four
// different ways; all of them are folded into Coordinates during JSON
// decoding and the raw shapes never leave this type.
type Location struct {
	Address     string          `json:"address,omitempty"`
	Coordinates geo.Coordinates `json:"coordinates,omitempty"`

	// HasCoordinates distinguishes "no usable coordinates" from a genuine
	// point; records without it are excluded from maps and distance math.
	HasCoordinates bool `json:"-"`
}

// UnmarshalJSON accepts a free-text address string or a structured
// location object in any of the historical coordinate encodings.
func (l *Location) UnmarshalJSON(data []byte) error {
	var address string
	if err := json.Unmarshal(data, &address); err == nil {
		l.Address = address
		return nil
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if addr, ok := raw["address"].(string); ok {
		l.Address = addr
	}

	// The record itself may be coordinate-shaped ({lat,lng} at the top
	// level) or carry any of the nested encodings under "coordinates".
	if coords, ok := geo.NormalizeCoordinates(raw); ok {
		l.Coordinates = coords
		l.HasCoordinates = true
	}
	return nil
}

// MarshalJSON writes the normalized form: address plus a flat {lat,lng}
// pair when coordinates are known.
func (l Location) MarshalJSON() ([]byte, error) {
	out := map[string]any{}
	if l.Address != "" {
		out["address"] = l.Address
	}
	if l.HasCoordinates {
		out["coordinates"] = l.Coordinates
	}
	return json.Marshal(out)
}

// Alert is the central entity: one emergency report with a lifecycle
// status, a type, and a location.
type Alert struct {
	ID          string    `json:"id"`
	Type        Type      `json:"type"`
	Status      Status    `json:"status"`
	Title       string    `json:"title,omitempty"`
	Description string    `json:"description,omitempty"`
	Notes       string    `json:"notes,omitempty"`
	Priority    string    `json:"priority,omitempty"`
	Location    Location  `json:"location"`
	Reporter    *Identity `json:"reporter,omitempty"`
	Responder   *Identity `json:"responder,omitempty"`
	CreatedAt   time.Time `json:"createdAt,omitzero"`
	ArrivedAt   time.Time `json:"arrivedAt,omitzero"`
}

// UnmarshalJSON handles the backend's loose wire format: Mongo-style _id,
// a top-level coordinates object that bypasses location, and missing
// timestamps.
func (a *Alert) UnmarshalJSON(data []byte) error {
	// Alias avoids infinite recursion back into this method.
	type Alias Alert
	aux := &struct {
		MongoID        string          `json:"_id"`
		RawCoordinates json.RawMessage `json:"coordinates"`
		*Alias
	}{
		Alias: (*Alias)(a),
	}

	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	if a.ID == "" {
		a.ID = aux.MongoID
	}

	// Some records put coordinates at the top level instead of inside
	// location; fold them in when the location itself had none.
	if !a.Location.HasCoordinates && len(aux.RawCoordinates) > 0 {
		var raw any
		if err := json.Unmarshal(aux.RawCoordinates, &raw); err == nil {
			if coords, ok := geo.NormalizeCoordinates(raw); ok {
				a.Location.Coordinates = coords
				a.Location.HasCoordinates = true
			}
		}
	}

	return nil
}

// HasResponder reports whether a responder has been assigned.
func (a *Alert) HasResponder() bool {
	return a.Responder != nil && (a.Responder.ID != "" || a.Responder.Name != "")
}

// Coordinates returns the alert's normalized coordinates and whether they
// are usable.
func (a *Alert) Coordinates() (geo.Coordinates, bool) {
	if !a.Location.HasCoordinates {
		return geo.Coordinates{}, false
	}
	return a.Location.Coordinates, true
}
