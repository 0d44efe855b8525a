// Package mapview projects the alert store and the presence roster onto
// a headless marker set for the UI shell: markers, selection, routes,
// and the viewport bounding box.
package mapview

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/alerto-de-pin/dashboard-client/internal/alert"
	"github.com/alerto-de-pin/dashboard-client/internal/geo"
	"github.com/alerto-de-pin/dashboard-client/internal/location"
	"github.com/alerto-de-pin/dashboard-client/internal/realtime"
)

// Marker kinds.
const (
	KindAlert = "alert"
	KindUser  = "user"
)

// DefaultVariant is the fallback when a type has no dedicated style.
const DefaultVariant = "emergency"

// alertVariants maps alert types to marker styles. Unknown types fall
// back to DefaultVariant, so the mapping is total.
var alertVariants = map[alert.Type]string{
	alert.TypePolice:   "police",
	alert.TypeHospital: "medical",
	alert.TypeFire:     "fire",
	alert.TypeFamily:   "family",
}

// userVariants maps roster user types to marker styles.
var userVariants = map[string]string{
	"police":   "responder-police",
	"hospital": "responder-medical",
	"fire":     "responder-fire",
	"citizen":  "citizen",
}

// Marker is one renderable point on the map.
type Marker struct {
	ID       string          `json:"id"`
	Kind     string          `json:"kind"`
	Variant  string          `json:"variant"`
	Label    string          `json:"label"`
	Position geo.Coordinates `json:"position"`
	Selected bool            `json:"selected"`
}

// Bounds is a lat/lng bounding box.
type Bounds struct {
	MinLat float64 `json:"minLat"`
	MinLng float64 `json:"minLng"`
	MaxLat float64 `json:"maxLat"`
	MaxLng float64 `json:"maxLng"`
}

// PresenceSource exposes the live roster. realtime.Channel satisfies it.
type PresenceSource interface {
	OnlineUsers() []realtime.OnlineUser
}

// Router plans a driving route between two points.
// location.DirectionsClient satisfies it.
type Router interface {
	DrivingRoute(ctx context.Context, origin, dest geo.Coordinates) ([]geo.Coordinates, error)
}

// Config wires a Projection to its collaborators.
type Config struct {
	Store    *alert.Store
	Presence PresenceSource
	Locator  location.Locator
	Router   Router
	Logger   *zap.Logger
}

// Projection is the headless map state for one dashboard session.
type Projection struct {
	cfg    Config
	logger *zap.Logger

	mu            sync.Mutex
	selectedKind  string
	selectedID    string
	route         []geo.Coordinates
	panning       bool
	lastBounds    Bounds
	hasLastBounds bool

	onMarkerClick func(Marker)
}

// NewProjection builds a projection over the given store and roster.
func NewProjection(cfg Config) *Projection {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Projection{cfg: cfg, logger: cfg.Logger}
}

// OnMarkerClick registers the UI callback invoked when a marker is
// clicked (after the selection has been updated).
func (p *Projection) OnMarkerClick(fn func(Marker)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onMarkerClick = fn
}

// Markers returns the current marker set: every live alert with valid
// coordinates plus every online user with a known location. Alerts
// without usable coordinates are silently excluded. Order is stable:
// alerts in store order, then users sorted by ID.
func (p *Projection) Markers() []Marker {
	p.mu.Lock()
	kind, id := p.selectedKind, p.selectedID
	p.mu.Unlock()

	var markers []Marker

	for _, a := range p.cfg.Store.All() {
		coords, ok := a.Coordinates()
		if !ok {
			continue
		}
		markers = append(markers, Marker{
			ID:       markerID(KindAlert, a.ID),
			Kind:     KindAlert,
			Variant:  alertVariant(a.Type),
			Label:    alertLabel(a),
			Position: coords,
			Selected: kind == KindAlert && id == a.ID,
		})
	}

	if p.cfg.Presence != nil {
		users := p.cfg.Presence.OnlineUsers()
		sort.Slice(users, func(i, j int) bool { return users[i].UserID < users[j].UserID })
		for _, u := range users {
			if u.Location == nil {
				continue
			}
			markers = append(markers, Marker{
				ID:       markerID(KindUser, u.UserID),
				Kind:     KindUser,
				Variant:  userVariant(u.UserType),
				Label:    u.Name,
				Position: *u.Location,
				Selected: kind == KindUser && id == u.UserID,
			})
		}
	}

	return markers
}

// SelectAlert focuses one alert. An unknown ID clears the selection.
func (p *Projection) SelectAlert(id string) {
	if _, ok := p.cfg.Store.Get(id); !ok {
		p.ClearSelection()
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.selectedKind = KindAlert
	p.selectedID = id
	p.route = nil
}

// SelectUser focuses one roster entry.
func (p *Projection) SelectUser(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.selectedKind = KindUser
	p.selectedID = id
	p.route = nil
}

// ClearSelection drops the selection and any drawn route.
func (p *Projection) ClearSelection() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.selectedKind = ""
	p.selectedID = ""
	p.route = nil
}

// DeselectAlert clears the selection only if it references the given
// alert. Used when an alert leaves the live set.
func (p *Projection) DeselectAlert(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.selectedKind == KindAlert && p.selectedID == id {
		p.selectedKind = ""
		p.selectedID = ""
		p.route = nil
	}
}

// Selected returns the current selection, if any.
func (p *Projection) Selected() (kind, id string, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.selectedKind, p.selectedID, p.selectedKind != ""
}

// HandleMarkerClick is the UI entry point for a marker click: it updates
// the selection and then invokes the registered callback.
func (p *Projection) HandleMarkerClick(id string) {
	for _, m := range p.Markers() {
		if m.ID != id {
			continue
		}
		switch m.Kind {
		case KindAlert:
			p.SelectAlert(entityID(m.ID))
		case KindUser:
			p.SelectUser(entityID(m.ID))
		}

		p.mu.Lock()
		fn := p.onMarkerClick
		p.mu.Unlock()
		if fn != nil {
			m.Selected = true
			fn(m)
		}
		return
	}
}

// ShowRoute plans a driving route from the device position to the
// selected alert. Failure (including no drivable route) leaves the
// selection intact and the route absent.
func (p *Projection) ShowRoute(ctx context.Context) error {
	p.mu.Lock()
	kind, id := p.selectedKind, p.selectedID
	p.mu.Unlock()
	if kind != KindAlert {
		return errors.New("no alert selected")
	}

	target, ok := p.cfg.Store.Get(id)
	if !ok {
		return errors.Errorf("unknown alert %q", id)
	}
	dest, ok := target.Coordinates()
	if !ok {
		return errors.Errorf("alert %q has no usable coordinates", id)
	}

	origin, err := p.cfg.Locator.Locate(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to locate device for routing")
	}

	route, err := p.cfg.Router.DrivingRoute(ctx, origin, dest)
	if err != nil {
		if errors.Is(err, location.ErrNoRoute) {
			p.logger.Info("No drivable route to alert", zap.String("alertID", id))
		}
		return errors.Wrap(err, "failed to plan route")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	// The selection may have moved while the request was in flight.
	if p.selectedKind != KindAlert || p.selectedID != id {
		return nil
	}
	p.route = route
	return nil
}

// Route returns the drawn route polyline, if any.
func (p *Projection) Route() []geo.Coordinates {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]geo.Coordinates, len(p.route))
	copy(out, p.route)
	return out
}

// ClearRoute drops the drawn route, keeping the selection.
func (p *Projection) ClearRoute() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.route = nil
}

// SetPanning flags a manual pan in progress. While set, Viewport keeps
// returning the last computed bounds.
func (p *Projection) SetPanning(panning bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.panning = panning
}

// Viewport returns the bounding box over all markers plus the given own
// location. While an entity is selected or a pan is in progress, the last
// computed bounds are returned unchanged so the view never fights the
// user's focus. ok is false when there is nothing to frame yet.
func (p *Projection) Viewport(own *geo.Coordinates) (Bounds, bool) {
	p.mu.Lock()
	frozen := p.selectedKind != "" || p.panning
	last, hasLast := p.lastBounds, p.hasLastBounds
	p.mu.Unlock()

	if frozen {
		return last, hasLast
	}

	var points []geo.Coordinates
	for _, m := range p.Markers() {
		points = append(points, m.Position)
	}
	if own != nil {
		points = append(points, *own)
	}
	if len(points) == 0 {
		return Bounds{}, false
	}

	b := Bounds{
		MinLat: points[0].Lat, MaxLat: points[0].Lat,
		MinLng: points[0].Lng, MaxLng: points[0].Lng,
	}
	for _, pt := range points[1:] {
		if pt.Lat < b.MinLat {
			b.MinLat = pt.Lat
		}
		if pt.Lat > b.MaxLat {
			b.MaxLat = pt.Lat
		}
		if pt.Lng < b.MinLng {
			b.MinLng = pt.Lng
		}
		if pt.Lng > b.MaxLng {
			b.MaxLng = pt.Lng
		}
	}

	p.mu.Lock()
	p.lastBounds = b
	p.hasLastBounds = true
	p.mu.Unlock()
	return b, true
}

// Summary describes the selected entity relative to the device position:
// straight-line distance and the ETA string.
type Summary struct {
	DistanceKm float64 `json:"distanceKm"`
	ETA        string  `json:"eta"`
}

// SelectedSummary computes distance and ETA from the device position to
// the selected entity. ok is false when nothing is selected or the
// selection has no usable coordinates.
func (p *Projection) SelectedSummary(ctx context.Context) (Summary, bool) {
	p.mu.Lock()
	kind, id := p.selectedKind, p.selectedID
	p.mu.Unlock()
	if kind == "" {
		return Summary{}, false
	}

	target, ok := p.selectedPosition(kind, id)
	if !ok {
		return Summary{}, false
	}

	own, err := p.cfg.Locator.Locate(ctx)
	if err != nil {
		p.logger.Debug("Summary unavailable without device position", zap.Error(err))
		return Summary{}, false
	}

	distance := geo.DistanceKm(own.Lat, own.Lng, target.Lat, target.Lng)
	return Summary{DistanceKm: distance, ETA: geo.ETAMinutes(distance)}, true
}

func (p *Projection) selectedPosition(kind, id string) (geo.Coordinates, bool) {
	switch kind {
	case KindAlert:
		a, ok := p.cfg.Store.Get(id)
		if !ok {
			return geo.Coordinates{}, false
		}
		return a.Coordinates()
	case KindUser:
		if p.cfg.Presence == nil {
			return geo.Coordinates{}, false
		}
		for _, u := range p.cfg.Presence.OnlineUsers() {
			if u.UserID == id && u.Location != nil {
				return *u.Location, true
			}
		}
	}
	return geo.Coordinates{}, false
}

func markerID(kind, id string) string { return fmt.Sprintf("%s:%s", kind, id) }

// entityID strips the kind prefix from a marker ID.
func entityID(markerID string) string {
	for i := 0; i < len(markerID); i++ {
		if markerID[i] == ':' {
			return markerID[i+1:]
		}
	}
	return markerID
}

func alertVariant(typ alert.Type) string {
	if v, ok := alertVariants[typ]; ok {
		return v
	}
	return DefaultVariant
}

func userVariant(userType string) string {
	if v, ok := userVariants[userType]; ok {
		return v
	}
	return DefaultVariant
}

func alertLabel(a alert.Alert) string {
	if a.Title != "" {
		return a.Title
	}
	if a.Description != "" {
		return a.Description
	}
	return string(a.Type)
}
