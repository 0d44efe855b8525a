// Package lifecycle drives alert state transitions. The server is
// authoritative: every transition is a REST round trip, and local state
// only moves when the server confirms it (Respond being the one
// optimistic exception, with an explicit revert path).
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/alerto-de-pin/dashboard-client/internal/alert"
	"github.com/alerto-de-pin/dashboard-client/internal/api"
	"github.com/alerto-de-pin/dashboard-client/internal/geo"
	"github.com/alerto-de-pin/dashboard-client/internal/location"
)

// Backend is the slice of the REST client the controller needs.
// *api.Client satisfies it; tests substitute a fake.
type Backend interface {
	ListAlerts(ctx context.Context, filters map[string]string) ([]alert.Alert, error)
	GetAlert(ctx context.Context, id string) (*alert.Alert, error)
	CreateAlert(ctx context.Context, draft api.AlertDraft) (*alert.Alert, error)
	UpdateAlert(ctx context.Context, id string, patch api.AlertPatch) (*alert.Alert, error)
	RespondAlert(ctx context.Context, id string) (*alert.Alert, error)
	ResolveAlert(ctx context.Context, id, notes string) (*alert.Alert, error)
	CancelAlert(ctx context.Context, id string) (*alert.Alert, error)
	UpdateLocation(ctx context.Context, lat, lng float64) error
}

// Geocoder resolves coordinates to a human-readable address.
// location.ReverseGeocoder satisfies it.
type Geocoder interface {
	Address(ctx context.Context, coords geo.Coordinates) (string, error)
}

// Confirmer asks the user to confirm a destructive action before it is
// dispatched. Returning false aborts the action without error.
type Confirmer interface {
	Confirm(prompt string) bool
}

// ConfirmerFunc adapts a function to the Confirmer interface.
type ConfirmerFunc func(prompt string) bool

// Confirm asks for confirmation by calling f.
func (f ConfirmerFunc) Confirm(prompt string) bool { return f(prompt) }

// Draft is the user's input for a new alert.
type Draft struct {
	Type        alert.Type
	Title       string
	Description string
	Notes       string
}

// Config wires a Controller to its collaborators.
type Config struct {
	Backend  Backend
	Store    *alert.Store
	Notifier alert.Notifier

	// Locator provides the reporter's position for alert creation. It
	// should already embed the device-then-IP fallback chain.
	Locator location.Locator

	// Geocoder is best-effort: when it fails, FallbackAddress (the
	// user's profile address) stands in.
	Geocoder        Geocoder
	FallbackAddress string

	// Confirmer gates Cancel. Nil means cancel proceeds unprompted.
	Confirmer Confirmer

	// SelfID and SelfName identify this session for optimistic
	// responder records and relevance.
	SelfID   string
	SelfName string

	// RelevantType restricts Refresh to one alert type. Empty fetches
	// all types.
	RelevantType alert.Type

	Logger *zap.Logger
}

// Controller owns the alert lifecycle for one dashboard session.
type Controller struct {
	cfg    Config
	logger *zap.Logger

	// onResolved, when set, clears any map selection referencing the
	// resolved alert.
	onResolved func(alertID string)
}

// NewController builds a controller. Backend, Store, and Notifier are
// required.
func NewController(cfg Config) *Controller {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Controller{cfg: cfg, logger: cfg.Logger}
}

// OnResolved registers a hook invoked after an alert is resolved, before
// the success notification. Used to drop stale map selections.
func (c *Controller) OnResolved(fn func(alertID string)) {
	c.onResolved = fn
}

// Create files a new alert at the reporter's current position. The
// description is validated before any I/O; a location failure aborts with
// an error notification and no partial state.
func (c *Controller) Create(ctx context.Context, draft Draft) (*alert.Alert, error) {
	if draft.Description == "" {
		c.notify(alert.NotifyError, "Alert Not Sent", "Please describe the emergency before sending an alert.")
		return nil, errors.New("alert description is required")
	}
	if draft.Type == "" {
		c.notify(alert.NotifyError, "Alert Not Sent", "Please choose an emergency type.")
		return nil, errors.New("alert type is required")
	}

	coords, err := c.cfg.Locator.Locate(ctx)
	if err != nil {
		c.notify(alert.NotifyError, "Location Unavailable", "Unable to determine your location. Please enable location access and try again.")
		return nil, errors.Wrap(err, "failed to locate reporter")
	}

	address := c.resolveAddress(ctx, coords)

	if err := c.cfg.Backend.UpdateLocation(ctx, coords.Lat, coords.Lng); err != nil {
		c.notify(alert.NotifyError, "Alert Not Sent", "Failed to share your location with responders.")
		return nil, errors.Wrap(err, "failed to update reporter location")
	}

	created, err := c.cfg.Backend.CreateAlert(ctx, api.AlertDraft{
		Title:       draft.Title,
		Description: draft.Description,
		Type:        draft.Type,
		Priority:    "high",
		Notes:       draft.Notes,
		Location: api.LocationPayload{
			Coordinates: api.NewGeoJSONPoint(coords.Lat, coords.Lng),
			Address:     address,
		},
	})
	if err != nil {
		c.notify(alert.NotifyError, "Alert Not Sent", err.Error())
		return nil, errors.Wrap(err, "failed to create alert")
	}

	if err := c.Refresh(ctx); err != nil {
		// The alert exists server-side; keep at least the created record.
		c.cfg.Store.Upsert(*created)
		c.logger.Warn("Refresh after alert creation failed", zap.Error(err))
	}

	c.notify(alert.NotifySuccess, "Alert Sent", fmt.Sprintf("Your %s alert has been sent. Help is on the way.", created.Type))
	c.logger.Info("Alert created", zap.String("alertID", created.ID), zap.String("type", string(created.Type)))
	return created, nil
}

// resolveAddress reverse-geocodes best-effort, falling back to the
// profile address, then to a coordinate string.
func (c *Controller) resolveAddress(ctx context.Context, coords geo.Coordinates) string {
	if c.cfg.Geocoder != nil {
		if address, err := c.cfg.Geocoder.Address(ctx, coords); err == nil && address != "" {
			return address
		} else if err != nil {
			c.logger.Warn("Reverse geocoding failed", zap.Error(err))
		}
	}
	if c.cfg.FallbackAddress != "" {
		return c.cfg.FallbackAddress
	}
	return coords.String()
}

// Respond accepts a pending alert on behalf of this responder. The local
// record moves optimistically; a server rejection reverts it to server
// truth (or to the prior local copy when even the re-fetch fails).
func (c *Controller) Respond(ctx context.Context, id string) error {
	current, ok := c.cfg.Store.Get(id)
	if !ok {
		return errors.Errorf("unknown alert %q", id)
	}
	if err := c.checkTransition(current, alert.StatusPending, "respond to"); err != nil {
		return err
	}

	c.cfg.Store.Upsert(alert.Alert{
		ID:        id,
		Status:    alert.StatusResponded,
		Responder: &alert.Identity{ID: c.cfg.SelfID, Name: c.cfg.SelfName},
	})

	confirmed, err := c.cfg.Backend.RespondAlert(ctx, id)
	if err != nil {
		c.revert(ctx, id, current)
		c.notify(alert.NotifyError, "Response Failed", err.Error())
		return errors.Wrap(err, "failed to respond to alert")
	}

	c.cfg.Store.Upsert(*confirmed)
	c.notify(alert.NotifySuccess, "Response Confirmed", "You are now responding. Follow the drawn route to the incident.")
	c.logger.Info("Responding to alert", zap.String("alertID", id))
	return nil
}

// revert restores server truth after a failed optimistic update.
func (c *Controller) revert(ctx context.Context, id string, prior alert.Alert) {
	if truth, err := c.cfg.Backend.GetAlert(ctx, id); err == nil {
		c.cfg.Store.Replace(*truth)
		return
	}
	c.cfg.Store.Replace(prior)
}

// MarkArrived records arrival at the incident. Server first: the store is
// only touched after the update round trip succeeds.
func (c *Controller) MarkArrived(ctx context.Context, id string) error {
	current, ok := c.cfg.Store.Get(id)
	if !ok {
		return errors.Errorf("unknown alert %q", id)
	}
	if err := c.checkTransition(current, alert.StatusResponded, "mark arrival on"); err != nil {
		return err
	}

	updated, err := c.cfg.Backend.UpdateAlert(ctx, id, api.AlertPatch{
		Status:    alert.StatusActive,
		ArrivedAt: time.Now().UTC(),
	})
	if err != nil {
		c.notify(alert.NotifyError, "Update Failed", err.Error())
		return errors.Wrap(err, "failed to mark arrival")
	}

	c.cfg.Store.Upsert(*updated)
	c.logger.Info("Marked arrival", zap.String("alertID", id))
	return nil
}

// Resolve closes out an active alert with optional resolution notes.
func (c *Controller) Resolve(ctx context.Context, id, notes string) error {
	current, ok := c.cfg.Store.Get(id)
	if !ok {
		return errors.Errorf("unknown alert %q", id)
	}
	if err := c.checkTransition(current, alert.StatusActive, "resolve"); err != nil {
		return err
	}

	resolved, err := c.cfg.Backend.ResolveAlert(ctx, id, notes)
	if err != nil {
		c.notify(alert.NotifyError, "Resolve Failed", err.Error())
		return errors.Wrap(err, "failed to resolve alert")
	}

	c.cfg.Store.Upsert(*resolved)
	if c.onResolved != nil {
		c.onResolved(id)
	}
	c.notify(alert.NotifySuccess, "Incident Resolved", "The incident has been marked as resolved.")
	c.logger.Info("Resolved alert", zap.String("alertID", id))
	return nil
}

// Cancel withdraws a pending alert. Once a responder has accepted, the
// alert can no longer be cancelled. The injected Confirmer gates the
// dispatch; declining is a silent no-op.
func (c *Controller) Cancel(ctx context.Context, id string) error {
	current, ok := c.cfg.Store.Get(id)
	if !ok {
		return errors.Errorf("unknown alert %q", id)
	}
	if err := c.checkTransition(current, alert.StatusPending, "cancel"); err != nil {
		return err
	}

	if c.cfg.Confirmer != nil && !c.cfg.Confirmer.Confirm("Cancel this alert? Responders will be notified.") {
		return nil
	}

	cancelled, err := c.cfg.Backend.CancelAlert(ctx, id)
	if err != nil {
		c.notify(alert.NotifyError, "Cancel Failed", err.Error())
		return errors.Wrap(err, "failed to cancel alert")
	}

	c.cfg.Store.Upsert(*cancelled)
	c.notify(alert.NotifyInfo, "Alert Cancelled", "Your alert has been cancelled.")
	c.logger.Info("Cancelled alert", zap.String("alertID", id))
	return nil
}

// Refresh replaces the working set with a full fetch, scoped to the
// dashboard's relevant type when one is configured.
func (c *Controller) Refresh(ctx context.Context) error {
	filters := map[string]string{}
	if c.cfg.RelevantType != "" {
		filters["type"] = string(c.cfg.RelevantType)
	}

	alerts, err := c.cfg.Backend.ListAlerts(ctx, filters)
	if err != nil {
		return errors.Wrap(err, "failed to refresh alerts")
	}

	c.cfg.Store.SetAll(alerts)
	return nil
}

// checkTransition rejects invalid transitions locally, before any network
// call. Terminal states get a dedicated message.
func (c *Controller) checkTransition(current alert.Alert, want alert.Status, verb string) error {
	if current.Status == want {
		return nil
	}
	if current.Status.IsTerminal() {
		c.notify(alert.NotifyError, "Alert Closed", fmt.Sprintf("This alert is already %s.", current.Status))
		return errors.Errorf("cannot %s alert %q: already %s", verb, current.ID, current.Status)
	}
	c.notify(alert.NotifyError, "Action Not Allowed", fmt.Sprintf("Cannot %s an alert that is %s.", verb, current.Status))
	return errors.Errorf("cannot %s alert %q in status %s", verb, current.ID, current.Status)
}

// notify forwards to the feed when one is wired.
func (c *Controller) notify(typ alert.NotificationType, title, message string) {
	if c.cfg.Notifier == nil {
		return
	}
	c.cfg.Notifier.Notify(typ, title, message)
}
