// Package realtime maintains the live push connection to the backend: it
// announces this client's presence, feeds server events into the alert
// store, keeps the online-user roster, and periodically republishes the
// client's own location.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/alerto-de-pin/dashboard-client/internal/alert"
	"github.com/alerto-de-pin/dashboard-client/internal/location"
)

const (
	// ReconnectAttempts bounds automatic reconnection. After exhaustion
	// the channel stays down until the owning dashboard is remounted.
	ReconnectAttempts = 5

	// ReconnectDelay is the fixed backoff between reconnect attempts.
	ReconnectDelay = 1 * time.Second

	// DefaultLocationInterval is how often the client republishes its own
	// location while connected.
	DefaultLocationInterval = 60 * time.Second
)

// Config wires a Channel to its collaborators.
type Config struct {
	// URL is the websocket endpoint of the push channel.
	URL string

	// UserID, Name, and UserType identify this client in presence
	// announcements.
	UserID   string
	Name     string
	UserType string

	// RelevantType filters new-alert pushes to one alert type. Empty
	// means all types are relevant (admin and citizen dashboards).
	RelevantType alert.Type

	// Store receives alert mutations; Notifier receives user-facing
	// messages.
	Store    *alert.Store
	Notifier alert.Notifier

	// Locator provides the device position for presence announcements and
	// periodic republish. May fail; that never blocks the connection.
	Locator location.Locator

	// LocationInterval overrides DefaultLocationInterval (tests).
	LocationInterval time.Duration

	Logger *zap.Logger
}

// Channel is one live push connection. At most one exists per mounted
// dashboard; Close must be called on unmount and guarantees no store or
// roster mutation afterward.
type Channel struct {
	cfg    Config
	logger *zap.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	closed    bool

	rosterMu sync.RWMutex
	roster   map[string]OnlineUser

	stop chan struct{}
	done sync.WaitGroup
}

// NewChannel creates a channel; Connect establishes the connection.
func NewChannel(cfg Config) *Channel {
	if cfg.LocationInterval <= 0 {
		cfg.LocationInterval = DefaultLocationInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Channel{
		cfg:    cfg,
		logger: cfg.Logger,
		roster: make(map[string]OnlineUser),
		stop:   make(chan struct{}),
	}
}

// Connect dials the push channel, announces presence, and starts the
// read and location-republish loops. The dial error is returned to the
// caller; reconnection after a later drop is automatic and bounded.
func (c *Channel) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return errors.Wrap(err, "failed to connect to push channel")
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return errors.New("channel already closed")
	}
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	c.announcePresence(ctx)

	c.done.Add(2)
	go c.readLoop()
	go c.publishLoop()

	c.logger.Info("Connected to push channel", zap.String("url", c.cfg.URL))
	return nil
}

// announcePresence emits user-online. A missing device location does not
// block the announcement; it is simply omitted.
func (c *Channel) announcePresence(ctx context.Context) {
	presence := Presence{
		UserID:   c.cfg.UserID,
		UserType: c.cfg.UserType,
		Name:     c.cfg.Name,
	}

	if c.cfg.Locator != nil {
		if coords, err := c.cfg.Locator.Locate(ctx); err == nil {
			presence.Location = &coords
		} else {
			c.logger.Warn("Announcing presence without location", zap.Error(err))
		}
	}

	if err := c.send(EventUserOnline, presence); err != nil {
		c.logger.Warn("Failed to announce presence", zap.Error(err))
	}

	// Role rooms scope server-side broadcasts to the dashboards that
	// care about them.
	if c.cfg.UserType != "" {
		if err := c.send(EventJoinRoom, roomJoin{Room: c.cfg.UserType}); err != nil {
			c.logger.Warn("Failed to join role room", zap.Error(err))
		}
	}
}

// send writes one frame to the connection if it is up.
func (c *Channel) send(event string, data any) error {
	frame, err := NewFrame(event, data)
	if err != nil {
		return errors.Wrapf(err, "failed to encode %s frame", event)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected || c.conn == nil {
		return errors.New("push channel is down")
	}
	return c.conn.WriteJSON(frame)
}

// readLoop consumes frames until the connection drops or the channel is
// closed, then runs the bounded reconnect policy.
func (c *Channel) readLoop() {
	defer c.done.Done()

	for {
		c.mu.Lock()
		conn := c.conn
		closed := c.closed
		c.mu.Unlock()
		if closed || conn == nil {
			return
		}

		var frame Frame
		if err := conn.ReadJSON(&frame); err != nil {
			if c.isClosed() {
				return
			}
			c.logger.Warn("Push channel read failed", zap.Error(err))
			if !c.reconnect() {
				return
			}
			continue
		}

		c.handleFrame(frame)
	}
}

// reconnect attempts up to ReconnectAttempts dials with a fixed delay.
// Returns false when the channel should stay down.
func (c *Channel) reconnect() bool {
	c.mu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.connected = false
	c.mu.Unlock()

	// The roster reflects a connection that no longer exists.
	c.resetRoster()

	// Close must be able to abort an in-flight handshake.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-c.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	for attempt := 1; attempt <= ReconnectAttempts; attempt++ {
		select {
		case <-c.stop:
			return false
		case <-time.After(ReconnectDelay):
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.URL, nil)
		if err != nil {
			c.logger.Warn("Reconnect attempt failed",
				zap.Int("attempt", attempt),
				zap.Int("maxAttempts", ReconnectAttempts),
				zap.Error(err))
			continue
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			_ = conn.Close()
			return false
		}
		c.conn = conn
		c.connected = true
		c.mu.Unlock()

		c.announcePresence(context.Background())
		c.logger.Info("Reconnected to push channel", zap.Int("attempt", attempt))
		return true
	}

	c.logger.Error("Push channel reconnect attempts exhausted; staying disconnected")
	return false
}

// publishLoop republishes this client's location on a fixed interval
// while connected. Failures are skipped silently: this is best-effort
// telemetry, not a guaranteed delivery channel.
func (c *Channel) publishLoop() {
	defer c.done.Done()

	ticker := time.NewTicker(c.cfg.LocationInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.publishLocation()
		}
	}
}

// publishLocation sends one update-location frame if the connection is up
// and a position is available.
func (c *Channel) publishLocation() {
	c.mu.Lock()
	up := c.connected
	c.mu.Unlock()
	if !up || c.cfg.Locator == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	coords, err := c.cfg.Locator.Locate(ctx)
	if err != nil {
		c.logger.Debug("Skipping location republish", zap.Error(err))
		return
	}

	update := LocationUpdate{UserID: c.cfg.UserID, Location: coords}
	if err := c.send(EventUpdateLocation, update); err != nil {
		c.logger.Debug("Location republish failed", zap.Error(err))
	}
}

// handleFrame dispatches one server event. Nothing is mutated once the
// channel has been closed, even if a frame raced the teardown.
func (c *Channel) handleFrame(frame Frame) {
	if c.isClosed() {
		return
	}

	switch frame.Event {
	case EventNewAlert:
		c.handleNewAlert(frame)
	case EventAlertResponded:
		c.handleAlertResponded(frame)
	case EventAlertUpdated:
		c.handleAlertUpdated(frame)
	case EventAlertCancelled:
		c.handleAlertCancelled(frame)
	case EventNewNotification:
		c.handleNewNotification(frame)
	case EventOnlineUsersUpdate:
		c.handleRosterUpdate(frame)
	case EventUserLocationUpdate:
		c.handleUserLocation(frame)
	default:
		c.logger.Debug("Ignoring unknown push event", zap.String("event", frame.Event))
	}
}

func (c *Channel) handleNewAlert(frame Frame) {
	var incoming alert.Alert
	if err := decode(frame, &incoming); err != nil {
		c.logger.Warn("Malformed new-alert event", zap.Error(err))
		return
	}

	if !c.relevant(incoming) {
		return
	}

	c.cfg.Store.Upsert(incoming)
	c.notify(alert.NotifyWarning, "New Alert", fmt.Sprintf("New %s alert: %s", incoming.Type, describeAlert(incoming)))
}

func (c *Channel) handleAlertResponded(frame Frame) {
	var event alertEvent
	if err := decode(frame, &event); err != nil {
		c.logger.Warn("Malformed alertResponded event", zap.Error(err))
		return
	}
	if event.Alert.Status == "" {
		event.Alert.Status = alert.StatusResponded
	}

	merged := c.cfg.Store.Upsert(event.Alert)

	// The success message is addressed to the reporter's session.
	if merged.Reporter != nil && merged.Reporter.ID == c.cfg.UserID {
		message := event.Message
		if message == "" {
			responder := "A responder"
			if merged.Responder != nil && merged.Responder.Name != "" {
				responder = merged.Responder.Name
			}
			message = fmt.Sprintf("%s is en route to your location", responder)
		}
		c.notify(alert.NotifySuccess, "Responder On The Way!", message)
	}
}

func (c *Channel) handleAlertUpdated(frame Frame) {
	var event alertEvent
	if err := decode(frame, &event); err != nil {
		c.logger.Warn("Malformed alertUpdated event", zap.Error(err))
		return
	}

	merged := c.cfg.Store.Upsert(event.Alert)

	title := "Alert Update"
	message := event.Message
	switch {
	case merged.Status == alert.StatusActive && !merged.ArrivedAt.IsZero():
		title = "Responder Arrived!"
		if message == "" {
			responder := "The responder"
			if merged.Responder != nil && merged.Responder.Name != "" {
				responder = merged.Responder.Name
			}
			message = fmt.Sprintf("%s has arrived at your location", responder)
		}
	case merged.Status == alert.StatusResolved:
		title = "Incident Resolved"
		if message == "" {
			message = "Your alert has been successfully resolved."
		}
	default:
		if message == "" {
			message = "Your alert has been updated"
		}
	}

	c.notify(alert.NotifyInfo, title, message)
}

func (c *Channel) handleAlertCancelled(frame Frame) {
	var event alertEvent
	if err := decode(frame, &event); err != nil {
		c.logger.Warn("Malformed alertCancelled event", zap.Error(err))
		return
	}
	event.Alert.Status = alert.StatusCancelled

	c.cfg.Store.Upsert(event.Alert)

	message := event.Message
	if message == "" {
		message = "Alert status updated"
	}
	c.notify(alert.NotifyInfo, "Alert Update", message)
}

func (c *Channel) handleNewNotification(frame Frame) {
	var push pushNotification
	if err := decode(frame, &push); err != nil {
		c.logger.Warn("Malformed newNotification event", zap.Error(err))
		return
	}

	var typ alert.NotificationType
	switch push.Type {
	case "alert_responded":
		typ = alert.NotifySuccess
	case "alert_resolved":
		typ = alert.NotifyInfo
	case "alert":
		typ = alert.NotifyWarning
	default:
		typ = alert.NotifyInfo
	}

	title := push.Title
	if title == "" {
		title = "Notification"
	}
	message := push.Message
	if message == "" {
		message = "You have a new notification."
	}
	c.notify(typ, title, message)
}

func (c *Channel) handleRosterUpdate(frame Frame) {
	var users []OnlineUser
	if err := decode(frame, &users); err != nil {
		c.logger.Warn("Malformed online-users-update event", zap.Error(err))
		return
	}

	c.rosterMu.Lock()
	defer c.rosterMu.Unlock()
	c.roster = make(map[string]OnlineUser, len(users))
	for _, u := range users {
		if u.UserID == "" {
			continue
		}
		c.roster[u.UserID] = u
	}
}

func (c *Channel) handleUserLocation(frame Frame) {
	var update LocationUpdate
	if err := decode(frame, &update); err != nil {
		c.logger.Warn("Malformed user-location-update event", zap.Error(err))
		return
	}

	c.rosterMu.Lock()
	defer c.rosterMu.Unlock()
	u, exists := c.roster[update.UserID]
	if !exists {
		return
	}
	loc := update.Location
	u.Location = &loc
	u.LastUpdate = time.Now()
	c.roster[update.UserID] = u
}

// relevant applies the dashboard's relevance filter: matching type (when
// one is configured) and a non-terminal status.
func (c *Channel) relevant(a alert.Alert) bool {
	if a.Status.IsTerminal() {
		return false
	}
	if c.cfg.RelevantType != "" && a.Type != c.cfg.RelevantType {
		return false
	}
	return true
}

// notify forwards to the feed unless the channel was torn down.
func (c *Channel) notify(typ alert.NotificationType, title, message string) {
	if c.isClosed() || c.cfg.Notifier == nil {
		return
	}
	c.cfg.Notifier.Notify(typ, title, message)
}

// OnlineUsers returns a snapshot of the presence roster.
func (c *Channel) OnlineUsers() []OnlineUser {
	c.rosterMu.RLock()
	defer c.rosterMu.RUnlock()

	out := make([]OnlineUser, 0, len(c.roster))
	for _, u := range c.roster {
		out = append(out, u)
	}
	return out
}

// Connected reports whether the channel currently has a live connection.
func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// resetRoster clears the presence set.
func (c *Channel) resetRoster() {
	c.rosterMu.Lock()
	defer c.rosterMu.Unlock()
	c.roster = make(map[string]OnlineUser)
}

// isClosed reports whether Close has been called.
func (c *Channel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close tears the channel down: stops the loops, closes the connection,
// and guarantees no further store or roster mutation. Idempotent.
func (c *Channel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.connected = false
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	close(c.stop)
	if conn != nil {
		_ = conn.Close()
	}
	c.done.Wait()
	c.resetRoster()

	c.logger.Info("Push channel closed")
}

// decode unpacks a frame's data payload.
func decode(frame Frame, out any) error {
	if len(frame.Data) == 0 {
		return errors.Errorf("%s event has no payload", frame.Event)
	}
	return json.Unmarshal(frame.Data, out)
}

// describeAlert picks the most useful human-readable line for a
// notification.
func describeAlert(a alert.Alert) string {
	if a.Description != "" {
		return a.Description
	}
	if a.Title != "" {
		return a.Title
	}
	return "Emergency"
}
