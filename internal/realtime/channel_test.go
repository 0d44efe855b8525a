package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/alerto-de-pin/dashboard-client/internal/alert"
	"github.com/alerto-de-pin/dashboard-client/internal/geo"
	"github.com/alerto-de-pin/dashboard-client/internal/location"
)

var upgrader = websocket.Upgrader{}

// pushServer is a fake backend push endpoint. Each connection's frames
// are recorded, and the test can push frames to the client.
type pushServer struct {
	t        *testing.T
	server   *httptest.Server
	conns    chan *websocket.Conn
	received chan Frame
}

func newPushServer(t *testing.T) *pushServer {
	ps := &pushServer{
		t:        t,
		conns:    make(chan *websocket.Conn, 4),
		received: make(chan Frame, 16),
	}

	ps.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ps.conns <- conn

		go func() {
			for {
				var frame Frame
				if err := conn.ReadJSON(&frame); err != nil {
					return
				}
				ps.received <- frame
			}
		}()
	}))

	t.Cleanup(ps.server.Close)
	return ps
}

func (ps *pushServer) url() string {
	return "ws" + strings.TrimPrefix(ps.server.URL, "http")
}

func (ps *pushServer) waitConn() *websocket.Conn {
	select {
	case conn := <-ps.conns:
		return conn
	case <-time.After(2 * time.Second):
		ps.t.Fatal("timed out waiting for websocket connection")
		return nil
	}
}

func (ps *pushServer) waitFrame() Frame {
	select {
	case frame := <-ps.received:
		return frame
	case <-time.After(2 * time.Second):
		ps.t.Fatal("timed out waiting for client frame")
		return Frame{}
	}
}

func (ps *pushServer) push(conn *websocket.Conn, event string, data any) {
	frame, err := NewFrame(event, data)
	require.NoError(ps.t, err)
	require.NoError(ps.t, conn.WriteJSON(frame))
}

func fixedLocator(coords geo.Coordinates) location.Locator {
	return location.LocatorFunc(func(ctx context.Context) (geo.Coordinates, error) {
		return coords, nil
	})
}

func failingLocator() location.Locator {
	return location.LocatorFunc(func(ctx context.Context) (geo.Coordinates, error) {
		return geo.Coordinates{}, errors.New("permission denied")
	})
}

func newTestChannel(t *testing.T, ps *pushServer, cfg Config) (*Channel, *alert.Store, *alert.NotificationFeed) {
	store := alert.NewStore()
	feed := alert.NewNotificationFeed()
	t.Cleanup(feed.Stop)

	cfg.URL = ps.url()
	cfg.Store = store
	cfg.Notifier = feed
	cfg.Logger = zap.NewNop()
	if cfg.UserID == "" {
		cfg.UserID = "u1"
	}
	if cfg.Name == "" {
		cfg.Name = "Test Responder"
	}
	if cfg.UserType == "" {
		cfg.UserType = "fire"
	}

	ch := NewChannel(cfg)
	t.Cleanup(ch.Close)
	return ch, store, feed
}

func TestChannelAnnouncesPresence(t *testing.T) {
	t.Run("with location", func(t *testing.T) {
		ps := newPushServer(t)
		ch, _, _ := newTestChannel(t, ps, Config{
			Locator: fixedLocator(geo.Coordinates{Lat: 13.62, Lng: 123.18}),
		})

		require.NoError(t, ch.Connect(context.Background()))
		ps.waitConn()

		frame := ps.waitFrame()
		assert.Equal(t, EventUserOnline, frame.Event)

		var presence Presence
		require.NoError(t, json.Unmarshal(frame.Data, &presence))
		assert.Equal(t, "u1", presence.UserID)
		assert.Equal(t, "fire", presence.UserType)
		require.NotNil(t, presence.Location)
		assert.Equal(t, 13.62, presence.Location.Lat)
	})

	t.Run("location failure does not block the connection", func(t *testing.T) {
		ps := newPushServer(t)
		ch, _, _ := newTestChannel(t, ps, Config{Locator: failingLocator()})

		require.NoError(t, ch.Connect(context.Background()))
		ps.waitConn()

		frame := ps.waitFrame()
		assert.Equal(t, EventUserOnline, frame.Event)

		var presence Presence
		require.NoError(t, json.Unmarshal(frame.Data, &presence))
		assert.Nil(t, presence.Location)
		assert.True(t, ch.Connected())
	})
}

func TestChannelNewAlert(t *testing.T) {
	ps := newPushServer(t)
	ch, store, feed := newTestChannel(t, ps, Config{
		RelevantType: alert.TypeFire,
		Locator:      fixedLocator(geo.Coordinates{Lat: 13.62, Lng: 123.18}),
	})

	require.NoError(t, ch.Connect(context.Background()))
	conn := ps.waitConn()
	ps.waitFrame() // presence

	// Relevant: fire type, non-terminal status.
	ps.push(conn, EventNewAlert, map[string]any{
		"_id": "a1", "type": "fire", "status": "pending",
		"description": "smoke in building",
		"location": map[string]any{
			"address":     "Naga",
			"coordinates": map[string]any{"type": "Point", "coordinates": []float64{123.18, 13.62}},
		},
	})
	// Irrelevant: wrong type.
	ps.push(conn, EventNewAlert, map[string]any{
		"_id": "a2", "type": "police", "status": "pending", "location": "x",
	})
	// Irrelevant: terminal status.
	ps.push(conn, EventNewAlert, map[string]any{
		"_id": "a3", "type": "fire", "status": "resolved", "location": "x",
	})

	require.Eventually(t, func() bool {
		return store.Len() == 1
	}, 2*time.Second, 10*time.Millisecond)

	got, ok := store.Get("a1")
	require.True(t, ok)
	assert.Equal(t, alert.StatusPending, got.Status)

	coords, ok := got.Coordinates()
	require.True(t, ok)
	assert.Equal(t, geo.Coordinates{Lat: 13.62, Lng: 123.18}, coords)

	require.Eventually(t, func() bool {
		return len(feed.Active()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, alert.NotifyWarning, feed.Active()[0].Type)
}

func TestChannelAlertResponded(t *testing.T) {
	ps := newPushServer(t)
	ch, store, feed := newTestChannel(t, ps, Config{
		UserID:   "reporter-1",
		UserType: "citizen",
	})

	store.Upsert(alert.Alert{
		ID:       "a1",
		Type:     alert.TypeFire,
		Status:   alert.StatusPending,
		Reporter: &alert.Identity{ID: "reporter-1"},
	})

	require.NoError(t, ch.Connect(context.Background()))
	conn := ps.waitConn()
	ps.waitFrame() // presence

	ps.push(conn, EventAlertResponded, map[string]any{
		"alert": map[string]any{
			"_id": "a1", "type": "fire", "status": "responded",
			"responder": map[string]any{"_id": "r1", "name": "Station 1"},
		},
		"message": "Station 1 is en route to your location",
	})

	require.Eventually(t, func() bool {
		got, ok := store.Get("a1")
		return ok && got.Status == alert.StatusResponded && got.HasResponder()
	}, 2*time.Second, 10*time.Millisecond)

	// Reporter retained through the partial update.
	got, _ := store.Get("a1")
	require.NotNil(t, got.Reporter)
	assert.Equal(t, "reporter-1", got.Reporter.ID)

	require.Eventually(t, func() bool {
		return len(feed.Active()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	n := feed.Active()[0]
	assert.Equal(t, alert.NotifySuccess, n.Type)
	assert.Equal(t, "Responder On The Way!", n.Title)
}

func TestChannelAlertUpdated(t *testing.T) {
	t.Run("arrival", func(t *testing.T) {
		ps := newPushServer(t)
		ch, store, feed := newTestChannel(t, ps, Config{})

		require.NoError(t, ch.Connect(context.Background()))
		conn := ps.waitConn()
		ps.waitFrame()

		ps.push(conn, EventAlertUpdated, map[string]any{
			"alert": map[string]any{
				"_id": "a1", "type": "fire", "status": "active",
				"arrivedAt": time.Now().UTC().Format(time.RFC3339),
				"responder": map[string]any{"_id": "r1", "name": "Station 1"},
			},
		})

		require.Eventually(t, func() bool {
			got, ok := store.Get("a1")
			return ok && got.Status == alert.StatusActive && !got.ArrivedAt.IsZero()
		}, 2*time.Second, 10*time.Millisecond)

		require.Eventually(t, func() bool {
			return len(feed.Active()) == 1
		}, 2*time.Second, 10*time.Millisecond)
		assert.Equal(t, "Responder Arrived!", feed.Active()[0].Title)
	})

	t.Run("resolution", func(t *testing.T) {
		ps := newPushServer(t)
		ch, store, feed := newTestChannel(t, ps, Config{})

		require.NoError(t, ch.Connect(context.Background()))
		conn := ps.waitConn()
		ps.waitFrame()

		ps.push(conn, EventAlertUpdated, map[string]any{
			"alert": map[string]any{"_id": "a1", "type": "fire", "status": "resolved"},
		})

		require.Eventually(t, func() bool {
			got, ok := store.Get("a1")
			return ok && got.Status == alert.StatusResolved
		}, 2*time.Second, 10*time.Millisecond)

		require.Eventually(t, func() bool {
			return len(feed.Active()) == 1
		}, 2*time.Second, 10*time.Millisecond)
		assert.Equal(t, "Incident Resolved", feed.Active()[0].Title)
	})
}

func TestChannelAlertCancelled(t *testing.T) {
	ps := newPushServer(t)
	ch, store, _ := newTestChannel(t, ps, Config{})

	store.Upsert(alert.Alert{ID: "a1", Type: alert.TypeFire, Status: alert.StatusPending})

	require.NoError(t, ch.Connect(context.Background()))
	conn := ps.waitConn()
	ps.waitFrame()

	ps.push(conn, EventAlertCancelled, map[string]any{
		"alert": map[string]any{"_id": "a1", "type": "fire"},
	})

	require.Eventually(t, func() bool {
		got, ok := store.Get("a1")
		return ok && got.Status == alert.StatusCancelled
	}, 2*time.Second, 10*time.Millisecond)
}

func TestChannelPresenceRoster(t *testing.T) {
	ps := newPushServer(t)
	ch, _, _ := newTestChannel(t, ps, Config{})

	require.NoError(t, ch.Connect(context.Background()))
	conn := ps.waitConn()
	ps.waitFrame()

	ps.push(conn, EventOnlineUsersUpdate, []map[string]any{
		{"userId": "u2", "name": "Officer Cruz", "userType": "police", "location": map[string]any{"lat": 13.61, "lng": 123.19}},
		{"userId": "u3", "name": "Nurse Reyes", "userType": "hospital"},
	})

	require.Eventually(t, func() bool {
		return len(ch.OnlineUsers()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	ps.push(conn, EventUserLocationUpdate, map[string]any{
		"userId":   "u3",
		"location": map[string]any{"lat": 13.64, "lng": 123.17},
	})

	require.Eventually(t, func() bool {
		for _, u := range ch.OnlineUsers() {
			if u.UserID == "u3" && u.Location != nil && u.Location.Lat == 13.64 {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}

func TestChannelLocationRepublish(t *testing.T) {
	ps := newPushServer(t)
	ch, _, _ := newTestChannel(t, ps, Config{
		Locator:          fixedLocator(geo.Coordinates{Lat: 13.62, Lng: 123.18}),
		LocationInterval: 50 * time.Millisecond,
	})

	require.NoError(t, ch.Connect(context.Background()))
	ps.waitConn()
	ps.waitFrame() // presence

	joined := ps.waitFrame()
	assert.Equal(t, EventJoinRoom, joined.Event)

	frame := ps.waitFrame()
	assert.Equal(t, EventUpdateLocation, frame.Event)

	var update LocationUpdate
	require.NoError(t, json.Unmarshal(frame.Data, &update))
	assert.Equal(t, "u1", update.UserID)
	assert.Equal(t, 13.62, update.Location.Lat)
}

func TestChannelReconnect(t *testing.T) {
	ps := newPushServer(t)
	ch, _, _ := newTestChannel(t, ps, Config{
		Locator: fixedLocator(geo.Coordinates{Lat: 13.62, Lng: 123.18}),
	})

	require.NoError(t, ch.Connect(context.Background()))
	conn := ps.waitConn()
	ps.waitFrame() // presence
	ps.waitFrame() // room join

	ps.push(conn, EventOnlineUsersUpdate, []map[string]any{
		{"userId": "u2", "name": "Officer Cruz", "userType": "police"},
	})
	require.Eventually(t, func() bool {
		return len(ch.OnlineUsers()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Server-side drop. The roster reflects a connection that no longer
	// exists, so it is cleared before the redial.
	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		return len(ch.OnlineUsers()) == 0
	}, 2*time.Second, 10*time.Millisecond)

	// The client redials and announces itself afresh.
	ps.waitConn()
	frame := ps.waitFrame()
	assert.Equal(t, EventUserOnline, frame.Event)

	var presence Presence
	require.NoError(t, json.Unmarshal(frame.Data, &presence))
	assert.Equal(t, "u1", presence.UserID)
	assert.True(t, ch.Connected())
}

func TestChannelRepublishSkippedWhileDown(t *testing.T) {
	ps := newPushServer(t)

	var locates atomic.Int64
	ch, _, _ := newTestChannel(t, ps, Config{
		Locator: location.LocatorFunc(func(context.Context) (geo.Coordinates, error) {
			locates.Add(1)
			return geo.Coordinates{Lat: 13.62, Lng: 123.18}, nil
		}),
		LocationInterval: 30 * time.Millisecond,
	})

	require.NoError(t, ch.Connect(context.Background()))
	conn := ps.waitConn()
	ps.waitFrame() // presence
	ps.waitFrame() // room join

	frame := ps.waitFrame()
	assert.Equal(t, EventUpdateLocation, frame.Event)

	// Take the backend away entirely, connection included. The websocket
	// conn is hijacked, so CloseClientConnections no longer tracks it and
	// it must be closed explicitly.
	ps.server.CloseClientConnections()
	ps.server.Close()
	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		return !ch.Connected()
	}, 2*time.Second, 10*time.Millisecond)

	// Ticks while down are silent: the locator is never even consulted.
	before := locates.Load()
	assert.Never(t, func() bool {
		return locates.Load() > before
	}, 500*time.Millisecond, 25*time.Millisecond)
	assert.False(t, ch.Connected())
}

func TestChannelTeardown(t *testing.T) {
	ps := newPushServer(t)
	ch, store, feed := newTestChannel(t, ps, Config{})

	require.NoError(t, ch.Connect(context.Background()))
	ps.waitConn()
	ps.waitFrame()

	ch.Close()
	assert.False(t, ch.Connected())
	assert.Empty(t, ch.OnlineUsers())

	// A frame racing the disconnect must not mutate anything.
	frame, err := NewFrame(EventNewAlert, map[string]any{
		"_id": "late", "type": "fire", "status": "pending", "location": "x",
	})
	require.NoError(t, err)
	ch.handleFrame(frame)

	assert.Equal(t, 0, store.Len())
	assert.Empty(t, feed.Active())

	// Close is idempotent.
	ch.Close()
}
