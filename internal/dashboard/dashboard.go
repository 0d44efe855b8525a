// Package dashboard assembles the per-role client core: the alert store,
// the push channel, the lifecycle controller, and the map projection,
// plus the local HTTP surface the UI shell talks to.
package dashboard

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/alerto-de-pin/dashboard-client/internal/alert"
	"github.com/alerto-de-pin/dashboard-client/internal/lifecycle"
	"github.com/alerto-de-pin/dashboard-client/internal/mapview"
	"github.com/alerto-de-pin/dashboard-client/internal/realtime"
)

// DefaultRefreshInterval is the periodic REST refresh cadence that runs
// alongside the push channel.
const DefaultRefreshInterval = 30 * time.Second

// PushChannel is the slice of the realtime channel the dashboard drives.
// realtime.Channel satisfies it; tests substitute a fake.
type PushChannel interface {
	Connect(ctx context.Context) error
	OnlineUsers() []realtime.OnlineUser
	Connected() bool
	Close()
}

// Config wires a Dashboard to its collaborators.
type Config struct {
	// Role is one of citizen, police, hospital, fire, admin.
	Role string

	Store      *alert.Store
	Feed       *alert.NotificationFeed
	Controller *lifecycle.Controller
	Channel    PushChannel
	Projection *mapview.Projection

	RefreshInterval time.Duration

	Logger *zap.Logger
}

// Dashboard is one running client session. Run starts the channel and
// the refresh loop; Close tears both down.
type Dashboard struct {
	cfg    Config
	logger *zap.Logger

	mu     sync.Mutex
	closed bool

	stop chan struct{}
	done sync.WaitGroup
}

// New builds a dashboard. Store, Controller, and Feed are required.
func New(cfg Config) *Dashboard {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = DefaultRefreshInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Dashboard{
		cfg:    cfg,
		logger: cfg.Logger,
		stop:   make(chan struct{}),
	}
}

// Run connects the push channel, performs the initial fetch, and starts
// the periodic refresh. A channel failure degrades to poll-only rather
// than failing the dashboard.
func (d *Dashboard) Run(ctx context.Context) error {
	if d.cfg.Channel != nil {
		if err := d.cfg.Channel.Connect(ctx); err != nil {
			d.logger.Warn("Push channel unavailable, polling only", zap.Error(err))
		}
	}

	if err := d.cfg.Controller.Refresh(ctx); err != nil {
		d.logger.Warn("Initial alert fetch failed", zap.Error(err))
	}

	d.done.Add(1)
	go d.refreshLoop(ctx)

	d.logger.Info("Dashboard running", zap.String("role", d.cfg.Role))
	return nil
}

// refreshLoop re-fetches the working set on a fixed cadence until the
// dashboard is closed or the context ends.
func (d *Dashboard) refreshLoop(ctx context.Context) {
	defer d.done.Done()

	ticker := time.NewTicker(d.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.cfg.Controller.Refresh(ctx); err != nil {
				d.logger.Warn("Periodic refresh failed", zap.Error(err))
			}
		}
	}
}

// Stats is the role dashboard's headline counters.
type Stats struct {
	ActiveIncidents int `json:"activeIncidents"`
	PendingResponse int `json:"pendingResponse"`
	OnlineUsers     int `json:"onlineUsers"`
}

// Stats computes the headline counters from the store and the roster.
func (d *Dashboard) Stats() Stats {
	counts := d.cfg.Store.CountsByStatus()

	online := 0
	if d.cfg.Channel != nil {
		online = len(d.cfg.Channel.OnlineUsers())
	}

	return Stats{
		ActiveIncidents: counts[string(alert.StatusActive)] + counts[string(alert.StatusResponded)],
		PendingResponse: counts[string(alert.StatusPending)],
		OnlineUsers:     online,
	}
}

// Close tears the dashboard down: refresh loop first, then the channel
// and the notification feed. Idempotent.
func (d *Dashboard) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	close(d.stop)
	d.done.Wait()

	if d.cfg.Channel != nil {
		d.cfg.Channel.Close()
	}
	if d.cfg.Feed != nil {
		d.cfg.Feed.Stop()
	}

	d.logger.Info("Dashboard closed")
}
