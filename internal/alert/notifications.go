package alert

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// NotificationTTL is how long a notification stays visible before it
	// auto-expires.
	NotificationTTL = 5 * time.Second

	// notificationSweepInterval is how often the janitor checks for
	// expired notifications.
	notificationSweepInterval = 1 * time.Second
)

// NotificationType classifies a notification for display.
type NotificationType string

const (
	NotifySuccess NotificationType = "success"
	NotifyError   NotificationType = "error"
	NotifyWarning NotificationType = "warning"
	NotifyInfo    NotificationType = "info"
)

// Notification is a local, ephemeral message shown to the user. It is
// never persisted and never sent to the backend.
type Notification struct {
	ID        string           `json:"id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Timestamp time.Time        `json:"timestamp"`
}

// Notifier is the narrow interface components use to surface messages.
type Notifier interface {
	Notify(typ NotificationType, title, message string)
}

// NotificationFeed is a newest-first queue of notifications with
// auto-expiry. A janitor goroutine sweeps out entries older than
// NotificationTTL; Stop must be called on teardown.
type NotificationFeed struct {
	mu        sync.RWMutex
	items     []Notification
	stopSweep chan struct{}
	sweepDone chan struct{}
}

// NewNotificationFeed creates a feed and starts its expiry janitor.
func NewNotificationFeed() *NotificationFeed {
	f := &NotificationFeed{
		stopSweep: make(chan struct{}),
		sweepDone: make(chan struct{}),
	}

	go f.sweepLoop()

	return f
}

// Notify pushes a new notification onto the front of the feed.
func (f *NotificationFeed) Notify(typ NotificationType, title, message string) {
	n := Notification{
		ID:        uuid.NewString(),
		Type:      typ,
		Title:     title,
		Message:   message,
		Timestamp: time.Now(),
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append([]Notification{n}, f.items...)
}

// Dismiss removes a notification by ID before its TTL elapses.
func (f *NotificationFeed) Dismiss(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i, n := range f.items {
		if n.ID == id {
			f.items = append(f.items[:i], f.items[i+1:]...)
			return
		}
	}
}

// Clear drops all notifications.
func (f *NotificationFeed) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = nil
}

// Active returns the visible notifications, newest first.
func (f *NotificationFeed) Active() []Notification {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]Notification, len(f.items))
	copy(out, f.items)
	return out
}

// sweepLoop periodically expires old notifications until Stop is called.
func (f *NotificationFeed) sweepLoop() {
	ticker := time.NewTicker(notificationSweepInterval)
	defer ticker.Stop()
	defer close(f.sweepDone)

	for {
		select {
		case <-ticker.C:
			f.sweep(time.Now())
		case <-f.stopSweep:
			return
		}
	}
}

// sweep drops entries older than NotificationTTL relative to now.
func (f *NotificationFeed) sweep(now time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()

	kept := f.items[:0]
	for _, n := range f.items {
		if now.Sub(n.Timestamp) <= NotificationTTL {
			kept = append(kept, n)
		}
	}
	f.items = kept
}

// Stop stops the janitor and waits for it to finish.
func (f *NotificationFeed) Stop() {
	close(f.stopSweep)
	<-f.sweepDone
}
