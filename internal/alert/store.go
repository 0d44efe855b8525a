package alert

import (
	"sort"
	"sync"
)

// FilterAll is the sentinel accepted by the status and type filters to
// mean "no filtering".
const FilterAll = "all"

// Store holds the working set of alerts for one dashboard session. It is
// the single source of truth: the realtime channel and the lifecycle
// controller both mutate it through this API and never keep their own
// copies. REST responses and websocket frames arrive on different
// goroutines, so all access is lock-guarded.
type Store struct {
	mu     sync.RWMutex
	order  []string
	alerts map[string]Alert
}

// NewStore creates an empty alert store.
func NewStore() *Store {
	return &Store{
		alerts: make(map[string]Alert),
	}
}

// SetAll replaces the full working set, preserving input order. Used after
// a full fetch.
func (s *Store) SetAll(alerts []Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.order = s.order[:0]
	s.alerts = make(map[string]Alert, len(alerts))
	for _, a := range alerts {
		if a.ID == "" {
			continue
		}
		if _, seen := s.alerts[a.ID]; !seen {
			s.order = append(s.order, a.ID)
		}
		s.alerts[a.ID] = a
	}
}

// Upsert inserts the alert if its ID is unseen, otherwise merges the
// incoming fields into the stored record. Partial server updates must not
// drop fields the client already has: zero-valued incoming fields leave
// the stored values untouched. Returns the stored result.
func (s *Store) Upsert(incoming Alert) Alert {
	if incoming.ID == "" {
		return incoming
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.alerts[incoming.ID]
	if !exists {
		s.order = append(s.order, incoming.ID)
		s.alerts[incoming.ID] = incoming
		return incoming
	}

	merged := merge(current, incoming)
	s.alerts[incoming.ID] = merged
	return merged
}

// merge overlays incoming onto current, field by field. Incoming wins
// whenever it carries a value; absent fields keep what the client knows.
func merge(current, incoming Alert) Alert {
	out := current

	if incoming.Type != "" {
		out.Type = incoming.Type
	}
	if incoming.Status != "" {
		out.Status = incoming.Status
	}
	if incoming.Title != "" {
		out.Title = incoming.Title
	}
	if incoming.Description != "" {
		out.Description = incoming.Description
	}
	if incoming.Notes != "" {
		out.Notes = incoming.Notes
	}
	if incoming.Priority != "" {
		out.Priority = incoming.Priority
	}
	if incoming.Location.Address != "" {
		out.Location.Address = incoming.Location.Address
	}
	if incoming.Location.HasCoordinates {
		out.Location.Coordinates = incoming.Location.Coordinates
		out.Location.HasCoordinates = true
	}
	if incoming.Reporter != nil {
		out.Reporter = incoming.Reporter
	}
	if incoming.Responder != nil {
		out.Responder = incoming.Responder
	}
	if !incoming.CreatedAt.IsZero() {
		out.CreatedAt = incoming.CreatedAt
	}
	if !incoming.ArrivedAt.IsZero() {
		out.ArrivedAt = incoming.ArrivedAt
	}

	return out
}

// Replace overwrites the stored record wholesale, keeping its position.
// This is the revert path when server truth must displace an optimistic
// local mutation; Upsert's merge would let the optimistic fields survive.
func (s *Store) Replace(a Alert) {
	if a.ID == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.alerts[a.ID]; !exists {
		s.order = append(s.order, a.ID)
	}
	s.alerts[a.ID] = a
}

// RemoveByID deletes an alert from the working set. Removing an unknown
// ID is a no-op.
func (s *Store) RemoveByID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.alerts[id]; !exists {
		return
	}
	delete(s.alerts, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Get returns the stored alert for an ID.
func (s *Store) Get(id string) (Alert, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.alerts[id]
	return a, ok
}

// Len returns the number of alerts in the working set.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.alerts)
}

// All returns a copy of the working set in insertion order.
func (s *Store) All() []Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Alert, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.alerts[id])
	}
	return out
}

// Snapshot returns a copy of the working set sorted newest-first by
// CreatedAt, the order dashboards display.
func (s *Store) Snapshot() []Alert {
	out := s.All()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// FilterByStatus returns a non-mutating view of alerts with the given
// status; FilterAll returns everything.
func (s *Store) FilterByStatus(status string) []Alert {
	all := s.All()
	if status == FilterAll {
		return all
	}
	out := make([]Alert, 0, len(all))
	for _, a := range all {
		if string(a.Status) == status {
			out = append(out, a)
		}
	}
	return out
}

// FilterByType returns a non-mutating view of alerts with the given type;
// FilterAll returns everything.
func (s *Store) FilterByType(typ string) []Alert {
	all := s.All()
	if typ == FilterAll {
		return all
	}
	out := make([]Alert, 0, len(all))
	for _, a := range all {
		if string(a.Type) == typ {
			out = append(out, a)
		}
	}
	return out
}

// CountsByStatus returns per-status counts plus a synthetic "all" total.
func (s *Store) CountsByStatus() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := map[string]int{FilterAll: len(s.alerts)}
	for _, a := range s.alerts {
		counts[string(a.Status)]++
	}
	return counts
}
