// Package session persists the small amount of client state that
// survives a reload: the last authenticated user with their bearer token,
// and the dark/light display preference. Everything else the client holds
// is rebuilt from the backend on startup.
package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

// User is the authenticated user's profile as returned by the auth API.
type User struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	AccountType   string `json:"accountType"`
	ContactNumber string `json:"contactNumber,omitempty"`
	Address       string `json:"address,omitempty"`
}

// UnmarshalJSON accepts both id and Mongo-style _id.
func (u *User) UnmarshalJSON(data []byte) error {
	type Alias User
	aux := &struct {
		MongoID string `json:"_id"`
		*Alias
	}{
		Alias: (*Alias)(u),
	}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	if u.ID == "" {
		u.ID = aux.MongoID
	}
	return nil
}

// State is the persisted session payload.
type State struct {
	User     User   `json:"user"`
	Token    string `json:"token"`
	DarkMode bool   `json:"darkMode"`
}

// Store persists session state as a JSON file. Access is synchronized so
// the token can be read by the REST client while a login updates it.
type Store struct {
	mu    sync.RWMutex
	path  string
	state State
}

// NewStore creates a session store backed by the given file path. The
// file is loaded if it exists; a missing file is an empty session, not an
// error.
func NewStore(path string) (*Store, error) {
	s := &Store{path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, errors.Wrap(err, "failed to read session file")
	}

	if err := json.Unmarshal(data, &s.state); err != nil {
		return nil, errors.Wrap(err, "failed to parse session file")
	}
	return s, nil
}

// DefaultPath returns the session file location under the user's state
// directory.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "alerto-de-pin", "session.json")
}

// Save replaces the persisted session.
func (s *Store) Save(state State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = state
	return s.flush()
}

// SetDarkMode updates only the display preference.
func (s *Store) SetDarkMode(dark bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.DarkMode = dark
	return s.flush()
}

// Clear wipes the session on logout; the display preference survives.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = State{DarkMode: s.state.DarkMode}
	return s.flush()
}

// flush writes the current state. Callers must hold the lock.
func (s *Store) flush() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return errors.Wrap(err, "failed to create session directory")
	}

	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal session state")
	}

	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return errors.Wrap(err, "failed to write session file")
	}
	return nil
}

// Current returns a copy of the session state.
func (s *Store) Current() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Token returns the persisted bearer token, empty when logged out. This
// satisfies the REST client's token provider.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Token
}

// LoggedIn reports whether a usable session exists.
func (s *Store) LoggedIn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Token != "" && s.state.User.ID != ""
}
