// Package state holds the cross-page session context: the bearer token,
// the signed-in user profile, and the one-shot "add to map on next load"
// handoff record. It replaces ambient key-value browser storage with a
// typed accessor interface.
package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

// User is the signed-in user profile.
type User struct {
	ID       int64  `json:"id"`
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

// PendingAdd is a one-shot handoff record: a layer to add to the map on the
// next session start. A second write before consumption overwrites the first.
type PendingAdd struct {
	Name    string `json:"name"`
	Slug    string `json:"slug"`
	MinZoom int    `json:"minzoom"`
	MaxZoom int    `json:"maxzoom"`
}

type fileData struct {
	Token      string      `json:"token,omitempty"`
	User       *User       `json:"user,omitempty"`
	PendingAdd *PendingAdd `json:"addToMap,omitempty"`
}

// Store persists the session context as a single JSON file.
type Store struct {
	path string
	mu   sync.Mutex
	data fileData
}

// NewStore creates a store backed by dataDir/session.json. A missing or
// corrupt file starts the store empty.
func NewStore(dataDir string) *Store {
	s := &Store{path: filepath.Join(dataDir, "session.json")}
	s.loadFromDisk()
	return s
}

// Token returns the bearer token, or "" when signed out.
func (s *Store) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.Token
}

// SetToken stores the bearer token.
func (s *Store) SetToken(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Token = token
	return s.saveToDisk()
}

// User returns a copy of the stored user profile, or nil.
func (s *Store) User() *User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data.User == nil {
		return nil
	}
	u := *s.data.User
	return &u
}

// SetUser stores the user profile.
func (s *Store) SetUser(u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u == nil {
		s.data.User = nil
	} else {
		copied := *u
		s.data.User = &copied
	}
	return s.saveToDisk()
}

// SetPendingAdd records the handoff layer. Last write wins.
func (s *Store) SetPendingAdd(p PendingAdd) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.PendingAdd = &p
	return s.saveToDisk()
}

// TakePendingAdd returns the handoff record and clears it, or nil when none
// is pending. The record is consumed even if the caller ignores it.
func (s *Store) TakePendingAdd() *PendingAdd {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.data.PendingAdd
	if p == nil {
		return nil
	}
	s.data.PendingAdd = nil
	_ = s.saveToDisk()
	return p
}

// Clear wipes the whole session context (sign-out).
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = fileData{}
	return s.saveToDisk()
}

func (s *Store) loadFromDisk() {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return // File doesn't exist yet, start empty
	}

	var data fileData
	if err := json.Unmarshal(raw, &data); err != nil {
		return // Invalid JSON, start empty
	}

	s.data = data
}

func (s *Store) saveToDisk() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}

	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(s.path, raw, 0644)
}
