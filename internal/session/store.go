// Package session keeps one search controller per open list view. State
// lives only in memory and disappears when the view is closed or idles out.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/neexbeast/city-weather/internal/search"
)

// ErrNotFound is returned for unknown or expired session IDs.
var ErrNotFound = errors.New("session not found")

// Factory builds a fresh, unstarted controller.
type Factory func() *search.Controller

type entry struct {
	ctrl     *search.Controller
	lastSeen time.Time
}

// Store is a concurrency-safe registry of live controllers keyed by ID.
type Store struct {
	newController Factory
	idleTTL       time.Duration
	now           func() time.Time
	log           *slog.Logger

	mu       sync.Mutex
	sessions map[string]*entry
}

// NewStore constructs a Store. Sessions untouched for idleTTL are reaped.
func NewStore(factory Factory, idleTTL time.Duration, log *slog.Logger) *Store {
	return &Store{
		newController: factory,
		idleTTL:       idleTTL,
		now:           time.Now,
		log:           log,
		sessions:      make(map[string]*entry),
	}
}

// Create mounts a new controller and returns its ID.
func (s *Store) Create() (string, *search.Controller) {
	id := uuid.NewString()
	ctrl := s.newController()
	ctrl.Start()

	s.mu.Lock()
	s.sessions[id] = &entry{ctrl: ctrl, lastSeen: s.now()}
	s.mu.Unlock()

	s.log.Info("session created", "session", id)
	return id, ctrl
}

// Get returns the controller for id and marks the session as active.
func (s *Store) Get(id string) (*search.Controller, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	e.lastSeen = s.now()
	return e.ctrl, nil
}

// Delete unmounts and forgets the session.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	e, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if !ok {
		return ErrNotFound
	}
	e.ctrl.Close()
	s.log.Info("session closed", "session", id)
	return nil
}

// Len reports the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Reap closes sessions idle for longer than the TTL and returns how many.
func (s *Store) Reap() int {
	cutoff := s.now().Add(-s.idleTTL)

	s.mu.Lock()
	var expired []*entry
	for id, e := range s.sessions {
		if e.lastSeen.Before(cutoff) {
			expired = append(expired, e)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, e := range expired {
		e.ctrl.Close()
	}
	return len(expired)
}

// Run reaps idle sessions every interval until ctx is done, then closes
// everything that is left.
func (s *Store) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.closeAll()
			return nil
		case <-ticker.C:
			if n := s.Reap(); n > 0 {
				s.log.Info("reaped idle sessions", "count", n)
			}
		}
	}
}

func (s *Store) closeAll() {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*entry)
	s.mu.Unlock()

	for _, e := range sessions {
		e.ctrl.Close()
	}
}
