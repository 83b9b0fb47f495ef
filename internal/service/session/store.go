// Package session owns the per-user conversational state table. All
// turns for one user are serialized through the entry lock returned by
// Acquire; turns for different users never contend with each other.
package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	sessionModel "github.com/ewanfisher/voxmail/backend/internal/model/session"
)

var ErrUserRequired = errors.New("user id is required")

// DefaultIdleTimeout applies when configuration does not set one.
const DefaultIdleTimeout = 30 * time.Minute

// Store is the keyed session table: user id to session, each entry
// guarded by its own mutex.
type Store struct {
	mu          sync.Mutex
	entries     map[string]*entry
	accounts    []string
	idleTimeout time.Duration
}

type entry struct {
	mu      sync.Mutex
	session *sessionModel.Session
}

// NewStore bootstraps an empty store. accounts is the fixed set of
// configured account identifiers every new session starts with.
func NewStore(accounts []string, idleTimeout time.Duration) *Store {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	return &Store{
		entries:     make(map[string]*entry),
		accounts:    append([]string(nil), accounts...),
		idleTimeout: idleTimeout,
	}
}

// Acquire returns the user's session with its lock held, creating the
// session on first contact. The caller must invoke release on every
// exit path.
func (s *Store) Acquire(userID string) (*sessionModel.Session, func(), error) {
	if userID == "" {
		return nil, nil, ErrUserRequired
	}

	s.mu.Lock()
	e, ok := s.entries[userID]
	if !ok {
		e = &entry{session: sessionModel.New(userID, s.accounts)}
		s.entries[userID] = e
	}
	s.mu.Unlock()

	e.mu.Lock()
	e.session.Touch()
	return e.session, func() { e.mu.Unlock() }, nil
}

// Len reports how many sessions are live.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep drops sessions idle past the timeout and returns how many were
// removed. Entries currently held by a turn are skipped; they will be
// picked up on a later pass.
func (s *Store) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for userID, e := range s.entries {
		if !e.mu.TryLock() {
			continue
		}
		idle := e.session.IdleSince(now)
		e.mu.Unlock()

		if idle >= s.idleTimeout {
			delete(s.entries, userID)
			removed++
		}
	}
	return removed
}

// StartSweeper runs Sweep on a ticker until the context is cancelled.
func (s *Store) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if n := s.Sweep(now); n > 0 {
					log.Printf("[session] expired %d idle session(s)", n)
				}
			}
		}
	}()
}
