// Package memorystore provides an in-memory sessions.Store suitable for
// single-process deployments and tests. Expired entries are reaped lazily on
// read and by a background sweep.
package memorystore

import (
	"context"
	"sync"
	"time"

	"github.com/authgate/authgate/sessions"
)

type entry struct {
	sess      sessions.Session
	expiresAt time.Time
}

// Store implements sessions.Store with a mutex-guarded map.
type Store struct {
	mu      sync.RWMutex
	entries map[string]entry
	done    chan struct{}
	once    sync.Once
}

// New returns an empty Store and starts its expiry sweep.
func New() *Store {
	s := &Store{
		entries: make(map[string]entry),
		done:    make(chan struct{}),
	}
	go s.sweep()
	return s
}

// Get implements sessions.Store.
func (s *Store) Get(ctx context.Context, id string) (*sessions.Session, error) {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return nil, sessions.ErrNotFound
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		s.mu.Lock()
		delete(s.entries, id)
		s.mu.Unlock()
		return nil, sessions.ErrNotFound
	}
	// Copy out so callers can mutate freely before Put.
	sess := e.sess
	return &sess, nil
}

// Put implements sessions.Store.
func (s *Store) Put(ctx context.Context, sess *sessions.Session, ttl time.Duration) error {
	e := entry{sess: *sess}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	s.mu.Lock()
	s.entries[sess.ID] = e
	s.mu.Unlock()
	return nil
}

// Delete implements sessions.Store.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	delete(s.entries, id)
	s.mu.Unlock()
	return nil
}

// Close stops the background sweep.
func (s *Store) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

func (s *Store) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case now := <-ticker.C:
			s.mu.Lock()
			for id, e := range s.entries {
				if !e.expiresAt.IsZero() && now.After(e.expiresAt) {
					delete(s.entries, id)
				}
			}
			s.mu.Unlock()
		}
	}
}

var _ sessions.Store = (*Store)(nil)
