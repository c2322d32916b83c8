// Package session maps storefront sessions to their cart managers.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/agrodel/cartsync/internal/debounce"
	"github.com/agrodel/cartsync/internal/service"
)

// Session bundles the per-session cart manager with its quantity editor.
type Session struct {
	ID      string
	Manager service.CartService
	Editor  *debounce.Editor
}

// Factory builds the manager/editor pair for a new session ID.
type Factory func(sessionID string) *Session

// Registry owns one Session per session ID. Sessions idle past the TTL are
// evicted by the janitor; their on-disk cart (if any) survives eviction and
// is reloaded when the session returns.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*entry
	factory  Factory
	ttl      time.Duration
	logger   *slog.Logger
}

type entry struct {
	session  *Session
	lastSeen time.Time
}

func NewRegistry(factory Factory, ttl time.Duration, logger *slog.Logger) *Registry {
	return &Registry{
		sessions: make(map[string]*entry),
		factory:  factory,
		ttl:      ttl,
		logger:   logger.With("component", "session_registry"),
	}
}

// Get returns the session for id, creating it on first use.
func (r *Registry) Get(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		e = &entry{session: r.factory(id)}
		r.sessions[id] = e
	}
	e.lastSeen = time.Now()
	return e.session
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// StartJanitor evicts idle sessions every interval until ctx is cancelled.
func (r *Registry) StartJanitor(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				evicted := r.evictIdle()
				if evicted > 0 {
					r.logger.Info("Evicted idle cart sessions", "count", evicted)
				}
			}
		}
	}()
}

func (r *Registry) evictIdle() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := time.Now().Add(-r.ttl)
	evicted := 0
	for id, e := range r.sessions {
		if e.lastSeen.Before(cutoff) {
			delete(r.sessions, id)
			evicted++
		}
	}
	return evicted
}
