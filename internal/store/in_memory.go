package store

import (
	"sync"

	"github.com/agrodel/cartsync/internal/cart"
)

// InMemoryStore keeps the cart in process memory. Used in tests and for
// sessions that opt out of disk persistence.
type InMemoryStore struct {
	mu    sync.RWMutex
	lines []cart.Line
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{lines: []cart.Line{}}
}

func (s *InMemoryStore) Load() ([]cart.Line, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]cart.Line, len(s.lines))
	copy(out, s.lines)
	return out, nil
}

func (s *InMemoryStore) Save(lines []cart.Line) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = make([]cart.Line, len(lines))
	copy(s.lines, lines)
	return nil
}
