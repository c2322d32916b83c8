// Package store persists carts for anonymous sessions.
package store

import "github.com/agrodel/cartsync/internal/cart"

// CartStore is the storage adapter for anonymous carts. It is a dumb
// serialization layer with no mutation rights of its own: the synchronization
// manager owns the cart and funnels every change through Save.
type CartStore interface {
	// Load returns the persisted cart lines. Missing or malformed data loads
	// as an empty cart, never as an error the caller must handle.
	Load() ([]cart.Line, error)

	// Save replaces the persisted cart wholesale.
	Save(lines []cart.Line) error
}
