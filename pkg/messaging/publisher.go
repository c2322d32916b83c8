// Package messaging defines the event contract for cart activity publishing.
package messaging

import (
	"context"
)

// CartChangedSubject is the stream subject carrying cart mutation events.
const CartChangedSubject = "cart.changed"

type Event interface {
	Subject() string
	Payload() ([]byte, error)
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// NoopPublisher discards events. Used when event publishing is disabled.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Event) error { return nil }
