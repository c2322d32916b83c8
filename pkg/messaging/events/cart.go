package events

import (
	"encoding/json"
	"time"

	"github.com/agrodel/cartsync/pkg/messaging"
	"github.com/google/uuid"
)

// Cart mutation actions.
const (
	ActionAdd    = "add"
	ActionUpdate = "update"
	ActionRemove = "remove"
	ActionClear  = "clear"
	ActionSync   = "sync"
)

// CartChangedEvent is published after every completed cart mutation.
// UserID is empty for anonymous sessions.
type CartChangedEvent struct {
	EventID    uuid.UUID `json:"event_id"`
	SessionID  string    `json:"session_id"`
	UserID     string    `json:"user_id,omitempty"`
	Action     string    `json:"action"`
	ProductID  int64     `json:"product_id,omitempty"`
	Quantity   int32     `json:"quantity,omitempty"`
	TotalItems int32     `json:"total_items"`
	TotalPrice int64     `json:"total_price"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (e CartChangedEvent) Subject() string {
	return messaging.CartChangedSubject
}

func (e CartChangedEvent) Payload() ([]byte, error) {
	return json.Marshal(e)
}
