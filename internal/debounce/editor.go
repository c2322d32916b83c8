// Package debounce coalesces rapid quantity edits on a cart line into a
// single committed update.
package debounce

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// CommitFunc commits the final quantity of a line once the edit window
// closes. It is the manager's UpdateQuantity in production.
type CommitFunc func(ctx context.Context, productID int64, quantity int32) error

// Editor batches increment/decrement edits per cart line. Each edit updates
// an optimistic display quantity immediately and restarts the commit timer;
// only the quantity pending when the window elapses is committed. Every edit
// carries a monotonically increasing sequence token, and a commit whose token
// has been superseded is discarded rather than applied - the timer alone is
// not trusted to decide staleness.
type Editor struct {
	mu      sync.Mutex
	window  time.Duration
	timeout time.Duration
	commit  CommitFunc
	pending map[int64]*edit
	logger  *slog.Logger
}

type edit struct {
	display int32
	seq     uint64
	timer   *time.Timer
}

func NewEditor(window time.Duration, commit CommitFunc, logger *slog.Logger) *Editor {
	return &Editor{
		window:  window,
		timeout: 10 * time.Second,
		commit:  commit,
		pending: make(map[int64]*edit),
		logger:  logger.With("component", "quantity_editor"),
	}
}

// Nudge applies a delta to the line's optimistic display quantity, clamped to
// [1, cachedStock], and (re)starts the commit window. It returns the display
// quantity so the caller can render it immediately, ahead of the commit.
func (e *Editor) Nudge(productID int64, delta, cachedStock, committed int32) int32 {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.pending[productID]
	if !ok {
		p = &edit{display: committed}
		e.pending[productID] = p
	}

	p.display += delta
	if p.display < 1 {
		p.display = 1
	}
	if cachedStock > 0 && p.display > cachedStock {
		p.display = cachedStock
	}
	p.seq++

	seq := p.seq
	quantity := p.display
	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = time.AfterFunc(e.window, func() {
		e.fire(productID, seq, quantity)
	})

	return p.display
}

// Display returns the current optimistic quantity for a line, falling back
// to the committed quantity when no edit is pending.
func (e *Editor) Display(productID int64, committed int32) int32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if p, ok := e.pending[productID]; ok {
		return p.display
	}
	return committed
}

// Flush commits any pending edit for the line immediately. Used on explicit
// saves and in shutdown paths.
func (e *Editor) Flush(productID int64) {
	e.mu.Lock()
	p, ok := e.pending[productID]
	if !ok {
		e.mu.Unlock()
		return
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	seq := p.seq
	quantity := p.display
	e.mu.Unlock()

	e.fire(productID, seq, quantity)
}

// fire commits the quantity captured at seq. If a newer edit has superseded
// seq by the time the commit starts (or finishes), its result is discarded:
// the pending entry stays in place for the newer edit's own commit.
func (e *Editor) fire(productID int64, seq uint64, quantity int32) {
	e.mu.Lock()
	p, ok := e.pending[productID]
	if !ok || p.seq != seq {
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()
	err := e.commit(ctx, productID, quantity)

	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok = e.pending[productID]
	if !ok || p.seq != seq {
		// Stale response; a newer edit owns the line now.
		return
	}
	delete(e.pending, productID)
	if err != nil {
		e.logger.Warn("Failed to commit quantity edit",
			"product_id", productID, "quantity", quantity, "error", err)
	}
}
