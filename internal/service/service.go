// Package service implements the cart synchronization manager: the single
// owner of a session's in-memory cart, mediating between the anonymous local
// store, the authenticated remote cart API and the stock availability
// checker.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/agrodel/cartsync/internal/cart"
	carterrors "github.com/agrodel/cartsync/internal/errors"
	"github.com/agrodel/cartsync/internal/remote"
	"github.com/agrodel/cartsync/internal/stock"
	"github.com/agrodel/cartsync/internal/store"
	"github.com/agrodel/cartsync/pkg/messaging"
	"github.com/agrodel/cartsync/pkg/messaging/events"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OpState is the explicit state of the operation currently held by the
// manager. Mutating operations move Idle -> Checking -> Committing -> Idle,
// or end in Rejected when the stock check or a remote write refuses them.
type OpState int32

const (
	StateIdle OpState = iota
	StateChecking
	StateCommitting
	StateRejected
)

func (s OpState) String() string {
	switch s {
	case StateChecking:
		return "checking"
	case StateCommitting:
		return "committing"
	case StateRejected:
		return "rejected"
	default:
		return "idle"
	}
}

// Snapshot is a consistent read of the manager's cart state. Totals are
// recomputed, never stored.
type Snapshot struct {
	Lines         []cart.Line `json:"lines"`
	TotalItems    int32       `json:"totalItems"`
	TotalPrice    int64       `json:"totalPrice"`
	State         string      `json:"state"`
	LastError     string      `json:"lastError,omitempty"`
	Authenticated bool        `json:"authenticated"`
}

// CartService defines the cart operations exposed to transports.
// It abstracts the underlying synchronization logic.
type CartService interface {
	// Load replaces the in-memory cart from the session's source of truth:
	// the remote cart when authenticated, the local store otherwise.
	Load(ctx context.Context) error

	// Add puts quantity of the product into the cart, subject to the stock
	// availability check. Quantity is clamped to at least 1.
	Add(ctx context.Context, product cart.Product, quantity int32) error

	// UpdateQuantity sets the total quantity of an existing line. A quantity
	// of zero or less removes the line.
	UpdateQuantity(ctx context.Context, productID int64, quantity int32) error

	// Remove deletes one line. Removing an absent line is a no-op.
	Remove(ctx context.Context, productID int64) error

	// Clear empties the cart.
	Clear(ctx context.Context) error

	// SetCredential installs a bearer token, migrating a non-empty anonymous
	// cart to the remote cart on the first anonymous-to-authenticated
	// transition ("local wins"). On migration failure the local cart is
	// preserved.
	SetCredential(ctx context.Context, token, userID string) error

	// ClearCredential drops the bearer token and reloads the anonymous cart.
	ClearCredential(ctx context.Context) error

	// Snapshot returns the current cart state.
	Snapshot() Snapshot

	// Subscribe registers a callback invoked after every state change.
	Subscribe(fn func(Snapshot))
}

// Manager implements CartService. Mutating operations are serialized per
// cart: two concurrent calls on the same session never interleave their
// network round-trips, closing the request races an unserialized caller
// could otherwise produce.
type Manager struct {
	// opMu serializes operations and is held across network I/O.
	opMu sync.Mutex
	// stateMu guards the fields below and is never held across I/O, so
	// snapshots stay cheap while an operation is in flight.
	stateMu sync.Mutex

	lines     []cart.Line
	token     string
	userID    string
	state     OpState
	lastErr   string
	listeners []func(Snapshot)

	sessionID  string
	local      store.CartStore
	remote     remote.CartAPI
	stock      stock.AvailabilityChecker
	publisher  messaging.Publisher
	logger     *slog.Logger
	opsCounter metric.Int64Counter
}

var _ CartService = (*Manager)(nil)

// NewManager creates a manager owning the cart of one session.
func NewManager(sessionID string, local store.CartStore, remoteAPI remote.CartAPI, checker stock.AvailabilityChecker, publisher messaging.Publisher, logger *slog.Logger) *Manager {
	meter := otel.Meter("cart-service")
	opsCounter, err := meter.Int64Counter("cart_operations", metric.WithDescription("Total number of completed cart operations"))
	if err != nil {
		panic(fmt.Sprintf("failed to create cart_operations counter: %v", err))
	}
	if publisher == nil {
		publisher = messaging.NoopPublisher{}
	}
	return &Manager{
		lines:      []cart.Line{},
		sessionID:  sessionID,
		local:      local,
		remote:     remoteAPI,
		stock:      checker,
		publisher:  publisher,
		logger:     logger.With("component", "cart_manager", "session_id", sessionID),
		opsCounter: opsCounter,
	}
}

func (m *Manager) Load(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	return m.reload(ctx)
}

func (m *Manager) Add(ctx context.Context, product cart.Product, quantity int32) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if quantity < 1 {
		quantity = 1
	}

	m.setState(StateChecking)
	existing := m.quantityOf(product.ID)
	// The check covers the added quantity alone. When a line already exists
	// the merge below clamps the sum to the stock ceiling instead of
	// rejecting, so an overflowing merge degrades to "cart is full", not an
	// error.
	avail, checkErr := m.stock.Check(ctx, product.ID, quantity, 0)
	if checkErr != nil || !avail.Available {
		msg := fmt.Sprintf("%s: only %d in stock", product.Name, avail.CurrentStock)
		if existing > 0 {
			msg = fmt.Sprintf("%s (%d already in cart)", msg, existing)
		}
		return m.reject(fmt.Errorf("%s: %w", msg, carterrors.ErrInsufficientStock))
	}

	m.setState(StateCommitting)
	if m.authenticated() {
		// The remote path is not optimistic: nothing is mutated before the
		// backend confirms, so a failure needs no rollback.
		if _, err := m.remote.AddItem(ctx, m.credential(), product.ID, quantity); err != nil {
			return m.reject(err)
		}
		// Full re-fetch rather than a local patch, so server-computed fields
		// stay consistent.
		lines, err := m.remote.FetchCart(ctx, m.credential())
		if err != nil {
			return m.reject(err)
		}
		m.replaceLines(lines)
	} else {
		m.applyAnonymousAdd(product, quantity, avail.CurrentStock)
		if err := m.local.Save(m.copyLines()); err != nil {
			return m.reject(err)
		}
	}

	m.committed(ctx, events.ActionAdd, product.ID, quantity)
	return nil
}

func (m *Manager) UpdateQuantity(ctx context.Context, productID int64, quantity int32) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if quantity < 0 {
		quantity = 0
	}
	if quantity == 0 {
		return m.remove(ctx, productID)
	}

	existing := m.quantityOf(productID)
	if existing == 0 {
		return m.reject(fmt.Errorf("product %d: %w", productID, carterrors.ErrLineNotFound))
	}

	m.setState(StateChecking)
	// A decrease can never overcommit stock, so only increases are checked.
	// An increase carries the total desired quantity.
	if quantity > existing {
		avail, checkErr := m.stock.Check(ctx, productID, quantity, existing)
		if checkErr != nil || !avail.Available {
			return m.reject(fmt.Errorf("product %d: %d requested, %d available: %w",
				productID, quantity, avail.CurrentStock, carterrors.ErrInsufficientStock))
		}
	}

	m.setState(StateCommitting)
	if m.authenticated() {
		line, err := m.remote.UpdateItem(ctx, m.credential(), productID, quantity)
		if err != nil {
			// The failed write may have left local state stale relative to
			// the server; re-fetch server truth before surfacing the error.
			m.resync(ctx)
			return m.reject(err)
		}
		m.replaceLine(*line)
	} else {
		m.setQuantity(productID, quantity)
		if err := m.local.Save(m.copyLines()); err != nil {
			return m.reject(err)
		}
	}

	m.committed(ctx, events.ActionUpdate, productID, quantity)
	return nil
}

func (m *Manager) Remove(ctx context.Context, productID int64) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	return m.remove(ctx, productID)
}

// remove implements removal; the caller holds opMu.
func (m *Manager) remove(ctx context.Context, productID int64) error {
	m.setState(StateCommitting)
	if m.authenticated() {
		// Removal is applied optimistically: unlike add/update it cannot
		// overcommit stock. The unconditional re-fetch below corrects any
		// divergence if the call did not take effect.
		m.deleteLine(productID)
		removeErr := m.remote.RemoveItem(ctx, m.credential(), productID)
		m.resync(ctx)
		if removeErr != nil {
			return m.reject(removeErr)
		}
	} else {
		m.deleteLine(productID)
		if err := m.local.Save(m.copyLines()); err != nil {
			return m.reject(err)
		}
	}

	m.committed(ctx, events.ActionRemove, productID, 0)
	return nil
}

func (m *Manager) Clear(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.setState(StateCommitting)
	if m.authenticated() {
		if err := m.remote.Clear(ctx, m.credential()); err != nil {
			// Do not assume empty; the server's actual state wins.
			m.resync(ctx)
			return m.reject(err)
		}
		m.replaceLines([]cart.Line{})
	} else {
		m.replaceLines([]cart.Line{})
		if err := m.local.Save([]cart.Line{}); err != nil {
			return m.reject(err)
		}
	}

	m.committed(ctx, events.ActionClear, 0, 0)
	return nil
}

func (m *Manager) SetCredential(ctx context.Context, token, userID string) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	wasAuthenticated := m.authenticated()
	m.setCredential(token, userID)
	if token == "" || wasAuthenticated {
		// Sign-out or a token rotation: no migration, just reload.
		return m.reload(ctx)
	}

	// First anonymous-to-authenticated transition: a non-empty local cart
	// replaces the remote cart wholesale ("local wins"), once.
	localLines, err := m.local.Load()
	if err != nil {
		localLines = []cart.Line{}
	}
	if len(localLines) > 0 {
		m.setState(StateCommitting)
		if err := m.remote.SyncFromLocal(ctx, token, cart.SyncItems(localLines)); err != nil {
			// The local cart is deliberately left intact so nothing is lost;
			// the next successful claim migrates it.
			return m.reject(fmt.Errorf("%w: %s", carterrors.ErrSyncCart, err))
		}
		if err := m.local.Save([]cart.Line{}); err != nil {
			m.logger.WarnContext(ctx, "Failed to clear local cart after migration", "error", err)
		}
	}

	lines, err := m.remote.FetchCart(ctx, token)
	if err != nil {
		return m.reject(err)
	}
	m.replaceLines(lines)
	m.committed(ctx, events.ActionSync, 0, 0)
	return nil
}

func (m *Manager) ClearCredential(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	m.setCredential("", "")
	return m.reload(ctx)
}

func (m *Manager) Snapshot() Snapshot {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	return m.snapshotLocked()
}

func (m *Manager) Subscribe(fn func(Snapshot)) {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// reload replaces in-memory state wholesale from the session's source of
// truth. The caller holds opMu.
func (m *Manager) reload(ctx context.Context) error {
	if m.authenticated() {
		lines, err := m.remote.FetchCart(ctx, m.credential())
		if err != nil {
			return m.reject(fmt.Errorf("%w: %s", carterrors.ErrLoadCart, err))
		}
		m.replaceLines(lines)
	} else {
		lines, err := m.local.Load()
		if err != nil {
			lines = []cart.Line{}
		}
		m.replaceLines(lines)
	}
	m.committed(ctx, "", 0, 0)
	return nil
}

// resync pulls server truth after a failed remote write. A failure here is
// only logged: the original write error is the one the caller needs to see.
func (m *Manager) resync(ctx context.Context) {
	lines, err := m.remote.FetchCart(ctx, m.credential())
	if err != nil {
		m.logger.WarnContext(ctx, "Re-fetch after failed remote write failed", "error", err)
		return
	}
	m.replaceLines(lines)
}

// applyAnonymousAdd merges quantity into the in-memory cart, clamping the
// resulting line to the last-known stock figure.
func (m *Manager) applyAnonymousAdd(product cart.Product, quantity, currentStock int32) {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	idx := cart.FindLine(m.lines, product.ID)
	if idx < 0 {
		m.lines = append(m.lines, cart.Line{ProductID: product.ID, Quantity: quantity, Product: product})
		return
	}
	merged := m.lines[idx].Quantity + quantity
	if merged > currentStock {
		merged = currentStock
	}
	if merged <= 0 {
		m.lines = append(m.lines[:idx], m.lines[idx+1:]...)
		return
	}
	m.lines[idx].Quantity = merged
	m.lines[idx].Product = product
}

func (m *Manager) authenticated() bool {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	return m.token != ""
}

func (m *Manager) credential() string {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	return m.token
}

func (m *Manager) setCredential(token, userID string) {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	m.token = token
	m.userID = userID
}

func (m *Manager) quantityOf(productID int64) int32 {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	if idx := cart.FindLine(m.lines, productID); idx >= 0 {
		return m.lines[idx].Quantity
	}
	return 0
}

func (m *Manager) copyLines() []cart.Line {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	out := make([]cart.Line, len(m.lines))
	copy(out, m.lines)
	return out
}

func (m *Manager) replaceLines(lines []cart.Line) {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	if lines == nil {
		lines = []cart.Line{}
	}
	m.lines = lines
}

func (m *Manager) replaceLine(line cart.Line) {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	if idx := cart.FindLine(m.lines, line.ProductID); idx >= 0 {
		m.lines[idx] = line
	} else {
		m.lines = append(m.lines, line)
	}
}

func (m *Manager) setQuantity(productID int64, quantity int32) {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	if idx := cart.FindLine(m.lines, productID); idx >= 0 {
		m.lines[idx].Quantity = quantity
	}
}

func (m *Manager) deleteLine(productID int64) {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	if idx := cart.FindLine(m.lines, productID); idx >= 0 {
		m.lines = append(m.lines[:idx], m.lines[idx+1:]...)
	}
}

func (m *Manager) setState(s OpState) {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	m.state = s
}

// reject records the error in the single current-error slot and returns the
// state machine to Idle. Only the most recent error is kept.
func (m *Manager) reject(err error) error {
	m.stateMu.Lock()
	m.state = StateRejected
	m.lastErr = err.Error()
	snap := m.snapshotLocked()
	listeners := m.listeners
	m.state = StateIdle
	m.stateMu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
	return err
}

// committed finalizes a successful operation: clears the error slot, counts
// the operation, publishes the change event and notifies subscribers.
// An empty action means a plain reload with nothing to publish.
func (m *Manager) committed(ctx context.Context, action string, productID int64, quantity int32) {
	m.stateMu.Lock()
	m.state = StateIdle
	m.lastErr = ""
	snap := m.snapshotLocked()
	userID := m.userID
	listeners := m.listeners
	m.stateMu.Unlock()

	if action != "" {
		m.opsCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("op", action)))
		event := events.CartChangedEvent{
			EventID:    uuid.New(),
			SessionID:  m.sessionID,
			UserID:     userID,
			Action:     action,
			ProductID:  productID,
			Quantity:   quantity,
			TotalItems: snap.TotalItems,
			TotalPrice: snap.TotalPrice,
			OccurredAt: time.Now().UTC(),
		}
		if err := m.publisher.Publish(ctx, event); err != nil {
			m.logger.ErrorContext(ctx, "Failed to publish cart event", "action", action, "error", err)
		}
	}

	for _, fn := range listeners {
		fn(snap)
	}
}

// snapshotLocked builds a snapshot; the caller holds stateMu.
func (m *Manager) snapshotLocked() Snapshot {
	lines := make([]cart.Line, len(m.lines))
	copy(lines, m.lines)
	return Snapshot{
		Lines:         lines,
		TotalItems:    cart.TotalItems(lines),
		TotalPrice:    cart.TotalPrice(lines),
		State:         m.state.String(),
		LastError:     m.lastErr,
		Authenticated: m.token != "",
	}
}
