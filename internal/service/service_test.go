package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/agrodel/cartsync/internal/cart"
	carterrors "github.com/agrodel/cartsync/internal/errors"
	"github.com/agrodel/cartsync/internal/remote"
	"github.com/agrodel/cartsync/internal/stock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLocalStore is a mock implementation of the store.CartStore interface
type mockLocalStore struct {
	lines   []cart.Line
	loadErr error
	saveErr error
	saves   int
}

func (m *mockLocalStore) Load() ([]cart.Line, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	out := make([]cart.Line, len(m.lines))
	copy(out, m.lines)
	return out, nil
}

func (m *mockLocalStore) Save(lines []cart.Line) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.lines = make([]cart.Line, len(lines))
	copy(m.lines, lines)
	m.saves++
	return nil
}

// mockRemote is a mock implementation of the remote.CartAPI interface
type mockRemote struct {
	lines     []cart.Line
	fetchErr  error
	addErr    error
	updateErr error
	removeErr error
	clearErr  error
	syncErr   error
	synced    [][]cart.SyncItem
	lastToken string
}

func (m *mockRemote) FetchCart(_ context.Context, token string) ([]cart.Line, error) {
	m.lastToken = token
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	out := make([]cart.Line, len(m.lines))
	copy(out, m.lines)
	return out, nil
}

func (m *mockRemote) AddItem(_ context.Context, token string, productID int64, quantity int32) (*cart.Line, error) {
	m.lastToken = token
	if m.addErr != nil {
		return nil, m.addErr
	}
	if idx := cart.FindLine(m.lines, productID); idx >= 0 {
		m.lines[idx].Quantity += quantity
		return &m.lines[idx], nil
	}
	line := cart.Line{ProductID: productID, Quantity: quantity, Product: cart.Product{ID: productID}}
	m.lines = append(m.lines, line)
	return &line, nil
}

func (m *mockRemote) UpdateItem(_ context.Context, token string, productID int64, quantity int32) (*cart.Line, error) {
	m.lastToken = token
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	idx := cart.FindLine(m.lines, productID)
	if idx < 0 {
		return nil, &remote.HTTPError{StatusCode: 404, Message: "not found"}
	}
	m.lines[idx].Quantity = quantity
	return &m.lines[idx], nil
}

func (m *mockRemote) RemoveItem(_ context.Context, token string, productID int64) error {
	m.lastToken = token
	if m.removeErr != nil {
		return m.removeErr
	}
	if idx := cart.FindLine(m.lines, productID); idx >= 0 {
		m.lines = append(m.lines[:idx], m.lines[idx+1:]...)
	}
	return nil
}

func (m *mockRemote) Clear(_ context.Context, token string) error {
	m.lastToken = token
	if m.clearErr != nil {
		return m.clearErr
	}
	m.lines = nil
	return nil
}

func (m *mockRemote) SyncFromLocal(_ context.Context, token string, items []cart.SyncItem) error {
	m.lastToken = token
	if m.syncErr != nil {
		return m.syncErr
	}
	m.synced = append(m.synced, items)
	m.lines = make([]cart.Line, 0, len(items))
	for _, it := range items {
		m.lines = append(m.lines, cart.Line{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Product:   cart.Product{ID: it.ProductID},
		})
	}
	return nil
}

// mockChecker is a mock implementation of the stock.AvailabilityChecker interface
type mockChecker struct {
	stock map[int64]int32
	err   error
}

func (m *mockChecker) Check(_ context.Context, productID int64, requested, existing int32) (stock.Availability, error) {
	if requested <= 0 {
		return stock.Availability{Available: true}, nil
	}
	if m.err != nil {
		return stock.Availability{}, m.err
	}
	current := m.stock[productID]
	total := requested
	if existing > 0 && requested < existing {
		total = existing + requested
	}
	return stock.Availability{Available: total <= current, CurrentStock: current}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestManager(local *mockLocalStore, rem *mockRemote, checker *mockChecker) *Manager {
	return NewManager("sess-1", local, rem, checker, nil, testLogger())
}

func product(id int64, price int64, stockQty int32) cart.Product {
	return cart.Product{ID: id, Name: "Tomato Seeds", Price: price, Stock: stockQty, Category: "seeds"}
}

func Test_Manager_Add_Anonymous(t *testing.T) {
	testCases := []struct {
		name          string
		initial       []cart.Line
		stock         map[int64]int32
		checkErr      error
		product       cart.Product
		quantity      int32
		expectErr     error
		expectQty     int32
		expectItems   int32
		expectPrice   int64
		expectNoLines bool
	}{
		{
			name:        "Success - fresh add",
			stock:       map[int64]int32{7: 10},
			product:     product(7, 5, 10),
			quantity:    3,
			expectQty:   3,
			expectItems: 3,
			expectPrice: 15,
		},
		{
			name:        "Success - quantity below one is clamped to one",
			stock:       map[int64]int32{7: 10},
			product:     product(7, 5, 10),
			quantity:    -2,
			expectQty:   1,
			expectItems: 1,
			expectPrice: 5,
		},
		{
			name:        "Success - merge clamps to stock ceiling",
			initial:     []cart.Line{{ProductID: 7, Quantity: 8, Product: product(7, 5, 10)}},
			stock:       map[int64]int32{7: 10},
			product:     product(7, 5, 10),
			quantity:    5,
			expectQty:   10,
			expectItems: 10,
			expectPrice: 50,
		},
		{
			name:          "Error - fresh add beyond stock is rejected",
			stock:         map[int64]int32{7: 2},
			product:       product(7, 5, 2),
			quantity:      5,
			expectErr:     carterrors.ErrInsufficientStock,
			expectNoLines: true,
		},
		{
			name:          "Error - checker failure fails closed",
			stock:         map[int64]int32{7: 10},
			checkErr:      errors.New("availability endpoint returned 500"),
			product:       product(7, 5, 10),
			quantity:      1,
			expectErr:     carterrors.ErrInsufficientStock,
			expectNoLines: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			local := &mockLocalStore{lines: tc.initial}
			m := newTestManager(local, &mockRemote{}, &mockChecker{stock: tc.stock, err: tc.checkErr})
			require.NoError(t, m.Load(context.Background()))
			// when
			err := m.Add(context.Background(), tc.product, tc.quantity)
			// then
			snap := m.Snapshot()
			if tc.expectErr != nil {
				assert.ErrorIs(t, err, tc.expectErr)
				assert.NotEmpty(t, snap.LastError)
				if tc.expectNoLines {
					assert.Empty(t, snap.Lines)
				}
				return
			}
			require.NoError(t, err)
			require.Len(t, snap.Lines, 1)
			assert.Equal(t, tc.expectQty, snap.Lines[0].Quantity)
			assert.Equal(t, tc.expectItems, snap.TotalItems)
			assert.Equal(t, tc.expectPrice, snap.TotalPrice)
			assert.Equal(t, "idle", snap.State)
			assert.Empty(t, snap.LastError)
			// anonymous adds persist to the local store
			assert.Equal(t, snap.Lines, local.lines)
		})
	}
}

func Test_Manager_Add_InsufficientStock_MentionsExistingQuantity(t *testing.T) {
	local := &mockLocalStore{lines: []cart.Line{{ProductID: 7, Quantity: 2, Product: product(7, 5, 10)}}}
	m := newTestManager(local, &mockRemote{}, &mockChecker{stock: map[int64]int32{7: 10}})
	require.NoError(t, m.Load(context.Background()))

	err := m.Add(context.Background(), product(7, 5, 10), 20)

	require.ErrorIs(t, err, carterrors.ErrInsufficientStock)
	assert.Contains(t, err.Error(), "only 10 in stock")
	assert.Contains(t, err.Error(), "2 already in cart")
}

func Test_Manager_Add_Authenticated(t *testing.T) {
	rem := &mockRemote{}
	m := newTestManager(&mockLocalStore{}, rem, &mockChecker{stock: map[int64]int32{7: 10}})
	require.NoError(t, m.SetCredential(context.Background(), "token-1", "user-1"))

	require.NoError(t, m.Add(context.Background(), product(7, 5, 10), 3))

	snap := m.Snapshot()
	assert.True(t, snap.Authenticated)
	require.Len(t, snap.Lines, 1)
	assert.Equal(t, int32(3), snap.Lines[0].Quantity)
	assert.Equal(t, "token-1", rem.lastToken)
}

func Test_Manager_Add_Authenticated_RemoteConflict(t *testing.T) {
	rem := &mockRemote{addErr: &remote.StockConflictError{ProductID: 7, Message: "insufficient stock"}}
	m := newTestManager(&mockLocalStore{}, rem, &mockChecker{stock: map[int64]int32{7: 10}})
	require.NoError(t, m.SetCredential(context.Background(), "token-1", "user-1"))

	err := m.Add(context.Background(), product(7, 5, 10), 3)

	var conflict *remote.StockConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Empty(t, m.Snapshot().Lines)
}

func Test_Manager_UpdateQuantity(t *testing.T) {
	testCases := []struct {
		name      string
		initial   []cart.Line
		stock     map[int64]int32
		productID int64
		quantity  int32
		expectErr error
		expectQty int32
		removed   bool
	}{
		{
			name:      "Success - quantity updated",
			initial:   []cart.Line{{ProductID: 7, Quantity: 3, Product: product(7, 5, 10)}},
			stock:     map[int64]int32{7: 10},
			productID: 7,
			quantity:  6,
			expectQty: 6,
		},
		{
			name:      "Success - update to zero removes the line",
			initial:   []cart.Line{{ProductID: 7, Quantity: 3, Product: product(7, 5, 10)}},
			stock:     map[int64]int32{7: 10},
			productID: 7,
			quantity:  0,
			removed:   true,
		},
		{
			name:      "Success - negative quantity removes the line",
			initial:   []cart.Line{{ProductID: 7, Quantity: 3, Product: product(7, 5, 10)}},
			stock:     map[int64]int32{7: 10},
			productID: 7,
			quantity:  -4,
			removed:   true,
		},
		{
			name:      "Success - decrease skips the stock check",
			initial:   []cart.Line{{ProductID: 7, Quantity: 8, Product: product(7, 5, 10)}},
			stock:     map[int64]int32{7: 0},
			productID: 7,
			quantity:  5,
			expectQty: 5,
		},
		{
			name:      "Error - unknown line",
			initial:   []cart.Line{},
			stock:     map[int64]int32{7: 10},
			productID: 7,
			quantity:  2,
			expectErr: carterrors.ErrLineNotFound,
		},
		{
			name:      "Error - increase beyond stock",
			initial:   []cart.Line{{ProductID: 7, Quantity: 3, Product: product(7, 5, 10)}},
			stock:     map[int64]int32{7: 4},
			productID: 7,
			quantity:  6,
			expectErr: carterrors.ErrInsufficientStock,
			expectQty: 3,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			local := &mockLocalStore{lines: tc.initial}
			m := newTestManager(local, &mockRemote{}, &mockChecker{stock: tc.stock})
			require.NoError(t, m.Load(context.Background()))
			// when
			err := m.UpdateQuantity(context.Background(), tc.productID, tc.quantity)
			// then
			snap := m.Snapshot()
			if tc.expectErr != nil {
				assert.ErrorIs(t, err, tc.expectErr)
				if tc.expectQty > 0 {
					require.Len(t, snap.Lines, 1)
					assert.Equal(t, tc.expectQty, snap.Lines[0].Quantity)
				}
				return
			}
			require.NoError(t, err)
			if tc.removed {
				assert.Empty(t, snap.Lines)
				return
			}
			require.Len(t, snap.Lines, 1)
			assert.Equal(t, tc.expectQty, snap.Lines[0].Quantity)
		})
	}
}

func Test_Manager_UpdateQuantity_FailedRemoteWriteResynchronizes(t *testing.T) {
	rem := &mockRemote{lines: []cart.Line{{ProductID: 9, Quantity: 2, Product: product(9, 7, 10)}}}
	m := newTestManager(&mockLocalStore{}, rem, &mockChecker{stock: map[int64]int32{9: 10}})
	require.NoError(t, m.SetCredential(context.Background(), "token-1", "user-1"))
	rem.updateErr = &remote.HTTPError{StatusCode: 500, Message: "boom"}

	err := m.UpdateQuantity(context.Background(), 9, 4)

	require.Error(t, err)
	snap := m.Snapshot()
	// server truth wins: the failed write left the remote quantity at 2
	require.Len(t, snap.Lines, 1)
	assert.Equal(t, int32(2), snap.Lines[0].Quantity)
	assert.NotEmpty(t, snap.LastError)
}

func Test_Manager_Remove_IsIdempotent(t *testing.T) {
	local := &mockLocalStore{lines: []cart.Line{{ProductID: 7, Quantity: 3, Product: product(7, 5, 10)}}}
	m := newTestManager(local, &mockRemote{}, &mockChecker{stock: map[int64]int32{7: 10}})
	require.NoError(t, m.Load(context.Background()))

	require.NoError(t, m.Remove(context.Background(), 7))
	require.NoError(t, m.Remove(context.Background(), 7))

	assert.Empty(t, m.Snapshot().Lines)
	assert.Empty(t, local.lines)
}

func Test_Manager_Remove_Authenticated_RefetchesAfterFailure(t *testing.T) {
	rem := &mockRemote{lines: []cart.Line{{ProductID: 7, Quantity: 3, Product: product(7, 5, 10)}}}
	m := newTestManager(&mockLocalStore{}, rem, &mockChecker{stock: map[int64]int32{7: 10}})
	require.NoError(t, m.SetCredential(context.Background(), "token-1", "user-1"))
	rem.removeErr = &remote.HTTPError{StatusCode: 500, Message: "boom"}

	err := m.Remove(context.Background(), 7)

	require.Error(t, err)
	// the optimistic removal was corrected by the re-fetch
	require.Len(t, m.Snapshot().Lines, 1)
	assert.Equal(t, int32(3), m.Snapshot().Lines[0].Quantity)
}

func Test_Manager_Clear(t *testing.T) {
	t.Run("anonymous clear empties and persists", func(t *testing.T) {
		local := &mockLocalStore{lines: []cart.Line{{ProductID: 7, Quantity: 3, Product: product(7, 5, 10)}}}
		m := newTestManager(local, &mockRemote{}, &mockChecker{})
		require.NoError(t, m.Load(context.Background()))

		require.NoError(t, m.Clear(context.Background()))

		assert.Empty(t, m.Snapshot().Lines)
		assert.Empty(t, local.lines)
	})

	t.Run("authenticated clear failure resynchronizes", func(t *testing.T) {
		rem := &mockRemote{lines: []cart.Line{{ProductID: 7, Quantity: 3, Product: product(7, 5, 10)}}}
		m := newTestManager(&mockLocalStore{}, rem, &mockChecker{})
		require.NoError(t, m.SetCredential(context.Background(), "token-1", "user-1"))
		rem.clearErr = &remote.HTTPError{StatusCode: 500, Message: "boom"}

		err := m.Clear(context.Background())

		require.Error(t, err)
		require.Len(t, m.Snapshot().Lines, 1)
	})
}

func Test_Manager_SetCredential_MigratesLocalCart(t *testing.T) {
	local := &mockLocalStore{lines: []cart.Line{{ProductID: 1, Quantity: 2, Product: product(1, 5, 10)}}}
	rem := &mockRemote{}
	m := newTestManager(local, rem, &mockChecker{})
	require.NoError(t, m.Load(context.Background()))

	require.NoError(t, m.SetCredential(context.Background(), "token-1", "user-1"))

	// local wins: the remote cart was replaced with the local lines
	require.Len(t, rem.synced, 1)
	require.Len(t, rem.synced[0], 1)
	assert.Equal(t, int64(1), rem.synced[0][0].ProductID)
	assert.Equal(t, int32(2), rem.synced[0][0].Quantity)
	// local store was cleared after the migration
	assert.Empty(t, local.lines)
	// in-memory cart reflects post-sync remote content
	snap := m.Snapshot()
	assert.True(t, snap.Authenticated)
	require.Len(t, snap.Lines, 1)
	assert.Equal(t, int32(2), snap.Lines[0].Quantity)
}

func Test_Manager_SetCredential_FailedMigrationKeepsLocalCart(t *testing.T) {
	local := &mockLocalStore{lines: []cart.Line{{ProductID: 1, Quantity: 2, Product: product(1, 5, 10)}}}
	rem := &mockRemote{syncErr: &remote.HTTPError{StatusCode: 502, Message: "bad gateway"}}
	m := newTestManager(local, rem, &mockChecker{})
	require.NoError(t, m.Load(context.Background()))

	err := m.SetCredential(context.Background(), "token-1", "user-1")

	require.ErrorIs(t, err, carterrors.ErrSyncCart)
	// nothing is lost: the local cart survives for the next claim attempt
	require.Len(t, local.lines, 1)
	assert.Equal(t, int32(2), local.lines[0].Quantity)
}

func Test_Manager_SetCredential_EmptyLocalSkipsMigration(t *testing.T) {
	rem := &mockRemote{lines: []cart.Line{{ProductID: 3, Quantity: 1, Product: product(3, 9, 4)}}}
	m := newTestManager(&mockLocalStore{}, rem, &mockChecker{})

	require.NoError(t, m.SetCredential(context.Background(), "token-1", "user-1"))

	assert.Empty(t, rem.synced)
	require.Len(t, m.Snapshot().Lines, 1)
	assert.Equal(t, int64(3), m.Snapshot().Lines[0].ProductID)
}

func Test_Manager_ClearCredential_ReloadsAnonymousCart(t *testing.T) {
	local := &mockLocalStore{lines: []cart.Line{{ProductID: 5, Quantity: 4, Product: product(5, 2, 9)}}}
	rem := &mockRemote{lines: []cart.Line{{ProductID: 3, Quantity: 1, Product: product(3, 9, 4)}}}
	m := newTestManager(local, rem, &mockChecker{})
	require.NoError(t, m.SetCredential(context.Background(), "token-1", "user-1"))

	require.NoError(t, m.ClearCredential(context.Background()))

	snap := m.Snapshot()
	assert.False(t, snap.Authenticated)
	require.Len(t, snap.Lines, 1)
	assert.Equal(t, int64(5), snap.Lines[0].ProductID)
}

func Test_Manager_Subscribe_NotifiesOnCommitAndReject(t *testing.T) {
	m := newTestManager(&mockLocalStore{}, &mockRemote{}, &mockChecker{stock: map[int64]int32{7: 10}})
	var states []string
	m.Subscribe(func(s Snapshot) { states = append(states, s.State) })

	require.NoError(t, m.Add(context.Background(), product(7, 5, 10), 1))
	require.Error(t, m.Add(context.Background(), product(8, 5, 0), 1))

	require.Len(t, states, 2)
	assert.Equal(t, "idle", states[0])
	assert.Equal(t, "rejected", states[1])
}

func Test_Manager_Invariants(t *testing.T) {
	local := &mockLocalStore{}
	m := newTestManager(local, &mockRemote{}, &mockChecker{stock: map[int64]int32{1: 100, 2: 100}})
	require.NoError(t, m.Add(context.Background(), product(1, 5, 100), 2))
	require.NoError(t, m.Add(context.Background(), product(1, 5, 100), 3))
	require.NoError(t, m.Add(context.Background(), product(2, 3, 100), 1))

	snap := m.Snapshot()
	// one line per product
	seen := make(map[int64]bool)
	for _, line := range snap.Lines {
		assert.False(t, seen[line.ProductID], "duplicate line for product %d", line.ProductID)
		seen[line.ProductID] = true
		assert.Positive(t, line.Quantity)
	}
	assert.Equal(t, int32(6), snap.TotalItems)
	assert.Equal(t, int64(28), snap.TotalPrice)
}
