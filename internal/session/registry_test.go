package session

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agrodel/cartsync/internal/cart"
	"github.com/agrodel/cartsync/internal/debounce"
	"github.com/agrodel/cartsync/internal/remote"
	"github.com/agrodel/cartsync/internal/service"
	"github.com/agrodel/cartsync/internal/stock"
	"github.com/agrodel/cartsync/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubRemote struct{}

func (stubRemote) FetchCart(context.Context, string) ([]cart.Line, error) { return nil, nil }
func (stubRemote) AddItem(context.Context, string, int64, int32) (*cart.Line, error) {
	return &cart.Line{}, nil
}
func (stubRemote) UpdateItem(context.Context, string, int64, int32) (*cart.Line, error) {
	return &cart.Line{}, nil
}
func (stubRemote) RemoveItem(context.Context, string, int64) error            { return nil }
func (stubRemote) Clear(context.Context, string) error                        { return nil }
func (stubRemote) SyncFromLocal(context.Context, string, []cart.SyncItem) error { return nil }

type stubChecker struct{}

func (stubChecker) Check(context.Context, int64, int32, int32) (stock.Availability, error) {
	return stock.Availability{Available: true, CurrentStock: 100}, nil
}

var _ remote.CartAPI = stubRemote{}
var _ stock.AvailabilityChecker = stubChecker{}

func testFactory(created *atomic.Int32) Factory {
	return func(sessionID string) *Session {
		if created != nil {
			created.Add(1)
		}
		manager := service.NewManager(sessionID, store.NewInMemoryStore(), stubRemote{}, stubChecker{}, nil, testLogger())
		editor := debounce.NewEditor(50*time.Millisecond, manager.UpdateQuantity, testLogger())
		return &Session{ID: sessionID, Manager: manager, Editor: editor}
	}
}

func Test_Registry_GetCreatesOnFirstUse(t *testing.T) {
	var created atomic.Int32
	r := NewRegistry(testFactory(&created), time.Hour, testLogger())

	a := r.Get("sess-a")
	b := r.Get("sess-a")
	c := r.Get("sess-b")

	require.NotNil(t, a)
	assert.Same(t, a, b, "same session ID returns the same session")
	assert.NotSame(t, a, c)
	assert.Equal(t, int32(2), created.Load())
	assert.Equal(t, 2, r.Len())
}

func Test_Registry_GetIsSafeForConcurrentUse(t *testing.T) {
	var created atomic.Int32
	r := NewRegistry(testFactory(&created), time.Hour, testLogger())

	var g errgroup.Group
	var mu sync.Mutex
	seen := make(map[*Session]bool)
	for range 16 {
		g.Go(func() error {
			s := r.Get("sess-a")
			mu.Lock()
			seen[s] = true
			mu.Unlock()
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Len(t, seen, 1, "concurrent gets must converge on one session")
	assert.Equal(t, int32(1), created.Load())
}

func Test_Registry_EvictsIdleSessions(t *testing.T) {
	r := NewRegistry(testFactory(nil), 10*time.Millisecond, testLogger())
	r.Get("sess-a")
	require.Equal(t, 1, r.Len())

	time.Sleep(30 * time.Millisecond)
	evicted := r.evictIdle()

	assert.Equal(t, 1, evicted)
	assert.Equal(t, 0, r.Len())
}

func Test_Registry_TouchKeepsSessionAlive(t *testing.T) {
	r := NewRegistry(testFactory(nil), 50*time.Millisecond, testLogger())
	r.Get("sess-a")

	time.Sleep(30 * time.Millisecond)
	r.Get("sess-a")
	time.Sleep(30 * time.Millisecond)
	evicted := r.evictIdle()

	assert.Equal(t, 0, evicted)
	assert.Equal(t, 1, r.Len())
}
