package remote

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/agrodel/cartsync/internal/cart"
	carterrors "github.com/agrodel/cartsync/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func Test_Client_RequiresCredential(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()
	c := NewClient(srv.URL, srv.Client(), testLogger())

	_, err := c.FetchCart(context.Background(), "")

	assert.ErrorIs(t, err, carterrors.ErrNoCredential)
	assert.False(t, called, "no request may hit the wire without a credential")
}

func Test_Client_FetchCart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/cart", r.URL.Path)
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode([]cart.Line{
			{ProductID: 7, Quantity: 3, Product: cart.Product{ID: 7, Name: "Tomato Seeds", Price: 5}},
		})
	}))
	defer srv.Close()
	c := NewClient(srv.URL, srv.Client(), testLogger())

	lines, err := c.FetchCart(context.Background(), "token-1")

	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, int64(7), lines[0].ProductID)
	assert.Equal(t, int32(3), lines[0].Quantity)
}

func Test_Client_FetchCart_EmptyBodyIsEmptySlice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("null"))
	}))
	defer srv.Close()
	c := NewClient(srv.URL, srv.Client(), testLogger())

	lines, err := c.FetchCart(context.Background(), "token-1")

	require.NoError(t, err)
	assert.NotNil(t, lines)
	assert.Empty(t, lines)
}

func Test_Client_AddItem(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/cart/item", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.EqualValues(t, 7, body["productId"])
		assert.EqualValues(t, 2, body["quantity"])
		_ = json.NewEncoder(w).Encode(cart.Line{ProductID: 7, Quantity: 2})
	}))
	defer srv.Close()
	c := NewClient(srv.URL, srv.Client(), testLogger())

	line, err := c.AddItem(context.Background(), "token-1", 7, 2)

	require.NoError(t, err)
	assert.Equal(t, int32(2), line.Quantity)
}

func Test_Client_ConflictBecomesStockConflictError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "only 2 left"})
	}))
	defer srv.Close()
	c := NewClient(srv.URL, srv.Client(), testLogger())

	_, err := c.AddItem(context.Background(), "token-1", 7, 5)

	var conflict *StockConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "only 2 left", conflict.Message)
}

func Test_Client_ErrorFallsBackToStatusText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html>not json</html>"))
	}))
	defer srv.Close()
	c := NewClient(srv.URL, srv.Client(), testLogger())

	_, err := c.UpdateItem(context.Background(), "token-1", 7, 1)

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadGateway, httpErr.StatusCode)
	assert.Equal(t, http.StatusText(http.StatusBadGateway), httpErr.Message)
}

func Test_Client_UpdateItem_PathCarriesProductID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/cart/item/42", r.URL.Path)
		_ = json.NewEncoder(w).Encode(cart.Line{ProductID: 42, Quantity: 4})
	}))
	defer srv.Close()
	c := NewClient(srv.URL, srv.Client(), testLogger())

	line, err := c.UpdateItem(context.Background(), "token-1", 42, 4)

	require.NoError(t, err)
	assert.Equal(t, int64(42), line.ProductID)
}

func Test_Client_SyncFromLocal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/cart/sync", r.URL.Path)
		var body struct {
			Items []cart.SyncItem `json:"items"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Items, 2)
		assert.Equal(t, int64(1), body.Items[0].ProductID)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()
	c := NewClient(srv.URL, srv.Client(), testLogger())

	err := c.SyncFromLocal(context.Background(), "token-1", []cart.SyncItem{
		{ProductID: 1, Quantity: 2},
		{ProductID: 5, Quantity: 1},
	})

	require.NoError(t, err)
}

func Test_Client_RemoveAndClear(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		paths = append(paths, r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()
	c := NewClient(srv.URL, srv.Client(), testLogger())

	require.NoError(t, c.RemoveItem(context.Background(), "token-1", 7))
	require.NoError(t, c.Clear(context.Background(), "token-1"))

	assert.Equal(t, []string{"/api/cart/item/7", "/api/cart"}, paths)
}
