// Package remote is a thin HTTP wrapper around the authenticated cart API of
// the storefront backend.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/agrodel/cartsync/internal/cart"
	carterrors "github.com/agrodel/cartsync/internal/errors"
)

// CartAPI defines the remote cart operations used by the synchronization
// manager. Every call requires a bearer credential; an empty token is a
// caller error and is never sent over the wire. There is no retry policy: a
// failed write is surfaced to the manager, which re-synchronizes instead.
type CartAPI interface {
	// FetchCart returns the full remote cart for the credential's user.
	FetchCart(ctx context.Context, token string) ([]cart.Line, error)

	// AddItem adds quantity of a product and returns the resulting line as
	// computed by the backend.
	AddItem(ctx context.Context, token string, productID int64, quantity int32) (*cart.Line, error)

	// UpdateItem sets the total quantity of an existing line and returns the
	// backend's representation of it.
	UpdateItem(ctx context.Context, token string, productID int64, quantity int32) (*cart.Line, error)

	// RemoveItem deletes one line. Removing an absent line is not an error.
	RemoveItem(ctx context.Context, token string, productID int64) error

	// Clear deletes every line of the remote cart.
	Clear(ctx context.Context, token string) error

	// SyncFromLocal replaces the remote cart's content with the given items.
	// This is the one-time "local wins" migration on sign-in, not a merge.
	SyncFromLocal(ctx context.Context, token string, items []cart.SyncItem) error
}

// Client implements CartAPI over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

var _ CartAPI = (*Client)(nil)

func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    httpClient,
		logger:  logger.With("component", "remote_cart"),
	}
}

func (c *Client) FetchCart(ctx context.Context, token string) ([]cart.Line, error) {
	var lines []cart.Line
	if err := c.do(ctx, token, http.MethodGet, "/api/cart", nil, &lines); err != nil {
		return nil, err
	}
	if lines == nil {
		lines = []cart.Line{}
	}
	return lines, nil
}

func (c *Client) AddItem(ctx context.Context, token string, productID int64, quantity int32) (*cart.Line, error) {
	body := map[string]any{"productId": productID, "quantity": quantity}
	var line cart.Line
	if err := c.do(ctx, token, http.MethodPost, "/api/cart/item", body, &line); err != nil {
		return nil, err
	}
	return &line, nil
}

func (c *Client) UpdateItem(ctx context.Context, token string, productID int64, quantity int32) (*cart.Line, error) {
	body := map[string]any{"quantity": quantity}
	var line cart.Line
	path := fmt.Sprintf("/api/cart/item/%d", productID)
	if err := c.do(ctx, token, http.MethodPut, path, body, &line); err != nil {
		return nil, err
	}
	return &line, nil
}

func (c *Client) RemoveItem(ctx context.Context, token string, productID int64) error {
	path := fmt.Sprintf("/api/cart/item/%d", productID)
	return c.do(ctx, token, http.MethodDelete, path, nil, nil)
}

func (c *Client) Clear(ctx context.Context, token string) error {
	return c.do(ctx, token, http.MethodDelete, "/api/cart", nil, nil)
}

func (c *Client) SyncFromLocal(ctx context.Context, token string, items []cart.SyncItem) error {
	body := map[string]any{"items": items}
	return c.do(ctx, token, http.MethodPost, "/api/cart/sync", body, nil)
}

// do issues one request and decodes the response into out (when non-nil).
// Non-2xx responses become typed errors; a 409 is a stock conflict.
func (c *Client) do(ctx context.Context, token, method, path string, body, out any) error {
	if token == "" {
		return carterrors.ErrNoCredential
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s %s: %w", method, path, err)
	}
	return nil
}

// decodeError maps an error response to a typed error. Errors carry a JSON
// body with a `message` field; when it cannot be parsed the HTTP status text
// is used instead.
func (c *Client) decodeError(resp *http.Response) error {
	message := http.StatusText(resp.StatusCode)
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil && payload.Message != "" {
		message = payload.Message
	}
	if resp.StatusCode == http.StatusConflict {
		return &StockConflictError{Message: message}
	}
	return &HTTPError{StatusCode: resp.StatusCode, Message: message}
}
