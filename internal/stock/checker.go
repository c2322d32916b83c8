// Package stock answers whether a requested quantity of a product can be
// satisfied by the authoritative backend stock.
package stock

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/agrodel/cartsync/pkg/config"
	"github.com/sony/gobreaker/v2"
)

// Availability is the result of a stock check. CurrentStock is the
// authoritative figure last reported by the backend.
type Availability struct {
	Available    bool
	CurrentStock int32
}

// AvailabilityChecker reports whether a candidate quantity of a product is in
// stock. Read-only: a check never mutates anything.
type AvailabilityChecker interface {
	// Check evaluates requested against the backend stock for productID.
	// existing is the quantity the cart already holds for the product.
	//
	// When requested >= existing the request is treated as the total desired
	// quantity (an update); otherwise it is an incremental add and the total
	// is existing + requested. requested <= 0 short-circuits to available
	// without a network call.
	//
	// Any network or decoding failure fails closed: the returned Availability
	// reports not available with zero stock, alongside the error. Overselling
	// on a transient failure is worse than a spurious rejection.
	Check(ctx context.Context, productID int64, requested, existing int32) (Availability, error)
}

// Checker implements AvailabilityChecker against the product API, with a
// circuit breaker so a struggling backend is not hammered by every cart
// operation. A breaker-open error fails closed like any other failure.
type Checker struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[int32]
	logger  *slog.Logger
}

var _ AvailabilityChecker = (*Checker)(nil)

func NewChecker(baseURL string, httpClient *http.Client, cfg config.BreakerConfig, logger *slog.Logger) *Checker {
	st := gobreaker.Settings{
		Name:        "product-availability",
		MaxRequests: 3,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > cfg.ConsecutiveFailures ||
				(counts.TotalSuccesses+counts.TotalFailures > cfg.ConsecutiveFailures &&
					float64(counts.TotalFailures)/float64(counts.TotalSuccesses+counts.TotalFailures)*100 > float64(cfg.ErrorRatePercent))
		},
	}
	return &Checker{
		baseURL: baseURL,
		http:    httpClient,
		breaker: gobreaker.NewCircuitBreaker[int32](st),
		logger:  logger.With("component", "stock"),
	}
}

func (c *Checker) Check(ctx context.Context, productID int64, requested, existing int32) (Availability, error) {
	if requested <= 0 {
		// A zero or negative request is a no-op add; nothing to verify.
		return Availability{Available: true}, nil
	}

	currentStock, err := c.breaker.Execute(func() (int32, error) {
		return c.fetchStock(ctx, productID)
	})
	if err != nil {
		c.logger.WarnContext(ctx, "Stock check failed, treating as unavailable",
			"product_id", productID, "error", err)
		return Availability{Available: false, CurrentStock: 0}, err
	}

	total := requested
	if existing > 0 && requested < existing {
		// An incremental add on top of an existing line; an update carries
		// the total desired quantity already.
		total = existing + requested
	}

	return Availability{
		Available:    total <= currentStock,
		CurrentStock: currentStock,
	}, nil
}

func (c *Checker) fetchStock(ctx context.Context, productID int64) (int32, error) {
	url := fmt.Sprintf("%s/api/products/%d/availability", c.baseURL, productID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("availability request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("availability endpoint returned %d", resp.StatusCode)
	}
	var payload struct {
		Stock int32 `json:"stock"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("failed to decode availability response: %w", err)
	}
	return payload.Stock, nil
}
