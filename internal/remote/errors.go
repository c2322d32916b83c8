package remote

import "fmt"

// StockConflictError is returned when the backend judges the requested
// quantity to exceed the authoritative stock (HTTP 409).
type StockConflictError struct {
	ProductID int64
	Message   string
}

func (e *StockConflictError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("insufficient stock for product %d", e.ProductID)
}

// HTTPError is any other non-2xx response from the cart backend.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("cart backend returned %d: %s", e.StatusCode, e.Message)
}
