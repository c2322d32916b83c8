// Package errors provides custom error types for cart-related operations.
package errors

import "errors"

var ErrInsufficientStock = errors.New("insufficient stock")
var ErrNoCredential = errors.New("no credential: remote cart operation requires a bearer token")
var ErrLineNotFound = errors.New("cart line not found")

var ErrLoadCart = errors.New("failed to load cart")
var ErrSyncCart = errors.New("failed to synchronize local cart with remote")
