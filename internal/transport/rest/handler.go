// Package rest provides HTTP handlers for cart operations.
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/agrodel/cartsync/internal/cart"
	carterrors "github.com/agrodel/cartsync/internal/errors"
	"github.com/agrodel/cartsync/internal/remote"
	"github.com/agrodel/cartsync/internal/session"
	"github.com/agrodel/cartsync/pkg/web"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"
)

// Upstreams lists the external collaborators probed by the readiness check.
type Upstreams struct {
	CartURL    string
	ProductURL string
	JwksURL    string
}

type Handler struct {
	registry  *session.Registry
	upstreams Upstreams
	validate  *validator.Validate
	logger    *slog.Logger
}

// NewHandler creates the cart REST handler on top of the session registry.
func NewHandler(registry *session.Registry, upstreams Upstreams, logger *slog.Logger) *Handler {
	return &Handler{
		registry:  registry,
		upstreams: upstreams,
		validate:  validator.New(),
		logger:    logger.With("component", "rest"),
	}
}

// RegisterRoutes registers the HTTP routes for the cart service.
func (h *Handler) RegisterRoutes(r *chi.Mux) {
	r.Route("/api/v1/cart", func(r chi.Router) {
		r.Get("/", h.GetCart)
		r.Delete("/", h.ClearCart)
		r.Post("/claim", h.ClaimCart)

		r.Route("/items", func(r chi.Router) {
			r.Post("/", h.AddItem)
			r.Route("/{id}", func(r chi.Router) {
				r.Put("/", h.UpdateItem)
				r.Post("/nudge", h.NudgeItem)
				r.Delete("/", h.RemoveItem)
			})
		})
	})
	r.Get("/healthz", h.HealthCheck)
	r.Get("/readyz", h.Ready)
}

// AddItemRequest carries the denormalized product snapshot alongside the
// quantity, mirroring what the storefront already holds when the user clicks
// "add to cart". Quantity below 1 is clamped, not rejected.
type AddItemRequest struct {
	ProductID int64  `json:"productId" validate:"required,gt=0"`
	Name      string `json:"name" validate:"required"`
	Price     int64  `json:"price" validate:"min=0"`
	Stock     int32  `json:"stock" validate:"min=0"`
	Category  string `json:"category"`
	Quantity  int32  `json:"quantity"`
}

type UpdateItemRequest struct {
	Quantity int32 `json:"quantity" validate:"min=0"`
}

type NudgeRequest struct {
	Delta int32 `json:"delta" validate:"required"`
}

// GetCart reloads the cart from its source of truth and returns a snapshot.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	sess, ok := h.session(w, r, mLogger)
	if !ok {
		return
	}
	if err := sess.Manager.Load(r.Context()); err != nil {
		h.respondCartError(w, r, mLogger, err)
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, sess.Manager.Snapshot())
}

// AddItem adds a product to the cart.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	sess, ok := h.session(w, r, mLogger)
	if !ok {
		return
	}

	var req AddItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		mLogger.ErrorContext(r.Context(), "Error decoding request body", "error", err)
		web.RespondError(w, mLogger, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !h.validStruct(w, r, mLogger, req) {
		return
	}

	product := cart.Product{
		ID:       req.ProductID,
		Name:     req.Name,
		Price:    req.Price,
		Stock:    req.Stock,
		Category: req.Category,
	}
	mLogger.DebugContext(r.Context(), "Received request to add item", "product_id", req.ProductID, "quantity", req.Quantity)
	if err := sess.Manager.Add(r.Context(), product, req.Quantity); err != nil {
		h.respondCartError(w, r, mLogger, err)
		return
	}
	web.RespondJSON(w, mLogger, http.StatusCreated, sess.Manager.Snapshot())
}

// UpdateItem sets the total quantity of one cart line.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	productID, ok := web.ParseProductID(w, r, mLogger)
	if !ok {
		return
	}
	sess, ok := h.session(w, r, mLogger)
	if !ok {
		return
	}

	var req UpdateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		mLogger.ErrorContext(r.Context(), "Error decoding request body", "error", err)
		web.RespondError(w, mLogger, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !h.validStruct(w, r, mLogger, req) {
		return
	}

	mLogger.DebugContext(r.Context(), "Received request to update item", "product_id", productID, "quantity", req.Quantity)
	if err := sess.Manager.UpdateQuantity(r.Context(), productID, req.Quantity); err != nil {
		h.respondCartError(w, r, mLogger, err)
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, sess.Manager.Snapshot())
}

// NudgeItem applies a debounced delta edit to one line's quantity and echoes
// the optimistic display quantity; the commit happens when the edit window
// closes.
func (h *Handler) NudgeItem(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	productID, ok := web.ParseProductID(w, r, mLogger)
	if !ok {
		return
	}
	sess, ok := h.session(w, r, mLogger)
	if !ok {
		return
	}

	var req NudgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		mLogger.ErrorContext(r.Context(), "Error decoding request body", "error", err)
		web.RespondError(w, mLogger, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !h.validStruct(w, r, mLogger, req) {
		return
	}

	snap := sess.Manager.Snapshot()
	idx := cart.FindLine(snap.Lines, productID)
	if idx < 0 {
		web.RespondError(w, mLogger, http.StatusNotFound, fmt.Sprintf("No cart line for product %d", productID))
		return
	}
	line := snap.Lines[idx]
	display := sess.Editor.Nudge(productID, req.Delta, line.Product.Stock, line.Quantity)
	web.RespondJSON(w, mLogger, http.StatusAccepted, map[string]any{
		"productId":       productID,
		"displayQuantity": display,
	})
}

// RemoveItem deletes one cart line. Removing an absent line is a no-op.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	productID, ok := web.ParseProductID(w, r, mLogger)
	if !ok {
		return
	}
	sess, ok := h.session(w, r, mLogger)
	if !ok {
		return
	}

	mLogger.DebugContext(r.Context(), "Received request to remove item", "product_id", productID)
	if err := sess.Manager.Remove(r.Context(), productID); err != nil {
		h.respondCartError(w, r, mLogger, err)
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, sess.Manager.Snapshot())
}

// ClearCart empties the cart.
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	sess, ok := h.session(w, r, mLogger)
	if !ok {
		return
	}
	if err := sess.Manager.Clear(r.Context()); err != nil {
		h.respondCartError(w, r, mLogger, err)
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, sess.Manager.Snapshot())
}

// ClaimCart forces the sign-in reconciliation for an authenticated request:
// a non-empty anonymous cart replaces the remote cart, then the remote cart
// becomes authoritative.
func (h *Handler) ClaimCart(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	token := web.TokenFromContext(r)
	if token == "" {
		web.RespondError(w, mLogger, http.StatusUnauthorized, "Claiming a cart requires a bearer token")
		return
	}
	sessionID, _ := web.SessionID(r.Context())
	sess := h.registry.Get(sessionID)

	if err := sess.Manager.SetCredential(r.Context(), token, web.SubjectFromContext(r)); err != nil {
		h.respondCartError(w, r, mLogger, err)
		return
	}
	mLogger.InfoContext(r.Context(), "Cart claimed", "subject", web.SubjectFromContext(r))
	web.RespondJSON(w, mLogger, http.StatusOK, sess.Manager.Snapshot())
}

// HealthCheck is a simple health check endpoint.
func (h *Handler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// Ready reports whether the upstream collaborators are reachable.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	eg, ctx := errgroup.WithContext(r.Context())
	eg.Go(func() error {
		return checkHealth(ctx, h.upstreams.CartURL+"/healthz")
	})
	eg.Go(func() error {
		return checkHealth(ctx, h.upstreams.ProductURL+"/healthz")
	})
	if h.upstreams.JwksURL != "" {
		eg.Go(func() error {
			return checkHealth(ctx, h.upstreams.JwksURL)
		})
	}
	if err := eg.Wait(); err != nil {
		h.logger.Error("Readiness probe failed: upstream service is not ready", "error", err)
		http.Error(w, "Service Unavailable: Upstream service is not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// checkHealth checks the health status of a service via HTTP.
func checkHealth(ctx context.Context, url string) error {
	client := &http.Client{Timeout: 2 * time.Second}
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("get request error, url=%v: %w", url, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("response code: %d", resp.StatusCode)
	}
	return nil
}

// session resolves the request's cart session and aligns the manager's
// credential with the request's authentication state, so the anonymous and
// authenticated paths are picked per request rather than per process.
func (h *Handler) session(w http.ResponseWriter, r *http.Request, mLogger *slog.Logger) (*session.Session, bool) {
	sessionID, ok := web.SessionID(r.Context())
	if !ok || sessionID == "" {
		web.RespondError(w, mLogger, http.StatusInternalServerError, "Missing cart session")
		return nil, false
	}
	sess := h.registry.Get(sessionID)

	token := web.TokenFromContext(r)
	snap := sess.Manager.Snapshot()
	switch {
	case token != "" && !snap.Authenticated:
		if err := sess.Manager.SetCredential(r.Context(), token, web.SubjectFromContext(r)); err != nil {
			h.respondCartError(w, r, mLogger, err)
			return nil, false
		}
	case token == "" && snap.Authenticated:
		if err := sess.Manager.ClearCredential(r.Context()); err != nil {
			h.respondCartError(w, r, mLogger, err)
			return nil, false
		}
	}
	return sess, true
}

// respondCartError maps manager errors onto HTTP statuses.
func (h *Handler) respondCartError(w http.ResponseWriter, r *http.Request, mLogger *slog.Logger, err error) {
	var conflict *remote.StockConflictError
	var httpErr *remote.HTTPError
	switch {
	case errors.Is(err, carterrors.ErrInsufficientStock) || errors.As(err, &conflict):
		mLogger.WarnContext(r.Context(), "Insufficient stock", "error", err)
		web.RespondError(w, mLogger, http.StatusConflict, err.Error())
	case errors.Is(err, carterrors.ErrLineNotFound):
		mLogger.WarnContext(r.Context(), "Cart line not found", "error", err)
		web.RespondError(w, mLogger, http.StatusNotFound, err.Error())
	case errors.Is(err, carterrors.ErrNoCredential):
		mLogger.WarnContext(r.Context(), "Remote cart operation without credential", "error", err)
		web.RespondError(w, mLogger, http.StatusUnauthorized, err.Error())
	case errors.As(err, &httpErr) || errors.Is(err, carterrors.ErrSyncCart) || errors.Is(err, carterrors.ErrLoadCart):
		mLogger.ErrorContext(r.Context(), "Cart backend error", "error", err)
		web.RespondError(w, mLogger, http.StatusBadGateway, err.Error())
	default:
		mLogger.ErrorContext(r.Context(), "Cart operation failed", "error", err)
		web.RespondError(w, mLogger, http.StatusInternalServerError, "Cart operation failed")
	}
}

// validStruct validates the request body and writes field errors on failure.
func (h *Handler) validStruct(w http.ResponseWriter, r *http.Request, mLogger *slog.Logger, v any) bool {
	err := h.validate.Struct(v)
	if err == nil {
		return true
	}
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		errorResponse := make(map[string]string)
		for _, fieldErr := range validationErrors {
			errorResponse[fieldErr.Field()] = "failed on rule: " + fieldErr.Tag()
		}
		mLogger.WarnContext(r.Context(), "Validation errors occurred", "errors", errorResponse)
		web.RespondJSON(w, mLogger, http.StatusBadRequest, map[string]any{"validation_errors": errorResponse})
		return false
	}
	mLogger.ErrorContext(r.Context(), "Error validating request body", "error", err)
	web.RespondError(w, mLogger, http.StatusBadRequest, "Invalid request body")
	return false
}

// loggerWithReqID creates a logger with the request ID from the context.
func (h *Handler) loggerWithReqID(r *http.Request) *slog.Logger {
	reqID, found := web.GetRequestID(r.Context())
	if !found {
		reqID = "unknown"
	}
	return h.logger.With("request_id", reqID)
}
