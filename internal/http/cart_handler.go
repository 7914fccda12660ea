package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/fjod/storefront-cart/internal/cart"
	"github.com/fjod/storefront-cart/internal/credential"
	"github.com/fjod/storefront-cart/internal/domain"
	"github.com/fjod/storefront-cart/internal/notify"
)

// CartService is the part of the cart manager the handlers drive.
type CartService interface {
	Snapshot() domain.Snapshot
	Count() int
	Resync(ctx context.Context) error
	AddItem(ctx context.Context, productID string, qty int) error
	UpdateItem(ctx context.Context, lineID, productID string, qty int) error
	RemoveItem(ctx context.Context, lineID string) error
	Clear()
	SignOut(ctx context.Context)
}

type NotificationSource interface {
	Drain() []notify.Notification
}

type CartHandler struct {
	cart    CartService
	creds   credential.Store
	feed    NotificationSource
	timeout time.Duration
	log     logrus.FieldLogger
}

func NewCartHandler(cart CartService, creds credential.Store, feed NotificationSource, timeout time.Duration, log logrus.FieldLogger) *CartHandler {
	return &CartHandler{
		cart:    cart,
		creds:   creds,
		feed:    feed,
		timeout: timeout,
		log:     log,
	}
}

type AddItemRequestDTO struct {
	ProductID domain.ProductID `json:"productId"`
	Qty       int              `json:"qty"`
}

type UpdateItemRequestDTO struct {
	ProductID domain.ProductID `json:"productId"`
	Qty       int              `json:"qty"`
}

type SessionRequestDTO struct {
	Token string `json:"token"`
}

type CountResponseDTO struct {
	Count int `json:"count"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

const maxRequestBodySize = 1 << 20 // 1MB

func (h *CartHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req SessionRequestDTO
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.creds.Save(ctx, req.Token); err != nil {
		if errors.Is(err, credential.ErrNoCredential) {
			respondError(w, http.StatusBadRequest, "invalid_token", "token is required")
			return
		}
		h.log.WithError(err).WithContext(ctx).Error("failed to save credential")
		respondError(w, http.StatusInternalServerError, "internal_error", "could not save credential")
		return
	}

	if err := h.cart.Resync(ctx); err != nil {
		h.handleCartError(w, err)
		return
	}
	snap := h.cart.Snapshot()
	if snap.MemberID == "" {
		respondError(w, http.StatusUnauthorized, "unauthenticated", "token was not accepted")
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

func (h *CartHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.creds.Clear(ctx); err != nil {
		h.log.WithError(err).WithContext(ctx).Warn("failed to clear credential")
	}
	h.cart.SignOut(ctx)
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.cart.Snapshot())
}

func (h *CartHandler) GetCount(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, CountResponseDTO{Count: h.cart.Count()})
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req AddItemRequestDTO
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.cart.AddItem(ctx, req.ProductID.String(), req.Qty); err != nil {
		h.handleCartError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, h.cart.Snapshot())
}

func (h *CartHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	lineID := chi.URLParam(r, "line_id")
	var req UpdateItemRequestDTO
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.cart.UpdateItem(ctx, lineID, req.ProductID.String(), req.Qty); err != nil {
		h.handleCartError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.cart.Snapshot())
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.cart.RemoveItem(ctx, chi.URLParam(r, "line_id")); err != nil {
		h.handleCartError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.cart.Snapshot())
}

func (h *CartHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.cart.Resync(ctx); err != nil {
		h.handleCartError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.cart.Snapshot())
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	h.cart.Clear()
	respondJSON(w, http.StatusOK, h.cart.Snapshot())
}

func (h *CartHandler) Notifications(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.feed.Drain())
}

func (h *CartHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	return true
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logrus.WithError(err).Warn("failed to encode response")
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// handleCartError converts manager errors to HTTP status codes. The manager
// has already notified and resynced by the time it returns.
func (h *CartHandler) handleCartError(w http.ResponseWriter, err error) {
	var httpStatus int
	var code string

	switch {
	case errors.Is(err, cart.ErrUnauthenticated):
		httpStatus = http.StatusUnauthorized
		code = "unauthenticated"
	case errors.Is(err, cart.ErrInvalidQuantity):
		httpStatus = http.StatusBadRequest
		code = "invalid_quantity"
	case errors.Is(err, cart.ErrInvalidProduct):
		httpStatus = http.StatusBadRequest
		code = "invalid_product_id"
	case errors.Is(err, cart.ErrLineNotFound):
		httpStatus = http.StatusNotFound
		code = "not_found"
	case errors.Is(err, cart.ErrLinePending):
		httpStatus = http.StatusConflict
		code = "line_pending"
	case errors.Is(err, cart.ErrRejected):
		httpStatus = http.StatusBadGateway
		code = "rejected"
	case errors.Is(err, cart.ErrTransport):
		httpStatus = http.StatusServiceUnavailable
		code = "service_unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		httpStatus = http.StatusGatewayTimeout
		code = "timeout"
	default:
		h.log.WithError(err).Error("unexpected cart error")
		httpStatus = http.StatusInternalServerError
		code = "internal_error"
	}

	respondError(w, httpStatus, code, err.Error())
}
