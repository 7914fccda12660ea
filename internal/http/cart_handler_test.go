package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fjod/storefront-cart/internal/cart"
	"github.com/fjod/storefront-cart/internal/credential"
	"github.com/fjod/storefront-cart/internal/domain"
	"github.com/fjod/storefront-cart/internal/logger"
	"github.com/fjod/storefront-cart/internal/notify"
)

type CartMock struct {
	mu       sync.Mutex
	snapshot domain.Snapshot
	err      error
	calls    []string
}

func (c *CartMock) record(call string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, call)
	return c.err
}

func (c *CartMock) Snapshot() domain.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

func (c *CartMock) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot.Count
}

func (c *CartMock) Resync(context.Context) error { return c.record("resync") }

func (c *CartMock) AddItem(_ context.Context, productID string, qty int) error {
	return c.record(fmt.Sprintf("add %s %d", productID, qty))
}

func (c *CartMock) UpdateItem(_ context.Context, lineID, productID string, qty int) error {
	return c.record(fmt.Sprintf("update %s %s %d", lineID, productID, qty))
}

func (c *CartMock) RemoveItem(_ context.Context, lineID string) error {
	return c.record("remove " + lineID)
}

func (c *CartMock) Clear() { _ = c.record("clear") }

func (c *CartMock) SignOut(context.Context) { _ = c.record("signout") }

func (c *CartMock) recorded() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

func setupRouter(t *testing.T, mock *CartMock) (http.Handler, *credential.MemoryStore, *notify.Feed) {
	t.Helper()
	creds := credential.NewMemoryStore("")
	feed := notify.NewFeed(0)
	h := NewCartHandler(mock, creds, feed, 5*time.Second, logger.Discard())
	return NewRouter(h, logger.Discard(), 10*time.Second), creds, feed
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func sampleSnapshot() domain.Snapshot {
	lines := []domain.CartLine{{ID: "c-1", MemberID: "m-1", ProductID: "p1", Qty: 2}}
	return domain.Snapshot{MemberID: "m-1", Lines: lines, Count: 2, TotalPrice: domain.TotalPrice(lines)}
}

func TestGetCart_Success(t *testing.T) {
	mock := &CartMock{snapshot: sampleSnapshot()}
	router, _, _ := setupRouter(t, mock)

	rec := do(t, router, http.MethodGet, "/api/v1/cart", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var snap domain.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, "m-1", snap.MemberID)
	require.Len(t, snap.Lines, 1)
	assert.Equal(t, domain.ProductID("p1"), snap.Lines[0].ProductID)
}

func TestGetCount(t *testing.T) {
	mock := &CartMock{snapshot: sampleSnapshot()}
	router, _, _ := setupRouter(t, mock)

	rec := do(t, router, http.MethodGet, "/api/v1/cart/count", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"count":2}`, rec.Body.String())
}

func TestAddItem_Success(t *testing.T) {
	mock := &CartMock{snapshot: sampleSnapshot()}
	router, _, _ := setupRouter(t, mock)

	rec := do(t, router, http.MethodPost, "/api/v1/cart/items", `{"productId":17,"qty":2}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, []string{"add 17 2"}, mock.recorded())
}

func TestAddItem_InvalidJSON(t *testing.T) {
	mock := &CartMock{}
	router, _, _ := setupRouter(t, mock)

	rec := do(t, router, http.MethodPost, "/api/v1/cart/items", `{"productId":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, mock.recorded())
}

func TestUpdateAndRemove(t *testing.T) {
	mock := &CartMock{snapshot: sampleSnapshot()}
	router, _, _ := setupRouter(t, mock)

	rec := do(t, router, http.MethodPut, "/api/v1/cart/items/c-1", `{"productId":"p1","qty":0}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, router, http.MethodDelete, "/api/v1/cart/items/c-1", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, []string{"update c-1 p1 0", "remove c-1"}, mock.recorded())
}

func TestRefreshAndClear(t *testing.T) {
	mock := &CartMock{snapshot: sampleSnapshot()}
	router, _, _ := setupRouter(t, mock)

	assert.Equal(t, http.StatusOK, do(t, router, http.MethodPost, "/api/v1/cart/refresh", "").Code)
	assert.Equal(t, http.StatusOK, do(t, router, http.MethodPost, "/api/v1/cart/clear", "").Code)
	assert.Equal(t, []string{"resync", "clear"}, mock.recorded())
}

func TestCartErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"unauthenticated", cart.ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated"},
		{"quantity", cart.ErrInvalidQuantity, http.StatusBadRequest, "invalid_quantity"},
		{"product", cart.ErrInvalidProduct, http.StatusBadRequest, "invalid_product_id"},
		{"not found", cart.ErrLineNotFound, http.StatusNotFound, "not_found"},
		{"pending", cart.ErrLinePending, http.StatusConflict, "line_pending"},
		{"rejected", fmt.Errorf("%w: status 409", cart.ErrRejected), http.StatusBadGateway, "rejected"},
		{"transport", fmt.Errorf("%w: dial", cart.ErrTransport), http.StatusServiceUnavailable, "service_unavailable"},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout"},
		{"other", fmt.Errorf("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &CartMock{err: tt.err}
			router, _, _ := setupRouter(t, mock)

			rec := do(t, router, http.MethodPost, "/api/v1/cart/items", `{"productId":"p1","qty":1}`)
			assert.Equal(t, tt.status, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.code, resp.Code)
		})
	}
}

func TestSession_SignInAndOut(t *testing.T) {
	mock := &CartMock{snapshot: sampleSnapshot()}
	router, creds, _ := setupRouter(t, mock)

	rec := do(t, router, http.MethodPost, "/api/v1/session", `{"token":"tok-1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	token, err := creds.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)

	rec = do(t, router, http.MethodDelete, "/api/v1/session", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	_, err = creds.Token(context.Background())
	assert.ErrorIs(t, err, credential.ErrNoCredential)
	assert.Equal(t, []string{"resync", "signout"}, mock.recorded())
}

type failingStore struct {
	*credential.MemoryStore
}

func (failingStore) Clear(context.Context) error { return errors.New("disk full") }

func TestSession_SignOutLogsCredentialFailure(t *testing.T) {
	mock := &CartMock{}
	log, hook := logtest.NewNullLogger()
	h := NewCartHandler(mock, failingStore{credential.NewMemoryStore("tok-1")}, notify.NewFeed(0), 5*time.Second, log)
	router := NewRouter(h, logger.Discard(), 10*time.Second)

	rec := do(t, router, http.MethodDelete, "/api/v1/session", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"signout"}, mock.recorded())

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, "failed to clear credential", entry.Message)
	assert.NotNil(t, entry.Context)
}

func TestSession_EmptyToken(t *testing.T) {
	mock := &CartMock{}
	router, _, _ := setupRouter(t, mock)

	rec := do(t, router, http.MethodPost, "/api/v1/session", `{"token":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, mock.recorded())
}

func TestSession_TokenNotAccepted(t *testing.T) {
	mock := &CartMock{}
	router, _, _ := setupRouter(t, mock)

	rec := do(t, router, http.MethodPost, "/api/v1/session", `{"token":"bogus"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestNotifications_Drain(t *testing.T) {
	mock := &CartMock{}
	router, _, feed := setupRouter(t, mock)
	feed.Notify(context.Background(), notify.Notification{Level: notify.LevelError, Message: "could not load the cart"})

	rec := do(t, router, http.MethodGet, "/api/v1/notifications", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got []notify.Notification
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "could not load the cart", got[0].Message)

	rec = do(t, router, http.MethodGet, "/api/v1/notifications", "")
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestHealth(t *testing.T) {
	router, _, _ := setupRouter(t, &CartMock{})
	rec := do(t, router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRequestIDPropagated(t *testing.T) {
	router, _, _ := setupRouter(t, &CartMock{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
}
