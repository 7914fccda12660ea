package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fjod/storefront-cart/internal/circuitbreaker"
	"github.com/fjod/storefront-cart/internal/domain"
)

func newTestClient(t *testing.T, h http.Handler, breaker circuitbreaker.Config) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(Config{BaseURL: srv.URL, Timeout: 2 * time.Second, Breaker: breaker}, nil)
	require.NoError(t, err)
	return c
}

func TestNewClient_InvalidURL(t *testing.T) {
	_, err := NewClient(Config{BaseURL: "not a url"}, nil)
	assert.Error(t, err)
}

func TestWhoAmI_SendsBearer(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/api/member/info", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"id":"m-1","name":"Ann"}`))
	})
	c := newTestClient(t, r, circuitbreaker.Config{})

	m, err := c.WhoAmI(context.Background(), "tok-1")
	require.NoError(t, err)
	assert.Equal(t, "m-1", m.ID)
}

func TestWhoAmI_MissingIDIsUnauthorized(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/api/member/info", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	c := newTestClient(t, r, circuitbreaker.Config{})

	_, err := c.WhoAmI(context.Background(), "tok")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.True(t, se.Unauthorized())
}

func TestListLines_NormalizesProductIDs(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/api/cart/list/{member}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "m-1", chi.URLParam(r, "member"))
		_, _ = w.Write([]byte(`[
			{"id":"c1","memberId":"m-1","productId":17,"qty":2,"product":{"id":17,"name":"Book","price":120.5}},
			{"id":"c2","memberId":"m-1","productId":" p-9 ","qty":1,"product":{"id":"p-9","name":"Pen","price":"3"}}
		]`))
	})
	c := newTestClient(t, r, circuitbreaker.Config{})

	lines, err := c.ListLines(context.Background(), "tok", "m-1")
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, domain.ProductID("17"), lines[0].ProductID)
	assert.Equal(t, domain.ProductID("p-9"), lines[1].ProductID)
	assert.Equal(t, "120.5", lines[0].Product.Price.String())
}

func TestCreateLine_PostsBodyAndDecodesEcho(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/api/cart/add", func(w http.ResponseWriter, r *http.Request) {
		var req CreateLineRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, CreateLineRequest{MemberID: "m-1", ProductID: "p-1", Qty: 3}, req)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"srv-1","memberId":"m-1","productId":"p-1","qty":3}`))
	})
	c := newTestClient(t, r, circuitbreaker.Config{})

	line, err := c.CreateLine(context.Background(), "tok", CreateLineRequest{MemberID: "m-1", ProductID: "p-1", Qty: 3})
	require.NoError(t, err)
	assert.Equal(t, "srv-1", line.ID)
}

func TestCreateLine_NonJSONBodyStillSucceeds(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/api/cart/add", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`ok`))
	})
	c := newTestClient(t, r, circuitbreaker.Config{})

	line, err := c.CreateLine(context.Background(), "tok", CreateLineRequest{MemberID: "m", ProductID: "p", Qty: 1})
	require.NoError(t, err)
	assert.Empty(t, line.ID)
}

func TestUpdateAndDelete(t *testing.T) {
	var updated, deleted atomic.Bool
	r := chi.NewRouter()
	r.Put("/api/cart/update", func(w http.ResponseWriter, r *http.Request) {
		var req UpdateLineRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 7, req.Qty)
		updated.Store(true)
	})
	r.Delete("/api/cart/remove/{id}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "c-1", chi.URLParam(r, "id"))
		deleted.Store(true)
		w.WriteHeader(http.StatusNoContent)
	})
	c := newTestClient(t, r, circuitbreaker.Config{})

	require.NoError(t, c.UpdateLine(context.Background(), "tok", UpdateLineRequest{ID: "c-1", MemberID: "m", ProductID: "p", Qty: 7}))
	require.NoError(t, c.DeleteLine(context.Background(), "tok", "c-1"))
	assert.True(t, updated.Load())
	assert.True(t, deleted.Load())
}

func TestStatusError(t *testing.T) {
	r := chi.NewRouter()
	r.Delete("/api/cart/remove/{id}", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "line not found", http.StatusNotFound)
	})
	c := newTestClient(t, r, circuitbreaker.Config{})

	err := c.DeleteLine(context.Background(), "tok", "nope")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.Code)
	assert.Equal(t, "line not found", se.Body)
	assert.False(t, errors.Is(err, ErrTransport))
}

func TestTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := NewClient(Config{BaseURL: url, Timeout: time.Second}, nil)
	require.NoError(t, err)

	_, err = c.ListLines(context.Background(), "tok", "m")
	assert.ErrorIs(t, err, ErrTransport)
}

func TestBreakerOpensOnServerErrors(t *testing.T) {
	var hits atomic.Int32
	r := chi.NewRouter()
	r.Get("/api/cart/list/{member}", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})
	c := newTestClient(t, r, circuitbreaker.Config{ConsecutiveFailures: 2, OpenTimeout: time.Minute, HalfOpenRequests: 1})

	for i := 0; i < 2; i++ {
		_, err := c.ListLines(context.Background(), "tok", "m")
		var se *StatusError
		require.ErrorAs(t, err, &se)
	}
	_, err := c.ListLines(context.Background(), "tok", "m")
	assert.ErrorIs(t, err, ErrTransport)
	assert.Equal(t, int32(2), hits.Load())
}

func TestClientErrorsDoNotTripBreaker(t *testing.T) {
	r := chi.NewRouter()
	r.Put("/api/cart/update", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "qty out of range", http.StatusBadRequest)
	})
	c := newTestClient(t, r, circuitbreaker.Config{ConsecutiveFailures: 1, OpenTimeout: time.Minute})

	for i := 0; i < 3; i++ {
		err := c.UpdateLine(context.Background(), "tok", UpdateLineRequest{ID: "x", Qty: 1})
		var se *StatusError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, http.StatusBadRequest, se.Code)
	}
}
