package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// NewRouter mounts the storefront API under /api/v1.
func NewRouter(h *CartHandler, log logrus.FieldLogger, requestTimeout time.Duration) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(log))
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/session", h.SignIn)
		r.Delete("/session", h.SignOut)
		r.Get("/notifications", h.Notifications)
		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.GetCart)
			r.Get("/count", h.GetCount)
			r.Post("/items", h.AddItem)
			r.Put("/items/{line_id}", h.UpdateItem)
			r.Delete("/items/{line_id}", h.RemoveItem)
			r.Post("/refresh", h.Refresh)
			r.Post("/clear", h.ClearCart)
		})
	})

	return otelhttp.NewHandler(r, "storefront")
}
