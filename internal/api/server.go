// Package api is the HTTP surface of the notification service.
//
// Endpoints:
//   - GET  /health: liveness and processing counters
//   - GET  /api/complaints/action: official approves or rejects via the
//     action link sent in the department message
//   - GET  /api/complaints/{id}/deliveries: ledger rows for one complaint
//   - GET  /api/deliveries/stats: ledger outcome counts
//   - POST /api/events: submit a complaint event for dispatch
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"civicnotify/internal/complaint"
	"civicnotify/internal/health"
	"civicnotify/internal/ledger"
	"civicnotify/internal/storage"
)

// TokenConsumer validates and consumes action tokens. Release undoes a
// Consume whose action could not be recorded.
type TokenConsumer interface {
	Consume(ctx context.Context, complaintID, secret string) error
	Release(ctx context.Context, complaintID, secret string) error
}

// EventSubmitter queues events for dispatch.
type EventSubmitter interface {
	Submit(ctx context.Context, ev complaint.Event) error
}

// Deps are the collaborators the handlers need.
type Deps struct {
	Tokens  TokenConsumer
	Store   storage.Store
	Ledger  ledger.Ledger
	Events  EventSubmitter
	Monitor *health.Monitor
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	deps Deps
	now  func() time.Time
}

// NewRouter builds the chi router with standard middleware and all routes.
func NewRouter(deps Deps) http.Handler {
	h := &Handler{deps: deps, now: time.Now}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Get("/complaints/action", h.Action)
		r.Get("/complaints/{id}/deliveries", h.Deliveries)
		r.Get("/deliveries/stats", h.Stats)
		r.Post("/events", h.SubmitEvent)
	})

	return r
}

// NewServer wraps the router in an http.Server with the same timeouts used
// across our services.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// --- helpers ---

func jsonOK(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, msg string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
