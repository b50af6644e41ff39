// Package httptransport assembles the HTTP surface: the check-in API behind
// bearer auth, the realtime websocket endpoint, and the operational routes.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	checkinhandler "shepherd/internal/checkin/handler"
	"shepherd/internal/platform/middleware"
	"shepherd/internal/realtime/hub"
	"shepherd/pkg/platform/httputil"
)

// Deps carries everything the router mounts.
type Deps struct {
	CheckIn *checkinhandler.Handler
	Hub     *hub.Hub
	Auth    *middleware.TokenValidator
	Logger  *slog.Logger

	// Health reports readiness of the backing stores; nil means always ready.
	Health func(ctx context.Context) error
}

// NewRouter wires all endpoints. Operational routes stay outside the auth
// group; everything that touches check-in state requires a bearer token.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", handleHealth(deps.Health))
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(deps.Auth, deps.Logger))
		deps.CheckIn.Register(r)
		if deps.Hub != nil {
			r.Get("/realtime", deps.Hub.HandleWS)
		}
	})

	return r
}

func handleHealth(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			if err := check(r.Context()); err != nil {
				httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status": "unavailable",
				})
				return
			}
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
