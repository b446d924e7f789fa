// Package httptransport assembles the HTTP API. Three auth domains share
// one router: tools authenticate with the technical basic-auth user, data
// owners with a Revolori-issued bearer token, and operators with the admin
// basic-auth user.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	accesshandler "overseer/internal/access/handler"
	policyhandler "overseer/internal/policy/handler"
	toolhandler "overseer/internal/tool/handler"
	"overseer/pkg/platform/httputil"
	authmiddleware "overseer/pkg/platform/middleware/auth"
	requestmiddleware "overseer/pkg/platform/middleware/request"
)

// Handlers bundles the feature handlers the router mounts.
type Handlers struct {
	Access *accesshandler.Handler
	Policy *policyhandler.Handler
	Tool   *toolhandler.Handler
}

// Auth bundles the router's authentication material.
type Auth struct {
	Verifier  authmiddleware.TokenVerifier
	Technical authmiddleware.BasicCredentials
	Admin     authmiddleware.BasicCredentials
}

// HealthChecker pings a backing dependency.
type HealthChecker func(ctx context.Context) error

// NewRouter wires all endpoints with their middleware stacks.
func NewRouter(h Handlers, auth Auth, health HealthChecker, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(requestmiddleware.RequestID)
	r.Use(requestmiddleware.RequestTime)

	r.Get("/health", handleHealth(health))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Tool listing is read-only and feeds UI dropdowns; it stays open like
	// the health endpoint.
	h.Tool.RegisterPublic(r)

	r.Group(func(r chi.Router) {
		r.Use(authmiddleware.RequireBasic(auth.Technical, "overseer", logger))
		h.Access.RegisterRequests(r)
	})

	r.Group(func(r chi.Router) {
		r.Use(authmiddleware.RequireOwner(auth.Verifier, logger))
		h.Access.RegisterOwner(r)
		h.Policy.Register(r)
	})

	r.Group(func(r chi.Router) {
		r.Use(authmiddleware.RequireBasic(auth.Admin, "overseer-admin", logger))
		h.Access.RegisterAdmin(r)
		h.Tool.RegisterAdmin(r)
	})

	return r
}

func handleHealth(health HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := health(r.Context()); err != nil {
			httputil.WriteJSON(w, http.StatusInternalServerError, map[string]string{
				"status": "unhealthy",
			})
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
