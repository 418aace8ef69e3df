package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/godamri/helix-audit/audit"
	"github.com/godamri/helix-audit/server/health"
	"github.com/godamri/helix-audit/server/middleware"
)

// RouterDeps carries everything the HTTP surface composes. Optional
// pieces are nil-able: no Auth means an open API, no RateLimit means
// unthrottled, no Recorder means the service does not audit itself.
type RouterDeps struct {
	ServiceName      string
	Logger           *slog.Logger
	API              *API
	Health           *health.Checker
	Auth             *middleware.AuthMiddleware
	RateLimit        func(http.Handler) http.Handler
	Recorder         *audit.Recorder
	URLFilter        *audit.URLFilter
	RemoteAddrHeader string
}

// NewRouter builds the chi router. Probes and metrics sit outside the
// auth fence so orchestrators and scrapers need no credentials.
func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.TraceIDMiddleware)
	r.Use(middleware.OTelMiddleware(deps.ServiceName))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.PanicRecovery)
	r.Use(middleware.MetricsMiddleware)
	r.Use(middleware.LoggerMiddleware(deps.Logger))

	deps.Health.RegisterRoutes(r)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		if deps.RateLimit != nil {
			r.Use(deps.RateLimit)
		}
		if deps.Auth != nil {
			r.Use(deps.Auth.HTTPMiddleware)
		}
		if deps.Recorder != nil {
			r.Use(middleware.RequestAuditMiddleware(deps.Recorder, deps.URLFilter, deps.RemoteAddrHeader))
		}
		deps.API.RegisterRoutes(r)
	})

	return r
}
