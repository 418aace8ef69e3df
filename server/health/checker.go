package health

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/godamri/helix-audit/sink"
)

// Checker handles the health check endpoints.
type Checker struct {
	db     *sql.DB
	sink   sink.Client
	rdb    *redis.Client
	logger *slog.Logger
}

// NewChecker creates a new health checker instance. sink and rdb may
// be nil; absent components are simply not probed.
func NewChecker(db *sql.DB, sinkClient sink.Client, rdb *redis.Client, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{
		db:     db,
		sink:   sinkClient,
		rdb:    rdb,
		logger: logger,
	}
}

// RegisterRoutes registers the health check routes on the router.
func (c *Checker) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", c.HandleHealth)   // Liveness
	r.Get("/readyz", c.HandleReadiness) // Readiness
}

// HandleHealth provides a simple liveness check (Kubernetes Liveness Probe).
// Just returns 200 OK if the binary is running.
func (c *Checker) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// HandleReadiness checks if the service is ready to accept traffic (Kubernetes Readiness Probe).
// Performs real-time checks against the event store and the sink.
func (c *Checker) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	// If a dependency is slow (>500ms), we consider ourselves down to
	// prevent traffic blackholes. We want the Load Balancer to cut us
	// off immediately if the store is struggling.
	ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
	defer cancel()

	statusCode := http.StatusOK
	components := map[string]string{}

	components["store"] = c.probe(ctx, "store", func() error { return c.db.PingContext(ctx) })
	if c.sink != nil {
		components["sink"] = c.probe(ctx, "sink", func() error { return c.sink.Ping(ctx) })
	}
	if c.rdb != nil {
		components["redis"] = c.probe(ctx, "redis", func() error { return c.rdb.Ping(ctx).Err() })
	}

	status := "UP"
	for _, s := range components {
		if s != "UP" {
			status = "DOWN"
			statusCode = http.StatusServiceUnavailable
			break
		}
	}

	response := map[string]any{
		"status":     status,
		"components": components,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		c.logger.Error("failed to write health response", "error", err)
	}
}

func (c *Checker) probe(ctx context.Context, name string, ping func() error) string {
	if err := ping(); err != nil {
		c.logger.ErrorContext(ctx, "readiness check failed", "component", name, "error", err)
		return "DOWN"
	}
	return "UP"
}
