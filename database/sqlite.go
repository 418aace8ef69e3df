package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelsql"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"

	_ "modernc.org/sqlite" // CGo-free sqlite driver
)

// NewSQLite initializes an embedded event store. The same OTel wrapper
// applies so spans look identical across engines.
//
// The pool is pinned to a single connection: the driver serializes
// writers anyway, and a ":memory:" DSN opened twice is two different
// databases.
func NewSQLite(ctx context.Context, cfg Config, serviceName string) (*sql.DB, error) {
	db, err := otelsql.Open("sqlite", cfg.DSN,
		otelsql.WithAttributes(semconv.ServiceNameKey.String(serviceName)),
		otelsql.WithDBName("sqlite"),
	)
	if err != nil {
		return nil, fmt.Errorf("helix-audit/database: failed to open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("helix-audit/database: failed to ping sqlite: %w", err)
	}

	return db, nil
}
