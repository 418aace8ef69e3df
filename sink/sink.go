// Package sink writes exported audit events into the analytical
// columnar store. Writes are bulk upserts keyed by event id: re-sending
// a previously written batch changes nothing, which is what lets the
// orchestrator resend freely after partial failures.
package sink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/godamri/helix-audit/audit"
)

// ErrRowMapping marks an event that cannot be flattened into the sink
// schema. The whole batch fails and stays pending in the primary store;
// silently dropping the row would lose it forever.
var ErrRowMapping = errors.New("sink: row mapping failed")

// Client is the analytical sink. A batch either lands fully or not at
// all; no partial-batch success is ever reported to the caller. One
// destination table per event kind, every source field mapped to a
// column.
type Client interface {
	WriteCRUD(ctx context.Context, events []audit.CRUDEvent) error
	WriteLogin(ctx context.Context, events []audit.LoginEvent) error
	WriteRequest(ctx context.Context, events []audit.RequestEvent) error
	Ping(ctx context.Context) error
	Close() error
}

// Config is the sink connection surface, read once at job start.
type Config struct {
	// Driver selects the sink engine: "clickhouse" for a networked
	// warehouse, "duckdb" for a local columnar file.
	Driver string `envconfig:"SINK_DRIVER" default:"clickhouse" validate:"oneof=clickhouse duckdb" yaml:"driver"`

	// ClickHouse connection settings.
	Host        string        `envconfig:"SINK_HOST" default:"localhost" yaml:"host"`
	Port        int           `envconfig:"SINK_PORT" default:"9000" yaml:"port"`
	Username    string        `envconfig:"SINK_USERNAME" default:"default" yaml:"username"`
	Password    string        `envconfig:"SINK_PASSWORD" yaml:"password"`
	Database    string        `envconfig:"SINK_DATABASE" default:"default" yaml:"database"`
	Secure      bool          `envconfig:"SINK_SECURE" default:"false" yaml:"secure"`
	DialTimeout time.Duration `envconfig:"SINK_DIAL_TIMEOUT" default:"10s" yaml:"dial_timeout"`

	// DuckDB settings. Path ":memory:" (or empty) keeps the sink
	// in-process with no file.
	Path      string `envconfig:"SINK_PATH" default:"audit_sink.duckdb" yaml:"path"`
	Threads   int    `envconfig:"SINK_THREADS" default:"4" yaml:"threads"`
	MaxMemory string `envconfig:"SINK_MAX_MEMORY" default:"512MB" yaml:"max_memory"`
}

// Open builds the configured sink client and verifies connectivity.
func Open(ctx context.Context, cfg Config) (Client, error) {
	switch cfg.Driver {
	case "clickhouse":
		return NewClickHouse(ctx, cfg)
	case "duckdb":
		return NewDuckDB(ctx, cfg)
	default:
		return nil, fmt.Errorf("sink: unknown driver %q", cfg.Driver)
	}
}
