package sink

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	clickhouse "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/godamri/helix-audit/audit"
)

// ClickHouse is the networked sink. Tables are ReplacingMergeTree
// keyed by id, so a batch resent after a crashed run collapses back to
// one row per event at merge time.
type ClickHouse struct {
	conn driver.Conn
}

const chCRUDTable = `
CREATE TABLE IF NOT EXISTS audit_crud_events (
	id Int64,
	event_type String,
	object_type String,
	object_id String,
	object_repr String,
	object_json String,
	changed_fields String,
	actor_id String,
	actor_name String,
	remote_ip String,
	trace_id String,
	created_at DateTime64(6, 'UTC')
) ENGINE = ReplacingMergeTree
ORDER BY id`

const chLoginTable = `
CREATE TABLE IF NOT EXISTS audit_login_events (
	id Int64,
	event_type String,
	actor_id String,
	actor_name String,
	remote_ip String,
	trace_id String,
	created_at DateTime64(6, 'UTC')
) ENGINE = ReplacingMergeTree
ORDER BY id`

const chRequestTable = `
CREATE TABLE IF NOT EXISTS audit_request_events (
	id Int64,
	method String,
	url String,
	query_string String,
	actor_id String,
	remote_ip String,
	trace_id String,
	created_at DateTime64(6, 'UTC')
) ENGINE = ReplacingMergeTree
ORDER BY id`

// NewClickHouse dials the warehouse over the native protocol and
// creates the destination tables. Connection settings are exactly the
// external surface: host, port, credentials, database, secure flag.
func NewClickHouse(ctx context.Context, cfg Config) (*ClickHouse, error) {
	opts := &clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout: cfg.DialTimeout,
	}
	if cfg.Secure {
		opts.TLS = &tls.Config{}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("sink: open clickhouse: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.Ping(pingCtx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("sink: ping clickhouse: %w", err)
	}

	c := &ClickHouse{conn: conn}
	if err := c.ensureSchema(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return c, nil
}

func (c *ClickHouse) ensureSchema(ctx context.Context) error {
	for _, ddl := range []string{chCRUDTable, chLoginTable, chRequestTable} {
		if err := c.conn.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("sink: ensure clickhouse schema: %w", err)
		}
	}
	return nil
}

func (c *ClickHouse) WriteCRUD(ctx context.Context, events []audit.CRUDEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := c.conn.PrepareBatch(ctx, "INSERT INTO audit_crud_events")
	if err != nil {
		return fmt.Errorf("sink: prepare crud batch: %w", err)
	}

	for i := range events {
		ev := &events[i]
		changed, err := ev.ChangedJSON()
		if err != nil {
			_ = batch.Abort()
			return fmt.Errorf("%w: crud event %d: %v", ErrRowMapping, ev.ID, err)
		}
		err = batch.Append(
			ev.ID, string(ev.Action), ev.ObjectType, ev.ObjectID, ev.ObjectRepr,
			ev.ObjectJSON, changed, ev.ActorID, ev.ActorName,
			ev.RemoteIP, ev.TraceID, ev.CreatedAt.UTC(),
		)
		if err != nil {
			_ = batch.Abort()
			return fmt.Errorf("sink: append crud event %d: %w", ev.ID, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("sink: send crud batch: %w", err)
	}
	return nil
}

func (c *ClickHouse) WriteLogin(ctx context.Context, events []audit.LoginEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := c.conn.PrepareBatch(ctx, "INSERT INTO audit_login_events")
	if err != nil {
		return fmt.Errorf("sink: prepare login batch: %w", err)
	}

	for i := range events {
		ev := &events[i]
		err = batch.Append(
			ev.ID, string(ev.Action), ev.ActorID, ev.ActorName,
			ev.RemoteIP, ev.TraceID, ev.CreatedAt.UTC(),
		)
		if err != nil {
			_ = batch.Abort()
			return fmt.Errorf("sink: append login event %d: %w", ev.ID, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("sink: send login batch: %w", err)
	}
	return nil
}

func (c *ClickHouse) WriteRequest(ctx context.Context, events []audit.RequestEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := c.conn.PrepareBatch(ctx, "INSERT INTO audit_request_events")
	if err != nil {
		return fmt.Errorf("sink: prepare request batch: %w", err)
	}

	for i := range events {
		ev := &events[i]
		err = batch.Append(
			ev.ID, ev.Method, ev.URL, ev.QueryString, ev.ActorID,
			ev.RemoteIP, ev.TraceID, ev.CreatedAt.UTC(),
		)
		if err != nil {
			_ = batch.Abort()
			return fmt.Errorf("sink: append request event %d: %w", ev.ID, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("sink: send request batch: %w", err)
	}
	return nil
}

func (c *ClickHouse) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

func (c *ClickHouse) Close() error {
	return c.conn.Close()
}
