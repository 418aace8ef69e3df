package sink

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	_ "github.com/duckdb/duckdb-go/v2" // registers the duckdb driver

	"github.com/godamri/helix-audit/audit"
)

// DuckDB is the embedded sink: a local columnar file (or pure
// in-memory database) for single-node deployments and tests. Ids are
// primary keys and inserts use ON CONFLICT DO NOTHING, so re-sent
// batches change nothing.
type DuckDB struct {
	db *sql.DB
}

const duckCRUDTable = `
CREATE TABLE IF NOT EXISTS audit_crud_events (
	id BIGINT PRIMARY KEY,
	event_type VARCHAR NOT NULL,
	object_type VARCHAR NOT NULL,
	object_id VARCHAR NOT NULL,
	object_repr VARCHAR NOT NULL,
	object_json VARCHAR NOT NULL,
	changed_fields VARCHAR NOT NULL,
	actor_id VARCHAR NOT NULL,
	actor_name VARCHAR NOT NULL,
	remote_ip VARCHAR NOT NULL,
	trace_id VARCHAR NOT NULL,
	created_at TIMESTAMP NOT NULL
)`

const duckLoginTable = `
CREATE TABLE IF NOT EXISTS audit_login_events (
	id BIGINT PRIMARY KEY,
	event_type VARCHAR NOT NULL,
	actor_id VARCHAR NOT NULL,
	actor_name VARCHAR NOT NULL,
	remote_ip VARCHAR NOT NULL,
	trace_id VARCHAR NOT NULL,
	created_at TIMESTAMP NOT NULL
)`

const duckRequestTable = `
CREATE TABLE IF NOT EXISTS audit_request_events (
	id BIGINT PRIMARY KEY,
	method VARCHAR NOT NULL,
	url VARCHAR NOT NULL,
	query_string VARCHAR NOT NULL,
	actor_id VARCHAR NOT NULL,
	remote_ip VARCHAR NOT NULL,
	trace_id VARCHAR NOT NULL,
	created_at TIMESTAMP NOT NULL
)`

const insertCRUDSQL = `INSERT INTO audit_crud_events
(id, event_type, object_type, object_id, object_repr, object_json, changed_fields, actor_id, actor_name, remote_ip, trace_id, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO NOTHING`

const insertLoginSQL = `INSERT INTO audit_login_events
(id, event_type, actor_id, actor_name, remote_ip, trace_id, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO NOTHING`

const insertRequestSQL = `INSERT INTO audit_request_events
(id, method, url, query_string, actor_id, remote_ip, trace_id, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO NOTHING`

// NewDuckDB opens (or creates) the sink file and its tables.
func NewDuckDB(ctx context.Context, cfg Config) (*DuckDB, error) {
	dsn := ""
	if cfg.Path != "" && cfg.Path != ":memory:" {
		dsn = fmt.Sprintf("%s?access_mode=read_write&threads=%d&max_memory=%s",
			cfg.Path, cfg.Threads, url.QueryEscape(cfg.MaxMemory))
	}

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("sink: open duckdb: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sink: ping duckdb: %w", err)
	}

	d := &DuckDB{db: db}
	if err := d.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return d, nil
}

func (d *DuckDB) ensureSchema(ctx context.Context) error {
	for _, ddl := range []string{duckCRUDTable, duckLoginTable, duckRequestTable} {
		if _, err := d.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("sink: ensure duckdb schema: %w", err)
		}
	}
	return nil
}

func (d *DuckDB) WriteCRUD(ctx context.Context, events []audit.CRUDEvent) error {
	if len(events) == 0 {
		return nil
	}
	return d.writeBatch(ctx, insertCRUDSQL, len(events), func(i int) ([]any, error) {
		ev := &events[i]
		changed, err := ev.ChangedJSON()
		if err != nil {
			return nil, fmt.Errorf("%w: crud event %d: %v", ErrRowMapping, ev.ID, err)
		}
		return []any{
			ev.ID, string(ev.Action), ev.ObjectType, ev.ObjectID, ev.ObjectRepr,
			ev.ObjectJSON, changed, ev.ActorID, ev.ActorName,
			ev.RemoteIP, ev.TraceID, ev.CreatedAt.UTC(),
		}, nil
	})
}

func (d *DuckDB) WriteLogin(ctx context.Context, events []audit.LoginEvent) error {
	if len(events) == 0 {
		return nil
	}
	return d.writeBatch(ctx, insertLoginSQL, len(events), func(i int) ([]any, error) {
		ev := &events[i]
		return []any{
			ev.ID, string(ev.Action), ev.ActorID, ev.ActorName,
			ev.RemoteIP, ev.TraceID, ev.CreatedAt.UTC(),
		}, nil
	})
}

func (d *DuckDB) WriteRequest(ctx context.Context, events []audit.RequestEvent) error {
	if len(events) == 0 {
		return nil
	}
	return d.writeBatch(ctx, insertRequestSQL, len(events), func(i int) ([]any, error) {
		ev := &events[i]
		return []any{
			ev.ID, ev.Method, ev.URL, ev.QueryString, ev.ActorID,
			ev.RemoteIP, ev.TraceID, ev.CreatedAt.UTC(),
		}, nil
	})
}

// writeBatch runs every row through one prepared statement inside a
// transaction: either the whole batch commits or the rollback leaves
// the sink untouched.
func (d *DuckDB) writeBatch(ctx context.Context, query string, n int, rowArgs func(int) ([]any, error)) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sink: begin duckdb tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("sink: prepare duckdb insert: %w", err)
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		args, err := rowArgs(i)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("sink: insert row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sink: commit duckdb batch: %w", err)
	}
	return nil
}

func (d *DuckDB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

func (d *DuckDB) Close() error {
	return d.db.Close()
}
