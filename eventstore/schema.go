package eventstore

import (
	"context"
	"fmt"
	"strings"
)

// Dialect selects the SQL flavor of the primary store.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// One table per event kind. Identity is engine-assigned and monotonic;
// AUTOINCREMENT/BIGSERIAL both guarantee ids are never reused, which
// the export cursor depends on. The partial indexes keep the pending
// scan cheap once the backlog is mostly exported.
const schemaPostgres = `
CREATE TABLE IF NOT EXISTS audit_crud_events (
	id BIGSERIAL PRIMARY KEY,
	action TEXT NOT NULL,
	object_type TEXT NOT NULL,
	object_id TEXT NOT NULL,
	object_repr TEXT NOT NULL DEFAULT '',
	object_json TEXT NOT NULL DEFAULT '',
	changed_fields TEXT NOT NULL DEFAULT '',
	actor_id TEXT NOT NULL DEFAULT '',
	actor_name TEXT NOT NULL DEFAULT '',
	remote_ip TEXT NOT NULL DEFAULT '',
	trace_id TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	exported BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS idx_audit_crud_pending ON audit_crud_events (id) WHERE NOT exported;
CREATE INDEX IF NOT EXISTS idx_audit_crud_created ON audit_crud_events (created_at);
CREATE TABLE IF NOT EXISTS audit_login_events (
	id BIGSERIAL PRIMARY KEY,
	action TEXT NOT NULL,
	actor_id TEXT NOT NULL DEFAULT '',
	actor_name TEXT NOT NULL DEFAULT '',
	remote_ip TEXT NOT NULL DEFAULT '',
	trace_id TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	exported BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS idx_audit_login_pending ON audit_login_events (id) WHERE NOT exported;
CREATE INDEX IF NOT EXISTS idx_audit_login_created ON audit_login_events (created_at);
CREATE TABLE IF NOT EXISTS audit_request_events (
	id BIGSERIAL PRIMARY KEY,
	method TEXT NOT NULL,
	url TEXT NOT NULL,
	query_string TEXT NOT NULL DEFAULT '',
	actor_id TEXT NOT NULL DEFAULT '',
	remote_ip TEXT NOT NULL DEFAULT '',
	trace_id TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	exported BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS idx_audit_request_pending ON audit_request_events (id) WHERE NOT exported;
CREATE INDEX IF NOT EXISTS idx_audit_request_created ON audit_request_events (created_at)
`

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS audit_crud_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	action TEXT NOT NULL,
	object_type TEXT NOT NULL,
	object_id TEXT NOT NULL,
	object_repr TEXT NOT NULL DEFAULT '',
	object_json TEXT NOT NULL DEFAULT '',
	changed_fields TEXT NOT NULL DEFAULT '',
	actor_id TEXT NOT NULL DEFAULT '',
	actor_name TEXT NOT NULL DEFAULT '',
	remote_ip TEXT NOT NULL DEFAULT '',
	trace_id TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	exported BOOLEAN NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_audit_crud_pending ON audit_crud_events (id) WHERE NOT exported;
CREATE INDEX IF NOT EXISTS idx_audit_crud_created ON audit_crud_events (created_at);
CREATE TABLE IF NOT EXISTS audit_login_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	action TEXT NOT NULL,
	actor_id TEXT NOT NULL DEFAULT '',
	actor_name TEXT NOT NULL DEFAULT '',
	remote_ip TEXT NOT NULL DEFAULT '',
	trace_id TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	exported BOOLEAN NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_audit_login_pending ON audit_login_events (id) WHERE NOT exported;
CREATE INDEX IF NOT EXISTS idx_audit_login_created ON audit_login_events (created_at);
CREATE TABLE IF NOT EXISTS audit_request_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	method TEXT NOT NULL,
	url TEXT NOT NULL,
	query_string TEXT NOT NULL DEFAULT '',
	actor_id TEXT NOT NULL DEFAULT '',
	remote_ip TEXT NOT NULL DEFAULT '',
	trace_id TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	exported BOOLEAN NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_audit_request_pending ON audit_request_events (id) WHERE NOT exported;
CREATE INDEX IF NOT EXISTS idx_audit_request_created ON audit_request_events (created_at)
`

// EnsureSchema creates the event tables and indexes if missing.
// Statements run one at a time; some drivers reject multi-statement
// Exec.
func (s *Store) EnsureSchema(ctx context.Context) error {
	ddl := schemaPostgres
	if s.dialect == DialectSQLite {
		ddl = schemaSQLite
	}

	for _, stmt := range strings.Split(ddl, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("eventstore: ensure schema: %w", err)
		}
	}
	return nil
}
