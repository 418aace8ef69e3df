// Package eventstore is the transactional record of audit events. Rows
// carry a monotonic identity and an exported marker; the marker is the
// only export bookkeeping state in the system, so progress survives
// restarts and is always consistent with row-level truth.
package eventstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/godamri/helix-audit/audit"
)

// Store wraps the primary database. All methods are safe for
// concurrent use; the capture layer only inserts and the sync
// orchestrator only flips exported false to true, so the two roles
// never conflict on a row.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// DB exposes the underlying handle for health probes.
func (s *Store) DB() *sql.DB {
	return s.db
}

const (
	crudColumns    = "action, object_type, object_id, object_repr, object_json, changed_fields, actor_id, actor_name, remote_ip, trace_id, created_at"
	loginColumns   = "action, actor_id, actor_name, remote_ip, trace_id, created_at"
	requestColumns = "method, url, query_string, actor_id, remote_ip, trace_id, created_at"
)

var kindTables = map[audit.Kind]string{
	audit.KindCRUD:    "audit_crud_events",
	audit.KindLogin:   "audit_login_events",
	audit.KindRequest: "audit_request_events",
}

func (s *Store) InsertCRUD(ctx context.Context, event *audit.CRUDEvent) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	changed, err := event.ChangedJSON()
	if err != nil {
		return fmt.Errorf("eventstore: encode changed fields: %w", err)
	}

	query := fmt.Sprintf(
		`INSERT INTO audit_crud_events (%s, exported) VALUES (%s, FALSE) RETURNING id`,
		crudColumns, s.placeholders(11),
	)
	err = s.db.QueryRowContext(ctx, query,
		string(event.Action), event.ObjectType, event.ObjectID, event.ObjectRepr,
		event.ObjectJSON, changed, event.ActorID, event.ActorName,
		event.RemoteIP, event.TraceID, event.CreatedAt.UTC(),
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("eventstore: insert crud event: %w", err)
	}
	event.Exported = false
	return nil
}

func (s *Store) InsertLogin(ctx context.Context, event *audit.LoginEvent) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	query := fmt.Sprintf(
		`INSERT INTO audit_login_events (%s, exported) VALUES (%s, FALSE) RETURNING id`,
		loginColumns, s.placeholders(6),
	)
	err := s.db.QueryRowContext(ctx, query,
		string(event.Action), event.ActorID, event.ActorName,
		event.RemoteIP, event.TraceID, event.CreatedAt.UTC(),
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("eventstore: insert login event: %w", err)
	}
	event.Exported = false
	return nil
}

func (s *Store) InsertRequest(ctx context.Context, event *audit.RequestEvent) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	query := fmt.Sprintf(
		`INSERT INTO audit_request_events (%s, exported) VALUES (%s, FALSE) RETURNING id`,
		requestColumns, s.placeholders(7),
	)
	err := s.db.QueryRowContext(ctx, query,
		event.Method, event.URL, event.QueryString, event.ActorID,
		event.RemoteIP, event.TraceID, event.CreatedAt.UTC(),
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("eventstore: insert request event: %w", err)
	}
	event.Exported = false
	return nil
}

// PendingCRUD returns up to limit unexported CRUD events, oldest id
// first. Each call re-evaluates the pending set, so rows inserted
// after a previous page was read are picked up by a later call. An
// empty slice is the drain loop's terminal condition, not an error.
func (s *Store) PendingCRUD(ctx context.Context, limit int) ([]audit.CRUDEvent, error) {
	query := fmt.Sprintf(
		`SELECT id, %s, exported FROM audit_crud_events WHERE NOT exported ORDER BY id ASC LIMIT %s`,
		crudColumns, s.placeholder(1),
	)
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("eventstore: query pending crud events: %w", err)
	}
	defer rows.Close()

	var events []audit.CRUDEvent
	for rows.Next() {
		ev, err := scanCRUD(rows)
		if err != nil {
			return nil, fmt.Errorf("eventstore: scan crud event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("eventstore: iterate pending crud events: %w", err)
	}
	return events, nil
}

// PendingLogin mirrors PendingCRUD for login events.
func (s *Store) PendingLogin(ctx context.Context, limit int) ([]audit.LoginEvent, error) {
	query := fmt.Sprintf(
		`SELECT id, %s, exported FROM audit_login_events WHERE NOT exported ORDER BY id ASC LIMIT %s`,
		loginColumns, s.placeholder(1),
	)
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("eventstore: query pending login events: %w", err)
	}
	defer rows.Close()

	var events []audit.LoginEvent
	for rows.Next() {
		ev, err := scanLogin(rows)
		if err != nil {
			return nil, fmt.Errorf("eventstore: scan login event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("eventstore: iterate pending login events: %w", err)
	}
	return events, nil
}

// PendingRequest mirrors PendingCRUD for request events.
func (s *Store) PendingRequest(ctx context.Context, limit int) ([]audit.RequestEvent, error) {
	query := fmt.Sprintf(
		`SELECT id, %s, exported FROM audit_request_events WHERE NOT exported ORDER BY id ASC LIMIT %s`,
		requestColumns, s.placeholder(1),
	)
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("eventstore: query pending request events: %w", err)
	}
	defer rows.Close()

	var events []audit.RequestEvent
	for rows.Next() {
		ev, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("eventstore: scan request event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("eventstore: iterate pending request events: %w", err)
	}
	return events, nil
}

func (s *Store) MarkCRUDExported(ctx context.Context, ids []int64) error {
	return s.markExported(ctx, "audit_crud_events", ids)
}

func (s *Store) MarkLoginExported(ctx context.Context, ids []int64) error {
	return s.markExported(ctx, "audit_login_events", ids)
}

func (s *Store) MarkRequestExported(ctx context.Context, ids []int64) error {
	return s.markExported(ctx, "audit_request_events", ids)
}

// markExported flips the marker for exactly the given id set in one
// statement. Rows already marked by an overlapping run are simply
// affected zero times; that is the no-op the overlap design counts on.
func (s *Store) markExported(ctx context.Context, table string, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	ph := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		ph[i] = s.placeholder(i + 1)
		args[i] = id
	}

	query := fmt.Sprintf(`UPDATE %s SET exported = TRUE WHERE id IN (%s)`, table, strings.Join(ph, ", "))
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("eventstore: mark exported %s: %w", table, err)
	}
	return nil
}

// PendingCounts reports the per-kind backlog for metrics and readiness.
func (s *Store) PendingCounts(ctx context.Context) (map[audit.Kind]int64, error) {
	counts := make(map[audit.Kind]int64, len(kindTables))
	for kind, table := range kindTables {
		var n int64
		query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE NOT exported`, table)
		if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
			return nil, fmt.Errorf("eventstore: count pending %s: %w", table, err)
		}
		counts[kind] = n
	}
	return counts, nil
}

func (s *Store) placeholder(i int) string {
	if s.dialect == DialectPostgres {
		return fmt.Sprintf("$%d", i)
	}
	return "?"
}

func (s *Store) placeholders(n int) string {
	ph := make([]string, n)
	for i := range ph {
		ph[i] = s.placeholder(i + 1)
	}
	return strings.Join(ph, ", ")
}

func scanCRUD(rows *sql.Rows) (audit.CRUDEvent, error) {
	var ev audit.CRUDEvent
	var changed string
	err := rows.Scan(
		&ev.ID, &ev.Action, &ev.ObjectType, &ev.ObjectID, &ev.ObjectRepr,
		&ev.ObjectJSON, &changed, &ev.ActorID, &ev.ActorName,
		&ev.RemoteIP, &ev.TraceID, &ev.CreatedAt, &ev.Exported,
	)
	if err != nil {
		return ev, err
	}
	if err := ev.SetChangedJSON(changed); err != nil {
		return ev, err
	}
	return ev, nil
}

func scanLogin(rows *sql.Rows) (audit.LoginEvent, error) {
	var ev audit.LoginEvent
	err := rows.Scan(
		&ev.ID, &ev.Action, &ev.ActorID, &ev.ActorName,
		&ev.RemoteIP, &ev.TraceID, &ev.CreatedAt, &ev.Exported,
	)
	return ev, err
}

func scanRequest(rows *sql.Rows) (audit.RequestEvent, error) {
	var ev audit.RequestEvent
	err := rows.Scan(
		&ev.ID, &ev.Method, &ev.URL, &ev.QueryString, &ev.ActorID,
		&ev.RemoteIP, &ev.TraceID, &ev.CreatedAt, &ev.Exported,
	)
	return ev, err
}
