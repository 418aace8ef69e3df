package eventstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/godamri/helix-audit/audit"
)

// Filter narrows browse queries. Zero values mean "any"; Exported is a
// tri-state so callers can ask for pending-only or exported-only rows.
type Filter struct {
	ActorID    string
	ObjectType string
	Action     string
	Method     string
	Since      time.Time
	Until      time.Time
	Exported   *bool
	Limit      int
	Offset     int
}

// DefaultFilter returns the browse default: latest 50, any status.
func DefaultFilter() Filter {
	return Filter{Limit: 50}
}

func (f Filter) normalized() Filter {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Limit > 1000 {
		f.Limit = 1000
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

type condBuilder struct {
	store *Store
	conds []string
	args  []any
}

func (b *condBuilder) add(column, op string, value any) {
	b.args = append(b.args, value)
	b.conds = append(b.conds, fmt.Sprintf("%s %s %s", column, op, b.store.placeholder(len(b.args))))
}

func (b *condBuilder) where() string {
	if len(b.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(b.conds, " AND ")
}

func (f Filter) applyCommon(b *condBuilder) {
	if f.ActorID != "" {
		b.add("actor_id", "=", f.ActorID)
	}
	if !f.Since.IsZero() {
		b.add("created_at", ">=", f.Since.UTC())
	}
	if !f.Until.IsZero() {
		b.add("created_at", "<", f.Until.UTC())
	}
	if f.Exported != nil {
		b.add("exported", "=", *f.Exported)
	}
}

// ListCRUD returns CRUD events matching the filter, newest first.
func (s *Store) ListCRUD(ctx context.Context, f Filter) ([]audit.CRUDEvent, error) {
	f = f.normalized()
	b := &condBuilder{store: s}
	if f.ObjectType != "" {
		b.add("object_type", "=", f.ObjectType)
	}
	if f.Action != "" {
		b.add("action", "=", f.Action)
	}
	f.applyCommon(b)

	query := fmt.Sprintf(
		`SELECT id, %s, exported FROM audit_crud_events%s ORDER BY id DESC LIMIT %s OFFSET %s`,
		crudColumns, b.where(), s.placeholder(len(b.args)+1), s.placeholder(len(b.args)+2),
	)
	args := append(b.args, f.Limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("eventstore: list crud events: %w", err)
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
		return nil, fmt.Errorf("eventstore: iterate crud events: %w", err)
	}
	return events, nil
}

// ListLogin returns login events matching the filter, newest first.
func (s *Store) ListLogin(ctx context.Context, f Filter) ([]audit.LoginEvent, error) {
	f = f.normalized()
	b := &condBuilder{store: s}
	if f.Action != "" {
		b.add("action", "=", f.Action)
	}
	f.applyCommon(b)

	query := fmt.Sprintf(
		`SELECT id, %s, exported FROM audit_login_events%s ORDER BY id DESC LIMIT %s OFFSET %s`,
		loginColumns, b.where(), s.placeholder(len(b.args)+1), s.placeholder(len(b.args)+2),
	)
	args := append(b.args, f.Limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("eventstore: list login events: %w", err)
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
		return nil, fmt.Errorf("eventstore: iterate login events: %w", err)
	}
	return events, nil
}

// ListRequest returns request events matching the filter, newest first.
func (s *Store) ListRequest(ctx context.Context, f Filter) ([]audit.RequestEvent, error) {
	f = f.normalized()
	b := &condBuilder{store: s}
	if f.Method != "" {
		b.add("method", "=", f.Method)
	}
	f.applyCommon(b)

	query := fmt.Sprintf(
		`SELECT id, %s, exported FROM audit_request_events%s ORDER BY id DESC LIMIT %s OFFSET %s`,
		requestColumns, b.where(), s.placeholder(len(b.args)+1), s.placeholder(len(b.args)+2),
	)
	args := append(b.args, f.Limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("eventstore: list request events: %w", err)
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
		return nil, fmt.Errorf("eventstore: iterate request events: %w", err)
	}
	return events, nil
}

// Count reports how many rows of a kind match the filter.
func (s *Store) Count(ctx context.Context, kind audit.Kind, f Filter) (int64, error) {
	table, ok := kindTables[kind]
	if !ok {
		return 0, fmt.Errorf("eventstore: unknown kind %q", kind)
	}

	b := &condBuilder{store: s}
	switch kind {
	case audit.KindCRUD:
		if f.ObjectType != "" {
			b.add("object_type", "=", f.ObjectType)
		}
		if f.Action != "" {
			b.add("action", "=", f.Action)
		}
	case audit.KindLogin:
		if f.Action != "" {
			b.add("action", "=", f.Action)
		}
	case audit.KindRequest:
		if f.Method != "" {
			b.add("method", "=", f.Method)
		}
	}
	f.applyCommon(b)

	var n int64
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s%s`, table, b.where())
	if err := s.db.QueryRowContext(ctx, query, b.args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("eventstore: count %s: %w", table, err)
	}
	return n, nil
}
