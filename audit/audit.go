package audit

import (
	"context"
	"encoding/json"
	"time"
)

// Kind discriminates the three captured event families.
type Kind string

const (
	KindCRUD    Kind = "crud"
	KindLogin   Kind = "login"
	KindRequest Kind = "request"
)

// Kinds returns every kind in processing order. The order is fixed so
// export runs drain the same way on every invocation.
func Kinds() []Kind {
	return []Kind{KindCRUD, KindLogin, KindRequest}
}

func (k Kind) IsValid() bool {
	switch k {
	case KindCRUD, KindLogin, KindRequest:
		return true
	}
	return false
}

// CRUDAction is the lifecycle transition a CRUDEvent records.
type CRUDAction string

const (
	ActionCreated CRUDAction = "created"
	ActionUpdated CRUDAction = "updated"
	ActionDeleted CRUDAction = "deleted"
)

// LoginAction is the authentication transition a LoginEvent records.
type LoginAction string

const (
	ActionLogin       LoginAction = "login"
	ActionLogout      LoginAction = "logout"
	ActionFailedLogin LoginAction = "failed-login"
)

// CRUDEvent records one create/update/delete of a watched object.
//
// ID is assigned by the event store on insert and never changes
// afterwards; it doubles as the export cursor and the sink upsert key.
// Exported starts false and is flipped true exactly once by the sync
// orchestrator after the row is confirmed in the analytical sink.
type CRUDEvent struct {
	ID            int64                `json:"id"`
	Action        CRUDAction           `json:"action"`
	ObjectType    string               `json:"object_type"` // On What? (order, user)
	ObjectID      string               `json:"object_id"`
	ObjectRepr    string               `json:"object_repr,omitempty"`
	ObjectJSON    string               `json:"object_json,omitempty"`    // serialized state after the action
	ChangedFields map[string][2]string `json:"changed_fields,omitempty"` // field -> [old, new]
	ActorID       string               `json:"actor_id,omitempty"`       // Who? (user id, "system")
	ActorName     string               `json:"actor_name,omitempty"`
	RemoteIP      string               `json:"remote_ip,omitempty"`
	TraceID       string               `json:"trace_id,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
	Exported      bool                 `json:"exported"`
}

// ChangedJSON renders the changed-fields diff as a JSON document for
// columnar storage. Empty diff renders as "".
func (e *CRUDEvent) ChangedJSON() (string, error) {
	if len(e.ChangedFields) == 0 {
		return "", nil
	}
	raw, err := json.Marshal(e.ChangedFields)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// SetChangedJSON restores the diff from its serialized form.
func (e *CRUDEvent) SetChangedJSON(raw string) error {
	if raw == "" {
		e.ChangedFields = nil
		return nil
	}
	return json.Unmarshal([]byte(raw), &e.ChangedFields)
}

// LoginEvent records an authentication success, logout or failure.
// Failed attempts carry the attempted name with an empty ActorID.
type LoginEvent struct {
	ID        int64       `json:"id"`
	Action    LoginAction `json:"action"`
	ActorID   string      `json:"actor_id,omitempty"`
	ActorName string      `json:"actor_name,omitempty"`
	RemoteIP  string      `json:"remote_ip,omitempty"`
	TraceID   string      `json:"trace_id,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	Exported  bool        `json:"exported"`
}

// RequestEvent records one completed inbound HTTP request.
type RequestEvent struct {
	ID          int64     `json:"id"`
	Method      string    `json:"method"`
	URL         string    `json:"url"`
	QueryString string    `json:"query_string,omitempty"`
	ActorID     string    `json:"actor_id,omitempty"`
	RemoteIP    string    `json:"remote_ip,omitempty"`
	TraceID     string    `json:"trace_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	Exported    bool      `json:"exported"`
}

// Backend receives every captured event on its way to storage and may
// transform it. The returned event is what callers observe, store
// identity included. Implementations decide where events land
// (primary store, Kafka mirror, nowhere).
type Backend interface {
	CRUD(ctx context.Context, event *CRUDEvent) (*CRUDEvent, error)
	Login(ctx context.Context, event *LoginEvent) (*LoginEvent, error)
	Request(ctx context.Context, event *RequestEvent) (*RequestEvent, error)
}

// NoopBackend is for dev/testing. Events pass through unstored.
type NoopBackend struct{}

func (n *NoopBackend) CRUD(ctx context.Context, event *CRUDEvent) (*CRUDEvent, error) {
	return event, nil
}

func (n *NoopBackend) Login(ctx context.Context, event *LoginEvent) (*LoginEvent, error) {
	return event, nil
}

func (n *NoopBackend) Request(ctx context.Context, event *RequestEvent) (*RequestEvent, error) {
	return event, nil
}
