package audit_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/godamri/helix-audit/audit"
	"github.com/godamri/helix-audit/contextx"
)

// fakeBackend records everything the Recorder hands over and can be
// told to fail.
type fakeBackend struct {
	mu       sync.Mutex
	crud     []*audit.CRUDEvent
	login    []*audit.LoginEvent
	requests []*audit.RequestEvent
	fail     error
}

func (b *fakeBackend) CRUD(ctx context.Context, event *audit.CRUDEvent) (*audit.CRUDEvent, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail != nil {
		return nil, b.fail
	}
	b.crud = append(b.crud, event)
	return event, nil
}

func (b *fakeBackend) Login(ctx context.Context, event *audit.LoginEvent) (*audit.LoginEvent, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail != nil {
		return nil, b.fail
	}
	b.login = append(b.login, event)
	return event, nil
}

func (b *fakeBackend) Request(ctx context.Context, event *audit.RequestEvent) (*audit.RequestEvent, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail != nil {
		return nil, b.fail
	}
	b.requests = append(b.requests, event)
	return event, nil
}

func (b *fakeBackend) total() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.crud) + len(b.login) + len(b.requests)
}

func watchAll() audit.Config {
	return audit.Config{
		Enabled:       true,
		WatchCRUD:     true,
		WatchLogin:    true,
		WatchRequests: true,
	}
}

func TestRecorderCapturesAllKinds(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{}
	rec := audit.NewRecorder(watchAll(), backend, nil, nil)

	require.NoError(t, rec.Created(ctx, "invoice", "inv-1", "Invoice inv-1", map[string]any{"total": 100}))
	require.NoError(t, rec.Login(ctx, "u-1", "ava"))
	require.NoError(t, rec.Request(ctx, "GET", "/v1/invoices", "limit=10"))

	require.Len(t, backend.crud, 1)
	assert.Equal(t, audit.ActionCreated, backend.crud[0].Action)
	assert.Equal(t, `{"total":100}`, backend.crud[0].ObjectJSON)
	assert.False(t, backend.crud[0].CreatedAt.IsZero())
	assert.Empty(t, backend.crud[0].TraceID, "no propagated trace means no stored sentinel")

	require.Len(t, backend.login, 1)
	assert.Equal(t, audit.ActionLogin, backend.login[0].Action)
	assert.Equal(t, "u-1", backend.login[0].ActorID)

	require.Len(t, backend.requests, 1)
	assert.Equal(t, "/v1/invoices", backend.requests[0].URL)
	assert.Equal(t, "limit=10", backend.requests[0].QueryString)
}

func TestRecorderDisabledRecordsNothing(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{}
	cfg := watchAll()
	cfg.Enabled = false
	rec := audit.NewRecorder(cfg, backend, nil, nil)

	require.NoError(t, rec.Created(ctx, "invoice", "inv-1", "", nil))
	require.NoError(t, rec.Updated(ctx, "invoice", "inv-1", "", nil, nil))
	require.NoError(t, rec.Deleted(ctx, "invoice", "inv-1", "", nil))
	require.NoError(t, rec.Login(ctx, "u-1", "ava"))
	require.NoError(t, rec.Logout(ctx, "u-1", "ava"))
	require.NoError(t, rec.FailedLogin(ctx, "ava"))
	require.NoError(t, rec.Request(ctx, "GET", "/x", ""))

	assert.Zero(t, backend.total(), "disabled capture must not reach the backend")
}

func TestRecorderWatchSwitchesArePerFamily(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{}
	cfg := watchAll()
	cfg.WatchCRUD = false
	cfg.WatchRequests = false
	rec := audit.NewRecorder(cfg, backend, nil, nil)

	require.NoError(t, rec.Created(ctx, "invoice", "inv-1", "", nil))
	require.NoError(t, rec.Request(ctx, "GET", "/x", ""))
	require.NoError(t, rec.Login(ctx, "u-1", "ava"))

	assert.Empty(t, backend.crud)
	assert.Empty(t, backend.requests)
	assert.Len(t, backend.login, 1)
}

func TestRecorderSetEnabledFlipsAtRuntime(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{}
	rec := audit.NewRecorder(watchAll(), backend, nil, nil)

	require.NoError(t, rec.Login(ctx, "u-1", "ava"))
	rec.SetEnabled(false)
	require.NoError(t, rec.Login(ctx, "u-1", "ava"))
	rec.SetEnabled(true)
	require.NoError(t, rec.Login(ctx, "u-1", "ava"))

	assert.Len(t, backend.login, 2)
	assert.True(t, rec.Enabled())
}

func TestRecorderUpdatedDiffsSnapshots(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{}
	rec := audit.NewRecorder(watchAll(), backend, nil, nil)

	oldObj := map[string]any{"status": "draft", "total": 100}
	newObj := map[string]any{"status": "sent", "total": 100}
	require.NoError(t, rec.Updated(ctx, "invoice", "inv-1", "Invoice inv-1", oldObj, newObj))

	require.Len(t, backend.crud, 1)
	ev := backend.crud[0]
	assert.Equal(t, audit.ActionUpdated, ev.Action)
	assert.Equal(t, map[string][2]string{"status": {"draft", "sent"}}, ev.ChangedFields)
	assert.Equal(t, `{"status":"sent","total":100}`, ev.ObjectJSON)
}

func TestRecorderSkipUnchanged(t *testing.T) {
	ctx := context.Background()
	obj := map[string]any{"status": "draft"}

	backend := &fakeBackend{}
	cfg := watchAll()
	cfg.SkipUnchanged = true
	rec := audit.NewRecorder(cfg, backend, nil, nil)

	require.NoError(t, rec.Updated(ctx, "invoice", "inv-1", "", obj, obj))
	assert.Empty(t, backend.crud, "empty diff with SkipUnchanged records nothing")

	// Default behavior keeps the no-op save visible.
	backend = &fakeBackend{}
	rec = audit.NewRecorder(watchAll(), backend, nil, nil)
	require.NoError(t, rec.Updated(ctx, "invoice", "inv-1", "", obj, obj))
	require.Len(t, backend.crud, 1)
	assert.Nil(t, backend.crud[0].ChangedFields)
}

func TestRecorderFailedLoginHasNoActorID(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{}
	rec := audit.NewRecorder(watchAll(), backend, nil, nil)

	require.NoError(t, rec.FailedLogin(ctx, "ava"))

	require.Len(t, backend.login, 1)
	assert.Equal(t, audit.ActionFailedLogin, backend.login[0].Action)
	assert.Empty(t, backend.login[0].ActorID)
	assert.Equal(t, "ava", backend.login[0].ActorName)
}

func TestRecorderFillsContextIdentity(t *testing.T) {
	ctx := contextx.WithActor(context.Background(), "u-9", "zoe")
	ctx = contextx.WithRemoteIP(ctx, "10.1.2.3")
	ctx = contextx.WithTraceID(ctx, "trace-xyz")

	backend := &fakeBackend{}
	rec := audit.NewRecorder(watchAll(), backend, nil, nil)

	require.NoError(t, rec.Created(ctx, "invoice", "inv-1", "", nil))
	require.NoError(t, rec.Request(ctx, "GET", "/v1/invoices", ""))

	require.Len(t, backend.crud, 1)
	assert.Equal(t, "u-9", backend.crud[0].ActorID)
	assert.Equal(t, "zoe", backend.crud[0].ActorName)
	assert.Equal(t, "10.1.2.3", backend.crud[0].RemoteIP)
	assert.Equal(t, "trace-xyz", backend.crud[0].TraceID)

	require.Len(t, backend.requests, 1)
	assert.Equal(t, "u-9", backend.requests[0].ActorID)
	assert.Equal(t, "10.1.2.3", backend.requests[0].RemoteIP)
}

func TestRecorderConfigExclusionsRunFirst(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{}
	cfg := watchAll()
	cfg.ExcludeObjectTypes = []string{"session"}
	cfg.ExcludeActors = []string{"svc-backfill"}
	rec := audit.NewRecorder(cfg, backend, nil, nil)

	require.NoError(t, rec.Created(ctx, "session", "s-1", "", nil))
	require.NoError(t, rec.Created(contextx.WithActor(ctx, "svc-backfill", ""), "invoice", "inv-1", "", nil))
	require.NoError(t, rec.Created(ctx, "invoice", "inv-2", "", nil))

	require.Len(t, backend.crud, 1)
	assert.Equal(t, "inv-2", backend.crud[0].ObjectID)
}

func TestRecorderCustomFiltersShortCircuit(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{}

	var secondRan bool
	drop := func(ctx context.Context, event *audit.CRUDEvent) bool { return false }
	probe := func(ctx context.Context, event *audit.CRUDEvent) bool {
		secondRan = true
		return true
	}
	rec := audit.NewRecorder(watchAll(), backend, []audit.CRUDFilter{drop, probe}, nil)

	require.NoError(t, rec.Created(ctx, "invoice", "inv-1", "", nil))

	assert.Empty(t, backend.crud)
	assert.False(t, secondRan, "filters stop at the first drop")
}

func TestRecorderSwallowsBackendErrorsByDefault(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{fail: errors.New("store down")}
	rec := audit.NewRecorder(watchAll(), backend, nil, nil)

	assert.NoError(t, rec.Created(ctx, "invoice", "inv-1", "", nil))
	assert.NoError(t, rec.Login(ctx, "u-1", "ava"))
	assert.NoError(t, rec.Request(ctx, "GET", "/x", ""))
}

func TestRecorderPropagateErrors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("store down")
	backend := &fakeBackend{fail: boom}
	cfg := watchAll()
	cfg.PropagateErrors = true
	rec := audit.NewRecorder(cfg, backend, nil, nil)

	err := rec.Created(ctx, "invoice", "inv-1", "", nil)
	require.ErrorIs(t, err, boom)

	err = rec.Request(ctx, "GET", "/x", "")
	require.ErrorIs(t, err, boom)
}

func TestRecorderPropagatesSerializationErrors(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{}
	cfg := watchAll()
	cfg.PropagateErrors = true
	rec := audit.NewRecorder(cfg, backend, nil, nil)

	err := rec.Created(ctx, "invoice", "inv-1", "", make(chan int))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "serialize")
	assert.Empty(t, backend.crud)
}
