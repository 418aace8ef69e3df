package syncer_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/godamri/helix-audit/audit"
	"github.com/godamri/helix-audit/syncer"
)

// memStore is an in-memory stand-in for the event store. Pending
// re-evaluates on every call, like the real queries do.
type memStore struct {
	mu      sync.Mutex
	crud    []audit.CRUDEvent
	login   []audit.LoginEvent
	request []audit.RequestEvent

	markCRUDErr error // consumed by the next MarkCRUDExported call
	pendingErr  error

	crudMarkCalls [][]int64
	calls         int

	onPendingCRUD func(s *memStore) // runs before each PendingCRUD evaluation
}

func (s *memStore) PendingCRUD(ctx context.Context, limit int) ([]audit.CRUDEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.onPendingCRUD != nil {
		s.onPendingCRUD(s)
	}
	if s.pendingErr != nil {
		return nil, s.pendingErr
	}
	var out []audit.CRUDEvent
	for _, e := range s.crud {
		if !e.Exported {
			out = append(out, e)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *memStore) PendingLogin(ctx context.Context, limit int) ([]audit.LoginEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	var out []audit.LoginEvent
	for _, e := range s.login {
		if !e.Exported {
			out = append(out, e)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *memStore) PendingRequest(ctx context.Context, limit int) ([]audit.RequestEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	var out []audit.RequestEvent
	for _, e := range s.request {
		if !e.Exported {
			out = append(out, e)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *memStore) MarkCRUDExported(ctx context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.markCRUDErr != nil {
		err := s.markCRUDErr
		s.markCRUDErr = nil
		return err
	}
	s.crudMarkCalls = append(s.crudMarkCalls, append([]int64(nil), ids...))
	for _, id := range ids {
		for i := range s.crud {
			if s.crud[i].ID == id {
				s.crud[i].Exported = true
			}
		}
	}
	return nil
}

func (s *memStore) MarkLoginExported(ctx context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	for _, id := range ids {
		for i := range s.login {
			if s.login[i].ID == id {
				s.login[i].Exported = true
			}
		}
	}
	return nil
}

func (s *memStore) MarkRequestExported(ctx context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	for _, id := range ids {
		for i := range s.request {
			if s.request[i].ID == id {
				s.request[i].Exported = true
			}
		}
	}
	return nil
}

func (s *memStore) PendingCounts(ctx context.Context) (map[audit.Kind]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := map[audit.Kind]int64{audit.KindCRUD: 0, audit.KindLogin: 0, audit.KindRequest: 0}
	for _, e := range s.crud {
		if !e.Exported {
			counts[audit.KindCRUD]++
		}
	}
	for _, e := range s.login {
		if !e.Exported {
			counts[audit.KindLogin]++
		}
	}
	for _, e := range s.request {
		if !e.Exported {
			counts[audit.KindRequest]++
		}
	}
	return counts, nil
}

func (s *memStore) pendingCRUDIDs() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int64
	for _, e := range s.crud {
		if !e.Exported {
			ids = append(ids, e.ID)
		}
	}
	return ids
}

// memSink records batches and upserts rows by id, mirroring the
// ReplacingMergeTree / ON CONFLICT DO NOTHING behavior of the real
// sinks.
type memSink struct {
	mu             sync.Mutex
	crudBatches    [][]int64
	loginBatches   [][]int64
	requestBatches [][]int64
	crudRows       map[int64]audit.CRUDEvent

	failCRUD error
	calls    int

	onWriteCRUD func() // runs after a successful WriteCRUD
}

func newMemSink() *memSink {
	return &memSink{crudRows: map[int64]audit.CRUDEvent{}}
}

func (m *memSink) WriteCRUD(ctx context.Context, events []audit.CRUDEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.failCRUD != nil {
		return m.failCRUD
	}
	ids := make([]int64, len(events))
	for i, e := range events {
		ids[i] = e.ID
		if _, seen := m.crudRows[e.ID]; !seen {
			m.crudRows[e.ID] = e
		}
	}
	m.crudBatches = append(m.crudBatches, ids)
	if m.onWriteCRUD != nil {
		m.onWriteCRUD()
	}
	return nil
}

func (m *memSink) WriteLogin(ctx context.Context, events []audit.LoginEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	ids := make([]int64, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}
	m.loginBatches = append(m.loginBatches, ids)
	return nil
}

func (m *memSink) WriteRequest(ctx context.Context, events []audit.RequestEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	ids := make([]int64, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}
	m.requestBatches = append(m.requestBatches, ids)
	return nil
}

func (m *memSink) Ping(ctx context.Context) error { return nil }
func (m *memSink) Close() error                   { return nil }

func testConfig() syncer.Config {
	return syncer.Config{
		Enabled:  true,
		Kinds:    []string{"crud", "login", "request"},
		PageSize: 500,
	}
}

func crudEvents(ids ...int64) []audit.CRUDEvent {
	events := make([]audit.CRUDEvent, len(ids))
	for i, id := range ids {
		events[i] = audit.CRUDEvent{
			ID:         id,
			Action:     audit.ActionCreated,
			ObjectType: "order",
			ObjectID:   "o-1",
			CreatedAt:  time.Now().UTC(),
		}
	}
	return events
}

func TestRunDisabledTouchesNothing(t *testing.T) {
	store := &memStore{crud: crudEvents(1, 2, 3)}
	sink := newMemSink()

	cfg := testConfig()
	cfg.Enabled = false

	s := syncer.New(cfg, store, sink, nil, nil)
	require.NoError(t, s.Run(context.Background()))

	assert.Zero(t, store.calls, "disabled run must not touch the store")
	assert.Zero(t, sink.calls, "disabled run must not touch the sink")
}

func TestRunExportsAllKinds(t *testing.T) {
	store := &memStore{
		crud:    crudEvents(1, 2),
		login:   []audit.LoginEvent{{ID: 1, Action: audit.ActionLogin}},
		request: []audit.RequestEvent{{ID: 1, Method: "GET", URL: "/v1/orders"}},
	}
	sink := newMemSink()

	s := syncer.New(testConfig(), store, sink, nil, nil)
	require.NoError(t, s.Run(context.Background()))

	assert.Equal(t, [][]int64{{1, 2}}, sink.crudBatches)
	assert.Equal(t, [][]int64{{1}}, sink.loginBatches)
	assert.Equal(t, [][]int64{{1}}, sink.requestBatches)

	counts, err := store.PendingCounts(context.Background())
	require.NoError(t, err)
	for kind, n := range counts {
		assert.Zero(t, n, "kind %s should have no backlog", kind)
	}
}

func TestDrainPaginates(t *testing.T) {
	store := &memStore{crud: crudEvents(10, 11, 12)}
	sink := newMemSink()

	cfg := testConfig()
	cfg.PageSize = 2

	s := syncer.New(cfg, store, sink, nil, nil)
	require.NoError(t, s.Run(context.Background()))

	assert.Equal(t, [][]int64{{10, 11}, {12}}, sink.crudBatches, "pages are re-queried, not offset")
	assert.Equal(t, [][]int64{{10, 11}, {12}}, store.crudMarkCalls, "each page marks exactly its own ids")
	assert.Empty(t, store.pendingCRUDIDs())
}

func TestRerunIsIdempotent(t *testing.T) {
	store := &memStore{crud: crudEvents(1, 2, 3)}
	sink := newMemSink()

	s := syncer.New(testConfig(), store, sink, nil, nil)
	require.NoError(t, s.Run(context.Background()))
	require.NoError(t, s.Run(context.Background()))

	assert.Len(t, sink.crudBatches, 1, "second run must find nothing to export")
	assert.Len(t, store.crudMarkCalls, 1)
	assert.Len(t, sink.crudRows, 3)
}

func TestSinkFailureMarksNothing(t *testing.T) {
	store := &memStore{crud: crudEvents(1, 2)}
	sink := newMemSink()
	sink.failCRUD = errors.New("warehouse down")

	s := syncer.New(testConfig(), store, sink, nil, nil)
	err := s.Run(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "syncer: crud")
	assert.Empty(t, store.crudMarkCalls, "no sink confirmation, no marking")
	assert.ElementsMatch(t, []int64{1, 2}, store.pendingCRUDIDs())
}

func TestKindFailureDoesNotBlockOthers(t *testing.T) {
	store := &memStore{
		crud:    crudEvents(1, 2),
		login:   []audit.LoginEvent{{ID: 5, Action: audit.ActionLogin}},
		request: []audit.RequestEvent{{ID: 7, Method: "GET", URL: "/"}},
	}
	sink := newMemSink()
	sink.failCRUD = errors.New("warehouse down")

	s := syncer.New(testConfig(), store, sink, nil, nil)
	err := s.Run(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "syncer: crud")
	assert.Equal(t, [][]int64{{5}}, sink.loginBatches, "login still drains")
	assert.Equal(t, [][]int64{{7}}, sink.requestBatches, "request still drains")

	// Heal the sink: the next run retries exactly the failed backlog.
	sink.failCRUD = nil
	require.NoError(t, s.Run(context.Background()))

	assert.Equal(t, [][]int64{{1, 2}}, sink.crudBatches)
	assert.Len(t, sink.loginBatches, 1, "already-exported kinds stay quiet")
	assert.Len(t, sink.requestBatches, 1)
	assert.Empty(t, store.pendingCRUDIDs())
}

func TestPartialFailureRetriesOnlyTheTail(t *testing.T) {
	store := &memStore{crud: crudEvents(1, 2, 3, 4)}
	sink := newMemSink()
	sink.onWriteCRUD = func() {
		// First page lands, every later write fails.
		sink.failCRUD = errors.New("warehouse down")
	}

	cfg := testConfig()
	cfg.PageSize = 2

	s := syncer.New(cfg, store, sink, nil, nil)
	err := s.Run(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "sink write")
	assert.Equal(t, [][]int64{{1, 2}}, store.crudMarkCalls, "the confirmed page keeps its mark")
	assert.ElementsMatch(t, []int64{3, 4}, store.pendingCRUDIDs())

	sink.onWriteCRUD = nil
	sink.failCRUD = nil
	require.NoError(t, s.Run(context.Background()))

	assert.Equal(t, [][]int64{{1, 2}, {3, 4}}, sink.crudBatches, "exported rows are never re-sent")
	assert.Len(t, sink.crudRows, 4)
	assert.Empty(t, store.pendingCRUDIDs())
}

func TestCrashBetweenWriteAndMarkResends(t *testing.T) {
	store := &memStore{crud: crudEvents(1, 2)}
	store.markCRUDErr = errors.New("connection reset")
	sink := newMemSink()

	s := syncer.New(testConfig(), store, sink, nil, nil)
	err := s.Run(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "mark exported")
	require.Len(t, sink.crudBatches, 1, "sink write landed before the crash")
	assert.ElementsMatch(t, []int64{1, 2}, store.pendingCRUDIDs(), "unmarked rows stay pending")

	// The retry re-sends the same ids; the sink's upsert keeps one row
	// per id, so the duplicate delivery is invisible downstream.
	require.NoError(t, s.Run(context.Background()))

	assert.Equal(t, [][]int64{{1, 2}, {1, 2}}, sink.crudBatches)
	assert.Len(t, sink.crudRows, 2)
	assert.Empty(t, store.pendingCRUDIDs())
}

func TestInsertsDuringRunAreVisible(t *testing.T) {
	store := &memStore{crud: crudEvents(1, 2, 3)}
	sink := newMemSink()

	injected := false
	store.onPendingCRUD = func(s *memStore) {
		// A concurrent capture commits between page one and page two.
		if len(s.crudMarkCalls) == 1 && !injected {
			injected = true
			s.crud = append(s.crud, crudEvents(4)...)
		}
	}

	cfg := testConfig()
	cfg.PageSize = 2

	s := syncer.New(cfg, store, sink, nil, nil)
	require.NoError(t, s.Run(context.Background()))

	assert.Equal(t, [][]int64{{1, 2}, {3, 4}}, sink.crudBatches)
	assert.Empty(t, store.pendingCRUDIDs())
}

func TestCancellationLandsBetweenBatches(t *testing.T) {
	store := &memStore{crud: crudEvents(1, 2, 3)}
	sink := newMemSink()

	ctx, cancel := context.WithCancel(context.Background())
	sink.onWriteCRUD = func() {
		if len(sink.crudBatches) == 1 {
			cancel()
		}
	}

	cfg := testConfig()
	cfg.PageSize = 1

	s := syncer.New(cfg, store, sink, nil, nil)
	err := s.Run(ctx)

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, [][]int64{{1}}, sink.crudBatches, "in-flight batch completed")
	assert.Equal(t, [][]int64{{1}}, store.crudMarkCalls, "its mark step still ran")
	assert.ElementsMatch(t, []int64{2, 3}, store.pendingCRUDIDs())
}

func TestEnabledKindsKeepFixedOrder(t *testing.T) {
	cfg := syncer.Config{Kinds: []string{"request", "crud"}}
	assert.Equal(t, []audit.Kind{audit.KindCRUD, audit.KindRequest}, cfg.EnabledKinds())

	cfg.Kinds = []string{"login"}
	assert.Equal(t, []audit.Kind{audit.KindLogin}, cfg.EnabledKinds())

	cfg.Kinds = nil
	assert.Empty(t, cfg.EnabledKinds())
}

func TestRuntimeDisableSkipsNextRun(t *testing.T) {
	store := &memStore{crud: crudEvents(1)}
	sink := newMemSink()

	s := syncer.New(testConfig(), store, sink, nil, nil)
	require.NoError(t, s.Run(context.Background()))
	require.Len(t, sink.crudBatches, 1)

	store.crud = append(store.crud, crudEvents(2)...)
	s.SetEnabled(false)
	require.NoError(t, s.Run(context.Background()))

	assert.Len(t, sink.crudBatches, 1, "disabled syncer must not export")
	assert.ElementsMatch(t, []int64{2}, store.pendingCRUDIDs())
}
