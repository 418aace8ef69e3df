package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/godamri/helix-audit/contextx"
)

// Recorder is the capture entry point. The host application calls it at
// the moment of the underlying action; the Recorder fills in actor,
// remote IP and trace id from the context, applies the filter chain and
// hands the event to the configured Backend.
//
// Backend failures are logged and swallowed unless PropagateErrors is
// set: a broken audit path must not break the action it observes.
type Recorder struct {
	cfg     Config
	backend Backend
	filters []CRUDFilter
	logger  *slog.Logger
	enabled atomic.Bool
}

// NewRecorder wires the capture pipeline. Exclusions from cfg run
// before the caller-supplied filters; filters short-circuit on the
// first drop. A nil backend records nowhere, a nil logger falls back
// to slog.Default().
func NewRecorder(cfg Config, backend Backend, filters []CRUDFilter, logger *slog.Logger) *Recorder {
	if backend == nil {
		backend = &NoopBackend{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	var chain []CRUDFilter
	if len(cfg.ExcludeObjectTypes) > 0 {
		chain = append(chain, ExcludeObjectTypes(cfg.ExcludeObjectTypes...))
	}
	if len(cfg.ExcludeActors) > 0 {
		chain = append(chain, ExcludeActors(cfg.ExcludeActors...))
	}
	chain = append(chain, filters...)

	r := &Recorder{
		cfg:     cfg,
		backend: backend,
		filters: chain,
		logger:  logger,
	}
	r.enabled.Store(cfg.Enabled)
	return r
}

// SetEnabled flips the capture switch at runtime. Disabled recorders
// return nil from every capture call without touching the backend.
func (r *Recorder) SetEnabled(on bool) {
	r.enabled.Store(on)
}

// Enabled reports the current state of the capture switch.
func (r *Recorder) Enabled() bool {
	return r.enabled.Load()
}

// Created records the creation of a watched object. obj is the state
// after the action and lands serialized in ObjectJSON.
func (r *Recorder) Created(ctx context.Context, objectType, objectID, repr string, obj any) error {
	if !r.enabled.Load() || !r.cfg.WatchCRUD {
		return nil
	}
	event := r.newCRUDEvent(ctx, ActionCreated, objectType, objectID, repr)
	if err := r.attachObjectJSON(event, obj); err != nil {
		return r.capture(ctx, string(KindCRUD), err)
	}
	return r.submitCRUD(ctx, event)
}

// Updated records a modification, diffing the old and new snapshots.
// With SkipUnchanged set, an empty diff records nothing.
func (r *Recorder) Updated(ctx context.Context, objectType, objectID, repr string, oldObj, newObj any) error {
	if !r.enabled.Load() || !r.cfg.WatchCRUD {
		return nil
	}
	delta, err := Diff(oldObj, newObj)
	if err != nil {
		return r.capture(ctx, string(KindCRUD), err)
	}
	if len(delta) == 0 && r.cfg.SkipUnchanged {
		return nil
	}
	event := r.newCRUDEvent(ctx, ActionUpdated, objectType, objectID, repr)
	event.ChangedFields = delta
	if err := r.attachObjectJSON(event, newObj); err != nil {
		return r.capture(ctx, string(KindCRUD), err)
	}
	return r.submitCRUD(ctx, event)
}

// Deleted records a removal. obj is the last known state.
func (r *Recorder) Deleted(ctx context.Context, objectType, objectID, repr string, obj any) error {
	if !r.enabled.Load() || !r.cfg.WatchCRUD {
		return nil
	}
	event := r.newCRUDEvent(ctx, ActionDeleted, objectType, objectID, repr)
	if err := r.attachObjectJSON(event, obj); err != nil {
		return r.capture(ctx, string(KindCRUD), err)
	}
	return r.submitCRUD(ctx, event)
}

// Login records an authentication success for the given principal.
func (r *Recorder) Login(ctx context.Context, actorID, actorName string) error {
	return r.submitLogin(ctx, ActionLogin, actorID, actorName)
}

// Logout records the end of a session.
func (r *Recorder) Logout(ctx context.Context, actorID, actorName string) error {
	return r.submitLogin(ctx, ActionLogout, actorID, actorName)
}

// FailedLogin records a failed attempt. Only the attempted name is
// known, so ActorID stays empty.
func (r *Recorder) FailedLogin(ctx context.Context, actorName string) error {
	return r.submitLogin(ctx, ActionFailedLogin, "", actorName)
}

// Request records one completed inbound HTTP request. URL filtering is
// the middleware's job; the Recorder stores whatever reaches it.
func (r *Recorder) Request(ctx context.Context, method, url, query string) error {
	if !r.enabled.Load() || !r.cfg.WatchRequests {
		return nil
	}
	event := &RequestEvent{
		Method:      method,
		URL:         url,
		QueryString: query,
		ActorID:     contextx.GetActorID(ctx),
		RemoteIP:    contextx.GetRemoteIP(ctx),
		TraceID:     traceID(ctx),
		CreatedAt:   time.Now().UTC(),
	}
	if _, err := r.backend.Request(ctx, event); err != nil {
		return r.capture(ctx, string(KindRequest), err)
	}
	return nil
}

func (r *Recorder) newCRUDEvent(ctx context.Context, action CRUDAction, objectType, objectID, repr string) *CRUDEvent {
	return &CRUDEvent{
		Action:     action,
		ObjectType: objectType,
		ObjectID:   objectID,
		ObjectRepr: repr,
		ActorID:    contextx.GetActorID(ctx),
		ActorName:  contextx.GetActorName(ctx),
		RemoteIP:   contextx.GetRemoteIP(ctx),
		TraceID:    traceID(ctx),
		CreatedAt:  time.Now().UTC(),
	}
}

// traceID reads the propagated trace id, mapping the "untriaged"
// logging sentinel to empty so stored rows stay clean.
func traceID(ctx context.Context) string {
	if id := contextx.GetTraceID(ctx); id != contextx.TraceIDUnknown {
		return id
	}
	return ""
}

func (r *Recorder) attachObjectJSON(event *CRUDEvent, obj any) error {
	if obj == nil {
		return nil
	}
	raw, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("audit: serialize %s %s: %w", event.ObjectType, event.ObjectID, err)
	}
	event.ObjectJSON = string(raw)
	return nil
}

func (r *Recorder) submitCRUD(ctx context.Context, event *CRUDEvent) error {
	for _, filter := range r.filters {
		if !filter(ctx, event) {
			return nil
		}
	}
	if _, err := r.backend.CRUD(ctx, event); err != nil {
		return r.capture(ctx, string(KindCRUD), err)
	}
	return nil
}

func (r *Recorder) submitLogin(ctx context.Context, action LoginAction, actorID, actorName string) error {
	if !r.enabled.Load() || !r.cfg.WatchLogin {
		return nil
	}
	event := &LoginEvent{
		Action:    action,
		ActorID:   actorID,
		ActorName: actorName,
		RemoteIP:  contextx.GetRemoteIP(ctx),
		TraceID:   traceID(ctx),
		CreatedAt: time.Now().UTC(),
	}
	if _, err := r.backend.Login(ctx, event); err != nil {
		return r.capture(ctx, string(KindLogin), err)
	}
	return nil
}

// capture applies the hook failure policy: swallow and log, or
// propagate when configured.
func (r *Recorder) capture(ctx context.Context, kind string, err error) error {
	if r.cfg.PropagateErrors {
		return err
	}
	r.logger.ErrorContext(ctx, "audit capture failed", "kind", kind, "error", err)
	return nil
}
