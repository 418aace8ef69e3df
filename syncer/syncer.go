// Package syncer drives the periodic export of audit events from the
// primary store to the analytical sink. Per kind it extracts a page of
// pending events, bulk-writes it to the sink, and only after a
// confirmed write marks that exact id set exported. A crash between
// write and mark re-sends the batch next run; the sink's upsert-by-id
// absorbs the duplicate. That is the whole consistency story: at
// least once delivery plus idempotent writes, no distributed
// transaction.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/godamri/helix-audit/audit"
	"github.com/godamri/helix-audit/sink"
)

// Store is the slice of the event store the orchestrator drives.
// Pending queries re-evaluate on every call; Mark flips exactly the
// given id set in one statement.
type Store interface {
	PendingCRUD(ctx context.Context, limit int) ([]audit.CRUDEvent, error)
	PendingLogin(ctx context.Context, limit int) ([]audit.LoginEvent, error)
	PendingRequest(ctx context.Context, limit int) ([]audit.RequestEvent, error)
	MarkCRUDExported(ctx context.Context, ids []int64) error
	MarkLoginExported(ctx context.Context, ids []int64) error
	MarkRequestExported(ctx context.Context, ids []int64) error
	PendingCounts(ctx context.Context) (map[audit.Kind]int64, error)
}

type Syncer struct {
	cfg     Config
	store   Store
	sink    sink.Client
	lock    *RunLock
	logger  *slog.Logger
	tracer  trace.Tracer
	enabled atomic.Bool
}

// New wires the orchestrator. lock may be nil; the run then relies on
// idempotency alone to tolerate overlapping schedules.
func New(cfg Config, store Store, sinkClient sink.Client, lock *RunLock, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Syncer{
		cfg:    cfg,
		store:  store,
		sink:   sinkClient,
		lock:   lock,
		logger: logger,
		tracer: otel.Tracer("helix-audit/syncer"),
	}
	s.enabled.Store(cfg.Enabled)
	return s
}

// SetEnabled flips the export switch at runtime. A disabled syncer
// skips scheduled runs entirely.
func (s *Syncer) SetEnabled(on bool) {
	s.enabled.Store(on)
}

// Run is the sync entry point. With the switch off it returns without
// touching store or sink. Each enabled kind drains independently; one
// kind's failure is reported but never blocks the others. The next
// scheduled run retries whatever stayed pending, so there is no
// in-run backoff.
func (s *Syncer) Run(ctx context.Context) error {
	if !s.enabled.Load() {
		s.logger.DebugContext(ctx, "audit sync disabled, skipping run")
		return nil
	}

	ctx, span := s.tracer.Start(ctx, "audit.sync.run")
	defer span.End()

	var errs []error
	for _, kind := range s.cfg.EnabledKinds() {
		if err := s.syncKind(ctx, kind); err != nil {
			errs = append(errs, fmt.Errorf("syncer: %s: %w", kind, err))
		}
	}

	s.observePending(ctx)
	return errors.Join(errs...)
}

func (s *Syncer) syncKind(ctx context.Context, kind audit.Kind) error {
	ctx, span := s.tracer.Start(ctx, "audit.sync."+string(kind))
	defer span.End()

	if s.lock != nil {
		acquired, err := s.lock.Acquire(ctx, kind)
		if err != nil {
			syncRunsTotal.WithLabelValues(string(kind), "error").Inc()
			return err
		}
		if !acquired {
			s.logger.InfoContext(ctx, "another run holds the sync lock, skipping", "kind", kind)
			syncRunsTotal.WithLabelValues(string(kind), "skipped").Inc()
			return nil
		}
		defer s.lock.Release(ctx, kind)
	}

	start := time.Now()
	exported, err := s.drain(ctx, kind)
	if err != nil {
		span.RecordError(err)
		syncRunsTotal.WithLabelValues(string(kind), "error").Inc()
		s.logger.ErrorContext(ctx, "audit sync aborted",
			"kind", kind,
			"exported", exported,
			"error", err,
		)
		return err
	}

	syncRunsTotal.WithLabelValues(string(kind), "ok").Inc()
	s.logger.InfoContext(ctx, "audit sync complete",
		"kind", kind,
		"exported", exported,
		"took", time.Since(start),
	)
	return nil
}

func (s *Syncer) drain(ctx context.Context, kind audit.Kind) (int, error) {
	switch kind {
	case audit.KindCRUD:
		return drainKind(ctx, s, kind,
			s.store.PendingCRUD, s.sink.WriteCRUD, s.store.MarkCRUDExported,
			func(e audit.CRUDEvent) int64 { return e.ID })
	case audit.KindLogin:
		return drainKind(ctx, s, kind,
			s.store.PendingLogin, s.sink.WriteLogin, s.store.MarkLoginExported,
			func(e audit.LoginEvent) int64 { return e.ID })
	case audit.KindRequest:
		return drainKind(ctx, s, kind,
			s.store.PendingRequest, s.sink.WriteRequest, s.store.MarkRequestExported,
			func(e audit.RequestEvent) int64 { return e.ID })
	default:
		return 0, fmt.Errorf("unknown kind %q", kind)
	}
}

// drainKind loops extract, write, mark until no pending events remain.
// No page is ever marked without a confirmed sink write, and a failed
// batch is abandoned whole: zero of its events get marked. Each
// extract re-queries the store, so events inserted mid-run surface in
// a later page instead of being skipped.
func drainKind[E any](
	ctx context.Context,
	s *Syncer,
	kind audit.Kind,
	pending func(context.Context, int) ([]E, error),
	write func(context.Context, []E) error,
	mark func(context.Context, []int64) error,
	id func(E) int64,
) (int, error) {
	total := 0
	for {
		// Cancellation lands between batches, never inside one; an
		// in-flight batch always reaches its mark step or fails whole.
		if err := ctx.Err(); err != nil {
			return total, err
		}

		batch, err := pending(ctx, s.cfg.PageSize)
		if err != nil {
			return total, fmt.Errorf("extract pending batch: %w", err)
		}
		if len(batch) == 0 {
			return total, nil
		}

		start := time.Now()
		if err := write(ctx, batch); err != nil {
			return total, fmt.Errorf("sink write, batch of %d: %w", len(batch), err)
		}

		ids := make([]int64, len(batch))
		for i, ev := range batch {
			ids[i] = id(ev)
		}
		if err := mark(ctx, ids); err != nil {
			return total, fmt.Errorf("mark exported, batch of %d: %w", len(batch), err)
		}

		syncBatchDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
		syncExportedTotal.WithLabelValues(string(kind)).Add(float64(len(batch)))
		total += len(batch)
	}
}

// observePending refreshes the backlog gauges. Best effort; a failed
// probe never fails the run.
func (s *Syncer) observePending(ctx context.Context) {
	counts, err := s.store.PendingCounts(ctx)
	if err != nil {
		s.logger.DebugContext(ctx, "pending backlog probe failed", "error", err)
		return
	}
	for kind, n := range counts {
		syncPendingEvents.WithLabelValues(string(kind)).Set(float64(n))
	}
}
