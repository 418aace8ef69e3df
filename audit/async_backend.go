package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// AsyncBackend decorates another backend with a buffered channel and a
// single worker so capture stays off the caller's hot path. Events
// return to the caller immediately and without store identity; the
// delegate assigns it later on the worker goroutine.
type AsyncBackend struct {
	next      Backend
	jobs      chan asyncJob
	wg        sync.WaitGroup
	logger    *slog.Logger
	closeOnce sync.Once

	// Config
	blockOnFull bool

	// Drop Strategy Metrics
	dropCount   uint64
	lastLogTime time.Time
	dropMu      sync.Mutex
}

type asyncJob struct {
	crud    *CRUDEvent
	login   *LoginEvent
	request *RequestEvent
}

func NewAsyncBackend(next Backend, bufferSize int, blockOnFull bool, logger *slog.Logger) *AsyncBackend {
	if next == nil {
		next = &NoopBackend{}
	}
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	if logger == nil {
		logger = slog.Default()
	}

	b := &AsyncBackend{
		next:        next,
		jobs:        make(chan asyncJob, bufferSize),
		logger:      logger,
		blockOnFull: blockOnFull, // Injected Config
		lastLogTime: time.Now(),
	}

	b.wg.Add(1)
	go b.worker()

	return b
}

func (b *AsyncBackend) CRUD(ctx context.Context, event *CRUDEvent) (*CRUDEvent, error) {
	if err := b.enqueue(ctx, asyncJob{crud: event}, "crud:"+string(event.Action)); err != nil {
		return nil, err
	}
	return event, nil
}

func (b *AsyncBackend) Login(ctx context.Context, event *LoginEvent) (*LoginEvent, error) {
	if err := b.enqueue(ctx, asyncJob{login: event}, "login:"+string(event.Action)); err != nil {
		return nil, err
	}
	return event, nil
}

func (b *AsyncBackend) Request(ctx context.Context, event *RequestEvent) (*RequestEvent, error) {
	if err := b.enqueue(ctx, asyncJob{request: event}, "request:"+event.Method); err != nil {
		return nil, err
	}
	return event, nil
}

func (b *AsyncBackend) enqueue(ctx context.Context, job asyncJob, label string) error {
	if b.blockOnFull {
		// MODE: GUARANTEED DELIVERY
		// Will block if buffer is full. Use with caution on high-throughput.
		select {
		case b.jobs <- job:
			return nil
		case <-ctx.Done():
			// Even in blocking mode, respect context cancellation (timeout)
			b.handleDrop(label + "_ctx_cancelled")
			return ctx.Err()
		}
	}

	// STANDARD MODE: BEST EFFORT
	select {
	case b.jobs <- job:
		return nil
	default:
		b.handleDrop(label)
		return nil
	}
}

func (b *AsyncBackend) handleDrop(label string) {
	currentDrops := atomic.AddUint64(&b.dropCount, 1)

	if time.Since(b.lastLogTime) < 5*time.Second {
		return
	}

	b.dropMu.Lock()
	defer b.dropMu.Unlock()

	if time.Since(b.lastLogTime) >= 5*time.Second {
		b.logger.Warn("CRITICAL: Audit event buffer full/dropped.",
			"strategy", "drop_on_full",
			"total_dropped", currentDrops,
			"sample_event", label,
		)
		atomic.StoreUint64(&b.dropCount, 0)
		b.lastLogTime = time.Now()
	}
}

func (b *AsyncBackend) worker() {
	defer b.wg.Done()

	for job := range b.jobs {
		// The caller's context is long gone; bound each delegate
		// write so one stuck insert cannot wedge the worker.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		var err error
		switch {
		case job.crud != nil:
			_, err = b.next.CRUD(ctx, job.crud)
		case job.login != nil:
			_, err = b.next.Login(ctx, job.login)
		case job.request != nil:
			_, err = b.next.Request(ctx, job.request)
		}
		cancel()
		if err != nil {
			b.logger.Error("Failed to persist audit event", "error", err)
		}
	}
}

// Close drains the buffer and stops the worker. Events enqueued after
// Close panic, same as writing to any closed pipeline.
func (b *AsyncBackend) Close() error {
	b.closeOnce.Do(func() {
		close(b.jobs)
	})
	b.wg.Wait()
	return nil
}
