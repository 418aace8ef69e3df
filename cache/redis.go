package cache

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Config describes the optional Redis connection. Redis backs the sync
// run lock and the API rate limiter; with Enabled false neither is
// wired and the service runs without it.
type Config struct {
	Enabled  bool   `envconfig:"REDIS_ENABLED" default:"false" yaml:"enabled"`
	Addr     string `envconfig:"REDIS_ADDR" default:"localhost:6379" yaml:"addr"`
	Password string `envconfig:"REDIS_PASSWORD" default:"" yaml:"password"`
	DB       int    `envconfig:"REDIS_DB" default:"0" yaml:"db"`
}

// NewRedis initializes a Redis client and performs a fail-fast ping.
func NewRedis(ctx context.Context, cfg Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	rdb.AddHook(newRedisTracingHook())

	// Fail fast: Verify connection immediately.
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("cache: failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	return rdb, nil
}

type redisTracingHook struct {
	tracer trace.Tracer
}

func newRedisTracingHook() *redisTracingHook {
	return &redisTracingHook{
		tracer: otel.Tracer("helix-audit/cache/redis"),
	}
}

func (h *redisTracingHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (h *redisTracingHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if !trace.SpanFromContext(ctx).IsRecording() {
			return next(ctx, cmd)
		}

		ctx, span := h.tracer.Start(ctx, "redis.command",
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				attribute.String("db.system", "redis"),
				attribute.String("db.operation", cmd.Name()),
				attribute.String("db.statement", cmd.String()),
			),
		)
		defer span.End()

		return spanResult(span, next(ctx, cmd))
	}
}

func (h *redisTracingHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		if !trace.SpanFromContext(ctx).IsRecording() {
			return next(ctx, cmds)
		}

		summary := fmt.Sprintf("pipeline:%d_cmds", len(cmds))
		ctx, span := h.tracer.Start(ctx, "redis.pipeline",
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				attribute.String("db.system", "redis"),
				attribute.String("db.operation", "pipeline"),
				attribute.String("db.statement", summary),
				attribute.Int("db.redis.pipeline_length", len(cmds)),
			),
		)
		defer span.End()

		return spanResult(span, next(ctx, cmds))
	}
}

// spanResult records err on the span. redis.Nil is a miss, not a fault.
func spanResult(span trace.Span, err error) error {
	if err != nil && err != redis.Nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
