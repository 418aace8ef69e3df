package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/godamri/helix-audit/audit"
)

// RunLock provides per-kind mutual exclusion across overlapping sync
// runs. SETNX with a TTL means a crashed holder frees itself; losing
// the race just skips the kind for this run.
type RunLock struct {
	client *redis.Client
	ttl    time.Duration
	owner  string
	logger *slog.Logger
}

func NewRunLock(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RunLock {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunLock{
		client: client,
		ttl:    ttl,
		owner:  uuid.NewString(),
		logger: logger,
	}
}

func lockKey(kind audit.Kind) string {
	return fmt.Sprintf("audit:sync:lock:%s", kind)
}

// Acquire takes the kind's lock. False means another run holds it.
func (l *RunLock) Acquire(ctx context.Context, kind audit.Kind) (bool, error) {
	acquired, err := l.client.SetNX(ctx, lockKey(kind), l.owner, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("syncer: acquire lock for %s: %w", kind, err)
	}
	return acquired, nil
}

// Release frees the lock if this run still owns it. A lock that
// expired and was re-taken by a newer run is left alone.
func (l *RunLock) Release(ctx context.Context, kind audit.Kind) {
	key := lockKey(kind)
	val, err := l.client.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			l.logger.Warn("sync lock release probe failed", "kind", kind, "error", err)
		}
		return
	}
	if val != l.owner {
		return
	}
	if err := l.client.Del(ctx, key).Err(); err != nil {
		l.logger.Warn("sync lock release failed", "kind", kind, "error", err)
	}
}
