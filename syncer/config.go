package syncer

import (
	"time"

	"github.com/godamri/helix-audit/audit"
)

type Config struct {
	// Enabled is the process-wide sync switch. Off means the entry
	// point returns immediately without touching store or sink.
	Enabled bool `envconfig:"SYNC_ENABLED" default:"true" yaml:"enabled"`

	// Kinds selects which event families sync. Order is ignored;
	// processing always runs crud, login, request.
	Kinds []string `envconfig:"SYNC_KINDS" default:"crud,login,request" validate:"dive,oneof=crud login request" yaml:"kinds"`

	// PageSize bounds memory and per-call latency. A run keeps paging
	// until the backlog is drained, so this never caps a run's total.
	PageSize int `envconfig:"SYNC_PAGE_SIZE" default:"500" validate:"min=1" yaml:"page_size"`

	// Interval is the scheduler cadence.
	Interval time.Duration `envconfig:"SYNC_INTERVAL" default:"24h" yaml:"interval"`

	// RunAtStart fires one run immediately instead of waiting a full
	// interval after boot.
	RunAtStart bool `envconfig:"SYNC_RUN_AT_START" default:"true" yaml:"run_at_start"`

	// LockEnabled takes a per-kind Redis lock for the duration of a
	// run so overlapping schedules don't duplicate work. Correctness
	// never depends on it; the sink upsert already absorbs overlap.
	LockEnabled bool          `envconfig:"SYNC_LOCK_ENABLED" default:"false" yaml:"lock_enabled"`
	LockTTL     time.Duration `envconfig:"SYNC_LOCK_TTL" default:"5m" yaml:"lock_ttl"`
}

// EnabledKinds returns the configured kinds in fixed processing order.
func (c Config) EnabledKinds() []audit.Kind {
	selected := make(map[audit.Kind]bool, len(c.Kinds))
	for _, k := range c.Kinds {
		selected[audit.Kind(k)] = true
	}

	var kinds []audit.Kind
	for _, k := range audit.Kinds() {
		if selected[k] {
			kinds = append(kinds, k)
		}
	}
	return kinds
}
