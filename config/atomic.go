package config

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/go-playground/validator/v10"
)

// Container holds the config safely for concurrent access.
type Container[T any] struct {
	store    atomic.Value
	mu       sync.Mutex // Only for writing updates
	validate *validator.Validate
}

// NewContainer initializes the config container.
func NewContainer[T any](initial T) *Container[T] {
	c := &Container[T]{
		validate: validator.New(),
	}
	c.store.Store(&initial)
	return c
}

// Get returns the current snapshot of the config.
// This is WAIT-FREE and LOCK-FREE. Extremely fast.
func (c *Container[T]) Get() *T {
	return c.store.Load().(*T)
}

// Update swaps the config pointer atomically. Invalid configs are
// rejected and the previous snapshot stays live.
func (c *Container[T]) Update(newConfig T) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.validate.Struct(newConfig); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	c.store.Store(&newConfig)
	return nil
}
