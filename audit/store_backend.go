package audit

import (
	"context"
	"fmt"
)

// Store is the slice of the event store the capture path needs.
// Inserts assign the event's ID and leave Exported false.
type Store interface {
	InsertCRUD(ctx context.Context, event *CRUDEvent) error
	InsertLogin(ctx context.Context, event *LoginEvent) error
	InsertRequest(ctx context.Context, event *RequestEvent) error
}

// StoreBackend is the default backend: events go straight to the
// primary event store and come back with their assigned identity.
type StoreBackend struct {
	store Store
}

func NewStoreBackend(store Store) *StoreBackend {
	return &StoreBackend{store: store}
}

func (b *StoreBackend) CRUD(ctx context.Context, event *CRUDEvent) (*CRUDEvent, error) {
	if err := b.store.InsertCRUD(ctx, event); err != nil {
		return nil, fmt.Errorf("audit: store crud event: %w", err)
	}
	return event, nil
}

func (b *StoreBackend) Login(ctx context.Context, event *LoginEvent) (*LoginEvent, error) {
	if err := b.store.InsertLogin(ctx, event); err != nil {
		return nil, fmt.Errorf("audit: store login event: %w", err)
	}
	return event, nil
}

func (b *StoreBackend) Request(ctx context.Context, event *RequestEvent) (*RequestEvent, error) {
	if err := b.store.InsertRequest(ctx, event); err != nil {
		return nil, fmt.Errorf("audit: store request event: %w", err)
	}
	return event, nil
}
