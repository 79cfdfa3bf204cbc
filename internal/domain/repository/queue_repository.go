package repository

import (
	"context"
	"errors"

	"qualtrack/internal/domain/entity"
)

var (
	// ErrItemNotFound is returned when no record has the requested id
	ErrItemNotFound = errors.New("item not found")
	// ErrVersionConflict is returned when an update raced with another writer
	ErrVersionConflict = errors.New("version conflict")
)

type QueueRepository interface {
	// GetByID returns the queue item or ErrItemNotFound
	GetByID(ctx context.Context, id string) (*entity.SignatureQueueItem, error)

	// Add inserts a new queue item
	Add(ctx context.Context, item *entity.SignatureQueueItem) error

	// Update replaces the stored item when its version still matches item.Version,
	// then increments item.Version. A stale version yields ErrVersionConflict.
	Update(ctx context.Context, item *entity.SignatureQueueItem) error

	// GetInbox lists items awaiting role, oldest first
	GetInbox(ctx context.Context, filter entity.InboxFilter) ([]*entity.SignatureQueueItem, error)
}
