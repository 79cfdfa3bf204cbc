package repository

import (
	"context"

	"qualtrack/internal/domain/entity"
)

type DocumentRepository interface {
	// GetByID returns the registry record or ErrItemNotFound
	GetByID(ctx context.Context, id string) (*entity.Document, error)

	// Add inserts a registry record
	Add(ctx context.Context, doc *entity.Document) error

	// Update stores the file name, path and size of a record
	Update(ctx context.Context, doc *entity.Document) error
}
