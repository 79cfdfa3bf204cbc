package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"qualtrack/internal/domain/entity"
	"qualtrack/internal/domain/repository"
	"qualtrack/internal/infrastructure/database"
)

type documentRepository struct {
	db *database.Database
}

func NewDocumentRepository(db *database.Database) repository.DocumentRepository {
	return &documentRepository{
		db: db,
	}
}

func (r *documentRepository) GetByID(ctx context.Context, id string) (*entity.Document, error) {
	query := `
		SELECT id, file_name, file_path, file_size, personnel_id, form_type, created_at, updated_at
		FROM documents
		WHERE id = $1
	`

	var doc entity.Document
	var formType string
	err := r.db.DB.QueryRowContext(ctx, query, id).Scan(
		&doc.ID,
		&doc.FileName,
		&doc.FilePath,
		&doc.FileSize,
		&doc.PersonnelID,
		&formType,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: document %s", repository.ErrItemNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	doc.FormType = entity.FormType(formType)
	return &doc, nil
}

func (r *documentRepository) Add(ctx context.Context, doc *entity.Document) error {
	query := `
		INSERT INTO documents (id, file_name, file_path, file_size, personnel_id, form_type, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.DB.ExecContext(ctx, query,
		doc.ID,
		doc.FileName,
		doc.FilePath,
		doc.FileSize,
		doc.PersonnelID,
		string(doc.FormType),
		doc.CreatedAt,
		doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to add document: %w", err)
	}
	return nil
}

func (r *documentRepository) Update(ctx context.Context, doc *entity.Document) error {
	query := `
		UPDATE documents
		SET file_name = $1, file_path = $2, file_size = $3, updated_at = $4
		WHERE id = $5
	`

	res, err := r.db.DB.ExecContext(ctx, query, doc.FileName, doc.FilePath, doc.FileSize, doc.UpdatedAt, doc.ID)
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: document %s", repository.ErrItemNotFound, doc.ID)
	}
	return nil
}
