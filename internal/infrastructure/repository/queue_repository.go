package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"qualtrack/internal/domain/entity"
	"qualtrack/internal/domain/repository"
	"qualtrack/internal/infrastructure/database"
)

type queueRepository struct {
	db *database.Database
}

func NewQueueRepository(db *database.Database) repository.QueueRepository {
	return &queueRepository{
		db: db,
	}
}

const queueColumns = `id, document_id, personnel_id, document_path, form_type, required_roles,
	completed_roles, awaiting_role, status, last_action, version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanQueueItem(row rowScanner) (*entity.SignatureQueueItem, error) {
	var item entity.SignatureQueueItem
	var required, completed []string
	var formType, currentRole, status string

	err := row.Scan(
		&item.ID,
		&item.DocumentID,
		&item.PersonnelID,
		&item.DocumentPath,
		&formType,
		pq.Array(&required),
		pq.Array(&completed),
		&currentRole,
		&status,
		&item.LastAction,
		&item.Version,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	item.FormType = entity.FormType(formType)
	item.CurrentRole = entity.Role(currentRole)
	item.Status = entity.QueueStatus(status)
	item.RequiredRoles = toRoles(required)
	item.CompletedRoles = toRoles(completed)
	return &item, nil
}

func toRoles(values []string) []entity.Role {
	roles := make([]entity.Role, len(values))
	for i, v := range values {
		roles[i] = entity.Role(v)
	}
	return roles
}

func (r *queueRepository) GetByID(ctx context.Context, id string) (*entity.SignatureQueueItem, error) {
	query := `SELECT ` + queueColumns + ` FROM signature_queue WHERE id = $1`

	item, err := scanQueueItem(r.db.DB.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", repository.ErrItemNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get queue item: %w", err)
	}
	return item, nil
}

func (r *queueRepository) Add(ctx context.Context, item *entity.SignatureQueueItem) error {
	query := `
		INSERT INTO signature_queue (` + queueColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	if item.Version == 0 {
		item.Version = 1
	}
	_, err := r.db.DB.ExecContext(ctx, query,
		item.ID,
		item.DocumentID,
		item.PersonnelID,
		item.DocumentPath,
		string(item.FormType),
		pq.Array(entity.RoleStrings(item.RequiredRoles)),
		pq.Array(entity.RoleStrings(item.CompletedRoles)),
		string(item.CurrentRole),
		string(item.Status),
		item.LastAction,
		item.Version,
		item.CreatedAt,
		item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to add queue item: %w", err)
	}
	return nil
}

func (r *queueRepository) Update(ctx context.Context, item *entity.SignatureQueueItem) error {
	query := `
		UPDATE signature_queue
		SET document_id = $1, personnel_id = $2, document_path = $3, completed_roles = $4,
			awaiting_role = $5, status = $6, last_action = $7, updated_at = $8, version = version + 1
		WHERE id = $9 AND version = $10
	`

	res, err := r.db.DB.ExecContext(ctx, query,
		item.DocumentID,
		item.PersonnelID,
		item.DocumentPath,
		pq.Array(entity.RoleStrings(item.CompletedRoles)),
		string(item.CurrentRole),
		string(item.Status),
		item.LastAction,
		item.UpdatedAt,
		item.ID,
		item.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update queue item: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update queue item: %w", err)
	}
	if n == 0 {
		// Distinguish a missing row from a stale version.
		if _, err := r.GetByID(ctx, item.ID); err != nil {
			return err
		}
		return fmt.Errorf("%w: %s at version %d", repository.ErrVersionConflict, item.ID, item.Version)
	}

	item.Version++
	return nil
}

func (r *queueRepository) GetInbox(ctx context.Context, filter entity.InboxFilter) ([]*entity.SignatureQueueItem, error) {
	conds := []string{"awaiting_role = $1"}
	args := []interface{}{string(filter.Role)}

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	} else {
		conds = append(conds, fmt.Sprintf("status <> '%s'", entity.QueueStatusCompleted))
	}
	if filter.FormType != "" {
		args = append(args, string(filter.FormType))
		conds = append(conds, fmt.Sprintf("form_type = $%d", len(args)))
	}

	query := `SELECT ` + queueColumns + ` FROM signature_queue WHERE ` +
		strings.Join(conds, " AND ") + ` ORDER BY created_at, id`

	rows, err := r.db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query inbox: %w", err)
	}
	defer rows.Close()

	var items []*entity.SignatureQueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan inbox item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read inbox: %w", err)
	}
	return items, nil
}
