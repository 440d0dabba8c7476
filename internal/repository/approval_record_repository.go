package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/uniadm/academic-api/internal/models"
)

// ApprovalRecordRepository persists the append-only approval log. Records
// are never updated; the only delete path is a whole-instance reset.
type ApprovalRecordRepository struct {
	db *sqlx.DB
}

// NewApprovalRecordRepository constructs the repository.
func NewApprovalRecordRepository(db *sqlx.DB) *ApprovalRecordRepository {
	return &ApprovalRecordRepository{db: db}
}

// Create appends one record inside the caller's transaction.
func (r *ApprovalRecordRepository) Create(ctx context.Context, exec sqlx.ExtContext, record *models.ApprovalRecord) error {
	if record.ID.IsZero() {
		id, err := nextID()
		if err != nil {
			return err
		}
		record.ID = id
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO approval_records
	(id, workflow_instance_id, approver_id, action, comments, attachments, created_at)
	VALUES (:id, :workflow_instance_id, :approver_id, :action, :comments, :attachments, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, exec, query, record); err != nil {
		return fmt.Errorf("create approval record: %w", err)
	}
	return nil
}

// ListByInstance returns the full history for an instance, oldest first.
func (r *ApprovalRecordRepository) ListByInstance(ctx context.Context, instanceID models.ID) ([]models.ApprovalRecord, error) {
	const query = `SELECT id, workflow_instance_id, approver_id, action, comments, attachments, created_at
	FROM approval_records WHERE workflow_instance_id = $1 ORDER BY created_at ASC, id ASC`
	var records []models.ApprovalRecord
	if err := r.db.SelectContext(ctx, &records, query, instanceID); err != nil {
		return nil, fmt.Errorf("list approval records: %w", err)
	}
	return records, nil
}

// DeleteByInstance purges the history as part of an administrative reset.
func (r *ApprovalRecordRepository) DeleteByInstance(ctx context.Context, exec sqlx.ExtContext, instanceID models.ID) error {
	const query = `DELETE FROM approval_records WHERE workflow_instance_id = $1`
	if _, err := exec.ExecContext(ctx, query, instanceID); err != nil {
		return fmt.Errorf("delete approval records: %w", err)
	}
	return nil
}
