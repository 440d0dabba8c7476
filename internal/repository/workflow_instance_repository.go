package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/uniadm/academic-api/internal/models"
)

const instanceColumns = `id, entity_type, entity_id, template_id, status, current_step,
	initiated_by, initiated_at, completed_at, metadata`

// WorkflowInstanceRepository persists workflow instances. Mutating methods
// accept an ExtContext so the engine can compose them into one transaction.
type WorkflowInstanceRepository struct {
	db *sqlx.DB
}

// NewWorkflowInstanceRepository constructs the repository.
func NewWorkflowInstanceRepository(db *sqlx.DB) *WorkflowInstanceRepository {
	return &WorkflowInstanceRepository{db: db}
}

// SetHistoryContext installs actor attribution as transaction-local session
// variables so change-logging triggers can read them. set_config with
// is_local=true expires at commit/rollback and cannot leak across pooled
// connections. Must run before any mutating statement in the transaction.
func (r *WorkflowInstanceRepository) SetHistoryContext(ctx context.Context, exec sqlx.ExtContext, hc models.HistoryContext) error {
	const query = `SELECT set_config('app.actor_id', $1, true),
		set_config('app.actor_name', $2, true),
		set_config('app.ip_address', $3, true),
		set_config('app.user_agent', $4, true)`
	if _, err := exec.ExecContext(ctx, query, hc.ActorID.String(), hc.ActorName, hc.IPAddress, hc.UserAgent); err != nil {
		return fmt.Errorf("set history context: %w", err)
	}
	return nil
}

// Create inserts a new instance row.
func (r *WorkflowInstanceRepository) Create(ctx context.Context, exec sqlx.ExtContext, instance *models.WorkflowInstance) error {
	if instance.ID.IsZero() {
		id, err := nextID()
		if err != nil {
			return err
		}
		instance.ID = id
	}
	if instance.Status == "" {
		instance.Status = models.WorkflowStatusPending
	}
	if instance.CurrentStep == 0 {
		instance.CurrentStep = 1
	}
	if instance.InitiatedAt.IsZero() {
		instance.InitiatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO workflow_instances
	(id, entity_type, entity_id, template_id, status, current_step, initiated_by, initiated_at, completed_at, metadata)
	VALUES (:id, :entity_type, :entity_id, :template_id, :status, :current_step, :initiated_by, :initiated_at, :completed_at, :metadata)`
	if _, err := sqlx.NamedExecContext(ctx, exec, query, instance); err != nil {
		return fmt.Errorf("create workflow instance: %w", err)
	}
	return nil
}

// GetByID fetches an instance without locking.
func (r *WorkflowInstanceRepository) GetByID(ctx context.Context, id models.ID) (*models.WorkflowInstance, error) {
	query := fmt.Sprintf(`SELECT %s FROM workflow_instances WHERE id = $1`, instanceColumns)
	var instance models.WorkflowInstance
	if err := r.db.GetContext(ctx, &instance, query, id); err != nil {
		return nil, err
	}
	return &instance, nil
}

// GetByIDForUpdate locks the instance row for the remainder of the
// transaction, serialising concurrent action processing.
func (r *WorkflowInstanceRepository) GetByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id models.ID) (*models.WorkflowInstance, error) {
	query := fmt.Sprintf(`SELECT %s FROM workflow_instances WHERE id = $1 FOR UPDATE`, instanceColumns)
	var instance models.WorkflowInstance
	if err := sqlx.GetContext(ctx, exec, &instance, query, id); err != nil {
		return nil, err
	}
	return &instance, nil
}

// FindActiveByEntity returns the non-terminal instance for the entity, if
// any, locking it so concurrent creators serialise on the same row.
func (r *WorkflowInstanceRepository) FindActiveByEntity(ctx context.Context, exec sqlx.ExtContext, entityType models.EntityType, entityID models.ID) (*models.WorkflowInstance, error) {
	query := fmt.Sprintf(`SELECT %s FROM workflow_instances
	WHERE entity_type = $1 AND entity_id = $2 AND status NOT IN ('COMPLETED', 'REJECTED')
	ORDER BY initiated_at DESC LIMIT 1 FOR UPDATE`, instanceColumns)
	var instance models.WorkflowInstance
	if err := sqlx.GetContext(ctx, exec, &instance, query, entityType, entityID); err != nil {
		return nil, err
	}
	return &instance, nil
}

// GetByEntity returns the most recent instance for the entity regardless
// of status.
func (r *WorkflowInstanceRepository) GetByEntity(ctx context.Context, entityType models.EntityType, entityID models.ID) (*models.WorkflowInstance, error) {
	query := fmt.Sprintf(`SELECT %s FROM workflow_instances
	WHERE entity_type = $1 AND entity_id = $2
	ORDER BY initiated_at DESC LIMIT 1`, instanceColumns)
	var instance models.WorkflowInstance
	if err := r.db.GetContext(ctx, &instance, query, entityType, entityID); err != nil {
		return nil, err
	}
	return &instance, nil
}

// List returns instances matching the filter (latest first).
func (r *WorkflowInstanceRepository) List(ctx context.Context, filter models.InstanceFilter) ([]models.WorkflowInstance, error) {
	builder := strings.Builder{}
	fmt.Fprintf(&builder, `SELECT %s FROM workflow_instances`, instanceColumns)

	args := make([]interface{}, 0, 2)
	conditions := make([]string, 0, 2)
	if filter.EntityType != "" {
		args = append(args, filter.EntityType)
		conditions = append(conditions, fmt.Sprintf("entity_type = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY initiated_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	fmt.Fprintf(&builder, " LIMIT %d OFFSET %d", limit, offset)

	var instances []models.WorkflowInstance
	if err := r.db.SelectContext(ctx, &instances, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list workflow instances: %w", err)
	}
	return instances, nil
}

// UpdateTransition persists the outcome of a processed action.
func (r *WorkflowInstanceRepository) UpdateTransition(ctx context.Context, exec sqlx.ExtContext, instance *models.WorkflowInstance) error {
	const query = `UPDATE workflow_instances
	SET status = :status, current_step = :current_step, completed_at = :completed_at, metadata = :metadata
	WHERE id = :id`
	result, err := sqlx.NamedExecContext(ctx, exec, query, instance)
	if err != nil {
		return fmt.Errorf("update workflow instance: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check workflow instance update rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("workflow instance %s vanished during update", instance.ID)
	}
	return nil
}

// StatusCounts groups instances by entity type and status.
func (r *WorkflowInstanceRepository) StatusCounts(ctx context.Context) ([]models.StatusCount, error) {
	const query = `SELECT entity_type, status, COUNT(*) AS count
	FROM workflow_instances GROUP BY entity_type, status`
	var counts []models.StatusCount
	if err := r.db.SelectContext(ctx, &counts, query); err != nil {
		return nil, fmt.Errorf("count workflow instances: %w", err)
	}
	return counts, nil
}

// CountOverdue counts active instances whose current step exceeded its
// timeout. Overdue is informational; nothing auto-transitions.
func (r *WorkflowInstanceRepository) CountOverdue(ctx context.Context, now time.Time) (int64, error) {
	const query = `SELECT COUNT(*)
	FROM workflow_instances wi
	JOIN workflow_steps ws ON ws.template_id = wi.template_id AND ws.step_order = wi.current_step
	WHERE wi.status NOT IN ('COMPLETED', 'REJECTED')
	AND wi.initiated_at + ws.timeout_days * INTERVAL '1 day' < $1`
	var count int64
	if err := r.db.GetContext(ctx, &count, query, now); err != nil {
		return 0, fmt.Errorf("count overdue workflow instances: %w", err)
	}
	return count, nil
}
