package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/uniadm/academic-api/internal/models"
)

type entityStatusWriter interface {
	UpdateStatus(ctx context.Context, entityType models.EntityType, entityID models.ID, status models.EntityStatus) error
}

type courseDraftTarget interface {
	ApplyCourseUpdate(ctx context.Context, exec sqlx.ExtContext, id models.ID, newData json.RawMessage) error
	DeleteCourse(ctx context.Context, exec sqlx.ExtContext, id models.ID) error
}

type syncKey struct {
	status models.WorkflowStatus
	action models.WorkflowAction
}

// entityStatusTable maps a workflow outcome onto the governed entity's
// derived status. Rejection is handled separately because it applies for
// any action.
var entityStatusTable = map[syncKey]models.EntityStatus{
	{models.WorkflowStatusCompleted, models.ActionApprove}:  models.EntityStatusPublished,
	{models.WorkflowStatusInProgress, models.ActionApprove}: models.EntityStatusApproved,
	{models.WorkflowStatusInProgress, models.ActionReturn}:  models.EntityStatusDraft,
	{models.WorkflowStatusInProgress, models.ActionSubmit}:  models.EntityStatusPendingApproval,
}

// EntitySyncService writes derived workflow outcomes onto course, program
// and major records. It runs after the engine's transaction has committed
// and is strictly best-effort: the caller logs failures and moves on.
type EntitySyncService struct {
	catalog entityStatusWriter
	logger  *zap.Logger
}

// NewEntitySyncService constructs the synchronizer.
func NewEntitySyncService(catalog entityStatusWriter, logger *zap.Logger) *EntitySyncService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EntitySyncService{catalog: catalog, logger: logger}
}

// Sync resolves the status mapping and writes it onto the entity. Change
// workflows carry their outcome in the instance's own draft metadata (and
// apply it inside the engine transaction), so they are skipped here.
func (s *EntitySyncService) Sync(ctx context.Context, entityType models.EntityType, entityID models.ID, status models.WorkflowStatus, action models.WorkflowAction) error {
	if entityType == models.EntityCourseChange {
		return nil
	}
	target, ok := s.resolve(status, action)
	if !ok {
		return nil
	}
	if err := s.catalog.UpdateStatus(ctx, entityType, entityID, target); err != nil {
		return fmt.Errorf("sync %s %s to %s: %w", entityType, entityID, target, err)
	}
	s.logger.Debug("entity status synchronized",
		zap.String("entity_type", string(entityType)),
		zap.String("entity_id", entityID.String()),
		zap.String("entity_status", string(target)))
	return nil
}

func (s *EntitySyncService) resolve(status models.WorkflowStatus, action models.WorkflowAction) (models.EntityStatus, bool) {
	if status == models.WorkflowStatusRejected {
		return models.EntityStatusRejected, true
	}
	target, ok := entityStatusTable[syncKey{status, action}]
	return target, ok
}

// CourseDraftApplier applies approved course change drafts. UPDATE drafts
// patch whitelisted columns from new_data; DELETE drafts remove the row.
type CourseDraftApplier struct {
	catalog courseDraftTarget
}

// NewCourseDraftApplier constructs the applier.
func NewCourseDraftApplier(catalog courseDraftTarget) *CourseDraftApplier {
	return &CourseDraftApplier{catalog: catalog}
}

// Apply implements DraftApplier.
func (a *CourseDraftApplier) Apply(ctx context.Context, exec sqlx.ExtContext, instance *models.WorkflowInstance, draft *models.ChangeDraft) error {
	switch draft.Operation {
	case models.DraftOpUpdate:
		if len(draft.NewData) == 0 {
			return fmt.Errorf("change draft %s has no new_data", instance.ID)
		}
		return a.catalog.ApplyCourseUpdate(ctx, exec, instance.EntityID, draft.NewData)
	case models.DraftOpDelete:
		return a.catalog.DeleteCourse(ctx, exec, instance.EntityID)
	}
	return fmt.Errorf("unsupported draft operation %s", draft.Operation)
}

// RoleAuthorizer is the default step authorization: administrators may act
// anywhere, other roles must match the step's approver role. Org-level
// placement checks stay with the external permission layer.
type RoleAuthorizer struct{}

// Authorize implements Authorizer.
func (RoleAuthorizer) Authorize(_ context.Context, actor *models.JWTClaims, step models.WorkflowStep) error {
	if actor == nil {
		return fmt.Errorf("missing actor")
	}
	switch actor.Role {
	case models.RoleSuperAdmin, models.RoleAdmin:
		return nil
	}
	if actor.Role != step.ApproverRole {
		return fmt.Errorf("role %s cannot act at step %q (requires %s)", actor.Role, step.Name, step.ApproverRole)
	}
	return nil
}
