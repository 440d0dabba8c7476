package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/uniadm/academic-api/internal/dto"
	"github.com/uniadm/academic-api/internal/models"
	appErrors "github.com/uniadm/academic-api/pkg/errors"
)

type workflowTemplateStore interface {
	GetByName(ctx context.Context, name string) (*models.WorkflowTemplate, error)
	GetByID(ctx context.Context, id models.ID) (*models.WorkflowTemplate, error)
}

type workflowInstanceStore interface {
	SetHistoryContext(ctx context.Context, exec sqlx.ExtContext, hc models.HistoryContext) error
	Create(ctx context.Context, exec sqlx.ExtContext, instance *models.WorkflowInstance) error
	GetByID(ctx context.Context, id models.ID) (*models.WorkflowInstance, error)
	GetByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id models.ID) (*models.WorkflowInstance, error)
	FindActiveByEntity(ctx context.Context, exec sqlx.ExtContext, entityType models.EntityType, entityID models.ID) (*models.WorkflowInstance, error)
	GetByEntity(ctx context.Context, entityType models.EntityType, entityID models.ID) (*models.WorkflowInstance, error)
	List(ctx context.Context, filter models.InstanceFilter) ([]models.WorkflowInstance, error)
	UpdateTransition(ctx context.Context, exec sqlx.ExtContext, instance *models.WorkflowInstance) error
}

type approvalRecordStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, record *models.ApprovalRecord) error
	ListByInstance(ctx context.Context, instanceID models.ID) ([]models.ApprovalRecord, error)
	DeleteByInstance(ctx context.Context, exec sqlx.ExtContext, instanceID models.ID) error
}

type approverDirectory interface {
	FindByIDs(ctx context.Context, ids []models.ID) (map[models.ID]models.User, error)
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type workflowTxProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// Authorizer is the external capability that decides whether an approver
// may act at a given step. The engine records the approver either way.
type Authorizer interface {
	Authorize(ctx context.Context, actor *models.JWTClaims, step models.WorkflowStep) error
}

// AuthorizerFunc allows using plain functions.
type AuthorizerFunc func(ctx context.Context, actor *models.JWTClaims, step models.WorkflowStep) error

// Authorize implements Authorizer.
func (f AuthorizerFunc) Authorize(ctx context.Context, actor *models.JWTClaims, step models.WorkflowStep) error {
	return f(ctx, actor, step)
}

// DraftApplier applies an approved change draft onto the governed record
// within the engine's transaction.
type DraftApplier interface {
	Apply(ctx context.Context, exec sqlx.ExtContext, instance *models.WorkflowInstance, draft *models.ChangeDraft) error
}

// EntitySynchronizer propagates a workflow outcome onto the owning
// entity's status field after the transaction commits.
type EntitySynchronizer interface {
	Sync(ctx context.Context, entityType models.EntityType, entityID models.ID, status models.WorkflowStatus, action models.WorkflowAction) error
}

// TemplateSelector resolves the template name applicable to a create
// request. Composite types may inspect the request metadata.
type TemplateSelector func(req dto.CreateWorkflowRequest) (string, error)

// DefaultTemplateSelectors maps every known entity type to its canonical
// template.
func DefaultTemplateSelectors() map[models.EntityType]TemplateSelector {
	fixed := func(name string) TemplateSelector {
		return func(dto.CreateWorkflowRequest) (string, error) { return name, nil }
	}
	return map[models.EntityType]TemplateSelector{
		models.EntityCourse:       fixed("course-approval"),
		models.EntityProgram:      fixed("program-approval"),
		models.EntityMajor:        fixed("major-approval"),
		models.EntityCourseChange: fixed("course-change-approval"),
	}
}

// WorkflowService is the approval state machine. Every mutating operation
// runs inside one database transaction: history context first, then the
// approval record, the instance transition, and any draft application
// commit or roll back together.
type WorkflowService struct {
	templates workflowTemplateStore
	instances workflowInstanceStore
	records   approvalRecordStore
	approvers approverDirectory
	audit     auditLogger
	tx        workflowTxProvider
	selectors map[models.EntityType]TemplateSelector
	appliers  map[models.EntityType]DraftApplier
	auth      Authorizer
	syncer    EntitySynchronizer
	logger    *zap.Logger
	now       func() time.Time
}

// WorkflowServiceOption configures the service.
type WorkflowServiceOption func(*WorkflowService)

// WithTemplateSelectors overrides template resolution per entity type.
func WithTemplateSelectors(selectors map[models.EntityType]TemplateSelector) WorkflowServiceOption {
	return func(s *WorkflowService) {
		for k, v := range selectors {
			s.selectors[k] = v
		}
	}
}

// WithDraftAppliers registers appliers for change workflows keyed by
// entity type.
func WithDraftAppliers(appliers map[models.EntityType]DraftApplier) WorkflowServiceOption {
	return func(s *WorkflowService) {
		for k, v := range appliers {
			s.appliers[k] = v
		}
	}
}

// WithAuthorizer installs the step authorization capability.
func WithAuthorizer(auth Authorizer) WorkflowServiceOption {
	return func(s *WorkflowService) {
		if auth != nil {
			s.auth = auth
		}
	}
}

// WithSynchronizer installs the post-commit entity status synchronizer.
func WithSynchronizer(syncer EntitySynchronizer) WorkflowServiceOption {
	return func(s *WorkflowService) {
		if syncer != nil {
			s.syncer = syncer
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) WorkflowServiceOption {
	return func(s *WorkflowService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewWorkflowService constructs the engine with defaults.
func NewWorkflowService(
	templates workflowTemplateStore,
	instances workflowInstanceStore,
	records approvalRecordStore,
	approvers approverDirectory,
	audit auditLogger,
	tx workflowTxProvider,
	logger *zap.Logger,
	opts ...WorkflowServiceOption,
) *WorkflowService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &WorkflowService{
		templates: templates,
		instances: instances,
		records:   records,
		approvers: approvers,
		audit:     audit,
		tx:        tx,
		selectors: DefaultTemplateSelectors(),
		appliers:  make(map[models.EntityType]DraftApplier),
		auth: AuthorizerFunc(func(context.Context, *models.JWTClaims, models.WorkflowStep) error {
			return nil
		}),
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Create resolves the applicable template and opens a PENDING instance at
// step 1. A non-terminal instance for the same entity blocks creation.
func (s *WorkflowService) Create(ctx context.Context, req dto.CreateWorkflowRequest, actor *models.JWTClaims, hc models.HistoryContext) (*models.WorkflowInstance, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if req.EntityType == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "entityType is required")
	}
	if req.EntityID.IsZero() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "entityId is required")
	}
	selector, ok := s.selectors[req.EntityType]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported entity type: %s", req.EntityType))
	}
	templateName, err := selector(req)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "failed to resolve workflow template")
	}
	template, err := s.templates.GetByName(ctx, templateName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("workflow template %s not configured", templateName))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load workflow template")
	}

	initiatedBy, err := models.ParseID(actor.UserID)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid actor id")
	}

	metadata := types.JSONText(req.Metadata)
	if req.EntityType == models.EntityCourseChange {
		draft, err := models.DecodeChangeDraft(metadata)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid change draft metadata")
		}
		if metadata, err = draft.Encode(); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode change draft")
		}
	}

	instance := &models.WorkflowInstance{
		EntityType:  req.EntityType,
		EntityID:    req.EntityID,
		TemplateID:  template.ID,
		Status:      models.WorkflowStatusPending,
		CurrentStep: 1,
		InitiatedBy: initiatedBy,
		InitiatedAt: s.now().UTC(),
		Metadata:    metadata,
	}

	err = s.inTx(ctx, hc, func(tx *sqlx.Tx) error {
		if _, err := s.instances.FindActiveByEntity(ctx, tx, req.EntityType, req.EntityID); err == nil {
			return appErrors.ErrActiveWorkflow
		} else if !errors.Is(err, sql.ErrNoRows) {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check active workflow")
		}
		if err := s.instances.Create(ctx, tx, instance); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create workflow instance")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emitAudit(ctx, actor, models.AuditActionWorkflowCreate, instance, hc)
	return instance, nil
}

// ProcessAction validates and applies one action against the instance's
// current step, appends the approval record, and advances the state
// machine. Terminal instances are not actionable.
func (s *WorkflowService) ProcessAction(ctx context.Context, instanceID models.ID, req dto.WorkflowActionRequest, actor *models.JWTClaims, hc models.HistoryContext) (*models.WorkflowInstance, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if req.Action == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "action is required")
	}
	if !req.Action.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown action: %s", req.Action))
	}
	approverID, err := models.ParseID(actor.UserID)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid approver id")
	}

	var instance *models.WorkflowInstance
	err = s.inTx(ctx, hc, func(tx *sqlx.Tx) error {
		var err error
		instance, err = s.instances.GetByIDForUpdate(ctx, tx, instanceID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.ErrNotFound
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load workflow instance")
		}
		if instance.Status.Terminal() {
			return appErrors.ErrNotActionable
		}

		template, err := s.templates.GetByID(ctx, instance.TemplateID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load workflow template")
		}
		step := template.StepAt(instance.CurrentStep)
		if step == nil {
			return appErrors.Wrap(
				fmt.Errorf("current step %d outside template %s (%d steps)", instance.CurrentStep, template.Name, len(template.Steps)),
				appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "workflow step out of range")
		}
		if err := s.auth.Authorize(ctx, actor, *step); err != nil {
			return appErrors.Wrap(err, appErrors.ErrForbidden.Code, appErrors.ErrForbidden.Status, "approver not permitted at this step")
		}

		record := &models.ApprovalRecord{
			InstanceID: instance.ID,
			ApproverID: approverID,
			Action:     req.Action,
			CreatedAt:  s.now().UTC(),
		}
		if req.Comments != "" {
			comments := req.Comments
			record.Comments = &comments
		}
		if len(req.Attachments) > 0 {
			record.Attachments = types.JSONText(req.Attachments)
		}
		if err := s.records.Create(ctx, tx, record); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record approval")
		}

		if err := s.applyTransition(ctx, tx, instance, template, req.Action); err != nil {
			return err
		}
		if err := s.instances.UpdateTransition(ctx, tx, instance); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist workflow transition")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emitAudit(ctx, actor, models.AuditActionWorkflowAction, instance, hc)
	s.syncEntity(ctx, instance, req.Action)
	return instance, nil
}

// applyTransition mutates the instance in memory according to the action
// and the template's step count. Change drafts ride along in metadata and
// are applied onto the governed record at final approval, inside the same
// transaction.
func (s *WorkflowService) applyTransition(ctx context.Context, tx *sqlx.Tx, instance *models.WorkflowInstance, template *models.WorkflowTemplate, action models.WorkflowAction) error {
	now := s.now().UTC()
	switch action {
	case models.ActionSubmit:
		instance.Status = models.WorkflowStatusInProgress
		return s.updateDraft(ctx, tx, instance, models.DraftStatusPendingApproval, false)
	case models.ActionApprove:
		if instance.CurrentStep >= len(template.Steps) {
			instance.Status = models.WorkflowStatusCompleted
			instance.CompletedAt = &now
			return s.updateDraft(ctx, tx, instance, models.DraftStatusApproved, true)
		}
		instance.CurrentStep++
		instance.Status = models.WorkflowStatusInProgress
		return nil
	case models.ActionReject:
		instance.Status = models.WorkflowStatusRejected
		instance.CompletedAt = &now
		return s.updateDraft(ctx, tx, instance, models.DraftStatusRejected, false)
	case models.ActionReturn:
		instance.CurrentStep = 1
		instance.Status = models.WorkflowStatusInProgress
		return s.updateDraft(ctx, tx, instance, models.DraftStatusDraft, false)
	}
	return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown action: %s", action))
}

// updateDraft advances the change-draft sub-state for change workflows and
// applies the staged payload when the final approval lands.
func (s *WorkflowService) updateDraft(ctx context.Context, tx *sqlx.Tx, instance *models.WorkflowInstance, status models.DraftStatus, apply bool) error {
	if instance.EntityType != models.EntityCourseChange {
		return nil
	}
	draft, err := models.DecodeChangeDraft(instance.Metadata)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "corrupt change draft metadata")
	}
	draft.Status = status
	if apply {
		applier, ok := s.appliers[instance.EntityType]
		if !ok {
			return appErrors.Clone(appErrors.ErrInternal, fmt.Sprintf("no draft applier registered for %s", instance.EntityType))
		}
		if err := applier.Apply(ctx, tx, instance, draft); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply change draft")
		}
	}
	encoded, err := draft.Encode()
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode change draft")
	}
	instance.Metadata = encoded
	return nil
}

// Reset is the administrative do-over: PENDING, step 1, no completed_at,
// and the whole approval history purged. Distinct from the RETURN action,
// which preserves history.
func (s *WorkflowService) Reset(ctx context.Context, instanceID models.ID, actor *models.JWTClaims, hc models.HistoryContext) (*models.WorkflowInstance, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	var instance *models.WorkflowInstance
	err := s.inTx(ctx, hc, func(tx *sqlx.Tx) error {
		var err error
		instance, err = s.instances.GetByIDForUpdate(ctx, tx, instanceID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.ErrNotFound
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load workflow instance")
		}
		if err := s.records.DeleteByInstance(ctx, tx, instance.ID); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to purge approval records")
		}
		instance.Status = models.WorkflowStatusPending
		instance.CurrentStep = 1
		instance.CompletedAt = nil
		if instance.EntityType == models.EntityCourseChange {
			draft, err := models.DecodeChangeDraft(instance.Metadata)
			if err != nil {
				return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "corrupt change draft metadata")
			}
			draft.Status = models.DraftStatusDraft
			if instance.Metadata, err = draft.Encode(); err != nil {
				return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode change draft")
			}
		}
		if err := s.instances.UpdateTransition(ctx, tx, instance); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist workflow reset")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emitAudit(ctx, actor, models.AuditActionWorkflowReset, instance, hc)
	return instance, nil
}

// List returns instances matching the optional entity type and status
// filters. Read-only.
func (s *WorkflowService) List(ctx context.Context, query dto.WorkflowQuery) ([]models.WorkflowInstance, error) {
	filter := models.InstanceFilter{
		EntityType: query.EntityType,
		Status:     query.Status,
		Limit:      query.Limit,
		Offset:     query.Offset,
	}
	instances, err := s.instances.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list workflow instances")
	}
	return instances, nil
}

// GetByEntity returns the latest instance for the entity together with its
// approval history, enriched with approver display info. Returns nil when
// the entity has no workflow.
func (s *WorkflowService) GetByEntity(ctx context.Context, entityType models.EntityType, entityID models.ID) (*models.WorkflowDetail, error) {
	if entityType == "" || entityID.IsZero() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "entityType and entityId are required")
	}
	instance, err := s.instances.GetByEntity(ctx, entityType, entityID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load workflow instance")
	}
	records, err := s.records.ListByInstance(ctx, instance.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approval records")
	}

	detail := &models.WorkflowDetail{Instance: *instance, Records: make([]models.ApprovalRecordDetail, 0, len(records))}
	ids := make([]models.ID, 0, len(records))
	seen := make(map[models.ID]struct{}, len(records))
	for _, record := range records {
		if _, ok := seen[record.ApproverID]; !ok {
			seen[record.ApproverID] = struct{}{}
			ids = append(ids, record.ApproverID)
		}
	}
	approvers, err := s.approvers.FindByIDs(ctx, ids)
	if err != nil {
		// Enrichment is read-time convenience; degrade to bare records.
		s.logger.Warn("approver enrichment failed", zap.Error(err))
		approvers = map[models.ID]models.User{}
	}
	for _, record := range records {
		item := models.ApprovalRecordDetail{ApprovalRecord: record}
		if user, ok := approvers[record.ApproverID]; ok {
			item.ApproverName = user.FullName
			item.ApproverEmail = user.Email
		}
		detail.Records = append(detail.Records, item)
	}
	return detail, nil
}

// inTx runs fn inside one transaction with history context installed
// before any data-mutating statement.
func (s *WorkflowService) inTx(ctx context.Context, hc models.HistoryContext, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = s.instances.SetHistoryContext(ctx, tx, hc); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to set history context")
	}
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit transaction")
	}
	return nil
}

// syncEntity propagates the outcome post-commit. Failures are warnings:
// workflow state is the source of truth and is never rolled back here.
func (s *WorkflowService) syncEntity(ctx context.Context, instance *models.WorkflowInstance, action models.WorkflowAction) {
	if s.syncer == nil {
		return
	}
	if err := s.syncer.Sync(ctx, instance.EntityType, instance.EntityID, instance.Status, action); err != nil {
		s.logger.Warn("entity status sync failed",
			zap.String("entity_type", string(instance.EntityType)),
			zap.String("entity_id", instance.EntityID.String()),
			zap.String("status", string(instance.Status)),
			zap.String("action", string(action)),
			zap.Error(err))
	}
}

func (s *WorkflowService) emitAudit(ctx context.Context, actor *models.JWTClaims, action string, instance *models.WorkflowInstance, hc models.HistoryContext) {
	if s.audit == nil || instance == nil {
		return
	}
	resourceID := instance.ID.String()
	payload, _ := json.Marshal(map[string]interface{}{
		"entity_type":  instance.EntityType,
		"entity_id":    instance.EntityID.String(),
		"status":       instance.Status,
		"current_step": instance.CurrentStep,
	})
	var userID *string
	if actor != nil {
		id := actor.UserID
		userID = &id
	}
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     userID,
		Action:     action,
		Resource:   "workflow",
		ResourceID: &resourceID,
		NewValues:  payload,
		IPAddress:  hc.IPAddress,
		UserAgent:  hc.UserAgent,
	}); err != nil {
		s.logger.Warn("audit log failed", zap.String("action", action), zap.Error(err))
	}
}
