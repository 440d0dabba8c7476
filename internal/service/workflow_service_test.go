package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uniadm/academic-api/internal/dto"
	"github.com/uniadm/academic-api/internal/models"
	appErrors "github.com/uniadm/academic-api/pkg/errors"
)

func TestWorkflowServiceCreate(t *testing.T) {
	fx := newWorkflowFixture(t)
	fx.mock.ExpectBegin()
	fx.mock.ExpectCommit()

	instance, err := fx.service.Create(context.Background(), dto.CreateWorkflowRequest{
		EntityType: models.EntityCourse,
		EntityID:   models.ID(500),
	}, actorClaims(models.RoleLecturer), testHistoryContext())
	require.NoError(t, err)

	assert.Equal(t, models.WorkflowStatusPending, instance.Status)
	assert.Equal(t, 1, instance.CurrentStep)
	assert.Equal(t, models.ID(10), instance.TemplateID)
	assert.Equal(t, models.ID(100), instance.InitiatedBy)
	assert.False(t, instance.ID.IsZero())
	assert.NoError(t, fx.mock.ExpectationsWereMet())

	require.Len(t, fx.audit.logs, 1)
	assert.Equal(t, models.AuditActionWorkflowCreate, fx.audit.logs[0].Action)
	require.Len(t, fx.instances.historyContexts, 1)
	assert.Equal(t, models.ID(100), fx.instances.historyContexts[0].ActorID)
}

func TestWorkflowServiceCreateBlockedByActiveInstance(t *testing.T) {
	fx := newWorkflowFixture(t)
	fx.seedInstance(&models.WorkflowInstance{
		ID:          models.ID(1),
		EntityType:  models.EntityCourse,
		EntityID:    models.ID(500),
		TemplateID:  models.ID(10),
		Status:      models.WorkflowStatusInProgress,
		CurrentStep: 2,
	})
	fx.mock.ExpectBegin()
	fx.mock.ExpectRollback()

	_, err := fx.service.Create(context.Background(), dto.CreateWorkflowRequest{
		EntityType: models.EntityCourse,
		EntityID:   models.ID(500),
	}, actorClaims(models.RoleLecturer), testHistoryContext())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrActiveWorkflow.Code, appErrors.FromError(err).Code)
	assert.NoError(t, fx.mock.ExpectationsWereMet())
}

func TestWorkflowServiceCreateAllowedAfterTerminalInstance(t *testing.T) {
	fx := newWorkflowFixture(t)
	fx.seedInstance(&models.WorkflowInstance{
		ID:          models.ID(1),
		EntityType:  models.EntityCourse,
		EntityID:    models.ID(500),
		TemplateID:  models.ID(10),
		Status:      models.WorkflowStatusRejected,
		CurrentStep: 1,
	})
	fx.mock.ExpectBegin()
	fx.mock.ExpectCommit()

	instance, err := fx.service.Create(context.Background(), dto.CreateWorkflowRequest{
		EntityType: models.EntityCourse,
		EntityID:   models.ID(500),
	}, actorClaims(models.RoleLecturer), testHistoryContext())
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusPending, instance.Status)
	assert.NoError(t, fx.mock.ExpectationsWereMet())
}

func TestWorkflowServiceCreateUnknownEntityType(t *testing.T) {
	fx := newWorkflowFixture(t)

	_, err := fx.service.Create(context.Background(), dto.CreateWorkflowRequest{
		EntityType: models.EntityType("FACULTY"),
		EntityID:   models.ID(500),
	}, actorClaims(models.RoleLecturer), testHistoryContext())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestWorkflowServiceSubmit(t *testing.T) {
	fx := newWorkflowFixture(t)
	fx.seedInstance(pendingCourseInstance())
	fx.mock.ExpectBegin()
	fx.mock.ExpectCommit()

	instance, err := fx.service.ProcessAction(context.Background(), models.ID(1), dto.WorkflowActionRequest{
		Action: models.ActionSubmit,
	}, actorClaims(models.RoleDepartmentHead), testHistoryContext())
	require.NoError(t, err)

	assert.Equal(t, models.WorkflowStatusInProgress, instance.Status)
	assert.Equal(t, 1, instance.CurrentStep)
	require.Len(t, fx.records.records, 1)
	assert.Equal(t, models.ActionSubmit, fx.records.records[0].Action)
	assert.NoError(t, fx.mock.ExpectationsWereMet())
}

func TestWorkflowServiceApproveAdvancesStep(t *testing.T) {
	fx := newWorkflowFixture(t)
	fx.seedInstance(pendingCourseInstance())
	fx.mock.ExpectBegin()
	fx.mock.ExpectCommit()

	comments := "looks good"
	instance, err := fx.service.ProcessAction(context.Background(), models.ID(1), dto.WorkflowActionRequest{
		Action:   models.ActionApprove,
		Comments: comments,
	}, actorClaims(models.RoleDepartmentHead), testHistoryContext())
	require.NoError(t, err)

	assert.Equal(t, models.WorkflowStatusInProgress, instance.Status)
	assert.Equal(t, 2, instance.CurrentStep)
	assert.Nil(t, instance.CompletedAt)
	require.Len(t, fx.records.records, 1)
	require.NotNil(t, fx.records.records[0].Comments)
	assert.Equal(t, comments, *fx.records.records[0].Comments)
	assert.NoError(t, fx.mock.ExpectationsWereMet())
}

func TestWorkflowServiceFinalApproveCompletes(t *testing.T) {
	fx := newWorkflowFixture(t)
	seeded := pendingCourseInstance()
	seeded.Status = models.WorkflowStatusInProgress
	seeded.CurrentStep = 3
	fx.seedInstance(seeded)
	fx.mock.ExpectBegin()
	fx.mock.ExpectCommit()

	instance, err := fx.service.ProcessAction(context.Background(), models.ID(1), dto.WorkflowActionRequest{
		Action: models.ActionApprove,
	}, actorClaims(models.RoleAcademicAffairs), testHistoryContext())
	require.NoError(t, err)

	assert.Equal(t, models.WorkflowStatusCompleted, instance.Status)
	assert.Equal(t, 3, instance.CurrentStep)
	require.NotNil(t, instance.CompletedAt)

	require.Len(t, fx.sync.calls, 1)
	assert.Equal(t, models.WorkflowStatusCompleted, fx.sync.calls[0].status)
	assert.Equal(t, models.ActionApprove, fx.sync.calls[0].action)
	assert.NoError(t, fx.mock.ExpectationsWereMet())
}

func TestWorkflowServiceRejectIsTerminal(t *testing.T) {
	fx := newWorkflowFixture(t)
	seeded := pendingCourseInstance()
	seeded.Status = models.WorkflowStatusInProgress
	seeded.CurrentStep = 2
	fx.seedInstance(seeded)
	fx.mock.ExpectBegin()
	fx.mock.ExpectCommit()

	instance, err := fx.service.ProcessAction(context.Background(), models.ID(1), dto.WorkflowActionRequest{
		Action: models.ActionReject,
	}, actorClaims(models.RoleDean), testHistoryContext())
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusRejected, instance.Status)
	require.NotNil(t, instance.CompletedAt)

	require.Len(t, fx.sync.calls, 1)
	assert.Equal(t, models.WorkflowStatusRejected, fx.sync.calls[0].status)

	// Any further action must be refused.
	fx.mock.ExpectBegin()
	fx.mock.ExpectRollback()
	_, err = fx.service.ProcessAction(context.Background(), models.ID(1), dto.WorkflowActionRequest{
		Action: models.ActionApprove,
	}, actorClaims(models.RoleDean), testHistoryContext())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotActionable.Code, appErrors.FromError(err).Code)
	assert.NoError(t, fx.mock.ExpectationsWereMet())
}

func TestWorkflowServiceReturnRestartsKeepingHistory(t *testing.T) {
	fx := newWorkflowFixture(t)
	seeded := pendingCourseInstance()
	seeded.Status = models.WorkflowStatusInProgress
	seeded.CurrentStep = 3
	fx.seedInstance(seeded)
	fx.records.records = []models.ApprovalRecord{
		{ID: models.ID(90), InstanceID: models.ID(1), ApproverID: models.ID(100), Action: models.ActionApprove},
		{ID: models.ID(91), InstanceID: models.ID(1), ApproverID: models.ID(101), Action: models.ActionApprove},
	}
	fx.mock.ExpectBegin()
	fx.mock.ExpectCommit()

	instance, err := fx.service.ProcessAction(context.Background(), models.ID(1), dto.WorkflowActionRequest{
		Action: models.ActionReturn,
	}, actorClaims(models.RoleAcademicAffairs), testHistoryContext())
	require.NoError(t, err)

	assert.Equal(t, models.WorkflowStatusInProgress, instance.Status)
	assert.Equal(t, 1, instance.CurrentStep)
	assert.Nil(t, instance.CompletedAt)
	// Prior history survives, plus the RETURN record itself.
	assert.Len(t, fx.records.records, 3)
	assert.NoError(t, fx.mock.ExpectationsWereMet())
}

func TestWorkflowServiceRoleAuthorization(t *testing.T) {
	fx := newWorkflowFixture(t, WithAuthorizer(RoleAuthorizer{}))
	seeded := pendingCourseInstance()
	seeded.Status = models.WorkflowStatusInProgress
	seeded.CurrentStep = 2
	fx.seedInstance(seeded)
	fx.mock.ExpectBegin()
	fx.mock.ExpectRollback()

	// Step 2 requires DEAN; a lecturer may not act there.
	_, err := fx.service.ProcessAction(context.Background(), models.ID(1), dto.WorkflowActionRequest{
		Action: models.ActionApprove,
	}, actorClaims(models.RoleLecturer), testHistoryContext())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	assert.Empty(t, fx.records.records)

	fx.mock.ExpectBegin()
	fx.mock.ExpectCommit()
	_, err = fx.service.ProcessAction(context.Background(), models.ID(1), dto.WorkflowActionRequest{
		Action: models.ActionApprove,
	}, actorClaims(models.RoleDean), testHistoryContext())
	require.NoError(t, err)
	assert.NoError(t, fx.mock.ExpectationsWereMet())
}

func TestWorkflowServiceProcessActionUnknownInstance(t *testing.T) {
	fx := newWorkflowFixture(t)
	fx.mock.ExpectBegin()
	fx.mock.ExpectRollback()

	_, err := fx.service.ProcessAction(context.Background(), models.ID(999), dto.WorkflowActionRequest{
		Action: models.ActionApprove,
	}, actorClaims(models.RoleDean), testHistoryContext())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestWorkflowServiceProcessActionInvalidAction(t *testing.T) {
	fx := newWorkflowFixture(t)

	_, err := fx.service.ProcessAction(context.Background(), models.ID(1), dto.WorkflowActionRequest{
		Action: models.WorkflowAction("ESCALATE"),
	}, actorClaims(models.RoleDean), testHistoryContext())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestWorkflowServiceReset(t *testing.T) {
	fx := newWorkflowFixture(t)
	completedAt := time.Now().UTC()
	seeded := pendingCourseInstance()
	seeded.Status = models.WorkflowStatusRejected
	seeded.CurrentStep = 2
	seeded.CompletedAt = &completedAt
	fx.seedInstance(seeded)
	fx.records.records = []models.ApprovalRecord{
		{ID: models.ID(90), InstanceID: models.ID(1), ApproverID: models.ID(100), Action: models.ActionReject},
	}
	fx.mock.ExpectBegin()
	fx.mock.ExpectCommit()

	instance, err := fx.service.Reset(context.Background(), models.ID(1), actorClaims(models.RoleAdmin), testHistoryContext())
	require.NoError(t, err)

	assert.Equal(t, models.WorkflowStatusPending, instance.Status)
	assert.Equal(t, 1, instance.CurrentStep)
	assert.Nil(t, instance.CompletedAt)
	assert.Empty(t, fx.records.records)
	require.Len(t, fx.audit.logs, 1)
	assert.Equal(t, models.AuditActionWorkflowReset, fx.audit.logs[0].Action)
	assert.NoError(t, fx.mock.ExpectationsWereMet())
}

func TestWorkflowServiceGetByEntity(t *testing.T) {
	fx := newWorkflowFixture(t)
	seeded := pendingCourseInstance()
	seeded.Status = models.WorkflowStatusInProgress
	fx.seedInstance(seeded)
	fx.records.records = []models.ApprovalRecord{
		{ID: models.ID(90), InstanceID: models.ID(1), ApproverID: models.ID(100), Action: models.ActionApprove},
		{ID: models.ID(91), InstanceID: models.ID(1), ApproverID: models.ID(999), Action: models.ActionApprove},
	}

	detail, err := fx.service.GetByEntity(context.Background(), models.EntityCourse, models.ID(500))
	require.NoError(t, err)
	require.NotNil(t, detail)
	require.Len(t, detail.Records, 2)
	assert.Equal(t, "Alice Nguyen", detail.Records[0].ApproverName)
	assert.Equal(t, "alice@uni.edu", detail.Records[0].ApproverEmail)
	// Unknown approvers degrade to the bare record.
	assert.Empty(t, detail.Records[1].ApproverName)
}

func TestWorkflowServiceGetByEntityMissing(t *testing.T) {
	fx := newWorkflowFixture(t)

	detail, err := fx.service.GetByEntity(context.Background(), models.EntityCourse, models.ID(404))
	require.NoError(t, err)
	assert.Nil(t, detail)
}

func TestWorkflowServiceCourseChangeDraftLifecycle(t *testing.T) {
	fx := newWorkflowFixture(t)

	fx.mock.ExpectBegin()
	fx.mock.ExpectCommit()
	instance, err := fx.service.Create(context.Background(), dto.CreateWorkflowRequest{
		EntityType: models.EntityCourseChange,
		EntityID:   models.ID(500),
		Metadata:   []byte(`{"operation":"UPDATE","new_data":{"credits":4}}`),
	}, actorClaims(models.RoleLecturer), testHistoryContext())
	require.NoError(t, err)

	draft, err := models.DecodeChangeDraft(instance.Metadata)
	require.NoError(t, err)
	assert.Equal(t, models.DraftStatusDraft, draft.Status)
	assert.Equal(t, models.DraftOpUpdate, draft.Operation)
	assert.Equal(t, models.DraftVersion, draft.Version)

	fx.mock.ExpectBegin()
	fx.mock.ExpectCommit()
	instance, err = fx.service.ProcessAction(context.Background(), instance.ID, dto.WorkflowActionRequest{
		Action: models.ActionSubmit,
	}, actorClaims(models.RoleLecturer), testHistoryContext())
	require.NoError(t, err)

	draft, err = models.DecodeChangeDraft(instance.Metadata)
	require.NoError(t, err)
	assert.Equal(t, models.DraftStatusPendingApproval, draft.Status)
	assert.Empty(t, fx.applier.applied, "draft must not be applied before final approval")

	fx.mock.ExpectBegin()
	fx.mock.ExpectCommit()
	instance, err = fx.service.ProcessAction(context.Background(), instance.ID, dto.WorkflowActionRequest{
		Action: models.ActionApprove,
	}, actorClaims(models.RoleDepartmentHead), testHistoryContext())
	require.NoError(t, err)

	assert.Equal(t, models.WorkflowStatusCompleted, instance.Status)
	draft, err = models.DecodeChangeDraft(instance.Metadata)
	require.NoError(t, err)
	assert.Equal(t, models.DraftStatusApproved, draft.Status)
	require.Len(t, fx.applier.applied, 1)
	assert.Equal(t, models.DraftOpUpdate, fx.applier.applied[0].Operation)
	// Entity status sync never touches change workflows.
	assert.Empty(t, fx.sync.calls)
	assert.NoError(t, fx.mock.ExpectationsWereMet())
}

func TestWorkflowServiceCourseChangeRejectKeepsDraft(t *testing.T) {
	fx := newWorkflowFixture(t)

	fx.mock.ExpectBegin()
	fx.mock.ExpectCommit()
	instance, err := fx.service.Create(context.Background(), dto.CreateWorkflowRequest{
		EntityType: models.EntityCourseChange,
		EntityID:   models.ID(500),
		Metadata:   []byte(`{"operation":"DELETE"}`),
	}, actorClaims(models.RoleLecturer), testHistoryContext())
	require.NoError(t, err)

	fx.mock.ExpectBegin()
	fx.mock.ExpectCommit()
	instance, err = fx.service.ProcessAction(context.Background(), instance.ID, dto.WorkflowActionRequest{
		Action: models.ActionReject,
	}, actorClaims(models.RoleDepartmentHead), testHistoryContext())
	require.NoError(t, err)

	assert.Equal(t, models.WorkflowStatusRejected, instance.Status)
	draft, err := models.DecodeChangeDraft(instance.Metadata)
	require.NoError(t, err)
	assert.Equal(t, models.DraftStatusRejected, draft.Status)
	assert.Empty(t, fx.applier.applied)
}

// --- Fixtures ---

type workflowFixture struct {
	service   *WorkflowService
	mock      sqlmock.Sqlmock
	templates *templateStoreStub
	instances *instanceStoreStub
	records   *recordStoreStub
	audit     *auditLoggerStub
	sync      *syncRecorder
	applier   *applierRecorder
}

func newWorkflowFixture(t *testing.T, opts ...WorkflowServiceOption) *workflowFixture {
	t.Helper()

	courseTemplate := &models.WorkflowTemplate{
		ID:   models.ID(10),
		Name: "course-approval",
		Steps: []models.WorkflowStep{
			{StepOrder: 1, Name: "department review", ApproverRole: models.RoleDepartmentHead, ApproverOrgLevel: models.OrgLevelDepartment},
			{StepOrder: 2, Name: "faculty review", ApproverRole: models.RoleDean, ApproverOrgLevel: models.OrgLevelFaculty},
			{StepOrder: 3, Name: "academic affairs review", ApproverRole: models.RoleAcademicAffairs, ApproverOrgLevel: models.OrgLevelUniversity},
		},
	}
	changeTemplate := &models.WorkflowTemplate{
		ID:   models.ID(20),
		Name: "course-change-approval",
		Steps: []models.WorkflowStep{
			{StepOrder: 1, Name: "department review", ApproverRole: models.RoleDepartmentHead, ApproverOrgLevel: models.OrgLevelDepartment},
		},
	}

	templates := &templateStoreStub{
		byName: map[string]*models.WorkflowTemplate{
			courseTemplate.Name: courseTemplate,
			changeTemplate.Name: changeTemplate,
		},
		byID: map[models.ID]*models.WorkflowTemplate{
			courseTemplate.ID: courseTemplate,
			changeTemplate.ID: changeTemplate,
		},
	}
	instances := &instanceStoreStub{instances: map[models.ID]models.WorkflowInstance{}, nextID: 1}
	records := &recordStoreStub{nextID: 1}
	approvers := approverDirectoryStub{
		models.ID(100): {ID: models.ID(100), FullName: "Alice Nguyen", Email: "alice@uni.edu"},
		models.ID(101): {ID: models.ID(101), FullName: "Binh Tran", Email: "binh@uni.edu"},
	}
	audit := &auditLoggerStub{}
	syncRec := &syncRecorder{}
	applier := &applierRecorder{}

	tx, mock := newWorkflowTxMock(t)

	baseOpts := []WorkflowServiceOption{
		WithSynchronizer(syncRec),
		WithDraftAppliers(map[models.EntityType]DraftApplier{models.EntityCourseChange: applier}),
	}
	baseOpts = append(baseOpts, opts...)

	svc := NewWorkflowService(templates, instances, records, approvers, audit, tx, nil, baseOpts...)

	return &workflowFixture{
		service:   svc,
		mock:      mock,
		templates: templates,
		instances: instances,
		records:   records,
		audit:     audit,
		sync:      syncRec,
		applier:   applier,
	}
}

func (fx *workflowFixture) seedInstance(instance *models.WorkflowInstance) {
	fx.instances.instances[instance.ID] = *instance
	if uint64(instance.ID) >= uint64(fx.instances.nextID) {
		fx.instances.nextID = instance.ID + 1
	}
}

func pendingCourseInstance() *models.WorkflowInstance {
	return &models.WorkflowInstance{
		ID:          models.ID(1),
		EntityType:  models.EntityCourse,
		EntityID:    models.ID(500),
		TemplateID:  models.ID(10),
		Status:      models.WorkflowStatusPending,
		CurrentStep: 1,
		InitiatedBy: models.ID(100),
		InitiatedAt: time.Now().UTC().Add(-time.Hour),
	}
}

func actorClaims(role models.UserRole) *models.JWTClaims {
	return &models.JWTClaims{UserID: "100", Role: role, FullName: "Alice Nguyen", Email: "alice@uni.edu"}
}

func testHistoryContext() models.HistoryContext {
	return models.HistoryContext{ActorID: models.ID(100), ActorName: "Alice Nguyen", IPAddress: "10.0.0.1", UserAgent: "test"}
}

type templateStoreStub struct {
	byName map[string]*models.WorkflowTemplate
	byID   map[models.ID]*models.WorkflowTemplate
}

func (s *templateStoreStub) GetByName(ctx context.Context, name string) (*models.WorkflowTemplate, error) {
	if template, ok := s.byName[name]; ok {
		return template, nil
	}
	return nil, sql.ErrNoRows
}

func (s *templateStoreStub) GetByID(ctx context.Context, id models.ID) (*models.WorkflowTemplate, error) {
	if template, ok := s.byID[id]; ok {
		return template, nil
	}
	return nil, sql.ErrNoRows
}

type instanceStoreStub struct {
	instances       map[models.ID]models.WorkflowInstance
	nextID          models.ID
	historyContexts []models.HistoryContext
}

func (s *instanceStoreStub) SetHistoryContext(ctx context.Context, exec sqlx.ExtContext, hc models.HistoryContext) error {
	s.historyContexts = append(s.historyContexts, hc)
	return nil
}

func (s *instanceStoreStub) Create(ctx context.Context, exec sqlx.ExtContext, instance *models.WorkflowInstance) error {
	if instance.ID.IsZero() {
		instance.ID = s.nextID
		s.nextID++
	}
	s.instances[instance.ID] = *instance
	return nil
}

func (s *instanceStoreStub) GetByID(ctx context.Context, id models.ID) (*models.WorkflowInstance, error) {
	if instance, ok := s.instances[id]; ok {
		return &instance, nil
	}
	return nil, sql.ErrNoRows
}

func (s *instanceStoreStub) GetByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id models.ID) (*models.WorkflowInstance, error) {
	return s.GetByID(ctx, id)
}

func (s *instanceStoreStub) FindActiveByEntity(ctx context.Context, exec sqlx.ExtContext, entityType models.EntityType, entityID models.ID) (*models.WorkflowInstance, error) {
	for _, instance := range s.instances {
		if instance.EntityType == entityType && instance.EntityID == entityID && !instance.Status.Terminal() {
			found := instance
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *instanceStoreStub) GetByEntity(ctx context.Context, entityType models.EntityType, entityID models.ID) (*models.WorkflowInstance, error) {
	var latest *models.WorkflowInstance
	for _, instance := range s.instances {
		if instance.EntityType != entityType || instance.EntityID != entityID {
			continue
		}
		found := instance
		if latest == nil || found.InitiatedAt.After(latest.InitiatedAt) {
			latest = &found
		}
	}
	if latest == nil {
		return nil, sql.ErrNoRows
	}
	return latest, nil
}

func (s *instanceStoreStub) List(ctx context.Context, filter models.InstanceFilter) ([]models.WorkflowInstance, error) {
	var out []models.WorkflowInstance
	for _, instance := range s.instances {
		if filter.EntityType != "" && instance.EntityType != filter.EntityType {
			continue
		}
		if filter.Status != "" && instance.Status != filter.Status {
			continue
		}
		out = append(out, instance)
	}
	return out, nil
}

func (s *instanceStoreStub) UpdateTransition(ctx context.Context, exec sqlx.ExtContext, instance *models.WorkflowInstance) error {
	if _, ok := s.instances[instance.ID]; !ok {
		return sql.ErrNoRows
	}
	s.instances[instance.ID] = *instance
	return nil
}

type recordStoreStub struct {
	records []models.ApprovalRecord
	nextID  models.ID
}

func (s *recordStoreStub) Create(ctx context.Context, exec sqlx.ExtContext, record *models.ApprovalRecord) error {
	if record.ID.IsZero() {
		record.ID = s.nextID
		s.nextID++
	}
	s.records = append(s.records, *record)
	return nil
}

func (s *recordStoreStub) ListByInstance(ctx context.Context, instanceID models.ID) ([]models.ApprovalRecord, error) {
	var out []models.ApprovalRecord
	for _, record := range s.records {
		if record.InstanceID == instanceID {
			out = append(out, record)
		}
	}
	return out, nil
}

func (s *recordStoreStub) DeleteByInstance(ctx context.Context, exec sqlx.ExtContext, instanceID models.ID) error {
	kept := s.records[:0]
	for _, record := range s.records {
		if record.InstanceID != instanceID {
			kept = append(kept, record)
		}
	}
	s.records = kept
	return nil
}

type approverDirectoryStub map[models.ID]models.User

func (s approverDirectoryStub) FindByIDs(ctx context.Context, ids []models.ID) (map[models.ID]models.User, error) {
	out := make(map[models.ID]models.User, len(ids))
	for _, id := range ids {
		if user, ok := s[id]; ok {
			out[id] = user
		}
	}
	return out, nil
}

type auditLoggerStub struct {
	logs []models.AuditLog
}

func (s *auditLoggerStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	s.logs = append(s.logs, *log)
	return nil
}

type syncCall struct {
	entityType models.EntityType
	entityID   models.ID
	status     models.WorkflowStatus
	action     models.WorkflowAction
}

type syncRecorder struct {
	calls []syncCall
	err   error
}

func (s *syncRecorder) Sync(ctx context.Context, entityType models.EntityType, entityID models.ID, status models.WorkflowStatus, action models.WorkflowAction) error {
	if entityType == models.EntityCourseChange {
		return nil
	}
	s.calls = append(s.calls, syncCall{entityType, entityID, status, action})
	return s.err
}

type applierRecorder struct {
	applied []models.ChangeDraft
	err     error
}

func (a *applierRecorder) Apply(ctx context.Context, exec sqlx.ExtContext, instance *models.WorkflowInstance, draft *models.ChangeDraft) error {
	if a.err != nil {
		return a.err
	}
	a.applied = append(a.applied, *draft)
	return nil
}

type workflowTxMock struct {
	db *sqlx.DB
}

func newWorkflowTxMock(t *testing.T) (workflowTxProvider, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	t.Cleanup(func() { db.Close() })
	return &workflowTxMock{db: sqlxdb}, mock
}

func (m *workflowTxMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return m.db.BeginTxx(ctx, opts)
}
