package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uniadm/academic-api/internal/models"
)

type statusWriterStub struct {
	updates []statusUpdate
	err     error
}

type statusUpdate struct {
	entityType models.EntityType
	entityID   models.ID
	status     models.EntityStatus
}

func (s *statusWriterStub) UpdateStatus(ctx context.Context, entityType models.EntityType, entityID models.ID, status models.EntityStatus) error {
	if s.err != nil {
		return s.err
	}
	s.updates = append(s.updates, statusUpdate{entityType, entityID, status})
	return nil
}

func TestEntitySyncServiceMappings(t *testing.T) {
	cases := []struct {
		name   string
		status models.WorkflowStatus
		action models.WorkflowAction
		want   models.EntityStatus
	}{
		{"final approval publishes", models.WorkflowStatusCompleted, models.ActionApprove, models.EntityStatusPublished},
		{"intermediate approval", models.WorkflowStatusInProgress, models.ActionApprove, models.EntityStatusApproved},
		{"submit", models.WorkflowStatusInProgress, models.ActionSubmit, models.EntityStatusPendingApproval},
		{"return", models.WorkflowStatusInProgress, models.ActionReturn, models.EntityStatusDraft},
		{"reject", models.WorkflowStatusRejected, models.ActionReject, models.EntityStatusRejected},
		{"reject after return", models.WorkflowStatusRejected, models.ActionReturn, models.EntityStatusRejected},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			writer := &statusWriterStub{}
			svc := NewEntitySyncService(writer, nil)

			err := svc.Sync(context.Background(), models.EntityCourse, models.ID(7), tc.status, tc.action)
			require.NoError(t, err)
			require.Len(t, writer.updates, 1)
			assert.Equal(t, tc.want, writer.updates[0].status)
			assert.Equal(t, models.ID(7), writer.updates[0].entityID)
		})
	}
}

func TestEntitySyncServiceSkipsChangeWorkflows(t *testing.T) {
	writer := &statusWriterStub{}
	svc := NewEntitySyncService(writer, nil)

	err := svc.Sync(context.Background(), models.EntityCourseChange, models.ID(7), models.WorkflowStatusCompleted, models.ActionApprove)
	require.NoError(t, err)
	assert.Empty(t, writer.updates)
}

func TestEntitySyncServiceUnmappedOutcomeIsNoop(t *testing.T) {
	writer := &statusWriterStub{}
	svc := NewEntitySyncService(writer, nil)

	err := svc.Sync(context.Background(), models.EntityProgram, models.ID(7), models.WorkflowStatusPending, models.ActionSubmit)
	require.NoError(t, err)
	assert.Empty(t, writer.updates)
}

func TestEntitySyncServiceWrapsWriteError(t *testing.T) {
	writer := &statusWriterStub{err: errors.New("boom")}
	svc := NewEntitySyncService(writer, nil)

	err := svc.Sync(context.Background(), models.EntityMajor, models.ID(7), models.WorkflowStatusRejected, models.ActionReject)
	require.Error(t, err)
}

type draftTargetStub struct {
	updated map[models.ID]json.RawMessage
	deleted []models.ID
}

func (s *draftTargetStub) ApplyCourseUpdate(ctx context.Context, exec sqlx.ExtContext, id models.ID, newData json.RawMessage) error {
	if s.updated == nil {
		s.updated = map[models.ID]json.RawMessage{}
	}
	s.updated[id] = newData
	return nil
}

func (s *draftTargetStub) DeleteCourse(ctx context.Context, exec sqlx.ExtContext, id models.ID) error {
	s.deleted = append(s.deleted, id)
	return nil
}

func TestCourseDraftApplierUpdate(t *testing.T) {
	target := &draftTargetStub{}
	applier := NewCourseDraftApplier(target)

	instance := &models.WorkflowInstance{ID: models.ID(1), EntityID: models.ID(500), EntityType: models.EntityCourseChange}
	draft := &models.ChangeDraft{Version: models.DraftVersion, Operation: models.DraftOpUpdate, NewData: json.RawMessage(`{"credits":4}`)}

	require.NoError(t, applier.Apply(context.Background(), nil, instance, draft))
	assert.JSONEq(t, `{"credits":4}`, string(target.updated[models.ID(500)]))
}

func TestCourseDraftApplierUpdateRequiresNewData(t *testing.T) {
	applier := NewCourseDraftApplier(&draftTargetStub{})

	instance := &models.WorkflowInstance{ID: models.ID(1), EntityID: models.ID(500)}
	draft := &models.ChangeDraft{Version: models.DraftVersion, Operation: models.DraftOpUpdate}

	err := applier.Apply(context.Background(), nil, instance, draft)
	require.Error(t, err)
}

func TestCourseDraftApplierDelete(t *testing.T) {
	target := &draftTargetStub{}
	applier := NewCourseDraftApplier(target)

	instance := &models.WorkflowInstance{ID: models.ID(1), EntityID: models.ID(500)}
	draft := &models.ChangeDraft{Version: models.DraftVersion, Operation: models.DraftOpDelete}

	require.NoError(t, applier.Apply(context.Background(), nil, instance, draft))
	assert.Equal(t, []models.ID{models.ID(500)}, target.deleted)
}

func TestRoleAuthorizer(t *testing.T) {
	step := models.WorkflowStep{StepOrder: 2, Name: "faculty review", ApproverRole: models.RoleDean}

	assert.NoError(t, RoleAuthorizer{}.Authorize(context.Background(), &models.JWTClaims{Role: models.RoleDean}, step))
	assert.NoError(t, RoleAuthorizer{}.Authorize(context.Background(), &models.JWTClaims{Role: models.RoleAdmin}, step))
	assert.NoError(t, RoleAuthorizer{}.Authorize(context.Background(), &models.JWTClaims{Role: models.RoleSuperAdmin}, step))
	assert.Error(t, RoleAuthorizer{}.Authorize(context.Background(), &models.JWTClaims{Role: models.RoleLecturer}, step))
	assert.Error(t, RoleAuthorizer{}.Authorize(context.Background(), nil, step))
}
