package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uniadm/academic-api/internal/models"
)

func templateRows(id int64, name string) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{"id", "name", "description", "created_at", "updated_at"}).
		AddRow(id, name, "", now, now)
}

func stepRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "template_id", "step_order", "name", "approver_role", "approver_org_level", "timeout_days"})
}

func TestWorkflowTemplateRepositoryGetByName(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewWorkflowTemplateRepository(db, time.Minute)

	mock.ExpectQuery("FROM workflow_templates WHERE name = \\$1").
		WithArgs("course-approval").
		WillReturnRows(templateRows(10, "course-approval"))
	mock.ExpectQuery("FROM workflow_steps WHERE template_id = \\$1 ORDER BY step_order ASC").
		WithArgs(int64(10)).
		WillReturnRows(stepRows().
			AddRow(int64(1), int64(10), 1, "department review", "DEPARTMENT_HEAD", "DEPARTMENT", 3).
			AddRow(int64(2), int64(10), 2, "faculty review", "DEAN", "FACULTY", 5))

	template, err := repo.GetByName(context.Background(), "course-approval")
	require.NoError(t, err)
	require.Len(t, template.Steps, 2)
	assert.Equal(t, models.RoleDepartmentHead, template.Steps[0].ApproverRole)
	assert.Equal(t, 2, template.Steps[1].StepOrder)

	// Second lookup is served from the in-process cache, no SQL.
	cachedTemplate, err := repo.GetByName(context.Background(), "course-approval")
	require.NoError(t, err)
	assert.Equal(t, template.ID, cachedTemplate.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkflowTemplateRepositoryRejectsStepless(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewWorkflowTemplateRepository(db, time.Minute)

	mock.ExpectQuery("FROM workflow_templates WHERE name = \\$1").
		WithArgs("empty-template").
		WillReturnRows(templateRows(11, "empty-template"))
	mock.ExpectQuery("FROM workflow_steps WHERE template_id = \\$1").
		WithArgs(int64(11)).
		WillReturnRows(stepRows())

	_, err := repo.GetByName(context.Background(), "empty-template")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no steps")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkflowTemplateRepositoryInvalidate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewWorkflowTemplateRepository(db, time.Minute)

	for i := 0; i < 2; i++ {
		mock.ExpectQuery("FROM workflow_templates WHERE name = \\$1").
			WithArgs("course-approval").
			WillReturnRows(templateRows(10, "course-approval"))
		mock.ExpectQuery("FROM workflow_steps WHERE template_id = \\$1").
			WithArgs(int64(10)).
			WillReturnRows(stepRows().
				AddRow(int64(1), int64(10), 1, "department review", "DEPARTMENT_HEAD", "DEPARTMENT", 3))
	}

	_, err := repo.GetByName(context.Background(), "course-approval")
	require.NoError(t, err)

	repo.Invalidate("course-approval")

	_, err = repo.GetByName(context.Background(), "course-approval")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
