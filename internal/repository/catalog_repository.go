package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/uniadm/academic-api/internal/models"
)

// CatalogRepository provides the slice of course/program/major persistence
// the workflow core needs: status writes and staged-change application.
// Full catalog CRUD lives with the record managers, not here.
type CatalogRepository struct {
	db *sqlx.DB
}

// NewCatalogRepository constructs the repository.
func NewCatalogRepository(db *sqlx.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

var entityTables = map[models.EntityType]string{
	models.EntityCourse:  "courses",
	models.EntityProgram: "programs",
	models.EntityMajor:   "majors",
	// Change workflows govern course rows.
	models.EntityCourseChange: "courses",
}

// UpdateStatus writes the derived workflow status onto the governed record.
func (r *CatalogRepository) UpdateStatus(ctx context.Context, entityType models.EntityType, entityID models.ID, status models.EntityStatus) error {
	table, ok := entityTables[entityType]
	if !ok {
		return fmt.Errorf("no status table for entity type %s", entityType)
	}
	query := fmt.Sprintf(`UPDATE %s SET status = $2, updated_at = $3 WHERE id = $1`, table)
	result, err := r.db.ExecContext(ctx, query, entityID, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update %s status: %w", table, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check %s status update rows: %w", table, err)
	}
	if rows == 0 {
		return fmt.Errorf("%s %s not found", table, entityID)
	}
	return nil
}

// GetCourse loads one course row.
func (r *CatalogRepository) GetCourse(ctx context.Context, id models.ID) (*models.Course, error) {
	const query = `SELECT id, code, name_vi, name_en, credits, status, created_at, updated_at
	FROM courses WHERE id = $1`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		return nil, err
	}
	return &course, nil
}

// ApplyCourseUpdate applies an approved draft's new_data onto the course
// row inside the caller's transaction. Only whitelisted columns are
// touched; unknown keys in the payload are ignored.
func (r *CatalogRepository) ApplyCourseUpdate(ctx context.Context, exec sqlx.ExtContext, id models.ID, newData json.RawMessage) error {
	var payload struct {
		Code    *string `json:"code"`
		NameVI  *string `json:"name_vi"`
		NameEN  *string `json:"name_en"`
		Credits *int    `json:"credits"`
	}
	if err := json.Unmarshal(newData, &payload); err != nil {
		return fmt.Errorf("decode course draft payload: %w", err)
	}

	sets := make([]string, 0, 4)
	args := []interface{}{id}
	appendSet := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if payload.Code != nil {
		appendSet("code", *payload.Code)
	}
	if payload.NameVI != nil {
		appendSet("name_vi", *payload.NameVI)
	}
	if payload.NameEN != nil {
		appendSet("name_en", *payload.NameEN)
	}
	if payload.Credits != nil {
		appendSet("credits", *payload.Credits)
	}
	if len(sets) == 0 {
		return fmt.Errorf("course draft payload has no applicable fields")
	}
	appendSet("updated_at", time.Now().UTC())

	query := fmt.Sprintf(`UPDATE courses SET %s WHERE id = $1`, strings.Join(sets, ", "))
	result, err := exec.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("apply course draft: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check course draft rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("course %s not found", id)
	}
	return nil
}

// DeleteCourse removes the course row when an approved draft carries a
// DELETE operation.
func (r *CatalogRepository) DeleteCourse(ctx context.Context, exec sqlx.ExtContext, id models.ID) error {
	const query = `DELETE FROM courses WHERE id = $1`
	result, err := exec.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete course: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check course delete rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("course %s not found", id)
	}
	return nil
}
