package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	gocache "github.com/patrickmn/go-cache"

	"github.com/uniadm/academic-api/internal/models"
)

// WorkflowTemplateRepository reads workflow templates and their ordered
// steps. Templates are seed data edited outside the hot path, so lookups
// are cached in process.
type WorkflowTemplateRepository struct {
	db    *sqlx.DB
	cache *gocache.Cache
}

// NewWorkflowTemplateRepository constructs the repository.
func NewWorkflowTemplateRepository(db *sqlx.DB, cacheTTL time.Duration) *WorkflowTemplateRepository {
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}
	return &WorkflowTemplateRepository{
		db:    db,
		cache: gocache.New(cacheTTL, 2*cacheTTL),
	}
}

// GetByName loads one template with its steps ordered by step_order.
func (r *WorkflowTemplateRepository) GetByName(ctx context.Context, name string) (*models.WorkflowTemplate, error) {
	if cached, ok := r.cache.Get(name); ok {
		template := cached.(models.WorkflowTemplate)
		return &template, nil
	}

	const templateQuery = `SELECT id, name, description, created_at, updated_at
	FROM workflow_templates WHERE name = $1 LIMIT 1`
	var template models.WorkflowTemplate
	if err := r.db.GetContext(ctx, &template, templateQuery, name); err != nil {
		return nil, err
	}

	steps, err := r.stepsForTemplate(ctx, template.ID)
	if err != nil {
		return nil, err
	}
	template.Steps = steps

	r.cache.SetDefault(name, template)
	return &template, nil
}

// GetByID loads one template with its steps.
func (r *WorkflowTemplateRepository) GetByID(ctx context.Context, id models.ID) (*models.WorkflowTemplate, error) {
	const templateQuery = `SELECT id, name, description, created_at, updated_at
	FROM workflow_templates WHERE id = $1 LIMIT 1`
	var template models.WorkflowTemplate
	if err := r.db.GetContext(ctx, &template, templateQuery, id); err != nil {
		return nil, err
	}

	steps, err := r.stepsForTemplate(ctx, template.ID)
	if err != nil {
		return nil, err
	}
	template.Steps = steps
	return &template, nil
}

// List returns all templates without steps, for administrative listings.
func (r *WorkflowTemplateRepository) List(ctx context.Context) ([]models.WorkflowTemplate, error) {
	const query = `SELECT id, name, description, created_at, updated_at
	FROM workflow_templates ORDER BY name ASC`
	var templates []models.WorkflowTemplate
	if err := r.db.SelectContext(ctx, &templates, query); err != nil {
		return nil, fmt.Errorf("list workflow templates: %w", err)
	}
	return templates, nil
}

// Invalidate drops a cached template after administrative edits.
func (r *WorkflowTemplateRepository) Invalidate(name string) {
	r.cache.Delete(name)
}

func (r *WorkflowTemplateRepository) stepsForTemplate(ctx context.Context, templateID models.ID) ([]models.WorkflowStep, error) {
	const query = `SELECT id, template_id, step_order, name, approver_role, approver_org_level, timeout_days
	FROM workflow_steps WHERE template_id = $1 ORDER BY step_order ASC`
	var steps []models.WorkflowStep
	if err := r.db.SelectContext(ctx, &steps, query, templateID); err != nil {
		return nil, fmt.Errorf("load workflow steps: %w", err)
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("workflow template %s has no steps", templateID)
	}
	return steps, nil
}
