package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/uniadm/academic-api/internal/dto"
	"github.com/uniadm/academic-api/internal/models"
	"github.com/uniadm/academic-api/internal/service"
	appErrors "github.com/uniadm/academic-api/pkg/errors"
	"github.com/uniadm/academic-api/pkg/response"
)

type workflowEngine interface {
	Create(ctx context.Context, req dto.CreateWorkflowRequest, actor *models.JWTClaims, hc models.HistoryContext) (*models.WorkflowInstance, error)
	ProcessAction(ctx context.Context, instanceID models.ID, req dto.WorkflowActionRequest, actor *models.JWTClaims, hc models.HistoryContext) (*models.WorkflowInstance, error)
	Reset(ctx context.Context, instanceID models.ID, actor *models.JWTClaims, hc models.HistoryContext) (*models.WorkflowInstance, error)
	List(ctx context.Context, query dto.WorkflowQuery) ([]models.WorkflowInstance, error)
	GetByEntity(ctx context.Context, entityType models.EntityType, entityID models.ID) (*models.WorkflowDetail, error)
}

type dashboardProvider interface {
	Dashboard(ctx context.Context) (*models.DashboardAggregate, bool, error)
	Invalidate(ctx context.Context)
}

// WorkflowHandler wires HTTP endpoints to the workflow engine.
type WorkflowHandler struct {
	workflows workflowEngine
	dashboard dashboardProvider
	metrics   *service.MetricsService
}

// NewWorkflowHandler creates a new handler.
func NewWorkflowHandler(workflows workflowEngine, dashboard dashboardProvider, metrics *service.MetricsService) *WorkflowHandler {
	return &WorkflowHandler{workflows: workflows, dashboard: dashboard, metrics: metrics}
}

// Create godoc
// @Summary Start an approval workflow
// @Description Create a workflow instance for an entity, selecting the template by entity type
// @Tags Workflows
// @Accept json
// @Produce json
// @Param payload body dto.CreateWorkflowRequest true "Workflow payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /workflows [post]
func (h *WorkflowHandler) Create(c *gin.Context) {
	claims, ok := claimsFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.CreateWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid workflow payload"))
		return
	}

	instance, err := h.workflows.Create(c.Request.Context(), req, claims, historyContext(c, claims))
	if err != nil {
		response.Error(c, err)
		return
	}

	h.dashboard.Invalidate(c.Request.Context())
	response.Created(c, instance)
}

// List godoc
// @Summary List workflow instances
// @Description List workflow instances filtered by entity type and status
// @Tags Workflows
// @Produce json
// @Param entityType query string false "Entity type filter"
// @Param status query string false "Status filter"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /workflows [get]
func (h *WorkflowHandler) List(c *gin.Context) {
	query := dto.WorkflowQuery{
		EntityType: models.EntityType(c.Query("entityType")),
		Status:     models.WorkflowStatus(c.Query("status")),
	}
	if raw := c.Query("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			query.Limit = v
		}
	}
	if raw := c.Query("offset"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			query.Offset = v
		}
	}

	instances, err := h.workflows.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, instances, nil)
}

// GetByEntity godoc
// @Summary Get workflow for an entity
// @Description Return the latest workflow instance for an entity with its approval history
// @Tags Workflows
// @Produce json
// @Param entityType query string true "Entity type"
// @Param entityId query string true "Entity ID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /workflows/entity [get]
func (h *WorkflowHandler) GetByEntity(c *gin.Context) {
	entityType := models.EntityType(c.Query("entityType"))
	if entityType == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "entityType is required"))
		return
	}
	entityID, err := models.ParseID(c.Query("entityId"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "entityId must be a numeric identifier"))
		return
	}

	detail, err := h.workflows.GetByEntity(c.Request.Context(), entityType, entityID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if detail == nil {
		response.JSON(c, http.StatusOK, nil, nil)
		return
	}

	response.JSON(c, http.StatusOK, detail, nil)
}

// Dashboard godoc
// @Summary Workflow dashboard aggregates
// @Description Aggregate workflow instance counts by status and entity type
// @Tags Workflows
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /workflows/dashboard [get]
func (h *WorkflowHandler) Dashboard(c *gin.Context) {
	aggregate, cached, err := h.dashboard.Dashboard(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, aggregate, nil, map[string]interface{}{"cached": cached})
}

// ProcessAction godoc
// @Summary Apply an approval action
// @Description Apply SUBMIT, APPROVE, REJECT or RETURN to a workflow instance
// @Tags Workflows
// @Accept json
// @Produce json
// @Param id path string true "Workflow instance ID"
// @Param payload body dto.WorkflowActionRequest true "Action payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /workflows/{id}/actions [post]
func (h *WorkflowHandler) ProcessAction(c *gin.Context) {
	claims, ok := claimsFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	instanceID, err := models.ParseID(c.Param("id"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "workflow id must be a numeric identifier"))
		return
	}

	var req dto.WorkflowActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid action payload"))
		return
	}

	instance, err := h.workflows.ProcessAction(c.Request.Context(), instanceID, req, claims, historyContext(c, claims))
	if err != nil {
		h.metrics.ObserveWorkflowAction("", string(req.Action), "error")
		response.Error(c, err)
		return
	}

	h.metrics.ObserveWorkflowAction(string(instance.EntityType), string(req.Action), "success")
	h.dashboard.Invalidate(c.Request.Context())
	response.JSON(c, http.StatusOK, instance, nil)
}

// Reset godoc
// @Summary Reset a workflow instance
// @Description Purge approval history and restart the workflow from its first step
// @Tags Workflows
// @Produce json
// @Param id path string true "Workflow instance ID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /workflows/{id}/reset [post]
func (h *WorkflowHandler) Reset(c *gin.Context) {
	claims, ok := claimsFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	instanceID, err := models.ParseID(c.Param("id"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "workflow id must be a numeric identifier"))
		return
	}

	instance, err := h.workflows.Reset(c.Request.Context(), instanceID, claims, historyContext(c, claims))
	if err != nil {
		response.Error(c, err)
		return
	}

	h.dashboard.Invalidate(c.Request.Context())
	response.JSON(c, http.StatusOK, instance, nil)
}
