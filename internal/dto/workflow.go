package dto

import (
	"encoding/json"

	"github.com/uniadm/academic-api/internal/models"
)

// CreateWorkflowRequest starts an approval workflow for an entity.
type CreateWorkflowRequest struct {
	EntityType models.EntityType `json:"entityType" validate:"required"`
	EntityID   models.ID         `json:"entityId" validate:"required"`
	Metadata   json.RawMessage   `json:"metadata,omitempty"`
}

// WorkflowActionRequest carries one approval decision.
type WorkflowActionRequest struct {
	Action      models.WorkflowAction `json:"action" validate:"required"`
	Comments    string                `json:"comments,omitempty"`
	Attachments json.RawMessage       `json:"attachments,omitempty"`
}

// WorkflowQuery constrains instance listings.
type WorkflowQuery struct {
	EntityType models.EntityType
	Status     models.WorkflowStatus
	Limit      int
	Offset     int
}
