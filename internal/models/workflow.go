package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// EntityType enumerates the entity categories governed by approval workflows.
type EntityType string

const (
	EntityCourse       EntityType = "COURSE"
	EntityProgram      EntityType = "PROGRAM"
	EntityMajor        EntityType = "MAJOR"
	EntityCourseChange EntityType = "COURSE_CHANGE"
)

// KnownEntityTypes lists every entity type the engine can resolve a
// template for.
var KnownEntityTypes = []EntityType{
	EntityCourse,
	EntityProgram,
	EntityMajor,
	EntityCourseChange,
}

// WorkflowStatus captures the lifecycle of a workflow instance.
type WorkflowStatus string

const (
	WorkflowStatusPending    WorkflowStatus = "PENDING"
	WorkflowStatusInProgress WorkflowStatus = "IN_PROGRESS"
	// WorkflowStatusApproved is kept in the taxonomy for rows written by the
	// legacy system; the engine never produces it.
	WorkflowStatusApproved  WorkflowStatus = "APPROVED"
	WorkflowStatusCompleted WorkflowStatus = "COMPLETED"
	WorkflowStatusRejected  WorkflowStatus = "REJECTED"
)

// Terminal reports whether no further action may be taken on an instance.
func (s WorkflowStatus) Terminal() bool {
	return s == WorkflowStatusCompleted || s == WorkflowStatusRejected
}

// WorkflowAction enumerates actions processable against an instance.
type WorkflowAction string

const (
	ActionSubmit  WorkflowAction = "SUBMIT"
	ActionApprove WorkflowAction = "APPROVE"
	ActionReject  WorkflowAction = "REJECT"
	ActionReturn  WorkflowAction = "RETURN"
)

// Valid reports whether the action is recognised by the engine.
func (a WorkflowAction) Valid() bool {
	switch a {
	case ActionSubmit, ActionApprove, ActionReject, ActionReturn:
		return true
	}
	return false
}

// WorkflowTemplate is a reusable definition of an ordered approval step
// sequence. Templates are seed data; the engine only reads them.
type WorkflowTemplate struct {
	ID          ID             `db:"id" json:"id"`
	Name        string         `db:"name" json:"name"`
	Description string         `db:"description" json:"description"`
	Steps       []WorkflowStep `db:"-" json:"steps"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
}

// StepAt returns the 1-based step definition, or nil when out of range.
func (t *WorkflowTemplate) StepAt(order int) *WorkflowStep {
	if order < 1 || order > len(t.Steps) {
		return nil
	}
	return &t.Steps[order-1]
}

// WorkflowStep is one approval stage within a template.
type WorkflowStep struct {
	ID               ID       `db:"id" json:"id"`
	TemplateID       ID       `db:"template_id" json:"template_id"`
	StepOrder        int      `db:"step_order" json:"step_order"`
	Name             string   `db:"name" json:"name"`
	ApproverRole     UserRole `db:"approver_role" json:"approver_role"`
	ApproverOrgLevel OrgLevel `db:"approver_org_level" json:"approver_org_level"`
	TimeoutDays      int      `db:"timeout_days" json:"timeout_days"`
}

// WorkflowInstance is one in-flight (or completed) approval process bound
// to a single entity.
type WorkflowInstance struct {
	ID          ID             `db:"id" json:"id"`
	EntityType  EntityType     `db:"entity_type" json:"entity_type"`
	EntityID    ID             `db:"entity_id" json:"entity_id"`
	TemplateID  ID             `db:"template_id" json:"template_id"`
	Status      WorkflowStatus `db:"status" json:"status"`
	CurrentStep int            `db:"current_step" json:"current_step"`
	InitiatedBy ID             `db:"initiated_by" json:"initiated_by"`
	InitiatedAt time.Time      `db:"initiated_at" json:"initiated_at"`
	CompletedAt *time.Time     `db:"completed_at" json:"completed_at,omitempty"`
	Metadata    types.JSONText `db:"metadata" json:"metadata,omitempty"`
}

// ApprovalRecord is an immutable log entry of one action taken on an
// instance. Records are only removed wholesale by an explicit reset.
type ApprovalRecord struct {
	ID          ID             `db:"id" json:"id"`
	InstanceID  ID             `db:"workflow_instance_id" json:"workflow_instance_id"`
	ApproverID  ID             `db:"approver_id" json:"approver_id"`
	Action      WorkflowAction `db:"action" json:"action"`
	Comments    *string        `db:"comments" json:"comments,omitempty"`
	Attachments types.JSONText `db:"attachments" json:"attachments,omitempty"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
}

// ApprovalRecordDetail augments a record with approver display info
// resolved at read time.
type ApprovalRecordDetail struct {
	ApprovalRecord
	ApproverName  string `db:"-" json:"approver_name,omitempty"`
	ApproverEmail string `db:"-" json:"approver_email,omitempty"`
}

// WorkflowDetail bundles an instance with its approval history.
type WorkflowDetail struct {
	Instance WorkflowInstance       `json:"instance"`
	Records  []ApprovalRecordDetail `json:"records"`
}

// InstanceFilter constrains workflow listing queries.
type InstanceFilter struct {
	EntityType EntityType
	Status     WorkflowStatus
	Limit      int
	Offset     int
}

// EntityBreakdown summarises instances of one entity type.
type EntityBreakdown struct {
	Total     int64 `json:"total"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Rejected  int64 `json:"rejected"`
}

// DashboardAggregate is the read-only rollup over the instance store.
type DashboardAggregate struct {
	Total      int64                          `json:"total"`
	Pending    int64                          `json:"pending"`
	InProgress int64                          `json:"in_progress"`
	Approved   int64                          `json:"approved"`
	Rejected   int64                          `json:"rejected"`
	Completed  int64                          `json:"completed"`
	Overdue    int64                          `json:"overdue"`
	ByEntity   map[EntityType]EntityBreakdown `json:"by_entity"`
}

// StatusCount is one GROUP BY row feeding the dashboard aggregate.
type StatusCount struct {
	EntityType EntityType     `db:"entity_type"`
	Status     WorkflowStatus `db:"status"`
	Count      int64          `db:"count"`
}
