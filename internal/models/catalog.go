package models

import "time"

// EntityStatus is the derived status written onto governed records by the
// workflow synchronizer. Workflow state is the source of truth; this field
// is a cache that may transiently lag.
type EntityStatus string

const (
	EntityStatusDraft           EntityStatus = "DRAFT"
	EntityStatusPendingApproval EntityStatus = "PENDING_APPROVAL"
	EntityStatusApproved        EntityStatus = "APPROVED"
	EntityStatusPublished       EntityStatus = "PUBLISHED"
	EntityStatusRejected        EntityStatus = "REJECTED"
)

// Course is a catalog course subject to approval workflows.
type Course struct {
	ID        ID           `db:"id" json:"id"`
	Code      string       `db:"code" json:"code"`
	NameVI    string       `db:"name_vi" json:"name_vi"`
	NameEN    string       `db:"name_en" json:"name_en"`
	Credits   int          `db:"credits" json:"credits"`
	Status    EntityStatus `db:"status" json:"status"`
	CreatedAt time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt time.Time    `db:"updated_at" json:"updated_at"`
}

// Program is a training program subject to approval workflows.
type Program struct {
	ID        ID           `db:"id" json:"id"`
	Code      string       `db:"code" json:"code"`
	NameVI    string       `db:"name_vi" json:"name_vi"`
	NameEN    string       `db:"name_en" json:"name_en"`
	Status    EntityStatus `db:"status" json:"status"`
	CreatedAt time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt time.Time    `db:"updated_at" json:"updated_at"`
}

// Major is an academic major subject to approval workflows.
type Major struct {
	ID        ID           `db:"id" json:"id"`
	Code      string       `db:"code" json:"code"`
	NameVI    string       `db:"name_vi" json:"name_vi"`
	NameEN    string       `db:"name_en" json:"name_en"`
	Status    EntityStatus `db:"status" json:"status"`
	CreatedAt time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt time.Time    `db:"updated_at" json:"updated_at"`
}
