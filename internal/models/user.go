package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleSuperAdmin      UserRole = "SUPERADMIN"
	RoleAdmin           UserRole = "ADMIN"
	RoleAcademicAffairs UserRole = "ACADEMIC_AFFAIRS"
	RoleDean            UserRole = "DEAN"
	RoleDepartmentHead  UserRole = "DEPARTMENT_HEAD"
	RoleLecturer        UserRole = "LECTURER"
)

// OrgLevel identifies the organisational scope a role acts within.
type OrgLevel string

const (
	OrgLevelDepartment OrgLevel = "DEPARTMENT"
	OrgLevelFaculty    OrgLevel = "FACULTY"
	OrgLevelUniversity OrgLevel = "UNIVERSITY"
)

// User represents an application user stored in the users table.
type User struct {
	ID           ID         `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Role         UserRole   `db:"role" json:"role"`
	OrgLevel     OrgLevel   `db:"org_level" json:"org_level"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
