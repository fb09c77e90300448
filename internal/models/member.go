package models

import (
	"time"

	"github.com/lib/pq"
)

// MemberStatus toggles whether a member may log in and receive assignments.
type MemberStatus string

const (
	MemberStatusActive   MemberStatus = "Active"
	MemberStatusInactive MemberStatus = "Inactive"
)

// Member is a staff account managed by the administrator.
type Member struct {
	ID               string         `db:"id" json:"id"`
	Name             string         `db:"name" json:"name"`
	Email            string         `db:"email" json:"email"`
	PasswordHash     string         `db:"password_hash" json:"-"`
	Phone            string         `db:"phone" json:"phone"`
	ImageURL         *string        `db:"image_url" json:"imageUrl,omitempty"`
	Status           MemberStatus   `db:"status" json:"status"`
	AssignedProjects pq.StringArray `db:"assigned_projects" json:"assignedProjects"`
	Version          int            `db:"version" json:"version"`
	CreatedAt        time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time      `db:"updated_at" json:"updatedAt"`
}

// IsActive reports whether the member can log in and take new assignments.
func (m Member) IsActive() bool {
	return m.Status == MemberStatusActive
}

// MemberFilter constrains member listings.
type MemberFilter struct {
	Status MemberStatus
	Search string
}
