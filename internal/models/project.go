package models

import (
	"time"

	"github.com/lib/pq"
)

// ProjectStatus enumerates project lifecycle states.
type ProjectStatus string

const (
	ProjectStatusActive    ProjectStatus = "Active"
	ProjectStatusCompleted ProjectStatus = "Completed"
	ProjectStatusOnHold    ProjectStatus = "On Hold"
)

// Project groups students under assigned members.
type Project struct {
	ID              string         `db:"id" json:"id"`
	Name            string         `db:"name" json:"name"`
	Status          ProjectStatus  `db:"status" json:"status"`
	Description     string         `db:"description" json:"description"`
	StartDate       time.Time      `db:"start_date" json:"startDate"`
	EndDate         *time.Time     `db:"end_date" json:"endDate,omitempty"`
	AssignedMembers pq.StringArray `db:"assigned_members" json:"assignedMembers"`
	Version         int            `db:"version" json:"version"`
	CreatedAt       time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updatedAt"`
}

// HasMember reports whether memberID is assigned to the project.
func (p Project) HasMember(memberID string) bool {
	for _, id := range p.AssignedMembers {
		if id == memberID {
			return true
		}
	}
	return false
}

// ProjectFilter constrains project listings. MemberID limits results to
// projects the member is assigned to.
type ProjectFilter struct {
	Status   ProjectStatus
	MemberID string
	Search   string
}
