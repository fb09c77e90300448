package models

import "time"

// StudentStatus captures enrollment progress.
type StudentStatus string

const (
	StudentStatusActive    StudentStatus = "Active"
	StudentStatusCompleted StudentStatus = "Completed"
	StudentStatusDropped   StudentStatus = "Dropped"
)

// AddedBy records which kind of actor registered a student.
type AddedBy string

const (
	AddedByAdmin  AddedBy = "admin"
	AddedByMember AddedBy = "member"
)

// Student represents a learner registered in the institute.
type Student struct {
	ID             string           `db:"id" json:"id"`
	FullName       string           `db:"full_name" json:"fullName"`
	Email          string           `db:"email" json:"email"`
	Phone          string           `db:"phone" json:"phone"`
	EnrollmentDate time.Time        `db:"enrollment_date" json:"enrollmentDate"`
	Status         StudentStatus    `db:"status" json:"status"`
	AddedBy        AddedBy          `db:"added_by" json:"addedBy"`
	AddedByEmail   string           `db:"added_by_email" json:"addedByEmail"`
	Projects       []StudentProject `db:"-" json:"projects"`
	Version        int              `db:"version" json:"version"`
	CreatedAt      time.Time        `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time        `db:"updated_at" json:"updatedAt"`
}

// StudentProject is one row of the project_students join, resolved with the project name.
type StudentProject struct {
	StudentID    string    `db:"student_id" json:"-"`
	ProjectID    string    `db:"project_id" json:"projectId"`
	ProjectName  string    `db:"project_name" json:"projectName"`
	AssignedDate time.Time `db:"assigned_date" json:"assignedDate"`
}

// ProjectIDs returns the ids of the associated projects.
func (s Student) ProjectIDs() []string {
	ids := make([]string, 0, len(s.Projects))
	for _, p := range s.Projects {
		ids = append(ids, p.ProjectID)
	}
	return ids
}

// StudentFilter encapsulates allowed search parameters for listing students.
// When Scoped is set only students associated with one of ProjectIDs match.
type StudentFilter struct {
	Search     string
	Status     StudentStatus
	ProjectID  string
	ProjectIDs []string
	Scoped     bool
	Page       int
	PageSize   int
}
