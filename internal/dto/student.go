package dto

// DateLayout is the calendar date format accepted in request payloads.
const DateLayout = "2006-01-02"

// StudentQuery holds list filters bound from the query string.
type StudentQuery struct {
	Search    string `form:"search"`
	Status    string `form:"status" validate:"omitempty,student_status"`
	ProjectID string `form:"projectId"`
	Page      int    `form:"page"`
	PageSize  int    `form:"pageSize"`
}

// CreateStudentRequest registers a student and its initial project links.
type CreateStudentRequest struct {
	FullName       string   `json:"fullName" validate:"required,max=200"`
	Email          string   `json:"email" validate:"required,email"`
	Phone          string   `json:"phone" validate:"omitempty,max=40"`
	EnrollmentDate string   `json:"enrollmentDate" validate:"omitempty,datetime=2006-01-02"`
	Status         string   `json:"status" validate:"omitempty,student_status"`
	ProjectIDs     []string `json:"projectIds" validate:"omitempty,dive,required"`
}

// UpdateStudentRequest changes only the supplied fields. Version, when set,
// must match the stored version.
type UpdateStudentRequest struct {
	FullName       *string `json:"fullName" validate:"omitempty,min=1,max=200"`
	Email          *string `json:"email" validate:"omitempty,email"`
	Phone          *string `json:"phone" validate:"omitempty,max=40"`
	EnrollmentDate *string `json:"enrollmentDate" validate:"omitempty,datetime=2006-01-02"`
	Status         *string `json:"status" validate:"omitempty,student_status"`
	Version        *int    `json:"version" validate:"omitempty,min=1"`
}

// DeleteStudentRequest carries the administrator's reason for a direct removal.
type DeleteStudentRequest struct {
	Reason string `json:"reason"`
}

// AssignProjectRequest links a student to a project.
type AssignProjectRequest struct {
	ProjectID string `json:"projectId" validate:"required"`
}
