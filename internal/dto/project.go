package dto

// ProjectQuery holds project list filters.
type ProjectQuery struct {
	Status string `form:"status" validate:"omitempty,project_status"`
	Search string `form:"search"`
}

// CreateProjectRequest defines payload for creating a project.
type CreateProjectRequest struct {
	Name            string   `json:"name" validate:"required,max=200"`
	Status          string   `json:"status" validate:"omitempty,project_status"`
	Description     string   `json:"description"`
	StartDate       string   `json:"startDate" validate:"required,datetime=2006-01-02"`
	EndDate         *string  `json:"endDate" validate:"omitempty,datetime=2006-01-02"`
	AssignedMembers []string `json:"assignedMembers" validate:"omitempty,dive,required"`
}

// UpdateProjectRequest changes only the supplied fields.
type UpdateProjectRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=200"`
	Status      *string `json:"status" validate:"omitempty,project_status"`
	Description *string `json:"description"`
	StartDate   *string `json:"startDate" validate:"omitempty,datetime=2006-01-02"`
	EndDate     *string `json:"endDate"`
	Version     *int    `json:"version" validate:"omitempty,min=1"`
}

// AssignMemberRequest adds a member to a project.
type AssignMemberRequest struct {
	MemberID string `json:"memberId" validate:"required"`
}
