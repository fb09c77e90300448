package dto

// DeletionRequestQuery holds deletion request list filters.
type DeletionRequestQuery struct {
	Status string `form:"status"`
}

// CreateDeletionRequest asks the administrator to remove a student.
type CreateDeletionRequest struct {
	StudentID string `json:"studentId" validate:"required"`
	Reason    string `json:"reason" validate:"required"`
}

// DecideDeletionRequest carries the administrator's response. It is optional
// on approval and required on rejection.
type DecideDeletionRequest struct {
	Response string `json:"response"`
}
