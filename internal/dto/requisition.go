package dto

// RequisitionQuery holds requisition list filters.
type RequisitionQuery struct {
	Status   string `form:"status"`
	Category string `form:"category" validate:"omitempty,requisition_category"`
}

// CreateRequisitionRequest defines payload for raising a requisition.
type CreateRequisitionRequest struct {
	Title         string  `json:"title" validate:"required,max=200"`
	Description   string  `json:"description" validate:"max=2000"`
	Category      string  `json:"category" validate:"required,requisition_category"`
	Quantity      int     `json:"quantity" validate:"required,min=1"`
	EstimatedCost float64 `json:"estimatedCost" validate:"min=0"`
	Priority      string  `json:"priority" validate:"required,requisition_priority"`
}

// UpdateRequisitionRequest changes only the supplied fields.
type UpdateRequisitionRequest struct {
	Title         *string  `json:"title" validate:"omitempty,min=1,max=200"`
	Description   *string  `json:"description" validate:"omitempty,max=2000"`
	Category      *string  `json:"category" validate:"omitempty,requisition_category"`
	Quantity      *int     `json:"quantity" validate:"omitempty,min=1"`
	EstimatedCost *float64 `json:"estimatedCost" validate:"omitempty,min=0"`
	Priority      *string  `json:"priority" validate:"omitempty,requisition_priority"`
	Version       *int     `json:"version" validate:"omitempty,min=1"`
}

// ApproveRequisitionRequest carries optional reviewer notes.
type ApproveRequisitionRequest struct {
	Notes string `json:"notes"`
}

// RejectRequisitionRequest carries the mandatory rejection reason.
type RejectRequisitionRequest struct {
	Reason string `json:"reason"`
}
