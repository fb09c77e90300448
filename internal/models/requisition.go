package models

import "time"

// RequisitionCategory classifies what is being requested.
type RequisitionCategory string

const (
	RequisitionEquipment RequisitionCategory = "Equipment"
	RequisitionSupplies  RequisitionCategory = "Supplies"
	RequisitionServices  RequisitionCategory = "Services"
	RequisitionOther     RequisitionCategory = "Other"
)

// RequisitionPriority ranks urgency.
type RequisitionPriority string

const (
	PriorityLow    RequisitionPriority = "Low"
	PriorityMedium RequisitionPriority = "Medium"
	PriorityHigh   RequisitionPriority = "High"
)

// RequisitionStatus captures the review state.
type RequisitionStatus string

const (
	RequisitionPending  RequisitionStatus = "Pending"
	RequisitionApproved RequisitionStatus = "Approved"
	RequisitionRejected RequisitionStatus = "Rejected"
)

var requisitionTransitions = map[RequisitionStatus][]RequisitionStatus{
	RequisitionPending:  {RequisitionApproved, RequisitionRejected},
	RequisitionApproved: {RequisitionPending},
	RequisitionRejected: {RequisitionPending},
}

// CanTransition reports whether a requisition may move from s to next.
// Reviews go through Pending: a decided requisition is reopened before it can
// be decided the other way.
func (s RequisitionStatus) CanTransition(next RequisitionStatus) bool {
	for _, allowed := range requisitionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Requisition is a purchase or service request raised by a member.
type Requisition struct {
	ID            string              `db:"id" json:"id"`
	Title         string              `db:"title" json:"title"`
	Description   string              `db:"description" json:"description"`
	Category      RequisitionCategory `db:"category" json:"category"`
	Quantity      int                 `db:"quantity" json:"quantity"`
	EstimatedCost float64             `db:"estimated_cost" json:"estimatedCost"`
	Priority      RequisitionPriority `db:"priority" json:"priority"`
	Status        RequisitionStatus   `db:"status" json:"status"`
	SubmittedBy   string              `db:"submitted_by" json:"submittedBy"`
	SubmittedDate time.Time           `db:"submitted_date" json:"submittedDate"`
	ReviewedBy    *string             `db:"reviewed_by" json:"reviewedBy,omitempty"`
	ReviewedDate  *time.Time          `db:"reviewed_date" json:"reviewedDate,omitempty"`
	ReviewNotes   *string             `db:"review_notes" json:"reviewNotes,omitempty"`
	Version       int                 `db:"version" json:"version"`
	CreatedAt     time.Time           `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time           `db:"updated_at" json:"updatedAt"`
}

// RequisitionFilter constrains listing queries.
type RequisitionFilter struct {
	Status      RequisitionStatus
	Category    RequisitionCategory
	SubmittedBy string
}
