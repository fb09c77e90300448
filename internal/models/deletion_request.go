package models

import "time"

// DeletionRequestStatus captures workflow states for student deletion.
type DeletionRequestStatus string

const (
	DeletionPending  DeletionRequestStatus = "Pending"
	DeletionApproved DeletionRequestStatus = "Approved"
	DeletionRejected DeletionRequestStatus = "Rejected"
)

var deletionTransitions = map[DeletionRequestStatus][]DeletionRequestStatus{
	DeletionPending: {DeletionApproved, DeletionRejected},
}

// CanTransition reports whether a deletion request may move from s to next.
// Approved and Rejected are terminal.
func (s DeletionRequestStatus) CanTransition(next DeletionRequestStatus) bool {
	for _, allowed := range deletionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// DeletionRequest asks the administrator to remove a student. The student
// name and email are snapshotted so the record survives the deletion.
type DeletionRequest struct {
	ID               string                `db:"id" json:"id"`
	StudentID        string                `db:"student_id" json:"studentId"`
	StudentName      string                `db:"student_name" json:"studentName"`
	StudentEmail     string                `db:"student_email" json:"studentEmail"`
	RequestedBy      UserRole              `db:"requested_by" json:"requestedBy"`
	RequestedByEmail string                `db:"requested_by_email" json:"requestedByEmail"`
	Reason           string                `db:"reason" json:"reason"`
	RequestDate      time.Time             `db:"request_date" json:"requestDate"`
	Status           DeletionRequestStatus `db:"status" json:"status"`
	AdminResponse    *string               `db:"admin_response" json:"adminResponse,omitempty"`
	AdminEmail       *string               `db:"admin_email" json:"adminEmail,omitempty"`
	ResponseDate     *time.Time            `db:"response_date" json:"responseDate,omitempty"`
	CreatedAt        time.Time             `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time             `db:"updated_at" json:"updatedAt"`
}

// DeletionRequestFilter constrains listing queries.
type DeletionRequestFilter struct {
	Status           DeletionRequestStatus
	RequestedByEmail string
}
