package models

import "time"

// NotificationType tags what a notification is about.
type NotificationType string

const (
	NotificationDeletionRequest NotificationType = "deletion_request"
	NotificationRequisition     NotificationType = "requisition"
	NotificationProject         NotificationType = "project"
	NotificationStudent         NotificationType = "student"
	NotificationAttendance      NotificationType = "attendance"
	NotificationTeam            NotificationType = "team"
	NotificationGeneral         NotificationType = "general"
)

// Notification is an in-app message. A nil TargetUser is a broadcast.
type Notification struct {
	ID         string           `db:"id" json:"id"`
	Type       NotificationType `db:"type" json:"type"`
	Title      string           `db:"title" json:"title"`
	Message    string           `db:"message" json:"message"`
	RelatedID  *string          `db:"related_id" json:"relatedId,omitempty"`
	IsRead     bool             `db:"is_read" json:"isRead"`
	CreatedBy  string           `db:"created_by" json:"createdBy"`
	TargetUser *string          `db:"target_user" json:"targetUser"`
	CreatedAt  time.Time        `db:"created_at" json:"createdAt"`
}

// IsBroadcast reports whether the notification has no specific recipient.
func (n Notification) IsBroadcast() bool {
	return n.TargetUser == nil
}

// NotificationFilter constrains listing and bulk queries. An empty Recipient
// matches every row. Otherwise rows targeted at Recipient match, plus
// broadcasts when IncludeBroadcast is set.
type NotificationFilter struct {
	Recipient        string
	IncludeBroadcast bool
	Type             NotificationType
	Unread           bool
	Limit            int
}
