package dto

// NotificationQuery holds notification list filters.
type NotificationQuery struct {
	Type   string `form:"type"`
	Unread bool   `form:"unread"`
	Limit  int    `form:"limit"`
}

// CreateNotificationRequest lets the administrator post a message. A nil
// TargetUser broadcasts to everyone.
type CreateNotificationRequest struct {
	Type       string  `json:"type" validate:"omitempty,notification_type"`
	Title      string  `json:"title" validate:"required,max=200"`
	Message    string  `json:"message" validate:"required,max=2000"`
	TargetUser *string `json:"targetUser" validate:"omitempty,min=1"`
	RelatedID  *string `json:"relatedId"`
}
