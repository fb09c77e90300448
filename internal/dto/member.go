package dto

// MemberQuery holds member list filters.
type MemberQuery struct {
	Status string `form:"status" validate:"omitempty,member_status"`
	Search string `form:"search"`
}

// CreateMemberRequest defines payload for creating a member account.
type CreateMemberRequest struct {
	Name     string  `json:"name" validate:"required,max=200"`
	Email    string  `json:"email" validate:"required,email"`
	Password string  `json:"password" validate:"required,min=8,max=72"`
	Phone    string  `json:"phone" validate:"omitempty,max=40"`
	ImageURL *string `json:"imageUrl" validate:"omitempty,url"`
	Status   string  `json:"status" validate:"omitempty,member_status"`
}

// UpdateMemberRequest changes only the supplied fields. Password resets the
// stored hash.
type UpdateMemberRequest struct {
	Name     *string `json:"name" validate:"omitempty,min=1,max=200"`
	Email    *string `json:"email" validate:"omitempty,email"`
	Password *string `json:"password" validate:"omitempty,min=8,max=72"`
	Phone    *string `json:"phone" validate:"omitempty,max=40"`
	ImageURL *string `json:"imageUrl" validate:"omitempty,url"`
	Status   *string `json:"status" validate:"omitempty,member_status"`
	Version  *int    `json:"version" validate:"omitempty,min=1"`
}
