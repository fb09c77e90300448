package dto

// AttendanceQuery filters attendance listings, summaries and exports.
type AttendanceQuery struct {
	ProjectID string `form:"projectId"`
	StudentID string `form:"studentId"`
	From      string `form:"from" validate:"omitempty,datetime=2006-01-02"`
	To        string `form:"to" validate:"omitempty,datetime=2006-01-02"`
	Format    string `form:"format"`
}

// AttendanceMark is one student's status within a bulk submission.
type AttendanceMark struct {
	StudentID string  `json:"studentId" validate:"required"`
	Status    string  `json:"status" validate:"required,attendance_status"`
	Comment   *string `json:"comment" validate:"omitempty,max=500"`
}

// SubmitAttendanceRequest records a whole session for one project and date.
type SubmitAttendanceRequest struct {
	ProjectID string           `json:"projectId" validate:"required"`
	Date      string           `json:"date" validate:"required,datetime=2006-01-02"`
	Records   []AttendanceMark `json:"records" validate:"required,min=1,dive"`
}
