package models

import "time"

// AttendanceStatus enumerates the marks a member can record.
type AttendanceStatus string

const (
	AttendancePresent          AttendanceStatus = "Present"
	AttendanceLate             AttendanceStatus = "Late"
	AttendanceAbsent           AttendanceStatus = "Absent"
	AttendanceAbsentWithReason AttendanceStatus = "Absent with Reason"
)

// CountsAsPresent reports whether the mark contributes to the attendance percentage.
func (s AttendanceStatus) CountsAsPresent() bool {
	return s == AttendancePresent || s == AttendanceLate
}

// AttendanceRecord is one student's mark for a project session.
type AttendanceRecord struct {
	ID          string           `db:"id" json:"id"`
	StudentID   string           `db:"student_id" json:"studentId"`
	StudentName string           `db:"student_name" json:"studentName,omitempty"`
	ProjectID   string           `db:"project_id" json:"projectId"`
	ProjectName string           `db:"project_name" json:"projectName,omitempty"`
	Date        time.Time        `db:"date" json:"date"`
	Status      AttendanceStatus `db:"status" json:"status"`
	Comment     *string          `db:"comment" json:"comment,omitempty"`
	MarkedBy    string           `db:"marked_by" json:"markedBy"`
	CreatedAt   time.Time        `db:"created_at" json:"createdAt"`
}

// AttendanceFilter constrains attendance listings. When Scoped is set only
// records for ProjectIDs are returned.
type AttendanceFilter struct {
	ProjectID  string
	StudentID  string
	From       *time.Time
	To         *time.Time
	ProjectIDs []string
	Scoped     bool
}

// AttendanceSummary aggregates marks per student.
type AttendanceSummary struct {
	StudentID        string  `json:"studentId"`
	StudentName      string  `json:"studentName"`
	Total            int     `json:"total"`
	Present          int     `json:"present"`
	Late             int     `json:"late"`
	Absent           int     `json:"absent"`
	AbsentWithReason int     `json:"absentWithReason"`
	Percentage       float64 `json:"percentage"`
}
