package models

// Table names used for change propagation subscriptions.
const (
	TableStudents         = "students"
	TableMembers          = "members"
	TableProjects         = "projects"
	TableProjectStudents  = "project_students"
	TableAttendance       = "attendance"
	TableRequisitions     = "requisitions"
	TableDeletionRequests = "deletion_requests"
	TableNotifications    = "notifications"
)

// Tables lists every table that emits change events.
var Tables = []string{
	TableStudents,
	TableMembers,
	TableProjects,
	TableProjectStudents,
	TableAttendance,
	TableRequisitions,
	TableDeletionRequests,
	TableNotifications,
}

// IsKnownTable reports whether name is a table that emits change events.
func IsKnownTable(name string) bool {
	for _, t := range Tables {
		if t == name {
			return true
		}
	}
	return false
}
