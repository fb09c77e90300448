package repository

import "errors"

var (
	// ErrDuplicate reports a unique constraint hit such as a reused member email
	// or a second attendance submission for the same project and date.
	ErrDuplicate = errors.New("duplicate record")
	// ErrStudentMissing reports that the student targeted by a deletion approval no longer exists.
	ErrStudentMissing = errors.New("student not found")
)
