package repository

import (
	"database/sql"
	"fmt"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// expectAffected turns a zero row update into sql.ErrNoRows so callers can
// tell a missing or stale row apart from a successful write.
func expectAffected(result sql.Result, op string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check %s rows: %w", op, err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func pageBounds(page, size int) (limit, offset int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > maxPageSize {
		size = defaultPageSize
	}
	return size, (page - 1) * size
}
