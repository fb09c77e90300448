package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/institute-backoffice-api/internal/models"
	"github.com/noah-isme/institute-backoffice-api/pkg/database"
)

// AttendanceRepository persists attendance marks. Records are append only.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs an AttendanceRepository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// List returns attendance records with student and project names, newest first.
func (r *AttendanceRepository) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, error) {
	if filter.Scoped && len(filter.ProjectIDs) == 0 {
		return []models.AttendanceRecord{}, nil
	}

	args := []interface{}{}
	conditions := []string{"1=1"}
	if filter.ProjectID != "" {
		args = append(args, filter.ProjectID)
		conditions = append(conditions, fmt.Sprintf("a.project_id = $%d", len(args)))
	}
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		conditions = append(conditions, fmt.Sprintf("a.student_id = $%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		conditions = append(conditions, fmt.Sprintf("a.date >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		conditions = append(conditions, fmt.Sprintf("a.date <= $%d", len(args)))
	}
	if filter.Scoped {
		args = append(args, pq.Array(filter.ProjectIDs))
		conditions = append(conditions, fmt.Sprintf("a.student_id IN (SELECT ps.student_id FROM project_students ps WHERE ps.project_id = ANY($%d))", len(args)))
	}

	query := fmt.Sprintf(`SELECT a.id, a.student_id, s.full_name AS student_name, a.project_id, p.name AS project_name,
       a.date, a.status, a.comment, a.marked_by, a.created_at
	FROM attendance a
	JOIN students s ON s.id = a.student_id
	JOIN projects p ON p.id = a.project_id
	WHERE %s ORDER BY a.date DESC, s.full_name ASC`, strings.Join(conditions, " AND "))

	var records []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	return records, nil
}

// SubmitBulk stores one session's marks. A project and date that already has
// marks yields ErrDuplicate and nothing is written.
func (r *AttendanceRepository) SubmitBulk(ctx context.Context, projectID string, date time.Time, records []models.AttendanceRecord) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin attendance transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var exists bool
	const checkQuery = `SELECT EXISTS (SELECT 1 FROM attendance WHERE project_id = $1 AND date = $2)`
	if err = tx.GetContext(ctx, &exists, checkQuery, projectID, date); err != nil {
		return fmt.Errorf("check attendance submission: %w", err)
	}
	if exists {
		err = ErrDuplicate
		return err
	}

	now := time.Now().UTC()
	const insertQuery = `INSERT INTO attendance (id, student_id, project_id, date, status, comment, marked_by, created_at)
        VALUES (:id, :student_id, :project_id, :date, :status, :comment, :marked_by, :created_at)`
	for i := range records {
		record := &records[i]
		if record.ID == "" {
			record.ID = uuid.NewString()
		}
		record.ProjectID = projectID
		record.Date = date
		record.CreatedAt = now
		if _, err = tx.NamedExecContext(ctx, insertQuery, record); err != nil {
			if database.IsUniqueViolation(err) {
				err = ErrDuplicate
				return err
			}
			return fmt.Errorf("insert attendance: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit attendance: %w", err)
	}
	return nil
}
