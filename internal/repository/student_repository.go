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
)

const studentColumns = `s.id, s.full_name, s.email, s.phone, s.enrollment_date, s.status, s.added_by, s.added_by_email,
       s.version, s.created_at, s.updated_at`

// StudentRepository manages persistence for student records and their project associations.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// List returns students matching the provided filters, newest first.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	if filter.Scoped && len(filter.ProjectIDs) == 0 {
		return []models.Student{}, 0, nil
	}

	args := []interface{}{}
	conditions := []string{"1=1"}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("s.status = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		conditions = append(conditions, fmt.Sprintf("(LOWER(s.full_name) LIKE $%d OR LOWER(s.email) LIKE $%d)", len(args), len(args)))
	}
	if filter.ProjectID != "" {
		args = append(args, filter.ProjectID)
		conditions = append(conditions, fmt.Sprintf("EXISTS (SELECT 1 FROM project_students ps WHERE ps.student_id = s.id AND ps.project_id = $%d)", len(args)))
	}
	if filter.Scoped {
		args = append(args, pq.Array(filter.ProjectIDs))
		conditions = append(conditions, fmt.Sprintf("EXISTS (SELECT 1 FROM project_students ps WHERE ps.student_id = s.id AND ps.project_id = ANY($%d))", len(args)))
	}
	base := fmt.Sprintf("FROM students s WHERE %s", strings.Join(conditions, " AND "))

	limit, offset := pageBounds(filter.Page, filter.PageSize)
	query := fmt.Sprintf("SELECT %s %s ORDER BY s.created_at DESC LIMIT %d OFFSET %d", studentColumns, base, limit, offset)

	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}

	if err := r.attachProjects(ctx, students); err != nil {
		return nil, 0, err
	}
	return students, total, nil
}

// GetByID fetches a student with its project associations.
func (r *StudentRepository) GetByID(ctx context.Context, id string) (*models.Student, error) {
	query := fmt.Sprintf("SELECT %s FROM students s WHERE s.id = $1", studentColumns)
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		return nil, err
	}
	students := []models.Student{student}
	if err := r.attachProjects(ctx, students); err != nil {
		return nil, err
	}
	return &students[0], nil
}

// Create inserts a student together with its initial project associations.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) (err error) {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	student.CreatedAt = now
	student.UpdatedAt = now
	student.Version = 1

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin student transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const query = `INSERT INTO students (id, full_name, email, phone, enrollment_date, status, added_by, added_by_email, version, created_at, updated_at)
        VALUES (:id, :full_name, :email, :phone, :enrollment_date, :status, :added_by, :added_by_email, :version, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}

	const linkQuery = `INSERT INTO project_students (student_id, project_id, assigned_date) VALUES ($1, $2, $3)`
	for i := range student.Projects {
		link := &student.Projects[i]
		link.StudentID = student.ID
		if link.AssignedDate.IsZero() {
			link.AssignedDate = now
		}
		if _, err = tx.ExecContext(ctx, linkQuery, student.ID, link.ProjectID, link.AssignedDate); err != nil {
			return fmt.Errorf("link student project: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit student: %w", err)
	}
	return nil
}

// Update writes scalar fields guarded by the version the caller read.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student) error {
	student.UpdatedAt = time.Now().UTC()
	const query = `UPDATE students SET full_name = :full_name, email = :email, phone = :phone, enrollment_date = :enrollment_date,
        status = :status, version = version + 1, updated_at = :updated_at WHERE id = :id AND version = :version`
	result, err := r.db.NamedExecContext(ctx, query, student)
	if err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	if err := expectAffected(result, "student update"); err != nil {
		return err
	}
	student.Version++
	return nil
}

// Delete removes a student and its project associations.
func (r *StudentRepository) Delete(ctx context.Context, id string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin student delete: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = deleteStudentTx(ctx, tx, id); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit student delete: %w", err)
	}
	return nil
}

// AssignProject links a student to a project. Linking twice is a no-op.
func (r *StudentRepository) AssignProject(ctx context.Context, studentID, projectID string, assignedAt time.Time) error {
	const query = `INSERT INTO project_students (student_id, project_id, assigned_date) VALUES ($1, $2, $3)
        ON CONFLICT (student_id, project_id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, studentID, projectID, assignedAt); err != nil {
		return fmt.Errorf("assign student project: %w", err)
	}
	return nil
}

// UnassignProject removes a student from a project.
func (r *StudentRepository) UnassignProject(ctx context.Context, studentID, projectID string) error {
	const query = `DELETE FROM project_students WHERE student_id = $1 AND project_id = $2`
	result, err := r.db.ExecContext(ctx, query, studentID, projectID)
	if err != nil {
		return fmt.Errorf("unassign student project: %w", err)
	}
	return expectAffected(result, "student unassign")
}

// CountByStatus groups students by status for the dashboard.
func (r *StudentRepository) CountByStatus(ctx context.Context) (map[models.StudentStatus]int, error) {
	var rows []struct {
		Status models.StudentStatus `db:"status"`
		Total  int                  `db:"total"`
	}
	if err := r.db.SelectContext(ctx, &rows, `SELECT status, COUNT(*) AS total FROM students GROUP BY status`); err != nil {
		return nil, fmt.Errorf("count students by status: %w", err)
	}
	counts := make(map[models.StudentStatus]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Total
	}
	return counts, nil
}

func (r *StudentRepository) attachProjects(ctx context.Context, students []models.Student) error {
	if len(students) == 0 {
		return nil
	}
	ids := make([]string, len(students))
	for i, s := range students {
		ids[i] = s.ID
	}
	const query = `SELECT ps.student_id, ps.project_id, p.name AS project_name, ps.assigned_date
        FROM project_students ps JOIN projects p ON p.id = ps.project_id
        WHERE ps.student_id = ANY($1) ORDER BY ps.assigned_date ASC`
	var links []models.StudentProject
	if err := r.db.SelectContext(ctx, &links, query, pq.Array(ids)); err != nil {
		return fmt.Errorf("load student projects: %w", err)
	}
	byStudent := make(map[string][]models.StudentProject, len(students))
	for _, link := range links {
		byStudent[link.StudentID] = append(byStudent[link.StudentID], link)
	}
	for i := range students {
		students[i].Projects = byStudent[students[i].ID]
		if students[i].Projects == nil {
			students[i].Projects = []models.StudentProject{}
		}
	}
	return nil
}

// deleteStudentTx removes join rows then the student inside tx. A missing
// student yields sql.ErrNoRows.
func deleteStudentTx(ctx context.Context, tx *sqlx.Tx, id string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM project_students WHERE student_id = $1`, id); err != nil {
		return fmt.Errorf("delete student projects: %w", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM students WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	return expectAffected(result, "student delete")
}
