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

const projectColumns = `id, name, status, description, start_date, end_date, assigned_members, version, created_at, updated_at`

// ProjectRepository persists projects and keeps member assignment arrays in sync.
type ProjectRepository struct {
	db *sqlx.DB
}

// NewProjectRepository constructs a ProjectRepository.
func NewProjectRepository(db *sqlx.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// List returns projects matching the filter, newest first.
func (r *ProjectRepository) List(ctx context.Context, filter models.ProjectFilter) ([]models.Project, error) {
	args := []interface{}{}
	conditions := []string{"1=1"}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.MemberID != "" {
		args = append(args, filter.MemberID)
		conditions = append(conditions, fmt.Sprintf("$%d = ANY(assigned_members)", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		conditions = append(conditions, fmt.Sprintf("LOWER(name) LIKE $%d", len(args)))
	}
	query := fmt.Sprintf("SELECT %s FROM projects WHERE %s ORDER BY created_at DESC", projectColumns, strings.Join(conditions, " AND "))

	var projects []models.Project
	if err := r.db.SelectContext(ctx, &projects, query, args...); err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}

// GetByID fetches a project by identifier.
func (r *ProjectRepository) GetByID(ctx context.Context, id string) (*models.Project, error) {
	var project models.Project
	if err := r.db.GetContext(ctx, &project, "SELECT "+projectColumns+" FROM projects WHERE id = $1", id); err != nil {
		return nil, err
	}
	return &project, nil
}

// IDsForMember returns the ids of projects the member is assigned to.
func (r *ProjectRepository) IDsForMember(ctx context.Context, memberID string) ([]string, error) {
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, `SELECT id FROM projects WHERE $1 = ANY(assigned_members)`, memberID); err != nil {
		return nil, fmt.Errorf("list member projects: %w", err)
	}
	return ids, nil
}

// StudentIDs returns the distinct students enrolled on any of projectIDs.
func (r *ProjectRepository) StudentIDs(ctx context.Context, projectIDs []string) ([]string, error) {
	ids := []string{}
	if len(projectIDs) == 0 {
		return ids, nil
	}
	const query = `SELECT DISTINCT student_id FROM project_students WHERE project_id = ANY($1) ORDER BY student_id`
	if err := r.db.SelectContext(ctx, &ids, query, pq.Array(projectIDs)); err != nil {
		return nil, fmt.Errorf("list project students: %w", err)
	}
	return ids, nil
}

// Create inserts a project and records it on each assigned member.
func (r *ProjectRepository) Create(ctx context.Context, project *models.Project) (err error) {
	if project.ID == "" {
		project.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	project.CreatedAt = now
	project.UpdatedAt = now
	project.Version = 1
	if project.AssignedMembers == nil {
		project.AssignedMembers = pq.StringArray{}
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin project transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const query = `INSERT INTO projects (id, name, status, description, start_date, end_date, assigned_members, version, created_at, updated_at)
        VALUES (:id, :name, :status, :description, :start_date, :end_date, :assigned_members, :version, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, query, project); err != nil {
		return fmt.Errorf("create project: %w", err)
	}
	for _, memberID := range project.AssignedMembers {
		if err = linkMemberTx(ctx, tx, project.ID, memberID, now); err != nil {
			return err
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit project: %w", err)
	}
	return nil
}

// Update writes scalar fields guarded by version.
func (r *ProjectRepository) Update(ctx context.Context, project *models.Project) error {
	project.UpdatedAt = time.Now().UTC()
	const query = `UPDATE projects SET name = :name, status = :status, description = :description, start_date = :start_date,
        end_date = :end_date, version = version + 1, updated_at = :updated_at WHERE id = :id AND version = :version`
	result, err := r.db.NamedExecContext(ctx, query, project)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	if err := expectAffected(result, "project update"); err != nil {
		return err
	}
	project.Version++
	return nil
}

// Delete removes a project, its student links and its id from member assignment lists.
func (r *ProjectRepository) Delete(ctx context.Context, id string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin project delete: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const unlink = `UPDATE members SET assigned_projects = array_remove(assigned_projects, $1), updated_at = $2
        WHERE $1 = ANY(assigned_projects)`
	if _, err = tx.ExecContext(ctx, unlink, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("unlink project members: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM project_students WHERE project_id = $1`, id); err != nil {
		return fmt.Errorf("delete project students: %w", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if err = expectAffected(result, "project delete"); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit project delete: %w", err)
	}
	return nil
}

// AssignMember adds memberID to the project and the project to the member.
func (r *ProjectRepository) AssignMember(ctx context.Context, projectID, memberID string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin member assignment: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	const query = `UPDATE projects SET assigned_members = array_append(assigned_members, $2), version = version + 1, updated_at = $3
        WHERE id = $1 AND NOT ($2 = ANY(assigned_members))`
	if _, err = tx.ExecContext(ctx, query, projectID, memberID, now); err != nil {
		return fmt.Errorf("assign project member: %w", err)
	}
	if err = linkMemberTx(ctx, tx, projectID, memberID, now); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit member assignment: %w", err)
	}
	return nil
}

// UnassignMember removes memberID from the project on both sides.
func (r *ProjectRepository) UnassignMember(ctx context.Context, projectID, memberID string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin member unassignment: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	const query = `UPDATE projects SET assigned_members = array_remove(assigned_members, $2), version = version + 1, updated_at = $3
        WHERE id = $1 AND $2 = ANY(assigned_members)`
	result, err := tx.ExecContext(ctx, query, projectID, memberID, now)
	if err != nil {
		return fmt.Errorf("unassign project member: %w", err)
	}
	if err = expectAffected(result, "project unassign"); err != nil {
		return err
	}
	const memberQuery = `UPDATE members SET assigned_projects = array_remove(assigned_projects, $2), updated_at = $3 WHERE id = $1`
	if _, err = tx.ExecContext(ctx, memberQuery, memberID, projectID, now); err != nil {
		return fmt.Errorf("unlink member project: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit member unassignment: %w", err)
	}
	return nil
}

// CountByStatus counts projects in the given status.
func (r *ProjectRepository) CountByStatus(ctx context.Context, status models.ProjectStatus) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM projects WHERE status = $1`, status); err != nil {
		return 0, fmt.Errorf("count projects: %w", err)
	}
	return total, nil
}

func linkMemberTx(ctx context.Context, tx *sqlx.Tx, projectID, memberID string, at time.Time) error {
	const query = `UPDATE members SET assigned_projects = array_append(assigned_projects, $2), updated_at = $3
        WHERE id = $1 AND NOT ($2 = ANY(assigned_projects))`
	if _, err := tx.ExecContext(ctx, query, memberID, projectID, at); err != nil {
		return fmt.Errorf("link member project: %w", err)
	}
	return nil
}
