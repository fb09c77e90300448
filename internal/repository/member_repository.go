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

const memberColumns = `id, name, email, password_hash, phone, image_url, status, assigned_projects, version, created_at, updated_at`

// MemberRepository persists staff accounts.
type MemberRepository struct {
	db *sqlx.DB
}

// NewMemberRepository constructs a MemberRepository.
func NewMemberRepository(db *sqlx.DB) *MemberRepository {
	return &MemberRepository{db: db}
}

// List returns members matching the filter, newest first.
func (r *MemberRepository) List(ctx context.Context, filter models.MemberFilter) ([]models.Member, error) {
	args := []interface{}{}
	conditions := []string{"1=1"}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		conditions = append(conditions, fmt.Sprintf("(LOWER(name) LIKE $%d OR LOWER(email) LIKE $%d)", len(args), len(args)))
	}
	query := fmt.Sprintf("SELECT %s FROM members WHERE %s ORDER BY created_at DESC", memberColumns, strings.Join(conditions, " AND "))

	var members []models.Member
	if err := r.db.SelectContext(ctx, &members, query, args...); err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return members, nil
}

// GetByID fetches a member by identifier.
func (r *MemberRepository) GetByID(ctx context.Context, id string) (*models.Member, error) {
	var member models.Member
	if err := r.db.GetContext(ctx, &member, "SELECT "+memberColumns+" FROM members WHERE id = $1", id); err != nil {
		return nil, err
	}
	return &member, nil
}

// GetByEmail fetches a member by login email.
func (r *MemberRepository) GetByEmail(ctx context.Context, email string) (*models.Member, error) {
	var member models.Member
	if err := r.db.GetContext(ctx, &member, "SELECT "+memberColumns+" FROM members WHERE LOWER(email) = LOWER($1)", email); err != nil {
		return nil, err
	}
	return &member, nil
}

// Create inserts a member. A reused email yields ErrDuplicate.
func (r *MemberRepository) Create(ctx context.Context, member *models.Member) error {
	if member.ID == "" {
		member.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	member.CreatedAt = now
	member.UpdatedAt = now
	member.Version = 1
	if member.AssignedProjects == nil {
		member.AssignedProjects = pq.StringArray{}
	}
	const query = `INSERT INTO members (id, name, email, password_hash, phone, image_url, status, assigned_projects, version, created_at, updated_at)
        VALUES (:id, :name, :email, :password_hash, :phone, :image_url, :status, :assigned_projects, :version, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, member); err != nil {
		if database.IsUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create member: %w", err)
	}
	return nil
}

// Update writes profile fields guarded by version. Assignments are managed by
// ProjectRepository and left untouched.
func (r *MemberRepository) Update(ctx context.Context, member *models.Member) error {
	member.UpdatedAt = time.Now().UTC()
	const query = `UPDATE members SET name = :name, email = :email, password_hash = :password_hash, phone = :phone, image_url = :image_url,
        status = :status, version = version + 1, updated_at = :updated_at WHERE id = :id AND version = :version`
	result, err := r.db.NamedExecContext(ctx, query, member)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("update member: %w", err)
	}
	if err := expectAffected(result, "member update"); err != nil {
		return err
	}
	member.Version++
	return nil
}

// Delete removes a member and strips it from every project assignment list.
func (r *MemberRepository) Delete(ctx context.Context, id string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin member delete: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const unlink = `UPDATE projects SET assigned_members = array_remove(assigned_members, $1), updated_at = $2
        WHERE $1 = ANY(assigned_members)`
	if _, err = tx.ExecContext(ctx, unlink, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("unlink member projects: %w", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM members WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete member: %w", err)
	}
	if err = expectAffected(result, "member delete"); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit member delete: %w", err)
	}
	return nil
}

// CountByStatus counts members in the given status.
func (r *MemberRepository) CountByStatus(ctx context.Context, status models.MemberStatus) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM members WHERE status = $1`, status); err != nil {
		return 0, fmt.Errorf("count members: %w", err)
	}
	return total, nil
}
