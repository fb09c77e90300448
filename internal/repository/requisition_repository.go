package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/institute-backoffice-api/internal/models"
)

const requisitionColumns = `id, title, description, category, quantity, estimated_cost, priority, status, submitted_by, submitted_date,
       reviewed_by, reviewed_date, review_notes, version, created_at, updated_at`

// RequisitionRepository persists requisitions and their review outcome.
type RequisitionRepository struct {
	db *sqlx.DB
}

// NewRequisitionRepository constructs a RequisitionRepository.
func NewRequisitionRepository(db *sqlx.DB) *RequisitionRepository {
	return &RequisitionRepository{db: db}
}

// List returns requisitions matching the filter, newest first.
func (r *RequisitionRepository) List(ctx context.Context, filter models.RequisitionFilter) ([]models.Requisition, error) {
	args := []interface{}{}
	conditions := []string{"1=1"}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)))
	}
	if filter.SubmittedBy != "" {
		args = append(args, filter.SubmittedBy)
		conditions = append(conditions, fmt.Sprintf("submitted_by = $%d", len(args)))
	}
	query := fmt.Sprintf("SELECT %s FROM requisitions WHERE %s ORDER BY submitted_date DESC", requisitionColumns, strings.Join(conditions, " AND "))

	var requisitions []models.Requisition
	if err := r.db.SelectContext(ctx, &requisitions, query, args...); err != nil {
		return nil, fmt.Errorf("list requisitions: %w", err)
	}
	return requisitions, nil
}

// GetByID fetches a requisition by identifier.
func (r *RequisitionRepository) GetByID(ctx context.Context, id string) (*models.Requisition, error) {
	var requisition models.Requisition
	if err := r.db.GetContext(ctx, &requisition, "SELECT "+requisitionColumns+" FROM requisitions WHERE id = $1", id); err != nil {
		return nil, err
	}
	return &requisition, nil
}

// Create inserts a new requisition in Pending state.
func (r *RequisitionRepository) Create(ctx context.Context, requisition *models.Requisition) error {
	if requisition.ID == "" {
		requisition.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if requisition.SubmittedDate.IsZero() {
		requisition.SubmittedDate = now
	}
	requisition.Status = models.RequisitionPending
	requisition.CreatedAt = now
	requisition.UpdatedAt = now
	requisition.Version = 1
	const query = `INSERT INTO requisitions (id, title, description, category, quantity, estimated_cost, priority, status, submitted_by,
        submitted_date, version, created_at, updated_at)
        VALUES (:id, :title, :description, :category, :quantity, :estimated_cost, :priority, :status, :submitted_by,
        :submitted_date, :version, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, requisition); err != nil {
		return fmt.Errorf("create requisition: %w", err)
	}
	return nil
}

// Update writes request details guarded by version.
func (r *RequisitionRepository) Update(ctx context.Context, requisition *models.Requisition) error {
	requisition.UpdatedAt = time.Now().UTC()
	const query = `UPDATE requisitions SET title = :title, description = :description, category = :category, quantity = :quantity,
        estimated_cost = :estimated_cost, priority = :priority, version = version + 1, updated_at = :updated_at
        WHERE id = :id AND version = :version`
	result, err := r.db.NamedExecContext(ctx, query, requisition)
	if err != nil {
		return fmt.Errorf("update requisition: %w", err)
	}
	if err := expectAffected(result, "requisition update"); err != nil {
		return err
	}
	requisition.Version++
	return nil
}

// Delete removes a requisition.
func (r *RequisitionRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM requisitions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete requisition: %w", err)
	}
	return expectAffected(result, "requisition delete")
}

// RequisitionReviewParams carries a status change and its review stamps.
// From guards against a concurrent reviewer having moved the row.
type RequisitionReviewParams struct {
	ID           string
	From         models.RequisitionStatus
	To           models.RequisitionStatus
	ReviewedBy   *string
	ReviewedDate *time.Time
	ReviewNotes  *string
}

// UpdateStatus applies a review transition. Zero matching rows yields sql.ErrNoRows.
func (r *RequisitionRepository) UpdateStatus(ctx context.Context, params RequisitionReviewParams) error {
	const query = `UPDATE requisitions SET status = :to, reviewed_by = :reviewed_by, reviewed_date = :reviewed_date,
        review_notes = :review_notes, version = version + 1, updated_at = :updated_at
        WHERE id = :id AND status = :from`
	result, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"id":            params.ID,
		"from":          params.From,
		"to":            params.To,
		"reviewed_by":   params.ReviewedBy,
		"reviewed_date": params.ReviewedDate,
		"review_notes":  params.ReviewNotes,
		"updated_at":    time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("update requisition status: %w", err)
	}
	return expectAffected(result, "requisition status")
}

// CountByStatus counts requisitions in the given status.
func (r *RequisitionRepository) CountByStatus(ctx context.Context, status models.RequisitionStatus) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM requisitions WHERE status = $1`, status); err != nil {
		return 0, fmt.Errorf("count requisitions: %w", err)
	}
	return total, nil
}
