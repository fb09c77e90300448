package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/institute-backoffice-api/internal/models"
)

const deletionRequestColumns = `id, student_id, student_name, student_email, requested_by, requested_by_email, reason, request_date,
       status, admin_response, admin_email, response_date, created_at, updated_at`

// DeletionRequestRepository persists student deletion requests.
type DeletionRequestRepository struct {
	db *sqlx.DB
}

// NewDeletionRequestRepository constructs a DeletionRequestRepository.
func NewDeletionRequestRepository(db *sqlx.DB) *DeletionRequestRepository {
	return &DeletionRequestRepository{db: db}
}

// List returns deletion requests matching the filter, newest first.
func (r *DeletionRequestRepository) List(ctx context.Context, filter models.DeletionRequestFilter) ([]models.DeletionRequest, error) {
	args := []interface{}{}
	conditions := []string{"1=1"}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.RequestedByEmail != "" {
		args = append(args, filter.RequestedByEmail)
		conditions = append(conditions, fmt.Sprintf("requested_by_email = $%d", len(args)))
	}
	query := fmt.Sprintf("SELECT %s FROM deletion_requests WHERE %s ORDER BY request_date DESC", deletionRequestColumns, strings.Join(conditions, " AND "))

	var requests []models.DeletionRequest
	if err := r.db.SelectContext(ctx, &requests, query, args...); err != nil {
		return nil, fmt.Errorf("list deletion requests: %w", err)
	}
	return requests, nil
}

// GetByID fetches a deletion request by identifier.
func (r *DeletionRequestRepository) GetByID(ctx context.Context, id string) (*models.DeletionRequest, error) {
	var request models.DeletionRequest
	if err := r.db.GetContext(ctx, &request, "SELECT "+deletionRequestColumns+" FROM deletion_requests WHERE id = $1", id); err != nil {
		return nil, err
	}
	return &request, nil
}

// Create inserts a Pending deletion request.
func (r *DeletionRequestRepository) Create(ctx context.Context, request *models.DeletionRequest) error {
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if request.RequestDate.IsZero() {
		request.RequestDate = now
	}
	request.Status = models.DeletionPending
	request.CreatedAt = now
	request.UpdatedAt = now
	const query = `INSERT INTO deletion_requests (id, student_id, student_name, student_email, requested_by, requested_by_email, reason,
        request_date, status, created_at, updated_at)
        VALUES (:id, :student_id, :student_name, :student_email, :requested_by, :requested_by_email, :reason,
        :request_date, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, request); err != nil {
		return fmt.Errorf("create deletion request: %w", err)
	}
	return nil
}

// DeletionDecision carries the reviewer stamps for a decision.
type DeletionDecision struct {
	ID           string
	AdminEmail   string
	Response     *string
	ResponseDate time.Time
}

const decideDeletionQuery = `UPDATE deletion_requests SET status = $2, admin_response = $3, admin_email = $4, response_date = $5, updated_at = $5
        WHERE id = $1 AND status = 'Pending'`

// Approve marks the request Approved and deletes the student in one
// transaction. A request that is no longer Pending yields sql.ErrNoRows and a
// missing student yields ErrStudentMissing. Either way nothing is written.
func (r *DeletionRequestRepository) Approve(ctx context.Context, studentID string, decision DeletionDecision) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin deletion approval: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	result, err := tx.ExecContext(ctx, decideDeletionQuery, decision.ID, models.DeletionApproved, decision.Response, decision.AdminEmail, decision.ResponseDate)
	if err != nil {
		return fmt.Errorf("approve deletion request: %w", err)
	}
	if err = expectAffected(result, "deletion approval"); err != nil {
		return err
	}

	if err = deleteStudentTx(ctx, tx, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = ErrStudentMissing
		}
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit deletion approval: %w", err)
	}
	return nil
}

// Reject marks the request Rejected. A request that is no longer Pending yields sql.ErrNoRows.
func (r *DeletionRequestRepository) Reject(ctx context.Context, decision DeletionDecision) error {
	result, err := r.db.ExecContext(ctx, decideDeletionQuery, decision.ID, models.DeletionRejected, decision.Response, decision.AdminEmail, decision.ResponseDate)
	if err != nil {
		return fmt.Errorf("reject deletion request: %w", err)
	}
	return expectAffected(result, "deletion rejection")
}

// CountByStatus counts deletion requests in the given status.
func (r *DeletionRequestRepository) CountByStatus(ctx context.Context, status models.DeletionRequestStatus) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM deletion_requests WHERE status = $1`, status); err != nil {
		return 0, fmt.Errorf("count deletion requests: %w", err)
	}
	return total, nil
}
