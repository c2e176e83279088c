package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/moffermann/school-attendance-sub001/internal/models"
	appErrors "github.com/moffermann/school-attendance-sub001/pkg/errors"
)

// WithdrawalRequestRepository persists advance pickup requests.
type WithdrawalRequestRepository struct {
	db *sqlx.DB
}

// NewWithdrawalRequestRepository constructs a WithdrawalRequestRepository.
func NewWithdrawalRequestRepository(db *sqlx.DB) *WithdrawalRequestRepository {
	return &WithdrawalRequestRepository{db: db}
}

// Create inserts a new request.
func (r *WithdrawalRequestRepository) Create(ctx context.Context, req *models.WithdrawalRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if req.CreatedAt.IsZero() {
		req.CreatedAt = now
	}
	req.UpdatedAt = now
	const query = `INSERT INTO withdrawal_requests (id, student_id, pickup_id, requested_by, scheduled_date, scheduled_time, reason, status,
        reviewed_by, review_notes, reviewed_at, withdrawal_id, created_at, updated_at)
        VALUES (:id, :student_id, :pickup_id, :requested_by, :scheduled_date, :scheduled_time, :reason, :status,
        :reviewed_by, :review_notes, :reviewed_at, :withdrawal_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, req); err != nil {
		return fmt.Errorf("create withdrawal request: %w", err)
	}
	return nil
}

// FindByID fetches a request row.
func (r *WithdrawalRequestRepository) FindByID(ctx context.Context, id string) (*models.WithdrawalRequest, error) {
	var req models.WithdrawalRequest
	if err := r.db.GetContext(ctx, &req, "SELECT * FROM withdrawal_requests WHERE id = $1", id); err != nil {
		return nil, err
	}
	return &req, nil
}

// ExistsActive reports whether a PENDING or APPROVED request already exists
// for the student on the scheduled date.
func (r *WithdrawalRequestRepository) ExistsActive(ctx context.Context, studentID string, scheduledDate time.Time) (bool, error) {
	var exists int
	err := r.db.GetContext(ctx, &exists,
		"SELECT 1 FROM withdrawal_requests WHERE student_id = $1 AND scheduled_date = $2 AND status IN ($3, $4) LIMIT 1",
		studentID, scheduledDate, models.RequestPending, models.RequestApproved)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check active request: %w", err)
	}
	return true, nil
}

// FindApprovedForDate returns the APPROVED request matching student, pickup
// and scheduled date, or nil when none exists.
func (r *WithdrawalRequestRepository) FindApprovedForDate(ctx context.Context, studentID, pickupID string, scheduledDate time.Time) (*models.WithdrawalRequest, error) {
	var req models.WithdrawalRequest
	err := r.db.GetContext(ctx, &req,
		"SELECT * FROM withdrawal_requests WHERE student_id = $1 AND pickup_id = $2 AND scheduled_date = $3 AND status = $4 LIMIT 1",
		studentID, pickupID, scheduledDate, models.RequestApproved)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find approved request: %w", err)
	}
	return &req, nil
}

// UpdateReview records the reviewer's decision on a PENDING request.
func (r *WithdrawalRequestRepository) UpdateReview(ctx context.Context, id string, status models.RequestStatus, reviewedBy string, notes *string, reviewedAt time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE withdrawal_requests SET status = $2, reviewed_by = $3, review_notes = $4, reviewed_at = $5, updated_at = $5
         WHERE id = $1 AND status = $6`,
		id, status, reviewedBy, notes, reviewedAt, models.RequestPending)
	if err != nil {
		return fmt.Errorf("review request: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return appErrors.ErrInvalidTransition
	}
	return nil
}

// UpdateStatus moves a request between states, guarded by the current status.
func (r *WithdrawalRequestRepository) UpdateStatus(ctx context.Context, id string, from []models.RequestStatus, to models.RequestStatus) error {
	placeholders := make([]string, len(from))
	args := []interface{}{id, to, time.Now().UTC()}
	for i, status := range from {
		placeholders[i] = fmt.Sprintf("$%d", len(args)+1)
		args = append(args, status)
	}
	query := fmt.Sprintf("UPDATE withdrawal_requests SET status = $2, updated_at = $3 WHERE id = $1 AND status IN (%s)", strings.Join(placeholders, ", "))
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update request status: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return appErrors.ErrInvalidTransition
	}
	return nil
}

// MarkCompleted links an APPROVED request to the withdrawal that fulfilled it.
func (r *WithdrawalRequestRepository) MarkCompleted(ctx context.Context, id, withdrawalID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE withdrawal_requests SET status = $2, withdrawal_id = $3, updated_at = $4 WHERE id = $1 AND status = $5`,
		id, models.RequestCompleted, withdrawalID, time.Now().UTC(), models.RequestApproved)
	if err != nil {
		return fmt.Errorf("complete request: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return appErrors.ErrInvalidTransition
	}
	return nil
}

// ExpirePending marks PENDING requests scheduled before the cutoff date as
// EXPIRED and returns how many rows were swept.
func (r *WithdrawalRequestRepository) ExpirePending(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE withdrawal_requests SET status = $1, updated_at = $2 WHERE status = $3 AND scheduled_date < $4",
		models.RequestExpired, time.Now().UTC(), models.RequestPending, before)
	if err != nil {
		return 0, fmt.Errorf("expire requests: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return affected, nil
}

// List returns requests matching the provided filters.
func (r *WithdrawalRequestRepository) List(ctx context.Context, filter models.WithdrawalRequestFilter) ([]models.WithdrawalRequest, int, error) {
	args := []interface{}{}
	conditions := []string{"1=1"}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.DateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("scheduled_date >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("scheduled_date <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
	}

	where := strings.Join(conditions, " AND ")

	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT * FROM withdrawal_requests WHERE %s ORDER BY scheduled_date %s LIMIT %d OFFSET %d", where, order, size, offset)
	var requests []models.WithdrawalRequest
	if err := r.db.SelectContext(ctx, &requests, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list requests: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(id) FROM withdrawal_requests WHERE %s", where), args...); err != nil {
		return nil, 0, fmt.Errorf("count requests: %w", err)
	}
	return requests, total, nil
}
