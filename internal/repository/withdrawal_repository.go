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

// completedPerDayConstraint is the partial unique index over
// (student_id, local_date(initiated_at)) filtered to COMPLETED rows. It is
// the final arbiter against double-completion under concurrent callers.
const completedPerDayConstraint = "uq_student_withdrawals_completed_per_day"

const withdrawalDetailColumns = `w.id, w.student_id, w.pickup_id, w.status, w.method, w.verified_by, w.photo_path, w.signature_path, w.reason,
        w.cancelled_by, w.cancel_reason, w.cancelled_at, w.device_id, w.ip_address, w.user_agent, w.initiated_at, w.verified_at, w.completed_at,
        s.full_name AS student_name, s.national_id AS student_national_id, c.name AS course_name,
        p.full_name AS pickup_name, p.national_id AS pickup_national_id, p.relationship AS pickup_relationship`

const withdrawalDetailJoins = `FROM student_withdrawals w
        JOIN students s ON s.id = w.student_id
        LEFT JOIN courses c ON c.id = s.course_id
        LEFT JOIN authorized_pickups p ON p.id = w.pickup_id`

// WithdrawalRepository persists student withdrawal records.
type WithdrawalRepository struct {
	db *sqlx.DB
}

// NewWithdrawalRepository constructs a WithdrawalRepository.
func NewWithdrawalRepository(db *sqlx.DB) *WithdrawalRepository {
	return &WithdrawalRepository{db: db}
}

// Create inserts a withdrawal in its initial state.
func (r *WithdrawalRepository) Create(ctx context.Context, w *models.StudentWithdrawal) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if w.InitiatedAt.IsZero() {
		w.InitiatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO student_withdrawals (id, student_id, pickup_id, status, method, verified_by, photo_path, signature_path, reason,
        cancelled_by, cancel_reason, cancelled_at, device_id, ip_address, user_agent, initiated_at, verified_at, completed_at)
        VALUES (:id, :student_id, :pickup_id, :status, :method, :verified_by, :photo_path, :signature_path, :reason,
        :cancelled_by, :cancel_reason, :cancelled_at, :device_id, :ip_address, :user_agent, :initiated_at, :verified_at, :completed_at)`
	if _, err := r.db.NamedExecContext(ctx, query, w); err != nil {
		if isUniqueViolation(err, completedPerDayConstraint) {
			return appErrors.ErrWithdrawalConflict
		}
		return fmt.Errorf("create withdrawal: %w", err)
	}
	return nil
}

// FindByID fetches a withdrawal row.
func (r *WithdrawalRepository) FindByID(ctx context.Context, id string) (*models.StudentWithdrawal, error) {
	var w models.StudentWithdrawal
	if err := r.db.GetContext(ctx, &w, "SELECT * FROM student_withdrawals WHERE id = $1", id); err != nil {
		return nil, err
	}
	return &w, nil
}

// FindDetailByID fetches a withdrawal joined with student and pickup names.
func (r *WithdrawalRepository) FindDetailByID(ctx context.Context, id string) (*models.WithdrawalDetail, error) {
	query := fmt.Sprintf("SELECT %s %s WHERE w.id = $1", withdrawalDetailColumns, withdrawalDetailJoins)
	var detail models.WithdrawalDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// FindActiveByStudent returns the student's non-terminal withdrawal, or nil.
// Initiation reuses this row so kiosk retries never create duplicates.
func (r *WithdrawalRepository) FindActiveByStudent(ctx context.Context, studentID string) (*models.StudentWithdrawal, error) {
	var w models.StudentWithdrawal
	err := r.db.GetContext(ctx, &w,
		"SELECT * FROM student_withdrawals WHERE student_id = $1 AND status IN ($2, $3) ORDER BY initiated_at DESC LIMIT 1",
		studentID, models.WithdrawalInitiated, models.WithdrawalVerified)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find active withdrawal: %w", err)
	}
	return &w, nil
}

// HasCompletedInRange reports whether the student has a completed withdrawal
// initiated inside [from, to).
func (r *WithdrawalRepository) HasCompletedInRange(ctx context.Context, studentID string, from, to time.Time) (bool, error) {
	var exists int
	err := r.db.GetContext(ctx, &exists,
		"SELECT 1 FROM student_withdrawals WHERE student_id = $1 AND status = $2 AND initiated_at >= $3 AND initiated_at < $4 LIMIT 1",
		studentID, models.WithdrawalCompleted, from, to)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check completed withdrawal: %w", err)
	}
	return true, nil
}

// MarkVerified transitions an INITIATED withdrawal to VERIFIED.
func (r *WithdrawalRepository) MarkVerified(ctx context.Context, id string, method models.VerificationMethod, verifiedBy, photoPath *string, verifiedAt time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE student_withdrawals SET status = $2, method = $3, verified_by = $4, photo_path = $5, verified_at = $6
         WHERE id = $1 AND status = $7`,
		id, models.WithdrawalVerified, method, verifiedBy, photoPath, verifiedAt, models.WithdrawalInitiated)
	if err != nil {
		return fmt.Errorf("verify withdrawal: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return appErrors.ErrInvalidTransition
	}
	return nil
}

// Complete transitions a VERIFIED withdrawal to COMPLETED. The completed-per-
// day unique index fires here; a violation is surfaced as a conflict and the
// transaction is rolled back so subsequent operations see a clean session.
func (r *WithdrawalRepository) Complete(ctx context.Context, id string, signaturePath, reason *string, completedAt time.Time) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin complete tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx,
		`UPDATE student_withdrawals SET status = $2, signature_path = $3, reason = COALESCE($4, reason), completed_at = $5
         WHERE id = $1 AND status = $6`,
		id, models.WithdrawalCompleted, signaturePath, reason, completedAt, models.WithdrawalVerified)
	if err != nil {
		if isUniqueViolation(err, completedPerDayConstraint) {
			return appErrors.ErrWithdrawalConflict
		}
		return fmt.Errorf("complete withdrawal: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return appErrors.ErrInvalidTransition
	}
	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err, completedPerDayConstraint) {
			return appErrors.ErrWithdrawalConflict
		}
		return fmt.Errorf("commit complete tx: %w", err)
	}
	return nil
}

// CreateCompleted inserts a fully completed withdrawal in one statement. Used
// by admin override so initiate/verify/complete land atomically.
func (r *WithdrawalRepository) CreateCompleted(ctx context.Context, w *models.StudentWithdrawal) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	const query = `INSERT INTO student_withdrawals (id, student_id, pickup_id, status, method, verified_by, photo_path, signature_path, reason,
        cancelled_by, cancel_reason, cancelled_at, device_id, ip_address, user_agent, initiated_at, verified_at, completed_at)
        VALUES (:id, :student_id, :pickup_id, :status, :method, :verified_by, :photo_path, :signature_path, :reason,
        :cancelled_by, :cancel_reason, :cancelled_at, :device_id, :ip_address, :user_agent, :initiated_at, :verified_at, :completed_at)`
	if _, err := r.db.NamedExecContext(ctx, query, w); err != nil {
		if isUniqueViolation(err, completedPerDayConstraint) {
			return appErrors.ErrWithdrawalConflict
		}
		return fmt.Errorf("create completed withdrawal: %w", err)
	}
	return nil
}

// Cancel transitions an INITIATED or VERIFIED withdrawal to CANCELLED.
func (r *WithdrawalRepository) Cancel(ctx context.Context, id, cancelledBy, cancelReason string, cancelledAt time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE student_withdrawals SET status = $2, cancelled_by = $3, cancel_reason = $4, cancelled_at = $5
         WHERE id = $1 AND status IN ($6, $7)`,
		id, models.WithdrawalCancelled, cancelledBy, cancelReason, cancelledAt, models.WithdrawalInitiated, models.WithdrawalVerified)
	if err != nil {
		return fmt.Errorf("cancel withdrawal: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return appErrors.ErrInvalidTransition
	}
	return nil
}

// List returns withdrawals matching the provided filters.
func (r *WithdrawalRepository) List(ctx context.Context, filter models.WithdrawalFilter) ([]models.WithdrawalDetail, int, error) {
	args := []interface{}{}
	conditions := []string{"1=1"}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("w.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("w.status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.DateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("w.initiated_at >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("w.initiated_at < $%d", len(args)+1))
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

	query := fmt.Sprintf("SELECT %s %s WHERE %s ORDER BY w.initiated_at %s LIMIT %d OFFSET %d",
		withdrawalDetailColumns, withdrawalDetailJoins, where, order, size, offset)

	var withdrawals []models.WithdrawalDetail
	if err := r.db.SelectContext(ctx, &withdrawals, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list withdrawals: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(w.id) %s WHERE %s", withdrawalDetailJoins, where)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count withdrawals: %w", err)
	}
	return withdrawals, total, nil
}
