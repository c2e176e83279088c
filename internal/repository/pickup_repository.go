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

// PickupRepository manages authorized pickups and their student links.
type PickupRepository struct {
	db *sqlx.DB
}

// NewPickupRepository constructs a PickupRepository.
func NewPickupRepository(db *sqlx.DB) *PickupRepository {
	return &PickupRepository{db: db}
}

// Create inserts a new authorized pickup. A duplicate QR hash is surfaced as
// a conflict since the hash is unique across all pickups.
func (r *PickupRepository) Create(ctx context.Context, pickup *models.AuthorizedPickup) error {
	if pickup.ID == "" {
		pickup.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if pickup.CreatedAt.IsZero() {
		pickup.CreatedAt = now
	}
	pickup.UpdatedAt = now
	const query = `INSERT INTO authorized_pickups (id, full_name, national_id, relationship, phone, email, qr_code_hash, photo_url, active, created_at, updated_at)
        VALUES (:id, :full_name, :national_id, :relationship, :phone, :email, :qr_code_hash, :photo_url, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, pickup); err != nil {
		if isUniqueViolation(err, "uq_authorized_pickups_qr_code_hash") {
			return appErrors.ErrDuplicateQRSecret
		}
		return fmt.Errorf("create pickup: %w", err)
	}
	return nil
}

// Update modifies an existing pickup.
func (r *PickupRepository) Update(ctx context.Context, pickup *models.AuthorizedPickup) error {
	pickup.UpdatedAt = time.Now().UTC()
	const query = `UPDATE authorized_pickups SET full_name = :full_name, national_id = :national_id, relationship = :relationship, phone = :phone, email = :email, photo_url = :photo_url, active = :active, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, pickup); err != nil {
		return fmt.Errorf("update pickup: %w", err)
	}
	return nil
}

// FindByID fetches a pickup regardless of its active flag.
func (r *PickupRepository) FindByID(ctx context.Context, id string) (*models.AuthorizedPickup, error) {
	var pickup models.AuthorizedPickup
	if err := r.db.GetContext(ctx, &pickup, "SELECT * FROM authorized_pickups WHERE id = $1", id); err != nil {
		return nil, err
	}
	return &pickup, nil
}

// GetActive fetches a pickup only when it is active; returns nil otherwise.
func (r *PickupRepository) GetActive(ctx context.Context, id string) (*models.AuthorizedPickup, error) {
	var pickup models.AuthorizedPickup
	err := r.db.GetContext(ctx, &pickup, "SELECT * FROM authorized_pickups WHERE id = $1 AND active = true", id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get active pickup: %w", err)
	}
	return &pickup, nil
}

// IsAuthorizedForStudent reports whether a link row exists between the pickup
// and the student. The validity window columns are not part of the predicate.
func (r *PickupRepository) IsAuthorizedForStudent(ctx context.Context, pickupID, studentID string) (bool, error) {
	var exists int
	err := r.db.GetContext(ctx, &exists,
		"SELECT 1 FROM student_pickups WHERE pickup_id = $1 AND student_id = $2 LIMIT 1", pickupID, studentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check pickup authorization: %w", err)
	}
	return true, nil
}

// AttachStudent links a pickup to a student with per-pair metadata.
func (r *PickupRepository) AttachStudent(ctx context.Context, link *models.StudentPickup) error {
	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO student_pickups (pickup_id, student_id, priority, valid_from, valid_until, notes, created_at)
        VALUES (:pickup_id, :student_id, :priority, :valid_from, :valid_until, :notes, :created_at)
        ON CONFLICT (pickup_id, student_id) DO UPDATE SET priority = EXCLUDED.priority, valid_from = EXCLUDED.valid_from, valid_until = EXCLUDED.valid_until, notes = EXCLUDED.notes`
	if _, err := r.db.NamedExecContext(ctx, query, link); err != nil {
		return fmt.Errorf("attach student: %w", err)
	}
	return nil
}

// DetachStudent removes the link between a pickup and a student.
func (r *PickupRepository) DetachStudent(ctx context.Context, pickupID, studentID string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM student_pickups WHERE pickup_id = $1 AND student_id = $2", pickupID, studentID); err != nil {
		return fmt.Errorf("detach student: %w", err)
	}
	return nil
}

// ListForStudent returns the pickups linked to a student ordered by priority.
func (r *PickupRepository) ListForStudent(ctx context.Context, studentID string) ([]models.PickupForStudent, error) {
	const query = `SELECT p.id, p.full_name, p.national_id, p.relationship, p.phone, p.email, p.qr_code_hash, p.photo_url, p.active, p.created_at, p.updated_at,
        sp.priority, sp.valid_from, sp.valid_until, sp.notes
        FROM authorized_pickups p
        JOIN student_pickups sp ON sp.pickup_id = p.id
        WHERE sp.student_id = $1
        ORDER BY sp.priority ASC, p.full_name ASC`
	var pickups []models.PickupForStudent
	if err := r.db.SelectContext(ctx, &pickups, query, studentID); err != nil {
		return nil, fmt.Errorf("list pickups for student: %w", err)
	}
	return pickups, nil
}

// List returns pickups matching the provided filters.
func (r *PickupRepository) List(ctx context.Context, filter models.PickupFilter) ([]models.AuthorizedPickup, int, error) {
	base := "FROM authorized_pickups p"
	args := []interface{}{}
	conditions := []string{"1=1"}

	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("p.active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(p.full_name) LIKE $%d OR p.national_id = $%d)", len(args)+1, len(args)+2))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%", filter.Search)
	}

	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT p.* %s ORDER BY p.full_name ASC LIMIT %d OFFSET %d", base, size, offset)
	var pickups []models.AuthorizedPickup
	if err := r.db.SelectContext(ctx, &pickups, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list pickups: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(p.id) %s", base), args...); err != nil {
		return nil, 0, fmt.Errorf("count pickups: %w", err)
	}
	return pickups, total, nil
}

// Deactivate soft-disables a pickup, preserving the audit trail.
func (r *PickupRepository) Deactivate(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "UPDATE authorized_pickups SET active = false, updated_at = $2 WHERE id = $1", id, time.Now().UTC()); err != nil {
		return fmt.Errorf("deactivate pickup: %w", err)
	}
	return nil
}
