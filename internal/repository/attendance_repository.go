package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/moffermann/school-attendance-sub001/internal/models"
)

// AttendanceRepository stores and queries immutable IN/OUT scan events.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs an AttendanceRepository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// Create inserts a new attendance event.
func (r *AttendanceRepository) Create(ctx context.Context, event *models.AttendanceEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO attendance_events (id, student_id, direction, recorded_at, device_id, created_at)
        VALUES (:id, :student_id, :direction, :recorded_at, :device_id, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, event); err != nil {
		return fmt.Errorf("create attendance event: %w", err)
	}
	return nil
}

// HasEventInRange reports whether the student has a scan with the given
// direction inside [from, to).
func (r *AttendanceRepository) HasEventInRange(ctx context.Context, studentID string, direction models.AttendanceDirection, from, to time.Time) (bool, error) {
	var exists int
	err := r.db.GetContext(ctx, &exists,
		"SELECT 1 FROM attendance_events WHERE student_id = $1 AND direction = $2 AND recorded_at >= $3 AND recorded_at < $4 LIMIT 1",
		studentID, direction, from, to)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check attendance event: %w", err)
	}
	return true, nil
}
