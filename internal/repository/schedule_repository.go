package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/moffermann/school-attendance-sub001/internal/models"
)

// ScheduleRepository reads course schedules and date exceptions.
type ScheduleRepository struct {
	db *sqlx.DB
}

// NewScheduleRepository constructs a ScheduleRepository.
func NewScheduleRepository(db *sqlx.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// GetRegularSchedule returns the course's time window for a weekday, or nil
// when no class is configured for that weekday.
func (r *ScheduleRepository) GetRegularSchedule(ctx context.Context, courseID string, weekday int) (*models.CourseSchedule, error) {
	var schedule models.CourseSchedule
	err := r.db.GetContext(ctx, &schedule,
		"SELECT * FROM course_schedules WHERE course_id = $1 AND weekday = $2", courseID, weekday)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get regular schedule: %w", err)
	}
	return &schedule, nil
}

// GetCourseException returns the course-scoped exception for a date, or nil.
func (r *ScheduleRepository) GetCourseException(ctx context.Context, date time.Time, courseID string) (*models.ScheduleException, error) {
	var exc models.ScheduleException
	err := r.db.GetContext(ctx, &exc,
		"SELECT * FROM schedule_exceptions WHERE date = $1 AND course_id = $2", date, courseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get course exception: %w", err)
	}
	return &exc, nil
}

// GetGlobalException returns the school-wide exception for a date, or nil.
func (r *ScheduleRepository) GetGlobalException(ctx context.Context, date time.Time) (*models.ScheduleException, error) {
	var exc models.ScheduleException
	err := r.db.GetContext(ctx, &exc,
		"SELECT * FROM schedule_exceptions WHERE date = $1 AND course_id IS NULL", date)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get global exception: %w", err)
	}
	return &exc, nil
}
