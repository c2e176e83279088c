package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/moffermann/school-attendance-sub001/internal/models"
	appErrors "github.com/moffermann/school-attendance-sub001/pkg/errors"
)

type attendanceRepository interface {
	Create(ctx context.Context, event *models.AttendanceEvent) error
	HasEventInRange(ctx context.Context, studentID string, direction models.AttendanceDirection, from, to time.Time) (bool, error)
}

type attendanceStudentRepository interface {
	ExistsActive(ctx context.Context, id string) (bool, error)
}

// AttendanceService records kiosk IN/OUT scans. Events are append-only.
type AttendanceService struct {
	repo      attendanceRepository
	students  attendanceStudentRepository
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewAttendanceService constructs the attendance service.
func NewAttendanceService(repo attendanceRepository, students attendanceStudentRepository, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceService{
		repo:      repo,
		students:  students,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ScanRequest is one kiosk scan.
type ScanRequest struct {
	StudentID string                     `json:"student_id" validate:"required"`
	Direction models.AttendanceDirection `json:"direction" validate:"required"`
	DeviceID  *string                    `json:"device_id"`
}

// RecordScan stores a scan event for an active student.
func (s *AttendanceService) RecordScan(ctx context.Context, req ScanRequest) (*models.AttendanceEvent, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid scan payload")
	}
	if !req.Direction.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "direction must be IN or OUT")
	}

	active, err := s.students.ExistsActive(ctx, req.StudentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check student")
	}
	if !active {
		return nil, appErrors.ErrStudentNotEligible
	}

	event := &models.AttendanceEvent{
		StudentID:  req.StudentID,
		Direction:  req.Direction,
		RecordedAt: s.now(),
		DeviceID:   req.DeviceID,
	}
	if err := s.repo.Create(ctx, event); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record scan")
	}
	return event, nil
}
