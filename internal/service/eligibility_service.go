package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/moffermann/school-attendance-sub001/internal/models"
	appErrors "github.com/moffermann/school-attendance-sub001/pkg/errors"
	"github.com/moffermann/school-attendance-sub001/pkg/timeutil"
)

type eligibilityStudentRepository interface {
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
}

type eligibilityAttendanceRepository interface {
	HasEventInRange(ctx context.Context, studentID string, direction models.AttendanceDirection, from, to time.Time) (bool, error)
}

type eligibilityWithdrawalRepository interface {
	HasCompletedInRange(ctx context.Context, studentID string, from, to time.Time) (bool, error)
}

type scheduleResolver interface {
	Resolve(ctx context.Context, courseID string, date time.Time) (*models.TimeWindow, error)
}

// EligibilityService decides whether a student may be withdrawn right now.
type EligibilityService struct {
	students    eligibilityStudentRepository
	attendance  eligibilityAttendanceRepository
	withdrawals eligibilityWithdrawalRepository
	schedules   scheduleResolver
	tenantTZ    string
	logger      *zap.Logger
}

// NewEligibilityService constructs the eligibility validator.
func NewEligibilityService(students eligibilityStudentRepository, attendance eligibilityAttendanceRepository, withdrawals eligibilityWithdrawalRepository, schedules scheduleResolver, tenantTZ string, logger *zap.Logger) *EligibilityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EligibilityService{
		students:    students,
		attendance:  attendance,
		withdrawals: withdrawals,
		schedules:   schedules,
		tenantTZ:    tenantTZ,
		logger:      logger,
	}
}

// Validate runs the eligibility checks in order, failing fast with a specific
// reason code. The local day is computed in the device timezone when given,
// falling back to the tenant timezone.
func (s *EligibilityService) Validate(ctx context.Context, studentID string, now time.Time, deviceTZ string) error {
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrStudentNotEligible
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if !student.Active {
		return appErrors.ErrStudentNotEligible
	}

	loc := timeutil.ResolveLocation(deviceTZ, s.tenantTZ)
	dayStart, dayEnd := timeutil.DayRange(now, loc)

	hasEntry, err := s.attendance.HasEventInRange(ctx, studentID, models.AttendanceIn, dayStart, dayEnd)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check attendance")
	}
	if !hasEntry {
		return appErrors.ErrNoEntryToday
	}

	withdrawn, err := s.withdrawals.HasCompletedInRange(ctx, studentID, dayStart, dayEnd)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check withdrawals")
	}
	if withdrawn {
		return appErrors.ErrAlreadyWithdrawn
	}

	hasExit, err := s.attendance.HasEventInRange(ctx, studentID, models.AttendanceOut, dayStart, dayEnd)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check attendance")
	}
	if hasExit {
		return appErrors.ErrAlreadyExited
	}

	if student.CourseID == nil || *student.CourseID == "" {
		return appErrors.ErrNoCourseAssigned
	}

	localDay := timeutil.LocalDate(now, loc)
	window, err := s.schedules.Resolve(ctx, *student.CourseID, localDay)
	if err != nil {
		return err
	}
	if window == nil {
		return appErrors.ErrNoClassToday
	}

	inTime, err := timeutil.AtClock(localDay, window.InTime, loc)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "invalid schedule window")
	}
	outTime, err := timeutil.AtClock(localDay, window.OutTime, loc)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "invalid schedule window")
	}

	// The window is inclusive at both ends.
	if now.Before(inTime) || now.After(outTime) {
		return appErrors.ErrOutsideClassHours
	}

	return nil
}
