package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/moffermann/school-attendance-sub001/internal/models"
	appErrors "github.com/moffermann/school-attendance-sub001/pkg/errors"
)

type mockStudentReader struct {
	students map[string]*models.StudentDetail
}

func (m *mockStudentReader) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	if s, ok := m.students[id]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

type mockAttendanceReader struct {
	entries map[string]bool
	exits   map[string]bool
}

func (m *mockAttendanceReader) HasEventInRange(ctx context.Context, studentID string, direction models.AttendanceDirection, from, to time.Time) (bool, error) {
	if direction == models.AttendanceIn {
		return m.entries[studentID], nil
	}
	return m.exits[studentID], nil
}

type mockWithdrawalReader struct {
	completed map[string]bool
}

func (m *mockWithdrawalReader) HasCompletedInRange(ctx context.Context, studentID string, from, to time.Time) (bool, error) {
	return m.completed[studentID], nil
}

type stubResolver struct {
	window *models.TimeWindow
	err    error
}

func (s *stubResolver) Resolve(ctx context.Context, courseID string, date time.Time) (*models.TimeWindow, error) {
	return s.window, s.err
}

func eligibilityFixture(window *models.TimeWindow) (*EligibilityService, *mockAttendanceReader, *mockWithdrawalReader) {
	course := "c1"
	students := &mockStudentReader{students: map[string]*models.StudentDetail{
		"s1": {Student: models.Student{ID: "s1", FullName: "Ana Rojas", CourseID: &course, Active: true}},
		"s2": {Student: models.Student{ID: "s2", FullName: "Pedro Soto", Active: true}},
	}}
	attendance := &mockAttendanceReader{entries: map[string]bool{"s1": true, "s2": true}, exits: map[string]bool{}}
	withdrawals := &mockWithdrawalReader{completed: map[string]bool{}}
	svc := NewEligibilityService(students, attendance, withdrawals, &stubResolver{window: window}, "America/Santiago", zap.NewNop())
	return svc, attendance, withdrawals
}

// schoolDay is a Monday at 15:00 in Santiago (UTC-3 during March).
var schoolDay = time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)

func TestEligibilityHappyPath(t *testing.T) {
	svc, _, _ := eligibilityFixture(&models.TimeWindow{InTime: "08:00", OutTime: "16:00"})

	err := svc.Validate(context.Background(), "s1", schoolDay, "")
	require.NoError(t, err)
}

func TestEligibilityUnknownStudent(t *testing.T) {
	svc, _, _ := eligibilityFixture(&models.TimeWindow{InTime: "08:00", OutTime: "16:00"})

	err := svc.Validate(context.Background(), "ghost", schoolDay, "")
	assert.True(t, appErrors.Is(err, appErrors.ErrStudentNotEligible))
}

func TestEligibilityInactiveStudent(t *testing.T) {
	svc, _, _ := eligibilityFixture(&models.TimeWindow{InTime: "08:00", OutTime: "16:00"})
	course := "c1"
	svc.students.(*mockStudentReader).students["s3"] = &models.StudentDetail{
		Student: models.Student{ID: "s3", CourseID: &course, Active: false},
	}

	err := svc.Validate(context.Background(), "s3", schoolDay, "")
	assert.True(t, appErrors.Is(err, appErrors.ErrStudentNotEligible))
}

func TestEligibilityNoEntryToday(t *testing.T) {
	svc, attendance, _ := eligibilityFixture(&models.TimeWindow{InTime: "08:00", OutTime: "16:00"})
	attendance.entries["s1"] = false

	err := svc.Validate(context.Background(), "s1", schoolDay, "")
	assert.True(t, appErrors.Is(err, appErrors.ErrNoEntryToday))
}

func TestEligibilityAlreadyWithdrawn(t *testing.T) {
	svc, _, withdrawals := eligibilityFixture(&models.TimeWindow{InTime: "08:00", OutTime: "16:00"})
	withdrawals.completed["s1"] = true

	err := svc.Validate(context.Background(), "s1", schoolDay, "")
	assert.True(t, appErrors.Is(err, appErrors.ErrAlreadyWithdrawn))
}

func TestEligibilityAlreadyExited(t *testing.T) {
	svc, attendance, _ := eligibilityFixture(&models.TimeWindow{InTime: "08:00", OutTime: "16:00"})
	attendance.exits["s1"] = true

	err := svc.Validate(context.Background(), "s1", schoolDay, "")
	assert.True(t, appErrors.Is(err, appErrors.ErrAlreadyExited))
}

func TestEligibilityNoCourseAssigned(t *testing.T) {
	svc, _, _ := eligibilityFixture(&models.TimeWindow{InTime: "08:00", OutTime: "16:00"})

	err := svc.Validate(context.Background(), "s2", schoolDay, "")
	assert.True(t, appErrors.Is(err, appErrors.ErrNoCourseAssigned))
}

func TestEligibilityNoClassToday(t *testing.T) {
	svc, _, _ := eligibilityFixture(nil)

	err := svc.Validate(context.Background(), "s1", schoolDay, "")
	assert.True(t, appErrors.Is(err, appErrors.ErrNoClassToday))
}

func TestEligibilityOutsideClassHours(t *testing.T) {
	svc, _, _ := eligibilityFixture(&models.TimeWindow{InTime: "08:00", OutTime: "14:00"})

	// 15:00 local is one hour past a 14:00 dismissal.
	err := svc.Validate(context.Background(), "s1", schoolDay, "")
	assert.True(t, appErrors.Is(err, appErrors.ErrOutsideClassHours))
}

func TestEligibilityWindowInclusiveAtDismissal(t *testing.T) {
	svc, _, _ := eligibilityFixture(&models.TimeWindow{InTime: "08:00", OutTime: "15:00"})

	// Exactly at the dismissal minute is still inside the window.
	err := svc.Validate(context.Background(), "s1", schoolDay, "")
	require.NoError(t, err)
}

func TestEligibilityDeviceTimezoneOverridesTenant(t *testing.T) {
	svc, _, _ := eligibilityFixture(&models.TimeWindow{InTime: "08:00", OutTime: "16:00"})

	// In UTC the instant is 18:00, outside the window; the device timezone
	// must pull it back to 15:00 local.
	err := svc.Validate(context.Background(), "s1", schoolDay, "America/Santiago")
	require.NoError(t, err)
}
