package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/moffermann/school-attendance-sub001/internal/models"
)

type mockScheduleRepo struct {
	regular          map[string]*models.CourseSchedule
	courseExceptions map[string]*models.ScheduleException
	globalExceptions map[string]*models.ScheduleException
}

func scheduleKey(courseID string, weekday int) string {
	return courseID + string(rune('0'+weekday))
}

func (m *mockScheduleRepo) GetRegularSchedule(ctx context.Context, courseID string, weekday int) (*models.CourseSchedule, error) {
	return m.regular[scheduleKey(courseID, weekday)], nil
}

func (m *mockScheduleRepo) GetCourseException(ctx context.Context, date time.Time, courseID string) (*models.ScheduleException, error) {
	return m.courseExceptions[courseID+date.Format("2006-01-02")], nil
}

func (m *mockScheduleRepo) GetGlobalException(ctx context.Context, date time.Time) (*models.ScheduleException, error) {
	return m.globalExceptions[date.Format("2006-01-02")], nil
}

func strPtr(s string) *string { return &s }

func TestScheduleServiceRegularWeekday(t *testing.T) {
	// 2026-03-02 is a Monday.
	monday := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	repo := &mockScheduleRepo{regular: map[string]*models.CourseSchedule{
		scheduleKey("c1", 1): {CourseID: "c1", Weekday: 1, InTime: "08:00", OutTime: "16:00"},
	}}
	svc := NewScheduleService(repo, nil, 0, zap.NewNop())

	window, err := svc.Resolve(context.Background(), "c1", monday)
	require.NoError(t, err)
	require.NotNil(t, window)
	assert.Equal(t, "08:00", window.InTime)
	assert.Equal(t, "16:00", window.OutTime)
}

func TestScheduleServiceNoClassWeekday(t *testing.T) {
	sunday := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	repo := &mockScheduleRepo{}
	svc := NewScheduleService(repo, nil, 0, zap.NewNop())

	window, err := svc.Resolve(context.Background(), "c1", sunday)
	require.NoError(t, err)
	assert.Nil(t, window)
}

func TestScheduleServiceCourseExceptionWins(t *testing.T) {
	monday := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	repo := &mockScheduleRepo{
		regular: map[string]*models.CourseSchedule{
			scheduleKey("c1", 1): {CourseID: "c1", Weekday: 1, InTime: "08:00", OutTime: "16:00"},
		},
		globalExceptions: map[string]*models.ScheduleException{
			"2026-03-02": {Date: monday, InTime: strPtr("09:00"), OutTime: strPtr("12:00")},
		},
		courseExceptions: map[string]*models.ScheduleException{
			"c12026-03-02": {Date: monday, CourseID: strPtr("c1"), InTime: strPtr("10:00"), OutTime: strPtr("13:00")},
		},
	}
	svc := NewScheduleService(repo, nil, 0, zap.NewNop())

	window, err := svc.Resolve(context.Background(), "c1", monday)
	require.NoError(t, err)
	require.NotNil(t, window)
	assert.Equal(t, "10:00", window.InTime)
	assert.Equal(t, "13:00", window.OutTime)
}

func TestScheduleServiceGlobalExceptionOverridesRegular(t *testing.T) {
	monday := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	repo := &mockScheduleRepo{
		regular: map[string]*models.CourseSchedule{
			scheduleKey("c1", 1): {CourseID: "c1", Weekday: 1, InTime: "08:00", OutTime: "16:00"},
		},
		globalExceptions: map[string]*models.ScheduleException{
			"2026-03-02": {Date: monday, InTime: strPtr("09:00"), OutTime: strPtr("12:00")},
		},
	}
	svc := NewScheduleService(repo, nil, 0, zap.NewNop())

	window, err := svc.Resolve(context.Background(), "c1", monday)
	require.NoError(t, err)
	require.NotNil(t, window)
	assert.Equal(t, "09:00", window.InTime)
}

func TestScheduleServiceHolidayException(t *testing.T) {
	monday := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	repo := &mockScheduleRepo{
		regular: map[string]*models.CourseSchedule{
			scheduleKey("c1", 1): {CourseID: "c1", Weekday: 1, InTime: "08:00", OutTime: "16:00"},
		},
		globalExceptions: map[string]*models.ScheduleException{
			"2026-03-02": {Date: monday, Label: strPtr("public holiday")},
		},
	}
	svc := NewScheduleService(repo, nil, 0, zap.NewNop())

	window, err := svc.Resolve(context.Background(), "c1", monday)
	require.NoError(t, err)
	assert.Nil(t, window)
}
