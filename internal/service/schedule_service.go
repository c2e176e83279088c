package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/moffermann/school-attendance-sub001/internal/models"
	appErrors "github.com/moffermann/school-attendance-sub001/pkg/errors"
)

type scheduleRepository interface {
	GetRegularSchedule(ctx context.Context, courseID string, weekday int) (*models.CourseSchedule, error)
	GetCourseException(ctx context.Context, date time.Time, courseID string) (*models.ScheduleException, error)
	GetGlobalException(ctx context.Context, date time.Time) (*models.ScheduleException, error)
}

// noClassMarker is cached in place of a window when a date resolves to no class.
const noClassMarker = "none"

// ScheduleService resolves the effective entry/exit window for a course+date.
type ScheduleService struct {
	repo     scheduleRepository
	cache    *redis.Client
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewScheduleService constructs the schedule service. The redis client is
// optional; a nil client disables caching.
func NewScheduleService(repo scheduleRepository, cache *redis.Client, cacheTTL time.Duration, logger *zap.Logger) *ScheduleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScheduleService{repo: repo, cache: cache, cacheTTL: cacheTTL, logger: logger}
}

// Resolve returns the effective time window for the course on the given date,
// or nil when no class is scheduled. Precedence: course-scoped exception,
// then global exception, then the regular weekday schedule. An exception
// without times marks the day as a holiday.
func (s *ScheduleService) Resolve(ctx context.Context, courseID string, date time.Time) (*models.TimeWindow, error) {
	date = normalizeDate(date)

	if window, hit := s.cacheGet(ctx, courseID, date); hit {
		return window, nil
	}

	window, err := s.resolve(ctx, courseID, date)
	if err != nil {
		return nil, err
	}

	s.cacheSet(ctx, courseID, date, window)
	return window, nil
}

func (s *ScheduleService) resolve(ctx context.Context, courseID string, date time.Time) (*models.TimeWindow, error) {
	exc, err := s.repo.GetCourseException(ctx, date, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve schedule")
	}
	if exc != nil {
		return windowFromException(exc), nil
	}

	global, err := s.repo.GetGlobalException(ctx, date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve schedule")
	}
	if global != nil {
		return windowFromException(global), nil
	}

	regular, err := s.repo.GetRegularSchedule(ctx, courseID, int(date.Weekday()))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve schedule")
	}
	if regular == nil {
		return nil, nil
	}
	return &models.TimeWindow{InTime: regular.InTime, OutTime: regular.OutTime}, nil
}

func windowFromException(exc *models.ScheduleException) *models.TimeWindow {
	if exc.InTime == nil || exc.OutTime == nil {
		return nil
	}
	return &models.TimeWindow{InTime: *exc.InTime, OutTime: *exc.OutTime}
}

func (s *ScheduleService) cacheGet(ctx context.Context, courseID string, date time.Time) (*models.TimeWindow, bool) {
	if s.cache == nil {
		return nil, false
	}
	raw, err := s.cache.Get(ctx, scheduleCacheKey(courseID, date)).Result()
	if err != nil {
		if err != redis.Nil {
			s.logger.Debug("schedule cache read failed", zap.Error(err))
		}
		return nil, false
	}
	if raw == noClassMarker {
		return nil, true
	}
	var window models.TimeWindow
	if err := json.Unmarshal([]byte(raw), &window); err != nil {
		return nil, false
	}
	return &window, true
}

func (s *ScheduleService) cacheSet(ctx context.Context, courseID string, date time.Time, window *models.TimeWindow) {
	if s.cache == nil {
		return
	}
	value := noClassMarker
	if window != nil {
		encoded, err := json.Marshal(window)
		if err != nil {
			return
		}
		value = string(encoded)
	}
	if err := s.cache.Set(ctx, scheduleCacheKey(courseID, date), value, s.cacheTTL).Err(); err != nil {
		s.logger.Debug("schedule cache write failed", zap.Error(err))
	}
}

func scheduleCacheKey(courseID string, date time.Time) string {
	return fmt.Sprintf("schedule:%s:%s", courseID, date.Format("2006-01-02"))
}

// normalizeDate truncates an instant to its date in UTC for use as a lookup key.
func normalizeDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
