package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/moffermann/school-attendance-sub001/internal/models"
	appErrors "github.com/moffermann/school-attendance-sub001/pkg/errors"
	"github.com/moffermann/school-attendance-sub001/pkg/timeutil"
)

type withdrawalRequestRepository interface {
	Create(ctx context.Context, req *models.WithdrawalRequest) error
	FindByID(ctx context.Context, id string) (*models.WithdrawalRequest, error)
	ExistsActive(ctx context.Context, studentID string, scheduledDate time.Time) (bool, error)
	FindApprovedForDate(ctx context.Context, studentID, pickupID string, scheduledDate time.Time) (*models.WithdrawalRequest, error)
	UpdateReview(ctx context.Context, id string, status models.RequestStatus, reviewedBy string, notes *string, reviewedAt time.Time) error
	UpdateStatus(ctx context.Context, id string, from []models.RequestStatus, to models.RequestStatus) error
	MarkCompleted(ctx context.Context, id, withdrawalID string) error
	ExpirePending(ctx context.Context, before time.Time) (int64, error)
	List(ctx context.Context, filter models.WithdrawalRequestFilter) ([]models.WithdrawalRequest, int, error)
}

// WithdrawalRequestService manages advance pickup requests:
// PENDING -> APPROVED/REJECTED/CANCELLED/EXPIRED, APPROVED -> COMPLETED
// when a matching withdrawal closes, or CANCELLED.
type WithdrawalRequestService struct {
	repo      withdrawalRequestRepository
	tenantTZ  string
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewWithdrawalRequestService constructs the request service.
func NewWithdrawalRequestService(repo withdrawalRequestRepository, tenantTZ string, validate *validator.Validate, logger *zap.Logger) *WithdrawalRequestService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WithdrawalRequestService{
		repo:      repo,
		tenantTZ:  tenantTZ,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateRequestRequest is a guardian's advance pickup request.
type CreateRequestRequest struct {
	StudentID     string  `json:"student_id" validate:"required"`
	PickupID      string  `json:"pickup_id" validate:"required"`
	RequestedBy   string  `json:"requested_by" validate:"required"`
	ScheduledDate string  `json:"scheduled_date" validate:"required,datetime=2006-01-02"`
	ScheduledTime *string `json:"scheduled_time" validate:"omitempty,datetime=15:04"`
	Reason        *string `json:"reason"`
}

// Create registers a PENDING request. At most one active (PENDING or
// APPROVED) request may exist per student per scheduled date.
func (s *WithdrawalRequestService) Create(ctx context.Context, req CreateRequestRequest) (*models.WithdrawalRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request payload")
	}

	scheduledDate, err := time.ParseInLocation("2006-01-02", req.ScheduledDate, time.UTC)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "scheduled_date must be YYYY-MM-DD")
	}

	exists, err := s.repo.ExistsActive(ctx, req.StudentID, scheduledDate)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check requests")
	}
	if exists {
		return nil, appErrors.ErrActiveRequestExists
	}

	request := &models.WithdrawalRequest{
		StudentID:     req.StudentID,
		PickupID:      req.PickupID,
		RequestedBy:   req.RequestedBy,
		ScheduledDate: scheduledDate,
		ScheduledTime: req.ScheduledTime,
		Reason:        req.Reason,
		Status:        models.RequestPending,
	}
	if err := s.repo.Create(ctx, request); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create request")
	}
	return request, nil
}

// ReviewRequest is the reviewer's decision on a pending request.
type ReviewRequest struct {
	Approve    bool    `json:"approve"`
	ReviewedBy string  `json:"reviewed_by" validate:"required"`
	Notes      *string `json:"notes"`
}

// Review moves a PENDING request to APPROVED or REJECTED. The repository
// guards the transition so a concurrent reviewer loses cleanly.
func (s *WithdrawalRequestService) Review(ctx context.Context, id string, req ReviewRequest) (*models.WithdrawalRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid review payload")
	}

	request, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}

	status := models.RequestRejected
	if req.Approve {
		status = models.RequestApproved
	}
	if !request.Status.CanTransitionTo(status) {
		return nil, appErrors.ErrInvalidTransition
	}

	reviewedAt := s.now()
	if err := s.repo.UpdateReview(ctx, id, status, req.ReviewedBy, req.Notes, reviewedAt); err != nil {
		if appErrors.Is(err, appErrors.ErrInvalidTransition) {
			return nil, err
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to review request")
	}

	request.Status = status
	request.ReviewedBy = &req.ReviewedBy
	request.ReviewNotes = req.Notes
	request.ReviewedAt = &reviewedAt
	return request, nil
}

// Cancel aborts a PENDING or APPROVED request.
func (s *WithdrawalRequestService) Cancel(ctx context.Context, id string) (*models.WithdrawalRequest, error) {
	request, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !request.Status.CanTransitionTo(models.RequestCancelled) {
		return nil, appErrors.ErrInvalidTransition
	}

	from := []models.RequestStatus{models.RequestPending, models.RequestApproved}
	if err := s.repo.UpdateStatus(ctx, id, from, models.RequestCancelled); err != nil {
		if appErrors.Is(err, appErrors.ErrInvalidTransition) {
			return nil, err
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel request")
	}
	request.Status = models.RequestCancelled
	return request, nil
}

// LinkIfMatched marks the APPROVED request matching the withdrawal's student,
// pickup and tenant-local completion date as COMPLETED. Withdrawals without a
// pickup never link; absence of a matching request is not an error.
func (s *WithdrawalRequestService) LinkIfMatched(ctx context.Context, studentID string, pickupID *string, withdrawalID string, completedAt time.Time) error {
	if pickupID == nil || *pickupID == "" {
		return nil
	}

	loc := timeutil.LoadLocation(s.tenantTZ)
	scheduledDate := timeutil.LocalDate(completedAt, loc)
	scheduledDate = time.Date(scheduledDate.Year(), scheduledDate.Month(), scheduledDate.Day(), 0, 0, 0, 0, time.UTC)

	request, err := s.repo.FindApprovedForDate(ctx, studentID, *pickupID, scheduledDate)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to find approved request")
	}
	if request == nil {
		return nil
	}

	if err := s.repo.MarkCompleted(ctx, request.ID, withdrawalID); err != nil {
		if appErrors.Is(err, appErrors.ErrInvalidTransition) {
			// Lost the race to another completion; nothing left to do.
			return nil
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to complete request")
	}
	s.logger.Info("withdrawal request fulfilled",
		zap.String("request_id", request.ID),
		zap.String("withdrawal_id", withdrawalID))
	return nil
}

// ExpireOverdue sweeps PENDING requests whose scheduled date has passed in
// tenant-local time. Runs on a ticker from main.
func (s *WithdrawalRequestService) ExpireOverdue(ctx context.Context) (int64, error) {
	loc := timeutil.LoadLocation(s.tenantTZ)
	today := timeutil.LocalDate(s.now(), loc)
	cutoff := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)

	swept, err := s.repo.ExpirePending(ctx, cutoff)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to expire requests")
	}
	if swept > 0 {
		s.logger.Info("expired overdue withdrawal requests", zap.Int64("count", swept))
	}
	return swept, nil
}

// Get fetches one request.
func (s *WithdrawalRequestService) Get(ctx context.Context, id string) (*models.WithdrawalRequest, error) {
	return s.get(ctx, id)
}

// List returns requests matching the filter.
func (s *WithdrawalRequestService) List(ctx context.Context, filter models.WithdrawalRequestFilter) ([]models.WithdrawalRequest, *models.Pagination, error) {
	requests, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list requests")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return requests, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

func (s *WithdrawalRequestService) get(ctx context.Context, id string) (*models.WithdrawalRequest, error) {
	request, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "withdrawal request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}
	return request, nil
}
