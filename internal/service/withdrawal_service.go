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
	"github.com/moffermann/school-attendance-sub001/pkg/export"
)

type withdrawalRepository interface {
	Create(ctx context.Context, w *models.StudentWithdrawal) error
	FindByID(ctx context.Context, id string) (*models.StudentWithdrawal, error)
	FindDetailByID(ctx context.Context, id string) (*models.WithdrawalDetail, error)
	FindActiveByStudent(ctx context.Context, studentID string) (*models.StudentWithdrawal, error)
	MarkVerified(ctx context.Context, id string, method models.VerificationMethod, verifiedBy, photoPath *string, verifiedAt time.Time) error
	Complete(ctx context.Context, id string, signaturePath, reason *string, completedAt time.Time) error
	CreateCompleted(ctx context.Context, w *models.StudentWithdrawal) error
	Cancel(ctx context.Context, id, cancelledBy, cancelReason string, cancelledAt time.Time) error
	List(ctx context.Context, filter models.WithdrawalFilter) ([]models.WithdrawalDetail, int, error)
}

type eligibilityValidator interface {
	Validate(ctx context.Context, studentID string, now time.Time, deviceTZ string) error
}

type pickupAuthorizer interface {
	Authorize(ctx context.Context, pickupID, studentID string) error
}

// crossLinker advances an approved withdrawal request when its student is
// withdrawn by the requested pickup. Failures here never affect the
// withdrawal itself.
type crossLinker interface {
	LinkIfMatched(ctx context.Context, studentID string, pickupID *string, withdrawalID string, completedAt time.Time) error
}

// completionNotifier queues guardian notifications for a completed
// withdrawal. Failures here never affect the withdrawal itself.
type completionNotifier interface {
	NotifyCompleted(ctx context.Context, withdrawalID string) error
}

type withdrawalMetrics interface {
	IncWithdrawalCompleted(method string)
}

// WithdrawalService drives the withdrawal lifecycle:
// INITIATED -> VERIFIED -> COMPLETED, with cancellation from either
// non-terminal state. The transition table lives on WithdrawalStatus; the
// database backstops double-completion with a per-day unique index.
type WithdrawalService struct {
	repo        withdrawalRepository
	eligibility eligibilityValidator
	pickups     pickupAuthorizer
	linker      crossLinker
	notifier    completionNotifier
	metrics     withdrawalMetrics
	slips       *export.SlipExporter
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewWithdrawalService constructs the withdrawal service. linker, notifier,
// metrics and slips are optional.
func NewWithdrawalService(repo withdrawalRepository, eligibility eligibilityValidator, pickups pickupAuthorizer, validate *validator.Validate, logger *zap.Logger) *WithdrawalService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WithdrawalService{
		repo:        repo,
		eligibility: eligibility,
		pickups:     pickups,
		validator:   validate,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithCrossLinker attaches the withdrawal-request linker.
func (s *WithdrawalService) WithCrossLinker(linker crossLinker) *WithdrawalService {
	s.linker = linker
	return s
}

// WithNotifier attaches the completion notifier.
func (s *WithdrawalService) WithNotifier(notifier completionNotifier) *WithdrawalService {
	s.notifier = notifier
	return s
}

// WithMetrics attaches the metrics recorder.
func (s *WithdrawalService) WithMetrics(metrics withdrawalMetrics) *WithdrawalService {
	s.metrics = metrics
	return s
}

// WithSlipExporter attaches the PDF slip renderer.
func (s *WithdrawalService) WithSlipExporter(slips *export.SlipExporter) *WithdrawalService {
	s.slips = slips
	return s
}

// InitiateRequest starts withdrawals for one or more students.
type InitiateRequest struct {
	StudentIDs []string             `json:"student_ids" validate:"required,min=1,dive,required"`
	PickupID   *string              `json:"pickup_id"`
	Reason     *string              `json:"reason"`
	Device     models.DeviceContext `json:"device"`
}

// InitiateResult reports the per-student outcome of a batch initiation.
type InitiateResult struct {
	Withdrawals []models.StudentWithdrawal `json:"withdrawals"`
	Failures    []models.WithdrawalFailure `json:"failures"`
}

// Initiate starts a withdrawal per student. A student with an existing
// non-terminal withdrawal gets that row back instead of a new one, so kiosk
// retries are idempotent. Each student is then validated independently; one
// ineligible student never blocks the rest, but when no student succeeds the
// whole call fails with the first reason.
func (s *WithdrawalService) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid initiate payload")
	}

	result := &InitiateResult{}
	now := s.now()

	var firstErr error
	for _, studentID := range req.StudentIDs {
		withdrawal, err := s.initiateOne(ctx, studentID, req, now)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			result.Failures = append(result.Failures, failureFromError(studentID, err))
			continue
		}
		result.Withdrawals = append(result.Withdrawals, *withdrawal)
	}
	if len(result.Withdrawals) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return result, nil
}

func (s *WithdrawalService) initiateOne(ctx context.Context, studentID string, req InitiateRequest, now time.Time) (*models.StudentWithdrawal, error) {
	// The reuse check runs before any validation: a kiosk retrying an
	// in-flight withdrawal must get the same row back even if the class
	// window closed or the pickup was deactivated in the meantime.
	existing, err := s.repo.FindActiveByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check active withdrawal")
	}
	if existing != nil {
		return existing, nil
	}

	if err := s.eligibility.Validate(ctx, studentID, now, req.Device.Timezone); err != nil {
		return nil, err
	}
	if req.PickupID != nil {
		if err := s.pickups.Authorize(ctx, *req.PickupID, studentID); err != nil {
			return nil, err
		}
	}

	withdrawal := &models.StudentWithdrawal{
		StudentID:   studentID,
		PickupID:    req.PickupID,
		Status:      models.WithdrawalInitiated,
		Reason:      req.Reason,
		DeviceID:    req.Device.DeviceID,
		IPAddress:   req.Device.IPAddress,
		UserAgent:   req.Device.UserAgent,
		InitiatedAt: now,
	}
	if err := s.repo.Create(ctx, withdrawal); err != nil {
		return nil, err
	}
	return withdrawal, nil
}

func failureFromError(studentID string, err error) models.WithdrawalFailure {
	appErr := appErrors.FromError(err)
	return models.WithdrawalFailure{StudentID: studentID, Code: appErr.Code, Message: appErr.Message}
}

// VerifyRequest records how the pickup's identity was checked.
type VerifyRequest struct {
	Method     models.VerificationMethod `json:"method" validate:"required"`
	VerifiedBy *string                   `json:"verified_by"`
	PhotoPath  *string                   `json:"photo_path"`
}

// Verify transitions INITIATED -> VERIFIED. Verifying an already VERIFIED
// withdrawal returns it unchanged so double-submits are harmless.
func (s *WithdrawalService) Verify(ctx context.Context, id string, req VerifyRequest) (*models.StudentWithdrawal, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid verify payload")
	}
	if !req.Method.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown verification method")
	}

	withdrawal, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if withdrawal.Status == models.WithdrawalVerified {
		return withdrawal, nil
	}
	if !withdrawal.Status.CanTransitionTo(models.WithdrawalVerified) {
		return nil, appErrors.ErrInvalidTransition
	}

	verifiedAt := s.now()
	if err := s.repo.MarkVerified(ctx, id, req.Method, req.VerifiedBy, req.PhotoPath, verifiedAt); err != nil {
		if appErrors.Is(err, appErrors.ErrInvalidTransition) {
			return nil, err
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify withdrawal")
	}

	withdrawal.Status = models.WithdrawalVerified
	withdrawal.Method = &req.Method
	withdrawal.VerifiedBy = req.VerifiedBy
	withdrawal.PhotoPath = req.PhotoPath
	withdrawal.VerifiedAt = &verifiedAt
	return withdrawal, nil
}

// CompleteRequest finalizes a verified withdrawal.
type CompleteRequest struct {
	SignaturePath *string `json:"signature_path"`
	Reason        *string `json:"reason"`
}

// Complete transitions VERIFIED -> COMPLETED. After the row is committed the
// cross-linker and notifier run best-effort; their failures are logged and
// never unwind the completion.
func (s *WithdrawalService) Complete(ctx context.Context, id string, req CompleteRequest) (*models.StudentWithdrawal, error) {
	withdrawal, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !withdrawal.Status.CanTransitionTo(models.WithdrawalCompleted) {
		return nil, appErrors.ErrInvalidTransition
	}

	completedAt := s.now()
	if err := s.repo.Complete(ctx, id, req.SignaturePath, req.Reason, completedAt); err != nil {
		if appErrors.Is(err, appErrors.ErrInvalidTransition) || appErrors.Is(err, appErrors.ErrWithdrawalConflict) {
			return nil, err
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to complete withdrawal")
	}

	withdrawal.Status = models.WithdrawalCompleted
	withdrawal.SignaturePath = req.SignaturePath
	if req.Reason != nil {
		withdrawal.Reason = req.Reason
	}
	withdrawal.CompletedAt = &completedAt

	s.afterCompletion(ctx, withdrawal, completedAt)
	return withdrawal, nil
}

func (s *WithdrawalService) afterCompletion(ctx context.Context, w *models.StudentWithdrawal, completedAt time.Time) {
	if s.linker != nil {
		if err := s.linker.LinkIfMatched(ctx, w.StudentID, w.PickupID, w.ID, completedAt); err != nil {
			s.logger.Warn("withdrawal request link failed",
				zap.String("withdrawal_id", w.ID),
				zap.String("student_id", w.StudentID),
				zap.Error(err))
		}
	}
	if s.notifier != nil {
		if err := s.notifier.NotifyCompleted(ctx, w.ID); err != nil {
			s.logger.Warn("completion notification failed",
				zap.String("withdrawal_id", w.ID),
				zap.Error(err))
		}
	}
	if s.metrics != nil {
		method := string(models.VerifyQRScan)
		if w.Method != nil {
			method = string(*w.Method)
		}
		s.metrics.IncWithdrawalCompleted(method)
	}
}

// CancelRequest aborts a non-terminal withdrawal.
type CancelRequest struct {
	CancelledBy string `json:"cancelled_by" validate:"required"`
	Reason      string `json:"reason" validate:"required,min=10"`
}

// Cancel transitions INITIATED or VERIFIED -> CANCELLED. The reason is
// mandatory and must carry enough text to be useful in an audit.
func (s *WithdrawalService) Cancel(ctx context.Context, id string, req CancelRequest) (*models.StudentWithdrawal, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "cancel reason must be at least 10 characters")
	}

	withdrawal, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !withdrawal.Status.CanTransitionTo(models.WithdrawalCancelled) {
		return nil, appErrors.ErrInvalidTransition
	}

	cancelledAt := s.now()
	if err := s.repo.Cancel(ctx, id, req.CancelledBy, req.Reason, cancelledAt); err != nil {
		if appErrors.Is(err, appErrors.ErrInvalidTransition) {
			return nil, err
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel withdrawal")
	}

	withdrawal.Status = models.WithdrawalCancelled
	withdrawal.CancelledBy = &req.CancelledBy
	withdrawal.CancelReason = &req.Reason
	withdrawal.CancelledAt = &cancelledAt
	return withdrawal, nil
}

// AdminOverrideRequest records an administrator-forced withdrawal.
type AdminOverrideRequest struct {
	StudentID     string               `json:"student_id" validate:"required"`
	AdminID       string               `json:"admin_id" validate:"required"`
	Reason        string               `json:"reason" validate:"required,min=10"`
	PickupID      *string              `json:"pickup_id"`
	SignaturePath *string              `json:"signature_path"`
	Device        models.DeviceContext `json:"device"`
}

// AdminOverride records an already-effected withdrawal in one step. The
// eligibility checks still run; the row lands COMPLETED atomically so the
// per-day index applies exactly as in the normal flow.
func (s *WithdrawalService) AdminOverride(ctx context.Context, req AdminOverrideRequest) (*models.StudentWithdrawal, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid override payload")
	}
	if err := s.eligibility.Validate(ctx, req.StudentID, s.now(), req.Device.Timezone); err != nil {
		return nil, err
	}
	if req.PickupID != nil {
		if err := s.pickups.Authorize(ctx, *req.PickupID, req.StudentID); err != nil {
			return nil, err
		}
	}

	now := s.now()
	method := models.VerifyAdminOverride
	withdrawal := &models.StudentWithdrawal{
		StudentID:     req.StudentID,
		PickupID:      req.PickupID,
		Status:        models.WithdrawalCompleted,
		Method:        &method,
		VerifiedBy:    &req.AdminID,
		SignaturePath: req.SignaturePath,
		Reason:        &req.Reason,
		DeviceID:      req.Device.DeviceID,
		IPAddress:     req.Device.IPAddress,
		UserAgent:     req.Device.UserAgent,
		InitiatedAt:   now,
		VerifiedAt:    &now,
		CompletedAt:   &now,
	}
	if err := s.repo.CreateCompleted(ctx, withdrawal); err != nil {
		if appErrors.Is(err, appErrors.ErrWithdrawalConflict) {
			return nil, err
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record override")
	}

	s.afterCompletion(ctx, withdrawal, now)
	return withdrawal, nil
}

// Get fetches one withdrawal.
func (s *WithdrawalService) Get(ctx context.Context, id string) (*models.StudentWithdrawal, error) {
	return s.get(ctx, id)
}

// GetDetail fetches one withdrawal with student and pickup names.
func (s *WithdrawalService) GetDetail(ctx context.Context, id string) (*models.WithdrawalDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "withdrawal not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load withdrawal")
	}
	return detail, nil
}

// List returns withdrawals matching the filter.
func (s *WithdrawalService) List(ctx context.Context, filter models.WithdrawalFilter) ([]models.WithdrawalDetail, *models.Pagination, error) {
	withdrawals, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list withdrawals")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return withdrawals, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Slip renders the printable exit slip for a completed withdrawal.
func (s *WithdrawalService) Slip(ctx context.Context, id, schoolName string, loc *time.Location) ([]byte, error) {
	if s.slips == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "slip rendering is not configured")
	}
	detail, err := s.GetDetail(ctx, id)
	if err != nil {
		return nil, err
	}
	if detail.Status != models.WithdrawalCompleted {
		return nil, appErrors.Clone(appErrors.ErrValidation, "slip is only available for completed withdrawals")
	}

	completedAt := detail.InitiatedAt
	if detail.CompletedAt != nil {
		completedAt = *detail.CompletedAt
	}
	data := export.SlipData{
		WithdrawalID: detail.ID,
		SchoolName:   schoolName,
		StudentName:  detail.StudentName,
		CompletedAt:  completedAt.In(loc).Format("2006-01-02 15:04"),
	}
	if detail.CourseName != nil {
		data.CourseName = *detail.CourseName
	}
	if detail.PickupName != nil {
		data.PickupName = *detail.PickupName
	}
	if detail.PickupRelationship != nil {
		data.Relationship = *detail.PickupRelationship
	}
	if detail.Method != nil {
		data.Method = string(*detail.Method)
	}
	if detail.Reason != nil {
		data.Reason = *detail.Reason
	}
	data.HasSignature = detail.SignaturePath != nil

	return s.slips.Render(data)
}

func (s *WithdrawalService) get(ctx context.Context, id string) (*models.StudentWithdrawal, error) {
	withdrawal, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "withdrawal not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load withdrawal")
	}
	return withdrawal, nil
}
