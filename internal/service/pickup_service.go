package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/moffermann/school-attendance-sub001/internal/models"
	appErrors "github.com/moffermann/school-attendance-sub001/pkg/errors"
)

type pickupRepository interface {
	Create(ctx context.Context, pickup *models.AuthorizedPickup) error
	Update(ctx context.Context, pickup *models.AuthorizedPickup) error
	FindByID(ctx context.Context, id string) (*models.AuthorizedPickup, error)
	GetActive(ctx context.Context, id string) (*models.AuthorizedPickup, error)
	IsAuthorizedForStudent(ctx context.Context, pickupID, studentID string) (bool, error)
	AttachStudent(ctx context.Context, link *models.StudentPickup) error
	DetachStudent(ctx context.Context, pickupID, studentID string) error
	ListForStudent(ctx context.Context, studentID string) ([]models.PickupForStudent, error)
	List(ctx context.Context, filter models.PickupFilter) ([]models.AuthorizedPickup, int, error)
	Deactivate(ctx context.Context, id string) error
}

// PickupService manages authorized pickups and answers authorization checks.
//
// The student link's valid_from/valid_until columns are persisted but not yet
// part of the authorization predicate; enforcement is pending a product
// decision.
type PickupService struct {
	repo      pickupRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewPickupService constructs the pickup service.
func NewPickupService(repo pickupRepository, validate *validator.Validate, logger *zap.Logger) *PickupService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PickupService{repo: repo, validator: validate, logger: logger}
}

// Authorize checks that the pickup is active and linked to the student.
func (s *PickupService) Authorize(ctx context.Context, pickupID, studentID string) error {
	pickup, err := s.repo.GetActive(ctx, pickupID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load pickup")
	}
	if pickup == nil {
		return appErrors.ErrPickupNotEligible
	}

	authorized, err := s.repo.IsAuthorizedForStudent(ctx, pickupID, studentID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check authorization")
	}
	if !authorized {
		return appErrors.ErrPickupNotAuthorized
	}
	return nil
}

// CreatePickupRequest describes a new authorized pickup.
type CreatePickupRequest struct {
	FullName     string  `json:"full_name" validate:"required"`
	NationalID   *string `json:"national_id"`
	Relationship string  `json:"relationship" validate:"required"`
	Phone        *string `json:"phone"`
	Email        *string `json:"email" validate:"omitempty,email"`
	QRSecret     *string `json:"qr_secret"`
	PhotoURL     *string `json:"photo_url"`
}

// Create registers a new pickup, hashing the QR secret before storage. The
// raw secret never touches the database.
func (s *PickupService) Create(ctx context.Context, req CreatePickupRequest) (*models.AuthorizedPickup, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid pickup payload")
	}

	pickup := &models.AuthorizedPickup{
		FullName:     req.FullName,
		NationalID:   req.NationalID,
		Relationship: req.Relationship,
		Phone:        req.Phone,
		Email:        req.Email,
		PhotoURL:     req.PhotoURL,
		Active:       true,
	}

	if req.QRSecret != nil && *req.QRSecret != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(*req.QRSecret), bcrypt.DefaultCost)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash qr secret")
		}
		hashed := string(hash)
		pickup.QRCodeHash = &hashed
	}

	if err := s.repo.Create(ctx, pickup); err != nil {
		if appErrors.Is(err, appErrors.ErrDuplicateQRSecret) {
			return nil, err
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create pickup")
	}
	return pickup, nil
}

// UpdatePickupRequest describes mutable pickup attributes.
type UpdatePickupRequest struct {
	FullName     string  `json:"full_name" validate:"required"`
	NationalID   *string `json:"national_id"`
	Relationship string  `json:"relationship" validate:"required"`
	Phone        *string `json:"phone"`
	Email        *string `json:"email" validate:"omitempty,email"`
	PhotoURL     *string `json:"photo_url"`
	Active       bool    `json:"active"`
}

// Update modifies a pickup's attributes. The QR hash is immutable here.
func (s *PickupService) Update(ctx context.Context, id string, req UpdatePickupRequest) (*models.AuthorizedPickup, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid pickup payload")
	}

	pickup, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "pickup not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load pickup")
	}

	pickup.FullName = req.FullName
	pickup.NationalID = req.NationalID
	pickup.Relationship = req.Relationship
	pickup.Phone = req.Phone
	pickup.Email = req.Email
	pickup.PhotoURL = req.PhotoURL
	pickup.Active = req.Active

	if err := s.repo.Update(ctx, pickup); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update pickup")
	}
	return pickup, nil
}

// Get fetches a pickup by id.
func (s *PickupService) Get(ctx context.Context, id string) (*models.AuthorizedPickup, error) {
	pickup, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "pickup not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load pickup")
	}
	return pickup, nil
}

// List returns pickups matching the filter.
func (s *PickupService) List(ctx context.Context, filter models.PickupFilter) ([]models.AuthorizedPickup, *models.Pagination, error) {
	pickups, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pickups")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return pickups, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// AttachStudentRequest links a pickup to a student.
type AttachStudentRequest struct {
	StudentID  string     `json:"student_id" validate:"required"`
	Priority   int        `json:"priority"`
	ValidFrom  *time.Time `json:"valid_from"`
	ValidUntil *time.Time `json:"valid_until"`
	Notes      *string    `json:"notes"`
}

// AttachStudent links the pickup to a student with per-pair metadata.
func (s *PickupService) AttachStudent(ctx context.Context, pickupID string, req AttachStudentRequest) (*models.StudentPickup, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid link payload")
	}
	if _, err := s.Get(ctx, pickupID); err != nil {
		return nil, err
	}

	link := &models.StudentPickup{
		PickupID:   pickupID,
		StudentID:  req.StudentID,
		Priority:   req.Priority,
		ValidFrom:  req.ValidFrom,
		ValidUntil: req.ValidUntil,
		Notes:      req.Notes,
	}
	if err := s.repo.AttachStudent(ctx, link); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to link student")
	}
	return link, nil
}

// DetachStudent removes the pickup-student link.
func (s *PickupService) DetachStudent(ctx context.Context, pickupID, studentID string) error {
	if err := s.repo.DetachStudent(ctx, pickupID, studentID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to unlink student")
	}
	return nil
}

// ListForStudent returns the pickups authorized for a student.
func (s *PickupService) ListForStudent(ctx context.Context, studentID string) ([]models.PickupForStudent, error) {
	pickups, err := s.repo.ListForStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pickups")
	}
	return pickups, nil
}

// Deactivate soft-disables a pickup.
func (s *PickupService) Deactivate(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate pickup")
	}
	return nil
}
