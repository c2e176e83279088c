package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/moffermann/school-attendance-sub001/internal/models"
	appErrors "github.com/moffermann/school-attendance-sub001/pkg/errors"
	"github.com/moffermann/school-attendance-sub001/pkg/jobs"
	"github.com/moffermann/school-attendance-sub001/pkg/timeutil"
)

// JobTypeDeliverNotification identifies notification delivery jobs on the queue.
const JobTypeDeliverNotification = "deliver_notification"

type notificationRepository interface {
	CreateIfAbsent(ctx context.Context, n *models.Notification) (bool, error)
	FindByID(ctx context.Context, id string) (*models.Notification, error)
	MarkSent(ctx context.Context, id string, sentAt time.Time) error
	MarkFailed(ctx context.Context, id string) error
	ListByContext(ctx context.Context, contextID string) ([]models.Notification, error)
}

type guardianRepository interface {
	ListByStudent(ctx context.Context, studentID string) ([]models.Guardian, error)
	GetPreference(ctx context.Context, guardianID, category string) (*models.ChannelPreference, error)
}

type notificationWithdrawalRepository interface {
	FindDetailByID(ctx context.Context, id string) (*models.WithdrawalDetail, error)
}

// NotificationSender delivers one rendered notification over its channel.
type NotificationSender interface {
	Send(ctx context.Context, n *models.Notification) error
}

type notificationQueue interface {
	Enqueue(job jobs.Job) error
}

type notificationMetrics interface {
	IncNotificationEnqueued(channel string)
}

// NotificationService fans a completed withdrawal out to the student's
// guardians. The database's unique notification tuple makes dispatch
// idempotent; delivery itself happens asynchronously on the job queue.
type NotificationService struct {
	repo        notificationRepository
	guardians   guardianRepository
	withdrawals notificationWithdrawalRepository
	sender      NotificationSender
	queue       notificationQueue
	metrics     notificationMetrics
	schoolName  string
	tenantTZ    string
	enabled     bool
	maxAttempts int
	logger      *zap.Logger
}

// NewNotificationService constructs the notification dispatcher. queue,
// sender and metrics are optional; without a queue, dispatch records rows but
// delivery waits for a later drain.
func NewNotificationService(repo notificationRepository, guardians guardianRepository, withdrawals notificationWithdrawalRepository, sender NotificationSender, schoolName, tenantTZ string, enabled bool, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		repo:        repo,
		guardians:   guardians,
		withdrawals: withdrawals,
		sender:      sender,
		schoolName:  schoolName,
		tenantTZ:    tenantTZ,
		enabled:     enabled,
		maxAttempts: 3,
		logger:      logger,
	}
}

// WithMaxAttempts sets how many delivery attempts run before a notification
// is marked FAILED. Matches the queue's retry budget.
func (s *NotificationService) WithMaxAttempts(n int) *NotificationService {
	if n > 0 {
		s.maxAttempts = n
	}
	return s
}

// WithQueue attaches the delivery job queue.
func (s *NotificationService) WithQueue(queue notificationQueue) *NotificationService {
	s.queue = queue
	return s
}

// WithMetrics attaches the metrics recorder.
func (s *NotificationService) WithMetrics(metrics notificationMetrics) *NotificationService {
	s.metrics = metrics
	return s
}

// NotifyCompleted queues one notification per guardian per enabled channel
// for the completed withdrawal. Re-running for the same withdrawal is a
// no-op thanks to the unique (guardian, channel, template, context) tuple.
func (s *NotificationService) NotifyCompleted(ctx context.Context, withdrawalID string) error {
	if !s.enabled {
		return nil
	}

	detail, err := s.withdrawals.FindDetailByID(ctx, withdrawalID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "withdrawal not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load withdrawal")
	}
	if detail.Status != models.WithdrawalCompleted {
		return appErrors.Clone(appErrors.ErrValidation, "withdrawal is not completed")
	}

	guardians, err := s.guardians.ListByStudent(ctx, detail.StudentID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load guardians")
	}
	if len(guardians) == 0 {
		s.logger.Warn("completed withdrawal has no guardians to notify",
			zap.String("withdrawal_id", withdrawalID),
			zap.String("student_id", detail.StudentID))
		return nil
	}

	payload, err := json.Marshal(s.buildPayload(detail))
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode payload")
	}

	// The template is chosen per guardian: only the guardian who collected
	// the student themselves gets the self wording, everyone else is told a
	// third party did.
	for _, guardian := range guardians {
		template := models.TemplateWithdrawalThirdParty
		if guardianIsPickup(guardian, detail) {
			template = models.TemplateWithdrawalSelf
		}
		for _, channel := range s.channelsFor(ctx, guardian) {
			s.dispatchOne(ctx, guardian, channel, template, withdrawalID, payload)
		}
	}
	return nil
}

func (s *NotificationService) dispatchOne(ctx context.Context, guardian models.Guardian, channel models.NotificationChannel, template, contextID string, payload json.RawMessage) {
	recipient := s.recipientFor(guardian, channel)
	if recipient == "" {
		return
	}

	notification := &models.Notification{
		GuardianID: guardian.ID,
		Channel:    channel,
		Template:   template,
		ContextID:  contextID,
		Recipient:  recipient,
		Payload:    payload,
	}
	created, err := s.repo.CreateIfAbsent(ctx, notification)
	if err != nil {
		s.logger.Error("failed to record notification",
			zap.String("guardian_id", guardian.ID),
			zap.String("channel", string(channel)),
			zap.Error(err))
		return
	}
	if !created {
		return
	}

	if s.metrics != nil {
		s.metrics.IncNotificationEnqueued(string(channel))
	}
	if s.queue == nil {
		return
	}
	job := jobs.Job{
		ID:      uuid.NewString(),
		Type:    JobTypeDeliverNotification,
		Payload: notification.ID,
	}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Error("failed to enqueue notification delivery",
			zap.String("notification_id", notification.ID),
			zap.Error(err))
	}
}

// DeliverJob is the queue handler for delivery jobs. A returned error makes
// the queue retry; once retries are exhausted the row stays PENDING for a
// later sweep.
func (s *NotificationService) DeliverJob(ctx context.Context, job jobs.Job) error {
	notificationID, ok := job.Payload.(string)
	if !ok {
		s.logger.Error("delivery job carries unexpected payload", zap.String("job_id", job.ID))
		return nil
	}

	notification, err := s.repo.FindByID(ctx, notificationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return err
	}
	if notification.Status != models.NotificationPending {
		return nil
	}

	if s.sender != nil {
		if err := s.sender.Send(ctx, notification); err != nil {
			if job.Attempt+1 >= s.maxAttempts {
				if markErr := s.repo.MarkFailed(ctx, notificationID); markErr != nil {
					s.logger.Error("failed to mark notification failed", zap.Error(markErr))
				}
			}
			return err
		}
	}
	return s.repo.MarkSent(ctx, notificationID, time.Now().UTC())
}

// ListForWithdrawal returns the notifications dispatched for one withdrawal.
func (s *NotificationService) ListForWithdrawal(ctx context.Context, withdrawalID string) ([]models.Notification, error) {
	list, err := s.repo.ListByContext(ctx, withdrawalID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	return list, nil
}

// guardianIsPickup reports whether the withdrawing adult is this guardian
// acting for themselves. National IDs decide when both sides carry one;
// otherwise a normalized full-name match is accepted as a fallback.
func guardianIsPickup(guardian models.Guardian, detail *models.WithdrawalDetail) bool {
	if detail.PickupName == nil {
		return false
	}
	if guardian.NationalID != nil && detail.PickupNationalID != nil {
		return *guardian.NationalID == *detail.PickupNationalID
	}
	return normalizeName(guardian.FullName) == normalizeName(*detail.PickupName)
}

func normalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

func (s *NotificationService) buildPayload(detail *models.WithdrawalDetail) models.WithdrawalNotificationPayload {
	loc := timeutil.LoadLocation(s.tenantTZ)
	completedAt := detail.InitiatedAt
	if detail.CompletedAt != nil {
		completedAt = *detail.CompletedAt
	}
	local := completedAt.In(loc)

	payload := models.WithdrawalNotificationPayload{
		SchoolName:   s.schoolName,
		StudentID:    detail.StudentID,
		StudentName:  detail.StudentName,
		LocalDate:    local.Format("2006-01-02"),
		LocalTime:    local.Format("15:04"),
		HasSignature: detail.SignaturePath != nil,
	}
	if detail.PickupName != nil {
		payload.PickupName = *detail.PickupName
	}
	if detail.PickupRelationship != nil {
		payload.PickupRelationship = *detail.PickupRelationship
	}
	if detail.Reason != nil {
		payload.Reason = *detail.Reason
	}
	return payload
}

func (s *NotificationService) channelsFor(ctx context.Context, guardian models.Guardian) []models.NotificationChannel {
	pref, err := s.guardians.GetPreference(ctx, guardian.ID, models.CategoryWithdrawalCompleted)
	if err != nil {
		s.logger.Warn("failed to load channel preference, defaulting to all",
			zap.String("guardian_id", guardian.ID),
			zap.Error(err))
		pref = nil
	}

	var channels []models.NotificationChannel
	if pref == nil || pref.EmailEnabled {
		channels = append(channels, models.ChannelEmail)
	}
	if pref == nil || pref.WhatsappEnabled {
		channels = append(channels, models.ChannelWhatsapp)
	}
	return channels
}

func (s *NotificationService) recipientFor(guardian models.Guardian, channel models.NotificationChannel) string {
	switch channel {
	case models.ChannelEmail:
		if guardian.Email != nil {
			return *guardian.Email
		}
	case models.ChannelWhatsapp:
		if guardian.Phone != nil {
			return *guardian.Phone
		}
	}
	return ""
}

// LogSender is the default NotificationSender. It writes the send to the
// structured log; real transports slot in behind the same interface.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender constructs a LogSender.
func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

// Send logs the outbound notification.
func (s *LogSender) Send(ctx context.Context, n *models.Notification) error {
	s.logger.Info("notification sent",
		zap.String("notification_id", n.ID),
		zap.String("channel", string(n.Channel)),
		zap.String("template", n.Template),
		zap.String("recipient", n.Recipient))
	return nil
}
