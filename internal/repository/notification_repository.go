package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/moffermann/school-attendance-sub001/internal/models"
)

// NotificationRepository persists queued guardian notifications.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs a NotificationRepository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// CreateIfAbsent inserts the notification unless one already exists for the
// same (guardian, channel, template, context) key. Returns false when the
// row already existed, which callers treat as an already-dispatched send.
func (r *NotificationRepository) CreateIfAbsent(ctx context.Context, n *models.Notification) (bool, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if n.Status == "" {
		n.Status = models.NotificationPending
	}
	const query = `INSERT INTO notifications (id, guardian_id, channel, template, context_id, recipient, payload, status, sent_at, created_at)
        VALUES (:id, :guardian_id, :channel, :template, :context_id, :recipient, :payload, :status, :sent_at, :created_at)
        ON CONFLICT (guardian_id, channel, template, context_id) DO NOTHING`
	res, err := r.db.NamedExecContext(ctx, query, n)
	if err != nil {
		return false, fmt.Errorf("create notification: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("create notification result: %w", err)
	}
	return affected > 0, nil
}

// FindByID fetches a notification row.
func (r *NotificationRepository) FindByID(ctx context.Context, id string) (*models.Notification, error) {
	var n models.Notification
	if err := r.db.GetContext(ctx, &n, "SELECT * FROM notifications WHERE id = $1", id); err != nil {
		return nil, err
	}
	return &n, nil
}

// MarkSent records successful delivery.
func (r *NotificationRepository) MarkSent(ctx context.Context, id string, sentAt time.Time) error {
	if _, err := r.db.ExecContext(ctx,
		"UPDATE notifications SET status = $2, sent_at = $3 WHERE id = $1", id, models.NotificationSent, sentAt); err != nil {
		return fmt.Errorf("mark notification sent: %w", err)
	}
	return nil
}

// MarkFailed records a delivery failure after retries were exhausted.
func (r *NotificationRepository) MarkFailed(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx,
		"UPDATE notifications SET status = $2 WHERE id = $1", id, models.NotificationFailed); err != nil {
		return fmt.Errorf("mark notification failed: %w", err)
	}
	return nil
}

// ListByContext returns notifications created for one withdrawal.
func (r *NotificationRepository) ListByContext(ctx context.Context, contextID string) ([]models.Notification, error) {
	var list []models.Notification
	err := r.db.SelectContext(ctx, &list,
		"SELECT * FROM notifications WHERE context_id = $1 ORDER BY created_at ASC", contextID)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return list, nil
}
