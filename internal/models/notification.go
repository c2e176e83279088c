package models

import (
	"encoding/json"
	"time"
)

// NotificationChannel identifies the delivery transport.
type NotificationChannel string

const (
	ChannelEmail    NotificationChannel = "EMAIL"
	ChannelWhatsapp NotificationChannel = "WHATSAPP"
)

// Notification templates for the withdrawal-completed category.
const (
	TemplateWithdrawalSelf       = "withdrawal_completed_self"
	TemplateWithdrawalThirdParty = "withdrawal_completed_third_party"

	CategoryWithdrawalCompleted = "withdrawal_completed"
)

// NotificationStatus tracks asynchronous delivery progress.
type NotificationStatus string

const (
	NotificationPending NotificationStatus = "PENDING"
	NotificationSent    NotificationStatus = "SENT"
	NotificationFailed  NotificationStatus = "FAILED"
)

// Notification is one queued message for one guardian on one channel.
// The (guardian_id, channel, template, context_id) tuple is unique so retried
// dispatches never produce duplicate sends.
type Notification struct {
	ID         string              `db:"id" json:"id"`
	GuardianID string              `db:"guardian_id" json:"guardian_id"`
	Channel    NotificationChannel `db:"channel" json:"channel"`
	Template   string              `db:"template" json:"template"`
	ContextID  string              `db:"context_id" json:"context_id"`
	Recipient  string              `db:"recipient" json:"recipient"`
	Payload    json.RawMessage     `db:"payload" json:"payload"`
	Status     NotificationStatus  `db:"status" json:"status"`
	SentAt     *time.Time          `db:"sent_at" json:"sent_at,omitempty"`
	CreatedAt  time.Time           `db:"created_at" json:"created_at"`
}

// WithdrawalNotificationPayload is the message context rendered per channel.
type WithdrawalNotificationPayload struct {
	SchoolName         string `json:"school_name"`
	StudentID          string `json:"student_id"`
	StudentName        string `json:"student_name"`
	PickupName         string `json:"pickup_name"`
	PickupRelationship string `json:"pickup_relationship"`
	LocalDate          string `json:"local_date"`
	LocalTime          string `json:"local_time"`
	HasSignature       bool   `json:"has_signature"`
	Reason             string `json:"reason,omitempty"`
}
