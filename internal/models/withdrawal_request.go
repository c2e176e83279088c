package models

import "time"

// RequestStatus represents the lifecycle state of an advance pickup request.
type RequestStatus string

const (
	RequestPending   RequestStatus = "PENDING"
	RequestApproved  RequestStatus = "APPROVED"
	RequestRejected  RequestStatus = "REJECTED"
	RequestCancelled RequestStatus = "CANCELLED"
	RequestExpired   RequestStatus = "EXPIRED"
	RequestCompleted RequestStatus = "COMPLETED"
)

// Valid returns true when the status is a supported value.
func (s RequestStatus) Valid() bool {
	switch s {
	case RequestPending, RequestApproved, RequestRejected, RequestCancelled, RequestExpired, RequestCompleted:
		return true
	default:
		return false
	}
}

// Active reports whether the request still blocks new requests for the same
// student and scheduled date.
func (s RequestStatus) Active() bool {
	return s == RequestPending || s == RequestApproved
}

var requestTransitions = map[RequestStatus]map[RequestStatus]bool{
	RequestPending: {
		RequestApproved:  true,
		RequestRejected:  true,
		RequestCancelled: true,
		RequestExpired:   true,
	},
	RequestApproved: {
		RequestCompleted: true,
		RequestCancelled: true,
	},
}

// CanTransitionTo reports whether moving from s to next is legal.
func (s RequestStatus) CanTransitionTo(next RequestStatus) bool {
	return requestTransitions[s][next]
}

// WithdrawalRequest is a guardian's advance request for a scheduled pickup.
// WithdrawalID is set once, at cross-link time, when a completed withdrawal
// fulfils the request; the withdrawal side carries no back-pointer.
type WithdrawalRequest struct {
	ID            string        `db:"id" json:"id"`
	StudentID     string        `db:"student_id" json:"student_id"`
	PickupID      string        `db:"pickup_id" json:"pickup_id"`
	RequestedBy   string        `db:"requested_by" json:"requested_by"`
	ScheduledDate time.Time     `db:"scheduled_date" json:"scheduled_date"`
	ScheduledTime *string       `db:"scheduled_time" json:"scheduled_time,omitempty"`
	Reason        *string       `db:"reason" json:"reason,omitempty"`
	Status        RequestStatus `db:"status" json:"status"`
	ReviewedBy    *string       `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewNotes   *string       `db:"review_notes" json:"review_notes,omitempty"`
	ReviewedAt    *time.Time    `db:"reviewed_at" json:"reviewed_at,omitempty"`
	WithdrawalID  *string       `db:"withdrawal_id" json:"withdrawal_id,omitempty"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updated_at"`
}

// WithdrawalRequestFilter scopes request listing queries.
type WithdrawalRequestFilter struct {
	StudentID string
	Status    *RequestStatus
	DateFrom  *time.Time
	DateTo    *time.Time
	Page      int
	PageSize  int
	SortOrder string
}
