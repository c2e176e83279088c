package models

import "time"

// WithdrawalStatus represents the lifecycle state of a student withdrawal.
type WithdrawalStatus string

const (
	WithdrawalInitiated WithdrawalStatus = "INITIATED"
	WithdrawalVerified  WithdrawalStatus = "VERIFIED"
	WithdrawalCompleted WithdrawalStatus = "COMPLETED"
	WithdrawalCancelled WithdrawalStatus = "CANCELLED"
)

// Valid returns true when the status is a supported value.
func (s WithdrawalStatus) Valid() bool {
	switch s {
	case WithdrawalInitiated, WithdrawalVerified, WithdrawalCompleted, WithdrawalCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status admits no further transitions.
func (s WithdrawalStatus) Terminal() bool {
	return s == WithdrawalCompleted || s == WithdrawalCancelled
}

// withdrawalTransitions is the closed table of legal state transitions.
// Terminal states (COMPLETED, CANCELLED) have no outgoing transitions.
var withdrawalTransitions = map[WithdrawalStatus]map[WithdrawalStatus]bool{
	WithdrawalInitiated: {
		WithdrawalVerified:  true,
		WithdrawalCancelled: true,
	},
	WithdrawalVerified: {
		WithdrawalCompleted: true,
		WithdrawalCancelled: true,
	},
}

// CanTransitionTo reports whether moving from s to next is legal.
func (s WithdrawalStatus) CanTransitionTo(next WithdrawalStatus) bool {
	return withdrawalTransitions[s][next]
}

// VerificationMethod identifies how the pickup's identity was checked.
type VerificationMethod string

const (
	VerifyQRScan        VerificationMethod = "QR_SCAN"
	VerifyBiometric     VerificationMethod = "BIOMETRIC"
	VerifyPhotoMatch    VerificationMethod = "PHOTO_MATCH"
	VerifyAdminOverride VerificationMethod = "ADMIN_OVERRIDE"
)

// Valid returns true when the method is a supported value.
func (m VerificationMethod) Valid() bool {
	switch m {
	case VerifyQRScan, VerifyBiometric, VerifyPhotoMatch, VerifyAdminOverride:
		return true
	default:
		return false
	}
}

// DeviceContext captures the client context of a withdrawal operation.
type DeviceContext struct {
	DeviceID  *string `db:"device_id" json:"device_id,omitempty"`
	IPAddress *string `db:"ip_address" json:"ip_address,omitempty"`
	UserAgent *string `db:"user_agent" json:"user_agent,omitempty"`
	Timezone  string  `db:"-" json:"timezone,omitempty"`
}

// StudentWithdrawal is one attempt to remove a student from school today.
// At most one COMPLETED withdrawal may exist per student per tenant-local
// calendar day; the database enforces this with a partial unique index over
// (student_id, local_date(initiated_at)) on completed rows.
type StudentWithdrawal struct {
	ID            string              `db:"id" json:"id"`
	StudentID     string              `db:"student_id" json:"student_id"`
	PickupID      *string             `db:"pickup_id" json:"pickup_id,omitempty"`
	Status        WithdrawalStatus    `db:"status" json:"status"`
	Method        *VerificationMethod `db:"method" json:"method,omitempty"`
	VerifiedBy    *string             `db:"verified_by" json:"verified_by,omitempty"`
	PhotoPath     *string             `db:"photo_path" json:"photo_path,omitempty"`
	SignaturePath *string             `db:"signature_path" json:"signature_path,omitempty"`
	Reason        *string             `db:"reason" json:"reason,omitempty"`
	CancelledBy   *string             `db:"cancelled_by" json:"cancelled_by,omitempty"`
	CancelReason  *string             `db:"cancel_reason" json:"cancel_reason,omitempty"`
	CancelledAt   *time.Time          `db:"cancelled_at" json:"cancelled_at,omitempty"`
	DeviceID      *string             `db:"device_id" json:"device_id,omitempty"`
	IPAddress     *string             `db:"ip_address" json:"ip_address,omitempty"`
	UserAgent     *string             `db:"user_agent" json:"user_agent,omitempty"`
	InitiatedAt   time.Time           `db:"initiated_at" json:"initiated_at"`
	VerifiedAt    *time.Time          `db:"verified_at" json:"verified_at,omitempty"`
	CompletedAt   *time.Time          `db:"completed_at" json:"completed_at,omitempty"`
}

// WithdrawalDetail joins a withdrawal with student and pickup names.
type WithdrawalDetail struct {
	StudentWithdrawal
	StudentName        string  `db:"student_name" json:"student_name"`
	StudentNationalID  *string `db:"student_national_id" json:"student_national_id,omitempty"`
	CourseName         *string `db:"course_name" json:"course_name,omitempty"`
	PickupName         *string `db:"pickup_name" json:"pickup_name,omitempty"`
	PickupNationalID   *string `db:"pickup_national_id" json:"pickup_national_id,omitempty"`
	PickupRelationship *string `db:"pickup_relationship" json:"pickup_relationship,omitempty"`
}

// WithdrawalFilter scopes withdrawal listing queries.
type WithdrawalFilter struct {
	StudentID string
	Status    *WithdrawalStatus
	DateFrom  *time.Time
	DateTo    *time.Time
	Page      int
	PageSize  int
	SortOrder string
}

// WithdrawalFailure reports one student that failed batch initiation.
type WithdrawalFailure struct {
	StudentID string `json:"student_id"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}
