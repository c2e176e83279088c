package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrInvalidCredentials = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid email or password")
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
)

// Withdrawal eligibility and state machine reason codes.
var (
	ErrStudentNotEligible   = New("STUDENT_NOT_ELIGIBLE", http.StatusUnprocessableEntity, "student not found or inactive")
	ErrNoCourseAssigned     = New("NO_COURSE_ASSIGNED", http.StatusUnprocessableEntity, "student has no course assigned")
	ErrNoEntryToday         = New("NO_ENTRY_TODAY", http.StatusUnprocessableEntity, "no entry recorded for the student today")
	ErrAlreadyWithdrawn     = New("ALREADY_WITHDRAWN_TODAY", http.StatusUnprocessableEntity, "student already withdrawn today")
	ErrAlreadyExited        = New("ALREADY_EXITED_TODAY", http.StatusUnprocessableEntity, "student already exited normally today")
	ErrNoClassToday         = New("NO_CLASS_TODAY", http.StatusUnprocessableEntity, "no class scheduled today")
	ErrOutsideClassHours    = New("OUTSIDE_CLASS_HOURS", http.StatusUnprocessableEntity, "current time is outside class hours")
	ErrPickupNotEligible    = New("PICKUP_NOT_ELIGIBLE", http.StatusUnprocessableEntity, "authorized pickup not found or inactive")
	ErrPickupNotAuthorized  = New("PICKUP_NOT_AUTHORIZED", http.StatusUnprocessableEntity, "pickup is not authorized for this student")
	ErrInvalidTransition    = New("INVALID_TRANSITION", http.StatusConflict, "withdrawal status does not allow this operation")
	ErrWithdrawalConflict   = New("WITHDRAWAL_CONFLICT", http.StatusConflict, "student already has a completed withdrawal today")
	ErrActiveRequestExists  = New("ACTIVE_REQUEST_EXISTS", http.StatusConflict, "an active request already exists for this student and date")
	ErrDuplicateQRSecret    = New("DUPLICATE_QR_SECRET", http.StatusConflict, "qr verification secret already registered")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// Is reports whether err carries the same code as target.
func Is(err error, target *Error) bool {
	if err == nil || target == nil {
		return false
	}
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == target.Code
}
