package models

import "time"

// AttendanceDirection distinguishes entry and exit scans.
type AttendanceDirection string

const (
	AttendanceIn  AttendanceDirection = "IN"
	AttendanceOut AttendanceDirection = "OUT"
)

// Valid returns true when the direction is a supported value.
func (d AttendanceDirection) Valid() bool {
	return d == AttendanceIn || d == AttendanceOut
}

// AttendanceEvent is an immutable record of a kiosk IN/OUT scan.
type AttendanceEvent struct {
	ID         string              `db:"id" json:"id"`
	StudentID  string              `db:"student_id" json:"student_id"`
	Direction  AttendanceDirection `db:"direction" json:"direction"`
	RecordedAt time.Time           `db:"recorded_at" json:"recorded_at"`
	DeviceID   *string             `db:"device_id" json:"device_id,omitempty"`
	CreatedAt  time.Time           `db:"created_at" json:"created_at"`
}
