package models

import "time"

// AuthorizedPickup is an adult pre-registered as permitted to collect
// students. The QR verification secret is stored only as a salted hash.
// Deactivation is a soft flag; pickups are never deleted.
type AuthorizedPickup struct {
	ID           string    `db:"id" json:"id"`
	FullName     string    `db:"full_name" json:"full_name"`
	NationalID   *string   `db:"national_id" json:"national_id,omitempty"`
	Relationship string    `db:"relationship" json:"relationship"`
	Phone        *string   `db:"phone" json:"phone,omitempty"`
	Email        *string   `db:"email" json:"email,omitempty"`
	QRCodeHash   *string   `db:"qr_code_hash" json:"-"`
	PhotoURL     *string   `db:"photo_url" json:"photo_url,omitempty"`
	Active       bool      `db:"active" json:"active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// StudentPickup is the many-to-many link between a pickup and a student.
// The validity window is stored but not yet enforced by authorization.
type StudentPickup struct {
	PickupID   string     `db:"pickup_id" json:"pickup_id"`
	StudentID  string     `db:"student_id" json:"student_id"`
	Priority   int        `db:"priority" json:"priority"`
	ValidFrom  *time.Time `db:"valid_from" json:"valid_from,omitempty"`
	ValidUntil *time.Time `db:"valid_until" json:"valid_until,omitempty"`
	Notes      *string    `db:"notes" json:"notes,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

// PickupForStudent joins a pickup with its link metadata for one student.
type PickupForStudent struct {
	AuthorizedPickup
	Priority   int        `db:"priority" json:"priority"`
	ValidFrom  *time.Time `db:"valid_from" json:"valid_from,omitempty"`
	ValidUntil *time.Time `db:"valid_until" json:"valid_until,omitempty"`
	Notes      *string    `db:"notes" json:"notes,omitempty"`
}

// PickupFilter captures listing criteria for pickups.
type PickupFilter struct {
	Active    *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
